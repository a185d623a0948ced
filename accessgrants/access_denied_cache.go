/*
Copyright 2026 The Flux authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package accessgrants

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/fluxcd/pkg/s3accessgrants/cache"
)

const (
	// AccessDeniedCacheTTL is how long a denial is remembered.
	AccessDeniedCacheTTL = 5 * time.Minute
	// DefaultAccessDeniedCacheSize is the default number of remembered denials.
	DefaultAccessDeniedCacheSize = 3_000
	// MaxAccessDeniedCacheSize is the largest accepted number of remembered denials.
	MaxAccessDeniedCacheSize = 1_000_000
)

// AccessDeniedCache remembers the access denied errors returned for a
// CacheKey during AccessDeniedCacheTTL. Lookups match the exact key only:
// a denial for s3://bucket/foo doesn't apply to s3://bucket/foo/bar, where
// a more specific grant may exist.
type AccessDeniedCache struct {
	cache *cache.Cache[error]
}

// NewAccessDeniedCache returns a new AccessDeniedCache.
func NewAccessDeniedCache(opts ...Option) (*AccessDeniedCache, error) {
	o := newOptions(DefaultAccessDeniedCacheSize, AccessDeniedCacheTTL, opts...)
	if err := o.validateSize("access denied", MaxAccessDeniedCacheSize); err != nil {
		return nil, err
	}

	c, err := cache.New[error](o.MaxCacheSize, o.storeOptions("access_denied", AccessDeniedCacheTTL)...)
	if err != nil {
		return nil, configError("failed to create access denied cache: %w", err)
	}
	return &AccessDeniedCache{cache: c}, nil
}

// Get returns the error remembered for key, or nil.
func (c *AccessDeniedCache) Get(key CacheKey) error {
	v, err := c.cache.Get(key.String())
	if err != nil || v == nil {
		return nil
	}
	return *v
}

// Put remembers err for key.
func (c *AccessDeniedCache) Put(ctx context.Context, key CacheKey, err error) {
	if err == nil {
		return
	}
	if cerr := c.cache.Set(key.String(), err); cerr != nil {
		logr.FromContextOrDiscard(ctx).Error(cerr, "failed to cache access denied error",
			"prefix", key.Prefix(), "permission", key.Permission())
	}
}

// InvalidateCache removes all the remembered denials.
func (c *AccessDeniedCache) InvalidateCache() {
	c.cache.Clear()
}

// Close stops the background removal of expired denials.
func (c *AccessDeniedCache) Close() error {
	return c.cache.Close()
}
