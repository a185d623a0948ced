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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/fluxcd/pkg/s3accessgrants/cache"
)

// DefaultMetricsNamespace prefixes the names of the cache metrics.
const DefaultMetricsNamespace = "s3ag_"

// Options contains the configuration of a cache. Each cache starts from its
// own defaults and validates the values against its own bounds.
type Options struct {
	// MaxCacheSize is the maximum number of entries held by the cache.
	MaxCacheSize int

	// CacheTTL is the time an entry lives after being written. It's ignored
	// by caches with a variable or fixed TTL.
	CacheTTL time.Duration

	// Duration is the lifetime requested for the credentials issued by
	// S3 Access Grants. Zero lets the service pick its default.
	Duration time.Duration

	// ExpirationPercentage is the share of the remaining credentials lifetime
	// during which cached credentials are served.
	ExpirationPercentage int

	// CleanupInterval is the interval at which expired entries are removed.
	CleanupInterval time.Duration

	// MetricsRegisterer registers the cache metrics when set.
	MetricsRegisterer prometheus.Registerer

	// MetricsNamespace prefixes the names of the cache metrics.
	MetricsNamespace string

	// Clock is used to compute and check expiration times.
	Clock clock.PassiveClock
}

// Option is a functional option for configuring a cache.
type Option func(*Options)

// Apply applies the given slice of Option(s) to the Options struct.
func (o *Options) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

func newOptions(maxCacheSize int, cacheTTL time.Duration, opts ...Option) Options {
	o := Options{
		MaxCacheSize:         maxCacheSize,
		CacheTTL:             cacheTTL,
		ExpirationPercentage: DefaultExpirationPercentage,
		MetricsNamespace:     DefaultMetricsNamespace,
		Clock:                clock.RealClock{},
	}
	o.Apply(opts...)
	return o
}

// WithMaxCacheSize sets the maximum number of entries of the cache.
func WithMaxCacheSize(size int) Option {
	return func(o *Options) {
		o.MaxCacheSize = size
	}
}

// WithCacheTTL sets the time an entry lives after being written.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.CacheTTL = ttl
	}
}

// WithDuration sets the lifetime requested for issued credentials.
func WithDuration(d time.Duration) Option {
	return func(o *Options) {
		o.Duration = d
	}
}

// WithExpirationPercentage sets the share of the remaining credentials
// lifetime during which the cached credentials are served.
func WithExpirationPercentage(percentage int) Option {
	return func(o *Options) {
		o.ExpirationPercentage = percentage
	}
}

// WithCleanupInterval sets the interval at which expired entries are removed.
func WithCleanupInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.CleanupInterval = interval
	}
}

// WithMetricsRegisterer registers the cache metrics with r.
func WithMetricsRegisterer(r prometheus.Registerer) Option {
	return func(o *Options) {
		o.MetricsRegisterer = r
	}
}

// WithMetricsNamespace sets the prefix of the cache metrics names.
func WithMetricsNamespace(namespace string) Option {
	return func(o *Options) {
		o.MetricsNamespace = namespace
	}
}

// WithClock sets the clock used for expiration times.
func WithClock(c clock.PassiveClock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

func (o *Options) validateSize(name string, max int) error {
	if o.MaxCacheSize <= 0 || o.MaxCacheSize > max {
		return configError("%s max cache size must be in (0, %d], got %d", name, max, o.MaxCacheSize)
	}
	return nil
}

func (o *Options) validateTTL(name string, max time.Duration) error {
	seconds := int64(o.CacheTTL / time.Second)
	if seconds <= 0 || o.CacheTTL > max {
		return configError("%s cache TTL must be in (0, %d] seconds, got %s",
			name, int64(max/time.Second), o.CacheTTL)
	}
	return nil
}

// storeOptions returns the options of the underlying store. subsystem
// distinguishes the metrics of the caches sharing a registerer.
func (o *Options) storeOptions(subsystem string, ttl time.Duration) []cache.Options {
	opts := []cache.Options{
		cache.WithClock(o.Clock),
	}
	if ttl > 0 {
		opts = append(opts, cache.WithTTL(ttl))
	}
	if o.CleanupInterval > 0 {
		opts = append(opts, cache.WithCleanupInterval(o.CleanupInterval))
	}
	if o.MetricsRegisterer != nil {
		opts = append(opts,
			cache.WithMetricsRegisterer(o.MetricsRegisterer),
			cache.WithMetricsPrefix(o.MetricsNamespace+subsystem+"_"))
	}
	return opts
}
