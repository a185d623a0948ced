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
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3control"
	"github.com/aws/aws-sdk-go-v2/service/s3control/types"
	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/fluxcd/pkg/s3accessgrants/cache"
)

const (
	// DefaultCredentialsCacheSize is the default number of cached credentials.
	DefaultCredentialsCacheSize = 30_000
	// MaxCredentialsCacheSize is the largest accepted number of cached credentials.
	MaxCredentialsCacheSize = 1_000_000
	// DefaultExpirationPercentage is the default share of the remaining
	// credentials lifetime during which cached credentials are served.
	DefaultExpirationPercentage = 90
	// MinDuration and MaxDuration bound the lifetime that can be requested
	// for issued credentials.
	MinDuration = 15 * time.Minute
	MaxDuration = 12 * time.Hour
)

// CredentialsCache caches the credentials issued by S3 Access Grants.
//
// A lookup for (identity, permission, s3://bucket/a/b) is served by any
// credentials cached for the same identity and permission on s3://bucket/a/b,
// s3://bucket/a or s3://bucket, in this order. READ and WRITE lookups that
// find nothing are then retried with READWRITE. Only when both walks miss,
// GetDataAccess is called and its credentials are cached for the requested
// key.
//
// Cached credentials expire once ExpirationPercentage of their remaining
// lifetime has passed, so they are never served close to the time they
// stop being accepted by S3.
type CredentialsCache struct {
	client     S3ControlAPI
	accountIDs AccountResolver
	cache      *cache.Cache[Credentials]
	clock      clock.PassiveClock
	duration   time.Duration
	percentage int
}

// NewCredentialsCache returns a new CredentialsCache calling client on cache
// misses. accountIDs resolves the account the requests are sent to.
func NewCredentialsCache(client S3ControlAPI, accountIDs AccountResolver, opts ...Option) (*CredentialsCache, error) {
	if client == nil {
		return nil, configError("S3 Control client is required")
	}
	if accountIDs == nil {
		return nil, configError("account id resolver is required")
	}

	o := newOptions(DefaultCredentialsCacheSize, 0, opts...)
	if err := o.validateSize("credentials", MaxCredentialsCacheSize); err != nil {
		return nil, err
	}
	if o.Duration != 0 && (o.Duration < MinDuration || o.Duration > MaxDuration) {
		return nil, configError("credentials duration must be in [%s, %s], got %s", MinDuration, MaxDuration, o.Duration)
	}
	if o.ExpirationPercentage <= 0 || o.ExpirationPercentage > 100 {
		return nil, configError("expiration percentage must be in (0, 100], got %d", o.ExpirationPercentage)
	}

	c, err := cache.New[Credentials](o.MaxCacheSize, o.storeOptions("credentials", 0)...)
	if err != nil {
		return nil, configError("failed to create credentials cache: %w", err)
	}

	return &CredentialsCache{
		client:     client,
		accountIDs: accountIDs,
		cache:      c,
		clock:      o.Clock,
		duration:   o.Duration,
		percentage: o.ExpirationPercentage,
	}, nil
}

// Get returns the credentials for key. requestAccountID is the account the
// Access Grants instance lookup is sent to. optFns are applied to the
// S3 Control requests sent on a cache miss.
// Errors returned by S3 Control are never cached.
func (c *CredentialsCache) Get(ctx context.Context, key CacheKey, requestAccountID string,
	optFns ...func(*s3control.Options)) (*Credentials, error) {
	creds, _, err := c.get(ctx, key, requestAccountID, optFns...)
	return creds, err
}

// get returns the credentials for key along with the time they stop being
// served by the cache.
func (c *CredentialsCache) get(ctx context.Context, key CacheKey, requestAccountID string,
	optFns ...func(*s3control.Options)) (*Credentials, time.Time, error) {

	if !key.Permission().valid() {
		return nil, time.Time{}, &Error{Reason: ErrInvalidPermission,
			Err: fmt.Errorf("'%s' is not one of READ, WRITE, READWRITE", key.Permission())}
	}

	log := logr.FromContextOrDiscard(ctx).WithValues("prefix", key.Prefix(), "permission", key.Permission())

	if creds, expiresAt := c.search(key); creds != nil {
		log.V(1).Info("credentials served from cache")
		return creds, expiresAt, nil
	}

	// a READWRITE grant covers both READ and WRITE
	if key.Permission() != PermissionReadWrite {
		if creds, expiresAt := c.search(key.WithPermission(PermissionReadWrite)); creds != nil {
			log.V(1).Info("credentials served from cache with READWRITE permission")
			return creds, expiresAt, nil
		}
	}

	log.V(1).Info("credentials not found in cache, calling GetDataAccess")

	accountID, err := c.accountIDs.Resolve(ctx, requestAccountID, key.Prefix(), optFns...)
	if err != nil {
		return nil, time.Time{}, err
	}

	creds, credsExpiration, err := c.getDataAccess(ctx, accountID, key, optFns...)
	if err != nil {
		return nil, time.Time{}, err
	}

	now := c.clock.Now()
	ttl := c.ttl(now, credsExpiration)
	if ttl <= 0 {
		log.V(1).Info("credentials expire too soon to be cached", "expiration", credsExpiration)
		return creds, credsExpiration, nil
	}

	expiresAt := now.Add(ttl)
	if err := c.cache.SetWithExpiration(key.String(), *creds, expiresAt); err != nil {
		log.Error(err, "failed to cache credentials")
		return creds, expiresAt, nil
	}
	// a concurrent miss may have stored the key first, its deadline is kept
	if kept, err := c.cache.GetExpiration(key.String()); err == nil && !kept.IsZero() {
		expiresAt = kept
	}
	return creds, expiresAt, nil
}

// search walks up the prefix of key until cached credentials are found.
func (c *CredentialsCache) search(key CacheKey) (*Credentials, time.Time) {
	prefix := key.Prefix()
	for {
		creds, expiresAt, err := c.cache.GetWithExpiration(key.WithPrefix(prefix).String())
		if err == nil && creds != nil {
			return creds, expiresAt
		}
		parent, ok := parentPrefix(prefix)
		if !ok {
			return nil, time.Time{}
		}
		prefix = parent
	}
}

func (c *CredentialsCache) getDataAccess(ctx context.Context, accountID string, key CacheKey,
	optFns ...func(*s3control.Options)) (*Credentials, time.Time, error) {

	input := &s3control.GetDataAccessInput{
		AccountId:  aws.String(accountID),
		Target:     aws.String(key.Prefix()),
		Permission: types.Permission(key.Permission()),
		Privilege:  types.PrivilegeDefault,
	}
	if c.duration > 0 {
		input.DurationSeconds = aws.Int32(int32(c.duration / time.Second))
	}

	resp, err := c.client.GetDataAccess(ctx, input, optFns...)
	if err != nil {
		return nil, time.Time{}, remoteError("GetDataAccess", err)
	}
	if resp.Credentials == nil {
		return nil, time.Time{}, &Error{Reason: ErrServiceFailure,
			Err: fmt.Errorf("GetDataAccess returned no credentials for '%s'", key.Prefix())}
	}
	return newCredentials(resp.Credentials), aws.ToTime(resp.Credentials.Expiration), nil
}

// ttl returns for how long credentials expiring at expiration are served
// from the cache: the configured percentage of their remaining lifetime.
func (c *CredentialsCache) ttl(now, expiration time.Time) time.Duration {
	remaining := expiration.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return remaining / 100 * time.Duration(c.percentage)
}

// InvalidateCache removes all the cached credentials.
func (c *CredentialsCache) InvalidateCache() {
	c.cache.Clear()
}

// Close stops the background removal of expired credentials.
func (c *CredentialsCache) Close() error {
	return c.cache.Close()
}
