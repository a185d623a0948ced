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
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3control"
	"github.com/go-logr/logr"
)

// Request describes the access requested by a caller.
type Request struct {
	// Identity is the identity of the caller. Requests to S3 Access Grants
	// are signed with it.
	Identity Identity
	// Permission is the requested access mode.
	Permission Permission
	// Prefix is the S3 prefix access is requested for, e.g. s3://bucket/foo.
	Prefix string
	// AccountID is the account the Access Grants instance lookup is sent to.
	// The provider account id is used when empty.
	AccountID string
}

// CachedCredentialsProvider issues the S3 Access Grants credentials for
// a Request, serving them from the cache whenever possible.
type CachedCredentialsProvider struct {
	credentials *CredentialsCache
	accountIDs  AccountResolver
	denied      *AccessDeniedCache
	regions     *BucketRegionResolver
	fallback    aws.CredentialsProvider

	// ownedResolver is set when accountIDs was created by the provider.
	ownedResolver *AccountIDResolver
}

type providerOptions struct {
	cacheOpts       []Option
	credentialsOpts []Option
	accountIDOpts   []Option
	accountIDs      AccountResolver
	denied          bool
	deniedOpts      []Option
	s3Client        S3API
	regionOpts      []Option
	fallback        aws.CredentialsProvider
}

// ProviderOption is a functional option for configuring a
// CachedCredentialsProvider.
type ProviderOption func(*providerOptions)

// WithCacheOptions applies opts to every cache of the provider. They are
// applied before the options of each individual cache.
func WithCacheOptions(opts ...Option) ProviderOption {
	return func(o *providerOptions) {
		o.cacheOpts = append(o.cacheOpts, opts...)
	}
}

// WithCredentialsCacheOptions configures the credentials cache.
func WithCredentialsCacheOptions(opts ...Option) ProviderOption {
	return func(o *providerOptions) {
		o.credentialsOpts = append(o.credentialsOpts, opts...)
	}
}

// WithAccountIDResolverOptions configures the account id resolver created
// by the provider.
func WithAccountIDResolverOptions(opts ...Option) ProviderOption {
	return func(o *providerOptions) {
		o.accountIDOpts = append(o.accountIDOpts, opts...)
	}
}

// WithAccountIDResolver replaces the account id resolver created by the
// provider. The provider doesn't invalidate nor close r.
func WithAccountIDResolver(r AccountResolver) ProviderOption {
	return func(o *providerOptions) {
		o.accountIDs = r
	}
}

// WithAccessDeniedCache enables the caching of access denied errors.
func WithAccessDeniedCache(opts ...Option) ProviderOption {
	return func(o *providerOptions) {
		o.denied = true
		o.deniedOpts = append(o.deniedOpts, opts...)
	}
}

// WithBucketRegionResolver sends the S3 Control requests to the region of
// the requested bucket, resolved with client.
func WithBucketRegionResolver(client S3API, opts ...Option) ProviderOption {
	return func(o *providerOptions) {
		o.s3Client = client
		o.regionOpts = append(o.regionOpts, opts...)
	}
}

// WithFallbackCredentials returns the credentials of p when S3 Access Grants
// fails to issue credentials for a request.
func WithFallbackCredentials(p aws.CredentialsProvider) ProviderOption {
	return func(o *providerOptions) {
		o.fallback = p
	}
}

// NewCachedCredentialsProvider returns a new CachedCredentialsProvider.
// accountID is the account the Access Grants instance lookups are sent to
// for the requests that don't carry one.
func NewCachedCredentialsProvider(accountID string, client S3ControlAPI, opts ...ProviderOption) (*CachedCredentialsProvider, error) {
	var o providerOptions
	for _, opt := range opts {
		opt(&o)
	}

	p := &CachedCredentialsProvider{
		accountIDs: o.accountIDs,
		fallback:   o.fallback,
	}

	if p.accountIDs == nil {
		r, err := NewAccountIDResolver(accountID, client, slices.Concat(o.cacheOpts, o.accountIDOpts)...)
		if err != nil {
			return nil, err
		}
		p.accountIDs = r
		p.ownedResolver = r
	}

	creds, err := NewCredentialsCache(client, p.accountIDs, slices.Concat(o.cacheOpts, o.credentialsOpts)...)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.credentials = creds

	if o.denied {
		denied, err := NewAccessDeniedCache(slices.Concat(o.cacheOpts, o.deniedOpts)...)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.denied = denied
	}

	if o.s3Client != nil {
		regions, err := NewBucketRegionResolver(o.s3Client, slices.Concat(o.cacheOpts, o.regionOpts)...)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.regions = regions
	}

	return p, nil
}

// GetCredentials returns the credentials granting req. The expiration of
// the returned credentials is the time they stop being served by the cache.
func (p *CachedCredentialsProvider) GetCredentials(ctx context.Context, req Request) (aws.Credentials, error) {
	creds, err := p.getCredentials(ctx, req)
	if err != nil {
		return p.fallbackCredentials(ctx, req, err)
	}
	return creds, nil
}

func (p *CachedCredentialsProvider) getCredentials(ctx context.Context, req Request) (aws.Credentials, error) {
	key := NewCacheKey(req.Identity, req.Permission, req.Prefix)

	if p.denied != nil {
		if err := p.denied.Get(key); err != nil {
			logr.FromContextOrDiscard(ctx).V(1).Info("access denied served from cache",
				"prefix", req.Prefix, "permission", req.Permission)
			return aws.Credentials{}, err
		}
	}

	optFns := []func(*s3control.Options){withIdentity(req.Identity)}
	if p.regions != nil {
		bucket, err := bucketFromPrefix(req.Prefix)
		if err != nil {
			return aws.Credentials{}, err
		}
		region, err := p.regions.Resolve(ctx, bucket, withS3Identity(req.Identity))
		if err != nil {
			return aws.Credentials{}, err
		}
		optFns = append(optFns, withRegion(region))
	}

	creds, expiresAt, err := p.credentials.get(ctx, key, req.AccountID, optFns...)
	if err != nil {
		if p.denied != nil && errors.Is(err, ErrAccessDenied) {
			p.denied.Put(ctx, key, err)
		}
		return aws.Credentials{}, err
	}
	return creds.awsCredentials(expiresAt), nil
}

func (p *CachedCredentialsProvider) fallbackCredentials(ctx context.Context, req Request, err error) (aws.Credentials, error) {
	if p.fallback == nil {
		return aws.Credentials{}, err
	}

	logr.FromContextOrDiscard(ctx).Info("S3 Access Grants failed, using fallback credentials",
		"prefix", req.Prefix, "permission", req.Permission, "error", err.Error())

	creds, ferr := p.fallback.Retrieve(ctx)
	if ferr != nil {
		return aws.Credentials{}, errors.Join(err, fmt.Errorf("failed to retrieve fallback credentials: %w", ferr))
	}
	return creds, nil
}

// InvalidateCache removes the entries of all the caches owned by the provider.
func (p *CachedCredentialsProvider) InvalidateCache() {
	p.credentials.InvalidateCache()
	if p.ownedResolver != nil {
		p.ownedResolver.InvalidateCache()
	}
	if p.denied != nil {
		p.denied.InvalidateCache()
	}
	if p.regions != nil {
		p.regions.InvalidateCache()
	}
}

// Close stops the background work of all the caches owned by the provider.
func (p *CachedCredentialsProvider) Close() error {
	var errs []error
	if p.credentials != nil {
		errs = append(errs, p.credentials.Close())
	}
	if p.ownedResolver != nil {
		errs = append(errs, p.ownedResolver.Close())
	}
	if p.denied != nil {
		errs = append(errs, p.denied.Close())
	}
	if p.regions != nil {
		errs = append(errs, p.regions.Close())
	}
	return errors.Join(errs...)
}
