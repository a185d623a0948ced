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
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/s3control"
	"github.com/go-logr/logr"

	"github.com/fluxcd/pkg/s3accessgrants/cache"
)

const (
	// DefaultAccountIDCacheSize is the default number of cached buckets.
	DefaultAccountIDCacheSize = 1_000
	// MaxAccountIDCacheSize is the largest accepted number of cached buckets.
	MaxAccountIDCacheSize = 1_000_000
	// DefaultAccountIDCacheTTL is the default lifetime of a cached account id.
	DefaultAccountIDCacheTTL = 24 * time.Hour
	// MaxAccountIDCacheTTL is the largest accepted lifetime of a cached account id.
	MaxAccountIDCacheTTL = 30 * 24 * time.Hour
)

// AccountIDResolver resolves the id of the account owning the Access Grants
// instance for a prefix. Instances are owned per bucket, so the result is
// cached by bucket name.
type AccountIDResolver struct {
	accountID string
	client    S3ControlAPI
	cache     *cache.Cache[string]
}

// NewAccountIDResolver returns a new AccountIDResolver. accountID is used
// for the requests that don't carry an account id.
func NewAccountIDResolver(accountID string, client S3ControlAPI, opts ...Option) (*AccountIDResolver, error) {
	if accountID == "" {
		return nil, configError("account id is required")
	}
	if client == nil {
		return nil, configError("S3 Control client is required")
	}

	o := newOptions(DefaultAccountIDCacheSize, DefaultAccountIDCacheTTL, opts...)
	if err := o.validateSize("account id", MaxAccountIDCacheSize); err != nil {
		return nil, err
	}
	if err := o.validateTTL("account id", MaxAccountIDCacheTTL); err != nil {
		return nil, err
	}

	c, err := cache.New[string](o.MaxCacheSize, o.storeOptions("account_id", o.CacheTTL)...)
	if err != nil {
		return nil, configError("failed to create account id cache: %w", err)
	}

	return &AccountIDResolver{
		accountID: accountID,
		client:    client,
		cache:     c,
	}, nil
}

// Resolve returns the id of the account owning the Access Grants instance
// for prefix.
func (r *AccountIDResolver) Resolve(ctx context.Context, requestAccountID, prefix string,
	optFns ...func(*s3control.Options)) (string, error) {

	bucket, err := bucketFromPrefix(prefix)
	if err != nil {
		return "", err
	}

	if v, err := r.cache.Get(bucket); err == nil && v != nil {
		return *v, nil
	}

	if requestAccountID == "" {
		requestAccountID = r.accountID
	}

	log := logr.FromContextOrDiscard(ctx).WithValues("bucket", bucket)
	log.V(1).Info("resolving access grants instance account id")

	resp, err := r.client.GetAccessGrantsInstanceForPrefix(ctx, &s3control.GetAccessGrantsInstanceForPrefixInput{
		AccountId: aws.String(requestAccountID),
		S3Prefix:  aws.String(prefix),
	}, optFns...)
	if err != nil {
		return "", remoteError("GetAccessGrantsInstanceForPrefix", err)
	}

	accountID, err := accountIDFromInstanceARN(aws.ToString(resp.AccessGrantsInstanceArn))
	if err != nil {
		return "", err
	}

	if err := r.cache.Set(bucket, accountID); err != nil {
		log.Error(err, "failed to cache account id")
	}
	return accountID, nil
}

func accountIDFromInstanceARN(instanceARN string) (string, error) {
	if instanceARN == "" {
		return "", &Error{Reason: ErrResolution, Err: fmt.Errorf("access grants instance ARN is empty")}
	}
	a, err := arn.Parse(instanceARN)
	if err != nil {
		return "", &Error{Reason: ErrResolution, Err: fmt.Errorf("invalid access grants instance ARN '%s': %w", instanceARN, err)}
	}
	if a.AccountID == "" {
		return "", &Error{Reason: ErrResolution, Err: fmt.Errorf("access grants instance ARN '%s' has no account id", instanceARN)}
	}
	return a.AccountID, nil
}

// InvalidateCache removes all the cached account ids.
func (r *AccountIDResolver) InvalidateCache() {
	r.cache.Clear()
}

// Close stops the background removal of expired account ids.
func (r *AccountIDResolver) Close() error {
	return r.cache.Close()
}
