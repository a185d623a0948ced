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
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/go-logr/logr"

	"github.com/fluxcd/pkg/s3accessgrants/cache"
)

const (
	// DefaultBucketRegionCacheSize is the default number of cached buckets.
	DefaultBucketRegionCacheSize = 1_000
	// MaxBucketRegionCacheSize is the largest accepted number of cached buckets.
	MaxBucketRegionCacheSize = 1_000_000
	// DefaultBucketRegionCacheTTL is the default lifetime of a cached region.
	DefaultBucketRegionCacheTTL = 5 * time.Minute
	// MaxBucketRegionCacheTTL is the largest accepted lifetime of a cached region.
	MaxBucketRegionCacheTTL = 24 * time.Hour
)

// bucketRegionHeader is set by S3 on HeadBucket responses, including
// redirects to the bucket region.
const bucketRegionHeader = "x-amz-bucket-region"

// BucketRegionResolver resolves the region of a bucket with HeadBucket and
// caches it by bucket name. Failed resolutions are never cached.
type BucketRegionResolver struct {
	client S3API
	cache  *cache.Cache[string]
}

// NewBucketRegionResolver returns a new BucketRegionResolver.
func NewBucketRegionResolver(client S3API, opts ...Option) (*BucketRegionResolver, error) {
	if client == nil {
		return nil, configError("S3 client is required")
	}

	o := newOptions(DefaultBucketRegionCacheSize, DefaultBucketRegionCacheTTL, opts...)
	if err := o.validateSize("bucket region", MaxBucketRegionCacheSize); err != nil {
		return nil, err
	}
	if err := o.validateTTL("bucket region", MaxBucketRegionCacheTTL); err != nil {
		return nil, err
	}

	c, err := cache.New[string](o.MaxCacheSize, o.storeOptions("bucket_region", o.CacheTTL)...)
	if err != nil {
		return nil, configError("failed to create bucket region cache: %w", err)
	}

	return &BucketRegionResolver{
		client: client,
		cache:  c,
	}, nil
}

// Resolve returns the region of bucket. A 301 response to HeadBucket is
// resolved from the region header it carries; any other error is returned
// as is.
func (r *BucketRegionResolver) Resolve(ctx context.Context, bucket string, optFns ...func(*s3.Options)) (string, error) {
	if bucket == "" {
		return "", &Error{Reason: ErrInvalidPrefix, Err: fmt.Errorf("bucket name is empty")}
	}

	if v, err := r.cache.Get(bucket); err == nil && v != nil {
		return *v, nil
	}

	log := logr.FromContextOrDiscard(ctx).WithValues("bucket", bucket)
	log.V(1).Info("resolving bucket region")

	var region string
	resp, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}, optFns...)
	switch {
	case err == nil:
		region = aws.ToString(resp.BucketRegion)
		if region == "" {
			region = regionFromRawResponse(resp.ResultMetadata)
		}
		if region == "" {
			return "", &Error{Reason: ErrResolution, Err: fmt.Errorf("no region returned for bucket '%s'", bucket)}
		}
	default:
		status, _ := httpStatusCode(err)
		if status != http.StatusMovedPermanently {
			return "", err
		}
		region = regionFromError(err)
		if region == "" {
			return "", &Error{
				Reason:     ErrResolution,
				StatusCode: status,
				Err:        fmt.Errorf("bucket '%s' was redirected without a %s header: %w", bucket, bucketRegionHeader, err),
			}
		}
		log.V(1).Info("bucket region resolved from redirect", "region", region)
	}

	if err := r.cache.Set(bucket, region); err != nil {
		log.Error(err, "failed to cache bucket region")
	}
	return region, nil
}

func regionFromError(err error) string {
	var awsRespErr *awshttp.ResponseError
	if errors.As(err, &awsRespErr) && awsRespErr.ResponseError != nil {
		return regionFromResponse(awsRespErr.Response)
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return regionFromResponse(respErr.Response)
	}
	return ""
}

func regionFromRawResponse(metadata middleware.Metadata) string {
	resp, ok := awsmiddleware.GetRawResponse(metadata).(*smithyhttp.Response)
	if !ok {
		return ""
	}
	return regionFromResponse(resp)
}

func regionFromResponse(resp *smithyhttp.Response) string {
	if resp == nil || resp.Response == nil {
		return ""
	}
	return resp.Header.Get(bucketRegionHeader)
}

// InvalidateCache removes all the cached regions.
func (r *BucketRegionResolver) InvalidateCache() {
	r.cache.Clear()
}

// Close stops the background removal of expired regions.
func (r *BucketRegionResolver) Close() error {
	return r.cache.Close()
}
