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

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3control"
)

// S3ControlAPI is the part of the S3 Control API called to resolve access
// grants. It's implemented by *s3control.Client.
type S3ControlAPI interface {
	GetDataAccess(ctx context.Context, params *s3control.GetDataAccessInput,
		optFns ...func(*s3control.Options)) (*s3control.GetDataAccessOutput, error)
	GetAccessGrantsInstanceForPrefix(ctx context.Context, params *s3control.GetAccessGrantsInstanceForPrefixInput,
		optFns ...func(*s3control.Options)) (*s3control.GetAccessGrantsInstanceForPrefixOutput, error)
}

// S3API is the part of the S3 API called to resolve bucket regions.
// It's implemented by *s3.Client.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput,
		optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// AccountResolver resolves the account owning the Access Grants instance
// for a prefix.
type AccountResolver interface {
	Resolve(ctx context.Context, requestAccountID, prefix string,
		optFns ...func(*s3control.Options)) (string, error)
}

var (
	_ S3ControlAPI    = &s3control.Client{}
	_ S3API           = &s3.Client{}
	_ AccountResolver = &AccountIDResolver{}
)

// withIdentity signs S3 Control requests with the given identity.
func withIdentity(identity Identity) func(*s3control.Options) {
	return func(o *s3control.Options) {
		o.Credentials = identity.provider()
	}
}

// withRegion sends S3 Control requests to the given region.
func withRegion(region string) func(*s3control.Options) {
	return func(o *s3control.Options) {
		o.Region = region
	}
}

// withS3Identity signs S3 requests with the given identity.
func withS3Identity(identity Identity) func(*s3.Options) {
	return func(o *s3.Options) {
		o.Credentials = identity.provider()
	}
}
