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
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3control"
	"github.com/aws/aws-sdk-go-v2/service/s3control/types"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"k8s.io/utils/clock"
)

const (
	testAccountID   = "123456789012"
	testInstanceARN = "arn:aws:s3:us-east-2:111122223333:access-grants/default"
	testGrantOwner  = "111122223333"
)

var testIdentity = Identity{
	AccessKeyID:     "AKIDCALLER",
	SecretAccessKey: "caller-secret",
	SessionToken:    "caller-token",
}

// recordedCall holds what the options of a remote call resolve to.
type recordedCall struct {
	region      string
	accessKeyID string
}

func recordS3ControlCall(ctx context.Context, optFns []func(*s3control.Options)) recordedCall {
	var o s3control.Options
	for _, fn := range optFns {
		fn(&o)
	}
	call := recordedCall{region: o.Region}
	if o.Credentials != nil {
		if creds, err := o.Credentials.Retrieve(ctx); err == nil {
			call.accessKeyID = creds.AccessKeyID
		}
	}
	return call
}

type mockS3Control struct {
	mu    sync.Mutex
	clock clock.PassiveClock

	// lifetime is the lifetime of the issued credentials.
	lifetime time.Duration

	// dataAccessErrs are returned by the next GetDataAccess calls, in order.
	dataAccessErrs []error
	noCredentials  bool

	// beforeIssue runs before the credentials are issued, without the
	// mock lock held.
	beforeIssue func()

	instanceARN string
	instanceErr error

	dataAccessInputs []*s3control.GetDataAccessInput
	dataAccessCalls  []recordedCall
	instanceInputs   []*s3control.GetAccessGrantsInstanceForPrefixInput
}

func newMockS3Control(c clock.PassiveClock) *mockS3Control {
	return &mockS3Control{
		clock:       c,
		lifetime:    time.Hour,
		instanceARN: testInstanceARN,
	}
}

func (m *mockS3Control) GetDataAccess(ctx context.Context, params *s3control.GetDataAccessInput,
	optFns ...func(*s3control.Options)) (*s3control.GetDataAccessOutput, error) {
	if m.beforeIssue != nil {
		m.beforeIssue()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataAccessInputs = append(m.dataAccessInputs, params)
	m.dataAccessCalls = append(m.dataAccessCalls, recordS3ControlCall(ctx, optFns))

	if len(m.dataAccessErrs) > 0 {
		err := m.dataAccessErrs[0]
		m.dataAccessErrs = m.dataAccessErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if m.noCredentials {
		return &s3control.GetDataAccessOutput{}, nil
	}

	n := len(m.dataAccessInputs)
	return &s3control.GetDataAccessOutput{
		Credentials: &types.Credentials{
			AccessKeyId:     aws.String(fmt.Sprintf("AKIDGRANT%d", n)),
			SecretAccessKey: aws.String(fmt.Sprintf("grant-secret-%d", n)),
			SessionToken:    aws.String(fmt.Sprintf("grant-token-%d", n)),
			Expiration:      aws.Time(m.clock.Now().Add(m.lifetime)),
		},
		MatchedGrantTarget: params.Target,
	}, nil
}

func (m *mockS3Control) GetAccessGrantsInstanceForPrefix(ctx context.Context, params *s3control.GetAccessGrantsInstanceForPrefixInput,
	optFns ...func(*s3control.Options)) (*s3control.GetAccessGrantsInstanceForPrefixOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instanceInputs = append(m.instanceInputs, params)
	if m.instanceErr != nil {
		return nil, m.instanceErr
	}
	return &s3control.GetAccessGrantsInstanceForPrefixOutput{
		AccessGrantsInstanceArn: aws.String(m.instanceARN),
	}, nil
}

func (m *mockS3Control) dataAccessCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dataAccessInputs)
}

func (m *mockS3Control) instanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instanceInputs)
}

type mockS3 struct {
	mu sync.Mutex

	region string
	err    error

	// metadata is returned as the HeadBucket result metadata.
	metadata middleware.Metadata

	buckets []string
	calls   []recordedCall
}

func (m *mockS3) HeadBucket(ctx context.Context, params *s3.HeadBucketInput,
	optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = append(m.buckets, aws.ToString(params.Bucket))

	var o s3.Options
	for _, fn := range optFns {
		fn(&o)
	}
	call := recordedCall{region: o.Region}
	if o.Credentials != nil {
		if creds, err := o.Credentials.Retrieve(ctx); err == nil {
			call.accessKeyID = creds.AccessKeyID
		}
	}
	m.calls = append(m.calls, call)

	if m.err != nil {
		return nil, m.err
	}
	out := &s3.HeadBucketOutput{ResultMetadata: m.metadata}
	if m.region != "" {
		out.BucketRegion = aws.String(m.region)
	}
	return out, nil
}

func (m *mockS3) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// responseError returns the error the SDK returns for a response with the
// given status code and headers.
func responseError(status int, header http.Header) error {
	if header == nil {
		header = http.Header{}
	}
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{
				Response: &http.Response{StatusCode: status, Header: header},
			},
			Err: errors.New(http.StatusText(status)),
		},
		RequestID: "test-request",
	}
}

// rawResponseMetadata returns the result metadata of an operation whose
// raw response carries the given headers, as recorded by the SDK stack.
func rawResponseMetadata(header http.Header) (middleware.Metadata, error) {
	stack := middleware.NewStack("HeadBucket", smithyhttp.NewStackRequest)
	if err := awsmiddleware.AddRawResponseToMetadata(stack); err != nil {
		return middleware.Metadata{}, err
	}
	handler := middleware.HandlerFunc(func(context.Context, interface{}) (interface{}, middleware.Metadata, error) {
		resp := &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusOK, Header: header}}
		return resp, middleware.Metadata{}, nil
	})
	_, metadata, err := stack.HandleMiddleware(context.Background(), struct{}{}, handler)
	return metadata, err
}

type staticProvider struct {
	creds aws.Credentials
	err   error
}

func (p staticProvider) Retrieve(context.Context) (aws.Credentials, error) {
	return p.creds, p.err
}
