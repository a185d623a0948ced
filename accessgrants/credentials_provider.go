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

	"github.com/aws/aws-sdk-go-v2/aws"
)

type credentialsProvider struct {
	ctx      context.Context
	provider *CachedCredentialsProvider
	req      Request
}

// NewAWSCredentialsProvider returns an aws.CredentialsProvider issuing the
// credentials granting req, e.g. for s3.Options.Credentials.
func NewAWSCredentialsProvider(ctx context.Context, p *CachedCredentialsProvider, req Request) aws.CredentialsProvider {
	return &credentialsProvider{ctx: ctx, provider: p, req: req}
}

// Retrieve implements aws.CredentialsProvider.
// The context is ignored, use the constructor to set the context.
// Some SDK callers retrieve credentials with context.Background().
func (c *credentialsProvider) Retrieve(context.Context) (aws.Credentials, error) {
	return c.provider.GetCredentials(c.ctx, c.req)
}
