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

// Package accessgrants resolves temporary S3 credentials through S3 Access
// Grants and caches them, so that callers don't query the S3 Control API on
// every request.
//
// The package is made of four caches and a façade composing them:
//
//   - CredentialsCache holds the credentials returned by GetDataAccess. A
//     lookup walks up the prefix hierarchy, so that a grant cached for
//     s3://bucket/foo serves s3://bucket/foo/bar.txt, and broadens READ and
//     WRITE lookups to READWRITE. Entries expire before the credentials do.
//   - AccessDeniedCache remembers access denied errors for five minutes,
//     for the exact key only.
//   - AccountIDResolver maps a bucket to the account owning its Access
//     Grants instance.
//   - BucketRegionResolver maps a bucket to its region.
//
// CachedCredentialsProvider is the entry point:
//
//	provider, err := accessgrants.NewCachedCredentialsProvider(accountID, s3control.NewFromConfig(cfg),
//		accessgrants.WithAccessDeniedCache(),
//		accessgrants.WithBucketRegionResolver(s3.NewFromConfig(cfg)))
//	// Handle any error.
//	...
//
//	creds, err := provider.GetCredentials(ctx, accessgrants.Request{
//		Identity:   accessgrants.IdentityFromCredentials(callerCreds),
//		Permission: accessgrants.PermissionRead,
//		Prefix:     "s3://bucket/foo/bar.txt",
//		AccountID:  accountID,
//	})
package accessgrants
