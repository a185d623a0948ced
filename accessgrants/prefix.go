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
	"fmt"
	"strings"
)

const s3Scheme = "s3://"

// bucketFromPrefix returns the bucket of a s3://bucket/key prefix.
func bucketFromPrefix(prefix string) (string, error) {
	rest, ok := strings.CutPrefix(prefix, s3Scheme)
	if !ok {
		return "", &Error{Reason: ErrInvalidPrefix, Err: fmt.Errorf("'%s' must start with %s", prefix, s3Scheme)}
	}
	bucket, _, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", &Error{Reason: ErrInvalidPrefix, Err: fmt.Errorf("'%s' has no bucket", prefix)}
	}
	return bucket, nil
}

// parentPrefix drops the last path segment of prefix. It returns false once
// prefix can't be reduced further without reaching the scheme root.
func parentPrefix(prefix string) (string, bool) {
	i := strings.LastIndex(prefix, "/")
	if i < 0 {
		return "", false
	}
	parent := prefix[:i]
	if !strings.Contains(parent, "/") {
		return "", false
	}
	return parent, true
}
