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
	"errors"
	"fmt"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	smithy "github.com/aws/smithy-go"
)

// ErrorReason is a type that represents the reason for an error.
type ErrorReason struct {
	reason string
	msg    string
}

// Error gives a human-readable description of the error.
func (e ErrorReason) Error() string {
	return e.msg
}

var (
	// ErrInvalidConfiguration is returned by constructors given invalid
	// bounds or missing dependencies.
	ErrInvalidConfiguration = ErrorReason{"InvalidConfiguration", "invalid configuration"}
	// ErrInvalidPrefix is returned for prefixes not in the s3://bucket/key form.
	ErrInvalidPrefix = ErrorReason{"InvalidPrefix", "invalid S3 prefix"}
	// ErrInvalidPermission is returned for permissions other than READ,
	// WRITE and READWRITE.
	ErrInvalidPermission = ErrorReason{"InvalidPermission", "invalid permission"}
	// ErrAccessDenied is returned when S3 Access Grants denies the request.
	ErrAccessDenied = ErrorReason{"AccessDenied", "access denied"}
	// ErrServiceFailure is returned for any other failure of a remote call.
	ErrServiceFailure = ErrorReason{"ServiceFailure", "remote service failure"}
	// ErrResolution is returned when a successful remote response doesn't
	// carry a usable account id or region.
	ErrResolution = ErrorReason{"Resolution", "resolution failed"}
)

// Error is the error type returned by this package. StatusCode is the HTTP
// status code of the remote response that caused the error, or zero when the
// error didn't originate from a remote call.
type Error struct {
	Reason     ErrorReason
	StatusCode int
	Err        error
}

// Error returns Err as a string, prefixed with the Reason to provide context.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Reason.Error()
	}
	if e.Reason.Error() == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason.Error(), e.Err.Error())
}

// Is returns true if the Reason or Err equals target.
//
//	err := &Error{Reason: ErrAccessDenied, StatusCode: 403, Err: errors.New("no grant")}
//	errors.Is(err, ErrAccessDenied)
func (e *Error) Is(target error) bool {
	if e.Reason == target {
		return true
	}
	return errors.Is(e.Err, target)
}

// Unwrap returns the underlying Err.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code carried by err, or zero if err
// doesn't carry one.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.StatusCode != 0 {
		return e.StatusCode
	}
	if status, ok := httpStatusCode(err); ok {
		return status
	}
	return 0
}

func configError(format string, args ...any) error {
	return &Error{Reason: ErrInvalidConfiguration, Err: fmt.Errorf(format, args...)}
}

// remoteError classifies the error returned by an S3 Control operation.
func remoteError(op string, err error) error {
	status, _ := httpStatusCode(err)
	reason := ErrServiceFailure
	if isAccessDenied(err, status) {
		reason = ErrAccessDenied
	}
	return &Error{Reason: reason, StatusCode: status, Err: fmt.Errorf("%s failed: %w", op, err)}
}

func isAccessDenied(err error, status int) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDenied" {
		return true
	}
	return status == http.StatusForbidden
}

func httpStatusCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatusCode(), true
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode(), true
	}
	return 0, false
}
