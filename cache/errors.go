/*
Copyright 2024 The Flux authors

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

package cache

import (
	"errors"
	"fmt"
	"time"
)

// ErrorReason identifies the cause of a cache error.
type ErrorReason struct {
	reason string
	msg    string
}

// Error gives a human-readable description of the error.
func (e ErrorReason) Error() string {
	return e.msg
}

var (
	ErrNotFound    = ErrorReason{"NotFound", "object not found"}
	ErrCacheClosed = ErrorReason{"CacheClosed", "cache is closed"}
	ErrInvalidSize = ErrorReason{"InvalidSize", "invalid size"}
	ErrInvalidTTL  = ErrorReason{"InvalidTTL", "invalid ttl"}
)

// Error is an error carrying the Reason of a failed cache operation.
// Callers match it with errors.Is against the Err* reasons:
//
//	_, err := New[string](0)
//	errors.Is(err, ErrInvalidSize) // true
type Error struct {
	Reason ErrorReason
	Err    error
}

// Error returns Err as a string, prefixed with the Reason to provide context.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason.Error(), e.Err.Error())
}

// Is returns true if the Reason or Err equals target.
func (e *Error) Is(target error) bool {
	return e.Reason == target || errors.Is(e.Err, target)
}

// Unwrap returns the underlying Err.
func (e *Error) Unwrap() error {
	return e.Err
}

func invalidSize(capacity int) error {
	return &Error{Reason: ErrInvalidSize, Err: fmt.Errorf("capacity must be positive, got %d", capacity)}
}

func invalidTTL(ttl time.Duration) error {
	return &Error{Reason: ErrInvalidTTL, Err: fmt.Errorf("ttl must be positive, got %s", ttl)}
}
