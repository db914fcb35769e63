// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package common

import (
	"errors"
	"fmt"
)

// Error categories. Resource, IO and format errors abort the running
// query. Precondition errors are raised by Open before any IO.
var (
	ErrResource     = errors.New("resource error")
	ErrIO           = errors.New("io error")
	ErrFormat       = errors.New("format error")
	ErrPrecondition = errors.New("precondition violation")
)

func ResourceError(cause error, format string, args ...any) error {
	return wrap(ErrResource, cause, format, args...)
}

func IOError(cause error, format string, args ...any) error {
	return wrap(ErrIO, cause, format, args...)
}

func FormatError(cause error, format string, args ...any) error {
	return wrap(ErrFormat, cause, format, args...)
}

func PreconditionError(format string, args ...any) error {
	return wrap(ErrPrecondition, nil, format, args...)
}

func wrap(kind, cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, cause)
}

// IsFatal reports whether err aborts the query.
func IsFatal(err error) bool {
	return errors.Is(err, ErrResource) ||
		errors.Is(err, ErrIO) ||
		errors.Is(err, ErrFormat)
}
