// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package matvec

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// The following errors are templates for the precondition failures of a
// multiplication. Errors produced by this module carry the template's
// kind, severity and message, with the specific details chained
// underneath, and are matched by IsInvalidWorkerCount and friends even
// after being wrapped.
var (
	// ErrInvalidWorkerCount is returned when rows need to be partitioned
	// but the process group has no worker ranks.
	ErrInvalidWorkerCount = errors.E(errors.Invalid, errors.Fatal, "invalid worker count")
	// ErrDimensionMismatch is returned when a row's width differs from the
	// length of the vector it is multiplied with.
	ErrDimensionMismatch = errors.E(errors.Invalid, errors.Fatal, "dimension mismatch")
	// ErrMalformedRowBuffer is returned when a flat row buffer cannot be
	// split into rows of the expected width.
	ErrMalformedRowBuffer = errors.E(errors.Invalid, errors.Fatal, "malformed row buffer")
)

// precondition returns an error matching template, with the
// formatted details attached as the underlying error.
func precondition(template error, format string, args ...interface{}) error {
	t := errors.Recover(template)
	return errors.E(t.Kind, t.Severity, t.Message, fmt.Errorf(format, args...))
}

// InvalidWorkerCount returns an ErrInvalidWorkerCount error with the
// provided details.
func InvalidWorkerCount(format string, args ...interface{}) error {
	return precondition(ErrInvalidWorkerCount, format, args...)
}

// DimensionMismatch returns an ErrDimensionMismatch error with the
// provided details.
func DimensionMismatch(format string, args ...interface{}) error {
	return precondition(ErrDimensionMismatch, format, args...)
}

// MalformedRowBuffer returns an ErrMalformedRowBuffer error with the
// provided details.
func MalformedRowBuffer(format string, args ...interface{}) error {
	return precondition(ErrMalformedRowBuffer, format, args...)
}

// match tells whether err matches template. Wrapping an *errors.Error
// with errors.E moves its kind and severity to the outer error, so the
// kind is checked on err itself and the message on each link of its
// chain.
func match(template, err error) bool {
	t := errors.Recover(template)
	if err == nil || !errors.Is(t.Kind, err) {
		return false
	}
	for err != nil {
		e, ok := err.(*errors.Error)
		if !ok {
			return false
		}
		if e.Message == t.Message {
			return true
		}
		err = e.Err
	}
	return false
}

// IsInvalidWorkerCount tells whether err is an ErrInvalidWorkerCount.
func IsInvalidWorkerCount(err error) bool { return match(ErrInvalidWorkerCount, err) }

// IsDimensionMismatch tells whether err is an ErrDimensionMismatch.
func IsDimensionMismatch(err error) bool { return match(ErrDimensionMismatch, err) }

// IsMalformedRowBuffer tells whether err is an ErrMalformedRowBuffer.
func IsMalformedRowBuffer(err error) bool { return match(ErrMalformedRowBuffer, err) }
