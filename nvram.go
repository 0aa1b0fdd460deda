// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package nvram implements an access-controlled non-volatile storage manager.
//
// A Manager maintains a set of spaces, each a fixed-size byte array
// identified by a 32-bit index, on top of a storage.Storage. Spaces carry
// controls that restrict writes and reads: write locks that persist or last
// until the next boot, a read lock lasting until the next boot, authorization
// values, and write-extend semantics where every write hashes the new data
// into the current contents.
//
// The Manager keeps its persistent state consistent across crashes even
// though the storage only provides atomic updates of individual objects. It
// orders header and space writes such that the set of spaces listed in the
// header is always a superset of the spaces present in storage, and records
// the index of a space being created or deleted in the header so that an
// interrupted operation can be resolved on the next initialization.
package nvram

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

var (
	// ErrInternal is returned when the persistent state cannot be read or
	// written.
	ErrInternal = errors.New("nvram: internal error")
	// ErrAccessDenied is returned when an authorization value does not match.
	ErrAccessDenied = errors.New("nvram: access denied")
	// ErrInvalidParameter is returned for malformed requests.
	ErrInvalidParameter = errors.New("nvram: invalid parameter")
	// ErrSpaceDoesNotExist is returned for requests on unknown spaces.
	ErrSpaceDoesNotExist = errors.New("nvram: space does not exist")
	// ErrSpaceAlreadyExists is returned when creating an existing space.
	ErrSpaceAlreadyExists = errors.New("nvram: space already exists")
	// ErrOperationDisabled is returned when a lock or a disable request
	// prevents the operation.
	ErrOperationDisabled = errors.New("nvram: operation disabled")
)

// Result classifies the outcome of a Manager operation.
type Result int8

// The results, one per error returned by the Manager.
const (
	ResultSuccess Result = iota
	ResultInternalError
	ResultAccessDenied
	ResultInvalidParameter
	ResultSpaceDoesNotExist
	ResultSpaceAlreadyExists
	ResultOperationDisabled
)

var resultNames = [...]string{
	ResultSuccess:            "success",
	ResultInternalError:      "internal-error",
	ResultAccessDenied:       "access-denied",
	ResultInvalidParameter:   "invalid-parameter",
	ResultSpaceDoesNotExist:  "space-does-not-exist",
	ResultSpaceAlreadyExists: "space-already-exists",
	ResultOperationDisabled:  "operation-disabled",
}

// String implements fmt.Stringer.
func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "internal-error"
}

// SafeValue implements redact.SafeValue.
func (Result) SafeValue() {}

var _ redact.SafeValue = Result(0)

// ResultOf classifies an error returned by a Manager. Errors not carrying one
// of the package errors are internal errors.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrAccessDenied):
		return ResultAccessDenied
	case errors.Is(err, ErrInvalidParameter):
		return ResultInvalidParameter
	case errors.Is(err, ErrSpaceDoesNotExist):
		return ResultSpaceDoesNotExist
	case errors.Is(err, ErrSpaceAlreadyExists):
		return ResultSpaceAlreadyExists
	case errors.Is(err, ErrOperationDisabled):
		return ResultOperationDisabled
	default:
		return ResultInternalError
	}
}

// internalError marks err, a failure of the storage layer, as an internal
// error while retaining its storage marks.
func internalError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrInternal)
}
