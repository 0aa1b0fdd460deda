// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package storage implements the durable space store: a single header object
// and a set of space objects keyed by a 32-bit index, each stored and loaded
// as an opaque blob.
//
// Every store and delete is atomic with respect to crashes: after a crash an
// object holds either its previous contents or its new contents in full.
// Operations on different objects never affect each other. Atomicity across
// objects is not provided; callers order their writes so that any prefix of
// them leaves a recoverable state.
package storage

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Status is the outcome of a storage operation.
type Status int8

const (
	// Success indicates the operation completed.
	Success Status = iota
	// NotFound indicates the object does not exist. It is only reported by
	// loads and deletes.
	NotFound
	// StorageError indicates any other failure.
	StorageError
)

var statusNames = [...]string{
	Success:      "success",
	NotFound:     "not-found",
	StorageError: "storage-error",
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "storage-error"
}

// SafeValue implements redact.SafeValue.
func (Status) SafeValue() {}

var _ redact.SafeValue = Status(0)

// ErrNotFound marks errors reporting a missing object.
var ErrNotFound = errors.New("nvram/storage: not found")

// ErrStorage marks errors reporting any other storage failure, including
// objects whose stored form is damaged.
var ErrStorage = errors.New("nvram/storage: storage error")

// StatusOf maps an error returned by a Storage onto a Status. Errors that are
// not marked with ErrNotFound are reported as StorageError, so that an
// implementation returning an unexpected error can never be mistaken for a
// missing object.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrNotFound):
		return NotFound
	default:
		return StorageError
	}
}

// IsNotFound returns true if err reports a missing object.
func IsNotFound(err error) bool {
	return StatusOf(err) == NotFound
}

// Storage is the durable space store.
//
// Loads return a blob owned by the caller. The blob may be longer than the
// one stored (e.g. padded to a block boundary); the excess is zero bytes.
// Stores copy the blob before returning. Implementations are safe for
// concurrent use.
type Storage interface {
	// LoadHeader returns the header blob, or an ErrNotFound error if no
	// header has been stored.
	LoadHeader() ([]byte, error)
	// StoreHeader atomically replaces the header blob.
	StoreHeader(blob []byte) error
	// LoadSpace returns the blob of the space with the given index, or an
	// ErrNotFound error if it does not exist.
	LoadSpace(index uint32) ([]byte, error)
	// StoreSpace atomically replaces (or creates) the blob of a space.
	StoreSpace(index uint32, blob []byte) error
	// DeleteSpace atomically removes a space, returning an ErrNotFound error
	// if it does not exist.
	DeleteSpace(index uint32) error
}

// SpaceIndex formats a space index for logs and errors.
type SpaceIndex uint32

// String implements fmt.Stringer.
func (i SpaceIndex) String() string { return fmt.Sprintf("0x%08x", uint32(i)) }

// SafeFormat implements redact.SafeFormatter.
func (i SpaceIndex) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("0x%08x", redact.SafeUint(i))
}

func notFoundf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func storageErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrStorage)
}

func wrapStorageError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrStorage)
}
