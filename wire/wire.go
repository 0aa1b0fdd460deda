// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package wire provides the low-level reader and writer used by the message
// codec. A message is a sequence of fields, each a tag (field number and wire
// type) followed by a payload whose extent is determined by the wire type:
//
//	Varint   base-128 varint
//	Fixed32  4 little-endian bytes
//	Fixed64  8 little-endian bytes
//	Bytes    varint length followed by that many bytes
//
// Nested messages use the Bytes wire type, which makes every encoded message
// self-delimiting once wrapped in a length header.
package wire

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/internal/base"
	"google.golang.org/protobuf/encoding/protowire"
)

// Number is a field number. Valid field numbers are in [1, 1<<29-1].
type Number = protowire.Number

// Type is the wire type of a field.
type Type = protowire.Type

// The supported wire types. The group wire types are not supported; a field
// carrying one cannot be decoded or skipped.
const (
	Varint  Type = protowire.VarintType
	Fixed32 Type = protowire.Fixed32Type
	Fixed64 Type = protowire.Fixed64Type
	Bytes   Type = protowire.BytesType
)

// Errors returned while reading or writing. The input errors are marked as
// corruption errors (see base.IsCorruptionError).
var (
	ErrTruncated        = base.MarkCorruptionError(errors.New("nvram/wire: truncated input"))
	ErrMalformedTag     = base.MarkCorruptionError(errors.New("nvram/wire: malformed tag"))
	ErrMalformedVarint  = base.MarkCorruptionError(errors.New("nvram/wire: malformed varint"))
	ErrUnknownWireType  = base.MarkCorruptionError(errors.New("nvram/wire: unknown wire type"))
	ErrWireTypeMismatch = base.MarkCorruptionError(errors.New("nvram/wire: wire type mismatch"))
	ErrLengthOverflow   = base.MarkCorruptionError(errors.New("nvram/wire: length overflow"))
	ErrAllocation       = errors.New("nvram/wire: allocation failure")
	ErrBufferFull       = errors.New("nvram/wire: output buffer full")
	ErrInvalidNumber    = errors.New("nvram/wire: invalid field number")
)

// ValidType returns true if t is one of the supported wire types.
func ValidType(t Type) bool {
	switch t {
	case Varint, Fixed32, Fixed64, Bytes:
		return true
	}
	return false
}

// TypeName returns a short human readable name for the wire type.
func TypeName(t Type) string {
	switch t {
	case Varint:
		return "varint"
	case Fixed32:
		return "fixed32"
	case Fixed64:
		return "fixed64"
	case Bytes:
		return "bytes"
	}
	return fmt.Sprintf("wiretype(%d)", t)
}

// SizeTag returns the encoded size of a tag for field number n.
func SizeTag(n Number) int {
	return protowire.SizeTag(n)
}

// SizeVarint returns the encoded size of v as a varint.
func SizeVarint(v uint64) int {
	return protowire.SizeVarint(v)
}

// parseError converts a negative length returned by one of the protowire
// Consume functions into one of the package errors.
func parseError(n int, malformed error) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return errors.Wrapf(malformed, "%v", err)
}
