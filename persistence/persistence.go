// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package persistence encodes the NVRAM header and spaces and stores them in a
// storage.Storage.
//
// Each object is wrapped in an envelope recording its object type, so that a
// space blob found where the header is expected (or vice versa) is detected
// rather than decoded into garbage. Envelopes are framed messages and may be
// followed by padding added by the storage layer.
package persistence

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/codec"
	"github.com/cockroachdb/nvram/internal/base"
	"github.com/cockroachdb/nvram/storage"
	"github.com/cockroachdb/nvram/vector"
	"github.com/cockroachdb/nvram/wire"
)

// HeaderVersion is the version of the header written by this package.
// Headers with a higher version are not understood.
const HeaderVersion uint32 = 1

// Header flags.
const (
	// HeaderFlagDisableCreate prevents creation of further spaces.
	HeaderFlagDisableCreate uint32 = 1 << 0
)

// Space flags.
const (
	// SpaceFlagWriteLocked marks a space as persistently write-locked.
	SpaceFlagWriteLocked uint32 = 1 << 0
)

// Header is the global NVRAM metadata.
type Header struct {
	Version uint32
	Flags   uint32
	// AllocatedIndices lists the indices of all existing spaces.
	AllocatedIndices vector.Vector[uint32]
	// ProvisionalIndex is the index of a space being created or deleted. It
	// allows recovering from a crash between the header and space writes.
	ProvisionalIndex *uint32
}

// HasFlag returns true if all bits of flag are set.
func (h *Header) HasFlag(flag uint32) bool { return h.Flags&flag == flag }

// SetFlag sets the bits of flag.
func (h *Header) SetFlag(flag uint32) { h.Flags |= flag }

// Indices returns a copy of the allocated indices.
func (h *Header) Indices() []uint32 {
	return slices.Clone(h.AllocatedIndices.Slice())
}

// SetIndices replaces the allocated indices, which are written in ascending
// order.
func (h *Header) SetIndices(indices []uint32) error {
	sorted := slices.Sorted(slices.Values(indices))
	if !h.AllocatedIndices.Assign(sorted) {
		return errors.Wrapf(wire.ErrAllocation, "%d indices", len(indices))
	}
	return nil
}

// HeaderTable describes the encoding of a Header.
var HeaderTable = codec.NewTable(
	codec.Uint32(1, func(h *Header) *uint32 { return &h.Version }),
	codec.Uint32(2, func(h *Header) *uint32 { return &h.Flags }),
	codec.RepeatedUint32(3, func(h *Header) *vector.Vector[uint32] { return &h.AllocatedIndices }),
	codec.OptionalUint32(4, func(h *Header) **uint32 { return &h.ProvisionalIndex }),
)

// Space is the persistent state of an NVRAM space.
type Space struct {
	Flags              uint32
	Controls           uint32
	AuthorizationValue []byte
	Contents           []byte
}

// HasControl returns true if the given control bit is set.
func (s *Space) HasControl(control uint) bool { return s.Controls&(1<<control) != 0 }

// HasFlag returns true if all bits of flag are set.
func (s *Space) HasFlag(flag uint32) bool { return s.Flags&flag == flag }

// SetFlag sets the bits of flag.
func (s *Space) SetFlag(flag uint32) { s.Flags |= flag }

// SpaceTable describes the encoding of a Space.
var SpaceTable = codec.NewTable(
	codec.Uint32(1, func(s *Space) *uint32 { return &s.Flags }),
	codec.Uint32(2, func(s *Space) *uint32 { return &s.Controls }),
	codec.Bytes(3, func(s *Space) *[]byte { return &s.AuthorizationValue }),
	codec.Bytes(4, func(s *Space) *[]byte { return &s.Contents }),
)

// ObjectType identifies the kind of object held by an envelope.
type ObjectType uint32

// The object types. The values spell out ASCII tags.
const (
	ObjectTypeHeader ObjectType = 0x4e564844 // "NVHD"
	ObjectTypeSpace  ObjectType = 0x4e565350 // "NVSP"
)

// String implements fmt.Stringer.
func (t ObjectType) String() string {
	switch t {
	case ObjectTypeHeader:
		return "header"
	case ObjectTypeSpace:
		return "space"
	}
	return "unknown"
}

// SafeValue implements redact.SafeValue.
func (ObjectType) SafeValue() {}

// envelope wraps an object with its type. object points at the caller's
// value for the duration of an encode or decode.
type envelope[T any] struct {
	typ    uint32
	object *T
}

func newEnvelopeTable[T any](table *codec.Table[T]) *codec.Table[envelope[T]] {
	return codec.NewTable(
		codec.Fixed32(1, func(e *envelope[T]) *uint32 { return &e.typ }),
		codec.Message(2, func(e *envelope[T]) *T { return e.object }, table),
	)
}

var (
	headerEnvelopeTable = newEnvelopeTable(HeaderTable)
	spaceEnvelopeTable  = newEnvelopeTable(SpaceTable)
)

// encode returns the framed envelope of obj.
func encode[T any](typ ObjectType, obj *T, table *codec.Table[envelope[T]]) ([]byte, error) {
	e := envelope[T]{typ: uint32(typ), object: obj}
	blob, err := codec.Marshal(&e, table)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s", typ)
	}
	return blob, nil
}

// decode decodes the framed envelope in blob into obj. Trailing padding is
// ignored.
func decode[T any](typ ObjectType, blob []byte, obj *T, table *codec.Table[envelope[T]]) error {
	e := envelope[T]{object: obj}
	if err := codec.Unmarshal(blob, &e, table); err != nil {
		return markStorage(errors.Wrapf(err, "decoding %s", typ))
	}
	if got := ObjectType(e.typ); got != typ {
		return markStorage(base.CorruptionErrorf("object type mismatch: found %s (%#08x), expected %s",
			got, errors.Safe(e.typ), typ))
	}
	return nil
}

// markStorage reports a blob that cannot be understood as a storage failure
// of the object, so it is never confused with a missing object.
func markStorage(err error) error {
	return errors.Mark(base.MarkCorruptionError(err), storage.ErrStorage)
}

// LoadHeader loads and decodes the header. A missing header is reported with
// an error marked storage.ErrNotFound.
func LoadHeader(s storage.Storage) (*Header, error) {
	blob, err := s.LoadHeader()
	if err != nil {
		return nil, err
	}
	h := &Header{}
	if err := decode(ObjectTypeHeader, blob, h, headerEnvelopeTable); err != nil {
		return nil, err
	}
	return h, nil
}

// StoreHeader encodes and stores the header.
func StoreHeader(s storage.Storage, h *Header) error {
	blob, err := encode(ObjectTypeHeader, h, headerEnvelopeTable)
	if err != nil {
		return errors.Mark(err, storage.ErrStorage)
	}
	return s.StoreHeader(blob)
}

// LoadSpace loads and decodes the space with the given index.
func LoadSpace(s storage.Storage, index uint32) (*Space, error) {
	blob, err := s.LoadSpace(index)
	if err != nil {
		return nil, err
	}
	sp := &Space{}
	if err := decode(ObjectTypeSpace, blob, sp, spaceEnvelopeTable); err != nil {
		return nil, errors.Wrapf(err, "space %s", storage.SpaceIndex(index))
	}
	return sp, nil
}

// StoreSpace encodes and stores a space.
func StoreSpace(s storage.Storage, index uint32, sp *Space) error {
	blob, err := encode(ObjectTypeSpace, sp, spaceEnvelopeTable)
	if err != nil {
		return errors.Mark(err, storage.ErrStorage)
	}
	return s.StoreSpace(index, blob)
}

// DeleteSpace deletes a space.
func DeleteSpace(s storage.Storage, index uint32) error {
	return s.DeleteSpace(index)
}

// EncodeHeader returns the stored form of h.
func EncodeHeader(h *Header) ([]byte, error) {
	return encode(ObjectTypeHeader, h, headerEnvelopeTable)
}

// EncodeSpace returns the stored form of sp.
func EncodeSpace(sp *Space) ([]byte, error) {
	return encode(ObjectTypeSpace, sp, spaceEnvelopeTable)
}

// DecodeHeader decodes the stored form of a header.
func DecodeHeader(blob []byte) (*Header, error) {
	h := &Header{}
	if err := decode(ObjectTypeHeader, blob, h, headerEnvelopeTable); err != nil {
		return nil, err
	}
	return h, nil
}

// DecodeSpace decodes the stored form of a space.
func DecodeSpace(blob []byte) (*Space, error) {
	sp := &Space{}
	if err := decode(ObjectTypeSpace, blob, sp, spaceEnvelopeTable); err != nil {
		return nil, err
	}
	return sp, nil
}
