// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package codec implements a table-driven message encoder and decoder.
//
// A message type T is described by a Table[T]: an immutable list of field
// descriptors, each pairing a field number and wire type with functions that
// move a single field between a *T and a wire.Writer or wire.Reader. The
// Encoder and Decoder walk the table; they contain no per-type code.
//
// A message is encoded as its fields in table order. When framed, the fields
// are preceded by their total length as a varint, which makes the encoding
// self-delimiting: nested messages are framed after their tag, and top-level
// blobs produced by Marshal are framed so that trailing bytes after the
// message (e.g. storage padding) are ignored by Unmarshal.
//
// Decoding tolerates fields the table does not know, including a known field
// number arriving with an unexpected wire type: such fields are skipped. On
// failure the destination object is left partially populated and should be
// discarded.
package codec

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/internal/base"
	"github.com/cockroachdb/nvram/wire"
)

// ErrTrailingData is returned when a framed message is followed by bytes that
// must not be there.
var ErrTrailingData = base.MarkCorruptionError(errors.New("nvram/codec: trailing data"))

// ErrValueOutOfRange is returned when a decoded value does not fit the
// destination field.
var ErrValueOutOfRange = base.MarkCorruptionError(errors.New("nvram/codec: value out of range"))

// EncodeFunc writes one field of obj. The writer's field number has already
// been set to the descriptor's field number. It may write zero or more
// tagged values (zero for an absent optional field, several for a repeated
// one).
type EncodeFunc[T any] func(obj *T, w *wire.Writer) error

// DecodeFunc reads the payload of one field into obj. The tag has already
// been consumed and matches the descriptor.
type DecodeFunc[T any] func(obj *T, r *wire.Reader) error

// FieldDescriptor describes how a single field of T is encoded and decoded.
type FieldDescriptor[T any] struct {
	Number wire.Number
	Type   wire.Type
	Encode EncodeFunc[T]
	Decode DecodeFunc[T]
}

// Table is the immutable schema of a message type. Tables are built once,
// typically into package-level variables, and shared by all encoders and
// decoders of that type.
type Table[T any] struct {
	fields []FieldDescriptor[T]
}

// NewTable returns a table over the given field descriptors. Fields are
// encoded in the order given. NewTable panics if a descriptor is incomplete
// or if two descriptors share both field number and wire type, since decoding
// could not tell them apart.
func NewTable[T any](fields ...FieldDescriptor[T]) *Table[T] {
	for i := range fields {
		f := &fields[i]
		switch {
		case !f.Number.IsValid():
			panic(errors.AssertionFailedf("codec: field %d: invalid field number", f.Number))
		case !wire.ValidType(f.Type):
			panic(errors.AssertionFailedf("codec: field %d: unsupported wire type %d", f.Number, f.Type))
		case f.Encode == nil || f.Decode == nil:
			panic(errors.AssertionFailedf("codec: field %d: missing encode or decode function", f.Number))
		}
		for j := range fields[:i] {
			if fields[j].Number == f.Number && fields[j].Type == f.Type {
				panic(errors.AssertionFailedf("codec: duplicate field %d (%s)", f.Number, wire.TypeName(f.Type)))
			}
		}
	}
	return &Table[T]{fields: slices.Clone(fields)}
}

// Len returns the number of fields in the table.
func (t *Table[T]) Len() int { return len(t.fields) }

// Field returns the i'th field descriptor.
func (t *Table[T]) Field(i int) FieldDescriptor[T] { return t.fields[i] }

func (t *Table[T]) lookup(num wire.Number, typ wire.Type) *FieldDescriptor[T] {
	for i := range t.fields {
		if t.fields[i].Number == num && t.fields[i].Type == typ {
			return &t.fields[i]
		}
	}
	return nil
}

// Encoder encodes a single object through its table.
type Encoder[T any] struct {
	obj   *T
	table *Table[T]
}

// NewEncoder returns an Encoder for obj.
func NewEncoder[T any](obj *T, table *Table[T]) Encoder[T] {
	return Encoder[T]{obj: obj, table: table}
}

// GetSize returns the length of the unframed encoding of the object, as
// written by EncodeData. It runs the encode pass against a counting stream.
func (e Encoder[T]) GetSize() (int, error) {
	var c wire.CountingOutputStream
	if err := e.EncodeData(wire.NewWriter(&c)); err != nil {
		return 0, err
	}
	return c.Len(), nil
}

// Encode writes the framed encoding of the object: its length followed by
// its fields.
func (e Encoder[T]) Encode(w *wire.Writer) error {
	size, err := e.GetSize()
	if err != nil {
		return err
	}
	if err := w.WriteLengthPrefix(size); err != nil {
		return err
	}
	return e.EncodeData(w)
}

// EncodeData writes the fields of the object in table order, stopping at the
// first field that fails to encode.
func (e Encoder[T]) EncodeData(w *wire.Writer) error {
	saved := w.FieldNumber()
	defer w.SetFieldNumber(saved)
	for i := range e.table.fields {
		f := &e.table.fields[i]
		w.SetFieldNumber(f.Number)
		if err := f.Encode(e.obj, w); err != nil {
			return errors.Wrapf(err, "encoding field %d", errors.Safe(f.Number))
		}
	}
	return nil
}

// Decoder decodes into a single object through its table.
type Decoder[T any] struct {
	obj   *T
	table *Table[T]
}

// NewDecoder returns a Decoder populating obj.
func NewDecoder[T any](obj *T, table *Table[T]) Decoder[T] {
	return Decoder[T]{obj: obj, table: table}
}

// Decode reads a framed message: a length followed by exactly that many bytes
// of fields. r is left positioned after the message.
func (d Decoder[T]) Decode(r *wire.Reader) error {
	n, err := r.ReadLengthPrefix()
	if err != nil {
		return err
	}
	sub, err := r.NestedN(n)
	if err != nil {
		return err
	}
	if err := d.DecodeData(sub); err != nil {
		return err
	}
	if !sub.Done() {
		return errors.Wrapf(ErrTrailingData, "%d bytes left in message", sub.Remaining())
	}
	return nil
}

// DecodeData reads fields until r is exhausted. Fields that have no matching
// descriptor are skipped.
func (d Decoder[T]) DecodeData(r *wire.Reader) error {
	for !r.Done() {
		if err := r.ReadWireTag(); err != nil {
			return err
		}
		f := d.table.lookup(r.FieldNumber(), r.WireType())
		if f == nil {
			if err := r.SkipField(); err != nil {
				return err
			}
			continue
		}
		if err := f.Decode(d.obj, r); err != nil {
			return errors.Wrapf(err, "decoding field %d", errors.Safe(f.Number))
		}
	}
	return nil
}

// Option configures Unmarshal.
type Option func(*wire.Reader)

// WithMaxBytesLength bounds the size of any single length-delimited value
// materialized while decoding. Inputs exceeding it fail with
// wire.ErrAllocation.
func WithMaxBytesLength(n int) Option {
	return func(r *wire.Reader) { r.SetMaxBytesLength(n) }
}

func newReader(buf []byte, opts []Option) *wire.Reader {
	r := wire.NewReader(buf)
	for _, o := range opts {
		o(r)
	}
	return r
}

// Marshal returns the framed encoding of obj.
func Marshal[T any](obj *T, table *Table[T]) ([]byte, error) {
	enc := NewEncoder(obj, table)
	size, err := enc.GetSize()
	if err != nil {
		return nil, err
	}
	out := wire.NewFixedBufferOutputStream(wire.SizeVarint(uint64(size)) + size)
	w := wire.NewWriter(out)
	if err := w.WriteLengthPrefix(size); err != nil {
		return nil, err
	}
	if err := enc.EncodeData(w); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// MarshalData returns the unframed encoding of obj.
func MarshalData[T any](obj *T, table *Table[T]) ([]byte, error) {
	var out wire.BufferOutputStream
	if err := NewEncoder(obj, table).EncodeData(wire.NewWriter(&out)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Unmarshal decodes a framed message from the front of buf into obj. Bytes
// following the message are ignored.
func Unmarshal[T any](buf []byte, obj *T, table *Table[T], opts ...Option) error {
	return NewDecoder(obj, table).Decode(newReader(buf, opts))
}

// UnmarshalExact is like Unmarshal but fails if buf holds anything after the
// message.
func UnmarshalExact[T any](buf []byte, obj *T, table *Table[T], opts ...Option) error {
	r := newReader(buf, opts)
	if err := NewDecoder(obj, table).Decode(r); err != nil {
		return err
	}
	if !r.Done() {
		return errors.Wrapf(ErrTrailingData, "%d bytes after message", r.Remaining())
	}
	return nil
}

// UnmarshalData decodes all of buf as the unframed fields of obj.
func UnmarshalData[T any](buf []byte, obj *T, table *Table[T], opts ...Option) error {
	return NewDecoder(obj, table).DecodeData(newReader(buf, opts))
}
