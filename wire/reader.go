// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package wire

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/vector"
	"google.golang.org/protobuf/encoding/protowire"
)

// InputStream is a bounded view over an input buffer. Reads never go past the
// end of the view, which is how a nested message is confined to its declared
// length.
type InputStream struct {
	data []byte
	pos  int
}

// NewInputStream returns an InputStream over b.
func NewInputStream(b []byte) *InputStream {
	return &InputStream{data: b}
}

// Remaining returns the number of unread bytes.
func (s *InputStream) Remaining() int { return len(s.data) - s.pos }

// Done returns true if all bytes have been read.
func (s *InputStream) Done() bool { return s.pos >= len(s.data) }

// Offset returns the number of bytes read so far.
func (s *InputStream) Offset() int { return s.pos }

func (s *InputStream) peek() []byte { return s.data[s.pos:] }

func (s *InputStream) advance(n int) { s.pos += n }

// Nested returns a stream over the next n bytes and advances s past them.
func (s *InputStream) Nested(n int) (*InputStream, error) {
	if n < 0 || n > s.Remaining() {
		return nil, errors.Wrapf(ErrTruncated, "nested length %d exceeds %d remaining bytes", n, s.Remaining())
	}
	sub := &InputStream{data: s.data[s.pos : s.pos+n : s.pos+n]}
	s.pos += n
	return sub, nil
}

// Reader reads fields from an InputStream. ReadWireTag parses the next tag;
// the Read methods then consume the payload of that field.
type Reader struct {
	in       *InputStream
	field    Number
	typ      Type
	maxBytes int
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{in: NewInputStream(b)}
}

// SetMaxBytesLength bounds the length of any single length-delimited payload
// materialized by ReadBytes. Zero means unbounded.
func (r *Reader) SetMaxBytesLength(n int) { r.maxBytes = n }

// Done returns true if all input has been consumed.
func (r *Reader) Done() bool { return r.in.Done() }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return r.in.Remaining() }

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.in.Offset() }

// FieldNumber returns the field number of the last tag read.
func (r *Reader) FieldNumber() Number { return r.field }

// WireType returns the wire type of the last tag read.
func (r *Reader) WireType() Type { return r.typ }

// ReadWireTag reads the next tag.
func (r *Reader) ReadWireTag() error {
	num, typ, n := protowire.ConsumeTag(r.in.peek())
	if n < 0 {
		return errors.Wrapf(parseError(n, ErrMalformedTag), "offset %d", r.in.Offset())
	}
	r.field, r.typ = num, typ
	r.in.advance(n)
	return nil
}

func (r *Reader) expect(typ Type) error {
	if r.typ != typ {
		return errors.Wrapf(ErrWireTypeMismatch, "field %d: have %s, want %s",
			errors.Safe(r.field), errors.Safe(TypeName(r.typ)), errors.Safe(TypeName(typ)))
	}
	return nil
}

// ReadVarint reads the payload of a varint field.
func (r *Reader) ReadVarint() (uint64, error) {
	if err := r.expect(Varint); err != nil {
		return 0, err
	}
	return r.readVarint()
}

func (r *Reader) readVarint() (uint64, error) {
	v, n := protowire.ConsumeVarint(r.in.peek())
	if n < 0 {
		return 0, errors.Wrapf(parseError(n, ErrMalformedVarint), "offset %d", r.in.Offset())
	}
	r.in.advance(n)
	return v, nil
}

// ReadZigZag reads the payload of a zigzag encoded varint field.
func (r *Reader) ReadZigZag() (int64, error) {
	v, err := r.ReadVarint()
	return protowire.DecodeZigZag(v), err
}

// ReadBool reads the payload of a varint field as a boolean.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadVarint()
	return protowire.DecodeBool(v), err
}

// ReadFixed32 reads the payload of a fixed 4 byte field.
func (r *Reader) ReadFixed32() (uint32, error) {
	if err := r.expect(Fixed32); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeFixed32(r.in.peek())
	if n < 0 {
		return 0, errors.Wrapf(parseError(n, ErrTruncated), "offset %d", r.in.Offset())
	}
	r.in.advance(n)
	return v, nil
}

// ReadFixed64 reads the payload of a fixed 8 byte field.
func (r *Reader) ReadFixed64() (uint64, error) {
	if err := r.expect(Fixed64); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeFixed64(r.in.peek())
	if n < 0 {
		return 0, errors.Wrapf(parseError(n, ErrTruncated), "offset %d", r.in.Offset())
	}
	r.in.advance(n)
	return v, nil
}

// ReadLengthHeader reads the length of a length-delimited field and checks
// that the payload fits in the remaining input.
func (r *Reader) ReadLengthHeader() (int, error) {
	if err := r.expect(Bytes); err != nil {
		return 0, err
	}
	return r.readLength()
}

func (r *Reader) readLength() (int, error) {
	v, err := r.readVarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, errors.Wrapf(ErrLengthOverflow, "length %d", v)
	}
	if int(v) > r.in.Remaining() {
		return 0, errors.Wrapf(ErrTruncated, "length %d exceeds %d remaining bytes", v, r.in.Remaining())
	}
	return int(v), nil
}

// ReadBytes reads the payload of a length-delimited field into a newly
// allocated slice. An empty payload yields a nil slice.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadLengthHeader()
	if err != nil {
		return nil, err
	}
	if r.maxBytes > 0 && n > r.maxBytes {
		return nil, errors.Wrapf(ErrAllocation, "length %d exceeds limit %d", n, r.maxBytes)
	}
	p := r.in.peek()[:n]
	r.in.advance(n)
	if n == 0 {
		return nil, nil
	}
	return append([]byte(nil), p...), nil
}

// ReadBytesInto reads the payload of a length-delimited field into v,
// replacing its contents.
func (r *Reader) ReadBytesInto(v *vector.Vector[byte]) error {
	n, err := r.ReadLengthHeader()
	if err != nil {
		return err
	}
	if r.maxBytes > 0 && n > r.maxBytes {
		return errors.Wrapf(ErrAllocation, "length %d exceeds limit %d", n, r.maxBytes)
	}
	p := r.in.peek()[:n]
	if !v.Assign(p) {
		return errors.Wrapf(ErrAllocation, "assigning %d bytes", n)
	}
	r.in.advance(n)
	return nil
}

// Nested reads the length header of a length-delimited field and returns a
// Reader confined to its payload. r is advanced past the payload.
func (r *Reader) Nested() (*Reader, error) {
	n, err := r.ReadLengthHeader()
	if err != nil {
		return nil, err
	}
	return r.NestedN(n)
}

// NestedN returns a Reader confined to the next n bytes and advances r past
// them.
func (r *Reader) NestedN(n int) (*Reader, error) {
	in, err := r.in.Nested(n)
	if err != nil {
		return nil, err
	}
	return &Reader{in: in, maxBytes: r.maxBytes}, nil
}

// ReadLengthPrefix reads a bare varint length (no tag), as written in front
// of a top-level message, and checks it against the remaining input.
func (r *Reader) ReadLengthPrefix() (int, error) {
	return r.readLength()
}

// SkipField skips the payload of the field whose tag was read last.
func (r *Reader) SkipField() error {
	if !ValidType(r.typ) {
		return errors.Wrapf(ErrUnknownWireType, "field %d: %s",
			errors.Safe(r.field), errors.Safe(TypeName(r.typ)))
	}
	n := protowire.ConsumeFieldValue(r.field, r.typ, r.in.peek())
	if n < 0 {
		return errors.Wrapf(parseError(n, ErrMalformedVarint), "skipping field %d", errors.Safe(r.field))
	}
	r.in.advance(n)
	return nil
}
