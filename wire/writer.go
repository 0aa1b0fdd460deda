// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package wire

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/vector"
	"google.golang.org/protobuf/encoding/protowire"
)

// OutputStream is the sink a Writer emits bytes into.
type OutputStream interface {
	Write(p []byte) error
}

// BufferOutputStream accumulates written bytes in a vector. The zero value
// grows without bound (subject to the vector's allocator).
type BufferOutputStream struct {
	buf   vector.Vector[byte]
	limit int
}

var _ OutputStream = (*BufferOutputStream)(nil)

// NewFixedBufferOutputStream returns a BufferOutputStream that refuses to hold
// more than limit bytes.
func NewFixedBufferOutputStream(limit int) *BufferOutputStream {
	return &BufferOutputStream{limit: limit}
}

// SetAllocator sets the allocator of the underlying vector. It must be called
// before the first write.
func (b *BufferOutputStream) SetAllocator(a vector.Allocator[byte]) {
	b.buf.SetAllocator(a)
}

// Write implements OutputStream.
func (b *BufferOutputStream) Write(p []byte) error {
	n := b.buf.Len()
	if b.limit > 0 && n+len(p) > b.limit {
		return errors.Wrapf(ErrBufferFull, "writing %d bytes at offset %d of %d", len(p), n, b.limit)
	}
	if !b.buf.Resize(n + len(p)) {
		return errors.Wrapf(ErrAllocation, "growing buffer to %d bytes", n+len(p))
	}
	copy(b.buf.Slice()[n:], p)
	return nil
}

// Len returns the number of bytes written.
func (b *BufferOutputStream) Len() int { return b.buf.Len() }

// Bytes returns the written bytes. The slice aliases the buffer and is
// invalidated by the next Write.
func (b *BufferOutputStream) Bytes() []byte { return b.buf.Slice() }

// Reset discards the written bytes.
func (b *BufferOutputStream) Reset() { b.buf.Reset() }

// CountingOutputStream discards its input and counts the bytes written to it.
// It is used to size a message without encoding it.
type CountingOutputStream struct {
	n int
}

var _ OutputStream = (*CountingOutputStream)(nil)

// Write implements OutputStream.
func (c *CountingOutputStream) Write(p []byte) error {
	c.n += len(p)
	return nil
}

// Len returns the number of bytes written.
func (c *CountingOutputStream) Len() int { return c.n }

// Writer writes fields to an OutputStream. Every Write method emits the tag
// for the current field number followed by the payload.
type Writer struct {
	out     OutputStream
	field   Number
	scratch [2 * binary.MaxVarintLen64]byte
}

// NewWriter returns a Writer emitting into out.
func NewWriter(out OutputStream) *Writer {
	return &Writer{out: out}
}

// SetFieldNumber sets the field number used for subsequent tags.
func (w *Writer) SetFieldNumber(n Number) { w.field = n }

// FieldNumber returns the field number used for subsequent tags.
func (w *Writer) FieldNumber() Number { return w.field }

// Output returns the stream w writes to.
func (w *Writer) Output() OutputStream { return w.out }

func (w *Writer) tag(typ Type) ([]byte, error) {
	if !w.field.IsValid() {
		return nil, errors.Wrapf(ErrInvalidNumber, "%d", errors.Safe(w.field))
	}
	return protowire.AppendTag(w.scratch[:0], w.field, typ), nil
}

// WriteVarint writes v as a varint field.
func (w *Writer) WriteVarint(v uint64) error {
	b, err := w.tag(Varint)
	if err != nil {
		return err
	}
	return w.out.Write(protowire.AppendVarint(b, v))
}

// WriteZigZag writes v as a zigzag encoded varint field.
func (w *Writer) WriteZigZag(v int64) error {
	return w.WriteVarint(protowire.EncodeZigZag(v))
}

// WriteBool writes v as a varint field.
func (w *Writer) WriteBool(v bool) error {
	return w.WriteVarint(protowire.EncodeBool(v))
}

// WriteFixed32 writes v as a fixed 4 byte field.
func (w *Writer) WriteFixed32(v uint32) error {
	b, err := w.tag(Fixed32)
	if err != nil {
		return err
	}
	return w.out.Write(protowire.AppendFixed32(b, v))
}

// WriteFixed64 writes v as a fixed 8 byte field.
func (w *Writer) WriteFixed64(v uint64) error {
	b, err := w.tag(Fixed64)
	if err != nil {
		return err
	}
	return w.out.Write(protowire.AppendFixed64(b, v))
}

// WriteTag writes only the tag for the current field number and typ. It is
// followed by a payload written through the Output stream or by
// WriteLengthPrefix for a nested message.
func (w *Writer) WriteTag(typ Type) error {
	b, err := w.tag(typ)
	if err != nil {
		return err
	}
	return w.out.Write(b)
}

// WriteLengthPrefix writes n as a bare varint, without a tag. It frames a
// message: the outermost message of a blob, or a nested message after its tag.
func (w *Writer) WriteLengthPrefix(n int) error {
	return w.out.Write(protowire.AppendVarint(w.scratch[:0], uint64(n)))
}

// WriteLengthHeader writes the tag and length of a length-delimited field.
// The caller writes exactly n payload bytes afterwards, e.g. a nested message.
func (w *Writer) WriteLengthHeader(n int) error {
	b, err := w.tag(Bytes)
	if err != nil {
		return err
	}
	return w.out.Write(protowire.AppendVarint(b, uint64(n)))
}

// WriteBytes writes p as a length-delimited field.
func (w *Writer) WriteBytes(p []byte) error {
	if err := w.WriteLengthHeader(len(p)); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return w.out.Write(p)
}
