// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package codec

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/vector"
	"github.com/cockroachdb/nvram/wire"
)

// The constructors below build field descriptors from an accessor returning a
// pointer to the field within the message. Scalar fields are always written,
// so a decoded message compares equal to the encoded one.

func outOfRange(v uint64, kind string) error {
	return errors.Wrapf(ErrValueOutOfRange, "%d does not fit %s", v, errors.Safe(kind))
}

// Uint32 describes a uint32 field encoded as a varint.
func Uint32[T any](num wire.Number, field func(*T) *uint32) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Varint,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteVarint(uint64(*field(obj)))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadVarint()
			if err != nil {
				return err
			}
			if v > math.MaxUint32 {
				return outOfRange(v, "uint32")
			}
			*field(obj) = uint32(v)
			return nil
		},
	}
}

// Uint64 describes a uint64 field encoded as a varint.
func Uint64[T any](num wire.Number, field func(*T) *uint64) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Varint,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteVarint(*field(obj))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadVarint()
			if err != nil {
				return err
			}
			*field(obj) = v
			return nil
		},
	}
}

// Int32 describes an int32 field encoded as a sign-extended varint. Negative
// values take ten bytes; prefer SInt32 for fields that are often negative.
func Int32[T any](num wire.Number, field func(*T) *int32) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Varint,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteVarint(uint64(int64(*field(obj))))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadVarint()
			if err != nil {
				return err
			}
			if s := int64(v); s < math.MinInt32 || s > math.MaxInt32 {
				return outOfRange(v, "int32")
			}
			*field(obj) = int32(int64(v))
			return nil
		},
	}
}

// Int64 describes an int64 field encoded as a varint.
func Int64[T any](num wire.Number, field func(*T) *int64) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Varint,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteVarint(uint64(*field(obj)))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadVarint()
			if err != nil {
				return err
			}
			*field(obj) = int64(v)
			return nil
		},
	}
}

// SInt32 describes an int32 field encoded as a zigzag varint.
func SInt32[T any](num wire.Number, field func(*T) *int32) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Varint,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteZigZag(int64(*field(obj)))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadZigZag()
			if err != nil {
				return err
			}
			if v < math.MinInt32 || v > math.MaxInt32 {
				return outOfRange(uint64(v), "int32")
			}
			*field(obj) = int32(v)
			return nil
		},
	}
}

// Bool describes a bool field encoded as a varint.
func Bool[T any](num wire.Number, field func(*T) *bool) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Varint,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteBool(*field(obj))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadBool()
			if err != nil {
				return err
			}
			*field(obj) = v
			return nil
		},
	}
}

// Char describes a single byte character field encoded as a varint.
func Char[T any](num wire.Number, field func(*T) *byte) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Varint,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteVarint(uint64(*field(obj)))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadVarint()
			if err != nil {
				return err
			}
			if v > math.MaxUint8 {
				return outOfRange(v, "char")
			}
			*field(obj) = byte(v)
			return nil
		},
	}
}

// Enum describes a field of an unsigned enumeration type encoded as a varint.
func Enum[T any, E ~uint8 | ~uint16 | ~uint32](num wire.Number, field func(*T) *E) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Varint,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteVarint(uint64(*field(obj)))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadVarint()
			if err != nil {
				return err
			}
			e := E(v)
			if uint64(e) != v {
				return outOfRange(v, "enum")
			}
			*field(obj) = e
			return nil
		},
	}
}

// Fixed32 describes a uint32 field encoded as 4 little-endian bytes.
func Fixed32[T any](num wire.Number, field func(*T) *uint32) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Fixed32,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteFixed32(*field(obj))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadFixed32()
			if err != nil {
				return err
			}
			*field(obj) = v
			return nil
		},
	}
}

// Fixed64 describes a uint64 field encoded as 8 little-endian bytes.
func Fixed64[T any](num wire.Number, field func(*T) *uint64) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Fixed64,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteFixed64(*field(obj))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadFixed64()
			if err != nil {
				return err
			}
			*field(obj) = v
			return nil
		},
	}
}

// Double describes a float64 field encoded as its IEEE 754 bits in 8 bytes.
func Double[T any](num wire.Number, field func(*T) *float64) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Fixed64,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteFixed64(math.Float64bits(*field(obj)))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadFixed64()
			if err != nil {
				return err
			}
			*field(obj) = math.Float64frombits(v)
			return nil
		},
	}
}

// Float describes a float32 field encoded as its IEEE 754 bits in 4 bytes.
func Float[T any](num wire.Number, field func(*T) *float32) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Fixed32,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteFixed32(math.Float32bits(*field(obj)))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadFixed32()
			if err != nil {
				return err
			}
			*field(obj) = math.Float32frombits(v)
			return nil
		},
	}
}

// Bytes describes a byte slice field. An empty value decodes as nil.
func Bytes[T any](num wire.Number, field func(*T) *[]byte) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Bytes,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteBytes(*field(obj))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadBytes()
			if err != nil {
				return err
			}
			*field(obj) = v
			return nil
		},
	}
}

// String describes a string field.
func String[T any](num wire.Number, field func(*T) *string) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Bytes,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteBytes([]byte(*field(obj)))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadBytes()
			if err != nil {
				return err
			}
			*field(obj) = string(v)
			return nil
		},
	}
}

// Blob describes a byte vector field. Decoding replaces the vector's
// contents, so allocation is subject to the vector's allocator.
func Blob[T any](num wire.Number, field func(*T) *vector.Vector[byte]) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Bytes,
		Encode: func(obj *T, w *wire.Writer) error {
			return w.WriteBytes(field(obj).Slice())
		},
		Decode: func(obj *T, r *wire.Reader) error {
			return r.ReadBytesInto(field(obj))
		},
	}
}

// RepeatedUint32 describes a repeated uint32 field. Each element is written as
// its own tagged varint; decoding appends to the vector.
func RepeatedUint32[T any](num wire.Number, field func(*T) *vector.Vector[uint32]) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Varint,
		Encode: func(obj *T, w *wire.Writer) error {
			for _, v := range field(obj).All() {
				if err := w.WriteVarint(uint64(v)); err != nil {
					return err
				}
			}
			return nil
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadVarint()
			if err != nil {
				return err
			}
			if v > math.MaxUint32 {
				return outOfRange(v, "uint32")
			}
			if !field(obj).Append(uint32(v)) {
				return errors.Wrap(wire.ErrAllocation, "appending repeated element")
			}
			return nil
		},
	}
}

// OptionalUint32 describes a uint32 field that may be absent. A nil pointer is
// not written; a decoded value allocates a new pointer.
func OptionalUint32[T any](num wire.Number, field func(*T) **uint32) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Varint,
		Encode: func(obj *T, w *wire.Writer) error {
			p := *field(obj)
			if p == nil {
				return nil
			}
			return w.WriteVarint(uint64(*p))
		},
		Decode: func(obj *T, r *wire.Reader) error {
			v, err := r.ReadVarint()
			if err != nil {
				return err
			}
			if v > math.MaxUint32 {
				return outOfRange(v, "uint32")
			}
			u := uint32(v)
			*field(obj) = &u
			return nil
		},
	}
}

// Message describes a nested message field of type M, encoded through its own
// table as a tag followed by a framed message.
func Message[T, M any](num wire.Number, field func(*T) *M, table *Table[M]) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Bytes,
		Encode: func(obj *T, w *wire.Writer) error {
			if err := w.WriteTag(wire.Bytes); err != nil {
				return err
			}
			return NewEncoder(field(obj), table).Encode(w)
		},
		Decode: func(obj *T, r *wire.Reader) error {
			return NewDecoder(field(obj), table).Decode(r)
		},
	}
}

// RepeatedMessage describes a repeated nested message field. Decoding appends
// a new element per occurrence.
func RepeatedMessage[T, M any](num wire.Number, field func(*T) *[]M, table *Table[M]) FieldDescriptor[T] {
	return FieldDescriptor[T]{
		Number: num,
		Type:   wire.Bytes,
		Encode: func(obj *T, w *wire.Writer) error {
			s := *field(obj)
			for i := range s {
				w.SetFieldNumber(num)
				if err := w.WriteTag(wire.Bytes); err != nil {
					return err
				}
				if err := NewEncoder(&s[i], table).Encode(w); err != nil {
					return err
				}
			}
			return nil
		},
		Decode: func(obj *T, r *wire.Reader) error {
			s := field(obj)
			var m M
			if err := NewDecoder(&m, table).Decode(r); err != nil {
				return err
			}
			*s = append(*s, m)
			return nil
		},
	}
}
