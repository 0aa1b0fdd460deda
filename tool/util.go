// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// bytesValue is a flag holding bytes, given either verbatim, with a "raw:"
// prefix, or hex encoded with a "hex:" prefix.
type bytesValue []byte

func (b *bytesValue) String() string {
	return string(*b)
}

func (b *bytesValue) Type() string {
	return "bytes"
}

func (b *bytesValue) Set(v string) error {
	switch {
	case strings.HasPrefix(v, "hex:"):
		d, err := hex.DecodeString(strings.TrimPrefix(v, "hex:"))
		if err != nil {
			return errors.Wrapf(err, "invalid hex value %q", v)
		}
		*b = d
	case strings.HasPrefix(v, "raw:"):
		*b = bytesValue(strings.TrimPrefix(v, "raw:"))
	default:
		*b = bytesValue(v)
	}
	return nil
}

// formatter is a flag selecting how bytes are printed.
type formatter struct {
	spec string
	fn   func(w io.Writer, v []byte)
}

func (f *formatter) String() string {
	return f.spec
}

func (f *formatter) Type() string {
	return "formatter"
}

func (f *formatter) Set(spec string) error {
	f.spec = spec
	switch spec {
	case "hex":
		f.fn = formatHex
	case "quoted":
		f.fn = formatQuoted
	case "raw":
		f.fn = formatRaw
	default:
		if strings.Count(spec, "%") != 1 {
			return errors.Errorf("unknown formatter: %q", spec)
		}
		f.fn = func(w io.Writer, v []byte) {
			fmt.Fprintf(w, f.spec, v)
		}
	}
	return nil
}

func (f *formatter) mustSet(spec string) {
	if err := f.Set(spec); err != nil {
		panic(err)
	}
}

func formatHex(w io.Writer, v []byte) {
	fmt.Fprintf(w, "%x", v)
}

func formatQuoted(w io.Writer, v []byte) {
	fmt.Fprintf(w, "%q", v)
}

func formatRaw(w io.Writer, v []byte) {
	_, _ = w.Write(v)
}
