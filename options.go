// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nvram

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/nvram/internal/base"
	"github.com/cockroachdb/nvram/storage"
)

const (
	defaultMaxSpaces    = 32
	defaultMaxSpaceSize = 1024
	defaultMaxAuthSize  = 32
)

// Logger defines an interface for writing log messages.
type Logger = base.Logger

// DefaultLogger logs to the Go stdlib logs.
type DefaultLogger = base.DefaultLogger

// Options holds the optional parameters for configuring a Manager. The
// Storage is required.
type Options struct {
	// Storage persists the header and the spaces.
	Storage storage.Storage

	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger

	// MaxSpaces is the maximum number of spaces. A header listing more spaces
	// fails initialization.
	MaxSpaces int

	// MaxSpaceSize is the maximum size of the contents of a space, in bytes.
	MaxSpaceSize int

	// MaxAuthSize is the maximum size of an authorization value, in bytes.
	MaxAuthSize int

	// WipeStorageSupported enables WipeStorage and DisableWipe. When unset,
	// both return ErrOperationDisabled.
	WipeStorageSupported bool
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger{}
	}
	if o.MaxSpaces <= 0 {
		o.MaxSpaces = defaultMaxSpaces
	}
	if o.MaxSpaceSize <= 0 {
		o.MaxSpaceSize = defaultMaxSpaceSize
	}
	if o.MaxAuthSize <= 0 {
		o.MaxAuthSize = defaultMaxAuthSize
	}
	return o
}

// String returns a textual representation of the options.
func (o *Options) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "[Options]\n")
	fmt.Fprintf(&buf, "  max_spaces=%d\n", o.MaxSpaces)
	fmt.Fprintf(&buf, "  max_space_size=%d\n", o.MaxSpaceSize)
	fmt.Fprintf(&buf, "  max_auth_size=%d\n", o.MaxAuthSize)
	fmt.Fprintf(&buf, "  wipe_storage_supported=%t\n", o.WipeStorageSupported)
	return buf.String()
}
