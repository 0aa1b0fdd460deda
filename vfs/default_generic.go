// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !unix

package vfs

import (
	"io"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
)

func (defaultFS) OpenDir(name string) (File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return dirFile{f}, nil
}

func (defaultFS) Lock(name string) (io.Closer, error) {
	return nil, errors.Newf("nvram/vfs: file locking is not implemented on %s/%s",
		errors.Safe(runtime.GOOS), errors.Safe(runtime.GOARCH))
}

func wrapOSFile(f *os.File) File {
	return f
}

// dirFile ignores Sync; directories cannot be synced on these platforms.
type dirFile struct {
	*os.File
}

func (dirFile) Sync() error { return nil }
