// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build unix

package vfs

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

func (defaultFS) OpenDir(name string) (File, error) {
	f, err := os.OpenFile(name, unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return unixFile{f}, nil
}

func (defaultFS) Lock(name string) (io.Closer, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "lock %s", name)
	}
	return f, nil
}

func wrapOSFile(f *os.File) File {
	return unixFile{f}
}

// unixFile syncs file contents with fdatasync where the platform has it.
// Directory handles fall back to a full fsync.
type unixFile struct {
	*os.File
}

func (f unixFile) Sync() error {
	if fi, err := f.File.Stat(); err == nil && fi.IsDir() {
		return errors.WithStack(f.File.Sync())
	}
	return errors.WithStack(fdatasync(f.File))
}
