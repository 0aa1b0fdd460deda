// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package tool implements the nvram introspection and maintenance commands.
// Every command opens the FileStore in a directory, so each invocation acts
// as a fresh boot: locks that last until reboot do not carry over between
// invocations.
package tool

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram"
	"github.com/cockroachdb/nvram/internal/base"
	"github.com/cockroachdb/nvram/storage"
	"github.com/cockroachdb/nvram/vfs"
	"github.com/spf13/cobra"
)

// T is the container for all of the nvram tools.
type T struct {
	Commands []*cobra.Command

	fs      vfs.FS
	logger  base.Logger
	manager *managerT
	dump    *dumpT
	bench   *benchT

	maxSpaces     int
	maxSpaceSize  int
	blockSize     int
	wipeSupported bool
	verbose       bool
}

// Option configures a T.
type Option func(*T)

// FS sets the file system the tools operate on. Defaults to vfs.Default.
func FS(fs vfs.FS) Option {
	return func(t *T) { t.fs = fs }
}

// Logger sets the logger used for verbose output.
func Logger(l base.Logger) Option {
	return func(t *T) { t.logger = l }
}

// New creates a new set of tools.
func New(opts ...Option) *T {
	t := &T{
		fs:            vfs.Default,
		logger:        base.NoopLogger{},
		wipeSupported: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.manager = newManager(t)
	t.dump = newDump(t)
	t.bench = newBench(t)
	t.Commands = append(t.manager.Commands, t.dump.Root, t.bench.Root)
	for _, c := range t.Commands {
		c.Flags().IntVar(&t.blockSize, "block-size", 0, "padding granularity of stored records")
	}
	for _, c := range t.manager.Commands {
		c.Flags().IntVar(&t.maxSpaces, "max-spaces", 0, "maximum number of spaces (0 uses the default)")
		c.Flags().IntVar(&t.maxSpaceSize, "max-space-size", 0, "maximum space size (0 uses the default)")
		c.Flags().BoolVar(&t.wipeSupported, "wipe-supported", true, "enable wiping storage")
		c.Flags().BoolVarP(&t.verbose, "verbose", "v", false, "log every request")
	}
	return t
}

// openStore opens the FileStore in dir.
func (t *T) openStore(dir string) (*storage.FileStore, error) {
	return storage.Open(dir, &storage.Options{
		FS:        t.fs,
		BlockSize: t.blockSize,
		Logger:    t.logger,
	})
}

// withManager runs fn with a Manager over the FileStore in dir.
func (t *T) withManager(dir string, fn func(m *nvram.Manager) error) error {
	s, err := t.openStore(dir)
	if err != nil {
		return err
	}
	defer s.Close()
	logger := base.Logger(base.NoopLogger{})
	if t.verbose {
		logger = t.logger
	}
	return fn(nvram.New(&nvram.Options{
		Storage:              s,
		Logger:               logger,
		MaxSpaces:            t.maxSpaces,
		MaxSpaceSize:         t.maxSpaceSize,
		WipeStorageSupported: t.wipeSupported,
	}))
}

// parseIndex parses a space index in decimal or 0x-prefixed hex.
func parseIndex(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid space index %q", s)
	}
	return uint32(v), nil
}

// reportErr prints err along with its result classification.
func reportErr(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %s\n", nvram.ResultOf(err))
}
