// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package errorfs wraps a vfs.FS and injects errors into its operations. It
// is used to exercise the storage error paths.
package errorfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/vfs"
)

// ErrInjected is an error artificially injected for testing fs error paths.
var ErrInjected = errors.New("injected error")

// Op is an enum describing the type of operation.
type Op int

const (
	// OpCreate describes a create file operation.
	OpCreate Op = iota
	// OpOpen describes a file open operation.
	OpOpen
	// OpOpenDir describes a directory open operation.
	OpOpenDir
	// OpRemove describes a remove file operation.
	OpRemove
	// OpRename describes a rename operation.
	OpRename
	// OpMkdirAll describes a make directory including parents operation.
	OpMkdirAll
	// OpLock describes a lock file operation.
	OpLock
	// OpList describes a list directory operation.
	OpList
	// OpStat describes a path-based stat operation.
	OpStat
	// OpFileClose describes a close file operation.
	OpFileClose
	// OpFileRead describes a file read operation.
	OpFileRead
	// OpFileReadAt describes a file seek read operation.
	OpFileReadAt
	// OpFileWrite describes a file write operation.
	OpFileWrite
	// OpFileStat describes a file stat operation.
	OpFileStat
	// OpFileSync describes a file sync operation.
	OpFileSync

	numOps
)

var opNames = [...]string{
	OpCreate:     "create",
	OpOpen:       "open",
	OpOpenDir:    "open-dir",
	OpRemove:     "remove",
	OpRename:     "rename",
	OpMkdirAll:   "mkdir-all",
	OpLock:       "lock",
	OpList:       "list",
	OpStat:       "stat",
	OpFileClose:  "close",
	OpFileRead:   "read",
	OpFileReadAt: "read-at",
	OpFileWrite:  "write",
	OpFileStat:   "file-stat",
	OpFileSync:   "sync",
}

func (o Op) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// OpKind describes whether an operation reads or modifies the file system.
type OpKind int

const (
	// OpKindRead describes read operations.
	OpKindRead OpKind = iota
	// OpKindWrite describes write operations.
	OpKindWrite
)

// OpKind returns the operation's kind.
func (o Op) OpKind() OpKind {
	switch o {
	case OpOpen, OpOpenDir, OpList, OpStat, OpFileRead, OpFileReadAt, OpFileStat:
		return OpKindRead
	default:
		return OpKindWrite
	}
}

// Injector injects errors into FS operations.
type Injector interface {
	// MaybeError is invoked before an operation is executed, with the
	// operation and the path of the subject file. Rename passes the source
	// path.
	MaybeError(op Op, path string) error
}

// InjectorFunc implements the Injector interface for a function with
// MaybeError's signature.
type InjectorFunc func(Op, string) error

// MaybeError implements the Injector interface.
func (f InjectorFunc) MaybeError(op Op, path string) error { return f(op, path) }

// Always returns an injector that always injects an error.
func Always() Injector {
	return InjectorFunc(func(Op, string) error { return errors.WithStack(ErrInjected) })
}

// OnOp returns an injector that consults next only for the given operation.
func OnOp(op Op, next Injector) Injector {
	return InjectorFunc(func(o Op, path string) error {
		if o != op {
			return nil
		}
		return next.MaybeError(o, path)
	})
}

// OfKind returns an injector that consults next only for operations of the
// given kind.
func OfKind(kind OpKind, next Injector) Injector {
	return InjectorFunc(func(o Op, path string) error {
		if o.OpKind() != kind {
			return nil
		}
		return next.MaybeError(o, path)
	})
}

// PathMatch returns an injector that consults next for paths whose base name
// matches pattern (according to filepath.Match).
func PathMatch(pattern string, next Injector) Injector {
	return InjectorFunc(func(op Op, path string) error {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err != nil {
			panic(err)
		}
		if !matched {
			return nil
		}
		return next.MaybeError(op, path)
	})
}

// OnIndex constructs an injector that consults next on the (n+1)-th
// invocation of its MaybeError function.
func OnIndex(index int32, next Injector) *InjectIndex {
	ii := &InjectIndex{next: next}
	ii.index.Store(index)
	return ii
}

// InjectIndex implements Injector, injecting an error at a specific index.
type InjectIndex struct {
	index atomic.Int32
	next  Injector
}

// Index returns the number of invocations left before the injection.
func (ii *InjectIndex) Index() int32 { return ii.index.Load() }

// SetIndex sets the index at which the error will be injected.
func (ii *InjectIndex) SetIndex(v int32) { ii.index.Store(v) }

// MaybeError implements the Injector interface.
func (ii *InjectIndex) MaybeError(op Op, path string) error {
	if ii.index.Add(-1) != -1 {
		return nil
	}
	return ii.next.MaybeError(op, path)
}

// Toggle is an injector that consults next only while switched on.
type Toggle struct {
	on   atomic.Bool
	next Injector
}

// NewToggle returns a Toggle, initially off, wrapping next.
func NewToggle(next Injector) *Toggle { return &Toggle{next: next} }

// On enables injection.
func (t *Toggle) On() { t.on.Store(true) }

// Off disables injection.
func (t *Toggle) Off() { t.on.Store(false) }

// MaybeError implements the Injector interface.
func (t *Toggle) MaybeError(op Op, path string) error {
	if !t.on.Load() {
		return nil
	}
	return t.next.MaybeError(op, path)
}

// Counter is an injector that never injects an error but counts the
// operations it observes. It is used to enumerate the operations of a
// workload before injecting an error at each of them with OnIndex.
type Counter struct {
	n     atomic.Int32
	perOp [numOps]atomic.Int32
}

// MaybeError implements the Injector interface.
func (c *Counter) MaybeError(op Op, path string) error {
	c.n.Add(1)
	if op >= 0 && op < numOps {
		c.perOp[op].Add(1)
	}
	return nil
}

// Load returns the number of operations observed.
func (c *Counter) Load() int32 { return c.n.Load() }

// LoadOp returns the number of operations of the given type observed.
func (c *Counter) LoadOp(op Op) int32 { return c.perOp[op].Load() }

// FS implements vfs.FS, injecting errors into the wrapped FS.
type FS struct {
	fs  vfs.FS
	inj Injector
}

var _ vfs.FS = (*FS)(nil)

// Wrap wraps an existing vfs.FS implementation, returning a new vfs.FS
// implementation which shadows operations to the supplied FS. The injector
// is consulted before every operation.
func Wrap(fs vfs.FS, inj Injector) *FS {
	return &FS{fs: fs, inj: inj}
}

// Create implements FS.Create.
func (fs *FS) Create(name string) (vfs.File, error) {
	if err := fs.inj.MaybeError(OpCreate, name); err != nil {
		return nil, err
	}
	f, err := fs.fs.Create(name)
	if err != nil {
		return nil, err
	}
	return &errorFile{name, f, fs.inj}, nil
}

// Open implements FS.Open.
func (fs *FS) Open(name string) (vfs.File, error) {
	if err := fs.inj.MaybeError(OpOpen, name); err != nil {
		return nil, err
	}
	f, err := fs.fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &errorFile{name, f, fs.inj}, nil
}

// OpenDir implements FS.OpenDir.
func (fs *FS) OpenDir(name string) (vfs.File, error) {
	if err := fs.inj.MaybeError(OpOpenDir, name); err != nil {
		return nil, err
	}
	f, err := fs.fs.OpenDir(name)
	if err != nil {
		return nil, err
	}
	return &errorFile{name, f, fs.inj}, nil
}

// Remove implements FS.Remove.
func (fs *FS) Remove(name string) error {
	if err := fs.inj.MaybeError(OpRemove, name); err != nil {
		return err
	}
	return fs.fs.Remove(name)
}

// Rename implements FS.Rename.
func (fs *FS) Rename(oldname, newname string) error {
	if err := fs.inj.MaybeError(OpRename, oldname); err != nil {
		return err
	}
	return fs.fs.Rename(oldname, newname)
}

// MkdirAll implements FS.MkdirAll.
func (fs *FS) MkdirAll(dir string, perm os.FileMode) error {
	if err := fs.inj.MaybeError(OpMkdirAll, dir); err != nil {
		return err
	}
	return fs.fs.MkdirAll(dir, perm)
}

// Lock implements FS.Lock.
func (fs *FS) Lock(name string) (io.Closer, error) {
	if err := fs.inj.MaybeError(OpLock, name); err != nil {
		return nil, err
	}
	return fs.fs.Lock(name)
}

// List implements FS.List.
func (fs *FS) List(dir string) ([]string, error) {
	if err := fs.inj.MaybeError(OpList, dir); err != nil {
		return nil, err
	}
	return fs.fs.List(dir)
}

// Stat implements FS.Stat.
func (fs *FS) Stat(name string) (os.FileInfo, error) {
	if err := fs.inj.MaybeError(OpStat, name); err != nil {
		return nil, err
	}
	return fs.fs.Stat(name)
}

// PathBase implements FS.PathBase.
func (fs *FS) PathBase(p string) string { return fs.fs.PathBase(p) }

// PathJoin implements FS.PathJoin.
func (fs *FS) PathJoin(elem ...string) string { return fs.fs.PathJoin(elem...) }

// errorFile implements vfs.File. The interface is implemented on the pointer
// type to allow pointer equality comparisons.
type errorFile struct {
	path string
	file vfs.File
	inj  Injector
}

func (f *errorFile) Close() error {
	// We don't inject errors during close as those calls should never fail in
	// practice.
	return f.file.Close()
}

func (f *errorFile) Read(p []byte) (int, error) {
	if err := f.inj.MaybeError(OpFileRead, f.path); err != nil {
		return 0, err
	}
	return f.file.Read(p)
}

func (f *errorFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.inj.MaybeError(OpFileReadAt, f.path); err != nil {
		return 0, err
	}
	return f.file.ReadAt(p, off)
}

func (f *errorFile) Write(p []byte) (int, error) {
	if err := f.inj.MaybeError(OpFileWrite, f.path); err != nil {
		return 0, err
	}
	return f.file.Write(p)
}

func (f *errorFile) Stat() (os.FileInfo, error) {
	if err := f.inj.MaybeError(OpFileStat, f.path); err != nil {
		return nil, err
	}
	return f.file.Stat()
}

func (f *errorFile) Sync() error {
	if err := f.inj.MaybeError(OpFileSync, f.path); err != nil {
		return err
	}
	return f.file.Sync()
}
