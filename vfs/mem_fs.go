// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"math/rand/v2"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
)

const sep = "/"

var errNotEmpty = oserror.ErrExist

// NewMem returns a new memory-backed FS implementation.
func NewMem() *MemFS {
	return &MemFS{root: newRootMemNode()}
}

// NewCrashableMem returns a memory-backed FS that supports CrashClone. Syncs
// record the synced state of files and directories, which CrashClone uses to
// construct the file system as it could look after a crash.
//
//	fs := vfs.NewCrashableMem()
//	s, _ := storage.Open("nvram", storage.Options{FS: fs})
//	// Store spaces.
//	crashed := fs.CrashClone(vfs.CrashCloneCfg{})
//	// Reopen against crashed; only synced data survives.
func NewCrashableMem() *MemFS {
	return &MemFS{root: newRootMemNode(), crashable: true}
}

// MemFS implements FS.
type MemFS struct {
	mu   sync.Mutex
	root *memNode

	// cloneMu blocks modifications while CrashClone runs. Only used when
	// crashable.
	cloneMu sync.RWMutex

	// lockedFiles holds the paths of held locks.
	lockedFiles sync.Map
	crashable   bool
}

var _ FS = (*MemFS)(nil)

// String dumps the contents of the MemFS: sizes and names, sorted.
func (y *MemFS) String() string {
	y.mu.Lock()
	defer y.mu.Unlock()

	s := new(bytes.Buffer)
	y.root.dump(s, 0, sep)
	return s.String()
}

// CrashCloneCfg configures a CrashClone call. The zero value yields a clone
// containing exactly the data that was last synced.
type CrashCloneCfg struct {
	// UnsyncedDataPercent is the probability that a data block or directory
	// entry that was not synced survives the crash.
	UnsyncedDataPercent int
	// RNG must be set if UnsyncedDataPercent > 0.
	RNG *rand.Rand
}

// CrashClone returns a new file system reflecting a possible state of y after
// a crash at this moment: everything synced, plus a random fraction of what
// was not, as controlled by cfg.
func (y *MemFS) CrashClone(cfg CrashCloneCfg) *MemFS {
	if !y.crashable {
		panic(errors.AssertionFailedf("nvram/vfs: CrashClone of a MemFS that is not crashable"))
	}
	y.cloneMu.Lock()
	defer y.cloneMu.Unlock()
	y.mu.Lock()
	defer y.mu.Unlock()
	return &MemFS{root: y.root.crashClone(&cfg), crashable: true}
}

func (y *MemFS) beginMutation() func() {
	if !y.crashable {
		return func() {}
	}
	y.cloneMu.RLock()
	return y.cloneMu.RUnlock
}

// walk calls f for each path fragment of fullname while holding y.mu. dir is
// the directory containing frag; final is set for the last fragment. A
// trailing separator yields a final call with an empty frag.
func (y *MemFS) walk(fullname string, f func(dir *memNode, frag string, final bool) error) error {
	y.mu.Lock()
	defer y.mu.Unlock()

	fullname = strings.TrimLeft(fullname, sep)
	if fullname == "." {
		fullname = ""
	}
	dir := y.root
	for {
		frag, remaining, found := strings.Cut(fullname, sep)
		remaining = strings.TrimLeft(remaining, sep)
		if err := f(dir, frag, !found); err != nil {
			return err
		}
		if !found {
			return nil
		}
		child := dir.children[frag]
		if child == nil {
			return &os.PathError{Op: "open", Path: fullname, Err: oserror.ErrNotExist}
		}
		if !child.isDir {
			return &os.PathError{Op: "open", Path: fullname, Err: errors.New("not a directory")}
		}
		dir, fullname = child, remaining
	}
}

// Create implements FS.Create.
func (y *MemFS) Create(fullname string) (File, error) {
	defer y.beginMutation()()
	var ret *memFile
	err := y.walk(fullname, func(dir *memNode, frag string, final bool) error {
		if final {
			if frag == "" {
				return errors.New("nvram/vfs: empty file name")
			}
			n := &memNode{}
			dir.children[frag] = n
			ret = &memFile{name: frag, n: n, fs: y, read: true, write: true}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ret.n.refs.Add(1)
	return ret, nil
}

func (y *MemFS) open(fullname string) (*memFile, error) {
	var ret *memFile
	err := y.walk(fullname, func(dir *memNode, frag string, final bool) error {
		if final {
			if frag == "" {
				ret = &memFile{name: sep, n: dir, fs: y}
				return nil
			}
			if n := dir.children[frag]; n != nil {
				ret = &memFile{name: frag, n: n, fs: y, read: true}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, &os.PathError{Op: "open", Path: fullname, Err: oserror.ErrNotExist}
	}
	ret.n.refs.Add(1)
	return ret, nil
}

// Open implements FS.Open.
func (y *MemFS) Open(fullname string) (File, error) {
	return y.open(fullname)
}

// OpenDir implements FS.OpenDir.
func (y *MemFS) OpenDir(fullname string) (File, error) {
	f, err := y.open(fullname)
	if err != nil {
		return nil, err
	}
	if !f.n.isDir {
		_ = f.Close()
		return nil, &os.PathError{Op: "open", Path: fullname, Err: errors.New("not a directory")}
	}
	return f, nil
}

// Remove implements FS.Remove.
func (y *MemFS) Remove(fullname string) error {
	defer y.beginMutation()()
	return y.walk(fullname, func(dir *memNode, frag string, final bool) error {
		if final {
			if frag == "" {
				return errors.New("nvram/vfs: empty file name")
			}
			child, ok := dir.children[frag]
			if !ok {
				return &os.PathError{Op: "remove", Path: fullname, Err: oserror.ErrNotExist}
			}
			if len(child.children) > 0 {
				return &os.PathError{Op: "remove", Path: fullname, Err: errNotEmpty}
			}
			delete(dir.children, frag)
		}
		return nil
	})
}

// Rename implements FS.Rename.
func (y *MemFS) Rename(oldname, newname string) error {
	defer y.beginMutation()()
	var n *memNode
	err := y.walk(oldname, func(dir *memNode, frag string, final bool) error {
		if final {
			if frag == "" {
				return errors.New("nvram/vfs: empty file name")
			}
			n = dir.children[frag]
			delete(dir.children, frag)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if n == nil {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: oserror.ErrNotExist}
	}
	return y.walk(newname, func(dir *memNode, frag string, final bool) error {
		if final {
			if frag == "" {
				return errors.New("nvram/vfs: empty file name")
			}
			dir.children[frag] = n
		}
		return nil
	})
}

// MkdirAll implements FS.MkdirAll.
func (y *MemFS) MkdirAll(dirname string, perm os.FileMode) error {
	defer y.beginMutation()()
	return y.walk(dirname, func(dir *memNode, frag string, final bool) error {
		if frag == "" {
			if final {
				return nil
			}
			return errors.New("nvram/vfs: empty file name")
		}
		child := dir.children[frag]
		if child == nil {
			dir.children[frag] = &memNode{children: make(map[string]*memNode), isDir: true}
			return nil
		}
		if !child.isDir {
			return &os.PathError{Op: "mkdir", Path: dirname, Err: errors.New("not a directory")}
		}
		return nil
	})
}

// Lock implements FS.Lock. Locks exclude other users of the same MemFS, which
// stands in for another process reopening the same directory.
func (y *MemFS) Lock(fullname string) (io.Closer, error) {
	if _, loaded := y.lockedFiles.Swap(fullname, nil); loaded {
		return nil, syscall.EAGAIN
	}
	f, err := y.Create(fullname)
	if err != nil {
		y.lockedFiles.Delete(fullname)
		return nil, err
	}
	return &memFileLock{y: y, f: f, fullname: fullname}, nil
}

// List implements FS.List.
func (y *MemFS) List(dirname string) ([]string, error) {
	if !strings.HasSuffix(dirname, sep) {
		dirname += sep
	}
	var ret []string
	err := y.walk(dirname, func(dir *memNode, frag string, final bool) error {
		if final {
			ret = slices.Sorted(maps.Keys(dir.children))
		}
		return nil
	})
	return ret, err
}

// Stat implements FS.Stat.
func (y *MemFS) Stat(name string) (os.FileInfo, error) {
	f, err := y.open(name)
	if err != nil {
		if pe, ok := err.(*os.PathError); ok {
			pe.Op = "stat"
		}
		return nil, err
	}
	defer f.Close()
	return f.Stat()
}

// PathBase implements FS.PathBase.
func (*MemFS) PathBase(p string) string {
	return path.Base(p)
}

// PathJoin implements FS.PathJoin.
func (*MemFS) PathJoin(elem ...string) string {
	return path.Join(elem...)
}

// memNode holds a file's data or a directory's children.
type memNode struct {
	isDir bool
	refs  atomic.Int32

	mu struct {
		sync.Mutex
		data       []byte
		syncedData []byte
		modTime    time.Time
	}

	// children and syncedChildren are protected by MemFS.mu.
	children       map[string]*memNode
	syncedChildren map[string]*memNode
}

func newRootMemNode() *memNode {
	return &memNode{children: make(map[string]*memNode), isDir: true}
}

func (f *memNode) dump(w *bytes.Buffer, level int, name string) {
	if f.isDir {
		w.WriteString("          ")
	} else {
		f.mu.Lock()
		fmt.Fprintf(w, "%8d  ", len(f.mu.data))
		f.mu.Unlock()
	}
	w.WriteString(strings.Repeat("  ", level))
	w.WriteString(name)
	if f.isDir && level > 0 {
		w.WriteString(sep)
	}
	w.WriteByte('\n')
	for _, child := range slices.Sorted(maps.Keys(f.children)) {
		f.children[child].dump(w, level+1, child)
	}
}

// crashClone returns the subtree rooted at f as it may exist after a crash.
func (f *memNode) crashClone(cfg *CrashCloneCfg) *memNode {
	survives := func() bool {
		return cfg.UnsyncedDataPercent > 0 && cfg.RNG.IntN(100) < cfg.UnsyncedDataPercent
	}
	n := &memNode{isDir: f.isDir}
	if f.isDir {
		n.children = maps.Clone(f.syncedChildren)
		if n.children == nil {
			n.children = make(map[string]*memNode)
		}
		for name, child := range f.children {
			if survives() {
				n.children[name] = child
			}
		}
		for name, child := range n.children {
			n.children[name] = child.crashClone(cfg)
		}
		n.syncedChildren = maps.Clone(n.children)
		return n
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n.mu.data = slices.Clone(f.mu.syncedData)
	n.mu.modTime = f.mu.modTime
	const blockSize = 4096
	for i := 0; i < len(f.mu.data); i += blockSize {
		if !survives() {
			continue
		}
		block := f.mu.data[i:min(i+blockSize, len(f.mu.data))]
		if grow := i + len(block) - len(n.mu.data); grow > 0 {
			n.mu.data = append(n.mu.data, make([]byte, grow)...)
		}
		copy(n.mu.data[i:], block)
	}
	n.mu.syncedData = slices.Clone(n.mu.data)
	return n
}

// memFile is a reader or writer of a node's data.
type memFile struct {
	name        string
	n           *memNode
	fs          *MemFS
	pos         int
	read, write bool
}

var _ File = (*memFile)(nil)

func (f *memFile) Close() error {
	if n := f.n.refs.Add(-1); n < 0 {
		panic(errors.AssertionFailedf("nvram/vfs: close of unopened file %s", f.name))
	}
	f.n = nil
	return nil
}

func (f *memFile) Read(p []byte) (int, error) {
	if !f.read {
		return 0, errors.New("nvram/vfs: file was not opened for reading")
	}
	if f.n.isDir {
		return 0, errors.New("nvram/vfs: cannot read a directory")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if f.pos >= len(f.n.mu.data) {
		return 0, io.EOF
	}
	n := copy(p, f.n.mu.data[f.pos:])
	f.pos += n
	return n, nil
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if !f.read {
		return 0, errors.New("nvram/vfs: file was not opened for reading")
	}
	if f.n.isDir {
		return 0, errors.New("nvram/vfs: cannot read a directory")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if off >= int64(len(f.n.mu.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.n.mu.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	defer f.fs.beginMutation()()
	if !f.write {
		return 0, errors.New("nvram/vfs: file was not created for writing")
	}
	if f.n.isDir {
		return 0, errors.New("nvram/vfs: cannot write a directory")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	f.n.mu.modTime = time.Now()
	if end := f.pos + len(p); end <= len(f.n.mu.data) {
		copy(f.n.mu.data[f.pos:end], p)
	} else {
		f.n.mu.data = append(f.n.mu.data[:f.pos], p...)
	}
	f.pos += len(p)
	return len(p), nil
}

func (f *memFile) Stat() (os.FileInfo, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	return &memFileInfo{
		name:    f.name,
		size:    int64(len(f.n.mu.data)),
		modTime: f.n.mu.modTime,
		isDir:   f.n.isDir,
	}, nil
}

func (f *memFile) Sync() error {
	if !f.fs.crashable {
		return nil
	}
	defer f.fs.beginMutation()()
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.n.isDir {
		f.n.syncedChildren = maps.Clone(f.n.children)
		return nil
	}
	f.n.mu.Lock()
	f.n.mu.syncedData = append(f.n.mu.syncedData[:0], f.n.mu.data...)
	f.n.mu.Unlock()
	return nil
}

// memFileInfo implements os.FileInfo for a memFile.
type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

var _ os.FileInfo = (*memFileInfo)(nil)

func (f *memFileInfo) Name() string       { return f.name }
func (f *memFileInfo) Size() int64        { return f.size }
func (f *memFileInfo) ModTime() time.Time { return f.modTime }
func (f *memFileInfo) IsDir() bool        { return f.isDir }
func (f *memFileInfo) Sys() interface{}   { return nil }

func (f *memFileInfo) Mode() os.FileMode {
	if f.isDir {
		return os.ModeDir | 0755
	}
	return 0644
}

type memFileLock struct {
	y        *MemFS
	f        File
	fullname string
}

func (l *memFileLock) Close() error {
	if l.y == nil {
		return nil
	}
	l.y.lockedFiles.Delete(l.fullname)
	l.y = nil
	return l.f.Close()
}
