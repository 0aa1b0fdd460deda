// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/nvram/internal/base"
	"github.com/cockroachdb/nvram/vfs"
	"github.com/cockroachdb/tokenbucket"
	"github.com/prometheus/client_golang/prometheus"
)

// Every object is stored in its own file as a single record:
//
//	+-------+---------+--------+---------+---------+----------+
//	| magic | version | length | payload | padding | checksum |
//	+-------+---------+--------+---------+---------+----------+
//	   4        4         4      length               8
//
// The fixed fields are little-endian. The checksum is the xxhash64 of all
// preceding bytes. Padding is zero and rounds the record up to a multiple of
// Options.BlockSize.
const (
	recordMagic    uint32 = 0x4d52564e // "NVRM"
	recordVersion  uint32 = 1
	recordHeader          = 12
	recordTrailer         = 8
	recordOverhead        = recordHeader + recordTrailer

	headerFilename = "HEADER"
	lockFilename   = "LOCK"
	tmpSuffix      = ".tmp"
	spacePrefix    = "SPACE-"
)

// Options holds the parameters of a FileStore.
type Options struct {
	// FS is the file system the store lives in. Defaults to vfs.Default.
	FS vfs.FS

	// BlockSize is the granularity of the medium. Records are padded to a
	// multiple of it and loaded blobs are rounded up to it. Zero disables
	// padding.
	BlockSize int

	// BytesPerSec bounds the rate at which record bytes are written, limiting
	// wear on the medium. Zero means unlimited.
	BytesPerSec int

	// FsyncLatency, if set, observes the latency of every file and directory
	// sync, in nanoseconds.
	FsyncLatency prometheus.Histogram

	// Logger is used to report stale temporary files found on open.
	Logger base.Logger
}

// EnsureDefaults ensures that the default values for all options are set if
// a valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	if o.BlockSize < 0 {
		o.BlockSize = 0
	}
	return o
}

// Metrics holds operation counters of a FileStore.
type Metrics struct {
	Loads          int64
	Stores         int64
	Deletes        int64
	Errors         int64
	BytesWritten   int64
	Syncs          int64
	StaleTmpFiles  int64
	PacingWaits    int64
	PacingDuration time.Duration
}

// String implements fmt.Stringer.
func (m Metrics) String() string {
	return fmt.Sprintf("loads=%d stores=%d deletes=%d errors=%d bytes-written=%d syncs=%d",
		m.Loads, m.Stores, m.Deletes, m.Errors, m.BytesWritten, m.Syncs)
}

// FileStore is a Storage keeping every object in its own file within a
// directory. Stores write a temporary file, sync it and rename it over the
// live file before syncing the directory, so a crash leaves either the old or
// the new record.
type FileStore struct {
	dirname string
	opts    Options
	lock    io.Closer

	mu struct {
		sync.Mutex
		closed  bool
		limiter tokenbucket.TokenBucket
		metrics Metrics
	}
}

var _ Storage = (*FileStore)(nil)

// Open opens the store in dirname, creating the directory if necessary. The
// directory is locked for the lifetime of the store. Temporary files left
// behind by an interrupted store are removed.
func Open(dirname string, opts *Options) (*FileStore, error) {
	opts = opts.EnsureDefaults()
	fs := opts.FS
	if err := fs.MkdirAll(dirname, 0755); err != nil {
		return nil, wrapStorageError(err, "creating %q", dirname)
	}
	lock, err := fs.Lock(fs.PathJoin(dirname, lockFilename))
	if err != nil {
		return nil, wrapStorageError(err, "locking %q", dirname)
	}
	s := &FileStore{dirname: dirname, opts: *opts, lock: lock}
	if r := opts.BytesPerSec; r > 0 {
		s.mu.limiter.Init(tokenbucket.TokensPerSecond(r), tokenbucket.Tokens(r))
	}
	if err := s.removeStaleTmpFiles(); err != nil {
		_ = lock.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) removeStaleTmpFiles() error {
	fs := s.opts.FS
	names, err := fs.List(s.dirname)
	if err != nil {
		return wrapStorageError(err, "listing %q", s.dirname)
	}
	removed := 0
	for _, name := range names {
		if !strings.HasSuffix(name, tmpSuffix) {
			continue
		}
		if err := fs.Remove(fs.PathJoin(s.dirname, name)); err != nil && !oserror.IsNotExist(err) {
			return wrapStorageError(err, "removing %q", name)
		}
		s.opts.Logger.Infof("removed stale temporary file %s", name)
		removed++
	}
	if removed > 0 {
		if err := s.syncDir(); err != nil {
			return err
		}
	}
	s.mu.metrics.StaleTmpFiles += int64(removed)
	return nil
}

// Dirname returns the directory of the store.
func (s *FileStore) Dirname() string { return s.dirname }

// Close releases the directory lock. The store must not be used afterwards.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.closed {
		return nil
	}
	s.mu.closed = true
	return s.lock.Close()
}

// Metrics returns a snapshot of the operation counters.
func (s *FileStore) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.metrics
}

// LoadHeader implements Storage.
func (s *FileStore) LoadHeader() ([]byte, error) {
	return s.load(headerFilename)
}

// StoreHeader implements Storage.
func (s *FileStore) StoreHeader(blob []byte) error {
	return s.store(headerFilename, blob)
}

// LoadSpace implements Storage.
func (s *FileStore) LoadSpace(index uint32) ([]byte, error) {
	return s.load(SpaceFilename(index))
}

// StoreSpace implements Storage.
func (s *FileStore) StoreSpace(index uint32, blob []byte) error {
	return s.store(SpaceFilename(index), blob)
}

// DeleteSpace implements Storage.
func (s *FileStore) DeleteSpace(index uint32) error {
	return s.remove(SpaceFilename(index))
}

// SpaceFilename returns the name of the file holding the given space.
func SpaceFilename(index uint32) string {
	return fmt.Sprintf("%s%08x", spacePrefix, index)
}

// ParseSpaceFilename returns the index of the space stored in the named file.
func ParseSpaceFilename(name string) (uint32, bool) {
	hex, ok := strings.CutPrefix(name, spacePrefix)
	if !ok || len(hex) != 8 {
		return 0, false
	}
	index, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(index), true
}

// Indices returns the indices of all spaces present in the store, in
// ascending order.
func (s *FileStore) Indices() ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.opts.FS.List(s.dirname)
	if err != nil {
		return nil, wrapStorageError(err, "listing %q", s.dirname)
	}
	var indices []uint32
	for _, name := range names {
		if index, ok := ParseSpaceFilename(name); ok {
			indices = append(indices, index)
		}
	}
	slices.Sort(indices)
	return indices, nil
}

func (s *FileStore) checkOpen() error {
	if s.mu.closed {
		return storageErrorf("store %q is closed", s.dirname)
	}
	return nil
}

func (s *FileStore) load(name string) (_ []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.countError(&err, ErrNotFound)
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.metrics.Loads++

	path := s.opts.FS.PathJoin(s.dirname, name)
	data, err := vfs.ReadFile(s.opts.FS, path)
	if err != nil {
		if oserror.IsNotExist(err) {
			return nil, notFoundf("%s not found", name)
		}
		return nil, wrapStorageError(err, "reading %s", name)
	}
	payload, err := decodeRecord(data)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s", name), ErrStorage)
	}
	return s.pad(payload), nil
}

// pad rounds the loaded payload up to the block size with zero bytes.
func (s *FileStore) pad(payload []byte) []byte {
	n := len(payload)
	if bs := s.opts.BlockSize; bs > 0 && n%bs != 0 {
		n += bs - n%bs
	}
	blob := make([]byte, n)
	copy(blob, payload)
	return blob
}

func (s *FileStore) store(name string, blob []byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.countError(&err, nil)
	if err := s.checkOpen(); err != nil {
		return err
	}

	fs := s.opts.FS
	record := encodeRecord(blob, s.opts.BlockSize)
	tmpPath := fs.PathJoin(s.dirname, name+tmpSuffix)
	path := fs.PathJoin(s.dirname, name)

	s.maybePace(len(record))
	if err := s.writeTmp(tmpPath, record); err != nil {
		_ = fs.Remove(tmpPath)
		return wrapStorageError(err, "writing %s", name)
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		_ = fs.Remove(tmpPath)
		return wrapStorageError(err, "renaming %s", name)
	}
	if err := s.syncDir(); err != nil {
		return err
	}
	s.mu.metrics.Stores++
	s.mu.metrics.BytesWritten += int64(len(record))
	return nil
}

func (s *FileStore) writeTmp(path string, record []byte) error {
	f, err := s.opts.FS.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(record); err != nil {
		_ = f.Close()
		return err
	}
	if err := s.timeSync(f.Sync); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *FileStore) remove(name string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.countError(&err, ErrNotFound)
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.opts.FS.Remove(s.opts.FS.PathJoin(s.dirname, name)); err != nil {
		if oserror.IsNotExist(err) {
			return notFoundf("%s not found", name)
		}
		return wrapStorageError(err, "removing %s", name)
	}
	if err := s.syncDir(); err != nil {
		return err
	}
	s.mu.metrics.Deletes++
	return nil
}

func (s *FileStore) syncDir() error {
	if err := s.timeSync(func() error { return vfs.SyncDir(s.opts.FS, s.dirname) }); err != nil {
		return wrapStorageError(err, "syncing %q", s.dirname)
	}
	return nil
}

func (s *FileStore) timeSync(sync func() error) error {
	start := time.Now()
	err := sync()
	if s.opts.FsyncLatency != nil {
		s.opts.FsyncLatency.Observe(float64(time.Since(start)))
	}
	s.mu.metrics.Syncs++
	return err
}

// maybePace waits until n bytes may be written.
func (s *FileStore) maybePace(n int) {
	if s.opts.BytesPerSec <= 0 {
		return
	}
	start := time.Now()
	waited := false
	for {
		ok, d := s.mu.limiter.TryToFulfill(tokenbucket.Tokens(n))
		if ok {
			break
		}
		waited = true
		time.Sleep(d)
	}
	if waited {
		s.mu.metrics.PacingWaits++
		s.mu.metrics.PacingDuration += time.Since(start)
	}
}

// countError counts *errp unless it is nil or marked with ignore.
func (s *FileStore) countError(errp *error, ignore error) {
	if *errp == nil || (ignore != nil && errors.Is(*errp, ignore)) {
		return
	}
	s.mu.metrics.Errors++
}

func encodeRecord(payload []byte, blockSize int) []byte {
	n := len(payload) + recordOverhead
	if blockSize > 0 && n%blockSize != 0 {
		n += blockSize - n%blockSize
	}
	buf := make([]byte, n)
	binary.LittleEndian.PutUint32(buf[0:4], recordMagic)
	binary.LittleEndian.PutUint32(buf[4:8], recordVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(payload)))
	copy(buf[recordHeader:], payload)
	binary.LittleEndian.PutUint64(buf[n-recordTrailer:], xxhash.Sum64(buf[:n-recordTrailer]))
	return buf
}

func decodeRecord(data []byte) ([]byte, error) {
	if len(data) < recordOverhead {
		return nil, base.CorruptionErrorf("record of %d bytes is too short", len(data))
	}
	body, trailer := data[:len(data)-recordTrailer], data[len(data)-recordTrailer:]
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != recordMagic {
		return nil, base.CorruptionErrorf("bad record magic %#08x", magic)
	}
	if sum, want := xxhash.Sum64(body), binary.LittleEndian.Uint64(trailer); sum != want {
		return nil, base.CorruptionErrorf("record checksum mismatch: %016x != %016x", sum, want)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != recordVersion {
		return nil, base.CorruptionErrorf("unsupported record version %d", v)
	}
	n := binary.LittleEndian.Uint32(data[8:12])
	if int64(n) > int64(len(body)-recordHeader) {
		return nil, base.CorruptionErrorf("record length %d exceeds %d byte body", n, len(body)-recordHeader)
	}
	return body[recordHeader : recordHeader+int(n)], nil
}
