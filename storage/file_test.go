// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/internal/base"
	"github.com/cockroachdb/nvram/internal/testutils"
	"github.com/cockroachdb/nvram/vfs"
	"github.com/cockroachdb/nvram/vfs/errorfs"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T, fs vfs.FS, opts *Options) *FileStore {
	if opts == nil {
		opts = &Options{}
	}
	opts.FS = fs
	opts.Logger = testutils.Logger{T: t}
	return testutils.CheckErr(Open("nvram", opts))
}

func TestFileStore(t *testing.T) {
	s := openMem(t, vfs.NewMem(), nil)
	defer s.Close()
	datadriven.RunTest(t, "testdata/store", func(t *testing.T, td *datadriven.TestData) string {
		return runStoreCmd(t, s, td)
	})
}

func TestFileStoreLayout(t *testing.T) {
	fs := vfs.NewMem()
	s := openMem(t, fs, nil)
	defer s.Close()
	require.NoError(t, s.StoreHeader([]byte("h")))
	require.NoError(t, s.StoreSpace(0x1234, []byte("s")))
	require.NoError(t, s.StoreSpace(7, []byte("s")))

	names := testutils.CheckErr(fs.List("nvram"))
	require.Equal(t, []string{"HEADER", "LOCK", "SPACE-00000007", "SPACE-00001234"}, names)
	require.Equal(t, []uint32{7, 0x1234}, testutils.CheckErr(s.Indices()))
	require.Equal(t, "nvram", s.Dirname())

	index, ok := ParseSpaceFilename("SPACE-00001234")
	require.True(t, ok)
	require.Equal(t, uint32(0x1234), index)
	for _, name := range []string{"HEADER", "SPACE-1234", "SPACE-0000123g", "SPACE-00001234.tmp"} {
		_, ok := ParseSpaceFilename(name)
		require.False(t, ok, name)
	}
}

func TestFileStorePadding(t *testing.T) {
	fs := vfs.NewMem()
	s := openMem(t, fs, &Options{BlockSize: 16})
	defer s.Close()

	require.NoError(t, s.StoreSpace(1, []byte("hello")))
	blob := testutils.CheckErr(s.LoadSpace(1))
	require.Len(t, blob, 16)
	require.Equal(t, "hello", string(blob[:5]))
	require.Equal(t, make([]byte, 11), blob[5:])

	// 5 payload bytes plus 20 bytes of framing round up to 32.
	fi := testutils.CheckErr(fs.Stat("nvram/SPACE-00000001"))
	require.Equal(t, int64(32), fi.Size())

	// Blobs already aligned are not extended.
	require.NoError(t, s.StoreSpace(2, bytes.Repeat([]byte{1}, 32)))
	require.Len(t, testutils.CheckErr(s.LoadSpace(2)), 32)
}

func TestFileStoreCorruption(t *testing.T) {
	fs := vfs.NewMem()
	s := openMem(t, fs, nil)
	defer s.Close()
	require.NoError(t, s.StoreSpace(1, []byte("payload")))
	const path = "nvram/SPACE-00000001"
	orig := testutils.CheckErr(vfs.ReadFile(fs, path))

	testCases := map[string]func([]byte) []byte{
		"flipped-payload": func(b []byte) []byte { b[recordHeader] ^= 1; return b },
		"flipped-magic":   func(b []byte) []byte { b[0] ^= 1; return b },
		"truncated":       func(b []byte) []byte { return b[:len(b)-1] },
		"too-short":       func(b []byte) []byte { return b[:recordOverhead-1] },
		"empty":           func(b []byte) []byte { return nil },
		"bad-length": func(b []byte) []byte {
			// Claim a longer payload and fix up the checksum.
			b[8] = 0xff
			return encodeRaw(b)
		},
	}
	for name, corrupt := range testCases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, vfs.WriteFile(fs, path, corrupt(bytes.Clone(orig))))
			_, err := s.LoadSpace(1)
			require.Equal(t, StorageError, StatusOf(err), "%v", err)
			require.True(t, base.IsCorruptionError(err), "%v", err)
		})
	}
}

// encodeRaw recomputes the checksum of a record.
func encodeRaw(b []byte) []byte {
	n := len(b) - recordTrailer
	binary.LittleEndian.PutUint64(b[n:], xxhash.Sum64(b[:n]))
	return b
}

func TestFileStoreInjectedErrors(t *testing.T) {
	mem := vfs.NewMem()
	toggle := errorfs.NewToggle(errorfs.Always())
	s := openMem(t, errorfs.Wrap(mem, toggle), nil)
	defer s.Close()
	require.NoError(t, s.StoreSpace(1, []byte("v1")))

	for _, op := range []errorfs.Op{
		errorfs.OpCreate, errorfs.OpFileWrite, errorfs.OpFileSync, errorfs.OpRename, errorfs.OpOpenDir,
	} {
		t.Run(op.String(), func(t *testing.T) {
			inj := errorfs.NewToggle(errorfs.OnOp(op, errorfs.Always()))
			s := openMem(t, errorfs.Wrap(vfs.NewMem(), inj), nil)
			defer s.Close()
			require.NoError(t, s.StoreSpace(1, []byte("v1")))
			inj.On()
			err := s.StoreSpace(1, []byte("v2"))
			require.Equal(t, StorageError, StatusOf(err))
			require.True(t, errors.Is(err, errorfs.ErrInjected))
			inj.Off()
			blob, err := s.LoadSpace(1)
			require.NoError(t, err)
			// Only a failed directory sync can leave the new value in place.
			if op == errorfs.OpOpenDir {
				require.Contains(t, []string{"v1", "v2"}, string(blob))
			} else {
				require.Equal(t, "v1", string(blob))
			}
		})
	}

	// Read failures are ambiguous and never reported as a missing object.
	toggle.On()
	_, err := s.LoadSpace(1)
	require.Equal(t, StorageError, StatusOf(err))
	_, err = s.LoadSpace(2)
	require.Equal(t, StorageError, StatusOf(err))
	require.Equal(t, StorageError, StatusOf(s.DeleteSpace(1)))
	toggle.Off()
	_, err = s.LoadSpace(1)
	require.NoError(t, err)
	require.Equal(t, int64(3), s.Metrics().Errors)
}

// TestFileStoreCrash injects an error at every file system operation of a
// store and then simulates a crash. After recovery the object must hold its
// old or its new value, and the new value if the store succeeded.
func TestFileStoreCrash(t *testing.T) {
	oldValue, newValue := []byte("old value"), []byte("new value, longer than the old one")

	// Count the operations performed by a store.
	var counter errorfs.Counter
	var numOps int32
	{
		fs := vfs.NewMem()
		s := openMem(t, fs, nil)
		require.NoError(t, s.StoreSpace(5, oldValue))
		require.NoError(t, s.Close())
		s = openMem(t, errorfs.Wrap(fs, &counter), nil)
		before := counter.Load()
		require.NoError(t, s.StoreSpace(5, newValue))
		numOps = counter.Load() - before
		require.NoError(t, s.Close())
	}
	require.Greater(t, numOps, int32(4))

	for i := int32(0); i <= numOps; i++ {
		for _, unsynced := range []int{0, 50, 100} {
			t.Run(fmt.Sprintf("op=%d/unsynced=%d", i, unsynced), func(t *testing.T) {
				mem := vfs.NewCrashableMem()
				inj := errorfs.OnIndex(-1, errorfs.Always())
				s := openMem(t, errorfs.Wrap(mem, inj), nil)
				require.NoError(t, s.StoreSpace(5, oldValue))
				require.NoError(t, s.StoreSpace(6, []byte("neighbor")))

				inj.SetIndex(i)
				err := s.StoreSpace(5, newValue)

				crashed := mem.CrashClone(vfs.CrashCloneCfg{
					UnsyncedDataPercent: unsynced,
					RNG:                 rand.New(rand.NewPCG(uint64(i), uint64(unsynced))),
				})
				r := openMem(t, crashed, nil)
				defer r.Close()
				blob, loadErr := r.LoadSpace(5)
				require.NoError(t, loadErr)
				if err == nil {
					require.Equal(t, string(newValue), string(blob))
				} else {
					require.Contains(t, []string{string(oldValue), string(newValue)}, string(blob))
				}
				blob, loadErr = r.LoadSpace(6)
				require.NoError(t, loadErr)
				require.Equal(t, "neighbor", string(blob))

				names, listErr := crashed.List("nvram")
				require.NoError(t, listErr)
				for _, name := range names {
					require.NotContains(t, name, tmpSuffix)
				}
			})
		}
	}
}

func TestFileStoreDeleteCrash(t *testing.T) {
	mem := vfs.NewCrashableMem()
	s := openMem(t, mem, nil)
	require.NoError(t, s.StoreSpace(1, []byte("a")))
	require.NoError(t, s.DeleteSpace(1))
	r := openMem(t, mem.CrashClone(vfs.CrashCloneCfg{}), nil)
	defer r.Close()
	_, err := r.LoadSpace(1)
	require.True(t, IsNotFound(err), "%v", err)
}

func TestFileStoreLock(t *testing.T) {
	fs := vfs.NewMem()
	s := openMem(t, fs, nil)
	_, err := Open("nvram", &Options{FS: fs, Logger: base.NoopLogger{}})
	require.Error(t, err)
	require.Equal(t, StorageError, StatusOf(err))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, StorageError, StatusOf(s.StoreHeader(nil)))

	s = openMem(t, fs, nil)
	require.NoError(t, s.Close())
}

func TestFileStoreRemovesStaleTmpFiles(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, fs.MkdirAll("nvram", 0755))
	require.NoError(t, vfs.WriteFile(fs, "nvram/SPACE-00000001.tmp", []byte("partial")))
	require.NoError(t, vfs.WriteFile(fs, "nvram/HEADER.tmp", []byte("partial")))

	var log testutils.CaptureLogger
	s, err := Open("nvram", &Options{FS: fs, Logger: &log})
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, "info: removed stale temporary file HEADER.tmp\n"+
		"info: removed stale temporary file SPACE-00000001.tmp\n", log.Drain())
	require.Equal(t, int64(2), s.Metrics().StaleTmpFiles)
	_, err = s.LoadSpace(1)
	require.True(t, IsNotFound(err))
}

func TestFileStoreFsyncLatency(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fsync_latency",
		Buckets: prometheus.ExponentialBuckets(1, 10, 10),
	})
	s := openMem(t, vfs.NewMem(), &Options{FsyncLatency: hist})
	defer s.Close()
	require.NoError(t, s.StoreSpace(1, []byte("x")))
	require.NoError(t, s.DeleteSpace(1))

	metric := &dto.Metric{}
	require.NoError(t, hist.Write(metric))
	// File and directory sync for the store, directory sync for the delete.
	require.Equal(t, uint64(3), metric.GetHistogram().GetSampleCount())

	m := s.Metrics()
	require.Equal(t, int64(1), m.Stores)
	require.Equal(t, int64(1), m.Deletes)
	require.Equal(t, int64(3), m.Syncs)
	require.Equal(t, int64(recordOverhead+1), m.BytesWritten)
}

func TestFileStorePacing(t *testing.T) {
	s := openMem(t, vfs.NewMem(), &Options{BytesPerSec: 1 << 20})
	defer s.Close()
	for i := uint32(0); i < 4; i++ {
		require.NoError(t, s.StoreSpace(i, bytes.Repeat([]byte{byte(i)}, 1024)))
	}
	require.Equal(t, int64(4), s.Metrics().Stores)
}

func TestFileStoreNoCrossTalk(t *testing.T) {
	s := openMem(t, vfs.NewMem(), &Options{BlockSize: 8})
	defer s.Close()
	checkNoCrossTalk(t, s, 7, func(b []byte) []byte { return bytes.TrimRight(b, "\x00") })
}

func TestFileStoreConcurrent(t *testing.T) {
	defer leaktest.AfterTest(t)()
	s := openMem(t, vfs.NewMem(), nil)
	defer s.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(index uint32) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				want := fmt.Sprintf("%d-%d", index, i)
				if err := s.StoreSpace(index, []byte(want)); err != nil {
					t.Error(err)
					return
				}
				got, err := s.LoadSpace(index)
				if err != nil || string(got) != want {
					t.Errorf("index %d: got %q, %v; want %q", index, got, err, want)
					return
				}
			}
		}(uint32(w))
	}
	wg.Wait()
}

func TestFileStoreDefaultFS(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, &Options{Logger: testutils.Logger{T: t}, BlockSize: 512})
	require.NoError(t, err)
	require.NoError(t, s.StoreHeader([]byte("header")))
	require.NoError(t, s.StoreSpace(3, []byte("three")))
	require.NoError(t, s.Close())

	s, err = Open(dir, &Options{Logger: testutils.Logger{T: t}, BlockSize: 512})
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, dir, s.Dirname())
	h := testutils.CheckErr(s.LoadHeader())
	require.Len(t, h, 512)
	require.Equal(t, "header", string(bytes.TrimRight(h, "\x00")))
	require.NoError(t, s.DeleteSpace(3))
	require.True(t, IsNotFound(s.DeleteSpace(3)))
}
