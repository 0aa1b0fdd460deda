// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nvram

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/cockroachdb/nvram/internal/testutils"
	"github.com/cockroachdb/nvram/storage"
	"github.com/cockroachdb/nvram/vfs"
	"github.com/cockroachdb/nvram/vfs/errorfs"
	"github.com/stretchr/testify/require"
)

func openFileStore(t *testing.T, fs vfs.FS) *storage.FileStore {
	s, err := storage.Open("nvram", &storage.Options{FS: fs, Logger: testutils.Logger{T: t}})
	require.NoError(t, err)
	return s
}

// countOps returns the number of file system operations performed by fn.
func countOps(t *testing.T, setup, fn func(m *Manager) error) int32 {
	var counter errorfs.Counter
	s := openFileStore(t, errorfs.Wrap(vfs.NewMem(), &counter))
	defer s.Close()
	m := newTestManager(t, s)
	require.NoError(t, setup(m))
	before := counter.Load()
	require.NoError(t, fn(m))
	return counter.Load() - before
}

// checkRecovered reopens crashed storage and checks that every space present
// in storage is listed by the recovered Manager.
func checkRecovered(t *testing.T, fs vfs.FS) (*Manager, Info) {
	s := openFileStore(t, fs)
	t.Cleanup(func() { _ = s.Close() })
	m := newTestManager(t, s)
	info, err := m.GetInfo()
	require.NoError(t, err)
	stored, err := s.Indices()
	require.NoError(t, err)
	for _, index := range stored {
		require.Contains(t, info.SpaceList, index)
	}
	contents, err := m.ReadSpace(1, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("base"), contents)
	return m, info
}

func setupBase(m *Manager) error {
	if err := m.CreateSpace(1, SpaceConfig{Size: 4}); err != nil {
		return err
	}
	return m.WriteSpace(1, []byte("base"), nil)
}

func runCrashTest(t *testing.T, fn func(m *Manager) error, check func(t *testing.T, m *Manager, info Info, err error)) {
	numOps := countOps(t, setupBase, fn)
	require.Greater(t, numOps, int32(0))

	for i := int32(0); i <= numOps; i++ {
		for _, unsynced := range []int{0, 100} {
			t.Run(fmt.Sprintf("op=%d/unsynced=%d", i, unsynced), func(t *testing.T) {
				mem := vfs.NewCrashableMem()
				inj := errorfs.OnIndex(-1, errorfs.Always())
				s := openFileStore(t, errorfs.Wrap(mem, inj))
				defer s.Close()
				m := newTestManager(t, s)
				require.NoError(t, setupBase(m))

				inj.SetIndex(i)
				err := fn(m)

				crashed := mem.CrashClone(vfs.CrashCloneCfg{
					UnsyncedDataPercent: unsynced,
					RNG:                 rand.New(rand.NewPCG(uint64(i), uint64(unsynced))),
				})
				recovered, info := checkRecovered(t, crashed)
				check(t, recovered, info, err)
			})
		}
	}
}

func TestCreateSpaceCrash(t *testing.T) {
	runCrashTest(t,
		func(m *Manager) error { return m.CreateSpace(2, SpaceConfig{Size: 8}) },
		func(t *testing.T, m *Manager, info Info, err error) {
			if err == nil {
				require.Contains(t, info.SpaceList, uint32(2))
			}
			if !slices.Contains(info.SpaceList, uint32(2)) {
				return
			}
			contents, readErr := m.ReadSpace(2, nil)
			require.NoError(t, readErr)
			require.Equal(t, make([]byte, 8), contents)
		})
}

func TestDeleteSpaceCrash(t *testing.T) {
	runCrashTest(t,
		func(m *Manager) error {
			if err := m.CreateSpace(2, SpaceConfig{Size: 3}); err != nil {
				return err
			}
			if err := m.WriteSpace(2, []byte("old"), nil); err != nil {
				return err
			}
			return m.DeleteSpace(2, nil)
		},
		func(t *testing.T, m *Manager, info Info, err error) {
			if err == nil {
				require.NotContains(t, info.SpaceList, uint32(2))
			}
			if !slices.Contains(info.SpaceList, uint32(2)) {
				_, infoErr := m.GetSpaceInfo(2)
				requireResult(t, ResultSpaceDoesNotExist, infoErr)
				return
			}
			// The space survived: its creation completed, its contents are
			// either zeroed or written.
			contents, readErr := m.ReadSpace(2, nil)
			require.NoError(t, readErr)
			require.Contains(t, []string{"\x00\x00\x00", "old"}, string(contents))
		})
}

func TestRecoveryOnFileStore(t *testing.T) {
	fs := vfs.NewMem()
	s := openFileStore(t, fs)
	m := newTestManager(t, s)
	require.NoError(t, m.CreateSpace(1, SpaceConfig{Size: 4, Controls: []Control{ControlPersistentWriteLock}}))
	require.NoError(t, m.WriteSpace(1, []byte("abcd"), nil))
	require.NoError(t, m.LockSpaceWrite(1, nil))
	require.NoError(t, m.DisableCreate())
	require.NoError(t, s.Close())

	s = openFileStore(t, fs)
	defer s.Close()
	m = newTestManager(t, s)
	requireContents(t, m, 1, []byte("abcd"))
	info, err := m.GetSpaceInfo(1)
	require.NoError(t, err)
	require.True(t, info.WriteLocked)
	requireResult(t, ResultOperationDisabled, m.CreateSpace(2, SpaceConfig{Size: 1}))
}
