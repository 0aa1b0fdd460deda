// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package storage

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
)

// runStoreCmd executes a datadriven command against s.
func runStoreCmd(t *testing.T, s Storage, td *datadriven.TestData) string {
	index := func() uint32 {
		var arg string
		td.ScanArgs(t, "index", &arg)
		v, err := strconv.ParseUint(arg, 0, 32)
		require.NoError(t, err)
		return uint32(v)
	}
	result := func(blob []byte, err error) string {
		if err != nil {
			return StatusOf(err).String()
		}
		// Stores may pad; the test inputs never end in NUL bytes.
		blob = []byte(strings.TrimRight(string(blob), "\x00"))
		if len(blob) == 0 {
			return "<empty>"
		}
		return string(blob)
	}
	switch td.Cmd {
	case "load-header":
		return result(s.LoadHeader())
	case "store-header":
		return status(s.StoreHeader([]byte(td.Input)))
	case "load-space":
		return result(s.LoadSpace(index()))
	case "store-space":
		return status(s.StoreSpace(index(), []byte(td.Input)))
	case "delete-space":
		return status(s.DeleteSpace(index()))
	default:
		return fmt.Sprintf("unknown command: %s", td.Cmd)
	}
}

func status(err error) string {
	if err == nil {
		return "ok"
	}
	return StatusOf(err).String()
}

func TestMemStore(t *testing.T) {
	s := NewMem()
	datadriven.RunTest(t, "testdata/store", func(t *testing.T, td *datadriven.TestData) string {
		return runStoreCmd(t, s, td)
	})
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, Success, StatusOf(nil))
	require.Equal(t, NotFound, StatusOf(notFoundf("x")))
	require.Equal(t, NotFound, StatusOf(errors.Wrap(notFoundf("x"), "wrapped")))
	require.Equal(t, StorageError, StatusOf(storageErrorf("x")))
	// Anything unmarked is never mistaken for a missing object.
	require.Equal(t, StorageError, StatusOf(errors.New("unexpected")))
	require.True(t, IsNotFound(notFoundf("x")))
	require.False(t, IsNotFound(errors.New("x")))

	require.Equal(t, "success", Success.String())
	require.Equal(t, "not-found", NotFound.String())
	require.Equal(t, "storage-error", StorageError.String())
	require.Equal(t, "storage-error", Status(42).String())
	require.Equal(t, "0x0000002a", SpaceIndex(42).String())
	// Indices are safe and survive redaction.
	require.Equal(t, redact.RedactableString("space 0x0000002a"),
		redact.Sprintf("space %s", SpaceIndex(42)))
	require.Equal(t, "space 0x0000002a", redact.Sprintf("space %s", SpaceIndex(42)).Redact().StripMarkers())
}

func TestMemStoreCopies(t *testing.T) {
	s := NewMem()
	blob := []byte("abc")
	require.NoError(t, s.StoreSpace(1, blob))
	blob[0] = 'x'
	got, err := s.LoadSpace(1)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
	got[1] = 'y'
	got, err = s.LoadSpace(1)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}

func TestMemStoreWriteErrors(t *testing.T) {
	s := NewMem()
	require.NoError(t, s.StoreHeader([]byte("h1")))
	require.NoError(t, s.StoreSpace(1, []byte("s1")))

	s.SetHeaderWriteError(true)
	err := s.StoreHeader([]byte("h2"))
	require.Equal(t, StorageError, StatusOf(err))
	h, err := s.LoadHeader()
	require.NoError(t, err)
	require.Equal(t, "h1", string(h))
	s.SetHeaderWriteError(false)

	s.SetSpaceWriteError(1, true)
	require.Equal(t, StorageError, StatusOf(s.StoreSpace(1, []byte("s2"))))
	require.Equal(t, StorageError, StatusOf(s.DeleteSpace(1)))
	// Other spaces are unaffected.
	require.NoError(t, s.StoreSpace(2, []byte("t")))
	s.SetSpaceWriteError(1, false)
	b, err := s.LoadSpace(1)
	require.NoError(t, err)
	require.Equal(t, "s1", string(b))
	require.Equal(t, []uint32{1, 2}, s.Indices())

	stores, deletes := s.Counts()
	require.Equal(t, 3, stores)
	require.Equal(t, 0, deletes)

	s.Clear()
	require.Empty(t, s.Indices())
	_, err = s.LoadHeader()
	require.True(t, IsNotFound(err))
}

// checkNoCrossTalk applies a random sequence of operations to s and to a
// model, and checks after every operation that all objects match the model.
func checkNoCrossTalk(t *testing.T, s Storage, seed uint64, trim func([]byte) []byte) {
	rng := rand.New(rand.NewPCG(seed, seed))
	model := map[uint32][]byte{}
	const numIndices = 6
	check := func() {
		for i := uint32(0); i < numIndices; i++ {
			blob, err := s.LoadSpace(i)
			want, ok := model[i]
			if !ok {
				require.True(t, IsNotFound(err), "index %d: %v", i, err)
				continue
			}
			require.NoError(t, err)
			require.Equal(t, want, trim(blob), "index %d", i)
		}
	}
	for step := 0; step < 200; step++ {
		i := uint32(rng.IntN(numIndices))
		switch rng.IntN(3) {
		case 0, 1:
			blob := make([]byte, 1+rng.IntN(64))
			for j := range blob {
				blob[j] = byte('a' + rng.IntN(26))
			}
			require.NoError(t, s.StoreSpace(i, blob))
			model[i] = blob
		case 2:
			err := s.DeleteSpace(i)
			if _, ok := model[i]; ok {
				require.NoError(t, err)
				delete(model, i)
			} else {
				require.True(t, IsNotFound(err))
			}
		}
		check()
	}
}

func TestMemStoreNoCrossTalk(t *testing.T) {
	checkNoCrossTalk(t, NewMem(), 1, func(b []byte) []byte { return b })
}
