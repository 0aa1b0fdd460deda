// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package persistence

import (
	"testing"

	"github.com/cockroachdb/nvram/internal/base"
	"github.com/cockroachdb/nvram/storage"
	"github.com/cockroachdb/nvram/vfs"
	"github.com/kr/pretty"
	"github.com/stretchr/testify/require"
)

func TestHeaderEncoding(t *testing.T) {
	h := &Header{Version: HeaderVersion, Flags: HeaderFlagDisableCreate}
	require.NoError(t, h.SetIndices([]uint32{5, 1}))
	blob, err := EncodeHeader(h)
	require.NoError(t, err)
	require.Equal(t, []byte{
		0x0f,                         // envelope length
		0x0d, 0x44, 0x48, 0x56, 0x4e, // object type "NVHD"
		0x12, 0x08, // header, 8 bytes
		0x08, 0x01, // version
		0x10, 0x01, // flags
		0x18, 0x01, 0x18, 0x05, // allocated indices, sorted
	}, blob)
}

func TestHeaderRoundTrip(t *testing.T) {
	s := storage.NewMem()
	_, err := LoadHeader(s)
	require.True(t, storage.IsNotFound(err))

	provisional := uint32(9)
	h := &Header{Version: HeaderVersion, ProvisionalIndex: &provisional}
	require.NoError(t, h.SetIndices([]uint32{3, 2, 1}))
	require.NoError(t, StoreHeader(s, h))

	got, err := LoadHeader(s)
	require.NoError(t, err)
	require.Equal(t, HeaderVersion, got.Version)
	require.False(t, got.HasFlag(HeaderFlagDisableCreate))
	require.Equal(t, []uint32{1, 2, 3}, got.Indices())
	require.NotNil(t, got.ProvisionalIndex)
	require.Equal(t, uint32(9), *got.ProvisionalIndex)

	got.SetFlag(HeaderFlagDisableCreate)
	got.ProvisionalIndex = nil
	require.NoError(t, StoreHeader(s, got))
	got, err = LoadHeader(s)
	require.NoError(t, err)
	require.True(t, got.HasFlag(HeaderFlagDisableCreate))
	require.Nil(t, got.ProvisionalIndex)
}

func TestSpaceRoundTrip(t *testing.T) {
	s := storage.NewMem()
	sp := &Space{
		Controls:           1<<1 | 1<<4,
		AuthorizationValue: []byte("secret"),
		Contents:           []byte{0, 1, 2, 3},
	}
	sp.SetFlag(SpaceFlagWriteLocked)
	require.NoError(t, StoreSpace(s, 7, sp))

	got, err := LoadSpace(s, 7)
	require.NoError(t, err)
	if diff := pretty.Diff(sp, got); diff != nil {
		t.Fatalf("space mismatch:\n%s", diff)
	}
	require.True(t, got.HasControl(1))
	require.False(t, got.HasControl(2))
	require.True(t, got.HasFlag(SpaceFlagWriteLocked))

	require.NoError(t, DeleteSpace(s, 7))
	_, err = LoadSpace(s, 7)
	require.True(t, storage.IsNotFound(err))
	require.True(t, storage.IsNotFound(DeleteSpace(s, 7)))
}

func TestPaddingTolerated(t *testing.T) {
	sp := &Space{Contents: []byte("abc")}
	blob, err := EncodeSpace(sp)
	require.NoError(t, err)
	padded := append(blob, make([]byte, 64)...)
	got, err := DecodeSpace(padded)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got.Contents))

	// The same holds for a store that pads to blocks.
	fs, err := storage.Open("nvram", &storage.Options{FS: vfs.NewMem(), BlockSize: 512, Logger: base.NoopLogger{}})
	require.NoError(t, err)
	defer fs.Close()
	require.NoError(t, StoreSpace(fs, 1, sp))
	got, err = LoadSpace(fs, 1)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got.Contents))
}

func TestObjectTypeMismatch(t *testing.T) {
	s := storage.NewMem()
	blob, err := EncodeSpace(&Space{Contents: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, s.StoreHeader(blob))
	_, err = LoadHeader(s)
	require.Equal(t, storage.StorageError, storage.StatusOf(err), "%v", err)
	require.True(t, base.IsCorruptionError(err))
	require.Contains(t, err.Error(), "object type mismatch: found space")

	blob, err = EncodeHeader(&Header{Version: HeaderVersion})
	require.NoError(t, err)
	require.NoError(t, s.StoreSpace(1, blob))
	_, err = LoadSpace(s, 1)
	require.Equal(t, storage.StorageError, storage.StatusOf(err))
}

func TestUndecodable(t *testing.T) {
	s := storage.NewMem()
	for _, blob := range [][]byte{
		nil,
		{0x05, 0x08},
		{0x02, 0x00, 0x00},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01},
	} {
		require.NoError(t, s.StoreSpace(1, blob))
		_, err := LoadSpace(s, 1)
		require.Equal(t, storage.StorageError, storage.StatusOf(err), "%x: %v", blob, err)
		require.False(t, storage.IsNotFound(err))
	}
}

func TestStorageErrorsPassThrough(t *testing.T) {
	s := storage.NewMem()
	s.SetHeaderWriteError(true)
	err := StoreHeader(s, &Header{Version: HeaderVersion})
	require.Equal(t, storage.StorageError, storage.StatusOf(err))
	s.SetSpaceWriteError(2, true)
	require.Equal(t, storage.StorageError, storage.StatusOf(StoreSpace(s, 2, &Space{})))
	require.Equal(t, storage.StorageError, storage.StatusOf(DeleteSpace(s, 2)))
}

func TestObjectTypeString(t *testing.T) {
	require.Equal(t, "header", ObjectTypeHeader.String())
	require.Equal(t, "space", ObjectTypeSpace.String())
	require.Equal(t, "unknown", ObjectType(0).String())
}
