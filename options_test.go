// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nvram

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/storage"
	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
)

func TestOptionsEnsureDefaults(t *testing.T) {
	var o *Options
	o = o.EnsureDefaults()
	require.Equal(t, defaultMaxSpaces, o.MaxSpaces)
	require.Equal(t, defaultMaxSpaceSize, o.MaxSpaceSize)
	require.Equal(t, defaultMaxAuthSize, o.MaxAuthSize)
	require.Equal(t, DefaultLogger{}, o.Logger)

	o = (&Options{MaxSpaces: 4, MaxSpaceSize: -1}).EnsureDefaults()
	require.Equal(t, 4, o.MaxSpaces)
	require.Equal(t, defaultMaxSpaceSize, o.MaxSpaceSize)
}

func TestOptionsString(t *testing.T) {
	o := (&Options{MaxSpaces: 8, WipeStorageSupported: true}).EnsureDefaults()
	require.Equal(t, `[Options]
  max_spaces=8
  max_space_size=1024
  max_auth_size=32
  wipe_storage_supported=true
`, o.String())
}

func TestResultOf(t *testing.T) {
	testCases := []struct {
		err      error
		expected Result
	}{
		{nil, ResultSuccess},
		{errors.Wrap(ErrAccessDenied, "x"), ResultAccessDenied},
		{errors.Wrap(ErrInvalidParameter, "x"), ResultInvalidParameter},
		{errors.Wrap(ErrSpaceDoesNotExist, "x"), ResultSpaceDoesNotExist},
		{errors.Wrap(ErrSpaceAlreadyExists, "x"), ResultSpaceAlreadyExists},
		{errors.Wrap(ErrOperationDisabled, "x"), ResultOperationDisabled},
		{ErrInternal, ResultInternalError},
		{errors.New("unclassified"), ResultInternalError},
		{internalError(errors.Mark(errors.New("io"), storage.ErrNotFound), "loading"), ResultInternalError},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, ResultOf(tc.err), "%v", tc.err)
	}
}

func TestInternalErrorRetainsStorageMarks(t *testing.T) {
	err := internalError(errors.Mark(errors.New("disk on fire"), storage.ErrStorage), "storing header")
	require.True(t, errors.Is(err, ErrInternal))
	require.True(t, errors.Is(err, storage.ErrStorage))
	require.Equal(t, storage.StorageError, storage.StatusOf(err))
}

func TestResultString(t *testing.T) {
	require.Equal(t, "space-does-not-exist", ResultSpaceDoesNotExist.String())
	require.Equal(t, "internal-error", Result(100).String())
	require.Equal(t, "result operation-disabled", string(redact.Sprintf("result %s", ResultOperationDisabled).Redact()))
}

func TestControls(t *testing.T) {
	for c := ControlPersistentWriteLock; c <= ControlWriteExtend; c++ {
		parsed, err := ParseControl(c.String())
		require.NoError(t, err)
		require.Equal(t, c, parsed)
	}
	_, err := ParseControl("self-destruct")
	require.True(t, errors.Is(err, ErrInvalidParameter))
	require.Equal(t, "control(17)", Control(17).String())

	mask, err := controlMask([]Control{ControlWriteExtend, ControlBootReadLock, ControlBootReadLock})
	require.NoError(t, err)
	require.Equal(t, uint32(1<<3|1<<6), mask)
	require.Equal(t, []Control{ControlBootReadLock, ControlWriteExtend}, ControlList(mask))
	require.Equal(t, "boot-read-lock,write-extend", FormatControls(ControlList(mask)))

	_, err = controlMask([]Control{32})
	require.True(t, errors.Is(err, ErrInvalidParameter))
}
