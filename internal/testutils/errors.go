// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package testutils

// CheckErr returns v, panicking if err is non-nil. It collapses the
// open-then-require pattern of store setup in tests:
//
//	s := testutils.CheckErr(storage.Open(dir, opts))
func CheckErr[V any](v V, err error) V {
	if err != nil {
		panic(err)
	}
	return v
}
