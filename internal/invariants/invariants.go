// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package invariants holds assertions that are only active when the module
// is built with the "invariants" or "race" build tags.
package invariants

import "github.com/cockroachdb/errors"

// Integer is a constraint that permits any integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Assertf panics with an assertion failure if cond is false and invariants
// are enabled.
func Assertf(cond bool, format string, args ...interface{}) {
	if Enabled && !cond {
		panic(errors.AssertionFailedf(format, args...))
	}
}

func boundsError(i, n int64) error {
	return errors.AssertionFailedf("index %d out of bounds [0, %d)", i, n)
}
