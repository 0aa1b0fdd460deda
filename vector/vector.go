// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package vector implements a move-only growable array with an explicit
// capacity policy and fallible allocation.
//
// A Vector owns its backing array. Growth that exceeds the current capacity
// reallocates to the larger of twice the capacity and the requested size.
// Shrinking reallocates to an exact fit only when the new size drops below half
// the capacity. All allocations go through an Allocator, which may refuse a
// request; a refused allocation leaves the Vector exactly as it was.
package vector

import (
	"iter"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/internal/invariants"
)

// Destroyer is implemented by element types that must release resources when
// the element is removed from a Vector. Destroy is invoked exactly once for
// each element removed by Resize, Assign or Reset. Elements that are merely
// relocated to a new backing array are not destroyed.
type Destroyer interface {
	Destroy()
}

// Allocator provides backing arrays for a Vector. Alloc returns a zeroed slice
// of length n, or nil if the allocation cannot be satisfied. Free is handed
// every backing array the Vector no longer uses.
type Allocator[T any] interface {
	Alloc(n int) []T
	Free(v []T)
}

type heapAllocator[T any] struct{}

func (heapAllocator[T]) Alloc(n int) []T { return make([]T, n) }
func (heapAllocator[T]) Free([]T)        {}

// LimitAllocator returns an Allocator that refuses any request for more than
// max elements. It bounds the memory a Vector filled from untrusted input may
// consume.
func LimitAllocator[T any](max int) Allocator[T] {
	return limitAllocator[T]{max: max}
}

type limitAllocator[T any] struct {
	max int
}

func (a limitAllocator[T]) Alloc(n int) []T {
	if n > a.max {
		return nil
	}
	return make([]T, n)
}

func (limitAllocator[T]) Free([]T) {}

// noCopy may be embedded into structs which must not be copied after first
// use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Vector is a growable array of T. The zero value is an empty Vector using the
// heap allocator. A Vector must not be copied; use MoveFrom to transfer
// ownership.
type Vector[T any] struct {
	_     noCopy
	alloc Allocator[T]
	// buf is the backing array; len(buf) is the capacity.
	buf []T
	n   int
}

// SetAllocator configures the allocator used for subsequent reallocations. It
// may only be called on an empty Vector.
func (v *Vector[T]) SetAllocator(a Allocator[T]) {
	if v.buf != nil {
		panic(errors.AssertionFailedf("vector: SetAllocator on a non-empty vector"))
	}
	v.alloc = a
}

func (v *Vector[T]) allocator() Allocator[T] {
	if v.alloc == nil {
		return heapAllocator[T]{}
	}
	return v.alloc
}

// Len returns the number of elements.
func (v *Vector[T]) Len() int { return v.n }

// Cap returns the capacity of the backing array.
func (v *Vector[T]) Cap() int { return len(v.buf) }

// Slice returns the elements as a slice aliasing the backing array. The slice
// is invalidated by the next call that changes the size of v.
func (v *Vector[T]) Slice() []T { return v.buf[:v.n:v.n] }

// At returns the element at index i. It panics if i is out of range.
func (v *Vector[T]) At(i int) T {
	return *v.Ptr(i)
}

// Ptr returns a pointer to the element at index i. It panics if i is out of
// range.
func (v *Vector[T]) Ptr(i int) *T {
	if i < 0 || i >= v.n {
		panic(errors.AssertionFailedf("vector: index %d out of range [0, %d)", i, v.n))
	}
	return &v.buf[i]
}

// Set stores x at index i. It panics if i is out of range.
func (v *Vector[T]) Set(i int, x T) {
	*v.Ptr(i) = x
}

// All returns an iterator over the index and value of every element.
func (v *Vector[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i := 0; i < v.n; i++ {
			if !yield(i, v.buf[i]) {
				return
			}
		}
	}
}

// Resize changes the number of elements to n. New elements hold the zero
// value of T; removed elements are destroyed. Resize returns false if a
// required allocation fails, in which case v is unchanged.
func (v *Vector[T]) Resize(n int) bool {
	if n < 0 {
		panic(errors.AssertionFailedf("vector: negative size %d", n))
	}
	capacity := len(v.buf)
	switch {
	case n > capacity:
		return v.realloc(n, max(2*capacity, n))
	case n < capacity/2:
		return v.realloc(n, n)
	}
	if n < v.n {
		destroy(v.buf[n:v.n])
	}
	v.n = n
	v.checkInvariants()
	return true
}

// Append adds x to the end of v. It returns false if the required allocation
// fails, in which case v is unchanged.
func (v *Vector[T]) Append(x T) bool {
	if !v.Resize(v.n + 1) {
		return false
	}
	v.buf[v.n-1] = x
	return true
}

// Assign replaces the contents of v with a copy of src. The previous elements
// are destroyed. Assign returns false if the required allocation fails, in
// which case v is unchanged.
func (v *Vector[T]) Assign(src []T) bool {
	prev := v.n
	if !v.Resize(len(src)) {
		return false
	}
	destroy(v.buf[:min(prev, v.n)])
	copy(v.buf, src)
	return true
}

// Reset destroys all elements and releases the backing array.
func (v *Vector[T]) Reset() {
	destroy(v.buf[:v.n])
	if v.buf != nil {
		v.allocator().Free(v.buf)
	}
	v.buf, v.n = nil, 0
}

// MoveFrom transfers ownership of src's backing array and allocator to v,
// leaving src empty with zero capacity. The previous contents of v are
// destroyed.
func (v *Vector[T]) MoveFrom(src *Vector[T]) {
	if v == src {
		return
	}
	v.Reset()
	v.alloc, v.buf, v.n = src.alloc, src.buf, src.n
	src.buf, src.n = nil, 0
}

func (v *Vector[T]) realloc(n, capacity int) bool {
	var buf []T
	if capacity > 0 {
		buf = v.allocator().Alloc(capacity)
		if buf == nil {
			return false
		}
		if len(buf) != capacity {
			panic(errors.AssertionFailedf("vector: allocator returned %d elements, want %d", len(buf), capacity))
		}
	}
	keep := min(v.n, n)
	copy(buf, v.buf[:keep])
	clear(buf[keep:])
	if v.n > n {
		destroy(v.buf[n:v.n])
	}
	if v.buf != nil {
		// The surviving elements now live in buf; clear the old slots so the
		// allocator never sees references it does not own.
		clear(v.buf)
		v.allocator().Free(v.buf)
	}
	v.buf, v.n = buf, n
	v.checkInvariants()
	return true
}

func (v *Vector[T]) checkInvariants() {
	invariants.Assertf(v.n <= len(v.buf), "vector: size %d exceeds capacity %d", v.n, len(v.buf))
}

// destroy invokes Destroy on every element implementing Destroyer and resets
// the slots to the zero value.
func destroy[T any](s []T) {
	for i := range s {
		if d, ok := any(&s[i]).(Destroyer); ok {
			d.Destroy()
		}
	}
	clear(s)
}
