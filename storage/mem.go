// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package storage

import (
	"slices"
	"sync"

	"github.com/cockroachdb/swiss"
)

// MemStore is an in-memory Storage. Every store is trivially atomic and
// durable for the lifetime of the process. Writes to individual objects can be
// made to fail, which exercises the error paths of callers.
type MemStore struct {
	mu struct {
		sync.Mutex
		header      []byte
		hasHeader   bool
		spaces      swiss.Map[uint32, []byte]
		headerFail  bool
		spaceFail   map[uint32]struct{}
		storeCount  int
		deleteCount int
	}
}

var _ Storage = (*MemStore)(nil)

// NewMem returns an empty MemStore.
func NewMem() *MemStore {
	m := &MemStore{}
	m.mu.spaces.Init(16)
	m.mu.spaceFail = make(map[uint32]struct{})
	return m
}

// LoadHeader implements Storage.
func (m *MemStore) LoadHeader() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mu.hasHeader {
		return nil, notFoundf("header not found")
	}
	return slices.Clone(m.mu.header), nil
}

// StoreHeader implements Storage.
func (m *MemStore) StoreHeader(blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mu.headerFail {
		return storageErrorf("header write failed")
	}
	m.mu.header = slices.Clone(blob)
	m.mu.hasHeader = true
	m.mu.storeCount++
	return nil
}

// LoadSpace implements Storage.
func (m *MemStore) LoadSpace(index uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.mu.spaces.Get(index)
	if !ok {
		return nil, notFoundf("space %s not found", SpaceIndex(index))
	}
	return slices.Clone(blob), nil
}

// StoreSpace implements Storage.
func (m *MemStore) StoreSpace(index uint32, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, fail := m.mu.spaceFail[index]; fail {
		return storageErrorf("space %s write failed", SpaceIndex(index))
	}
	// A nil blob is a valid, empty value; keep it distinguishable from absence.
	m.mu.spaces.Put(index, append(make([]byte, 0, len(blob)), blob...))
	m.mu.storeCount++
	return nil
}

// DeleteSpace implements Storage.
func (m *MemStore) DeleteSpace(index uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, fail := m.mu.spaceFail[index]; fail {
		return storageErrorf("space %s delete failed", SpaceIndex(index))
	}
	if _, ok := m.mu.spaces.Get(index); !ok {
		return notFoundf("space %s not found", SpaceIndex(index))
	}
	m.mu.spaces.Delete(index)
	m.mu.deleteCount++
	return nil
}

// SetHeaderWriteError configures whether header stores fail.
func (m *MemStore) SetHeaderWriteError(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mu.headerFail = fail
}

// SetSpaceWriteError configures whether stores and deletes of the given space
// fail.
func (m *MemStore) SetSpaceWriteError(index uint32, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fail {
		m.mu.spaceFail[index] = struct{}{}
	} else {
		delete(m.mu.spaceFail, index)
	}
}

// Indices returns the indices of all stored spaces in ascending order.
func (m *MemStore) Indices() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	indices := make([]uint32, 0, m.mu.spaces.Len())
	m.mu.spaces.All(func(index uint32, _ []byte) bool {
		indices = append(indices, index)
		return true
	})
	slices.Sort(indices)
	return indices
}

// Counts returns the number of successful stores and deletes.
func (m *MemStore) Counts() (stores, deletes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mu.storeCount, m.mu.deleteCount
}

// Clear removes all objects and resets error injection.
func (m *MemStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mu.header = nil
	m.mu.hasHeader = false
	var indices []uint32
	m.mu.spaces.All(func(index uint32, _ []byte) bool {
		indices = append(indices, index)
		return true
	})
	for _, index := range indices {
		m.mu.spaces.Delete(index)
	}
	clear(m.mu.spaceFail)
	m.mu.headerFail = false
}
