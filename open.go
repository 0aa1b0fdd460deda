// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nvram

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/persistence"
	"github.com/cockroachdb/nvram/storage"
)

// initializeLocked loads the persistent state on first use. A failed
// initialization leaves the Manager uninitialized, so the next request
// retries it.
func (m *Manager) initializeLocked() error {
	if m.mu.initialized {
		return nil
	}
	if err := m.recoverLocked(); err != nil {
		m.opts.Logger.Errorf("initialization failed: %v", err)
		return err
	}
	m.mu.initialized = true
	return nil
}

// recoverLocked reads the header and resolves an interrupted creation or
// deletion. The in-memory state is only replaced once recovery succeeded.
func (m *Manager) recoverLocked() error {
	header, err := persistence.LoadHeader(m.storage)
	switch storage.StatusOf(err) {
	case storage.Success:
	case storage.NotFound:
		// Nothing was ever persisted.
		m.opts.Logger.Infof("no header found, starting with empty storage")
		m.mu.spaces = newSpaceMap(0)
		m.mu.disableCreate = false
		return nil
	default:
		return internalError(err, "loading header")
	}

	if header.Version > persistence.HeaderVersion {
		return errors.Mark(
			errors.Newf("header version %d is newer than the supported version %d",
				header.Version, persistence.HeaderVersion),
			ErrInternal)
	}

	// A provisional index refers to a space whose creation or deletion may
	// have been interrupted. Whether its data exists decides which.
	provisionalPresent := false
	if header.ProvisionalIndex != nil {
		index := *header.ProvisionalIndex
		_, err := persistence.LoadSpace(m.storage, index)
		switch storage.StatusOf(err) {
		case storage.Success:
			provisionalPresent = true
		case storage.NotFound:
		default:
			// The space data is there but unreadable. Keep the space so the
			// error surfaces on access instead of silently dropping it.
			m.opts.Logger.Errorf("failed to load provisional space %s: %v", storage.SpaceIndex(index), err)
			provisionalPresent = true
		}
	}

	indices := header.Indices()
	if len(indices) > m.opts.MaxSpaces {
		return errors.Mark(
			errors.Newf("header lists %d spaces, exceeding the maximum of %d", len(indices), m.opts.MaxSpaces),
			ErrInternal)
	}

	spaces := newSpaceMap(len(indices))
	deleteProvisional := header.ProvisionalIndex != nil
	for _, index := range indices {
		if header.ProvisionalIndex != nil && index == *header.ProvisionalIndex {
			if !provisionalPresent {
				// Creation was interrupted before the space data was written.
				continue
			}
			deleteProvisional = false
		}
		spaces.Put(index, &spaceState{index: index})
	}

	// A provisional index that is not retained is either a deletion that did
	// not finish removing the data, or a creation without data. Clean up the
	// former; the latter is a no-op.
	if deleteProvisional {
		index := *header.ProvisionalIndex
		err := persistence.DeleteSpace(m.storage, index)
		switch storage.StatusOf(err) {
		case storage.Success, storage.NotFound:
		default:
			return internalError(err, "deleting provisional space %s", storage.SpaceIndex(index))
		}
	}

	m.mu.spaces = spaces
	m.mu.disableCreate = header.HasFlag(persistence.HeaderFlagDisableCreate)

	// Clear the provisional index. Failing to do so is harmless since the
	// next initialization repeats the same recovery.
	if header.ProvisionalIndex != nil {
		if err := m.writeHeaderLocked(nil); err != nil {
			m.opts.Logger.Errorf("failed to clear provisional index: %v", err)
		}
	}
	return nil
}
