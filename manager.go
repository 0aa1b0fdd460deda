// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nvram

import (
	"crypto/sha256"
	"crypto/subtle"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/persistence"
	"github.com/cockroachdb/nvram/storage"
	"github.com/cockroachdb/swiss"
)

// spaceState is the transient state of an allocated space. It is lost on
// reboot.
type spaceState struct {
	index       uint32
	writeLocked bool
	readLocked  bool
}

// Manager serves requests on the spaces persisted in a storage.Storage. The
// persistent state is loaded lazily by the first request. A Manager is safe
// for concurrent use; requests are serialized.
//
// A new Manager over the same storage observes the persistent state of the
// previous one but none of its per-boot locks, which is how a reboot is
// modelled.
type Manager struct {
	opts    Options
	storage storage.Storage

	mu struct {
		sync.Mutex
		initialized   bool
		spaces        *swiss.Map[uint32, *spaceState]
		disableCreate bool
		disableWipe   bool
	}
}

// New returns a Manager over opts.Storage.
func New(opts *Options) *Manager {
	opts = opts.EnsureDefaults()
	if opts.Storage == nil {
		panic(errors.AssertionFailedf("nvram: Options.Storage is required"))
	}
	m := &Manager{opts: *opts, storage: opts.Storage}
	m.mu.spaces = newSpaceMap(0)
	return m
}

func newSpaceMap(n int) *swiss.Map[uint32, *spaceState] {
	spaces := &swiss.Map[uint32, *spaceState]{}
	spaces.Init(n)
	return spaces
}

// Info describes the state of the NVRAM.
type Info struct {
	TotalSize     uint64
	AvailableSize uint64
	MaxSpaceSize  uint64
	MaxSpaces     uint32
	// SpaceList holds the indices of all spaces in ascending order.
	SpaceList    []uint32
	WipeDisabled bool
}

// SpaceInfo describes a space.
type SpaceInfo struct {
	Size     uint64
	Controls []Control
	// ReadLocked is only reported for spaces with ControlBootReadLock.
	ReadLocked bool
	// WriteLocked is only reported for spaces with a write lock control.
	WriteLocked bool
}

// SpaceConfig holds the parameters of a space to create.
type SpaceConfig struct {
	Size               uint64
	Controls           []Control
	AuthorizationValue []byte
}

// spaceRecord joins the persistent and transient state of a space for the
// duration of a request.
type spaceRecord struct {
	persistent *persistence.Space
	transient  *spaceState
}

func (r *spaceRecord) hasControl(c Control) bool {
	return r.persistent.HasControl(uint(c))
}

// checkWriteAccess returns nil if a write with the given authorization value
// is permitted.
func (r *spaceRecord) checkWriteAccess(auth []byte) error {
	index := r.transient.index
	if r.hasControl(ControlPersistentWriteLock) {
		if r.persistent.HasFlag(persistence.SpaceFlagWriteLocked) {
			return errors.Wrapf(ErrOperationDisabled, "space %s is persistently write-locked", storage.SpaceIndex(index))
		}
	} else if r.hasControl(ControlBootWriteLock) && r.transient.writeLocked {
		return errors.Wrapf(ErrOperationDisabled, "space %s is write-locked until reboot", storage.SpaceIndex(index))
	}
	if r.hasControl(ControlWriteAuthorization) && !authorized(r.persistent.AuthorizationValue, auth) {
		return errors.Wrapf(ErrAccessDenied, "write access to space %s", storage.SpaceIndex(index))
	}
	return nil
}

// checkReadAccess returns nil if a read with the given authorization value is
// permitted.
func (r *spaceRecord) checkReadAccess(auth []byte) error {
	index := r.transient.index
	if r.hasControl(ControlBootReadLock) && r.transient.readLocked {
		return errors.Wrapf(ErrOperationDisabled, "space %s is read-locked until reboot", storage.SpaceIndex(index))
	}
	if r.hasControl(ControlReadAuthorization) && !authorized(r.persistent.AuthorizationValue, auth) {
		return errors.Wrapf(ErrAccessDenied, "read access to space %s", storage.SpaceIndex(index))
	}
	return nil
}

// authorized compares authorization values in constant time.
func authorized(want, got []byte) bool {
	return subtle.ConstantTimeCompare(want, got) == 1
}

// GetInfo returns the state of the NVRAM.
func (m *Manager) GetInfo() (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Infof("GetInfo")
	if err := m.initializeLocked(); err != nil {
		return Info{}, err
	}
	n := uint64(m.mu.spaces.Len())
	return Info{
		TotalSize:     uint64(m.opts.MaxSpaceSize) * uint64(m.opts.MaxSpaces),
		AvailableSize: uint64(m.opts.MaxSpaceSize) * (uint64(m.opts.MaxSpaces) - min(n, uint64(m.opts.MaxSpaces))),
		MaxSpaceSize:  uint64(m.opts.MaxSpaceSize),
		MaxSpaces:     uint32(m.opts.MaxSpaces),
		SpaceList:     m.indicesLocked(),
		WipeDisabled:  m.mu.disableWipe,
	}, nil
}

// CreateSpace creates a space with zeroed contents.
func (m *Manager) CreateSpace(index uint32, cfg SpaceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Infof("CreateSpace %s", storage.SpaceIndex(index))
	if err := m.initializeLocked(); err != nil {
		return err
	}

	if m.mu.disableCreate {
		return errors.Wrap(ErrOperationDisabled, "creation of further spaces is disabled")
	}
	if _, ok := m.mu.spaces.Get(index); ok {
		return errors.Wrapf(ErrSpaceAlreadyExists, "space %s", storage.SpaceIndex(index))
	}
	if m.mu.spaces.Len()+1 > m.opts.MaxSpaces {
		return errors.Wrapf(ErrInvalidParameter, "too many spaces")
	}
	if cfg.Size > uint64(m.opts.MaxSpaceSize) {
		return errors.Wrapf(ErrInvalidParameter, "size %d exceeds max space size %d", cfg.Size, m.opts.MaxSpaceSize)
	}
	if len(cfg.AuthorizationValue) > m.opts.MaxAuthSize {
		return errors.Wrapf(ErrInvalidParameter, "authorization value of %d bytes exceeds %d",
			len(cfg.AuthorizationValue), m.opts.MaxAuthSize)
	}
	controls, err := controlMask(cfg.Controls)
	if err != nil {
		return err
	}
	if controls&^supportedControls != 0 {
		return errors.Wrapf(ErrInvalidParameter, "unsupported controls %#x", controls&^supportedControls)
	}
	if controls&(1<<ControlPersistentWriteLock) != 0 && controls&(1<<ControlBootWriteLock) != 0 {
		return errors.Wrap(ErrInvalidParameter, "write lock controls are exclusive")
	}
	if controls&(1<<ControlWriteExtend) != 0 && cfg.Size != sha256.Size {
		return errors.Wrapf(ErrInvalidParameter, "write-extend space size must be %d", sha256.Size)
	}

	space := &persistence.Space{
		Controls: controls,
		Contents: make([]byte, cfg.Size),
	}
	if space.HasControl(uint(ControlWriteAuthorization)) || space.HasControl(uint(ControlReadAuthorization)) {
		space.AuthorizationValue = slices.Clone(cfg.AuthorizationValue)
	}

	// Write the header before the space data, so that every space present in
	// storage is listed in the header. A crash in between leaves the index
	// marked provisional without space data, which initialization discards.
	m.mu.spaces.Put(index, &spaceState{index: index})
	if err := m.writeHeaderLocked(&index); err != nil {
		m.mu.spaces.Delete(index)
		return err
	}
	if err := m.writeSpaceLocked(index, space); err != nil {
		m.mu.spaces.Delete(index)
		return err
	}
	return nil
}

// GetSpaceInfo returns information about a space.
func (m *Manager) GetSpaceInfo(index uint32) (SpaceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Infof("GetSpaceInfo %s", storage.SpaceIndex(index))
	if err := m.initializeLocked(); err != nil {
		return SpaceInfo{}, err
	}
	r, err := m.loadSpaceRecordLocked(index)
	if err != nil {
		return SpaceInfo{}, err
	}
	info := SpaceInfo{
		Size:     uint64(len(r.persistent.Contents)),
		Controls: ControlList(r.persistent.Controls),
	}
	if r.hasControl(ControlBootReadLock) {
		info.ReadLocked = r.transient.readLocked
	}
	if r.hasControl(ControlPersistentWriteLock) {
		info.WriteLocked = r.persistent.HasFlag(persistence.SpaceFlagWriteLocked)
	} else if r.hasControl(ControlBootWriteLock) {
		info.WriteLocked = r.transient.writeLocked
	}
	return info, nil
}

// DeleteSpace deletes a space. It requires write access.
func (m *Manager) DeleteSpace(index uint32, auth []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Infof("DeleteSpace %s", storage.SpaceIndex(index))
	if err := m.initializeLocked(); err != nil {
		return err
	}
	r, err := m.loadSpaceRecordLocked(index)
	if err != nil {
		return err
	}
	if err := r.checkWriteAccess(auth); err != nil {
		return err
	}

	// Remove the index from the header, marking it provisional, before
	// deleting the data. A crash in between leaves space data that is not
	// listed in the header, which initialization deletes.
	m.mu.spaces.Delete(index)
	if err := m.writeHeaderLocked(&index); err != nil {
		m.mu.spaces.Put(index, r.transient)
		return err
	}
	err = persistence.DeleteSpace(m.storage, index)
	switch storage.StatusOf(err) {
	case storage.Success:
		return nil
	case storage.NotFound:
		// The desired state is reached regardless.
		m.opts.Logger.Errorf("space %s data missing on deletion", storage.SpaceIndex(index))
		return nil
	default:
		m.opts.Logger.Errorf("failed to delete space %s data: %v", storage.SpaceIndex(index), err)
		m.mu.spaces.Put(index, r.transient)
		return internalError(err, "deleting space %s", storage.SpaceIndex(index))
	}
}

// DisableCreate permanently disables the creation of further spaces.
func (m *Manager) DisableCreate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Infof("DisableCreate")
	if err := m.initializeLocked(); err != nil {
		return err
	}
	prev := m.mu.disableCreate
	m.mu.disableCreate = true
	if err := m.writeHeaderLocked(nil); err != nil {
		m.mu.disableCreate = prev
		return err
	}
	return nil
}

// WriteSpace writes data to a space. Data shorter than the space is padded
// with zeros. For write-extend spaces the contents are replaced with the
// SHA-256 digest of the contents followed by data, truncated or zero-padded to
// the size of the space.
func (m *Manager) WriteSpace(index uint32, data, auth []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Infof("WriteSpace %s", storage.SpaceIndex(index))
	if err := m.initializeLocked(); err != nil {
		return err
	}
	r, err := m.loadSpaceRecordLocked(index)
	if err != nil {
		return err
	}
	if err := r.checkWriteAccess(auth); err != nil {
		return err
	}

	contents := r.persistent.Contents
	if r.hasControl(ControlWriteExtend) {
		h := sha256.New()
		h.Write(contents)
		h.Write(data)
		n := copy(contents, h.Sum(nil))
		clear(contents[n:])
	} else {
		if len(contents) < len(data) {
			return errors.Wrapf(ErrInvalidParameter, "%d bytes exceed space size %d", len(data), len(contents))
		}
		n := copy(contents, data)
		clear(contents[n:])
	}
	return m.writeSpaceLocked(index, r.persistent)
}

// ReadSpace returns the contents of a space.
func (m *Manager) ReadSpace(index uint32, auth []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Infof("ReadSpace %s", storage.SpaceIndex(index))
	if err := m.initializeLocked(); err != nil {
		return nil, err
	}
	r, err := m.loadSpaceRecordLocked(index)
	if err != nil {
		return nil, err
	}
	if err := r.checkReadAccess(auth); err != nil {
		return nil, err
	}
	return slices.Clone(r.persistent.Contents), nil
}

// LockSpaceWrite write-locks a space, persistently or until reboot depending
// on its controls.
func (m *Manager) LockSpaceWrite(index uint32, auth []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Infof("LockSpaceWrite %s", storage.SpaceIndex(index))
	if err := m.initializeLocked(); err != nil {
		return err
	}
	r, err := m.loadSpaceRecordLocked(index)
	if err != nil {
		return err
	}
	if err := r.checkWriteAccess(auth); err != nil {
		return err
	}
	switch {
	case r.hasControl(ControlPersistentWriteLock):
		r.persistent.SetFlag(persistence.SpaceFlagWriteLocked)
		return m.writeSpaceLocked(index, r.persistent)
	case r.hasControl(ControlBootWriteLock):
		r.transient.writeLocked = true
		return nil
	}
	m.opts.Logger.Errorf("space %s not configured for write locking", storage.SpaceIndex(index))
	return errors.Wrapf(ErrInvalidParameter, "space %s is not write-lockable", storage.SpaceIndex(index))
}

// LockSpaceRead read-locks a space until reboot.
func (m *Manager) LockSpaceRead(index uint32, auth []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Infof("LockSpaceRead %s", storage.SpaceIndex(index))
	if err := m.initializeLocked(); err != nil {
		return err
	}
	r, err := m.loadSpaceRecordLocked(index)
	if err != nil {
		return err
	}
	if err := r.checkReadAccess(auth); err != nil {
		return err
	}
	if r.hasControl(ControlBootReadLock) {
		r.transient.readLocked = true
		return nil
	}
	m.opts.Logger.Errorf("space %s not configured for read locking", storage.SpaceIndex(index))
	return errors.Wrapf(ErrInvalidParameter, "space %s is not read-lockable", storage.SpaceIndex(index))
}

// WipeStorage deletes all spaces. Space data is deleted before the header is
// cleared, so an interrupted wipe never leaves a clean header with space data
// remaining; spaces listed without data fail requests until the wipe is
// repeated.
func (m *Manager) WipeStorage() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Infof("WipeStorage")
	if err := m.initializeLocked(); err != nil {
		return err
	}
	if !m.opts.WipeStorageSupported {
		return errors.Wrap(ErrOperationDisabled, "wiping storage is not supported")
	}
	if m.mu.disableWipe {
		return errors.Wrap(ErrOperationDisabled, "wiping storage is disabled")
	}
	for _, index := range m.indicesLocked() {
		err := persistence.DeleteSpace(m.storage, index)
		switch storage.StatusOf(err) {
		case storage.Success:
		case storage.NotFound:
			// Left behind by an earlier, aborted wipe.
			m.opts.Logger.Infof("space %s data missing on wipe", storage.SpaceIndex(index))
		default:
			m.opts.Logger.Errorf("failed to wipe space %s data: %v", storage.SpaceIndex(index), err)
			return internalError(err, "wiping space %s", storage.SpaceIndex(index))
		}
	}
	m.mu.spaces = newSpaceMap(0)
	return m.writeHeaderLocked(nil)
}

// DisableWipe disables WipeStorage until reboot.
func (m *Manager) DisableWipe() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Infof("DisableWipe")
	if err := m.initializeLocked(); err != nil {
		return err
	}
	if !m.opts.WipeStorageSupported {
		return errors.Wrap(ErrOperationDisabled, "wiping storage is not supported")
	}
	m.mu.disableWipe = true
	return nil
}

// indicesLocked returns the allocated indices in ascending order.
func (m *Manager) indicesLocked() []uint32 {
	indices := make([]uint32, 0, m.mu.spaces.Len())
	m.mu.spaces.All(func(index uint32, _ *spaceState) bool {
		indices = append(indices, index)
		return true
	})
	slices.Sort(indices)
	return indices
}

// loadSpaceRecordLocked loads the persistent state of an allocated space.
func (m *Manager) loadSpaceRecordLocked(index uint32) (*spaceRecord, error) {
	transient, ok := m.mu.spaces.Get(index)
	if !ok {
		return nil, errors.Wrapf(ErrSpaceDoesNotExist, "space %s", storage.SpaceIndex(index))
	}
	space, err := persistence.LoadSpace(m.storage, index)
	switch storage.StatusOf(err) {
	case storage.Success:
		return &spaceRecord{persistent: space, transient: transient}, nil
	case storage.NotFound:
		m.opts.Logger.Errorf("space %s present in header, but data missing", storage.SpaceIndex(index))
		return nil, internalError(err, "loading space %s", storage.SpaceIndex(index))
	default:
		m.opts.Logger.Errorf("failed to load space %s data: %v", storage.SpaceIndex(index), err)
		return nil, internalError(err, "loading space %s", storage.SpaceIndex(index))
	}
}

// writeHeaderLocked persists the header reflecting the current spaces, with
// the given provisional index.
func (m *Manager) writeHeaderLocked(provisional *uint32) error {
	h := &persistence.Header{Version: persistence.HeaderVersion, ProvisionalIndex: provisional}
	if m.mu.disableCreate {
		h.SetFlag(persistence.HeaderFlagDisableCreate)
	}
	if err := h.SetIndices(m.indicesLocked()); err != nil {
		return internalError(err, "building header")
	}
	if err := persistence.StoreHeader(m.storage, h); err != nil {
		m.opts.Logger.Errorf("failed to store header: %v", err)
		return internalError(err, "storing header")
	}
	return nil
}

func (m *Manager) writeSpaceLocked(index uint32, space *persistence.Space) error {
	if err := persistence.StoreSpace(m.storage, index, space); err != nil {
		m.opts.Logger.Errorf("failed to store space %s: %v", storage.SpaceIndex(index), err)
		return internalError(err, "storing space %s", storage.SpaceIndex(index))
	}
	return nil
}
