// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nvram

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/cockroachdb/errors"
)

// Control is an access control setting of a space. A space's controls are
// fixed when the space is created.
type Control uint32

const (
	// ControlPersistentWriteLock allows the space to be write-locked
	// permanently.
	ControlPersistentWriteLock Control = 1
	// ControlBootWriteLock allows the space to be write-locked until the next
	// boot.
	ControlBootWriteLock Control = 2
	// ControlBootReadLock allows the space to be read-locked until the next
	// boot.
	ControlBootReadLock Control = 3
	// ControlWriteAuthorization requires the authorization value for writes.
	ControlWriteAuthorization Control = 4
	// ControlReadAuthorization requires the authorization value for reads.
	ControlReadAuthorization Control = 5
	// ControlWriteExtend makes every write replace the contents with the
	// SHA-256 digest of the contents followed by the written data.
	ControlWriteExtend Control = 6
)

const supportedControls = 1<<ControlPersistentWriteLock |
	1<<ControlBootWriteLock |
	1<<ControlBootReadLock |
	1<<ControlWriteAuthorization |
	1<<ControlReadAuthorization |
	1<<ControlWriteExtend

var controlNames = map[Control]string{
	ControlPersistentWriteLock: "persistent-write-lock",
	ControlBootWriteLock:       "boot-write-lock",
	ControlBootReadLock:        "boot-read-lock",
	ControlWriteAuthorization:  "write-authorization",
	ControlReadAuthorization:   "read-authorization",
	ControlWriteExtend:         "write-extend",
}

// String implements fmt.Stringer.
func (c Control) String() string {
	if name, ok := controlNames[c]; ok {
		return name
	}
	return fmt.Sprintf("control(%d)", uint32(c))
}

// SafeValue implements redact.SafeValue.
func (Control) SafeValue() {}

// ParseControl parses the name of a control as returned by String.
func ParseControl(s string) (Control, error) {
	for c, name := range controlNames {
		if name == s {
			return c, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidParameter, "unknown control %q", s)
}

// controlMask returns the bitmask of the given controls.
func controlMask(controls []Control) (uint32, error) {
	var mask uint32
	for _, c := range controls {
		if c >= 32 {
			return 0, errors.Wrapf(ErrInvalidParameter, "bad control %d", uint32(c))
		}
		mask |= 1 << c
	}
	return mask, nil
}

// ControlList returns the controls set in mask, in ascending order.
func ControlList(mask uint32) []Control {
	controls := make([]Control, 0, bits.OnesCount32(mask))
	for mask != 0 {
		c := bits.TrailingZeros32(mask)
		controls = append(controls, Control(c))
		mask &^= 1 << c
	}
	return controls
}

// FormatControls formats a list of controls as a comma separated list.
func FormatControls(controls []Control) string {
	names := make([]string, len(controls))
	for i, c := range controls {
		names[i] = c.String()
	}
	return strings.Join(names, ",")
}
