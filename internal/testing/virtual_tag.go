// go-ndefwriter
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-ndefwriter.
//
// go-ndefwriter is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-ndefwriter is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ndefwriter; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package testing provides fakes for tests: an in-memory tag handle with
// call counters and fault injection, and a wire-level PN532 simulator
// holding a virtual NTAG.
package testing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
	"github.com/ZaparooProject/go-ndefwriter/pkg/ndef"
)

var (
	ErrTagAbsent       = errors.New("virtual tag: tag absent")
	ErrNotConnected    = errors.New("virtual tag: not connected")
	ErrCapacity        = errors.New("virtual tag: message exceeds capacity")
	ErrNoStoredMessage = errors.New("virtual tag: no message stored")
)

// VirtualTag is an in-memory tag handle. Fields set fault behavior and must
// be configured before the tag is used.
type VirtualTag struct {
	// ConnectErr, WriteErr and CloseErr are returned from the matching call
	// when non-nil.
	ConnectErr error
	WriteErr   error
	CloseErr   error

	// OnWrite, when set, runs inside WriteNDEF before the message is stored.
	OnWrite func(ctx context.Context) error

	uid    string
	stored []byte

	// Capacity limits the stored message size when positive.
	Capacity int

	connects int
	writes   int
	closes   int
	mu       syncutil.Mutex

	// ReadOnly makes IsWritable report false.
	ReadOnly bool
	// Absent makes Connect fail with ErrTagAbsent.
	Absent bool

	connected bool
}

// NewVirtualTag returns a writable, present tag with the given UID.
func NewVirtualTag(uid string) *VirtualTag {
	return &VirtualTag{uid: uid}
}

// UID returns the tag UID.
func (v *VirtualTag) UID() string {
	return v.uid
}

// Connect opens the virtual connection.
func (v *VirtualTag) Connect(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.connects++
	if v.Absent {
		return ErrTagAbsent
	}
	if v.ConnectErr != nil {
		return v.ConnectErr
	}
	v.connected = true
	return nil
}

// IsWritable reports whether the tag accepts writes.
func (v *VirtualTag) IsWritable() bool {
	return !v.ReadOnly
}

// WriteNDEF stores message, replacing any previous content.
func (v *VirtualTag) WriteNDEF(ctx context.Context, message []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.writes++
	if !v.connected {
		return ErrNotConnected
	}
	if v.OnWrite != nil {
		if err := v.OnWrite(ctx); err != nil {
			return err
		}
	}
	if v.WriteErr != nil {
		return v.WriteErr
	}
	if v.Capacity > 0 && len(message) > v.Capacity {
		return fmt.Errorf("%w: %d > %d bytes", ErrCapacity, len(message), v.Capacity)
	}

	v.stored = append([]byte(nil), message...)
	return nil
}

// Close releases the virtual connection.
func (v *VirtualTag) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closes++
	v.connected = false
	return v.CloseErr
}

// Calls returns how many times Connect, WriteNDEF and Close were called.
func (v *VirtualTag) Calls() (connects, writes, closes int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connects, v.writes, v.closes
}

// Connected reports whether a connection is currently open.
func (v *VirtualTag) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

// Stored returns a copy of the stored NDEF message bytes.
func (v *VirtualTag) Stored() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.stored...)
}

// StoredMessage decodes the stored NDEF message.
func (v *VirtualTag) StoredMessage() (*ndef.Message, error) {
	data := v.Stored()
	if len(data) == 0 {
		return nil, ErrNoStoredMessage
	}
	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("decode stored message: %w", err)
	}
	return msg, nil
}
