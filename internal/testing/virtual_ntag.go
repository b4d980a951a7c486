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

package testing

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
)

// NTAG command codes carried inside InDataExchange.
const (
	NTAGCmdRead  = 0x30
	NTAGCmdWrite = 0xA2
)

// NTAG213 memory layout.
const (
	NTAGPageSize      = 4
	NTAG213Pages      = 45
	NTAG213UserPages  = 36
	NTAGFirstUserPage = 4
	NTAGCCPage        = 3
)

var (
	errPageOutOfRange = errors.New("virtual ntag: page out of range")
	errPageLocked     = errors.New("virtual ntag: page locked")
)

// VirtualNTAG models the memory of an NTAG213 tag. It is not safe for
// concurrent use on its own; VirtualPN532 serializes access to it.
type VirtualNTAG struct {
	uid   []byte
	pages [][NTAGPageSize]byte

	writes int
	// RemoveAfterWrites makes the tag leave the field after that many
	// successful page writes when positive.
	RemoveAfterWrites int
	removed           bool
}

// NTAGOption configures a VirtualNTAG.
type NTAGOption func(*VirtualNTAG)

// WithUID sets a fixed 7 byte UID.
func WithUID(uid []byte) NTAGOption {
	return func(n *VirtualNTAG) {
		n.uid = append([]byte(nil), uid...)
	}
}

// WithReadOnlyCC marks the capability container access byte as read-only.
func WithReadOnlyCC() NTAGOption {
	return func(n *VirtualNTAG) {
		n.pages[NTAGCCPage][3] = 0x0F
	}
}

// WithBlankCC clears the capability container, as on an unformatted tag.
func WithBlankCC() NTAGOption {
	return func(n *VirtualNTAG) {
		n.pages[NTAGCCPage] = [NTAGPageSize]byte{}
	}
}

// WithRemoveAfterWrites makes the tag disappear after count page writes.
func WithRemoveAfterWrites(count int) NTAGOption {
	return func(n *VirtualNTAG) {
		n.RemoveAfterWrites = count
	}
}

// NewVirtualNTAG213 returns a formatted, empty NTAG213.
func NewVirtualNTAG213(opts ...NTAGOption) *VirtualNTAG {
	n := &VirtualNTAG{pages: make([][NTAGPageSize]byte, NTAG213Pages)}

	uid := make([]byte, 7)
	_, _ = rand.Read(uid)
	uid[0] = 0x04 // NXP manufacturer code
	n.uid = uid

	n.pages[NTAGCCPage] = [NTAGPageSize]byte{0xE1, 0x10, NTAG213UserPages * NTAGPageSize / 8, 0x00}
	// Empty NDEF TLV followed by the terminator.
	n.pages[NTAGFirstUserPage] = [NTAGPageSize]byte{0x03, 0x00, 0xFE, 0x00}

	for _, opt := range opts {
		opt(n)
	}
	n.writeUIDPages()
	return n
}

func (n *VirtualNTAG) writeUIDPages() {
	u := n.uid
	if len(u) < 7 {
		return
	}
	n.pages[0] = [NTAGPageSize]byte{u[0], u[1], u[2], 0x88 ^ u[0] ^ u[1] ^ u[2]}
	n.pages[1] = [NTAGPageSize]byte{u[3], u[4], u[5], u[6]}
	n.pages[2][0] = u[3] ^ u[4] ^ u[5] ^ u[6]
}

// UID returns a copy of the tag UID.
func (n *VirtualNTAG) UID() []byte {
	return append([]byte(nil), n.uid...)
}

// UIDString returns the UID as upper-case hex.
func (n *VirtualNTAG) UIDString() string {
	return strings.ToUpper(fmt.Sprintf("%x", n.uid))
}

// Present reports whether the tag is still in the field.
func (n *VirtualNTAG) Present() bool {
	return !n.removed
}

// Remove takes the tag out of the field.
func (n *VirtualNTAG) Remove() {
	n.removed = true
}

// Writes returns the number of successful page writes.
func (n *VirtualNTAG) Writes() int {
	return n.writes
}

// UserMemory returns a copy of the user data area.
func (n *VirtualNTAG) UserMemory() []byte {
	out := make([]byte, 0, NTAG213UserPages*NTAGPageSize)
	for p := NTAGFirstUserPage; p < NTAGFirstUserPage+NTAG213UserPages; p++ {
		out = append(out, n.pages[p][:]...)
	}
	return out
}

// Read returns four pages starting at page, wrapping at the end of memory.
func (n *VirtualNTAG) Read(page byte) ([]byte, error) {
	if int(page) >= len(n.pages) {
		return nil, fmt.Errorf("%w: %d", errPageOutOfRange, page)
	}
	out := make([]byte, 0, 4*NTAGPageSize)
	for i := 0; i < 4; i++ {
		p := (int(page) + i) % len(n.pages)
		out = append(out, n.pages[p][:]...)
	}
	return out, nil
}

// Write stores one page. UID pages and pages past user memory are rejected.
func (n *VirtualNTAG) Write(page byte, data []byte) error {
	if len(data) != NTAGPageSize {
		return fmt.Errorf("virtual ntag: write needs %d bytes, got %d", NTAGPageSize, len(data))
	}
	if page < NTAGCCPage || int(page) >= NTAGFirstUserPage+NTAG213UserPages {
		return fmt.Errorf("%w: %d", errPageLocked, page)
	}

	copy(n.pages[page][:], data)
	n.writes++
	if n.RemoveAfterWrites > 0 && n.writes >= n.RemoveAfterWrites {
		n.removed = true
	}
	return nil
}

// exchange runs an NTAG command and returns the tag reply.
func (n *VirtualNTAG) exchange(cmd []byte) ([]byte, error) {
	if len(cmd) == 0 {
		return nil, errors.New("virtual ntag: empty command")
	}
	switch cmd[0] {
	case NTAGCmdRead:
		if len(cmd) < 2 {
			return nil, errors.New("virtual ntag: READ without page")
		}
		return n.Read(cmd[1])
	case NTAGCmdWrite:
		if len(cmd) < 2+NTAGPageSize {
			return nil, errors.New("virtual ntag: short WRITE")
		}
		if err := n.Write(cmd[1], cmd[2:2+NTAGPageSize]); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("virtual ntag: unsupported command 0x%02X", cmd[0])
	}
}
