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
	"bytes"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-ndefwriter/internal/frame"
	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
)

// PN532 command codes understood by the simulator.
const (
	CmdGetFirmwareVersion  = 0x02
	CmdSAMConfiguration    = 0x14
	CmdRFConfiguration     = 0x32
	CmdInDataExchange      = 0x40
	CmdInListPassiveTarget = 0x4A
	CmdInRelease           = 0x52
)

// PN532 status codes returned in InDataExchange responses.
const (
	StatusOK        = 0x00
	StatusTimeout   = 0x01
	StatusNTAGError = 0x14
	StatusNoTarget  = 0x27
)

// FirmwareResponse is the GetFirmwareVersion reply of a PN532 v1.6.
var FirmwareResponse = []byte{0x03, 0x32, 0x01, 0x06, 0x07}

// VirtualPN532 simulates a PN532 at the frame level. Bytes written by the
// host are parsed as command frames and the ACK plus response frames become
// readable. Read returns 0 bytes when nothing is pending, the way a serial
// port does on read timeout.
type VirtualPN532 struct {
	tag          *VirtualNTAG
	lastResponse []byte
	rx           []byte
	tx           bytes.Buffer
	commands     []byte
	mu           syncutil.Mutex
	closed       bool
	selected     bool
	corruptNext  bool
	skipACK      bool
	silent       bool
}

// NewVirtualPN532 returns a simulator with no tag in the field.
func NewVirtualPN532() *VirtualPN532 {
	return &VirtualPN532{}
}

// PlaceTag puts tag in the field, replacing any previous tag. nil removes it.
func (v *VirtualPN532) PlaceTag(tag *VirtualNTAG) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tag = tag
	v.selected = false
}

// CorruptNextResponse breaks the data checksum of the next response frame.
func (v *VirtualPN532) CorruptNextResponse() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.corruptNext = true
}

// SkipACK stops the simulator from acknowledging commands.
func (v *VirtualPN532) SkipACK(skip bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.skipACK = skip
}

// Silence makes the simulator ignore everything the host writes.
func (v *VirtualPN532) Silence(silent bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.silent = silent
}

// Commands returns the command codes received so far, in order.
func (v *VirtualPN532) Commands() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commands...)
}

// HasPendingResponse reports whether unread bytes are queued for the host.
func (v *VirtualPN532) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tx.Len() > 0
}

// Write accepts host bytes.
func (v *VirtualPN532) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, errors.New("virtual pn532: closed")
	}
	if v.silent {
		return len(p), nil
	}
	v.rx = append(v.rx, p...)
	v.process()
	return len(p), nil
}

// Read drains queued response bytes.
func (v *VirtualPN532) Read(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, errors.New("virtual pn532: closed")
	}
	if v.tx.Len() == 0 {
		return 0, nil
	}
	return v.tx.Read(p)
}

// Close shuts the simulator down.
func (v *VirtualPN532) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func (v *VirtualPN532) process() {
	for len(v.rx) > 0 {
		kind, data, n, err := frame.Parse(v.rx, frame.HostToPN532)
		if errors.Is(err, frame.ErrIncomplete) {
			// Keep a possible partial start code only.
			if !bytes.Contains(v.rx, []byte{0x00, 0xFF}) && len(v.rx) > 1 {
				v.rx = v.rx[len(v.rx)-1:]
			}
			return
		}
		v.rx = v.rx[n:]

		switch {
		case err != nil:
			// Corrupt host frame: the chip stays silent.
			continue
		case kind == frame.KindACK:
			continue
		case kind == frame.KindNACK:
			v.tx.Write(v.lastResponse)
			continue
		}
		if len(data) == 0 {
			continue
		}

		v.commands = append(v.commands, data[0])
		if !v.skipACK {
			v.tx.Write(frame.ACK)
		}
		v.respond(data[0], data[1:])
	}
}

func (v *VirtualPN532) respond(cmd byte, args []byte) {
	payload, ok := v.handle(cmd, args)

	var out []byte
	var err error
	if ok {
		out, err = frame.Encode(frame.PN532ToHost, append([]byte{cmd + 1}, payload...))
	} else {
		out, err = frame.Encode(frame.ErrorTFI, nil)
	}
	if err != nil {
		out, _ = frame.Encode(frame.ErrorTFI, nil)
	}

	// A NACK from the host gets the intact frame.
	v.lastResponse = out
	if v.corruptNext && len(out) > 2 {
		v.corruptNext = false
		out = append([]byte(nil), out...)
		out[len(out)-2] ^= 0xFF
	}
	v.tx.Write(out)
}

func (v *VirtualPN532) handle(cmd byte, args []byte) ([]byte, bool) {
	switch cmd {
	case CmdGetFirmwareVersion:
		return FirmwareResponse[1:], true
	case CmdSAMConfiguration, CmdRFConfiguration:
		return nil, true
	case CmdInListPassiveTarget:
		return v.listTarget(), true
	case CmdInDataExchange:
		return v.dataExchange(args), true
	case CmdInRelease:
		v.selected = false
		return []byte{StatusOK}, true
	default:
		return nil, false
	}
}

func (v *VirtualPN532) listTarget() []byte {
	if v.tag == nil || !v.tag.Present() {
		return []byte{0x00}
	}
	v.selected = true
	uid := v.tag.UID()
	out := []byte{0x01, 0x01, 0x00, 0x44, 0x00, byte(len(uid))}
	return append(out, uid...)
}

func (v *VirtualPN532) dataExchange(args []byte) []byte {
	if len(args) < 2 {
		return []byte{StatusNTAGError}
	}
	if v.tag == nil || !v.tag.Present() {
		return []byte{StatusTimeout}
	}
	if !v.selected {
		return []byte{StatusNoTarget}
	}

	reply, err := v.tag.exchange(args[1:])
	if err != nil {
		return []byte{StatusNTAGError}
	}
	return append([]byte{StatusOK}, reply...)
}

// String describes the simulator state for test failure output.
func (v *VirtualPN532) String() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	uid := "none"
	if v.tag != nil {
		uid = v.tag.UIDString()
	}
	return fmt.Sprintf("VirtualPN532{tag=%s selected=%t commands=%d}", uid, v.selected, len(v.commands))
}
