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

package pn532

import (
	"context"
	"fmt"
	"time"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
	"github.com/ZaparooProject/go-ndefwriter/pkg/ndef"
)

// NTAG commands.
const (
	ntagCmdRead  = 0x30
	ntagCmdWrite = 0xA2
)

const (
	ntagPageSize      = 4
	ntagCCPage        = 3
	ntagFirstUserPage = 4
	ccMagic           = 0xE1
	releaseTimeout    = time.Second
)

// NTAGTag is a Type 2 tag (NTAG21x, Ultralight) reached through a Device.
// It implements ndefwriter.Tag.
type NTAGTag struct {
	device    *Device
	detected  *DetectedTag
	cc        [ntagPageSize]byte
	mu        syncutil.Mutex
	connected bool
	released  bool
}

var _ ndefwriter.Tag = (*NTAGTag)(nil)

// NewNTAGTag wraps a detected target.
func NewNTAGTag(device *Device, detected *DetectedTag) *NTAGTag {
	return &NTAGTag{device: device, detected: detected}
}

// UID returns the tag UID as upper-case hex.
func (t *NTAGTag) UID() string {
	return t.detected.UIDString()
}

// Connect reads the Capability Container. The tag must carry the NDEF
// magic; blank tags are not formatted.
func (t *NTAGTag) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.detected.IsNTAGCompatible() {
		return fmt.Errorf("%w: SAK 0x%02X, UID length %d",
			ErrUnsupportedTag, t.detected.SAK, len(t.detected.UID))
	}

	data, err := t.readPages(ctx, ntagCCPage)
	if err != nil {
		return fmt.Errorf("read capability container: %w", err)
	}
	copy(t.cc[:], data[:ntagPageSize])
	if t.cc[0] != ccMagic {
		return fmt.Errorf("%w: CC % X", ErrNotNDEFFormatted, t.cc)
	}

	t.connected = true
	t.released = false
	ndefwriter.Debugf("NTAG %s connected, CC % X, %d bytes", t.UID(), t.cc, t.capacity())
	return nil
}

// IsWritable reports whether the CC grants write access. It is false until
// Connect succeeds.
func (t *NTAGTag) IsWritable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && t.cc[3]&0x0F == 0x00
}

// Capacity returns the NDEF data area size from the CC, in bytes.
func (t *NTAGTag) Capacity() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity()
}

func (t *NTAGTag) capacity() int {
	return int(t.cc[2]) * 8
}

// WriteNDEF stores message in an NDEF message TLV at the start of user
// memory. Capacity is checked before the first page is written.
func (t *NTAGTag) WriteNDEF(ctx context.Context, message []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return ErrNotConnected
	}

	data, err := ndef.WrapTLV(message)
	if err != nil {
		return fmt.Errorf("wrap NDEF TLV: %w", err)
	}
	if limit := t.capacity(); len(data) > limit {
		return fmt.Errorf("%w: %d bytes, tag holds %d", ErrCapacityExceeded, len(data), limit)
	}

	for off := 0; off < len(data); off += ntagPageSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		var block [ntagPageSize]byte
		copy(block[:], data[off:])
		page := byte(ntagFirstUserPage + off/ntagPageSize)
		if err := t.writePage(ctx, page, block); err != nil {
			return fmt.Errorf("write page %d: %w", page, err)
		}
	}

	ndefwriter.Debugf("NTAG %s: wrote %d bytes", t.UID(), len(data))
	return nil
}

// ReadNDEF returns the NDEF message stored in user memory.
func (t *NTAGTag) ReadNDEF(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil, ErrNotConnected
	}

	limit := t.capacity()
	buf := make([]byte, 0, limit+16)
	for page := ntagFirstUserPage; len(buf) < limit; page += 4 {
		data, err := t.readPages(ctx, byte(page))
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", page, err)
		}
		buf = append(buf, data...)

		// Stop once the TLV area parses.
		if msg, err := ndef.FindNDEF(buf); err == nil {
			return msg, nil
		}
	}
	msg, err := ndef.FindNDEF(buf[:limit])
	if err != nil {
		return nil, fmt.Errorf("locate NDEF TLV: %w", err)
	}
	return msg, nil
}

// Close releases the target. It is safe after a failed Connect and when
// called more than once.
func (t *NTAGTag) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return nil
	}
	t.released = true
	t.connected = false

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := t.device.Release(ctx); err != nil {
		return fmt.Errorf("release target: %w", err)
	}
	return nil
}

func (t *NTAGTag) readPages(ctx context.Context, page byte) ([]byte, error) {
	data, err := t.device.DataExchange(ctx, []byte{ntagCmdRead, page})
	if err != nil {
		return nil, err
	}
	if len(data) < 4*ntagPageSize {
		return nil, fmt.Errorf("%w: READ returned %d bytes", ErrInvalidResponse, len(data))
	}
	return data[:4*ntagPageSize], nil
}

func (t *NTAGTag) writePage(ctx context.Context, page byte, block [ntagPageSize]byte) error {
	_, err := t.device.DataExchange(ctx, []byte{ntagCmdWrite, page, block[0], block[1], block[2], block[3]})
	return err
}
