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

package spi

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/spi"

	"github.com/ZaparooProject/go-ndefwriter/internal/frame"
	virt "github.com/ZaparooProject/go-ndefwriter/internal/testing"
	"github.com/ZaparooProject/go-ndefwriter/pn532"
)

var errBusFault = errors.New("bus fault")

// simConn is an spi.Conn backed by the wire simulator. It undoes the bit
// reversal on the way in and applies it on the way out.
type simConn struct {
	sim    *virt.VirtualPN532
	fail   error
	writes [][]byte
}

func newSimConn() *simConn {
	return &simConn{sim: virt.NewVirtualPN532()}
}

func (c *simConn) Tx(w, r []byte) error {
	if c.fail != nil {
		return c.fail
	}
	if len(w) == 0 {
		return nil
	}
	for i := range r {
		r[i] = 0
	}

	switch bits.Reverse8(w[0]) {
	case OpDataWrite:
		data := Reverse(w[1:])
		c.writes = append(c.writes, data)
		if _, err := c.sim.Write(data); err != nil {
			return fmt.Errorf("sim write: %w", err)
		}
	case OpStatusRead:
		if len(r) > 1 && c.sim.HasPendingResponse() {
			r[1] = bits.Reverse8(StatusReady)
		}
	case OpDataRead:
		if len(r) < 2 {
			return nil
		}
		data := make([]byte, len(r)-1)
		for off := 0; off < len(data); {
			n, err := c.sim.Read(data[off:])
			if err != nil {
				return fmt.Errorf("sim read: %w", err)
			}
			if n == 0 {
				break
			}
			off += n
		}
		copy(r[1:], Reverse(data))
	}
	return nil
}

func (*simConn) TxPackets([]spi.Packet) error { return nil }

func (*simConn) Duplex() conn.Duplex { return conn.Full }

func (*simConn) String() string { return "sim://spi" }

func (*simConn) Halt() error { return nil }

var _ spi.Conn = (*simConn)(nil)

func newSimTransport(t *testing.T) (*Transport, *simConn) {
	t.Helper()
	c := newSimConn()
	tr := NewWithConn(c, c.String())
	require.NoError(t, tr.SetTimeout(50*time.Millisecond))
	return tr, c
}

func TestReverse(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0x80, 0x40, 0xC0, 0xFF, 0x00}, Reverse([]byte{0x01, 0x02, 0x03, 0xFF, 0x00}))
}

func TestSendCommandFirmwareVersion(t *testing.T) {
	t.Parallel()

	tr, c := newSimTransport(t)

	resp, err := tr.SendCommand(context.Background(), virt.CmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, virt.FirmwareResponse, resp)

	want, err := frame.Command(virt.CmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, want, c.writes[0])
}

func TestCorruptedResponseIsNACKed(t *testing.T) {
	t.Parallel()

	tr, c := newSimTransport(t)
	c.sim.CorruptNextResponse()

	resp, err := tr.SendCommand(context.Background(), virt.CmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, virt.FirmwareResponse, resp)
	assert.Equal(t, frame.NACK, c.writes[len(c.writes)-1])
}

func TestNotReadyTimesOutAsNoACK(t *testing.T) {
	t.Parallel()

	tr, c := newSimTransport(t)
	c.sim.Silence(true)

	_, err := tr.SendCommand(context.Background(), virt.CmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, pn532.ErrNoACK)
}

func TestMissingACK(t *testing.T) {
	t.Parallel()

	tr, c := newSimTransport(t)
	c.sim.SkipACK(true)

	_, err := tr.SendCommand(context.Background(), virt.CmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, pn532.ErrNoACK)
}

func TestBusFault(t *testing.T) {
	t.Parallel()

	tr, c := newSimTransport(t)
	c.fail = errBusFault

	_, err := tr.SendCommand(context.Background(), virt.CmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, errBusFault)

	var te *pn532.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "write", te.Op)
	assert.Equal(t, "sim://spi", te.Port)
}

func TestUnknownCommandRejected(t *testing.T) {
	t.Parallel()

	tr, _ := newSimTransport(t)

	_, err := tr.SendCommand(context.Background(), 0x60, nil)
	require.ErrorIs(t, err, pn532.ErrCommandRejected)
}

func TestCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	tr, c := newSimTransport(t)
	require.NoError(t, tr.SetTimeout(time.Second))
	c.sim.Silence(true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := tr.SendCommand(ctx, virt.CmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, frame.ACK, c.writes[len(c.writes)-1])
}

func TestClose(t *testing.T) {
	t.Parallel()

	tr, _ := newSimTransport(t)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, pn532.TransportSPI, tr.Type())
	require.Error(t, tr.SetTimeout(0))

	_, err := tr.SendCommand(context.Background(), virt.CmdGetFirmwareVersion, nil)
	require.ErrorIs(t, err, pn532.ErrTransportClosed)
}

func TestNTAGWriteOverSPI(t *testing.T) {
	t.Parallel()

	tr, c := newSimTransport(t)
	ntag := virt.NewVirtualNTAG213()
	c.sim.PlaceTag(ntag)

	device, err := pn532.New(tr, pn532.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, device.Init(ctx))

	detected, err := device.DetectTag(ctx)
	require.NoError(t, err)
	tag := pn532.NewNTAGTag(device, detected)
	require.NoError(t, tag.Connect(ctx))
	require.NoError(t, tag.WriteNDEF(ctx, []byte{0xD1, 0x01, 0x05, 0x54, 0x02, 0x65, 0x6E, 0x48, 0x69}))
	require.NoError(t, tag.Close())

	assert.Equal(t, []byte{0x03, 0x09, 0xD1, 0x01}, ntag.UserMemory()[:4])
}
