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

package pn532_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	virt "github.com/ZaparooProject/go-ndefwriter/internal/testing"
	"github.com/ZaparooProject/go-ndefwriter/pn532"
)

func newDevice(t *testing.T, sim *virt.VirtualPN532) *pn532.Device {
	t.Helper()
	device, err := pn532.New(virt.NewSimulatorTransport(sim), pn532.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Close() })
	return device
}

func TestNewRejectsNilTransport(t *testing.T) {
	t.Parallel()

	_, err := pn532.New(nil)
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := pn532.DefaultConfig()
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.NotEqual(t, byte(0xFF), cfg.PassiveRetries)
}

func TestDeviceInit(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	device := newDevice(t, sim)

	require.NoError(t, device.Init(context.Background()))
	assert.Equal(t,
		[]byte{virt.CmdGetFirmwareVersion, virt.CmdSAMConfiguration, virt.CmdRFConfiguration},
		sim.Commands())
}

func TestFirmwareVersion(t *testing.T) {
	t.Parallel()

	device := newDevice(t, virt.NewVirtualPN532())

	fw, err := device.FirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.6", fw.Version)
	assert.Equal(t, byte(0x32), fw.IC)
	assert.True(t, fw.SupportIso14443a)
	assert.True(t, fw.SupportIso14443b)
	assert.True(t, fw.SupportIso18092)
}

func TestInitFailsWhenReaderSilent(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	sim.Silence(true)
	device := newDevice(t, sim)

	err := device.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pn532.ErrNoACK)
}

func TestCorruptResponseIsReported(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	sim.CorruptNextResponse()
	device := newDevice(t, sim)

	_, err := device.FirmwareVersion(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pn532.ErrFrameCorrupted)
	assert.True(t, pn532.IsRetryable(err))

	var te *pn532.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "simulator", te.Port)
}

func TestDetectTag(t *testing.T) {
	t.Parallel()

	uid := []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	sim := virt.NewVirtualPN532()
	sim.PlaceTag(virt.NewVirtualNTAG213(virt.WithUID(uid)))
	device := newDevice(t, sim)

	tag, err := device.DetectTag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uid, tag.UID)
	assert.Equal(t, "04112233445566", tag.UIDString())
	assert.Equal(t, byte(0x00), tag.SAK)
	assert.Equal(t, []byte{0x00, 0x44}, tag.ATQ)
	assert.True(t, tag.IsNTAGCompatible())
}

func TestDetectTagEmptyField(t *testing.T) {
	t.Parallel()

	device := newDevice(t, virt.NewVirtualPN532())

	_, err := device.DetectTag(context.Background())
	require.ErrorIs(t, err, pn532.ErrNoTagDetected)
	assert.True(t, pn532.IsTagGone(err))
}

func TestWaitForTagCancelled(t *testing.T) {
	t.Parallel()

	device := newDevice(t, virt.NewVirtualPN532())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := device.WaitForTag(ctx, 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForTagFindsTag(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	device := newDevice(t, sim)
	ntag := virt.NewVirtualNTAG213()

	go func() {
		time.Sleep(20 * time.Millisecond)
		sim.PlaceTag(ntag)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tag, err := device.WaitForTag(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ntag.UID(), tag.UID)
}

func TestDataExchangeStatusError(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	device := newDevice(t, sim)

	// No tag in the field.
	_, err := device.DataExchange(context.Background(), []byte{0x30, 0x04})
	var pe *pn532.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, byte(virt.StatusTimeout), pe.Code)
	assert.Contains(t, pe.Error(), "timeout")
	assert.True(t, pn532.IsTagGone(err))
}

func TestCommandHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	device := newDevice(t, sim)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := device.FirmwareVersion(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sim.Commands())
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	err := &pn532.Error{Command: "InDataExchange", Code: 0x2B}
	assert.Equal(t, "InDataExchange error 0x2B (card disappeared)", err.Error())

	te := pn532.NewTransportError("read", "/dev/ttyUSB0", pn532.ErrTimeout)
	assert.Equal(t, "read /dev/ttyUSB0: operation timeout", te.Error())
	assert.True(t, errors.Is(te, pn532.ErrTimeout))
	assert.Equal(t, "write: NACK received", pn532.NewTransportError("write", "", pn532.ErrNACKReceived).Error())
}
