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

// Package uart talks to a PN532 over a serial port (HSU mode).
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
	"github.com/ZaparooProject/go-ndefwriter/internal/frame"
	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
	"github.com/ZaparooProject/go-ndefwriter/pn532"
)

const (
	baudRate       = 115200
	readTimeout    = 50 * time.Millisecond
	defaultTimeout = time.Second
	idleDelay      = time.Millisecond
	maxNACKs       = 2
)

// wakeSequence brings the PN532 out of low-power mode: 0x55 followed by
// enough zeros to cover the wake-up delay.
var wakeSequence = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Port is the part of serial.Port the transport uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(timeout time.Duration) error
	ResetInputBuffer() error
}

// Transport implements pn532.Transport over a serial port.
type Transport struct {
	port     Port
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
	awake    bool
}

var _ pn532.Transport = (*Transport)(nil)

// New opens portName at 115200 8N1.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := NewWithPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort wraps an already open port.
func NewWithPort(port Port, portName string) (*Transport, error) {
	if err := port.SetReadTimeout(readTimeout); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	return &Transport{port: port, portName: portName, timeout: defaultTimeout}, nil
}

// Ports lists serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// SendCommand sends one command frame and returns the response payload.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, pn532.NewTransportError("send", t.portName, pn532.ErrTransportClosed)
	}

	out, err := frame.Command(cmd, args)
	if err != nil {
		return nil, fmt.Errorf("build command 0x%02X: %w", cmd, err)
	}

	if !t.awake {
		if err := t.wakeUp(); err != nil {
			return nil, err
		}
		t.awake = true
	}

	resp, err := t.exchange(ctx, out)
	if err != nil {
		if ctx.Err() != nil {
			t.abort()
		}
		return nil, err
	}
	return resp, nil
}

// SetTimeout sets how long a command may take from write to response.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timeout <= 0 {
		return fmt.Errorf("invalid UART timeout %v", timeout)
	}
	t.timeout = timeout
	return nil
}

// Close closes the serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return pn532.NewTransportError("close", t.portName, err)
	}
	return nil
}

// Type returns pn532.TransportUART.
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportUART
}

func (t *Transport) wakeUp() error {
	n, err := t.port.Write(wakeSequence)
	if err != nil {
		return pn532.NewTransportError("wake", t.portName, err)
	}
	if n != len(wakeSequence) {
		return pn532.NewTransportError("wake", t.portName, io.ErrShortWrite)
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return pn532.NewTransportError("wake", t.portName, err)
	}
	return nil
}

// abort sends an ACK, which makes the PN532 drop the running command.
func (t *Transport) abort() {
	if _, err := t.port.Write(frame.ACK); err != nil {
		ndefwriter.Debugf("UART %s: abort failed: %v", t.portName, err)
	}
}

func (t *Transport) exchange(ctx context.Context, out []byte) ([]byte, error) {
	if _, err := t.port.Write(out); err != nil {
		return nil, pn532.NewTransportError("write", t.portName, err)
	}

	deadline := time.Now().Add(t.timeout)
	var pending []byte

	kind, _, err := t.readFrame(ctx, deadline, &pending)
	switch {
	case errors.Is(err, pn532.ErrTimeout):
		return nil, pn532.NewTransportError("ack", t.portName, pn532.ErrNoACK)
	case err != nil:
		return nil, err
	case kind == frame.KindNACK:
		return nil, pn532.NewTransportError("ack", t.portName, pn532.ErrNACKReceived)
	case kind != frame.KindACK:
		return nil, pn532.NewTransportError("ack", t.portName, pn532.ErrNoACK)
	}

	nacks := 0
	for {
		kind, data, err := t.readFrame(ctx, deadline, &pending)
		switch {
		case errors.Is(err, pn532.ErrFrameCorrupted) && nacks < maxNACKs:
			nacks++
			ndefwriter.Debugf("UART %s: corrupted response, sending NACK (%d)", t.portName, nacks)
			pending = pending[:0]
			if _, werr := t.port.Write(frame.NACK); werr != nil {
				return nil, pn532.NewTransportError("nack", t.portName, werr)
			}
		case err != nil:
			return nil, err
		case kind == frame.KindData:
			return data, nil
		}
	}
}

// readFrame reads until one complete frame is in pending and returns it.
func (t *Transport) readFrame(ctx context.Context, deadline time.Time, pending *[]byte) (frame.Kind, []byte, error) {
	chunk := make([]byte, 64)
	for {
		if len(*pending) > 0 {
			kind, data, n, err := frame.Parse(*pending, frame.PN532ToHost)
			if !errors.Is(err, frame.ErrIncomplete) {
				*pending = (*pending)[n:]
				switch {
				case errors.Is(err, frame.ErrApplication):
					return 0, nil, pn532.NewTransportError("read", t.portName, pn532.ErrCommandRejected)
				case err != nil:
					return 0, nil, pn532.NewTransportError("read", t.portName,
						fmt.Errorf("%w: %w", pn532.ErrFrameCorrupted, err))
				}
				return kind, data, nil
			}
		}

		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		if time.Now().After(deadline) {
			return 0, nil, pn532.NewTransportError("read", t.portName, pn532.ErrTimeout)
		}

		n, err := t.port.Read(chunk)
		if err != nil {
			return 0, nil, pn532.NewTransportError("read", t.portName, err)
		}
		if n == 0 {
			time.Sleep(idleDelay)
			continue
		}
		*pending = append(*pending, chunk[:n]...)
	}
}
