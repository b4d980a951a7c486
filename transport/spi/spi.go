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

// Package spi talks to a PN532 over SPI using periph.io.
//
// The chip shifts bits LSB first while most SPI controllers shift MSB
// first, so every byte on the wire is bit-reversed.
package spi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
	"github.com/ZaparooProject/go-ndefwriter/internal/frame"
	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
	"github.com/ZaparooProject/go-ndefwriter/pn532"
)

// Operation bytes sent ahead of every transaction, before bit reversal.
const (
	OpDataWrite  = 0x01
	OpStatusRead = 0x02
	OpDataRead   = 0x03

	StatusReady = 0x01
)

const (
	clockFreq      = physic.MegaHertz
	mode           = spi.Mode0
	defaultTimeout = time.Second
	readyPoll      = time.Millisecond
	maxNACKs       = 2

	ackReadLen      = 6
	responseReadLen = 7 + frame.MaxDataLength
)

// Transport implements pn532.Transport over SPI.
type Transport struct {
	conn     spi.Conn
	port     io.Closer
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
	closed   bool
}

var _ pn532.Transport = (*Transport)(nil)

// New opens the named SPI port, for example "/dev/spidev0.0".
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}
	conn, err := port.Connect(clockFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI %s: %w", portName, err)
	}

	t := NewWithConn(conn, portName)
	t.port = port
	t.wakeup()
	return t, nil
}

// NewWithConn returns a transport on a configured connection. Close does
// not close the port behind a connection passed here.
func NewWithConn(conn spi.Conn, portName string) *Transport {
	return &Transport{
		conn:     conn,
		portName: portName,
		timeout:  defaultTimeout,
	}
}

// wakeup toggles chip select with a dummy byte; the chip ignores it.
func (t *Transport) wakeup() {
	time.Sleep(time.Millisecond)
	if err := t.conn.Tx([]byte{0x00}, nil); err != nil {
		ndefwriter.Debugf("SPI %s: wakeup failed: %v", t.portName, err)
	}
	time.Sleep(time.Millisecond)
}

// Reverse returns a copy of data with the bits of every byte reversed.
func Reverse(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = bits.Reverse8(b)
	}
	return out
}

// SendCommand sends one command frame and returns the response payload.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, pn532.NewTransportError("send", t.portName, pn532.ErrTransportClosed)
	}

	out, err := frame.Command(cmd, args)
	if err != nil {
		return nil, fmt.Errorf("build command 0x%02X: %w", cmd, err)
	}
	if err := t.write(out); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(t.timeout)
	if err := t.waitACK(ctx, deadline); err != nil {
		if ctx.Err() != nil {
			t.abort()
		}
		return nil, err
	}

	resp, err := t.readResponse(ctx, deadline)
	if err != nil && ctx.Err() != nil {
		t.abort()
	}
	return resp, err
}

// SetTimeout sets how long a command may take from write to response.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timeout <= 0 {
		return fmt.Errorf("invalid SPI timeout %v", timeout)
	}
	t.timeout = timeout
	return nil
}

// Close releases the port if New opened it.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.port == nil {
		return nil
	}
	if err := t.port.Close(); err != nil {
		return pn532.NewTransportError("close", t.portName, err)
	}
	return nil
}

// Type returns pn532.TransportSPI.
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportSPI
}

func (t *Transport) abort() {
	if err := t.write(frame.ACK); err != nil {
		ndefwriter.Debugf("SPI %s: abort failed: %v", t.portName, err)
	}
}

func (t *Transport) write(data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, bits.Reverse8(OpDataWrite))
	w = append(w, Reverse(data)...)
	if err := t.conn.Tx(w, nil); err != nil {
		return pn532.NewTransportError("write", t.portName, err)
	}
	return nil
}

// read clocks out n data bytes. The byte received while the operation
// byte is shifted out carries nothing.
func (t *Transport) read(n int) ([]byte, error) {
	w := make([]byte, n+1)
	w[0] = bits.Reverse8(OpDataRead)
	r := make([]byte, n+1)
	if err := t.conn.Tx(w, r); err != nil {
		return nil, pn532.NewTransportError("read", t.portName, err)
	}
	return Reverse(r[1:]), nil
}

func (t *Transport) ready() (bool, error) {
	w := []byte{bits.Reverse8(OpStatusRead), 0x00}
	r := make([]byte, 2)
	if err := t.conn.Tx(w, r); err != nil {
		return false, pn532.NewTransportError("status", t.portName, err)
	}
	return bits.Reverse8(r[1]) == StatusReady, nil
}

func (t *Transport) waitReady(ctx context.Context, deadline time.Time) error {
	for {
		ok, err := t.ready()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return pn532.NewTransportError("status", t.portName, pn532.ErrTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPoll):
		}
	}
}

func (t *Transport) waitACK(ctx context.Context, deadline time.Time) error {
	if err := t.waitReady(ctx, deadline); err != nil {
		if errors.Is(err, pn532.ErrTimeout) {
			return pn532.NewTransportError("ack", t.portName, pn532.ErrNoACK)
		}
		return err
	}

	buf, err := t.read(ackReadLen)
	if err != nil {
		return err
	}
	kind, _, _, err := frame.Parse(buf, frame.PN532ToHost)
	switch {
	case err == nil && kind == frame.KindACK:
		return nil
	case err == nil && kind == frame.KindNACK:
		return pn532.NewTransportError("ack", t.portName, pn532.ErrNACKReceived)
	}
	return pn532.NewTransportError("ack", t.portName, pn532.ErrNoACK)
}

func (t *Transport) readResponse(ctx context.Context, deadline time.Time) ([]byte, error) {
	for nacks := 0; ; nacks++ {
		if err := t.waitReady(ctx, deadline); err != nil {
			return nil, err
		}
		buf, err := t.read(responseReadLen)
		if err != nil {
			return nil, err
		}

		kind, data, _, err := frame.Parse(buf, frame.PN532ToHost)
		switch {
		case errors.Is(err, frame.ErrApplication):
			return nil, pn532.NewTransportError("read", t.portName, pn532.ErrCommandRejected)
		case err != nil && nacks < maxNACKs:
			ndefwriter.Debugf("SPI %s: bad response (%v), sending NACK", t.portName, err)
			if werr := t.write(frame.NACK); werr != nil {
				return nil, werr
			}
		case err != nil:
			return nil, pn532.NewTransportError("read", t.portName,
				fmt.Errorf("%w: %w", pn532.ErrFrameCorrupted, err))
		case kind == frame.KindData:
			return data, nil
		default:
			return nil, pn532.NewTransportError("read", t.portName, pn532.ErrInvalidResponse)
		}
	}
}
