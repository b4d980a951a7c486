// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package i2c talks to a PN532 over an I2C bus using periph.io.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
	"github.com/ZaparooProject/go-ndefwriter/internal/frame"
	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
	"github.com/ZaparooProject/go-ndefwriter/pn532"
)

const (
	// Addr is the PN532 7-bit address (0x48 >> 1).
	Addr = 0x24

	statusReady    = 0x01
	maxClockFreq   = 400 * physic.KiloHertz
	defaultTimeout = time.Second
	readyPoll      = time.Millisecond
	maxNACKs       = 2

	// Every read starts with a status byte.
	ackReadLen      = 1 + 6
	responseReadLen = 1 + 7 + frame.MaxDataLength
)

// Transport implements pn532.Transport over I2C.
type Transport struct {
	dev     *i2c.Dev
	bus     io.Closer
	busName string
	timeout time.Duration
	mu      syncutil.Mutex
	closed  bool
}

var _ pn532.Transport = (*Transport)(nil)

// New opens the named bus. Paths like "/dev/i2c-1:0x24" are accepted; the
// address suffix is ignored.
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(parseBusName(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	if err := bus.SetSpeed(maxClockFreq); err != nil {
		ndefwriter.Debugf("I2C %s: keeping default clock: %v", busName, err)
	}

	t := NewWithBus(bus, busName)
	t.bus = bus
	return t, nil
}

// NewWithBus returns a transport on an open bus. Close does not close a bus
// passed here.
func NewWithBus(bus i2c.Bus, busName string) *Transport {
	return &Transport{
		dev:     &i2c.Dev{Addr: Addr, Bus: bus},
		busName: busName,
		timeout: defaultTimeout,
	}
}

func parseBusName(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// SendCommand sends one command frame and returns the response payload.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, pn532.NewTransportError("send", t.busName, pn532.ErrTransportClosed)
	}

	out, err := frame.Command(cmd, args)
	if err != nil {
		return nil, fmt.Errorf("build command 0x%02X: %w", cmd, err)
	}
	if err := t.dev.Tx(out, nil); err != nil {
		return nil, pn532.NewTransportError("write", t.busName, err)
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
		return fmt.Errorf("invalid I2C timeout %v", timeout)
	}
	t.timeout = timeout
	return nil
}

// Close releases the bus if New opened it.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.bus == nil {
		return nil
	}
	if err := t.bus.Close(); err != nil {
		return pn532.NewTransportError("close", t.busName, err)
	}
	return nil
}

// Type returns pn532.TransportI2C.
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportI2C
}

func (t *Transport) abort() {
	if err := t.dev.Tx(frame.ACK, nil); err != nil {
		ndefwriter.Debugf("I2C %s: abort failed: %v", t.busName, err)
	}
}

// waitReady polls the status byte until the chip has data for us.
func (t *Transport) waitReady(ctx context.Context, deadline time.Time) error {
	status := make([]byte, 1)
	for {
		if err := t.dev.Tx(nil, status); err != nil {
			return pn532.NewTransportError("status", t.busName, err)
		}
		if status[0] == statusReady {
			return nil
		}
		if time.Now().After(deadline) {
			return pn532.NewTransportError("status", t.busName, pn532.ErrTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPoll):
		}
	}
}

// read performs one read transaction of n bytes and strips the status byte.
func (t *Transport) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := t.dev.Tx(nil, buf); err != nil {
		return nil, pn532.NewTransportError("read", t.busName, err)
	}
	if buf[0] != statusReady {
		return nil, pn532.NewTransportError("read", t.busName, pn532.ErrFrameCorrupted)
	}
	return buf[1:], nil
}

func (t *Transport) waitACK(ctx context.Context, deadline time.Time) error {
	if err := t.waitReady(ctx, deadline); err != nil {
		if errors.Is(err, pn532.ErrTimeout) {
			return pn532.NewTransportError("ack", t.busName, pn532.ErrNoACK)
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
		return pn532.NewTransportError("ack", t.busName, pn532.ErrNACKReceived)
	}
	return pn532.NewTransportError("ack", t.busName, pn532.ErrNoACK)
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
			return nil, pn532.NewTransportError("read", t.busName, pn532.ErrCommandRejected)
		case err != nil && nacks < maxNACKs:
			ndefwriter.Debugf("I2C %s: bad response (%v), sending NACK", t.busName, err)
			if werr := t.dev.Tx(frame.NACK, nil); werr != nil {
				return nil, pn532.NewTransportError("nack", t.busName, werr)
			}
		case err != nil:
			return nil, pn532.NewTransportError("read", t.busName,
				fmt.Errorf("%w: %w", pn532.ErrFrameCorrupted, err))
		case kind == frame.KindData:
			return data, nil
		default:
			return nil, pn532.NewTransportError("read", t.busName, pn532.ErrInvalidResponse)
		}
	}
}
