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

package testing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-ndefwriter/internal/frame"
	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
	"github.com/ZaparooProject/go-ndefwriter/pn532"
)

// SimulatorTransport is a pn532.Transport that speaks frames to a
// VirtualPN532 in memory.
type SimulatorTransport struct {
	sim     *VirtualPN532
	mu      syncutil.Mutex
	timeout time.Duration
	closed  bool
}

var _ pn532.Transport = (*SimulatorTransport)(nil)

// NewSimulatorTransport returns a transport bound to sim.
func NewSimulatorTransport(sim *VirtualPN532) *SimulatorTransport {
	return &SimulatorTransport{sim: sim, timeout: 50 * time.Millisecond}
}

// SendCommand writes a command frame and reads the ACK and response.
func (s *SimulatorTransport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, pn532.ErrTransportClosed
	}
	out, err := frame.Command(cmd, args)
	if err != nil {
		return nil, fmt.Errorf("build frame: %w", err)
	}
	if _, err := s.sim.Write(out); err != nil {
		return nil, pn532.NewTransportError("write", "simulator", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var buf []byte
	acked := false
	chunk := make([]byte, 64)
	for {
		n, err := s.sim.Read(chunk)
		if err != nil {
			return nil, pn532.NewTransportError("read", "simulator", err)
		}
		buf = append(buf, chunk[:n]...)

		for len(buf) > 0 {
			kind, data, used, perr := frame.Parse(buf, frame.PN532ToHost)
			if errors.Is(perr, frame.ErrIncomplete) {
				break
			}
			buf = buf[used:]
			switch {
			case errors.Is(perr, frame.ErrApplication):
				return nil, pn532.NewTransportError("read", "simulator", pn532.ErrCommandRejected)
			case perr != nil:
				return nil, pn532.NewTransportError("read", "simulator",
					fmt.Errorf("%w: %w", pn532.ErrFrameCorrupted, perr))
			case kind == frame.KindACK:
				acked = true
			case kind == frame.KindNACK:
				return nil, pn532.NewTransportError("read", "simulator", pn532.ErrNACKReceived)
			case !acked:
				return nil, pn532.NewTransportError("read", "simulator", pn532.ErrNoACK)
			default:
				return data, nil
			}
		}

		if n == 0 {
			select {
			case <-ctx.Done():
				if !acked {
					return nil, pn532.NewTransportError("read", "simulator", pn532.ErrNoACK)
				}
				return nil, pn532.NewTransportError("read", "simulator", pn532.ErrTimeout)
			case <-time.After(time.Millisecond):
			}
		}
	}
}

// SetTimeout sets the response wait.
func (s *SimulatorTransport) SetTimeout(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = timeout
	return nil
}

// Close marks the transport closed. The simulator stays usable.
func (s *SimulatorTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Type returns pn532.TransportMock.
func (*SimulatorTransport) Type() pn532.TransportType {
	return pn532.TransportMock
}
