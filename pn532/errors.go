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

package pn532

import (
	"errors"
	"fmt"
)

// Transport level errors.
var (
	ErrNoACK           = errors.New("no ACK received")
	ErrNACKReceived    = errors.New("NACK received")
	ErrTimeout         = errors.New("operation timeout")
	ErrFrameCorrupted  = errors.New("frame corrupted")
	ErrTransportClosed = errors.New("transport closed")
	ErrCommandRejected = errors.New("command frame rejected by PN532")
)

// Device and tag errors.
var (
	ErrNoTagDetected     = errors.New("no tag detected")
	ErrUnsupportedTag    = errors.New("unsupported tag type")
	ErrNotNDEFFormatted  = errors.New("tag is not NDEF formatted")
	ErrNotConnected      = errors.New("tag not connected")
	ErrCapacityExceeded  = errors.New("NDEF message exceeds tag capacity")
	ErrInvalidResponse   = errors.New("invalid response")
	ErrUnexpectedCommand = errors.New("unexpected response code")
)

// TransportError wraps a transport failure with the operation and port.
type TransportError struct {
	Err  error  // Underlying error
	Op   string // Operation that failed
	Port string // Port or bus identifier
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError returns a *TransportError.
func NewTransportError(op, port string, err error) *TransportError {
	return &TransportError{Op: op, Port: port, Err: err}
}

// IsRetryable reports whether err came from a link level glitch that a
// repeated frame exchange can clear.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNoACK) ||
		errors.Is(err, ErrNACKReceived) ||
		errors.Is(err, ErrFrameCorrupted)
}

// Error is a non-zero status byte returned by the chip.
type Error struct {
	Command string
	Code    byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error 0x%02X (%s)", e.Command, e.Code, codeMeaning(e.Code))
}

// codeMeaning maps status codes from the PN532 user manual, section 7.1.
func codeMeaning(code byte) string {
	switch code {
	case 0x00:
		return "success"
	case 0x01:
		return "timeout"
	case 0x02:
		return "CRC error"
	case 0x03:
		return "parity error"
	case 0x04:
		return "erroneous bit count during anti-collision"
	case 0x05:
		return "framing error"
	case 0x06:
		return "abnormal bit collision"
	case 0x07:
		return "insufficient communication buffer"
	case 0x09:
		return "RF buffer overflow"
	case 0x0A:
		return "RF field not switched on in time"
	case 0x0B:
		return "RF protocol error"
	case 0x0D:
		return "temperature error"
	case 0x0E:
		return "internal buffer overflow"
	case 0x10:
		return "invalid parameter"
	case 0x12:
		return "unsupported command"
	case 0x13:
		return "wrong data format"
	case 0x14:
		return "authentication error"
	case 0x23:
		return "wrong UID check byte"
	case 0x25:
		return "invalid device state"
	case 0x26:
		return "operation not allowed"
	case 0x27:
		return "command not acceptable in current context"
	case 0x29:
		return "target released by initiator"
	case 0x2A:
		return "card ID mismatch"
	case 0x2B:
		return "card disappeared"
	case 0x2C:
		return "NFCID3 mismatch"
	case 0x2D:
		return "over-current event"
	case 0x2E:
		return "NAD missing"
	}
	return "unknown error"
}

// IsTagGone reports whether err means the tag left the field.
func IsTagGone(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == 0x01 || pe.Code == 0x29 || pe.Code == 0x2B
	}
	return errors.Is(err, ErrNoTagDetected)
}
