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

// Package frame builds and parses PN532 host-link frames (PN532 User Manual
// §6.2). It is shared by the serial and I2C transports and by the wire
// simulator used in tests.
package frame

import (
	"bytes"
	"errors"
	"fmt"
)

// Frame identifiers.
const (
	HostToPN532 = 0xD4
	PN532ToHost = 0xD5
	ErrorTFI    = 0x7F
)

// MaxDataLength is the largest TFI+data length a normal frame can carry.
const MaxDataLength = 255

var (
	ACK  = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	NACK = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}

	startCode = []byte{0x00, 0xFF}
)

var (
	ErrIncomplete     = errors.New("frame: incomplete")
	ErrTooLarge       = errors.New("frame: data too large for normal frame")
	ErrLengthChecksum = errors.New("frame: length checksum mismatch")
	ErrDataChecksum   = errors.New("frame: data checksum mismatch")
	ErrExtended       = errors.New("frame: extended frames not supported")
	ErrUnexpectedTFI  = errors.New("frame: unexpected TFI")
	ErrApplication    = errors.New("frame: application level error frame")
)

// Kind identifies what Parse found.
type Kind int

const (
	KindData Kind = iota
	KindACK
	KindNACK
)

// Checksum returns the two's complement of the byte sum of data, so that
// sum(data) + Checksum(data) == 0.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1
}

// Encode wraps payload in a normal information frame with the given TFI.
func Encode(tfi byte, payload []byte) ([]byte, error) {
	dataLen := 1 + len(payload)
	if dataLen > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, dataLen)
	}

	out := make([]byte, 0, dataLen+7)
	out = append(out, 0x00, 0x00, 0xFF, byte(dataLen), ^byte(dataLen)+1, tfi)
	out = append(out, payload...)

	sum := tfi
	for _, b := range payload {
		sum += b
	}
	return append(out, ^sum+1, 0x00), nil
}

// Command builds a host-to-PN532 command frame.
func Command(cmd byte, args []byte) ([]byte, error) {
	payload := make([]byte, 0, 1+len(args))
	payload = append(payload, cmd)
	payload = append(payload, args...)
	return Encode(HostToPN532, payload)
}

// Parse locates the first frame in buf. For a data frame it returns the
// bytes after the TFI. n is the number of bytes of buf consumed, including
// any garbage before the start code. ErrIncomplete means more bytes are
// needed and nothing was consumed.
func Parse(buf []byte, tfi byte) (kind Kind, data []byte, n int, err error) {
	start := bytes.Index(buf, startCode)
	if start < 0 || start+4 > len(buf) {
		return 0, nil, 0, ErrIncomplete
	}

	pos := start + 2
	length, lcs := buf[pos], buf[pos+1]
	switch {
	case length == 0x00 && lcs == 0xFF:
		return KindACK, nil, pos + 2 + trailingPostamble(buf, pos+2), nil
	case length == 0xFF && lcs == 0x00:
		return KindNACK, nil, pos + 2 + trailingPostamble(buf, pos+2), nil
	case length == 0xFF && lcs == 0xFF:
		return 0, nil, pos + 2, ErrExtended
	case length == 0 || length+lcs != 0:
		return 0, nil, pos + 2, ErrLengthChecksum
	}

	body := pos + 2
	end := body + int(length) + 1 // data + DCS
	if end > len(buf) {
		return 0, nil, 0, ErrIncomplete
	}

	var sum byte
	for _, b := range buf[body:end] {
		sum += b
	}
	consumed := end + trailingPostamble(buf, end)
	if sum != 0 {
		return 0, nil, consumed, ErrDataChecksum
	}

	gotTFI := buf[body]
	if gotTFI == ErrorTFI {
		return 0, nil, consumed, ErrApplication
	}
	if gotTFI != tfi {
		return 0, nil, consumed, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrUnexpectedTFI, gotTFI, tfi)
	}

	data = make([]byte, int(length)-1)
	copy(data, buf[body+1:end-1])
	return KindData, data, consumed, nil
}

// trailingPostamble returns 1 if buf has a postamble byte at pos.
func trailingPostamble(buf []byte, pos int) int {
	if pos < len(buf) && buf[pos] == 0x00 {
		return 1
	}
	return 0
}
