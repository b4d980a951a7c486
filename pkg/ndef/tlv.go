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

package ndef

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TLV block types used in the data area of NFC Forum Type 2 tags.
const (
	TLVNull          = 0x00
	TLVLockControl   = 0x01
	TLVMemoryControl = 0x02
	TLVMessage       = 0x03
	TLVTerminator    = 0xFE

	// Lengths from 0xFF upward need the three-byte form.
	tlvLongLengthMarker = 0xFF
	maxTLVLength        = 0xFFFE
)

var (
	ErrTLVTooLarge      = errors.New("ndef: message too large for TLV")
	ErrTLVDataTooShort  = errors.New("ndef: TLV data too short")
	ErrTLVInvalidLength = errors.New("ndef: TLV invalid length")
	ErrTLVNotFound      = errors.New("ndef: message TLV not found")
)

// WrapTLV frames an encoded message as an NDEF Message TLV followed by a
// Terminator TLV, ready to be written to a Type 2 tag's data area.
func WrapTLV(message []byte) ([]byte, error) {
	n := len(message)
	if n > maxTLVLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTLVTooLarge, n)
	}

	out := make([]byte, 0, n+5)
	out = append(out, TLVMessage)
	if n < tlvLongLengthMarker {
		out = append(out, byte(n))
	} else {
		out = append(out, tlvLongLengthMarker)
		//nolint:gosec // bounded by maxTLVLength above
		out = binary.BigEndian.AppendUint16(out, uint16(n))
	}
	out = append(out, message...)
	return append(out, TLVTerminator), nil
}

// FindNDEF walks the TLV blocks in data and returns the contents of the
// first NDEF Message TLV. NULL, Lock Control, Memory Control and
// proprietary blocks are skipped.
func FindNDEF(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, ErrTLVDataTooShort
	}

	offset := 0
	for offset < len(data) {
		switch t := data[offset]; t {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return nil, ErrTLVNotFound
		}

		valueStart, length, err := tlvLength(data, offset)
		if err != nil {
			return nil, err
		}
		if data[offset] == TLVMessage {
			if valueStart+length > len(data) {
				return nil, fmt.Errorf("%w: %d bytes declared, %d available",
					ErrTLVInvalidLength, length, len(data)-valueStart)
			}
			return data[valueStart : valueStart+length], nil
		}
		offset = valueStart + length
	}

	return nil, ErrTLVNotFound
}

// tlvLength decodes the length field of the TLV at offset and returns where
// its value starts.
func tlvLength(data []byte, offset int) (valueStart, length int, err error) {
	if offset+1 >= len(data) {
		return 0, 0, ErrTLVDataTooShort
	}
	if data[offset+1] != tlvLongLengthMarker {
		return offset + 2, int(data[offset+1]), nil
	}
	if offset+3 >= len(data) {
		return 0, 0, fmt.Errorf("%w: incomplete long length at offset %d", ErrTLVInvalidLength, offset)
	}
	return offset + 4, int(binary.BigEndian.Uint16(data[offset+2 : offset+4])), nil
}
