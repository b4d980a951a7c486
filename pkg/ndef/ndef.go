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

// Package ndef encodes and decodes NFC Data Exchange Format messages.
//
// Only what a text writer needs is covered: the record codec, the
// well-known Text record, and the Type 2 Tag TLV that carries a message
// in tag memory.
package ndef

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TNF (Type Name Format) values as defined by NFC Forum.
const (
	TNFEmpty       byte = 0x00
	TNFWellKnown   byte = 0x01
	TNFMedia       byte = 0x02
	TNFAbsoluteURI byte = 0x03
	TNFExternal    byte = 0x04
	TNFUnknown     byte = 0x05
	TNFUnchanged   byte = 0x06
	TNFReserved    byte = 0x07
)

// Record header flag bits.
const (
	flagMB  byte = 0x80
	flagME  byte = 0x40
	flagCF  byte = 0x20
	flagSR  byte = 0x10
	flagIL  byte = 0x08
	tnfMask byte = 0x07

	// Payloads up to this length use the one-byte short record form.
	shortRecordMaxLen = 255
)

var (
	ErrEmptyMessage    = errors.New("ndef: empty message")
	ErrTruncatedRecord = errors.New("ndef: truncated record data")
	ErrInvalidTNF      = errors.New("ndef: invalid TNF value")
	ErrChunkedRecord   = errors.New("ndef: chunked records not supported")
	ErrFieldTooLong    = errors.New("ndef: type or ID longer than 255 bytes")
)

// Record is a single NDEF record.
type Record struct {
	Type    string
	ID      string
	Payload []byte
	TNF     byte
}

// Message is an ordered list of records.
type Message struct {
	Records []*Record
}

// Marshal serializes the message. The first record carries MB and the last
// carries ME.
func (m *Message) Marshal() ([]byte, error) {
	if m == nil || len(m.Records) == 0 {
		return nil, ErrEmptyMessage
	}

	var out []byte
	last := len(m.Records) - 1
	for i, rec := range m.Records {
		encoded, err := rec.encode(i == 0, i == last)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, encoded...)
	}
	return out, nil
}

// Unmarshal parses records until one with ME set and returns the number
// of bytes consumed.
func (m *Message) Unmarshal(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptyMessage
	}

	m.Records = nil
	offset := 0
	for offset < len(data) {
		rec := &Record{}
		n, last, err := rec.decode(data[offset:])
		if err != nil {
			return offset, fmt.Errorf("record at offset %d: %w", offset, err)
		}
		m.Records = append(m.Records, rec)
		offset += n
		if last {
			break
		}
	}
	return offset, nil
}

// Marshal serializes r as a standalone record (MB and ME both set).
func (r *Record) Marshal() ([]byte, error) {
	return r.encode(true, true)
}

// Unmarshal parses a single record and returns the number of bytes consumed.
func (r *Record) Unmarshal(data []byte) (int, error) {
	n, _, err := r.decode(data)
	return n, err
}

func (r *Record) encode(begin, end bool) ([]byte, error) {
	if r.TNF > TNFReserved {
		return nil, ErrInvalidTNF
	}
	if len(r.Type) > 0xFF || len(r.ID) > 0xFF {
		return nil, ErrFieldTooLong
	}

	flags := r.TNF & tnfMask
	if begin {
		flags |= flagMB
	}
	if end {
		flags |= flagME
	}
	short := len(r.Payload) <= shortRecordMaxLen
	if short {
		flags |= flagSR
	}
	if r.ID != "" {
		flags |= flagIL
	}

	out := make([]byte, 0, 6+len(r.Type)+len(r.ID)+len(r.Payload)+1)
	out = append(out, flags, byte(len(r.Type)))
	if short {
		out = append(out, byte(len(r.Payload)))
	} else {
		//nolint:gosec // payload length is non-negative and above 255 here
		out = binary.BigEndian.AppendUint32(out, uint32(len(r.Payload)))
	}
	if r.ID != "" {
		out = append(out, byte(len(r.ID)))
	}
	out = append(out, r.Type...)
	out = append(out, r.ID...)
	out = append(out, r.Payload...)
	return out, nil
}

func (r *Record) decode(data []byte) (n int, last bool, err error) {
	if len(data) < 3 {
		return 0, false, ErrTruncatedRecord
	}

	flags := data[0]
	if flags&flagCF != 0 {
		return 0, false, ErrChunkedRecord
	}
	tnf := flags & tnfMask
	if tnf > TNFUnchanged {
		return 0, false, ErrInvalidTNF
	}

	typeLen := int(data[1])
	pos := 2

	var payloadLen int
	if flags&flagSR != 0 {
		payloadLen = int(data[pos])
		pos++
	} else {
		if pos+4 > len(data) {
			return 0, false, ErrTruncatedRecord
		}
		payloadLen = int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
	}

	idLen := 0
	if flags&flagIL != 0 {
		if pos >= len(data) {
			return 0, false, ErrTruncatedRecord
		}
		idLen = int(data[pos])
		pos++
	}

	if payloadLen < 0 || pos+typeLen+idLen+payloadLen > len(data) {
		return 0, false, ErrTruncatedRecord
	}

	r.TNF = tnf
	r.Type = string(data[pos : pos+typeLen])
	pos += typeLen
	r.ID = string(data[pos : pos+idLen])
	pos += idLen
	r.Payload = nil
	if payloadLen > 0 {
		r.Payload = make([]byte, payloadLen)
		copy(r.Payload, data[pos:pos+payloadLen])
		pos += payloadLen
	}

	return pos, flags&flagME != 0, nil
}
