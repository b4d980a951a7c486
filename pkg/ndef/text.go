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
	"errors"
	"fmt"
)

// Text record constants.
const (
	TextRecordType = "T"

	// DefaultLanguage is used when no language code is given.
	DefaultLanguage = "en"

	textUTF16Flag     = 0x80
	textLangCodeMask  = 0x3F
	maxLanguageLength = 63
)

var (
	ErrEmptyText            = errors.New("ndef: text is empty")
	ErrLanguageTooLong      = errors.New("ndef: language code too long")
	ErrLanguageNotASCII     = errors.New("ndef: language code is not ASCII")
	ErrTextPayloadTooShort  = errors.New("ndef: text payload too short")
	ErrTextPayloadTruncated = errors.New("ndef: text payload truncated")
)

// TextRecord is the decoded content of a Text record.
type TextRecord struct {
	Text     string
	Language string
	UTF16    bool
}

// EncodeText builds a Text record payload:
//
//	[status][language bytes][text bytes]
//
// The status byte holds the language length; the UTF-16 bit is never set
// because text is always written as UTF-8. All lengths are byte counts.
func EncodeText(text, language string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if language == "" {
		language = DefaultLanguage
	}
	if len(language) > maxLanguageLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrLanguageTooLong, len(language))
	}
	for i := 0; i < len(language); i++ {
		if language[i] > 0x7F {
			return nil, fmt.Errorf("%w: %q", ErrLanguageNotASCII, language)
		}
	}

	payload := make([]byte, 1+len(language)+len(text))
	payload[0] = byte(len(language))
	copy(payload[1:], language)
	copy(payload[1+len(language):], text)
	return payload, nil
}

// NewTextRecord wraps an encoded Text payload in a well-known record with
// no ID.
func NewTextRecord(text, language string) (*Record, error) {
	payload, err := EncodeText(text, language)
	if err != nil {
		return nil, err
	}
	return &Record{
		TNF:     TNFWellKnown,
		Type:    TextRecordType,
		Payload: payload,
	}, nil
}

// NewTextMessage returns a message holding exactly one Text record.
func NewTextMessage(text, language string) (*Message, error) {
	rec, err := NewTextRecord(text, language)
	if err != nil {
		return nil, err
	}
	return &Message{Records: []*Record{rec}}, nil
}

// ParseTextRecord splits a Text record payload back into language and text.
// The text bytes are returned as-is, UTF-16 payloads are flagged but not
// transcoded.
func ParseTextRecord(payload []byte) (*TextRecord, error) {
	if len(payload) < 1 {
		return nil, ErrTextPayloadTooShort
	}

	status := payload[0]
	langLen := int(status & textLangCodeMask)
	if len(payload) < 1+langLen {
		return nil, ErrTextPayloadTruncated
	}

	return &TextRecord{
		Language: string(payload[1 : 1+langLen]),
		Text:     string(payload[1+langLen:]),
		UTF16:    status&textUTF16Flag != 0,
	}, nil
}

// IsText reports whether r is a well-known Text record.
func (r *Record) IsText() bool {
	return r.TNF == TNFWellKnown && r.Type == TextRecordType
}
