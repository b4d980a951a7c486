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

package ndefwriter

import (
	"context"
	"errors"

	"github.com/ZaparooProject/go-ndefwriter/pkg/ndef"
)

// ErrNoTag is the cause reported when Write is handed a nil tag.
var ErrNoTag = errors.New("no tag present")

// Writer encodes text as an NDEF Text record and writes it to a tag.
// A Writer holds no per-write state and may be reused.
type Writer struct {
	language string
}

// Option configures a Writer.
type Option func(*Writer)

// WithLanguage sets the IANA language code stored in the Text record.
// An empty code means ndef.DefaultLanguage.
func WithLanguage(language string) Option {
	return func(w *Writer) {
		w.language = language
	}
}

// NewWriter creates a Writer using ndef.DefaultLanguage unless overridden.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{language: ndef.DefaultLanguage}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Language returns the language code the Writer stores in records.
func (w *Writer) Language() string {
	return w.language
}

// Encode returns the NDEF message bytes Write would send for text.
func (w *Writer) Encode(text string) ([]byte, error) {
	if text == "" {
		return nil, &WriteError{Kind: KindEmptyText, Op: "validate", Err: ErrEmptyText}
	}

	msg, err := ndef.NewTextMessage(text, w.language)
	if err != nil {
		return nil, &WriteError{Kind: KindLanguageTooLong, Op: "encode", Err: err}
	}
	data, err := msg.Marshal()
	if err != nil {
		return nil, &WriteError{Kind: KindUnknown, Op: "encode", Err: err}
	}
	return data, nil
}

// Write stores text on tag as a one-record NDEF message.
//
// Validation and encoding happen before the tag is touched. After that the
// tag is connected, checked for writability and written, and Close is
// called exactly once whatever the outcome. A close failure is logged but
// does not fail an otherwise successful write.
//
// A failure during the write itself can leave the tag content
// indeterminate; nothing is retried.
func (w *Writer) Write(ctx context.Context, text string, tag Tag) error {
	data, err := w.Encode(text)
	if err != nil {
		return err
	}

	if IsNilTag(tag) {
		return &WriteError{Kind: KindConnection, Op: "connect", Err: ErrNoTag}
	}
	uid := TagUID(tag)

	defer func() {
		if closeErr := tag.Close(); closeErr != nil {
			Debugf("closing tag %s: %v", uid, closeErr)
		}
	}()

	if err := tag.Connect(ctx); err != nil {
		return &WriteError{Kind: KindConnection, Op: "connect", UID: uid, Err: err}
	}
	// Some tags learn their UID while connecting.
	uid = TagUID(tag)

	if !tag.IsWritable() {
		return &WriteError{Kind: KindNotWritable, Op: "check", UID: uid}
	}

	if err := tag.WriteNDEF(ctx, data); err != nil {
		return &WriteError{Kind: KindTransport, Op: "write", UID: uid, Err: err}
	}

	Debugf("wrote %d byte NDEF message to tag %s", len(data), uid)
	return nil
}

// WriteText writes text to tag with a default Writer.
func WriteText(ctx context.Context, tag Tag, text string) error {
	return NewWriter().Write(ctx, text, tag)
}
