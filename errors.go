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

package ndefwriter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-ndefwriter/pkg/ndef"
)

// Sentinels for each failure kind. A *WriteError matches exactly one of them
// with errors.Is.
var (
	ErrEmptyText       = ndef.ErrEmptyText
	ErrLanguageTooLong = ndef.ErrLanguageTooLong
	ErrConnection      = errors.New("tag connection failed")
	ErrNotWritable     = errors.New("tag is not writable")
	ErrTransport       = errors.New("tag write failed")
)

// ErrorKind classifies why a write attempt failed.
type ErrorKind int

const (
	// KindNone means no error.
	KindNone ErrorKind = iota
	// KindEmptyText means there was nothing to write. No I/O was attempted.
	KindEmptyText
	// KindLanguageTooLong means the language code could not be encoded.
	// No I/O was attempted.
	KindLanguageTooLong
	// KindConnection means the tag was missing or the connection failed.
	KindConnection
	// KindNotWritable means the tag is read-only.
	KindNotWritable
	// KindTransport means transmitting the message failed. The tag content
	// may be indeterminate.
	KindTransport
	// KindUnknown is any error that did not come from a Writer.
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindEmptyText:
		return "empty text"
	case KindLanguageTooLong:
		return "language code too long"
	case KindConnection:
		return "connection"
	case KindNotWritable:
		return "not writable"
	case KindTransport:
		return "transport"
	case KindUnknown:
		return "unknown"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindEmptyText:
		return ErrEmptyText
	case KindLanguageTooLong:
		return ErrLanguageTooLong
	case KindConnection:
		return ErrConnection
	case KindNotWritable:
		return ErrNotWritable
	case KindTransport:
		return ErrTransport
	case KindNone, KindUnknown:
	}
	return nil
}

// WriteError is returned by Writer.Write for every failed attempt.
type WriteError struct {
	Err  error     // Underlying cause, may be nil
	Op   string    // Step that failed: validate, encode, connect, check, write
	UID  string    // Tag UID when the tag exposes one
	Kind ErrorKind // Failure category
}

func (e *WriteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.UID != "" {
		b.WriteString(" tag ")
		b.WriteString(e.UID)
	}
	b.WriteString(": ")

	s := e.Kind.sentinel()
	switch {
	case s != nil && e.Err != nil && errors.Is(e.Err, s):
		b.WriteString(e.Err.Error())
	case s != nil:
		b.WriteString(s.Error())
	default:
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil && (s == nil || !errors.Is(e.Err, s)) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *WriteError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the failure kind of err. A nil error is KindNone; errors
// not produced by a Writer are KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var we *WriteError
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindUnknown
}

// User-facing messages for each outcome.
const (
	MessageWritten      = "Text written to tag"
	MessageEmptyText    = "Enter some text before touching a tag"
	MessageBadLanguage  = "Language code is invalid"
	MessageNoConnection = "Could not connect to the tag"
	MessageNotWritable  = "Tag is read-only"
	MessageWriteFailed  = "Failed to write to the tag"
)

// UserMessage maps the outcome of a write to the text shown to the user.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindNone:
		return MessageWritten
	case KindEmptyText:
		return MessageEmptyText
	case KindLanguageTooLong:
		return MessageBadLanguage
	case KindConnection:
		return MessageNoConnection
	case KindNotWritable:
		return MessageNotWritable
	case KindTransport, KindUnknown:
	}
	return MessageWriteFailed
}
