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
	"context"
	"reflect"
)

// Tag is a connectable, writable NFC tag handle. It is borrowed by a Writer
// for a single write attempt and released with Close afterwards.
//
// Close must be safe to call after a failed Connect.
type Tag interface {
	// Connect opens the connection to the tag.
	Connect(ctx context.Context) error

	// IsWritable reports whether the connected tag accepts writes.
	IsWritable() bool

	// WriteNDEF stores an encoded NDEF message on the tag, replacing its
	// previous content.
	WriteNDEF(ctx context.Context, message []byte) error

	// Close releases the connection.
	Close() error
}

// Identifier is implemented by tags that know their UID.
type Identifier interface {
	UID() string
}

// IsNilTag reports whether tag is nil, including a nil pointer held in
// the interface.
func IsNilTag(tag Tag) bool {
	if tag == nil {
		return true
	}
	v := reflect.ValueOf(tag)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

// TagUID returns the UID of tag when it knows one, and "" otherwise.
func TagUID(tag Tag) string {
	if IsNilTag(tag) {
		return ""
	}
	if id, ok := tag.(Identifier); ok {
		return id.UID()
	}
	return ""
}
