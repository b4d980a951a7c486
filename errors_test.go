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

package ndefwriter_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
)

func TestWriteErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  *ndefwriter.WriteError
		want string
	}{
		{
			err:  &ndefwriter.WriteError{Kind: ndefwriter.KindNotWritable, Op: "check", UID: "04AB"},
			want: "check tag 04AB: tag is not writable",
		},
		{
			err:  &ndefwriter.WriteError{Kind: ndefwriter.KindTransport, Op: "write", Err: errors.New("page 5 NAK")},
			want: "write: tag write failed: page 5 NAK",
		},
		{
			err:  &ndefwriter.WriteError{Kind: ndefwriter.KindEmptyText, Op: "validate", Err: ndefwriter.ErrEmptyText},
			want: "validate: ndef: text is empty",
		},
		{
			err:  &ndefwriter.WriteError{Kind: ndefwriter.KindUnknown, Op: "encode", Err: errors.New("boom")},
			want: "encode: unknown: boom",
		},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestWriteErrorMatchesOnlyItsKind(t *testing.T) {
	t.Parallel()

	sentinels := map[ndefwriter.ErrorKind]error{
		ndefwriter.KindEmptyText:       ndefwriter.ErrEmptyText,
		ndefwriter.KindLanguageTooLong: ndefwriter.ErrLanguageTooLong,
		ndefwriter.KindConnection:      ndefwriter.ErrConnection,
		ndefwriter.KindNotWritable:     ndefwriter.ErrNotWritable,
		ndefwriter.KindTransport:       ndefwriter.ErrTransport,
	}

	for kind, sentinel := range sentinels {
		err := fmt.Errorf("attempt: %w", &ndefwriter.WriteError{Kind: kind, Op: "x"})
		for other, otherSentinel := range sentinels {
			assert.Equal(t, kind == other, errors.Is(err, otherSentinel), "%v vs %v", kind, other)
		}
		assert.Equal(t, kind, ndefwriter.KindOf(err))
		assert.ErrorIs(t, err, sentinel)
	}
}

func TestWriteErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("rf field lost")
	err := &ndefwriter.WriteError{Kind: ndefwriter.KindConnection, Op: "connect", Err: cause}
	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ndefwriter.KindNone, ndefwriter.KindOf(nil))
	assert.Equal(t, ndefwriter.KindUnknown, ndefwriter.KindOf(errors.New("other")))
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ndefwriter.MessageWritten},
		{err: &ndefwriter.WriteError{Kind: ndefwriter.KindEmptyText}, want: ndefwriter.MessageEmptyText},
		{err: &ndefwriter.WriteError{Kind: ndefwriter.KindLanguageTooLong}, want: ndefwriter.MessageBadLanguage},
		{err: &ndefwriter.WriteError{Kind: ndefwriter.KindConnection}, want: ndefwriter.MessageNoConnection},
		{err: &ndefwriter.WriteError{Kind: ndefwriter.KindNotWritable}, want: ndefwriter.MessageNotWritable},
		{err: &ndefwriter.WriteError{Kind: ndefwriter.KindTransport}, want: ndefwriter.MessageWriteFailed},
		{err: errors.New("anything else"), want: ndefwriter.MessageWriteFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ndefwriter.UserMessage(tt.err))
	}
}

func TestErrorKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "not writable", ndefwriter.KindNotWritable.String())
	assert.Equal(t, "transport", ndefwriter.KindTransport.String())
	assert.Equal(t, "ErrorKind(42)", ndefwriter.ErrorKind(42).String())
}
