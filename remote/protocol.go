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

// Package remote lends a tag over a WebSocket. A Handler serves tags from a
// local reader; a Tag is the client side and implements ndefwriter.Tag.
// Each WebSocket binary message is one CBOR encoded Request or Response.
package remote

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Operations.
const (
	OpConnect = "connect"
	OpWrite   = "write"
	OpClose   = "close"
)

// MaxMessageSize bounds a single protocol message.
const MaxMessageSize = 64 * 1024

var (
	ErrRemote             = errors.New("remote tag error")
	ErrNotConnected       = errors.New("remote tag not connected")
	ErrUnknownOp          = errors.New("unknown operation")
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// Request is sent by the client.
type Request struct {
	ID   string `cbor:"1,keyasint"`
	Op   string `cbor:"2,keyasint"`
	Data []byte `cbor:"3,keyasint,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID       string `cbor:"1,keyasint"`
	UID      string `cbor:"4,keyasint,omitempty"`
	Error    string `cbor:"5,keyasint,omitempty"`
	OK       bool   `cbor:"2,keyasint"`
	Writable bool   `cbor:"3,keyasint,omitempty"`
}

// Err returns the remote failure carried by r, or nil.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == "" {
		return ErrRemote
	}
	return fmt.Errorf("%w: %s", ErrRemote, r.Error)
}

var (
	modesOnce sync.Once
	encMode   cbor.EncMode
	decMode   cbor.DecMode
	modesErr  error
)

func modes() (cbor.EncMode, cbor.DecMode, error) {
	modesOnce.Do(func() {
		encOpts := cbor.EncOptions{
			// Stable map ordering keeps messages byte-identical.
			Sort: cbor.SortCoreDeterministic,
		}
		encMode, modesErr = encOpts.EncMode()
		if modesErr != nil {
			return
		}
		decOpts := cbor.DecOptions{
			DupMapKey:        cbor.DupMapKeyEnforcedAPF,
			MaxArrayElements: 1024,
			MaxMapPairs:      16,
		}
		decMode, modesErr = decOpts.DecMode()
	})
	return encMode, decMode, modesErr
}

// Encode marshals a protocol message.
func Encode(v any) ([]byte, error) {
	em, _, err := modes()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	data, err := em.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Decode unmarshals a protocol message into v.
func Decode(data []byte, v any) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("decode message: %d bytes exceeds %d", len(data), MaxMessageSize)
	}
	_, dm, err := modes()
	if err != nil {
		return fmt.Errorf("cbor decoder: %w", err)
	}
	if err := dm.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
