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

package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
)

const (
	defaultTimeout = 5 * time.Second
	closeTimeout   = time.Second
)

// Dialer opens WebSocket connections. *websocket.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, url string, header http.Header) (*websocket.Conn, *http.Response, error)
}

// Tag is a tag lent by a remote Handler.
type Tag struct {
	dialer   Dialer
	conn     *websocket.Conn
	url      string
	uid      string
	timeout  time.Duration
	mu       syncutil.Mutex
	writable bool
}

var (
	_ ndefwriter.Tag        = (*Tag)(nil)
	_ ndefwriter.Identifier = (*Tag)(nil)
)

// Option configures a Tag.
type Option func(*Tag)

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d Dialer) Option {
	return func(t *Tag) {
		t.dialer = d
	}
}

// WithTimeout bounds write and close requests when the context has no
// deadline. Connect waits for a tag to be presented for as long as its
// context allows.
func WithTimeout(timeout time.Duration) Option {
	return func(t *Tag) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// NewTag returns a handle for the bridge at url (ws:// or wss://). Nothing
// is dialed until Connect.
func NewTag(url string, opts ...Option) *Tag {
	t := &Tag{
		url:     url,
		dialer:  websocket.DefaultDialer,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// UID returns the UID reported by the bridge on connect.
func (t *Tag) UID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uid
}

// Connect dials the bridge and asks it for a tag.
func (t *Tag) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		conn, resp, err := t.dialer.DialContext(ctx, t.url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return fmt.Errorf("dial %s: %w", t.url, err)
		}
		conn.SetReadLimit(MaxMessageSize)
		t.conn = conn
	}

	resp, err := t.roundTrip(ctx, OpConnect, nil, 0)
	if err != nil {
		// The bridge may still be waiting for a tag on our behalf.
		// Hanging up makes it stop.
		_ = t.drop()
		return err
	}
	t.uid = resp.UID
	t.writable = resp.Writable
	ndefwriter.Debugf("remote tag %s connected via %s (writable=%t)", t.uid, t.url, t.writable)
	return nil
}

// IsWritable reports what the bridge said on connect.
func (t *Tag) IsWritable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && t.writable
}

// WriteNDEF sends message to the bridge.
func (t *Tag) WriteNDEF(ctx context.Context, message []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}
	_, err := t.roundTrip(ctx, OpWrite, message, t.timeout)
	return err
}

// Close asks the bridge to release the tag and closes the connection. It is
// a no-op when nothing was dialed.
func (t *Tag) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_, releaseErr := t.roundTrip(ctx, OpClose, nil, closeTimeout)
	closeErr := t.drop()

	if releaseErr != nil {
		return fmt.Errorf("release remote tag: %w", releaseErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close connection: %w", closeErr)
	}
	return nil
}

// drop hangs up without releasing the tag. Callers hold t.mu.
func (t *Tag) drop() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeTimeout))
	err := t.conn.Close()
	t.conn = nil
	t.writable = false
	return err
}

// roundTrip sends one request and waits for the response with its ID. A
// zero timeout leaves the wait to ctx alone. Callers hold t.mu.
func (t *Tag) roundTrip(ctx context.Context, op string, data []byte, timeout time.Duration) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := Request{ID: uuid.NewString(), Op: op, Data: data}
	payload, err := Encode(&req)
	if err != nil {
		return nil, err
	}

	// A zero deadline means none.
	deadline, ok := ctx.Deadline()
	if !ok && timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	writeDeadline := deadline
	if writeDeadline.IsZero() {
		writeDeadline = time.Now().Add(t.timeout)
	}
	conn := t.conn
	if err := conn.SetWriteDeadline(writeDeadline); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// Unblock the read when ctx ends. Registered after the deadline is set
	// so it cannot be overwritten.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return nil, fmt.Errorf("%s: send: %w", op, err)
	}

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%s: %w", op, ctxErr)
			}
			return nil, fmt.Errorf("%s: receive: %w", op, err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		var resp Response
		if err := Decode(msg, &resp); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if resp.ID != req.ID {
			ndefwriter.Debugf("remote: dropping response %s while waiting for %s", resp.ID, req.ID)
			continue
		}
		if err := resp.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &resp, nil
	}
}
