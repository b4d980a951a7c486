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
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
)

// TagProvider hands out the next tag presented to a local reader.
type TagProvider interface {
	NextTag(ctx context.Context) (ndefwriter.Tag, error)
}

// TagProviderFunc adapts a function to TagProvider.
type TagProviderFunc func(ctx context.Context) (ndefwriter.Tag, error)

// NextTag calls f.
func (f TagProviderFunc) NextTag(ctx context.Context) (ndefwriter.Tag, error) {
	return f(ctx)
}

// Handler serves the bridge protocol. Each WebSocket connection holds at
// most one tag at a time.
type Handler struct {
	provider TagProvider
	upgrader websocket.Upgrader
	timeout  time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithCheckOrigin sets the upgrader origin check. By default only same-host
// origins are accepted.
func WithCheckOrigin(check func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = check
	}
}

// WithTagTimeout bounds how long one operation on the local tag may take.
// Waiting for a tag to be presented is not bounded; it ends when the peer
// goes away.
func WithTagTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// NewHandler returns a Handler serving tags from provider.
func NewHandler(provider TagProvider, opts ...HandlerOption) *Handler {
	h := &Handler{
		provider: provider,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// session is the per-connection state.
type session struct {
	tag ndefwriter.Tag
}

// maxPending is how many requests a peer may queue while one is handled.
// A client waits for each response, so only a close can pile up behind a
// connect.
const maxPending = 4

// ServeHTTP upgrades the request and serves requests until the peer
// disconnects. A held tag is closed on exit.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ndefwriter.Debugf("remote: upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(MaxMessageSize)

	// ctx ends when the peer disconnects, so a pending wait for a tag is
	// abandoned along with the client.
	ctx, cancel := context.WithCancel(r.Context())
	reqs := make(chan *Request, maxPending)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		readRequests(ctx, cancel, conn, reqs)
	}()

	s := &session{}
	defer func() {
		cancel()
		if err := s.release(); err != nil {
			ndefwriter.Debugf("remote: release on disconnect: %v", err)
		}
		_ = conn.Close()
		<-readerDone
	}()

	for {
		var req *Request
		select {
		case <-ctx.Done():
			return
		case req = <-reqs:
		}

		resp := h.handle(ctx, s, req)
		out, err := Encode(resp)
		if err != nil {
			ndefwriter.Debugf("remote: %v", err)
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
			ndefwriter.Debugf("remote: write: %v", err)
			return
		}
	}
}

// readRequests decodes requests from conn until it fails, then cancels the
// session.
func readRequests(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, reqs chan<- *Request) {
	defer cancel()
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil &&
				!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ndefwriter.Debugf("remote: read: %v", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		req := &Request{}
		if err := Decode(msg, req); err != nil {
			ndefwriter.Debugf("remote: %v", err)
			return
		}
		select {
		case reqs <- req:
		default:
			ndefwriter.Debugf("remote: peer queued more than %d requests", maxPending)
			return
		}
	}
}

func (h *Handler) handle(ctx context.Context, s *session, req *Request) *Response {
	resp := &Response{ID: req.ID}
	var err error
	switch req.Op {
	case OpConnect:
		err = h.connect(ctx, s, resp)
	case OpWrite:
		err = h.write(ctx, s, req.Data)
	case OpClose:
		err = s.release()
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)
	}

	if err != nil {
		ndefwriter.Debugf("remote: %s %s failed: %v", req.Op, req.ID, err)
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	return resp
}

func (h *Handler) connect(ctx context.Context, s *session, resp *Response) error {
	if err := s.release(); err != nil {
		ndefwriter.Debugf("remote: releasing previous tag: %v", err)
	}

	tag, err := h.provider.NextTag(ctx)
	if err != nil {
		return fmt.Errorf("no tag: %w", err)
	}
	if ndefwriter.IsNilTag(tag) {
		return errors.New("no tag")
	}

	opCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := tag.Connect(opCtx); err != nil {
		if cerr := tag.Close(); cerr != nil {
			ndefwriter.Debugf("remote: close after failed connect: %v", cerr)
		}
		return err
	}

	s.tag = tag
	resp.Writable = tag.IsWritable()
	resp.UID = ndefwriter.TagUID(tag)
	return nil
}

func (h *Handler) write(ctx context.Context, s *session, data []byte) error {
	if s.tag == nil {
		return ErrNotConnected
	}
	opCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return s.tag.WriteNDEF(opCtx, data)
}

// release closes the held tag, if any.
func (s *session) release() error {
	if s.tag == nil {
		return nil
	}
	tag := s.tag
	s.tag = nil
	if err := tag.Close(); err != nil {
		return fmt.Errorf("close tag: %w", err)
	}
	return nil
}
