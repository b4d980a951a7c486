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

// Package dispatch turns tag arrivals into write attempts. Attempts run one
// at a time and each produces a Result with the message to show the user.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
)

// Result is the outcome of one write attempt.
type Result struct {
	Started  time.Time
	Err      error
	UID      string
	Message  string
	Duration time.Duration
	Kind     ndefwriter.ErrorKind
	ID       uuid.UUID
}

// OK reports whether the write succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Dispatcher writes the current text to every tag it is handed.
type Dispatcher struct {
	writer   *ndefwriter.Writer
	onResult func(Result)
	text     string
	textMu   syncutil.RWMutex
	busy     syncutil.Mutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWriter replaces the default ndefwriter.Writer.
func WithWriter(w *ndefwriter.Writer) Option {
	return func(d *Dispatcher) {
		if w != nil {
			d.writer = w
		}
	}
}

// WithResultHandler registers fn to receive every Result. fn runs on the
// dispatching goroutine before the next tag is handled.
func WithResultHandler(fn func(Result)) Option {
	return func(d *Dispatcher) {
		d.onResult = fn
	}
}

// New returns a Dispatcher that writes text.
func New(text string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		writer: ndefwriter.NewWriter(),
		text:   text,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetText changes the text for subsequent attempts. An attempt already in
// progress keeps the text it started with.
func (d *Dispatcher) SetText(text string) {
	d.textMu.Lock()
	defer d.textMu.Unlock()
	d.text = text
}

// Text returns the text the next attempt will write.
func (d *Dispatcher) Text() string {
	d.textMu.RLock()
	defer d.textMu.RUnlock()
	return d.text
}

// Handle writes the current text to tag. Concurrent calls are serialized.
func (d *Dispatcher) Handle(ctx context.Context, tag ndefwriter.Tag) Result {
	d.busy.Lock()
	defer d.busy.Unlock()

	res := Result{ID: uuid.New(), Started: time.Now()}
	err := d.writer.Write(ctx, d.Text(), tag)
	res.Duration = time.Since(res.Started)
	res.Err = err
	res.Kind = ndefwriter.KindOf(err)
	res.Message = ndefwriter.UserMessage(err)
	res.UID = ndefwriter.TagUID(tag)

	if err != nil {
		ndefwriter.Debugf("attempt %s: %s: %v", res.ID, res.Message, err)
	} else {
		ndefwriter.Debugf("attempt %s: wrote tag %s in %v", res.ID, res.UID, res.Duration)
	}

	if d.onResult != nil {
		d.onResult(res)
	}
	return res
}

// Run handles tags from the channel until it is closed or ctx ends. It
// returns ctx.Err() on cancellation and nil when tags is closed.
func (d *Dispatcher) Run(ctx context.Context, tags <-chan ndefwriter.Tag) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tag, ok := <-tags:
			if !ok {
				return nil
			}
			d.Handle(ctx, tag)
		}
	}
}
