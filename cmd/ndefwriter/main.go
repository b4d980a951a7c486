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

// Command ndefwriter writes a text NDEF record to NFC tags presented to a
// PN532 reader or lent by a remote tag bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
	"github.com/ZaparooProject/go-ndefwriter/dispatch"
	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
	"github.com/ZaparooProject/go-ndefwriter/pn532"
	"github.com/ZaparooProject/go-ndefwriter/remote"
	"github.com/ZaparooProject/go-ndefwriter/transport/i2c"
	"github.com/ZaparooProject/go-ndefwriter/transport/spi"
	"github.com/ZaparooProject/go-ndefwriter/transport/uart"
)

const (
	commandTimeout  = time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	cfg, err := loadConfig(args, env.ToMap(os.Environ()), os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if cfg.Debug {
		ndefwriter.SetDebugEnabled(true)
		if path, logErr := ndefwriter.InitSessionLog(os.TempDir()); logErr == nil {
			_, _ = fmt.Fprintf(os.Stderr, "Session log: %s\n", path)
			defer func() { _ = ndefwriter.CloseSessionLog() }()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return exitCode(run(ctx, cfg, os.Stdout), os.Stderr)
}

// attemptError is a failed write that printResult has already shown.
type attemptError struct {
	err error
}

func (e *attemptError) Error() string { return e.err.Error() }

func (e *attemptError) Unwrap() error { return e.err }

// finish returns the outcome of the last attempt. Cancellation before
// anything reached the tag is a clean stop.
func finish(ctx context.Context, res dispatch.Result) error {
	switch {
	case res.Err == nil:
		return nil
	case ctx.Err() != nil && ndefwriter.KindOf(res.Err) == ndefwriter.KindConnection:
		return ctx.Err()
	}
	return &attemptError{err: res.Err}
}

// exitCode maps the result of run to the process exit status. Cancellation
// is a clean exit unless it cut a write short.
func exitCode(err error, stderr io.Writer) int {
	var attempt *attemptError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &attempt):
		ndefwriter.Debugf("run: %v", err)
		return 1
	case errors.Is(err, context.Canceled):
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

// run picks the mode from cfg. The returned error is the last attempt's
// failure, or a setup failure.
func run(ctx context.Context, cfg Config, out io.Writer) error {
	writer := ndefwriter.NewWriter(ndefwriter.WithLanguage(cfg.Language))
	d := dispatch.New(cfg.Text,
		dispatch.WithWriter(writer),
		dispatch.WithResultHandler(printResult(out)))

	if cfg.Remote != "" {
		return runRemote(ctx, cfg, d)
	}

	device, err := localDevice(ctx, cfg.Device, out)
	if err != nil {
		_, _ = fmt.Fprintln(out, ndefwriter.MessageNoConnection)
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			ndefwriter.Debugf("close reader: %v", err)
		}
	}()

	if cfg.Listen != "" {
		return serveBridge(ctx, cfg, device, out)
	}
	return runLocal(ctx, cfg, d, device)
}

func printResult(out io.Writer) func(dispatch.Result) {
	return func(res dispatch.Result) {
		if res.UID != "" {
			_, _ = fmt.Fprintf(out, "%s [%s]\n", res.Message, res.UID)
			return
		}
		_, _ = fmt.Fprintln(out, res.Message)
	}
}

// newTransport chooses I2C or SPI for bus paths and UART otherwise.
func newTransport(path string) (pn532.Transport, error) {
	switch lower := strings.ToLower(path); {
	case strings.Contains(lower, "i2c"):
		t, err := i2c.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport for %s: %w", path, err)
		}
		return t, nil
	case strings.Contains(lower, "spi"):
		t, err := spi.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
		}
		return t, nil
	}
	t, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return t, nil
}

func localDevice(ctx context.Context, path string, out io.Writer) (*pn532.Device, error) {
	if path != autoDevice {
		return openDevice(ctx, path)
	}
	ports, err := uart.Ports()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	device, port, err := detectDevice(ctx, ports, openDevice)
	if err != nil {
		return nil, err
	}
	_, _ = fmt.Fprintf(out, "Using reader on %s\n", port)
	return device, nil
}

func openDevice(ctx context.Context, path string) (*pn532.Device, error) {
	transport, err := newTransport(path)
	if err != nil {
		return nil, err
	}
	return initDevice(ctx, transport)
}

func initDevice(ctx context.Context, transport pn532.Transport) (*pn532.Device, error) {
	device, err := pn532.New(transport, pn532.WithTimeout(commandTimeout))
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("create reader: %w", err)
	}
	if err := device.Init(ctx); err != nil {
		_ = device.Close()
		return nil, err
	}
	return device, nil
}

// runLocal writes to tags presented to the reader. In continuous mode a
// tag must leave the field before it is written again.
func runLocal(ctx context.Context, cfg Config, d *dispatch.Dispatcher, device *pn532.Device) error {
	for {
		detected, err := device.WaitForTag(ctx, cfg.PollInterval)
		if err != nil {
			return fmt.Errorf("wait for tag: %w", err)
		}

		res := d.Handle(ctx, pn532.NewNTAGTag(device, detected))
		if !cfg.Continuous || (res.Err != nil && ctx.Err() != nil) {
			return finish(ctx, res)
		}
		if err := waitRemoved(ctx, device, detected.UIDString(), cfg.PollInterval); err != nil {
			return err
		}
	}
}

// waitRemoved returns once the tag with uid is no longer in the field.
// Another tag taking its place counts as a removal.
func waitRemoved(ctx context.Context, device *pn532.Device, uid string, interval time.Duration) error {
	for {
		detected, err := device.DetectTag(ctx)
		switch {
		case pn532.IsTagGone(err):
			return nil
		case err == nil && detected.UIDString() != uid:
			return nil
		case err != nil && ctx.Err() == nil:
			ndefwriter.Debugf("waiting for removal: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// runRemote borrows tags from a bridge. The bridge blocks until a tag is
// presented, so each attempt waits for the next tag.
func runRemote(ctx context.Context, cfg Config, d *dispatch.Dispatcher) error {
	for {
		res := d.Handle(ctx, remote.NewTag(cfg.Remote))
		if !cfg.Continuous || (res.Err != nil && ctx.Err() != nil) {
			return finish(ctx, res)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}
}

// readerProvider lends tags detected by device. A tag is lent once per
// presentation: the next loan waits until the previous tag has left the
// field.
type readerProvider struct {
	device   *pn532.Device
	interval time.Duration
	mu       syncutil.Mutex
	lentUID  string
}

func newReaderProvider(device *pn532.Device, interval time.Duration) *readerProvider {
	return &readerProvider{device: device, interval: interval}
}

// NextTag implements remote.TagProvider.
func (p *readerProvider) NextTag(ctx context.Context) (ndefwriter.Tag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lentUID != "" {
		if err := waitRemoved(ctx, p.device, p.lentUID, p.interval); err != nil {
			return nil, fmt.Errorf("wait for removal: %w", err)
		}
		p.lentUID = ""
	}

	detected, err := p.device.WaitForTag(ctx, p.interval)
	if err != nil {
		return nil, fmt.Errorf("wait for tag: %w", err)
	}
	p.lentUID = detected.UIDString()
	return pn532.NewNTAGTag(p.device, detected), nil
}

// serveBridge lends the local reader to remote writers until ctx ends.
func serveBridge(ctx context.Context, cfg Config, device *pn532.Device, out io.Writer) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           remote.NewHandler(newReaderProvider(device, cfg.PollInterval)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	_, _ = fmt.Fprintf(out, "Serving tag bridge on %s\n", cfg.Listen)

	select {
	case err := <-errCh:
		return fmt.Errorf("bridge: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bridge shutdown: %w", err)
	}
	return ctx.Err()
}
