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

package pn532

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
)

// Command codes.
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSAMConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

const (
	samModeNormal      = 0x01
	samTimeoutUnits    = 0x14 // 20 * 50ms
	baudRate106TypeA   = 0x00
	rfItemMaxRetries   = 0x05
	defaultTargetIndex = 0x01
)

// Config holds device settings.
type Config struct {
	// Timeout bounds each command exchange.
	Timeout time.Duration
	// PassiveRetries is MxRtyPassiveActivation: how many times the chip
	// retries InListPassiveTarget before reporting no tag. 0xFF retries
	// forever and is not allowed here.
	PassiveRetries byte
}

// DefaultConfig returns the default device configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:        time.Second,
		PassiveRetries: 0x10,
	}
}

// Option configures a Device.
type Option func(*Config)

// WithTimeout sets the per-command timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithPassiveRetries sets the InListPassiveTarget retry count.
func WithPassiveRetries(retries byte) Option {
	return func(c *Config) {
		if retries == 0xFF {
			retries = 0xFE
		}
		c.PassiveRetries = retries
	}
}

// FirmwareVersion is the GetFirmwareVersion reply.
type FirmwareVersion struct {
	Version          string
	IC               byte
	SupportIso14443a bool
	SupportIso14443b bool
	SupportIso18092  bool
}

// DetectedTag describes a target found by InListPassiveTarget.
type DetectedTag struct {
	UID          []byte
	ATQ          []byte
	SAK          byte
	TargetNumber byte
}

// UIDString returns the UID as upper-case hex.
func (t *DetectedTag) UIDString() string {
	return strings.ToUpper(hex.EncodeToString(t.UID))
}

// IsNTAGCompatible reports whether the target looks like a Type 2 tag
// (NTAG21x or Ultralight): SAK 0x00 with a 7 byte UID.
func (t *DetectedTag) IsNTAGCompatible() bool {
	return t.SAK == 0x00 && len(t.UID) == 7
}

// Device is a PN532 reader. Commands are serialized, so a Device may be
// shared between goroutines.
type Device struct {
	transport Transport
	firmware  *FirmwareVersion
	config    Config
	mu        syncutil.Mutex
}

// New returns a Device using transport.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("pn532: nil transport")
	}
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Timeout > 0 {
		if err := transport.SetTimeout(config.Timeout); err != nil {
			return nil, fmt.Errorf("set transport timeout: %w", err)
		}
	}
	return &Device{transport: transport, config: config}, nil
}

// Transport returns the underlying transport.
func (d *Device) Transport() Transport {
	return d.transport
}

// Init checks that a PN532 answers and puts it in normal mode. It is the
// "is NFC available" check: an error means no usable reader.
func (d *Device) Init(ctx context.Context) error {
	fw, err := d.FirmwareVersion(ctx)
	if err != nil {
		return fmt.Errorf("reader not available: %w", err)
	}
	ndefwriter.Debugf("PN532 firmware %s (IC 0x%02X)", fw.Version, fw.IC)

	if err := d.SAMConfiguration(ctx); err != nil {
		return fmt.Errorf("reader not available: %w", err)
	}
	if err := d.setPassiveRetries(ctx, d.config.PassiveRetries); err != nil {
		return fmt.Errorf("reader not available: %w", err)
	}
	return nil
}

// FirmwareVersion queries the chip version.
func (d *Device) FirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	resp, err := d.command(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, err
	}
	if len(resp) < 5 {
		return nil, fmt.Errorf("%w: firmware version reply of %d bytes", ErrInvalidResponse, len(resp))
	}

	fw := &FirmwareVersion{
		IC:               resp[1],
		Version:          fmt.Sprintf("%d.%d", resp[2], resp[3]),
		SupportIso14443a: resp[4]&0x01 != 0,
		SupportIso14443b: resp[4]&0x02 != 0,
		SupportIso18092:  resp[4]&0x04 != 0,
	}

	d.mu.Lock()
	d.firmware = fw
	d.mu.Unlock()
	return fw, nil
}

// SAMConfiguration selects normal mode (no SAM) with IRQ enabled.
func (d *Device) SAMConfiguration(ctx context.Context) error {
	_, err := d.command(ctx, cmdSAMConfiguration, []byte{samModeNormal, samTimeoutUnits, 0x01})
	return err
}

func (d *Device) setPassiveRetries(ctx context.Context, retries byte) error {
	// MxRtyATR, MxRtyPSL, MxRtyPassiveActivation
	_, err := d.command(ctx, cmdRFConfiguration, []byte{rfItemMaxRetries, 0xFF, 0x01, retries})
	return err
}

// DetectTag lists one ISO14443A target. It returns ErrNoTagDetected when
// the field is empty.
func (d *Device) DetectTag(ctx context.Context) (*DetectedTag, error) {
	resp, err := d.command(ctx, cmdInListPassiveTarget, []byte{0x01, baudRate106TypeA})
	if err != nil {
		return nil, err
	}
	if len(resp) < 2 || resp[1] == 0 {
		return nil, ErrNoTagDetected
	}

	// cmd+1, NbTg, Tg, ATQ(2), SAK, UIDLen, UID
	if len(resp) < 7 {
		return nil, fmt.Errorf("%w: target reply of %d bytes", ErrInvalidResponse, len(resp))
	}
	uidLen := int(resp[6])
	if len(resp) < 7+uidLen {
		return nil, fmt.Errorf("%w: UID length %d exceeds reply", ErrInvalidResponse, uidLen)
	}

	tag := &DetectedTag{
		TargetNumber: resp[2],
		ATQ:          append([]byte(nil), resp[3:5]...),
		SAK:          resp[5],
		UID:          append([]byte(nil), resp[7:7+uidLen]...),
	}
	ndefwriter.Debugf("detected tag %s (SAK 0x%02X)", tag.UIDString(), tag.SAK)
	return tag, nil
}

// WaitForTag polls DetectTag every interval until a tag appears or ctx ends.
func (d *Device) WaitForTag(ctx context.Context, interval time.Duration) (*DetectedTag, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		tag, err := d.DetectTag(ctx)
		switch {
		case err == nil:
			return tag, nil
		case !IsTagGone(err):
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// DataExchange sends data to the selected target and returns its reply.
func (d *Device) DataExchange(ctx context.Context, data []byte) ([]byte, error) {
	args := make([]byte, 0, 1+len(data))
	args = append(args, defaultTargetIndex)
	args = append(args, data...)

	resp, err := d.command(ctx, cmdInDataExchange, args)
	if err != nil {
		return nil, err
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("%w: data exchange reply of %d bytes", ErrInvalidResponse, len(resp))
	}
	if status := resp[1] & 0x3F; status != 0 {
		return nil, &Error{Command: "InDataExchange", Code: status}
	}
	return resp[2:], nil
}

// Release deselects the current target.
func (d *Device) Release(ctx context.Context) error {
	resp, err := d.command(ctx, cmdInRelease, []byte{0x00})
	if err != nil {
		return err
	}
	if len(resp) >= 2 && resp[1] != 0 {
		return &Error{Command: "InRelease", Code: resp[1]}
	}
	return nil
}

// Close closes the transport.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// command runs one exchange and checks the response code.
func (d *Device) command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	resp, err := d.transport.SendCommand(ctx, cmd, args)
	if err != nil {
		return nil, fmt.Errorf("command 0x%02X: %w", cmd, err)
	}
	if len(resp) == 0 || resp[0] != cmd+1 {
		return nil, fmt.Errorf("%w: command 0x%02X got % X", ErrUnexpectedCommand, cmd, resp)
	}
	return resp, nil
}
