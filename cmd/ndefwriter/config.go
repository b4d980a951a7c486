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

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"

	"github.com/ZaparooProject/go-ndefwriter/pkg/ndef"
)

// Config is read from NDEFWRITER_* variables first; flags override it.
type Config struct {
	Text         string        `env:"NDEFWRITER_TEXT"`
	Language     string        `env:"NDEFWRITER_LANG" envDefault:"en"`
	Device       string        `env:"NDEFWRITER_DEVICE"`
	Remote       string        `env:"NDEFWRITER_REMOTE"`
	Listen       string        `env:"NDEFWRITER_LISTEN"`
	PollInterval time.Duration `env:"NDEFWRITER_POLL_INTERVAL" envDefault:"250ms"`
	Continuous   bool          `env:"NDEFWRITER_CONTINUOUS"`
	Debug        bool          `env:"NDEFWRITER_DEBUG"`
}

var (
	errNoSource      = errors.New("one of -device or -remote is required")
	errBothSources   = errors.New("-device and -remote are mutually exclusive")
	errListenNoLocal = errors.New("-listen needs a local -device")
	errBadInterval   = errors.New("-poll-interval must be positive")
)

// loadConfig parses environ and then args.
func loadConfig(args []string, environ map[string]string, output io.Writer) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("ndefwriter", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.Text, "text", cfg.Text, "Text to write to the tag")
	fs.StringVar(&cfg.Language, "lang", cfg.Language, "IANA language code stored in the record")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "PN532 serial port, I2C bus or SPI device (\"auto\" probes serial ports)")
	fs.StringVar(&cfg.Remote, "remote", cfg.Remote, "WebSocket URL of a remote tag bridge")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "Serve the local reader as a tag bridge on this address")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Interval between tag polls")
	fs.BoolVar(&cfg.Continuous, "continuous", cfg.Continuous, "Keep writing to every new tag")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug output and a session log")
	if err := fs.Parse(args); err != nil {
		return cfg, err //nolint:wrapcheck // flag already reports the problem
	}

	lang, err := canonicalLanguage(cfg.Language)
	if err != nil {
		return cfg, err
	}
	cfg.Language = lang

	switch {
	case cfg.Device == "" && cfg.Remote == "":
		return cfg, errNoSource
	case cfg.Device != "" && cfg.Remote != "":
		return cfg, errBothSources
	case cfg.Listen != "" && cfg.Device == "":
		return cfg, errListenNoLocal
	case cfg.PollInterval <= 0:
		return cfg, errBadInterval
	}
	return cfg, nil
}

// canonicalLanguage checks code is a well-formed BCP 47 tag that fits in a
// Text record and returns its canonical form.
func canonicalLanguage(code string) (string, error) {
	if code == "" {
		return ndef.DefaultLanguage, nil
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", code, err)
	}
	canonical := tag.String()
	if len(canonical) > 63 {
		return "", fmt.Errorf("invalid language %q: %w", code, ndef.ErrLanguageTooLong)
	}
	return canonical, nil
}
