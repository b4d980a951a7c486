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

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
	"github.com/ZaparooProject/go-ndefwriter/pn532"
)

// autoDevice as -device probes serial ports for a reader.
const autoDevice = "auto"

const probeTimeout = 2 * time.Second

var errNoReader = errors.New("no PN532 reader found")

// readerPortHints are name fragments of USB serial adapters found on PN532
// boards.
var readerPortHints = []string{
	"ttyusb", "ttyacm", "usbserial", "slab_usbtouart", "usbmodem", "wchusbserial",
}

// likelyReaderPort reports whether a serial port name looks like a USB
// adapter. Windows COM ports carry no hint and are always probed.
func likelyReaderPort(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	if strings.HasPrefix(base, "com") {
		return true
	}
	for _, hint := range readerPortHints {
		if strings.Contains(base, hint) {
			return true
		}
	}
	return false
}

type openFunc func(ctx context.Context, path string) (*pn532.Device, error)

// detectDevice probes each likely port once, in order, and returns the
// first one that answers as a PN532.
func detectDevice(ctx context.Context, ports []string, open openFunc) (*pn532.Device, string, error) {
	for _, port := range ports {
		if !likelyReaderPort(port) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		device, err := open(probeCtx, port)
		cancel()
		if err == nil {
			return device, port, nil
		}
		ndefwriter.Debugf("probe %s: %v", port, err)
	}
	return nil, "", fmt.Errorf("%w among %d serial ports", errNoReader, len(ports))
}
