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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	virt "github.com/ZaparooProject/go-ndefwriter/internal/testing"
	"github.com/ZaparooProject/go-ndefwriter/pn532"
)

var errNotAReader = errors.New("not a reader")

func TestLikelyReaderPort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"/dev/ttyUSB0", true},
		{"/dev/ttyACM1", true},
		{"/dev/cu.usbserial-1410", true},
		{"/dev/cu.SLAB_USBtoUART", true},
		{"COM3", true},
		{"/dev/ttyS0", false},
		{"/dev/cu.Bluetooth-Incoming-Port", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, likelyReaderPort(tt.name))
		})
	}
}

func TestDetectDeviceFirstAnsweringPort(t *testing.T) {
	t.Parallel()

	var probed []string
	open := func(ctx context.Context, path string) (*pn532.Device, error) {
		probed = append(probed, path)
		if path != "/dev/ttyUSB1" {
			return nil, errNotAReader
		}
		return initDevice(ctx, virt.NewSimulatorTransport(virt.NewVirtualPN532()))
	}

	device, port, err := detectDevice(context.Background(),
		[]string{"/dev/ttyS0", "/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2"}, open)
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Close() })

	assert.Equal(t, "/dev/ttyUSB1", port)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, probed)
}

func TestDetectDeviceNoReader(t *testing.T) {
	t.Parallel()

	open := func(context.Context, string) (*pn532.Device, error) {
		return nil, errNotAReader
	}

	_, _, err := detectDevice(context.Background(), []string{"/dev/ttyUSB0"}, open)
	require.ErrorIs(t, err, errNoReader)

	_, _, err = detectDevice(context.Background(), nil, open)
	require.ErrorIs(t, err, errNoReader)
}

func TestDetectDeviceCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	open := func(context.Context, string) (*pn532.Device, error) {
		t.Fatal("probed after cancel")
		return nil, nil
	}

	_, _, err := detectDevice(ctx, []string{"/dev/ttyUSB0"}, open)
	require.ErrorIs(t, err, context.Canceled)
}
