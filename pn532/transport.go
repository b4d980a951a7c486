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
	"time"
)

// Transport carries PN532 commands to the chip and returns its responses.
// UART, I2C and SPI implementations live under transport/.
type Transport interface {
	// SendCommand sends cmd with args and returns the response payload,
	// starting with the response code cmd+1.
	SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error)

	// SetTimeout sets how long to wait for the ACK and response.
	SetTimeout(timeout time.Duration) error

	// Close releases the underlying port or bus.
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType names a transport implementation.
type TransportType string

const (
	// TransportUART is a serial port transport.
	TransportUART TransportType = "uart"
	// TransportI2C is an I2C bus transport.
	TransportI2C TransportType = "i2c"
	// TransportSPI is an SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportMock is a simulated transport for tests.
	TransportMock TransportType = "mock"
)
