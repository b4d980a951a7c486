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

// Package ndefwriter writes a text string onto an NFC tag as a single NDEF
// well-known Text record.
//
// The package does not talk to hardware itself. A reader driver, remote
// bridge or test fake supplies a Tag, and a Writer runs one write attempt
// against it:
//
//	w := ndefwriter.NewWriter(ndefwriter.WithLanguage("en"))
//	if err := w.Write(ctx, "Hello", tag); err != nil {
//		fmt.Println(ndefwriter.UserMessage(err))
//	}
//
// Every attempt either succeeds or returns a *WriteError whose Kind says
// which step failed. The tag is always closed before Write returns once a
// connection has been attempted.
package ndefwriter
