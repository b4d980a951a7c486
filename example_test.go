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

package ndefwriter_test

import (
	"context"
	"fmt"

	ndefwriter "github.com/ZaparooProject/go-ndefwriter"
	virt "github.com/ZaparooProject/go-ndefwriter/internal/testing"
)

func ExampleWriter_Encode() {
	data, err := ndefwriter.NewWriter().Encode("Hi")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("% X\n", data)
	// Output: D1 01 05 54 02 65 6E 48 69
}

func ExampleWriter_Write() {
	tag := virt.NewVirtualTag("04A224B2C35C80")
	err := ndefwriter.NewWriter().Write(context.Background(), "Hi", tag)
	fmt.Println(ndefwriter.UserMessage(err))
	fmt.Printf("% X\n", tag.Stored())
	// Output:
	// Text written to tag
	// D1 01 05 54 02 65 6E 48 69
}

func ExampleUserMessage() {
	tag := virt.NewVirtualTag("04A224B2C35C80")
	tag.ReadOnly = true

	err := ndefwriter.NewWriter().Write(context.Background(), "Hi", tag)
	fmt.Println(ndefwriter.KindOf(err))
	fmt.Println(ndefwriter.UserMessage(err))
	// Output:
	// not writable
	// Tag is read-only
}
