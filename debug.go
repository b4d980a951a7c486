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

package ndefwriter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-ndefwriter/internal/syncutil"
)

var (
	logMu            syncutil.Mutex
	debugEnabled     = os.Getenv("NDEFWRITER_DEBUG") != "" || os.Getenv("DEBUG") != ""
	sessionLogFile   *os.File
	sessionLogPath   string
	sessionLogWriter io.Writer
)

// Debugf logs a debug line. It always goes to the session log when one is
// open and to stdout only when debug output is enabled.
func Debugf(format string, args ...any) {
	writeDebug(fmt.Sprintf(format, args...))
}

// Debugln is the Sprint form of Debugf.
func Debugln(args ...any) {
	writeDebug(strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

func writeDebug(message string) {
	logMu.Lock()
	defer logMu.Unlock()

	if sessionLogWriter != nil {
		timestamp := time.Now().Format("15:04:05.000")
		_, _ = fmt.Fprintf(sessionLogWriter, "%s DEBUG: %s\n", timestamp, message)
	}
	if debugEnabled {
		_, _ = fmt.Printf("DEBUG: %s\n", message)
	}
}

// SetDebugEnabled turns console debug output on or off.
func SetDebugEnabled(enabled bool) {
	logMu.Lock()
	defer logMu.Unlock()
	debugEnabled = enabled
}

// DebugEnabled reports whether console debug output is on.
func DebugEnabled() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return debugEnabled
}

// InitSessionLog creates a timestamped session log file in dir (the current
// directory when dir is empty) and returns its path.
func InitSessionLog(dir string) (string, error) {
	name := fmt.Sprintf("ndefwriter_%s.log", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path) //nolint:gosec // file name is generated here
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	logMu.Lock()
	defer logMu.Unlock()
	if sessionLogFile != nil {
		_ = sessionLogFile.Close()
	}
	sessionLogFile = f
	sessionLogPath = path
	sessionLogWriter = f
	writeSessionHeader(f)

	return path, nil
}

// CloseSessionLog closes the session log opened by InitSessionLog.
func CloseSessionLog() error {
	logMu.Lock()
	defer logMu.Unlock()

	if sessionLogFile == nil {
		return nil
	}
	_, _ = fmt.Fprintf(sessionLogWriter, "\n%s === Session ended ===\n", time.Now().Format("15:04:05.000"))

	err := sessionLogFile.Close()
	sessionLogFile = nil
	sessionLogPath = ""
	sessionLogWriter = nil
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// SessionLogPath returns the path of the open session log, if any.
func SessionLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	return sessionLogPath
}

func writeSessionHeader(w io.Writer) {
	_, _ = fmt.Fprint(w, "=== ndefwriter Debug Session Log ===\n")
	_, _ = fmt.Fprintf(w, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(w, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(w, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(w, "====================================\n\n")
}
