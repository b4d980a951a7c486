//go:build deadlock

package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

func init() {
	// Tag writes block on RF I/O for up to a few seconds.
	deadlock.Opts.DeadlockTimeout = 10 * time.Second
}

// Mutex is a deadlock.Mutex.
//
//nolint:gocritic // embedded to expose Lock and Unlock
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock.RWMutex.
//
//nolint:gocritic // embedded to expose the lock methods
type RWMutex struct {
	deadlock.RWMutex
}
