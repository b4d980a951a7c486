//go:build !deadlock

// Package syncutil holds the mutex types used across the module. Builds
// with -tags=deadlock swap in github.com/sasha-s/go-deadlock so lock
// ordering problems between the reader, transports and dispatcher show up
// in tests.
package syncutil

import "sync"

// Mutex is a sync.Mutex.
//
//nolint:gocritic // embedded to expose Lock and Unlock
type Mutex struct {
	sync.Mutex
}

// RWMutex is a sync.RWMutex.
//
//nolint:gocritic // embedded to expose the lock methods
type RWMutex struct {
	sync.RWMutex
}
