// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package engine

import (
	"strconv"
	"sync"
)

// Locker is a non-blocking mutual exclusion table keyed by string. The
// in-process implementation is MemoryLocker; a distributed mutex can be
// substituted without touching the engine.
type Locker interface {
	// TryLock acquires key if it is free and reports whether it did.
	TryLock(key string) bool
	// Unlock releases key. Releasing a free key is a no-op.
	Unlock(key string)
}

// MemoryLocker is a process-local Locker
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an empty lock table
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// TryLock implements Locker
func (l *MemoryLocker) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

// Unlock implements Locker
func (l *MemoryLocker) Unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

// Held reports whether key is currently locked
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.held[key]
	return busy
}

// JobLockKey is the lock key for a scheduled or manual job run
func JobLockKey(jobID int64) string {
	return "job:" + strconv.FormatInt(jobID, 10)
}

// TagLockKey is the lock key for an ad-hoc run by tag
func TagLockKey(tagID int64) string {
	return "tag:" + strconv.FormatInt(tagID, 10)
}

// RestoreLockKey serializes restores into one destination target
func RestoreLockKey(targetID int64) string {
	return "restore:" + strconv.FormatInt(targetID, 10)
}
