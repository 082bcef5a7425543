// Copyright 2015 Google Inc. All Rights Reserved.
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

package vfs

import "sync"

// GlobalScope is the sentinel process id used for locks keyed in the
// GLOBAL scope rather than a particular process. No
// real process is ever assigned this id.
const GlobalScope PID = -1

// Ident is the opaque 32-bit token naming an advisory lock within a
// scope.
type Ident uint32

type lockKey struct {
	scope PID
	ident Ident
}

type lockEntry struct {
	held    bool
	holder  TID
	waiters map[TID]chan struct{}
}

// LockTable provides coarse advisory locks keyed by (scope, ident). It
// is one of the kernel's shared singleton tables, guarded by its own
// mutex so that WaitUnlock's release-then-register step and a
// concurrent Notify's wake step can never interleave and lose a
// wakeup — condition-variable semantics.
type LockTable struct {
	mu    sync.Mutex
	locks map[lockKey]*lockEntry
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[lockKey]*lockEntry)}
}

func (lt *LockTable) entry(key lockKey) *lockEntry {
	e, ok := lt.locks[key]
	if !ok {
		e = &lockEntry{}
		lt.locks[key] = e
	}
	return e
}

// Acquire implements acquire(scope, ident, flags): takes the lock for
// tid if free, else fails with FILE_IN_USE.
func (lt *LockTable) Acquire(scope PID, ident Ident, tid TID) Errno {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	e := lt.entry(lockKey{scope, ident})
	if e.held {
		return ErrFileInUse
	}
	e.held = true
	e.holder = tid
	return 0
}

// Release implements release(scope, ident): only the holder may
// release.
func (lt *LockTable) Release(scope PID, ident Ident, tid TID) Errno {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	e := lt.entry(lockKey{scope, ident})
	if !e.held || e.holder != tid {
		return ErrInvalidArgs
	}
	e.held = false
	return 0
}

// beginWaitUnlock implements the release half of wait_unlock
// atomically with respect to Notify: it clears tid's hold (if any)
// and registers tid's wake channel in the same critical section, so a
// Notify that arrives concurrently either happens strictly before
// (and this call observes no waiter yet, fine) or strictly after (and
// finds tid already registered) — never in between.
func (lt *LockTable) beginWaitUnlock(scope PID, ident Ident, tid TID) <-chan struct{} {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	e := lt.entry(lockKey{scope, ident})
	if e.held && e.holder == tid {
		e.held = false
	}

	if e.waiters == nil {
		e.waiters = make(map[TID]chan struct{})
	}
	ch := make(chan struct{})
	e.waiters[tid] = ch
	return ch
}

// abandonWait removes tid's registration, used when WaitUnlock returns
// early due to a signal rather than a Notify.
func (lt *LockTable) abandonWait(scope PID, ident Ident, tid TID) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if e, ok := lt.locks[lockKey{scope, ident}]; ok {
		delete(e.waiters, tid)
	}
}

// Notify wakes every thread currently parked in WaitUnlock on
// (scope, ident).
func (lt *LockTable) Notify(scope PID, ident Ident) {
	lt.mu.Lock()
	e, ok := lt.locks[lockKey{scope, ident}]
	var woken []chan struct{}
	if ok {
		for _, ch := range e.waiters {
			woken = append(woken, ch)
		}
		e.waiters = nil
	}
	lt.mu.Unlock()

	for _, ch := range woken {
		close(ch)
	}
}
