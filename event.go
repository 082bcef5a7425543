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

import (
	"sync"
	"time"
)

// EventMask is the user-visible wake-up reason bitset.
type EventMask uint32

const (
	EvClient EventMask = 1 << iota
	EvReceivedMsg
	EvDataReadable
	EvThreadDied
	EvUserNotify0
	EvUserNotify1
	EvUserNotify2
	EvUserNotify3
)

// NotifiableMask is a subset of WaitableMask: every bit may be waited
// on, but only the user-defined bits may be sent through the
// notify() syscall — EV_CLIENT and friends are raised only by the
// kernel itself as a side effect of channel/thread operations.
const (
	WaitableMask   = EvClient | EvReceivedMsg | EvDataReadable | EvThreadDied | userNotifyMask
	NotifiableMask = userNotifyMask
	userNotifyMask = EvUserNotify0 | EvUserNotify1 | EvUserNotify2 | EvUserNotify3
)

// waiter is one blocked thread's registration in the event table.
type waiter struct {
	tid    TID
	mask   EventMask
	object interface{}
	wake   chan struct{}
}

// EventTable is the process-wide registry of blocked threads backing
// wait/wakeup/wakeup_all. Like the node arena and GFT,
// it is one of the kernel's shared singleton tables.
type EventTable struct {
	mu      sync.Mutex
	waiters map[TID]*waiter
}

// NewEventTable creates an empty event table.
func NewEventTable() *EventTable {
	return &EventTable{waiters: make(map[TID]*waiter)}
}

// register records tid as blocked on mask/object and returns the
// channel that will be closed when it's woken. object, if non-nil, is
// compared with == by WakeMatching, so it should be a comparable value
// (NodeNo, PID, or a small lock-key struct) — never a pointer whose
// identity might be recreated.
func (e *EventTable) register(tid TID, mask EventMask, object interface{}) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan struct{})
	e.waiters[tid] = &waiter{tid: tid, mask: mask, object: object, wake: ch}
	return ch
}

// unregister removes tid's waiter entry, if still present, without
// waking it (used when a condition was satisfied by the time of a
// re-check, so no actual parking ever happened).
func (e *EventTable) unregister(tid TID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.waiters, tid)
}

// WakeMatching wakes every waiter whose mask overlaps ev and, if
// object is non-nil, whose registered object equals it. This is the
// workhorse behind channel/lock notifications: pass a NodeNo to wake
// only threads waiting on that specific channel or lock ident, or nil
// for a mask-wide broadcast.
func (e *EventTable) WakeMatching(ev EventMask, object interface{}) {
	e.mu.Lock()
	var woken []*waiter
	for tid, w := range e.waiters {
		if w.mask&ev == 0 {
			continue
		}
		if object != nil && w.object != object {
			continue
		}
		woken = append(woken, w)
		delete(e.waiters, tid)
	}
	e.mu.Unlock()

	for _, w := range woken {
		close(w.wake)
	}
}

// WakeupAll wakes every waiter whose mask overlaps ev, ignoring object.
func (e *EventTable) WakeupAll(ev EventMask) {
	e.WakeMatching(ev, nil)
}

// WakeTID wakes tid specifically if it is currently blocked on a mask
// overlapping ev, used by the notify() syscall to target one thread.
func (e *EventTable) WakeTID(tid TID, ev EventMask) {
	e.mu.Lock()
	w, ok := e.waiters[tid]
	if ok {
		if w.mask&ev == 0 {
			ok = false
		} else {
			delete(e.waiters, tid)
		}
	}
	e.mu.Unlock()

	if ok {
		close(w.wake)
	}
}

// forceWake wakes tid unconditionally, regardless of its registered
// mask, and is used only to deliver a signal to a blocked thread so
// its do_wait loop promptly observes the interrupt flag.
func (e *EventTable) forceWake(tid TID) {
	e.mu.Lock()
	w, ok := e.waiters[tid]
	if ok {
		delete(e.waiters, tid)
	}
	e.mu.Unlock()

	if ok {
		close(w.wake)
	}
}

// doWait blocks a thread on an event condition: if condition already
// holds, return immediately; otherwise block on mask/object, and on
// every wake re-check condition, returning ErrInterrupted if a signal
// arrived meanwhile. For events whose satisfaction can't be verified
// post-hoc, pass a condition that always reports true on any wake
// (e.g. func() bool { return true }).
func (k *Kernel) doWait(pid PID, tid TID, mask EventMask, object interface{}, condition func() bool) Errno {
	for {
		if condition() {
			return 0
		}

		ch := k.events.register(tid, mask, object)

		// Re-check after registering to close the race where the
		// condition became true between the check above and
		// registration — a late notify while the condition still
		// holds must not cause a block.
		if condition() {
			k.events.unregister(tid)
			return 0
		}

		k.procs.setWaitInfo(pid, tid, mask, object)
		<-ch
		k.procs.clearWaitInfo(pid, tid)

		if k.procs.consumeInterrupt(pid, tid) {
			return ErrInterrupted
		}
		// Loop around: re-check condition, since this may have been a
		// wake for someone else's bit within the same mask.
	}
}

// sleepFor blocks the calling thread for the given duration; a signal
// removes it from the timer wait and returns ErrInterrupted; normal
// expiry returns 0.
func (k *Kernel) sleepFor(pid PID, tid TID, d time.Duration) Errno {
	ch := k.events.register(tid, 0, nil)
	timer := time.NewTimer(d)
	defer timer.Stop()

	k.procs.setWaitInfo(pid, tid, 0, "sleep")
	defer k.procs.clearWaitInfo(pid, tid)

	select {
	case <-timer.C:
		k.events.unregister(tid)
		return 0
	case <-ch:
		if k.procs.consumeInterrupt(pid, tid) {
			return ErrInterrupted
		}
		return 0
	}
}
