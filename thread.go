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
	"github.com/jacobsa/syncutil"
)

// PID identifies a process; TID identifies a thread, unique process-wide.
type PID int
type TID int

const (
	// KernelPID is the pseudo-process the kernel itself acts as when it
	// calls a driver on a user thread's behalf (e.g. delegating to the
	// FS driver). It never blocks, "to prevent deadlocks when the
	// kernel itself calls a driver".
	KernelPID PID = 0

	// RootPID is the conventional superuser process id; Tree.CheckPerm
	// grants it every permission except a bare EXEC with no x bit set
	// anywhere.
	RootPID PID = 1
)

// ThreadState is the lifecycle state of a simulated kernel thread.
type ThreadState uint8

const (
	ThreadRunnable ThreadState = iota
	ThreadBlocked
	ThreadSuspended
	ThreadDead
)

func (s ThreadState) String() string {
	switch s {
	case ThreadRunnable:
		return "RUNNING"
	case ThreadBlocked:
		return "BLOCKED"
	case ThreadSuspended:
		return "SUSPENDED"
	case ThreadDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// thread is one simulated kernel thread. A real OS goroutine backs
// each one; State/interrupted/mask are read by other goroutines only
// through ProcessTable's mutex.
type thread struct {
	tid   TID
	pid   PID
	state ThreadState

	// interrupted is set by Signal and consumed by the next do_wait
	// iteration, causing it to return ERR_INTERRUPTED.
	interrupted bool

	// waitMask/waitObject describe what this thread is currently
	// blocked on, for /system/processes/<pid>/threads/<tid>/info.
	waitMask   EventMask
	waitObject interface{}

	suspended bool
}

type process struct {
	pid     PID
	threads map[TID]*thread
	nextTID TID
}

// ProcessTable is the process-wide thread registry backing join,
// suspend/resume, and the per-thread info files. It is a shared
// singleton table like the node arena and GFT.
type ProcessTable struct {
	mu    syncutil.InvariantMutex
	procs map[PID]*process
}

// NewProcessTable creates an empty registry with the kernel pseudo-
// process and root process pre-registered.
func NewProcessTable() *ProcessTable {
	pt := &ProcessTable{procs: make(map[PID]*process)}
	pt.mu = syncutil.NewInvariantMutex(pt.checkInvariants)
	pt.SpawnProcess(KernelPID)
	pt.SpawnProcess(RootPID)
	return pt
}

func (pt *ProcessTable) checkInvariants() {
	for pid, p := range pt.procs {
		if p.pid != pid {
			panic("vfs: process table key/pid mismatch")
		}
	}
}

// SpawnProcess registers a new process with a single initial thread
// (tid 1) and returns that thread's id.
func (pt *ProcessTable) SpawnProcess(pid PID) TID {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p := &process{pid: pid, threads: make(map[TID]*thread)}
	pt.procs[pid] = p
	return pt.spawnThreadLocked(p)
}

// SpawnThread adds a new thread to an existing process (e.g. for a
// driver that wants a dedicated server thread distinct from its main
// thread).
func (pt *ProcessTable) SpawnThread(pid PID) (TID, Errno) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p, ok := pt.procs[pid]
	if !ok {
		return 0, ErrInvalidArgs
	}
	return pt.spawnThreadLocked(p), 0
}

func (pt *ProcessTable) spawnThreadLocked(p *process) TID {
	p.nextTID++
	tid := p.nextTID
	p.threads[tid] = &thread{tid: tid, pid: p.pid, state: ThreadRunnable}
	return tid
}

// ExitThread marks a thread dead and removes it from its process.
// Callers must follow up with a wake on EvThreadDied scoped to the
// process so join() waiters re-check their predicate.
func (pt *ProcessTable) ExitThread(pid PID, tid TID) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p, ok := pt.procs[pid]
	if !ok {
		return
	}
	if th, ok := p.threads[tid]; ok {
		th.state = ThreadDead
	}
	delete(p.threads, tid)
}

// AliveThreads reports how many non-dead threads remain in pid's
// process, and whether pid itself is known.
func (pt *ProcessTable) AliveThreads(pid PID) (int, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p, ok := pt.procs[pid]
	if !ok {
		return 0, false
	}
	return len(p.threads), true
}

// ThreadExists reports whether tid is still alive anywhere in pid's
// process.
func (pt *ProcessTable) ThreadExists(pid PID, tid TID) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p, ok := pt.procs[pid]
	if !ok {
		return false
	}
	_, ok = p.threads[tid]
	return ok
}

// Signal marks tid interrupted; if it is currently blocked the caller
// is responsible for also waking it via the event table so its
// do_wait loop observes the flag promptly.
func (pt *ProcessTable) Signal(pid PID, tid TID) Errno {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p, ok := pt.procs[pid]
	if !ok {
		return ErrInvalidArgs
	}
	th, ok := p.threads[tid]
	if !ok {
		return ErrInvalidArgs
	}
	th.interrupted = true
	return 0
}

// consumeInterrupt reports and clears tid's interrupted flag.
func (pt *ProcessTable) consumeInterrupt(pid PID, tid TID) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p, ok := pt.procs[pid]
	if !ok {
		return false
	}
	th, ok := p.threads[tid]
	if !ok {
		return false
	}
	wasSet := th.interrupted
	th.interrupted = false
	return wasSet
}

func (pt *ProcessTable) setWaitInfo(pid PID, tid TID, mask EventMask, obj interface{}) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if p, ok := pt.procs[pid]; ok {
		if th, ok := p.threads[tid]; ok {
			th.state = ThreadBlocked
			th.waitMask = mask
			th.waitObject = obj
		}
	}
}

func (pt *ProcessTable) clearWaitInfo(pid PID, tid TID) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if p, ok := pt.procs[pid]; ok {
		if th, ok := p.threads[tid]; ok {
			th.state = ThreadRunnable
			th.waitMask = 0
			th.waitObject = nil
		}
	}
}

// Suspend/Resume toggle a flag the scheduler would honor; callers are
// limited to threads of the same process as the caller, enforced by
// Kernel.Suspend/Kernel.Resume (this table only stores the flag).
func (pt *ProcessTable) setSuspended(pid PID, tid TID, v bool) Errno {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p, ok := pt.procs[pid]
	if !ok {
		return ErrInvalidArgs
	}
	th, ok := p.threads[tid]
	if !ok {
		return ErrInvalidArgs
	}
	th.suspended = v
	if v {
		th.state = ThreadSuspended
	} else if th.state == ThreadSuspended {
		th.state = ThreadRunnable
	}
	return 0
}

// ThreadInfo is a snapshot used by sysfiles.go's threadInfoFile to
// render /system/processes/<pid>/threads/<tid>/info.
type ThreadInfo struct {
	TID       TID
	PID       PID
	State     ThreadState
	WaitMask  EventMask
	Suspended bool
}

func (pt *ProcessTable) ThreadInfo(pid PID, tid TID) (ThreadInfo, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p, ok := pt.procs[pid]
	if !ok {
		return ThreadInfo{}, false
	}
	th, ok := p.threads[tid]
	if !ok {
		return ThreadInfo{}, false
	}
	return ThreadInfo{TID: th.tid, PID: th.pid, State: th.state, WaitMask: th.waitMask, Suspended: th.suspended}, true
}

// ListThreads returns the tids currently alive in pid's process.
func (pt *ProcessTable) ListThreads(pid PID) []TID {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p, ok := pt.procs[pid]
	if !ok {
		return nil
	}
	out := make([]TID, 0, len(p.threads))
	for tid := range p.threads {
		out = append(out, tid)
	}
	return out
}

// ListProcesses returns every known pid, for the /system/processes
// layout and Kernel.ListProcessSummaries.
func (pt *ProcessTable) ListProcesses() []PID {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	out := make([]PID, 0, len(pt.procs))
	for pid := range pt.procs {
		out = append(out, pid)
	}
	return out
}
