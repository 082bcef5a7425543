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
	"fmt"
	"strings"
)

// The Materializer implementations below back the read-only files
// Kernel.bootstrap lays under /system: each one renders a live table
// afresh on every read, the same "synthesize on read" shape
// samples/memfs uses for directory listings, just pointed at the
// process/event/driver tables instead of an inode's contents field.

type processInfoFile struct {
	procs *ProcessTable
	pid   PID
}

func (m *processInfoFile) Materialize() ([]byte, error) {
	n, ok := m.procs.AliveThreads(m.pid)
	if !ok {
		return nil, fmt.Errorf("vfs: process %d gone", m.pid)
	}
	return []byte(fmt.Sprintf("pid=%d\nthreads=%d\n", m.pid, n)), nil
}

type threadInfoFile struct {
	procs *ProcessTable
	pid   PID
	tid   TID
}

func (m *threadInfoFile) Materialize() ([]byte, error) {
	info, ok := m.procs.ThreadInfo(m.pid, m.tid)
	if !ok {
		return []byte("state=DEAD\n"), nil
	}
	return []byte(fmt.Sprintf(
		"tid=%d\nstate=%s\nwait_mask=0x%x\nsuspended=%v\n",
		info.TID, info.State, info.WaitMask, info.Suspended,
	)), nil
}

// threadTraceFile is a stub: a real backtrace needs architecture-
// specific unwinding, which this core doesn't implement.
type threadTraceFile struct{}

func (threadTraceFile) Materialize() ([]byte, error) {
	return []byte("(no stack trace available in this core)\n"), nil
}

// stubFile serves a fixed line, used for the virtmem/regions
// placeholders: this core does no paging, but a real kernel's
// /system/processes tree always carries these files, so an
// empty/placeholder rendering keeps the namespace shape faithful.
type stubFile struct{ line string }

func (s stubFile) Materialize() ([]byte, error) { return []byte(s.line), nil }

// devicesFile renders one line per live DRIVER node under /dev, for
// /system/devices.
type devicesFile struct {
	tree   *Tree
	devDir NodeNo
}

func (m *devicesFile) Materialize() ([]byte, error) {
	var b strings.Builder
	for _, no := range m.tree.ListChildren(m.devDir) {
		info, ok := m.tree.DriverInfoOf(no)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s flags=0x%x owner=%d\n", info.Name, info.Flags, info.Owner)
	}
	return []byte(b.String()), nil
}
