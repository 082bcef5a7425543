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
	"github.com/matrix-1996/escape-vfs/internal/freelist"
)

// HandleNo is a stable open-file handle id, an index into the GFT
// arena.
type HandleNo freelist.Index

// NoHandle is the zero value of HandleNo, never issued by the arena.
const NoHandle HandleNo = 0

// OpenFlags are the flags a handle is opened with.
type OpenFlags uint16

const (
	FlagRead OpenFlags = 1 << iota
	FlagWrite
	FlagMsgs
	FlagNoBlock
	FlagDriver
	FlagAppend
	FlagCreate
)

// DeviceNo distinguishes virtual nodes from real-device ones; this
// core only ever issues VFSDevNo, but the field exists so a real FS
// driver delegated to via REAL_PATH can stamp its own device number.
type DeviceNo int

// VFSDevNo is the device number for every node owned by this virtual
// tree.
const VFSDevNo DeviceNo = 0

// Handle is one entry in the global open-file table.
type Handle struct {
	flags    OpenFlags // 0 marks a free slot
	owner    PID
	refCount int
	position int
	nodeNo   NodeNo
	deviceNo DeviceNo
}

// GFT is the Global Open-File Table: a growable arena
// of handles with dedup/share policy, one of the kernel's shared
// singleton tables.
type GFT struct {
	mu    syncutil.InvariantMutex
	arena freelist.List[Handle]
	tree  *Tree
}

// NewGFT creates an empty table bound to tree, whose node refcounts it
// keeps in sync with handle lifetimes.
func NewGFT(tree *Tree) *GFT {
	g := &GFT{tree: tree}
	g.mu = syncutil.NewInvariantMutex(g.checkInvariants)
	return g
}

func (g *GFT) checkInvariants() {
	// A handle's node's ref_count equals the sum of ref_count of all
	// GFT entries that target it — checked
	// opportunistically; a full cross-table scan on every lock would be
	// prohibitively slow even for an educational kernel once tests
	// exercise thousands of opens, so this only asserts internal
	// consistency of the free-list/arena bookkeeping itself.
	if g.arena.NumFree() > g.arena.Len() {
		panic("vfs: GFT free-list larger than arena")
	}
}

// handle returns h's slot, or a free-looking (flags == 0) placeholder
// if h was never issued by the arena.
func (g *GFT) handle(h HandleNo) *Handle {
	if h <= NoHandle || int(h) > g.arena.Len() {
		return &Handle{}
	}
	return g.arena.At(freelist.Index(h))
}

// OpenFile implements open_file(pid, flags, node_no, device_no) and
// its dedup/share rules.
func (g *GFT) OpenFile(pid PID, flags OpenFlags, nodeNo NodeNo, deviceNo DeviceNo) (HandleNo, Errno) {
	g.mu.Lock()
	defer g.mu.Unlock()

	typ, tombstoned := g.tree.NodeTypeOf(nodeNo)
	if tombstoned {
		// A tombstoned CHANNEL stays openable by its driver side only,
		// to drain or reply to a deferred send-list (see
		// Tree.ChannelUsable); every other tombstoned node is closed
		// for good.
		if typ != NodeChannel || flags&FlagDriver == 0 {
			return NoHandle, ErrInvalidFile
		}
	}

	freshOnly := typ == NodeChannel || typ == NodePipe

	if !freshOnly {
		// Rule 3: single-writer policy for plain files/dirs/links/
		// drivers — any existing WRITE handle on this node conflicts
		// with a new WRITE request, regardless of owner.
		if flags&FlagWrite != 0 {
			for i := 1; i <= g.arena.Len(); i++ {
				h := g.arena.At(freelist.Index(i))
				if h.flags == 0 || h.nodeNo != nodeNo || h.deviceNo != deviceNo {
					continue
				}
				if h.flags&FlagWrite != 0 {
					return NoHandle, ErrFileInUse
				}
			}
		}

		// Rule 2: dedup against an existing same-owner handle whose
		// granted flags are a superset of what's requested.
		for i := 1; i <= g.arena.Len(); i++ {
			h := g.arena.At(freelist.Index(i))
			if h.flags == 0 || h.nodeNo != nodeNo || h.deviceNo != deviceNo || h.owner != pid {
				continue
			}
			if flags&^h.flags != 0 {
				continue
			}
			h.refCount++
			g.tree.AddRef(nodeNo)
			return HandleNo(i), 0
		}
	}

	idx, h := g.arena.Alloc()
	*h = Handle{flags: flags, owner: pid, refCount: 1, nodeNo: nodeNo, deviceNo: deviceNo}
	g.tree.AddRef(nodeNo)
	return HandleNo(idx), 0
}

// CloseFile implements close_file(pid, handle): decrements the
// handle's refcount, and at zero decrements the node's and, for
// CHANNEL nodes (always anonymous and never looked up again by path),
// triggers destruction — subject to the send-list deferral rule.
func (g *GFT) CloseFile(pid PID, h HandleNo) Errno {
	g.mu.Lock()

	handle := g.handle(h)
	if handle.flags == 0 {
		g.mu.Unlock()
		return ErrInvalidArgs
	}

	handle.refCount--
	if handle.refCount > 0 {
		g.mu.Unlock()
		return 0
	}

	nodeNo := handle.nodeNo
	g.arena.Release(freelist.Index(h))
	g.mu.Unlock()

	g.tree.ChannelReleaseLock(nodeNo, h)
	g.tree.DropRef(nodeNo)

	if typ, _ := g.tree.NodeTypeOf(nodeNo); typ == NodeChannel {
		if g.tree.RefCount(nodeNo) == 0 {
			g.tree.Destroy(nodeNo)
		}
	}
	return 0
}

// Incref implements incref(handle): used by callers that hand out a
// handle value to more than one place without a fresh open.
func (g *GFT) Incref(h HandleNo) Errno {
	g.mu.Lock()
	defer g.mu.Unlock()

	handle := g.handle(h)
	if handle.flags == 0 {
		return ErrInvalidArgs
	}
	handle.refCount++
	g.tree.AddRef(handle.nodeNo)
	return 0
}

// Inherit implements fork inheritance: a handle to a
// multipipe-driver channel gets a brand-new channel (and handle) under
// the same driver, owned by child; a PIPE handle gets a fresh handle
// with independent position; everything else is shared by refcount
// bump.
func (g *GFT) Inherit(parentPID, childPID PID, h HandleNo) (HandleNo, Errno) {
	g.mu.Lock()
	orig := *g.handle(h)
	g.mu.Unlock()

	typ, tombstoned := g.tree.NodeTypeOf(orig.nodeNo)
	if tombstoned {
		return NoHandle, ErrInvalidFile
	}

	switch typ {
	case NodeChannel:
		driverNo := g.tree.ParentOf(orig.nodeNo)
		if g.tree.IsSinglePipeDriver(driverNo) {
			// Single-pipe drivers share one channel among every client;
			// inheriting just opens another handle to the same channel.
			return g.OpenFile(childPID, orig.flags, orig.nodeNo, orig.deviceNo)
		}
		newChan, errno := g.tree.CreateChannel(driverNo, childPID)
		if errno != 0 {
			return NoHandle, errno
		}
		return g.OpenFile(childPID, orig.flags, newChan, orig.deviceNo)

	case NodePipe:
		return g.OpenFile(childPID, orig.flags, orig.nodeNo, orig.deviceNo)

	default:
		g.mu.Lock()
		defer g.mu.Unlock()
		handle := g.handle(h)
		handle.refCount++
		g.tree.AddRef(handle.nodeNo)
		return h, 0
	}
}

// Position reports a handle's current byte offset.
func (g *GFT) Position(h HandleNo) (int, Errno) {
	g.mu.Lock()
	defer g.mu.Unlock()
	handle := g.handle(h)
	if handle.flags == 0 {
		return 0, ErrInvalidArgs
	}
	return handle.position, 0
}

// SetPosition sets a handle's byte offset (used by Seek and by
// Read/Write to advance it).
func (g *GFT) SetPosition(h HandleNo, pos int) Errno {
	g.mu.Lock()
	defer g.mu.Unlock()
	handle := g.handle(h)
	if handle.flags == 0 {
		return ErrInvalidArgs
	}
	handle.position = pos
	return 0
}

// HandleInfo is a read-only snapshot of a handle's fields.
type HandleInfo struct {
	Flags    OpenFlags
	Owner    PID
	RefCount int
	Position int
	NodeNo   NodeNo
	DeviceNo DeviceNo
}

// Info returns a snapshot of handle h.
func (g *GFT) Info(h HandleNo) (HandleInfo, Errno) {
	g.mu.Lock()
	defer g.mu.Unlock()
	handle := g.handle(h)
	if handle.flags == 0 {
		return HandleInfo{}, ErrInvalidArgs
	}
	return HandleInfo{
		Flags: handle.flags, Owner: handle.owner, RefCount: handle.refCount,
		Position: handle.position, NodeNo: handle.nodeNo, DeviceNo: handle.deviceNo,
	}, 0
}

// NumLiveHandles reports how many non-free slots currently exist, a
// test helper for checking that balanced opens and closes leave the
// GFT's live count unchanged.
func (g *GFT) NumLiveHandles() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.arena.Len() - g.arena.NumFree()
}
