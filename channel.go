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

import "github.com/matrix-1996/escape-vfs/vfsops"

// DriverFlags are the type flags a DRIVER node is created with
//: what kind of device it presents as, plus the
// SinglePipe modifier that selects the DRIVER_SINGLEPIPE node type
// instead of plain DRIVER.
type DriverFlags uint16

const (
	DriverBlock DriverFlags = 1 << iota
	DriverChar
	DriverFS
	DriverFile
	DriverService
	DriverSinglePipe
)

// driverPayload is the DRIVER node's tagged-union member.
type driverPayload struct {
	flags    DriverFlags
	readable bool
}

func newDriverPayload(flags DriverFlags) *driverPayload {
	return &driverPayload{flags: flags, readable: true}
}

// channelPayload is the CHANNEL node's tagged-union member: two FIFOs
// of messages and a partial-read lock.
//
// The send-list carries client -> driver messages; the receive-list
// carries driver -> client replies. A handle's "side" (whether it was
// opened as a plain client handle or as a driver-side handle via
// open_client) determines which list it reads from and which it
// writes to; kernel.go derives the side from the handle's FlagDriver
// bit.
type channelPayload struct {
	sendList []vfsops.Message
	recvList []vfsops.Message

	// Partial-read lock: at most one (handle, side) pair may be
	// mid-read of a message at a time. lockedBy == NoHandle means
	// unlocked.
	lockedBy   HandleNo
	lockedSide bool // true = locked on a driver-side read of sendList
	lockedPos  int  // bytes already consumed from the locked head message
}

func newChannelPayload() *channelPayload {
	return &channelPayload{}
}

func (c *channelPayload) sendEmpty() bool { return len(c.sendList) == 0 }

func (c *channelPayload) clearReceiveList() { c.recvList = nil }

func (c *channelPayload) listFor(sideIsDriver bool) *[]vfsops.Message {
	if sideIsDriver {
		return &c.sendList
	}
	return &c.recvList
}

// ChannelSend appends msg to the appropriate list for the writer's
// side: a plain client write lands on the send-list; a driver-side
// write (a reply) lands on the receive-list.
func (t *Tree) ChannelSend(no NodeNo, sideIsDriver bool, msg vfsops.Message) Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.node(no)
	if n.tombstoned || n.channel == nil {
		return ErrInvalidFile
	}

	list := n.channel.listFor(!sideIsDriver)
	*list = append(*list, msg)
	return 0
}

// ChannelReadResult reports the outcome of one ChannelRead attempt.
type ChannelReadResult struct {
	ID       vfsops.MsgID // the head message's id, valid whenever Empty and Locked are both false
	Data     []byte
	Complete bool // true if this read consumed the rest of the head message
	Empty    bool // true if the relevant list had nothing to read
	Locked   bool // true if a different handle holds the partial-read lock
	Errno    Errno
}

// ChannelRead implements the client/driver read half of the channel
// protocol: drains at most one message, honoring the partial-read
// lock. Callers
// (Kernel.Read / Kernel.ReceiveMsg / Kernel.GetWork) are responsible
// for blocking and retrying when Empty or Locked comes back true.
func (t *Tree) ChannelRead(no NodeNo, handle HandleNo, sideIsDriver bool, bufLen int) ChannelReadResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.node(no)
	if n.channel == nil {
		return ChannelReadResult{Errno: ErrInvalidFile}
	}
	if n.tombstoned && !sideIsDriver {
		// The client side never gets here live: a client's own handle
		// is reclaimed as part of the close that tombstones the node.
		// Only a driver still draining a deferred send-list reaches a
		// tombstoned channel.
		return ChannelReadResult{Errno: ErrInvalidFile}
	}
	ch := n.channel

	if ch.lockedBy != NoHandle && ch.lockedSide == sideIsDriver && ch.lockedBy != handle {
		return ChannelReadResult{Locked: true}
	}

	list := ch.listFor(sideIsDriver)
	if len(*list) == 0 {
		return ChannelReadResult{Empty: true}
	}

	startPos := 0
	if ch.lockedBy == handle && ch.lockedSide == sideIsDriver {
		startPos = ch.lockedPos
	}

	head := (*list)[0]
	remaining := head.Payload[startPos:]

	if bufLen >= len(remaining) {
		*list = (*list)[1:]
		if ch.lockedBy == handle && ch.lockedSide == sideIsDriver {
			ch.lockedBy = NoHandle
			ch.lockedPos = 0
		}
		return ChannelReadResult{ID: head.ID, Data: remaining, Complete: true}
	}

	data := remaining[:bufLen]
	ch.lockedBy = handle
	ch.lockedSide = sideIsDriver
	ch.lockedPos = startPos + bufLen
	return ChannelReadResult{ID: head.ID, Data: data, Complete: false}
}

// ChannelReady reports whether a ChannelRead(no, handle, sideIsDriver, ...)
// call would find data to return right now, without consuming
// anything. Kernel's blocking read paths use this as the
// re-check predicate passed to doWait.
func (t *Tree) ChannelReady(no NodeNo, handle HandleNo, sideIsDriver bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.node(no)
	if n.tombstoned || n.channel == nil {
		return false
	}
	ch := n.channel
	if ch.lockedBy != NoHandle && ch.lockedSide == sideIsDriver && ch.lockedBy != handle {
		return false
	}
	return len(*ch.listFor(sideIsDriver)) > 0
}

// ChannelReleaseLock clears the partial-read lock if handle holds it,
// called when a locking handle is closed mid-read so other waiters on
// the same list become unblocked. Reports whether it actually held the
// lock; GFT.CloseFile ignores the result and Kernel.Close wakes the
// channel's waiters regardless.
func (t *Tree) ChannelReleaseLock(no NodeNo, handle HandleNo) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.node(no)
	if n.channel == nil {
		return false
	}
	ch := n.channel
	if ch.lockedBy == handle {
		ch.lockedBy = NoHandle
		ch.lockedPos = 0
		return true
	}
	return false
}

// DriverInfo is a read-only snapshot of a DRIVER node, used by the
// /system/devices listing.
type DriverInfo struct {
	Name  string
	Flags DriverFlags
	Owner PID
}

// DriverInfoOf returns a DRIVER node's flags/owner, or ok=false if no
// is not a driver or is tombstoned.
func (t *Tree) DriverInfoOf(no NodeNo) (DriverInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)
	if n.tombstoned || n.driver == nil {
		return DriverInfo{}, false
	}
	return DriverInfo{Name: n.name, Flags: n.driver.flags, Owner: n.owner}, true
}

// GetClient implements get_client(driver_handles[]) for a single
// driver node: scans its CHANNEL children in sibling order and
// returns the first whose send-list is non-empty. A channel whose
// client already disconnected still surfaces here as long as its
// send-list hasn't drained yet — destroyLocked defers unlinking such
// a channel from the driver's children for exactly this reason.
func (t *Tree) GetClient(driverNo NodeNo) (NodeNo, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.node(driverNo)
	for c := d.first; c != NoNode; {
		cn := t.node(c)
		if cn.typ == NodeChannel && cn.channel != nil && !cn.channel.sendEmpty() {
			return c, 0
		}
		c = cn.next
	}
	return NoNode, ErrNoClientWaiting
}

// ChannelSiblings returns every live CHANNEL child of a driver node,
// used to implement single-pipe broadcast wake.
func (t *Tree) ChannelSiblings(driverNo NodeNo) []NodeNo {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []NodeNo
	d := t.node(driverNo)
	for c := d.first; c != NoNode; {
		cn := t.node(c)
		if cn.typ == NodeChannel && !cn.tombstoned {
			out = append(out, c)
		}
		c = cn.next
	}
	return out
}

// IsSinglePipeDriver reports whether a driver node was created with
// DriverSinglePipe, the thundering-herd-by-design variant used when
// clients can't be told apart.
func (t *Tree) IsSinglePipeDriver(driverNo NodeNo) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.node(driverNo).typ == NodeDriverSinglePipe
}

// ChannelUsable reports whether no is a CHANNEL node at all, and
// whether sideIsDriver may still send/receive on it. A live channel is
// always usable by both sides; a tombstoned one is usable only by the
// driver side, which is the only side that can still legitimately hold
// an open handle to it (draining a deferred send-list). A reply sent
// on a tombstoned channel is still refused by ChannelSend with
// ErrInvalidFile, since no client remains to read it.
func (t *Tree) ChannelUsable(no NodeNo, sideIsDriver bool) (isChannel, usable bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)
	if n.typ != NodeChannel || n.channel == nil {
		return false, false
	}
	if !n.tombstoned {
		return true, true
	}
	return true, sideIsDriver
}

// ReapChannel attempts to finish destroying a CHANNEL node whose
// destruction was deferred because its send-list was non-empty at
// close time. Call this after draining a message from
// the send-list; once it's empty and the channel has no refs left, it
// is finally unlinked from the driver's children (destroyLocked left
// it linked so GetClient could keep offering it up) and the slot is
// reclaimed.
func (t *Tree) ReapChannel(no NodeNo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.node(no)
	if !n.tombstoned || n.channel == nil {
		return
	}
	if !n.channel.sendEmpty() {
		return
	}
	if n.refCount == 0 {
		t.unlinkChildLocked(no)
		t.reclaimLocked(no)
	}
}
