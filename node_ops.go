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
	"time"

	"github.com/matrix-1996/escape-vfs/internal/freelist"
)

// ResolveResult is what Resolve returns for a successfully walked
// path.
type ResolveResult struct {
	Node    NodeNo
	Created bool // true if Resolve itself created a fresh CHANNEL child
}

// CreateDir implements create_dir(parent, name): allocate a DIR node
// and link it under parent.
func (t *Tree) CreateDir(parent NodeNo, name string, owner PID, perm Perm) (NodeNo, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.findInDirLocked(parent, name); ok {
		return NoNode, ErrFileExists
	}

	idx, n := t.arena.Alloc()
	*n = Node{name: name, typ: NodeDir, perm: perm, owner: owner, uid: uint32(owner)}
	no := NodeNo(idx)
	t.linkChildLocked(parent, no)
	return no, 0
}

// CreateFile implements create_file(parent, name, read_cb, write_cb?).
// A nil Materializer yields a plain read/write in-memory file; a
// non-nil one yields a read-only synthetic file.
func (t *Tree) CreateFile(parent NodeNo, name string, owner PID, perm Perm, m Materializer) (NodeNo, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.findInDirLocked(parent, name); ok {
		return NoNode, ErrFileExists
	}

	idx, n := t.arena.Alloc()
	var fp *filePayload
	if m != nil {
		fp = newSyntheticFilePayload(m)
	} else {
		fp = newFilePayload()
	}
	*n = Node{name: name, typ: NodeFile, perm: perm, owner: owner, uid: uint32(owner), file: fp}
	no := NodeNo(idx)
	t.linkChildLocked(parent, no)
	return no, 0
}

// CreateDriver implements create_driver(parent, name, flags): alnum
// name only (enforced by the caller, Kernel.CreateDriver); an existing
// entry of the same name under parent fails with DRIVER_EXISTS.
func (t *Tree) CreateDriver(parent NodeNo, name string, owner PID, flags DriverFlags) (NodeNo, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.findInDirLocked(parent, name); ok {
		return NoNode, ErrDriverExists
	}

	idx, n := t.arena.Alloc()
	typ := NodeDriver
	if flags&DriverSinglePipe != 0 {
		typ = NodeDriverSinglePipe
	}
	*n = Node{
		name: name, typ: typ, perm: DefaultFilePerm, owner: owner, uid: uint32(owner),
		driver: newDriverPayload(flags),
	}
	no := NodeNo(idx)
	t.linkChildLocked(parent, no)
	return no, 0
}

// CreateChannel implements create_channel(parent) -> node: allocate a
// fresh CHANNEL node as a child of a DRIVER node, owned by the process
// opening the driver.
func (t *Tree) CreateChannel(parent NodeNo, owner PID) (NodeNo, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.node(parent)
	if p.typ != NodeDriver && p.typ != NodeDriverSinglePipe {
		return NoNode, ErrInvalidArgs
	}

	idx, n := t.arena.Alloc()
	*n = Node{typ: NodeChannel, perm: DefaultFilePerm, owner: owner, uid: uint32(owner), channel: newChannelPayload()}
	no := NodeNo(idx)
	t.linkChildLocked(parent, no)
	return no, 0
}

// FindInDir implements find_in_dir(parent, name).
func (t *Tree) FindInDir(parent NodeNo, name string) (NodeNo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findInDirLocked(parent, name)
}

// Resolve implements resolve(path): walk the tree component by
// component. A component that doesn't exist under a DIR returns
// PATH_NOT_FOUND. Opening a DRIVER node (the final component) allocates
// a fresh CHANNEL child owned by owner and returns it. Real-filesystem
// subtrees are not modeled as a mount point in this educational core;
// REAL_PATH delegation is exposed via MarkRealPath for a caller that
// wants to exercise the delegation boundary without implementing a
// real FS driver.
func (t *Tree) Resolve(path string, owner PID) (ResolveResult, Errno) {
	parts := splitPath(path)

	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.root
	for i, part := range parts {
		if t.node(cur).tombstoned {
			return ResolveResult{}, ErrInvalidFile
		}

		if t.isRealPathLocked(cur, part) {
			return ResolveResult{}, errREALPATH
		}

		child, ok := t.findInDirLocked(cur, part)
		if !ok {
			return ResolveResult{}, ErrPathNotFound
		}

		cn := t.node(child)
		last := i == len(parts)-1
		if last && (cn.typ == NodeDriver || cn.typ == NodeDriverSinglePipe) {
			chIdx, ch := t.arena.Alloc()
			*ch = Node{typ: NodeChannel, perm: DefaultFilePerm, owner: owner, uid: uint32(owner), channel: newChannelPayload()}
			chNo := NodeNo(chIdx)
			t.linkChildLocked(child, chNo)
			return ResolveResult{Node: chNo, Created: true}, 0
		}

		if cn.typ == NodeLink && last {
			return ResolveResult{Node: cn.link.target}, 0
		}

		cur = child
	}

	return ResolveResult{Node: cur}, 0
}

// realPrefixes holds directory NodeNos delegated to the real
// filesystem driver. Empty by default: this core
// never mounts a real FS itself, but a caller wiring one up (see
// drivers/ for the channel-protocol shape it would use) marks the
// mount point with MarkRealPath.
func (t *Tree) isRealPathLocked(parent NodeNo, name string) bool {
	if t.realPrefixes == nil {
		return false
	}
	_, ok := t.realPrefixes[parent]
	return ok && name != ""
}

// MarkRealPath marks dir as a boundary beyond which Resolve returns
// the REAL_PATH sentinel instead of walking further, so a caller can
// delegate to a real filesystem driver reached over the channel
// protocol.
func (t *Tree) MarkRealPath(dir NodeNo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.realPrefixes == nil {
		t.realPrefixes = make(map[NodeNo]struct{})
	}
	t.realPrefixes[dir] = struct{}{}
}

// Destroy implements destroy(node): unlink from siblings, clear the
// name (tombstone), and recursively destroy children. A CHANNEL whose
// send-list is non-empty is NOT destroyed yet — the server may still
// drain requests after the client disconnects; its receive-list is freed immediately since
// no reader remains. The deferred channel is reaped later, once its
// send-list drains and no handle refers to it, by ReapChannel or by
// the DropRef of its last handle.
func (t *Tree) Destroy(no NodeNo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroyLocked(no)
}

func (t *Tree) destroyLocked(no NodeNo) {
	n := t.node(no)
	if n.tombstoned {
		return
	}

	if n.typ == NodeChannel && !n.channel.sendEmpty() {
		n.channel.clearReceiveList()
		n.tombstoned = true
		n.name = ""
		return
	}

	for c := n.first; c != NoNode; {
		cn := t.node(c)
		next := cn.next
		t.destroyLocked(c)
		c = next
	}

	t.unlinkChildLocked(no)
	n.tombstoned = true
	n.name = ""
	if n.refCount == 0 {
		t.reclaimLocked(no)
	}
}

func (t *Tree) reclaimLocked(no NodeNo) {
	t.arena.Release(freelist.Index(no))
}

// DropRef decrements a node's refcount, reclaiming its arena slot once
// it reaches zero and the node has already been tombstoned (the
// GFT-close path drives this; see GFT.CloseFile). A deferred CHANNEL
// (tombstoned but still linked under its driver) is unlinked and
// reclaimed only once its send-list is empty.
func (t *Tree) DropRef(no NodeNo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)
	n.refCount--
	if n.refCount == 0 && n.tombstoned {
		if n.typ == NodeChannel && n.channel != nil && (n.prev != NoNode || t.node(n.parent).first == no) {
			if n.channel.sendEmpty() {
				t.unlinkChildLocked(no)
				t.reclaimLocked(no)
			}
			return
		}
		t.reclaimLocked(no)
	}
}

// AddRef increments a node's refcount.
func (t *Tree) AddRef(no NodeNo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.node(no).refCount++
}

// RefCount reports a node's current refcount, a test helper for
// checking that references stay balanced.
func (t *Tree) RefCount(no NodeNo) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.node(no).refCount
}

// CheckPerm implements the permission rules: owner, then group, then
// other are selected in that order; the root process
// bypasses all checks except EXEC, which still requires at least one
// x bit to be set for *someone*.
func (t *Tree) CheckPerm(no NodeNo, who PID, uid, gid uint32, need Access) Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)

	// Select owner, then group, then other, in that order, and reduce the chosen triple to a generic rwx mask.
	var triple Perm
	switch {
	case n.uid == uid:
		triple = (n.perm >> 6) & 0x7
	case n.gid == gid:
		triple = (n.perm >> 3) & 0x7
	default:
		triple = n.perm & 0x7
	}

	anyExec := n.perm&(PermOwnerExec|PermGroupExec|PermOtherExec) != 0

	if who == RootPID {
		// Root bypasses all checks except EXEC, which still requires at
		// least one x bit set somewhere on the node.
		if need&AccessExec != 0 && !anyExec {
			return ErrNoExecPerm
		}
		return 0
	}

	const (
		r = 4
		w = 2
		x = 1
	)
	if need&AccessRead != 0 && int(triple)&r == 0 {
		return ErrNoReadPerm
	}
	if need&AccessWrite != 0 && int(triple)&w == 0 {
		return ErrNoWritePerm
	}
	if need&AccessExec != 0 && int(triple)&x == 0 {
		return ErrNoExecPerm
	}
	return 0
}

// ListChildren returns the live children of a directory-like node in
// sibling order, used for directory listings and the /system/devices
// and /dev enumerations.
func (t *Tree) ListChildren(parent NodeNo) []NodeNo {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []NodeNo
	p := t.node(parent)
	for c := p.first; c != NoNode; {
		cn := t.node(c)
		if !cn.tombstoned {
			out = append(out, c)
		}
		c = cn.next
	}
	return out
}

// NodeTypeOf reports a node's type tag and whether it is tombstoned.
func (t *Tree) NodeTypeOf(no NodeNo) (NodeType, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)
	return n.typ, n.tombstoned
}

// ParentOf returns a node's parent, or NoNode for the root.
func (t *Tree) ParentOf(no NodeNo) NodeNo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.node(no).parent
}

// NodeInfo is a read-only snapshot of a node's metadata, returned by
// Stat/Fstat.
type NodeInfo struct {
	Name     string
	Type     NodeType
	Perm     Perm
	Owner    PID
	UID, GID uint32
	RefCount int
	Mtime    time.Time
}

// Stat implements stat(path)/fstat(handle)'s file-info record.
func (t *Tree) Stat(no NodeNo) (NodeInfo, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)
	if n.tombstoned {
		return NodeInfo{}, ErrInvalidFile
	}
	return NodeInfo{
		Name: n.name, Type: n.typ, Perm: n.perm,
		Owner: n.owner, UID: n.uid, GID: n.gid, RefCount: n.refCount,
		Mtime: n.mtime,
	}, 0
}

// Touch stamps a node's modification time, called by Kernel (via its
// injected clock) on creation and after every write.
func (t *Tree) Touch(no NodeNo, when time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.node(no).mtime = when
}

// CreateLink implements link(path, target): create a LINK node named
// name under parent, pointing at target. Linking onto a directory is
// rejected by the caller (Kernel.Link) with ErrIsDir before this is
// reached.
func (t *Tree) CreateLink(parent NodeNo, name string, owner PID, target NodeNo) (NodeNo, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.findInDirLocked(parent, name); ok {
		return NoNode, ErrFileExists
	}

	idx, n := t.arena.Alloc()
	*n = Node{name: name, typ: NodeLink, perm: DefaultFilePerm, owner: owner, uid: uint32(owner), link: &linkPayload{target: target}}
	no := NodeNo(idx)
	t.linkChildLocked(parent, no)
	t.node(target).refCount++
	return no, 0
}

// CreatePipe implements the anonymous-pipe variant of create_file used
// for the /system/pipe namespace.
func (t *Tree) CreatePipe(parent NodeNo, name string, owner PID, perm Perm) (NodeNo, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.findInDirLocked(parent, name); ok {
		return NoNode, ErrFileExists
	}

	idx, n := t.arena.Alloc()
	*n = Node{name: name, typ: NodePipe, perm: perm, owner: owner, uid: uint32(owner), pipe: newPipePayload()}
	no := NodeNo(idx)
	t.linkChildLocked(parent, no)
	return no, 0
}

// Unlink implements unlink(path): remove a non-directory entry from
// its parent and destroy it. Rejects directories with ErrIsDir.
func (t *Tree) Unlink(no NodeNo) Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)
	if n.typ == NodeDir {
		return ErrIsDir
	}
	t.destroyLocked(no)
	return 0
}

// Rmdir implements rmdir(path): destroy an empty directory. Non-empty
// directories and non-directories are rejected.
func (t *Tree) Rmdir(no NodeNo) Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)
	if n.typ != NodeDir {
		return ErrNoDirectory
	}
	if n.first != NoNode {
		return ErrInvalidArgs
	}
	t.destroyLocked(no)
	return 0
}

// The realPrefixes map used by isRealPathLocked and MarkRealPath is a
// field of Tree, declared with the struct in node.go.
