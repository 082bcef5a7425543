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
	"strings"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/matrix-1996/escape-vfs/internal/freelist"
)

// NodeNo is a stable handle for a node, an index into the Tree's
// arena rather than an owning pointer: this is how the parent<->children
// cycle is represented without Go pointer cycles tripping up anything
// that walks owning references.
type NodeNo freelist.Index

// NoNode is the zero value of NodeNo, never issued by the arena.
const NoNode NodeNo = 0

// NodeType is the type tag of a node's payload union.
type NodeType uint8

const (
	NodeDir NodeType = iota
	NodeFile
	NodeChannel
	NodeDriver
	NodeDriverSinglePipe
	NodePipe
	NodeLink
	NodeDevice
)

func (t NodeType) String() string {
	switch t {
	case NodeDir:
		return "dir"
	case NodeFile:
		return "file"
	case NodeChannel:
		return "channel"
	case NodeDriver:
		return "driver"
	case NodeDriverSinglePipe:
		return "driver-singlepipe"
	case NodePipe:
		return "pipe"
	case NodeLink:
		return "link"
	case NodeDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Perm is the rwx-for-owner/group/other + sticky permission bitfield,
// laid out like a POSIX mode's low bits: owner in the high triple,
// then group, then other.
type Perm uint16

const (
	PermOtherExec Perm = 1 << iota
	PermOtherWrite
	PermOtherRead
	PermGroupExec
	PermGroupWrite
	PermGroupRead
	PermOwnerExec
	PermOwnerWrite
	PermOwnerRead
	PermSticky
)

// Access is a category-agnostic request for read/write/exec,
// independent of which triple (owner/group/other) ends up granting
// it — see Tree.CheckPerm.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
	AccessExec
)

// DefaultDirPerm and DefaultFilePerm mirror the umask-free defaults
// used by Kernel.bootstrap when laying out the pseudo-filesystem.
const (
	DefaultDirPerm  = PermOwnerRead | PermOwnerWrite | PermOwnerExec | PermGroupRead | PermGroupExec | PermOtherRead | PermOtherExec
	DefaultFilePerm = PermOwnerRead | PermOwnerWrite | PermGroupRead | PermOtherRead
)

// Node is an entry in the namespace. It carries tree relationships as
// NodeNo indices, not pointers, per the arena design.
type Node struct {
	// name is empty for the root. tombstoned marks a node that has been
	// destroy()ed but whose slot is still referenced by an open handle.
	name       string
	tombstoned bool

	parent NodeNo
	first  NodeNo
	last   NodeNo
	prev   NodeNo
	next   NodeNo

	typ  NodeType
	perm Perm

	owner PID
	uid   uint32
	gid   uint32

	refCount int

	// mtime is stamped by the caller (Kernel, via its injected clock)
	// on creation and on every WriteFile; the tree itself never touches
	// it internally.
	mtime time.Time

	// Exactly one of these is non-nil, selected by typ: a tagged variant
	// over node type in place of a function-pointer-carrying union.
	file    *filePayload
	channel *channelPayload
	driver  *driverPayload
	link    *linkPayload
	pipe    *pipePayload
}

func (n *Node) isDir() bool { return n.typ == NodeDir }

// Tree is the namespace: a single arena of nodes plus the sibling/
// child links that make it a tree, guarded by one invariant-checking
// mutex — the node tree is one of the kernel's process-wide shared
// tables.
type Tree struct {
	mu           syncutil.InvariantMutex
	arena        freelist.List[Node]
	root         NodeNo
	realPrefixes map[NodeNo]struct{}
}

// NewTree creates an empty tree with just a root directory, owned by
// the kernel pseudo-process (PID 0).
func NewTree() *Tree {
	t := &Tree{}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)

	idx, n := t.arena.Alloc()
	*n = Node{
		name:  "",
		typ:   NodeDir,
		perm:  DefaultDirPerm,
		owner: KernelPID,
		uid:   uint32(KernelPID),
	}
	t.root = NodeNo(idx)

	return t
}

func (t *Tree) checkInvariants() {
	// Every non-root node has a non-null parent.
	// Walking the whole arena on every lock/unlock is O(n); acceptable
	// for an educational kernel's test builds, same tradeoff the
	// teacher makes with memfs's per-method checkInvariants.
	for i := 1; i <= t.arena.Len(); i++ {
		no := NodeNo(i)
		n := t.arena.At(freelist.Index(no))
		if n.refCount == 0 && n.name == "" && no != t.root {
			// Released slot; freelist has zeroed it. Skip.
			continue
		}
		if no != t.root && n.parent == NoNode && !n.tombstoned {
			panic("vfs: node with no parent found in tree")
		}
		if (n.first == NoNode) != (n.last == NoNode) {
			panic("vfs: first_child/last_child null mismatch")
		}
	}
}

func (t *Tree) node(no NodeNo) *Node {
	return t.arena.At(freelist.Index(no))
}

// Root returns the root directory's node number.
func (t *Tree) Root() NodeNo { return t.root }

// findInDirLocked implements find_in_dir: a linear scan of the
// sibling list, which is how this namespace is small enough (an
// in-memory educational kernel, not a production FS) to get away with
// no separate name index.
func (t *Tree) findInDirLocked(parent NodeNo, name string) (NodeNo, bool) {
	p := t.node(parent)
	for c := p.first; c != NoNode; {
		cn := t.node(c)
		if cn.name == name && !cn.tombstoned {
			return c, true
		}
		c = cn.next
	}
	return NoNode, false
}

// linkChildLocked appends a newly allocated child to parent's sibling
// list.
func (t *Tree) linkChildLocked(parent, child NodeNo) {
	p := t.node(parent)
	c := t.node(child)
	c.parent = parent

	if p.last == NoNode {
		p.first = child
		p.last = child
	} else {
		last := t.node(p.last)
		last.next = child
		c.prev = p.last
		p.last = child
	}
}

// unlinkChildLocked removes child from its parent's sibling list
// without destroying it.
func (t *Tree) unlinkChildLocked(child NodeNo) {
	c := t.node(child)
	p := t.node(c.parent)

	if c.prev != NoNode {
		t.node(c.prev).next = c.next
	} else {
		p.first = c.next
	}
	if c.next != NoNode {
		t.node(c.next).prev = c.prev
	} else {
		p.last = c.prev
	}

	c.prev = NoNode
	c.next = NoNode
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	return out
}
