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

import "github.com/matrix-1996/escape-vfs/internal/buffer"

// ReadFile implements read_file's in-memory-cache half: copy up to
// len(buf) bytes starting at pos out of a FILE node's cache, or out of
// a synthetic file's contents, materialized afresh on each call.
func (t *Tree) ReadFile(no NodeNo, pos int, buf []byte) (int, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.node(no)
	if n.tombstoned || n.file == nil {
		return 0, ErrInvalidFile
	}
	fp := n.file

	if fp.isSynthetic() {
		data, err := fp.materializer.Materialize()
		if err != nil {
			return 0, ErrNotEnoughMem
		}
		if pos >= len(data) {
			return 0, 0
		}
		return copy(buf, data[pos:]), 0
	}

	return fp.cache.ReadAt(buf, pos), 0
}

// WriteFile implements write_file's in-memory-cache half: grow-in-
// place into a FILE node's cache at pos. Synthetic files are
// read-only.
func (t *Tree) WriteFile(no NodeNo, pos int, data []byte) (int, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.node(no)
	if n.tombstoned || n.file == nil {
		return 0, ErrInvalidFile
	}
	fp := n.file
	if fp.isSynthetic() {
		return 0, ErrNoWritePerm
	}

	written, ok := fp.cache.WriteAt(data, pos)
	if !ok {
		return 0, ErrNotEnoughMem
	}
	return written, 0
}

// FileSize reports a FILE node's current logical size, used by Seek's
// WHENCE_END and by Write in FlagAppend mode.
func (t *Tree) FileSize(no NodeNo) (int, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)
	if n.tombstoned {
		return 0, ErrInvalidFile
	}
	if n.file == nil {
		return 0, 0
	}
	if n.file.isSynthetic() {
		data, err := n.file.materializer.Materialize()
		if err != nil {
			return 0, ErrNotEnoughMem
		}
		return len(data), 0
	}
	return n.file.cache.Len(), 0
}

// PipeWrite appends to a PIPE node's FIFO byte buffer.
func (t *Tree) PipeWrite(no NodeNo, data []byte) (int, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)
	if n.tombstoned || n.pipe == nil {
		return 0, ErrInvalidFile
	}
	if len(n.pipe.data)+len(data) > buffer.MaxSize {
		return 0, ErrNotEnoughMem
	}
	n.pipe.write(data)
	return len(data), 0
}

// PipeRead drains up to len(buf) bytes from a PIPE node's FIFO, and
// reports whether it was empty before the read (so the caller knows
// to block rather than return a false EOF).
func (t *Tree) PipeRead(no NodeNo, buf []byte) (int, bool, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)
	if n.tombstoned || n.pipe == nil {
		return 0, false, ErrInvalidFile
	}
	if n.pipe.empty() {
		return 0, true, 0
	}
	return n.pipe.read(buf), false, 0
}

// PipeReady reports whether a PipeRead would return data right now,
// without consuming anything, used as a doWait re-check predicate.
func (t *Tree) PipeReady(no NodeNo) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.node(no)
	return !n.tombstoned && n.pipe != nil && !n.pipe.empty()
}
