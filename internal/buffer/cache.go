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

// Package buffer provides the growable byte cache backing in-memory
// FILE nodes: a file's cached bytes grown contiguously as writes
// extend it, the same grow-in-place discipline as a wire message
// buffer.
package buffer

import "math"

// MaxSize is the 16-bit size cap placed on an in-memory file cache:
// a write that would exceed it fails with ERR_NOT_ENOUGH_MEM.
const MaxSize = math.MaxUint16

// Cache is a growable byte buffer used as the FILE node's payload.
type Cache struct {
	data []byte
}

// Len returns the file's current logical size.
func (c *Cache) Len() int {
	return len(c.data)
}

// ReadAt copies up to len(p) bytes starting at off into p, returning the
// number of bytes copied. It never errors; reading past the end of the
// cache simply copies zero bytes, matching a read returning 0 at EOF.
func (c *Cache) ReadAt(p []byte, off int) int {
	if off >= len(c.data) {
		return 0
	}
	n := copy(p, c.data[off:])
	return n
}

// WriteAt writes p at off, growing the cache as needed. It reports
// ok=false without mutating the cache if the write would push the
// cache past MaxSize.
func (c *Cache) WriteAt(p []byte, off int) (n int, ok bool) {
	end := off + len(p)
	if end > MaxSize {
		return 0, false
	}

	if end > len(c.data) {
		grown := make([]byte, end)
		copy(grown, c.data)
		c.data = grown
	}

	n = copy(c.data[off:end], p)
	return n, true
}
