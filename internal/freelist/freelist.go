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

// Package freelist implements a generic growable arena with a
// singly-linked free-list of released slots, the allocation discipline
// every table in the VFS core (the node arena and the global open-file
// table) is built on: entries are never moved once allocated, and a
// released index is reused before the arena grows.
package freelist

// List is an arena of T, indexed by a stable Index, with released slots
// recycled in LIFO order before the arena grows.
//
// Not safe for concurrent use; callers guard it with their own mutex.
type List[T any] struct {
	slots []T
	free  []int
}

// Index identifies a slot in a List. The zero Index is never issued by
// Alloc, so callers can use it as a "no entry" sentinel.
type Index int

// Alloc returns the index of a free slot, growing the arena if none is
// available, and a pointer to its zero-valued contents for the caller
// to initialize in place.
func (l *List[T]) Alloc() (Index, *T) {
	if n := len(l.free); n > 0 {
		idx := l.free[n-1]
		l.free = l.free[:n-1]
		return Index(idx + 1), &l.slots[idx]
	}

	var zero T
	l.slots = append(l.slots, zero)
	idx := len(l.slots) - 1
	return Index(idx + 1), &l.slots[idx]
}

// At returns a pointer to the slot for idx. idx must have come from
// Alloc and must not have been Released since.
func (l *List[T]) At(idx Index) *T {
	return &l.slots[int(idx)-1]
}

// Release zeroes the slot and pushes it onto the free-list so a
// subsequent Alloc reuses it.
func (l *List[T]) Release(idx Index) {
	i := int(idx) - 1
	var zero T
	l.slots[i] = zero
	l.free = append(l.free, i)
}

// Len reports the number of slots ever allocated, including released
// ones still counted against the arena (used by tests asserting no
// unbounded growth across a balanced open/close sequence).
func (l *List[T]) Len() int {
	return len(l.slots)
}

// NumFree reports how many slots are currently on the free-list.
func (l *List[T]) NumFree() int {
	return len(l.free)
}
