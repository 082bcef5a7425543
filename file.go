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

// Materializer is the capability a synthetic FILE node carries instead
// of a bare function pointer: a small interface describing how to
// produce bytes on demand. Drivers
// like drivers/procfs implement it to back files such as
// /system/processes/<pid>/info without the node itself holding
// arbitrary code.
type Materializer interface {
	// Materialize returns the full current contents of the file. It is
	// called on every read and every size query of a synthetic file;
	// no snapshot is kept per handle, so successive reads through one
	// handle can see different contents.
	Materialize() ([]byte, error)
}

// filePayload is the FILE node's tagged-union member: either a
// writable growable cache, or a read-only Materializer snapshot.
type filePayload struct {
	cache        buffer.Cache
	materializer Materializer
}

func newFilePayload() *filePayload {
	return &filePayload{}
}

func newSyntheticFilePayload(m Materializer) *filePayload {
	return &filePayload{materializer: m}
}

func (f *filePayload) isSynthetic() bool { return f.materializer != nil }
