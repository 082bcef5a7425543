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

// Package vfs implements the core of a small educational microkernel's
// Virtual File System: a unified name-to-inode tree, a global
// open-file table, and the in-kernel message-passing driver/channel
// protocol that every user-space subsystem (filesystem, video,
// keyboard, network) is exposed through, plus the thread/event
// primitives (wait/notify, blocking I/O, join) that interlock with it.
//
// A Kernel owns every shared table (node arena, global open-file
// table, lock table, event table) and exposes the syscall surface as
// its exported methods. Drivers are
// ordinary goroutines that call CreateDriver, then loop on GetWork and
// SendMsg to serve the channels opened against them by client
// goroutines calling Open, SendMsg, Read or ReceiveMsg, and Close on
// /dev/<name> (Write is not supported on a channel handle).
package vfs
