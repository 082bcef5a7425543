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

// Package echo is the simplest possible driver wired against the VFS
// core: it creates a DRIVER_SERVICE node, then loops get_work/send_msg
// replying to every request with the same payload under a different
// message id — the smallest server that exercises the full real
// dispatch path rather than a mock.
package echo

import (
	"github.com/matrix-1996/escape-vfs"
)

// ReplyID is added to a request's message id for its echoed reply
// (0x10 in -> 0x11 out, matching the driver round-trip scenario).
const ReplyID = 1

// Name is the fixed /dev entry this driver registers under.
const Name = "echo"

// Serve creates the echo driver under /dev and runs its get_work loop
// until a signal interrupts the calling thread (k.Signal(pid, tid)),
// at which point it closes the driver handle and returns.
func Serve(k *vfs.Kernel, pid vfs.PID, tid vfs.TID) error {
	driverHandle, errno := k.CreateDriver(pid, Name, vfs.DriverService)
	if errno != 0 {
		return errno
	}
	defer k.Close(pid, driverHandle)

	buf := make([]byte, 4096)
	for {
		clientHandle, id, n, errno := k.GetWork(pid, tid, driverHandle, buf)
		if errno == vfs.ErrInterrupted {
			return nil
		}
		if errno != 0 {
			return errno
		}

		reply := append([]byte(nil), buf[:n]...)
		k.SendMsg(pid, clientHandle, id+ReplyID, reply)
		k.Close(pid, clientHandle)
	}
}
