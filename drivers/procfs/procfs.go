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

// Package procfs is a demonstration driver reached over the
// create_driver/get_work/send_msg channel protocol rather than the
// core's own /system/processes synthetic files: it shows how a
// userspace-style server built entirely out of the exported Kernel
// syscall surface can expose the same process-table information a
// real procfs-style service would, without any special access the
// core doesn't also grant a client.
package procfs

import (
	"fmt"
	"strconv"

	"github.com/matrix-1996/escape-vfs"
	"github.com/matrix-1996/escape-vfs/vfsops"
)

// Message ids understood by this driver.
const (
	MsgListProcesses = 0x01 // request: empty payload. reply: newline-joined "pid threads=n" entries.
	MsgProcessInfo   = 0x02 // request: decimal pid as ASCII. reply: "pid=.. threads=.."; reply id MsgUnknown if not found.
	MsgUnknown       = 0xff // reply id used for an unrecognized request or lookup miss.
)

// Name is the fixed /dev entry this driver registers under.
const Name = "procfs"

// Serve creates the procfs driver under /dev and runs its get_work
// loop until the calling thread is signaled.
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

		replyID, payload := handle(k, byte(id), buf[:n])
		k.SendMsg(pid, clientHandle, vfsops.MsgID(replyID), payload)
		k.Close(pid, clientHandle)
	}
}

func handle(k *vfs.Kernel, id byte, payload []byte) (byte, []byte) {
	switch id {
	case MsgListProcesses:
		var out []byte
		for i, info := range k.ListProcessSummaries() {
			if i > 0 {
				out = append(out, '\n')
			}
			out = append(out, []byte(fmt.Sprintf("%d threads=%d", info.PID, info.Threads))...)
		}
		return MsgListProcesses, out

	case MsgProcessInfo:
		n, err := strconv.Atoi(string(payload))
		if err != nil {
			return MsgUnknown, []byte("?")
		}
		info, ok := k.ProcessSummary(vfs.PID(n))
		if !ok {
			return MsgUnknown, []byte("?")
		}
		return MsgProcessInfo, []byte(fmt.Sprintf("pid=%d threads=%d", info.PID, info.Threads))

	default:
		return MsgUnknown, nil
	}
}
