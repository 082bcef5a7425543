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

// Command escapectl is a small demonstration CLI: it boots a Kernel
// in-process, starts the echo driver, and round-trips a message
// through /dev/echo, printing vfs.Errno results translated to their
// nearest POSIX errno for a more familiar read-out.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jacobsa/timeutil"
	"golang.org/x/sys/unix"

	vfs "github.com/matrix-1996/escape-vfs"
	"github.com/matrix-1996/escape-vfs/drivers/echo"
)

// toErrno maps a vfs.Errno onto the nearest POSIX errno for display
// purposes only; the kernel's own error handling never uses this
// mapping internally.
func toErrno(e vfs.Errno) unix.Errno {
	switch e {
	case 0:
		return 0
	case vfs.ErrInvalidFile:
		return unix.EBADF
	case vfs.ErrInvalidArgs:
		return unix.EINVAL
	case vfs.ErrNoFreeFD, vfs.ErrNoFreeFile:
		return unix.EMFILE
	case vfs.ErrNoReadPerm, vfs.ErrNoWritePerm, vfs.ErrNoExecPerm, vfs.ErrNotOwnDriver:
		return unix.EACCES
	case vfs.ErrNotEnoughMem:
		return unix.ENOMEM
	case vfs.ErrFileExists, vfs.ErrDriverExists:
		return unix.EEXIST
	case vfs.ErrFileInUse:
		return unix.EBUSY
	case vfs.ErrPathNotFound, vfs.ErrNoFileOrLink:
		return unix.ENOENT
	case vfs.ErrIsDir:
		return unix.EISDIR
	case vfs.ErrNoDirectory:
		return unix.ENOTDIR
	case vfs.ErrInvDriverName:
		return unix.EINVAL
	case vfs.ErrNoClientWaiting:
		return unix.EAGAIN
	case vfs.ErrUnsupportedOp:
		return unix.ENOSYS
	case vfs.ErrInterrupted:
		return unix.EINTR
	default:
		return unix.EIO
	}
}

func fail(what string, e vfs.Errno) {
	fmt.Fprintf(os.Stderr, "%s: %v (%v)\n", what, e, toErrno(e))
	os.Exit(1)
}

func main() {
	flag.Parse()

	k := vfs.NewKernel(timeutil.RealClock())

	driverPID, driverTID := k.SpawnProcess()
	go func() {
		if err := echo.Serve(k, driverPID, driverTID); err != nil {
			fmt.Fprintf(os.Stderr, "echo driver exited: %v\n", err)
		}
	}()
	time.Sleep(10 * time.Millisecond) // let the driver reach get_work

	clientPID, clientTID := k.SpawnProcess()

	h, errno := k.Open(clientPID, clientTID, "/dev/echo", vfs.FlagRead|vfs.FlagWrite|vfs.FlagMsgs)
	if errno != 0 {
		fail("open /dev/echo", errno)
	}
	defer k.Close(clientPID, h)

	if errno := k.SendMsg(clientPID, h, 0x10, []byte("hi")); errno != 0 {
		fail("send_msg", errno)
	}

	buf := make([]byte, 64)
	id, n, errno := k.ReceiveMsg(clientPID, clientTID, h, buf)
	if errno != 0 {
		fail("receive_msg", errno)
	}

	fmt.Printf("reply id=0x%02x payload=%q\n", id, buf[:n])
}
