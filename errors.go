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

import "fmt"

// Errno is one of the small negative-integer-flavored error codes
// returned through the syscall surface. It implements
// error so callers can use the usual Go idioms, but callers that need
// to distinguish error classes should switch on the Errno value
// itself rather than string-compare Error().
type Errno int

// The syscall error taxonomy. REAL_PATH is listed for completeness but
// is an internal sentinel returned by Resolve, never a user-visible
// syscall error.
const (
	ErrInvalidFile Errno = -(iota + 1)
	ErrInvalidArgs
	ErrNoFreeFD
	ErrNoFreeFile
	ErrNoReadPerm
	ErrNoWritePerm
	ErrNoExecPerm
	ErrNotEnoughMem
	ErrFileExists
	ErrFileInUse
	ErrPathNotFound
	ErrLinkDevice
	ErrIsDir
	ErrNoDirectory
	ErrNoFileOrLink
	ErrInvDriverName
	ErrDriverExists
	ErrNotOwnDriver
	ErrNoClientWaiting
	ErrUnsupportedOp
	ErrInterrupted
)

// errREALPATH is the internal resolver sentinel; it must never escape
// to a caller of a Kernel method (Resolve's caller is always Kernel
// itself, which promotes it to a delegation).
const errREALPATH Errno = -1000

var errnoNames = map[Errno]string{
	ErrInvalidFile:     "INVALID_FILE",
	ErrInvalidArgs:     "INVALID_ARGS",
	ErrNoFreeFD:        "NO_FREE_FD",
	ErrNoFreeFile:      "NO_FREE_FILE",
	ErrNoReadPerm:      "NO_READ_PERM",
	ErrNoWritePerm:     "NO_WRITE_PERM",
	ErrNoExecPerm:      "NO_EXEC_PERM",
	ErrNotEnoughMem:    "NOT_ENOUGH_MEM",
	ErrFileExists:      "FILE_EXISTS",
	ErrFileInUse:       "FILE_IN_USE",
	ErrPathNotFound:    "PATH_NOT_FOUND",
	ErrLinkDevice:      "LINK_DEVICE",
	ErrIsDir:           "IS_DIR",
	ErrNoDirectory:     "NO_DIRECTORY",
	ErrNoFileOrLink:    "NO_FILE_OR_LINK",
	ErrInvDriverName:   "INV_DRIVER_NAME",
	ErrDriverExists:    "DRIVER_EXISTS",
	ErrNotOwnDriver:    "NOT_OWN_DRIVER",
	ErrNoClientWaiting: "NO_CLIENT_WAITING",
	ErrUnsupportedOp:   "UNSUPPORTED_OP",
	ErrInterrupted:     "INTERRUPTED",
	errREALPATH:        "REAL_PATH",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("errno(%d)", int(e))
}
