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
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/timeutil"
	"github.com/matrix-1996/escape-vfs/vfsops"
)

// Seek whence values.
const (
	SeekSet = iota
	SeekCur
	SeekEnd
)

// LockWaitObject is the comparable object a WaitUnlock caller is
// registered against in the event table, so Signal's forceWake path
// and /system/processes/.../threads/<tid>/info can both see what a
// blocked thread is waiting on.
type LockWaitObject struct {
	Scope PID
	Ident Ident
}

// Kernel owns every shared table (node tree, GFT, process table,
// event table, lock table) and exposes the syscall surface as its
// exported methods.
type Kernel struct {
	tree   *Tree
	gft    *GFT
	procs  *ProcessTable
	events *EventTable
	locks  *LockTable
	clock  timeutil.Clock

	mu      sync.Mutex // guards nextPID and the bootstrap directory handles below
	nextPID PID

	devDir       NodeNo
	pipeDir      NodeNo
	processesDir NodeNo

	traceMu  sync.Mutex
	traceCtx map[PID]context.Context
}

// NewKernel creates a Kernel with an empty namespace and lays out the
// pseudo-filesystem before returning.
func NewKernel(clock timeutil.Clock) *Kernel {
	k := &Kernel{
		tree:     NewTree(),
		procs:    NewProcessTable(),
		events:   NewEventTable(),
		locks:    NewLockTable(),
		clock:    clock,
		nextPID:  RootPID,
		traceCtx: make(map[PID]context.Context),
	}
	k.gft = NewGFT(k.tree)
	k.bootstrap()
	return k
}

// trace wraps a syscall body in a reqtrace span, grouped by owning
// pid when -vfs.trace_by_pid is set, mirroring
// fuseops/common_op.go's maybeTraceByPID + StartSpan pair.
func (k *Kernel) trace(pid PID, name string, fn func() Errno) Errno {
	if !reqtrace.Enabled() {
		return fn()
	}

	ctx := k.tracedContext(pid)
	_, report := reqtrace.StartSpan(ctx, name)
	errno := fn()
	if errno != 0 {
		report(errno)
	} else {
		report(nil)
	}
	return errno
}

func (k *Kernel) tracedContext(pid PID) context.Context {
	if !*fTraceByPID {
		return context.Background()
	}

	k.traceMu.Lock()
	defer k.traceMu.Unlock()
	if ctx, ok := k.traceCtx[pid]; ok {
		return ctx
	}
	ctx, _ := reqtrace.Trace(context.Background(), fmt.Sprintf("pid %d", pid))
	k.traceCtx[pid] = ctx
	return ctx
}

// resolve wraps Tree.Resolve, promoting the REAL_PATH sentinel to
// ErrUnsupportedOp: this core never implements a real on-disk
// filesystem driver for a REAL_PATH mount point to delegate to, so any
// caller that reaches one just fails cleanly instead of panicking on
// an internal sentinel.
func (k *Kernel) resolve(path string, owner PID) (NodeNo, Errno) {
	res, errno := k.tree.Resolve(path, owner)
	if errno == errREALPATH {
		return NoNode, ErrUnsupportedOp
	}
	if errno != 0 {
		return NoNode, errno
	}
	return res.Node, 0
}

func splitDirBase(path string) (dir, base string) {
	path = strings.TrimRight(path, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "/", path
	}
	if i == 0 {
		return "/", path[1:]
	}
	return path[:i], path[i+1:]
}

func isAlnumName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func accessFromFlags(flags OpenFlags) Access {
	var a Access
	if flags&FlagRead != 0 {
		a |= AccessRead
	}
	if flags&FlagWrite != 0 {
		a |= AccessWrite
	}
	return a
}

// bootstrap lays out the fixed pseudo-filesystem shape: /system/pipe,
// /system/processes/<pid>/{info,virtmem,regions,threads/<tid>/
// {info,trace}}, /system/devices, and /dev, then creates per-process
// nodes for the kernel and root pseudo-processes NewProcessTable
// already registered.
func (k *Kernel) bootstrap() {
	root := k.tree.Root()
	sysDir, _ := k.tree.CreateDir(root, "system", KernelPID, DefaultDirPerm)
	k.pipeDir, _ = k.tree.CreateDir(sysDir, "pipe", KernelPID, DefaultDirPerm)
	k.processesDir, _ = k.tree.CreateDir(sysDir, "processes", KernelPID, DefaultDirPerm)
	k.devDir, _ = k.tree.CreateDir(root, "dev", KernelPID, DefaultDirPerm)

	k.tree.CreateFile(sysDir, "devices", KernelPID, DefaultFilePerm,
		&devicesFile{tree: k.tree, devDir: k.devDir})

	for _, pid := range k.procs.ListProcesses() {
		k.createProcessNodes(pid)
	}
}

func (k *Kernel) createProcessNodes(pid PID) {
	dirNo, errno := k.tree.CreateDir(k.processesDir, strconv.Itoa(int(pid)), pid, DefaultDirPerm)
	if errno != 0 {
		return
	}
	k.tree.CreateFile(dirNo, "info", pid, DefaultFilePerm, &processInfoFile{procs: k.procs, pid: pid})
	k.tree.CreateFile(dirNo, "virtmem", pid, DefaultFilePerm, stubFile{"regions=0\n"})
	k.tree.CreateFile(dirNo, "regions", pid, DefaultFilePerm, stubFile{"(none)\n"})

	threadsDir, errno := k.tree.CreateDir(dirNo, "threads", pid, DefaultDirPerm)
	if errno != 0 {
		return
	}
	for _, tid := range k.procs.ListThreads(pid) {
		k.createThreadNodes(threadsDir, pid, tid)
	}
}

func (k *Kernel) createThreadNodes(threadsDir NodeNo, pid PID, tid TID) {
	tDir, errno := k.tree.CreateDir(threadsDir, strconv.Itoa(int(tid)), pid, DefaultDirPerm)
	if errno != 0 {
		return
	}
	k.tree.CreateFile(tDir, "info", pid, DefaultFilePerm, &threadInfoFile{procs: k.procs, pid: pid, tid: tid})
	k.tree.CreateFile(tDir, "trace", pid, DefaultFilePerm, threadTraceFile{})
}

// SpawnProcess allocates a fresh pid and registers its main thread,
// wiring up its /system/processes/<pid> subtree.
func (k *Kernel) SpawnProcess() (PID, TID) {
	k.mu.Lock()
	k.nextPID++
	pid := k.nextPID
	k.mu.Unlock()

	tid := k.procs.SpawnProcess(pid)
	k.createProcessNodes(pid)
	return pid, tid
}

// SpawnThread adds a thread to an already-spawned process, wiring up
// its /system/processes/<pid>/threads/<tid> subtree.
func (k *Kernel) SpawnThread(pid PID) (TID, Errno) {
	tid, errno := k.procs.SpawnThread(pid)
	if errno != 0 {
		return 0, errno
	}
	threadsDir, errno := k.resolve(fmt.Sprintf("/system/processes/%d/threads", pid), KernelPID)
	if errno == 0 {
		k.createThreadNodes(threadsDir, pid, tid)
	}
	return tid, 0
}

// ExitThread implements the thread-exit half of join: retire tid from
// the process table and wake every join() waiter scoped to pid, which
// re-check their own predicate on wake.
func (k *Kernel) ExitThread(pid PID, tid TID) {
	k.procs.ExitThread(pid, tid)
	k.events.WakeMatching(EvThreadDied, pid)
}

// Open implements open(path, flags): resolve (creating a fresh
// channel if the final component is a driver, or the file itself if
// FlagCreate is set and it's missing), permission-check, then hand
// off to the GFT's dedup/share rules.
func (k *Kernel) Open(pid PID, tid TID, path string, flags OpenFlags) (h HandleNo, errno Errno) {
	errno = k.trace(pid, "Open", func() Errno {
		no, rerrno := k.resolve(path, pid)
		if rerrno == ErrPathNotFound && flags&FlagCreate != 0 {
			dir, base := splitDirBase(path)
			dirNo, derrno := k.resolve(dir, pid)
			if derrno != 0 {
				return derrno
			}
			newNo, cerrno := k.tree.CreateFile(dirNo, base, pid, DefaultFilePerm, nil)
			if cerrno != 0 {
				return cerrno
			}
			k.tree.Touch(newNo, k.clock.Now())
			no = newNo
		} else if rerrno != 0 {
			return rerrno
		}

		if cerrno := k.tree.CheckPerm(no, pid, uint32(pid), 0, accessFromFlags(flags)); cerrno != 0 {
			return cerrno
		}

		handle, oerrno := k.gft.OpenFile(pid, flags, no, VFSDevNo)
		if oerrno != 0 {
			return oerrno
		}
		h = handle
		return 0
	})
	return h, errno
}

// Close implements close(handle). Closing a handle mid-read of a
// channel releases the partial-read lock (gft.go's CloseFile ->
// ChannelReleaseLock); any other handle on the same side blocked in
// doWait on that lock needs an explicit wake, since nothing else will
// prod it short of the next SendMsg.
func (k *Kernel) Close(pid PID, h HandleNo) Errno {
	return k.trace(pid, "Close", func() Errno {
		info, ierrno := k.gft.Info(h)
		sideIsDriver := ierrno == 0 && info.Flags&FlagDriver != 0

		errno := k.gft.CloseFile(pid, h)
		if errno != 0 {
			return errno
		}

		if ierrno == 0 {
			if typ, _ := k.tree.NodeTypeOf(info.NodeNo); typ == NodeChannel {
				mask := EvReceivedMsg
				if sideIsDriver {
					mask = EvClient
				}
				k.events.WakeMatching(mask, info.NodeNo)
			}
		}
		return 0
	})
}

// Read implements read(handle, buf, n) across every node type a
// handle can refer to: plain files replay their cache, pipes and
// channels block (unless FlagNoBlock or the caller is the kernel
// pseudo-process, which never blocks) until data or a signal arrives.
func (k *Kernel) Read(pid PID, tid TID, h HandleNo, buf []byte) (n int, errno Errno) {
	errno = k.trace(pid, "Read", func() Errno {
		info, ierrno := k.gft.Info(h)
		if ierrno != 0 {
			return ierrno
		}
		typ, tombstoned := k.tree.NodeTypeOf(info.NodeNo)
		if tombstoned && !(typ == NodeChannel && info.Flags&FlagDriver != 0) {
			return ErrInvalidFile
		}

		switch typ {
		case NodeFile, NodeDevice:
			pos, _ := k.gft.Position(h)
			read, rerrno := k.tree.ReadFile(info.NodeNo, pos, buf)
			if rerrno != 0 {
				return rerrno
			}
			k.gft.SetPosition(h, pos+read)
			n = read
			return 0

		case NodePipe:
			for {
				read, empty, rerrno := k.tree.PipeRead(info.NodeNo, buf)
				if rerrno != 0 {
					return rerrno
				}
				if !empty {
					n = read
					return 0
				}
				if info.Flags&FlagNoBlock != 0 || pid == KernelPID {
					return 0
				}
				if werrno := k.doWait(pid, tid, EvDataReadable, info.NodeNo, func() bool {
					return k.tree.PipeReady(info.NodeNo)
				}); werrno != 0 {
					return werrno
				}
			}

		case NodeChannel:
			sideIsDriver := info.Flags&FlagDriver != 0
			mask := EvReceivedMsg
			if sideIsDriver {
				mask = EvClient
			}
			for {
				res := k.tree.ChannelRead(info.NodeNo, h, sideIsDriver, len(buf))
				if res.Errno != 0 {
					return res.Errno
				}
				if !res.Empty && !res.Locked {
					n = copy(buf, res.Data)
					// This read may have just released a partial-read
					// lock another same-side handle is stuck behind;
					// wake it rather than leave it waiting for the
					// next SendMsg.
					k.events.WakeMatching(mask, info.NodeNo)
					if sideIsDriver {
						k.tree.ReapChannel(info.NodeNo)
					}
					return 0
				}
				if info.Flags&FlagNoBlock != 0 || pid == KernelPID {
					return 0
				}
				if werrno := k.doWait(pid, tid, mask, info.NodeNo, func() bool {
					return k.tree.ChannelReady(info.NodeNo, h, sideIsDriver)
				}); werrno != 0 {
					return werrno
				}
			}

		default:
			return ErrUnsupportedOp
		}
	})
	return n, errno
}

// Write implements write(handle, buf, n). A channel handle is written
// through SendMsg instead, which carries the message id the plain
// byte-stream write() call has no room for.
func (k *Kernel) Write(pid PID, h HandleNo, data []byte) (n int, errno Errno) {
	errno = k.trace(pid, "Write", func() Errno {
		info, ierrno := k.gft.Info(h)
		if ierrno != 0 {
			return ierrno
		}
		typ, tombstoned := k.tree.NodeTypeOf(info.NodeNo)
		if tombstoned {
			return ErrInvalidFile
		}

		switch typ {
		case NodeFile, NodeDevice:
			pos, _ := k.gft.Position(h)
			if info.Flags&FlagAppend != 0 {
				pos, _ = k.tree.FileSize(info.NodeNo)
			}
			written, werrno := k.tree.WriteFile(info.NodeNo, pos, data)
			if werrno != 0 {
				return werrno
			}
			k.gft.SetPosition(h, pos+written)
			k.tree.Touch(info.NodeNo, k.clock.Now())
			n = written
			return 0

		case NodePipe:
			written, werrno := k.tree.PipeWrite(info.NodeNo, data)
			if werrno != 0 {
				return werrno
			}
			k.events.WakeMatching(EvDataReadable, info.NodeNo)
			n = written
			return 0

		default:
			return ErrUnsupportedOp
		}
	})
	return n, errno
}

// Seek implements seek(handle, off, whence); ESPIPE-equivalent
// (ErrUnsupportedOp) on a channel or pipe, neither of which has a
// meaningful byte offset.
func (k *Kernel) Seek(pid PID, h HandleNo, offset, whence int) (pos int, errno Errno) {
	errno = k.trace(pid, "Seek", func() Errno {
		info, ierrno := k.gft.Info(h)
		if ierrno != 0 {
			return ierrno
		}
		typ, _ := k.tree.NodeTypeOf(info.NodeNo)
		if typ == NodeChannel || typ == NodePipe {
			return ErrUnsupportedOp
		}

		var base int
		switch whence {
		case SeekSet:
			base = 0
		case SeekCur:
			base, _ = k.gft.Position(h)
		case SeekEnd:
			base, _ = k.tree.FileSize(info.NodeNo)
		default:
			return ErrInvalidArgs
		}

		newPos := base + offset
		if newPos < 0 {
			return ErrInvalidArgs
		}
		k.gft.SetPosition(h, newPos)
		pos = newPos
		return 0
	})
	return pos, errno
}

// Stat implements stat(path).
func (k *Kernel) Stat(pid PID, path string) (NodeInfo, Errno) {
	var info NodeInfo
	errno := k.trace(pid, "Stat", func() Errno {
		no, errno := k.resolve(path, pid)
		if errno != 0 {
			return errno
		}
		var serrno Errno
		info, serrno = k.tree.Stat(no)
		return serrno
	})
	return info, errno
}

// Fstat implements fstat(handle).
func (k *Kernel) Fstat(pid PID, h HandleNo) (NodeInfo, Errno) {
	var info NodeInfo
	errno := k.trace(pid, "Fstat", func() Errno {
		hinfo, errno := k.gft.Info(h)
		if errno != 0 {
			return errno
		}
		var serrno Errno
		info, serrno = k.tree.Stat(hinfo.NodeNo)
		return serrno
	})
	return info, errno
}

// Link implements link(oldPath, newPath): hard-link, rejecting a
// directory source with ErrIsDir.
func (k *Kernel) Link(pid PID, oldPath, newPath string) Errno {
	return k.trace(pid, "Link", func() Errno {
		oldNo, errno := k.resolve(oldPath, pid)
		if errno != 0 {
			return errno
		}
		if typ, _ := k.tree.NodeTypeOf(oldNo); typ == NodeDir {
			return ErrIsDir
		}

		dir, base := splitDirBase(newPath)
		dirNo, errno := k.resolve(dir, pid)
		if errno != 0 {
			return errno
		}
		_, errno = k.tree.CreateLink(dirNo, base, pid, oldNo)
		return errno
	})
}

// Unlink implements unlink(path).
func (k *Kernel) Unlink(pid PID, path string) Errno {
	return k.trace(pid, "Unlink", func() Errno {
		no, errno := k.resolve(path, pid)
		if errno != 0 {
			return errno
		}
		return k.tree.Unlink(no)
	})
}

// Mkdir implements mkdir(path, perm).
func (k *Kernel) Mkdir(pid PID, path string, perm Perm) Errno {
	return k.trace(pid, "Mkdir", func() Errno {
		dir, base := splitDirBase(path)
		dirNo, errno := k.resolve(dir, pid)
		if errno != 0 {
			return errno
		}
		_, errno = k.tree.CreateDir(dirNo, base, pid, perm)
		return errno
	})
}

// Rmdir implements rmdir(path).
func (k *Kernel) Rmdir(pid PID, path string) Errno {
	return k.trace(pid, "Rmdir", func() Errno {
		no, errno := k.resolve(path, pid)
		if errno != 0 {
			return errno
		}
		return k.tree.Rmdir(no)
	})
}

// CreateDriver implements create_driver(name, flags): alnum-only
// names, created under /dev and opened for the caller in one step.
func (k *Kernel) CreateDriver(pid PID, name string, flags DriverFlags) (h HandleNo, errno Errno) {
	errno = k.trace(pid, "CreateDriver", func() Errno {
		if !isAlnumName(name) {
			return ErrInvDriverName
		}
		no, cerrno := k.tree.CreateDriver(k.devDir, name, pid, flags)
		if cerrno != 0 {
			return cerrno
		}
		handle, oerrno := k.gft.OpenFile(pid, FlagDriver|FlagRead|FlagWrite, no, VFSDevNo)
		if oerrno != 0 {
			return oerrno
		}
		h = handle
		return 0
	})
	return h, errno
}

// GetClient implements get_client(driver_handle): only the owning
// process may poll its own driver's channels.
func (k *Kernel) GetClient(pid PID, driverHandle HandleNo) (NodeNo, Errno) {
	var client NodeNo
	errno := k.trace(pid, "GetClient", func() Errno {
		info, errno := k.gft.Info(driverHandle)
		if errno != 0 {
			return errno
		}
		if info.Owner != pid {
			return ErrNotOwnDriver
		}
		var cerrno Errno
		client, cerrno = k.tree.GetClient(info.NodeNo)
		return cerrno
	})
	return client, errno
}

// OpenClient implements open_client(driver_handle, channel_no):
// grants the driver a read/write/msgs handle to a specific client
// channel, the driver-side counterpart of the client's own handle to
// the same channel.
func (k *Kernel) OpenClient(pid PID, driverHandle HandleNo, channel NodeNo) (h HandleNo, errno Errno) {
	errno = k.trace(pid, "OpenClient", func() Errno {
		info, errno := k.gft.Info(driverHandle)
		if errno != 0 {
			return errno
		}
		if info.Owner != pid {
			return ErrNotOwnDriver
		}
		handle, oerrno := k.gft.OpenFile(pid, FlagDriver|FlagRead|FlagWrite|FlagMsgs, channel, VFSDevNo)
		if oerrno != 0 {
			return oerrno
		}
		h = handle
		return 0
	})
	return h, errno
}

// GetWork implements get_work(driver_handle, &id, buf, size): the
// atomic wait+get_client+open_client+receive_msg combination a driver
// uses to pull its next unit of work off whichever client channel has
// one waiting.
func (k *Kernel) GetWork(pid PID, tid TID, driverHandle HandleNo, buf []byte) (h HandleNo, id vfsops.MsgID, n int, errno Errno) {
	errno = k.trace(pid, "GetWork", func() Errno {
		info, ierrno := k.gft.Info(driverHandle)
		if ierrno != 0 {
			return ierrno
		}
		if info.Owner != pid {
			return ErrNotOwnDriver
		}

		for {
			client, cerrno := k.tree.GetClient(info.NodeNo)
			if cerrno == 0 {
				handle, oerrno := k.gft.OpenFile(pid, FlagDriver|FlagRead|FlagWrite|FlagMsgs, client, VFSDevNo)
				if oerrno != 0 {
					return oerrno
				}
				res := k.tree.ChannelRead(client, handle, true, len(buf))
				if res.Errno != 0 {
					k.gft.CloseFile(pid, handle)
					return res.Errno
				}
				if !res.Empty && !res.Locked {
					h = handle
					id = res.ID
					n = copy(buf, res.Data)
					k.events.WakeMatching(EvClient, client)
					k.tree.ReapChannel(client)
					return 0
				}
				// Lost the race to another driver thread; try the next
				// waiting client instead of blocking on this one.
				k.gft.CloseFile(pid, handle)
				continue
			}

			if info.Flags&FlagNoBlock != 0 {
				return ErrNoClientWaiting
			}
			if werrno := k.doWait(pid, tid, EvClient, info.NodeNo, func() bool {
				_, e := k.tree.GetClient(info.NodeNo)
				return e == 0
			}); werrno != 0 {
				return werrno
			}
		}
	})
	return h, id, n, errno
}

// SendMsg implements send_msg(handle, id, buf, size): a client-side
// send lands on the channel's send-list and wakes the owning driver's
// EV_CLIENT waiters; a driver-side send (a reply) lands on the
// receive-list and wakes EV_RECEIVED_MSG — broadcast to every sibling
// channel if the driver is DRIVER_SINGLEPIPE, since clients can't be
// told apart on that channel type.
func (k *Kernel) SendMsg(pid PID, h HandleNo, id vfsops.MsgID, data []byte) Errno {
	return k.trace(pid, "SendMsg", func() Errno {
		info, ierrno := k.gft.Info(h)
		if ierrno != 0 {
			return ierrno
		}
		sideIsDriver := info.Flags&FlagDriver != 0
		isChannel, usable := k.tree.ChannelUsable(info.NodeNo, sideIsDriver)
		if !isChannel || !usable {
			return ErrInvalidFile
		}

		msg := vfsops.Message{ID: id, Payload: append([]byte(nil), data...)}
		if errno := k.tree.ChannelSend(info.NodeNo, sideIsDriver, msg); errno != 0 {
			return errno
		}

		if sideIsDriver {
			driverNo := k.tree.ParentOf(info.NodeNo)
			if k.tree.IsSinglePipeDriver(driverNo) {
				for _, sib := range k.tree.ChannelSiblings(driverNo) {
					k.events.WakeMatching(EvReceivedMsg, sib)
				}
			} else {
				k.events.WakeMatching(EvReceivedMsg, info.NodeNo)
			}
		} else {
			k.events.WakeMatching(EvClient, k.tree.ParentOf(info.NodeNo))
		}
		return 0
	})
}

// ReceiveMsg implements receive_msg(handle, &id, buf, size).
func (k *Kernel) ReceiveMsg(pid PID, tid TID, h HandleNo, buf []byte) (id vfsops.MsgID, n int, errno Errno) {
	errno = k.trace(pid, "ReceiveMsg", func() Errno {
		info, ierrno := k.gft.Info(h)
		if ierrno != 0 {
			return ierrno
		}
		sideIsDriver := info.Flags&FlagDriver != 0
		isChannel, usable := k.tree.ChannelUsable(info.NodeNo, sideIsDriver)
		if !isChannel || !usable {
			return ErrInvalidFile
		}
		mask := EvReceivedMsg
		if sideIsDriver {
			mask = EvClient
		}

		for {
			res := k.tree.ChannelRead(info.NodeNo, h, sideIsDriver, len(buf))
			if res.Errno != 0 {
				return res.Errno
			}
			if !res.Empty && !res.Locked {
				id = res.ID
				n = copy(buf, res.Data)
				k.events.WakeMatching(mask, info.NodeNo)
				if sideIsDriver {
					k.tree.ReapChannel(info.NodeNo)
				}
				return 0
			}
			if info.Flags&FlagNoBlock != 0 || pid == KernelPID {
				return 0
			}
			if werrno := k.doWait(pid, tid, mask, info.NodeNo, func() bool {
				return k.tree.ChannelReady(info.NodeNo, h, sideIsDriver)
			}); werrno != 0 {
				return werrno
			}
		}
	})
	return id, n, errno
}

// Wait implements wait(events): the generic user-facing wait, woken
// by any matching notify() or kernel-raised event; any wake
// terminates it, since a bare event mask carries no verifiable
// post-hoc condition of its own.
func (k *Kernel) Wait(pid PID, tid TID, mask EventMask) Errno {
	return k.trace(pid, "Wait", func() Errno {
		if mask&^WaitableMask != 0 {
			return ErrInvalidArgs
		}
		return k.doWait(pid, tid, mask, nil, func() bool { return true })
	})
}

// Notify implements notify(tid, events): only the user-notify bits
// may be sent this way; EV_CLIENT and friends are raised only by the
// kernel itself as a side effect of channel/thread operations.
func (k *Kernel) Notify(pid PID, targetTID TID, mask EventMask) Errno {
	return k.trace(pid, "Notify", func() Errno {
		if mask&^NotifiableMask != 0 {
			return ErrInvalidArgs
		}
		k.events.WakeTID(targetTID, mask)
		return 0
	})
}

// Lock implements acquire(scope, ident, flags); flags are currently
// unused (this core has no lock-kind variants beyond plain mutual
// exclusion), kept as a parameter so a richer flag set can be added
// without an interface break.
func (k *Kernel) Lock(pid PID, tid TID, scope PID, ident Ident, flags uint32) Errno {
	return k.trace(pid, "Lock", func() Errno {
		return k.locks.Acquire(scope, ident, tid)
	})
}

// Unlock implements release(scope, ident): releasing also notifies
// any thread parked in WaitUnlock on the same (scope, ident), so a
// producer's unlock() is itself the condition variable's notify — it
// can never race ahead of a concurrent WaitUnlock registration, since
// both go through LockTable's single mutex.
func (k *Kernel) Unlock(pid PID, tid TID, scope PID, ident Ident) Errno {
	return k.trace(pid, "Unlock", func() Errno {
		errno := k.locks.Release(scope, ident, tid)
		if errno == 0 {
			k.locks.Notify(scope, ident)
		}
		return errno
	})
}

// WaitUnlock implements wait_unlock(ident, global, [events]): release
// the caller's own hold (if any) and block until either a concurrent
// Unlock's Notify fires or a kernel-raised event in mask arrives,
// whichever first — so a thread can simultaneously wait on "someone
// released this lock" and "a message arrived". A Signal forces the
// same wake path via EventTable.forceWake.
func (k *Kernel) WaitUnlock(pid PID, tid TID, scope PID, ident Ident, mask EventMask) Errno {
	return k.trace(pid, "WaitUnlock", func() Errno {
		if mask&^WaitableMask != 0 {
			return ErrInvalidArgs
		}

		lockCh := k.locks.beginWaitUnlock(scope, ident, tid)
		obj := LockWaitObject{Scope: scope, Ident: ident}
		wakeCh := k.events.register(tid, mask, obj)
		k.procs.setWaitInfo(pid, tid, mask, obj)
		defer k.procs.clearWaitInfo(pid, tid)

		select {
		case <-lockCh:
			k.events.unregister(tid)
		case <-wakeCh:
			k.locks.abandonWait(scope, ident, tid)
		}

		if k.procs.consumeInterrupt(pid, tid) {
			return ErrInterrupted
		}
		return 0
	})
}

// Sleep implements sleep(msecs).
func (k *Kernel) Sleep(pid PID, tid TID, msecs int) Errno {
	return k.trace(pid, "Sleep", func() Errno {
		return k.sleepFor(pid, tid, time.Duration(msecs)*time.Millisecond)
	})
}

// Join implements join(tid): tid==0 waits for the caller's process to
// become single-threaded again; otherwise waits for the named thread
// to exit. Both cases loop on EV_THREAD_DIED scoped to the process
// and re-check their predicate on every wake.
func (k *Kernel) Join(pid PID, tid TID, target TID) Errno {
	return k.trace(pid, "Join", func() Errno {
		condition := func() bool {
			if target == 0 {
				n, ok := k.procs.AliveThreads(pid)
				return ok && n <= 1
			}
			return !k.procs.ThreadExists(pid, target)
		}
		return k.doWait(pid, tid, EvThreadDied, pid, condition)
	})
}

// Suspend implements suspend(tid). ProcessTable scopes tid lookups to
// the caller's own pid, so cross-process suspension is impossible by
// construction: only threads of the same process may be suspended.
func (k *Kernel) Suspend(pid PID, target TID) Errno {
	return k.trace(pid, "Suspend", func() Errno {
		return k.procs.setSuspended(pid, target, true)
	})
}

// Resume implements resume(tid).
func (k *Kernel) Resume(pid PID, target TID) Errno {
	return k.trace(pid, "Resume", func() Errno {
		return k.procs.setSuspended(pid, target, false)
	})
}

// ProcessInfo is a read-only snapshot of a process's thread count,
// used by drivers/procfs to serve its channel-protocol process
// listing without reaching into ProcessTable directly.
type ProcessInfo struct {
	PID     PID
	Threads int
}

// ListProcessSummaries returns a snapshot of every known process.
func (k *Kernel) ListProcessSummaries() []ProcessInfo {
	pids := k.procs.ListProcesses()
	out := make([]ProcessInfo, 0, len(pids))
	for _, pid := range pids {
		if n, ok := k.procs.AliveThreads(pid); ok {
			out = append(out, ProcessInfo{PID: pid, Threads: n})
		}
	}
	return out
}

// ProcessSummary returns one process's snapshot, or ok=false if pid
// is unknown.
func (k *Kernel) ProcessSummary(pid PID) (ProcessInfo, bool) {
	n, ok := k.procs.AliveThreads(pid)
	if !ok {
		return ProcessInfo{}, false
	}
	return ProcessInfo{PID: pid, Threads: n}, true
}

// Signal delivers an interrupt to tid: any of its current suspension
// points (do_wait, a blocking channel/pipe read, join, sleep_for,
// wait_unlock) observes it and returns ErrInterrupted. Not a syscall
// itself — signals arrive from outside this core, e.g. a driver
// tearing down a client — but every blocking path routes through it,
// so it's exposed as a Kernel method rather than buried as a
// table-internal helper.
func (k *Kernel) Signal(pid PID, tid TID) Errno {
	return k.trace(pid, "Signal", func() Errno {
		errno := k.procs.Signal(pid, tid)
		if errno == 0 {
			k.events.forceWake(tid)
		}
		return errno
	})
}
