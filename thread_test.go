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
	"testing"

	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

func TestThread(t *testing.T) { RunTests(t) }

type ThreadTest struct {
	procs *ProcessTable
}

func init() { RegisterTestSuite(&ThreadTest{}) }

func (t *ThreadTest) SetUp(ti *TestInfo) {
	t.procs = NewProcessTable()
}

func (t *ThreadTest) NewProcessTable_PreregistersKernelAndRoot() {
	n, ok := t.procs.AliveThreads(KernelPID)
	AssertTrue(ok)
	ExpectEq(1, n)

	n, ok = t.procs.AliveThreads(RootPID)
	AssertTrue(ok)
	ExpectEq(1, n)
}

func (t *ThreadTest) SpawnProcess_StartsWithOneThread() {
	tid := t.procs.SpawnProcess(5)
	ExpectEq(TID(1), tid)

	n, ok := t.procs.AliveThreads(5)
	AssertTrue(ok)
	ExpectEq(1, n)
}

func (t *ThreadTest) SpawnThread_IncrementsAliveCount() {
	t.procs.SpawnProcess(5)
	_, errno := t.procs.SpawnThread(5)
	AssertEq(0, errno)

	n, ok := t.procs.AliveThreads(5)
	AssertTrue(ok)
	ExpectEq(2, n)
}

func (t *ThreadTest) SpawnThread_UnknownProcessFails() {
	_, errno := t.procs.SpawnThread(999)
	ExpectEq(ErrInvalidArgs, errno)
}

func (t *ThreadTest) ExitThread_DropsAliveCountAndExistence() {
	t.procs.SpawnProcess(5)
	tid2, errno := t.procs.SpawnThread(5)
	AssertEq(0, errno)

	t.procs.ExitThread(5, tid2)

	n, ok := t.procs.AliveThreads(5)
	AssertTrue(ok)
	ExpectEq(1, n)
	ExpectFalse(t.procs.ThreadExists(5, tid2))
}

func (t *ThreadTest) Signal_ThenConsumeInterruptRoundTrips() {
	t.procs.SpawnProcess(5)
	ExpectFalse(t.procs.consumeInterrupt(5, 1))

	AssertEq(Errno(0), t.procs.Signal(5, 1))
	ExpectTrue(t.procs.consumeInterrupt(5, 1))
	ExpectFalse(t.procs.consumeInterrupt(5, 1)) // cleared after first consume
}

func (t *ThreadTest) Signal_UnknownThreadFails() {
	t.procs.SpawnProcess(5)
	ExpectEq(ErrInvalidArgs, t.procs.Signal(5, 99))
}

func (t *ThreadTest) SetSuspended_TogglesStateAndFlag() {
	t.procs.SpawnProcess(5)
	AssertEq(Errno(0), t.procs.setSuspended(5, 1, true))

	info, ok := t.procs.ThreadInfo(5, 1)
	AssertTrue(ok)
	ExpectTrue(info.Suspended)
	ExpectEq(ThreadSuspended, info.State)

	AssertEq(Errno(0), t.procs.setSuspended(5, 1, false))
	info, ok = t.procs.ThreadInfo(5, 1)
	AssertTrue(ok)
	ExpectFalse(info.Suspended)
	ExpectEq(ThreadRunnable, info.State)
}

func (t *ThreadTest) WaitInfo_SetAndClearRoundTrip() {
	t.procs.SpawnProcess(5)
	t.procs.setWaitInfo(5, 1, EvDataReadable, NodeNo(7))

	info, ok := t.procs.ThreadInfo(5, 1)
	AssertTrue(ok)
	ExpectEq(ThreadBlocked, info.State)
	ExpectEq(EvDataReadable, info.WaitMask)

	t.procs.clearWaitInfo(5, 1)
	info, ok = t.procs.ThreadInfo(5, 1)
	AssertTrue(ok)
	ExpectEq(ThreadRunnable, info.State)
	ExpectEq(EventMask(0), info.WaitMask)
}

func (t *ThreadTest) ThreadState_StringsAreHumanReadable() {
	ExpectEq("RUNNING", ThreadRunnable.String())
	ExpectEq("BLOCKED", ThreadBlocked.String())
	ExpectEq("SUSPENDED", ThreadSuspended.String())
	ExpectEq("DEAD", ThreadDead.String())
}
