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
	"time"

	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

func TestLock(t *testing.T) { RunTests(t) }

type LockTest struct {
	locks *LockTable
}

func init() { RegisterTestSuite(&LockTest{}) }

func (t *LockTest) SetUp(ti *TestInfo) {
	t.locks = NewLockTable()
}

func (t *LockTest) Acquire_SecondHolderFails() {
	ExpectEq(Errno(0), t.locks.Acquire(GlobalScope, 1, 10))
	ExpectEq(ErrFileInUse, t.locks.Acquire(GlobalScope, 1, 20))
}

func (t *LockTest) Release_OnlyHolderMaySucceed() {
	AssertEq(Errno(0), t.locks.Acquire(GlobalScope, 1, 10))
	ExpectEq(ErrInvalidArgs, t.locks.Release(GlobalScope, 1, 20))
	ExpectEq(Errno(0), t.locks.Release(GlobalScope, 1, 10))
}

func (t *LockTest) Release_FreesLockForAnotherHolder() {
	AssertEq(Errno(0), t.locks.Acquire(GlobalScope, 1, 10))
	AssertEq(Errno(0), t.locks.Release(GlobalScope, 1, 10))
	ExpectEq(Errno(0), t.locks.Acquire(GlobalScope, 1, 20))
}

func (t *LockTest) Notify_WakesWaitUnlockRegistrants() {
	ch := t.locks.beginWaitUnlock(GlobalScope, 1, 10)

	done := make(chan struct{})
	go func() {
		<-ch
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	t.locks.Notify(GlobalScope, 1)

	select {
	case <-done:
	case <-time.After(time.Second):
		ExpectTrue(false, "Notify never woke the WaitUnlock channel")
	}
}

func (t *LockTest) BeginWaitUnlock_ReleasesOwnHold() {
	AssertEq(Errno(0), t.locks.Acquire(GlobalScope, 1, 10))
	t.locks.beginWaitUnlock(GlobalScope, 1, 10)

	// the hold is released as part of beginWaitUnlock, so a second
	// thread can now acquire it
	ExpectEq(Errno(0), t.locks.Acquire(GlobalScope, 1, 20))
}

func (t *LockTest) AbandonWait_RemovesRegistrationWithoutWaking() {
	ch := t.locks.beginWaitUnlock(GlobalScope, 1, 10)
	t.locks.abandonWait(GlobalScope, 1, 10)
	t.locks.Notify(GlobalScope, 1)

	select {
	case <-ch:
		ExpectTrue(false, "abandoned waiter was still woken by Notify")
	case <-time.After(10 * time.Millisecond):
	}
}

func (t *LockTest) DistinctScopesDoNotInterfere() {
	AssertEq(Errno(0), t.locks.Acquire(1, 1, 10))
	ExpectEq(Errno(0), t.locks.Acquire(2, 1, 20))
}
