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

	"github.com/matrix-1996/escape-vfs/vfsops"
)

func TestChannel(t *testing.T) { RunTests(t) }

type ChannelTest struct {
	tree     *Tree
	driverNo NodeNo
	chanNo   NodeNo
}

func init() { RegisterTestSuite(&ChannelTest{}) }

func (t *ChannelTest) SetUp(ti *TestInfo) {
	t.tree = NewTree()
	var errno Errno
	t.driverNo, errno = t.tree.CreateDriver(t.tree.Root(), "echo", RootPID, DriverService)
	AssertEq(0, errno)
	t.chanNo, errno = t.tree.CreateChannel(t.driverNo, 42)
	AssertEq(0, errno)
}

func (t *ChannelTest) ChannelRead_EmptyListReportsEmpty() {
	res := t.tree.ChannelRead(t.chanNo, HandleNo(1), true, 64)
	ExpectTrue(res.Empty)
}

func (t *ChannelTest) SendThenRead_ClientToDriver() {
	AssertEq(Errno(0), t.tree.ChannelSend(t.chanNo, false, vfsops.Message{ID: 0x10, Payload: []byte("hi")}))

	res := t.tree.ChannelRead(t.chanNo, HandleNo(1), true, 64)
	AssertEq(Errno(0), res.Errno)
	ExpectFalse(res.Empty)
	ExpectTrue(res.Complete)
	ExpectEq(vfsops.MsgID(0x10), res.ID)
	ExpectEq("hi", string(res.Data))
}

func (t *ChannelTest) SendThenRead_DriverToClient() {
	AssertEq(Errno(0), t.tree.ChannelSend(t.chanNo, true, vfsops.Message{ID: 0x11, Payload: []byte("ok")}))

	res := t.tree.ChannelRead(t.chanNo, HandleNo(1), false, 64)
	AssertEq(Errno(0), res.Errno)
	ExpectFalse(res.Empty)
	ExpectEq(vfsops.MsgID(0x11), res.ID)
	ExpectEq("ok", string(res.Data))
}

func (t *ChannelTest) PartialRead_LocksOutOtherHandles() {
	AssertEq(Errno(0), t.tree.ChannelSend(t.chanNo, false, vfsops.Message{ID: 1, Payload: []byte("hello")}))

	res := t.tree.ChannelRead(t.chanNo, HandleNo(1), true, 2)
	AssertEq(Errno(0), res.Errno)
	ExpectFalse(res.Complete)
	ExpectEq("he", string(res.Data))

	other := t.tree.ChannelRead(t.chanNo, HandleNo(2), true, 64)
	ExpectTrue(other.Locked)

	rest := t.tree.ChannelRead(t.chanNo, HandleNo(1), true, 64)
	AssertEq(Errno(0), rest.Errno)
	ExpectTrue(rest.Complete)
	ExpectEq("llo", string(rest.Data))
}

func (t *ChannelTest) ChannelReady_ReflectsReadability() {
	ExpectFalse(t.tree.ChannelReady(t.chanNo, HandleNo(1), true))

	AssertEq(Errno(0), t.tree.ChannelSend(t.chanNo, false, vfsops.Message{ID: 1, Payload: []byte("x")}))
	ExpectTrue(t.tree.ChannelReady(t.chanNo, HandleNo(1), true))
}

func (t *ChannelTest) ChannelReleaseLock_UnblocksOtherHandles() {
	AssertEq(Errno(0), t.tree.ChannelSend(t.chanNo, false, vfsops.Message{ID: 1, Payload: []byte("hello")}))
	t.tree.ChannelRead(t.chanNo, HandleNo(1), true, 2)

	ExpectTrue(t.tree.ChannelReleaseLock(t.chanNo, HandleNo(1)))

	res := t.tree.ChannelRead(t.chanNo, HandleNo(2), true, 64)
	ExpectFalse(res.Locked)
}

func (t *ChannelTest) GetClient_FindsChannelWithPendingSend() {
	_, errno := t.tree.GetClient(t.driverNo)
	ExpectEq(ErrNoClientWaiting, errno)

	AssertEq(Errno(0), t.tree.ChannelSend(t.chanNo, false, vfsops.Message{ID: 1, Payload: []byte("x")}))

	no, errno := t.tree.GetClient(t.driverNo)
	AssertEq(0, errno)
	ExpectEq(t.chanNo, no)
}

func (t *ChannelTest) IsSinglePipeDriver_DistinguishesNodeType() {
	spNo, errno := t.tree.CreateDriver(t.tree.Root(), "sp", RootPID, DriverService|DriverSinglePipe)
	AssertEq(0, errno)

	ExpectFalse(t.tree.IsSinglePipeDriver(t.driverNo))
	ExpectTrue(t.tree.IsSinglePipeDriver(spNo))
}
