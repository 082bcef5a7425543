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

func TestGFT(t *testing.T) { RunTests(t) }

type GFTTest struct {
	tree *Tree
	gft  *GFT
	file NodeNo
}

func init() { RegisterTestSuite(&GFTTest{}) }

func (t *GFTTest) SetUp(ti *TestInfo) {
	t.tree = NewTree()
	t.gft = NewGFT(t.tree)
	var errno Errno
	t.file, errno = t.tree.CreateFile(t.tree.Root(), "f", RootPID, DefaultFilePerm, nil)
	AssertEq(0, errno)
}

func (t *GFTTest) OpenFile_DedupsSameOwnerSubsetRequest() {
	h1, errno := t.gft.OpenFile(RootPID, FlagRead|FlagWrite, t.file, VFSDevNo)
	AssertEq(0, errno)

	h2, errno := t.gft.OpenFile(RootPID, FlagRead, t.file, VFSDevNo)
	AssertEq(0, errno)
	ExpectEq(h1, h2)

	info, errno := t.gft.Info(h1)
	AssertEq(0, errno)
	ExpectEq(2, info.RefCount)
}

func (t *GFTTest) OpenFile_SecondWriterConflicts() {
	_, errno := t.gft.OpenFile(RootPID, FlagWrite, t.file, VFSDevNo)
	AssertEq(0, errno)

	_, errno = t.gft.OpenFile(99, FlagWrite, t.file, VFSDevNo)
	ExpectEq(ErrFileInUse, errno)
}

func (t *GFTTest) OpenFile_DifferentOwnersCanBothRead() {
	_, errno := t.gft.OpenFile(RootPID, FlagRead, t.file, VFSDevNo)
	AssertEq(0, errno)

	_, errno = t.gft.OpenFile(99, FlagRead, t.file, VFSDevNo)
	ExpectEq(Errno(0), errno)
}

func (t *GFTTest) CloseFile_DropsNodeRefOnLastClose() {
	h, errno := t.gft.OpenFile(RootPID, FlagRead, t.file, VFSDevNo)
	AssertEq(0, errno)
	AssertEq(1, t.tree.RefCount(t.file))

	ExpectEq(Errno(0), t.gft.CloseFile(RootPID, h))
	ExpectEq(0, t.tree.RefCount(t.file))
}

func (t *GFTTest) CloseFile_UnknownHandleFails() {
	ExpectEq(ErrInvalidArgs, t.gft.CloseFile(RootPID, HandleNo(12345)))
}

func (t *GFTTest) NumLiveHandles_TracksBalancedOpenClose() {
	before := t.gft.NumLiveHandles()
	h, errno := t.gft.OpenFile(RootPID, FlagRead, t.file, VFSDevNo)
	AssertEq(0, errno)
	ExpectEq(before+1, t.gft.NumLiveHandles())

	t.gft.CloseFile(RootPID, h)
	ExpectEq(before, t.gft.NumLiveHandles())
}

func (t *GFTTest) Inherit_PlainFileSharesHandleByRefcount() {
	h, errno := t.gft.OpenFile(RootPID, FlagRead, t.file, VFSDevNo)
	AssertEq(0, errno)

	childH, errno := t.gft.Inherit(RootPID, 55, h)
	AssertEq(0, errno)
	ExpectEq(h, childH)

	info, errno := t.gft.Info(h)
	AssertEq(0, errno)
	ExpectEq(2, info.RefCount)
}

func (t *GFTTest) Position_SetAndGet() {
	h, errno := t.gft.OpenFile(RootPID, FlagRead, t.file, VFSDevNo)
	AssertEq(0, errno)

	ExpectEq(Errno(0), t.gft.SetPosition(h, 17))
	pos, errno := t.gft.Position(h)
	AssertEq(0, errno)
	ExpectEq(17, pos)
}
