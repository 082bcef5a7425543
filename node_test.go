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

func TestNode(t *testing.T) { RunTests(t) }

type NodeTest struct {
	tree *Tree
}

func init() { RegisterTestSuite(&NodeTest{}) }

func (t *NodeTest) SetUp(ti *TestInfo) {
	t.tree = NewTree()
}

func (t *NodeTest) CreateDir_LinksUnderParent() {
	no, errno := t.tree.CreateDir(t.tree.Root(), "etc", RootPID, DefaultDirPerm)
	AssertEq(0, errno)

	kids := t.tree.ListChildren(t.tree.Root())
	ExpectThat(kids, ElementsAre(no))
}

func (t *NodeTest) CreateDir_DuplicateNameFails() {
	_, errno := t.tree.CreateDir(t.tree.Root(), "etc", RootPID, DefaultDirPerm)
	AssertEq(0, errno)

	_, errno = t.tree.CreateDir(t.tree.Root(), "etc", RootPID, DefaultDirPerm)
	ExpectEq(ErrFileExists, errno)
}

func (t *NodeTest) Resolve_WalksMultipleComponents() {
	dir, errno := t.tree.CreateDir(t.tree.Root(), "etc", RootPID, DefaultDirPerm)
	AssertEq(0, errno)

	file, errno := t.tree.CreateFile(dir, "passwd", RootPID, DefaultFilePerm, nil)
	AssertEq(0, errno)

	res, errno := t.tree.Resolve("/etc/passwd", RootPID)
	AssertEq(0, errno)
	ExpectEq(file, res.Node)
}

func (t *NodeTest) Resolve_MissingComponentFails() {
	_, errno := t.tree.Resolve("/nope", RootPID)
	ExpectEq(ErrPathNotFound, errno)
}

func (t *NodeTest) Resolve_OpeningDriverAllocatesFreshChannel() {
	no, errno := t.tree.CreateDriver(t.tree.Root(), "echo", RootPID, DriverService)
	AssertEq(0, errno)
	_ = no

	res1, errno := t.tree.Resolve("/echo", 42)
	AssertEq(0, errno)
	ExpectTrue(res1.Created)

	res2, errno := t.tree.Resolve("/echo", 42)
	AssertEq(0, errno)
	ExpectTrue(res2.Created)
	ExpectNe(res1.Node, res2.Node)
}

func (t *NodeTest) Destroy_RemovesFromParentAndReclaims() {
	no, errno := t.tree.CreateFile(t.tree.Root(), "tmp", RootPID, DefaultFilePerm, nil)
	AssertEq(0, errno)

	t.tree.Destroy(no)

	_, ok := t.tree.FindInDir(t.tree.Root(), "tmp")
	ExpectFalse(ok)
}

func (t *NodeTest) CheckPerm_OwnerGroupOtherOrdering() {
	// CreateFile stamps uid to the owning process's id, so a caller
	// presenting that same uid is selected as the owner triple.
	no, errno := t.tree.CreateFile(t.tree.Root(), "f", 7, PermOwnerRead, nil)
	AssertEq(0, errno)

	ExpectEq(Errno(0), t.tree.CheckPerm(no, 7, 7, 0, AccessRead))
	ExpectEq(ErrNoWritePerm, t.tree.CheckPerm(no, 7, 7, 0, AccessWrite))

	// A caller with a non-matching uid but matching (zero) gid falls
	// through to the group triple, which PermOwnerRead alone grants
	// nothing on either.
	ExpectEq(ErrNoReadPerm, t.tree.CheckPerm(no, 7, 99, 0, AccessRead))

	// A caller with neither uid nor gid matching falls through to the
	// other triple.
	ExpectEq(ErrNoReadPerm, t.tree.CheckPerm(no, 7, 99, 99, AccessRead))
}

func (t *NodeTest) CheckPerm_RootBypassesExceptBareExec() {
	no, errno := t.tree.CreateFile(t.tree.Root(), "f", 7, PermOwnerRead, nil)
	AssertEq(0, errno)

	ExpectEq(Errno(0), t.tree.CheckPerm(no, RootPID, 99, 99, AccessRead|AccessWrite))
	ExpectEq(ErrNoExecPerm, t.tree.CheckPerm(no, RootPID, 99, 99, AccessExec))
}

func (t *NodeTest) Unlink_RejectsDirectories() {
	dir, errno := t.tree.CreateDir(t.tree.Root(), "d", RootPID, DefaultDirPerm)
	AssertEq(0, errno)
	ExpectEq(ErrIsDir, t.tree.Unlink(dir))
}

func (t *NodeTest) Rmdir_RejectsNonEmpty() {
	dir, errno := t.tree.CreateDir(t.tree.Root(), "d", RootPID, DefaultDirPerm)
	AssertEq(0, errno)
	_, errno = t.tree.CreateFile(dir, "f", RootPID, DefaultFilePerm, nil)
	AssertEq(0, errno)

	ExpectEq(ErrInvalidArgs, t.tree.Rmdir(dir))
}
