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

func TestFileOps(t *testing.T) { RunTests(t) }

type FileOpsTest struct {
	tree *Tree
	file NodeNo
	pipe NodeNo
}

func init() { RegisterTestSuite(&FileOpsTest{}) }

func (t *FileOpsTest) SetUp(ti *TestInfo) {
	t.tree = NewTree()
	var errno Errno
	t.file, errno = t.tree.CreateFile(t.tree.Root(), "f", RootPID, DefaultFilePerm, nil)
	AssertEq(0, errno)
	t.pipe, errno = t.tree.CreatePipe(t.tree.Root(), "p", RootPID, DefaultFilePerm)
	AssertEq(0, errno)
}

func (t *FileOpsTest) WriteThenReadBack() {
	n, errno := t.tree.WriteFile(t.file, 0, []byte("hello world"))
	AssertEq(0, errno)
	ExpectEq(11, n)

	buf := make([]byte, 5)
	n, errno = t.tree.ReadFile(t.file, 0, buf)
	AssertEq(0, errno)
	ExpectEq(5, n)
	ExpectEq("hello", string(buf))
}

func (t *FileOpsTest) ReadPastEOFReturnsZero() {
	_, errno := t.tree.WriteFile(t.file, 0, []byte("abc"))
	AssertEq(0, errno)

	buf := make([]byte, 10)
	n, errno := t.tree.ReadFile(t.file, 100, buf)
	AssertEq(0, errno)
	ExpectEq(0, n)
}

func (t *FileOpsTest) WriteAtOffsetExtendsFile() {
	_, errno := t.tree.WriteFile(t.file, 0, []byte("abc"))
	AssertEq(0, errno)
	_, errno = t.tree.WriteFile(t.file, 10, []byte("xyz"))
	AssertEq(0, errno)

	size, errno := t.tree.FileSize(t.file)
	AssertEq(0, errno)
	ExpectEq(13, size)
}

func (t *FileOpsTest) SyntheticFile_IsReadOnly() {
	no, errno := t.tree.CreateFile(t.tree.Root(), "sys", KernelPID, DefaultFilePerm, stubFile{"hi\n"})
	AssertEq(0, errno)

	_, errno = t.tree.WriteFile(no, 0, []byte("x"))
	ExpectEq(ErrNoWritePerm, errno)

	buf := make([]byte, 16)
	n, errno := t.tree.ReadFile(no, 0, buf)
	AssertEq(0, errno)
	ExpectEq("hi\n", string(buf[:n]))
}

func (t *FileOpsTest) PipeReady_FalseUntilWritten() {
	ExpectFalse(t.tree.PipeReady(t.pipe))

	n, errno := t.tree.PipeWrite(t.pipe, []byte("x"))
	AssertEq(0, errno)
	ExpectEq(1, n)
	ExpectTrue(t.tree.PipeReady(t.pipe))
}

func (t *FileOpsTest) PipeRead_DrainsFIFOOrder() {
	t.tree.PipeWrite(t.pipe, []byte("ab"))
	t.tree.PipeWrite(t.pipe, []byte("cd"))

	buf := make([]byte, 3)
	n, empty, errno := t.tree.PipeRead(t.pipe, buf)
	AssertEq(0, errno)
	ExpectFalse(empty)
	ExpectEq("abc", string(buf[:n]))

	ExpectTrue(t.tree.PipeReady(t.pipe))
}

func (t *FileOpsTest) PipeRead_EmptyReportsTrue() {
	buf := make([]byte, 4)
	n, empty, errno := t.tree.PipeRead(t.pipe, buf)
	AssertEq(0, errno)
	ExpectTrue(empty)
	ExpectEq(0, n)
}
