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

// pipePayload is the PIPE node's tagged-union member: a FIFO byte
// buffer plus reader/writer handle counts.
type pipePayload struct {
	data    []byte
	readers int
	writers int
}

func newPipePayload() *pipePayload {
	return &pipePayload{}
}

func (p *pipePayload) write(b []byte) {
	p.data = append(p.data, b...)
}

// read drains up to len(buf) bytes from the front of the FIFO.
func (p *pipePayload) read(buf []byte) int {
	n := copy(buf, p.data)
	p.data = p.data[n:]
	return n
}

func (p *pipePayload) empty() bool { return len(p.data) == 0 }

// linkPayload is the LINK node's tagged-union member.
type linkPayload struct {
	target NodeNo
}
