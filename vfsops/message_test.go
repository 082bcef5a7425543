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

package vfsops

import (
	"testing"

	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

func TestMessage(t *testing.T) { RunTests(t) }

type MessageTest struct{}

func init() { RegisterTestSuite(&MessageTest{}) }

func (t *MessageTest) Marshal_ThenUnmarshalRoundTrips() {
	m := Message{ID: 0x42, Payload: []byte("hello, driver")}
	b := m.Marshal()
	ExpectEq(m.Len(), len(b))

	got, err := Unmarshal(b)
	AssertEq(nil, err)
	ExpectEq(m.ID, got.ID)
	ExpectThat(got.Payload, DeepEquals(m.Payload))
}

func (t *MessageTest) Marshal_EmptyPayload() {
	m := Message{ID: 1}
	b := m.Marshal()
	ExpectEq(HeaderSize, len(b))

	got, err := Unmarshal(b)
	AssertEq(nil, err)
	ExpectEq(0, len(got.Payload))
}

func (t *MessageTest) Unmarshal_ShortHeaderFails() {
	_, err := Unmarshal([]byte{1, 2, 3})
	ExpectNe(nil, err)
}

func (t *MessageTest) Unmarshal_ClaimedLengthBeyondBufferFails() {
	b := []byte{0x01, 0xff, 0x00, 0x00, 0x00} // claims 255 bytes, none present
	_, err := Unmarshal(b)
	ExpectNe(nil, err)
}

func (t *MessageTest) DebugString_TruncatesLongPayloads() {
	m := Message{ID: 1, Payload: make([]byte, 64)}
	s := m.DebugString()
	ExpectThat(s, HasSubstr("..."))
}
