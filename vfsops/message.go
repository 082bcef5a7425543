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

// Package vfsops holds the types carried across the channel/driver
// protocol: the message header wire format and the MsgID type. The
// message ids themselves are defined by each driver package (see
// drivers/procfs and drivers/echo). The kernel treats the payload as
// opaque past the length prefix; it's the drivers and
// their clients that agree on what the id and payload bytes mean.
package vfsops

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the number of bytes of fixed header preceding a
// message's payload: a 1-byte id and a 4-byte little-endian length.
const HeaderSize = 1 + 4

// MsgID is the driver-chosen, kernel-opaque 1-byte sub-command id
// carried in every message header.
type MsgID byte

// Message is a single length-prefixed message queued on a channel's
// send-list or receive-list.
type Message struct {
	ID      MsgID
	Payload []byte
}

// Len is the number of bytes Marshal will produce for this message.
func (m Message) Len() int {
	return HeaderSize + len(m.Payload)
}

// Marshal encodes the message's wire form: 1-byte id, 4-byte
// little-endian payload length, then the payload bytes.
func (m Message) Marshal() []byte {
	buf := make([]byte, m.Len())
	buf[0] = byte(m.ID)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(m.Payload)))
	copy(buf[5:], m.Payload)
	return buf
}

// Unmarshal decodes a message from its wire form. The kernel itself
// never calls this on a message it already holds structured in a
// channel's FIFO; it exists for drivers/clients that exchange raw
// bytes through Kernel.SendMsg/ReceiveMsg buffers.
func Unmarshal(b []byte) (Message, error) {
	if len(b) < HeaderSize {
		return Message{}, fmt.Errorf("vfsops: short message header: %d bytes", len(b))
	}

	length := binary.LittleEndian.Uint32(b[1:5])
	if int(length) > len(b)-HeaderSize {
		return Message{}, fmt.Errorf("vfsops: claimed length %d exceeds %d available bytes", length, len(b)-HeaderSize)
	}

	return Message{
		ID:      MsgID(b[0]),
		Payload: b[HeaderSize : HeaderSize+int(length)],
	}, nil
}

// DebugString renders a short human-readable summary for debug
// output, truncating payloads longer than 32 bytes.
func (m Message) DebugString() string {
	const maxShown = 32
	payload := m.Payload
	truncated := false
	if len(payload) > maxShown {
		payload = payload[:maxShown]
		truncated = true
	}

	if truncated {
		return fmt.Sprintf("id=0x%02x len=%d payload=%q...", m.ID, len(m.Payload), payload)
	}
	return fmt.Sprintf("id=0x%02x len=%d payload=%q", m.ID, len(m.Payload), payload)
}
