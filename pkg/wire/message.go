// Copyright 2025 Alibaba Group Holding Ltd.
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

// Package wire implements the Jupyter messaging protocol's wire framing:
// HMAC-signed multipart messages exchanged over a kernel's shell, iopub,
// stdin, control and heartbeat channels.
package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the Jupyter messaging protocol version this package
// speaks.
const ProtocolVersion = "5.3"

// delimiter separates routing identities from the signed part of a
// multipart message.
const delimiter = "<IDS|MSG>"

// Header is a Jupyter message header.
type Header struct {
	MessageID string `json:"msg_id"`
	Username  string `json:"username"`
	Session   string `json:"session"`
	Date      string `json:"date"`
	MsgType   string `json:"msg_type"`
	Version   string `json:"version"`
}

// NewHeader builds a header for a freshly originated message.
func NewHeader(session, msgType string) Header {
	return Header{
		MessageID: uuid.New().String(),
		Username:  "kernelcore",
		Session:   session,
		Date:      time.Now().UTC().Format(time.RFC3339Nano),
		MsgType:   msgType,
		Version:   ProtocolVersion,
	}
}

// Message is a single Jupyter protocol message, channel-agnostic.
type Message struct {
	Header       Header                 `json:"header"`
	ParentHeader Header                 `json:"parent_header"`
	Metadata     map[string]interface{} `json:"metadata"`
	Content      json.RawMessage        `json:"content"`
	Buffers      [][]byte               `json:"-"`

	// Identities are the ROUTER-socket routing frames preceding the
	// delimiter; empty for messages this process originates.
	Identities [][]byte `json:"-"`
}

// NewMessage builds a Message with an empty parent header and metadata,
// ready to have Content set.
func NewMessage(session, msgType string, content interface{}) (Message, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Header:   NewHeader(session, msgType),
		Metadata: map[string]interface{}{},
		Content:  raw,
	}, nil
}

// Reply builds a response to msg, chaining msg's header as the new
// message's parent header per the protocol's request/reply convention.
func (msg Message) Reply(msgType string, content interface{}) (Message, error) {
	reply, err := NewMessage(msg.Header.Session, msgType, content)
	if err != nil {
		return Message{}, err
	}
	reply.ParentHeader = msg.Header
	reply.Identities = msg.Identities
	return reply, nil
}
