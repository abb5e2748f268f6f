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

package wire

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Signer signs and verifies the four-part body of a Jupyter wire message
// (header, parent_header, metadata, content) with the connection file's
// HMAC key. An empty key disables signing, matching unauthenticated local
// kernels.
type Signer struct {
	key []byte
}

// NewSigner builds a Signer from a hex-encoded connection-file key.
func NewSigner(hexKey string) (*Signer, error) {
	if hexKey == "" {
		return &Signer{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode hmac key: %w", err)
	}
	return &Signer{key: key}, nil
}

func (s *Signer) sign(parts [][]byte) string {
	if len(s.key) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, s.key)
	for _, p := range parts {
		mac.Write(p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Frames renders msg as the ordered list of byte frames a shell/iopub/
// stdin/control socket expects: identities, delimiter, signature, header,
// parent_header, metadata, content, then any binary buffers.
func (s *Signer) Frames(msg Message) ([][]byte, error) {
	header, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	parentHeader, err := json.Marshal(msg.ParentHeader)
	if err != nil {
		return nil, fmt.Errorf("marshal parent header: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	content := msg.Content
	if content == nil {
		content = []byte("{}")
	}

	signature := s.sign([][]byte{header, parentHeader, metadata, content})

	frames := make([][]byte, 0, len(msg.Identities)+6+len(msg.Buffers))
	frames = append(frames, msg.Identities...)
	frames = append(frames, []byte(delimiter))
	frames = append(frames, []byte(signature))
	frames = append(frames, header, parentHeader, metadata, content)
	frames = append(frames, msg.Buffers...)
	return frames, nil
}

// Parse decodes the ordered frames of a received multipart message back
// into a Message, verifying the HMAC signature when the Signer has a key.
func (s *Signer) Parse(frames [][]byte) (Message, error) {
	idx := -1
	for i, f := range frames {
		if string(f) == delimiter {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Message{}, fmt.Errorf("parse wire message: delimiter %q not found", delimiter)
	}
	// frames[idx+1:] = signature, header, parent_header, metadata, content, buffers...
	body := frames[idx+1:]
	if len(body) < 5 {
		return Message{}, fmt.Errorf("parse wire message: expected at least 5 frames after delimiter, got %d", len(body))
	}

	signature := string(body[0])
	header, parentHeader, metadata, content := body[1], body[2], body[3], body[4]
	buffers := body[5:]

	if len(s.key) > 0 {
		want := s.sign([][]byte{header, parentHeader, metadata, content})
		if !hmac.Equal([]byte(signature), []byte(want)) {
			return Message{}, fmt.Errorf("parse wire message: signature mismatch")
		}
	}

	var msg Message
	if err := json.Unmarshal(header, &msg.Header); err != nil {
		return Message{}, fmt.Errorf("unmarshal header: %w", err)
	}
	if err := json.Unmarshal(parentHeader, &msg.ParentHeader); err != nil {
		return Message{}, fmt.Errorf("unmarshal parent header: %w", err)
	}
	if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
		return Message{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	msg.Content = content
	msg.Buffers = buffers
	msg.Identities = append([][]byte(nil), frames[:idx]...)
	return msg, nil
}
