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

import "testing"

func TestSigner_FramesAndParse_RoundTrip(t *testing.T) {
	signer, err := NewSigner("deadbeef00112233445566778899aabbccddeeff0011223344556677889900")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	msg, err := NewMessage("session-1", "kernel_info_request", map[string]string{})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	frames, err := signer.Frames(msg)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}

	parsed, err := signer.Parse(frames)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.Header.MsgType != "kernel_info_request" {
		t.Errorf("MsgType = %q, want kernel_info_request", parsed.Header.MsgType)
	}
	if parsed.Header.Session != "session-1" {
		t.Errorf("Session = %q, want session-1", parsed.Header.Session)
	}
}

func TestSigner_Parse_RejectsTamperedSignature(t *testing.T) {
	signer, err := NewSigner("0011223344556677889900aabbccddeeff00112233445566778899aabbccdd")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	msg, _ := NewMessage("s", "execute_request", map[string]string{"code": "1+1"})
	frames, err := signer.Frames(msg)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}

	// Tamper with the header frame (index: delimiter, signature, header, ...).
	for i, f := range frames {
		if string(f) == delimiter {
			frames[i+2] = []byte(`{"msg_type":"tampered"}`)
			break
		}
	}

	if _, err := signer.Parse(frames); err == nil {
		t.Fatal("expected a signature mismatch error after tampering with the header")
	}
}

func TestSigner_NoKeyDisablesVerification(t *testing.T) {
	signer, err := NewSigner("")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	msg, _ := NewMessage("s", "kernel_info_request", map[string]string{})
	frames, err := signer.Frames(msg)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if _, err := signer.Parse(frames); err != nil {
		t.Fatalf("Parse with no key should accept any signature: %v", err)
	}
}

func TestSigner_Parse_MissingDelimiterErrors(t *testing.T) {
	signer, _ := NewSigner("")
	if _, err := signer.Parse([][]byte{[]byte("garbage")}); err == nil {
		t.Fatal("expected an error when the delimiter frame is absent")
	}
}

func TestMessage_Reply_ChainsParentHeader(t *testing.T) {
	req, _ := NewMessage("sess", "execute_request", map[string]string{})
	reply, err := req.Reply("execute_reply", map[string]string{"status": "ok"})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.ParentHeader.MessageID != req.Header.MessageID {
		t.Errorf("reply's parent header msg_id = %q, want %q", reply.ParentHeader.MessageID, req.Header.MessageID)
	}
	if reply.Header.Session != "sess" {
		t.Errorf("reply session = %q, want sess", reply.Header.Session)
	}
}
