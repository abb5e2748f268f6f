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
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
)

// freePort grabs an OS-assigned TCP port and releases it immediately, for
// handing to zmq4's own Listen/Dial rather than net's.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConnectionFile(t *testing.T) *connection.File {
	t.Helper()
	return &connection.File{
		ShellPort:       freePort(t),
		IOPubPort:       freePort(t),
		StdinPort:       freePort(t),
		ControlPort:     freePort(t),
		HBPort:          freePort(t),
		IP:              "127.0.0.1",
		Key:             "deadbeef00112233445566778899aabbccddeeff0011223344556677889900",
		SignatureScheme: connection.SignatureScheme,
		Transport:       connection.TransportTCP,
	}
}

func TestDialUnknownChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := testConnectionFile(t)
	router := zmq4.NewRouter(ctx)
	defer router.Close()
	if err := router.Listen(endpointFor(f, f.ShellPort)); err != nil {
		t.Fatalf("listen shell: %v", err)
	}
	listenAll(t, ctx, f, f.ShellPort)

	transport, err := Dial(ctx, f)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer transport.Close()

	if _, err := transport.Recv(ctx, Channel("bogus")); err == nil {
		t.Fatal("expected an error for an unknown channel")
	}
	if err := transport.Send(ctx, Channel("bogus"), Message{}); err == nil {
		t.Fatal("expected an error sending on an unknown channel")
	}
}

func TestDialSendRecvShellRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := testConnectionFile(t)
	shell := zmq4.NewRouter(ctx)
	defer shell.Close()
	if err := shell.Listen(endpointFor(f, f.ShellPort)); err != nil {
		t.Fatalf("listen shell: %v", err)
	}
	listenAll(t, ctx, f, f.ShellPort)

	transport, err := Dial(ctx, f)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer transport.Close()

	msg, err := NewMessage("session-1", "kernel_info_request", map[string]string{})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := transport.Send(ctx, ChannelShell, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	recvCtx, recvCancel := context.WithTimeout(ctx, 3*time.Second)
	defer recvCancel()
	zmsg, err := shell.Recv()
	if err != nil {
		t.Fatalf("server Recv: %v", err)
	}

	signer, err := NewSigner(f.Key)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	// The router server sees a leading routing-identity frame ahead of the
	// signed envelope a Dealer client sends.
	parsed, err := signer.Parse(zmsg.Frames[1:])
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Header.MsgType != "kernel_info_request" {
		t.Fatalf("unexpected msg_type: %s", parsed.Header.MsgType)
	}

	reply, err := NewMessage("session-1", "kernel_info_reply", map[string]string{})
	if err != nil {
		t.Fatalf("NewMessage reply: %v", err)
	}
	frames, err := signer.Frames(reply)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	replyFrames := append([][]byte{zmsg.Frames[0]}, frames...)
	if err := shell.Send(zmq4.NewMsgFrom(replyFrames...)); err != nil {
		t.Fatalf("server Send: %v", err)
	}

	got, err := transport.Recv(recvCtx, ChannelShell)
	if err != nil {
		t.Fatalf("client Recv: %v", err)
	}
	if got.Header.MsgType != "kernel_info_reply" {
		t.Fatalf("unexpected reply msg_type: %s", got.Header.MsgType)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := testConnectionFile(t)
	hb := zmq4.NewRep(ctx)
	defer hb.Close()
	if err := hb.Listen(endpointFor(f, f.HBPort)); err != nil {
		t.Fatalf("listen hb: %v", err)
	}
	listenAll(t, ctx, f, f.HBPort)

	go func() {
		msg, err := hb.Recv()
		if err != nil {
			return
		}
		_ = hb.Send(msg)
	}()

	transport, err := Dial(ctx, f)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer transport.Close()

	hbCtx, hbCancel := context.WithTimeout(ctx, 3*time.Second)
	defer hbCancel()
	if err := transport.Heartbeat(hbCtx); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
}

// endpointFor mirrors Dial's own address formatting for one port of f.
func endpointFor(f *connection.File, port int) string {
	return fmt.Sprintf("%s://%s", f.Transport, net.JoinHostPort(f.IP, fmt.Sprintf("%d", port)))
}

// listenAll binds trivial listeners on every port of f except those already
// bound by the caller (passed in skip), so Dial's handshake against the
// other channels has a peer and doesn't block the test on a connection
// refused retry loop.
func listenAll(t *testing.T, ctx context.Context, f *connection.File, skip ...int) {
	t.Helper()
	skipSet := map[int]bool{}
	for _, p := range skip {
		skipSet[p] = true
	}

	bind := func(port int, sock zmq4.Socket) {
		if skipSet[port] {
			return
		}
		if err := sock.Listen(endpointFor(f, port)); err != nil {
			t.Fatalf("listen %d: %v", port, err)
		}
		t.Cleanup(func() { sock.Close() })
	}

	bind(f.ShellPort, zmq4.NewRouter(ctx))
	bind(f.ControlPort, zmq4.NewRouter(ctx))
	bind(f.StdinPort, zmq4.NewRouter(ctx))
	bind(f.IOPubPort, zmq4.NewPub(ctx))
	bind(f.HBPort, zmq4.NewRep(ctx))
}
