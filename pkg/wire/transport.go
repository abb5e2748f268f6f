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

	"github.com/go-zeromq/zmq4"

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
)

// Channel names the four message sockets a kernel connection exposes; the
// heartbeat socket is reached through Transport.Heartbeat instead.
type Channel string

const (
	ChannelShell   Channel = "shell"
	ChannelIOPub   Channel = "iopub"
	ChannelStdin   Channel = "stdin"
	ChannelControl Channel = "control"
)

// Transport is the channel-addressed send/receive surface SessionCore
// drives. Implementations own the underlying sockets and are safe for
// concurrent use across channels, but not for concurrent Send calls on the
// same channel.
type Transport interface {
	Send(ctx context.Context, ch Channel, msg Message) error
	Recv(ctx context.Context, ch Channel) (Message, error)
	// Heartbeat round-trips a single ping and reports whether the kernel
	// answered within ctx's deadline.
	Heartbeat(ctx context.Context) error
	Close() error
}

// zmqTransport is a Transport backed by go-zeromq/zmq4 client sockets
// dialed against a launched kernel's connection file: DEALER for
// shell/stdin/control, SUB for iopub, REQ for heartbeat.
type zmqTransport struct {
	signer *Signer

	shell   zmq4.Socket
	control zmq4.Socket
	stdin   zmq4.Socket
	iopub   zmq4.Socket
	hb      zmq4.Socket
}

// Dial connects to every channel of a running kernel's connection file.
func Dial(ctx context.Context, f *connection.File) (Transport, error) {
	signer, err := NewSigner(f.Key)
	if err != nil {
		return nil, err
	}

	t := &zmqTransport{
		signer:  signer,
		shell:   zmq4.NewDealer(ctx),
		control: zmq4.NewDealer(ctx),
		stdin:   zmq4.NewDealer(ctx),
		iopub:   zmq4.NewSub(ctx),
		hb:      zmq4.NewReq(ctx),
	}

	endpoints := map[*zmq4.Socket]int{
		&t.shell:   f.ShellPort,
		&t.control: f.ControlPort,
		&t.stdin:   f.StdinPort,
		&t.hb:      f.HBPort,
	}
	for sock, port := range endpoints {
		addr := fmt.Sprintf("%s://%s", f.Transport, net.JoinHostPort(f.IP, itoa(port)))
		if err := (*sock).Dial(addr); err != nil {
			t.Close()
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
	}

	iopubAddr := fmt.Sprintf("%s://%s", f.Transport, net.JoinHostPort(f.IP, itoa(f.IOPubPort)))
	if err := t.iopub.Dial(iopubAddr); err != nil {
		t.Close()
		return nil, fmt.Errorf("dial %s: %w", iopubAddr, err)
	}
	if err := t.iopub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		t.Close()
		return nil, fmt.Errorf("subscribe iopub: %w", err)
	}

	return t, nil
}

func (t *zmqTransport) socketFor(ch Channel) (zmq4.Socket, error) {
	switch ch {
	case ChannelShell:
		return t.shell, nil
	case ChannelControl:
		return t.control, nil
	case ChannelStdin:
		return t.stdin, nil
	case ChannelIOPub:
		return t.iopub, nil
	default:
		return zmq4.Socket(nil), fmt.Errorf("unknown channel %q", ch)
	}
}

func (t *zmqTransport) Send(ctx context.Context, ch Channel, msg Message) error {
	sock, err := t.socketFor(ch)
	if err != nil {
		return err
	}
	frames, err := t.signer.Frames(msg)
	if err != nil {
		return fmt.Errorf("frame message: %w", err)
	}
	return sock.Send(zmq4.NewMsgFrom(frames...))
}

func (t *zmqTransport) Recv(ctx context.Context, ch Channel) (Message, error) {
	sock, err := t.socketFor(ch)
	if err != nil {
		return Message{}, err
	}
	zmsg, err := sock.Recv()
	if err != nil {
		return Message{}, err
	}
	return t.signer.Parse(zmsg.Frames)
}

// Heartbeat sends an arbitrary payload on the REQ/REP heartbeat socket and
// blocks until the kernel echoes it back or ctx is done. The heartbeat
// channel carries no signed Jupyter message, only a raw echo.
func (t *zmqTransport) Heartbeat(ctx context.Context) error {
	if err := t.hb.Send(zmq4.NewMsg([]byte("ping"))); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		_, err := t.hb.Recv()
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (t *zmqTransport) Close() error {
	for _, sock := range []zmq4.Socket{t.shell, t.control, t.stdin, t.iopub, t.hb} {
		if sock != nil {
			_ = sock.Close()
		}
	}
	return nil
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
