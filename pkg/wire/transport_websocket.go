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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsEnvelope is the single-socket JSON framing a Jupyter server's
// "/api/kernels/{id}/channels" websocket multiplexes all four channels
// over, tagging each message with which channel it belongs to.
type wsEnvelope struct {
	Header       Header                 `json:"header"`
	ParentHeader Header                 `json:"parent_header"`
	Metadata     map[string]interface{} `json:"metadata"`
	Content      json.RawMessage        `json:"content"`
	Channel      string                 `json:"channel"`
}

// websocketTransport is the Transport used for KindConnectToLiveKernel:
// a single websocket connection multiplexing every channel, addressed by
// the envelope's "channel" field rather than by separate sockets. It does
// not speak the kernel wire protocol's native ZeroMQ multipart framing.
type websocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	inboxes map[Channel]chan Message
	readErr error
	done    chan struct{}
}

// DialWebSocket connects to a remote kernel's channels endpoint, e.g.
// "wss://host/api/kernels/<id>/channels?session_id=<sid>".
func DialWebSocket(ctx context.Context, url string) (Transport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && err != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial kernel channels: %w", err)
	}

	t := &websocketTransport{
		conn: conn,
		inboxes: map[Channel]chan Message{
			ChannelShell:   make(chan Message, 16),
			ChannelIOPub:   make(chan Message, 64),
			ChannelStdin:   make(chan Message, 4),
			ChannelControl: make(chan Message, 4),
		},
		done: make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *websocketTransport) readLoop() {
	defer close(t.done)
	for {
		var env wsEnvelope
		if err := t.conn.ReadJSON(&env); err != nil {
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
			return
		}
		msg := Message{
			Header:       env.Header,
			ParentHeader: env.ParentHeader,
			Metadata:     env.Metadata,
			Content:      env.Content,
		}

		t.mu.Lock()
		inbox, ok := t.inboxes[Channel(env.Channel)]
		t.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case inbox <- msg:
		default:
			// Drop rather than block the read loop; a slow consumer on
			// one channel must not stall delivery on the others.
		}
	}
}

func (t *websocketTransport) Send(_ context.Context, ch Channel, msg Message) error {
	env := wsEnvelope{
		Header:       msg.Header,
		ParentHeader: msg.ParentHeader,
		Metadata:     msg.Metadata,
		Content:      msg.Content,
		Channel:      string(ch),
	}
	if env.Metadata == nil {
		env.Metadata = map[string]interface{}{}
	}
	if env.Content == nil {
		env.Content = []byte("{}")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(env)
}

func (t *websocketTransport) Recv(ctx context.Context, ch Channel) (Message, error) {
	t.mu.Lock()
	inbox, ok := t.inboxes[ch]
	t.mu.Unlock()
	if !ok {
		return Message{}, fmt.Errorf("unknown channel %q", ch)
	}

	select {
	case msg := <-inbox:
		return msg, nil
	case <-t.done:
		t.mu.Lock()
		err := t.readErr
		t.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("websocket transport closed")
		}
		return Message{}, err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (t *websocketTransport) Heartbeat(ctx context.Context) error {
	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (t *websocketTransport) Close() error {
	return t.conn.Close()
}
