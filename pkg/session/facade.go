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

package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/alibaba/opensandbox/kernelcore/pkg/wire"
)

func unmarshalContent(msg wire.Message, v interface{}) error {
	return json.Unmarshal(msg.Content, v)
}

// Facade is the public operation surface over a session:
// execute/inspect/complete/debug pass-through, input replies, comm target
// registration, and IOPub message hooks, all delegating to a Core and all
// failing with SessionDisposedError once the Core reaches Dead. Comm
// targets and message hooks are re-registered against the swapped kernel
// on every restart, since Core's iopub forwarding and control-channel
// sends continue unchanged through a swap.
type Facade struct {
	core *Core

	mu          sync.Mutex
	commTargets map[string]func(wire.Message)
}

// NewFacade wraps core with the pass-through operation surface.
func NewFacade(core *Core) *Facade {
	f := &Facade{core: core, commTargets: map[string]func(wire.Message){}}
	core.AddIOPubHook(f.dispatchCommMessage)
	return f
}

func (f *Facade) send(ctx context.Context, ch wire.Channel, msgType string, content interface{}) error {
	t, err := f.core.liveTransport()
	if err != nil {
		return err
	}
	msg, err := wire.NewMessage(f.core.clientID, msgType, content)
	if err != nil {
		return err
	}
	return t.Send(ctx, ch, msg)
}

// Execute sends an execute_request on the shell channel.
func (f *Facade) Execute(ctx context.Context, content interface{}) error {
	return f.send(ctx, wire.ChannelShell, "execute_request", content)
}

// Inspect sends an inspect_request on the shell channel.
func (f *Facade) Inspect(ctx context.Context, content interface{}) error {
	return f.send(ctx, wire.ChannelShell, "inspect_request", content)
}

// Complete sends a complete_request on the shell channel.
func (f *Facade) Complete(ctx context.Context, content interface{}) error {
	return f.send(ctx, wire.ChannelShell, "complete_request", content)
}

// Debug sends a debug_request on the control channel, per the Jupyter
// debug adapter protocol's pass-through convention.
func (f *Facade) Debug(ctx context.Context, content interface{}) error {
	return f.send(ctx, wire.ChannelControl, "debug_request", content)
}

// InputReply answers a pending input_request on the stdin channel.
func (f *Facade) InputReply(ctx context.Context, value string) error {
	return f.send(ctx, wire.ChannelStdin, "input_reply", map[string]string{"value": value})
}

// RegisterCommTarget arranges for fn to receive every IOPub comm_open/
// comm_msg/comm_close message addressed to targetName. Registration
// survives restart: it lives on the Facade, not the swapped Core state.
func (f *Facade) RegisterCommTarget(targetName string, fn func(wire.Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commTargets[targetName] = fn
}

// UnregisterCommTarget removes a previously registered comm target.
func (f *Facade) UnregisterCommTarget(targetName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.commTargets, targetName)
}

func (f *Facade) dispatchCommMessage(msg wire.Message) {
	switch msg.Header.MsgType {
	case "comm_open", "comm_msg", "comm_close":
	default:
		return
	}
	var content struct {
		TargetName string `json:"target_name"`
	}
	if err := unmarshalContent(msg, &content); err != nil || content.TargetName == "" {
		return
	}
	f.mu.Lock()
	fn := f.commTargets[content.TargetName]
	f.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// OnIOPubMessage registers a raw message hook, bypassing comm routing.
// Like comm targets, it is re-exercised against every post-restart
// transport because it rides Core's persistent iopub forwarding loop.
func (f *Facade) OnIOPubMessage(fn func(wire.Message)) {
	f.core.AddIOPubHook(fn)
}

// Interrupt, Restart and Shutdown pass straight through to Core; Facade
// adds no behavior beyond being the caller's single handle.
func (f *Facade) Interrupt(ctx context.Context) error { return f.core.Interrupt(ctx) }
func (f *Facade) Restart(ctx context.Context) error   { return f.core.Restart(ctx) }
func (f *Facade) Shutdown(ctx context.Context) error  { return f.core.Shutdown(ctx) }
func (f *Facade) Status() Status                      { return f.core.Status() }
func (f *Facade) Done() <-chan struct{}               { return f.core.Done() }
func (f *Facade) ID() string                          { return f.core.ID() }
func (f *Facade) ClientID() string                    { return f.core.ClientID() }
func (f *Facade) CanShutdown() bool                   { return f.core.CanShutdown() }
