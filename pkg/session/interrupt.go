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

	"github.com/alibaba/opensandbox/kernelcore/pkg/wire"
)

// Interrupt stops the kernel's current execution without restarting it.
// It prefers a platform-native signal (KernelProcess.CanInterrupt) and
// falls back to the shell interrupt_request message when the spec
// declares interrupt_mode "message". Every path is bounded by
// cfg.InterruptTimeout; timing out never changes the session's status.
func (c *Core) Interrupt(ctx context.Context) error {
	c.mu.Lock()
	if c.status.terminal() {
		c.mu.Unlock()
		return c.disposedErr()
	}
	process := c.process
	transport := c.transport
	spec := c.kernel.Spec
	c.mu.Unlock()

	ictx, cancel := context.WithTimeout(ctx, c.cfg.InterruptTimeout)
	defer cancel()

	if process != nil && process.CanInterrupt() {
		done := make(chan error, 1)
		go func() { done <- process.Interrupt() }()
		select {
		case <-ictx.Done():
			return &InterruptTimeoutError{Timeout: c.cfg.InterruptTimeout.String()}
		case err := <-done:
			return err
		}
	}

	if spec != nil && spec.InterruptMode == "message" {
		return c.interruptViaMessage(ictx, transport)
	}

	return &InterruptNotSupportedError{}
}

func (c *Core) interruptViaMessage(ctx context.Context, t wire.Transport) error {
	if t == nil {
		return &InterruptNotSupportedError{}
	}
	msg, err := wire.NewMessage(c.clientID, "interrupt_request", struct{}{})
	if err != nil {
		return err
	}
	if err := t.Send(ctx, wire.ChannelControl, msg); err != nil {
		return err
	}
	if _, err := t.Recv(ctx, wire.ChannelControl); err != nil {
		if ctx.Err() != nil {
			return &InterruptTimeoutError{Timeout: c.cfg.InterruptTimeout.String()}
		}
		return err
	}
	return nil
}
