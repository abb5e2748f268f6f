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
	"time"

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
	"github.com/alibaba/opensandbox/kernelcore/pkg/wire"
)

// shutdownRequestBudget bounds how long Shutdown waits for a
// shutdown_request reply before killing the child outright.
const shutdownRequestBudget = time.Second

// Shutdown is best-effort and idempotent: it never fails, even if the
// kernel is already dead. It detaches status handlers, asks the kernel to
// shut down cleanly within a 1s budget, kills any local child process,
// fires dispose handlers, and transitions to Dead.
func (c *Core) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() { c.doShutdown(ctx) })
	return nil
}

// shutdownNow is shutdownOnce's synchronous entry point for a spare Core
// that never became the live session (superseded by a concurrent Connect,
// or discarded because the owning Core already died).
func (c *Core) shutdownNow(ctx context.Context) { c.Shutdown(ctx) }

func (c *Core) doShutdown(ctx context.Context) {
	c.mu.Lock()
	if c.status.terminal() {
		c.mu.Unlock()
		return
	}
	c.status = StatusTerminating
	c.statusHandlers = nil
	process := c.process
	transport := c.transport
	spare := c.restartSpare
	c.restartSpare = nil
	isLive := c.kernel.Kind == connection.KindConnectToLiveKernel
	c.mu.Unlock()

	if spare != nil {
		spare.shutdownNow(context.Background())
	}

	if isLive {
		remote := c.cfg.Remote
		if remote == nil {
			remote = NoopRemoteController{}
		}
		_ = remote.Shutdown(ctx)
	} else if transport != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownRequestBudget)
		sendShutdownRequest(shutdownCtx, transport, c.clientID)
		cancel()
	}

	if process != nil {
		process.Dispose()
	}
	if transport != nil {
		_ = transport.Close()
	}

	c.mu.Lock()
	c.status = StatusDead
	disposeHandlers := c.disposeHandlers
	c.disposeHandlers = nil
	c.mu.Unlock()
	close(c.doneCh)

	for _, h := range disposeHandlers {
		h()
	}
}

func sendShutdownRequest(ctx context.Context, t wire.Transport, session string) {
	msg, err := wire.NewMessage(session, "shutdown_request", map[string]bool{"restart": false})
	if err != nil {
		return
	}
	if err := t.Send(ctx, wire.ChannelControl, msg); err != nil {
		return
	}
	_, _ = t.Recv(ctx, wire.ChannelControl)
}
