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

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
	"github.com/alibaba/opensandbox/kernelcore/pkg/util/safego"
	"github.com/alibaba/opensandbox/kernelcore/pkg/wire"
)

// Restart swaps this session's live process/transport for a pre-warmed
// spare, preserving ID and ClientID so callers never observe a new
// session. For ConnectToLiveKernel, there is no local process to swap;
// the request is forwarded to the remote control plane instead.
func (c *Core) Restart(ctx context.Context) error {
	c.mu.Lock()
	if c.status.terminal() {
		c.mu.Unlock()
		return c.disposedErr()
	}
	isLive := c.kernel.Kind == connection.KindConnectToLiveKernel
	c.mu.Unlock()
	if isLive {
		return c.restartLive(ctx)
	}
	return c.restartLocal(ctx)
}

func (c *Core) restartLive(ctx context.Context) error {
	remote := c.cfg.Remote
	if remote == nil {
		remote = NoopRemoteController{}
	}
	return remote.Restart(ctx)
}

// restartLocal blocks on having a spare ready (starting one now if none
// was pre-warmed), then atomically swaps it in and tears down the old
// process/transport in the background.
func (c *Core) restartLocal(ctx context.Context) error {
	c.mu.Lock()
	spare := c.restartSpare
	c.restartSpare = nil
	c.mu.Unlock()

	if spare == nil {
		spare = c.newSpare()
		spare.isSpare = true
		if err := spare.Connect(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	oldProcess := c.process
	oldTransport := c.transport

	c.process = spare.process
	c.transport = spare.transport
	c.status = spare.status
	newTransport := c.transport
	c.mu.Unlock()

	if c.process != nil {
		c.watchExit(c.process)
	}
	safego.Go(func() { c.runIOPubLoop(newTransport) })

	clientID := c.clientID
	safego.Go(func() {
		if oldTransport != nil {
			shutdownOldTransport(oldTransport, clientID)
		}
		if oldProcess != nil {
			oldProcess.Dispose()
		}
	})

	safego.Go(func() { c.prewarmSpare() })
	return nil
}

// prewarmSpare connects a replacement session in the background after a
// successful connect of a locally launched kernel and after every local
// restart, so a future Restart need not block on a fresh launch.
func (c *Core) prewarmSpare() {
	spare := c.newSpare()
	spare.isSpare = true
	if err := spare.Connect(context.Background()); err != nil {
		log.Warn("session: pre-warm spare failed for %s: %v", c.id, err)
		return
	}
	c.mu.Lock()
	if c.status.terminal() || c.restartSpare != nil {
		c.mu.Unlock()
		spare.shutdownNow(context.Background())
		return
	}
	c.restartSpare = spare
	c.mu.Unlock()
}

func shutdownOldTransport(t wire.Transport, session string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownRequestBudget)
	defer cancel()
	sendShutdownRequest(ctx, t, session)
	_ = t.Close()
}
