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
	"time"

	"github.com/google/uuid"

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
	"github.com/alibaba/opensandbox/kernelcore/pkg/launcher"
	"github.com/alibaba/opensandbox/kernelcore/pkg/util/safego"
	"github.com/alibaba/opensandbox/kernelcore/pkg/wire"
)

// maxStartupAttempts is the number of times connect sends a fresh
// kernel_info_request before giving up.
const maxStartupAttempts = 2

// maxStartupWindow caps the per-attempt probe window even when the
// caller's launch timeout is larger.
const maxStartupWindow = 10 * time.Second

// Config supplies everything a Core needs besides the Kernel it wraps.
type Config struct {
	Launcher         *launcher.Launcher
	LaunchTimeout    time.Duration
	InterruptTimeout time.Duration
	WorkingDir       string
	Owner            Owner
	Remote           RemoteController // only consulted for KindConnectToLiveKernel
}

// Core is the session state machine: one kernel connection's lifecycle,
// from first connect through restart-via-swap to final disposal.
type Core struct {
	id       string
	clientID string
	cfg      Config
	kernel   connection.Kernel

	mu        sync.Mutex
	status    Status
	process   *launcher.Process // nil for ConnectToLiveKernel
	transport wire.Transport

	statusHandlers  []func(Status)
	iopubHooks      []func(wire.Message)
	disposeHandlers []func()

	restartSpare *Core
	isSpare      bool

	shutdownOnce sync.Once
	doneCh       chan struct{}

	// dial is overridden in tests to substitute wire.FakeTransport for a
	// real launch/dial; production code always uses dialOrLaunch.
	dial func(ctx context.Context) (*launcher.Process, wire.Transport, error)

	// newSpare builds the Core a restart swaps in; overridden in tests so
	// a spare inherits the test's fake dial instead of a real launch.
	newSpare func() *Core
}

// New builds a Core in StatusUnknown. Connect must be called before any
// other operation succeeds.
func New(kernel connection.Kernel, cfg Config) *Core {
	c := &Core{
		id:       uuid.New().String(),
		clientID: uuid.New().String(),
		cfg:      cfg,
		kernel:   kernel,
		status:   StatusUnknown,
		doneCh:   make(chan struct{}),
	}
	c.dial = c.dialOrLaunch
	c.newSpare = func() *Core { return New(kernel, cfg) }
	return c
}

// ID is this session's stable identifier.
func (c *Core) ID() string { return c.id }

// ClientID is the identifier attached to every message this session
// originates; it survives restart-via-swap.
func (c *Core) ClientID() string { return c.clientID }

// Status returns the current lifecycle state.
func (c *Core) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OnStatusChanged registers a callback invoked (outside any lock) for the
// transitions made through setStatus: Idle when Connect finishes, Idle/Busy
// from IOPub status messages, and Terminating when the process exits on its
// own. Entering Starting, the status taken over in a restart swap, and Dead
// are not reported. Handlers are detached on Shutdown.
func (c *Core) OnStatusChanged(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusHandlers = append(c.statusHandlers, fn)
}

// OnDispose registers a callback fired exactly once, when the session
// reaches Dead.
func (c *Core) OnDispose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.terminal() {
		c.mu.Unlock()
		fn()
		c.mu.Lock()
		return
	}
	c.disposeHandlers = append(c.disposeHandlers, fn)
}

// Done is closed exactly once, when the session reaches Dead.
func (c *Core) Done() <-chan struct{} { return c.doneCh }

// disposedErr builds the error every operation returns once Dead.
func (c *Core) disposedErr() error {
	return &SessionDisposedError{SessionID: c.id}
}

// markDead transitions directly to Dead (no Terminating interval) for
// failures that occur before a session ever became observably alive, such
// as a launch failure or a failed startup probe.
func (c *Core) markDead() {
	c.mu.Lock()
	if c.status.terminal() {
		c.mu.Unlock()
		return
	}
	c.status = StatusDead
	handlers := c.disposeHandlers
	c.disposeHandlers = nil
	c.mu.Unlock()
	close(c.doneCh)
	for _, h := range handlers {
		h()
	}
}

func (c *Core) setStatus(s Status) {
	c.mu.Lock()
	if c.status.terminal() {
		c.mu.Unlock()
		return
	}
	c.status = s
	handlers := append([]func(Status){}, c.statusHandlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(s)
	}
}

// Connect drives Unknown -> Starting -> Idle: it dials or launches the
// kernel, then runs the startup probe, then begins forwarding IOPub
// traffic to registered hooks for the remainder of the session's life.
func (c *Core) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusUnknown {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusStarting
	c.mu.Unlock()

	process, transport, err := c.dial(ctx)
	if err != nil {
		c.markDead()
		return err
	}

	c.mu.Lock()
	c.process = process
	c.transport = transport
	c.mu.Unlock()

	if err := c.startupProbe(ctx, transport); err != nil {
		_ = transport.Close()
		if process != nil {
			process.Dispose()
		}
		c.markDead()
		return err
	}

	if process != nil {
		c.watchExit(process)
	}
	safego.Go(func() { c.runIOPubLoop(transport) })

	c.setStatus(StatusIdle)

	if process != nil {
		safego.Go(func() { c.prewarmSpare() })
	}
	return nil
}

// dialOrLaunch implements the Kind switch: ConnectToLiveKernel dials a
// websocket multiplexer with no local process, the other two variants
// launch a child and dial its connection file.
func (c *Core) dialOrLaunch(ctx context.Context) (*launcher.Process, wire.Transport, error) {
	if c.kernel.Kind == connection.KindConnectToLiveKernel {
		t, err := wire.DialWebSocket(ctx, c.kernel.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		return nil, t, nil
	}

	process, err := c.cfg.Launcher.Launch(ctx, c.kernel, c.cfg.LaunchTimeout, c.cfg.WorkingDir)
	if err != nil {
		return nil, nil, err
	}
	t, err := wire.Dial(ctx, process.ConnectionFile())
	if err != nil {
		process.Dispose()
		return nil, nil, err
	}
	return process, t, nil
}

// startupProbe sends a kernel_info_request up to maxStartupAttempts
// times, each bounded by min(LaunchTimeout, maxStartupWindow), waiting
// for both a shell reply and IOPub traffic before declaring Idle.
func (c *Core) startupProbe(ctx context.Context, t wire.Transport) error {
	window := c.cfg.LaunchTimeout
	if window <= 0 || window > maxStartupWindow {
		window = maxStartupWindow
	}

	for attempt := 0; attempt < maxStartupAttempts; attempt++ {
		probeCtx, cancel := context.WithTimeout(ctx, window)
		ok := c.probeOnce(probeCtx, t)
		cancel()
		if ok {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return &StartupProbeFailedError{}
}

func (c *Core) probeOnce(ctx context.Context, t wire.Transport) bool {
	msg, err := wire.NewMessage(c.clientID, "kernel_info_request", struct{}{})
	if err != nil {
		return false
	}
	if err := t.Send(ctx, wire.ChannelShell, msg); err != nil {
		return false
	}

	var wg sync.WaitGroup
	var gotReply, gotIOPub bool
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := t.Recv(ctx, wire.ChannelShell)
		gotReply = err == nil
	}()
	go func() {
		defer wg.Done()
		_, err := t.Recv(ctx, wire.ChannelIOPub)
		gotIOPub = err == nil
	}()
	wg.Wait()
	return gotReply && gotIOPub
}

// runIOPubLoop forwards every IOPub message to registered hooks for the
// lifetime of t, and derives Idle/Busy transitions from "status"
// messages. It returns once t is closed or broken.
func (c *Core) runIOPubLoop(t wire.Transport) {
	for {
		msg, err := t.Recv(context.Background(), wire.ChannelIOPub)
		if err != nil {
			return
		}

		c.mu.Lock()
		hooks := append([]func(wire.Message){}, c.iopubHooks...)
		c.mu.Unlock()
		for _, h := range hooks {
			h(msg)
		}

		c.observeStatus(msg)
	}
}

func (c *Core) observeStatus(msg wire.Message) {
	if msg.Header.MsgType != "status" {
		return
	}
	var content struct {
		ExecutionState string `json:"execution_state"`
	}
	if err := json.Unmarshal(msg.Content, &content); err != nil {
		return
	}
	switch content.ExecutionState {
	case "busy":
		c.setStatus(StatusBusy)
	case "idle":
		c.setStatus(StatusIdle)
	}
}

// watchExit transitions Terminating -> Dead when process exits on its
// own, but only while process is still this Core's live process: a
// restart swap retires the old process's watcher harmlessly.
func (c *Core) watchExit(process *launcher.Process) {
	safego.Go(func() {
		<-process.Exited()
		c.mu.Lock()
		stillLive := c.process == process
		c.mu.Unlock()
		if !stillLive {
			return
		}
		c.setStatus(StatusTerminating)
		_ = c.Shutdown(context.Background())
	})
}

// AddIOPubHook registers a callback invoked for every IOPub message,
// including across a restart swap.
func (c *Core) AddIOPubHook(fn func(wire.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iopubHooks = append(c.iopubHooks, fn)
}

func (c *Core) liveTransport() (wire.Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.terminal() {
		return nil, c.disposedErr()
	}
	return c.transport, nil
}

// canShutdown implements the can-shutdown policy: live remote kernels are
// retained unless owned by an interactive window or standing in as a
// restart spare; every other variant is always eligible.
func (c *Core) canShutdown(isRestartSpare bool) bool {
	if isRestartSpare {
		return true
	}
	if c.kernel.Kind != connection.KindConnectToLiveKernel {
		return true
	}
	return c.cfg.Owner == OwnerInteractiveWindow
}

// CanShutdown exposes the can-shutdown policy to callers deciding whether
// to dispose this session at all (e.g. a registry tearing down on
// document close). Shutdown itself is unconditional once invoked.
func (c *Core) CanShutdown() bool { return c.canShutdown(c.isSpare) }
