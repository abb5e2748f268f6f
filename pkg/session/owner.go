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

import "context"

// Owner classifies who asked for a session, which the can-shutdown
// policy keys on.
type Owner string

const (
	OwnerNotebook           Owner = "notebook"
	OwnerInteractiveWindow  Owner = "interactive_window"
)

// RemoteController is the out-of-scope HTTP control plane for
// ConnectToLiveKernel sessions (restart/shutdown), analogous in spirit to
// discovery.RemoteKernelFinder: a parallel interface with no concrete
// implementation shipped here. NoopRemoteController satisfies it for
// interface parity in tests and for local-only deployments.
type RemoteController interface {
	Restart(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// NoopRemoteController trivially succeeds every call; used when no real
// control-plane client is wired in.
type NoopRemoteController struct{}

func (NoopRemoteController) Restart(ctx context.Context) error  { return nil }
func (NoopRemoteController) Shutdown(ctx context.Context) error { return nil }
