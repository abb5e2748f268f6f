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
	"fmt"
	"sync"

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
)

// Registry tracks every live Facade by session ID for the HTTP layer,
// which has no other place to hold session state between requests.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Facade
}

// NewRegistry builds an empty Registry. cfg is used as every new session's
// Config.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, sessions: map[string]*Facade{}}
}

// Create connects a brand-new session for kernel and registers it.
func (r *Registry) Create(ctx context.Context, kernel connection.Kernel) (*Facade, error) {
	core := New(kernel, r.cfg)
	if err := core.Connect(ctx); err != nil {
		return nil, err
	}
	facade := NewFacade(core)

	r.mu.Lock()
	r.sessions[core.ID()] = facade
	r.mu.Unlock()

	core.OnDispose(func() {
		r.mu.Lock()
		delete(r.sessions, core.ID())
		r.mu.Unlock()
	})
	return facade, nil
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Facade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return f, nil
}

// List returns every currently registered session ID.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown disposes every registered session, for server shutdown.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	facades := make([]*Facade, 0, len(r.sessions))
	for _, f := range r.sessions {
		facades = append(facades, f)
	}
	r.mu.Unlock()

	for _, f := range facades {
		_ = f.Shutdown(ctx)
	}
}
