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

// Package config assembles kernelcored's composition root: the discovery
// index, ranker, launcher, and session registry every HTTP controller is
// built against.
package config

import (
	"context"
	"os"

	"github.com/alibaba/opensandbox/kernelcore/pkg/discovery"
	"github.com/alibaba/opensandbox/kernelcore/pkg/discovery/kvstore"
	"github.com/alibaba/opensandbox/kernelcore/pkg/flag"
	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
	"github.com/alibaba/opensandbox/kernelcore/pkg/kernelspec"
	"github.com/alibaba/opensandbox/kernelcore/pkg/launcher"
	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
	"github.com/alibaba/opensandbox/kernelcore/pkg/session"
)

// kernelSpecCacheDSNEnv names the DSN kernelcored uses for the SQL-backed
// discovery cache; when unset the in-process MemoryStore is used instead.
const kernelSpecCacheDSNEnv = "KERNELCORE_DISCOVERY_DSN"

// Services is every long-lived dependency kernelcored's controllers share.
type Services struct {
	Paths      *discovery.PathResolver
	Loader     *kernelspec.Loader
	Index      *discovery.LocalKernelIndex
	Launcher   *launcher.Launcher
	Sessions   *session.Registry
	SessionCfg session.Config
}

// NewServices wires the composition root from the pkg/flag knobs already
// parsed by flag.InitFlags.
func NewServices() *Services {
	paths := discovery.NewPathResolver()
	loader := kernelspec.NewLoader()

	store := newDiscoveryStore()

	index := discovery.NewLocalKernelIndex(discovery.Config{
		Paths:            paths,
		Loader:           loader,
		Interpreters:     &interpreter.StaticService{},
		Store:            store,
		ExcludedLanguage: flag.ExcludedInterpreterLanguage,
	})

	l := launcher.New()

	sessionCfg := session.Config{
		Launcher:         l,
		LaunchTimeout:    flag.LaunchTimeout,
		InterruptTimeout: flag.InterruptTimeout,
		Owner:            session.OwnerNotebook,
	}

	return &Services{
		Paths:      paths,
		Loader:     loader,
		Index:      index,
		Launcher:   l,
		Sessions:   session.NewRegistry(sessionCfg),
		SessionCfg: sessionCfg,
	}
}

// newDiscoveryStore returns the SQL-backed discovery.KeyValueStore when
// KERNELCORE_DISCOVERY_DSN is set, so the kernel-spec-list and
// preferred-kernel caches survive a process restart; otherwise an
// in-process MemoryStore.
func newDiscoveryStore() discovery.KeyValueStore {
	dsn := os.Getenv(kernelSpecCacheDSNEnv)
	if dsn == "" {
		return discovery.NewMemoryStore()
	}
	store, err := kvstore.Open(dsn)
	if err != nil {
		log.Warn("config: could not open discovery cache DSN, falling back to in-memory store: %v", err)
		return discovery.NewMemoryStore()
	}
	return store
}

// Shutdown disposes every live session, for a graceful server stop. ctx
// bounds how long it waits for each session's best-effort shutdown_request.
func (s *Services) Shutdown(ctx context.Context) {
	s.Sessions.Shutdown(ctx)
}
