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

package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
	"github.com/alibaba/opensandbox/kernelcore/pkg/kernelspec"
	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
	"github.com/alibaba/opensandbox/kernelcore/pkg/notebook"
	"github.com/alibaba/opensandbox/kernelcore/pkg/rank"
	"github.com/alibaba/opensandbox/kernelcore/pkg/telemetry"
)

// CacheMode selects between LocalKernelIndex.ListKernels's two strategies.
type CacheMode int

const (
	// UseCache races a cache-validation fast path against a full scan.
	UseCache CacheMode = iota
	// IgnoreCache always runs both finders and refreshes the cache.
	IgnoreCache
)

// LocalKernelIndex is the union of KnownPathFinder and InterpreterFinder,
// with a persistent cache, final filtering, and selection.
type LocalKernelIndex struct {
	known            *KnownPathFinder
	interpreterScan  *InterpreterFinder
	interpreters     interpreter.Service
	remote           RemoteKernelFinder
	store            KeyValueStore
	ranker           *rank.PreferredKernelRanker
	sink             telemetry.Sink
	excludedLanguage string

	mu sync.Mutex
}

// Config collects LocalKernelIndex's construction-time dependencies.
type Config struct {
	Paths            *PathResolver
	Loader           *kernelspec.Loader
	Interpreters     interpreter.Service
	Store            KeyValueStore
	Remote           RemoteKernelFinder
	Sink             telemetry.Sink
	ExcludedLanguage string
}

// NewLocalKernelIndex wires KnownPathFinder and InterpreterFinder together.
func NewLocalKernelIndex(cfg Config) *LocalKernelIndex {
	sink := cfg.Sink
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	return &LocalKernelIndex{
		known:            NewKnownPathFinder(cfg.Paths, cfg.Loader, cfg.Store),
		interpreterScan:  NewInterpreterFinder(cfg.Interpreters, cfg.Loader),
		interpreters:     cfg.Interpreters,
		remote:           cfg.Remote,
		store:            cfg.Store,
		ranker:           rank.NewPreferredKernelRanker(),
		sink:             sink,
		excludedLanguage: cfg.ExcludedLanguage,
	}
}

// ListKernels returns every known kernel connection for resource.
func (idx *LocalKernelIndex) ListKernels(ctx context.Context, resource string, mode CacheMode) ([]connection.Kernel, error) {
	if mode == IgnoreCache {
		return idx.scanAndPersist(ctx, resource)
	}
	return idx.listWithCacheRace(ctx, resource)
}

func (idx *LocalKernelIndex) listWithCacheRace(ctx context.Context, resource string) ([]connection.Kernel, error) {
	type scanOutcome struct {
		kernels []connection.Kernel
		err     error
	}

	validatedCh := make(chan []connection.Kernel, 1)
	scanCh := make(chan scanOutcome, 1)

	go func() {
		validatedCh <- idx.validatedCache()
	}()
	go func() {
		kernels, err := idx.scanAndPersist(ctx, resource)
		scanCh <- scanOutcome{kernels, err}
	}()

	select {
	case validated := <-validatedCh:
		if len(validated) > 0 {
			return validated, nil
		}
		res := <-scanCh
		return res.kernels, res.err
	case res := <-scanCh:
		return res.kernels, res.err
	}
}

func (idx *LocalKernelIndex) validatedCache() []connection.Kernel {
	entries := loadEntries(idx.store, keyKernelSpecList)
	if len(entries) == 0 {
		return nil
	}
	valid := validEntries(entries)
	kernels := make([]connection.Kernel, 0, len(valid))
	for _, e := range valid {
		kernels = append(kernels, e.toKernel())
	}
	return applyFinalFilters(kernels)
}

func (idx *LocalKernelIndex) scanAndPersist(ctx context.Context, resource string) ([]connection.Kernel, error) {
	// InterpreterFinder needs the unfiltered, every-language view to
	// re-classify excludedLanguage specs by matching interpreter (priority
	// a-d) and preserve their real argv/env; only once that re-classification
	// has run is it safe to drop excludedLanguage from the set added here
	// directly, since InterpreterFinder re-emits whichever of those it
	// claimed.
	unfilteredSpecs := idx.known.ListKernelSpecs(true, idx.excludedLanguage)

	var interpKernels []connection.Kernel
	var interpErr error
	globalSpecs := unfilteredSpecs
	if idx.interpreters != nil {
		interpKernels, interpErr = idx.interpreterScan.ListKernelSpecs(ctx, unfilteredSpecs, resource)
		if interpErr != nil {
			log.Warn("discovery: interpreter scan failed: %v", interpErr)
		}
		globalSpecs = idx.known.ListKernelSpecs(false, idx.excludedLanguage)
	}

	var remoteKernels []connection.Kernel
	if idx.remote != nil {
		remoteKernels, _ = idx.remote.ListKernels(ctx)
	}

	all := make([]connection.Kernel, 0, len(globalSpecs)+len(interpKernels)+len(remoteKernels))
	all = append(all, globalSpecs...)
	all = append(all, interpKernels...)
	all = append(all, remoteKernels...)

	filtered := applyFinalFilters(all)
	persistEntries(idx.store, keyKernelSpecList, entriesFromKernels(filtered))
	return filtered, nil
}

// FindKernel resolves the single best kernel connection for resource given
// notebook metadata, emitting a telemetry outcome event.
func (idx *LocalKernelIndex) FindKernel(ctx context.Context, resource string, meta notebook.Metadata) (connection.Kernel, bool) {
	start := time.Now()

	if meta.InterpreterHash != "" {
		if k, ok := idx.fastPathByInterpreterHash(meta.InterpreterHash); ok {
			idx.sink.FindKernel(resource, telemetry.FindKernelFound, time.Since(start).Milliseconds())
			return k, true
		}
	}

	candidates, err := idx.ListKernels(ctx, resource, UseCache)
	if err != nil {
		idx.sink.FindKernel(resource, telemetry.FindKernelFailed, time.Since(start).Milliseconds())
		return connection.Kernel{}, false
	}

	var active *interpreter.Interpreter
	if idx.interpreters != nil {
		active, _ = idx.interpreters.ActiveInterpreter(ctx, resource)
	}

	winner, ok := idx.ranker.Rank(candidates, meta, active)
	if !ok {
		idx.sink.FindKernel(resource, telemetry.FindKernelNotFound, time.Since(start).Milliseconds())
		return connection.Kernel{}, false
	}

	idx.rememberPreferred(meta.InterpreterHash, winner)
	idx.sink.FindKernel(resource, telemetry.FindKernelFound, time.Since(start).Milliseconds())
	return winner, true
}

func (idx *LocalKernelIndex) fastPathByInterpreterHash(hash string) (connection.Kernel, bool) {
	cache := loadPreferredKernelCache(idx.store)
	cached, ok := cache.ByInterpreterHash[hash]
	if !ok {
		return connection.Kernel{}, false
	}
	if !statExistsWithRetry(cached.InterpreterPath) {
		return connection.Kernel{}, false
	}
	return connection.Kernel{
		Kind:        connection.KindStartUsingInterpreter,
		Spec:        &kernelspec.Spec{Name: cached.SpecName, SpecFile: cached.SpecFile},
		Interpreter: &interpreter.Interpreter{Path: cached.InterpreterPath},
	}, true
}

func (idx *LocalKernelIndex) rememberPreferred(hash string, k connection.Kernel) {
	if hash == "" || k.Interpreter == nil {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cache := loadPreferredKernelCache(idx.store)
	entry := cachedConnection{ConnectionID: k.ID(), InterpreterPath: k.Interpreter.Path}
	if k.Spec != nil {
		entry.SpecName = k.Spec.Name
		entry.SpecFile = k.Spec.SpecFile
	}
	cache.ByInterpreterHash[hash] = entry
	savePreferredKernelCache(idx.store, cache)
}
