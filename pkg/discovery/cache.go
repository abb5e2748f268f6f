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
	"encoding/json"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
	"github.com/alibaba/opensandbox/kernelcore/pkg/kernelspec"
	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
)

// Entry is the persisted form of a connection.Kernel: a (spec_file_path,
// interpreter_path?) pair plus the full spec/interpreter snapshot, so a
// validated cache hit can be returned without re-scanning disk. The
// persisted layout is an opaque JSON array of these entries.
type Entry struct {
	Kind        string                 `json:"kind"`
	SpecFile    string                 `json:"spec_file,omitempty"`
	Spec        *kernelspec.Spec       `json:"spec,omitempty"`
	Interpreter *interpreter.Interpreter `json:"interpreter,omitempty"`
}

func (e Entry) toKernel() connection.Kernel {
	if e.Spec != nil {
		e.Spec.SpecFile = e.SpecFile
	}
	return connection.Kernel{Kind: connection.Kind(e.Kind), Spec: e.Spec, Interpreter: e.Interpreter}
}

// statRetryBackoff retries a stat that failed during what might be a
// concurrent kernel-spec re-registration (conda relinks kernel.json in
// place) before the entry is declared stale.
var statRetryBackoff = wait.Backoff{
	Steps:    3,
	Duration: 20 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
}

func statExistsWithRetry(path string) bool {
	if path == "" {
		return true
	}
	exists := false
	_ = wait.ExponentialBackoff(statRetryBackoff, func() (bool, error) {
		if _, err := os.Stat(path); err == nil {
			exists = true
			return true, nil
		}
		return false, nil
	})
	return exists
}

// entriesFromKernels converts the live connection list into its persisted
// cache-entry form.
func entriesFromKernels(kernels []connection.Kernel) []Entry {
	entries := make([]Entry, 0, len(kernels))
	for _, k := range kernels {
		e := Entry{Kind: string(k.Kind), Spec: k.Spec, Interpreter: k.Interpreter}
		if k.Spec != nil {
			e.SpecFile = k.Spec.SpecFile
		}
		entries = append(entries, e)
	}
	return entries
}

// validEntries filters out entries whose spec file or interpreter path no
// longer exists on disk.
func validEntries(entries []Entry) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.SpecFile != "" && !statExistsWithRetry(e.SpecFile) {
			continue
		}
		if e.Interpreter != nil && e.Interpreter.Path != "" && !statExistsWithRetry(e.Interpreter.Path) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func persistEntries(store KeyValueStore, key string, entries []Entry) {
	if store == nil {
		return
	}
	data, err := json.Marshal(entries)
	if err != nil {
		log.Warn("discovery: failed to marshal cache entries: %v", err)
		return
	}
	store.Set(key, data)
}

func loadEntries(store KeyValueStore, key string) []Entry {
	if store == nil {
		return nil
	}
	data, ok := store.Get(key)
	if !ok {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn("discovery: failed to unmarshal cache entries: %v", err)
		return nil
	}
	return entries
}

// preferredKernelCache is the per-interpreter-hash map persisted under
// keyPreferredKernelMap, used by find_kernel's fast path.
type preferredKernelCache struct {
	// ByInterpreterHash maps notebook.Metadata.InterpreterHash to the last
	// resolved connection's stable ID and the interpreter path it required.
	ByInterpreterHash map[string]cachedConnection `json:"by_interpreter_hash"`
}

type cachedConnection struct {
	ConnectionID    string `json:"connection_id"`
	InterpreterPath string `json:"interpreter_path"`
	SpecName        string `json:"spec_name"`
	SpecFile        string `json:"spec_file"`
}

func loadPreferredKernelCache(store KeyValueStore) preferredKernelCache {
	cache := preferredKernelCache{ByInterpreterHash: make(map[string]cachedConnection)}
	if store == nil {
		return cache
	}
	data, ok := store.Get(keyPreferredKernelMap)
	if !ok {
		return cache
	}
	if err := json.Unmarshal(data, &cache); err != nil {
		log.Warn("discovery: failed to unmarshal preferred kernel cache: %v", err)
		return preferredKernelCache{ByInterpreterHash: make(map[string]cachedConnection)}
	}
	if cache.ByInterpreterHash == nil {
		cache.ByInterpreterHash = make(map[string]cachedConnection)
	}
	return cache
}

func savePreferredKernelCache(store KeyValueStore, cache preferredKernelCache) {
	if store == nil {
		return
	}
	data, err := json.Marshal(cache)
	if err != nil {
		log.Warn("discovery: failed to marshal preferred kernel cache: %v", err)
		return
	}
	store.Set(keyPreferredKernelMap, data)
}
