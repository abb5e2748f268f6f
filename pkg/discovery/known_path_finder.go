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
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
	"github.com/alibaba/opensandbox/kernelcore/pkg/kernelspec"
	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
)

// kernelSpecGlob matches a kernel.json one directory level below a root,
// e.g. "python3/kernel.json" but not "kernel.json" or
// "python3/nested/kernel.json".
const kernelSpecGlob = "*/kernel.json"

// backupFolderName is excluded from scanning: it holds specs the archival
// rule has already retired, not live registrations.
const backupFolderName = "__old_vscode_kernelspecs"

// KnownPathFinder discovers kernels under PathResolver's roots, independent
// of any language interpreter.
type KnownPathFinder struct {
	paths  *PathResolver
	loader *kernelspec.Loader
	store  KeyValueStore

	mu    sync.Mutex
	cache map[bool][]connection.Kernel

	archivalOnce sync.Once
}

// NewKnownPathFinder builds a KnownPathFinder. store is the host key-value
// store used to persist the one-shot archival flag.
func NewKnownPathFinder(paths *PathResolver, loader *kernelspec.Loader, store KeyValueStore) *KnownPathFinder {
	return &KnownPathFinder{
		paths:  paths,
		loader: loader,
		store:  store,
		cache:  make(map[bool][]connection.Kernel),
	}
}

// ListKernelSpecs scans every known root for kernel.json files one level
// deep, tagging each as StartUsingKernelSpec. When includeLanguageX is
// false, specs whose language matches the configured excluded language
// (the language InterpreterFinder will re-emit) are dropped. Results are
// cached per includeLanguageX value.
func (f *KnownPathFinder) ListKernelSpecs(includeLanguageX bool, excludedLanguage string) []connection.Kernel {
	f.mu.Lock()
	if cached, ok := f.cache[includeLanguageX]; ok {
		out := make([]connection.Kernel, len(cached))
		copy(out, cached)
		f.mu.Unlock()
		return out
	}
	f.mu.Unlock()

	f.runArchivalRuleOnce()

	var results []connection.Kernel
	for _, root := range f.paths.KernelSpecRoots() {
		results = append(results, f.scanRoot(root)...)
	}

	if !includeLanguageX {
		filtered := results[:0]
		for _, k := range results {
			if k.Spec != nil && excludedLanguage != "" && k.Spec.Language == excludedLanguage {
				continue
			}
			filtered = append(filtered, k)
		}
		results = filtered
	}

	f.mu.Lock()
	f.cache[includeLanguageX] = results
	f.mu.Unlock()

	out := make([]connection.Kernel, len(results))
	copy(out, results)
	return out
}

// scanRoot matches kernelSpecGlob against root's immediate subdirectories,
// skipping the archival rule's own backup folder so a kernel.json this
// system already retired is never re-registered.
func (f *KnownPathFinder) scanRoot(root string) []connection.Kernel {
	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, kernelSpecGlob)
	if err != nil {
		log.Warn("discovery: glob %s under %s: %v", kernelSpecGlob, root, err)
		return nil
	}

	var results []connection.Kernel
	for _, rel := range matches {
		if dir := filepath.Dir(rel); dir == backupFolderName {
			continue
		}
		specFile := filepath.Join(root, rel)
		spec, err := f.loader.Load(specFile, nil)
		if err != nil {
			log.Warn("discovery: skipping invalid kernel spec %s: %v", specFile, err)
			continue
		}
		if spec == nil {
			continue
		}
		results = append(results, connection.StartUsingKernelSpec(spec, nil))
	}
	return results
}

// runArchivalRuleOnce moves kernel.json registrations this system created
// (detected via metadata.vscode.registration_info) into a sibling
// __old_vscode_kernelspecs backup directory, once per installation. It is a
// no-op under CI (CI=true), where there is no meaningful "installation" to
// upgrade from.
func (f *KnownPathFinder) runArchivalRuleOnce() {
	if os.Getenv("CI") != "" {
		return
	}
	f.archivalOnce.Do(func() {
		if f.store != nil {
			if _, done := f.store.Get(keyArchivalOneShot); done {
				return
			}
		}
		for _, root := range f.paths.KernelSpecRoots() {
			f.archiveRegisteredSpecsUnder(root)
		}
		if f.store != nil {
			f.store.Set(keyArchivalOneShot, []byte("1"))
		}
	})
}

func (f *KnownPathFinder) archiveRegisteredSpecsUnder(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	backupDir := filepath.Join(root, backupFolderMarkerName)

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == backupFolderMarkerName {
			continue
		}
		specFile := filepath.Join(root, entry.Name(), "kernel.json")
		spec, err := f.loader.Load(specFile, nil)
		if err != nil || spec == nil {
			continue
		}
		if !spec.HasRegistrationMarker() {
			continue
		}
		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			log.Warn("discovery: archival rule could not create %s: %v", backupDir, err)
			continue
		}
		dest := filepath.Join(backupDir, entry.Name())
		if err := os.Rename(filepath.Join(root, entry.Name()), dest); err != nil {
			log.Warn("discovery: archival rule could not move %s: %v", specFile, err)
		}
	}
}

const backupFolderMarkerName = "__old_vscode_kernelspecs"
