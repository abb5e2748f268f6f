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

// Package discovery locates and indexes kernel specs across well-known
// filesystem roots and language interpreters.
package discovery

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
)

// PathResolver enumerates the well-known kernel-spec search roots, in
// priority order, and caches them until the environment changes.
type PathResolver struct {
	mu        sync.Mutex
	cached    []string
	cachedEnv string
}

// NewPathResolver builds a PathResolver with an empty cache.
func NewPathResolver() *PathResolver {
	return &PathResolver{}
}

// KernelSpecRoots returns the ordered sequence of absolute paths to search
// for kernel.json files: JUPYTER_PATH entries first, then the OS user root,
// then system roots. Paths are canonicalized and unresolvable entries are
// dropped. The result is cached until JUPYTER_PATH changes.
func (r *PathResolver) KernelSpecRoots() []string {
	jupyterPath := os.Getenv("JUPYTER_PATH")

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && r.cachedEnv == jupyterPath {
		out := make([]string, len(r.cached))
		copy(out, r.cached)
		return out
	}

	var roots []string
	roots = append(roots, jupyterPathRoots(jupyterPath)...)
	roots = append(roots, userRoot())
	roots = append(roots, systemRoots()...)

	resolved := make([]string, 0, len(roots))
	seen := make(map[string]bool, len(roots))
	for _, root := range roots {
		canon, err := canonicalize(root)
		if err != nil {
			log.Debug("discovery: dropping unresolvable kernel spec root %s: %v", root, err)
			continue
		}
		if seen[canon] {
			continue
		}
		seen[canon] = true
		resolved = append(resolved, canon)
	}

	r.cached = resolved
	r.cachedEnv = jupyterPath
	out := make([]string, len(resolved))
	copy(out, resolved)
	return out
}

func jupyterPathRoots(jupyterPath string) []string {
	if jupyterPath == "" {
		return nil
	}
	entries := filepath.SplitList(jupyterPath)
	roots := make([]string, 0, len(entries))
	for _, e := range entries {
		if e == "" {
			continue
		}
		roots = append(roots, filepath.Join(e, "kernels"))
	}
	return roots
}

func userRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "jupyter", "kernels")
	case "darwin":
		return filepath.Join(home, "Library", "Jupyter", "kernels")
	default:
		return filepath.Join(home, ".local", "share", "jupyter", "kernels")
	}
}

func systemRoots() []string {
	if runtime.GOOS == "windows" {
		var roots []string
		if allUsers := os.Getenv("ALLUSERSPROFILE"); allUsers != "" {
			roots = append(roots, filepath.Join(allUsers, "jupyter", "kernels"))
		}
		return roots
	}
	return []string{
		"/usr/share/jupyter/kernels",
		"/usr/local/share/jupyter/kernels",
	}
}

func canonicalize(path string) (string, error) {
	if path == "" {
		return "", os.ErrInvalid
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return resolved, nil
}
