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
	"os"
	"path/filepath"
	"testing"

	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
	"github.com/alibaba/opensandbox/kernelcore/pkg/kernelspec"
	"github.com/alibaba/opensandbox/kernelcore/pkg/notebook"
)

func writeSpec(t *testing.T, root, name, body string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "kernel.json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLocalKernelIndex_ListKernels_IgnoreCache(t *testing.T) {
	root := t.TempDir()
	writeSpec(t, root, "python3", `{
		"argv": ["/usr/bin/python3", "-m", "ipykernel_launcher", "-f", "{connection_file}"],
		"display_name": "Python 3",
		"language": "python"
	}`)
	t.Setenv("JUPYTER_PATH", filepath.Dir(root))
	t.Setenv("CI", "true")
	os.MkdirAll(filepath.Join(filepath.Dir(root), "kernels"), 0o755)
	writeSpec(t, filepath.Join(filepath.Dir(root), "kernels"), "python3", `{
		"argv": ["/usr/bin/python3", "-m", "ipykernel_launcher", "-f", "{connection_file}"],
		"display_name": "Python 3",
		"language": "python"
	}`)

	idx := NewLocalKernelIndex(Config{
		Paths:        NewPathResolver(),
		Loader:       kernelspec.NewLoader(),
		Interpreters: interpreter.NewStaticService(nil),
		Store:        NewMemoryStore(),
	})

	kernels, err := idx.ListKernels(context.Background(), "", IgnoreCache)
	if err != nil {
		t.Fatalf("ListKernels: %v", err)
	}
	if len(kernels) == 0 {
		t.Fatalf("expected at least one kernel")
	}
}

// TestLocalKernelIndex_ExcludedLanguage_PreservesRealArgvAndEnv guards
// against silently discarding a real on-disk kernel.json for the excluded
// language: InterpreterFinder must still see it (via the unfiltered scan)
// and re-classify it by matching interpreter, carrying its actual argv/env
// forward instead of falling back to a generic synthetic template.
func TestLocalKernelIndex_ExcludedLanguage_PreservesRealArgvAndEnv(t *testing.T) {
	root := t.TempDir()
	t.Setenv("JUPYTER_PATH", root)
	t.Setenv("CI", "true")
	kernelsDir := filepath.Join(root, "kernels")
	writeSpec(t, kernelsDir, "custom-python", `{
		"argv": ["/opt/py/bin/python3", "-m", "custom_launcher", "-f", "{connection_file}"],
		"display_name": "Custom Python",
		"language": "python",
		"interrupt_mode": "message",
		"env": {"MY_CUSTOM_VAR": "1"}
	}`)

	interp := interpreter.Interpreter{Path: "/opt/py/bin/python3", DisplayName: "Custom Python", Language: "python"}
	idx := NewLocalKernelIndex(Config{
		Paths:            NewPathResolver(),
		Loader:           kernelspec.NewLoader(),
		Interpreters:     interpreter.NewStaticService([]interpreter.Interpreter{interp}),
		Store:            NewMemoryStore(),
		ExcludedLanguage: "python",
	})

	kernels, err := idx.ListKernels(context.Background(), "", IgnoreCache)
	if err != nil {
		t.Fatalf("ListKernels: %v", err)
	}

	// The re-classified connection is the one loaded from the real spec file
	// with the matched interpreter attached; the synthetic spec for the same
	// interpreter has no SpecFile and the original connection no Interpreter.
	var found *kernelspec.Spec
	for _, k := range kernels {
		if k.Spec != nil && k.Interpreter != nil && k.Spec.SpecFile != "" && len(k.Spec.Argv) > 0 && k.Spec.Argv[0] == "/opt/py/bin/python3" {
			found = k.Spec
		}
	}
	if found == nil {
		t.Fatalf("expected the re-classified custom-python kernel among %d results", len(kernels))
	}
	if found.Env["MY_CUSTOM_VAR"] != "1" {
		t.Fatalf("expected the real env to survive re-classification, got %#v", found.Env)
	}
	if len(found.Argv) < 2 || found.Argv[1] != "-m" || found.Argv[2] != "custom_launcher" {
		t.Fatalf("expected the real argv to survive re-classification, got %#v", found.Argv)
	}
	if found.InterruptMode != "message" {
		t.Fatalf("expected the real interrupt_mode to survive re-classification, got %q", found.InterruptMode)
	}
}

func TestLocalKernelIndex_FindKernel_NoneWhenEmpty(t *testing.T) {
	idx := NewLocalKernelIndex(Config{
		Paths:        NewPathResolver(),
		Loader:       kernelspec.NewLoader(),
		Interpreters: interpreter.NewStaticService(nil),
		Store:        NewMemoryStore(),
	})
	t.Setenv("JUPYTER_PATH", t.TempDir())

	_, ok := idx.FindKernel(context.Background(), "", notebook.Metadata{})
	if ok {
		t.Fatalf("expected no kernel found with nothing on disk")
	}
}
