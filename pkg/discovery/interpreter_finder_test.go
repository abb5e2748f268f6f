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

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
	"github.com/alibaba/opensandbox/kernelcore/pkg/kernelspec"
)

// loadCandidate writes body to dir/kernel.json and loads it the same way
// KnownPathFinder would, so it carries a real SpecFile for InterpreterFinder
// to re-read during matching.
func loadCandidate(t *testing.T, dir, body string) connection.Kernel {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, "kernel.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	spec, err := kernelspec.NewLoader().Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec == nil {
		t.Fatal("Load returned a nil spec for a well-formed kernel.json")
	}
	return connection.StartUsingKernelSpec(spec, nil)
}

func TestInterpreterFinder_MatchByMetadataInterpreterPath(t *testing.T) {
	dir := t.TempDir()
	interpPath := fakeInterpreterBinary(t)
	candidate := loadCandidate(t, dir, `{
		"argv": ["python", "-m", "custom_launcher", "-f", "{connection_file}"],
		"display_name": "Whatever",
		"language": "python",
		"metadata": {"interpreter": {"path": "`+interpPath+`"}}
	}`)

	interp := interpreter.Interpreter{Path: interpPath, DisplayName: "Custom Python", Language: "python"}
	finder := NewInterpreterFinder(interpreter.NewStaticService([]interpreter.Interpreter{interp}), kernelspec.NewLoader())

	results, err := finder.ListKernelSpecs(context.Background(), []connection.Kernel{candidate}, "")
	if err != nil {
		t.Fatalf("ListKernelSpecs: %v", err)
	}

	if !hasRewrittenArgv(results, "custom_launcher") {
		t.Fatalf("expected the metadata-path match to re-emit the real argv, got %#v", results)
	}
}

func TestInterpreterFinder_MatchByAbsoluteArgv0(t *testing.T) {
	dir := t.TempDir()
	candidate := loadCandidate(t, dir, `{
		"argv": ["/opt/py/bin/python3", "-m", "custom_launcher", "-f", "{connection_file}"],
		"display_name": "Whatever",
		"language": "python"
	}`)

	interp := interpreter.Interpreter{Path: "/opt/py/bin/python3", DisplayName: "Custom Python", Language: "python"}
	finder := NewInterpreterFinder(interpreter.NewStaticService([]interpreter.Interpreter{interp}), kernelspec.NewLoader())

	results, err := finder.ListKernelSpecs(context.Background(), []connection.Kernel{candidate}, "")
	if err != nil {
		t.Fatalf("ListKernelSpecs: %v", err)
	}

	if !hasRewrittenArgv(results, "custom_launcher") {
		t.Fatalf("expected the argv[0] match to re-emit the real argv, got %#v", results)
	}
}

func TestInterpreterFinder_MatchByLegacyInterpreterPathField(t *testing.T) {
	dir := t.TempDir()
	interpPath := fakeInterpreterBinary(t)
	candidate := loadCandidate(t, dir, `{
		"argv": ["python", "-m", "custom_launcher", "-f", "{connection_file}"],
		"display_name": "Whatever",
		"language": "python",
		"metadata": {"interpreter_path": "`+interpPath+`"}
	}`)

	interp := interpreter.Interpreter{Path: interpPath, DisplayName: "Custom Python", Language: "python"}
	finder := NewInterpreterFinder(interpreter.NewStaticService([]interpreter.Interpreter{interp}), kernelspec.NewLoader())

	results, err := finder.ListKernelSpecs(context.Background(), []connection.Kernel{candidate}, "")
	if err != nil {
		t.Fatalf("ListKernelSpecs: %v", err)
	}

	if !hasRewrittenArgv(results, "custom_launcher") {
		t.Fatalf("expected the legacy interpreter_path match to re-emit the real argv, got %#v", results)
	}
}

func TestInterpreterFinder_MatchByDisplayNameFallback(t *testing.T) {
	dir := t.TempDir()
	candidate := loadCandidate(t, dir, `{
		"argv": ["python", "-m", "custom_launcher", "-f", "{connection_file}"],
		"display_name": "Custom Python",
		"language": "python"
	}`)

	interp := interpreter.Interpreter{Path: "/opt/py/bin/python3", DisplayName: "Custom Python", Language: "python"}
	finder := NewInterpreterFinder(interpreter.NewStaticService([]interpreter.Interpreter{interp}), kernelspec.NewLoader())

	results, err := finder.ListKernelSpecs(context.Background(), []connection.Kernel{candidate}, "")
	if err != nil {
		t.Fatalf("ListKernelSpecs: %v", err)
	}

	if !hasRewrittenArgv(results, "custom_launcher") {
		t.Fatalf("expected the display-name fallback match to re-emit the real argv, got %#v", results)
	}
}

func TestInterpreterFinder_NoMatchEmitsSyntheticForInterpreterOnly(t *testing.T) {
	dir := t.TempDir()
	// A candidate that cannot match the one known interpreter by any of the
	// a-d priorities (different path, different display name).
	candidate := loadCandidate(t, dir, `{
		"argv": ["/usr/bin/some-other-python", "-m", "custom_launcher", "-f", "{connection_file}"],
		"display_name": "Some Other Python",
		"language": "python"
	}`)

	interp := interpreter.Interpreter{Path: "/opt/py/bin/python3", DisplayName: "Custom Python", Language: "python"}
	finder := NewInterpreterFinder(interpreter.NewStaticService([]interpreter.Interpreter{interp}), kernelspec.NewLoader())

	results, err := finder.ListKernelSpecs(context.Background(), []connection.Kernel{candidate}, "")
	if err != nil {
		t.Fatalf("ListKernelSpecs: %v", err)
	}

	if hasRewrittenArgv(results, "custom_launcher") {
		t.Fatalf("an unmatched candidate must not be re-emitted with its own argv: %#v", results)
	}
	foundSynthetic := false
	for _, k := range results {
		if k.Interpreter != nil && k.Interpreter.Path == interp.Path {
			foundSynthetic = true
			if len(k.Spec.Argv) == 0 || k.Spec.Argv[0] != interp.Path {
				t.Fatalf("expected a synthetic ipykernel_launcher spec for the unmatched interpreter, got %#v", k.Spec)
			}
		}
	}
	if !foundSynthetic {
		t.Fatalf("expected a synthetic spec for the unmatched interpreter, got %#v", results)
	}
}

func TestInterpreterFinder_KeepsBothConnectionsWhenEnvNonEmpty(t *testing.T) {
	dir := t.TempDir()
	candidate := loadCandidate(t, dir, `{
		"argv": ["/opt/py/bin/python3", "-m", "custom_launcher", "-f", "{connection_file}"],
		"display_name": "Custom Python",
		"language": "python",
		"env": {"MY_VAR": "1"}
	}`)

	interp := interpreter.Interpreter{Path: "/opt/py/bin/python3", DisplayName: "Custom Python", Language: "python"}
	finder := NewInterpreterFinder(interpreter.NewStaticService([]interpreter.Interpreter{interp}), kernelspec.NewLoader())

	results, err := finder.ListKernelSpecs(context.Background(), []connection.Kernel{candidate}, "")
	if err != nil {
		t.Fatalf("ListKernelSpecs: %v", err)
	}

	var sawKernelSpecKind, sawInterpreterKind bool
	for _, k := range results {
		switch k.Kind {
		case connection.KindStartUsingKernelSpec:
			sawKernelSpecKind = true
		case connection.KindStartUsingInterpreter:
			sawInterpreterKind = true
		}
	}
	if !sawKernelSpecKind || !sawInterpreterKind {
		t.Fatalf("expected both the original and re-classified connections to survive when env is non-empty, got %#v", results)
	}
}

func TestInterpreterFinder_SuppressesDefaultNamedSyntheticSpecWhenInterpreterPresent(t *testing.T) {
	interp := interpreter.Interpreter{Path: "/opt/py/bin/python3", DisplayName: "Python 3 (ipykernel)", Language: "python"}
	finder := NewInterpreterFinder(interpreter.NewStaticService([]interpreter.Interpreter{interp}), kernelspec.NewLoader())

	results, err := finder.ListKernelSpecs(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("ListKernelSpecs: %v", err)
	}

	for _, k := range results {
		if k.Spec != nil && k.Spec.DisplayName == "Python 3 (ipykernel)" {
			t.Fatalf("expected the default-named synthetic spec to be suppressed, got %#v", results)
		}
	}
}

// fakeInterpreterBinary creates an empty file to stand in for an interpreter
// path that a spec's metadata hint references — Loader.Load stats that hint
// and drops the spec if nothing exists there.
func fakeInterpreterBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "python3")
	if err := os.WriteFile(path, nil, 0o755); err != nil {
		t.Fatalf("write fake interpreter: %v", err)
	}
	return path
}

func hasRewrittenArgv(results []connection.Kernel, module string) bool {
	for _, k := range results {
		if k.Spec != nil && len(k.Spec.Argv) > 2 && k.Spec.Argv[1] == "-m" && k.Spec.Argv[2] == module {
			return true
		}
	}
	return false
}
