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

package kernelspec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
)

func writeKernelJSON(t *testing.T, dir, name, body string) string {
	t.Helper()
	specDir := filepath.Join(dir, name)
	if err := os.MkdirAll(specDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", specDir, err)
	}
	path := filepath.Join(specDir, "kernel.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoader_Load_Basic(t *testing.T) {
	dir := t.TempDir()
	path := writeKernelJSON(t, dir, "python3", `{
		"argv": ["python3", "-m", "ipykernel_launcher", "-f", "{connection_file}"],
		"display_name": "Python 3",
		"language": "python"
	}`)

	l := NewLoader()
	spec, err := l.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec == nil {
		t.Fatalf("expected a spec")
	}
	if spec.Name != "python3" {
		t.Fatalf("got name %q, want python3", spec.Name)
	}
	if spec.DisplayName != "Python 3" {
		t.Fatalf("got display name %q", spec.DisplayName)
	}
	if spec.InterruptMode != "signal" {
		t.Fatalf("got interrupt mode %q, want default signal", spec.InterruptMode)
	}
	if spec.OriginalSpecFile() != path {
		t.Fatalf("got original spec file %q, want %q", spec.OriginalSpecFile(), path)
	}
}

func TestLoader_Load_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeKernelJSON(t, dir, "broken", `{not json`)

	l := NewLoader()
	_, err := l.Load(path, nil)
	if err == nil {
		t.Fatalf("expected a parse error")
	}
	var parseErr *ParseError
	if !asParseError(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
}

func asParseError(err error, target **ParseError) bool {
	pe, ok := err.(*ParseError)
	if !ok {
		return false
	}
	*target = pe
	return true
}

func TestLoader_Load_EmptyArgvDropped(t *testing.T) {
	dir := t.TempDir()
	path := writeKernelJSON(t, dir, "empty", `{"argv": [], "display_name": "Empty"}`)

	l := NewLoader()
	spec, err := l.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec != nil {
		t.Fatalf("expected nil spec for empty argv")
	}
}

func TestLoader_Load_BackupFolderIgnored(t *testing.T) {
	dir := t.TempDir()
	path := writeKernelJSON(t, filepath.Join(dir, backupFolderMarker), "python3", `{
		"argv": ["python3"],
		"display_name": "Python 3"
	}`)

	l := NewLoader()
	spec, err := l.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec != nil {
		t.Fatalf("expected nil spec for backup-folder path")
	}
}

func TestLoader_Load_StaleInterpreterHintDropped(t *testing.T) {
	dir := t.TempDir()
	path := writeKernelJSON(t, dir, "stale", `{
		"argv": ["python3"],
		"display_name": "Stale",
		"metadata": {"interpreter": {"path": "/nonexistent/python3"}}
	}`)

	l := NewLoader()
	spec, err := l.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec != nil {
		t.Fatalf("expected nil spec, interpreter path does not exist")
	}
}

func TestLoader_Load_DefaultDisplayNameFromParentDir(t *testing.T) {
	dir := t.TempDir()
	path := writeKernelJSON(t, dir, "mykernel", `{"argv": ["python3"]}`)

	l := NewLoader()
	spec, err := l.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec == nil {
		t.Fatalf("expected a spec")
	}
	if spec.DisplayName != "mykernel" {
		t.Fatalf("got display name %q, want mykernel", spec.DisplayName)
	}
}

func TestLoader_Load_InterpreterRewritesNameAndDisplay(t *testing.T) {
	dir := t.TempDir()
	path := writeKernelJSON(t, dir, "python3", `{
		"argv": ["python3", "-m", "ipykernel_launcher", "-f", "{connection_file}"],
		"display_name": "Python 3 (default)",
		"language": "python"
	}`)

	interp := &interpreter.Interpreter{
		Path:        "/usr/bin/python3.11",
		DisplayName: "Python 3.11.0 64-bit",
		Language:    "python",
	}

	l := NewLoader()
	spec, err := l.Load(path, interp)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec == nil {
		t.Fatalf("expected a spec")
	}

	wantName := InterpreterStableName(interp.Path)
	if spec.Name != wantName {
		t.Fatalf("got name %q, want stable name %q", spec.Name, wantName)
	}
	if spec.DisplayName != interp.DisplayName {
		t.Fatalf("got display name %q, want interpreter display name %q", spec.DisplayName, interp.DisplayName)
	}
	if spec.Metadata == nil || spec.Metadata.VSCode == nil {
		t.Fatalf("expected vscode metadata to be stamped")
	}
	if spec.Metadata.VSCode.OriginalDisplayName != "Python 3 (default)" {
		t.Fatalf("got original display name %q", spec.Metadata.VSCode.OriginalDisplayName)
	}
}

func TestLoader_Load_InterpreterStableNameNeverAliases(t *testing.T) {
	a := InterpreterStableName("/usr/bin/python3")
	b := InterpreterStableName("/opt/conda/bin/python3")
	if a == b {
		t.Fatalf("expected distinct stable names for distinct interpreter paths")
	}
	if InterpreterStableName("/usr/bin/python3") != a {
		t.Fatalf("expected stable name to be deterministic")
	}
}
