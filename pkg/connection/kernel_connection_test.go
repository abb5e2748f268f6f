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

package connection

import (
	"testing"

	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
	"github.com/alibaba/opensandbox/kernelcore/pkg/kernelspec"
)

func TestKernel_ID_StableAcrossEquivalentValues(t *testing.T) {
	spec := &kernelspec.Spec{Name: "python3", SpecFile: "/a/kernel.json"}
	interp := &interpreter.Interpreter{Path: "/usr/bin/python3"}

	a := StartUsingKernelSpec(spec, interp)
	b := StartUsingKernelSpec(spec, interp)
	if a.ID() != b.ID() {
		t.Fatalf("expected equal IDs for equivalent connections")
	}
}

func TestKernel_ID_DiffersAcrossVariants(t *testing.T) {
	spec := &kernelspec.Spec{Name: "python3", SpecFile: "/a/kernel.json"}
	interp := &interpreter.Interpreter{Path: "/usr/bin/python3"}

	specOnly := StartUsingKernelSpec(spec, nil)
	withInterp := StartUsingKernelSpec(spec, interp)
	if specOnly.ID() == withInterp.ID() {
		t.Fatalf("expected distinct IDs when interpreter differs")
	}

	live := ConnectToLiveKernel(map[string]any{"id": "abc"}, "http://localhost:8888")
	if live.ID() == specOnly.ID() {
		t.Fatalf("expected distinct IDs across connection kinds")
	}
}

func TestFile_NewFile_AllocatesDistinctPorts(t *testing.T) {
	f, err := NewFile("python3")
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	ports := map[int]bool{f.ShellPort: true, f.IOPubPort: true, f.StdinPort: true, f.ControlPort: true, f.HBPort: true}
	if len(ports) != 5 {
		t.Fatalf("expected 5 distinct ports, got %d", len(ports))
	}
	if f.SignatureScheme != SignatureScheme {
		t.Fatalf("got signature scheme %q", f.SignatureScheme)
	}
	if len(f.Key) != 64 {
		t.Fatalf("expected a 256-bit hex key (64 chars), got %d", len(f.Key))
	}
}
