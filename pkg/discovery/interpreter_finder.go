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
	"regexp"
	"sort"
	"strings"

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
	"github.com/alibaba/opensandbox/kernelcore/pkg/kernelspec"
	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
)

// defaultLaunchers maps a language to the default launcher module used to
// build a synthetic kernel spec for a free-standing interpreter.
var defaultLaunchers = map[string]string{
	"python": "ipykernel_launcher",
}

// defaultSpecPattern matches ambiguous "default" spec names that
// InterpreterFinder suppresses whenever any interpreter is present;
// ambiguous display names are listed in defaultDisplayNames.
var defaultSpecPattern = regexp.MustCompile(`^[a-zA-Z]+\s?\d?\.?\d?$`)

var defaultDisplayNames = map[string]bool{
	"Python 3 (ipykernel)": true,
	"Python 2 (ipykernel)": true,
}

// InterpreterFinder discovers kernels rooted at each known interpreter's
// sys_prefix, matches free-standing interpreters to globally discovered
// specs, and emits synthetic specs for interpreters without one.
type InterpreterFinder struct {
	service interpreter.Service
	loader  *kernelspec.Loader
}

// NewInterpreterFinder builds an InterpreterFinder.
func NewInterpreterFinder(service interpreter.Service, loader *kernelspec.Loader) *InterpreterFinder {
	return &InterpreterFinder{service: service, loader: loader}
}

// ListKernelSpecs enumerates interpreters from the InterpreterService and
// returns the union of: kernels discovered under each interpreter's
// sys_prefix, globally discovered specs re-classified by matching
// interpreter, and synthetic specs for unmatched interpreters. globalSpecs
// is the set from KnownPathFinder, used for priority-order matching.
func (f *InterpreterFinder) ListKernelSpecs(ctx context.Context, globalSpecs []connection.Kernel, resource string) ([]connection.Kernel, error) {
	interpreters, err := f.service.ListInterpreters(ctx)
	if err != nil {
		return nil, err
	}
	active, err := f.service.ActiveInterpreter(ctx, resource)
	if err != nil {
		active = nil
	}

	unmatched := make(map[string]interpreter.Interpreter, len(interpreters))
	for _, interp := range interpreters {
		unmatched[interp.Path] = interp
	}

	var results []connection.Kernel

	// 1. Kernels discovered directly under each interpreter's sys_prefix.
	for _, interp := range interpreters {
		results = append(results, f.scanInterpreterPrefix(interp)...)
	}

	// 2. Globally discovered specs that need their matching interpreter,
	// either because they use a non-default launcher module or because
	// interpreter-matching succeeds.
	for _, candidate := range globalSpecs {
		if candidate.Spec == nil {
			continue
		}
		match, ok := matchInterpreter(candidate.Spec, interpreters)
		if !ok {
			continue
		}

		rewritten, err := f.loader.Load(candidate.Spec.SpecFile, &match)
		if err != nil || rewritten == nil {
			continue
		}
		results = append(results, connection.StartUsingInterpreter(rewritten, &match))

		keepSpecConnectionToo := len(candidate.Spec.Env) > 0 || !candidate.Spec.HasRegistrationMarker()
		if keepSpecConnectionToo {
			results = append(results, candidate)
		} else {
			delete(unmatched, match.Path)
		}
	}

	// 3. Emit synthetic specs for interpreters nobody matched.
	for _, interp := range sortedByPath(unmatched) {
		module, ok := defaultLaunchers[interp.Language]
		if !ok {
			module = "ipykernel_launcher"
		}
		spec := &kernelspec.Spec{
			Name:        kernelspec.InterpreterStableName(interp.Path),
			DisplayName: interp.DisplayName,
			Language:    interp.Language,
			Argv:        []string{interp.Path, "-m", module, "-f", "{connection_file}"},
		}
		interpCopy := interp
		results = append(results, connection.StartUsingInterpreter(spec, &interpCopy))
	}

	results = suppressDefaultSpecs(results, len(interpreters) > 0)
	sortActiveInterpreterFirst(results, active)

	return results, nil
}

func (f *InterpreterFinder) scanInterpreterPrefix(interp interpreter.Interpreter) []connection.Kernel {
	if interp.SysPrefix == "" {
		return nil
	}
	root := filepath.Join(interp.SysPrefix, "share", "jupyter", "kernels")
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	var results []connection.Kernel
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		specFile := filepath.Join(root, entry.Name(), "kernel.json")
		if _, err := os.Stat(specFile); err != nil {
			continue
		}
		interpCopy := interp
		spec, err := f.loader.Load(specFile, &interpCopy)
		if err != nil {
			log.Warn("discovery: skipping invalid interpreter kernel spec %s: %v", specFile, err)
			continue
		}
		if spec == nil {
			continue
		}
		results = append(results, connection.StartUsingInterpreter(spec, &interpCopy))
	}
	return results
}

// matchInterpreter runs the priority-order interpreter match (a-d) against
// a globally discovered spec.
func matchInterpreter(spec *kernelspec.Spec, interpreters []interpreter.Interpreter) (interpreter.Interpreter, bool) {
	if hint := spec.InterpreterPath(); hint != "" {
		for _, interp := range interpreters {
			if interpreter.SamePath(hint, interp.Path) {
				return interp, true
			}
		}
	}
	if len(spec.Argv) > 0 && filepath.IsAbs(spec.Argv[0]) {
		for _, interp := range interpreters {
			if interpreter.SamePath(spec.Argv[0], interp.Path) {
				return interp, true
			}
		}
	}
	if spec.Metadata != nil && spec.Metadata.InterpreterPath != "" {
		for _, interp := range interpreters {
			if interpreter.SamePath(spec.Metadata.InterpreterPath, interp.Path) {
				return interp, true
			}
		}
	}
	for _, interp := range interpreters {
		if spec.DisplayName != "" && spec.DisplayName == interp.DisplayName {
			return interp, true
		}
	}
	return interpreter.Interpreter{}, false
}

func suppressDefaultSpecs(kernels []connection.Kernel, anyInterpreterPresent bool) []connection.Kernel {
	if !anyInterpreterPresent {
		return kernels
	}
	out := kernels[:0]
	for _, k := range kernels {
		if k.Kind != connection.KindStartUsingInterpreter || k.Spec == nil {
			out = append(out, k)
			continue
		}
		if isDefaultSpecName(k.Spec.Name) || defaultDisplayNames[k.Spec.DisplayName] {
			continue
		}
		out = append(out, k)
	}
	return out
}

func isDefaultSpecName(name string) bool {
	return defaultSpecPattern.MatchString(strings.ToLower(name))
}

func sortActiveInterpreterFirst(kernels []connection.Kernel, active *interpreter.Interpreter) {
	sort.SliceStable(kernels, func(i, j int) bool {
		iActive := active != nil && kernels[i].Interpreter != nil && interpreter.SamePath(kernels[i].Interpreter.Path, active.Path)
		jActive := active != nil && kernels[j].Interpreter != nil && interpreter.SamePath(kernels[j].Interpreter.Path, active.Path)
		if iActive != jActive {
			return iActive
		}
		return kernels[i].DisplayName() < kernels[j].DisplayName()
	})
}

func sortedByPath(m map[string]interpreter.Interpreter) []interpreter.Interpreter {
	out := make([]interpreter.Interpreter, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
