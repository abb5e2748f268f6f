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

// Package kernelspec loads and normalizes kernel.json descriptors on disk.
package kernelspec

// Spec is an immutable descriptor of how to launch a kernel.
type Spec struct {
	// Name is the unique-within-location identifier.
	Name string `json:"name"`

	// DisplayName is shown to a human; defaulted from the parent directory
	// of SpecFile when the descriptor omits it.
	DisplayName string `json:"display_name"`

	// Language is the kernel's programming language.
	Language string `json:"language"`

	// Argv is the ordered launch command; may contain the "{connection_file}"
	// placeholder.
	Argv []string `json:"argv"`

	// Env is merged over the launching process's environment at spawn time.
	Env map[string]string `json:"env,omitempty"`

	// InterruptMode is "signal" (default) or "message".
	InterruptMode string `json:"interrupt_mode,omitempty"`

	// Metadata is an opaque nested mapping; see the Metadata struct for the
	// fields this package reads and writes.
	Metadata *Metadata `json:"metadata,omitempty"`

	// SpecFile is the absolute path this spec was parsed from, empty for
	// synthetic specs built from an interpreter template.
	SpecFile string `json:"-"`
}

// Metadata is the opaque metadata bag, typed down to the fields the spec
// cares about. Unknown keys round-trip through Extra.
type Metadata struct {
	VSCode      *VSCodeMetadata      `json:"vscode,omitempty"`
	Interpreter *InterpreterMetadata `json:"interpreter,omitempty"`

	// ExtensionID identifies the third-party extension that registered this
	// spec, when present.
	ExtensionID string `json:"extension_id,omitempty"`

	// InterpreterPath duplicates Interpreter.Path for specs that only ever
	// set the flat field (legacy registrations predate the nested form).
	InterpreterPath string `json:"interpreter_path,omitempty"`

	// Extra holds metadata keys this package does not model explicitly.
	Extra map[string]any `json:"-"`
}

// VSCodeMetadata tracks provenance this package stamps onto a spec when it is
// loaded: OriginalSpecFile on every load, OriginalDisplayName only when a
// matched interpreter is supplied.
type VSCodeMetadata struct {
	OriginalSpecFile    string `json:"original_spec_file,omitempty"`
	OriginalDisplayName string `json:"original_display_name,omitempty"`

	// RegistrationInfo marks a spec as one this system registered itself,
	// used by the archival rule to detect re-registration across upgrades.
	RegistrationInfo string `json:"registration_info,omitempty"`
}

// InterpreterMetadata is the nested interpreter hint a spec may carry.
type InterpreterMetadata struct {
	Path string `json:"path,omitempty"`
}

// DefaultDisplayName returns s.DisplayName, or parentDir (the caller passes
// the name of the directory holding the spec file) when DisplayName is empty.
func (s *Spec) DefaultDisplayName(parentDir string) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return parentDir
}

// OriginalSpecFile returns the metadata.vscode.original_spec_file value, or
// empty when absent.
func (s *Spec) OriginalSpecFile() string {
	if s.Metadata == nil || s.Metadata.VSCode == nil {
		return ""
	}
	return s.Metadata.VSCode.OriginalSpecFile
}

// HasRegistrationMarker reports whether this spec was registered by this
// system (as opposed to hand-authored by a user or another tool).
func (s *Spec) HasRegistrationMarker() bool {
	return s.Metadata != nil && s.Metadata.VSCode != nil && s.Metadata.VSCode.RegistrationInfo != ""
}

// InterpreterPath returns the best-effort interpreter hint carried by this
// spec's metadata, checking the nested field before the flat legacy one.
func (s *Spec) InterpreterPath() string {
	if s.Metadata == nil {
		return ""
	}
	if s.Metadata.Interpreter != nil && s.Metadata.Interpreter.Path != "" {
		return s.Metadata.Interpreter.Path
	}
	return s.Metadata.InterpreterPath
}
