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

// Package notebook describes the kernel-selection metadata a caller attaches
// to a notebook resource, as consumed by rank.PreferredKernelRanker.
package notebook

// Metadata is the subset of a notebook document's top-level metadata that
// kernel selection reads. It mirrors the ".metadata.kernelspec" and
// ".metadata.language_info" stanzas of the notebook file format.
type Metadata struct {
	// KernelSpecName is metadata.kernelspec.name, when present.
	KernelSpecName string `json:"kernelspec_name,omitempty"`

	// KernelSpecDisplayName is metadata.kernelspec.display_name.
	KernelSpecDisplayName string `json:"kernelspec_display_name,omitempty"`

	// LanguageName is metadata.language_info.name.
	LanguageName string `json:"language_name,omitempty"`

	// InterpreterHash, when set, names a specific interpreter by its stable
	// hash (see kernelspec.InterpreterStableName) and drives find_kernel's
	// fast path.
	InterpreterHash string `json:"interpreter_hash,omitempty"`
}

// HasKernelSpec reports whether the notebook names a kernelspec at all,
// distinct from having one that happens to match nothing.
func (m Metadata) HasKernelSpec() bool {
	return m.KernelSpecName != "" || m.KernelSpecDisplayName != ""
}
