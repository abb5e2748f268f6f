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
	"strings"

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
)

// blockedExtensionIDs names third-party extension owners whose registered
// specs are filtered out (invariant 4).
var blockedExtensionIDs = map[string]bool{}

// applyFinalFilters runs the last-stage filtering and de-duplication rules,
// applied after every finder has contributed its candidates.
func applyFinalFilters(kernels []connection.Kernel) []connection.Kernel {
	kernels = dedupeByID(kernels)
	kernels = dropXpython(kernels)
	kernels = dropBlockedExtensions(kernels)
	kernels = suppressOriginalSpecFileDuplicates(kernels)
	return kernels
}

func dedupeByID(kernels []connection.Kernel) []connection.Kernel {
	seen := make(map[string]bool, len(kernels))
	out := kernels[:0]
	for _, k := range kernels {
		id := k.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, k)
	}
	return out
}

func dropXpython(kernels []connection.Kernel) []connection.Kernel {
	out := kernels[:0]
	for _, k := range kernels {
		if k.Spec != nil && len(k.Spec.Argv) > 0 && strings.HasSuffix(k.Spec.Argv[0], "xpython") {
			continue
		}
		out = append(out, k)
	}
	return out
}

func dropBlockedExtensions(kernels []connection.Kernel) []connection.Kernel {
	if len(blockedExtensionIDs) == 0 {
		return kernels
	}
	out := kernels[:0]
	for _, k := range kernels {
		if k.Spec != nil && k.Spec.Metadata != nil && blockedExtensionIDs[k.Spec.Metadata.ExtensionID] {
			continue
		}
		out = append(out, k)
	}
	return out
}

// suppressOriginalSpecFileDuplicates drops any spec whose
// metadata.vscode.original_spec_file matches another kernel's spec_file
// (invariant 3: conda-style double registration).
func suppressOriginalSpecFileDuplicates(kernels []connection.Kernel) []connection.Kernel {
	specFiles := make(map[string]bool, len(kernels))
	for _, k := range kernels {
		if k.Spec != nil && k.Spec.SpecFile != "" {
			specFiles[k.Spec.SpecFile] = true
		}
	}

	out := kernels[:0]
	for _, k := range kernels {
		if k.Spec != nil {
			if orig := k.Spec.OriginalSpecFile(); orig != "" && orig != k.Spec.SpecFile && specFiles[orig] {
				continue
			}
		}
		out = append(out, k)
	}
	return out
}
