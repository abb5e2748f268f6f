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

// Package rank scores discovered kernel connections against notebook
// metadata to pick the single preferred kernel.
package rank

import (
	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
	"github.com/alibaba/opensandbox/kernelcore/pkg/kernelspec"
	"github.com/alibaba/opensandbox/kernelcore/pkg/notebook"
)

const (
	scoreInterpreterHash = 1000
	scoreKernelSpecName  = 500
	scoreDisplayName     = 200
	scoreLanguage        = 100
	scoreActiveInterp    = 50
	scoreBareLanguage    = 25
)

// PreferredKernelRanker scores candidates against notebook metadata.
type PreferredKernelRanker struct{}

// NewPreferredKernelRanker builds a PreferredKernelRanker. It is stateless.
func NewPreferredKernelRanker() *PreferredKernelRanker {
	return &PreferredKernelRanker{}
}

// Rank returns the best-scoring candidate, or (Kernel{}, false) when
// candidates is empty. Ties are broken by discovery order (the first
// candidate at the winning score wins), since candidates is assumed to
// already be in discovery order.
func (r *PreferredKernelRanker) Rank(candidates []connection.Kernel, meta notebook.Metadata, active *interpreter.Interpreter) (connection.Kernel, bool) {
	if len(candidates) == 0 {
		return connection.Kernel{}, false
	}

	bestIdx := 0
	bestScore := -1
	for i, c := range candidates {
		score := r.score(c, meta, active)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return candidates[bestIdx], true
}

func (r *PreferredKernelRanker) score(c connection.Kernel, meta notebook.Metadata, active *interpreter.Interpreter) int {
	score := 0

	if meta.InterpreterHash != "" && c.Interpreter != nil &&
		kernelspec.InterpreterStableName(c.Interpreter.Path) == meta.InterpreterHash {
		score += scoreInterpreterHash
	}

	if meta.KernelSpecName != "" && c.Spec != nil && c.Spec.Name == meta.KernelSpecName {
		score += scoreKernelSpecName
	}

	if meta.KernelSpecDisplayName != "" && c.Spec != nil && c.Spec.DisplayName == meta.KernelSpecDisplayName {
		score += scoreDisplayName
	}

	if meta.LanguageName != "" && c.Language() == meta.LanguageName {
		score += scoreLanguage
	}

	if active != nil && c.Interpreter != nil && interpreter.SamePath(c.Interpreter.Path, active.Path) {
		score += scoreActiveInterp
	}

	if !meta.HasKernelSpec() && active != nil && c.Kind == connection.KindStartUsingInterpreter && meta.LanguageName == active.Language {
		score += scoreBareLanguage
	}

	return score
}
