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
	"crypto/sha256"
	"encoding/hex"

	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
	"github.com/alibaba/opensandbox/kernelcore/pkg/kernelspec"
)

// Kind discriminates the KernelConnection tagged union.
type Kind string

const (
	// KindStartUsingKernelSpec launches a discovered, on-disk kernel.json.
	KindStartUsingKernelSpec Kind = "StartUsingKernelSpec"

	// KindStartUsingInterpreter launches the default kernel of a language
	// environment via a synthetic spec.
	KindStartUsingInterpreter Kind = "StartUsingInterpreter"

	// KindConnectToLiveKernel attaches to an already-running remote kernel.
	// Present for interface parity; its lifecycle diverges from the other
	// two variants (see session.Core).
	KindConnectToLiveKernel Kind = "ConnectToLiveKernel"
)

// Kernel is the tagged union describing how a caller reaches a kernel.
// Exactly one of the variant-specific fields is populated, selected by Kind.
type Kernel struct {
	Kind Kind

	// Spec is set for KindStartUsingKernelSpec and KindStartUsingInterpreter
	// (synthetic in the latter case).
	Spec *kernelspec.Spec

	// Interpreter is set for KindStartUsingInterpreter, and optionally for
	// KindStartUsingKernelSpec when the spec was matched to one.
	Interpreter *interpreter.Interpreter

	// LiveModel and BaseURL are set only for KindConnectToLiveKernel.
	LiveModel map[string]any
	BaseURL   string
}

// StartUsingKernelSpec builds the KindStartUsingKernelSpec variant.
func StartUsingKernelSpec(spec *kernelspec.Spec, interp *interpreter.Interpreter) Kernel {
	return Kernel{Kind: KindStartUsingKernelSpec, Spec: spec, Interpreter: interp}
}

// StartUsingInterpreter builds the KindStartUsingInterpreter variant.
func StartUsingInterpreter(spec *kernelspec.Spec, interp *interpreter.Interpreter) Kernel {
	return Kernel{Kind: KindStartUsingInterpreter, Spec: spec, Interpreter: interp}
}

// ConnectToLiveKernel builds the KindConnectToLiveKernel variant.
func ConnectToLiveKernel(model map[string]any, baseURL string) Kernel {
	return Kernel{Kind: KindConnectToLiveKernel, LiveModel: model, BaseURL: baseURL}
}

// ID returns a stable identifier for this connection, derived from the
// spec's identity and (when present) the interpreter path. Two Kernel
// values that would launch the same effective kernel produce the same ID,
// which is what the preferred-kernel cache keys on.
func (k Kernel) ID() string {
	h := sha256.New()
	h.Write([]byte(k.Kind))
	if k.Spec != nil {
		h.Write([]byte(k.Spec.Name))
		h.Write([]byte(k.Spec.SpecFile))
	}
	if k.Interpreter != nil {
		h.Write([]byte(k.Interpreter.Path))
	}
	if k.Kind == KindConnectToLiveKernel {
		h.Write([]byte(k.BaseURL))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// DisplayName is the human-facing label for this connection.
func (k Kernel) DisplayName() string {
	switch k.Kind {
	case KindConnectToLiveKernel:
		if name, ok := k.LiveModel["display_name"].(string); ok {
			return name
		}
		return k.BaseURL
	default:
		if k.Spec != nil {
			return k.Spec.DisplayName
		}
		return ""
	}
}

// Language is the kernel's declared language, when known.
func (k Kernel) Language() string {
	if k.Spec != nil {
		return k.Spec.Language
	}
	if k.Interpreter != nil {
		return k.Interpreter.Language
	}
	return ""
}
