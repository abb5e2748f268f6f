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

import "encoding/json"

// metadataAlias breaks the infinite recursion a custom (Un)MarshalJSON on
// Metadata would otherwise cause.
type metadataAlias Metadata

// UnmarshalJSON keeps unrecognized metadata keys in Extra so a round trip
// through SpecLoader does not silently drop third-party fields.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	alias := (*metadataAlias)(m)
	if err := json.Unmarshal(data, alias); err != nil {
		return err
	}

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range []string{"vscode", "interpreter", "extension_id", "interpreter_path"} {
		delete(raw, known)
	}
	if len(raw) == 0 {
		return nil
	}

	m.Extra = make(map[string]any, len(raw))
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			continue
		}
		m.Extra[k] = decoded
	}
	return nil
}

// MarshalJSON re-emits Extra keys alongside the typed fields.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.VSCode != nil {
		out["vscode"] = m.VSCode
	}
	if m.Interpreter != nil {
		out["interpreter"] = m.Interpreter
	}
	if m.ExtensionID != "" {
		out["extension_id"] = m.ExtensionID
	}
	if m.InterpreterPath != "" {
		out["interpreter_path"] = m.InterpreterPath
	}
	return json.Marshal(out)
}
