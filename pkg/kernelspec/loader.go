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
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
)

// backupFolderMarker names the archival directory superseded
// vscode-jupyter registrations are moved into; kernel.json files found
// under it are not live.
const backupFolderMarker = "__old_vscode_kernelspecs"

// Loader reads and normalizes a single kernel.json into a Spec.
type Loader struct{}

// NewLoader builds a Loader. It carries no state; normalization depends only
// on the file contents and the optional matched interpreter.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses the kernel.json at path. It returns (nil, nil) — not an error
// — when the descriptor is structurally fine but not a live kernel (backup
// folder, stale interpreter registration); it returns a *ParseError when the
// JSON itself is malformed.
//
// When interp is non-nil, Load rewrites Name to a stable, interpreter-keyed
// name and may overwrite DisplayName.
func (l *Loader) Load(path string, interp *interpreter.Interpreter) (*Spec, error) {
	if strings.Contains(filepath.ToSlash(path), backupFolderMarker) {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	var raw rawSpec
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	if len(raw.Argv) == 0 {
		log.Warn("kernelspec: dropping %s, argv is empty", path)
		return nil, nil
	}

	spec := &Spec{
		Name:          raw.Name,
		DisplayName:   raw.DisplayName,
		Language:      raw.Language,
		Argv:          raw.Argv,
		Env:           raw.Env,
		InterruptMode: raw.InterruptMode,
		Metadata:      raw.Metadata,
		SpecFile:      path,
	}
	if spec.InterruptMode == "" {
		spec.InterruptMode = "signal"
	}
	if spec.Name == "" {
		spec.Name = filepath.Base(filepath.Dir(path))
	}
	if spec.DisplayName == "" {
		spec.DisplayName = spec.DefaultDisplayName(filepath.Base(filepath.Dir(path)))
	}

	if hint := spec.InterpreterPath(); hint != "" {
		if _, err := os.Stat(hint); errors.Is(err, os.ErrNotExist) {
			log.Debug("kernelspec: dropping %s, declared interpreter %s no longer exists", path, hint)
			return nil, nil
		}
	}

	if spec.Metadata == nil {
		spec.Metadata = &Metadata{}
	}
	if spec.Metadata.VSCode == nil {
		spec.Metadata.VSCode = &VSCodeMetadata{OriginalSpecFile: path}
	} else if spec.Metadata.VSCode.OriginalSpecFile == "" {
		spec.Metadata.VSCode.OriginalSpecFile = path
	}

	if interp != nil {
		preRewriteDisplay := spec.DisplayName
		spec.Name = InterpreterStableName(interp.Path)
		if spec.Language == interp.Language {
			spec.DisplayName = interp.DisplayName
		}
		if spec.Metadata.VSCode.OriginalDisplayName == "" {
			spec.Metadata.VSCode.OriginalDisplayName = preRewriteDisplay
		}
	}

	return spec, nil
}

// rawSpec mirrors the on-disk kernel.json shape before normalization.
type rawSpec struct {
	Argv          []string          `json:"argv"`
	DisplayName   string            `json:"display_name"`
	Language      string            `json:"language"`
	Env           map[string]string `json:"env,omitempty"`
	InterruptMode string            `json:"interrupt_mode,omitempty"`
	Metadata      *Metadata         `json:"metadata,omitempty"`
	Name          string            `json:"name,omitempty"`
}
