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

package interpreter

import "context"

// Service is the external collaborator that enumerates installed language
// interpreters. The core only consumes it; how interpreters are actually
// discovered (venvs, conda envs, pyenv shims, ...) is out of scope here.
type Service interface {
	// ListInterpreters returns every interpreter currently installed.
	// Implementations should cache aggressively; this may be called once
	// per discovery scan.
	ListInterpreters(ctx context.Context) ([]Interpreter, error)

	// ActiveInterpreter returns the interpreter currently selected for the
	// given resource (e.g. a workspace folder), or nil if none is active.
	ActiveInterpreter(ctx context.Context, resource string) (*Interpreter, error)
}

// StaticService is a Service backed by a fixed, in-memory interpreter list.
// Production callers wire a real InterpreterService; tests and simple
// embedders can use this instead.
type StaticService struct {
	Interpreters []Interpreter
	Active       *Interpreter
}

// NewStaticService builds a StaticService from a fixed interpreter list.
func NewStaticService(interpreters []Interpreter) *StaticService {
	return &StaticService{Interpreters: interpreters}
}

func (s *StaticService) ListInterpreters(context.Context) ([]Interpreter, error) {
	return s.Interpreters, nil
}

func (s *StaticService) ActiveInterpreter(context.Context, string) (*Interpreter, error) {
	return s.Active, nil
}
