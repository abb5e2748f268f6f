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

package model

import "github.com/go-playground/validator/v10"

// KernelSpecInfo is the wire representation of a discovered kernelspec,
// independent of any interpreter it may have been matched to.
type KernelSpecInfo struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	Language      string `json:"language"`
	InterruptMode string `json:"interrupt_mode,omitempty"`
}

// InterpreterInfo is the wire representation of a matched interpreter.
type InterpreterInfo struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
	EnvType     string `json:"env_type,omitempty"`
}

// KernelConnectionInfo is the wire representation of one discovered
// connection.Kernel, the candidate a caller selects by ID when creating a
// session.
type KernelConnectionInfo struct {
	ID          string           `json:"id"`
	Kind        string           `json:"kind"`
	Spec        *KernelSpecInfo  `json:"spec,omitempty"`
	Interpreter *InterpreterInfo `json:"interpreter,omitempty"`
}

// CreateSessionRequest selects which discovered kernel connection to start,
// by the ID previously returned from the kernelspec listing endpoint.
type CreateSessionRequest struct {
	KernelID string `json:"kernel_id" validate:"required"`
}

func (r *CreateSessionRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// SessionInfo is the wire representation of a live session.
type SessionInfo struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	Status   string `json:"status"`
}

// ExecuteRequest wraps the arbitrary execute_request content a caller
// forwards to a session's kernel.
type ExecuteRequest struct {
	Content map[string]any `json:"content" validate:"required"`
}

func (r *ExecuteRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// InputReplyRequest answers a pending input_request.
type InputReplyRequest struct {
	Value string `json:"value" validate:"required"`
}

func (r *InputReplyRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
