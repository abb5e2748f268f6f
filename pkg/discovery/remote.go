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

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
)

// RemoteKernelFinder mirrors the shape of KnownPathFinder/InterpreterFinder
// for server-hosted kernels. Real remote discovery (talking to a Jupyter
// server's /api/kernels) is out of scope; this interface exists so
// LocalKernelIndex's composition point is real, exercised code rather than
// a comment.
type RemoteKernelFinder interface {
	ListKernels(ctx context.Context) ([]connection.Kernel, error)
}

// FakeRemoteKernelFinder is a trivial in-memory RemoteKernelFinder, useful
// only for tests exercising LocalKernelIndex's composition with a remote
// source present.
type FakeRemoteKernelFinder struct {
	Kernels []connection.Kernel
	Err     error
}

func (f *FakeRemoteKernelFinder) ListKernels(context.Context) ([]connection.Kernel, error) {
	return f.Kernels, f.Err
}
