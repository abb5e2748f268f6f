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

package flag

import "time"

var (
	// ServerPort controls the HTTP listener port.
	ServerPort int

	// ServerLogLevel controls the server log verbosity.
	ServerLogLevel int

	// ServerAccessToken guards API entrypoints when set.
	ServerAccessToken string

	// ApiGracefulShutdownTimeout waits before tearing down open session streams.
	ApiGracefulShutdownTimeout time.Duration

	// LaunchTimeout bounds how long KernelLauncher waits for readiness.
	LaunchTimeout time.Duration

	// InterruptTimeout bounds how long a session waits for interrupt acknowledgement.
	InterruptTimeout time.Duration

	// DiscoveryCacheTTL holds the --discovery-cache-ttl value. No component reads
	// it; the discovery cache has no age-based expiry.
	DiscoveryCacheTTL time.Duration

	// LogKernelOutput holds the LOG_KERNEL_OUTPUT / --log-kernel-output value. No
	// component reads it; kernel output is not traced to the log.
	LogKernelOutput bool

	// ExcludedInterpreterLanguage is the language InterpreterFinder owns; KnownPathFinder
	// drops specs of this language when asked to exclude it.
	ExcludedInterpreterLanguage string
)
