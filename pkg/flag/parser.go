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

import (
	"flag"
	stdlog "log"
	"os"
	"strconv"
	"time"

	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
)

const (
	logKernelOutputEnv         = "LOG_KERNEL_OUTPUT"
	gracefulShutdownTimeoutEnv = "KERNELCORE_API_GRACE_SHUTDOWN"
)

// InitFlags registers CLI flags and env overrides.
func InitFlags() {
	// Set default values
	ServerPort = 44773
	ServerLogLevel = 6
	ServerAccessToken = ""
	ApiGracefulShutdownTimeout = time.Second * 1
	LaunchTimeout = 60 * time.Second
	InterruptTimeout = 10 * time.Second
	DiscoveryCacheTTL = 30 * time.Second
	ExcludedInterpreterLanguage = "python"

	if raw := os.Getenv(logKernelOutputEnv); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			LogKernelOutput = parsed
		}
	}

	if graceShutdownTimeout := os.Getenv(gracefulShutdownTimeoutEnv); graceShutdownTimeout != "" {
		duration, err := time.ParseDuration(graceShutdownTimeout)
		if err != nil {
			stdlog.Panicf("failed to parse graceful shutdown timeout from env: %v", err)
		}
		ApiGracefulShutdownTimeout = duration
	}

	flag.IntVar(&ServerPort, "port", ServerPort, "server listening port (default: 44773)")
	flag.IntVar(&ServerLogLevel, "log-level", ServerLogLevel, "server log level (0=LevelEmergency ... 7=LevelDebug, default: 6)")
	flag.StringVar(&ServerAccessToken, "access-token", ServerAccessToken, "server access token for API authentication")
	flag.DurationVar(&ApiGracefulShutdownTimeout, "graceful-shutdown-timeout", ApiGracefulShutdownTimeout, "API graceful shutdown timeout duration")
	flag.DurationVar(&LaunchTimeout, "launch-timeout", LaunchTimeout, "maximum time to wait for a launched kernel to become ready")
	flag.DurationVar(&InterruptTimeout, "interrupt-timeout", InterruptTimeout, "maximum time to wait for an interrupt to be acknowledged")
	flag.DurationVar(&DiscoveryCacheTTL, "discovery-cache-ttl", DiscoveryCacheTTL, "discovery cache TTL (parsed, not used by any component)")
	flag.BoolVar(&LogKernelOutput, "log-kernel-output", LogKernelOutput, "per-kernel output tracing switch (parsed, not used by any component)")
	flag.StringVar(&ExcludedInterpreterLanguage, "excluded-interpreter-language", ExcludedInterpreterLanguage, "language KnownPathFinder excludes in favor of InterpreterFinder")

	flag.Parse()

	log.Info("kernelcored listening on port %d, launch-timeout=%s, interrupt-timeout=%s", ServerPort, LaunchTimeout, InterruptTimeout)
}
