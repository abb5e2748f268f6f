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

//go:build !windows
// +build !windows

package launcher

import (
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
)

// supportsNativeInterrupt is true on unix: a process group SIGINT is
// always available.
const supportsNativeInterrupt = true

// spawnSysProcAttr puts the child in its own process group so signals can
// be forwarded to it and any descendants it spawns (e.g. bash -c wrappers).
func spawnSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// Interrupt sends SIGINT to the process group, the platform-native
// equivalent of the wire protocol's interrupt_request.
func (p *Process) Interrupt() error {
	if p.isExited() {
		return nil
	}
	pid := p.PID()
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, syscall.SIGINT); err != nil {
		if strings.Contains(err.Error(), "no such process") {
			return nil
		}
		return fmt.Errorf("interrupt pid %d: %w", pid, err)
	}
	return nil
}

// Dispose terminates the process if still alive: SIGTERM first, escalating
// to SIGKILL if the process has not exited within 3 seconds.
func (p *Process) Dispose() {
	if p.isExited() {
		return
	}
	pid := p.PID()
	if pid <= 0 {
		return
	}

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !strings.Contains(err.Error(), "no such process") {
		log.Warn("launcher: SIGTERM failed for pgid %d: %v", pid, err)
	}

	select {
	case <-p.Exited():
		return
	case <-time.After(3 * time.Second):
		log.Warn("launcher: pgid %d did not exit after SIGTERM, sending SIGKILL", pid)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !strings.Contains(err.Error(), "no such process") {
		log.Warn("launcher: SIGKILL failed for pgid %d: %v", pid, err)
	}
}
