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

//go:build windows
// +build windows

package launcher

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
)

// supportsNativeInterrupt is false on Windows: there is no SIGINT
// equivalent for an arbitrary child process without console-event
// plumbing, so message-mode interrupt is the only option.
const supportsNativeInterrupt = false

func spawnSysProcAttr() *syscall.SysProcAttr {
	return nil
}

// Interrupt is unsupported on Windows; CanInterrupt is always false here,
// so SessionCore never calls this.
func (p *Process) Interrupt() error {
	return fmt.Errorf("native interrupt not supported on windows")
}

// Dispose kills the process outright; Windows has no graceful-then-forced
// escalation for an arbitrary child.
func (p *Process) Dispose() {
	if p.isExited() {
		return
	}
	process, err := os.FindProcess(p.PID())
	if err != nil {
		return
	}
	if err := process.Kill(); err != nil {
		log.Warn("launcher: kill pid %d: %v", p.PID(), err)
		return
	}

	done := make(chan struct{})
	go func() {
		_, _ = process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		log.Warn("launcher: pid %d kill wait timed out", p.PID())
	}
}
