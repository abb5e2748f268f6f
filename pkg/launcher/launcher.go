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

package launcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	gopsutilprocess "github.com/shirou/gopsutil/process"

	"github.com/alibaba/opensandbox/kernelcore/pkg/connection"
	"github.com/alibaba/opensandbox/kernelcore/pkg/interpreter"
	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
	"github.com/alibaba/opensandbox/kernelcore/pkg/util/safego"
)

const readinessPollInterval = 100 * time.Millisecond

// stderrTailBytes bounds how much stderr KernelDiedError quotes.
const stderrTailBytes = 4096

// Launcher spawns a kernel spec's argv as a child process.
type Launcher struct{}

// New builds a Launcher. It is stateless.
func New() *Launcher {
	return &Launcher{}
}

// Launch writes a connection file, substitutes it into argv, merges
// environment, spawns the child, and waits for readiness bounded by
// timeout.
func (l *Launcher) Launch(ctx context.Context, kernel connection.Kernel, timeout time.Duration, workingDir string) (*Process, error) {
	if kernel.Spec == nil {
		return nil, fmt.Errorf("launch: connection has no spec")
	}
	spec := kernel.Spec

	connFile, err := connection.NewFile(spec.Name)
	if err != nil {
		return nil, err
	}
	connFilePath, err := writeConnectionFile(connFile)
	if err != nil {
		return nil, err
	}

	argv := substituteConnectionFile(spec.Argv, connFilePath)
	if len(argv) == 0 {
		return nil, fmt.Errorf("launch: empty argv")
	}

	dir := workingDir
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			dir = ""
		}
	}

	env := mergeEnvs(os.Environ(), spec.Env)
	if kernel.Interpreter != nil {
		env = mergeEnvs(env, interpreterActivationEnv(kernel.Interpreter))
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.SysProcAttr = spawnSysProcAttr()

	var stderrTail bytes.Buffer
	cmd.Stderr = &boundedWriter{buf: &stderrTail, limit: stderrTailBytes}

	if err := cmd.Start(); err != nil {
		os.Remove(connFilePath)
		if ctx.Err() != nil {
			return nil, &CancelledError{}
		}
		return nil, fmt.Errorf("launch: start process: %w", err)
	}

	proc := newProcess(cmd, connFile, connFilePath, supportsNativeInterrupt)

	exitedNaturally := make(chan struct{})
	var waitErr error
	safego.Go(func() {
		waitErr = cmd.Wait()
		close(exitedNaturally)
	})

	safego.Go(func() {
		<-exitedNaturally
		os.Remove(connFilePath)
		pid := proc.PID()
		// A bash -c wrapper's own exit does not necessarily mean the
		// execed kernel process is gone; give gopsutil a moment to settle
		// before trusting cmd.Wait's exit code.
		for i := 0; i < 3 && processStillRunning(pid); i++ {
			time.Sleep(50 * time.Millisecond)
		}
		proc.markExited(classifyExit(cmd, waitErr))
	})

	if err := waitForReadiness(ctx, connFile, timeout, exitedNaturally); err != nil {
		proc.Dispose()
		switch err.(type) {
		case *CancelledError:
			return nil, err
		case *KernelDiedError:
			err.(*KernelDiedError).StderrTail = stderrTail.String()
			return nil, err
		default:
			return nil, err
		}
	}

	return proc, nil
}

func writeConnectionFile(f *connection.File) (string, error) {
	data, err := f.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal connection file: %w", err)
	}
	tmp, err := os.CreateTemp("", "kernel-*.json")
	if err != nil {
		return "", fmt.Errorf("create connection file: %w", err)
	}
	defer tmp.Close()
	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("write connection file: %w", err)
	}
	return tmp.Name(), nil
}

func substituteConnectionFile(argv []string, connFilePath string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = strings.ReplaceAll(a, "{connection_file}", connFilePath)
	}
	return out
}

// interpreterActivationEnv derives the environment variables an
// interpreter's activation script would set. Only VIRTUAL_ENV and a PATH
// prepend are modeled; full shell activation is the InterpreterService's
// concern.
func interpreterActivationEnv(interp *interpreter.Interpreter) map[string]string {
	if interp == nil || interp.SysPrefix == "" {
		return nil
	}
	return map[string]string{
		"VIRTUAL_ENV": interp.SysPrefix,
		"PATH":        filepath.Join(interp.SysPrefix, "bin") + string(os.PathListSeparator) + os.Getenv("PATH"),
	}
}

func waitForReadiness(ctx context.Context, connFile *connection.File, timeout time.Duration, exited <-chan struct{}) error {
	steps := int(timeout / readinessPollInterval)
	if steps < 1 {
		steps = 1
	}
	backoff := wait.Backoff{
		Steps:    steps,
		Duration: readinessPollInterval,
		Factor:   1.0,
	}

	readyCh := make(chan error, 1)
	safego.Go(func() {
		readyCh <- retry.OnError(backoff, func(error) bool { return true }, func() error {
			return dialHeartbeat(connFile)
		})
	})

	select {
	case <-ctx.Done():
		return &CancelledError{}
	case <-exited:
		return &KernelDiedError{ExitCode: -1}
	case err := <-readyCh:
		if err == nil {
			return nil
		}
		log.Debug("launcher: readiness probe exhausted its backoff: %v", err)
		return &LaunchTimeoutError{Timeout: timeout.String()}
	}
}

func dialHeartbeat(f *connection.File) error {
	addr := net.JoinHostPort(f.IP, itoa(f.HBPort))
	conn, err := net.DialTimeout("tcp", addr, readinessPollInterval)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

func classifyExit(cmd *exec.Cmd, waitErr error) ExitEvent {
	if cmd.ProcessState == nil {
		return ExitEvent{ExitCode: -1, Reason: ExitReasonLaunchErr}
	}
	code := cmd.ProcessState.ExitCode()
	if code == 0 {
		return ExitEvent{ExitCode: 0, Reason: ExitReasonNormal}
	}
	if waitErr != nil {
		return ExitEvent{ExitCode: code, Reason: ExitReasonKilled}
	}
	return ExitEvent{ExitCode: code, Reason: ExitReasonNormal}
}

// processStillRunning reports whether pid (or any descendant execed into
// it, e.g. a bash -c wrapper) is still alive, guarding against
// classifyExit firing early for wrapper scripts.
func processStillRunning(pid int) bool {
	running, err := gopsutilprocess.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return running
}

// boundedWriter keeps only the last limit bytes written to it, for
// stderr-tail capture without unbounded memory growth.
type boundedWriter struct {
	mu    sync.Mutex
	buf   *bytes.Buffer
	limit int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.buf.Write(p)
	if w.buf.Len() > w.limit {
		trimmed := w.buf.Bytes()[w.buf.Len()-w.limit:]
		w.buf.Reset()
		w.buf.Write(trimmed)
	}
	return n, err
}
