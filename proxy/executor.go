// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/keyward/keyward/plugin"
)

// killGracePeriod is how long a child gets between SIGTERM and SIGKILL
// once its deadline has passed.
const killGracePeriod = 5 * time.Second

// Executor spawns the real CLI as a child process with the credential
// envelope merged into its environment. The argument vector passes to
// process creation untouched — no shell, no interpretation.
type Executor struct {
	// Timeout bounds each child's lifetime. A child still running at
	// the deadline is terminated, then killed after a grace period.
	Timeout time.Duration

	Logger *slog.Logger
}

// NewExecutor creates an executor with the given CLI timeout.
func NewExecutor(timeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{Timeout: timeout, Logger: logger}
}

// Run executes binary with args. The child sees the parent environment
// with envOverlay merged on top (overlay wins on collision). Stdout and
// stderr are captured fully, sanitized to valid UTF-8, and returned.
//
// A timeout yields exit_code -1 with a descriptive stderr; the child is
// reaped and its pipes closed on every exit path, including caller
// cancellation.
func (e *Executor) Run(ctx context.Context, binary string, args []string, envOverlay map[string]string, stdin string) plugin.Result {
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, args...)

	// os/exec keeps the last value for duplicate keys, so appending
	// the overlay after the parent environment makes the merge
	// right-biased.
	env := os.Environ()
	for key, value := range envOverlay {
		env = append(env, key+"="+value)
	}
	cmd.Env = env

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Terminate politely on deadline; WaitDelay escalates to SIGKILL
	// if the child lingers, which also guarantees the stdio pipes are
	// closed and the child is reaped.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGracePeriod

	err := cmd.Run()
	duration := time.Since(start)

	result := plugin.Result{
		Stdout: sanitizeUTF8(stdout.Bytes()),
		Stderr: sanitizeUTF8(stderr.Bytes()),
	}

	switch {
	case err == nil:
		result.ExitCode = 0

	case runCtx.Err() == context.DeadlineExceeded:
		result.ExitCode = -1
		result.Stdout = ""
		result.Stderr = fmt.Sprintf("Command timed out after %ds", int(e.Timeout.Seconds()))
		e.Logger.Warn("subprocess timed out",
			"binary", binary,
			"timeout", e.Timeout,
			"duration", duration,
		)

	case runCtx.Err() == context.Canceled:
		result.ExitCode = -1
		result.Stdout = ""
		result.Stderr = "Command canceled"

	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure: binary missing, not executable, fork
			// error. No child ever ran.
			result.ExitCode = -1
			result.Stdout = ""
			result.Stderr = fmt.Sprintf("Command not found: %s", binary)
		}
	}

	return result
}

// sanitizeUTF8 decodes captured bytes as UTF-8, substituting the
// replacement rune for invalid sequences.
func sanitizeUTF8(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}
