// Package runner is the lowest-level execution layer of labRAT. It runs the
// interpreter probe, the dependency install, and the experiment process
// itself, capturing output while optionally streaming it to the operator's
// terminal.
//
// Design principles:
//   - Minimal logic: version gating and sequencing happen in the launcher,
//     not here
//   - Structured output: comprehensive results for the ledger and audit trail
//   - A command that runs but exits non-zero is NOT an infrastructure
//     failure; Success stays true and the exit code is recorded
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"labrat/internal/logging"
)

// Command represents a command to be executed.
type Command struct {
	// Binary is the executable to run (e.g., "python", "python3").
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	// If empty, uses the runner's default working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set (in KEY=VALUE format).
	// These are merged with the runner's allowed environment.
	Environment []string `json:"environment,omitempty"`

	// Stdin provides input to the command's standard input.
	Stdin string `json:"stdin,omitempty"`

	// Timeout bounds execution. Zero means use the runner's default;
	// when that is also zero the command runs without a deadline.
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxOutputBytes limits captured stdout+stderr size.
	// Zero means use the runner's default.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`

	// Stream mirrors the child's output to the operator's terminal while
	// it is captured. The install and experiment steps run with this on so
	// pip's own messages and the experiment's console output stay visible.
	Stream bool `json:"stream,omitempty"`

	// LaunchID links this execution to a launch (for audit).
	LaunchID string `json:"launch_id,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	result := c.Binary
	for _, arg := range c.Arguments {
		result += " " + arg
	}
	return result
}

// Result is the comprehensive output of command execution.
type Result struct {
	// Success indicates whether the command completed without error.
	// Note: A command that runs but returns non-zero exit code has Success=true.
	// Success=false means the execution infrastructure failed.
	Success bool `json:"success"`

	// ExitCode is the command's exit code (-1 if not available).
	ExitCode int `json:"exit_code"`

	// Stdout is the captured standard output.
	Stdout string `json:"stdout"`

	// Stderr is the captured standard error.
	Stderr string `json:"stderr"`

	// Duration is how long the command ran.
	Duration time.Duration `json:"duration"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when execution completed.
	FinishedAt time.Time `json:"finished_at"`

	// Killed indicates the command was forcibly terminated.
	Killed bool `json:"killed"`

	// KillReason explains why the command was killed.
	KillReason string `json:"kill_reason,omitempty"`

	// Truncated indicates output was truncated due to size limits.
	Truncated bool `json:"truncated"`

	// TruncatedBytes is how many bytes were discarded.
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	// Error contains any infrastructure-level error message.
	Error string `json:"error,omitempty"`

	// Command is a copy of the command that was executed (for audit).
	Command *Command `json:"command,omitempty"`
}

// IsError returns true if the execution failed (infrastructure error).
func (r *Result) IsError() bool {
	return !r.Success || r.Error != ""
}

// IsNonZeroExit returns true if the command ran but returned non-zero.
func (r *Result) IsNonZeroExit() bool {
	return r.Success && r.ExitCode != 0
}

// Output returns stdout and stderr combined.
func (r *Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes commands. The launcher depends on this interface so the
// launch sequence can be exercised without spawning real processes.
type Runner interface {
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

// RunnerConfig is the configuration for creating runners.
type RunnerConfig struct {
	// DefaultWorkingDir is used when Command.WorkingDirectory is empty.
	DefaultWorkingDir string `json:"default_working_dir"`

	// DefaultTimeout is used when no timeout is specified.
	// Zero means commands run without a deadline.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// MaxTimeout caps all timeout values (0 = uncapped).
	MaxTimeout time.Duration `json:"max_timeout"`

	// AllowedEnvironment lists environment variables to pass through.
	AllowedEnvironment []string `json:"allowed_environment"`

	// MaxOutputBytes caps output capture (default 4MB).
	MaxOutputBytes int64 `json:"max_output_bytes"`

	// StreamStdout receives mirrored stdout for streaming commands.
	// Defaults to os.Stdout.
	StreamStdout io.Writer `json:"-"`

	// StreamStderr receives mirrored stderr for streaming commands.
	// Defaults to os.Stderr.
	StreamStderr io.Writer `json:"-"`
}

// DefaultRunnerConfig returns sensible defaults for launcher work. The
// experiment is an interactive GUI session, so there is no default deadline,
// and the allowed environment includes the display and audio variables the
// stimulus presentation needs.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		DefaultWorkingDir: ".",
		DefaultTimeout:    0,
		MaxTimeout:        0,
		MaxOutputBytes:    4 * 1024 * 1024, // 4MB
		AllowedEnvironment: []string{
			"PATH", "HOME", "USER", "LANG", "LC_ALL", "TEMP", "TMP",
			"DISPLAY", "WAYLAND_DISPLAY", "XAUTHORITY", "XDG_RUNTIME_DIR",
			"SYSTEMROOT", "APPDATA", "LOCALAPPDATA", "USERPROFILE", "PROGRAMDATA",
		},
	}
}

// Merge combines this config with command-specific settings.
// Command settings override config defaults.
func (c RunnerConfig) Merge(cmd Command) Command {
	result := cmd

	if result.WorkingDirectory == "" {
		result.WorkingDirectory = c.DefaultWorkingDir
	}
	if result.Timeout == 0 {
		result.Timeout = c.DefaultTimeout
	}
	if c.MaxTimeout > 0 && result.Timeout > c.MaxTimeout {
		result.Timeout = c.MaxTimeout
	}
	if result.MaxOutputBytes == 0 {
		result.MaxOutputBytes = c.MaxOutputBytes
	}

	return result
}

// DirectRunner executes commands directly on the host using os/exec.
type DirectRunner struct {
	mu     sync.RWMutex
	config RunnerConfig
}

// NewDirectRunner creates a new direct runner with default config.
func NewDirectRunner() *DirectRunner {
	return NewDirectRunnerWithConfig(DefaultRunnerConfig())
}

// NewDirectRunnerWithConfig creates a new direct runner with custom config.
func NewDirectRunnerWithConfig(config RunnerConfig) *DirectRunner {
	logging.LauncherDebug("Creating DirectRunner: timeout=%s, maxOutput=%d bytes",
		config.DefaultTimeout, config.MaxOutputBytes)
	return &DirectRunner{
		config: config,
	}
}

// Validate checks if a command can be executed.
func (e *DirectRunner) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	return nil
}

// Execute runs a command directly on the host.
func (e *DirectRunner) Execute(ctx context.Context, cmd Command) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryLauncher, "Command execution")
	defer timer.Stop()

	logging.Launcher("Executing command: %s", cmd.CommandString())

	if err := e.Validate(cmd); err != nil {
		logging.LauncherWarn("Command validation failed: %s %v - %v", cmd.Binary, cmd.Arguments, err)
		return nil, err
	}

	// Merge config defaults
	cmd = e.config.Merge(cmd)

	result := &Result{
		ExitCode: -1,
		Command:  &cmd,
	}

	// A zero timeout means the command owns the session for as long as it
	// needs; only the parent context can end it.
	execCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)

	if cmd.Stdin != "" {
		logging.LauncherDebug("Providing stdin input (%d bytes)", len(cmd.Stdin))
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: cmd.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: cmd.MaxOutputBytes}

	if cmd.Stream {
		execCmd.Stdout = io.MultiWriter(e.streamStdout(), stdoutLimited)
		execCmd.Stderr = io.MultiWriter(e.streamStderr(), stderrLimited)
	} else {
		execCmd.Stdout = stdoutLimited
		execCmd.Stderr = stderrLimited
	}

	result.StartedAt = time.Now()
	logging.LauncherDebug("Starting process: %s", cmd.Binary)

	err := execCmd.Run()

	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()

	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
		logging.LauncherWarn("Command output truncated: %d bytes discarded", result.TruncatedBytes)
	}

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			result.Killed = true
			result.KillReason = fmt.Sprintf("timeout after %s", cmd.Timeout)
			result.Success = true // Infrastructure worked, command was killed
			logging.LauncherWarn("Command killed (timeout): %s after %s", cmd.Binary, cmd.Timeout)
		} else if execCtx.Err() == context.Canceled {
			result.Killed = true
			result.KillReason = "context canceled"
			result.Success = true
			logging.LauncherDebug("Command canceled: %s", cmd.Binary)
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.Success = true // Command ran, just returned non-zero
			result.ExitCode = exitErr.ExitCode()
			logging.LauncherDebug("Command exited non-zero: %s -> %d", cmd.Binary, result.ExitCode)
		} else {
			result.Success = false
			result.Error = err.Error()
			logging.LauncherError("Command failed: %s - %v", cmd.Binary, err)
			return result, nil
		}
	} else {
		result.Success = true
		result.ExitCode = 0
		logging.LauncherDebug("Command succeeded with exit code 0")
	}

	logging.Launcher("Command completed: %s -> exit=%d, duration=%s, stdout=%d bytes",
		cmd.Binary, result.ExitCode, result.Duration, len(result.Stdout))

	return result, nil
}

func (e *DirectRunner) streamStdout() io.Writer {
	if e.config.StreamStdout != nil {
		return e.config.StreamStdout
	}
	return os.Stdout
}

func (e *DirectRunner) streamStderr() io.Writer {
	if e.config.StreamStderr != nil {
		return e.config.StreamStderr
	}
	return os.Stderr
}

// buildEnvironment creates the environment variable list.
func (e *DirectRunner) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0)

	// Get allowed variables from current environment
	for _, key := range e.config.AllowedEnvironment {
		if val := os.Getenv(key); val != "" {
			env = append(env, fmt.Sprintf("%s=%s", key, val))
		}
	}

	// Add command-specific environment variables
	env = append(env, cmdEnv...)

	return env
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		// Partial write
		lw.truncated = true
		toWrite := p[:remaining]
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(toWrite)
		lw.written += int64(written)
		return n, err // Return original length to avoid "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
