// Package buildexec runs the external build tool as a subprocess.
//
// Output is passed through to the caller's writers unmodified while the
// last lines are kept for the run report. The exit code is the only success
// signal. The tool runs in its own process group. On context cancellation
// the group receives an interrupt and is killed if it has not exited within
// the grace period; Invoke returns only once the group is gone.
package buildexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/danieljhkim/dualbuild/internal/clock"
)

const (
	// DefaultTailLines is how many trailing output lines a Result keeps.
	DefaultTailLines = 40

	// DefaultGracePeriod is how long an interrupted build may take to exit.
	DefaultGracePeriod = 10 * time.Second

	reapPoll    = 20 * time.Millisecond
	reapTimeout = 2 * time.Second
)

// ErrNoCommand indicates a Spec without a command.
var ErrNoCommand = errors.New("no command configured")

// Spec describes one subprocess invocation.
type Spec struct {
	// Name labels the step in logs and reports ("build", "package").
	Name string

	Command string
	Args    []string

	// Dir is the working directory.
	Dir string

	// Env is appended to the parent environment.
	Env []string

	// Stdout and Stderr receive the process output as it is produced.
	// Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// CommandLine renders the command and its arguments for display.
func (s Spec) CommandLine() string {
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}

// Result is the outcome of a process that was started.
type Result struct {
	ExitCode int

	// Output holds the last lines of combined stdout and stderr.
	Output string

	Duration time.Duration

	// Interrupted is true when the invocation context was cancelled
	// before the process finished.
	Interrupted bool
}

// Success reports whether the process exited zero without interruption.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0 && !r.Interrupted
}

// Invoker runs a build step.
//
// Invoke returns an error only when the process could not be started. A
// process that ran and failed is reported through Result.
type Invoker interface {
	Invoke(ctx context.Context, spec Spec) (*Result, error)
}

// Option configures a CommandInvoker.
type Option func(*CommandInvoker)

// WithGracePeriod sets how long an interrupted process may take to exit
// before it is killed.
func WithGracePeriod(d time.Duration) Option {
	return func(i *CommandInvoker) {
		if d > 0 {
			i.grace = d
		}
	}
}

// WithTailLines sets how many output lines a Result keeps.
func WithTailLines(n int) Option {
	return func(i *CommandInvoker) {
		if n > 0 {
			i.tailLines = n
		}
	}
}

// WithClock injects the clock used to time invocations.
func WithClock(c clock.Clock) Option {
	return func(i *CommandInvoker) {
		if c != nil {
			i.clock = c
		}
	}
}

// CommandInvoker runs specs with os/exec.
type CommandInvoker struct {
	grace     time.Duration
	tailLines int
	clock     clock.Clock
	logger    *zap.Logger
}

// NewCommandInvoker constructs a CommandInvoker.
func NewCommandInvoker(logger *zap.Logger, opts ...Option) *CommandInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	inv := &CommandInvoker{
		grace:     DefaultGracePeriod,
		tailLines: DefaultTailLines,
		clock:     &clock.RealClock{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke runs spec and blocks until the process has exited.
func (i *CommandInvoker) Invoke(ctx context.Context, spec Spec) (*Result, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return nil, ErrNoCommand
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)

	tail := newTailBuffer(i.tailLines)
	cmd.Stdout = io.MultiWriter(orDiscard(spec.Stdout), tail)
	if spec.Stderr != nil && spec.Stderr == spec.Stdout {
		// One writer for both streams keeps exec to a single copying goroutine.
		cmd.Stderr = cmd.Stdout
	} else {
		cmd.Stderr = io.MultiWriter(orDiscard(spec.Stderr), tail)
	}

	setProcessGroup(cmd)
	var interruptedAt atomic.Int64
	cmd.Cancel = func() error {
		i.logger.Warn("interrupting build step", zap.String("step", spec.Name))
		interruptedAt.Store(time.Now().UnixNano())
		return interruptGroup(cmd)
	}
	cmd.WaitDelay = i.grace

	i.logger.Debug("starting build step",
		zap.String("step", spec.Name),
		zap.String("command", spec.CommandLine()),
		zap.String("dir", spec.Dir))

	start := i.clock.Now()
	runErr := cmd.Run()
	if cmd.Process != nil {
		i.reap(cmd, spec.Name, interruptedAt.Load())
	}
	result := &Result{
		Duration:    clock.Since(i.clock, start),
		Output:      tail.String(),
		Interrupted: ctx.Err() != nil,
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case errors.Is(runErr, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			result.ExitCode = cmd.ProcessState.ExitCode()
		case cmd.ProcessState == nil:
			return nil, fmt.Errorf("start %s: %w", spec.Command, runErr)
		default:
			result.ExitCode = -1
		}
	}

	i.logger.Debug("build step finished",
		zap.String("step", spec.Name),
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("interrupted", result.Interrupted),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// reap makes sure no process from the step's group outlives Invoke. After an
// interrupt the group keeps whatever is left of the grace period to exit;
// anything still running is then killed.
func (i *CommandInvoker) reap(cmd *exec.Cmd, step string, interruptedAt int64) {
	if !groupAlive(cmd) {
		return
	}
	if interruptedAt != 0 {
		deadline := time.Unix(0, interruptedAt).Add(i.grace)
		for groupAlive(cmd) && time.Now().Before(deadline) {
			time.Sleep(reapPoll)
		}
		if !groupAlive(cmd) {
			return
		}
	}

	i.logger.Warn("killing leftover build processes", zap.String("step", step), zap.Int("pgid", cmd.Process.Pid))
	if err := killGroup(cmd); err != nil {
		i.logger.Error("kill build process group", zap.String("step", step), zap.Error(err))
	}
	deadline := time.Now().Add(reapTimeout)
	for groupAlive(cmd) && time.Now().Before(deadline) {
		time.Sleep(reapPoll)
	}
	if groupAlive(cmd) {
		i.logger.Error("build processes survived kill", zap.String("step", step), zap.Int("pgid", cmd.Process.Pid))
	}
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
