package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Invocation describes one external tool call made by the final job.
type Invocation struct {
	Stage       string
	DatasetType string
	Argv        []string
}

func (i Invocation) String() string {
	return strings.Join(i.Argv, " ")
}

// Result is what a finished invocation produced.
type Result struct {
	Duration time.Duration
	Stdout   string
}

// Runner executes invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ExitError reports a tool that exited with a non-zero status.
type ExitError struct {
	Argv []string
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	name := ""
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	return fmt.Sprintf("%s exited with status %d", name, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the exit status carried by err, 1 for any other non-nil error, 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) && ee.Code > 0 {
		return ee.Code
	}
	return 1
}

// DefaultWaitDelay bounds how long a step waits for its output pipes after the tool exits or times out.
const DefaultWaitDelay = 2 * time.Second

// ExecRunner runs invocations as local processes, logging their output line by line.
type ExecRunner struct {
	Logger  *slog.Logger
	Timeout time.Duration
	// WaitDelay defaults to DefaultWaitDelay. Processes left behind by the tool
	// that still hold its stdout or stderr are abandoned once it elapses.
	WaitDelay time.Duration
	Env       []string
}

// Run blocks until the process exits. Stdout is captured and returned; stderr is only logged.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	start := time.Now()
	if len(inv.Argv) == 0 {
		return Result{}, errors.New("empty command")
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("stage", inv.Stage)

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, inv.Argv[0], inv.Argv[1:]...)
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	logger.Info("exec", "cmd", inv.String())
	if err := cmd.Start(); err != nil {
		outW.Close()
		errW.Close()
		return Result{Duration: time.Since(start)}, fmt.Errorf("start %s: %w", inv.Argv[0], err)
	}

	var captured bytes.Buffer
	outLog := newLineWriter(logger.With("stream", "stdout"))
	errLog := newLineWriter(logger.With("stream", "stderr"))
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(io.MultiWriter(&captured, outLog), outR)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(errLog, errR)
		return err
	})
	waitErr := cmd.Wait()
	outW.Close()
	errW.Close()
	pumpErr := g.Wait()
	outLog.Flush()
	errLog.Flush()

	res := Result{Duration: time.Since(start), Stdout: captured.String()}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		logger.Warn("output still held open after exit", "wait_delay", cmd.WaitDelay)
		waitErr = nil
	}
	if waitErr != nil {
		timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		if timedOut {
			logger.Error("step timed out", "timeout", r.Timeout)
			waitErr = fmt.Errorf("%w after %s: %w", context.DeadlineExceeded, r.Timeout, waitErr)
		}
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			code := ee.ExitCode()
			if code <= 0 {
				code = 1
			}
			return res, &ExitError{Argv: inv.Argv, Code: code, Err: waitErr}
		}
		return res, fmt.Errorf("wait %s: %w", inv.Argv[0], waitErr)
	}
	if pumpErr != nil {
		return res, fmt.Errorf("read output of %s: %w", inv.Argv[0], pumpErr)
	}
	return res, nil
}

// FakeRunner is used in tests.
type FakeRunner struct {
	Calls []Invocation
	// Hook runs for every call; a non-nil error fails that call.
	Hook   func(inv Invocation) (string, error)
	Err    error
	Dur    time.Duration
	Stdout string
}

func (f *FakeRunner) Run(_ context.Context, inv Invocation) (Result, error) {
	f.Calls = append(f.Calls, inv)
	if f.Hook != nil {
		out, err := f.Hook(inv)
		return Result{Duration: f.Dur, Stdout: out}, err
	}
	return Result{Duration: f.Dur, Stdout: f.Stdout}, f.Err
}

// CallsFor returns the recorded calls of a single stage.
func (f *FakeRunner) CallsFor(stage string) []Invocation {
	var out []Invocation
	for _, c := range f.Calls {
		if c.Stage == stage {
			out = append(out, c)
		}
	}
	return out
}
