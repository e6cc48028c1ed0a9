package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestFakeRunner(t *testing.T) {
	r := &FakeRunner{Dur: 50 * time.Millisecond, Stdout: "ok"}
	res, err := r.Run(context.Background(), Invocation{Stage: "zip", Argv: []string{"butler", "zip-from-graph"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "ok" {
		t.Fatalf("unexpected stdout: %s", res.Stdout)
	}
	if len(r.Calls) != 1 || len(r.CallsFor("zip")) != 1 || len(r.CallsFor("ingest")) != 0 {
		t.Fatalf("unexpected calls: %+v", r.Calls)
	}
	if res.Duration != 50*time.Millisecond {
		t.Fatalf("unexpected duration: %v", res.Duration)
	}
}

func TestFakeRunnerHook(t *testing.T) {
	boom := &ExitError{Argv: []string{"butler"}, Code: 3}
	r := &FakeRunner{Hook: func(inv Invocation) (string, error) {
		if inv.DatasetType == "src" {
			return "", boom
		}
		return "done", nil
	}}
	if _, err := r.Run(context.Background(), Invocation{DatasetType: "calexp"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := r.Run(context.Background(), Invocation{DatasetType: "src"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("x"), 1},
		{"exit", &ExitError{Code: 4}, 4},
		{"wrapped", fmt.Errorf("stage zip: %w", &ExitError{Code: 7}), 7},
		{"signal", &ExitError{Code: -1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Fatalf("ExitCode(%v)=%d want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExecRunnerCapturesStdout(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	var logs bytes.Buffer
	r := &ExecRunner{Logger: slog.New(slog.NewTextHandler(&logs, nil))}
	res, err := r.Run(context.Background(), Invocation{
		Stage: "query",
		Argv:  []string{"sh", "-c", "echo out-line; echo err-line 1>&2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "out-line" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
	if !strings.Contains(logs.String(), "err-line") || !strings.Contains(logs.String(), "stream=stderr") {
		t.Fatalf("stderr not logged: %s", logs.String())
	}
}

func TestExecRunnerExitStatus(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := &ExecRunner{Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
	_, err := r.Run(context.Background(), Invocation{Stage: "zip", Argv: []string{"sh", "-c", "exit 5"}})
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if ee.Code != 5 || ExitCode(err) != 5 {
		t.Fatalf("unexpected exit code: %d", ee.Code)
	}
}

func TestExecRunnerEmptyArgv(t *testing.T) {
	r := &ExecRunner{}
	if _, err := r.Run(context.Background(), Invocation{}); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestLineWriterSplitsLines(t *testing.T) {
	var logs bytes.Buffer
	w := newLineWriter(slog.New(slog.NewTextHandler(&logs, nil)))
	_, _ = w.Write([]byte("first\nsec"))
	_, _ = w.Write([]byte("ond\n\n"))
	_, _ = w.Write([]byte("tail"))
	w.Flush()
	out := logs.String()
	for _, want := range []string{"msg=first", "msg=second", "msg=tail"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
	if n := strings.Count(out, "\n"); n != 3 {
		t.Fatalf("expected 3 records, got %d: %s", n, out)
	}
}

func TestExecRunnerTimeoutWithLingeringChild(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := &ExecRunner{
		Logger:    slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Timeout:   100 * time.Millisecond,
		WaitDelay: 100 * time.Millisecond,
	}
	start := time.Now()
	// the background sleep inherits stdout and outlives its killed parent
	_, err := r.Run(context.Background(), Invocation{Stage: "zip", Argv: []string{"sh", "-c", "sleep 30 & sleep 30"}})
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("step outlived its timeout: %v", elapsed)
	}
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if ExitCode(err) == 0 {
		t.Fatalf("expected non-zero exit code for %v", err)
	}
}

func TestExecRunnerExitedToolWithLingeringChild(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := &ExecRunner{
		Logger:    slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		WaitDelay: 100 * time.Millisecond,
	}
	start := time.Now()
	res, err := r.Run(context.Background(), Invocation{Stage: "locate", Argv: []string{"sh", "-c", "sleep 30 & echo done"}})
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("step waited on a background process: %v", elapsed)
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "done" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}
