package service

import (
	"context"
	"fmt"
	"time"

	"github.com/k8ika0s/finaljob/internal/runner"
)

// Stage is one step of the final job. Commands is called only after every earlier stage
// succeeded, so it may depend on what those stages left behind.
type Stage struct {
	Name     string
	Commands func(ctx context.Context) ([]runner.Invocation, error)
	// Done runs once every invocation of the stage exited cleanly.
	Done func() error
}

// StageError names the stage a run stopped in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// StepHook observes every invocation; err is nil for a start notification.
type StepHook func(inv runner.Invocation, finished bool, dur time.Duration, err error)

// RunStages executes stages and their invocations strictly in order and stops at the
// first failure.
func RunStages(ctx context.Context, r runner.Runner, stages []Stage, hook StepHook) error {
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: st.Name, Err: err}
		}
		var invs []runner.Invocation
		if st.Commands != nil {
			var err error
			invs, err = st.Commands(ctx)
			if err != nil {
				return &StageError{Stage: st.Name, Err: err}
			}
		}
		for _, inv := range invs {
			if inv.Stage == "" {
				inv.Stage = st.Name
			}
			if hook != nil {
				hook(inv, false, 0, nil)
			}
			res, err := r.Run(ctx, inv)
			if hook != nil {
				hook(inv, true, res.Duration, err)
			}
			if err != nil {
				return &StageError{Stage: st.Name, Err: err}
			}
		}
		if st.Done != nil {
			if err := st.Done(); err != nil {
				return &StageError{Stage: st.Name, Err: err}
			}
		}
	}
	return nil
}
