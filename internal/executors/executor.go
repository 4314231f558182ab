// Package executors submits rendered job scripts and waits for them to finish.
package executors

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrSubmitFailed is returned when a job could not be submitted
	ErrSubmitFailed = errors.New("job submission failed")

	// ErrUnknownExecutor is returned for an unsupported executor kind
	ErrUnknownExecutor = errors.New("unknown executor")

	// ErrUnknownJob is returned when polling a job id the executor never issued
	ErrUnknownJob = errors.New("unknown job")
)

// Terminal job states
const (
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
)

// Job is a rendered job script ready for submission
type Job struct {
	Name       string
	ScriptPath string
	WorkDir    string
}

// JobResult is the state of a submitted job
type JobResult struct {
	JobID string
	State string
	// Simulated is set when no job actually ran, so no outputs exist
	Simulated bool
}

// Succeeded reports whether the job completed
func (r JobResult) Succeeded() bool {
	return r.State == StateCompleted
}

// Terminal reports whether the job has ended
func (r JobResult) Terminal() bool {
	return IsTerminal(r.State)
}

// Executor hands jobs to a scheduler and reports their state
type Executor interface {
	// Submit hands the job off and returns its job id without waiting
	Submit(ctx context.Context, job Job) (string, error)

	// Poll queries the current state of a submitted job once
	Poll(ctx context.Context, jobID string) (JobResult, error)

	// PollInterval is how long to wait between polls of an unfinished job
	PollInterval() time.Duration
}

// Wait polls the job until it reaches a terminal state. A failed poll is
// retried on the next tick.
func Wait(ctx context.Context, e Executor, jobID string) (JobResult, error) {
	interval := e.PollInterval()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := JobResult{JobID: jobID}
	for {
		result, err := e.Poll(ctx, jobID)
		if errors.Is(err, ErrUnknownJob) {
			return last, err
		}
		if err == nil {
			last = result
			if result.Terminal() {
				return result, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CommandFunc runs an external command and returns its standard output
type CommandFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// RunCommand is the CommandFunc backed by os/exec
func RunCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, errors.Join(err, errors.New(strings.TrimSpace(stderr.String())))
	}
	return out, err
}
