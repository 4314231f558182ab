package executors

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

const dryRunPrefix = "dryrun-"

// DryRun records jobs without running them
type DryRun struct {
	mu     sync.Mutex
	jobs   []Job
	logger *slog.Logger
}

// NewDryRun creates a dry-run executor
func NewDryRun(logger *slog.Logger) *DryRun {
	return &DryRun{logger: logger}
}

// Submit implements Executor
func (d *DryRun) Submit(ctx context.Context, job Job) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.Lock()
	d.jobs = append(d.jobs, job)
	jobID := fmt.Sprintf("%s%d", dryRunPrefix, len(d.jobs))
	d.mu.Unlock()

	d.logger.Info("dry run: job not submitted", "job", job.Name, "job_id", jobID, "script", job.ScriptPath)
	return jobID, nil
}

// Poll implements Executor. Every dry-run job is reported as completed.
func (d *DryRun) Poll(ctx context.Context, jobID string) (JobResult, error) {
	if !strings.HasPrefix(jobID, dryRunPrefix) {
		return JobResult{JobID: jobID}, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	return JobResult{JobID: jobID, State: StateCompleted, Simulated: true}, nil
}

// PollInterval implements Executor
func (d *DryRun) PollInterval() time.Duration {
	return 0
}

// Jobs returns the recorded jobs in submission order
func (d *DryRun) Jobs() []Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.jobs)
}
