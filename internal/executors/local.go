package executors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Local runs job scripts with bash on this host. A job has ended by the time
// Submit returns.
type Local struct {
	run    CommandFunc
	logger *slog.Logger
	seq    atomic.Int64

	mu      sync.Mutex
	results map[string]JobResult
}

// NewLocal creates a local executor. A nil run uses RunCommand.
func NewLocal(run CommandFunc, logger *slog.Logger) *Local {
	if run == nil {
		run = RunCommand
	}
	return &Local{run: run, logger: logger, results: make(map[string]JobResult)}
}

// Submit implements Executor
func (l *Local) Submit(ctx context.Context, job Job) (string, error) {
	jobID := fmt.Sprintf("local-%d", l.seq.Add(1))
	l.logger.Info("running job", "job", job.Name, "job_id", jobID, "script", job.ScriptPath)

	result := JobResult{JobID: jobID, State: StateCompleted}
	if _, err := l.run(ctx, job.WorkDir, "bash", job.ScriptPath); err != nil {
		if ctx.Err() != nil {
			return jobID, ctx.Err()
		}
		l.logger.Warn("job failed", "job", job.Name, "job_id", jobID, "error", err)
		result.State = StateFailed
	}

	l.mu.Lock()
	l.results[jobID] = result
	l.mu.Unlock()
	return jobID, nil
}

// Poll implements Executor
func (l *Local) Poll(ctx context.Context, jobID string) (JobResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	result, ok := l.results[jobID]
	if !ok {
		return JobResult{JobID: jobID}, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	return result, nil
}

// PollInterval implements Executor
func (l *Local) PollInterval() time.Duration {
	return time.Second
}
