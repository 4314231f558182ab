package executors

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

var (
	submittedPattern = regexp.MustCompile(`Submitted batch job (\d+)`)
	digitsPattern    = regexp.MustCompile(`\d+`)
)

// SlurmConfig configures the Slurm executor
type SlurmConfig struct {
	PollInterval   time.Duration
	CommandTimeout time.Duration
}

// WithDefaults fills in default values for optional fields
func (c *SlurmConfig) WithDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 8 * time.Second
	}
}

// Slurm submits job scripts with sbatch and queries their state with sacct
type Slurm struct {
	config SlurmConfig
	run    CommandFunc
	logger *slog.Logger
}

// NewSlurm creates a Slurm executor. A nil run uses RunCommand.
func NewSlurm(cfg SlurmConfig, run CommandFunc, logger *slog.Logger) *Slurm {
	cfg.WithDefaults()
	if run == nil {
		run = RunCommand
	}
	return &Slurm{config: cfg, run: run, logger: logger}
}

// Submit implements Executor
func (s *Slurm) Submit(ctx context.Context, job Job) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.CommandTimeout)
	defer cancel()

	out, err := s.run(callCtx, job.WorkDir, "sbatch", job.ScriptPath)
	if err != nil {
		return "", fmt.Errorf("%w: sbatch %s: %v", ErrSubmitFailed, job.ScriptPath, err)
	}
	jobID, ok := ParseJobID(string(out))
	if !ok {
		return "", fmt.Errorf("%w: no job id in sbatch output %q", ErrSubmitFailed, strings.TrimSpace(string(out)))
	}
	s.logger.Info("job submitted", "job", job.Name, "job_id", jobID)
	return jobID, nil
}

// Poll implements Executor
func (s *Slurm) Poll(ctx context.Context, jobID string) (JobResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.CommandTimeout)
	defer cancel()

	out, err := s.run(callCtx, "", "sacct", "-n", "-X", "-o", "State", "-j", jobID)
	if err != nil {
		s.logger.Warn("failed to query job state", "job_id", jobID, "error", err)
		return JobResult{JobID: jobID}, fmt.Errorf("sacct %s: %w", jobID, err)
	}
	state := ParseState(out)
	if IsTerminal(state) {
		s.logger.Info("job finished", "job_id", jobID, "state", state)
	}
	return JobResult{JobID: jobID, State: state}, nil
}

// PollInterval implements Executor
func (s *Slurm) PollInterval() time.Duration {
	return s.config.PollInterval
}

// ParseJobID extracts the job id from sbatch output
func ParseJobID(output string) (string, bool) {
	if m := submittedPattern.FindStringSubmatch(output); m != nil {
		return m[1], true
	}
	if m := digitsPattern.FindString(output); m != "" {
		return m, true
	}
	return "", false
}

// ParseState returns the first non-empty state reported by sacct
func ParseState(output []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if fields := strings.Fields(scanner.Text()); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// IsTerminal reports whether a sacct state is final. sacct truncates long
// states and marks them with a trailing "+".
func IsTerminal(state string) bool {
	switch strings.TrimSuffix(state, "+") {
	case StateCompleted, StateFailed, "CANCELLED", "TIMEOUT", "OUT_OF_ME", "OUT_OF_MEMORY", "NODE_FAIL", "PREEMPTED", "BOOT_FAIL", "DEADLINE":
		return true
	}
	return false
}
