package workflows

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/tendant/tenx-pipeline/internal/dbosruntime"
	"github.com/tendant/tenx-pipeline/internal/executors"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

// Runner executes sample workflows, durably when a DBOS runtime is
// configured and inline otherwise
type Runner struct {
	workflow    *SampleWorkflow
	dbosRuntime *dbosruntime.Runtime
	logger      *slog.Logger
}

// NewRunner creates a runner. The DBOS workflow is registered here, so a
// runtime must not be launched before its runner is created.
func NewRunner(workflow *SampleWorkflow, dbosRuntime *dbosruntime.Runtime, logger *slog.Logger) *Runner {
	runner := &Runner{
		workflow:    workflow,
		dbosRuntime: dbosRuntime,
		logger:      logger,
	}

	if dbosRuntime != nil {
		dbos.RegisterWorkflow(dbosRuntime.Context(), runner.executeWorkflowDBOS)
	}

	return runner
}

// Durable reports whether samples run as DBOS workflows
func (r *Runner) Durable() bool {
	return r.dbosRuntime != nil
}

// Submit processes one sample and waits for its result
func (r *Runner) Submit(ctx context.Context, req SampleRequest) pipeline.ProcessingResult {
	if r.dbosRuntime == nil {
		return r.workflow.Execute(ctx, req)
	}

	// Workflow ids are unique per run and sample. Enqueueing an id again
	// attaches to the existing workflow instead of starting a new one.
	workflowID := req.RunID + "-" + req.SampleID

	handle, err := dbos.RunWorkflow[SampleRequest, pipeline.ProcessingResult](
		r.dbosRuntime.Context(),
		r.executeWorkflowDBOS,
		req,
		dbos.WithWorkflowID(workflowID),
		dbos.WithQueue(r.dbosRuntime.QueueName()),
	)
	if err != nil {
		r.logger.Error("failed to enqueue sample workflow", "run_id", req.RunID, "sample", req.SampleID, "error", err)
		return pipeline.Failed(req.SampleID, err.Error())
	}

	type outcome struct {
		result pipeline.ProcessingResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := handle.GetResult()
		done <- outcome{result, err}
	}()

	select {
	case <-ctx.Done():
		// The durable workflow keeps running and is recovered on restart
		return pipeline.Failed(req.SampleID, ctx.Err().Error())
	case o := <-done:
		if o.err != nil {
			return pipeline.Failed(req.SampleID, o.err.Error())
		}
		return o.result
	}
}

// executeWorkflowDBOS is the DBOS workflow function that wraps the sample
// workflow. Preparation, the sbatch submission and every poll are
// checkpointed steps, so a recovered workflow resumes waiting on the job it
// already submitted.
func (r *Runner) executeWorkflowDBOS(dbosCtx dbos.DBOSContext, req SampleRequest) (pipeline.ProcessingResult, error) {
	prepared, err := dbos.RunAsStep(dbosCtx, func(ctx context.Context) (Prepared, error) {
		return r.workflow.Prepare(ctx, req), nil
	}, dbos.WithStepName("prepare"))
	if err != nil {
		return pipeline.ProcessingResult{}, err
	}
	if prepared.Result != nil {
		return r.workflow.Complete(req, prepared, *prepared.Result), nil
	}

	jobID, err := dbos.RunAsStep(dbosCtx, func(ctx context.Context) (string, error) {
		return r.workflow.SubmitJob(ctx, req, prepared.Job)
	}, dbos.WithStepName("submit"))
	if err != nil {
		return r.workflow.Verify(dbosCtx, req, prepared, executors.JobResult{JobID: jobID}, err), nil
	}

	for {
		job, err := dbos.RunAsStep(dbosCtx, func(ctx context.Context) (executors.JobResult, error) {
			return r.workflow.PollJob(ctx, jobID)
		}, dbos.WithStepName("poll"))
		switch {
		case errors.Is(err, executors.ErrUnknownJob):
			return r.workflow.Verify(dbosCtx, req, prepared, job, err), nil
		case err == nil && job.Terminal():
			return r.workflow.Verify(dbosCtx, req, prepared, job, nil), nil
		case dbosCtx.Err() != nil:
			return pipeline.ProcessingResult{}, dbosCtx.Err()
		}

		if _, err := dbos.Sleep(dbosCtx, r.workflow.PollInterval()); err != nil {
			return pipeline.ProcessingResult{}, err
		}
	}
}
