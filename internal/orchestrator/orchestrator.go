// Package orchestrator drives one project run: validation, grouping,
// concurrent per-sample processing and the final project status.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/tendant/tenx-pipeline/internal/docstore"
	"github.com/tendant/tenx-pipeline/internal/metrics"
	"github.com/tendant/tenx-pipeline/internal/project"
	"github.com/tendant/tenx-pipeline/internal/samples"
	"github.com/tendant/tenx-pipeline/internal/storage"
	"github.com/tendant/tenx-pipeline/internal/workflows"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

// Submitter processes one sample and returns its result
type Submitter interface {
	Submit(ctx context.Context, req workflows.SampleRequest) pipeline.ProcessingResult
}

// Options are the realm settings a run is checked against
type Options struct {
	// TenxDir is the parent of every project output directory
	TenxDir string
	// RequiredFields are dotted paths every project document must contain
	RequiredFields []string
	// SupportedOrganisms restricts the accepted organisms; empty accepts any
	SupportedOrganisms map[string]string
	// MaxParallel bounds concurrent samples; 0 runs all samples at once
	MaxParallel int
}

// Dependencies are the collaborators of the orchestrator
type Dependencies struct {
	Store      docstore.Store
	Filesystem storage.Filesystem
	Grouper    *samples.Grouper
	Resolver   *samples.Resolver
	Submitter  Submitter
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Orchestrator runs projects
type Orchestrator struct {
	deps    Dependencies
	options Options
}

// New creates an orchestrator
func New(deps Dependencies, options Options) *Orchestrator {
	return &Orchestrator{deps: deps, options: options}
}

// Run processes the project stored under key with a fresh run id
func (o *Orchestrator) Run(ctx context.Context, key string) RunResult {
	return o.RunWithID(ctx, uuid.New().String(), key)
}

// RunWithID processes the project stored under key. It never panics and
// never returns an error: the outcome of the run is in the result.
func (o *Orchestrator) RunWithID(ctx context.Context, runID, key string) (result RunResult) {
	logger := o.deps.Logger.With("run_id", runID, "project", key)
	result = RunResult{RunID: runID, ProjectKey: key, Status: pipeline.StatusInitialized}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("project run panicked", "panic", fmt.Sprint(r))
			result.Outcome = pipeline.OutcomeFailed
			result.Reason = fmt.Sprintf("internal error: %v", r)
			// A run that got past the processing transition must not be
			// left there
			if result.Status == pipeline.StatusProcessing {
				result.Status = pipeline.StatusFailedPartial
				o.finishAfterPanic(ctx, logger, key, result)
			}
		}
	}()

	doc, err := o.deps.Store.Load(ctx, key)
	if err != nil {
		logger.Error("failed to load project document", "error", err)
		return result.fail(err.Error())
	}

	// Nothing may be written before the document passes the gate
	if missing := project.CheckRequiredFields(doc.Raw(), o.options.RequiredFields); len(missing) > 0 {
		logger.Warn("missing required project information", "missing", missing)
		return result.fail("missing required fields: " + strings.Join(missing, ", "))
	}

	info := project.ExtractInfo(doc, logger)
	if info.IsZero() {
		return result.fail("project information could not be extracted")
	}
	logger = logger.With("project_name", info.ProjectName)

	organism, ok := project.DetermineOrganism(info, o.options.SupportedOrganisms)
	if !ok {
		logger.Warn("project organism not specified or unsupported; handle manually",
			"reference_genome", info.ReferenceGenome, "organism", info.Organism)
		return result.fail("organism could not be determined")
	}

	projectDir := filepath.Join(o.options.TenxDir, info.ProjectName)
	if err := o.deps.Filesystem.EnsureDir(ctx, projectDir); err != nil {
		logger.Error("failed to create project directory", "path", projectDir, "error", err)
		return result.fail("project directory unavailable: " + err.Error())
	}

	result.Status = pipeline.StatusProcessing
	o.save(ctx, logger, key, docstore.StatusUpdate{RunID: runID, Status: result.Status})

	groups := o.deps.Grouper.Group(doc.Samples, info)
	if len(groups) == 0 {
		logger.Warn("no samples found for processing")
		result.Status = pipeline.StatusCompleted
		result.Outcome = pipeline.OutcomeSkipped
		result.Reason = "no samples"
		o.finish(ctx, logger, key, result)
		return result
	}

	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID()
	}
	logger.Info("samples to be processed", "samples", ids, "case_type", info.CaseType)

	result.Samples = o.dispatch(ctx, logger, runID, projectDir, organism, groups)

	failed := result.FailedSamples()
	if len(failed) == 0 {
		result.Status = pipeline.StatusCompleted
		result.Outcome = pipeline.OutcomeSuccess
	} else {
		result.Status = pipeline.StatusFailedPartial
		result.Outcome = pipeline.OutcomeFailed
		result.Reason = fmt.Sprintf("%d of %d samples failed: %s", len(failed), len(result.Samples), strings.Join(failed, ", "))
	}
	o.finish(ctx, logger, key, result)
	return result
}

// dispatch processes every group concurrently and returns one result per
// group, in group order
func (o *Orchestrator) dispatch(ctx context.Context, logger *slog.Logger, runID, projectDir, organism string, groups []samples.Sample) []pipeline.ProcessingResult {
	results := make([]pipeline.ProcessingResult, len(groups))

	limit := o.options.MaxParallel
	if limit <= 0 || limit > len(groups) {
		limit = len(groups)
	}
	p := pool.New().WithMaxGoroutines(limit)

	for i, sample := range groups {
		if !o.deps.Resolver.Resolve(sample) {
			results[i] = pipeline.Skipped(sample.ID(),
				fmt.Sprintf("no pipeline configured for %s with features %v", sample.Info().LibraryPrepMethod, sample.Features()))
			o.deps.Metrics.ObserveSample(results[i])
			continue
		}

		req := workflows.NewSampleRequest(runID, projectDir, organism, sample)
		p.Go(func() {
			results[i] = o.process(ctx, logger, req)
		})
	}
	p.Wait()

	return results
}

// process runs one sample task. Cancellation is honored before the task
// starts; a panic becomes a failed result.
func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, req workflows.SampleRequest) (result pipeline.ProcessingResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sample task panicked", "sample", req.SampleID, "panic", fmt.Sprint(r))
			result = pipeline.Failed(req.SampleID, fmt.Sprintf("internal error: %v", r))
			result.Pipeline = req.Rule.Pipeline
		}
		o.deps.Metrics.ObserveSample(result)
	}()

	if err := ctx.Err(); err != nil {
		logger.Warn("sample not started", "sample", req.SampleID, "error", err)
		result = pipeline.Failed(req.SampleID, err.Error())
		result.Pipeline = req.Rule.Pipeline
		return result
	}

	done := o.deps.Metrics.TrackSample()
	defer done()

	return o.deps.Submitter.Submit(ctx, req)
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, key string, result RunResult) {
	o.save(ctx, logger, key, docstore.StatusUpdate{
		RunID:   result.RunID,
		Status:  result.Status,
		Samples: result.Samples,
	})
	o.deps.Metrics.ObserveProject(result.Status)

	for _, r := range result.Samples {
		logger.Info("sample result", "sample", r.SampleID, "outcome", r.Outcome, "reason", r.Reason, "job_id", r.JobID)
	}
	logger.Info("project finalized", "status", result.Status)
}

// finishAfterPanic finalizes a run whose processing panicked. A second panic
// is logged and dropped.
func (o *Orchestrator) finishAfterPanic(ctx context.Context, logger *slog.Logger, key string, result RunResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("failed to finalize panicked run", "panic", fmt.Sprint(r))
		}
	}()
	o.finish(ctx, logger, key, result)
}

// save persists a status transition. Store failures are logged and do not
// change the outcome of the run.
func (o *Orchestrator) save(ctx context.Context, logger *slog.Logger, key string, update docstore.StatusUpdate) {
	// The final status is written even when the run context was cancelled
	if err := o.deps.Store.SaveStatus(context.WithoutCancel(ctx), key, update); err != nil {
		logger.Error("failed to save project status", "status", update.Status, "error", err)
	}
}
