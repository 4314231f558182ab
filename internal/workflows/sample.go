package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/gobwas/glob"

	"github.com/tendant/tenx-pipeline/internal/executors"
	"github.com/tendant/tenx-pipeline/internal/storage"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

// FastqDirs are the FASTQ directories found for one member, per flowcell in
// flowcell order
type FastqDirs struct {
	SampleID  string
	Feature   string
	Flowcells []string
	Paths     map[string][]string
}

// All returns every directory in flowcell order
func (f FastqDirs) All() []string {
	var all []string
	for _, fc := range f.Flowcells {
		all = append(all, f.Paths[fc]...)
	}
	return all
}

// SampleWorkflow prepares, submits and verifies the pipeline run of one
// grouped sample
type SampleWorkflow struct {
	fs       storage.Filesystem
	executor executors.Executor
	settings Settings
	script   *template.Template
	logger   *slog.Logger
}

// NewSampleWorkflow creates a sample workflow. It fails when the job
// template does not parse.
func NewSampleWorkflow(fs storage.Filesystem, executor executors.Executor, settings Settings, logger *slog.Logger) (*SampleWorkflow, error) {
	source := settings.JobTemplate
	if source == "" {
		source = DefaultJobTemplate
	}
	script, err := template.New("job").Option("missingkey=error").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: job template: %v", ErrInvalidRequest, err)
	}
	return &SampleWorkflow{
		fs:       fs,
		executor: executor,
		settings: settings,
		script:   script,
		logger:   logger,
	}, nil
}

// Name returns the workflow name
func (w *SampleWorkflow) Name() string {
	return "SampleWorkflow"
}

// Prepared is a sample whose job script is written. Result is set when the
// sample ended before a job could be submitted.
type Prepared struct {
	StartedAt time.Time                  `json:"started_at"`
	Job       executors.Job              `json:"job"`
	Result    *pipeline.ProcessingResult `json:"result,omitempty"`
}

// Execute runs every step for the sample. Failures are reported in the
// result, never as a panic or an error value.
func (w *SampleWorkflow) Execute(ctx context.Context, req SampleRequest) pipeline.ProcessingResult {
	prepared := w.Prepare(ctx, req)
	if prepared.Result != nil {
		return w.Complete(req, prepared, *prepared.Result)
	}

	jobID, err := w.SubmitJob(ctx, req, prepared.Job)
	if err != nil {
		return w.Verify(ctx, req, prepared, executors.JobResult{JobID: jobID}, err)
	}
	job, err := executors.Wait(ctx, w.executor, jobID)
	return w.Verify(ctx, req, prepared, job, err)
}

// Complete stamps the result with the sample, its pipeline and the time
// since preparation started
func (w *SampleWorkflow) Complete(req SampleRequest, prepared Prepared, result pipeline.ProcessingResult) pipeline.ProcessingResult {
	result.SampleID = req.SampleID
	result.Pipeline = req.Rule.Pipeline
	result.Duration = time.Since(prepared.StartedAt)
	return result
}

// PollInterval is how long to wait between polls of a running job
func (w *SampleWorkflow) PollInterval() time.Duration {
	if interval := w.executor.PollInterval(); interval > 0 {
		return interval
	}
	return time.Second
}

func (w *SampleWorkflow) sampleLogger(req SampleRequest) *slog.Logger {
	return w.logger.With("run_id", req.RunID, "project", req.Project.ProjectName, "sample", req.SampleID)
}

// Prepare locates the inputs of the sample and writes its job script
func (w *SampleWorkflow) Prepare(ctx context.Context, req SampleRequest) Prepared {
	prepared := Prepared{StartedAt: time.Now()}
	end := func(result pipeline.ProcessingResult) Prepared {
		prepared.Result = &result
		return prepared
	}

	logger := w.sampleLogger(req)
	logger.Info("processing sample", "pipeline", req.Rule.Pipeline, "members", len(req.Members))

	if len(req.Members) == 0 || req.ProjectDir == "" {
		return end(pipeline.Failed(req.SampleID, ErrInvalidRequest.Error()))
	}

	// Step 1: Locate FASTQ directories of every member
	fastqs, err := w.locateFastqs(ctx, req, logger)
	if err != nil {
		logger.Error("cannot process sample", "error", err)
		return end(pipeline.Failed(req.SampleID, err.Error()))
	}

	// Step 2: Collect reference genomes
	references, err := w.collectReferences(req, logger)
	if err != nil {
		logger.Error("cannot process sample", "error", err)
		return end(pipeline.Failed(req.SampleID, err.Error()))
	}

	// Step 3: Ensure the sample directory
	sampleDir := filepath.Join(req.ProjectDir, req.SampleID)
	if err := w.fs.EnsureDir(ctx, sampleDir); err != nil {
		logger.Error("failed to create sample directory", "error", err)
		return end(pipeline.Failed(req.SampleID, err.Error()))
	}

	// Step 4: Generate the files the pipeline reads
	if req.Rule.LibrariesCSV {
		data, err := LibrariesCSV(fastqs, w.settings.FeatureToLibraryType, logger)
		if err != nil {
			return end(pipeline.Failed(req.SampleID, err.Error()))
		}
		if err := w.fs.WriteFile(ctx, librariesPath(req), data); err != nil {
			logger.Error("failed to write libraries CSV", "error", err)
			return end(pipeline.Failed(req.SampleID, err.Error()))
		}
		logger.Info("libraries CSV written", "path", librariesPath(req))
	}
	if req.Rule.FeatureRef || req.Rule.MultiCSV {
		logger.Warn("feature reference and multi CSV files are not generated; provide them manually",
			"feature_ref", req.Rule.FeatureRef, "multi_csv", req.Rule.MultiCSV)
	}

	// Step 5: Assemble the pipeline command and render the job script
	command := AssembleCommand(req, fastqs, references)
	scriptPath := filepath.Join(req.ProjectDir, req.SampleID+"_slurm_script.sh")
	script, err := w.renderScript(ScriptData{
		SampleID:    req.SampleID,
		ProjectName: req.Project.ProjectName,
		ProjectDir:  req.ProjectDir,
		SampleDir:   sampleDir,
		Command:     command,
	})
	if err != nil {
		logger.Error("failed to render job script", "error", err)
		return end(pipeline.Failed(req.SampleID, err.Error()))
	}
	if err := w.fs.WriteFile(ctx, scriptPath, script); err != nil {
		logger.Error("failed to write job script", "error", err)
		return end(pipeline.Failed(req.SampleID, err.Error()))
	}

	// Step 6: Respect rules that must be submitted by hand
	if !req.Rule.Submit {
		logger.Info("job script written but not submitted; handle manually", "script", scriptPath)
		return end(pipeline.Skipped(req.SampleID, "manual submission"))
	}

	prepared.Job = executors.Job{
		Name:       req.Project.ProjectName + "_" + req.SampleID,
		ScriptPath: scriptPath,
		WorkDir:    req.ProjectDir,
	}
	return prepared
}

// SubmitJob hands the prepared job to the executor and returns its job id
func (w *SampleWorkflow) SubmitJob(ctx context.Context, req SampleRequest, job executors.Job) (string, error) {
	jobID, err := w.executor.Submit(ctx, job)
	if err != nil {
		w.sampleLogger(req).Error("failed to submit job", "script", job.ScriptPath, "error", err)
		return jobID, err
	}
	return jobID, nil
}

// PollJob queries the state of a submitted job once
func (w *SampleWorkflow) PollJob(ctx context.Context, jobID string) (executors.JobResult, error) {
	return w.executor.Poll(ctx, jobID)
}

// Verify turns the final state of the job into the sample result. A job
// that completed must have left its output summary unless it was simulated.
func (w *SampleWorkflow) Verify(ctx context.Context, req SampleRequest, prepared Prepared, job executors.JobResult, jobErr error) pipeline.ProcessingResult {
	logger := w.sampleLogger(req)
	failed := func(reason string) pipeline.ProcessingResult {
		result := pipeline.Failed(req.SampleID, reason)
		result.JobID = job.JobID
		return w.Complete(req, prepared, result)
	}

	// Step 7: Check the job ended well
	if jobErr != nil {
		logger.Error("job did not complete", "job_id", job.JobID, "error", jobErr)
		return failed(jobErr.Error())
	}
	if !job.Succeeded() {
		logger.Error("job failed", "job_id", job.JobID, "state", job.State)
		return failed(fmt.Sprintf("job %s ended in state %s", job.JobID, job.State))
	}

	// Step 8: Verify the pipeline output
	if !job.Simulated {
		summary := SummaryPath(req)
		exists, err := w.fs.Exists(ctx, summary)
		if err != nil || !exists {
			logger.Error("pipeline output summary missing", "job_id", job.JobID, "path", summary, "error", err)
			return failed("missing output summary " + summary)
		}
	}

	logger.Info("sample processed", "job_id", job.JobID)
	result := pipeline.Succeeded(req.SampleID)
	result.JobID = job.JobID
	return w.Complete(req, prepared, result)
}

// locateFastqs globs <seq_root>/<project_id>/<sample_id>/*/<flowcell> for
// every flowcell of every member. Members without any directory are reported
// together.
func (w *SampleWorkflow) locateFastqs(ctx context.Context, req SampleRequest, logger *slog.Logger) ([]FastqDirs, error) {
	var (
		found   []FastqDirs
		missing []string
	)
	for _, member := range req.Members {
		dirs := FastqDirs{
			SampleID: member.SampleID,
			Feature:  member.Feature,
			Paths:    make(map[string][]string),
		}
		for _, fc := range member.Record.Flowcells() {
			pattern := filepath.Join(
				w.settings.SeqRootDir,
				glob.QuoteMeta(req.Project.ProjectID),
				glob.QuoteMeta(member.SampleID),
				"*",
				glob.QuoteMeta(fc),
			)
			paths, err := w.fs.Glob(ctx, pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: locate FASTQ directories: %v", ErrStepFailed, err)
			}
			if len(paths) == 0 {
				logger.Warn("no FASTQ directory for flowcell", "member", member.SampleID, "flowcell", fc)
				continue
			}
			dirs.Flowcells = append(dirs.Flowcells, fc)
			dirs.Paths[fc] = paths
		}
		if len(dirs.Flowcells) == 0 {
			missing = append(missing, member.SampleID)
			continue
		}
		found = append(found, dirs)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w for %s", ErrMissingFastq, strings.Join(missing, ", "))
	}
	return found, nil
}

// collectReferences maps reference keys to the reference genome of the
// project organism. Features without a reference key are logged and skipped.
func (w *SampleWorkflow) collectReferences(req SampleRequest, logger *slog.Logger) (map[string]string, error) {
	references := make(map[string]string)
	for _, member := range req.Members {
		refKey, ok := w.settings.FeatureToRefKey[member.Feature]
		if !ok {
			logger.Warn("feature has no reference key", "member", member.SampleID, "feature", member.Feature)
			continue
		}
		reference := w.settings.ReferenceMapping[refKey][req.Organism]
		if reference == "" {
			return nil, fmt.Errorf("%w: %s reference for organism %q (member %s)", ErrMissingReference, refKey, req.Organism, member.SampleID)
		}
		references[refKey] = reference
	}
	return references, nil
}

func (w *SampleWorkflow) renderScript(data ScriptData) ([]byte, error) {
	var b strings.Builder
	if err := w.script.Execute(&b, data); err != nil {
		return nil, errors.Join(ErrStepFailed, err)
	}
	return []byte(b.String()), nil
}

// SummaryPath is where the pipeline leaves its run summary
func SummaryPath(req SampleRequest) string {
	return filepath.Join(req.ProjectDir, req.SampleID, "outs", "web_summary.html")
}

func librariesPath(req SampleRequest) string {
	return filepath.Join(req.ProjectDir, req.SampleID+"_libraries.csv")
}
