package orchestrator

import "github.com/tendant/tenx-pipeline/pkg/pipeline"

// RunResult is the outcome of one project run
type RunResult struct {
	RunID      string                      `json:"run_id"`
	ProjectKey string                      `json:"project_key"`
	Status     pipeline.ProjectStatus      `json:"status"`
	Outcome    pipeline.Outcome            `json:"outcome"`
	Reason     string                      `json:"reason,omitempty"`
	Samples    []pipeline.ProcessingResult `json:"samples"`
}

// Succeeded reports whether every dispatched sample was processed or skipped
func (r RunResult) Succeeded() bool { return r.Outcome == pipeline.OutcomeSuccess }

// Skipped reports whether the run had nothing to process
func (r RunResult) Skipped() bool { return r.Outcome == pipeline.OutcomeSkipped }

// Failed reports whether the run stopped early or a sample failed
func (r RunResult) Failed() bool { return r.Outcome == pipeline.OutcomeFailed }

// FailedSamples returns the ids of failed samples in dispatch order
func (r RunResult) FailedSamples() []string {
	var ids []string
	for _, s := range r.Samples {
		if s.Outcome == pipeline.OutcomeFailed {
			ids = append(ids, s.SampleID)
		}
	}
	return ids
}

func (r RunResult) fail(reason string) RunResult {
	r.Outcome = pipeline.OutcomeFailed
	r.Reason = reason
	return r
}
