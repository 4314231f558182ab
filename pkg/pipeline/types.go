package pipeline

import "time"

// ProcessRequest represents a request to process a project
type ProcessRequest struct {
	ProjectKey string `json:"project_key"`
}

// ProcessResponse represents the response from triggering processing
type ProcessResponse struct {
	RunID      string `json:"run_id"`
	ProjectKey string `json:"project_key"`
}

// ProjectStatusResponse is the persisted state of the last run of a project
type ProjectStatusResponse struct {
	ProjectKey string             `json:"project_key"`
	RunID      string             `json:"run_id"`
	Status     ProjectStatus      `json:"status"`
	Samples    []ProcessingResult `json:"samples"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// ProjectStatus is the lifecycle state of a project run
type ProjectStatus string

// ProjectStatus constants
const (
	StatusInitialized   ProjectStatus = "initialized"
	StatusProcessing    ProjectStatus = "processing"
	StatusCompleted     ProjectStatus = "completed"
	StatusFailedPartial ProjectStatus = "failed-partial"
)

// Outcome distinguishes success from a deliberate skip and from a failure,
// so a skipped sample is never counted as processed.
type Outcome string

// Outcome constants
const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ProcessingResult is the outcome of processing one grouped sample
type ProcessingResult struct {
	SampleID string        `json:"sample_id"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Pipeline string        `json:"pipeline,omitempty"`
	JobID    string        `json:"job_id,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Success reports whether the sample was processed successfully
func (r ProcessingResult) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// Succeeded builds a success result
func Succeeded(sampleID string) ProcessingResult {
	return ProcessingResult{SampleID: sampleID, Outcome: OutcomeSuccess}
}

// Skipped builds a skip result carrying the reason
func Skipped(sampleID, reason string) ProcessingResult {
	return ProcessingResult{SampleID: sampleID, Outcome: OutcomeSkipped, Reason: reason}
}

// Failed builds a failure result carrying the reason
func Failed(sampleID, reason string) ProcessingResult {
	return ProcessingResult{SampleID: sampleID, Outcome: OutcomeFailed, Reason: reason}
}
