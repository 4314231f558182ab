package workflows

import "errors"

var (
	// ErrMissingFastq is returned when a member has no FASTQ directory
	ErrMissingFastq = errors.New("missing FASTQ files")

	// ErrMissingReference is returned when no reference genome is configured
	// for a member's feature and the project organism
	ErrMissingReference = errors.New("missing reference genome")

	// ErrStepFailed is returned when a workflow step fails
	ErrStepFailed = errors.New("workflow step failed")

	// ErrInvalidRequest is returned when the request is invalid
	ErrInvalidRequest = errors.New("invalid workflow request")
)
