package workflows

import (
	"github.com/tendant/tenx-pipeline/internal/decision"
	"github.com/tendant/tenx-pipeline/internal/project"
	"github.com/tendant/tenx-pipeline/internal/samples"
)

// SampleRequest is the unit of work for one grouped sample. It only holds
// plain data so it can be checkpointed by the durable runtime.
type SampleRequest struct {
	RunID      string           `json:"run_id"`
	Project    project.Info     `json:"project"`
	Organism   string           `json:"organism"`
	ProjectDir string           `json:"project_dir"`
	SampleID   string           `json:"sample_id"`
	Members    []samples.Member `json:"members"`
	Rule       decision.Rule    `json:"rule"`
}

// NewSampleRequest builds the request for a resolved sample
func NewSampleRequest(runID, projectDir, organism string, sample samples.Sample) SampleRequest {
	req := SampleRequest{
		RunID:      runID,
		Project:    sample.Info(),
		Organism:   organism,
		ProjectDir: projectDir,
		SampleID:   sample.ID(),
		Members:    sample.Members(),
	}
	if rule := sample.Rule(); rule != nil {
		req.Rule = *rule
	}
	return req
}

// Settings holds the realm configuration the sample workflow reads
type Settings struct {
	// SeqRootDir is the root of the demultiplexed sequencing output
	SeqRootDir string

	// JobTemplate is the text/template source of the job script.
	// Optional. Defaults to DefaultJobTemplate
	JobTemplate string

	// FeatureToLibraryType maps a feature to its libraries CSV library type
	FeatureToLibraryType map[string]string

	// FeatureToRefKey maps a feature to its key in ReferenceMapping
	FeatureToRefKey map[string]string

	// ReferenceMapping maps a reference key and organism to a reference path
	ReferenceMapping map[string]map[string]string
}

// DefaultJobTemplate is the job script used when none is configured
const DefaultJobTemplate = `#!/bin/bash
#SBATCH --job-name={{.ProjectName}}_{{.SampleID}}
#SBATCH --output={{.ProjectDir}}/{{.SampleID}}.out
#SBATCH --error={{.ProjectDir}}/{{.SampleID}}.err

cd {{.ProjectDir}}

{{.Command}}
`

// ScriptData is the data a job template is rendered with
type ScriptData struct {
	SampleID    string
	ProjectName string
	ProjectDir  string
	SampleDir   string
	Command     string
}
