// Package samples partitions the raw sample records of a project into
// original samples and composite samples, and attaches the pipeline rule
// that processes each of them.
package samples

import (
	"slices"

	"github.com/tendant/tenx-pipeline/internal/decision"
	"github.com/tendant/tenx-pipeline/internal/project"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

// Member is one raw record taking part in the processing of a grouped sample
type Member struct {
	SampleID string             `json:"sample_id"`
	Feature  string             `json:"feature"`
	Record   pipeline.RawSample `json:"record"`
}

// Sample is either an *OriginalSample or a *CompositeSample
type Sample interface {
	// ID is the original-sample id the group is processed under
	ID() string
	// Members are the records processed together, in grouping order
	Members() []Member
	// Features is the distinct, sorted feature set of the members
	Features() []string
	// Rule is the pipeline rule attached by the Resolver, nil until then
	Rule() *decision.Rule
	// Info is the metadata of the owning project
	Info() project.Info

	setRule(rule *decision.Rule)
}

// Subsample is a record carrying an auxiliary feature of an original sample
type Subsample struct {
	SampleID   string
	Feature    string
	OriginalID string
	Record     pipeline.RawSample
	Project    project.Info
}

// OriginalSample is a sample without subsamples
type OriginalSample struct {
	SampleID string
	// RecordID is the id of the backing record; it differs from SampleID
	// when a lone new_format subsample stands in for its original
	RecordID string
	Feature  string
	Record   pipeline.RawSample
	Project  project.Info
	Pipeline *decision.Rule
}

// ID implements Sample
func (s *OriginalSample) ID() string { return s.SampleID }

// Members implements Sample
func (s *OriginalSample) Members() []Member {
	return []Member{{SampleID: s.RecordID, Feature: s.Feature, Record: s.Record}}
}

// Features implements Sample
func (s *OriginalSample) Features() []string { return []string{s.Feature} }

// Rule implements Sample
func (s *OriginalSample) Rule() *decision.Rule { return s.Pipeline }

// Info implements Sample
func (s *OriginalSample) Info() project.Info { return s.Project }

func (s *OriginalSample) setRule(rule *decision.Rule) { s.Pipeline = rule }

// CompositeSample is an original sample bundled with the subsamples that
// share its biological source. Subsamples is never empty and every entry
// carries SampleID as its OriginalID.
type CompositeSample struct {
	SampleID   string
	Subsamples []Subsample
	Project    project.Info
	Pipeline   *decision.Rule
}

// ID implements Sample
func (s *CompositeSample) ID() string { return s.SampleID }

// Members implements Sample
func (s *CompositeSample) Members() []Member {
	members := make([]Member, 0, len(s.Subsamples))
	for _, sub := range s.Subsamples {
		members = append(members, Member{SampleID: sub.SampleID, Feature: sub.Feature, Record: sub.Record})
	}
	return members
}

// Features implements Sample
func (s *CompositeSample) Features() []string {
	features := make([]string, 0, len(s.Subsamples))
	for _, sub := range s.Subsamples {
		features = append(features, sub.Feature)
	}
	slices.Sort(features)
	return slices.Compact(features)
}

// Rule implements Sample
func (s *CompositeSample) Rule() *decision.Rule { return s.Pipeline }

// Info implements Sample
func (s *CompositeSample) Info() project.Info { return s.Project }

func (s *CompositeSample) setRule(rule *decision.Rule) { s.Pipeline = rule }
