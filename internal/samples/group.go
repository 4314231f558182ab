package samples

import (
	"log/slog"

	"github.com/tendant/tenx-pipeline/internal/project"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

// Grouper partitions raw sample records into grouped samples
type Grouper struct {
	identifiers   Identifiers
	customerAlias bool
	logger        *slog.Logger
}

// GrouperOption configures a Grouper
type GrouperOption func(*Grouper)

// WithCustomerNameAlias buckets an old_format subsample under the record
// whose customer name equals the subsample's original id, instead of under
// the original id itself
func WithCustomerNameAlias(enabled bool) GrouperOption {
	return func(g *Grouper) {
		g.customerAlias = enabled
	}
}

// NewGrouper creates a grouper using the given identifiers
func NewGrouper(identifiers Identifiers, logger *slog.Logger, opts ...GrouperOption) *Grouper {
	g := &Grouper{identifiers: identifiers, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type classified struct {
	id         string
	record     pipeline.RawSample
	feature    string
	originalID string
	subsample  bool
}

type bucket struct {
	id   string
	own  *classified
	subs []classified
}

// Group classifies every non-aborted record and returns one grouped sample
// per original-sample id, in the order each id is first seen. Every
// non-aborted record ends up in exactly one group.
func (g *Grouper) Group(set pipeline.SampleSet, info project.Info) []Sample {
	identifier := g.identifiers.For(info.CaseType)
	useAliases := g.customerAlias && info.CaseType == project.CaseOldFormat

	var records []classified
	for _, id := range set.IDs() {
		record, _ := set.Get(id)
		if record.IsAborted() {
			g.logger.Info("skipping aborted sample", "project", info.ProjectName, "sample", id)
			continue
		}
		c := classified{id: id, record: record}
		if identifier != nil {
			c.feature, c.originalID, c.subsample = identifier.Identify(id, record)
		}
		records = append(records, c)
	}

	// Old_format subsamples name their original by customer name, while
	// originals are keyed by sample id.
	aliases := make(map[string]string)
	if useAliases {
		for _, c := range records {
			if c.subsample || c.record.CustomerName == "" {
				continue
			}
			if _, seen := aliases[c.record.CustomerName]; !seen {
				aliases[c.record.CustomerName] = c.id
			}
		}
	}

	var order []*bucket
	byID := make(map[string]*bucket)
	lookup := func(id string) *bucket {
		b, ok := byID[id]
		if !ok {
			b = &bucket{id: id}
			byID[id] = b
			order = append(order, b)
		}
		return b
	}

	for i := range records {
		c := &records[i]
		if !c.subsample {
			lookup(c.id).own = c
			continue
		}
		key := c.originalID
		if alias, ok := aliases[key]; ok {
			key = alias
		}
		c.originalID = key
		b := lookup(key)
		b.subs = append(b.subs, *c)
	}

	defaultFeature := DefaultFeature(info.LibraryPrep())
	groups := make([]Sample, 0, len(order))
	for _, b := range order {
		groups = append(groups, g.emit(b, info, defaultFeature))
	}
	return groups
}

func (g *Grouper) emit(b *bucket, info project.Info, defaultFeature string) Sample {
	if len(b.subs) == 0 {
		return &OriginalSample{
			SampleID: b.id,
			RecordID: b.own.id,
			Feature:  defaultFeature,
			Record:   b.own.record,
			Project:  info,
		}
	}

	if b.own == nil && len(b.subs) == 1 && info.CaseType == project.CaseNewFormat {
		sub := b.subs[0]
		return &OriginalSample{
			SampleID: b.id,
			RecordID: sub.id,
			Feature:  sub.feature,
			Record:   sub.record,
			Project:  info,
		}
	}

	composite := &CompositeSample{SampleID: b.id, Project: info}
	if b.own != nil {
		composite.Subsamples = append(composite.Subsamples, Subsample{
			SampleID:   b.own.id,
			Feature:    defaultFeature,
			OriginalID: b.id,
			Record:     b.own.record,
			Project:    info,
		})
	}
	for _, sub := range b.subs {
		composite.Subsamples = append(composite.Subsamples, Subsample{
			SampleID:   sub.id,
			Feature:    sub.feature,
			OriginalID: b.id,
			Record:     sub.record,
			Project:    info,
		})
	}
	return composite
}
