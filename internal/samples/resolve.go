package samples

import (
	"log/slog"

	"github.com/tendant/tenx-pipeline/internal/decision"
)

// Resolver attaches decision table rules to grouped samples
type Resolver struct {
	table  *decision.Table
	logger *slog.Logger
}

// NewResolver creates a resolver over a loaded decision table
func NewResolver(table *decision.Table, logger *slog.Logger) *Resolver {
	return &Resolver{table: table, logger: logger}
}

// Resolve looks up the rule for the sample's library preparation method and
// feature set. A sample without a matching rule is unclassifiable: it is
// logged and false is returned, and the caller skips it.
func (r *Resolver) Resolve(sample Sample) bool {
	info := sample.Info()
	features := sample.Features()

	rule, ok := r.table.Resolve(info.LibraryPrepMethod, features)
	if !ok {
		r.logger.Warn("no pipeline configured for sample",
			"project", info.ProjectName,
			"sample", sample.ID(),
			"library_prep_method", info.LibraryPrepMethod,
			"features", features,
		)
		return false
	}

	sample.setRule(rule)
	return true
}
