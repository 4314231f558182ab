package samples

import (
	"strings"

	"github.com/tendant/tenx-pipeline/internal/project"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

// FeatureRule maps a customer-name suffix token to a feature tag
type FeatureRule struct {
	Suffix  string `mapstructure:"suffix" yaml:"suffix"`
	Feature string `mapstructure:"feature" yaml:"feature"`
}

// Identifier decides whether a record is a subsample carrying an auxiliary
// feature. ok is false when the record is itself an original sample.
type Identifier interface {
	Identify(sampleID string, sample pipeline.RawSample) (feature, originalID string, ok bool)
}

// Matcher locates a suffix token in a customer name and returns the part of
// the name that identifies the original sample
type Matcher interface {
	Match(customerName, suffix string) (originalID string, ok bool)
}

// SubstringMatcher matches "_"+suffix anywhere in the name; the original id
// is everything before the first occurrence. A suffix that occurs as an infix
// ("X_HTO_rerun") still matches.
type SubstringMatcher struct{}

// Match implements Matcher
func (SubstringMatcher) Match(customerName, suffix string) (string, bool) {
	idx := strings.Index(customerName, "_"+suffix)
	if idx < 0 {
		return "", false
	}
	return customerName[:idx], true
}

// TrailingTokenMatcher only matches when "_"+suffix ends the name
type TrailingTokenMatcher struct{}

// Match implements Matcher
func (TrailingTokenMatcher) Match(customerName, suffix string) (string, bool) {
	token := "_" + suffix
	if !strings.HasSuffix(customerName, token) {
		return "", false
	}
	return strings.TrimSuffix(customerName, token), true
}

// LegacyIdentifier identifies subsamples of old_format projects by a suffix
// token in the customer name. Rules are tried in order and the first match
// wins.
type LegacyIdentifier struct {
	Rules   []FeatureRule
	Matcher Matcher
}

// Identify implements Identifier
func (l LegacyIdentifier) Identify(_ string, sample pipeline.RawSample) (string, string, bool) {
	matcher := l.Matcher
	if matcher == nil {
		matcher = SubstringMatcher{}
	}
	for _, rule := range l.Rules {
		originalID, ok := matcher.Match(sample.CustomerName, rule.Suffix)
		if ok && originalID != "" {
			return rule.Feature, originalID, true
		}
	}
	return "", "", false
}

// CurrentIdentifier identifies subsamples of new_format projects by the last
// character of the sample id (the assay digit)
type CurrentIdentifier struct {
	Digits map[string]string
}

// Identify implements Identifier
func (c CurrentIdentifier) Identify(sampleID string, _ pipeline.RawSample) (string, string, bool) {
	if len(sampleID) < 2 {
		return "", "", false
	}
	digit := sampleID[len(sampleID)-1:]
	feature, ok := c.Digits[digit]
	if !ok {
		return "", "", false
	}
	return feature, sampleID[:len(sampleID)-1], true
}

// DefaultFeature is the feature of an original sample without a suffix,
// derived from the library preparation
func DefaultFeature(libraryPrep string) string {
	for _, pattern := range []string{"3' GEX", "5' GEX", "3GEX", "5GEX", "VDJ"} {
		if strings.Contains(libraryPrep, pattern) {
			return "gex"
		}
	}
	if strings.Contains(libraryPrep, "ATAC") {
		return "atac"
	}
	return "unknown"
}

// Identifiers selects the identifier for a project's case type
type Identifiers struct {
	Legacy  Identifier
	Current Identifier
}

// For returns the identifier for caseType
func (i Identifiers) For(caseType project.CaseType) Identifier {
	if caseType == project.CaseOldFormat {
		return i.Legacy
	}
	return i.Current
}
