// Package decision maps a library preparation method and the set of features
// of a grouped sample to the pipeline configuration that processes it.
package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// ErrNotList is returned when the decision table payload is not a JSON list
var ErrNotList = errors.New("decision table is not a list")

// Rule is one entry of the decision table
type Rule struct {
	LibraryPrepMethod string   `json:"library_prep_method" yaml:"library_prep_method"`
	Features          []string `json:"features" yaml:"features"`

	Pipeline          string   `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`
	PipelineExec      string   `json:"pipeline_exec,omitempty" yaml:"pipeline_exec,omitempty"`
	RequiredArguments []string `json:"required_arguments,omitempty" yaml:"required_arguments,omitempty"`
	FixedArguments    []string `json:"fixed_arguments,omitempty" yaml:"fixed_arguments,omitempty"`
	LibrariesCSV      bool     `json:"libraries_csv,omitempty" yaml:"libraries_csv,omitempty"`
	FeatureRef        bool     `json:"feature_ref,omitempty" yaml:"feature_ref,omitempty"`
	MultiCSV          bool     `json:"multi_csv,omitempty" yaml:"multi_csv,omitempty"`
	Submit            bool     `json:"submit" yaml:"submit"`

	// Payload is the rule exactly as configured, including keys this
	// package does not interpret.
	Payload json.RawMessage `json:"-" yaml:"-"`
}

// Table is an ordered, read-only collection of rules
type Table struct {
	rules []Rule
}

// NewTable builds a table from rules
func NewTable(rules ...Rule) *Table {
	return &Table{rules: append([]Rule(nil), rules...)}
}

// Parse decodes a decision table payload
func Parse(data []byte) (*Table, error) {
	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse decision table: %w", err)
	}
	if _, ok := top.([]any); !ok {
		return nil, ErrNotList
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parse decision table: %w", err)
	}

	rules := make([]Rule, 0, len(raws))
	for i, raw := range raws {
		// Rules are submitted unless they opt out
		rule := Rule{Submit: true}
		if err := json.Unmarshal(raw, &rule); err != nil {
			return nil, fmt.Errorf("parse decision table entry %d: %w", i, err)
		}
		rule.Payload = raw
		rules = append(rules, rule)
	}
	return &Table{rules: rules}, nil
}

// Load reads the decision table at path. It never fails: a missing file, a
// malformed payload or a payload that is not a list yields an empty table and
// an error log entry.
func Load(path string, logger *slog.Logger) *Table {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("decision table not readable", "path", path, "error", err)
		return &Table{}
	}

	table, err := Parse(data)
	if err != nil {
		logger.Error("decision table rejected", "path", path, "error", err)
		return &Table{}
	}

	logger.Info("decision table loaded", "path", path, "rules", table.Len())
	return table
}

// Len returns the number of rules
func (t *Table) Len() int {
	return len(t.rules)
}

// Rules returns a copy of the rules in table order
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Resolve returns the first rule whose method equals method and whose
// feature set equals features, ignoring order and duplicates
func (t *Table) Resolve(method string, features []string) (*Rule, bool) {
	want := featureSet(features)
	for i := range t.rules {
		rule := &t.rules[i]
		if rule.LibraryPrepMethod != method {
			continue
		}
		if slices.Equal(featureSet(rule.Features), want) {
			return rule, true
		}
	}
	return nil, false
}

func featureSet(features []string) []string {
	set := slices.Clone(features)
	slices.Sort(set)
	return slices.Compact(set)
}
