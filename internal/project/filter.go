package project

import "strings"

// MethodRule registers a library construction method with this realm
type MethodRule struct {
	Method string `mapstructure:"method" yaml:"method"`
	Prefix bool   `mapstructure:"prefix" yaml:"prefix"`
}

// MethodFilter decides whether a project belongs to this realm based on its
// library construction method
type MethodFilter struct {
	rules []MethodRule
}

// NewMethodFilter builds a filter. An empty filter accepts every method.
func NewMethodFilter(rules []MethodRule) *MethodFilter {
	return &MethodFilter{rules: rules}
}

// Accepts reports whether method is handled, by exact match first and then
// by registered prefixes
func (f *MethodFilter) Accepts(method string) bool {
	if len(f.rules) == 0 {
		return true
	}
	for _, rule := range f.rules {
		if rule.Method == method {
			return true
		}
	}
	for _, rule := range f.rules {
		if rule.Prefix && strings.HasPrefix(method, rule.Method) {
			return true
		}
	}
	return false
}
