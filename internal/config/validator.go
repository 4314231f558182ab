package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidConfig wraps every configuration that fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// FieldError is a config key holding an unusable value
type FieldError struct {
	Key     string
	Problem string
}

func (e *FieldError) Error() string {
	return e.Key + " " + e.Problem
}

// FieldErrors returns the field errors joined into err
func FieldErrors(err error) []*FieldError {
	var fields []*FieldError
	var walk func(error)
	walk = func(err error) {
		if fe, ok := err.(*FieldError); ok {
			fields = append(fields, fe)
			return
		}
		switch e := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(e.Unwrap())
		}
	}
	walk(err)
	return fields
}

var (
	logLevels     = []string{"debug", "info", "warn", "error"}
	executorKinds = []string{"slurm", "local", "dryrun"}
	storeDrivers  = []string{"memory", "sqlite", "postgres"}
)

// Validate reports every unusable value in c. The result is nil or wraps
// ErrInvalidConfig and one *FieldError per problem.
func (c *Config) Validate() error {
	var problems []error
	reject := func(key, format string, args ...any) {
		problems = append(problems, &FieldError{Key: key, Problem: fmt.Sprintf(format, args...)})
	}
	oneOf := func(key, value string, allowed []string) {
		if !slices.Contains(allowed, value) {
			reject(key, "is %q, want one of %s", value, strings.Join(allowed, "|"))
		}
	}

	if c.Paths.TenxDir == "" {
		reject("paths.tenx_dir", "is empty")
	}
	if c.Paths.SeqRootDir == "" {
		reject("paths.seq_root_dir", "is empty")
	}

	suffixes := make(map[string]int)
	for i, rule := range c.Realm.FeatureMap.OldFormat {
		key := fmt.Sprintf("realm.feature_map.old_format[%d]", i)
		if rule.Suffix == "" || rule.Feature == "" {
			reject(key, "needs both suffix and feature")
		}
		if first, dup := suffixes[rule.Suffix]; dup {
			reject(key, "repeats suffix %q of entry %d", rule.Suffix, first)
			continue
		}
		suffixes[rule.Suffix] = i
	}
	for digit := range c.Realm.FeatureMap.NewFormat {
		if len(digit) != 1 {
			reject("realm.feature_map.new_format", "key %q is not a single character", digit)
		}
	}

	if c.Orchestrator.MaxParallel < 0 {
		reject("orchestrator.max_parallel", "is negative")
	}

	oneOf("executor.kind", c.Executor.Kind, executorKinds)
	if c.Executor.PollInterval < 0 {
		reject("executor.poll_interval", "is negative")
	}
	if c.Executor.CommandTimeout < 0 {
		reject("executor.command_timeout", "is negative")
	}

	oneOf("store.driver", c.Store.Driver, storeDrivers)
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		reject("store.dsn", "is required by the %s driver", c.Store.Driver)
	}

	if c.DBOS.Concurrency < 0 {
		reject("dbos.concurrency", "is negative")
	}

	oneOf("logging.level", strings.ToLower(c.Logging.Level), logLevels)

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}
