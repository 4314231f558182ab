// Package docstore persists project documents and the status of their runs.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

var (
	// ErrNotFound is returned when no document or status exists for a key
	ErrNotFound = errors.New("project not found")

	// ErrUnknownDriver is returned for an unsupported store driver
	ErrUnknownDriver = errors.New("unknown store driver")
)

// StatusUpdate is a project status transition written by the orchestrator
type StatusUpdate struct {
	RunID   string
	Status  pipeline.ProjectStatus
	Samples []pipeline.ProcessingResult
}

// Store loads project documents and records status transitions
type Store interface {
	// Load returns the project document stored under key
	Load(ctx context.Context, key string) (*pipeline.ProjectDocument, error)

	// Put stores a raw project document under key, replacing any previous one
	Put(ctx context.Context, key string, raw []byte) error

	// SaveStatus records a status transition. Updates carrying sample results
	// also count one submission per sample in the ledger.
	SaveStatus(ctx context.Context, key string, update StatusUpdate) error

	// Status returns the last recorded status of the project
	Status(ctx context.Context, key string) (*pipeline.ProjectStatusResponse, error)

	// SeenCount returns how many runs recorded a result for the sample
	SeenCount(ctx context.Context, key, sampleID string) (int, error)

	Close() error
}

// Driver names accepted by Open
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open creates the store for driver
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverSQLite, DriverPostgres:
		return NewSQL(ctx, driver, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
