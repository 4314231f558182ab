// Package dbosruntime owns the lifecycle of the DBOS durable execution runtime
// that sample workflows are checkpointed in.
package dbosruntime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
)

// ErrNoDatabase is returned when no DBOS system database is configured
var ErrNoDatabase = errors.New("dbos database_url is required")

// Runtime manages the DBOS runtime lifecycle
type Runtime struct {
	dbosContext dbos.DBOSContext
	queue       dbos.WorkflowQueue
	config      Config
	logger      *slog.Logger
}

// NewRuntime creates a new DBOS runtime instance. Workflows must be
// registered before Launch.
func NewRuntime(ctx context.Context, cfg Config, logger *slog.Logger) (*Runtime, error) {
	if !cfg.Enabled() {
		return nil, ErrNoDatabase
	}

	// Apply defaults
	cfg.WithDefaults()

	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, err
	}

	// Sample workflows share one queue; its concurrency bounds the jobs
	// in flight across all runs
	queue := dbos.NewWorkflowQueue(dbosCtx, cfg.QueueName, dbos.WithGlobalConcurrency(cfg.Concurrency))

	return &Runtime{
		dbosContext: dbosCtx,
		queue:       queue,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Launch starts the DBOS runtime and recovers pending workflows
func (r *Runtime) Launch() error {
	r.logger.Info("launching dbos runtime", "app", r.config.AppName, "queue", r.config.QueueName, "concurrency", r.config.Concurrency)
	return dbos.Launch(r.dbosContext)
}

// Shutdown gracefully shuts down the DBOS runtime
func (r *Runtime) Shutdown(timeout time.Duration) {
	dbos.Shutdown(r.dbosContext, timeout)
}

// Context returns the DBOS context
func (r *Runtime) Context() dbos.DBOSContext {
	return r.dbosContext
}

// QueueName returns the configured queue name
func (r *Runtime) QueueName() string {
	return r.config.QueueName
}

// Concurrency returns the configured concurrency
func (r *Runtime) Concurrency() int {
	return r.config.Concurrency
}
