// Package runner wires the pipeline components together from a Config.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tendant/tenx-pipeline/internal/config"
	"github.com/tendant/tenx-pipeline/internal/dbosruntime"
	"github.com/tendant/tenx-pipeline/internal/decision"
	"github.com/tendant/tenx-pipeline/internal/docstore"
	"github.com/tendant/tenx-pipeline/internal/executors"
	"github.com/tendant/tenx-pipeline/internal/metrics"
	"github.com/tendant/tenx-pipeline/internal/orchestrator"
	"github.com/tendant/tenx-pipeline/internal/project"
	"github.com/tendant/tenx-pipeline/internal/samples"
	"github.com/tendant/tenx-pipeline/internal/storage"
	"github.com/tendant/tenx-pipeline/internal/watcher"
	"github.com/tendant/tenx-pipeline/internal/workflows"
)

// Runner holds the wired pipeline
type Runner struct {
	Config       *config.Config
	Store        docstore.Store
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Table        *decision.Table
	Orchestrator *orchestrator.Orchestrator
	Inbox        *watcher.Inbox

	runtime *dbosruntime.Runtime
	logger  *slog.Logger
}

// New creates and initializes the pipeline. When cfg.DBOS is configured
// samples run as durable workflows and the runtime is launched here.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	store, err := docstore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	r, err := build(ctx, cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return r, nil
}

func build(ctx context.Context, cfg *config.Config, store docstore.Store, logger *slog.Logger) (*Runner, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	table := decision.Load(cfg.Paths.DecisionTable, logger)

	jobTemplate := ""
	if cfg.Paths.JobTemplate != "" {
		data, err := os.ReadFile(cfg.Paths.JobTemplate)
		if err != nil {
			return nil, fmt.Errorf("failed to read job template: %w", err)
		}
		jobTemplate = string(data)
	}

	executor, err := executors.New(cfg.Executor.Kind, executors.SlurmConfig{
		PollInterval:   cfg.Executor.PollInterval,
		CommandTimeout: cfg.Executor.CommandTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	fs := storage.NewFilesystemStorage("")
	workflow, err := workflows.NewSampleWorkflow(fs, executor, workflows.Settings{
		SeqRootDir:           cfg.Paths.SeqRootDir,
		JobTemplate:          jobTemplate,
		FeatureToLibraryType: cfg.Realm.FeatureToLibraryType,
		FeatureToRefKey:      cfg.Realm.FeatureToRefKey,
		ReferenceMapping:     cfg.Realm.ReferenceMapping,
	}, logger)
	if err != nil {
		return nil, err
	}

	var runtime *dbosruntime.Runtime
	if cfg.DBOS.Enabled() {
		runtime, err = dbosruntime.NewRuntime(ctx, cfg.DBOS, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
		}
	}

	// Workflows must be registered before the runtime launches
	submitter := workflows.NewRunner(workflow, runtime, logger)
	if runtime != nil {
		if err := runtime.Launch(); err != nil {
			return nil, fmt.Errorf("failed to launch DBOS: %w", err)
		}
	}

	var matcher samples.Matcher = samples.SubstringMatcher{}
	if cfg.Realm.StrictSuffixMatching {
		matcher = samples.TrailingTokenMatcher{}
	}
	identifiers := samples.Identifiers{
		Legacy:  samples.LegacyIdentifier{Rules: cfg.Realm.FeatureMap.OldFormat, Matcher: matcher},
		Current: samples.CurrentIdentifier{Digits: cfg.Realm.FeatureMap.NewFormat},
	}

	orch := orchestrator.New(orchestrator.Dependencies{
		Store:      store,
		Filesystem: fs,
		Grouper:    samples.NewGrouper(identifiers, logger, samples.WithCustomerNameAlias(cfg.Realm.CustomerNameAlias)),
		Resolver:   samples.NewResolver(table, logger),
		Submitter:  submitter,
		Metrics:    m,
		Logger:     logger,
	}, orchestrator.Options{
		TenxDir:            cfg.Paths.TenxDir,
		RequiredFields:     cfg.Realm.RequiredFields,
		SupportedOrganisms: cfg.Realm.ReferenceMapping["gex"],
		MaxParallel:        cfg.Orchestrator.MaxParallel,
	})

	var inbox *watcher.Inbox
	if cfg.Paths.InboxDir != "" {
		inbox = watcher.NewInbox(cfg.Paths.InboxDir, store, project.NewMethodFilter(cfg.Realm.Methods), m, logger)
	}

	logger.Info("pipeline initialized",
		"executor", cfg.Executor.Kind,
		"store", cfg.Store.Driver,
		"durable", submitter.Durable(),
		"rules", table.Len(),
	)

	return &Runner{
		Config:       cfg,
		Store:        store,
		Registry:     registry,
		Metrics:      m,
		Table:        table,
		Orchestrator: orch,
		Inbox:        inbox,
		runtime:      runtime,
		logger:       logger,
	}, nil
}

// Run processes one project synchronously
func (r *Runner) Run(ctx context.Context, key string) orchestrator.RunResult {
	return r.Orchestrator.Run(ctx, key)
}

// Resume processes one project under an existing run id. With a durable
// runtime, samples of that run attach to their recovered workflows.
func (r *Runner) Resume(ctx context.Context, runID, key string) orchestrator.RunResult {
	return r.Orchestrator.RunWithID(ctx, runID, key)
}

// Import stores the project document at path and returns its key. Documents
// outside this realm are rejected with watcher.ErrFiltered.
func (r *Runner) Import(ctx context.Context, path string) (string, error) {
	inbox := r.Inbox
	if inbox == nil {
		inbox = watcher.NewInbox("", r.Store, project.NewMethodFilter(r.Config.Realm.Methods), r.Metrics, r.logger)
	}
	return inbox.Import(ctx, path)
}

// Shutdown gracefully shuts down the pipeline
func (r *Runner) Shutdown(timeout time.Duration) error {
	if r.runtime != nil {
		r.runtime.Shutdown(timeout)
	}
	if err := r.Store.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
