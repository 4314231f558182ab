// Package handlers exposes project processing over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/tenx-pipeline/internal/docstore"
	"github.com/tendant/tenx-pipeline/internal/orchestrator"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

// ErrShuttingDown is returned by Start once background runs are no longer
// accepted
var ErrShuttingDown = errors.New("shutting down")

// ProjectRunner runs one project under a caller-chosen run id
type ProjectRunner interface {
	RunWithID(ctx context.Context, runID, key string) orchestrator.RunResult
}

// AsyncHandler accepts project runs and executes them in the background
type AsyncHandler struct {
	runner ProjectRunner
	store  docstore.Store
	logger *slog.Logger

	// runs outlive the request that started them
	baseCtx context.Context
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewAsyncHandler creates a new async handler. Background runs use baseCtx,
// so cancelling it stops samples that have not started yet.
func NewAsyncHandler(baseCtx context.Context, runner ProjectRunner, store docstore.Store, logger *slog.Logger) *AsyncHandler {
	return &AsyncHandler{
		runner:  runner,
		store:   store,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Routes registers the handler endpoints on mux. gatherer may be nil.
func (h *AsyncHandler) Routes(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.HandleFunc("/v1/process", h.HandleProcessAsync)
	mux.HandleFunc("/v1/projects/", h.HandleStatus)
	mux.HandleFunc("/health", h.HandleHealth)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// HandleProcessAsync handles POST /v1/process - starts a project run and
// returns immediately
func (h *AsyncHandler) HandleProcessAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pipeline.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.ProjectKey == "" {
		http.Error(w, "project_key is required", http.StatusBadRequest)
		return
	}

	if _, err := h.store.Load(r.Context(), req.ProjectKey); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load project document", "project", req.ProjectKey, "error", err)
		http.Error(w, fmt.Sprintf("Failed to load project: %v", err), http.StatusUnprocessableEntity)
		return
	}

	runID, err := h.Start(req.ProjectKey)
	if err != nil {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, pipeline.ProcessResponse{RunID: runID, ProjectKey: req.ProjectKey})
}

// Start runs the project stored under key in the background and returns the
// run id. It fails with ErrShuttingDown once the base context is done or
// Wait has been called.
func (h *AsyncHandler) Start(key string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.baseCtx.Err() != nil {
		h.logger.Warn("project run not started", "project", key, "reason", ErrShuttingDown)
		return "", ErrShuttingDown
	}

	runID := uuid.New().String()
	h.logger.Info("starting project run", "project", key, "run_id", runID)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		result := h.runner.RunWithID(h.baseCtx, runID, key)
		h.logger.Info("project run finished",
			"project", key, "run_id", runID, "status", result.Status, "outcome", result.Outcome)
	}()
	return runID, nil
}

// HandleStatus handles GET /v1/projects/{key} - returns the last recorded
// status of a project
func (h *AsyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/v1/projects/")
	if key == "" || strings.Contains(key, "/") {
		http.Error(w, "project_key is required", http.StatusBadRequest)
		return
	}

	status, err := h.store.Status(r.Context(), key)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to read project status", "project", key, "error", err)
		http.Error(w, "Failed to read status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// HandleHealth handles GET /health
func (h *AsyncHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Wait stops accepting new runs and blocks until every background run has
// finished
func (h *AsyncHandler) Wait() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.wg.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
