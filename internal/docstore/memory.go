package docstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

// Memory is an in-process Store. It keeps every status transition so callers
// can inspect the history of a project.
type Memory struct {
	mu        sync.RWMutex
	documents map[string][]byte
	history   map[string][]StatusUpdate
	status    map[string]pipeline.ProjectStatusResponse
	seen      map[string]int
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		documents: make(map[string][]byte),
		history:   make(map[string][]StatusUpdate),
		status:    make(map[string]pipeline.ProjectStatusResponse),
		seen:      make(map[string]int),
	}
}

// Load implements Store
func (m *Memory) Load(ctx context.Context, key string) (*pipeline.ProjectDocument, error) {
	m.mu.RLock()
	raw, ok := m.documents[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return pipeline.ParseProjectDocument(raw)
}

// Put implements Store
func (m *Memory) Put(ctx context.Context, key string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[key] = slices.Clone(raw)
	return nil
}

// SaveStatus implements Store
func (m *Memory) SaveStatus(ctx context.Context, key string, update StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	update.Samples = slices.Clone(update.Samples)
	m.history[key] = append(m.history[key], update)
	m.status[key] = pipeline.ProjectStatusResponse{
		ProjectKey: key,
		RunID:      update.RunID,
		Status:     update.Status,
		Samples:    update.Samples,
		UpdatedAt:  time.Now().UTC(),
	}
	for _, result := range update.Samples {
		m.seen[ledgerKey(key, result.SampleID)]++
	}
	return nil
}

// Status implements Store
func (m *Memory) Status(ctx context.Context, key string) (*pipeline.ProjectStatusResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.status[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	status.Samples = slices.Clone(status.Samples)
	return &status, nil
}

// SeenCount implements Store
func (m *Memory) SeenCount(ctx context.Context, key, sampleID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seen[ledgerKey(key, sampleID)], nil
}

// History returns every status transition recorded for key, oldest first
func (m *Memory) History(key string) []StatusUpdate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.history[key])
}

// Close implements Store
func (m *Memory) Close() error {
	return nil
}

func ledgerKey(key, sampleID string) string {
	return key + "\x00" + sampleID
}
