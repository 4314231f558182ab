// Package watcher imports project documents dropped into an inbox directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tendant/tenx-pipeline/internal/docstore"
	"github.com/tendant/tenx-pipeline/internal/metrics"
	"github.com/tendant/tenx-pipeline/internal/project"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

// ErrFiltered is returned for documents whose library construction method is
// not handled by this realm
var ErrFiltered = errors.New("project not handled by this realm")

// Document import results reported to metrics
const (
	ResultAccepted = "accepted"
	ResultFiltered = "filtered"
	ResultInvalid  = "invalid"
)

const defaultDebounce = 200 * time.Millisecond

// Handler is called with the store key of every accepted document
type Handler func(ctx context.Context, key string)

// Inbox stores project documents found in a directory
type Inbox struct {
	dir      string
	store    docstore.Store
	filter   *project.MethodFilter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	debounce time.Duration
}

// NewInbox creates an inbox over dir
func NewInbox(dir string, store docstore.Store, filter *project.MethodFilter, m *metrics.Metrics, logger *slog.Logger) *Inbox {
	return &Inbox{
		dir:      dir,
		store:    store,
		filter:   filter,
		metrics:  m,
		logger:   logger,
		debounce: defaultDebounce,
	}
}

// Import stores the project document at path and returns its key. The key is
// the document's project_id, or the file name without extension when the
// document has none.
func (i *Inbox) Import(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		i.metrics.ObserveDocument(ResultInvalid)
		return "", fmt.Errorf("read project document: %w", err)
	}

	doc, err := pipeline.ParseProjectDocument(data)
	if err != nil {
		i.metrics.ObserveDocument(ResultInvalid)
		return "", err
	}

	method := doc.Details.LibraryConstructionMethod
	if i.filter != nil && !i.filter.Accepts(method) {
		i.metrics.ObserveDocument(ResultFiltered)
		return "", fmt.Errorf("%w: %q", ErrFiltered, method)
	}

	key := doc.ProjectID
	if key == "" {
		key = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := i.store.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("store project document: %w", err)
	}

	i.metrics.ObserveDocument(ResultAccepted)
	i.logger.Info("project document imported", "project", key, "path", path, "library_prep_method", method)
	return key, nil
}

// Scan imports every document already present in the inbox, in name order
func (i *Inbox) Scan(ctx context.Context, handle Handler) error {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && isDocument(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		i.handleFile(ctx, filepath.Join(i.dir, name), handle)
	}
	return nil
}

// Watch imports documents as they are written to the inbox until ctx is done.
// Bursts of events for the same file are coalesced.
func (i *Inbox) Watch(ctx context.Context, handle Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(i.dir); err != nil {
		return fmt.Errorf("watch inbox %s: %w", i.dir, err)
	}
	i.logger.Info("watching inbox", "path", i.dir)

	// Editors and copy tools emit several events for a single file
	timer := time.NewTimer(0)
	<-timer.C
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isDocument(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(i.debounce)

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for path := range pending {
				paths = append(paths, path)
			}
			clear(pending)
			sort.Strings(paths)
			for _, path := range paths {
				i.handleFile(ctx, path, handle)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			i.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

func (i *Inbox) handleFile(ctx context.Context, path string, handle Handler) {
	key, err := i.Import(ctx, path)
	if err != nil {
		if errors.Is(err, ErrFiltered) {
			i.logger.Info("skipping project document", "path", path, "reason", err)
			return
		}
		i.logger.Warn("failed to import project document", "path", path, "error", err)
		return
	}
	if handle != nil {
		handle(ctx, key)
	}
}

func isDocument(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}
