package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

// SQL is a Store backed by postgres or sqlite
type SQL struct {
	db     *sql.DB
	driver string
}

// NewSQL opens the database and ensures the schema exists
func NewSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s store requires a dsn", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single connection serializes writers and keeps in-memory
		// databases alive between statements.
		db.SetMaxOpenConns(1)
	}

	store := &SQL{db: db, driver: driver}
	if err := store.ensureTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// ensureTables creates the store tables if they don't exist
func (s *SQL) ensureTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS project_documents (
			project_key TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS project_status (
			project_key TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			status TEXT NOT NULL,
			samples TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sample_submissions (
			project_key TEXT NOT NULL,
			sample_id TEXT NOT NULL,
			pipeline TEXT,
			outcome TEXT,
			first_seen_at BIGINT NOT NULL,
			last_seen_at BIGINT NOT NULL,
			seen_count INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (project_key, sample_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create store tables: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into the driver's syntax
func (s *SQL) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Load implements Store
func (s *SQL) Load(ctx context.Context, key string) (*pipeline.ProjectDocument, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT document FROM project_documents WHERE project_key = ?`), key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project %s: %w", key, err)
	}
	return pipeline.ParseProjectDocument([]byte(raw))
}

// Put implements Store
func (s *SQL) Put(ctx context.Context, key string, raw []byte) error {
	query := `
		INSERT INTO project_documents (project_key, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (project_key) DO UPDATE
		SET document = EXCLUDED.document,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, s.rebind(query), key, string(raw), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to store project %s: %w", key, err)
	}
	return nil
}

// SaveStatus implements Store
func (s *SQL) SaveStatus(ctx context.Context, key string, update StatusUpdate) error {
	samples := update.Samples
	if samples == nil {
		samples = []pipeline.ProcessingResult{}
	}
	encoded, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("failed to encode sample results: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin status update: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	query := `
		INSERT INTO project_status (project_key, run_id, status, samples, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project_key) DO UPDATE
		SET run_id = EXCLUDED.run_id,
		    status = EXCLUDED.status,
		    samples = EXCLUDED.samples,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.ExecContext(ctx, s.rebind(query), key, update.RunID, string(update.Status), string(encoded), now); err != nil {
		return fmt.Errorf("failed to save status of %s: %w", key, err)
	}

	for _, result := range update.Samples {
		if _, err := s.record(ctx, tx, key, result, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}
	return nil
}

// record counts a sample submission and returns the new seen count
func (s *SQL) record(ctx context.Context, tx *sql.Tx, key string, result pipeline.ProcessingResult, now int64) (int, error) {
	// Upsert: increment seen_count if exists, insert if not
	query := `
		INSERT INTO sample_submissions (project_key, sample_id, pipeline, outcome, first_seen_at, last_seen_at, seen_count)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (project_key, sample_id) DO UPDATE
		SET last_seen_at = EXCLUDED.last_seen_at,
		    seen_count = sample_submissions.seen_count + 1,
		    pipeline = EXCLUDED.pipeline,
		    outcome = EXCLUDED.outcome
		RETURNING seen_count
	`

	var seenCount int
	err := tx.QueryRowContext(ctx, s.rebind(query),
		key, result.SampleID, result.Pipeline, string(result.Outcome), now, now,
	).Scan(&seenCount)
	if err != nil {
		return 0, fmt.Errorf("failed to record submission of %s/%s: %w", key, result.SampleID, err)
	}
	return seenCount, nil
}

// Status implements Store
func (s *SQL) Status(ctx context.Context, key string) (*pipeline.ProjectStatusResponse, error) {
	var (
		status    pipeline.ProjectStatusResponse
		samples   string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT run_id, status, samples, updated_at FROM project_status WHERE project_key = ?`), key,
	).Scan(&status.RunID, &status.Status, &samples, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status of %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(samples), &status.Samples); err != nil {
		return nil, fmt.Errorf("failed to decode sample results of %s: %w", key, err)
	}
	status.ProjectKey = key
	status.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &status, nil
}

// SeenCount implements Store
func (s *SQL) SeenCount(ctx context.Context, key, sampleID string) (int, error) {
	var seenCount int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT seen_count FROM sample_submissions WHERE project_key = ? AND sample_id = ?`),
		key, sampleID,
	).Scan(&seenCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}
	return seenCount, nil
}

// Close implements Store
func (s *SQL) Close() error {
	return s.db.Close()
}
