package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/tendant/tenx-pipeline/internal/decision"
	"github.com/tendant/tenx-pipeline/internal/docstore"
	"github.com/tendant/tenx-pipeline/internal/samples"
	"github.com/tendant/tenx-pipeline/internal/storage"
	"github.com/tendant/tenx-pipeline/internal/workflows"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

const gexMethod = "10X Chromium: 3' GEX"

const projectDoc = `{
	"project_name": "proj",
	"project_id": "P1",
	"reference_genome": "Human (GRCh38)",
	"details": {"library_construction_method": "10X Chromium: 3' GEX"},
	"samples": {
		"S0010": {"customer_name": "a"},
		"S0020": {"customer_name": "b"},
		"S0030": {"customer_name": "c"}
	}
}`

type stubSubmitter struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
	panic string
}

func (s *stubSubmitter) Submit(ctx context.Context, req workflows.SampleRequest) pipeline.ProcessingResult {
	s.mu.Lock()
	s.calls = append(s.calls, req.SampleID)
	s.mu.Unlock()

	if req.SampleID == s.panic {
		panic("boom")
	}
	if s.fail[req.SampleID] {
		return pipeline.Failed(req.SampleID, "job failed")
	}
	return pipeline.Succeeded(req.SampleID)
}

func (s *stubSubmitter) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fixture struct {
	store     *docstore.Memory
	submitter *stubSubmitter
	tenxDir   string
	orch      *Orchestrator
}

func newFixture(t *testing.T, doc string, rules ...decision.Rule) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := docstore.NewMemory()
	if err := store.Put(context.Background(), "P1", []byte(doc)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if len(rules) == 0 {
		rules = []decision.Rule{{LibraryPrepMethod: gexMethod, Features: []string{"gex"}, Pipeline: "count", Submit: true}}
	}

	identifiers := samples.Identifiers{
		Legacy:  samples.LegacyIdentifier{Rules: []samples.FeatureRule{{Suffix: "HTO", Feature: "hashing"}}},
		Current: samples.CurrentIdentifier{Digits: map[string]string{"1": "vdj", "2": "hashing"}},
	}

	f := &fixture{
		store:     store,
		submitter: &stubSubmitter{fail: map[string]bool{}},
		tenxDir:   t.TempDir(),
	}
	f.orch = New(Dependencies{
		Store:      store,
		Filesystem: storage.NewFilesystemStorage(""),
		Grouper:    samples.NewGrouper(identifiers, logger),
		Resolver:   samples.NewResolver(decision.NewTable(rules...), logger),
		Submitter:  f.submitter,
		Logger:     logger,
	}, Options{
		TenxDir:            f.tenxDir,
		RequiredFields:     []string{"project_id", "details.library_construction_method"},
		SupportedOrganisms: map[string]string{"human": "/refs/GRCh38"},
		MaxParallel:        2,
	})
	return f
}

func TestRunSampleFailureIsIsolated(t *testing.T) {
	f := newFixture(t, projectDoc)
	f.submitter.fail["S0020"] = true

	result := f.orch.Run(context.Background(), "P1")

	if result.Status != pipeline.StatusFailedPartial {
		t.Fatalf("Status = %q, want failed-partial", result.Status)
	}
	if !result.Failed() {
		t.Errorf("Failed() = false, want true")
	}
	if len(result.Samples) != 3 {
		t.Fatalf("got %d sample results, want 3", len(result.Samples))
	}
	wantOutcomes := map[string]pipeline.Outcome{
		"S0010": pipeline.OutcomeSuccess,
		"S0020": pipeline.OutcomeFailed,
		"S0030": pipeline.OutcomeSuccess,
	}
	for _, r := range result.Samples {
		if r.Outcome != wantOutcomes[r.SampleID] {
			t.Errorf("%s outcome = %q, want %q", r.SampleID, r.Outcome, wantOutcomes[r.SampleID])
		}
	}
	if got := result.FailedSamples(); len(got) != 1 || got[0] != "S0020" {
		t.Errorf("FailedSamples() = %v, want [S0020]", got)
	}
	if len(f.submitter.called()) != 3 {
		t.Errorf("submitter called %d times, want 3", len(f.submitter.called()))
	}
}

func TestRunPersistsStatusTransitions(t *testing.T) {
	f := newFixture(t, projectDoc)

	result := f.orch.Run(context.Background(), "P1")

	if !result.Succeeded() || result.Status != pipeline.StatusCompleted {
		t.Fatalf("result = %+v, want completed success", result)
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}

	history := f.store.History("P1")
	if len(history) != 2 {
		t.Fatalf("got %d status updates, want 2", len(history))
	}
	if history[0].Status != pipeline.StatusProcessing || history[1].Status != pipeline.StatusCompleted {
		t.Errorf("transitions = %q -> %q, want processing -> completed", history[0].Status, history[1].Status)
	}
	for _, update := range history {
		if update.RunID != result.RunID {
			t.Errorf("update run id = %q, want %q", update.RunID, result.RunID)
		}
	}

	if _, err := os.Stat(filepath.Join(f.tenxDir, "proj")); err != nil {
		t.Errorf("project directory not created: %v", err)
	}

	seen, err := f.store.SeenCount(context.Background(), "P1", "S0010")
	if err != nil || seen != 1 {
		t.Errorf("SeenCount() = %d, %v, want 1", seen, err)
	}
}

func TestRunMissingRequiredFields(t *testing.T) {
	f := newFixture(t, `{
		"project_name": "proj",
		"reference_genome": "Human (GRCh38)",
		"details": {"library_construction_method": "10X Chromium: 3' GEX"},
		"samples": {"S0010": {}}
	}`)

	result := f.orch.Run(context.Background(), "P1")

	if !result.Failed() {
		t.Fatalf("Failed() = false, want true")
	}
	if result.Status != pipeline.StatusInitialized {
		t.Errorf("Status = %q, want initialized", result.Status)
	}
	if len(f.store.History("P1")) != 0 {
		t.Errorf("status must not be written for a rejected project")
	}
	if _, err := os.Stat(filepath.Join(f.tenxDir, "proj")); !os.IsNotExist(err) {
		t.Errorf("project directory must not be created, stat error = %v", err)
	}
	if len(f.submitter.called()) != 0 {
		t.Errorf("no sample may be submitted")
	}
}

func TestRunUnsupportedOrganism(t *testing.T) {
	f := newFixture(t, `{
		"project_name": "proj",
		"project_id": "P1",
		"reference_genome": "other (-, -)",
		"details": {"library_construction_method": "10X Chromium: 3' GEX", "organism": "zebrafish"},
		"samples": {"S0010": {}}
	}`)

	result := f.orch.Run(context.Background(), "P1")

	if !result.Failed() || result.Status != pipeline.StatusInitialized {
		t.Fatalf("result = %+v, want failed at initialized", result)
	}
	if len(f.store.History("P1")) != 0 {
		t.Errorf("status must not be written when the organism is unknown")
	}
}

func TestRunMissingDocument(t *testing.T) {
	f := newFixture(t, projectDoc)

	result := f.orch.Run(context.Background(), "missing")

	if !result.Failed() {
		t.Fatalf("Failed() = false, want true")
	}
}

func TestRunWithoutSamples(t *testing.T) {
	f := newFixture(t, `{
		"project_name": "proj",
		"project_id": "P1",
		"reference_genome": "Human (GRCh38)",
		"details": {"library_construction_method": "10X Chromium: 3' GEX"},
		"samples": {"S0010": {"details": {"status_(manual)": "Aborted"}}}
	}`)

	result := f.orch.Run(context.Background(), "P1")

	if !result.Skipped() {
		t.Fatalf("Outcome = %q, want skipped", result.Outcome)
	}
	if result.Status != pipeline.StatusCompleted {
		t.Errorf("Status = %q, want completed", result.Status)
	}
	if len(f.submitter.called()) != 0 {
		t.Errorf("no sample may be submitted")
	}
}

func TestRunUnclassifiableSampleIsSkipped(t *testing.T) {
	f := newFixture(t, `{
		"project_name": "proj",
		"project_id": "P1",
		"reference_genome": "Human (GRCh38)",
		"details": {"library_construction_method": "10X Chromium: 3' GEX"},
		"samples": {
			"S0010": {},
			"S0020": {},
			"S00202": {}
		}
	}`)

	result := f.orch.Run(context.Background(), "P1")

	if result.Status != pipeline.StatusCompleted {
		t.Fatalf("Status = %q, want completed", result.Status)
	}
	if len(result.Samples) != 2 {
		t.Fatalf("got %d results, want 2", len(result.Samples))
	}
	if result.Samples[0].Outcome != pipeline.OutcomeSuccess {
		t.Errorf("S0010 outcome = %q, want success", result.Samples[0].Outcome)
	}
	if result.Samples[1].SampleID != "S0020" || result.Samples[1].Outcome != pipeline.OutcomeSkipped {
		t.Errorf("composite result = %+v, want S0020 skipped", result.Samples[1])
	}
	if got := f.submitter.called(); len(got) != 1 || got[0] != "S0010" {
		t.Errorf("submitted = %v, want [S0010]", got)
	}
}

func TestRunCancelledBeforeDispatch(t *testing.T) {
	f := newFixture(t, projectDoc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.orch.Run(ctx, "P1")

	if result.Status != pipeline.StatusFailedPartial {
		t.Fatalf("Status = %q, want failed-partial", result.Status)
	}
	for _, r := range result.Samples {
		if r.Outcome != pipeline.OutcomeFailed {
			t.Errorf("%s outcome = %q, want failed", r.SampleID, r.Outcome)
		}
	}
	if len(f.submitter.called()) != 0 {
		t.Errorf("cancelled samples must not be submitted")
	}

	history := f.store.History("P1")
	if len(history) == 0 || history[len(history)-1].Status != pipeline.StatusFailedPartial {
		t.Errorf("final status must be persisted after cancellation")
	}
}

func TestRunRecoversSamplePanic(t *testing.T) {
	f := newFixture(t, projectDoc)
	f.submitter.panic = "S0030"

	result := f.orch.Run(context.Background(), "P1")

	if got := result.FailedSamples(); len(got) != 1 || got[0] != "S0030" {
		t.Fatalf("FailedSamples() = %v, want [S0030]", got)
	}
	if result.Samples[0].Outcome != pipeline.OutcomeSuccess {
		t.Errorf("S0010 outcome = %q, want success", result.Samples[0].Outcome)
	}
}

func TestRunPanicAfterProcessingIsFinalized(t *testing.T) {
	f := newFixture(t, projectDoc)
	f.orch.deps.Resolver = nil

	result := f.orch.Run(context.Background(), "P1")

	if result.Status != pipeline.StatusFailedPartial || result.Outcome != pipeline.OutcomeFailed {
		t.Errorf("result = %s/%s, want failed-partial/failed", result.Status, result.Outcome)
	}
	if len(f.submitter.called()) != 0 {
		t.Errorf("submitted %v after the panic", f.submitter.called())
	}

	history := f.store.History("P1")
	var statuses []pipeline.ProjectStatus
	for _, update := range history {
		statuses = append(statuses, update.Status)
	}
	want := []pipeline.ProjectStatus{pipeline.StatusProcessing, pipeline.StatusFailedPartial}
	if !slices.Equal(statuses, want) {
		t.Errorf("status history = %v, want %v", statuses, want)
	}
}

func TestRunWithIDKeepsRunID(t *testing.T) {
	f := newFixture(t, projectDoc)

	result := f.orch.RunWithID(context.Background(), "run-1", "P1")

	if result.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", result.RunID)
	}
	status, err := f.store.Status(context.Background(), "P1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.RunID != "run-1" {
		t.Errorf("stored run id = %q, want run-1", status.RunID)
	}
}
