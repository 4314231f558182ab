package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/tendant/tenx-pipeline/internal/orchestrator"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

func TestResultError(t *testing.T) {
	tests := []struct {
		name    string
		result  orchestrator.RunResult
		wantErr bool
	}{
		{"completed", orchestrator.RunResult{Status: pipeline.StatusCompleted}, false},
		{"completed without samples", orchestrator.RunResult{Status: pipeline.StatusCompleted, Outcome: pipeline.OutcomeSkipped}, false},
		{"failed partial", orchestrator.RunResult{Status: pipeline.StatusFailedPartial, Reason: "1 of 2 samples failed: S1"}, true},
		{"rejected", orchestrator.RunResult{Status: pipeline.StatusInitialized}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := resultError(tt.result); (err != nil) != tt.wantErr {
				t.Errorf("resultError() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	color.NoColor = true

	failed := pipeline.Failed("S2", "job 12 ended in state FAILED")
	failed.Pipeline = "count"
	failed.JobID = "12"

	var buf bytes.Buffer
	printSummary(&buf, orchestrator.RunResult{
		RunID:      "run-1",
		ProjectKey: "P1",
		Status:     pipeline.StatusFailedPartial,
		Samples: []pipeline.ProcessingResult{
			pipeline.Succeeded("S1"),
			failed,
			pipeline.Skipped("S3", "manual submission"),
		},
	})

	out := buf.String()
	for _, want := range []string{
		"Project P1 (run run-1): failed-partial",
		"✓ S1",
		"✗ S2 [count] job 12: job 12 ended in state FAILED",
		"⚠ S3: manual submission",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestTableCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.json")
	rules := `[{"library_prep_method": "10X Chromium: 3' GEX", "features": ["gex"], "pipeline": "count"}]`
	if err := os.WriteFile(path, []byte(rules), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var buf bytes.Buffer
	tableCheckCmd.SetOut(&buf)
	defer tableCheckCmd.SetOut(nil)

	if err := runTableCheck(tableCheckCmd, []string{path}); err != nil {
		t.Fatalf("runTableCheck() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "1 rules") || !strings.Contains(out, "pipeline: count") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestTableCheckRejectsNonList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.json")
	if err := os.WriteFile(path, []byte(`{"rules": []}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := runTableCheck(tableCheckCmd, []string{path}); err == nil {
		t.Error("runTableCheck() error = nil, want error for a non-list table")
	}
}
