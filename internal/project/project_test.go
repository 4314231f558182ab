package project

import (
	"bytes"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

func mustParse(t *testing.T, doc string) *pipeline.ProjectDocument {
	t.Helper()
	parsed, err := pipeline.ParseProjectDocument([]byte(doc))
	if err != nil {
		t.Fatalf("ParseProjectDocument() error = %v", err)
	}
	return parsed
}

func TestCheckRequiredFields(t *testing.T) {
	doc := mustParse(t, `{
		"project_id": "P1",
		"details": {"organism": "human", "nested": {"deep": null}},
		"reference_genome": "Human (GRCh38)"
	}`)

	tests := []struct {
		name   string
		fields []string
		want   []string
	}{
		{"all present", []string{"project_id", "details.organism"}, nil},
		{"null value counts as present", []string{"details.nested.deep"}, nil},
		{"missing top level", []string{"project_name"}, []string{"project_name"}},
		{"missing nested", []string{"details.library_prep_option"}, []string{"details.library_prep_option"}},
		{"walks through a scalar", []string{"project_id.value"}, []string{"project_id.value"}},
		{"missing intermediate", []string{"extra.organism", "details.organism"}, []string{"extra.organism"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckRequiredFields(doc.Raw(), tt.fields)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CheckRequiredFields() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractInfoOldFormat(t *testing.T) {
	doc := mustParse(t, `{
		"project_name": "J.Doe_24.01",
		"project_id": "P1",
		"details": {"library_construction_method": "10X Chromium", "library_prep_option": "Chromium: 3' GEX"}
	}`)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	info := ExtractInfo(doc, logger)

	if info.ProjectName != "J__Doe_24__01" {
		t.Errorf("ProjectName = %q, want J__Doe_24__01", info.ProjectName)
	}
	if info.CaseType != CaseOldFormat {
		t.Errorf("CaseType = %q, want old_format", info.CaseType)
	}
	if info.Hashing != "" {
		t.Errorf("old_format must not carry single-cell flags, got hashing=%q", info.Hashing)
	}
	if info.LibraryPrep() != "Chromium: 3' GEX" {
		t.Errorf("LibraryPrep() = %q", info.LibraryPrep())
	}
}

func TestExtractInfoNewFormat(t *testing.T) {
	doc := mustParse(t, `{
		"project_name": "proj",
		"details": {"library_construction_method": "10X Chromium: 5' GEX", "library_prep_option_single_cell_hashing": "TotalSeq-A"}
	}`)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	info := ExtractInfo(doc, logger)

	if info.CaseType != CaseNewFormat {
		t.Errorf("CaseType = %q, want new_format", info.CaseType)
	}
	if info.Hashing != "TotalSeq-A" || info.Cite != "None" || info.VDJ != "None" || info.Feature != "None" {
		t.Errorf("flags = %q/%q/%q/%q", info.Hashing, info.Cite, info.VDJ, info.Feature)
	}
	if info.ProjectID != "Unknown_Project" {
		t.Errorf("ProjectID = %q, want Unknown_Project", info.ProjectID)
	}
	if info.LibraryPrep() != "10X Chromium: 5' GEX" {
		t.Errorf("LibraryPrep() = %q", info.LibraryPrep())
	}
}

func TestExtractInfoRecoversToZero(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	info := ExtractInfo(nil, logger)

	if !info.IsZero() {
		t.Errorf("ExtractInfo(nil) = %+v, want zero Info", info)
	}
	if !strings.Contains(buf.String(), "failed to extract project information") {
		t.Errorf("expected error log, got %q", buf.String())
	}
}

func TestDetermineOrganism(t *testing.T) {
	supported := map[string]string{"human": "/refs/GRCh38", "mouse": "/refs/mm10"}

	tests := []struct {
		name      string
		info      Info
		supported map[string]string
		want      string
		ok        bool
	}{
		{"from reference genome", Info{ReferenceGenome: "Human (GRCh38)"}, supported, "human", true},
		{"other falls back", Info{ReferenceGenome: "Other (-, -)", Organism: "Mouse"}, supported, "mouse", true},
		{"unsupported reference falls back", Info{ReferenceGenome: "Zebrafish (GRCz11)", Organism: "human"}, supported, "human", true},
		{"nothing usable", Info{ReferenceGenome: "Other (-, -)"}, supported, "", false},
		{"unsupported organism", Info{Organism: "yeast"}, supported, "", false},
		{"no reference mapping accepts any", Info{Organism: "Yeast"}, nil, "yeast", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetermineOrganism(tt.info, tt.supported)
			if got != tt.want || ok != tt.ok {
				t.Errorf("DetermineOrganism() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMethodFilter(t *testing.T) {
	filter := NewMethodFilter([]MethodRule{
		{Method: "SmartSeq 3"},
		{Method: "10X Chromium", Prefix: true},
	})

	tests := map[string]bool{
		"SmartSeq 3":                true,
		"SmartSeq 3 plus":           false,
		"10X Chromium: 3' GEX v3.1": true,
		"Bulk RNA":                  false,
	}
	for method, want := range tests {
		if got := filter.Accepts(method); got != want {
			t.Errorf("Accepts(%q) = %v, want %v", method, got, want)
		}
	}

	if !NewMethodFilter(nil).Accepts("anything") {
		t.Error("empty filter should accept every method")
	}
}
