package samples

import (
	"bytes"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/tendant/tenx-pipeline/internal/decision"
	"github.com/tendant/tenx-pipeline/internal/project"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

var legacyRules = []FeatureRule{
	{Suffix: "HTO", Feature: "hashing"},
	{Suffix: "ADT", Feature: "cite"},
	{Suffix: "VDJ", Feature: "vdj"},
}

func testIdentifiers() Identifiers {
	return Identifiers{
		Legacy:  LegacyIdentifier{Rules: legacyRules},
		Current: CurrentIdentifier{Digits: map[string]string{"1": "vdj", "2": "hashing", "3": "cite"}},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func raw(customerName, status string) pipeline.RawSample {
	return pipeline.RawSample{CustomerName: customerName, Details: pipeline.SampleDetails{ManualStatus: status}}
}

func TestLegacySuffixPrecedence(t *testing.T) {
	id := LegacyIdentifier{Rules: legacyRules}

	feature, original, ok := id.Identify("P1_1001", raw("X3_24_025_HTO", ""))
	if !ok || feature != "hashing" || original != "X3_24_025" {
		t.Errorf("Identify() = %q, %q, %v; want hashing, X3_24_025, true", feature, original, ok)
	}

	// Both tokens present: the rule listed first wins
	feature, original, _ = id.Identify("P1_1002", raw("X3_ADT_HTO", ""))
	if feature != "hashing" || original != "X3_ADT" {
		t.Errorf("Identify() = %q, %q; want hashing, X3_ADT", feature, original)
	}

	if _, _, ok := id.Identify("P1_1003", raw("X3_24_025", "")); ok {
		t.Error("plain customer name must not be a subsample")
	}
}

func TestLegacyMatcherInfix(t *testing.T) {
	name := raw("X3_24_025_HTO_rerun", "")

	feature, original, ok := LegacyIdentifier{Rules: legacyRules}.Identify("P1", name)
	if !ok || feature != "hashing" || original != "X3_24_025" {
		t.Errorf("substring matcher = %q, %q, %v", feature, original, ok)
	}

	strict := LegacyIdentifier{Rules: legacyRules, Matcher: TrailingTokenMatcher{}}
	if _, _, ok := strict.Identify("P1", name); ok {
		t.Error("trailing token matcher matched an infix")
	}
	feature, original, ok = strict.Identify("P1", raw("X3_24_025_HTO", ""))
	if !ok || feature != "hashing" || original != "X3_24_025" {
		t.Errorf("trailing token matcher = %q, %q, %v", feature, original, ok)
	}
}

func TestCurrentDigitMapping(t *testing.T) {
	id := CurrentIdentifier{Digits: map[string]string{"1": "vdj"}}

	feature, original, ok := id.Identify("S0021", pipeline.RawSample{})
	if !ok || feature != "vdj" || original != "S002" {
		t.Errorf("Identify() = %q, %q, %v; want vdj, S002, true", feature, original, ok)
	}
	if _, _, ok := id.Identify("S0020", pipeline.RawSample{}); ok {
		t.Error("unmapped digit must not be a subsample")
	}
	if _, _, ok := id.Identify("1", pipeline.RawSample{}); ok {
		t.Error("single character id must not be a subsample")
	}
}

func TestDefaultFeature(t *testing.T) {
	tests := map[string]string{
		"Chromium: 3' GEX":       "gex",
		"10X Chromium: 5GEX v2":  "gex",
		"Chromium: VDJ":          "gex",
		"10X Chromium: ATAC-seq": "atac",
		"Smart-seq3":             "unknown",
		"":                       "unknown",
	}
	for prep, want := range tests {
		if got := DefaultFeature(prep); got != want {
			t.Errorf("DefaultFeature(%q) = %q, want %q", prep, got, want)
		}
	}
}

func legacyProject() project.Info {
	return project.Info{
		ProjectName:       "proj",
		LibraryPrepMethod: "10X Chromium",
		LibraryPrepOption: "Chromium: 3' GEX",
		CaseType:          project.CaseOldFormat,
	}
}

func newProject() project.Info {
	return project.Info{
		ProjectName:       "proj",
		LibraryPrepMethod: "10X Chromium: 5' GEX",
		CaseType:          project.CaseNewFormat,
	}
}

func TestGroupLegacyComposite(t *testing.T) {
	var set pipeline.SampleSet
	set.Add("P1_1001", raw("X3_24_025", ""))
	set.Add("P1_1002", raw("X3_24_025_HTO", ""))
	set.Add("P1_1003", raw("X3_24_026", ""))
	set.Add("P1_1004", raw("X3_24_025_ADT", ""))
	set.Add("P1_1005", raw("X3_24_027", "ABORTED"))

	groups := NewGrouper(testIdentifiers(), discardLogger(), WithCustomerNameAlias(true)).Group(set, legacyProject())

	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}

	composite, ok := groups[0].(*CompositeSample)
	if !ok {
		t.Fatalf("groups[0] is %T, want *CompositeSample", groups[0])
	}
	if composite.ID() != "P1_1001" {
		t.Errorf("composite ID = %q, want P1_1001", composite.ID())
	}
	var ids []string
	for _, sub := range composite.Subsamples {
		ids = append(ids, sub.SampleID)
		if sub.OriginalID != composite.SampleID {
			t.Errorf("subsample %s OriginalID = %q, want %q", sub.SampleID, sub.OriginalID, composite.SampleID)
		}
	}
	if want := []string{"P1_1001", "P1_1002", "P1_1004"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("subsample ids = %v, want %v", ids, want)
	}
	if want := []string{"cite", "gex", "hashing"}; !reflect.DeepEqual(composite.Features(), want) {
		t.Errorf("Features() = %v, want %v", composite.Features(), want)
	}

	original, ok := groups[1].(*OriginalSample)
	if !ok {
		t.Fatalf("groups[1] is %T, want *OriginalSample", groups[1])
	}
	if original.ID() != "P1_1003" || original.Feature != "gex" {
		t.Errorf("original = %s/%s, want P1_1003/gex", original.ID(), original.Feature)
	}
}

func TestGroupLegacyCustomerNameAlias(t *testing.T) {
	var set pipeline.SampleSet
	set.Add("P1_1001", raw("X3_24_025", ""))
	set.Add("P1_1002", raw("X3_24_025_HTO", ""))
	set.Add("P1_1003", raw("X3_24_026", ""))
	set.Add("P1_1004", raw("X3_24_025_ADT", ""))

	tests := []struct {
		name  string
		alias bool
		want  []string
	}{
		{
			name: "literal buckets",
			want: []string{
				"*samples.OriginalSample:P1_1001",
				"*samples.CompositeSample:X3_24_025",
				"*samples.OriginalSample:P1_1003",
			},
		},
		{
			name:  "customer name alias",
			alias: true,
			want: []string{
				"*samples.CompositeSample:P1_1001",
				"*samples.OriginalSample:P1_1003",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grouper := NewGrouper(testIdentifiers(), discardLogger(), WithCustomerNameAlias(tt.alias))
			groups := grouper.Group(set, legacyProject())

			var ids []string
			for _, g := range groups {
				ids = append(ids, fmt.Sprintf("%T:%s", g, g.ID()))
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("groups = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestGroupLegacyOrphanSubsample(t *testing.T) {
	var set pipeline.SampleSet
	set.Add("P1_1001", raw("Y1_HTO", ""))

	groups := NewGrouper(testIdentifiers(), discardLogger()).Group(set, legacyProject())

	if len(groups) != 1 {
		t.Fatalf("len(groups) = %d, want 1", len(groups))
	}
	composite, ok := groups[0].(*CompositeSample)
	if !ok {
		t.Fatalf("groups[0] is %T, want *CompositeSample", groups[0])
	}
	if composite.ID() != "Y1" || len(composite.Subsamples) != 1 {
		t.Errorf("composite = %s with %d subsamples", composite.ID(), len(composite.Subsamples))
	}
}

func TestGroupCurrentEpoch(t *testing.T) {
	var set pipeline.SampleSet
	set.Add("S0010", raw("a", ""))
	set.Add("S00101", raw("a_vdj", ""))
	set.Add("S00201", raw("b_vdj", ""))
	set.Add("S0030", raw("c", "aborted"))
	set.Add("S00302", raw("c_hto", ""))
	set.Add("S00402", raw("d_hto", ""))
	set.Add("S00403", raw("d_adt", ""))

	groups := NewGrouper(testIdentifiers(), discardLogger()).Group(set, newProject())

	var ids []string
	for _, g := range groups {
		ids = append(ids, fmt.Sprintf("%T:%s", g, g.ID()))
	}
	want := []string{
		"*samples.CompositeSample:S0010",
		"*samples.OriginalSample:S0020",
		"*samples.OriginalSample:S0030",
		"*samples.CompositeSample:S0040",
	}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("groups = %v, want %v", ids, want)
	}

	lone := groups[1].(*OriginalSample)
	if lone.RecordID != "S00201" || lone.Feature != "vdj" || lone.Record.CustomerName != "b_vdj" {
		t.Errorf("lone subsample original = %+v", lone)
	}
	if members := lone.Members(); members[0].SampleID != "S00201" {
		t.Errorf("Members()[0].SampleID = %q, want S00201", members[0].SampleID)
	}

	first := groups[0].(*CompositeSample)
	if want := []string{"gex", "vdj"}; !reflect.DeepEqual(first.Features(), want) {
		t.Errorf("S0010 Features() = %v, want %v", first.Features(), want)
	}
	last := groups[3].(*CompositeSample)
	if want := []string{"cite", "hashing"}; !reflect.DeepEqual(last.Features(), want) {
		t.Errorf("S0040 Features() = %v, want %v", last.Features(), want)
	}
}

func TestGroupCompletenessAndAbortedExclusion(t *testing.T) {
	var set pipeline.SampleSet
	statuses := []string{"", "Aborted", "", "aBoRtEd", "Passed", ""}
	names := []string{"A", "A_HTO", "B", "B_ADT", "A_ADT", "C_VDJ"}
	for i := range names {
		set.Add(fmt.Sprintf("P1_%d", 1001+i), raw(names[i], statuses[i]))
	}

	for _, info := range []project.Info{legacyProject(), newProject()} {
		for _, alias := range []bool{false, true} {
			groups := NewGrouper(testIdentifiers(), discardLogger(), WithCustomerNameAlias(alias)).Group(set, info)

			seen := make(map[string]int)
			for _, g := range groups {
				for _, m := range g.Members() {
					seen[m.SampleID]++
				}
				if c, ok := g.(*CompositeSample); ok && len(c.Subsamples) == 0 {
					t.Errorf("%s: empty composite %s", info.CaseType, c.ID())
				}
			}

			for _, id := range set.IDs() {
				record, _ := set.Get(id)
				count := seen[id]
				if record.IsAborted() && count != 0 {
					t.Errorf("%s: aborted sample %s appears %d times", info.CaseType, id, count)
				}
				if !record.IsAborted() && count != 1 {
					t.Errorf("%s: sample %s appears %d times, want 1", info.CaseType, id, count)
				}
			}
		}
	}
}

func TestGroupLogsAbortedSamples(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	var set pipeline.SampleSet
	set.Add("P1_1001", raw("A", "aborted"))

	groups := NewGrouper(testIdentifiers(), logger).Group(set, legacyProject())

	if len(groups) != 0 {
		t.Errorf("len(groups) = %d, want 0", len(groups))
	}
	if !strings.Contains(buf.String(), "sample=P1_1001") {
		t.Errorf("expected the aborted sample to be logged, got %q", buf.String())
	}
}

func TestResolverAttachesRule(t *testing.T) {
	table := decision.NewTable(
		decision.Rule{LibraryPrepMethod: "10X Chromium", Features: []string{"gex", "hashing"}, Pipeline: "multi"},
		decision.Rule{LibraryPrepMethod: "10X Chromium", Features: []string{"gex"}, Pipeline: "count"},
	)
	var set pipeline.SampleSet
	set.Add("P1_1001", raw("A", ""))
	set.Add("P1_1002", raw("A_HTO", ""))
	set.Add("P1_1003", raw("B", ""))
	set.Add("P1_1004", raw("C_ADT", ""))

	var buf bytes.Buffer
	resolver := NewResolver(table, slog.New(slog.NewTextHandler(&buf, nil)))
	groups := NewGrouper(testIdentifiers(), discardLogger(), WithCustomerNameAlias(true)).Group(set, legacyProject())

	want := map[string]string{"P1_1001": "multi", "P1_1003": "count"}
	for _, g := range groups {
		ok := resolver.Resolve(g)
		pipelineName, expected := want[g.ID()]
		if ok != expected {
			t.Errorf("Resolve(%s) = %v, want %v", g.ID(), ok, expected)
			continue
		}
		if ok && g.Rule().Pipeline != pipelineName {
			t.Errorf("%s rule = %q, want %q", g.ID(), g.Rule().Pipeline, pipelineName)
		}
		if !ok && g.Rule() != nil {
			t.Errorf("%s: unresolved sample carries a rule", g.ID())
		}
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("expected a warning for the unclassifiable sample, got %q", buf.String())
	}
}
