package aggregate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codesweep/codesweep/internal/core"
)

func sessionWith(t *testing.T, completed []core.CompletedChunk, failed []core.FailedChunk) *core.Session {
	t.Helper()
	s := core.NewSession("/tmp/project")
	s.CompletedChunks = completed
	s.FailedChunks = failed
	return s
}

func TestAggregate(t *testing.T) {
	s := sessionWith(t, []core.CompletedChunk{
		{ChunkID: "chunk-1", Result: &core.Result{
			Issues: []core.Issue{
				{File: "A.java", Rule: "UnusedImport"},
				{File: "B.java", Rule: "UnusedImport"},
			},
			Report: "chunk 1 report",
		}},
		{ChunkID: "chunk-2", Result: &core.Result{
			Issues: []core.Issue{{File: "C.java", Rule: "EmptyCatch"}},
		}},
	}, []core.FailedChunk{
		{ChunkID: "chunk-3", Error: "timeout"},
	})

	summary := Aggregate(s)
	if summary.TotalIssues != 3 {
		t.Errorf("TotalIssues = %d, want 3", summary.TotalIssues)
	}
	if summary.CompletedChunks != 2 || summary.FailedChunks != 1 {
		t.Errorf("chunk counts = %d/%d, want 2/1", summary.CompletedChunks, summary.FailedChunks)
	}
	if summary.IssuesByRule["UnusedImport"] != 2 {
		t.Errorf("IssuesByRule[UnusedImport] = %d, want 2", summary.IssuesByRule["UnusedImport"])
	}
	if len(summary.Reports) != 1 {
		t.Errorf("Reports = %d, want 1", len(summary.Reports))
	}
	if !strings.Contains(summary.Text, "3 issues") {
		t.Errorf("Text = %s", summary.Text)
	}
}

func TestAggregateToleratesMalformedResults(t *testing.T) {
	s := sessionWith(t, []core.CompletedChunk{
		{ChunkID: "chunk-1", Result: nil},
		{ChunkID: "chunk-2", Result: &core.Result{}},
		{ChunkID: "chunk-3", Result: &core.Result{Issues: []core.Issue{{Rule: "R"}}}},
	}, nil)

	summary := Aggregate(s)
	if summary.TotalIssues != 1 {
		t.Errorf("TotalIssues = %d, want 1", summary.TotalIssues)
	}
}

func TestTopRules(t *testing.T) {
	s := &Summary{IssuesByRule: map[string]int{"A": 1, "B": 5, "C": 5, "D": 2}}
	got := s.TopRules(3)
	want := []string{"B", "C", "D"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TopRules()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestVerifyFileNotFound(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "Real.java")
	if err := os.WriteFile(real, []byte("class Real {}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s := sessionWith(t, []core.CompletedChunk{
		{ChunkID: "chunk-1", Result: &core.Result{Issues: []core.Issue{
			{File: real, Rule: "R"},
			{File: filepath.Join(dir, "Ghost.java"), Rule: "R"},
			{File: filepath.Join(dir, "Ghost.java"), Rule: "R2"},
		}}},
	}, nil)

	v := Verify(s)
	var notFound int
	for _, f := range v.Findings {
		if f.Kind == FindingFileNotFound {
			notFound++
		}
	}
	if notFound != 1 {
		t.Errorf("file_not_found findings = %d, want 1 (deduplicated per file)", notFound)
	}
}

func TestVerifyImplausibleMetrics(t *testing.T) {
	s := sessionWith(t, []core.CompletedChunk{
		{ChunkID: "chunk-1", Result: &core.Result{
			Metrics: &core.Metrics{AvgLinesPerFile: -1},
		}},
		{ChunkID: "chunk-2", Result: &core.Result{
			Metrics: &core.Metrics{TotalLines: 2_000_000},
		}},
		{ChunkID: "chunk-3", Result: &core.Result{
			Metrics: &core.Metrics{TotalLines: 500, AvgLinesPerFile: 50},
		}},
	}, nil)

	v := Verify(s)
	var implausible int
	for _, f := range v.Findings {
		if f.Kind == FindingImplausible {
			implausible++
		}
	}
	if implausible != 2 {
		t.Errorf("implausible_metrics findings = %d, want 2", implausible)
	}
}

func TestVerifyMissingResult(t *testing.T) {
	s := sessionWith(t, []core.CompletedChunk{{ChunkID: "chunk-1"}}, nil)
	v := Verify(s)
	if len(v.Findings) != 1 || v.Findings[0].Kind != FindingMissingResult {
		t.Errorf("Findings = %+v, want one missing_result", v.Findings)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		completed, failed int
		want              int
	}{
		{0, 0, 100},
		{10, 0, 100},
		{7, 3, 70},
		{0, 5, 0},
	}
	for _, tt := range tests {
		completed := make([]core.CompletedChunk, tt.completed)
		failed := make([]core.FailedChunk, tt.failed)
		s := sessionWith(t, completed, failed)
		if got := Confidence(s); got != tt.want {
			t.Errorf("Confidence(%d completed, %d failed) = %d, want %d",
				tt.completed, tt.failed, got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	clean := Describe(&Verification{Confidence: 100})
	if !strings.Contains(clean, "clean") {
		t.Errorf("Describe(clean) = %s", clean)
	}
	dirty := Describe(&Verification{
		Confidence: 70,
		Findings:   []Finding{{ChunkID: "chunk-1", Kind: FindingFileNotFound, Detail: "gone"}},
	})
	if !strings.Contains(dirty, "file_not_found") {
		t.Errorf("Describe(dirty) = %s", dirty)
	}
}
