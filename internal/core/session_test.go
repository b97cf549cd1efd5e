package core

import (
	"errors"
	"fmt"
	"testing"
)

func chunksOf(n int) []Chunk {
	chunks := make([]Chunk, 0, n)
	for i := 1; i <= n; i++ {
		chunks = append(chunks, NewChunk(i, []string{fmt.Sprintf("File%d.java", i)}))
	}
	return chunks
}

func TestNewSession(t *testing.T) {
	s := NewSession("/tmp/project")

	if s.SessionID == "" {
		t.Error("session ID should not be empty")
	}
	if s.Status != StatusInitialized {
		t.Errorf("Status = %s, want %s", s.Status, StatusInitialized)
	}
	if s.CurrentPhase != PhaseInitialization {
		t.Errorf("CurrentPhase = %s, want %s", s.CurrentPhase, PhaseInitialization)
	}

	s2 := NewSession("/tmp/project")
	if s.SessionID == s2.SessionID {
		t.Error("two sessions should not share an ID")
	}
}

func TestSession_PhaseTransitions(t *testing.T) {
	s := NewSession("/tmp/project")

	if err := s.BeginPlanning(); err != nil {
		t.Fatalf("BeginPlanning() error = %v", err)
	}
	if err := s.BeginAnalyzing(); err != nil {
		t.Fatalf("BeginAnalyzing() error = %v", err)
	}
	if err := s.BeginAggregating(); err != nil {
		t.Fatalf("BeginAggregating() error = %v", err)
	}
	if err := s.Complete(); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if s.Status != StatusCompleted {
		t.Errorf("Status = %s, want %s", s.Status, StatusCompleted)
	}
	if s.EndTime == nil {
		t.Error("EndTime should be set after completion")
	}
}

func TestSession_InvalidTransitions(t *testing.T) {
	s := NewSession("/tmp/project")

	if err := s.BeginAnalyzing(); err == nil {
		t.Error("BeginAnalyzing from initialized should fail")
	}
	if err := s.Complete(); err == nil {
		t.Error("Complete from initialized should fail")
	}

	var domErr *DomainError
	err := s.BeginAggregating()
	if !errors.As(err, &domErr) || domErr.Code != CodeInvalidState {
		t.Errorf("expected INVALID_STATE domain error, got %v", err)
	}
}

func TestSession_FailFromAnyState(t *testing.T) {
	s := NewSession("/tmp/project")
	_ = s.BeginPlanning()

	s.Fail(errors.New("disk full"))

	if s.Status != StatusFailed {
		t.Errorf("Status = %s, want %s", s.Status, StatusFailed)
	}
	if s.Metadata[MetaError] != "disk full" {
		t.Errorf("metadata error = %v, want disk full", s.Metadata[MetaError])
	}
	if s.EndTime == nil {
		t.Error("EndTime should be set on failure")
	}

	// Failing a terminal session is a no-op.
	s.Status = StatusCompleted
	s.Fail(errors.New("late error"))
	if s.Status != StatusCompleted {
		t.Error("Fail should not overwrite a terminal status")
	}
}

func TestSession_MarkChunkCompleted(t *testing.T) {
	s := NewSession("/tmp/project")
	if err := s.SetPendingChunks(chunksOf(3)); err != nil {
		t.Fatalf("SetPendingChunks() error = %v", err)
	}

	result := &Result{Issues: []Issue{{File: "File1.java", Rule: "UnusedImport"}}}
	if err := s.MarkChunkCompleted("chunk-1", result); err != nil {
		t.Fatalf("MarkChunkCompleted() error = %v", err)
	}

	if len(s.PendingChunks) != 2 {
		t.Errorf("pending = %d, want 2", len(s.PendingChunks))
	}
	if len(s.CompletedChunks) != 1 {
		t.Errorf("completed = %d, want 1", len(s.CompletedChunks))
	}
	if len(s.Results) != 1 {
		t.Errorf("results = %d, want 1", len(s.Results))
	}

	// Double completion must be rejected: no chunk is ever counted twice.
	if err := s.MarkChunkCompleted("chunk-1", result); err == nil {
		t.Error("completing the same chunk twice should fail")
	}
	if len(s.CompletedChunks) != 1 {
		t.Errorf("completed = %d after duplicate, want 1", len(s.CompletedChunks))
	}
}

func TestSession_MarkChunkFailed(t *testing.T) {
	s := NewSession("/tmp/project")
	_ = s.SetPendingChunks(chunksOf(3))

	if err := s.MarkChunkFailed("chunk-2", "pmd exited with code 1"); err != nil {
		t.Fatalf("MarkChunkFailed() error = %v", err)
	}

	if len(s.FailedChunks) != 1 {
		t.Fatalf("failed = %d, want 1", len(s.FailedChunks))
	}
	if s.FailedChunks[0].Error != "pmd exited with code 1" {
		t.Errorf("error = %q", s.FailedChunks[0].Error)
	}

	// A failed chunk cannot subsequently complete.
	if err := s.MarkChunkCompleted("chunk-2", &Result{}); err == nil {
		t.Error("completing a failed chunk should be rejected")
	}
	if s.TotalChunks() != 3 {
		t.Errorf("TotalChunks() = %d, want 3 (count fixed after chunking)", s.TotalChunks())
	}
}

func TestSession_Progress(t *testing.T) {
	s := NewSession("/tmp/project")

	// Zero chunks: progress defined as 0, not a division fault.
	if got := s.Progress(); got != 0 {
		t.Errorf("Progress() with no chunks = %d, want 0", got)
	}

	_ = s.SetPendingChunks(chunksOf(3))
	_ = s.MarkChunkCompleted("chunk-1", &Result{})
	_ = s.MarkChunkCompleted("chunk-3", &Result{})
	_ = s.MarkChunkFailed("chunk-2", "boom")

	// Two of three completed, one failed: round(2/3*100) = 67.
	if got := s.Progress(); got != 67 {
		t.Errorf("Progress() = %d, want 67", got)
	}
}

func TestSession_ProgressMonotonic(t *testing.T) {
	s := NewSession("/tmp/project")
	_ = s.SetPendingChunks(chunksOf(10))

	last := s.Progress()
	for i := 1; i <= 10; i++ {
		id := fmt.Sprintf("chunk-%d", i)
		if i%3 == 0 {
			_ = s.MarkChunkFailed(id, "boom")
		} else {
			_ = s.MarkChunkCompleted(id, &Result{})
		}
		if p := s.Progress(); p < last {
			t.Fatalf("progress dropped from %d to %d after %s", last, p, id)
		} else {
			last = p
		}
	}
	// 7 of 10 completed (3 failed): round(7/10*100) = 70.
	if last != 70 {
		t.Errorf("final progress = %d, want 70", last)
	}
}

func TestSession_Resumable(t *testing.T) {
	cases := []struct {
		status SessionStatus
		want   bool
	}{
		{StatusInitialized, false},
		{StatusPlanning, true},
		{StatusAnalyzing, true},
		{StatusAggregating, false},
		{StatusCompleted, false},
		{StatusFailed, false},
	}
	for _, tc := range cases {
		s := NewSession("/tmp/project")
		s.Status = tc.status
		if got := s.Resumable(); got != tc.want {
			t.Errorf("Resumable() with status %s = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestSession_TrimmedResults(t *testing.T) {
	s := NewSession("/tmp/project")
	for i := 0; i < 150; i++ {
		s.Results = append(s.Results, ResultEntry{ChunkID: fmt.Sprintf("chunk-%d", i)})
	}

	trimmed := s.TrimmedResults(MaxPersistedResults)
	if len(trimmed) != MaxPersistedResults {
		t.Fatalf("len(trimmed) = %d, want %d", len(trimmed), MaxPersistedResults)
	}
	// Newest window survives, in order.
	if trimmed[0].ChunkID != "chunk-50" {
		t.Errorf("first kept entry = %s, want chunk-50", trimmed[0].ChunkID)
	}
	if trimmed[len(trimmed)-1].ChunkID != "chunk-149" {
		t.Errorf("last kept entry = %s, want chunk-149", trimmed[len(trimmed)-1].ChunkID)
	}
}

func TestSession_Validate(t *testing.T) {
	s := NewSession("/tmp/project")
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	s.ProjectPath = ""
	if err := s.Validate(); err == nil {
		t.Error("Validate() should fail with empty project path")
	}
}

func TestParsePhase(t *testing.T) {
	if _, err := ParsePhase("analyzing"); err != nil {
		t.Errorf("ParsePhase(analyzing) error = %v", err)
	}
	if _, err := ParsePhase("bogus"); err == nil {
		t.Error("ParsePhase(bogus) should fail")
	}
}
