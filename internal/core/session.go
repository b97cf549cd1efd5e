package core

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// SessionID uniquely identifies an analysis session.
type SessionID string

// SessionStatus represents the coarse state of a session. Transitions move
// only forward along the phase order, with an escape to failed from any
// non-terminal state.
type SessionStatus string

const (
	StatusInitialized SessionStatus = "initialized"
	StatusPlanning    SessionStatus = "planning"
	StatusAnalyzing   SessionStatus = "analyzing"
	StatusAggregating SessionStatus = "aggregating"
	StatusCompleted   SessionStatus = "completed"
	StatusFailed      SessionStatus = "failed"
)

// CompletedChunk records one successfully analyzed chunk. Append-only.
type CompletedChunk struct {
	ChunkID     string    `json:"chunk_id"`
	CompletedAt time.Time `json:"completed_at"`
	Result      *Result   `json:"result"`
}

// FailedChunk records one chunk whose analysis failed. Append-only; failed
// chunks are never re-queued within the same run.
type FailedChunk struct {
	ChunkID string    `json:"chunk_id"`
	Error   string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// ResultEntry is a flattened result record. Only the newest
// MaxPersistedResults entries survive a checkpoint; older entries are
// reproducible from CompletedChunks.
type ResultEntry struct {
	ChunkID   string    `json:"chunk_id"`
	Result    *Result   `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxPersistedResults bounds the Results window written to a checkpoint.
const MaxPersistedResults = 100

// Metadata keys the orchestrator writes as the session progresses.
const (
	MetaPlan       = "plan"
	MetaAggregated = "aggregated"
	MetaVerified   = "verified"
	MetaError      = "error"
)

// Session is the root aggregate: one end-to-end analysis run over a
// project path. It is the unit of checkpointing.
type Session struct {
	Version      int            `json:"version"`
	SessionID    SessionID      `json:"session_id"`
	ProjectPath  string         `json:"project_path"`
	Status       SessionStatus  `json:"status"`
	CurrentPhase Phase          `json:"current_phase"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      *time.Time     `json:"end_time,omitempty"`

	PendingChunks   []Chunk          `json:"pending_chunks"`
	CompletedChunks []CompletedChunk `json:"completed_chunks"`
	FailedChunks    []FailedChunk    `json:"failed_chunks"`
	Results         []ResultEntry    `json:"results,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CurrentSessionVersion is the schema version for checkpoint files.
const CurrentSessionVersion = 1

// NewSession creates a session for the given project path with a random
// identifier.
func NewSession(projectPath string) *Session {
	return &Session{
		Version:         CurrentSessionVersion,
		SessionID:       SessionID(uuid.NewString()),
		ProjectPath:     projectPath,
		Status:          StatusInitialized,
		CurrentPhase:    PhaseInitialization,
		StartTime:       time.Now(),
		PendingChunks:   make([]Chunk, 0),
		CompletedChunks: make([]CompletedChunk, 0),
		FailedChunks:    make([]FailedChunk, 0),
		Metadata:        make(map[string]any),
	}
}

// BeginPlanning transitions the session into the planning phase.
func (s *Session) BeginPlanning() error {
	if s.Status != StatusInitialized {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("cannot begin planning in %s state", s.Status))
	}
	s.Status = StatusPlanning
	s.CurrentPhase = PhasePlanning
	return nil
}

// BeginAnalyzing transitions the session into the analyzing phase.
func (s *Session) BeginAnalyzing() error {
	if s.Status != StatusPlanning {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("cannot begin analyzing in %s state", s.Status))
	}
	s.Status = StatusAnalyzing
	s.CurrentPhase = PhaseAnalyzing
	return nil
}

// BeginAggregating transitions the session into the aggregating phase.
func (s *Session) BeginAggregating() error {
	if s.Status != StatusAnalyzing {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("cannot begin aggregating in %s state", s.Status))
	}
	s.Status = StatusAggregating
	s.CurrentPhase = PhaseAggregation
	return nil
}

// Complete transitions the session to completed and stamps the end time.
func (s *Session) Complete() error {
	if s.Status != StatusAggregating {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("cannot complete session in %s state", s.Status))
	}
	s.Status = StatusCompleted
	now := time.Now()
	s.EndTime = &now
	return nil
}

// Fail transitions the session to failed from any non-terminal state and
// records the error in metadata.
func (s *Session) Fail(err error) {
	if s.IsTerminal() {
		return
	}
	s.Status = StatusFailed
	s.SetMetadata(MetaError, err.Error())
	now := time.Now()
	s.EndTime = &now
}

// SetPhase updates the fine-grained phase label.
func (s *Session) SetPhase(p Phase) {
	s.CurrentPhase = p
}

// SetPendingChunks installs the chunk list produced by the chunker. Valid
// only before any chunk has been processed.
func (s *Session) SetPendingChunks(chunks []Chunk) error {
	if len(s.CompletedChunks) > 0 || len(s.FailedChunks) > 0 {
		return ErrState(CodeInvalidState, "chunks already partially processed")
	}
	s.PendingChunks = chunks
	return nil
}

// HasCompleted reports whether the chunk is already in the completed set.
func (s *Session) HasCompleted(chunkID string) bool {
	for _, c := range s.CompletedChunks {
		if c.ChunkID == chunkID {
			return true
		}
	}
	return false
}

// HasFailed reports whether the chunk is already in the failed set.
func (s *Session) HasFailed(chunkID string) bool {
	for _, c := range s.FailedChunks {
		if c.ChunkID == chunkID {
			return true
		}
	}
	return false
}

// removePending removes a chunk from the pending queue by ID.
func (s *Session) removePending(chunkID string) bool {
	for i, c := range s.PendingChunks {
		if c.ID == chunkID {
			s.PendingChunks = append(s.PendingChunks[:i], s.PendingChunks[i+1:]...)
			return true
		}
	}
	return false
}

// MarkChunkCompleted moves a chunk from pending to completed, recording
// its result. A chunk ID lives in at most one queue at any time.
func (s *Session) MarkChunkCompleted(chunkID string, result *Result) error {
	if s.HasCompleted(chunkID) || s.HasFailed(chunkID) {
		return ErrState(CodeDuplicateChunk,
			fmt.Sprintf("chunk %s already recorded", chunkID))
	}
	if !s.removePending(chunkID) {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("chunk %s is not pending", chunkID))
	}
	now := time.Now()
	s.CompletedChunks = append(s.CompletedChunks, CompletedChunk{
		ChunkID:     chunkID,
		CompletedAt: now,
		Result:      result,
	})
	s.Results = append(s.Results, ResultEntry{
		ChunkID:   chunkID,
		Result:    result,
		Timestamp: now,
	})
	return nil
}

// MarkChunkFailed moves a chunk from pending to failed with the error
// message. The session continues; failed chunks are not retried.
func (s *Session) MarkChunkFailed(chunkID, errMsg string) error {
	if s.HasCompleted(chunkID) || s.HasFailed(chunkID) {
		return ErrState(CodeDuplicateChunk,
			fmt.Sprintf("chunk %s already recorded", chunkID))
	}
	if !s.removePending(chunkID) {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("chunk %s is not pending", chunkID))
	}
	s.FailedChunks = append(s.FailedChunks, FailedChunk{
		ChunkID:  chunkID,
		Error:    errMsg,
		FailedAt: time.Now(),
	})
	return nil
}

// TotalChunks returns the fixed chunk count once chunking has run.
func (s *Session) TotalChunks() int {
	return len(s.PendingChunks) + len(s.CompletedChunks) + len(s.FailedChunks)
}

// Progress returns round(completed / total * 100). Zero chunks means zero
// progress, not a division fault. Failed chunks count toward the total but
// never toward completion.
func (s *Session) Progress() int {
	total := s.TotalChunks()
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(len(s.CompletedChunks)) / float64(total) * 100))
}

// IsTerminal returns true if the session reached a terminal state.
func (s *Session) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Resumable reports whether automatic resume detection should consider
// this session. Failed sessions are excluded here; an explicit resume may
// still pick them up.
func (s *Session) Resumable() bool {
	return s.Status == StatusPlanning || s.Status == StatusAnalyzing
}

// SetMetadata stores a value in the session's open metadata map.
func (s *Session) SetMetadata(key string, value any) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata[key] = value
}

// TrimmedResults returns the newest bounded window of result entries,
// preserving order. Used at persistence time.
func (s *Session) TrimmedResults(max int) []ResultEntry {
	if max <= 0 || len(s.Results) <= max {
		return s.Results
	}
	return s.Results[len(s.Results)-max:]
}

// Duration returns the session's wall-clock duration.
func (s *Session) Duration() time.Duration {
	end := time.Now()
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return end.Sub(s.StartTime)
}

// Validate checks session invariants.
func (s *Session) Validate() error {
	if s.SessionID == "" {
		return ErrValidation("SESSION_ID_REQUIRED", "session ID cannot be empty")
	}
	if s.ProjectPath == "" {
		return ErrValidation("PROJECT_PATH_REQUIRED", "project path cannot be empty")
	}
	return nil
}
