package core

import (
	"context"
	"time"
)

// =============================================================================
// Worker Port
// =============================================================================

// Worker turns a chunk into a result. Implementations must not mutate the
// chunk and must report normally-anticipated conditions (tool missing,
// file unreadable) as soft errors inside the Result, never as a returned
// error. A returned error marks the chunk as failed.
type Worker interface {
	// Name returns the worker identifier (e.g., "static", "architecture").
	Name() string

	// Analyze runs the analysis for a single chunk. It must honor ctx
	// cancellation; the orchestrator bounds every invocation with a
	// timeout.
	Analyze(ctx context.Context, chunk Chunk) (*Result, error)
}

// =============================================================================
// CheckpointStore Port
// =============================================================================

// CheckpointStore persists one session document per session ID. The
// orchestrator checkpoints after every externally visible state change;
// writes must be atomic enough that a reader never observes a half-written
// document.
type CheckpointStore interface {
	// Save persists the session and returns its storage location.
	Save(ctx context.Context, session *Session) (string, error)

	// Load retrieves a session by ID. A checkpoint that exists but cannot
	// be parsed is a hard error here, unlike during scans.
	Load(ctx context.Context, id SessionID) (*Session, error)

	// FindResumable returns the non-terminal session for the project path
	// with the most recent update, or nil if none exists. Corrupt
	// checkpoints are skipped, never surfaced.
	FindResumable(ctx context.Context, projectPath string) (*Session, error)

	// ListAll returns summaries of every readable checkpoint.
	ListAll(ctx context.Context) ([]SessionSummary, error)

	// Delete removes a single session's checkpoint.
	Delete(ctx context.Context, id SessionID) error

	// Clean removes all checkpoints and returns the count removed.
	Clean(ctx context.Context) (int, error)

	// AcquireLock obtains an exclusive per-session lock so that two
	// orchestrator processes never drive the same session concurrently.
	AcquireLock(ctx context.Context, id SessionID) error

	// ReleaseLock releases the per-session lock.
	ReleaseLock(ctx context.Context, id SessionID) error
}

// Closeable is an optional interface for stores that need cleanup.
type Closeable interface {
	Close() error
}

// CloseStore safely closes a store if it implements Closeable.
func CloseStore(s CheckpointStore) error {
	if c, ok := s.(Closeable); ok {
		return c.Close()
	}
	return nil
}

// SessionSummary is a lightweight view of a checkpoint for listing.
type SessionSummary struct {
	SessionID   SessionID     `json:"session_id"`
	ProjectPath string        `json:"project_path"`
	Status      SessionStatus `json:"status"`
	Phase       Phase         `json:"current_phase"`
	Completed   int           `json:"completed"`
	Pending     int           `json:"pending"`
	Failed      int           `json:"failed"`
	Progress    int           `json:"progress"`
	Resumable   bool          `json:"resumable"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IDPrefix returns the shortened session ID used in listings.
func (s SessionSummary) IDPrefix() string {
	id := string(s.SessionID)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// =============================================================================
// Collaborator Ports
// =============================================================================

// FileDiscoverer enumerates the source files of a project tree. The
// returned paths are absolute and deterministically ordered.
type FileDiscoverer interface {
	FindSourceFiles(ctx context.Context, rootPath string) ([]string, error)
}

// Renderer turns a finished session into report text.
type Renderer interface {
	Render(session *Session, format string) (string, error)
}

// Plan is the planning-phase output stashed in metadata before chunking.
type Plan struct {
	TotalFiles      int            `json:"total_files"`
	Packages        map[string]int `json:"packages"`
	EstimatedChunks int            `json:"estimated_chunks"`
	ChunkSize       int            `json:"chunk_size"`
}
