// Package checkpoint provides durable session persistence behind the
// core.CheckpointStore port, with JSON-file and SQLite backends.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/codesweep/codesweep/internal/core"
)

const (
	statePrefix = "state-"
	stateSuffix = ".json"
	lockSuffix  = ".lock"
)

// JSONStore implements core.CheckpointStore with one JSON document per
// session under a checkpoint directory.
type JSONStore struct {
	dir     string
	lockTTL time.Duration
	mu      sync.Mutex // serializes writes within this process
}

// JSONStoreOption configures the store.
type JSONStoreOption func(*JSONStore)

// WithLockTTL sets the duration after which a lock is considered stale.
func WithLockTTL(ttl time.Duration) JSONStoreOption {
	return func(s *JSONStore) {
		s.lockTTL = ttl
	}
}

// NewJSONStore creates a JSON checkpoint store rooted at dir.
func NewJSONStore(dir string, opts ...JSONStoreOption) *JSONStore {
	s := &JSONStore{
		dir:     dir,
		lockTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// envelope wraps a serialized session with integrity metadata. The session
// payload stays raw so the checksum covers the exact bytes written.
type envelope struct {
	Version   int             `json:"version"`
	Checksum  string          `json:"checksum"`
	UpdatedAt time.Time       `json:"updated_at"`
	Session   json.RawMessage `json:"session"`
}

func (s *JSONStore) statePath(id core.SessionID) string {
	return filepath.Join(s.dir, statePrefix+string(id)+stateSuffix)
}

func (s *JSONStore) lockPath(id core.SessionID) string {
	return filepath.Join(s.dir, statePrefix+string(id)+lockSuffix)
}

// Save persists the session atomically and returns the file location. The
// results window is truncated to the newest bounded window on write; the
// caller's session keeps the full list.
func (s *JSONStore) Save(_ context.Context, session *core.Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := session.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating checkpoint directory: %w", err)
	}

	session.UpdatedAt = time.Now()

	persisted := *session
	persisted.Results = session.TrimmedResults(core.MaxPersistedResults)

	sessionBytes, err := json.Marshal(&persisted)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}

	hash := sha256.Sum256(sessionBytes)
	env := envelope{
		Version:   core.CurrentSessionVersion,
		Checksum:  hex.EncodeToString(hash[:]),
		UpdatedAt: session.UpdatedAt,
		Session:   sessionBytes,
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling envelope: %w", err)
	}

	path := s.statePath(session.SessionID)
	if err := atomicWriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing checkpoint file: %w", err)
	}

	return path, nil
}

// Load retrieves a session by ID. A missing checkpoint is a not-found
// error; an unparseable one is a hard corruption error, since an explicit
// load has no fallback.
func (s *JSONStore) Load(_ context.Context, id core.SessionID) (*core.Session, error) {
	path := s.statePath(id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, core.ErrNotFound("session", string(id))
	}
	return loadFromPath(path)
}

func loadFromPath(path string) (*core.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, core.ErrState(core.CodeCheckpointCorrupted,
			"checkpoint is not valid JSON").WithCause(err)
	}

	hash := sha256.Sum256(env.Session)
	if hex.EncodeToString(hash[:]) != env.Checksum {
		return nil, core.ErrState(core.CodeCheckpointCorrupted, "checksum mismatch")
	}

	var session core.Session
	if err := json.Unmarshal(env.Session, &session); err != nil {
		return nil, core.ErrState(core.CodeCheckpointCorrupted,
			"session payload does not parse").WithCause(err)
	}

	return &session, nil
}

// scan loads every readable checkpoint under the store directory.
// Corrupt files are skipped, never surfaced; a missing directory means
// no sessions.
func (s *JSONStore) scan() ([]*core.Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint directory: %w", err)
	}

	var sessions []*core.Session
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, statePrefix) || !strings.HasSuffix(name, stateSuffix) {
			continue
		}
		session, err := loadFromPath(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// FindResumable returns the non-terminal session for projectPath with the
// most recent UpdatedAt, or nil if none exists. Directory-listing order is
// not a recency ordering, so candidates are compared by timestamp.
func (s *JSONStore) FindResumable(ctx context.Context, projectPath string) (*core.Session, error) {
	sessions, err := s.scan()
	if err != nil {
		return nil, err
	}

	var best *core.Session
	for _, session := range sessions {
		if session.ProjectPath != projectPath || !session.Resumable() {
			continue
		}
		if best == nil || session.UpdatedAt.After(best.UpdatedAt) {
			best = session
		}
	}
	return best, nil
}

// ListAll returns summaries of every readable checkpoint, newest first.
func (s *JSONStore) ListAll(ctx context.Context) ([]core.SessionSummary, error) {
	sessions, err := s.scan()
	if err != nil {
		return nil, err
	}

	summaries := make([]core.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, Summarize(session))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Delete removes a single session's checkpoint and lock file.
func (s *JSONStore) Delete(_ context.Context, id core.SessionID) error {
	path := s.statePath(id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return core.ErrNotFound("session", string(id))
		}
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	_ = os.Remove(s.lockPath(id))
	return nil
}

// Clean deletes all checkpoint and lock files. Irreversible. Returns the
// number of checkpoint documents removed.
func (s *JSONStore) Clean(_ context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading checkpoint directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, statePrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return count, fmt.Errorf("removing %s: %w", name, err)
		}
		if strings.HasSuffix(name, stateSuffix) {
			count++
		}
	}
	return count, nil
}

// lockInfo represents lock file contents.
type lockInfo struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// AcquireLock acquires an exclusive per-session lock. A lock held by a
// live process within the TTL blocks acquisition; stale locks are broken.
func (s *JSONStore) AcquireLock(_ context.Context, id core.SessionID) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}

	lockPath := s.lockPath(id)
	if data, err := os.ReadFile(lockPath); err == nil {
		var info lockInfo
		if err := json.Unmarshal(data, &info); err == nil {
			if time.Since(info.AcquiredAt) < s.lockTTL && processExists(info.PID) {
				return core.ErrState(core.CodeLockAcquireFailed,
					fmt.Sprintf("session locked by PID %d since %s",
						info.PID, info.AcquiredAt.Format(time.RFC3339)))
			}
		}
		// Stale or unreadable lock, remove it.
		os.Remove(lockPath)
	}

	hostname, _ := os.Hostname()
	info := lockInfo{
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now(),
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshaling lock info: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return core.ErrState(core.CodeLockAcquireFailed,
				"lock file created by another process")
		}
		return fmt.Errorf("creating lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}

// ReleaseLock releases the per-session lock if this process owns it.
func (s *JSONStore) ReleaseLock(_ context.Context, id core.SessionID) error {
	lockPath := s.lockPath(id)
	data, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Already released
		}
		return fmt.Errorf("reading lock file: %w", err)
	}

	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("parsing lock info: %w", err)
	}
	if info.PID != os.Getpid() {
		return core.ErrState(core.CodeLockReleaseFailed, "lock owned by different process")
	}

	return os.Remove(lockPath)
}

// Dir returns the checkpoint directory.
func (s *JSONStore) Dir() string {
	return s.dir
}

// Summarize builds a listing summary from a session.
func Summarize(session *core.Session) core.SessionSummary {
	return core.SessionSummary{
		SessionID:   session.SessionID,
		ProjectPath: session.ProjectPath,
		Status:      session.Status,
		Phase:       session.CurrentPhase,
		Completed:   len(session.CompletedChunks),
		Pending:     len(session.PendingChunks),
		Failed:      len(session.FailedChunks),
		Progress:    session.Progress(),
		Resumable:   session.Resumable(),
		UpdatedAt:   session.UpdatedAt,
	}
}

// processExists checks if a process is running.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds, so we send signal 0
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// Verify that JSONStore implements core.CheckpointStore.
var _ core.CheckpointStore = (*JSONStore)(nil)
