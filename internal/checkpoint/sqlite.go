package checkpoint

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codesweep/codesweep/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore implements core.CheckpointStore with SQLite storage. A
// single database holds every session's checkpoint, which makes the
// resumability query an indexed lookup instead of a directory scan.
type SQLiteStore struct {
	dbPath  string
	db      *sql.DB
	lockTTL time.Duration
	mu      sync.Mutex
}

// SQLiteStoreOption configures the store.
type SQLiteStoreOption func(*SQLiteStore)

// WithSQLiteLockTTL sets the duration after which a lock row is stale.
func WithSQLiteLockTTL(ttl time.Duration) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		s.lockTTL = ttl
	}
}

// NewSQLiteStore opens (creating if needed) a SQLite checkpoint store.
func NewSQLiteStore(dbPath string, opts ...SQLiteStoreOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		dbPath:  dbPath,
		lockTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	if _, err := db.Exec(migrationV1); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save persists the session in a single upsert and returns the database
// location.
func (s *SQLiteStore) Save(ctx context.Context, session *core.Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := session.Validate(); err != nil {
		return "", err
	}

	session.UpdatedAt = time.Now()

	persisted := *session
	persisted.Results = session.TrimmedResults(core.MaxPersistedResults)

	data, err := json.Marshal(&persisted)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}
	hash := sha256.Sum256(data)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, project_path, status, current_phase, updated_at, checksum, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			project_path = excluded.project_path,
			status = excluded.status,
			current_phase = excluded.current_phase,
			updated_at = excluded.updated_at,
			checksum = excluded.checksum,
			data = excluded.data`,
		string(session.SessionID),
		session.ProjectPath,
		string(session.Status),
		string(session.CurrentPhase),
		session.UpdatedAt.Format(time.RFC3339Nano),
		hex.EncodeToString(hash[:]),
		data,
	)
	if err != nil {
		return "", fmt.Errorf("saving session: %w", err)
	}

	return s.dbPath, nil
}

func decodeRow(data []byte, checksum string) (*core.Session, error) {
	hash := sha256.Sum256(data)
	if hex.EncodeToString(hash[:]) != checksum {
		return nil, core.ErrState(core.CodeCheckpointCorrupted, "checksum mismatch")
	}
	var session core.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, core.ErrState(core.CodeCheckpointCorrupted,
			"session payload does not parse").WithCause(err)
	}
	return &session, nil
}

// Load retrieves a session by ID. Corruption is a hard error here.
func (s *SQLiteStore) Load(ctx context.Context, id core.SessionID) (*core.Session, error) {
	var (
		data     []byte
		checksum string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, checksum FROM sessions WHERE session_id = ?`, string(id)).
		Scan(&data, &checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("session", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return decodeRow(data, checksum)
}

// FindResumable returns the most recently updated non-terminal session
// for the project path, or nil. Undecodable rows are skipped.
func (s *SQLiteStore) FindResumable(ctx context.Context, projectPath string) (*core.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data, checksum FROM sessions
		WHERE project_path = ? AND status IN (?, ?)
		ORDER BY updated_at DESC`,
		projectPath, string(core.StatusPlanning), string(core.StatusAnalyzing))
	if err != nil {
		return nil, fmt.Errorf("querying resumable sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			data     []byte
			checksum string
		)
		if err := rows.Scan(&data, &checksum); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		session, err := decodeRow(data, checksum)
		if err != nil {
			continue
		}
		return session, rows.Err()
	}
	return nil, rows.Err()
}

// ListAll returns summaries of every decodable session, newest first.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]core.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data, checksum FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var summaries []core.SessionSummary
	for rows.Next() {
		var (
			data     []byte
			checksum string
		)
		if err := rows.Scan(&data, &checksum); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		session, err := decodeRow(data, checksum)
		if err != nil {
			continue
		}
		summaries = append(summaries, Summarize(session))
	}
	return summaries, rows.Err()
}

// Delete removes a single session and its lock row.
func (s *SQLiteStore) Delete(ctx context.Context, id core.SessionID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return core.ErrNotFound("session", string(id))
	}
	_, _ = s.db.ExecContext(ctx,
		`DELETE FROM session_locks WHERE session_id = ?`, string(id))
	return nil
}

// Clean removes every session and lock row, returning the session count.
func (s *SQLiteStore) Clean(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("cleaning sessions: %w", err)
	}
	affected, _ := res.RowsAffected()
	_, _ = s.db.ExecContext(ctx, `DELETE FROM session_locks`)
	return int(affected), nil
}

// AcquireLock obtains an exclusive per-session lock row. Stale rows (TTL
// expired or owner process gone) are broken.
func (s *SQLiteStore) AcquireLock(ctx context.Context, id core.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		pid        int
		acquiredAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT pid, acquired_at FROM session_locks WHERE session_id = ?`, string(id)).
		Scan(&pid, &acquiredAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No lock held.
	case err != nil:
		return fmt.Errorf("querying lock: %w", err)
	default:
		when, parseErr := time.Parse(time.RFC3339Nano, acquiredAt)
		if parseErr == nil && time.Since(when) < s.lockTTL && processExists(pid) {
			return core.ErrState(core.CodeLockAcquireFailed,
				fmt.Sprintf("session locked by PID %d since %s", pid, acquiredAt))
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM session_locks WHERE session_id = ?`, string(id)); err != nil {
			return fmt.Errorf("breaking stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_locks (session_id, pid, hostname, acquired_at)
		VALUES (?, ?, ?, ?)`,
		string(id), os.Getpid(), hostname, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return core.ErrState(core.CodeLockAcquireFailed,
			"lock row created by another process").WithCause(err)
	}
	return nil
}

// ReleaseLock releases the per-session lock if this process owns it.
func (s *SQLiteStore) ReleaseLock(ctx context.Context, id core.SessionID) error {
	var pid int
	err := s.db.QueryRowContext(ctx,
		`SELECT pid FROM session_locks WHERE session_id = ?`, string(id)).Scan(&pid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil // Already released
	}
	if err != nil {
		return fmt.Errorf("querying lock: %w", err)
	}
	if pid != os.Getpid() {
		return core.ErrState(core.CodeLockReleaseFailed, "lock owned by different process")
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM session_locks WHERE session_id = ?`, string(id))
	return err
}

// Verify that SQLiteStore implements core.CheckpointStore.
var _ core.CheckpointStore = (*SQLiteStore)(nil)
