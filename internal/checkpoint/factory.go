package checkpoint

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/codesweep/codesweep/internal/core"
)

// Backend selects a checkpoint storage implementation.
type Backend string

const (
	BackendJSON   Backend = "json"
	BackendSQLite Backend = "sqlite"
)

// StoreOptions configures store creation.
type StoreOptions struct {
	// LockTTL is the duration after which a lock is considered stale.
	// If zero, the backend default (one hour) is used.
	LockTTL time.Duration
}

// NewStore creates a CheckpointStore of the given backend rooted at dir.
// The JSON backend keeps one state-<id>.json per session under dir; the
// SQLite backend keeps a single checkpoints.db.
func NewStore(backend Backend, dir string, opts StoreOptions) (core.CheckpointStore, error) {
	switch backend {
	case BackendJSON, "":
		var jsonOpts []JSONStoreOption
		if opts.LockTTL > 0 {
			jsonOpts = append(jsonOpts, WithLockTTL(opts.LockTTL))
		}
		return NewJSONStore(dir, jsonOpts...), nil
	case BackendSQLite:
		var sqliteOpts []SQLiteStoreOption
		if opts.LockTTL > 0 {
			sqliteOpts = append(sqliteOpts, WithSQLiteLockTTL(opts.LockTTL))
		}
		return NewSQLiteStore(filepath.Join(dir, "checkpoints.db"), sqliteOpts...)
	default:
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("unknown checkpoint backend: %s", backend))
	}
}
