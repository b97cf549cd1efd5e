// Package orchestrator drives an analysis session through its phases:
// planning, chunking, the bounded-parallel analysis loop, aggregation,
// verification, and completion. Every state mutation is checkpointed
// before the run moves on, so a crash at any point resumes from the
// last good state instead of starting over.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codesweep/codesweep/internal/aggregate"
	"github.com/codesweep/codesweep/internal/chunker"
	"github.com/codesweep/codesweep/internal/core"
	"github.com/codesweep/codesweep/internal/discovery"
	"github.com/codesweep/codesweep/internal/logging"
)

const (
	defaultChunkSize    = 50
	defaultParallel     = 3
	defaultChunkTimeout = 10 * time.Minute
)

// Options configures an Orchestrator.
type Options struct {
	// ChunkSize is the maximum number of files per chunk.
	ChunkSize int
	// Parallel bounds how many chunks are analyzed concurrently.
	Parallel int
	// ChunkTimeout bounds a single chunk's analysis.
	ChunkTimeout time.Duration

	Logger *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.Parallel <= 0 {
		o.Parallel = defaultParallel
	}
	if o.ChunkTimeout <= 0 {
		o.ChunkTimeout = defaultChunkTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return o
}

// Orchestrator runs analysis sessions. Safe for a single run at a
// time; per-session locks in the store keep concurrent processes off
// the same checkpoint.
type Orchestrator struct {
	store      core.CheckpointStore
	discoverer core.FileDiscoverer
	worker     core.Worker
	opts       Options
	logger     *logging.Logger

	// mu serializes session mutations and checkpoint writes during
	// the parallel analysis loop.
	mu sync.Mutex
}

// New builds an orchestrator from its collaborators.
func New(store core.CheckpointStore, discoverer core.FileDiscoverer, worker core.Worker, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		store:      store,
		discoverer: discoverer,
		worker:     worker,
		opts:       opts,
		logger:     opts.Logger,
	}
}

// Start begins analysis of projectPath, transparently resuming the
// newest in-flight session for that path if one exists.
func (o *Orchestrator) Start(ctx context.Context, projectPath string) (*core.Session, error) {
	session, err := o.store.FindResumable(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	if session != nil {
		o.logger.Info("resuming in-flight session",
			"session_id", session.SessionID,
			"status", session.Status,
			"progress", session.Progress(),
		)
		return o.run(ctx, session)
	}

	session = core.NewSession(projectPath)
	o.logger.Info("starting new session",
		"session_id", session.SessionID,
		"project", projectPath,
	)
	if _, err := o.store.Save(ctx, session); err != nil {
		return nil, err
	}
	return o.run(ctx, session)
}

// Resume explicitly resumes the newest session for projectPath. Unlike
// Start it also accepts a failed session, re-entering analysis from its
// last checkpoint. It is an error when nothing can be resumed.
func (o *Orchestrator) Resume(ctx context.Context, projectPath string) (*core.Session, error) {
	session, err := o.store.FindResumable(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session, err = o.newestFailed(ctx, projectPath)
		if err != nil {
			return nil, err
		}
	}
	if session == nil {
		return nil, core.ErrNotFound("resumable session", projectPath)
	}

	if session.Status == core.StatusFailed {
		o.reopen(session)
		if _, err := o.store.Save(ctx, session); err != nil {
			return nil, err
		}
	}

	o.logger.Info("resuming session",
		"session_id", session.SessionID,
		"status", session.Status,
		"progress", session.Progress(),
	)
	return o.run(ctx, session)
}

// newestFailed loads the most recently updated failed session for the
// project, or nil.
func (o *Orchestrator) newestFailed(ctx context.Context, projectPath string) (*core.Session, error) {
	summaries, err := o.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, sum := range summaries { // newest first
		if sum.ProjectPath == projectPath && sum.Status == core.StatusFailed {
			return o.store.Load(ctx, sum.SessionID)
		}
	}
	return nil, nil
}

// reopen returns a failed session to the state it failed out of, ready
// to re-enter the phase loop.
func (o *Orchestrator) reopen(session *core.Session) {
	session.EndTime = nil
	delete(session.Metadata, core.MetaError)
	if session.TotalChunks() > 0 {
		session.Status = core.StatusAnalyzing
		session.SetPhase(core.PhaseAnalyzing)
	} else {
		session.Status = core.StatusInitialized
		session.SetPhase(core.PhaseInitialization)
	}
}

// run drives the session forward from its current status to completion.
// Any orchestrator-level fault marks the session failed, checkpoints,
// and surfaces the error.
func (o *Orchestrator) run(ctx context.Context, session *core.Session) (*core.Session, error) {
	if err := o.store.AcquireLock(ctx, session.SessionID); err != nil {
		return nil, err
	}
	defer func() {
		if err := o.store.ReleaseLock(context.WithoutCancel(ctx), session.SessionID); err != nil {
			o.logger.Warn("failed to release session lock",
				"session_id", session.SessionID,
				"error", err,
			)
		}
	}()

	if err := o.advance(ctx, session); err != nil {
		o.fault(ctx, session, err)
		return session, err
	}
	return session, nil
}

// advance executes the remaining phases for the session's status.
func (o *Orchestrator) advance(ctx context.Context, session *core.Session) error {
	log := o.logger.WithSession(string(session.SessionID))

	if session.Status == core.StatusInitialized {
		if err := session.BeginPlanning(); err != nil {
			return err
		}
		if err := o.checkpoint(ctx, session); err != nil {
			return err
		}
	}

	if session.Status == core.StatusPlanning {
		if err := o.plan(ctx, session, log); err != nil {
			return err
		}
		if err := session.BeginAnalyzing(); err != nil {
			return err
		}
		if err := o.checkpoint(ctx, session); err != nil {
			return err
		}
	}

	if session.Status == core.StatusAnalyzing {
		if err := o.analyze(ctx, session, log); err != nil {
			return err
		}
		if err := session.BeginAggregating(); err != nil {
			return err
		}
		if err := o.checkpoint(ctx, session); err != nil {
			return err
		}
	}

	if session.Status == core.StatusAggregating {
		if err := o.finish(ctx, session, log); err != nil {
			return err
		}
	}

	if session.Status != core.StatusCompleted {
		return core.ErrState(core.CodeInvalidState,
			fmt.Sprintf("session ended in unexpected state %s", session.Status))
	}
	return nil
}

// plan discovers the source tree and cuts it into chunks. Resumed
// planning-phase sessions with chunks already installed skip straight
// through.
func (o *Orchestrator) plan(ctx context.Context, session *core.Session, log *logging.Logger) error {
	if session.TotalChunks() > 0 {
		log.Debug("plan already present, skipping discovery")
		return nil
	}

	files, err := o.discoverer.FindSourceFiles(ctx, session.ProjectPath)
	if err != nil {
		return err
	}

	packages := make(map[string]int)
	for _, f := range files {
		packages[discovery.PackageOf(session.ProjectPath, f)]++
	}
	estimated := (len(files) + o.opts.ChunkSize - 1) / o.opts.ChunkSize
	session.SetMetadata(core.MetaPlan, core.Plan{
		TotalFiles:      len(files),
		Packages:        packages,
		EstimatedChunks: estimated,
		ChunkSize:       o.opts.ChunkSize,
	})
	log.Info("planning complete",
		"files", len(files),
		"packages", len(packages),
		"estimated_chunks", estimated,
	)
	if err := o.checkpoint(ctx, session); err != nil {
		return err
	}

	session.SetPhase(core.PhaseChunking)
	chunks, err := chunker.Split(files, o.opts.ChunkSize)
	if err != nil {
		return err
	}
	if err := session.SetPendingChunks(chunks); err != nil {
		return err
	}
	log.Info("chunking complete", "chunks", len(chunks))
	return o.checkpoint(ctx, session)
}

// analyze runs the worker over every pending chunk with bounded
// parallelism. Chunk failures are recorded and the run continues;
// only infrastructure faults (checkpoint write failure, cancellation)
// abort the session.
func (o *Orchestrator) analyze(ctx context.Context, session *core.Session, log *logging.Logger) error {
	o.mu.Lock()
	pending := make([]core.Chunk, len(session.PendingChunks))
	copy(pending, session.PendingChunks)
	o.mu.Unlock()

	if len(pending) == 0 {
		log.Debug("no pending chunks")
		return nil
	}
	log.Info("analyzing",
		"pending", len(pending),
		"completed", len(session.CompletedChunks),
		"parallel", o.opts.Parallel,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Parallel)
	for _, chunk := range pending {
		g.Go(func() error {
			return o.analyzeChunk(gctx, session, chunk, log)
		})
	}
	return g.Wait()
}

// analyzeChunk runs one chunk through the worker and records the
// outcome under the orchestrator mutex, checkpointing immediately.
func (o *Orchestrator) analyzeChunk(ctx context.Context, session *core.Session, chunk core.Chunk, log *logging.Logger) error {
	cctx, cancel := context.WithTimeout(ctx, o.opts.ChunkTimeout)
	defer cancel()

	result, err := o.worker.Analyze(cctx, chunk)

	// A cancelled parent context aborts the session rather than
	// burning every remaining chunk as failed.
	if ctx.Err() != nil {
		return core.ErrTimeout("analysis interrupted").WithCause(ctx.Err())
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		log.Warn("chunk failed", "chunk_id", chunk.ID, "error", err)
		if markErr := session.MarkChunkFailed(chunk.ID, err.Error()); markErr != nil {
			return markErr
		}
	} else {
		log.Info("chunk completed",
			"chunk_id", chunk.ID,
			"issues", result.IssueCount(),
			"progress", session.Progress(),
		)
		if markErr := session.MarkChunkCompleted(chunk.ID, result); markErr != nil {
			return markErr
		}
	}
	return o.checkpointLocked(ctx, session)
}

// finish aggregates, verifies, and completes the session.
func (o *Orchestrator) finish(ctx context.Context, session *core.Session, log *logging.Logger) error {
	summary := aggregate.Aggregate(session)
	session.SetMetadata(core.MetaAggregated, summary)
	log.Info("aggregation complete",
		"total_issues", summary.TotalIssues,
		"failed_chunks", summary.FailedChunks,
	)
	if err := o.checkpoint(ctx, session); err != nil {
		return err
	}

	session.SetPhase(core.PhaseVerification)
	verification := aggregate.Verify(session)
	session.SetMetadata(core.MetaVerified, verification)
	log.Info("verification complete",
		"findings", len(verification.Findings),
		"confidence", verification.Confidence,
	)
	if err := o.checkpoint(ctx, session); err != nil {
		return err
	}

	if err := session.Complete(); err != nil {
		return err
	}
	if err := o.checkpoint(ctx, session); err != nil {
		return err
	}
	log.Info("session completed",
		"duration", session.Duration().Round(time.Millisecond),
		"total_issues", summary.TotalIssues,
	)
	return nil
}

// fault marks the session failed and makes a best-effort checkpoint so
// the failure itself survives the crash.
func (o *Orchestrator) fault(ctx context.Context, session *core.Session, cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	session.Fail(cause)
	if _, err := o.store.Save(context.WithoutCancel(ctx), session); err != nil {
		o.logger.Error("failed to checkpoint failure",
			"session_id", session.SessionID,
			"error", err,
		)
	}
	o.logger.Error("session failed",
		"session_id", session.SessionID,
		"error", cause,
	)
}

func (o *Orchestrator) checkpoint(ctx context.Context, session *core.Session) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checkpointLocked(ctx, session)
}

func (o *Orchestrator) checkpointLocked(ctx context.Context, session *core.Session) error {
	_, err := o.store.Save(ctx, session)
	return err
}
