package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/codesweep/codesweep/internal/checkpoint"
	"github.com/codesweep/codesweep/internal/core"
)

type fakeDiscoverer struct {
	files []string
	err   error
}

func (f *fakeDiscoverer) FindSourceFiles(_ context.Context, _ string) ([]string, error) {
	return f.files, f.err
}

// fakeWorker fails the chunks named in fail and records which chunks
// it was asked to analyze.
type fakeWorker struct {
	mu       sync.Mutex
	fail     map[string]bool
	analyzed []string
	issues   int
}

func (w *fakeWorker) Name() string { return "fake" }

func (w *fakeWorker) Analyze(_ context.Context, chunk core.Chunk) (*core.Result, error) {
	w.mu.Lock()
	w.analyzed = append(w.analyzed, chunk.ID)
	w.mu.Unlock()
	if w.fail[chunk.ID] {
		return nil, core.ErrExecution(core.CodeWorkerFailed, "simulated tool crash")
	}
	issues := make([]core.Issue, w.issues)
	for i := range issues {
		issues[i] = core.Issue{File: chunk.Files[0], Rule: "Fake"}
	}
	return &core.Result{Issues: issues}, nil
}

func (w *fakeWorker) analyzedChunks() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.analyzed))
	copy(out, w.analyzed)
	return out
}

func sourceFiles(n int) []string {
	files := make([]string, n)
	for i := range files {
		files[i] = fmt.Sprintf("/proj/src/File%03d.java", i)
	}
	return files
}

func newTestOrchestrator(t *testing.T, files []string, worker core.Worker, opts Options) (*Orchestrator, core.CheckpointStore) {
	t.Helper()
	store := checkpoint.NewJSONStore(t.TempDir())
	return New(store, &fakeDiscoverer{files: files}, worker, opts), store
}

func TestStartHappyPath(t *testing.T) {
	worker := &fakeWorker{issues: 2}
	o, store := newTestOrchestrator(t, sourceFiles(10), worker, Options{ChunkSize: 2, Parallel: 2})

	session, err := o.Start(context.Background(), "/proj")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if session.Status != core.StatusCompleted {
		t.Errorf("Status = %s, want completed", session.Status)
	}
	if got := len(session.CompletedChunks); got != 5 {
		t.Errorf("CompletedChunks = %d, want 5", got)
	}
	if session.Progress() != 100 {
		t.Errorf("Progress() = %d, want 100", session.Progress())
	}
	if session.EndTime == nil {
		t.Error("EndTime not stamped")
	}
	for _, key := range []string{core.MetaPlan, core.MetaAggregated, core.MetaVerified} {
		if _, ok := session.Metadata[key]; !ok {
			t.Errorf("Metadata[%s] missing", key)
		}
	}

	// The terminal state must be on disk.
	persisted, err := store.Load(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if persisted.Status != core.StatusCompleted {
		t.Errorf("persisted Status = %s, want completed", persisted.Status)
	}
}

func TestStartPartialFailure(t *testing.T) {
	worker := &fakeWorker{fail: map[string]bool{"chunk-2": true, "chunk-5": true, "chunk-7": true}}
	o, _ := newTestOrchestrator(t, sourceFiles(10), worker, Options{ChunkSize: 1, Parallel: 3})

	session, err := o.Start(context.Background(), "/proj")
	if err != nil {
		t.Fatalf("Start() error = %v, chunk failures must not fail the session", err)
	}

	if session.Status != core.StatusCompleted {
		t.Errorf("Status = %s, want completed", session.Status)
	}
	if len(session.CompletedChunks) != 7 || len(session.FailedChunks) != 3 {
		t.Errorf("chunks = %d completed / %d failed, want 7/3",
			len(session.CompletedChunks), len(session.FailedChunks))
	}
	if session.Progress() != 70 {
		t.Errorf("Progress() = %d, want 70", session.Progress())
	}
}

func TestNoDuplicateChunkIDs(t *testing.T) {
	worker := &fakeWorker{fail: map[string]bool{"chunk-3": true}}
	o, _ := newTestOrchestrator(t, sourceFiles(12), worker, Options{ChunkSize: 2, Parallel: 4})

	session, err := o.Start(context.Background(), "/proj")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	seen := make(map[string]int)
	for _, c := range session.CompletedChunks {
		seen[c.ChunkID]++
	}
	for _, c := range session.FailedChunks {
		seen[c.ChunkID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("chunk %s recorded %d times", id, n)
		}
	}
	if len(session.PendingChunks) != 0 {
		t.Errorf("PendingChunks = %d, want 0", len(session.PendingChunks))
	}
}

func TestStartZeroFiles(t *testing.T) {
	worker := &fakeWorker{}
	o, _ := newTestOrchestrator(t, nil, worker, Options{})

	session, err := o.Start(context.Background(), "/proj")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if session.Status != core.StatusCompleted {
		t.Errorf("Status = %s, want completed", session.Status)
	}
	if session.TotalChunks() != 0 {
		t.Errorf("TotalChunks = %d, want 0", session.TotalChunks())
	}
	if len(worker.analyzedChunks()) != 0 {
		t.Errorf("worker ran %d chunks on an empty tree", len(worker.analyzedChunks()))
	}
}

func TestStartResumesInFlightSession(t *testing.T) {
	files := sourceFiles(10)
	worker := &fakeWorker{}
	o, store := newTestOrchestrator(t, files, worker, Options{ChunkSize: 2, Parallel: 1})

	// Seed a mid-analysis checkpoint: 3 chunks done, 2 pending.
	seed := core.NewSession("/proj")
	if err := seed.BeginPlanning(); err != nil {
		t.Fatal(err)
	}
	chunks := mustChunks(t, files, 2)
	if err := seed.SetPendingChunks(chunks); err != nil {
		t.Fatal(err)
	}
	if err := seed.BeginAnalyzing(); err != nil {
		t.Fatal(err)
	}
	for _, c := range chunks[:3] {
		if err := seed.MarkChunkCompleted(c.ID, &core.Result{}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Save(context.Background(), seed); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	session, err := o.Start(context.Background(), "/proj")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if session.SessionID != seed.SessionID {
		t.Errorf("started a new session %s instead of resuming %s", session.SessionID, seed.SessionID)
	}
	if len(session.CompletedChunks) != 5 {
		t.Errorf("CompletedChunks = %d, want 5", len(session.CompletedChunks))
	}
	analyzed := worker.analyzedChunks()
	if len(analyzed) != 2 {
		t.Errorf("worker re-analyzed chunks: %v, want only the 2 pending", analyzed)
	}
	for _, id := range analyzed {
		if id != "chunk-4" && id != "chunk-5" {
			t.Errorf("worker analyzed already-completed chunk %s", id)
		}
	}
}

func TestResumeNoSession(t *testing.T) {
	worker := &fakeWorker{}
	o, _ := newTestOrchestrator(t, sourceFiles(4), worker, Options{})

	_, err := o.Resume(context.Background(), "/proj")
	if err == nil {
		t.Fatal("Resume() with no session should fail")
	}
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr.Category != core.ErrCatNotFound {
		t.Errorf("error = %v, want not_found", err)
	}
}

func TestResumeFailedSession(t *testing.T) {
	files := sourceFiles(6)
	worker := &fakeWorker{}
	o, store := newTestOrchestrator(t, files, worker, Options{ChunkSize: 2})

	seed := core.NewSession("/proj")
	if err := seed.BeginPlanning(); err != nil {
		t.Fatal(err)
	}
	if err := seed.SetPendingChunks(mustChunks(t, files, 2)); err != nil {
		t.Fatal(err)
	}
	if err := seed.BeginAnalyzing(); err != nil {
		t.Fatal(err)
	}
	seed.Fail(errors.New("process killed"))
	if _, err := store.Save(context.Background(), seed); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	session, err := o.Resume(context.Background(), "/proj")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if session.SessionID != seed.SessionID {
		t.Error("explicit resume should pick up the failed session")
	}
	if session.Status != core.StatusCompleted {
		t.Errorf("Status = %s, want completed", session.Status)
	}
	if _, stale := session.Metadata[core.MetaError]; stale {
		t.Error("stale failure metadata survived the resume")
	}
}

func TestStartSkipsFailedSession(t *testing.T) {
	worker := &fakeWorker{}
	o, store := newTestOrchestrator(t, sourceFiles(2), worker, Options{ChunkSize: 2})

	seed := core.NewSession("/proj")
	seed.Fail(errors.New("dead"))
	if _, err := store.Save(context.Background(), seed); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	session, err := o.Start(context.Background(), "/proj")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if session.SessionID == seed.SessionID {
		t.Error("Start() must not auto-resume a failed session")
	}
}

func TestDiscoveryFaultFailsSession(t *testing.T) {
	store := checkpoint.NewJSONStore(t.TempDir())
	disc := &fakeDiscoverer{err: core.ErrExecution(core.CodeDiscoveryFailed, "walk exploded")}
	o := New(store, disc, &fakeWorker{}, Options{})

	session, err := o.Start(context.Background(), "/proj")
	if err == nil {
		t.Fatal("Start() should surface the discovery fault")
	}
	if session.Status != core.StatusFailed {
		t.Errorf("Status = %s, want failed", session.Status)
	}
	if _, ok := session.Metadata[core.MetaError]; !ok {
		t.Error("Metadata[error] missing after fault")
	}

	// The failed state must be checkpointed.
	persisted, loadErr := store.Load(context.Background(), session.SessionID)
	if loadErr != nil {
		t.Fatalf("Load() error = %v", loadErr)
	}
	if persisted.Status != core.StatusFailed {
		t.Errorf("persisted Status = %s, want failed", persisted.Status)
	}
}

func TestRunReleasesLock(t *testing.T) {
	worker := &fakeWorker{}
	o, store := newTestOrchestrator(t, sourceFiles(2), worker, Options{ChunkSize: 2})

	session, err := o.Start(context.Background(), "/proj")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := store.AcquireLock(context.Background(), session.SessionID); err != nil {
		t.Errorf("lock still held after run: %v", err)
	}
}

func mustChunks(t *testing.T, files []string, size int) []core.Chunk {
	t.Helper()
	chunks := make([]core.Chunk, 0, (len(files)+size-1)/size)
	for i := 0; i < len(files); i += size {
		end := min(i+size, len(files))
		chunks = append(chunks, core.NewChunk(len(chunks)+1, files[i:end]))
	}
	return chunks
}
