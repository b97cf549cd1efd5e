package worker

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/codesweep/codesweep/internal/core"
	"github.com/codesweep/codesweep/internal/logging"
)

// MultiTool fans a chunk out to several workers concurrently and
// merges their findings. Sub-worker soft failures are recorded per
// tool; the merged result only soft-fails when every tool failed.
type MultiTool struct {
	workers []core.Worker
	logger  *logging.Logger
}

// NewMultiTool composes the given workers. At least one is required.
func NewMultiTool(opts Options, workers ...core.Worker) *MultiTool {
	return &MultiTool{
		workers: workers,
		logger:  opts.logger(),
	}
}

// Name implements core.Worker.
func (w *MultiTool) Name() string { return string(KindMultiTool) }

// Analyze implements core.Worker.
func (w *MultiTool) Analyze(ctx context.Context, chunk core.Chunk) (*core.Result, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	if len(w.workers) == 0 {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "multitool worker has no sub-workers")
	}

	results := make([]*core.Result, len(w.workers))
	g, ctx := errgroup.WithContext(ctx)
	for i, sub := range w.workers {
		g.Go(func() error {
			res, err := sub.Analyze(ctx, chunk)
			if err != nil {
				return fmt.Errorf("%s: %w", sub.Name(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &core.Result{
		ToolResults: make(map[string]*core.Result, len(w.workers)),
	}
	var failures []string
	for i, sub := range w.workers {
		res := results[i]
		merged.ToolResults[sub.Name()] = res
		if res == nil {
			continue
		}
		if res.Error != "" {
			failures = append(failures, fmt.Sprintf("%s: %s", sub.Name(), res.Error))
			continue
		}
		merged.Issues = append(merged.Issues, res.Issues...)
		if merged.Metrics == nil && res.Metrics != nil {
			merged.Metrics = res.Metrics
		} else if merged.Metrics != nil && res.Metrics != nil {
			mergeMetrics(merged.Metrics, res.Metrics)
		}
	}

	if len(failures) == len(w.workers) {
		merged.Error = "all tools failed: " + strings.Join(failures, "; ")
		w.logger.Warn("multitool: every tool failed", "chunk", chunk.ID, "detail", merged.Error)
	} else if len(failures) > 0 {
		w.logger.Warn("multitool: partial tool failure",
			"chunk", chunk.ID,
			"failed", len(failures),
			"total", len(w.workers),
		)
	}
	return merged, nil
}

// mergeMetrics folds structural fields missing from dst in from src.
// Line counts come from whichever tool measured them first; only the
// structure-specific fields are supplemented.
func mergeMetrics(dst, src *core.Metrics) {
	if dst.PackageCount == 0 {
		dst.PackageCount = src.PackageCount
	}
	if dst.LayeringScore == 0 {
		dst.LayeringScore = src.LayeringScore
	}
	if dst.TotalLines == 0 {
		dst.TotalLines = src.TotalLines
		dst.AvgLinesPerFile = src.AvgLinesPerFile
	}
}

var _ core.Worker = (*MultiTool)(nil)
