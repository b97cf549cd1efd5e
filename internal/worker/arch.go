package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/codesweep/codesweep/internal/core"
	"github.com/codesweep/codesweep/internal/discovery"
	"github.com/codesweep/codesweep/internal/fsutil"
	"github.com/codesweep/codesweep/internal/logging"
)

const defaultMaxFileLines = 500

// layer buckets recognized by directory or filename convention.
var layerMarkers = map[string]string{
	"controller": "web",
	"rest":       "web",
	"web":        "web",
	"api":        "web",
	"service":    "service",
	"usecase":    "service",
	"application": "service",
	"repository": "persistence",
	"dao":        "persistence",
	"persistence": "persistence",
	"entity":     "domain",
	"model":      "domain",
	"domain":     "domain",
}

// Architecture inspects a chunk's structure: package spread, layering
// conventions, and oversized files. It never shells out, so it is the
// fallback when no static analysis tool is installed.
type Architecture struct {
	root     string
	maxLines int
	logger   *logging.Logger
}

// NewArchitecture builds the structural worker from options.
func NewArchitecture(opts Options) *Architecture {
	maxLines := opts.ArchMaxFileLines
	if maxLines <= 0 {
		maxLines = defaultMaxFileLines
	}
	return &Architecture{
		root:     opts.ProjectRoot,
		maxLines: maxLines,
		logger:   opts.logger(),
	}
}

// Name implements core.Worker.
func (w *Architecture) Name() string { return string(KindArchitecture) }

// Analyze implements core.Worker.
func (w *Architecture) Analyze(ctx context.Context, chunk core.Chunk) (*core.Result, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	packages := make(map[string]struct{})
	layered := 0
	metrics := &core.Metrics{FileCount: chunk.FileCount}
	counted := 0

	var issues []core.Issue
	for _, file := range chunk.Files {
		if err := ctx.Err(); err != nil {
			return nil, core.ErrTimeout("analysis cancelled").WithCause(err)
		}

		pkg := discovery.PackageOf(w.root, file)
		packages[pkg] = struct{}{}
		if layerOf(file) != "" {
			layered++
		}

		lines, err := fsutil.CountLines(file)
		if err != nil {
			issues = append(issues, core.Issue{
				File:        file,
				Rule:        "UnreadableFile",
				Priority:    2,
				Description: fmt.Sprintf("file could not be read: %v", err),
				Tool:        w.Name(),
			})
			continue
		}
		metrics.TotalLines += lines
		counted++
		if lines > w.maxLines {
			issues = append(issues, core.Issue{
				File:        file,
				Line:        1,
				Rule:        "OversizedFile",
				Priority:    3,
				Description: fmt.Sprintf("file has %d lines, consider splitting above %d", lines, w.maxLines),
				Tool:        w.Name(),
			})
		}
	}

	if counted > 0 {
		metrics.AvgLinesPerFile = float64(metrics.TotalLines) / float64(counted)
	}
	metrics.PackageCount = len(packages)
	if chunk.FileCount > 0 {
		metrics.LayeringScore = float64(layered) / float64(chunk.FileCount)
	}

	w.logger.Debug("architecture: chunk analyzed",
		"chunk", chunk.ID,
		"packages", metrics.PackageCount,
		"layering_score", metrics.LayeringScore,
		"issues", len(issues),
	)
	return &core.Result{Issues: issues, Metrics: metrics}, nil
}

// layerOf maps a file path to its architectural layer, or "" when no
// convention matches. Directory segments win over filename suffixes.
func layerOf(path string) string {
	dir := filepath.ToSlash(filepath.Dir(path))
	for _, segment := range strings.Split(dir, "/") {
		if layer, ok := layerMarkers[strings.ToLower(segment)]; ok {
			return layer
		}
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	lower := strings.ToLower(base)
	for marker, layer := range layerMarkers {
		if strings.HasSuffix(lower, marker) {
			return layer
		}
	}
	return ""
}

var _ core.Worker = (*Architecture)(nil)
