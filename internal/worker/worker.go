// Package worker provides the analysis workers the orchestrator runs
// against each chunk. Workers are small and stateless: they take a
// chunk, analyze its files, and return a result. A worker reports
// tool-level problems (missing binary, unparseable output) inside the
// result rather than failing the chunk, so one broken tool does not
// sink a run.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/codesweep/codesweep/internal/core"
	"github.com/codesweep/codesweep/internal/logging"
)

// Kind identifies a worker implementation.
type Kind string

const (
	// KindStatic runs PMD static analysis.
	KindStatic Kind = "static"
	// KindArchitecture runs structural heuristics over the chunk.
	KindArchitecture Kind = "architecture"
	// KindMultiTool fans a chunk out to every enabled worker and
	// merges the results.
	KindMultiTool Kind = "multitool"
)

// Options carries the tool configuration shared by all worker kinds.
type Options struct {
	// ProjectRoot anchors package resolution and relative paths.
	ProjectRoot string

	// PMDPath is the pmd executable. Empty means "pmd" from PATH.
	PMDPath string
	// PMDRules is a PMD ruleset reference passed via -R.
	PMDRules string
	// PMDTimeout bounds a single pmd invocation. Zero means no
	// extra bound beyond the caller's context.
	PMDTimeout time.Duration

	// ArchMaxFileLines is the threshold above which a file is
	// flagged as oversized. Zero picks the default.
	ArchMaxFileLines int

	Logger *logging.Logger
}

func (o Options) logger() *logging.Logger {
	if o.Logger == nil {
		return logging.NewNop()
	}
	return o.Logger
}

// New builds a worker of the given kind. Unknown kinds are a
// validation error so a bad config value fails before any analysis
// starts.
func New(kind Kind, opts Options) (core.Worker, error) {
	switch kind {
	case KindStatic:
		return NewStatic(opts), nil
	case KindArchitecture:
		return NewArchitecture(opts), nil
	case KindMultiTool:
		return NewMultiTool(opts, NewStatic(opts), NewArchitecture(opts)), nil
	default:
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("unknown worker kind %q", kind))
	}
}

// ParseKind validates a configuration string as a worker kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindStatic, KindArchitecture, KindMultiTool:
		return Kind(s), nil
	}
	return "", core.ErrValidation(core.CodeInvalidConfig,
		fmt.Sprintf("unknown worker kind %q", s))
}

// softFail wraps a tool-level error into a result so the chunk still
// counts as analyzed.
func softFail(err error) *core.Result {
	return &core.Result{Error: err.Error()}
}

// checkCtx surfaces cancellation before a worker starts expensive work.
func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return core.ErrTimeout("analysis cancelled").WithCause(err)
	}
	return nil
}
