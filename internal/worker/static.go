package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/codesweep/codesweep/internal/core"
	"github.com/codesweep/codesweep/internal/fsutil"
	"github.com/codesweep/codesweep/internal/logging"
)

const (
	defaultPMDBinary  = "pmd"
	defaultPMDRules   = "rulesets/java/quickstart.xml"
	defaultPMDTimeout = 5 * time.Minute

	// PMD exits 4 when the analysis ran fine but found violations.
	pmdExitViolations = 4
)

// Static runs PMD over a chunk and converts its JSON report into
// issues. Tool-level failures (binary missing, report unparseable)
// become a soft-failed result, not an error.
type Static struct {
	binary  string
	rules   string
	timeout time.Duration
	logger  *logging.Logger
}

// NewStatic builds the PMD worker from options, filling defaults.
func NewStatic(opts Options) *Static {
	binary := opts.PMDPath
	if binary == "" {
		binary = defaultPMDBinary
	}
	rules := opts.PMDRules
	if rules == "" {
		rules = defaultPMDRules
	}
	timeout := opts.PMDTimeout
	if timeout == 0 {
		timeout = defaultPMDTimeout
	}
	return &Static{
		binary:  binary,
		rules:   rules,
		timeout: timeout,
		logger:  opts.logger(),
	}
}

// Name implements core.Worker.
func (w *Static) Name() string { return string(KindStatic) }

// pmdReport mirrors the JSON report PMD emits with -f json.
type pmdReport struct {
	Files []struct {
		Filename   string `json:"filename"`
		Violations []struct {
			BeginLine   int    `json:"beginline"`
			EndLine     int    `json:"endline"`
			Description string `json:"description"`
			Rule        string `json:"rule"`
			RuleSet     string `json:"ruleset"`
			Priority    int    `json:"priority"`
		} `json:"violations"`
	} `json:"files"`
	ProcessingErrors []struct {
		Filename string `json:"filename"`
		Message  string `json:"message"`
	} `json:"processingErrors"`
}

// Analyze implements core.Worker.
func (w *Static) Analyze(ctx context.Context, chunk core.Chunk) (*core.Result, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	if len(chunk.Files) == 0 {
		return &core.Result{Metrics: &core.Metrics{}}, nil
	}

	resolved, err := exec.LookPath(w.binary)
	if err != nil {
		w.logger.Warn("pmd binary not found, skipping static analysis",
			"binary", w.binary,
			"chunk", chunk.ID,
		)
		return softFail(fmt.Errorf("pmd not available: %w", err)), nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	args := []string{
		"check",
		"-d", strings.Join(chunk.Files, ","),
		"-R", w.rules,
		"-f", "json",
		"--no-cache",
	}

	// #nosec G204 -- binary resolved via LookPath, args built from discovered files
	cmd := exec.CommandContext(ctx, resolved, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	w.logger.Debug("pmd: executing",
		"chunk", chunk.ID,
		"files", chunk.FileCount,
		"rules", w.rules,
	)
	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, core.ErrTimeout(fmt.Sprintf("pmd timed out after %v on %s", w.timeout, chunk.ID))
	}
	if ctx.Err() == context.Canceled {
		return nil, core.ErrTimeout("analysis cancelled").WithCause(ctx.Err())
	}

	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok || exitErr.ExitCode() != pmdExitViolations {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = runErr.Error()
			}
			w.logger.Error("pmd: command failed",
				"chunk", chunk.ID,
				"duration", duration,
				"error", msg,
			)
			return softFail(fmt.Errorf("pmd failed: %s", msg)), nil
		}
	}

	var report pmdReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return softFail(fmt.Errorf("parsing pmd report: %w", err)), nil
	}

	result := &core.Result{
		Issues:  w.collectIssues(chunk, report),
		Metrics: w.measure(chunk),
	}
	w.logger.Info("pmd: chunk analyzed",
		"chunk", chunk.ID,
		"issues", len(result.Issues),
		"duration", duration,
	)
	return result, nil
}

// collectIssues converts PMD violations to issues, keeping only
// findings against files that belong to the chunk.
func (w *Static) collectIssues(chunk core.Chunk, report pmdReport) []core.Issue {
	inChunk := make(map[string]struct{}, len(chunk.Files))
	for _, f := range chunk.Files {
		inChunk[f] = struct{}{}
	}

	var issues []core.Issue
	for _, file := range report.Files {
		if _, ok := inChunk[file.Filename]; !ok {
			continue
		}
		for _, v := range file.Violations {
			issues = append(issues, core.Issue{
				File:        file.Filename,
				Line:        v.BeginLine,
				EndLine:     v.EndLine,
				Rule:        v.Rule,
				RuleSet:     v.RuleSet,
				Priority:    v.Priority,
				Description: strings.TrimSpace(v.Description),
				Tool:        w.Name(),
			})
		}
	}
	for _, pe := range report.ProcessingErrors {
		if _, ok := inChunk[pe.Filename]; !ok {
			continue
		}
		issues = append(issues, core.Issue{
			File:        pe.Filename,
			Rule:        "ProcessingError",
			Description: pe.Message,
			Tool:        w.Name(),
		})
	}
	return issues
}

// measure computes line metrics for the chunk. Unreadable files are
// skipped; they are flagged later during verification.
func (w *Static) measure(chunk core.Chunk) *core.Metrics {
	m := &core.Metrics{FileCount: chunk.FileCount}
	counted := 0
	for _, f := range chunk.Files {
		n, err := fsutil.CountLines(f)
		if err != nil {
			continue
		}
		m.TotalLines += n
		counted++
	}
	if counted > 0 {
		m.AvgLinesPerFile = float64(m.TotalLines) / float64(counted)
	}
	return m
}

var _ core.Worker = (*Static)(nil)
