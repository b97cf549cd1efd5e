// Package aggregate folds completed chunk results into a project-wide
// summary and cross-checks them for findings that cannot be trusted.
// Verification is advisory: it annotates, it never mutates results or
// fails the session.
package aggregate

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/codesweep/codesweep/internal/core"
)

// Summary is the project-wide roll-up of all completed chunks.
type Summary struct {
	TotalChunks     int            `json:"total_chunks" yaml:"total_chunks"`
	CompletedChunks int            `json:"completed_chunks" yaml:"completed_chunks"`
	FailedChunks    int            `json:"failed_chunks" yaml:"failed_chunks"`
	TotalIssues     int            `json:"total_issues" yaml:"total_issues"`
	IssuesByRule    map[string]int `json:"issues_by_rule,omitempty" yaml:"issues_by_rule,omitempty"`
	Reports         []string       `json:"reports,omitempty" yaml:"reports,omitempty"`
	Text            string         `json:"summary" yaml:"summary"`
}

// Aggregate rolls the completed chunks of a session up into a Summary.
// Chunks with nil or partial results still count; their missing pieces
// contribute nothing.
func Aggregate(session *core.Session) *Summary {
	s := &Summary{
		TotalChunks:     session.TotalChunks(),
		CompletedChunks: len(session.CompletedChunks),
		FailedChunks:    len(session.FailedChunks),
		IssuesByRule:    make(map[string]int),
	}

	for _, cc := range session.CompletedChunks {
		res := cc.Result
		if res == nil {
			continue
		}
		s.TotalIssues += len(res.Issues)
		for _, issue := range res.Issues {
			if issue.Rule != "" {
				s.IssuesByRule[issue.Rule]++
			}
		}
		if res.Report != "" {
			s.Reports = append(s.Reports, res.Report)
		}
	}

	s.Text = fmt.Sprintf("analyzed %d/%d chunks, %d failed, %d issues found",
		s.CompletedChunks, s.TotalChunks, s.FailedChunks, s.TotalIssues)
	return s
}

// TopRules returns up to n rules ordered by finding count, ties broken
// by rule name for stable output.
func (s *Summary) TopRules(n int) []string {
	rules := make([]string, 0, len(s.IssuesByRule))
	for rule := range s.IssuesByRule {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool {
		if s.IssuesByRule[rules[i]] != s.IssuesByRule[rules[j]] {
			return s.IssuesByRule[rules[i]] > s.IssuesByRule[rules[j]]
		}
		return rules[i] < rules[j]
	})
	if n < len(rules) {
		rules = rules[:n]
	}
	return rules
}

// Finding is a verification annotation against a chunk result.
type Finding struct {
	ChunkID string `json:"chunk_id" yaml:"chunk_id"`
	Kind    string `json:"kind" yaml:"kind"`
	Detail  string `json:"detail" yaml:"detail"`
}

// Verification kinds.
const (
	FindingFileNotFound  = "file_not_found"
	FindingImplausible   = "implausible_metrics"
	FindingMissingResult = "missing_result"
)

// Verification holds the advisory cross-check of a session's results.
type Verification struct {
	Findings   []Finding `json:"findings,omitempty" yaml:"findings,omitempty"`
	Confidence int       `json:"confidence" yaml:"confidence"`
}

// Verify cross-checks completed results: issues that point at files
// which do not exist, metrics outside plausible bounds, and chunks
// that completed without any result at all.
func Verify(session *core.Session) *Verification {
	v := &Verification{Confidence: Confidence(session)}

	for _, cc := range session.CompletedChunks {
		res := cc.Result
		if res == nil {
			v.Findings = append(v.Findings, Finding{
				ChunkID: cc.ChunkID,
				Kind:    FindingMissingResult,
				Detail:  "chunk completed without a result payload",
			})
			continue
		}
		v.Findings = append(v.Findings, verifyFiles(cc.ChunkID, res)...)
		v.Findings = append(v.Findings, verifyMetrics(cc.ChunkID, res.Metrics)...)
	}
	return v
}

// verifyFiles checks every distinct file an issue references.
func verifyFiles(chunkID string, res *core.Result) []Finding {
	seen := make(map[string]struct{})
	var findings []Finding
	for _, issue := range res.Issues {
		if issue.File == "" {
			continue
		}
		if _, dup := seen[issue.File]; dup {
			continue
		}
		seen[issue.File] = struct{}{}
		if _, err := os.Stat(issue.File); err != nil {
			findings = append(findings, Finding{
				ChunkID: chunkID,
				Kind:    FindingFileNotFound,
				Detail:  fmt.Sprintf("issue references missing file %s", issue.File),
			})
		}
	}
	return findings
}

// Plausibility bounds for reported metrics. A chunk is at most a few
// hundred source files; a million lines across one chunk means a tool
// misreported.
const maxPlausibleChunkLines = 1_000_000

func verifyMetrics(chunkID string, m *core.Metrics) []Finding {
	if m == nil {
		return nil
	}
	var findings []Finding
	if m.AvgLinesPerFile < 0 {
		findings = append(findings, Finding{
			ChunkID: chunkID,
			Kind:    FindingImplausible,
			Detail:  fmt.Sprintf("negative average lines per file: %.1f", m.AvgLinesPerFile),
		})
	}
	if m.TotalLines > maxPlausibleChunkLines {
		findings = append(findings, Finding{
			ChunkID: chunkID,
			Kind:    FindingImplausible,
			Detail:  fmt.Sprintf("total lines %d exceeds plausible chunk size", m.TotalLines),
		})
	}
	return findings
}

// Confidence scores a session by its chunk completion ratio, as a
// percentage. A session with no chunks at all scores 100.
func Confidence(session *core.Session) int {
	done := len(session.CompletedChunks)
	failed := len(session.FailedChunks)
	if done+failed == 0 {
		return 100
	}
	return int(float64(done) / float64(done+failed) * 100)
}

// Describe renders findings as a short human-readable block.
func Describe(v *Verification) string {
	if len(v.Findings) == 0 {
		return fmt.Sprintf("verification clean, confidence %d%%", v.Confidence)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "verification found %d issue(s), confidence %d%%\n", len(v.Findings), v.Confidence)
	for _, f := range v.Findings {
		fmt.Fprintf(&b, "  [%s] %s: %s\n", f.Kind, f.ChunkID, f.Detail)
	}
	return strings.TrimRight(b.String(), "\n")
}
