// Package report renders a session into human- or machine-readable
// output. The roll-up is recomputed from the session's chunk records
// rather than read back from metadata, so rendering works the same for
// live sessions and ones reloaded from a checkpoint.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codesweep/codesweep/internal/aggregate"
	"github.com/codesweep/codesweep/internal/core"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Report is the serializable rendering payload.
type Report struct {
	SessionID   string             `json:"session_id" yaml:"session_id"`
	ProjectPath string             `json:"project_path" yaml:"project_path"`
	Status      core.SessionStatus `json:"status" yaml:"status"`
	Progress    int                `json:"progress" yaml:"progress"`
	Duration    string             `json:"duration" yaml:"duration"`
	Summary     *aggregate.Summary `json:"summary" yaml:"summary"`
	Confidence  int                `json:"confidence" yaml:"confidence"`
	TopRules    []string           `json:"top_rules,omitempty" yaml:"top_rules,omitempty"`
	Failures    []FailureLine      `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// FailureLine describes one failed chunk.
type FailureLine struct {
	ChunkID string `json:"chunk_id" yaml:"chunk_id"`
	Error   string `json:"error" yaml:"error"`
}

const topRuleCount = 5

// Build assembles the report payload from a session.
func Build(session *core.Session) *Report {
	summary := aggregate.Aggregate(session)
	r := &Report{
		SessionID:   string(session.SessionID),
		ProjectPath: session.ProjectPath,
		Status:      session.Status,
		Progress:    session.Progress(),
		Duration:    session.Duration().Round(time.Second).String(),
		Summary:     summary,
		Confidence:  aggregate.Confidence(session),
		TopRules:    summary.TopRules(topRuleCount),
	}
	for _, fc := range session.FailedChunks {
		r.Failures = append(r.Failures, FailureLine{ChunkID: fc.ChunkID, Error: fc.Error})
	}
	return r
}

// Renderer implements core.Renderer.
type Renderer struct{}

// NewRenderer creates a renderer.
func NewRenderer() *Renderer { return &Renderer{} }

// Render serializes the session's report in the requested format.
func (r *Renderer) Render(session *core.Session, format string) (string, error) {
	rep := Build(session)
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding report: %w", err)
		}
		return string(out), nil
	case FormatYAML:
		out, err := yaml.Marshal(rep)
		if err != nil {
			return "", fmt.Errorf("encoding report: %w", err)
		}
		return string(out), nil
	case FormatText, "":
		return renderText(rep), nil
	default:
		return "", core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("unknown report format %q", format))
	}
}

func renderText(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis of %s\n", r.ProjectPath)
	fmt.Fprintf(&b, "  session:    %s\n", r.SessionID)
	fmt.Fprintf(&b, "  status:     %s (%d%%)\n", r.Status, r.Progress)
	fmt.Fprintf(&b, "  duration:   %s\n", r.Duration)
	fmt.Fprintf(&b, "  chunks:     %d completed, %d failed of %d\n",
		r.Summary.CompletedChunks, r.Summary.FailedChunks, r.Summary.TotalChunks)
	fmt.Fprintf(&b, "  issues:     %d\n", r.Summary.TotalIssues)
	fmt.Fprintf(&b, "  confidence: %d%%\n", r.Confidence)
	if len(r.TopRules) > 0 {
		b.WriteString("  top rules:\n")
		for _, rule := range r.TopRules {
			fmt.Fprintf(&b, "    %-40s %d\n", rule, r.Summary.IssuesByRule[rule])
		}
	}
	if len(r.Failures) > 0 {
		b.WriteString("  failed chunks:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "    %s: %s\n", f.ChunkID, f.Error)
		}
	}
	return b.String()
}

var _ core.Renderer = (*Renderer)(nil)
