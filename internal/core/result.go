package core

// Result is the payload a worker produces for a chunk. The orchestrator
// treats it as opaque apart from Issues (aggregation) and Metrics
// (verification); workers are free to attach their own fields.
type Result struct {
	Issues      []Issue            `json:"issues,omitempty"`
	Metrics     *Metrics           `json:"metrics,omitempty"`
	Report      string             `json:"report,omitempty"`
	ToolResults map[string]*Result `json:"tool_results,omitempty"`

	// Error records a soft failure (tool missing, file unreadable) that
	// did not abort the chunk. A worker never returns a hard error for
	// these; it reports them here instead.
	Error string `json:"error,omitempty"`
}

// Issue is a single finding against a source file. The shape follows the
// PMD JSON report: one violation per file/line with rule provenance.
type Issue struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	EndLine     int    `json:"end_line,omitempty"`
	Rule        string `json:"rule"`
	RuleSet     string `json:"rule_set,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	Description string `json:"description"`
	Tool        string `json:"tool,omitempty"`
}

// Metrics holds per-chunk structural measurements.
type Metrics struct {
	FileCount       int     `json:"file_count"`
	TotalLines      int     `json:"total_lines"`
	AvgLinesPerFile float64 `json:"avg_lines_per_file"`
	PackageCount    int     `json:"package_count,omitempty"`
	LayeringScore   float64 `json:"layering_score,omitempty"`
}

// IssueCount returns the number of issues, tolerating a nil result.
func (r *Result) IssueCount() int {
	if r == nil {
		return 0
	}
	return len(r.Issues)
}
