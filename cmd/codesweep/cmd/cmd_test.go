package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codesweep/codesweep/internal/core"
)

// executeCommand runs the root command with args and captures output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	out, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	for _, want := range []string{"codesweep 1.2.3", "abc123", "2026-01-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeRejectsBadChunkSize(t *testing.T) {
	if _, err := executeCommand(t, "analyze", t.TempDir(), "zero"); err == nil {
		t.Error("analyze with non-numeric chunk size should fail")
	}
	if _, err := executeCommand(t, "analyze", t.TempDir(), "-3"); err == nil {
		t.Error("analyze with negative chunk size should fail")
	}
}

func TestAnalyzeEndToEnd(t *testing.T) {
	project := t.TempDir()
	for i := range 5 {
		name := filepath.Join(project, fmt.Sprintf("File%d.java", i))
		if err := os.WriteFile(name, []byte("class A {}\n"), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	checkpoints := t.TempDir()
	t.Setenv("CODESWEEP_CHECKPOINT_DIR", checkpoints)
	t.Setenv("CODESWEEP_ANALYSIS_WORKER", "architecture")
	t.Setenv("CODESWEEP_LOG_LEVEL", "error")

	out, err := executeCommand(t, "analyze", project, "2")
	if err != nil {
		t.Fatalf("analyze error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 completed, 0 failed of 3") {
		t.Errorf("unexpected report output:\n%s", out)
	}

	entries, err := os.ReadDir(checkpoints)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var found bool
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "state-") && strings.HasSuffix(e.Name(), ".json") {
			found = true
		}
	}
	if !found {
		t.Error("no checkpoint written")
	}
}

func TestResumeWithoutSession(t *testing.T) {
	t.Setenv("CODESWEEP_CHECKPOINT_DIR", t.TempDir())
	t.Setenv("CODESWEEP_LOG_LEVEL", "error")
	if _, err := executeCommand(t, "resume", t.TempDir()); err == nil {
		t.Error("resume with no session should fail")
	}
}

func TestCleanCommand(t *testing.T) {
	t.Setenv("CODESWEEP_CHECKPOINT_DIR", t.TempDir())
	t.Setenv("CODESWEEP_LOG_LEVEL", "error")
	out, err := executeCommand(t, "clean")
	if err != nil {
		t.Fatalf("clean error = %v", err)
	}
	if !strings.Contains(out, "removed 0 checkpoint(s)") {
		t.Errorf("unexpected clean output: %s", out)
	}
}

func TestRenderStatusTable(t *testing.T) {
	summaries := []core.SessionSummary{
		{
			SessionID: "0123456789abcdef",
			Status:    core.StatusAnalyzing,
			Progress:  40,
			Completed: 2,
			Pending:   3,
			Resumable: true,
			UpdatedAt: time.Now(),
		},
	}
	out := renderStatusTable(summaries)
	for _, want := range []string{"01234567", "analyzing", "40%", "yes"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
