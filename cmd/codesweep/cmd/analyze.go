package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/report"
)

var analyzeFormat string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <target_path> [chunk_size]",
	Short: "Analyze a source tree in chunks",
	Long: `Analyze discovers the source files under target_path, splits them into
chunks, and runs the configured analysis tools over each chunk with
bounded parallelism. Progress is checkpointed continuously; if a
session for the same path is already in flight, it is resumed
transparently.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", report.FormatText,
		"report format (text, json, yaml)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	target, err := filepath.Abs(args[0])
	if err != nil {
		return exitError(err)
	}
	chunkSize := 0
	if len(args) == 2 {
		chunkSize, err = strconv.Atoi(args[1])
		if err != nil || chunkSize <= 0 {
			return exitError(fmt.Errorf("chunk_size must be a positive integer, got %q", args[1]))
		}
	}

	deps, err := initDeps()
	if err != nil {
		return exitError(err)
	}
	defer deps.Close()

	orch, err := deps.buildOrchestrator(target, chunkSize)
	if err != nil {
		return exitError(err)
	}

	session, err := orch.Start(cmd.Context(), target)
	if err != nil {
		if session != nil {
			printf("session %s failed; resume with: codesweep resume %s", session.SessionID, target)
		}
		return exitError(err)
	}

	out, err := report.NewRenderer().Render(session, analyzeFormat)
	if err != nil {
		return exitError(err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	successf("analysis complete: session %s", session.SessionID)
	return nil
}
