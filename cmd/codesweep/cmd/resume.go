package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/report"
)

var resumeFormat string

var resumeCmd = &cobra.Command{
	Use:   "resume <target_path>",
	Short: "Resume the newest session for a project",
	Long: `Resume picks up the most recently updated session for target_path from
its last checkpoint. Unlike analyze, it also accepts a failed session,
re-entering analysis where it stopped. It is an error when no session
can be resumed.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().StringVar(&resumeFormat, "format", report.FormatText,
		"report format (text, json, yaml)")
}

func runResume(cmd *cobra.Command, args []string) error {
	target, err := filepath.Abs(args[0])
	if err != nil {
		return exitError(err)
	}

	deps, err := initDeps()
	if err != nil {
		return exitError(err)
	}
	defer deps.Close()

	orch, err := deps.buildOrchestrator(target, 0)
	if err != nil {
		return exitError(err)
	}

	session, err := orch.Resume(cmd.Context(), target)
	if err != nil {
		return exitError(err)
	}

	out, err := report.NewRenderer().Render(session, resumeFormat)
	if err != nil {
		return exitError(err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	successf("analysis complete: session %s", session.SessionID)
	return nil
}
