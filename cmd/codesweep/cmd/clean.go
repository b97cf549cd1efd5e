package cmd

import (
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove all checkpoints",
	Long:  "Delete every session checkpoint and lock from the checkpoint store.",
	RunE:  runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, _ []string) error {
	deps, err := initDeps()
	if err != nil {
		return exitError(err)
	}
	defer deps.Close()

	count, err := deps.Store.Clean(cmd.Context())
	if err != nil {
		return exitError(err)
	}
	successf("removed %d checkpoint(s)", count)
	return nil
}
