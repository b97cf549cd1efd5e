package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/core"
)

var (
	statusJSON  bool
	statusWatch bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpointed sessions",
	Long: `Display every session in the checkpoint store: status, progress, chunk
counts, and whether it can be resumed. With --watch the table refreshes
whenever a checkpoint changes.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Follow checkpoint changes")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	deps, err := initDeps()
	if err != nil {
		return exitError(err)
	}
	defer deps.Close()

	if statusWatch {
		return watchStatus(cmd.Context(), deps)
	}
	return printStatus(cmd.Context(), deps)
}

func printStatus(ctx context.Context, deps *Deps) error {
	summaries, err := deps.Store.ListAll(ctx)
	if err != nil {
		return exitError(err)
	}

	if statusJSON {
		enc := json.NewEncoder(rootCmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	if len(summaries) == 0 {
		printf("No sessions")
		return nil
	}

	fmt.Fprintln(rootCmd.OutOrStdout(), renderStatusTable(summaries))
	return nil
}

func renderStatusTable(summaries []core.SessionSummary) string {
	tbl := table.NewWriter()
	tbl.AppendHeader(table.Row{"SESSION", "STATUS", "PROGRESS", "DONE", "PENDING", "FAILED", "RESUMABLE", "UPDATED"})
	for _, s := range summaries {
		resumable := ""
		if s.Resumable {
			resumable = "yes"
		}
		tbl.AppendRow(table.Row{
			s.IDPrefix(),
			s.Status,
			fmt.Sprintf("%d%%", s.Progress),
			s.Completed,
			s.Pending,
			s.Failed,
			resumable,
			humanize.Time(s.UpdatedAt),
		})
	}
	return tbl.Render()
}

// watchStatus re-renders the table whenever the checkpoint directory
// changes, until interrupted.
func watchStatus(ctx context.Context, deps *Deps) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return exitError(err)
	}
	defer watcher.Close()

	dir := deps.Config.Checkpoint.Dir
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return exitError(err)
	}
	if err := watcher.Add(dir); err != nil {
		return exitError(err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := printStatus(ctx, deps); err != nil {
		return err
	}

	// Debounce bursts of checkpoint writes into one refresh.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				pending = time.After(250 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			deps.Logger.Warn("watch error", "error", err)
		case <-pending:
			pending = nil
			if err := printStatus(ctx, deps); err != nil {
				return err
			}
		}
	}
}
