package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/viper"

	"github.com/codesweep/codesweep/internal/checkpoint"
	"github.com/codesweep/codesweep/internal/config"
	"github.com/codesweep/codesweep/internal/core"
	"github.com/codesweep/codesweep/internal/discovery"
	"github.com/codesweep/codesweep/internal/logging"
	"github.com/codesweep/codesweep/internal/orchestrator"
	"github.com/codesweep/codesweep/internal/worker"
)

// Deps bundles everything a command needs, built once per invocation.
type Deps struct {
	Config *config.Config
	Logger *logging.Logger
	Store  core.CheckpointStore
}

// initDeps loads and validates configuration, then wires the logger
// and the checkpoint store.
func initDeps() (*Deps, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader = loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	if noColor {
		color.NoColor = true
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	store, err := checkpoint.NewStore(
		checkpoint.Backend(cfg.Checkpoint.Backend),
		cfg.Checkpoint.Dir,
		checkpoint.StoreOptions{LockTTL: cfg.Checkpoint.LockTTLDuration()},
	)
	if err != nil {
		return nil, err
	}

	return &Deps{Config: cfg, Logger: logger, Store: store}, nil
}

// Close releases store resources.
func (d *Deps) Close() {
	if err := core.CloseStore(d.Store); err != nil {
		d.Logger.Warn("closing checkpoint store", "error", err)
	}
}

// buildOrchestrator assembles the analysis pipeline for a project,
// optionally overriding the configured chunk size.
func (d *Deps) buildOrchestrator(projectRoot string, chunkSize int) (*orchestrator.Orchestrator, error) {
	cfg := d.Config
	if chunkSize <= 0 {
		chunkSize = cfg.Analysis.ChunkSize
	}

	kind, err := worker.ParseKind(cfg.Analysis.Worker)
	if err != nil {
		return nil, err
	}
	w, err := worker.New(kind, worker.Options{
		ProjectRoot:      projectRoot,
		PMDPath:          cfg.Tools.PMD.Path,
		PMDRules:         cfg.Tools.PMD.Rules,
		PMDTimeout:       cfg.Analysis.ChunkTimeout(),
		ArchMaxFileLines: cfg.Tools.Architecture.MaxFileLines,
		Logger:           d.Logger,
	})
	if err != nil {
		return nil, err
	}

	scanner := discovery.NewScanner(
		discovery.WithExtensions(cfg.Analysis.Extensions),
		discovery.WithSkipDirs(cfg.Analysis.Excludes),
	)

	return orchestrator.New(d.Store, scanner, w, orchestrator.Options{
		ChunkSize:    chunkSize,
		Parallel:     cfg.Analysis.Parallel,
		ChunkTimeout: cfg.Analysis.ChunkTimeout(),
		Logger:       d.Logger,
	}), nil
}

// exitError prints an error with the standard accent and returns it
// so cobra sets a non-zero exit code.
func exitError(err error) error {
	color.New(color.FgRed).Fprintf(rootCmd.ErrOrStderr(), "error: %v\n", err)
	return err
}

// successf prints a green success line.
func successf(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(rootCmd.OutOrStdout(), format+"\n", args...)
}

func printf(format string, args ...any) {
	fmt.Fprintf(rootCmd.OutOrStdout(), format+"\n", args...)
}
