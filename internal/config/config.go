// Package config loads and validates the application configuration.
// The typed Config is threaded explicitly through constructors; there
// is no package-level cached instance.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Serve      ServeConfig      `mapstructure:"serve"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // auto, text, json
}

// AnalysisConfig configures the orchestrator.
type AnalysisConfig struct {
	ChunkSize  int      `mapstructure:"chunk_size"`
	Parallel   int      `mapstructure:"parallel"`
	Timeout    string   `mapstructure:"timeout"` // per-chunk, duration string
	Worker     string   `mapstructure:"worker"`  // static, architecture, multitool
	Extensions []string `mapstructure:"extensions"`
	Excludes   []string `mapstructure:"excludes"`
}

// ChunkTimeout parses the per-chunk timeout. Validate guarantees the
// string parses; a zero value falls back to the orchestrator default.
func (a AnalysisConfig) ChunkTimeout() time.Duration {
	if a.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// CheckpointConfig configures session persistence.
type CheckpointConfig struct {
	Dir     string `mapstructure:"dir"`
	Backend string `mapstructure:"backend"` // json, sqlite
	LockTTL string `mapstructure:"lock_ttl"`
}

// LockTTLDuration parses the lock TTL, zero on absence.
func (c CheckpointConfig) LockTTLDuration() time.Duration {
	if c.LockTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.LockTTL)
	if err != nil {
		return 0
	}
	return d
}

// ToolsConfig configures the analysis tools.
type ToolsConfig struct {
	PMD          PMDConfig  `mapstructure:"pmd"`
	Architecture ArchConfig `mapstructure:"architecture"`
}

// PMDConfig configures the PMD static analyzer.
type PMDConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Rules   string `mapstructure:"rules"`
}

// ArchConfig configures the structural analyzer.
type ArchConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MaxFileLines int  `mapstructure:"max_file_lines"`
}

// ServeConfig configures the status API server.
type ServeConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}
