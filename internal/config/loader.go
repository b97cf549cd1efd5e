package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "CODESWEEP",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "CODESWEEP",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (CODESWEEP_*)
// 3. Project config (.codesweep.yaml in current directory)
// 4. User config (~/.config/codesweep/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".codesweep")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config.
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "codesweep"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("analysis.chunk_size", 50)
	l.v.SetDefault("analysis.parallel", 3)
	l.v.SetDefault("analysis.timeout", "10m")
	l.v.SetDefault("analysis.worker", "multitool")
	l.v.SetDefault("analysis.extensions", []string{".java"})
	l.v.SetDefault("analysis.excludes", []string{})

	l.v.SetDefault("checkpoint.dir", ".codesweep/checkpoints")
	l.v.SetDefault("checkpoint.backend", "json")
	l.v.SetDefault("checkpoint.lock_ttl", "1h")

	l.v.SetDefault("tools.pmd.enabled", true)
	l.v.SetDefault("tools.pmd.path", "pmd")
	l.v.SetDefault("tools.pmd.rules", "rulesets/java/quickstart.xml")
	l.v.SetDefault("tools.architecture.enabled", true)
	l.v.SetDefault("tools.architecture.max_file_lines", 500)

	l.v.SetDefault("serve.host", "127.0.0.1")
	l.v.SetDefault("serve.port", 8520)
}
