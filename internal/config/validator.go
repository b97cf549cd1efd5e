package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateAnalysis(&cfg.Analysis)
	v.validateCheckpoint(&cfg.Checkpoint)
	v.validateServe(&cfg.Serve)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error", "":
	default:
		v.addError("log.level", cfg.Level, "must be one of debug, info, warn, error")
	}
	switch cfg.Format {
	case "auto", "text", "json", "":
	default:
		v.addError("log.format", cfg.Format, "must be one of auto, text, json")
	}
}

func (v *Validator) validateAnalysis(cfg *AnalysisConfig) {
	if cfg.ChunkSize <= 0 {
		v.addError("analysis.chunk_size", cfg.ChunkSize, "must be positive")
	}
	if cfg.Parallel <= 0 {
		v.addError("analysis.parallel", cfg.Parallel, "must be positive")
	}
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err != nil {
			v.addError("analysis.timeout", cfg.Timeout, "must be a valid duration")
		} else if d <= 0 {
			v.addError("analysis.timeout", cfg.Timeout, "must be positive")
		}
	}
	switch cfg.Worker {
	case "static", "architecture", "multitool", "":
	default:
		v.addError("analysis.worker", cfg.Worker, "must be one of static, architecture, multitool")
	}
}

func (v *Validator) validateCheckpoint(cfg *CheckpointConfig) {
	if cfg.Dir == "" {
		v.addError("checkpoint.dir", cfg.Dir, "cannot be empty")
	}
	switch cfg.Backend {
	case "json", "sqlite", "":
	default:
		v.addError("checkpoint.backend", cfg.Backend, "must be json or sqlite")
	}
	if cfg.LockTTL != "" {
		if d, err := time.ParseDuration(cfg.LockTTL); err != nil {
			v.addError("checkpoint.lock_ttl", cfg.LockTTL, "must be a valid duration")
		} else if d <= 0 {
			v.addError("checkpoint.lock_ttl", cfg.LockTTL, "must be positive")
		}
	}
}

func (v *Validator) validateServe(cfg *ServeConfig) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		v.addError("serve.port", cfg.Port, "must be a valid port")
	}
}
