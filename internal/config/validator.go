package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ralph-tui/ralph-tui/internal/core"
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

var validSandboxModes = map[string]bool{
	"read-only":          true,
	"workspace-write":    true,
	"danger-full-access": true,
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
	v.validateCore(cfg)
	v.validateTrackerOptions(&cfg.TrackerOptions)
	v.validateErrorHandling(&cfg.ErrorHandling)
	v.validateConflictResolution(&cfg.ConflictResolution)
	v.validateAgentOptions(&cfg.AgentOptions)
	v.validateSandbox(&cfg.Sandbox)
	v.validateLog(&cfg.Log)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateCore(cfg *Config) {
	if cfg.ConfigVersion <= 0 {
		v.addError("configVersion", cfg.ConfigVersion, "must be positive")
	}

	if cfg.Agent != "" && !core.IsValidAgent(cfg.Agent) {
		v.addError("agent", cfg.Agent, "unknown agent")
	}

	if cfg.MaxIterations < 0 {
		v.addError("maxIterations", cfg.MaxIterations, "must be zero (unlimited) or positive")
	}

	if cfg.IterationDelay != "" {
		if _, err := time.ParseDuration(cfg.IterationDelay); err != nil {
			v.addError("iterationDelay", cfg.IterationDelay, "invalid duration format")
		}
	}

	if cfg.Tracker != "" && !core.IsValidTracker(cfg.Tracker) {
		v.addError("tracker", cfg.Tracker, "unknown tracker")
	}

	if cfg.Parallel < 1 {
		v.addError("parallel", cfg.Parallel, "must be at least 1")
	}
}

func (v *Validator) validateTrackerOptions(cfg *TrackerOptionsConfig) {
	// path and epicId are adapter-specific and validated by the tracker
	// registry itself at construction time; nothing to check here beyond
	// the struct shape.
	_ = cfg
}

func (v *Validator) validateErrorHandling(cfg *ErrorHandlingConfig) {
	if cfg.Strategy != "" {
		valid := false
		for _, p := range core.ErrorPolicies {
			if cfg.Strategy == p {
				valid = true
				break
			}
		}
		if !valid {
			v.addError("errorHandling.strategy", cfg.Strategy,
				fmt.Sprintf("must be one of: %s", strings.Join(core.ErrorPolicies, ", ")))
		}
	}

	if cfg.MaxRetries < 0 {
		v.addError("errorHandling.maxRetries", cfg.MaxRetries, "must be non-negative")
	}

	if cfg.RetryDelayMs < 0 {
		v.addError("errorHandling.retryDelayMs", cfg.RetryDelayMs, "must be non-negative")
	}
}

func (v *Validator) validateConflictResolution(cfg *ConflictResolutionConfig) {
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		v.addError("conflictResolution.confidenceThreshold", cfg.ConfidenceThreshold, "must be between 0 and 1")
	}

	if cfg.TimeoutMs < 0 {
		v.addError("conflictResolution.timeoutMs", cfg.TimeoutMs, "must be non-negative")
	}

	if cfg.MaxFiles < 0 {
		v.addError("conflictResolution.maxFiles", cfg.MaxFiles, "must be non-negative")
	}
}

func (v *Validator) validateAgentOptions(cfg *AgentOptionsConfig) {
	if cfg.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Timeout); err != nil {
			v.addError("agentOptions.timeout", cfg.Timeout, "invalid duration format")
		}
	}
}

func (v *Validator) validateSandbox(cfg *SandboxConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Mode != "" && !validSandboxModes[cfg.Mode] {
		v.addError("sandbox.mode", cfg.Mode, "must be one of: read-only, workspace-write, danger-full-access")
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		core.LogDebug: true, core.LogInfo: true, core.LogWarn: true, core.LogError: true,
	}
	if cfg.Level != "" && !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		core.LogFormatAuto: true, core.LogFormatText: true, core.LogFormatJSON: true,
	}
	if cfg.Format != "" && !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
