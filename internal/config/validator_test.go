package config

import "testing"

func validConfig() *Config {
	return &Config{
		ConfigVersion:  1,
		Agent:          "claude",
		MaxIterations:  0,
		IterationDelay: "2s",
		AutoCommit:     true,
		Tracker:        "json",
		Parallel:       1,
		ErrorHandling: ErrorHandlingConfig{
			Strategy:     "stop",
			MaxRetries:   2,
			RetryDelayMs: 5000,
		},
		ConflictResolution: ConflictResolutionConfig{
			Enabled:             true,
			ConfidenceThreshold: 0.75,
			TimeoutMs:           120000,
			MaxFiles:            20,
		},
		AgentOptions: AgentOptionsConfig{
			Timeout: "15m",
		},
		Sandbox: SandboxConfig{
			Enabled: false,
			Mode:    "workspace-write",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

func TestValidateConfig_ValidConfigPasses(t *testing.T) {
	if err := ValidateConfig(validConfig()); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateConfig_UnknownAgent(t *testing.T) {
	cfg := validConfig()
	cfg.Agent = "not-a-real-agent"

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error for unknown agent")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if !fieldFailed(verrs, "agent") {
		t.Errorf("expected a failure on field 'agent', got %v", verrs)
	}
}

func TestValidateConfig_UnknownTracker(t *testing.T) {
	cfg := validConfig()
	cfg.Tracker = "not-a-real-tracker"

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error for unknown tracker")
	}
	if !fieldFailed(err.(ValidationErrors), "tracker") {
		t.Errorf("expected a failure on field 'tracker'")
	}
}

func TestValidateConfig_InvalidErrorStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.ErrorHandling.Strategy = "explode"

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid errorHandling.strategy")
	}
	if !fieldFailed(err.(ValidationErrors), "errorHandling.strategy") {
		t.Errorf("expected a failure on field 'errorHandling.strategy'")
	}
}

func TestValidateConfig_ParallelMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.Parallel = 0

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error for parallel=0")
	}
	if !fieldFailed(err.(ValidationErrors), "parallel") {
		t.Errorf("expected a failure on field 'parallel'")
	}
}

func TestValidateConfig_ConfidenceThresholdOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.ConflictResolution.ConfidenceThreshold = 1.5

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error for confidenceThreshold > 1")
	}
	if !fieldFailed(err.(ValidationErrors), "conflictResolution.confidenceThreshold") {
		t.Errorf("expected a failure on field 'conflictResolution.confidenceThreshold'")
	}
}

func TestValidateConfig_InvalidSandboxMode(t *testing.T) {
	cfg := validConfig()
	cfg.Sandbox.Enabled = true
	cfg.Sandbox.Mode = "god-mode"

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid sandbox.mode")
	}
	if !fieldFailed(err.(ValidationErrors), "sandbox.mode") {
		t.Errorf("expected a failure on field 'sandbox.mode'")
	}
}

func TestValidateConfig_SandboxModeIgnoredWhenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Sandbox.Enabled = false
	cfg.Sandbox.Mode = "god-mode"

	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("expected no error when sandbox disabled, got %v", err)
	}
}

func TestValidateConfig_InvalidDurations(t *testing.T) {
	cfg := validConfig()
	cfg.IterationDelay = "not-a-duration"

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid iterationDelay")
	}
	if !fieldFailed(err.(ValidationErrors), "iterationDelay") {
		t.Errorf("expected a failure on field 'iterationDelay'")
	}
}

func fieldFailed(errs ValidationErrors, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}
