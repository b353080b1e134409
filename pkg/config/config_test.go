package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexiouscaliver/AgenticOS/pkg/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	if cfg.Provider.Model != "glm-4.5" {
		t.Fatalf("unexpected default model: %s", cfg.Provider.Model)
	}
	if cfg.Provider.BaseURL != "https://api.z.ai/api/paas/v4" {
		t.Fatalf("unexpected default base URL: %s", cfg.Provider.BaseURL)
	}
	if cfg.Context.APIContextLimit != 92160 {
		t.Fatalf("unexpected api context limit: %d", cfg.Context.APIContextLimit)
	}
	if cfg.Context.SafeOutputLimit != 90000 {
		t.Fatalf("unexpected safe output limit: %d", cfg.Context.SafeOutputLimit)
	}
	if cfg.Context.SafetyBuffer != 2000 || cfg.Context.EstimationMargin != 3000 {
		t.Fatalf("unexpected safety margins: %+v", cfg.Context)
	}
	if cfg.Stream.FlushThreshold != 32768 || cfg.Stream.TagLookahead != 256 {
		t.Fatalf("unexpected stream tuning: %+v", cfg.Stream)
	}
	if cfg.RetryPolicy.MaxRetries != 5 || cfg.RetryPolicy.InitialBackoff != time.Second {
		t.Fatalf("unexpected retry policy: %+v", cfg.RetryPolicy)
	}
	if cfg.Thinking.Mode != "auto" || !cfg.Thinking.Reflection {
		t.Fatalf("unexpected thinking defaults: %+v", cfg.Thinking)
	}
	if len(cfg.Generation.Stop) != 2 {
		t.Fatalf("expected two default stop sequences, got %v", cfg.Generation.Stop)
	}
	if cfg.Generation.ArabicOptimization {
		t.Fatal("arabic optimization must default to off")
	}
}

func TestEnvOverrideArabicOptimization(t *testing.T) {
	cfg := config.DefaultConfig()

	t.Setenv("GLM_ARABIC_OPTIMIZATION", "1")
	config.ApplyEnvOverridesForTest(cfg)
	if !cfg.Generation.ArabicOptimization {
		t.Fatalf("expected GLM_ARABIC_OPTIMIZATION=1 to enable normalization")
	}

	t.Setenv("GLM_ARABIC_OPTIMIZATION", "0")
	config.ApplyEnvOverridesForTest(cfg)
	if cfg.Generation.ArabicOptimization {
		t.Fatalf("expected GLM_ARABIC_OPTIMIZATION=0 to disable normalization")
	}
}

func TestLoadHierarchy(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()

	t.Setenv("HOME", home)

	userCfgDir := filepath.Join(home, ".agenticos")
	if err := os.MkdirAll(userCfgDir, 0o755); err != nil {
		t.Fatalf("mkdir user config: %v", err)
	}
	userCfg := `
provider:
  model: user/model
generation:
  temperature: 0.5
`
	if err := os.WriteFile(filepath.Join(userCfgDir, "config.yaml"), []byte(userCfg), 0o644); err != nil {
		t.Fatalf("write user config: %v", err)
	}

	projectCfgDir := filepath.Join(project, ".agenticos")
	if err := os.MkdirAll(projectCfgDir, 0o755); err != nil {
		t.Fatalf("mkdir project config: %v", err)
	}
	projectCfg := `
provider:
  model: project/model
thinking:
  mode: disabled
`
	if err := os.WriteFile(filepath.Join(projectCfgDir, "config.yaml"), []byte(projectCfg), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(project); err != nil {
		t.Fatalf("chdir project: %v", err)
	}

	t.Setenv("GLM_BASE_URL", "http://localhost:8000/v1")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}

	if cfg.Provider.Model != "project/model" {
		t.Fatalf("expected project model override, got %s", cfg.Provider.Model)
	}
	if cfg.Generation.Temperature != 0.5 {
		t.Fatalf("expected user temperature override, got %f", cfg.Generation.Temperature)
	}
	if cfg.Provider.BaseURL != "http://localhost:8000/v1" {
		t.Fatalf("expected env base URL override, got %s", cfg.Provider.BaseURL)
	}
	if cfg.Thinking.Mode != "disabled" {
		t.Fatalf("expected project thinking mode, got %s", cfg.Thinking.Mode)
	}
	if cfg.Context.APIContextLimit != 92160 {
		t.Fatalf("defaults should survive partial overrides, got %d", cfg.Context.APIContextLimit)
	}
}

func TestInvalidThinkingModeFailsValidation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	project := t.TempDir()
	if err := os.Chdir(project); err != nil {
		t.Fatalf("chdir project: %v", err)
	}

	t.Setenv("GLM_THINKING_MODE", "sometimes")

	if _, err := config.Load(); err == nil {
		t.Fatalf("expected config.Load to fail for invalid thinking mode")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty model", func(c *config.Config) { c.Provider.Model = "" }},
		{"empty base url", func(c *config.Config) { c.Provider.BaseURL = "" }},
		{"bad thinking effort", func(c *config.Config) { c.Thinking.Effort = "extreme" }},
		{"negative thinking budget", func(c *config.Config) { c.Thinking.Budget = -1 }},
		{"temperature too high", func(c *config.Config) { c.Generation.Temperature = 2.5 }},
		{"top_p too high", func(c *config.Config) { c.Generation.TopP = 1.5 }},
		{"zero context limit", func(c *config.Config) { c.Context.APIContextLimit = 0 }},
		{"negative safety buffer", func(c *config.Config) { c.Context.SafetyBuffer = -1 }},
		{"zero flush threshold", func(c *config.Config) { c.Stream.FlushThreshold = 0 }},
		{"zero tag lookahead", func(c *config.Config) { c.Stream.TagLookahead = 0 }},
		{"negative max retries", func(c *config.Config) { c.RetryPolicy.MaxRetries = -1 }},
		{"fractional multiplier", func(c *config.Config) { c.RetryPolicy.Multiplier = 0.5 }},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation to fail")
			}
		})
	}
}

func TestEnvOverridesBudget(t *testing.T) {
	cfg := config.DefaultConfig()

	t.Setenv("GLM_API_CONTEXT_LIMIT", "131072")
	t.Setenv("GLM_SAFE_OUTPUT_LIMIT", "120000")
	t.Setenv("GLM_CONTEXT_SAFETY_BUFFER", "0")
	t.Setenv("GLM_STREAM_FLUSH_THRESHOLD", "1024")
	config.ApplyEnvOverridesForTest(cfg)

	if cfg.Context.APIContextLimit != 131072 {
		t.Fatalf("expected env api context limit, got %d", cfg.Context.APIContextLimit)
	}
	if cfg.Context.SafeOutputLimit != 120000 {
		t.Fatalf("expected env safe output limit, got %d", cfg.Context.SafeOutputLimit)
	}
	if cfg.Context.SafetyBuffer != 0 {
		t.Fatalf("expected env safety buffer of zero, got %d", cfg.Context.SafetyBuffer)
	}
	if cfg.Stream.FlushThreshold != 1024 {
		t.Fatalf("expected env flush threshold, got %d", cfg.Stream.FlushThreshold)
	}
}

func TestEnvOverrideRetryDelayForms(t *testing.T) {
	cfg := config.DefaultConfig()
	t.Setenv("GLM_INITIAL_RETRY_DELAY", "250ms")
	config.ApplyEnvOverridesForTest(cfg)
	if cfg.RetryPolicy.InitialBackoff != 250*time.Millisecond {
		t.Fatalf("expected duration form to parse, got %v", cfg.RetryPolicy.InitialBackoff)
	}

	cfg = config.DefaultConfig()
	t.Setenv("GLM_INITIAL_RETRY_DELAY", "2.5")
	config.ApplyEnvOverridesForTest(cfg)
	if cfg.RetryPolicy.InitialBackoff != 2500*time.Millisecond {
		t.Fatalf("expected bare seconds form to parse, got %v", cfg.RetryPolicy.InitialBackoff)
	}
}

func TestEnvOverrideNetworkLogs(t *testing.T) {
	cfg := config.DefaultConfig()

	t.Setenv("GLM_NETWORK_LOGS_ENABLED", "1")
	config.ApplyEnvOverridesForTest(cfg)
	if !cfg.Diagnostics.NetworkLogsEnabled {
		t.Fatalf("expected GLM_NETWORK_LOGS_ENABLED=1 to enable network logs")
	}

	t.Setenv("GLM_NETWORK_LOGS_ENABLED", "0")
	config.ApplyEnvOverridesForTest(cfg)
	if cfg.Diagnostics.NetworkLogsEnabled {
		t.Fatalf("expected GLM_NETWORK_LOGS_ENABLED=0 to disable network logs")
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	path := filepath.Join(dir, "adapter.yaml")
	body := `
provider:
  model: glm-4.5-air
  base_url: http://localhost:9000/v1
retry_policy:
  max_retries: 2
  initial_backoff: 100ms
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath returned error: %v", err)
	}
	if cfg.Provider.Model != "glm-4.5-air" {
		t.Fatalf("expected model from file, got %s", cfg.Provider.Model)
	}
	if cfg.RetryPolicy.MaxRetries != 2 {
		t.Fatalf("expected max retries from file, got %d", cfg.RetryPolicy.MaxRetries)
	}
	if cfg.RetryPolicy.InitialBackoff != 100*time.Millisecond {
		t.Fatalf("expected initial backoff from file, got %v", cfg.RetryPolicy.InitialBackoff)
	}
	if cfg.RetryPolicy.Multiplier != 2.0 {
		t.Fatalf("defaults should survive partial retry override, got %f", cfg.RetryPolicy.Multiplier)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := config.LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
