package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Default configuration values exported for documentation and validation
const (
	DefaultModel   = "glm-4.5"
	DefaultBaseURL = "https://api.z.ai/api/paas/v4"

	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultMaxTokens   = 90000

	DefaultAPIContextLimit        = 92160
	DefaultSafeOutputLimit        = 90000
	DefaultContextSafetyBuffer    = 2000
	DefaultEstimationSafetyMargin = 3000

	DefaultFlushThreshold = 32768
	DefaultTagLookahead   = 256

	DefaultMaxRetries        = 5
	DefaultInitialBackoff    = 1 * time.Second
	DefaultMaxBackoff        = 30 * time.Second
	DefaultBackoffMultiplier = 2.0

	DefaultThinkingMode   = "auto"
	DefaultThinkingBudget = 32768
	DefaultThinkingEffort = "high"

	DefaultLogLevel = "info"
)

// DefaultStopSequences are sent with every request so generation halts at
// the model's own terminators instead of running past them.
var DefaultStopSequences = []string{"<|endoftext|>", "<|endofthinking|>"}

// Config represents the complete adapter configuration
type Config struct {
	Provider    ProviderConfig    `yaml:"provider"`
	Generation  GenerationConfig  `yaml:"generation"`
	Context     ContextConfig     `yaml:"context"`
	Stream      StreamConfig      `yaml:"stream"`
	Thinking    ThinkingConfig    `yaml:"thinking"`
	RetryPolicy RetryPolicy       `yaml:"retry_policy"`
	Logging     LoggingConfig     `yaml:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// ProviderConfig identifies the upstream endpoint and credentials
type ProviderConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// GenerationConfig carries the sampling parameters attached to every request
type GenerationConfig struct {
	Temperature      float64  `yaml:"temperature"`
	TopP             float64  `yaml:"top_p"`
	MaxTokens        int      `yaml:"max_tokens"`
	FrequencyPenalty float64  `yaml:"frequency_penalty"`
	PresencePenalty  float64  `yaml:"presence_penalty"`
	Stop             []string `yaml:"stop"`

	// ArabicOptimization normalizes Arabic user text (diacritics, letter
	// variants, tatweel) before sending. Off by default: normalization
	// rewrites message content, so the caller must opt in.
	ArabicOptimization bool `yaml:"arabic_optimization"`
}

// ContextConfig bounds the token budget computation
type ContextConfig struct {
	APIContextLimit  int `yaml:"api_context_limit"`
	SafeOutputLimit  int `yaml:"safe_output_limit"`
	SafetyBuffer     int `yaml:"safety_buffer"`
	EstimationMargin int `yaml:"estimation_margin"`
}

// StreamConfig tunes the streaming text pipeline
type StreamConfig struct {
	FlushThreshold int `yaml:"flush_threshold"` // force out a held buffer beyond this many bytes
	TagLookahead   int `yaml:"tag_lookahead"`   // bytes held back while a tag may still complete
}

// ThinkingConfig controls reasoning-trace behavior.
// Mode is one of "enabled", "disabled", or "auto".
type ThinkingConfig struct {
	Mode       string `yaml:"mode"`
	Budget     int    `yaml:"budget"`
	Reflection bool   `yaml:"reflection"`
	Effort     string `yaml:"effort"`
}

// RetryPolicy defines retry behavior for transient upstream errors
type RetryPolicy struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

// LoggingConfig controls structured log output. An empty Dir disables
// file logging entirely.
type LoggingConfig struct {
	Dir          string `yaml:"dir"`
	Level        string `yaml:"level"`
	ReasoningDir string `yaml:"reasoning_dir"`
}

// DiagnosticsConfig toggles verbose network logging
type DiagnosticsConfig struct {
	NetworkLogsEnabled bool `yaml:"network_logs_enabled"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Model:   DefaultModel,
			BaseURL: DefaultBaseURL,
		},
		Generation: GenerationConfig{
			Temperature: DefaultTemperature,
			TopP:        DefaultTopP,
			MaxTokens:   DefaultMaxTokens,
			Stop:        append([]string{}, DefaultStopSequences...),
		},
		Context: ContextConfig{
			APIContextLimit:  DefaultAPIContextLimit,
			SafeOutputLimit:  DefaultSafeOutputLimit,
			SafetyBuffer:     DefaultContextSafetyBuffer,
			EstimationMargin: DefaultEstimationSafetyMargin,
		},
		Stream: StreamConfig{
			FlushThreshold: DefaultFlushThreshold,
			TagLookahead:   DefaultTagLookahead,
		},
		Thinking: ThinkingConfig{
			Mode:       DefaultThinkingMode,
			Budget:     DefaultThinkingBudget,
			Reflection: true,
			Effort:     DefaultThinkingEffort,
		},
		RetryPolicy: RetryPolicy{
			MaxRetries:     DefaultMaxRetries,
			InitialBackoff: DefaultInitialBackoff,
			MaxBackoff:     DefaultMaxBackoff,
			Multiplier:     DefaultBackoffMultiplier,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads configuration with the following precedence (later wins):
//  1. Built-in defaults
//  2. User config (~/.agenticos/config.yaml)
//  3. Project config (./.agenticos/config.yaml)
//  4. Environment variables
func Load() (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	// Load user config (~/.agenticos/config.yaml)
	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to HOME env var if UserHomeDir fails
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".agenticos", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	// Load project config (./.agenticos/config.yaml)
	projectConfigPath := filepath.Join(".", ".agenticos", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg, configEnv)
	cfg.expandPaths()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	// Load from the specified path
	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg, configEnv)
	cfg.expandPaths()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverridesForTest exposes env override logic for tests without file I/O.
func ApplyEnvOverridesForTest(cfg *Config) {
	applyEnvOverrides(cfg, nil)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config, configEnv map[string]string) {
	// Provider endpoint
	if v := os.Getenv("GLM_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("GLM_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("GLM_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	} else if cfg.Provider.APIKey == "" {
		if v := configEnv["GLM_API_KEY"]; v != "" {
			cfg.Provider.APIKey = v
		}
	}

	// Context budget
	if v := strings.TrimSpace(os.Getenv("GLM_API_CONTEXT_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Context.APIContextLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GLM_SAFE_OUTPUT_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Context.SafeOutputLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GLM_CONTEXT_SAFETY_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Context.SafetyBuffer = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GLM_ESTIMATION_SAFETY_MARGIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Context.EstimationMargin = n
		}
	}

	// Stream pipeline
	if v := strings.TrimSpace(os.Getenv("GLM_STREAM_FLUSH_THRESHOLD")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Stream.FlushThreshold = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GLM_STREAM_TAG_LOOKAHEAD")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Stream.TagLookahead = n
		}
	}

	// Retry policy
	if v := strings.TrimSpace(os.Getenv("GLM_MAX_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RetryPolicy.MaxRetries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GLM_INITIAL_RETRY_DELAY")); v != "" {
		if d, err := parseRetryDelay(v); err == nil && d > 0 {
			cfg.RetryPolicy.InitialBackoff = d
		}
	}

	if val, ok := envBool("GLM_ARABIC_OPTIMIZATION"); ok {
		cfg.Generation.ArabicOptimization = val
	}

	// Thinking
	if v := os.Getenv("GLM_THINKING_MODE"); v != "" {
		cfg.Thinking.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := strings.TrimSpace(os.Getenv("GLM_THINKING_BUDGET")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Thinking.Budget = n
		}
	}

	// Logging
	if v := os.Getenv("GLM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("GLM_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}

	if val, ok := envBool("GLM_NETWORK_LOGS_ENABLED"); ok {
		cfg.Diagnostics.NetworkLogsEnabled = val
	} else if val, ok := envBool("GLM_DISABLE_NETWORK_LOGS"); ok && val {
		cfg.Diagnostics.NetworkLogsEnabled = false
	}
}

// parseRetryDelay accepts Go duration strings ("500ms") as well as bare
// second counts ("1.5") for compatibility with existing deployments.
func parseRetryDelay(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

// expandPaths resolves ~ prefixes in configured directories
func (c *Config) expandPaths() {
	c.Logging.Dir = expandHomeDir(c.Logging.Dir)
	c.Logging.ReasoningDir = expandHomeDir(c.Logging.ReasoningDir)
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider.Model) == "" {
		return fmt.Errorf("provider.model cannot be empty")
	}
	if strings.TrimSpace(c.Provider.BaseURL) == "" {
		return fmt.Errorf("provider.base_url cannot be empty")
	}

	validThinkingModes := map[string]bool{
		"enabled":  true,
		"disabled": true,
		"auto":     true,
	}
	if strings.TrimSpace(c.Thinking.Mode) != "" && !validThinkingModes[strings.ToLower(c.Thinking.Mode)] {
		return fmt.Errorf("invalid thinking mode: %s (valid: enabled, disabled, auto)", c.Thinking.Mode)
	}

	validEfforts := map[string]bool{
		"low":    true,
		"medium": true,
		"high":   true,
	}
	if strings.TrimSpace(c.Thinking.Effort) != "" && !validEfforts[strings.ToLower(c.Thinking.Effort)] {
		return fmt.Errorf("invalid thinking effort: %s (valid: low, medium, high)", c.Thinking.Effort)
	}
	if c.Thinking.Budget < 0 {
		return fmt.Errorf("thinking.budget must be >= 0")
	}

	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be between 0 and 2, got %f", c.Generation.Temperature)
	}
	if c.Generation.TopP < 0 || c.Generation.TopP > 1 {
		return fmt.Errorf("generation.top_p must be between 0 and 1, got %f", c.Generation.TopP)
	}
	if c.Generation.MaxTokens < 0 {
		return fmt.Errorf("generation.max_tokens must be >= 0")
	}

	if c.Context.APIContextLimit <= 0 {
		return fmt.Errorf("context.api_context_limit must be > 0")
	}
	if c.Context.SafeOutputLimit <= 0 {
		return fmt.Errorf("context.safe_output_limit must be > 0")
	}
	if c.Context.SafetyBuffer < 0 {
		return fmt.Errorf("context.safety_buffer must be >= 0")
	}
	if c.Context.EstimationMargin < 0 {
		return fmt.Errorf("context.estimation_margin must be >= 0")
	}

	if c.Stream.FlushThreshold <= 0 {
		return fmt.Errorf("stream.flush_threshold must be > 0")
	}
	if c.Stream.TagLookahead <= 0 {
		return fmt.Errorf("stream.tag_lookahead must be > 0")
	}

	if c.RetryPolicy.MaxRetries < 0 {
		return fmt.Errorf("retry_policy.max_retries must be >= 0")
	}
	if c.RetryPolicy.InitialBackoff < 0 {
		return fmt.Errorf("retry_policy.initial_backoff must be >= 0")
	}
	if c.RetryPolicy.MaxBackoff < 0 {
		return fmt.Errorf("retry_policy.max_backoff must be >= 0")
	}
	if c.RetryPolicy.Multiplier != 0 && c.RetryPolicy.Multiplier < 1 {
		return fmt.Errorf("retry_policy.multiplier must be >= 1, got %f", c.RetryPolicy.Multiplier)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if strings.TrimSpace(c.Logging.Level) != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// loadConfigEnvVars reads ~/.agenticos/config.env for credentials that
// should not live in YAML files checked into a repository.
func loadConfigEnvVars() map[string]string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}

	path := filepath.Join(home, ".agenticos", "config.env")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	vars := make(map[string]string)
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		vars[key] = value
	}
	return vars
}
