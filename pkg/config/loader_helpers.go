package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Zero values are treated as
// "not set" except where the raw document proves the key was present,
// which matters for booleans and cleared lists.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Provider.Model != "" {
		base.Provider.Model = override.Provider.Model
	}
	if override.Provider.BaseURL != "" {
		base.Provider.BaseURL = override.Provider.BaseURL
	}
	if override.Provider.APIKey != "" {
		base.Provider.APIKey = override.Provider.APIKey
	}

	if override.Generation.Temperature != 0 {
		base.Generation.Temperature = override.Generation.Temperature
	}
	if override.Generation.TopP != 0 {
		base.Generation.TopP = override.Generation.TopP
	}
	if override.Generation.MaxTokens != 0 {
		base.Generation.MaxTokens = override.Generation.MaxTokens
	}
	if override.Generation.FrequencyPenalty != 0 {
		base.Generation.FrequencyPenalty = override.Generation.FrequencyPenalty
	}
	if override.Generation.PresencePenalty != 0 {
		base.Generation.PresencePenalty = override.Generation.PresencePenalty
	}
	if fieldSet(raw, "generation", "stop") {
		base.Generation.Stop = append([]string{}, override.Generation.Stop...)
	}

	if override.Context.APIContextLimit != 0 {
		base.Context.APIContextLimit = override.Context.APIContextLimit
	}
	if override.Context.SafeOutputLimit != 0 {
		base.Context.SafeOutputLimit = override.Context.SafeOutputLimit
	}
	if fieldSet(raw, "context", "safety_buffer") {
		base.Context.SafetyBuffer = override.Context.SafetyBuffer
	}
	if fieldSet(raw, "context", "estimation_margin") {
		base.Context.EstimationMargin = override.Context.EstimationMargin
	}

	if override.Stream.FlushThreshold != 0 {
		base.Stream.FlushThreshold = override.Stream.FlushThreshold
	}
	if override.Stream.TagLookahead != 0 {
		base.Stream.TagLookahead = override.Stream.TagLookahead
	}

	if override.Thinking.Mode != "" {
		base.Thinking.Mode = override.Thinking.Mode
	}
	if override.Thinking.Budget != 0 {
		base.Thinking.Budget = override.Thinking.Budget
	}
	if fieldSet(raw, "thinking", "reflection") {
		base.Thinking.Reflection = override.Thinking.Reflection
	}
	if override.Thinking.Effort != "" {
		base.Thinking.Effort = override.Thinking.Effort
	}

	if fieldSet(raw, "retry_policy", "max_retries") {
		base.RetryPolicy.MaxRetries = override.RetryPolicy.MaxRetries
	}
	if override.RetryPolicy.InitialBackoff != 0 {
		base.RetryPolicy.InitialBackoff = override.RetryPolicy.InitialBackoff
	}
	if override.RetryPolicy.MaxBackoff != 0 {
		base.RetryPolicy.MaxBackoff = override.RetryPolicy.MaxBackoff
	}
	if override.RetryPolicy.Multiplier != 0 {
		base.RetryPolicy.Multiplier = override.RetryPolicy.Multiplier
	}

	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.ReasoningDir != "" {
		base.Logging.ReasoningDir = override.Logging.ReasoningDir
	}

	if fieldSet(raw, "diagnostics", "network_logs_enabled") {
		base.Diagnostics.NetworkLogsEnabled = override.Diagnostics.NetworkLogsEnabled
	}
}

// fieldSet reports whether the raw YAML document contains a value at the
// given key path. Needed to distinguish an explicit zero from an absent key.
func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}

// envBool parses a boolean environment variable, returning the value and
// whether it was set to something recognizable.
func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}
