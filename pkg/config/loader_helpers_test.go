package config

import "testing"

func TestMergeConfigsPreservesBooleanDefaults(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Provider: ProviderConfig{
			Model: "glm-4.5-air",
		},
	}
	raw := map[string]any{
		"provider": map[string]any{
			"model": "glm-4.5-air",
		},
	}

	mergeConfigs(base, override, raw)

	if !base.Thinking.Reflection {
		t.Fatalf("thinking reflection flag should remain true when not overridden")
	}
	if base.Provider.Model != "glm-4.5-air" {
		t.Fatalf("expected model to be overridden")
	}
}

func TestMergeConfigsRespectsBooleanOverrides(t *testing.T) {
	base := DefaultConfig()
	override := &Config{}
	override.Thinking.Reflection = false
	raw := map[string]any{
		"thinking": map[string]any{
			"reflection": false,
		},
	}

	mergeConfigs(base, override, raw)

	if base.Thinking.Reflection {
		t.Fatalf("expected thinking.reflection to update when override is explicit")
	}
}

func TestMergeConfigsClearsStopSequences(t *testing.T) {
	base := DefaultConfig()
	override := &Config{}
	raw := map[string]any{
		"generation": map[string]any{
			"stop": []any{},
		},
	}

	mergeConfigs(base, override, raw)

	if len(base.Generation.Stop) != 0 {
		t.Fatalf("expected explicit empty stop list to clear defaults, got %v", base.Generation.Stop)
	}
}

func TestMergeConfigsKeepsStopSequencesWhenAbsent(t *testing.T) {
	base := DefaultConfig()
	override := &Config{}
	raw := map[string]any{}

	mergeConfigs(base, override, raw)

	if len(base.Generation.Stop) != 2 {
		t.Fatalf("expected default stop sequences to survive, got %v", base.Generation.Stop)
	}
}

func TestMergeConfigsRetryZeroMaxRetries(t *testing.T) {
	base := DefaultConfig()
	override := &Config{}
	raw := map[string]any{
		"retry_policy": map[string]any{
			"max_retries": 0,
		},
	}

	mergeConfigs(base, override, raw)

	if base.RetryPolicy.MaxRetries != 0 {
		t.Fatalf("expected explicit max_retries: 0 to disable retries, got %d", base.RetryPolicy.MaxRetries)
	}
}

func TestMergeConfigsNetworkLogsOverride(t *testing.T) {
	base := DefaultConfig()
	override := &Config{}
	override.Diagnostics.NetworkLogsEnabled = true
	raw := map[string]any{
		"diagnostics": map[string]any{
			"network_logs_enabled": true,
		},
	}

	mergeConfigs(base, override, raw)

	if !base.Diagnostics.NetworkLogsEnabled {
		t.Fatalf("expected diagnostics.network_logs_enabled to update when explicit")
	}
}
