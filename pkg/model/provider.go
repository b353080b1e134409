package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nexiouscaliver/AgenticOS/pkg/config"
)

// Provider defines the behavior required for a chat model backend.
//
//go:generate mockgen -package=model -destination=mock_provider_test.go github.com/nexiouscaliver/AgenticOS/pkg/model Provider
type Provider interface {
	ID() string
	FetchCatalog() (*ModelCatalog, error)
	GetModelInfo(modelID string) (*ModelInfo, error)
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ChatCompletionStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error)
}

// TimeoutConfigurer is an optional interface for providers that can adjust request timeouts.
type TimeoutConfigurer interface {
	SetTimeout(timeout time.Duration)
}

// NewProvider builds the GLM provider from configuration.
func NewProvider(cfg *config.Config) (Provider, error) {
	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("no API key configured; set GLM_API_KEY or provider.api_key")
	}

	client := NewClient(cfg.Provider.APIKey,
		WithBaseURL(cfg.Provider.BaseURL),
		WithRetryConfig(RetryConfig{
			MaxRetries:      cfg.RetryPolicy.MaxRetries,
			InitialInterval: cfg.RetryPolicy.InitialBackoff,
			MaxInterval:     cfg.RetryPolicy.MaxBackoff,
			Multiplier:      cfg.RetryPolicy.Multiplier,
		}),
		WithNetworkLogging(cfg.Diagnostics.NetworkLogsEnabled, cfg.Logging.Dir),
	)

	return NewGLMProvider(client, cfg), nil
}

// normalizeModelID strips router-style vendor prefixes (zai/, glm/, ...)
// before sending requests to the underlying API.
func normalizeModelID(modelID string) string {
	for _, prefix := range []string{"zai/", "z-ai/", "zhipu/", "zhipuai/"} {
		if strings.HasPrefix(modelID, prefix) {
			return strings.TrimPrefix(modelID, prefix)
		}
	}
	return modelID
}

func messageContentToText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []ContentPart:
		var out []string
		for _, part := range v {
			if part.Type == "text" {
				out = append(out, part.Text)
			}
		}
		return strings.Join(out, "\n")
	case []any:
		parts := make([]ContentPart, 0, len(v))
		for _, val := range v {
			if partMap, ok := val.(map[string]any); ok {
				part := ContentPart{}
				if t, ok := partMap["type"].(string); ok {
					part.Type = t
				}
				if txt, ok := partMap["text"].(string); ok {
					part.Text = txt
				}
				parts = append(parts, part)
			}
		}
		return messageContentToText(parts)
	default:
		return fmt.Sprintf("%v", v)
	}
}
