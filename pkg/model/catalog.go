package model

import "fmt"

// glmModels enumerates the supported GLM models with pricing/context info.
// Pricing is per 1M tokens.
var glmModels = []ModelInfo{
	{
		ID:            "glm-4.5",
		Name:          "GLM-4.5",
		Description:   "Flagship reasoning model with hybrid thinking modes",
		ContextLength: 131072,
		Pricing: ModelPricing{
			Prompt:     0.60,
			Completion: 2.20,
		},
		Architecture: Architecture{
			Modality:  "text",
			Tokenizer: "cl100k_base",
		},
		SupportedParameters: []string{"tools", "thinking", "top_p", "stop"},
	},
	{
		ID:            "glm-4.5-air",
		Name:          "GLM-4.5 Air",
		Description:   "Lighter variant tuned for latency-sensitive workloads",
		ContextLength: 131072,
		Pricing: ModelPricing{
			Prompt:     0.20,
			Completion: 1.10,
		},
		Architecture: Architecture{
			Modality:  "text",
			Tokenizer: "cl100k_base",
		},
		SupportedParameters: []string{"tools", "thinking", "top_p", "stop"},
	},
	{
		ID:            "glm-4.5-flash",
		Name:          "GLM-4.5 Flash",
		ContextLength: 131072,
		Pricing: ModelPricing{
			Prompt:     0,
			Completion: 0,
		},
		Architecture: Architecture{
			Modality:  "text",
			Tokenizer: "cl100k_base",
		},
		SupportedParameters: []string{"tools", "top_p", "stop"},
	},
	{
		ID:            "glm-4.6",
		Name:          "GLM-4.6",
		Description:   "Successor generation with a larger context window",
		ContextLength: 204800,
		Pricing: ModelPricing{
			Prompt:     0.60,
			Completion: 2.20,
		},
		Architecture: Architecture{
			Modality:  "text",
			Tokenizer: "cl100k_base",
		},
		SupportedParameters: []string{"tools", "thinking", "top_p", "stop"},
	},
	{
		ID:            "glm-4.5v",
		Name:          "GLM-4.5V",
		Description:   "Vision-language variant accepting image content parts",
		ContextLength: 65536,
		Pricing: ModelPricing{
			Prompt:     0.60,
			Completion: 1.80,
		},
		Architecture: Architecture{
			Modality:  "text+image",
			Tokenizer: "cl100k_base",
		},
		SupportedParameters: []string{"tools", "thinking", "top_p", "stop"},
	},
}

// glmModelIndex for quick lookup
var glmModelIndex map[string]ModelInfo

func init() {
	glmModelIndex = make(map[string]ModelInfo, len(glmModels))
	for _, m := range glmModels {
		glmModelIndex[m.ID] = m
	}
}

// CuratedCatalog returns the static GLM model catalog.
func CuratedCatalog() *ModelCatalog {
	data := make([]ModelInfo, len(glmModels))
	copy(data, glmModels)
	return &ModelCatalog{Data: data}
}

// LookupModel returns static metadata for a given model id.
func LookupModel(modelID string) (*ModelInfo, error) {
	if info, ok := glmModelIndex[modelID]; ok {
		return &info, nil
	}
	return nil, fmt.Errorf("model not found: %s", modelID)
}

// SupportsVision reports whether the model accepts image content parts.
func SupportsVision(modelID string) bool {
	info, ok := glmModelIndex[modelID]
	if !ok {
		return false
	}
	return info.Architecture.Modality == "text+image"
}

// SupportsThinking reports whether the model accepts the thinking extension.
func SupportsThinking(modelID string) bool {
	info, ok := glmModelIndex[modelID]
	if !ok {
		// Unknown ids may be fine-tunes of thinking-capable bases; the
		// opt-in policy still gates actual use.
		return true
	}
	for _, p := range info.SupportedParameters {
		if p == "thinking" {
			return true
		}
	}
	return false
}

// ContextWindowFor returns the model's context window, or the supplied
// fallback when the model is unknown.
func ContextWindowFor(modelID string, fallback int) int {
	if info, ok := glmModelIndex[modelID]; ok && info.ContextLength > 0 {
		return info.ContextLength
	}
	return fallback
}
