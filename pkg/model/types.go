package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Message represents a chat message
type Message struct {
	Role       string     `json:"role"`                   // user, assistant, system, tool
	Content    any        `json:"content,omitempty"`      // Can be string or []ContentPart for multimodal
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool response messages
	Name       string     `json:"name,omitempty"`         // Tool name for tool messages
	Reasoning  string     `json:"-"`                      // Reasoning/thinking content (never sent in requests; decoded from responses when present)
}

func (m Message) MarshalJSON() ([]byte, error) {
	type messageNoReasoning struct {
		Role       string     `json:"role"`
		Content    any        `json:"content,omitempty"`
		ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
		ToolCallID string     `json:"tool_call_id,omitempty"`
		Name       string     `json:"name,omitempty"`
	}
	return json.Marshal(messageNoReasoning{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type messageWithReasoning struct {
		Role             string     `json:"role"`
		Content          any        `json:"content,omitempty"`
		ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
		ToolCallID       string     `json:"tool_call_id,omitempty"`
		Name             string     `json:"name,omitempty"`
		Reasoning        string     `json:"reasoning,omitempty"`
		ReasoningContent string     `json:"reasoning_content,omitempty"`
	}
	var aux messageWithReasoning
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Role = aux.Role
	m.Content = aux.Content
	m.ToolCalls = aux.ToolCalls
	m.ToolCallID = aux.ToolCallID
	m.Name = aux.Name
	// GLM endpoints use reasoning_content; OpenAI-compatible proxies use reasoning
	m.Reasoning = aux.ReasoningContent
	if m.Reasoning == "" {
		m.Reasoning = aux.Reasoning
	}
	return nil
}

// ContentPart represents a part of multimodal content (text or image)
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in a content part
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"` // "low", "high", "auto"
}

// ToolCall represents a function/tool call from the assistant
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // Always "function" for now
	Function FunctionCall `json:"function"`
}

// FunctionCall represents the function being called
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// ThinkingOption is the primary reasoning switch recognized by GLM endpoints.
type ThinkingOption struct {
	Type string `json:"type"` // "enabled" or "disabled"
}

// ThinkingTuning carries reasoning-tuning parameters for backends that
// accept a thinking_config extension.
type ThinkingTuning struct {
	Enabled    bool   `json:"enabled"`
	Budget     int    `json:"budget,omitempty"`
	Reflection bool   `json:"reflection,omitempty"`
	Effort     string `json:"effort,omitempty"` // "low", "medium", "high"
}

// ChatRequest represents a request to the chat completion API.
// Extension fields beyond the OpenAI-compatible core ride at the top level
// of the JSON body; backends that do not recognize them ignore them.
type ChatRequest struct {
	Model            string           `json:"model"`
	Messages         []Message        `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
	TopP             float64          `json:"top_p,omitempty"`
	MaxTokens        int              `json:"max_tokens,omitempty"`
	FrequencyPenalty float64          `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64          `json:"presence_penalty,omitempty"`
	Stop             []string         `json:"stop,omitempty"`
	Stream           bool             `json:"stream"`
	Tools            []map[string]any `json:"tools,omitempty"`       // OpenAI function definitions
	ToolChoice       string           `json:"tool_choice,omitempty"` // "auto", "none", or "required"

	// GLM extension fields
	Thinking           *ThinkingOption   `json:"thinking,omitempty"`
	ThinkingConfig     *ThinkingTuning   `json:"thinking_config,omitempty"`
	ChatTemplateKwargs map[string]any    `json:"chat_template_kwargs,omitempty"`
	ResponseFormat     map[string]any    `json:"response_format,omitempty"`
	SafetySettings     map[string]string `json:"safety_settings,omitempty"`
	MaxOutputTokens    int               `json:"max_output_tokens,omitempty"`
	MaxInputTokens     int               `json:"max_input_tokens,omitempty"`
}

// ChatResponse represents a non-streaming chat completion response
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// StreamChunk represents a streaming response chunk
type StreamChunk struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"` // Only present in final chunk

	// Raw holds the undecoded event payload so vendor extension fields
	// survive past the typed decode. Never serialized.
	Raw []byte `json:"-"`
}

// StreamChoice represents a streaming choice
type StreamChoice struct {
	Index        int          `json:"index"`
	Delta        MessageDelta `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

// MessageDelta represents incremental content in a stream
type MessageDelta struct {
	Role             string          `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`         // OpenAI-compatible proxies
	ReasoningContent string          `json:"reasoning_content,omitempty"` // GLM native field
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ReasoningText returns the delta's reasoning content regardless of which
// field spelling the backend used.
func (d MessageDelta) ReasoningText() string {
	if d.ReasoningContent != "" {
		return d.ReasoningContent
	}
	return d.Reasoning
}

// ToolCallDelta represents incremental tool call data in streaming
type ToolCallDelta struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function *FunctionCallDelta `json:"function,omitempty"`
}

// FunctionCallDelta represents incremental function call data
type FunctionCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChunkKind classifies a normalized chunk.
type ChunkKind string

const (
	ChunkContent   ChunkKind = "content"
	ChunkReasoning ChunkKind = "reasoning"
	ChunkToolCall  ChunkKind = "tool_call"
)

// NormalizedChunk is the unit emitted by the stream pipeline: a content
// fragment, a reasoning fragment, or one complete structured tool call.
// Concatenating the Text of every emitted chunk in order reconstructs the
// upstream text with thinking markup either fully removed or delimited by
// exactly one canonical open/close pair per block, and with extracted tool
// call blocks elided.
type NormalizedChunk struct {
	Kind     ChunkKind
	Text     string
	ToolCall *ToolCall
}

// ModelCatalog represents the list of available models
type ModelCatalog struct {
	Data []ModelInfo `json:"data"`
}

// ModelInfo represents information about a model
type ModelInfo struct {
	ID                  string       `json:"id"`
	Name                string       `json:"name"`
	Description         string       `json:"description"`
	ContextLength       int          `json:"context_length"`
	Pricing             ModelPricing `json:"pricing"`
	Created             int64        `json:"created"` // Unix timestamp
	Architecture        Architecture `json:"architecture,omitempty"`
	SupportedParameters []string     `json:"supported_parameters,omitempty"`
}

// Architecture contains model architecture details
type Architecture struct {
	Modality     string `json:"modality,omitempty"` // "text", "text+image", etc.
	Tokenizer    string `json:"tokenizer,omitempty"`
	InstructType string `json:"instruct_type,omitempty"`
}

// ModelPricing represents pricing information for a model, per 1M tokens
type ModelPricing struct {
	Prompt     float64 `json:"prompt"`
	Completion float64 `json:"completion"`
}

// UnmarshalJSON handles string or number pricing values from the API
func (p *ModelPricing) UnmarshalJSON(data []byte) error {
	var raw struct {
		Prompt     any `json:"prompt"`
		Completion any `json:"completion"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.Prompt.(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		p.Prompt = f
	case float64:
		p.Prompt = v
	}

	switch v := raw.Completion.(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		p.Completion = f
	case float64:
		p.Completion = v
	}

	return nil
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// APIError represents a structured API error with retry information
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
	Retryable  bool
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Type != "" && e.Code != "" {
		return fmt.Sprintf("HTTP %d: %s (type: %s, code: %s)", e.StatusCode, e.Message, e.Type, e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimitError returns true if this is a rate limit error
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == 429
}
