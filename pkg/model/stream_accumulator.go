package model

import (
	"strings"
	"sync"
)

// streamAccumulatorPool recycles StreamAccumulator instances to reduce GC
// pressure during streaming operations.
var streamAccumulatorPool = sync.Pool{
	New: func() any {
		return &StreamAccumulator{}
	},
}

// AcquireStreamAccumulator retrieves a StreamAccumulator from the pool.
// The accumulator is reset and ready for use.
func AcquireStreamAccumulator() *StreamAccumulator {
	a := streamAccumulatorPool.Get().(*StreamAccumulator)
	a.Reset()
	return a
}

// ReleaseStreamAccumulator returns a StreamAccumulator to the pool for reuse.
// The accumulator should not be used after this call.
func ReleaseStreamAccumulator(a *StreamAccumulator) {
	if a == nil {
		return
	}
	a.Reset()
	streamAccumulatorPool.Put(a)
}

// StreamAccumulator assembles streaming chunks into a complete message.
// It handles tool call delta accumulation following the OpenAI-compatible
// pattern where each delta carries the index of the call it extends.
type StreamAccumulator struct {
	content   strings.Builder
	reasoning strings.Builder
	toolCalls []ToolCall
	usage     *Usage
	role      string
}

// NewStreamAccumulator creates a new accumulator for streaming responses.
func NewStreamAccumulator() *StreamAccumulator {
	return AcquireStreamAccumulator()
}

// Add processes a streaming chunk and accumulates its contents.
func (a *StreamAccumulator) Add(chunk StreamChunk) {
	if chunk.Usage != nil {
		a.usage = chunk.Usage
	}
	if len(chunk.Choices) == 0 {
		return
	}

	delta := chunk.Choices[0].Delta

	// Role usually arrives only in the first chunk
	if delta.Role != "" {
		a.role = delta.Role
	}

	if delta.Content != "" {
		a.content.WriteString(delta.Content)
	}

	// Reasoning arrives under either field spelling
	if r := delta.ReasoningText(); r != "" {
		a.reasoning.WriteString(r)
	}

	for _, tc := range delta.ToolCalls {
		a.accumulateToolCall(tc)
	}
}

// accumulateToolCall merges a tool call delta into the slot its index
// addresses. ID, name, and arguments all accumulate incrementally.
func (a *StreamAccumulator) accumulateToolCall(delta ToolCallDelta) {
	for len(a.toolCalls) <= delta.Index {
		a.toolCalls = append(a.toolCalls, ToolCall{
			Type: "function",
		})
	}

	tc := &a.toolCalls[delta.Index]

	if delta.ID != "" {
		tc.ID += delta.ID
	}
	if delta.Type != "" {
		tc.Type = delta.Type
	}
	if delta.Function != nil {
		if delta.Function.Name != "" {
			tc.Function.Name += delta.Function.Name
		}
		if delta.Function.Arguments != "" {
			tc.Function.Arguments += delta.Function.Arguments
		}
	}
}

// Message returns the accumulated message as-is, without tag extraction.
func (a *StreamAccumulator) Message() Message {
	return Message{
		Role:      a.role,
		Content:   a.content.String(),
		Reasoning: a.reasoning.String(),
		ToolCalls: a.toolCalls,
	}
}

// Content returns the accumulated text content.
func (a *StreamAccumulator) Content() string {
	return a.content.String()
}

// Reasoning returns the accumulated reasoning content.
func (a *StreamAccumulator) Reasoning() string {
	return a.reasoning.String()
}

// ToolCalls returns the accumulated tool calls.
func (a *StreamAccumulator) ToolCalls() []ToolCall {
	return a.toolCalls
}

// HasToolCalls returns true if any tool calls have been accumulated.
func (a *StreamAccumulator) HasToolCalls() bool {
	return len(a.toolCalls) > 0
}

// Usage returns the usage information from the final chunk.
func (a *StreamAccumulator) Usage() *Usage {
	return a.usage
}

// Reset clears the accumulator for reuse.
func (a *StreamAccumulator) Reset() {
	a.content.Reset()
	a.reasoning.Reset()
	a.toolCalls = nil
	a.usage = nil
	a.role = ""
}

// Finalize returns the accumulated message with GLM markup resolved: when
// no structured tool calls arrived, tag-encoded blocks are extracted from
// the content, and thinking blocks still inline in the content move to the
// reasoning field. Raw streams fed through an unfiltered client need this;
// streams from GLMProvider arrive already normalized and only lose the
// canonical reasoning markers here.
func (a *StreamAccumulator) Finalize() Message {
	content := a.content.String()
	toolCalls := a.toolCalls

	if len(toolCalls) == 0 {
		toolCalls, content = ExtractToolCalls(content)
	}

	reasoning, content := ExtractThinking(content)
	if a.reasoning.Len() > 0 {
		if reasoning != "" {
			reasoning = a.reasoning.String() + "\n\n" + reasoning
		} else {
			reasoning = a.reasoning.String()
		}
	}

	return Message{
		Role:      a.role,
		Content:   content,
		Reasoning: reasoning,
		ToolCalls: toolCalls,
	}
}
