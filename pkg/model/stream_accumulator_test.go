package model

import (
	"strings"
	"testing"
)

func contentChunk(text string) StreamChunk {
	return StreamChunk{
		Choices: []StreamChoice{{Delta: MessageDelta{Content: text}}},
	}
}

func TestStreamAccumulator_TextContent(t *testing.T) {
	acc := NewStreamAccumulator()
	defer ReleaseStreamAccumulator(acc)

	acc.Add(StreamChunk{
		Choices: []StreamChoice{{Delta: MessageDelta{Role: "assistant", Content: "Hello"}}},
	})
	acc.Add(contentChunk(" world"))
	acc.Add(contentChunk("!"))

	if got := acc.Content(); got != "Hello world!" {
		t.Errorf("Content() = %q, want %q", got, "Hello world!")
	}
	msg := acc.Message()
	if msg.Role != "assistant" {
		t.Errorf("Role = %q, want assistant", msg.Role)
	}
}

func TestStreamAccumulator_ReasoningFieldSpellings(t *testing.T) {
	acc := NewStreamAccumulator()
	defer ReleaseStreamAccumulator(acc)

	acc.Add(StreamChunk{
		Choices: []StreamChoice{{Delta: MessageDelta{ReasoningContent: "step one. "}}},
	})
	acc.Add(StreamChunk{
		Choices: []StreamChoice{{Delta: MessageDelta{Reasoning: "step two."}}},
	})

	if got := acc.Reasoning(); got != "step one. step two." {
		t.Errorf("Reasoning() = %q, want both spellings accumulated", got)
	}
}

func TestStreamAccumulator_ToolCallDeltaMerging(t *testing.T) {
	acc := NewStreamAccumulator()
	defer ReleaseStreamAccumulator(acc)

	acc.Add(StreamChunk{
		Choices: []StreamChoice{{Delta: MessageDelta{ToolCalls: []ToolCallDelta{
			{Index: 0, ID: "call_1", Type: "function", Function: &FunctionCallDelta{Name: "sea"}},
		}}}},
	})
	acc.Add(StreamChunk{
		Choices: []StreamChoice{{Delta: MessageDelta{ToolCalls: []ToolCallDelta{
			{Index: 0, Function: &FunctionCallDelta{Name: "rch", Arguments: `{"q":`}},
		}}}},
	})
	acc.Add(StreamChunk{
		Choices: []StreamChoice{{Delta: MessageDelta{ToolCalls: []ToolCallDelta{
			{Index: 0, Function: &FunctionCallDelta{Arguments: `"x"}`}},
			{Index: 1, ID: "call_2", Type: "function", Function: &FunctionCallDelta{Name: "fetch", Arguments: "{}"}},
		}}}},
	})

	calls := acc.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("ToolCalls() len = %d, want 2", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Function.Name != "search" {
		t.Errorf("call 0 = %+v, want id call_1 name search", calls[0])
	}
	if calls[0].Function.Arguments != `{"q":"x"}` {
		t.Errorf("call 0 arguments = %q, want %q", calls[0].Function.Arguments, `{"q":"x"}`)
	}
	if calls[1].Function.Name != "fetch" {
		t.Errorf("call 1 name = %q, want fetch", calls[1].Function.Name)
	}
}

func TestStreamAccumulator_Usage(t *testing.T) {
	acc := NewStreamAccumulator()
	defer ReleaseStreamAccumulator(acc)

	acc.Add(contentChunk("text"))
	if acc.Usage() != nil {
		t.Error("Usage() should be nil before the final chunk")
	}

	acc.Add(StreamChunk{Usage: &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}})
	usage := acc.Usage()
	if usage == nil || usage.TotalTokens != 15 {
		t.Errorf("Usage() = %+v, want total 15", usage)
	}
}

func TestStreamAccumulator_PoolReuseResetsState(t *testing.T) {
	acc := AcquireStreamAccumulator()
	acc.Add(StreamChunk{
		Choices: []StreamChoice{{Delta: MessageDelta{
			Role:             "assistant",
			Content:          "text",
			ReasoningContent: "thought",
			ToolCalls:        []ToolCallDelta{{Index: 0, ID: "id"}},
		}}},
	})
	acc.Add(StreamChunk{Usage: &Usage{TotalTokens: 1}})
	ReleaseStreamAccumulator(acc)

	fresh := AcquireStreamAccumulator()
	defer ReleaseStreamAccumulator(fresh)
	if fresh.Content() != "" || fresh.Reasoning() != "" || fresh.HasToolCalls() || fresh.Usage() != nil {
		t.Error("accumulator from pool carried previous state")
	}
}

func TestStreamAccumulator_FinalizeExtractsTaggedToolCalls(t *testing.T) {
	acc := NewStreamAccumulator()
	defer ReleaseStreamAccumulator(acc)

	acc.Add(contentChunk("Let me check.\n<tool_call>search\n"))
	acc.Add(contentChunk("<arg_key>q</arg_key><arg_value>golang</arg_value>\n</tool_call>"))

	msg := acc.Finalize()
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("ToolCalls len = %d, want 1", len(msg.ToolCalls))
	}
	if msg.ToolCalls[0].Function.Name != "search" {
		t.Errorf("name = %q, want search", msg.ToolCalls[0].Function.Name)
	}
	content, ok := msg.Content.(string)
	if !ok {
		t.Fatalf("Content type = %T, want string", msg.Content)
	}
	if strings.Contains(content, "<tool_call>") {
		t.Errorf("content still carries tool markup: %q", content)
	}
}

func TestStreamAccumulator_FinalizeMovesThinkingToReasoning(t *testing.T) {
	acc := NewStreamAccumulator()
	defer ReleaseStreamAccumulator(acc)

	acc.Add(contentChunk("<thinking>consider the ques"))
	acc.Add(contentChunk("tion</thinking>The answer is 4."))

	msg := acc.Finalize()
	if msg.Reasoning != "consider the question" {
		t.Errorf("Reasoning = %q, want thinking block content", msg.Reasoning)
	}
	if msg.Content != "The answer is 4." {
		t.Errorf("Content = %q, want clean answer", msg.Content)
	}
}

func TestStreamAccumulator_FinalizePrefersStructuredToolCalls(t *testing.T) {
	acc := NewStreamAccumulator()
	defer ReleaseStreamAccumulator(acc)

	// Structured deltas and tagged markup should not both produce calls;
	// structured wins and the markup stays in the content untouched.
	acc.Add(StreamChunk{
		Choices: []StreamChoice{{Delta: MessageDelta{
			Content:   "<tool_call>other\n<arg_key>a</arg_key><arg_value>b</arg_value></tool_call>",
			ToolCalls: []ToolCallDelta{{Index: 0, ID: "call_1", Type: "function", Function: &FunctionCallDelta{Name: "search", Arguments: "{}"}}},
		}}},
	})

	msg := acc.Finalize()
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Function.Name != "search" {
		t.Fatalf("ToolCalls = %+v, want only the structured call", msg.ToolCalls)
	}
}
