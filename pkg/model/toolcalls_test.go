package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExtractToolCallsRoundTrip(t *testing.T) {
	content := "<tool_call>search\n<arg_key>q</arg_key>\n<arg_value>x</arg_value>\n</tool_call>"

	calls, cleaned := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	call := calls[0]
	if call.Function.Name != "search" {
		t.Errorf("name = %q, want search", call.Function.Name)
	}

	var args map[string]string
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		t.Fatalf("arguments %q not valid JSON: %v", call.Function.Arguments, err)
	}
	if len(args) != 1 || args["q"] != "x" {
		t.Errorf("args = %v, want map[q:x]", args)
	}
	if call.ID == "" {
		t.Error("expected a generated call ID")
	}
	if call.Type != "function" {
		t.Errorf("type = %q, want function", call.Type)
	}
	if cleaned != "" {
		t.Errorf("cleaned = %q, want empty", cleaned)
	}
}

func TestExtractToolCallsPreservesArgumentOrder(t *testing.T) {
	content := "<tool_call>write_file\n" +
		"<arg_key>path</arg_key><arg_value>/tmp/out</arg_value>\n" +
		"<arg_key>mode</arg_key><arg_value>append</arg_value>\n" +
		"<arg_key>content</arg_key><arg_value>hello</arg_value>\n" +
		"</tool_call>"

	calls, _ := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	// Keys come out in block order; sorted encoding would put content first.
	want := `{"path":"/tmp/out","mode":"append","content":"hello"}`
	if got := calls[0].Function.Arguments; got != want {
		t.Errorf("arguments = %q, want declaration order %q", got, want)
	}
}

func TestExtractToolCallsDuplicateKeyKeepsPosition(t *testing.T) {
	content := "<tool_call>search\n" +
		"<arg_key>q</arg_key><arg_value>first</arg_value>\n" +
		"<arg_key>limit</arg_key><arg_value>5</arg_value>\n" +
		"<arg_key>q</arg_key><arg_value>second</arg_value>\n" +
		"</tool_call>"

	calls, _ := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	want := `{"q":"second","limit":"5"}`
	if got := calls[0].Function.Arguments; got != want {
		t.Errorf("arguments = %q, want last value at first position %q", got, want)
	}
}

func TestExtractToolCallsRemovesBlocksFromContent(t *testing.T) {
	content := "I'll look that up. <tool_call>search\n<arg_key>q</arg_key><arg_value>go</arg_value></tool_call> One moment."

	calls, cleaned := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if cleaned != "I'll look that up.  One moment." {
		t.Errorf("cleaned = %q", cleaned)
	}
}

func TestExtractToolCallsNoBlocks(t *testing.T) {
	content := "just a normal answer with <some> markup"
	calls, cleaned := ExtractToolCalls(content)
	if calls != nil {
		t.Errorf("calls = %+v, want nil", calls)
	}
	if cleaned != content {
		t.Errorf("cleaned = %q, want original content untouched", cleaned)
	}
}

func TestExtractToolCallsMultipleBlocks(t *testing.T) {
	content := "A<tool_call>first\n</tool_call>B<tool_call>second\n<arg_key>k</arg_key><arg_value>v</arg_value></tool_call>C"

	calls, cleaned := ExtractToolCalls(content)
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].Function.Name != "first" || calls[1].Function.Name != "second" {
		t.Errorf("names = %q, %q", calls[0].Function.Name, calls[1].Function.Name)
	}
	if calls[0].Function.Arguments != "{}" {
		t.Errorf("no-arg call arguments = %q, want {}", calls[0].Function.Arguments)
	}
	if calls[1].Function.Arguments != `{"k":"v"}` {
		t.Errorf("arguments = %q", calls[1].Function.Arguments)
	}
	if calls[0].ID == calls[1].ID {
		t.Error("calls must get distinct IDs")
	}
	if cleaned != "ABC" {
		t.Errorf("cleaned = %q, want ABC", cleaned)
	}
}

func TestExtractToolCallsRejectsCorruptBlocks(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "empty function name",
			content: "<tool_call></tool_call>",
		},
		{
			name:    "unpaired argument key",
			content: "<tool_call>search\n<arg_key>q</arg_key></tool_call>",
		},
		{
			name:    "unterminated argument value",
			content: "<tool_call>search\n<arg_key>q</arg_key><arg_value>x</tool_call>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, cleaned := ExtractToolCalls(tt.content)
			if len(calls) != 0 {
				t.Errorf("calls = %+v, want none", calls)
			}
			if cleaned != tt.content {
				t.Errorf("cleaned = %q, want original content back", cleaned)
			}
		})
	}
}

func TestExtractToolCallsValidBlockSurvivesCorruptSibling(t *testing.T) {
	content := "<tool_call>good\n<arg_key>a</arg_key><arg_value>1</arg_value></tool_call>" +
		"<tool_call></tool_call>"

	calls, cleaned := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1 (corrupt sibling skipped)", len(calls))
	}
	if calls[0].Function.Name != "good" {
		t.Errorf("name = %q, want good", calls[0].Function.Name)
	}
	if strings.Contains(cleaned, "tool_call") {
		t.Errorf("cleaned = %q, want all blocks removed", cleaned)
	}
}

func TestExtractToolCallsTrimsNamesAndArgs(t *testing.T) {
	content := "<tool_call>  spaced_name  \n<arg_key> key </arg_key><arg_value> value </arg_value></tool_call>"

	calls, _ := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Function.Name != "spaced_name" {
		t.Errorf("name = %q, want spaced_name", calls[0].Function.Name)
	}
	if calls[0].Function.Arguments != `{"key":"value"}` {
		t.Errorf("arguments = %q", calls[0].Function.Arguments)
	}
}

func TestExtractToolCallsKeepsAngleBracketsInValues(t *testing.T) {
	content := "<tool_call>write\n<arg_key>code</arg_key><arg_value>if x < 10 { y() }</arg_value></tool_call>"

	calls, _ := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if got := calls[0].Function.Arguments; got != `{"code":"if x < 10 { y() }"}` {
		t.Errorf("arguments = %q, want brackets unescaped", got)
	}
}

func TestNormalizeToolXML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "canonical passes through",
			input: "<tool_call>f\n</tool_call>",
			want:  "<tool_call>f\n</tool_call>",
		},
		{
			name:  "open tag missing suffix with space",
			input: "<tool f\n</tool_call>",
			want:  "<tool_call>f\n</tool_call>",
		},
		{
			name:  "open tag missing suffix",
			input: "<tool>f\n</tool_call>",
			want:  "<tool_call>f\n</tool_call>",
		},
		{
			name:  "close tag missing suffix",
			input: "<tool_call>f\n</tool>",
			want:  "<tool_call>f\n</tool_call>",
		},
		{
			name:  "close tag missing bracket before newline",
			input: "<tool_call>f\n</tool\nrest",
			want:  "<tool_call>f\n</tool_call>\nrest",
		},
		{
			name:  "space inside open bracket",
			input: "< tool_call>f\n</tool_call>",
			want:  "<tool_call>f\n</tool_call>",
		},
		{
			name:  "space before open bracket close",
			input: "<tool_call >f\n</tool_call>",
			want:  "<tool_call>f\n</tool_call>",
		},
		{
			name:  "close tag with inner space",
			input: "<tool_call>f\n</tool >",
			want:  "<tool_call>f\n</tool_call>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeToolXML(tt.input); got != tt.want {
				t.Errorf("NormalizeToolXML(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractToolCallsRepairsMalformedDelimiters(t *testing.T) {
	content := "<tool search\n<arg_key>q</arg_key><arg_value>go</arg_value></tool\n"

	calls, cleaned := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1 after delimiter repair", len(calls))
	}
	if calls[0].Function.Name != "search" {
		t.Errorf("name = %q, want search", calls[0].Function.Name)
	}
	if strings.Contains(cleaned, "tool") {
		t.Errorf("cleaned = %q, want block removed", cleaned)
	}
}
