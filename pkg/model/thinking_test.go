package model

import (
	"strings"
	"testing"
)

func TestDecideThinking(t *testing.T) {
	tests := []struct {
		name         string
		explicit     string
		providerMode string
		killSwitch   bool
		want         bool
	}{
		{"explicit enable", ThinkingEnabledSetting, "", false, true},
		{"explicit enable with provider disabled", ThinkingEnabledSetting, ThinkingDisabledSetting, false, true},
		{"explicit disable", ThinkingDisabledSetting, ThinkingEnabledSetting, false, false},
		{"kill switch beats explicit enable", ThinkingEnabledSetting, ThinkingEnabledSetting, true, false},
		{"no request stays off", "", "", false, false},
		{"provider enabled cannot opt in alone", "", ThinkingEnabledSetting, false, false},
		{"provider auto cannot opt in alone", "", ThinkingAutoSetting, false, false},
		{"request auto is not an opt-in", ThinkingAutoSetting, ThinkingEnabledSetting, false, false},
		{"unknown value stays off", "maybe", ThinkingEnabledSetting, false, false},
		{"case and whitespace tolerated", "  Enabled ", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideThinking(tt.explicit, tt.providerMode, tt.killSwitch)
			if got != tt.want {
				t.Errorf("DecideThinking(%q, %q, %v) = %v, want %v",
					tt.explicit, tt.providerMode, tt.killSwitch, got, tt.want)
			}
		})
	}
}

func TestThinkingPolicyKillSwitch(t *testing.T) {
	var p ThinkingPolicy

	if !p.Decide(ThinkingEnabledSetting, "") {
		t.Fatal("explicit enable should win before the kill switch trips")
	}

	p.Disable("first failure")
	p.Disable("second failure")

	killed, reason := p.Killed()
	if !killed {
		t.Fatal("policy should report killed")
	}
	if reason != "first failure" {
		t.Errorf("reason = %q, want the first reason kept", reason)
	}
	if p.Decide(ThinkingEnabledSetting, ThinkingEnabledSetting) {
		t.Error("kill switch must override explicit enable")
	}
}

func TestExtractThinking(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantReasoning string
		wantContent   string
	}{
		{
			name:        "no blocks",
			input:       "just an answer",
			wantContent: "just an answer",
		},
		{
			name:          "single block",
			input:         "<think>reasoning</think>answer",
			wantReasoning: "reasoning",
			wantContent:   "answer",
		},
		{
			name:          "piped spelling",
			input:         "<|thinking|>deep<|endofthinking|>out",
			wantReasoning: "deep",
			wantContent:   "out",
		},
		{
			name:          "full spelling",
			input:         "<thinking>a</thinking>b",
			wantReasoning: "a",
			wantContent:   "b",
		},
		{
			name:          "multiple blocks joined",
			input:         "<think>one</think>mid<think>two</think>end",
			wantReasoning: "one\n\ntwo",
			wantContent:   "midend",
		},
		{
			name:          "unterminated trailing block",
			input:         "pre<think>dangling reasoning",
			wantReasoning: "dangling reasoning",
			wantContent:   "pre",
		},
		{
			name:        "empty block dropped",
			input:       "<think>   </think>hello",
			wantContent: "hello",
		},
		{
			name:          "surrounding whitespace trimmed",
			input:         "  text <think>r</think>  ",
			wantReasoning: "r",
			wantContent:   "text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoning, content := ExtractThinking(tt.input)
			if reasoning != tt.wantReasoning {
				t.Errorf("reasoning = %q, want %q", reasoning, tt.wantReasoning)
			}
			if content != tt.wantContent {
				t.Errorf("content = %q, want %q", content, tt.wantContent)
			}
		})
	}
}

func TestStripThinking(t *testing.T) {
	if got := StripThinking("<think>hidden</think>visible"); got != "visible" {
		t.Errorf("StripThinking = %q, want visible", got)
	}
}

func TestWrapThinking(t *testing.T) {
	if got := WrapThinking(""); got != "" {
		t.Errorf("WrapThinking(empty) = %q, want empty", got)
	}
	want := thinkingOpenMarker + "because" + thinkingCloseMarker
	if got := WrapThinking("because"); got != want {
		t.Errorf("WrapThinking = %q, want %q", got, want)
	}
}

func TestExtractReasoningField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "reasoning_content",
			raw:  `{"choices":[{"delta":{"reasoning_content":"deep"}}]}`,
			want: "deep",
		},
		{
			name: "thinking spelling",
			raw:  `{"choices":[{"delta":{"thinking":"t"}}]}`,
			want: "t",
		},
		{
			name: "rationale spelling",
			raw:  `{"choices":[{"delta":{"rationale":"r"}}]}`,
			want: "r",
		},
		{
			name: "primary spelling wins when several present",
			raw:  `{"choices":[{"delta":{"reasoning":"late","reasoning_content":"first"}}]}`,
			want: "first",
		},
		{
			name: "plain content is not reasoning",
			raw:  `{"choices":[{"delta":{"content":"x"}}]}`,
			want: "",
		},
		{
			name: "non-string field ignored",
			raw:  `{"choices":[{"delta":{"reasoning":123}}]}`,
			want: "",
		},
		{
			name: "no choices",
			raw:  `{"id":"x"}`,
			want: "",
		},
		{
			name: "empty payload",
			raw:  "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractReasoningField([]byte(tt.raw)); got != tt.want {
				t.Errorf("extractReasoningField = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnalyzeQueryComplexity(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryComplexity
	}{
		{"simple definition", "What is Go?", ComplexitySimple},
		{"arabic simple", "ما هو الذكاء الاصطناعي", ComplexitySimple},
		{"single complex indicator", "Debug this function for me", ComplexityComplex},
		{"many questions", "Why? How? What next?", ComplexityComplex},
		{"stacked indicators", "Analyze and compare these two designs", ComplexityVeryComplex},
		{"long analytical prompt", "analyze " + strings.Repeat("word ", 55), ComplexityVeryComplex},
		{"default moderate", "Tell me about the weather today", ComplexityModerate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AnalyzeQueryComplexity(tt.query); got != tt.want {
				t.Errorf("AnalyzeQueryComplexity(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}
