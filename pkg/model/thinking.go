package model

import (
	"log"
	"regexp"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// Thinking settings recognized per request and in provider configuration.
const (
	ThinkingEnabledSetting  = "enabled"
	ThinkingDisabledSetting = "disabled"
	ThinkingAutoSetting     = "auto"
)

// Canonical markers used when re-emitting reasoning blocks. Upstream
// spellings vary; output always uses these.
const (
	thinkingOpenMarker  = "<thinking>\n"
	thinkingCloseMarker = "\n</thinking>\n\n"
)

// Recognized reasoning tag spellings, longest-prefix first so alternation
// never matches a shorter tag inside a longer one.
var (
	thinkingOpenTags  = []string{"<|thinking|>", "<thinking>", "<think>"}
	thinkingCloseTags = []string{"<|endofthinking|>", "</thinking>", "</think>"}
)

var (
	thinkingBlockRe = regexp.MustCompile(`(?s)(?:` + altPattern(thinkingOpenTags) + `)(.*?)(?:` + altPattern(thinkingCloseTags) + `)`)
	thinkingOpenRe  = regexp.MustCompile(altPattern(thinkingOpenTags))
	thinkingCloseRe = regexp.MustCompile(altPattern(thinkingCloseTags))
)

func altPattern(tags []string) string {
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return strings.Join(quoted, "|")
}

// DecideThinking resolves the per-request thinking flag.
//
// Priority: the kill switch always wins; an explicit per-request disable
// wins next; an explicit enable wins next; everything else resolves to
// false. Provider modes that nominally request automatic or always-on
// reasoning never substitute for an explicit per-request enable, so the
// policy stays strictly opt-in.
func DecideThinking(explicit, providerMode string, killSwitch bool) bool {
	if killSwitch {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case ThinkingDisabledSetting:
		return false
	case ThinkingEnabledSetting:
		return true
	}
	return false
}

// ThinkingPolicy holds the provider-level kill switch. Disabling is one-way:
// once tripped, every subsequent request resolves thinking to false for the
// lifetime of the provider.
type ThinkingPolicy struct {
	mu       sync.RWMutex
	disabled bool
	reason   string
}

// Disable trips the kill switch. The first reason is kept.
func (p *ThinkingPolicy) Disable(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disabled {
		return
	}
	p.disabled = true
	p.reason = reason
	log.Printf("[thinking] disabled permanently: %s", reason)
}

// Killed reports whether the kill switch has been tripped, and why.
func (p *ThinkingPolicy) Killed() (bool, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disabled, p.reason
}

// Decide resolves the thinking flag for one request under this policy.
func (p *ThinkingPolicy) Decide(explicit, providerMode string) bool {
	killed, _ := p.Killed()
	return DecideThinking(explicit, providerMode, killed)
}

// reasoningFieldNames lists vendor spellings of the reasoning delta field,
// probed in order of likelihood.
var reasoningFieldNames = []string{
	"reasoning_content",
	"thinking_content",
	"thinking",
	"thought",
	"reasoning",
	"internal_thought",
	"rationale",
	"analysis",
}

// extractReasoningField probes a raw delta payload for reasoning text under
// any known vendor spelling. Returns empty when none is present.
func extractReasoningField(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	delta := gjson.GetBytes(raw, "choices.0.delta")
	if !delta.Exists() {
		return ""
	}
	for _, name := range reasoningFieldNames {
		if v := delta.Get(name); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// ExtractThinking splits complete text into its reasoning blocks and the
// remaining content. Reasoning blocks in any recognized spelling are
// collected in order; an unterminated trailing block is treated as
// reasoning up to end of text.
func ExtractThinking(text string) (reasoning, content string) {
	var blocks []string
	content = thinkingBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := thinkingBlockRe.FindStringSubmatch(m)
		if len(sub) > 1 {
			if block := strings.TrimSpace(sub[1]); block != "" {
				blocks = append(blocks, block)
			}
		}
		return ""
	})
	if loc := thinkingOpenRe.FindStringIndex(content); loc != nil {
		tail := content[loc[0]:]
		if inner := strings.TrimSpace(thinkingOpenRe.ReplaceAllString(tail, "")); inner != "" {
			blocks = append(blocks, inner)
		}
		content = content[:loc[0]]
	}
	return strings.Join(blocks, "\n\n"), strings.TrimSpace(content)
}

// StripThinking removes reasoning blocks, terminated or not, from text.
func StripThinking(text string) string {
	_, content := ExtractThinking(text)
	return content
}

// WrapThinking renders reasoning text in the canonical markers.
func WrapThinking(reasoning string) string {
	if reasoning == "" {
		return ""
	}
	return thinkingOpenMarker + reasoning + thinkingCloseMarker
}

// QueryComplexity grades how much reasoning a query likely needs.
type QueryComplexity string

const (
	ComplexitySimple      QueryComplexity = "simple"
	ComplexityModerate    QueryComplexity = "moderate"
	ComplexityComplex     QueryComplexity = "complex"
	ComplexityVeryComplex QueryComplexity = "very_complex"
)

var complexIndicators = []string{
	"analyze", "compare", "evaluate", "explain why", "how does", "what if",
	"design", "optimize", "debug", "solve",
	"تحليل", "مقارنة", "تقييم", "شرح", "كيف",
}

var simpleIndicators = []string{
	"what is", "define", "list", "name", "when", "where",
	"ما هو", "عرف", "اذكر", "متى", "أين",
}

// AnalyzeQueryComplexity grades a query from its wording. Indicator lists
// cover English and Arabic.
func AnalyzeQueryComplexity(query string) QueryComplexity {
	lower := strings.ToLower(query)

	complexCount := 0
	for _, ind := range complexIndicators {
		if strings.Contains(lower, ind) {
			complexCount++
		}
	}
	simpleCount := 0
	for _, ind := range simpleIndicators {
		if strings.Contains(lower, ind) {
			simpleCount++
		}
	}

	words := len(strings.Fields(query))
	questions := strings.Count(query, "?") + strings.Count(query, "؟")

	switch {
	case complexCount >= 2 || (complexCount >= 1 && words > 50):
		return ComplexityVeryComplex
	case complexCount >= 1 || questions > 1:
		return ComplexityComplex
	case simpleCount >= 1 && words < 20:
		return ComplexitySimple
	default:
		return ComplexityModerate
	}
}
