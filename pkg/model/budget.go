package model

import (
	"sync"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const (
	// Per-message formatting overhead and reply priming, matching the
	// cl100k chat encoding conventions.
	tokensPerMessage   = 4
	replyPrimingTokens = 3

	// Flat per-image surcharge (one low-detail tile).
	tokensPerImage = 85
)

// Budget clamp reasons.
const (
	BudgetFits      = "fits"
	BudgetReduced   = "reduced"
	BudgetExhausted = "exhausted"
)

// BudgetLimits carries the context-window parameters for budget computation.
type BudgetLimits struct {
	ContextLimit     int // hard API context window
	SafeOutputLimit  int // documented safe output ceiling, 0 to ignore
	SafetyBuffer     int // head-room subtracted from the window
	EstimationMargin int // covers system prompt and tool schemas not in the message list
}

// BudgetDecision is the outcome of a budget computation.
type BudgetDecision struct {
	MaxTokens      int
	EstimatedInput int
	Available      int
	Clamped        bool
	Reason         string
}

// TokenEstimator estimates token counts for outgoing conversations. The
// subword encoder loads lazily on first use; when it cannot be loaded the
// estimator degrades to character heuristics rather than failing.
type TokenEstimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenEstimator returns an estimator backed by the cl100k_base encoding.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{}
}

func (e *TokenEstimator) encoding() *tiktoken.Tiktoken {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.enc = enc
		}
	})
	return e.enc
}

// EstimateText estimates the token count of a text fragment. Estimation
// never fails: encoder problems degrade to a character heuristic, and a
// panicking encoder degrades to a byte heuristic.
func (e *TokenEstimator) EstimateText(text string) (tokens int) {
	if text == "" {
		return 0
	}
	enc := e.encoding()
	if enc == nil {
		return charEstimate(text)
	}
	defer func() {
		if r := recover(); r != nil {
			tokens = byteEstimate(text)
		}
	}()
	return len(enc.Encode(text, nil, nil))
}

func charEstimate(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func byteEstimate(text string) int {
	n := len(text) / 4
	if n < 100 {
		n = 100
	}
	return n
}

// EstimateMessages estimates the token cost of a full conversation: text
// parts, a flat surcharge per image part, per-message formatting overhead,
// and reply priming.
func (e *TokenEstimator) EstimateMessages(messages []Message) int {
	total := replyPrimingTokens
	for i := range messages {
		total += tokensPerMessage
		total += e.EstimateText(messageContentToText(messages[i].Content))
		total += countImageParts(messages[i].Content) * tokensPerImage
	}
	return total
}

// EstimateRequest estimates the input token cost of a chat request.
func (e *TokenEstimator) EstimateRequest(req *ChatRequest) int {
	return e.EstimateMessages(req.Messages)
}

func countImageParts(content any) int {
	switch v := content.(type) {
	case []ContentPart:
		n := 0
		for _, part := range v {
			if part.Type == "image_url" {
				n++
			}
		}
		return n
	case []any:
		n := 0
		for _, val := range v {
			if partMap, ok := val.(map[string]any); ok {
				if t, ok := partMap["type"].(string); ok && t == "image_url" {
					n++
				}
			}
		}
		return n
	default:
		return 0
	}
}

// ComputeBudget derives the output-token budget for a request. The effective
// window is the smaller of the context limit and the safe output ceiling;
// the estimation margin inflates the input estimate and the safety buffer is
// reserved head-room. When nothing fits, the budget clamps to the largest
// value keeping input plus output within the raw context limit, minimum 1.
func ComputeBudget(requested, estimatedInput int, limits BudgetLimits) BudgetDecision {
	window := limits.ContextLimit
	if limits.SafeOutputLimit > 0 && limits.SafeOutputLimit < window {
		window = limits.SafeOutputLimit
	}

	input := estimatedInput + limits.EstimationMargin
	available := window - input - limits.SafetyBuffer

	decision := BudgetDecision{
		EstimatedInput: input,
		Available:      available,
	}

	if available <= 0 {
		adjusted := limits.ContextLimit - input
		if adjusted < 1 {
			adjusted = 1
		}
		decision.MaxTokens = adjusted
		decision.Clamped = true
		decision.Reason = BudgetExhausted
		return decision
	}

	if requested > 0 && requested <= available {
		decision.MaxTokens = requested
		decision.Reason = BudgetFits
		return decision
	}

	decision.MaxTokens = available
	decision.Clamped = requested > 0
	decision.Reason = BudgetReduced
	if requested <= 0 {
		decision.Reason = BudgetFits
	}
	return decision
}
