package model

import (
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestContext captures the resolved parameters of a single model call.
// Decision fields are fixed at construction, so concurrent calls never
// observe each other's settings. Only the stream counters mutate, and those
// are atomic.
type RequestContext struct {
	ID     string
	Model  string
	Stream bool

	ThinkingEnabled bool
	ThinkingBudget  int
	ThinkingEffort  string
	Reflection      bool

	EstimatedInputTokens int
	MaxOutputTokens      int

	StartedAt time.Time

	chunks        atomic.Int64
	bytes         atomic.Int64
	thinkingBytes atomic.Int64
	toolCalls     atomic.Int64
}

// RequestStats is a point-in-time view of a request's stream counters.
type RequestStats struct {
	Chunks        int64
	Bytes         int64
	ThinkingBytes int64
	ToolCalls     int64
	Elapsed       time.Duration
}

// newRequestID returns a sortable unique identifier for a model call.
func newRequestID() string {
	return ulid.Make().String()
}

// CountChunk records one emitted chunk of n bytes.
func (rc *RequestContext) CountChunk(n int) {
	rc.chunks.Add(1)
	rc.bytes.Add(int64(n))
}

// CountThinking records n bytes of reasoning output.
func (rc *RequestContext) CountThinking(n int) {
	rc.thinkingBytes.Add(int64(n))
}

// CountToolCall records one extracted tool call.
func (rc *RequestContext) CountToolCall() {
	rc.toolCalls.Add(1)
}

// Elapsed reports time since the request started.
func (rc *RequestContext) Elapsed() time.Duration {
	return time.Since(rc.StartedAt)
}

// Stats returns the current counter values.
func (rc *RequestContext) Stats() RequestStats {
	return RequestStats{
		Chunks:        rc.chunks.Load(),
		Bytes:         rc.bytes.Load(),
		ThinkingBytes: rc.thinkingBytes.Load(),
		ToolCalls:     rc.toolCalls.Load(),
		Elapsed:       rc.Elapsed(),
	}
}

// ProviderMetrics is a cumulative snapshot of provider activity since
// startup or the last reset. Prometheus carries the same counts with
// labels; this is the in-process view for callers without a scraper.
type ProviderMetrics struct {
	Requests       int64 `json:"requests"`
	Streams        int64 `json:"streams"`
	Retries        int64 `json:"retries"`
	ThinkingBlocks int64 `json:"thinking_blocks"`
	ThinkingBytes  int64 `json:"thinking_bytes"`
	ToolCalls      int64 `json:"tool_calls"`
}

// providerCounters backs the snapshot. All fields are atomic so request
// paths never contend on a lock for bookkeeping.
type providerCounters struct {
	requests       atomic.Int64
	streams        atomic.Int64
	thinkingBlocks atomic.Int64
	thinkingBytes  atomic.Int64
	toolCalls      atomic.Int64
}

func (pc *providerCounters) snapshot() ProviderMetrics {
	return ProviderMetrics{
		Requests:       pc.requests.Load(),
		Streams:        pc.streams.Load(),
		ThinkingBlocks: pc.thinkingBlocks.Load(),
		ThinkingBytes:  pc.thinkingBytes.Load(),
		ToolCalls:      pc.toolCalls.Load(),
	}
}

func (pc *providerCounters) reset() {
	pc.requests.Store(0)
	pc.streams.Store(0)
	pc.thinkingBlocks.Store(0)
	pc.thinkingBytes.Store(0)
	pc.toolCalls.Store(0)
}

// absorb folds one finished request's counters into the running totals.
func (pc *providerCounters) absorb(stats RequestStats, thinkingBlocks int) {
	pc.thinkingBytes.Add(stats.ThinkingBytes)
	pc.toolCalls.Add(stats.ToolCalls)
	pc.thinkingBlocks.Add(int64(thinkingBlocks))
}
