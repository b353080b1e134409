package model

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/nexiouscaliver/AgenticOS/pkg/config"
	"github.com/nexiouscaliver/AgenticOS/pkg/logging"
	"github.com/nexiouscaliver/AgenticOS/pkg/observability"
)

const (
	// catalogFetchTimeout bounds provider-level catalog calls, which have
	// no caller context to inherit.
	catalogFetchTimeout = 15 * time.Second

	// safetyThreshold rides on every request. Endpoints that do not
	// recognize safety_settings ignore the field.
	safetyThreshold = "BLOCK_MEDIUM_AND_ABOVE"
)

// GLMProvider shapes chat requests for GLM endpoints and normalizes what
// comes back: thinking blocks become reasoning, tag-encoded tool calls
// become structured calls, and streamed text is cleaned of partial markup.
type GLMProvider struct {
	client    *Client
	cfg       *config.Config
	logger    *logging.Logger          // nil discards, see logging.Logger
	reasoning *logging.ReasoningLogger // nil when reasoning capture is off
	estimator *TokenEstimator
	policy    *ThinkingPolicy
	hooks     *RequestHooks
	counters  providerCounters
}

var (
	_ Provider          = (*GLMProvider)(nil)
	_ TimeoutConfigurer = (*GLMProvider)(nil)
)

// NewGLMProvider wires a provider around an API client. Structured logging
// and reasoning capture come up only when the config points them at a
// directory; failures there degrade to console warnings rather than
// blocking the provider.
func NewGLMProvider(client *Client, cfg *config.Config) *GLMProvider {
	p := &GLMProvider{
		client:    client,
		cfg:       cfg,
		estimator: NewTokenEstimator(),
		policy:    &ThinkingPolicy{},
		hooks:     NewRequestHooks(),
	}
	if cfg.Generation.ArabicOptimization {
		p.hooks.Register(NormalizeArabicContent)
	}

	if dir := cfg.Logging.Dir; dir != "" {
		logger, err := logging.NewLogger(dir)
		if err != nil {
			log.Printf("[model] structured logging disabled: %v", err)
		} else {
			logger.SetMinLevel(logging.ParseLevel(cfg.Logging.Level))
			p.logger = logger
		}
	}
	if dir := cfg.Logging.ReasoningDir; dir != "" {
		rl, err := logging.NewReasoningLogger(dir)
		if err != nil {
			log.Printf("[model] reasoning capture disabled: %v", err)
		} else {
			p.reasoning = rl
		}
	}
	return p
}

// ID identifies the provider in routing and logs.
func (p *GLMProvider) ID() string { return "glm" }

// Close releases the loggers and the underlying client.
func (p *GLMProvider) Close() error {
	var firstErr error
	if p.reasoning != nil {
		if err := p.reasoning.Close(); err != nil {
			firstErr = err
		}
	}
	if err := p.logger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// SetTimeout adjusts the HTTP timeout for subsequent requests.
func (p *GLMProvider) SetTimeout(timeout time.Duration) {
	p.client.SetTimeout(timeout)
}

// DisableThinking trips the provider-wide thinking kill switch. One-way.
func (p *GLMProvider) DisableThinking(reason string) {
	p.policy.Disable(reason)
}

// Hooks exposes the request hook registry so callers can add their own
// preprocessing.
func (p *GLMProvider) Hooks() *RequestHooks { return p.hooks }

// Metrics returns the cumulative in-process activity snapshot.
func (p *GLMProvider) Metrics() ProviderMetrics {
	m := p.counters.snapshot()
	m.Retries = p.client.RetriesAttempted()
	return m
}

// ResetMetrics zeroes the snapshot counters. Prometheus counters are
// untouched; those are monotonic by contract.
func (p *GLMProvider) ResetMetrics() {
	p.counters.reset()
	p.client.resetRetryCount()
}

// FetchCatalog returns the model catalog, cached or curated as needed.
func (p *GLMProvider) FetchCatalog() (*ModelCatalog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), catalogFetchTimeout)
	defer cancel()
	return p.client.FetchCatalog(ctx)
}

// GetModelInfo resolves one model's metadata.
func (p *GLMProvider) GetModelInfo(modelID string) (*ModelInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), catalogFetchTimeout)
	defer cancel()
	return p.client.GetModelInfo(ctx, normalizeModelID(modelID))
}

// ValidateAPIKey checks that the configured credentials are accepted.
func (p *GLMProvider) ValidateAPIKey(ctx context.Context) error {
	return p.client.ValidateAPIKey(ctx)
}

// preparedRequest is the outcome of shaping one inbound request: the final
// wire request, the immutable per-call context, and the budget decision
// that produced its token limits.
type preparedRequest struct {
	req    ChatRequest
	rctx   *RequestContext
	budget BudgetDecision
}

// prepare shapes one request: hooks, model normalization, generation
// defaults, the thinking decision, tool choice validation, safety settings,
// and the token budget. The input is copied; the caller's request and
// messages are never mutated.
func (p *GLMProvider) prepare(req ChatRequest, stream bool) preparedRequest {
	p.counters.requests.Add(1)
	if stream {
		p.counters.streams.Add(1)
	}
	req.Messages = append([]Message(nil), req.Messages...)
	p.hooks.Apply(&req)

	if req.Model == "" {
		req.Model = p.cfg.Provider.Model
	}
	req.Model = normalizeModelID(req.Model)
	req.Stream = stream

	gen := p.cfg.Generation
	if req.Temperature == 0 {
		req.Temperature = gen.Temperature
	}
	if req.TopP == 0 {
		req.TopP = gen.TopP
	}
	if req.FrequencyPenalty == 0 {
		req.FrequencyPenalty = gen.FrequencyPenalty
	}
	if req.PresencePenalty == 0 {
		req.PresencePenalty = gen.PresencePenalty
	}
	if len(req.Stop) == 0 {
		req.Stop = append([]string(nil), gen.Stop...)
	}

	explicit := ""
	if req.Thinking != nil {
		explicit = req.Thinking.Type
	}
	thinking := p.policy.Decide(explicit, p.cfg.Thinking.Mode)
	p.shapeThinking(&req, thinking)

	if len(req.Tools) == 0 {
		req.ToolChoice = ""
	} else {
		switch req.ToolChoice {
		case "auto", "none", "required":
		default:
			req.ToolChoice = ""
		}
	}

	req.SafetySettings = map[string]string{
		"harassment":        safetyThreshold,
		"hate_speech":       safetyThreshold,
		"dangerous_content": safetyThreshold,
	}

	requested := req.MaxTokens
	if requested == 0 {
		requested = gen.MaxTokens
	}
	estimated := p.estimator.EstimateRequest(&req)
	decision := ComputeBudget(requested, estimated, BudgetLimits{
		ContextLimit:     p.cfg.Context.APIContextLimit,
		SafeOutputLimit:  p.cfg.Context.SafeOutputLimit,
		SafetyBuffer:     p.cfg.Context.SafetyBuffer,
		EstimationMargin: p.cfg.Context.EstimationMargin,
	})
	req.MaxTokens = decision.MaxTokens
	req.MaxOutputTokens = decision.MaxTokens
	req.MaxInputTokens = p.cfg.Context.SafeOutputLimit

	rctx := &RequestContext{
		ID:                   newRequestID(),
		Model:                req.Model,
		Stream:               stream,
		ThinkingEnabled:      thinking,
		EstimatedInputTokens: decision.EstimatedInput,
		MaxOutputTokens:      decision.MaxTokens,
		StartedAt:            time.Now(),
	}
	if thinking {
		rctx.ThinkingBudget = p.cfg.Thinking.Budget
		rctx.ThinkingEffort = p.cfg.Thinking.Effort
		rctx.Reflection = p.cfg.Thinking.Reflection
	}

	p.recordBudget(rctx, requested, decision)
	return preparedRequest{req: req, rctx: rctx, budget: decision}
}

// shapeThinking writes the reasoning switches onto the wire request. Both
// the thinking option and the template kwarg are set on disable; vLLM-style
// backends honor one or the other.
func (p *GLMProvider) shapeThinking(req *ChatRequest, enabled bool) {
	if enabled {
		req.Thinking = &ThinkingOption{Type: ThinkingEnabledSetting}
		req.ThinkingConfig = &ThinkingTuning{
			Enabled:    true,
			Budget:     p.cfg.Thinking.Budget,
			Reflection: p.cfg.Thinking.Reflection,
			Effort:     p.cfg.Thinking.Effort,
		}
		if len(req.ChatTemplateKwargs) > 0 {
			kwargs := make(map[string]any, len(req.ChatTemplateKwargs))
			for k, v := range req.ChatTemplateKwargs {
				if k != "enable_thinking" {
					kwargs[k] = v
				}
			}
			if len(kwargs) == 0 {
				kwargs = nil
			}
			req.ChatTemplateKwargs = kwargs
		}
		return
	}

	req.Thinking = &ThinkingOption{Type: ThinkingDisabledSetting}
	req.ThinkingConfig = nil
	kwargs := make(map[string]any, len(req.ChatTemplateKwargs)+1)
	for k, v := range req.ChatTemplateKwargs {
		kwargs[k] = v
	}
	kwargs["enable_thinking"] = false
	req.ChatTemplateKwargs = kwargs
}

// recordBudget emits the budget metrics and the budget log event.
func (p *GLMProvider) recordBudget(rctx *RequestContext, requested int, decision BudgetDecision) {
	observability.BudgetComputations.WithLabelValues(rctx.Model).Inc()
	observability.EstimatedInputTokens.WithLabelValues(rctx.Model).Observe(float64(decision.EstimatedInput))

	level := logging.LevelDebug
	if decision.Clamped {
		reason := "request_above_available"
		if decision.Reason == BudgetExhausted {
			reason = "input_exceeds_context"
			level = logging.LevelWarn
		}
		observability.BudgetClamps.WithLabelValues(rctx.Model, reason).Inc()
	}

	p.logger.Log(logging.Event{
		Level:     level,
		Category:  logging.CategoryBudget,
		EventType: "budget_decision",
		RequestID: rctx.ID,
		Model:     rctx.Model,
		Details: map[string]any{
			"estimated_input": decision.EstimatedInput,
			"requested":       requested,
			"available":       decision.Available,
			"max_tokens":      decision.MaxTokens,
			"clamped":         decision.Clamped,
			"reason":          decision.Reason,
		},
	})
}

func (p *GLMProvider) logRequestStart(prep *preparedRequest) {
	details := map[string]any{
		"stream":          prep.rctx.Stream,
		"messages":        len(prep.req.Messages),
		"tools":           len(prep.req.Tools),
		"thinking":        prep.rctx.ThinkingEnabled,
		"max_tokens":      prep.req.MaxTokens,
		"estimated_input": prep.rctx.EstimatedInputTokens,
	}
	if query := lastUserText(prep.req.Messages); query != "" {
		details["query_complexity"] = string(AnalyzeQueryComplexity(query))
	}
	p.logger.Log(logging.Event{
		Level:     logging.LevelInfo,
		Category:  logging.CategoryModel,
		EventType: "request_start",
		RequestID: prep.rctx.ID,
		Model:     prep.req.Model,
		Details:   details,
	})
}

func lastUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messageContentToText(messages[i].Content)
		}
	}
	return ""
}

// ChatCompletion performs one blocking completion and normalizes the
// response in place.
func (p *GLMProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	prep := p.prepare(req, false)
	p.logRequestStart(&prep)

	ctx, span := observability.StartSpan(ctx, "glm.chat_completion")
	defer span.End()
	span.SetAttributes(
		observability.AttrModelID.String(prep.req.Model),
		observability.AttrRequestID.String(prep.rctx.ID),
		observability.AttrStreamMode.Bool(false),
		observability.AttrInputTokens.Int(prep.rctx.EstimatedInputTokens),
		observability.AttrMaxTokens.Int(prep.req.MaxTokens),
		observability.AttrThinkingEnabled.Bool(prep.rctx.ThinkingEnabled),
	)

	resp, err := p.client.ChatCompletion(ctx, &prep.req)
	if err != nil {
		span.RecordError(err)
		p.logger.Log(logging.Event{
			Level:     logging.LevelError,
			Category:  logging.CategoryModel,
			EventType: "request_failed",
			RequestID: prep.rctx.ID,
			Model:     prep.req.Model,
			Message:   err.Error(),
		})
		return nil, err
	}

	p.normalizeResponse(resp, &prep)
	p.counters.absorb(prep.rctx.Stats(), 0)
	if len(resp.Choices) > 0 {
		span.SetAttributes(
			observability.AttrFinishReason.String(resp.Choices[0].FinishReason),
			observability.AttrToolCallCount.Int(len(resp.Choices[0].Message.ToolCalls)),
		)
	}

	p.logger.Log(logging.Event{
		Level:     logging.LevelInfo,
		Category:  logging.CategoryModel,
		EventType: "request_complete",
		RequestID: prep.rctx.ID,
		Model:     prep.req.Model,
		Details: map[string]any{
			"elapsed_ms":        prep.rctx.Elapsed().Milliseconds(),
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
		},
	})
	return resp, nil
}

// normalizeResponse rewrites each choice: tag-encoded tool calls become
// structured calls, thinking blocks move to the reasoning field or are
// discarded per the thinking decision, and content is left clean of markup.
func (p *GLMProvider) normalizeResponse(resp *ChatResponse, prep *preparedRequest) {
	for i := range resp.Choices {
		choice := &resp.Choices[i]
		msg := &choice.Message

		text := messageContentToText(msg.Content)

		if len(msg.ToolCalls) == 0 && text != "" {
			if calls, cleaned := ExtractToolCalls(text); len(calls) > 0 {
				msg.ToolCalls = calls
				text = cleaned
				if choice.FinishReason == "" || choice.FinishReason == "stop" {
					choice.FinishReason = "tool_calls"
				}
				for range calls {
					prep.rctx.CountToolCall()
				}
				observability.ToolCallsExtracted.WithLabelValues(prep.req.Model).Add(float64(len(calls)))
			}
		}

		reasoning, content := ExtractThinking(text)
		msg.Content = content

		if !prep.rctx.ThinkingEnabled {
			msg.Reasoning = ""
			continue
		}
		if msg.Reasoning == "" {
			msg.Reasoning = reasoning
		} else if reasoning != "" {
			msg.Reasoning += "\n\n" + reasoning
		}
		if msg.Reasoning != "" {
			prep.rctx.CountThinking(len(msg.Reasoning))
			p.counters.thinkingBlocks.Add(1)
			observability.ThinkingSegments.WithLabelValues(prep.req.Model).Inc()
			observability.ThinkingTokens.WithLabelValues(prep.req.Model).Add(float64(p.estimator.EstimateText(msg.Reasoning)))
			if p.reasoning != nil {
				if err := p.reasoning.WriteBlock(prep.req.Model, prep.rctx.ID, msg.Reasoning); err != nil {
					log.Printf("[model] reasoning capture failed: %v", err)
				}
			}
		}
	}
}

// ChatCompletionStream opens a streaming completion and returns normalized
// chunks. Content arrives as content deltas, reasoning as reasoning deltas
// bracketed by canonical markers, and extracted tool calls as tool-call
// deltas. Both channels close when the stream ends; a terminal failure is
// delivered on the error channel.
func (p *GLMProvider) ChatCompletionStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error) {
	prep := p.prepare(req, true)
	p.logRequestStart(&prep)

	out := make(chan StreamChunk, 10)
	errs := make(chan error, 1)

	spanCtx, span := observability.StartSpan(ctx, "glm.chat_completion_stream")
	span.SetAttributes(
		observability.AttrModelID.String(prep.req.Model),
		observability.AttrRequestID.String(prep.rctx.ID),
		observability.AttrStreamMode.Bool(true),
		observability.AttrInputTokens.Int(prep.rctx.EstimatedInputTokens),
		observability.AttrMaxTokens.Int(prep.req.MaxTokens),
		observability.AttrThinkingEnabled.Bool(prep.rctx.ThinkingEnabled),
	)

	upstream, upstreamErrs := p.client.ChatCompletionStream(spanCtx, &prep.req)

	go func() {
		defer close(out)
		defer close(errs)
		defer span.End()
		observability.ActiveStreams.Inc()
		defer observability.ActiveStreams.Dec()

		if err := p.pumpStream(spanCtx, &prep, upstream, upstreamErrs, out); err != nil {
			span.RecordError(err)
			errs <- err
		}
		span.SetAttributes(observability.AttrChunkCount.Int64(prep.rctx.Stats().Chunks))
	}()

	return out, errs
}

// streamSession carries the per-stream normalization state.
type streamSession struct {
	p      *GLMProvider
	prep   *preparedRequest
	parser *TagStreamParser
	out    chan<- StreamChunk

	lastID    string
	lastModel string

	fieldOpen   bool // a reasoning-field block is currently open
	fieldBlocks int
	toolIndex   int
	extracted   int
	reasonLog   strings.Builder

	tail []StreamChunk // finish/usage chunks replayed after the drain
}

// pumpStream consumes the raw upstream until it closes, then drains the
// parser and replays the held finish chunks. Ordering matters: upstream is
// read to exhaustion before the error channel, which the client guarantees
// is populated before close.
func (p *GLMProvider) pumpStream(ctx context.Context, prep *preparedRequest, upstream <-chan StreamChunk, upstreamErrs <-chan error, out chan<- StreamChunk) error {
	s := &streamSession{
		p:    p,
		prep: prep,
		out:  out,
		parser: NewTagStreamParser(TagParserConfig{
			SurfaceThinking: prep.rctx.ThinkingEnabled,
			FlushThreshold:  p.cfg.Stream.FlushThreshold,
			TagLookahead:    p.cfg.Stream.TagLookahead,
		}),
		lastModel: prep.req.Model,
	}

	for chunk := range upstream {
		if err := s.process(ctx, chunk); err != nil {
			// Cancelled mid-stream. A drain here would fabricate output
			// nobody is reading, so the buffer is dropped instead.
			dropped := s.parser.Abandon()
			p.logger.Log(logging.Event{
				Level:     logging.LevelWarn,
				Category:  logging.CategoryStream,
				EventType: "stream_cancelled",
				RequestID: prep.rctx.ID,
				Model:     s.lastModel,
				Message:   err.Error(),
				Details:   map[string]any{"buffered_bytes_dropped": dropped},
			})
			return err
		}
	}

	if err := <-upstreamErrs; err != nil {
		dropped := s.parser.Abandon()
		p.logger.Log(logging.Event{
			Level:     logging.LevelError,
			Category:  logging.CategoryStream,
			EventType: "stream_failed",
			RequestID: prep.rctx.ID,
			Model:     s.lastModel,
			Message:   err.Error(),
			Details:   map[string]any{"buffered_bytes_dropped": dropped},
		})
		return err
	}

	if err := s.finish(ctx); err != nil {
		return err
	}
	s.logCompletion()
	return nil
}

// process normalizes one upstream chunk.
func (s *streamSession) process(ctx context.Context, chunk StreamChunk) error {
	if chunk.ID != "" {
		s.lastID = chunk.ID
	}
	if chunk.Model != "" {
		s.lastModel = chunk.Model
	}

	if len(chunk.Choices) == 0 {
		if chunk.Usage != nil {
			s.hold(chunk)
			return nil
		}
		return s.send(ctx, chunk)
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	// Structured tool-call deltas pass through unchanged. Pending text is
	// flushed first so nothing the model said before the call trails it.
	if len(delta.ToolCalls) > 0 {
		if err := s.emit(ctx, s.parser.FlushPending()); err != nil {
			return err
		}
		if s.fieldOpen {
			if err := s.closeFieldBlock(ctx); err != nil {
				return err
			}
		}
		for _, tc := range delta.ToolCalls {
			if tc.ID != "" {
				s.prep.rctx.CountToolCall()
			}
		}
		observability.StreamChunks.WithLabelValues(s.lastModel, "tool_call").Inc()
		return s.send(ctx, chunk)
	}

	// Reasoning delivered in a dedicated delta field bypasses tag parsing
	// entirely; the upstream already separated it.
	reason := delta.ReasoningText()
	if reason == "" {
		reason = extractReasoningField(chunk.Raw)
	}
	if reason != "" && s.prep.rctx.ThinkingEnabled {
		if !s.fieldOpen {
			s.fieldOpen = true
			if err := s.emit(ctx, []NormalizedChunk{{Kind: ChunkContent, Text: thinkingOpenMarker}}); err != nil {
				return err
			}
		}
		if err := s.emit(ctx, []NormalizedChunk{{Kind: ChunkReasoning, Text: reason}}); err != nil {
			return err
		}
	}

	if delta.Content != "" {
		if s.fieldOpen {
			if err := s.closeFieldBlock(ctx); err != nil {
				return err
			}
		}
		if err := s.emit(ctx, s.parser.Feed(delta.Content)); err != nil {
			return err
		}
	} else if delta.Role != "" && reason == "" && choice.FinishReason == nil && chunk.Usage == nil {
		// Role announcement; forward untouched.
		return s.send(ctx, chunk)
	}

	if choice.FinishReason != nil || chunk.Usage != nil {
		s.hold(chunk)
	}
	return nil
}

// hold queues a finish or usage chunk for replay after the parser drain so
// trailing text never arrives after the finish reason. The delta content is
// already consumed, so it is blanked on the held copy.
func (s *streamSession) hold(chunk StreamChunk) {
	held := chunk
	held.Raw = nil
	if len(chunk.Choices) > 0 {
		held.Choices = append([]StreamChoice(nil), chunk.Choices...)
		held.Choices[0].Delta = MessageDelta{Role: chunk.Choices[0].Delta.Role}
	}
	s.tail = append(s.tail, held)
}

// finish drains the parser, closes any open reasoning-field block, and
// replays the held finish chunks.
func (s *streamSession) finish(ctx context.Context) error {
	if err := s.emit(ctx, s.parser.Finish()); err != nil {
		return err
	}
	if s.fieldOpen {
		if err := s.closeFieldBlock(ctx); err != nil {
			return err
		}
	}
	for _, held := range s.tail {
		if err := s.send(ctx, held); err != nil {
			return err
		}
	}
	return nil
}

func (s *streamSession) closeFieldBlock(ctx context.Context) error {
	s.fieldOpen = false
	s.fieldBlocks++
	return s.emit(ctx, []NormalizedChunk{{Kind: ChunkContent, Text: thinkingCloseMarker}})
}

// emit converts normalized chunks to wire chunks and sends them.
func (s *streamSession) emit(ctx context.Context, chunks []NormalizedChunk) error {
	for _, nc := range chunks {
		var delta MessageDelta
		var kind string

		switch nc.Kind {
		case ChunkContent:
			delta.Content = nc.Text
			kind = "content"
		case ChunkReasoning:
			delta.ReasoningContent = nc.Text
			kind = "reasoning"
			s.prep.rctx.CountThinking(len(nc.Text))
			s.reasonLog.WriteString(nc.Text)
		case ChunkToolCall:
			delta.ToolCalls = []ToolCallDelta{{
				Index: s.toolIndex,
				ID:    nc.ToolCall.ID,
				Type:  nc.ToolCall.Type,
				Function: &FunctionCallDelta{
					Name:      nc.ToolCall.Function.Name,
					Arguments: nc.ToolCall.Function.Arguments,
				},
			}}
			s.toolIndex++
			s.extracted++
			s.prep.rctx.CountToolCall()
			kind = "tool_call"
		default:
			continue
		}

		s.prep.rctx.CountChunk(len(nc.Text))
		observability.StreamChunks.WithLabelValues(s.lastModel, kind).Inc()
		if nc.Text != "" {
			observability.StreamBytes.WithLabelValues(s.lastModel, kind).Add(float64(len(nc.Text)))
		}

		err := s.send(ctx, StreamChunk{
			ID:      s.lastID,
			Model:   s.lastModel,
			Choices: []StreamChoice{{Delta: delta}},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *streamSession) send(ctx context.Context, chunk StreamChunk) error {
	select {
	case s.out <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// logCompletion emits the end-of-stream anomalies, metrics, and the session
// accounting event, and writes the captured reasoning to the reasoning log.
func (s *streamSession) logCompletion() {
	p := s.p
	rctx := s.prep.rctx
	report := s.parser.Report()

	if report.UnterminatedThinking {
		p.logger.Log(logging.Event{
			Level:     logging.LevelWarn,
			Category:  logging.CategoryStream,
			EventType: "unterminated_thinking",
			RequestID: rctx.ID,
			Model:     s.lastModel,
			Message:   "stream ended inside a thinking block; upstream response likely truncated",
		})
	}
	if report.DiscardedFragment != "" {
		observability.StreamFragmentsDiscarded.WithLabelValues(s.lastModel).Inc()
		p.logger.Log(logging.Event{
			Level:     logging.LevelDebug,
			Category:  logging.CategoryStream,
			EventType: "fragment_discarded",
			RequestID: rctx.ID,
			Model:     s.lastModel,
			Details:   map[string]any{"fragment": report.DiscardedFragment},
		})
	}
	if report.ForcedFlushes > 0 {
		observability.StreamForcedFlushes.WithLabelValues(s.lastModel).Add(float64(report.ForcedFlushes))
	}
	if report.StrayCloseTags > 0 {
		p.logger.Log(logging.Event{
			Level:     logging.LevelDebug,
			Category:  logging.CategoryStream,
			EventType: "stray_close_tags",
			RequestID: rctx.ID,
			Model:     s.lastModel,
			Details:   map[string]any{"count": report.StrayCloseTags},
		})
	}

	segments := report.ThinkingBlocks + s.fieldBlocks
	if segments > 0 {
		observability.ThinkingSegments.WithLabelValues(s.lastModel).Add(float64(segments))
	}
	if s.reasonLog.Len() > 0 {
		observability.ThinkingTokens.WithLabelValues(s.lastModel).Add(float64(p.estimator.EstimateText(s.reasonLog.String())))
		if p.reasoning != nil {
			if err := p.reasoning.WriteBlock(s.lastModel, rctx.ID, s.reasonLog.String()); err != nil {
				log.Printf("[model] reasoning capture failed: %v", err)
			}
		}
	}
	if s.extracted > 0 {
		observability.ToolCallsExtracted.WithLabelValues(s.lastModel).Add(float64(s.extracted))
	}

	stats := rctx.Stats()
	p.counters.absorb(stats, segments)
	details := map[string]any{
		"chunks":          stats.Chunks,
		"bytes":           stats.Bytes,
		"thinking_bytes":  stats.ThinkingBytes,
		"tool_calls":      stats.ToolCalls,
		"thinking_blocks": segments,
		"forced_flushes":  report.ForcedFlushes,
		"elapsed_ms":      stats.Elapsed.Milliseconds(),
	}
	if secs := stats.Elapsed.Seconds(); secs > 0 {
		details["bytes_per_second"] = float64(stats.Bytes) / secs
	}
	p.logger.Log(logging.Event{
		Level:     logging.LevelInfo,
		Category:  logging.CategoryStream,
		EventType: "stream_complete",
		RequestID: rctx.ID,
		Model:     s.lastModel,
		Details:   details,
	})
}
