package model

import "strings"

// GLM models interleave three things in one streamed text channel: plain
// content, reasoning wrapped in thinking tags, and tag-delimited tool-call
// blocks. Tags arrive split across arbitrary chunk boundaries, so the text
// cannot be handled chunk-at-a-time; it has to be buffered and rescanned.
//
// TagStreamParser is that buffer plus a two-state machine (outside or
// inside a thinking block). Callers Feed it raw text fragments and receive
// normalized chunks; Finish drains whatever remains at end of stream. The
// parser guarantees that emitted text never contains a recognized tag
// prefix without its completion: anything that could still become a tag is
// held back until it either resolves or the stream ends.

const (
	// defaultFlushThreshold bounds how much text may sit in the buffer
	// before a forced flush. Large enough that a flush mid-tag is
	// vanishingly rare, small enough to cap memory per stream.
	defaultFlushThreshold = 32 * 1024

	// defaultTagLookahead is how far back from the buffer end a forced
	// flush looks for a '<' that could begin a split tag. No recognized
	// tag spelling is anywhere near this long.
	defaultTagLookahead = 256

	// maxDiscardableFragment is the longest trailing remnant that may be
	// dropped at end of stream as a truncated tag. Anything longer is
	// real text and must be emitted even if it starts with '<'.
	maxDiscardableFragment = 30
)

type parseState int

const (
	stateOutside parseState = iota
	stateInsideThinking
)

// matchKind tags the outcome of one buffer scan.
type matchKind int

const (
	matchNone matchKind = iota
	matchToolBlock
	matchOpenTag
	matchCloseTag
)

// tagMatch locates one actionable region in the buffer.
type tagMatch struct {
	kind  matchKind
	start int
	end   int
}

// nextMatch finds the earliest actionable match in buf for the given state.
// Matches are compared by start offset, which encodes the precedence rules:
// a tool block that contains a thinking tag starts before it and therefore
// wins, and a stray closing tag only fires when no opening tag precedes it.
// Opening tags are inert while inside a thinking block (they are reasoning
// text), as are stray semantics for closing tags while inside (a close
// there is the real block terminator).
func nextMatch(buf string, state parseState) tagMatch {
	best := tagMatch{kind: matchNone, start: -1}

	if loc := toolBlockRe.FindStringIndex(buf); loc != nil {
		best = tagMatch{kind: matchToolBlock, start: loc[0], end: loc[1]}
	}
	if state == stateOutside {
		if loc := thinkingOpenRe.FindStringIndex(buf); loc != nil && (best.start < 0 || loc[0] < best.start) {
			best = tagMatch{kind: matchOpenTag, start: loc[0], end: loc[1]}
		}
	}
	if loc := thinkingCloseRe.FindStringIndex(buf); loc != nil && (best.start < 0 || loc[0] < best.start) {
		best = tagMatch{kind: matchCloseTag, start: loc[0], end: loc[1]}
	}
	return best
}

// ParseReport summarizes what a parser saw over the life of one stream.
type ParseReport struct {
	ThinkingBlocks       int    // completed thinking blocks
	StrayCloseTags       int    // closing tags dropped with no open block
	ForcedFlushes        int    // oversized-buffer flushes
	FailedToolBlocks     int    // blocks that parsed as text instead
	SuppressedBytes      int    // reasoning bytes discarded while surfacing is off
	DiscardedFragment    string // trailing tag remnant dropped at end of stream
	UnterminatedThinking bool   // stream ended inside a thinking block
}

// TagStreamParser normalizes one model response stream. It is not safe for
// concurrent use; each stream gets its own parser.
type TagStreamParser struct {
	surfaceThinking bool
	flushThreshold  int
	tagLookahead    int

	state  parseState
	buf    string
	report ParseReport
}

// TagParserConfig configures a TagStreamParser. Zero values for the sizes
// select the defaults.
type TagParserConfig struct {
	// SurfaceThinking controls whether reasoning text is emitted. When
	// true, each thinking block becomes a canonical open marker, the
	// inner text as reasoning chunks, and a canonical close marker. When
	// false the block is consumed and discarded entirely.
	SurfaceThinking bool
	FlushThreshold  int
	TagLookahead    int
}

// NewTagStreamParser returns a parser in the outside state with an empty
// buffer.
func NewTagStreamParser(cfg TagParserConfig) *TagStreamParser {
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = defaultFlushThreshold
	}
	if cfg.TagLookahead <= 0 {
		cfg.TagLookahead = defaultTagLookahead
	}
	if cfg.TagLookahead >= cfg.FlushThreshold {
		cfg.TagLookahead = cfg.FlushThreshold / 2
	}
	return &TagStreamParser{
		surfaceThinking: cfg.SurfaceThinking,
		flushThreshold:  cfg.FlushThreshold,
		tagLookahead:    cfg.TagLookahead,
	}
}

// Feed appends one raw text fragment and returns the chunks it released.
// The returned slice is nil when everything is still pending in the buffer.
func (p *TagStreamParser) Feed(fragment string) []NormalizedChunk {
	if fragment == "" {
		return nil
	}
	p.buf += fragment

	var out []NormalizedChunk
	for p.buf != "" {
		m := nextMatch(p.buf, p.state)
		if m.kind == matchNone {
			p.release(&out)
			break
		}
		p.apply(m, &out)
	}
	return out
}

// Finish drains the parser at end of stream: it resolves every remaining
// complete tag, emits or discards the residue, and closes an unterminated
// thinking block so the emitted text stays well formed. The parser is spent
// afterwards.
func (p *TagStreamParser) Finish() []NormalizedChunk {
	var out []NormalizedChunk
	for p.buf != "" {
		m := nextMatch(p.buf, p.state)
		if m.kind == matchNone {
			break
		}
		p.apply(m, &out)
	}

	if p.buf != "" {
		if isTagRemnant(p.buf) {
			p.report.DiscardedFragment = p.buf
		} else {
			p.emitText(&out, p.buf)
		}
		p.buf = ""
	}

	if p.state == stateInsideThinking {
		// The upstream stream ended mid-block, almost always a truncated
		// response. The reasoning already emitted stands; emit the close
		// marker so downstream never sees a dangling open marker.
		p.report.UnterminatedThinking = true
		if p.surfaceThinking {
			out = append(out, NormalizedChunk{Kind: ChunkContent, Text: thinkingCloseMarker})
		}
		p.state = stateOutside
	}
	return out
}

// FlushPending resolves every complete tag still in the buffer and then
// releases the remainder as-is, bypassing the lookahead hold. Used when
// upstream switches to structured tool-call deltas: pending text must not
// trail the tool call, even at the cost of emitting a split tag raw. The
// state machine itself is untouched.
func (p *TagStreamParser) FlushPending() []NormalizedChunk {
	var out []NormalizedChunk
	for p.buf != "" {
		m := nextMatch(p.buf, p.state)
		if m.kind == matchNone {
			break
		}
		p.apply(m, &out)
	}
	if p.buf != "" {
		p.emitText(&out, p.buf)
		p.buf = ""
	}
	return out
}

// Abandon drops the unconsumed buffer without emitting it and returns the
// number of bytes dropped. Used when the consumer cancels mid-stream and a
// normal drain would fabricate output nobody reads. The state resets along
// with the buffer: a cancelled stream must not get a close marker from a
// later Finish.
func (p *TagStreamParser) Abandon() int {
	n := len(p.buf)
	p.buf = ""
	p.state = stateOutside
	return n
}

// Report returns the stream summary accumulated so far. Call after Finish
// for final numbers.
func (p *TagStreamParser) Report() ParseReport {
	return p.report
}

// apply consumes one match from the front region of the buffer, appending
// any released chunks to out.
func (p *TagStreamParser) apply(m tagMatch, out *[]NormalizedChunk) {
	before := p.buf[:m.start]
	matched := p.buf[m.start:m.end]
	p.buf = p.buf[m.end:]

	switch m.kind {
	case matchToolBlock:
		p.emitText(out, before)
		calls, text := ExtractToolCalls(matched)
		if len(calls) == 0 {
			// Nothing valid inside the block. Surface it verbatim so the
			// consumer at least sees what the model produced.
			p.report.FailedToolBlocks++
			p.emitText(out, text)
			return
		}
		for i := range calls {
			*out = append(*out, NormalizedChunk{Kind: ChunkToolCall, ToolCall: &calls[i]})
		}

	case matchOpenTag:
		p.emitText(out, before)
		p.state = stateInsideThinking
		if p.surfaceThinking {
			*out = append(*out, NormalizedChunk{Kind: ChunkContent, Text: thinkingOpenMarker})
		}

	case matchCloseTag:
		if p.state == stateInsideThinking {
			p.emitText(out, before)
			p.state = stateOutside
			p.report.ThinkingBlocks++
			if p.surfaceThinking {
				*out = append(*out, NormalizedChunk{Kind: ChunkContent, Text: thinkingCloseMarker})
			}
			return
		}
		// Closing tag with no block open: drop the tag, keep the text.
		p.emitText(out, before)
		p.report.StrayCloseTags++
	}
}

// release emits the longest buffer prefix that is provably free of tag
// activity. Text is never held back for batching: everything before the
// earliest byte that could still become a marker, or that opens a tool
// block awaiting its terminator, goes out on the Feed that received it.
// maybeFlush then bounds whatever had to stay.
func (p *TagStreamParser) release(out *[]NormalizedChunk) {
	if hold := holdPoint(p.buf); hold > 0 {
		p.emitText(out, p.buf[:hold])
		p.buf = p.buf[hold:]
	}
	p.maybeFlush(out)
}

// holdPoint returns the offset of the first byte that may still belong to
// an unresolved marker, or len(buf) when the whole buffer is plain text.
func holdPoint(buf string) int {
	for i := 0; i < len(buf); {
		j := strings.IndexByte(buf[i:], '<')
		if j < 0 {
			return len(buf)
		}
		i += j
		if viableTagStart(buf[i:]) {
			return i
		}
		i++
	}
	return len(buf)
}

// viableTagStart reports whether text starting at a '<' could still resolve
// into an actionable match: a truncated marker whose remaining bytes have
// not arrived, or a complete tool-block opener whose terminator is pending.
func viableTagStart(s string) bool {
	for _, tag := range tagHoldSpellings {
		if len(s) < len(tag) && strings.HasPrefix(tag, s) {
			return true
		}
	}
	for _, opener := range toolOpenSpellings {
		if strings.HasPrefix(s, opener) {
			return true
		}
	}
	return false
}

// toolOpenSpellings are the tool-block openers, canonical and misspelled.
// A buffer containing one without its terminator is a block in progress.
var toolOpenSpellings = []string{"<tool_call>", "<tool_call >", "< tool_call>", "<tool>", "<tool "}

// tagHoldSpellings is every marker whose truncated prefix must be held back
// until it either completes or the stream ends.
var tagHoldSpellings = func() []string {
	tags := []string{"</tool_call>", "</tool>"}
	tags = append(tags, toolOpenSpellings...)
	tags = append(tags, thinkingOpenTags...)
	tags = append(tags, thinkingCloseTags...)
	return tags
}()

// maybeFlush bounds an oversized buffer held by a marker that never
// completes. The tail is checked for a '<' that could be the start of a
// split tag; text before the last one is safe to release. When the tail has
// no '<' at all, everything but the lookahead window is released.
func (p *TagStreamParser) maybeFlush(out *[]NormalizedChunk) {
	if len(p.buf) <= p.flushThreshold {
		return
	}
	tail := p.buf[len(p.buf)-p.tagLookahead:]
	if strings.Contains(tail, "<") {
		last := strings.LastIndex(p.buf, "<")
		if last <= 0 {
			return
		}
		p.emitText(out, p.buf[:last])
		p.buf = p.buf[last:]
	} else {
		keep := len(p.buf) - p.tagLookahead
		p.emitText(out, p.buf[:keep])
		p.buf = p.buf[keep:]
	}
	p.report.ForcedFlushes++
}

// emitText appends text as a chunk of the kind the current state dictates.
// Reasoning text is discarded, not emitted, when surfacing is off.
func (p *TagStreamParser) emitText(out *[]NormalizedChunk, text string) {
	if text == "" {
		return
	}
	if p.state == stateInsideThinking {
		if !p.surfaceThinking {
			p.report.SuppressedBytes += len(text)
			return
		}
		*out = append(*out, NormalizedChunk{Kind: ChunkReasoning, Text: text})
		return
	}
	*out = append(*out, NormalizedChunk{Kind: ChunkContent, Text: text})
}

// isTagRemnant reports whether a trailing stream residue looks like a
// truncated tag rather than real text: short, and shaped like markup that
// never finished arriving.
func isTagRemnant(s string) bool {
	stripped := strings.TrimSpace(s)
	if len(stripped) == 0 || len(stripped) >= maxDiscardableFragment {
		return false
	}
	if strings.HasPrefix(stripped, "<") && !strings.HasSuffix(stripped, ">") {
		return true
	}
	return strings.HasSuffix(stripped, "<") || strings.HasSuffix(stripped, "</")
}
