package model

import (
	"bytes"
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/nexiouscaliver/AgenticOS/pkg/observability"
)

// GLM models emit tool invocations as tag-delimited blocks inline in the
// response text rather than as structured deltas:
//
//	<tool_call>function_name
//	<arg_key>param</arg_key>
//	<arg_value>value</arg_value>
//	</tool_call>
//
// The function name is the first line of the block body and each argument
// is an <arg_key>/<arg_value> pair. Under streaming pressure the models
// misspell the delimiters in predictable ways ("<tool ", "</tool\n"), so
// extraction always normalizes before matching.

// toolBlockRe matches one complete canonical tool-call block.
var toolBlockRe = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)

// argPairRe matches one complete argument pair inside a block body.
var argPairRe = regexp.MustCompile(`(?s)<arg_key>(.*?)</arg_key>\s*<arg_value>(.*?)</arg_value>`)

// toolXMLFixes repairs the malformed delimiter spellings observed in GLM
// output. Order matters: opening-tag fixes run before closing-tag fixes,
// and the stray-whitespace fixes run last so they see canonical names.
var toolXMLFixes = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`<tool\s+`), "<tool_call>"},    // "<tool " missing suffix
	{regexp.MustCompile(`<tool>`), "<tool_call>"},      // "<tool>" missing suffix
	{regexp.MustCompile(`</tool\s*>`), "</tool_call>"}, // "</tool>" or "</tool  >"
	{regexp.MustCompile("</tool\n"), "</tool_call>\n"}, // "</tool" missing bracket
	{regexp.MustCompile(`<\s+tool_call>`), "<tool_call>"},
	{regexp.MustCompile(`<tool_call\s+>`), "<tool_call>"},
}

// NormalizeToolXML rewrites malformed tool-call delimiters to the canonical
// spelling so that block matching sees a uniform shape.
func NormalizeToolXML(content string) string {
	for _, fix := range toolXMLFixes {
		content = fix.re.ReplaceAllString(content, fix.repl)
	}
	return content
}

// ExtractToolCalls parses tag-delimited tool invocations out of content.
// It returns the structured calls plus the content with all blocks removed.
// When no block yields a valid call the original content comes back
// untouched so the caller can surface it as plain text instead of losing it.
func ExtractToolCalls(content string) ([]ToolCall, string) {
	normalized := NormalizeToolXML(content)
	matches := toolBlockRe.FindAllStringSubmatch(normalized, -1)
	if len(matches) == 0 {
		return nil, content
	}

	var calls []ToolCall
	for _, m := range matches {
		call, ok := parseToolBlock(m[1])
		if !ok {
			continue
		}
		calls = append(calls, call)
	}
	if len(calls) == 0 {
		return nil, content
	}

	cleaned := strings.TrimSpace(toolBlockRe.ReplaceAllString(normalized, ""))
	return calls, cleaned
}

// parseToolBlock converts one block body into a ToolCall. The bool result
// reports whether the body parsed cleanly; corrupt bodies are skipped so a
// single bad block cannot poison its siblings.
func parseToolBlock(body string) (ToolCall, bool) {
	trimmed := strings.TrimSpace(body)
	name := trimmed
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		name = trimmed[:i]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		log.Printf("[tools] tool call block missing function name, skipping")
		observability.ToolCallsSkipped.WithLabelValues("empty_name").Inc()
		return ToolCall{}, false
	}

	// Pair order is part of the call: arguments are encoded in the order
	// the block listed them, so they are collected as a slice, not a map.
	var args []argPair
	for _, pair := range argPairRe.FindAllStringSubmatch(body, -1) {
		key := strings.TrimSpace(pair[1])
		value := strings.TrimSpace(pair[2])
		replaced := false
		for i := range args {
			if args[i].key == key {
				args[i].value = value
				replaced = true
				break
			}
		}
		if !replaced {
			args = append(args, argPair{key: key, value: value})
		}
	}

	// Argument markup left over after removing the complete pairs means a
	// key or value never terminated. The block is corrupt; rejecting it
	// whole beats inventing a call with half its arguments.
	leftover := argPairRe.ReplaceAllString(body, "")
	if strings.Contains(leftover, "<arg_") || strings.Contains(leftover, "</arg_") {
		log.Printf("[tools] tool call %q has unpaired argument markup, skipping", name)
		observability.ToolCallsSkipped.WithLabelValues("unpaired_args").Inc()
		return ToolCall{}, false
	}

	argsJSON, err := marshalArgs(args)
	if err != nil {
		log.Printf("[tools] tool call %q arguments not serializable: %v", name, err)
		observability.ToolCallsSkipped.WithLabelValues("unserializable_args").Inc()
		return ToolCall{}, false
	}

	return ToolCall{
		ID:   uuid.NewString(),
		Type: "function",
		Function: FunctionCall{
			Name:      name,
			Arguments: argsJSON,
		},
	}, true
}

// argPair is one key/value argument. A slice of pairs keeps the block's
// declaration order, which a string map would lose to sorted encoding.
type argPair struct {
	key   string
	value string
}

// marshalArgs encodes arguments as a JSON object in pair order, without HTML
// escaping. Values routinely carry angle brackets (code snippets, markup)
// and the API expects them verbatim.
func marshalArgs(args []argPair) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	buf.WriteByte('{')
	for i, pair := range args {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(pair.key); err != nil {
			return "", err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
		buf.WriteByte(':')
		if err := enc.Encode(pair.value); err != nil {
			return "", err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}
