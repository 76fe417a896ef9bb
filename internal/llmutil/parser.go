// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

const fenceMarker = "```"

// decisionJSON decodes numbers as json.Number so integer parameters survive untouched.
var decisionJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// ParseError reports decision text that could not be read as JSON at all.
type ParseError struct {
	Reason  string
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	msg := "parse error: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (input, truncated: %s)", e.Snippet)
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports valid JSON that does not have the decision shape.
// Index is the offending position in the action list, or -1 when the problem is
// not tied to a single action.
type SchemaError struct {
	Field  string
	Index  int
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("schema error: %s[%d]: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("schema error: %s: %s", e.Field, e.Reason)
}

// ParseDecision turns raw decision-maker output into a validated Decision.
// The text may be wrapped in a fenced code block or surrounded by prose. Light repair
// (quote normalization) is attempted only when strict decoding fails, and always
// before the shape is validated. It returns *ParseError or *SchemaError on failure and
// never substitutes content of its own.
func ParseDecision(raw string) (*schemas.Decision, error) {
	candidate, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var top map[string]jsoniter.RawMessage
	if err := decisionJSON.UnmarshalFromString(candidate, &top); err != nil {
		repaired := normalizeQuotes(candidate)
		if repaired == candidate || decisionJSON.UnmarshalFromString(repaired, &top) != nil {
			return nil, &ParseError{Reason: "malformed JSON", Snippet: truncateString(candidate, 200), Err: err}
		}
	}
	if top == nil {
		return nil, &SchemaError{Field: "decision", Index: -1, Reason: "expected a JSON object"}
	}

	decision := &schemas.Decision{}

	if rawState, ok := top["current_state"]; ok && !isNull(rawState) {
		if err := decisionJSON.Unmarshal(rawState, &decision.CurrentState); err != nil {
			return nil, &SchemaError{Field: "current_state", Index: -1, Reason: "must be an object of strings"}
		}
	}

	rawActions, ok := top["action"]
	if !ok {
		return nil, &SchemaError{Field: "action", Index: -1, Reason: "missing"}
	}
	var elements []jsoniter.RawMessage
	if isNull(rawActions) || decisionJSON.Unmarshal(rawActions, &elements) != nil {
		return nil, &SchemaError{Field: "action", Index: -1, Reason: "must be a list"}
	}

	decision.Actions = make([]schemas.Action, 0, len(elements))
	for i, element := range elements {
		action, reason := decodeAction(element)
		if reason != "" {
			return nil, &SchemaError{Field: "action", Index: i, Reason: reason}
		}
		decision.Actions = append(decision.Actions, action)
	}
	return decision, nil
}

// decodeAction validates one {"name": {params}} element. A non-empty reason means rejection.
func decodeAction(element jsoniter.RawMessage) (schemas.Action, string) {
	var wire map[string]jsoniter.RawMessage
	if isNull(element) || decisionJSON.Unmarshal(element, &wire) != nil {
		return schemas.Action{}, "must be an object"
	}
	if keys := objectKeys(element); len(keys) != len(wire) {
		return schemas.Action{}, fmt.Sprintf("must have exactly one key, got %d (%s)", len(keys), strings.Join(keys, ", "))
	}
	if len(wire) != 1 {
		return schemas.Action{}, fmt.Sprintf("must have exactly one key, got %d", len(wire))
	}
	for name, rawParams := range wire {
		var params map[string]any
		if isNull(rawParams) || decisionJSON.Unmarshal(rawParams, &params) != nil {
			return schemas.Action{}, fmt.Sprintf("parameters of %q must be an object", name)
		}
		return schemas.Action{Name: schemas.ActionName(name), Params: params}, ""
	}
	return schemas.Action{}, "empty action"
}

// objectKeys lists the keys of a JSON object in document order, repeats included.
// Decoding into a map keeps only the last of a repeated key.
func objectKeys(raw jsoniter.RawMessage) []string {
	iter := decisionJSON.BorrowIterator(raw)
	defer decisionJSON.ReturnIterator(iter)

	var keys []string
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		keys = append(keys, field)
		it.Skip()
		return true
	})
	return keys
}

// ExtractJSONObject locates the JSON object inside raw. When a fence marker is
// present the first fenced span is used; otherwise the first balanced {...} span.
func ExtractJSONObject(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", &ParseError{Reason: "empty response"}
	}

	if strings.Contains(text, fenceMarker) {
		text = firstFencedSpan(text)
	}

	span, ok := firstBalancedObject(text)
	if !ok {
		return "", &ParseError{Reason: "no JSON object found", Snippet: truncateString(raw, 200)}
	}
	return span, nil
}

// firstFencedSpan returns the body of the first fenced block, dropping an optional
// language tag on the opening line. An unterminated fence runs to the end of text.
func firstFencedSpan(text string) string {
	start := strings.Index(text, fenceMarker)
	body := text[start+len(fenceMarker):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, fenceMarker); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// firstBalancedObject scans for the first '{' and returns the span up to its matching
// '}'. Braces inside double-quoted strings are ignored.
func firstBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// quoteReplacer maps typographic and single quotes to JSON double quotes.
var quoteReplacer = strings.NewReplacer(
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`, "\u201f", `"`,
	"\u2018", `"`, "\u2019", `"`, "'", `"`,
)

// normalizeQuotes is a best-effort repair for models that emit single-quoted JSON
// or typographic quotes.
func normalizeQuotes(s string) string {
	if !strings.ContainsAny(s, "'\u201c\u201d\u201e\u201f\u2018\u2019") {
		return s
	}
	return quoteReplacer.Replace(s)
}

func isNull(raw jsoniter.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Simple truncation; does not account for rune boundaries but sufficient for error logging.
	return s[:maxLen] + "..."
}
