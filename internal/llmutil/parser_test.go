// internal/llmutil/parser_test.go
package llmutil

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

const navigateDecision = `{"current_state":{"evaluation_previous_goal":"Unknown","memory":"start","next_goal":"open x"},"action":[{"navigate":{"url":"https://x"}}]}`

func TestParseDecision_WellFormed(t *testing.T) {
	decision, err := ParseDecision(navigateDecision)
	require.NoError(t, err)

	expected := &schemas.Decision{
		CurrentState: schemas.CurrentState{
			EvaluationPreviousGoal: "Unknown",
			Memory:                 "start",
			NextGoal:               "open x",
		},
		Actions: []schemas.Action{
			{Name: schemas.ActionNavigate, Params: map[string]any{"url": "https://x"}},
		},
	}
	if diff := cmp.Diff(expected, decision); diff != "" {
		t.Errorf("ParseDecision() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDecision_FencedMatchesUnwrapped(t *testing.T) {
	plain, err := ParseDecision(navigateDecision)
	require.NoError(t, err)

	inputs := map[string]string{
		"json fence":        "```json\n" + navigateDecision + "\n```",
		"bare fence":        "```\n" + navigateDecision + "\n```",
		"prose around":      "Sure! Here is my plan:\n```json\n" + navigateDecision + "\n```\nLet me know.",
		"unterminated":      "```json\n" + navigateDecision,
		"prose no fence":    "I will navigate now. " + navigateDecision + " Done thinking.",
		"inline fence body": "```" + navigateDecision + "```",
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := ParseDecision(input)
			require.NoError(t, err)
			if diff := cmp.Diff(plain, got); diff != "" {
				t.Errorf("mismatch (-plain +got):\n%s", diff)
			}
		})
	}
}

func TestParseDecision_Deterministic(t *testing.T) {
	input := `{"action":[{"input_text":{"index":3,"text":"hello"}},{"scroll":{"direction":"down","amount":500}},{"done":{"text":"ok","success":true}}]}`
	first, err := ParseDecision(input)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ParseDecision(input)
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(first, again))
	}
	// Numbers are preserved verbatim.
	assert.Equal(t, json.Number("3"), first.Actions[0].Params["index"])
	assert.Equal(t, true, first.Actions[2].Params["success"])
}

func TestParseDecision_PreservesOrder(t *testing.T) {
	input := `{"action":[{"go_back":{}},{"navigate":{"url":"a"}},{"go_forward":{}}]}`
	decision, err := ParseDecision(input)
	require.NoError(t, err)
	require.Len(t, decision.Actions, 3)
	assert.Equal(t, schemas.ActionGoBack, decision.Actions[0].Name)
	assert.Equal(t, schemas.ActionNavigate, decision.Actions[1].Name)
	assert.Equal(t, schemas.ActionGoForward, decision.Actions[2].Name)
}

func TestParseDecision_BracesInsideStrings(t *testing.T) {
	input := `thinking... {"action":[{"input_text":{"index":1,"text":"a } b { c"}}]} trailing }`
	decision, err := ParseDecision(input)
	require.NoError(t, err)
	assert.Equal(t, "a } b { c", decision.Actions[0].Params["text"])
}

func TestParseDecision_SingleQuoteRepair(t *testing.T) {
	input := `{'current_state': {'memory': 'm'}, 'action': [{'navigate': {'url': 'https://x'}}]}`
	decision, err := ParseDecision(input)
	require.NoError(t, err)
	assert.Equal(t, "m", decision.CurrentState.Memory)
	assert.Equal(t, "https://x", decision.Actions[0].Params["url"])
}

func TestParseDecision_TypographicQuoteRepair(t *testing.T) {
	input := "{\u201ccurrent_state\u201d: {\u201cmemory\u201d: \u201cm\u201d}, " +
		"\u201caction\u201d: [{\u2018navigate\u2019: {\u2018url\u2019: \u2018https://x\u2019}}]}"
	decision, err := ParseDecision(input)
	require.NoError(t, err)
	assert.Equal(t, "m", decision.CurrentState.Memory)
	assert.Equal(t, "https://x", decision.Actions[0].Params["url"])
}

func TestParseDecision_RepeatedActionKeyIsRejected(t *testing.T) {
	_, err := ParseDecision(`{"action":[{"navigate":{"url":"a"},"navigate":{"url":"b"}}]}`)
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr), "expected SchemaError, got %T: %v", err, err)
	assert.Equal(t, 0, schemaErr.Index)
	assert.Contains(t, schemaErr.Reason, "got 2 (navigate, navigate)")
}

func TestParseDecision_UnknownActionIsNotASchemaError(t *testing.T) {
	// Vocabulary is enforced at dispatch time.
	decision, err := ParseDecision(`{"action":[{"foo_bar":{}}]}`)
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionName("foo_bar"), decision.Actions[0].Name)
}

func TestParseDecision_ParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":            "   ",
		"no json":          "I cannot help with that.",
		"unbalanced":       `{"action":[{"navigate":{"url":"x"}}]`,
		"malformed":        `{"action": [,]}`,
		"unrepairable":     `{'action': [{'navigate': {'url': 'it's'}}]}`,
		"fence without {}": "```\nnothing here\n```",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			decision, err := ParseDecision(input)
			assert.Nil(t, decision)
			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "expected ParseError, got %T: %v", err, err)
		})
	}
}

func TestParseDecision_SchemaErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		field string
		index int
	}{
		{"missing action", `{"current_state":{}}`, "action", -1},
		{"action not list", `{"action":{"navigate":{"url":"x"}}}`, "action", -1},
		{"action null", `{"action":null}`, "action", -1},
		{"element not object", `{"action":["navigate"]}`, "action", 0},
		{"two keys", `{"action":[{"go_back":{}},{"navigate":{"url":"x"},"done":{}}]}`, "action", 1},
		{"no keys", `{"action":[{}]}`, "action", 0},
		{"repeated key", `{"action":[{"go_back":{}},{"navigate":{"url":"a"},"navigate":{"url":"b"}}]}`, "action", 1},
		{"params not object", `{"action":[{"go_back":{}},{"go_forward":{}},{"navigate":"https://x"}]}`, "action", 2},
		{"params null", `{"action":[{"close_tab":null}]}`, "action", 0},
		{"bad current_state", `{"current_state":"fine","action":[]}`, "current_state", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := ParseDecision(tc.input)
			assert.Nil(t, decision)
			var schemaErr *SchemaError
			require.True(t, errors.As(err, &schemaErr), "expected SchemaError, got %T: %v", err, err)
			assert.Equal(t, tc.field, schemaErr.Field)
			assert.Equal(t, tc.index, schemaErr.Index)
		})
	}
}

func TestParseDecision_EmptyBatchIsValid(t *testing.T) {
	decision, err := ParseDecision(`{"action":[]}`)
	require.NoError(t, err)
	assert.Empty(t, decision.Actions)
}

func TestParseDecision_RoundTripThroughMarshal(t *testing.T) {
	decision, err := ParseDecision(navigateDecision)
	require.NoError(t, err)

	encoded, err := json.Marshal(decision)
	require.NoError(t, err)

	again, err := ParseDecision(string(encoded))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(decision, again))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 5))
	assert.Equal(t, "ab...", truncateString("abcdef", 2))
	assert.Equal(t, "", truncateString("abc", 0))
}

// FuzzParseDecision checks that arbitrary input never panics and that any accepted
// input re-parses to the same decision.
func FuzzParseDecision(f *testing.F) {
	f.Add(navigateDecision)
	f.Add("```json\n" + navigateDecision + "\n```")
	f.Add(`{"action":[{"done":{"text":"ok"}}]}`)
	f.Add("{{{{")

	f.Fuzz(func(t *testing.T, input string) {
		first, err := ParseDecision(input)
		second, err2 := ParseDecision(input)
		if err != nil {
			assert.Error(t, err2)
			return
		}
		require.NoError(t, err2)
		assert.Empty(t, cmp.Diff(first, second))
	})
}

// FuzzParseDecision_Structured builds well-formed decisions from fuzzed structs.
func FuzzParseDecision_Structured(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var state schemas.CurrentState
		if err := consumer.GenerateStruct(&state); err != nil {
			return
		}
		url, err := consumer.GetString()
		if err != nil {
			return
		}
		// encoding/json rewrites invalid UTF-8, and a fence marker inside a string value
		// is indistinguishable from a real fence.
		for _, s := range []string{state.EvaluationPreviousGoal, state.Memory, state.NextGoal, url} {
			if !utf8.ValidString(s) || strings.Contains(s, fenceMarker) {
				return
			}
		}

		decision := schemas.Decision{
			CurrentState: state,
			Actions:      []schemas.Action{{Name: schemas.ActionNavigate, Params: map[string]any{"url": url}}},
		}
		encoded, err := json.Marshal(decision)
		require.NoError(t, err)

		parsed, err := ParseDecision(string(encoded))
		require.NoError(t, err)
		assert.Equal(t, state, parsed.CurrentState)
		assert.Equal(t, url, parsed.Actions[0].Params["url"])
	})
}
