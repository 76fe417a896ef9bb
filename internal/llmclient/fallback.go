package llmclient

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// systemInstruction is sent as the provider-level system message on every request.
const systemInstruction = `You are an AI assistant for browser automation. Your response must be valid JSON with this format: ` +
	`{"current_state": {"evaluation_previous_goal": "...", "memory": "...", "next_goal": "..."}, "action": [{"action_name": {"param1": "value1"}}]}`

// FallbackDecision renders a terminal, unsuccessful decision that reports msg.
// Clients return it alongside a *schemas.TransportError so callers that only look
// at the text still see a well-formed decision.
func FallbackDecision(msg string) string {
	success := false
	decision := schemas.Decision{
		CurrentState: schemas.CurrentState{
			EvaluationPreviousGoal: "Failed - API error",
			Memory:                 "API error occurred while processing the request",
			NextGoal:               "Please retry or check API configuration",
		},
		Actions: []schemas.Action{{
			Name:   schemas.ActionDone,
			Params: map[string]any{"text": msg, "success": success},
		}},
	}
	out, err := json.Marshal(decision)
	if err != nil {
		// Unreachable for string and bool params; keep the contract regardless.
		return `{"current_state":{},"action":[{"done":{"text":"API error","success":false}}]}`
	}
	return string(out)
}
