package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/llmutil"
)

func TestFallbackDecision(t *testing.T) {
	msg := `API error: 500 - {"error": "boom"}`

	decision, err := llmutil.ParseDecision(FallbackDecision(msg))
	require.NoError(t, err)

	assert.Equal(t, "Failed - API error", decision.CurrentState.EvaluationPreviousGoal)
	assert.Equal(t, "Please retry or check API configuration", decision.CurrentState.NextGoal)
	require.Len(t, decision.Actions, 1)
	assert.Equal(t, schemas.ActionDone, decision.Actions[0].Name)
	assert.Equal(t, msg, decision.Actions[0].Params["text"], "quotes in the message survive encoding")
	assert.Equal(t, false, decision.Actions[0].Params["success"])
}
