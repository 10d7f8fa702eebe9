package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/provider"
)

// Interface compliance (compile-time assertions)
var (
	_ provider.Provider = (*Provider)(nil)
	_ provider.Session  = (*session)(nil)
)

func TestNewSession_SeedsPriorTranscriptVerbatim(t *testing.T) {
	prior := `[{"role":"user","content":[{"type":"text","text":"hi"}]},` +
		`{"role":"assistant","content":[{"type":"text","text":"hello"},` +
		`{"type":"tool_use","id":"toolu_1","name":"invokeAgent","input":{"agentName":"Lyra","prompt":"x"}}]},` +
		`{"role":"user","content":[{"type":"tool_result","toolUseId":"toolu_1","content":"done"}]}]`

	p := NewFromClient(nil)
	sess, err := p.NewSession("ignored", []byte(prior))
	require.NoError(t, err)

	got, err := sess.ExportHistory()
	require.NoError(t, err)
	assert.JSONEq(t, prior, string(got))
}

func TestNewSession_RejectsCorruptPriorTranscript(t *testing.T) {
	p := NewFromClient(nil)
	_, err := p.NewSession("prompt", []byte(`{"not":"an array"}`))
	require.Error(t, err)
}

func TestExportHistory_EmptySessionIsEmptyArray(t *testing.T) {
	p := NewFromClient(nil)
	sess, err := p.NewSession("prompt", nil)
	require.NoError(t, err)

	got, err := sess.ExportHistory()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(got))
}

func TestNewSession_SystemPromptStaysOutOfBand(t *testing.T) {
	p := NewFromClient(nil)
	sess, err := p.NewSession("the persona prompt", nil)
	require.NoError(t, err)

	raw, err := sess.ExportHistory()
	require.NoError(t, err)

	var messages []Message
	require.NoError(t, json.Unmarshal(raw, &messages))
	assert.Empty(t, messages)
}

func TestBuildTools_ConvertsSchema(t *testing.T) {
	specs := []provider.ToolSpec{{
		Name:        "invokeAgent",
		Description: "Invoke another agent",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agentName": map[string]any{"type": "string"},
				"prompt":    map[string]any{"type": "string"},
			},
			"required": []any{"agentName", "prompt"},
		},
	}}

	tools := buildTools(specs)
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "invokeAgent", tools[0].OfTool.Name)
	assert.Equal(t, []string{"agentName", "prompt"}, tools[0].OfTool.InputSchema.Required)
}
