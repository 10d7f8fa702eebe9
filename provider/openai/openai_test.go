package openai

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

func TestToolCallArena_ReassemblesFragmentsByIndex(t *testing.T) {
	arena := newToolCallArena()
	arena.add(0, "call_1", "invokeAgent", "")
	arena.add(0, "", "", `{"agentName":`)
	arena.add(0, "", "", `"Lyra",`)
	arena.add(0, "", "", `"prompt":"write a haiku"}`)

	call := arena.first()
	require.NotNil(t, call)
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "invokeAgent", call.Name)
	assert.JSONEq(t, `{"agentName":"Lyra","prompt":"write a haiku"}`, call.Arguments)
}

func TestToolCallArena_FirstCallWinsAcrossIndexes(t *testing.T) {
	arena := newToolCallArena()
	arena.add(1, "call_b", "invokeAgent", `{"agentName":"Cassius","prompt":"x"}`)
	arena.add(2, "call_c", "invokeAgent", `{"agentName":"Juno","prompt":"y"}`)

	call := arena.first()
	require.NotNil(t, call)
	assert.Equal(t, "call_b", call.ID)
}

func TestToolCallArena_EmptyYieldsNil(t *testing.T) {
	assert.Nil(t, newToolCallArena().first())
}

func TestMessageContent_JSONForms(t *testing.T) {
	// Plain string form.
	raw, err := json.Marshal(MessageContent{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, string(raw))

	var plain MessageContent
	require.NoError(t, json.Unmarshal([]byte(`"hello"`), &plain))
	assert.Equal(t, "hello", plain.Display())

	// Multipart form.
	multi := MessageContent{Parts: []ContentPart{
		{Type: "text", Text: "look at this"},
		{Type: "image_url", URL: "data:image/png;base64,AAAA"},
	}}
	raw, err = json.Marshal(multi)
	require.NoError(t, err)

	var decoded MessageContent
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Parts, 2)
	assert.Equal(t, "look at this", decoded.Display())
}

func TestNewSession_FreshTranscriptStartsWithSystemMessage(t *testing.T) {
	p := NewFromClient(nil)
	sess, err := p.NewSession("the persona prompt", nil)
	require.NoError(t, err)

	raw, err := sess.ExportHistory()
	require.NoError(t, err)

	var messages []Message
	require.NoError(t, json.Unmarshal(raw, &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "the persona prompt", messages[0].Content.Display())
}

func TestNewSession_SeedsPriorTranscriptVerbatim(t *testing.T) {
	prior := `[{"role":"system","content":"prompt"},` +
		`{"role":"user","content":"hi"},` +
		`{"role":"assistant","content":"","toolCalls":[{"id":"call_1","name":"invokeAgent","arguments":"{}"}]},` +
		`{"role":"tool","content":"done","toolCallId":"call_1"}]`

	p := NewFromClient(nil)
	sess, err := p.NewSession("ignored", []byte(prior))
	require.NoError(t, err)

	got, err := sess.ExportHistory()
	require.NoError(t, err)
	assert.JSONEq(t, prior, string(got))
}
