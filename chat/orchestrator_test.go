package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/history"
	"github.com/parleychat/parley/internal/testutil"
	"github.com/parleychat/parley/persona"
	"github.com/parleychat/parley/provider"
)

func newOrchestrator(t *testing.T, prov *provider.ScriptedProvider) (*Orchestrator, history.Store) {
	t.Helper()
	store := history.NewInMemoryStore()
	o := NewOrchestrator(testutil.Registry(t), store, map[string]provider.Provider{prov.ID(): prov})
	return o, store
}

func activate(t *testing.T, o *Orchestrator, providerID, personaKey string) {
	t.Helper()
	_, _, err := o.Activate(context.Background(), providerID, personaKey)
	require.NoError(t, err)
}

func TestSubmit_PlainAnswerStreamsInOrder(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted",
		testutil.TextRound("Hel", "lo, ", "world"),
	)
	o, _ := newOrchestrator(t, prov)
	activate(t, o, "scripted", "lyra")

	var deltas []string
	res, err := o.Submit(context.Background(), Input{Text: "hi"}, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello, world", res.Text)
	assert.Equal(t, []string{"Hel", "lo, ", "world"}, deltas)
	assert.Equal(t, 0, res.Rounds)
	assert.True(t, res.Persisted)
	assert.Equal(t, StateCompleted, o.State())
}

func TestSubmit_OneToolCallThenAnswer(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted",
		testutil.ToolCallRound("call_1", `{"agentName":"Cassius","prompt":"explain mmap"}`, "Let me ask Cassius."),
		testutil.TextRound("Cassius says: memory mapping."),
	)
	prov.Completions["explain mmap"] = "mmap maps files into memory"
	o, store := newOrchestrator(t, prov)
	activate(t, o, "scripted", "lyra")

	res, err := o.Submit(context.Background(), Input{Text: "what is mmap?"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Rounds)
	assert.Contains(t, res.Text, "Cassius says: memory mapping.")
	assert.Equal(t, StateCompleted, o.State())

	// The delegation ran under Cassius's composed prompt, not Lyra's.
	require.Len(t, prov.CompletedSystemPrompts, 1)
	assert.Contains(t, prov.CompletedSystemPrompts[0], "You are Cassius, a systems programmer.")

	// The completed transcript was persisted.
	raw, err := store.Load(context.Background(), "scripted-lyra")
	require.NoError(t, err)
	assert.NotNil(t, raw)
}

func TestSubmit_UnknownAgentFoldsBackAsToolResult(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted",
		testutil.ToolCallRound("call_1", `{"agentName":"Zephyr","prompt":"x"}`),
		testutil.TextRound("I could not reach that agent."),
	)
	o, _ := newOrchestrator(t, prov)
	activate(t, o, "scripted", "lyra")

	res, err := o.Submit(context.Background(), Input{Text: "ask zephyr"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, StateCompleted, o.State())

	// The not-found marker went back to the model as the tool result.
	sess := o.Active().Session.(*provider.ScriptedSession)
	assert.Equal(t, `Agent "Zephyr" not found.`, sess.LastToolResult)
}

func TestSubmit_StreamFailureLeavesStoreUntouched(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted",
		testutil.TextRound("first answer"),
		testutil.ErrorRound(errors.New("connection reset")),
	)
	o, store := newOrchestrator(t, prov)
	activate(t, o, "scripted", "lyra")

	_, err := o.Submit(context.Background(), Input{Text: "one"}, nil)
	require.NoError(t, err)
	persisted, err := store.Load(context.Background(), "scripted-lyra")
	require.NoError(t, err)

	_, err = o.Submit(context.Background(), Input{Text: "two"}, nil)
	require.Error(t, err)
	assert.Equal(t, StateFailed, o.State())

	after, err := store.Load(context.Background(), "scripted-lyra")
	require.NoError(t, err)
	assert.JSONEq(t, string(persisted), string(after))

	// The next turn picks up from the persisted transcript, not the failed one.
	prov.AddRound(provider.ScriptedRound{Deltas: []string{"recovered"}})
	res, err := o.Submit(context.Background(), Input{Text: "three"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Text)
}

func TestSubmit_DelegationProviderFailureFailsTurn(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted",
		testutil.ToolCallRound("call_1", `{"agentName":"Cassius","prompt":"x"}`),
	)
	prov.CompleteErr = errors.New("rate limited")
	o, store := newOrchestrator(t, prov)
	activate(t, o, "scripted", "lyra")

	_, err := o.Submit(context.Background(), Input{Text: "ask cassius"}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "rate limited")
	assert.Equal(t, StateFailed, o.State())

	raw, err := store.Load(context.Background(), "scripted-lyra")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestSubmit_EmptyInputRejected(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted")
	o, _ := newOrchestrator(t, prov)
	activate(t, o, "scripted", "lyra")

	_, err := o.Submit(context.Background(), Input{Text: "   "}, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = o.Submit(context.Background(), Input{}, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestSubmit_RequiresActiveSession(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted")
	o, _ := newOrchestrator(t, prov)

	_, err := o.Submit(context.Background(), Input{Text: "hi"}, nil)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestActivate_RestoresStoredTranscript(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted")
	o, store := newOrchestrator(t, prov)

	stored := `[{"role":"system","content":"prompt"},{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`
	require.NoError(t, store.Save(context.Background(), "scripted-lyra", []byte(stored)))

	_, prior, err := o.Activate(context.Background(), "scripted", "lyra")
	require.NoError(t, err)
	assert.JSONEq(t, stored, string(prior))

	got, err := o.Active().Session.ExportHistory()
	require.NoError(t, err)
	assert.JSONEq(t, stored, string(got))
}

func TestActivate_CorruptTranscriptDegradesToFresh(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted")
	o, store := newOrchestrator(t, prov)
	require.NoError(t, store.Save(context.Background(), "scripted-lyra", []byte(`{"not":"an array"}`)))

	_, prior, err := o.Activate(context.Background(), "scripted", "lyra")
	require.NoError(t, err)
	assert.Nil(t, prior)
}

func TestActivate_UnknownProviderOrPersona(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted")
	o, _ := newOrchestrator(t, prov)

	_, _, err := o.Activate(context.Background(), "nope", "lyra")
	require.Error(t, err)

	_, _, err = o.Activate(context.Background(), "scripted", "nope")
	var unknown *persona.UnknownPersonaError
	require.ErrorAs(t, err, &unknown)
}

func TestHandleInput_SelfMentionCollapsesToPlainInput(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted",
		provider.ScriptedRound{Deltas: []string{"a summary"}},
	)
	o, _ := newOrchestrator(t, prov)
	activate(t, o, "scripted", "lyra")

	out, err := o.HandleInput(context.Background(), "@Lyra summarize this", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTurn, out.Kind)
	assert.Equal(t, "a summary", out.Text)

	// The mention prefix was stripped before the turn ran.
	sess := o.Active().Session.(*provider.ScriptedSession)
	require.GreaterOrEqual(t, len(sess.Messages), 2)
	assert.Equal(t, "summarize this", sess.Messages[1].Content)
}

func TestHandleInput_ForeignMentionIsOneOff(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted")
	prov.Completions["write a haiku"] = "an old silent pond"
	o, store := newOrchestrator(t, prov)
	activate(t, o, "scripted", "lyra")

	out, err := o.HandleInput(context.Background(), "@cassius write a haiku", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOneOff, out.Kind)
	assert.Equal(t, "an old silent pond", out.Text)

	// One-off replies never touch the active transcript or the store.
	sess := o.Active().Session.(*provider.ScriptedSession)
	assert.Len(t, sess.Messages, 1)
	raw, err := store.Load(context.Background(), "scripted-lyra")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestHandleInput_UnknownMentionReportsNotFound(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted")
	o, _ := newOrchestrator(t, prov)
	activate(t, o, "scripted", "lyra")

	out, err := o.HandleInput(context.Background(), "@Zephyr hello", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOneOff, out.Kind)
	assert.Contains(t, out.Text, "not found")
}

func TestHandleInput_MentionIgnoredWithAttachment(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted",
		provider.ScriptedRound{Deltas: []string{"described"}},
	)
	o, _ := newOrchestrator(t, prov)
	activate(t, o, "scripted", "lyra")

	att := &provider.Attachment{MIMEType: "image/png", Data: "AAAA"}
	out, err := o.HandleInput(context.Background(), "@cassius describe this", att, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTurn, out.Kind)
}

func TestClear_RemovesRecordAndStartsFresh(t *testing.T) {
	prov := provider.NewScriptedProvider("scripted",
		provider.ScriptedRound{Deltas: []string{"hello"}},
	)
	o, store := newOrchestrator(t, prov)
	activate(t, o, "scripted", "lyra")

	_, err := o.Submit(context.Background(), Input{Text: "hi"}, nil)
	require.NoError(t, err)

	require.NoError(t, o.Clear(context.Background()))
	raw, err := store.Load(context.Background(), "scripted-lyra")
	require.NoError(t, err)
	assert.Nil(t, raw)

	sess := o.Active().Session.(*provider.ScriptedSession)
	assert.Len(t, sess.Messages, 1) // just the system prompt

	// Clearing an already-clear session is a no-op.
	require.NoError(t, o.Clear(context.Background()))
}
