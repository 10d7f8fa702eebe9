package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var (
	_ Provider = (*ScriptedProvider)(nil)
	_ Session  = (*ScriptedSession)(nil)
)

func drain(t *testing.T, events <-chan TurnEvent, errCh <-chan error) (string, *ToolCall, error) {
	t.Helper()
	var buf strings.Builder
	var call *ToolCall
	for events != nil || errCh != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			buf.WriteString(ev.TextDelta)
			if ev.ToolCall != nil && call == nil {
				call = ev.ToolCall
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return buf.String(), call, err
			}
		}
	}
	return buf.String(), call, nil
}

func TestScriptedSession_DeltasArriveInEmissionOrder(t *testing.T) {
	prov := NewScriptedProvider("scripted", ScriptedRound{Deltas: []string{"Hel", "lo, ", "world"}})
	sess, err := prov.NewSession("prompt", nil)
	require.NoError(t, err)

	events, errCh := sess.SendTurn(context.Background(), UserParts{Text: "greet"}, nil)
	text, call, err := drain(t, events, errCh)
	require.NoError(t, err)
	assert.Nil(t, call)
	assert.Equal(t, "Hello, world", text)
}

func TestScriptedSession_FailedRoundRollsBackTranscript(t *testing.T) {
	prov := NewScriptedProvider("scripted",
		ScriptedRound{Deltas: []string{"fine"}},
		ScriptedRound{Err: errors.New("boom")},
	)
	sess, err := prov.NewSession("prompt", nil)
	require.NoError(t, err)
	ctx := context.Background()

	events, errCh := sess.SendTurn(ctx, UserParts{Text: "first"}, nil)
	_, _, err = drain(t, events, errCh)
	require.NoError(t, err)

	before, err := sess.ExportHistory()
	require.NoError(t, err)

	events, errCh = sess.SendTurn(ctx, UserParts{Text: "second"}, nil)
	_, _, err = drain(t, events, errCh)
	require.Error(t, err)
	var provErr *Error
	assert.True(t, errors.As(err, &provErr))

	after, err := sess.ExportHistory()
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestScriptedProvider_SeedsPriorTranscriptVerbatim(t *testing.T) {
	prior := `[{"role":"system","content":"prompt"},{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`
	prov := NewScriptedProvider("scripted")
	sess, err := prov.NewSession("prompt", []byte(prior))
	require.NoError(t, err)

	got, err := sess.ExportHistory()
	require.NoError(t, err)
	assert.JSONEq(t, prior, string(got))
}
