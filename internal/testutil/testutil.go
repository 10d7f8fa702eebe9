// Package testutil provides shared builders for package tests: a small
// persona catalog and scripted provider round constructors.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/persona"
	"github.com/parleychat/parley/provider"
)

// Registry builds a validated three-persona registry: Nova (base), Lyra and
// Cassius.
func Registry(t *testing.T) *persona.Registry {
	t.Helper()
	reg, err := persona.NewRegistry([]persona.Persona{
		{Key: "nova", Name: "Nova", Description: "You are Nova, a helpful assistant."},
		{Key: "lyra", Name: "Lyra", Role: "lyric poet", Description: "You write verse.", Tone: "wistful"},
		{Key: "cassius", Name: "Cassius", Role: "systems programmer", Description: "You write C.", Tone: "dry"},
	})
	require.NoError(t, err)
	return reg
}

// TextRound scripts a round streaming the given deltas with no tool call.
func TextRound(deltas ...string) provider.ScriptedRound {
	return provider.ScriptedRound{Deltas: deltas}
}

// ToolCallRound scripts a round that ends in an invokeAgent call.
func ToolCallRound(id, arguments string, deltas ...string) provider.ScriptedRound {
	return provider.ScriptedRound{
		Deltas:   deltas,
		ToolCall: &provider.ToolCall{ID: id, Name: "invokeAgent", Arguments: arguments},
	}
}

// ErrorRound scripts a round that fails with err.
func ErrorRound(err error) provider.ScriptedRound {
	return provider.ScriptedRound{Err: err}
}
