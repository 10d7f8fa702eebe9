package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMention(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		agent     string
		remainder string
		ok        bool
	}{
		{"space separator", "@Lyra write a haiku", "Lyra", "write a haiku", true},
		{"colon separator", "@Lyra: write a haiku", "Lyra", "write a haiku", true},
		{"comma separator", "@Lyra, write a haiku", "Lyra", "write a haiku", true},
		{"bare mention", "@Lyra", "Lyra", "", true},
		{"leading whitespace", "  @Cassius explain mmap", "Cassius", "explain mmap", true},
		{"multiline remainder", "@Juno summarize:\nline one\nline two", "Juno", "summarize:\nline one\nline two", true},
		{"no mention", "hello there", "", "", false},
		{"mid-text at sign", "email me @ home", "", "", false},
		{"bare at sign", "@", "", "", false},
		{"empty", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := ParseMention(tt.input)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.agent, m.AgentName)
			assert.Equal(t, tt.remainder, m.Remainder)
		})
	}
}
