package chat

import (
	"regexp"
	"strings"
)

// Mention is a parsed leading @AgentName directive.
type Mention struct {
	AgentName string
	Remainder string
}

// mentionPattern matches a leading @word token, an optional separator run
// (whitespace, colon, comma), and the remainder of the input.
var mentionPattern = regexp.MustCompile(`(?s)^@(\w+)[\s:,]*(.*)$`)

// ParseMention detects a leading @AgentName in raw user input. It reports
// false when the input carries no mention. The parser does not validate the
// agent name against any catalog; resolution is the caller's concern.
func ParseMention(raw string) (*Mention, bool) {
	m := mentionPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return nil, false
	}
	return &Mention{AgentName: m[1], Remainder: strings.TrimSpace(m[2])}, true
}
