package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// ScriptedRound is one pre-programmed provider round for tests: deltas are
// streamed in order, then the optional tool call, or the round fails with Err.
type ScriptedRound struct {
	Deltas   []string
	ToolCall *ToolCall
	Err      error
}

// ScriptedProvider is a deterministic in-memory Provider for tests and
// examples. Rounds are consumed in order across SendTurn and
// ContinueWithToolResult calls; Complete answers from the Completions map.
type ScriptedProvider struct {
	id string

	mu     sync.Mutex
	rounds []ScriptedRound
	cursor int

	// Completions maps delegation prompts to canned replies.
	Completions map[string]string
	// CompleteErr, when set, fails every Complete call.
	CompleteErr error
	// CompletedPrompts records the prompts passed to Complete, in order.
	CompletedPrompts []string
	// CompletedSystemPrompts records the system prompts passed to Complete.
	CompletedSystemPrompts []string
}

// NewScriptedProvider constructs a scripted provider with the given rounds.
func NewScriptedProvider(id string, rounds ...ScriptedRound) *ScriptedProvider {
	return &ScriptedProvider{
		id:          id,
		rounds:      rounds,
		Completions: map[string]string{},
	}
}

// ID implements Provider.
func (p *ScriptedProvider) ID() string { return p.id }

// AddRound appends another scripted round.
func (p *ScriptedProvider) AddRound(round ScriptedRound) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rounds = append(p.rounds, round)
}

func (p *ScriptedProvider) nextRound() (ScriptedRound, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor >= len(p.rounds) {
		return ScriptedRound{}, fmt.Errorf("scripted provider %s: no rounds left", p.id)
	}
	round := p.rounds[p.cursor]
	p.cursor++
	return round, nil
}

// NewSession implements Provider. The session records a role-content style
// transcript so tests can assert on exported history.
func (p *ScriptedProvider) NewSession(systemPrompt string, prior json.RawMessage) (Session, error) {
	s := &ScriptedSession{provider: p}
	if len(prior) > 0 {
		if err := json.Unmarshal(prior, &s.Messages); err != nil {
			return nil, fmt.Errorf("seed scripted session: %w", err)
		}
		return s, nil
	}
	s.Messages = []ScriptedMessage{{Role: "system", Content: systemPrompt}}
	return s, nil
}

// Complete implements Provider.
func (p *ScriptedProvider) Complete(_ context.Context, systemPrompt, prompt string) (string, error) {
	p.mu.Lock()
	p.CompletedPrompts = append(p.CompletedPrompts, prompt)
	p.CompletedSystemPrompts = append(p.CompletedSystemPrompts, systemPrompt)
	err := p.CompleteErr
	reply, ok := p.Completions[prompt]
	p.mu.Unlock()
	if err != nil {
		return "", &Error{Provider: p.id, Err: err}
	}
	if !ok {
		reply = "scripted reply to: " + prompt
	}
	return reply, nil
}

// ScriptedMessage is one recorded transcript entry of a scripted session.
type ScriptedMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// ScriptedSession replays the provider's scripted rounds and records the
// transcript. It mirrors the rollback behavior of the real bindings: a failed
// round truncates the transcript back to the start of the turn.
type ScriptedSession struct {
	provider *ScriptedProvider

	Messages  []ScriptedMessage
	turnStart int

	// ContinueCalls counts ContinueWithToolResult invocations.
	ContinueCalls int
	// LastToolResult is the most recent folded-back delegation result.
	LastToolResult string
}

// SendTurn implements Session.
func (s *ScriptedSession) SendTurn(ctx context.Context, parts UserParts, _ []ToolSpec) (<-chan TurnEvent, <-chan error) {
	s.turnStart = len(s.Messages)
	text := parts.Text
	if parts.Attachment != nil {
		text = strings.TrimSpace(text + " [attachment " + parts.Attachment.MIMEType + "]")
	}
	s.Messages = append(s.Messages, ScriptedMessage{Role: "user", Content: text})
	return s.playRound(ctx)
}

// ContinueWithToolResult implements Session.
func (s *ScriptedSession) ContinueWithToolResult(ctx context.Context, call ToolCall, result string) (<-chan TurnEvent, <-chan error) {
	s.ContinueCalls++
	s.LastToolResult = result
	s.Messages = append(s.Messages, ScriptedMessage{Role: "tool", Content: result, ToolCallID: call.ID})
	return s.playRound(ctx)
}

func (s *ScriptedSession) playRound(ctx context.Context) (<-chan TurnEvent, <-chan error) {
	events := make(chan TurnEvent, 16)
	errCh := make(chan error, 1)

	round, err := s.provider.nextRound()

	go func() {
		defer close(events)
		defer close(errCh)
		if err != nil {
			s.Messages = s.Messages[:s.turnStart]
			errCh <- err
			return
		}
		if round.Err != nil {
			s.Messages = s.Messages[:s.turnStart]
			errCh <- &Error{Provider: s.provider.id, Err: round.Err}
			return
		}
		var full strings.Builder
		for _, delta := range round.Deltas {
			select {
			case <-ctx.Done():
				s.Messages = s.Messages[:s.turnStart]
				errCh <- ctx.Err()
				return
			case events <- TurnEvent{TextDelta: delta}:
				full.WriteString(delta)
			}
		}
		reply := ScriptedMessage{Role: "assistant", Content: full.String()}
		if round.ToolCall != nil {
			reply.ToolCalls = []ToolCall{*round.ToolCall}
		}
		s.Messages = append(s.Messages, reply)
		if round.ToolCall != nil {
			events <- TurnEvent{ToolCall: round.ToolCall}
		}
	}()

	return events, errCh
}

// ExportHistory implements Session.
func (s *ScriptedSession) ExportHistory() (json.RawMessage, error) {
	return json.Marshal(s.Messages)
}
