package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/parleychat/parley/delegate"
	"github.com/parleychat/parley/history"
	"github.com/parleychat/parley/logging"
	"github.com/parleychat/parley/persona"
	"github.com/parleychat/parley/provider"
)

// State is the turn state machine position.
type State int

const (
	// StateIdle means no turn is in progress.
	StateIdle State = iota
	// StateAwaitingProviderTurn means a streaming provider call is running.
	StateAwaitingProviderTurn
	// StateToolCallPending means the provider requested a delegation.
	StateToolCallPending
	// StateAwaitingDelegation means a delegation is running synchronously.
	StateAwaitingDelegation
	// StateCompleted means the turn produced a terminal answer.
	StateCompleted
	// StateFailed means the turn ended with an error and nothing was persisted.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingProviderTurn:
		return "AwaitingProviderTurn"
	case StateToolCallPending:
		return "ToolCallPending"
	case StateAwaitingDelegation:
		return "AwaitingDelegation"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Input is one user submission: text, an attachment, or both.
type Input struct {
	Text       string
	Attachment *provider.Attachment
}

func (i Input) empty() bool {
	return strings.TrimSpace(i.Text) == "" && i.Attachment == nil
}

// TurnResult is the terminal outcome of a completed turn.
type TurnResult struct {
	ID        string // turn identifier, for log correlation
	Text      string // the final answer text
	Rounds    int    // delegation rounds performed
	Persisted bool   // whether the transcript save succeeded
}

// OutcomeKind distinguishes a full turn from a one-off mention reply.
type OutcomeKind int

const (
	// OutcomeTurn means the input ran through the full turn loop.
	OutcomeTurn OutcomeKind = iota
	// OutcomeOneOff means the input was answered by a one-off delegation.
	OutcomeOneOff
)

// Outcome is what HandleInput produced.
type Outcome struct {
	Kind OutcomeKind
	Text string
	Turn *TurnResult // set for OutcomeTurn
}

// ErrEmptyInput rejects a submission with no text and no attachment.
var ErrEmptyInput = errors.New("empty input")

// ErrNoActiveSession rejects a turn before any session was activated.
var ErrNoActiveSession = errors.New("no active session")

// ActiveSession is the exclusively owned conversation currently in focus.
type ActiveSession struct {
	Key      string
	Provider provider.Provider
	Persona  persona.Persona
	Session  provider.Session
}

// Options configure an Orchestrator.
type Options struct {
	Logger logging.Logger
}

// Orchestrator owns the active session and drives turns through the
// delegation loop. It is not safe for concurrent use; callers serialize turns
// (input is disabled while a turn runs).
type Orchestrator struct {
	registry  *persona.Registry
	store     history.Store
	providers map[string]provider.Provider
	logger    logging.Logger

	active   *ActiveSession
	executor *delegate.Executor
	state    State
}

// NewOrchestrator wires a registry, a history store and the available
// providers keyed by provider ID.
func NewOrchestrator(registry *persona.Registry, store history.Store, providers map[string]provider.Provider, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		registry:  registry,
		store:     store,
		providers: providers,
		logger:    opts.Logger,
		state:     StateIdle,
	}
}

// State returns the current turn state.
func (o *Orchestrator) State() State { return o.state }

// Active returns the active session, or nil before activation.
func (o *Orchestrator) Active() *ActiveSession { return o.active }

// Activate switches to the (provider, persona) pair, loading any stored
// transcript. A load or seed failure degrades to a fresh session with a
// warning rather than blocking the switch. The returned raw transcript is the
// restored history for render-time use; nil for a fresh session.
func (o *Orchestrator) Activate(ctx context.Context, providerID, personaKey string) (*ActiveSession, json.RawMessage, error) {
	prov, ok := o.providers[providerID]
	if !ok {
		return nil, nil, fmt.Errorf("provider %q not configured", providerID)
	}
	p, err := o.registry.Get(personaKey)
	if err != nil {
		return nil, nil, err
	}
	systemPrompt, err := o.registry.SystemPrompt(personaKey)
	if err != nil {
		return nil, nil, err
	}
	key := history.SessionKey(providerID, personaKey)

	prior, err := o.store.Load(ctx, key)
	if err != nil {
		o.logger.Warn("history load failed, starting fresh", "session_key", key, "error", err)
		prior = nil
	}
	sess, err := prov.NewSession(systemPrompt, prior)
	if err != nil {
		o.logger.Warn("stored transcript rejected, starting fresh", "session_key", key, "error", err)
		prior = nil
		sess, err = prov.NewSession(systemPrompt, nil)
		if err != nil {
			return nil, nil, err
		}
	}

	o.active = &ActiveSession{Key: key, Provider: prov, Persona: p, Session: sess}
	o.executor = delegate.NewExecutor(o.registry, prov, func(opts *delegate.Options) {
		opts.Logger = o.logger
	})
	o.state = StateIdle
	return o.active, prior, nil
}

// Submit runs one full turn: stream the provider's reply, serve delegation
// rounds synchronously until a round yields no tool call, then persist. Each
// text delta is forwarded to onDelta in arrival order. A failed turn persists
// nothing and the session context is restored to its pre-turn state.
func (o *Orchestrator) Submit(ctx context.Context, input Input, onDelta func(string)) (*TurnResult, error) {
	if o.active == nil {
		return nil, ErrNoActiveSession
	}
	if input.empty() {
		return nil, ErrEmptyInput
	}

	turnID := uuid.NewString()
	log := o.logger
	if cl, ok := log.(*logging.ChatLogger); ok {
		log = cl.WithSession(o.active.Key, turnID)
	}

	var tools []provider.ToolSpec
	if !o.active.Persona.IsBase() {
		tools = []provider.ToolSpec{delegate.InvokeAgentSpec(o.registry, o.active.Persona.Key)}
	}

	o.state = StateAwaitingProviderTurn
	parts := provider.UserParts{Text: input.Text, Attachment: input.Attachment}
	events, errs := o.active.Session.SendTurn(ctx, parts, tools)

	var text strings.Builder
	rounds := 0
	for {
		call, err := o.consume(events, errs, &text, onDelta)
		if err != nil {
			return nil, o.fail(ctx, log, err)
		}
		if call == nil {
			break
		}

		o.state = StateToolCallPending
		dc, err := delegate.DecodeCall(call.Arguments)
		if err != nil {
			return nil, o.fail(ctx, log, err)
		}

		o.state = StateAwaitingDelegation
		log.Debug("delegation requested", "agent", dc.AgentName)
		result, err := o.executor.Invoke(ctx, dc.AgentName, dc.Prompt)
		if err != nil {
			var unknown *delegate.UnknownAgentError
			if !errors.As(err, &unknown) {
				return nil, o.fail(ctx, log, err)
			}
			// An unknown agent is reported to the model, not to the user.
			result = fmt.Sprintf("Agent %q not found.", unknown.Name)
		}

		rounds++
		o.state = StateAwaitingProviderTurn
		events, errs = o.active.Session.ContinueWithToolResult(ctx, *call, result)
	}

	o.state = StateCompleted
	persisted := o.persist(ctx, log)
	log.Info("turn completed", "rounds", rounds, "persisted", persisted)
	return &TurnResult{ID: turnID, Text: text.String(), Rounds: rounds, Persisted: persisted}, nil
}

// consume drains one streaming round: deltas go to the buffer and onDelta in
// arrival order; the first tool-call request is returned once both channels
// close.
func (o *Orchestrator) consume(events <-chan provider.TurnEvent, errs <-chan error, buf *strings.Builder, onDelta func(string)) (*provider.ToolCall, error) {
	var call *provider.ToolCall
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.TextDelta != "" {
				buf.WriteString(ev.TextDelta)
				if onDelta != nil {
					onDelta(ev.TextDelta)
				}
			}
			if ev.ToolCall != nil && call == nil {
				call = ev.ToolCall
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return call, nil
}

// fail terminates the turn, restores the session from the last persisted
// transcript so no partial rounds linger in memory, and passes the error
// through.
func (o *Orchestrator) fail(ctx context.Context, log logging.Logger, err error) error {
	o.state = StateFailed
	log.Error("turn failed", "error", err)

	systemPrompt, perr := o.registry.SystemPrompt(o.active.Persona.Key)
	if perr == nil {
		prior, lerr := o.store.Load(ctx, o.active.Key)
		if lerr != nil {
			o.logger.Warn("history load failed during rollback", "session_key", o.active.Key, "error", lerr)
			prior = nil
		}
		if sess, serr := o.active.Provider.NewSession(systemPrompt, prior); serr == nil {
			o.active.Session = sess
		}
	}
	return err
}

// persist exports and saves the transcript. Persistence failures degrade to a
// warning; the answer already produced is unaffected.
func (o *Orchestrator) persist(ctx context.Context, log logging.Logger) bool {
	raw, err := o.active.Session.ExportHistory()
	if err != nil {
		log.Warn("transcript export failed", "session_key", o.active.Key, "error", err)
		return false
	}
	if err := o.store.Save(ctx, o.active.Key, raw); err != nil {
		log.Warn("transcript save failed", "session_key", o.active.Key, "error", err)
		return false
	}
	return true
}

// HandleInput is the front door for raw user input. A leading mention is
// honored only when no attachment is staged: a self-mention collapses to
// plain input, a mention with a non-empty remainder becomes a one-off
// delegation that never touches the active transcript, and a bare mention
// falls through as ordinary input. Everything else runs a full turn.
func (o *Orchestrator) HandleInput(ctx context.Context, raw string, att *provider.Attachment, onDelta func(string)) (*Outcome, error) {
	if o.active == nil {
		return nil, ErrNoActiveSession
	}
	if att == nil {
		if m, ok := ParseMention(raw); ok {
			if strings.EqualFold(m.AgentName, o.active.Persona.Name) {
				raw = m.Remainder
			} else if m.Remainder != "" {
				reply := o.executor.Result(ctx, m.AgentName, m.Remainder)
				return &Outcome{Kind: OutcomeOneOff, Text: reply}, nil
			}
		}
	}
	res, err := o.Submit(ctx, Input{Text: raw, Attachment: att}, onDelta)
	if err != nil {
		return nil, err
	}
	return &Outcome{Kind: OutcomeTurn, Text: res.Text, Turn: res}, nil
}

// Clear removes the stored transcript for the active session and starts a
// fresh one.
func (o *Orchestrator) Clear(ctx context.Context) error {
	if o.active == nil {
		return ErrNoActiveSession
	}
	if err := o.store.Clear(ctx, o.active.Key); err != nil {
		return err
	}
	systemPrompt, err := o.registry.SystemPrompt(o.active.Persona.Key)
	if err != nil {
		return err
	}
	sess, err := o.active.Provider.NewSession(systemPrompt, nil)
	if err != nil {
		return err
	}
	o.active.Session = sess
	o.state = StateIdle
	o.logger.Info("session cleared", "session_key", o.active.Key)
	return nil
}
