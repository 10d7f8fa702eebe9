package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolCall is a function call request surfaced by a provider, unified across
// vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string `json:"id,omitempty"` // Provider-assigned id; may be empty for turn-based backends
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string of arguments
}

// ToolSpec declaratively exposes a callable function to the model. Parameters
// is a JSON Schema object (minimal subset: type, description, properties,
// required, enum).
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Attachment is a binary payload staged for one user turn, encoded as
// mime type plus base64 data. At most one attachment per turn.
type Attachment struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// UserParts is the content of one user turn: optional text plus at most one
// binary attachment.
type UserParts struct {
	Text       string
	Attachment *Attachment
}

// TurnEvent is one element of a streamed provider turn: either an incremental
// text delta (apply in arrival order) or a tool call request. Bindings emit at
// most one ToolCall event per turn; if a backend produces several in one turn
// only the first is surfaced.
type TurnEvent struct {
	TextDelta string
	ToolCall  *ToolCall
}

// Session owns one live conversation context in the backend's native schema.
// The streaming methods return a channel pair: an event channel and
// a one-shot error channel, both closed by the producing goroutine. A stream
// failure rolls the context back to its pre-turn state, so the session stays
// reusable for the next turn.
type Session interface {
	// SendTurn submits a user turn and streams the provider's response.
	SendTurn(ctx context.Context, parts UserParts, tools []ToolSpec) (<-chan TurnEvent, <-chan error)

	// ContinueWithToolResult resumes the same turn after a delegation
	// completed, folding the result back as a tool response.
	ContinueWithToolResult(ctx context.Context, call ToolCall, result string) (<-chan TurnEvent, <-chan error)

	// ExportHistory returns the full current transcript in the provider's
	// native JSON shape, suitable for persistence.
	ExportHistory() (json.RawMessage, error)
}

// Provider creates sessions and serves stateless one-shot completions for the
// delegation path.
type Provider interface {
	// ID returns the stable provider identifier used in session keys.
	ID() string

	// NewSession initializes a context with the given system prompt. A
	// non-nil prior transcript seeds the context verbatim, with no reshaping.
	NewSession(systemPrompt string, prior json.RawMessage) (Session, error)

	// Complete issues a single non-streaming, stateless request.
	Complete(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// Error wraps a network or API failure from a provider call. It ends the
// current turn only; the session remains usable.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
