package history

import (
	"context"
	"encoding/json"
	"fmt"
)

// SessionKey builds the composite identifier for one persisted transcript,
// e.g. "gemini-Lyra".
func SessionKey(providerID, personaKey string) string {
	return providerID + "-" + personaKey
}

// Store persists transcripts keyed by session key. A missing record is not an
// error: Load returns (nil, nil). Implementations must be safe for concurrent
// calls on different keys; callers serialize calls for the same key.
type Store interface {
	// Load returns the stored transcript or (nil, nil) when no record exists.
	Load(ctx context.Context, key string) (json.RawMessage, error)

	// Save replaces the record for key with the given transcript.
	Save(ctx context.Context, key string, transcript json.RawMessage) error

	// Clear removes the record for key. Clearing an absent key is a no-op.
	Clear(ctx context.Context, key string) error
}

// PersistenceError wraps an I/O failure in the history store. Callers treat
// save failures as non-fatal for the in-memory conversation but must surface
// a warning.
type PersistenceError struct {
	Op  string // load, save or clear
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s for %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Shape classifies a persisted transcript by its provider-native message
// schema.
type Shape int

const (
	// ShapeUnknown means the transcript is empty or unrecognized.
	ShapeUnknown Shape = iota
	// ShapeTurnBased is the role/parts form (roles user|model).
	ShapeTurnBased
	// ShapeRoleContent is the role/content form (roles system|user|assistant|tool).
	ShapeRoleContent
)

// String returns the string representation of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeTurnBased:
		return "turn-based"
	case ShapeRoleContent:
		return "role-content"
	default:
		return "unknown"
	}
}

// DetectShape inspects a raw transcript and reports which native message
// schema it carries, branching on the presence of a "parts" versus a
// "content" field in the first message. Used only at load/render time; never
// for storage decisions.
func DetectShape(raw json.RawMessage) Shape {
	var messages []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &messages); err != nil || len(messages) == 0 {
		return ShapeUnknown
	}
	first := messages[0]
	if _, ok := first["parts"]; ok {
		return ShapeTurnBased
	}
	if _, ok := first["content"]; ok {
		return ShapeRoleContent
	}
	return ShapeUnknown
}
