package persona

import (
	"fmt"
	"strings"
)

// Persona is a named agent identity. Exactly one persona in a catalog is the
// base persona (empty Tone): it uses its raw Description as system prompt,
// never receives delegated work and is never offered the invokeAgent tool.
type Persona struct {
	Key         string // Stable identifier; forms part of the session key
	Name        string // Display name used in mentions and tool enums
	Role        string // Short role description used in the prompt template
	Description string // Free-form description (raw prompt for the base persona)
	Tone        string // Tone descriptor; empty marks the base persona
}

// IsBase reports whether this is the base persona.
func (p Persona) IsBase() bool { return p.Tone == "" }

// UnknownPersonaError signals a lookup for a key outside the closed catalog.
// This is a programmer or configuration error, fatal to the call.
type UnknownPersonaError struct {
	Key string
}

func (e *UnknownPersonaError) Error() string {
	return fmt.Sprintf("persona %q not found", e.Key)
}

// promptTemplate composes the system prompt for every non-base persona.
const promptTemplate = "You are %s, a %s. %s Your tone must be %s. " +
	"You can invoke other agents with the invokeAgent tool when a task falls outside your specialty."

// Registry is the immutable, ordered persona catalog with a derived
// case-insensitive name index. It has no side effects; the only failure mode
// is UnknownPersonaError on a missing key.
type Registry struct {
	order   []string
	byKey   map[string]Persona
	byName  map[string]string // lower(display name) -> key
	baseKey string
}

// NewRegistry validates a catalog and builds a registry from it. The catalog
// must be non-empty, keys must be unique, and exactly one persona must be the
// base persona.
func NewRegistry(personas []Persona) (*Registry, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("persona catalog is empty")
	}
	r := &Registry{
		byKey:  make(map[string]Persona, len(personas)),
		byName: make(map[string]string, len(personas)),
	}
	for _, p := range personas {
		if p.Key == "" {
			return nil, fmt.Errorf("persona with empty key")
		}
		if _, exists := r.byKey[p.Key]; exists {
			return nil, fmt.Errorf("duplicate persona key %q", p.Key)
		}
		if p.Name == "" {
			p.Name = p.Key
		}
		if p.IsBase() {
			if r.baseKey != "" {
				return nil, fmt.Errorf("multiple base personas (%q and %q)", r.baseKey, p.Key)
			}
			r.baseKey = p.Key
		}
		r.order = append(r.order, p.Key)
		r.byKey[p.Key] = p
		r.byName[strings.ToLower(p.Name)] = p.Key
	}
	if r.baseKey == "" {
		return nil, fmt.Errorf("catalog has no base persona (one persona must have an empty tone)")
	}
	return r, nil
}

// Get returns the persona for a key.
func (r *Registry) Get(key string) (Persona, error) {
	p, ok := r.byKey[key]
	if !ok {
		return Persona{}, &UnknownPersonaError{Key: key}
	}
	return p, nil
}

// ByName resolves a display name case-insensitively.
func (r *Registry) ByName(name string) (Persona, bool) {
	key, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return Persona{}, false
	}
	return r.byKey[key], true
}

// Delegatable returns every persona except the caller and the base persona,
// in catalog order. The base persona never receives delegated work.
func (r *Registry) Delegatable(excludeKey string) []Persona {
	res := make([]Persona, 0, len(r.order))
	for _, key := range r.order {
		if key == excludeKey || key == r.baseKey {
			continue
		}
		res = append(res, r.byKey[key])
	}
	return res
}

// SystemPrompt composes the deterministic system prompt for a persona. The
// base persona's prompt is its raw description; every other persona uses the
// composed template.
func (r *Registry) SystemPrompt(key string) (string, error) {
	p, err := r.Get(key)
	if err != nil {
		return "", err
	}
	if p.IsBase() {
		return p.Description, nil
	}
	return fmt.Sprintf(promptTemplate, p.Name, p.Role, p.Description, p.Tone), nil
}

// BaseKey returns the key of the base persona.
func (r *Registry) BaseKey() string { return r.baseKey }

// Keys returns all persona keys in catalog order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// All returns all personas in catalog order.
func (r *Registry) All() []Persona {
	res := make([]Persona, 0, len(r.order))
	for _, key := range r.order {
		res = append(res, r.byKey[key])
	}
	return res
}
