package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultCatalog returns the built-in persona set. Nova is the base persona.
func DefaultCatalog() []Persona {
	return []Persona{
		{
			Key:  "Nova",
			Name: "Nova",
			Role: "resident assistant",
			Description: "You are Nova, the resident assistant of the Parley console. " +
				"You answer directly and concisely, without theatrics.",
		},
		{
			Key:         "Lyra",
			Name:        "Lyra",
			Role:        "lyric poet and creative writer",
			Description: "You turn any subject into evocative prose or verse.",
			Tone:        "wistful and imaginative",
		},
		{
			Key:         "Cassius",
			Name:        "Cassius",
			Role:        "systems programmer",
			Description: "You reason about code, protocols and performance with rigor.",
			Tone:        "dry and precise",
		},
		{
			Key:         "Juno",
			Name:        "Juno",
			Role:        "research analyst",
			Description: "You break questions into verifiable claims and weigh the evidence.",
			Tone:        "methodical and curious",
		},
		{
			Key:         "Orin",
			Name:        "Orin",
			Role:        "pragmatic project planner",
			Description: "You turn vague goals into ordered, actionable steps.",
			Tone:        "brisk and encouraging",
		},
	}
}

type catalogFile struct {
	Personas []catalogEntry `yaml:"personas"`
}

type catalogEntry struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Role        string `yaml:"role"`
	Description string `yaml:"description"`
	Tone        string `yaml:"tone"`
}

// LoadCatalog reads a persona catalog from a YAML file and builds a validated
// registry from it. The file must satisfy the same invariants as the built-in
// catalog: unique keys and exactly one base persona.
func LoadCatalog(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse persona catalog: %w", err)
	}
	personas := make([]Persona, 0, len(file.Personas))
	for _, e := range file.Personas {
		personas = append(personas, Persona{
			Key:         e.Key,
			Name:        e.Name,
			Role:        e.Role,
			Description: e.Description,
			Tone:        e.Tone,
		})
	}
	reg, err := NewRegistry(personas)
	if err != nil {
		return nil, fmt.Errorf("persona catalog %s: %w", path, err)
	}
	return reg, nil
}
