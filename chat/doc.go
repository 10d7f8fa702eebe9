// Package chat drives one conversation turn end to end. The Orchestrator owns
// the active provider session, runs the streaming loop through zero or more
// delegation rounds until a terminal answer is produced, and persists the
// transcript on the completed path only. The mention parser is the front door
// shortcut: a leading @AgentName routes input to a one-off delegation without
// touching the active transcript.
package chat
