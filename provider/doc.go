// Package provider defines the uniform streaming-turn contract implemented by
// every LLM backend binding. A Provider creates Sessions that own a live
// conversation context in the backend's native message schema; Sessions expose
// the same TurnEvent stream regardless of how the backend encodes text deltas
// and tool calls on the wire. The sub-packages gemini, openai and anthropic
// hold the concrete bindings.
package provider
