package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parleychat/parley/logging"
	"github.com/parleychat/parley/persona"
	"github.com/parleychat/parley/provider"
)

// InvokeAgentName is the function name personas use to delegate.
const InvokeAgentName = "invokeAgent"

// UnknownAgentError indicates the requested agent name matched no persona.
type UnknownAgentError struct {
	Name string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("agent %q not found", e.Name)
}

// ProviderFailureError wraps a provider error raised while serving a
// delegation.
type ProviderFailureError struct {
	Agent string
	Err   error
}

func (e *ProviderFailureError) Error() string {
	return fmt.Sprintf("delegation to %q failed: %v", e.Agent, e.Err)
}

func (e *ProviderFailureError) Unwrap() error { return e.Err }

// Call is the decoded argument payload of an invokeAgent tool call.
type Call struct {
	AgentName string `json:"agentName"`
	Prompt    string `json:"prompt"`
}

// DecodeCall parses the raw JSON arguments of an invokeAgent tool call.
func DecodeCall(arguments string) (Call, error) {
	var c Call
	if err := json.Unmarshal([]byte(arguments), &c); err != nil {
		return Call{}, fmt.Errorf("decode invokeAgent arguments: %w", err)
	}
	return c, nil
}

// InvokeAgentSpec builds the invokeAgent tool definition for a caller. The
// agentName enum lists every persona the caller may delegate to, so the
// model cannot address itself or the base persona.
func InvokeAgentSpec(registry *persona.Registry, callerKey string) provider.ToolSpec {
	targets := registry.Delegatable(callerKey)
	names := make([]string, len(targets))
	for i, p := range targets {
		names[i] = p.Name
	}
	return provider.ToolSpec{
		Name:        InvokeAgentName,
		Description: "Invoke another specialist agent with a task and return its reply.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agentName": map[string]any{
					"type":        "string",
					"description": "Name of the agent to invoke",
					"enum":        names,
				},
				"prompt": map[string]any{
					"type":        "string",
					"description": "The task or question for the agent",
				},
			},
			"required": []string{"agentName", "prompt"},
		},
	}
}

// Options configure an Executor.
type Options struct {
	Logger logging.Logger
}

// Executor resolves agent names and runs delegations against a provider.
type Executor struct {
	registry *persona.Registry
	provider provider.Provider
	logger   logging.Logger
}

// NewExecutor creates an Executor bound to a registry and a provider.
func NewExecutor(registry *persona.Registry, prov provider.Provider, optFns ...func(o *Options)) *Executor {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{registry: registry, provider: prov, logger: opts.Logger}
}

// Invoke resolves agentName case-insensitively and runs a one-off completion
// under the target persona's system prompt. Errors are typed so callers can
// distinguish an unknown agent from a provider failure.
func (e *Executor) Invoke(ctx context.Context, agentName, prompt string) (string, error) {
	target, ok := e.registry.ByName(agentName)
	if !ok {
		return "", &UnknownAgentError{Name: agentName}
	}
	systemPrompt, err := e.registry.SystemPrompt(target.Key)
	if err != nil {
		return "", &UnknownAgentError{Name: agentName}
	}
	start := time.Now()
	reply, err := e.provider.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		e.logger.Warn("delegation failed",
			"agent", target.Name,
			"provider", e.provider.ID(),
			"error", err,
		)
		return "", &ProviderFailureError{Agent: target.Name, Err: err}
	}
	e.logger.Debug("delegation completed",
		"agent", target.Name,
		"provider", e.provider.ID(),
		"duration", time.Since(start),
	)
	return reply, nil
}

// Result runs a delegation and renders the outcome as a display string. An
// unknown agent yields a not-found marker; any other failure yields an error
// line. This is the string folded back into the caller's conversation.
func (e *Executor) Result(ctx context.Context, agentName, prompt string) string {
	reply, err := e.Invoke(ctx, agentName, prompt)
	if err != nil {
		var unknown *UnknownAgentError
		if errors.As(err, &unknown) {
			return fmt.Sprintf("Agent %q not found.", unknown.Name)
		}
		return "Error: " + err.Error()
	}
	return reply
}
