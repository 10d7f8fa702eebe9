// Package openai binds the OpenAI Chat Completions API (streaming plus
// function/tool calling) to the provider.Session contract. The native
// conversation schema is the role/content form; the first message of a fresh
// transcript is always the system message carrying the persona prompt.
//
// The Chat Completions stream delivers tool-call arguments as fragments keyed
// by stream index. Fragments are collected in an arena of in-progress builders
// and finalized only when the finish reason arrives, so partial JSON is never
// parsed.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/parleychat/parley/provider"
)

// ProviderID is the stable identifier used in session keys.
const ProviderID = "openai"

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete calls once the finish reason is emitted.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI binding.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Provider wraps the OpenAI Chat Completions API behind the generic
// provider.Provider interface.
type Provider struct {
	client *openai.Client
	opts   Options
}

// New creates an OpenAI provider for the given API key.
func New(apiKey string, optFns ...func(o *Options)) *Provider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an OpenAI provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// ID implements provider.Provider.
func (p *Provider) ID() string { return ProviderID }

// Message is one persisted transcript entry in the role/content form.
type Message struct {
	Role       string         `json:"role"`
	Content    MessageContent `json:"content"`
	ToolCalls  []ToolCallRef  `json:"toolCalls,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
}

// ToolCallRef records an assistant tool call inside a persisted message.
type ToolCallRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ContentPart is one element of a multipart message content.
type ContentPart struct {
	Type string `json:"type"` // text | image_url
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// MessageContent is either a plain string or an ordered list of parts,
// matching the wire schema: it marshals to a JSON string when Parts is nil
// and to an array otherwise.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// MarshalJSON implements json.Marshaler.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		c.Parts = nil
		return nil
	}
	return json.Unmarshal(data, &c.Parts)
}

// Display returns the textual content regardless of form.
func (c MessageContent) Display() string {
	if c.Parts == nil {
		return c.Text
	}
	var b strings.Builder
	for _, p := range c.Parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// NewSession implements provider.Provider. A fresh transcript starts with the
// system message; a prior transcript replaces it verbatim.
func (p *Provider) NewSession(systemPrompt string, prior json.RawMessage) (provider.Session, error) {
	s := &session{p: p}
	if len(prior) > 0 {
		if err := json.Unmarshal(prior, &s.messages); err != nil {
			return nil, fmt.Errorf("seed openai session: %w", err)
		}
		return s, nil
	}
	s.messages = []Message{{Role: "system", Content: MessageContent{Text: systemPrompt}}}
	return s, nil
}

// Complete implements provider.Provider with a single stateless call.
func (p *Provider) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Model:               p.opts.Model,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &provider.Error{Provider: ProviderID, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &provider.Error{Provider: ProviderID, Err: fmt.Errorf("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

type session struct {
	p         *Provider
	messages  []Message
	tools     []provider.ToolSpec
	turnStart int
}

// SendTurn implements provider.Session.
func (s *session) SendTurn(ctx context.Context, parts provider.UserParts, tools []provider.ToolSpec) (<-chan provider.TurnEvent, <-chan error) {
	s.turnStart = len(s.messages)
	s.tools = tools

	user := Message{Role: "user"}
	if parts.Attachment != nil {
		dataURL := fmt.Sprintf("data:%s;base64,%s", parts.Attachment.MIMEType, parts.Attachment.Data)
		var cp []ContentPart
		if parts.Text != "" {
			cp = append(cp, ContentPart{Type: "text", Text: parts.Text})
		}
		cp = append(cp, ContentPart{Type: "image_url", URL: dataURL})
		user.Content = MessageContent{Parts: cp}
	} else {
		user.Content = MessageContent{Text: parts.Text}
	}
	s.messages = append(s.messages, user)
	return s.stream(ctx)
}

// ContinueWithToolResult implements provider.Session. The delegation outcome
// is folded back as a tool-role message keyed by the tool call id.
func (s *session) ContinueWithToolResult(ctx context.Context, call provider.ToolCall, result string) (<-chan provider.TurnEvent, <-chan error) {
	s.messages = append(s.messages, Message{
		Role:       "tool",
		Content:    MessageContent{Text: result},
		ToolCallID: call.ID,
	})
	return s.stream(ctx)
}

func (s *session) stream(ctx context.Context) (<-chan provider.TurnEvent, <-chan error) {
	events := make(chan provider.TurnEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)

		params := s.buildParams()
		stream := s.p.client.Chat.Completions.NewStreaming(ctx, params)

		var textBuilder strings.Builder
		arena := newToolCallArena()

		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					textBuilder.WriteString(ch.Delta.Content)
					events <- provider.TurnEvent{TextDelta: ch.Delta.Content}
				}
				for _, tc := range ch.Delta.ToolCalls {
					arena.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
				}
			}
		}
		if err := stream.Err(); err != nil {
			s.messages = s.messages[:s.turnStart]
			errCh <- &provider.Error{Provider: ProviderID, Err: err}
			return
		}

		reply := Message{Role: "assistant", Content: MessageContent{Text: textBuilder.String()}}
		call := arena.first()
		if call != nil {
			// Only the first tool call is honored and recorded.
			reply.ToolCalls = []ToolCallRef{{ID: call.ID, Name: call.Name, Arguments: call.Arguments}}
		}
		s.messages = append(s.messages, reply)
		if call != nil {
			events <- provider.TurnEvent{ToolCall: call}
		}
	}()

	return events, errCh
}

// ExportHistory implements provider.Session.
func (s *session) ExportHistory() (json.RawMessage, error) {
	return json.Marshal(s.messages)
}

// buildParams converts the stored transcript into SDK chat messages and
// attaches tool definitions.
func (s *session) buildParams() openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(s.messages))
	for _, m := range s.messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content.Display()))
		case "user":
			if m.Content.Parts != nil {
				parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Content.Parts))
				for _, p := range m.Content.Parts {
					switch p.Type {
					case "text":
						parts = append(parts, openai.TextContentPart(p.Text))
					case "image_url":
						parts = append(parts, openai.ImageContentPart(
							openai.ChatCompletionContentPartImageImageURLParam{URL: p.URL},
						))
					}
				}
				messages = append(messages, openai.UserMessage(parts))
				continue
			}
			messages = append(messages, openai.UserMessage(m.Content.Text))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(m.Content.Display()))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case "tool":
			messages = append(messages, openai.ToolMessage(m.Content.Display(), m.ToolCallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               s.p.opts.Model,
		Temperature:         openai.Float(s.p.opts.Temperature),
		MaxCompletionTokens: openai.Int(s.p.opts.MaxCompletionTokens),
	}
	if len(s.tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(s.tools))
	for i, spec := range s.tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  spec.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// toolCallArena collects in-progress tool calls keyed by stream index.
// Argument fragments are concatenated per index and parsed only by consumers
// after finalization.
type toolCallArena struct {
	calls      map[int64]*aggCall
	firstIndex int64
	seen       bool
}

func newToolCallArena() *toolCallArena {
	return &toolCallArena{calls: map[int64]*aggCall{}}
}

func (a *toolCallArena) add(index int64, id, name, argsFragment string) {
	ac, ok := a.calls[index]
	if !ok {
		ac = &aggCall{}
		a.calls[index] = ac
		if !a.seen {
			a.firstIndex = index
			a.seen = true
		}
	}
	if id != "" {
		ac.id = id
	}
	if name != "" {
		ac.name = name
	}
	ac.args += argsFragment
}

// first returns the first tool call seen in the stream, or nil.
func (a *toolCallArena) first() *provider.ToolCall {
	if !a.seen {
		return nil
	}
	ac := a.calls[a.firstIndex]
	args := ac.args
	if args == "" {
		args = "{}"
	}
	return &provider.ToolCall{ID: ac.id, Name: ac.name, Arguments: args}
}
