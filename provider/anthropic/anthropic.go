// Package anthropic binds the Anthropic Messages API to the provider.Session
// contract. The native conversation schema is a block form: user/assistant
// messages carrying ordered content blocks (text, image, tool_use,
// tool_result); the system prompt travels out-of-band as a request parameter.
// Tool calls are accumulated by the SDK stream accumulator and surface as
// complete tool_use blocks at stream end.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/parleychat/parley/provider"
)

// ProviderID is the stable identifier used in session keys.
const ProviderID = "anthropic"

// Options configure the Anthropic binding.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Provider wraps the Anthropic Messages API behind the generic
// provider.Provider interface.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// New creates an Anthropic provider for the given API key.
func New(apiKey string, optFns ...func(o *Options)) *Provider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an Anthropic provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:       string(anthropic.ModelClaude3_5Sonnet20241022),
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// ID implements provider.Provider.
func (p *Provider) ID() string { return ProviderID }

// Message is one persisted transcript entry in the block form.
type Message struct {
	Role    string  `json:"role"` // user | assistant
	Content []Block `json:"content"`
}

// Block is one content block of a persisted message.
type Block struct {
	Type string `json:"type"` // text | image | tool_use | tool_result

	// text
	Text string `json:"text,omitempty"`

	// image
	MediaType string `json:"mediaType,omitempty"`
	Data      string `json:"data,omitempty"` // base64

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"toolUseId,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"isError,omitempty"`
}

// NewSession implements provider.Provider. The system prompt stays out-of-band
// on the session; a prior transcript seeds the message list verbatim.
func (p *Provider) NewSession(systemPrompt string, prior json.RawMessage) (provider.Session, error) {
	s := &session{p: p, systemPrompt: systemPrompt}
	if len(prior) > 0 {
		if err := json.Unmarshal(prior, &s.messages); err != nil {
			return nil, fmt.Errorf("seed anthropic session: %w", err)
		}
	}
	return s, nil
}

// Complete implements provider.Provider with a single stateless call.
func (p *Provider) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.opts.Model),
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", &provider.Error{Provider: ProviderID, Err: err}
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	return b.String(), nil
}

type session struct {
	p            *Provider
	systemPrompt string
	messages     []Message
	tools        []provider.ToolSpec
	turnStart    int
}

// SendTurn implements provider.Session.
func (s *session) SendTurn(ctx context.Context, parts provider.UserParts, tools []provider.ToolSpec) (<-chan provider.TurnEvent, <-chan error) {
	s.turnStart = len(s.messages)
	s.tools = tools

	user := Message{Role: "user"}
	if parts.Text != "" {
		user.Content = append(user.Content, Block{Type: "text", Text: parts.Text})
	}
	if parts.Attachment != nil {
		user.Content = append(user.Content, Block{
			Type:      "image",
			MediaType: parts.Attachment.MIMEType,
			Data:      parts.Attachment.Data,
		})
	}
	s.messages = append(s.messages, user)
	return s.stream(ctx)
}

// ContinueWithToolResult implements provider.Session. The delegation outcome
// is folded back as a tool_result block in a user message.
func (s *session) ContinueWithToolResult(ctx context.Context, call provider.ToolCall, result string) (<-chan provider.TurnEvent, <-chan error) {
	s.messages = append(s.messages, Message{
		Role: "user",
		Content: []Block{{
			Type:      "tool_result",
			ToolUseID: call.ID,
			Content:   result,
		}},
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
		stream := s.p.client.Messages.NewStreaming(ctx, params)

		acc := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				s.messages = s.messages[:s.turnStart]
				errCh <- &provider.Error{Provider: ProviderID, Err: err}
				return
			}
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text != "" {
						events <- provider.TurnEvent{TextDelta: delta.Text}
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			s.messages = s.messages[:s.turnStart]
			errCh <- &provider.Error{Provider: ProviderID, Err: err}
			return
		}

		reply := Message{Role: "assistant"}
		var call *provider.ToolCall
		for _, block := range acc.Content {
			switch block.Type {
			case "text":
				text := block.AsText().Text
				if text != "" {
					reply.Content = append(reply.Content, Block{Type: "text", Text: text})
				}
			case "tool_use":
				if call != nil {
					continue // only the first call per turn is honored
				}
				toolBlock := block.AsToolUse()
				args := "{}"
				if argsBytes, merr := json.Marshal(toolBlock.Input); merr == nil {
					args = string(argsBytes)
				}
				reply.Content = append(reply.Content, Block{
					Type:  "tool_use",
					ID:    toolBlock.ID,
					Name:  toolBlock.Name,
					Input: json.RawMessage(args),
				})
				call = &provider.ToolCall{ID: toolBlock.ID, Name: toolBlock.Name, Arguments: args}
			}
		}
		if len(reply.Content) > 0 {
			s.messages = append(s.messages, reply)
		}
		if call != nil {
			events <- provider.TurnEvent{ToolCall: call}
		}
	}()

	return events, errCh
}

// ExportHistory implements provider.Session.
func (s *session) ExportHistory() (json.RawMessage, error) {
	if len(s.messages) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(s.messages)
}

// buildParams converts the stored transcript into Anthropic message params and
// attaches tool definitions.
func (s *session) buildParams() anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(s.messages))
	for _, m := range s.messages {
		content := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case "text":
				content = append(content, anthropic.NewTextBlock(b.Text))
			case "image":
				content = append(content, anthropic.NewImageBlockBase64(b.MediaType, b.Data))
			case "tool_use":
				var input any
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &input); err != nil {
						input = string(b.Input)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case "tool_result":
				content = append(content, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		if len(content) == 0 {
			continue
		}
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(content...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(content...))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(s.p.opts.Model),
		MaxTokens:   s.p.opts.MaxTokens,
		Temperature: anthropic.Float(s.p.opts.Temperature),
		Messages:    messages,
	}
	if s.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: s.systemPrompt}}
	}
	if len(s.tools) > 0 {
		params.Tools = buildTools(s.tools)
	}
	return params
}

// buildTools converts tool specs to the Anthropic tool format.
func buildTools(tools []provider.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, spec := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if spec.Parameters != nil {
			if properties, exists := spec.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := spec.Parameters["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []any:
					for _, r := range req {
						if str, ok := r.(string); ok {
							inputSchema.Required = append(inputSchema.Required, str)
						}
					}
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, spec.Name)
	}
	return out
}
