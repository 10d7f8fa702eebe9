// Package gemini binds the Gemini API (google.golang.org/genai) to the
// provider.Session contract. The native conversation schema is the turn-based
// role/parts form; the system prompt travels out-of-band as session
// configuration, never as a stored message. Function calls arrive as complete
// parts within the stream, so no argument reassembly is needed.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/parleychat/parley/provider"
)

// ProviderID is the stable identifier used in session keys.
const ProviderID = "gemini"

// Options configure the Gemini binding.
type Options struct {
	Model       string
	Temperature float64
}

// Provider wraps a genai client behind the generic provider.Provider interface.
type Provider struct {
	client *genai.Client
	opts   Options
}

// New creates a Gemini provider for the given API key.
func New(ctx context.Context, apiKey string, optFns ...func(o *Options)) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewFromClient(client, optFns...), nil
}

// NewFromClient creates a Gemini provider from an existing client.
func NewFromClient(client *genai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:       "gemini-2.0-flash",
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// ID implements provider.Provider.
func (p *Provider) ID() string { return ProviderID }

// NewSession implements provider.Provider. A prior transcript seeds the
// content list verbatim.
func (p *Provider) NewSession(systemPrompt string, prior json.RawMessage) (provider.Session, error) {
	s := &session{p: p, systemPrompt: systemPrompt}
	if len(prior) > 0 {
		if err := json.Unmarshal(prior, &s.contents); err != nil {
			return nil, fmt.Errorf("seed gemini session: %w", err)
		}
	}
	return s, nil
}

// Complete implements provider.Provider with a single stateless call.
func (p *Provider) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.opts.Model, contents, config)
	if err != nil {
		return "", &provider.Error{Provider: ProviderID, Err: err}
	}
	return resp.Text(), nil
}

type session struct {
	p            *Provider
	systemPrompt string
	contents     []*genai.Content
	tools        []provider.ToolSpec
	turnStart    int
}

// SendTurn implements provider.Session.
func (s *session) SendTurn(ctx context.Context, parts provider.UserParts, tools []provider.ToolSpec) (<-chan provider.TurnEvent, <-chan error) {
	s.turnStart = len(s.contents)
	s.tools = tools

	content := &genai.Content{Role: "user"}
	if parts.Text != "" {
		content.Parts = append(content.Parts, &genai.Part{Text: parts.Text})
	}
	var attachErr error
	if parts.Attachment != nil {
		data, err := base64.StdEncoding.DecodeString(parts.Attachment.Data)
		if err != nil {
			attachErr = fmt.Errorf("decode attachment: %w", err)
		} else {
			content.Parts = append(content.Parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: parts.Attachment.MIMEType, Data: data},
			})
		}
	}
	if attachErr != nil {
		events := make(chan provider.TurnEvent)
		errCh := make(chan error, 1)
		errCh <- attachErr
		close(events)
		close(errCh)
		return events, errCh
	}

	s.contents = append(s.contents, content)
	return s.stream(ctx)
}

// ContinueWithToolResult implements provider.Session. The delegation outcome
// is folded back as a user-role content with a functionResponse part.
func (s *session) ContinueWithToolResult(ctx context.Context, call provider.ToolCall, result string) (<-chan provider.TurnEvent, <-chan error) {
	s.contents = append(s.contents, &genai.Content{
		Role: "user",
		Parts: []*genai.Part{{
			FunctionResponse: &genai.FunctionResponse{
				Name:     call.Name,
				Response: map[string]any{"result": result},
			},
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

		config := &genai.GenerateContentConfig{}
		if s.systemPrompt != "" {
			config.SystemInstruction = genai.NewContentFromText(s.systemPrompt, genai.RoleUser)
		}
		config.Temperature = genai.Ptr(float32(s.p.opts.Temperature))
		if decls := buildDeclarations(s.tools); len(decls) > 0 {
			config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		}

		var textBuilder strings.Builder
		var call *provider.ToolCall
		var callPart *genai.Part

		for chunk, err := range s.p.client.Models.GenerateContentStream(ctx, s.p.opts.Model, s.contents, config) {
			if err != nil {
				s.contents = s.contents[:s.turnStart]
				errCh <- &provider.Error{Provider: ProviderID, Err: err}
				return
			}
			if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
				continue
			}
			for _, part := range chunk.Candidates[0].Content.Parts {
				switch {
				case part.Text != "":
					textBuilder.WriteString(part.Text)
					events <- provider.TurnEvent{TextDelta: part.Text}
				case part.FunctionCall != nil:
					if call != nil {
						continue // only the first call per turn is honored
					}
					args, merr := json.Marshal(part.FunctionCall.Args)
					if merr != nil {
						args = []byte("{}")
					}
					call = &provider.ToolCall{
						Name:      part.FunctionCall.Name,
						Arguments: string(args),
					}
					callPart = &genai.Part{FunctionCall: part.FunctionCall}
				}
			}
		}

		reply := &genai.Content{Role: "model"}
		if textBuilder.Len() > 0 {
			reply.Parts = append(reply.Parts, &genai.Part{Text: textBuilder.String()})
		}
		if callPart != nil {
			reply.Parts = append(reply.Parts, callPart)
		}
		if len(reply.Parts) > 0 {
			s.contents = append(s.contents, reply)
		}
		if call != nil {
			events <- provider.TurnEvent{ToolCall: call}
		}
	}()

	return events, errCh
}

// ExportHistory implements provider.Session.
func (s *session) ExportHistory() (json.RawMessage, error) {
	if len(s.contents) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(s.contents)
}

func buildDeclarations(tools []provider.ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaFromMap(t.Parameters),
		})
	}
	return decls
}

// schemaFromMap converts the minimal JSON Schema subset carried by ToolSpec
// into the genai schema type.
func schemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		switch t {
		case "object":
			s.Type = genai.TypeObject
		case "string":
			s.Type = genai.TypeString
		case "number":
			s.Type = genai.TypeNumber
		case "integer":
			s.Type = genai.TypeInteger
		case "boolean":
			s.Type = genai.TypeBoolean
		case "array":
			s.Type = genai.TypeArray
		}
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, v := range props {
			if pm, ok := v.(map[string]any); ok {
				s.Properties[name] = schemaFromMap(pm)
			}
		}
	}
	s.Required = stringSlice(m["required"])
	s.Enum = stringSlice(m["enum"])
	return s
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
