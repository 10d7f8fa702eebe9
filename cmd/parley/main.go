// Command parley is an interactive multi-persona chat console. One session
// exists per (provider, persona) pair; switching pairs restores the persisted
// transcript, and a leading @AgentName routes input to a one-off delegation.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parleychat/parley"
	"github.com/parleychat/parley/chat"
	"github.com/parleychat/parley/config"
	"github.com/parleychat/parley/history"
	"github.com/parleychat/parley/logging"
	"github.com/parleychat/parley/provider"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "parley",
		Short:         "Multi-persona chat console with agent-to-agent delegation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			providerID, _ := cmd.Flags().GetString("provider")
			personaKey, _ := cmd.Flags().GetString("persona")
			return run(cmd.Context(), cfg, providerID, personaKey)
		},
	}

	flags := cmd.Flags()
	flags.String("provider", "", "provider to start with (gemini, openai, anthropic)")
	flags.String("persona", "", "persona to start with")
	flags.String("personas", "", "path to a YAML persona catalog")
	flags.String("history", "", "path to the SQLite history database")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	cobra.CheckErr(v.BindPFlag("persona_catalog", flags.Lookup("personas")))
	cobra.CheckErr(v.BindPFlag("history_path", flags.Lookup("history")))
	cobra.CheckErr(v.BindPFlag("log_level", flags.Lookup("log-level")))
	cobra.CheckErr(v.BindPFlag("log_format", flags.Lookup("log-format")))

	return cmd
}

func run(ctx context.Context, cfg *config.Config, providerID, personaKey string) error {
	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, false)

	app, err := parley.New(ctx, cfg, func(o *parley.Options) {
		o.Logger = logger.WithComponent("parley")
	})
	if err != nil {
		return err
	}
	defer app.Close()

	if providerID == "" {
		providerID = app.ProviderIDs()[0]
	}
	if personaKey == "" {
		personaKey = app.Registry().BaseKey()
	}

	active, prior, err := app.Chat().Activate(ctx, providerID, personaKey)
	if err != nil {
		return err
	}
	fmt.Printf("parley [%s / %s] (/help for commands)\n", providerID, active.Persona.Name)
	renderTranscript(prior)

	var attachment *provider.Attachment
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		prompt := active.Persona.Name
		if attachment != nil {
			prompt += " [+attachment]"
		}
		fmt.Printf("%s> ", prompt)
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" && attachment == nil {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleCommand(ctx, app, &active, &attachment, line)
			if err != nil {
				fmt.Println("Error:", err)
			}
			if quit {
				return nil
			}
			continue
		}

		out, err := app.Chat().HandleInput(ctx, line, attachment, func(delta string) {
			fmt.Print(delta)
		})
		attachment = nil
		if err != nil {
			fmt.Println("\nError:", err)
			continue
		}
		if out.Kind == chat.OutcomeOneOff {
			fmt.Println(out.Text)
			continue
		}
		fmt.Println()
	}
}

// handleCommand serves slash commands. It reports whether the REPL should
// exit.
func handleCommand(ctx context.Context, app *parley.App, active **chat.ActiveSession, attachment **provider.Attachment, line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Println(`  /switch [provider] [persona]  switch the active session
  /personas                     list the persona catalog
  /providers                    list enabled providers
  /attach <path>                stage a file for the next message
  /clear                        delete the active session's history
  /quit                         exit`)
		return false, nil

	case "/personas":
		for _, p := range app.Registry().All() {
			marker := " "
			if p.Key == (*active).Persona.Key {
				marker = "*"
			}
			role := p.Role
			if p.IsBase() {
				role += " (base)"
			}
			fmt.Printf("%s %-10s %s\n", marker, p.Name, role)
		}
		return false, nil

	case "/providers":
		for _, id := range app.ProviderIDs() {
			marker := " "
			if id == (*active).Provider.ID() {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, id)
		}
		return false, nil

	case "/switch":
		providerID := (*active).Provider.ID()
		personaKey := (*active).Persona.Key
		for _, arg := range fields[1:] {
			if contains(app.ProviderIDs(), arg) {
				providerID = arg
			} else if p, ok := app.Registry().ByName(arg); ok {
				personaKey = p.Key
			} else {
				return false, fmt.Errorf("unknown provider or persona %q", arg)
			}
		}
		next, prior, err := app.Chat().Activate(ctx, providerID, personaKey)
		if err != nil {
			return false, err
		}
		*active = next
		fmt.Printf("switched to %s / %s\n", providerID, next.Persona.Name)
		renderTranscript(prior)
		return false, nil

	case "/attach":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /attach <path>")
		}
		att, err := loadAttachment(fields[1])
		if err != nil {
			return false, err
		}
		*attachment = att
		fmt.Println("attachment staged:", fields[1])
		return false, nil

	case "/clear":
		if err := app.Chat().Clear(ctx); err != nil {
			return false, err
		}
		fmt.Println("history cleared")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// loadAttachment reads a file and stages it as a base64 attachment with a
// MIME type guessed from the extension.
func loadAttachment(path string) (*provider.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mimeType := "application/octet-stream"
	switch strings.ToLower(strings.TrimPrefix(lastExt(path), ".")) {
	case "png":
		mimeType = "image/png"
	case "jpg", "jpeg":
		mimeType = "image/jpeg"
	case "gif":
		mimeType = "image/gif"
	case "webp":
		mimeType = "image/webp"
	case "pdf":
		mimeType = "application/pdf"
	}
	return &provider.Attachment{
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

func lastExt(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}

// renderTranscript prints a restored transcript, branching on its native
// shape.
func renderTranscript(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	switch history.DetectShape(raw) {
	case history.ShapeTurnBased:
		var messages []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		}
		if err := json.Unmarshal(raw, &messages); err != nil {
			return
		}
		for _, m := range messages {
			var b strings.Builder
			for _, p := range m.Parts {
				b.WriteString(p.Text)
			}
			printEntry(m.Role, b.String())
		}

	case history.ShapeRoleContent:
		var messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(raw, &messages); err != nil {
			return
		}
		for _, m := range messages {
			if m.Role == "system" || m.Role == "tool" {
				continue
			}
			printEntry(m.Role, contentText(m.Content))
		}
	}
}

// contentText extracts display text from a role-content message body: a JSON
// string, or an array of typed parts (text blocks only).
func contentText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func printEntry(role, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	label := "you"
	if role == "model" || role == "assistant" {
		label = "assistant"
	}
	fmt.Printf("%s: %s\n", label, text)
}
