// Package parley provides a high-level façade over the conversation engine:
// a persona registry, one session per (provider, persona) pair, a streaming
// turn loop with synchronous agent-to-agent delegation, and transcript
// persistence in each provider's native schema. Most applications interact
// with this package by:
//  1. Loading a Config (environment, optionally flags)
//  2. Creating an App via New() (optionally overriding the store or registry)
//  3. Activating a session and submitting turns through the Chat orchestrator
//
// All defaults are safe for local use; the in-memory store is selected when
// no history path is configured.
package parley

import (
	"context"
	"fmt"
	"io"

	"github.com/parleychat/parley/chat"
	"github.com/parleychat/parley/config"
	"github.com/parleychat/parley/history"
	"github.com/parleychat/parley/logging"
	"github.com/parleychat/parley/persona"
	"github.com/parleychat/parley/provider"
	"github.com/parleychat/parley/provider/anthropic"
	"github.com/parleychat/parley/provider/gemini"
	"github.com/parleychat/parley/provider/openai"
)

// Options configures the App.
type Options struct {
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Store overrides the history store selected from the config.
	Store history.Store

	// Registry overrides the persona catalog selected from the config.
	Registry *persona.Registry

	// Providers overrides credential-based provider construction entirely,
	// keyed by provider ID. Mainly for tests.
	Providers map[string]provider.Provider
}

// App is the high-level façade aggregating the registry, providers, store and
// orchestrator.
type App struct {
	cfg      *config.Config
	registry *persona.Registry
	store    history.Store
	chat     *chat.Orchestrator
	logger   logging.Logger

	providers map[string]provider.Provider
}

// New creates an App from a config with optional overrides. Each provider
// binding is enabled iff its credential is present; construction fails with a
// ConfigurationError when no provider is usable.
func New(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*App, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := opts.Registry
	if registry == nil {
		var err error
		if cfg.PersonaCatalog != "" {
			registry, err = persona.LoadCatalog(cfg.PersonaCatalog)
		} else {
			registry, err = persona.NewRegistry(persona.DefaultCatalog())
		}
		if err != nil {
			return nil, err
		}
	}

	providers := opts.Providers
	if providers == nil {
		var err error
		providers, err = buildProviders(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	if len(providers) == 0 {
		return nil, &config.ConfigurationError{
			Reason: "no provider API key set (GEMINI_API_KEY, OPENAI_API_KEY or ANTHROPIC_API_KEY)",
		}
	}

	store := opts.Store
	if store == nil {
		if cfg.HistoryPath != "" {
			var err error
			store, err = history.NewSQLiteStore(cfg.HistoryPath)
			if err != nil {
				return nil, fmt.Errorf("open history store: %w", err)
			}
		} else {
			store = history.NewInMemoryStore()
		}
	}

	orch := chat.NewOrchestrator(registry, store, providers, func(o *chat.Options) {
		o.Logger = opts.Logger
	})

	return &App{
		cfg:       cfg,
		registry:  registry,
		store:     store,
		chat:      orch,
		logger:    opts.Logger,
		providers: providers,
	}, nil
}

func buildProviders(ctx context.Context, cfg *config.Config) (map[string]provider.Provider, error) {
	providers := map[string]provider.Provider{}
	if cfg.GeminiAPIKey != "" {
		p, err := gemini.New(ctx, cfg.GeminiAPIKey, func(o *gemini.Options) {
			o.Model = cfg.GeminiModel
		})
		if err != nil {
			return nil, err
		}
		providers[gemini.ProviderID] = p
	}
	if cfg.OpenAIAPIKey != "" {
		providers[openai.ProviderID] = openai.New(cfg.OpenAIAPIKey, func(o *openai.Options) {
			o.Model = cfg.OpenAIModel
		})
	}
	if cfg.AnthropicAPIKey != "" {
		providers[anthropic.ProviderID] = anthropic.New(cfg.AnthropicAPIKey, func(o *anthropic.Options) {
			o.Model = cfg.AnthropicModel
		})
	}
	return providers, nil
}

// Chat returns the turn orchestrator.
func (a *App) Chat() *chat.Orchestrator { return a.chat }

// Registry returns the persona registry.
func (a *App) Registry() *persona.Registry { return a.registry }

// ProviderIDs lists the enabled provider IDs in the order they would be
// offered (gemini, openai, anthropic).
func (a *App) ProviderIDs() []string {
	var ids []string
	for _, id := range []string{gemini.ProviderID, openai.ProviderID, anthropic.ProviderID} {
		if _, ok := a.providers[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Close releases the history store if it holds external resources.
func (a *App) Close() error {
	if closer, ok := a.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
