// Package app wires the application together: Genkit and its provider
// plugin, the embedding index, retrieval, session and conversation-log
// stores, tools, and the agent.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/evapo/evapo/internal/agent"
	"github.com/evapo/evapo/internal/config"
	"github.com/evapo/evapo/internal/convlog"
	"github.com/evapo/evapo/internal/index"
	"github.com/evapo/evapo/internal/log"
	"github.com/evapo/evapo/internal/observability"
	"github.com/evapo/evapo/internal/retrieval"
	"github.com/evapo/evapo/internal/session"
	"github.com/evapo/evapo/internal/tools"
)

// App is the application container. Setup initializes it, Close releases
// everything it owns.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Index    *index.Manager
	Sessions *session.Store
	ConvLog  *convlog.Sink
	Agent    *agent.Agent

	traceShutdown func(context.Context) error
}

// Close releases resources in reverse initialization order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.ConvLog != nil {
		if err := a.ConvLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing conversation log: %w", err))
		}
	}
	if a.traceShutdown != nil {
		if err := a.traceShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Setup initializes the full application. On failure everything already
// initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(ctx); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before Genkit starts creating spans.
	if cfg.Tracing.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Tracing.Environment,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.traceShutdown = shutdown
	}

	g, embedder, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = embedder

	var searcher agent.Searcher
	if cfg.RetrievalEnabled {
		manager := index.NewManager(cfg.IndexPath, cfg.EmbedderModel, logger)
		switch err := manager.Load(); {
		case err == nil:
		case errors.Is(err, index.ErrModelMismatch):
			// Serving results from a differently-embedded index would be
			// silently wrong, so this aborts startup.
			return nil, fmt.Errorf("loading index: %w", err)
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("index snapshot not found, retrieval degraded until ingestion runs",
				"path", cfg.IndexPath)
		default:
			return nil, fmt.Errorf("loading index: %w", err)
		}
		a.Index = manager
		searcher = retrieval.NewRetriever(embedder, manager, cfg.RetrievalTimeout(), logger)
	}

	a.Sessions = session.NewStore()

	sink, err := convlog.Open(cfg.ConvLogPath)
	if err != nil {
		return nil, fmt.Errorf("opening conversation log: %w", err)
	}
	a.ConvLog = sink

	var docSearcher tools.DocSearcher
	if s, ok := searcher.(tools.DocSearcher); ok {
		docSearcher = s
	}
	registered, err := tools.Register(g, tools.NewHandler(docSearcher, logger))
	if err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	ag, err := agent.New(agent.Config{
		Genkit:        g,
		Sessions:      a.Sessions,
		Gate:          retrieval.NewGate(cfg.RetrievalEnabled, cfg.GateKeywords),
		Searcher:      searcher,
		ConvLog:       sink,
		Tools:         registered,
		Logger:        logger,
		ModelName:     qualifiedModelName(cfg),
		MaxToolRounds: cfg.MaxToolRounds,
		ModelTimeout:  cfg.ModelTimeout(),
		TopK:          cfg.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	a.Agent = ag

	return a, nil
}

// provideGenkit initializes Genkit with the configured provider plugin
// and resolves the embedder it registers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, ai.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no auto-discovery; models must be registered up front.
		plugin.DefineModel(g, ollama.ModelDefinition{Name: cfg.ModelName, Type: "chat"}, nil)
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("genkit initialized", "provider", "ollama",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, ollama.Embedder(g, cfg.OllamaHost), nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("genkit initialized", "provider", "gemini", "model", cfg.ModelName)
		return g, googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), nil
	}
}

// qualifiedModelName prefixes the configured model with its provider
// namespace as registered in Genkit.
func qualifiedModelName(cfg *config.Config) string {
	switch cfg.Provider {
	case config.ProviderOllama:
		return "ollama/" + cfg.ModelName
	default:
		return "googleai/" + cfg.ModelName
	}
}
