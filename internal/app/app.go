package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/common"
	"github.com/ternarybob/examforge/internal/interfaces"
	"github.com/ternarybob/examforge/internal/models"
	"github.com/ternarybob/examforge/internal/services/enhancer"
	"github.com/ternarybob/examforge/internal/services/extraction"
	"github.com/ternarybob/examforge/internal/services/llm"
	"github.com/ternarybob/examforge/internal/services/ocr"
	"github.com/ternarybob/examforge/internal/services/pdf"
	"github.com/ternarybob/examforge/internal/services/pipeline"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Document access
	Opener interfaces.PageSourceOpener

	// Generative backends (nil when no key is configured)
	Gemini *llm.GeminiBackend
	Claude *llm.ClaudeBackend
	Router *llm.Router
	Client *llm.FallbackClient

	// Extraction services
	OCREngine     interfaces.OCREngine
	PageExtractor *extraction.PageExtractor
	Direct        *extraction.DirectExtractor
	Enhancer      *enhancer.Enhancer
	Orchestrator  *pipeline.Orchestrator
}

// New initializes the application. Missing API keys are not an error: the pipeline
// then runs on the pattern extractor alone.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	app.Opener = pdf.NewOpener(logger)

	if err := app.initLLM(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize LLM backends: %w", err)
	}

	app.initServices()

	logger.Info().
		Bool("gemini", app.Gemini != nil).
		Bool("claude", app.Claude != nil).
		Bool("ocr_enabled", cfg.OCR.Enabled).
		Strs("models", cfg.LLM.Models).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initLLM(ctx context.Context) error {
	if key, err := common.ResolveAPIKey("gemini_api_key", a.Config.Gemini.APIKey); err == nil {
		gemini, err := llm.NewGeminiBackend(ctx, key, a.Config.Gemini.Temperature, a.Logger)
		if err != nil {
			return err
		}
		a.Gemini = gemini
	} else {
		a.Logger.Debug().Msg("Gemini API key not configured")
	}

	if key, err := common.ResolveAPIKey("anthropic_api_key", a.Config.Claude.APIKey); err == nil {
		claude, err := llm.NewClaudeBackend(key, a.Config.Claude.MaxTokens, a.Config.Claude.Temperature, a.Logger)
		if err != nil {
			return err
		}
		a.Claude = claude
	} else {
		a.Logger.Debug().Msg("Claude API key not configured")
	}

	a.Router = llm.NewRouter(llm.ProviderType(a.Config.LLM.DefaultProvider), a.Logger)
	if a.Gemini != nil {
		a.Router.Register(llm.ProviderGemini, a.Gemini)
	}
	if a.Claude != nil {
		a.Router.Register(llm.ProviderClaude, a.Claude)
	}

	a.Client = llm.NewFallbackClient(a.Router, a.Config.LLM.Models, a.Logger,
		llm.WithMaxRetries(a.Config.LLM.MaxRetries),
		llm.WithMinInterval(common.ParseDurationOr(a.Config.Gemini.RateLimit, 0)),
	)
	return nil
}

func (a *App) initServices() {
	cfg := a.Config

	// extractor stays a nil interface when no backend is registered
	var extractor interfaces.Extractor
	if a.Router.HasBackends() {
		extractor = a.Client
	}

	if cfg.OCR.Enabled {
		a.OCREngine = ocr.NewTesseractEngine(a.Logger)
	}

	a.PageExtractor = extraction.NewPageExtractor(extractor, a.OCREngine, extraction.Options{
		Languages:   cfg.OCR.Languages,
		RenderScale: cfg.Extraction.RenderScale,
		MinOCRWidth: cfg.OCR.MinWidth,
	}, a.Logger)

	var store interfaces.FileStore
	if a.Gemini != nil {
		store = a.Gemini
	}
	a.Direct = extraction.NewDirectExtractor(store, extractor,
		common.ParseDurationOr(cfg.Extraction.PollInterval, extraction.DefaultPollInterval),
		common.ParseDurationOr(cfg.Extraction.DirectTimeout, extraction.DefaultDirectTimeout),
		a.Logger,
	).WithMaxPolls(cfg.Extraction.MaxPolls)

	a.Enhancer = enhancer.NewEnhancer(extractor,
		common.ParseDurationOr(cfg.Extraction.EnhancePause, enhancer.DefaultPause),
		a.Logger,
	)

	a.Orchestrator = pipeline.NewOrchestrator(a.Opener, a.PageExtractor, a.Direct, a.Enhancer, a.Client, a.Logger)
}

// Run executes one pipeline request
func (a *App) Run(ctx context.Context, req pipeline.Request, progress chan<- models.ProgressEvent) (*models.RunResult, error) {
	started := time.Now()
	result, err := a.Orchestrator.Run(ctx, req, progress)
	a.Logger.Info().
		Str("file", req.Filename).
		Dur("duration", time.Since(started)).
		Bool("failed", err != nil).
		Msg("Extraction run finished")
	return result, err
}

// HasBackend reports whether any generative backend is configured
func (a *App) HasBackend() bool {
	return a.Router != nil && a.Router.HasBackends()
}

// Close releases application resources
func (a *App) Close() error {
	a.Logger.Debug().Msg("Application closed")
	return nil
}
