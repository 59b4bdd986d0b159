package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/windfall/lecturelens/internal/client"
	"github.com/windfall/lecturelens/internal/config"
	"github.com/windfall/lecturelens/internal/filestore"
	"github.com/windfall/lecturelens/internal/handler/http"
	"github.com/windfall/lecturelens/internal/logger"
	"github.com/windfall/lecturelens/internal/pipeline"
	"github.com/windfall/lecturelens/internal/resilience"
	"github.com/windfall/lecturelens/internal/server"
	"github.com/windfall/lecturelens/internal/service"
	"github.com/windfall/lecturelens/internal/telemetry"
	"github.com/windfall/lecturelens/internal/validate"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("env", cfg.Environment).Msg("Starting lecturelens")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := telemetry.NewRecorder(log, registry)

	// Initialize clients
	var openaiClient *client.OpenAIClient
	if cfg.OpenAIKey != "" {
		openaiClient = client.NewOpenAIClient(cfg.OpenAIKey).WithModel(cfg.OpenAIModel)
		log.Info().Msg("OpenAI client initialized")
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, skipping OpenAI initialization")
	}

	var geminiClient *client.GeminiClient
	if cfg.GeminiProjectID != "" {
		geminiClient, err = client.NewGeminiClient(ctx, cfg.GeminiProjectID, cfg.GCPLocation)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Gemini client")
		} else {
			log.Info().Msg("Gemini client initialized")
		}
	} else {
		log.Warn().Msg("GEMINI_PROJECT_ID not set, skipping Gemini initialization")
	}

	// Secure temp file store
	store, err := filestore.New(cfg.TempDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize file store")
	}

	// Resilient caller shared by all engine calls
	caller := resilience.NewCaller(resilience.Config{
		CallTimeout:      cfg.ExternalCallTimeout,
		MaxAttempts:      cfg.ExternalMaxAttempts,
		BackoffBase:      cfg.ExternalBackoffBase,
		FailureThreshold: cfg.CircuitFailureThreshold,
		Cooldown:         cfg.CircuitCooldown,
		Window:           cfg.CircuitWindow,
	}, log, recorder)

	// Engines. go-openai satisfies both the transcriber and chat surfaces;
	// Gemini only backs analysis/scoring.
	var chatOpenAI, chatGemini service.ChatClient
	var transcriber service.Transcriber
	if openaiClient != nil {
		chatOpenAI = openaiClient
		transcriber = openaiClient
	}
	if geminiClient != nil {
		chatGemini = geminiClient
	}
	engines := service.NewAnalysisService(transcriber, chatOpenAI, chatGemini, cfg.AIProvider)

	// Pipeline
	validator := validate.New(cfg.UploadMaxBytes, cfg.UploadSniffContent)
	orchestrator := pipeline.NewOrchestrator(validator, store, caller, recorder, engines, engines)

	// Initialize handlers
	healthHandler := http.NewHealthHandler()
	analysisHandler := http.NewAnalysisHandler(log, orchestrator)

	// Initialize HTTP server
	httpServer := server.NewHTTPServer(cfg, log, registry, healthHandler, analysisHandler)

	// Start server
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server error")
			cancel()
		}
	}()

	log.Info().
		Str("http_addr", cfg.HTTPAddress()).
		Msg("Server started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Server stopped")
}
