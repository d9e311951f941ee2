package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/loveucifer/visceral/internal/agent"
	"github.com/loveucifer/visceral/internal/api"
	"github.com/loveucifer/visceral/internal/cache"
	"github.com/loveucifer/visceral/internal/config"
	"github.com/loveucifer/visceral/internal/domain"
	"github.com/loveucifer/visceral/internal/health"
	"github.com/loveucifer/visceral/internal/llm"
	"github.com/loveucifer/visceral/internal/matcher"
	"github.com/loveucifer/visceral/internal/repository"
	"github.com/loveucifer/visceral/internal/scoring"
	"github.com/loveucifer/visceral/internal/storage"
	"github.com/loveucifer/visceral/internal/synth"
)

func main() {
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	flag.Parse()

	if *healthCheck {
		performHealthCheck()
		return
	}

	setupLogger()

	log.Info().Msg("Visceral agent service starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create required directories")
	}

	logStartupConfig(cfg)

	store := storage.NewFileStore(cfg.Storage.RulesFile)

	scorer := scoring.NewUpdater(scoring.Policy{
		MinScore:  cfg.Scoring.MinScore,
		MaxScore:  cfg.Scoring.MaxScore,
		Baseline:  cfg.Scoring.Baseline,
		Increment: cfg.Scoring.Increment,
		Decrement: cfg.Scoring.Decrement,
	})

	ruleMatcher := matcher.NewMatcher()

	repo := repository.NewRepository(store, ruleMatcher, scorer)

	ctx := context.Background()
	if err := repo.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load rules")
	}
	log.Info().Int("rule_count", repo.Count()).Msg("Rule collection loaded")

	lruCache := cache.NewLRUCache(cfg.Cache.MaxSize)

	model := buildLanguageModel(cfg)

	synthesizer := synth.NewSynthesizer(model, repo, scorer, cfg.Synthesis.MaxAttempts)

	controller := agent.NewController(repo, ruleMatcher, scorer, synthesizer, model, lruCache)

	if cfg.Synthesis.SeedRule {
		if err := controller.Bootstrap(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed default rule")
		}
	}

	validator := domain.NewValidator()

	healthChecker := health.NewSystemHealthChecker(repo, lruCache)

	routerConfig := api.RouterConfig{
		CORSOrigins:    cfg.Security.CORSOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
		RateLimitRPS:   100,
		RateLimitBurst: 200,
	}

	result := api.SetupRouter(api.RouterDependencies{
		Controller:    controller,
		Repository:    repo,
		Cache:         lruCache,
		Validator:     validator,
		HealthChecker: healthChecker,
	}, routerConfig)
	app := result.App

	app.Server().ReadTimeout = cfg.Server.ReadTimeout
	app.Server().WriteTimeout = cfg.Server.WriteTimeout

	setupGracefulShutdown(app, result.Cleanup)

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().
		Int("port", cfg.Server.Port).
		Str("addr", serverAddr).
		Msg("Starting HTTP server")

	if err := app.Listen(serverAddr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start HTTP server")
	}
}

// buildLanguageModel selects the fallback model client from configuration
func buildLanguageModel(cfg *config.Config) domain.LanguageModel {
	switch cfg.LLM.Provider {
	case "openai":
		log.Info().Str("model", cfg.LLM.Model).Msg("Using OpenAI language model")
		return llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		log.Info().
			Str("model", cfg.LLM.Model).
			Str("base_url", cfg.LLM.BaseURL).
			Msg("Using Ollama language model")
		return llm.NewOllamaClient(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout)
	}
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339

	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if os.Getenv("LOG_FORMAT") == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func logStartupConfig(cfg *config.Config) {
	log.Info().
		Int("server_port", cfg.Server.Port).
		Dur("server_read_timeout", cfg.Server.ReadTimeout).
		Dur("server_write_timeout", cfg.Server.WriteTimeout).
		Int("server_body_limit", cfg.Server.BodyLimit).
		Str("storage_rules_file", cfg.Storage.RulesFile).
		Int("cache_max_size", cfg.Cache.MaxSize).
		Str("llm_provider", cfg.LLM.Provider).
		Str("llm_model", cfg.LLM.Model).
		Dur("llm_timeout", cfg.LLM.Timeout).
		Float64("score_min", cfg.Scoring.MinScore).
		Float64("score_max", cfg.Scoring.MaxScore).
		Float64("score_baseline", cfg.Scoring.Baseline).
		Int("synthesis_max_attempts", cfg.Synthesis.MaxAttempts).
		Strs("security_cors_origins", cfg.Security.CORSOrigins).
		Str("logging_level", cfg.Logging.Level).
		Str("logging_format", cfg.Logging.Format).
		Msg("Configuration loaded successfully")
}

func setupGracefulShutdown(app *fiber.App, cleanup func()) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ctx.Done()
		stop()

		log.Info().Msg("Received shutdown signal, initiating graceful shutdown")

		if cleanup != nil {
			cleanup()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Info().Msg("Stopping HTTP server...")
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error during HTTP server shutdown")
		}

		log.Info().Msg("Graceful shutdown completed")
		os.Exit(0)
	}()
}

func performHealthCheck() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{
		Timeout: 3 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
