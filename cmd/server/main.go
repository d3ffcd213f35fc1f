// mailpilot - conversational email assistant server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/mailpilot/internal/api"
	"github.com/ashureev/mailpilot/internal/config"
	"github.com/ashureev/mailpilot/internal/contacts"
	"github.com/ashureev/mailpilot/internal/credential"
	"github.com/ashureev/mailpilot/internal/generator"
	"github.com/ashureev/mailpilot/internal/identity"
	"github.com/ashureev/mailpilot/internal/llm"
	"github.com/ashureev/mailpilot/internal/mailprovider"
	"github.com/ashureev/mailpilot/internal/mediator"
	"github.com/ashureev/mailpilot/internal/middleware"
	"github.com/ashureev/mailpilot/internal/observability"
	"github.com/ashureev/mailpilot/internal/scheduler"
	"github.com/ashureev/mailpilot/internal/store"
	"github.com/ashureev/mailpilot/internal/transcribe"
	"github.com/ashureev/mailpilot/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	key, err := credential.LoadKey(credential.KeySource{
		EnvKey:          cfg.Credential.Key,
		KeyringDir:      cfg.Credential.KeyringDir,
		KeyringPassword: cfg.Credential.KeyringPassword,
		FileOnly:        cfg.Credential.KeyringPassword != "",
	})
	if err != nil {
		slog.Error("Failed to load credential key", "error", err)
		os.Exit(1)
	}
	sealer, err := credential.NewSealer(key)
	if err != nil {
		slog.Error("Failed to initialize credential sealer", "error", err)
		os.Exit(1)
	}

	llmCfg := llm.DefaultConfig()
	llmCfg.APIKey = cfg.LLM.APIKey
	llmCfg.BaseURL = cfg.LLM.BaseURL
	llmCfg.Model = cfg.LLM.Model
	completer, err := llm.NewOpenAIClient(llmCfg, logger)
	if err != nil {
		slog.Error("Failed to initialize language model client", "error", err)
		os.Exit(1)
	}

	trCfg := transcribe.DefaultConfig()
	trCfg.APIKey = cfg.LLM.APIKey
	trCfg.BaseURL = cfg.LLM.BaseURL
	trCfg.Model = cfg.LLM.TranscribeModel
	transcriber, err := transcribe.NewOpenAITranscriber(trCfg, logger)
	if err != nil {
		slog.Error("Failed to initialize transcription client", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize services.
	med := mediator.New(completer, repo, mediator.Config{
		SessionTTL:  cfg.Mediator.SessionTTL,
		MaxSessions: cfg.Mediator.MaxSessions,
		MaxTurns:    cfg.Mediator.MaxTurns,
	}, logger)
	med.Start(ctx)
	mediator.StartTTLWorker(ctx, repo, cfg.Mediator.SessionTTL)
	slog.Info("Mediator started", "session_ttl", cfg.Mediator.SessionTTL)

	gen := generator.New(completer, generator.Config{
		SessionTTL:  cfg.Mediator.SessionTTL,
		MaxSessions: cfg.Mediator.MaxSessions,
		MaxTurns:    cfg.Mediator.MaxTurns,
	}, logger)
	gen.Start(ctx)

	deps := api.Deps{
		Auth:        repo,
		Pinger:      repo,
		Sealer:      sealer,
		Mediator:    med,
		Generator:   gen,
		Summarizer:  generator.NewSummarizer(completer),
		Transcriber: transcriber,
		FrontendURL: cfg.FrontendURL,
		Logger:      logger,
	}

	var (
		searcher contacts.ContactSearcher
		sender   scheduler.DraftSender
	)
	if cfg.GoogleEnabled() {
		gmail := mailprovider.NewGmail(mailprovider.GmailConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		}, logger)
		deps.Provider = gmail
		searcher = gmail
		sender = gmail
	} else {
		slog.Warn("Google OAuth not configured, mailbox features disabled")
	}

	sched := scheduler.New(repo, sender, sealer, scheduler.Config{
		PollInterval: cfg.Scheduler.PollInterval,
		TaskTimeout:  cfg.Scheduler.TaskTimeout,
	}, logger)
	if sender != nil {
		sched.Start(ctx)
		defer sched.Stop()
	}
	deps.Scheduler = sched
	deps.Contacts = contacts.NewService(repo, searcher, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimit, time.Minute)
	limiter.StartEviction(ctx)

	handler := api.NewHandler(deps)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	origins := []string{"*"}
	if cfg.FrontendURL != "" {
		origins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(origins))

	r.Handle("/metrics", observability.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(cfg.RequestTimeout))
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		handler.RegisterRoutes(r, middleware.RateLimit(limiter, func(req *http.Request) string {
			return identity.SessionIDFromContext(req.Context())
		}))
	})

	// Serve embedded frontend (SPA catch-all).
	if cfg.ServeFrontend {
		r.Handle("/*", web.SPAHandler())
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
