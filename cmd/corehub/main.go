// Command corehub is the main entry point for the glasses/TPA connection
// and routing core.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/augmentcore/corehub/internal/collab"
	"github.com/augmentcore/corehub/internal/collab/asr"
	"github.com/augmentcore/corehub/internal/collab/asr/deepgram"
	"github.com/augmentcore/corehub/internal/collab/asr/whisper"
	"github.com/augmentcore/corehub/internal/collab/catalog"
	"github.com/augmentcore/corehub/internal/collab/codec"
	"github.com/augmentcore/corehub/internal/config"
	"github.com/augmentcore/corehub/internal/core/lifecycle"
	"github.com/augmentcore/corehub/internal/core/routing"
	"github.com/augmentcore/corehub/internal/core/session"
	"github.com/augmentcore/corehub/internal/health"
	"github.com/augmentcore/corehub/internal/observe"
	"github.com/augmentcore/corehub/internal/wsfront"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "corehub: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "corehub: %v\n", err)
		}
		return 1
	}

	// ── Logger ───────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("corehub starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "corehub"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer shutdownTelemetry(context.Background())
	metrics := observe.DefaultMetrics()

	// ── Postgres ─────────────────────────────────────────────────────────────
	pool, err := pgxpool.New(ctx, cfg.Catalog.DSN)
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		return 1
	}
	defer pool.Close()

	catalogStore := catalog.New(pool)
	if err := catalogStore.Migrate(ctx); err != nil {
		slog.Error("failed to migrate app catalog", "err", err)
		return 1
	}
	userStore := collab.NewPostgresUserStore(pool)
	if err := userStore.Migrate(ctx); err != nil {
		slog.Error("failed to migrate user store", "err", err)
		return 1
	}

	// ── Transcription backend registry ──────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinASRBackends(reg)

	asrFactory := func() asr.Provider {
		if cfg.ASR.Backend == "" {
			return nil
		}
		provider, err := reg.CreateASR(cfg.ASR)
		if err != nil {
			slog.Warn("asr backend unavailable — sessions will run without transcription", "backend", cfg.ASR.Backend, "err", err)
			return nil
		}
		return provider
	}

	// ── Collaborators ────────────────────────────────────────────────────────
	display := collab.NewLoggingDisplay(logger)
	dashboard := collab.NewLoggingDashboard(logger)
	analytics := collab.NewLoggingAnalytics(logger)
	notifier := wsfront.NewAppStateNotifier(logger)
	webhookClient := lifecycle.NewWebhookClient(cfg.Timeouts.WebhookTimeout, metrics)

	routingEngine := routing.New(logger, metrics, codec.NewPCMConverter())

	registry := session.NewRegistry(logger, func(userID string) *session.Session {
		return session.New(userID, logger, display, dashboard)
	})
	manager := wsfront.NewManager(registry, routingEngine, asrFactory, logger)

	// manager.Submit hands the lifecycle controller's auto-restart timer
	// back to the session's own serial queue, so Start's subscription reads
	// never race a concurrent subscription_update on the same session.
	lc := lifecycle.New(catalogStore, userStore, display, notifier, webhookClient, lifecycle.Config{
		StartWindow:      cfg.Timeouts.TPAStartWindow,
		ReconnectGrace:   cfg.Timeouts.ReconnectGrace,
		AutoRestartDelay: cfg.Timeouts.AutoRestartDelay,
		PublicHost:       cfg.Server.PublicHost,
		InternalHost:     cfg.Server.InternalHost,
	}, manager.Submit, logger)

	glassesAuth := wsfront.NewQueryParamAuthenticator("userId")
	glassesHandler := wsfront.NewGlassesHandler(manager, lc, routingEngine, glassesAuth, analytics, metrics, logger)
	tpaHandler := wsfront.NewTPAHandler(manager, lc, catalogStore, catalogStore, routingEngine, analytics, metrics, logger)

	healthHandler := health.New(health.Checker{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	})

	handler := wsfront.NewServer(glassesHandler, tpaHandler, healthHandler, metrics)

	// ── Hot-reloadable config watcher ────────────────────────────────────────
	// Only the log level is applied without a restart. Heartbeat, timeout, and
	// ASR backend changes are reported and take effect on the next restart;
	// listen address and TLS material are not watched at all.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			levelVar.Set(parseLogLevel(diff.NewLogLevel))
			slog.Info("log level reloaded", "level", diff.NewLogLevel)
		}
		if diff.HeartbeatChanged || diff.TimeoutsChanged || diff.ASRChanged {
			slog.Warn("config change requires a restart to take effect",
				"heartbeat_changed", diff.HeartbeatChanged,
				"timeouts_changed", diff.TimeoutsChanged,
				"asr_changed", diff.ASRChanged,
			)
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable — live reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ──────────────────────────────────────────────────────
	printStartupSummary(cfg)

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "listen_addr", cfg.Server.ListenAddr)
		var err error
		if cfg.Server.TLSCertFile != "" {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-serveErr:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Transcription backend wiring ─────────────────────────────────────────────

// registerBuiltinASRBackends registers the transcription provider factories
// corehub ships with.
func registerBuiltinASRBackends(reg *config.Registry) {
	reg.RegisterASR("deepgram", func(cfg config.ASRConfig) (asr.Provider, error) {
		opts := []deepgram.Option{}
		if lang, ok := cfg.Options["language"].(string); ok && lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if model, ok := cfg.Options["model"].(string); ok && model != "" {
			opts = append(opts, deepgram.WithModel(model))
		}
		return deepgram.New(cfg.APIKey, opts...)
	})
	reg.RegisterASR("whisper", func(cfg config.ASRConfig) (asr.Provider, error) {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:8080"
		}
		return whisper.New(baseURL)
	})
	// "fallback" prefers a hosted Deepgram session and drops to a local
	// whisper.cpp server if Deepgram's circuit breaker trips.
	reg.RegisterASR("fallback", func(cfg config.ASRConfig) (asr.Provider, error) {
		primary, err := deepgram.New(cfg.APIKey)
		if err != nil {
			return nil, err
		}
		whisperURL, _ := cfg.Options["whisper_base_url"].(string)
		if whisperURL == "" {
			whisperURL = "http://localhost:8080"
		}
		fallback, err := whisper.New(whisperURL)
		if err != nil {
			return nil, err
		}
		group := asr.NewFallbackProvider(primary, "deepgram")
		group.AddFallback("whisper", fallback)
		return group, nil
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        corehub — startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Printf("║  ASR backend     : %-19s ║\n", valueOr(cfg.ASR.Backend, "(disabled)"))
	fmt.Printf("║  Ping interval   : %-19s ║\n", cfg.Heartbeat.PingInterval)
	fmt.Printf("║  Webhook timeout : %-19s ║\n", cfg.Timeouts.WebhookTimeout)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
