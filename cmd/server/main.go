package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/catalog"
	"github.com/schoolcbt/exam-engine/internal/config"
	"github.com/schoolcbt/exam-engine/internal/database"
	"github.com/schoolcbt/exam-engine/internal/examcheck"
	"github.com/schoolcbt/exam-engine/internal/handler"
	"github.com/schoolcbt/exam-engine/internal/heartbeat"
	"github.com/schoolcbt/exam-engine/internal/logger"
	"github.com/schoolcbt/exam-engine/internal/model"
	"github.com/schoolcbt/exam-engine/internal/router"
	"github.com/schoolcbt/exam-engine/internal/session"
	"github.com/schoolcbt/exam-engine/internal/storage"
	"github.com/schoolcbt/exam-engine/internal/submitter"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("storage", cfg.StorageBackend).
		Str("catalog", cfg.CatalogBackend).
		Msg("Starting exam engine")

	// ─── Initialize Validator ──────────────────────────────────────────
	examcheck.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Session Snapshot Store ────────────────────────────────────────
	var kv storage.KV
	switch cfg.StorageBackend {
	case "redis":
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		kv = storage.NewRedis(rdb)
	default:
		fileKV, err := storage.NewFile(cfg.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open data directory")
		}
		kv = fileKV
	}

	// ─── Exam Catalog ──────────────────────────────────────────────────
	var source catalog.Source
	switch cfg.CatalogBackend {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		source = catalog.NewPostgresSource(pool, log)
	default:
		source = catalog.NewFileSource(cfg.ExamDir, log)
	}

	// ─── Result Delivery ───────────────────────────────────────────────
	reporter := heartbeat.New(cfg.HeartbeatURL, log)

	var transport submitter.Transport
	if wt := submitter.NewWebhookTransport(cfg.WebhookURL, nil); wt != nil {
		transport = wt
	}
	sub := submitter.New(log, transport, kv, submitter.Options{
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		OnPendingSyncs: reporter.PendingSyncs,
	})

	// ─── Session Registry ──────────────────────────────────────────────
	registry := session.NewRegistry(kv, session.Deps{
		Log:             log,
		NewSubmissionID: submitter.GenerateSubmissionID,
		Deliver: func(result *model.Result) {
			sub.Submit(context.Background(), result)
		},
		OnActivity: reporter.Activity,
	})

	// ─── Replay Offline Queue ──────────────────────────────────────────
	// Results queued before the last shutdown get one delivery pass as
	// soon as the server is back.
	if cfg.SyncOnBoot {
		go func() {
			time.Sleep(2 * time.Second)
			if n := sub.ProcessQueue(ctx); n > 0 {
				log.Info().Int("delivered", n).Msg("Boot sync delivered queued results")
			}
		}()
	}

	// ─── Initialize Handlers ───────────────────────────────────────────
	handlers := &router.Handlers{
		Catalog: handler.NewCatalogHandler(source),
		Session: handler.NewSessionHandler(registry, source, sub, log),
		WS:      handler.NewWSHandler(registry, log, cfg.AllowedOrigins),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// In-flight deliveries get a moment to finish; anything still pending
	// is queued and replayed on the next boot.
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
