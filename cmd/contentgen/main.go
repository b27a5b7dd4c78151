package main

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/contentgen/config"
	"github.com/vnmchuo/contentgen/internal/api"
	"github.com/vnmchuo/contentgen/internal/app"
	"github.com/vnmchuo/contentgen/internal/auth"
	"github.com/vnmchuo/contentgen/internal/billing"
	"github.com/vnmchuo/contentgen/internal/catalog"
	"github.com/vnmchuo/contentgen/internal/generator"
	"github.com/vnmchuo/contentgen/internal/media"
	"github.com/vnmchuo/contentgen/internal/seeder"
	"github.com/vnmchuo/contentgen/internal/store"
	"github.com/vnmchuo/contentgen/internal/telemetry"
	"github.com/vnmchuo/contentgen/internal/worker"
	"github.com/vnmchuo/contentgen/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()
	log.SetDefault(logger)

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("contentgen", cfg)
	if err != nil {
		fatal("failed to init tracer", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		fatal("failed to connect postgres", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		fatal("failed to ping postgres", err)
	}
	log.Info("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		fatal("failed to ping redis", err)
	}
	log.Info("Redis connected")

	// 5. Init content store
	contentStore := store.NewPostgresStore(pool)
	if err := contentStore.EnsureSchema(ctx); err != nil {
		fatal("failed to apply content schema", err)
	}

	// 6. Init auth, billing and rate limiter
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb)
	billingStore := billing.NewPostgresStore(pool)
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitRPM)

	// 7. Init model catalog
	models, err := catalog.Load(cfg.ModelsFile)
	if err != nil {
		fatal("failed to load model catalog", err)
	}
	models.DefaultText = cfg.DefaultTextModel
	models.DefaultImage = cfg.DefaultImageModel

	// 8. Init media storage
	storage := app.Media(cfg)

	// 9. Init generator and run manager
	tracer := otel.GetTracerProvider().Tracer("contentgen")
	gen := generator.New(generator.Options{
		Settings:  app.Settings(cfg),
		Factories: app.Factories(cfg),
		Store:     contentStore,
		Media:     storage,
		Usage:     billingStore,
		Tracer:    tracer,
		Logger:    logger,
	})
	runs := worker.NewManager(gen, logger)

	// 10. Init handler
	handler := api.NewHandler(gen, runs, models, billingStore, limiter, tracer, logger)

	// 11. Seed test API key and default category if RUN_SEED=true
	if cfg.RunSeed {
		seeder.SeedTestAPIKey(ctx, authStore)
		if err := seeder.SeedDefaultCategory(ctx, contentStore); err != nil {
			fatal("failed to seed default category", err)
		}
	}

	// 12. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"contentgen"}`))
	})

	if fs, ok := storage.(*media.FSStorage); ok {
		prefix := strings.TrimSuffix(cfg.MediaBaseURL, "/")
		if strings.HasPrefix(prefix, "/") {
			r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(fs.Dir()))))
		}
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		handler.Mount(r)
	})

	// 13. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.TextTimeout + cfg.ImageSubmitTimeout + cfg.PollDeadline + cfg.DownloadTimeout,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("contentgen starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	<-quit
	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	if err := runs.Shutdown(shutdownCtx); err != nil {
		log.Error("runs did not stop in time", "error", err)
	}
	if err := gen.Shutdown(shutdownCtx); err != nil {
		log.Error("usage logs did not flush in time", "error", err)
	}
	log.Info("Server stopped")
}

func fatal(msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
