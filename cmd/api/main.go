//	@title			Dropzone API
//	@version		1.0
//	@description	File upload backend: upload queue, namespaced object storage and edge functions.
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/radif/dropzone/internal/cache"
	"github.com/radif/dropzone/internal/config"
	"github.com/radif/dropzone/internal/db"
	"github.com/radif/dropzone/internal/functions"
	"github.com/radif/dropzone/internal/gateway"
	"github.com/radif/dropzone/internal/logger"
	appMiddleware "github.com/radif/dropzone/internal/middleware"
	"github.com/radif/dropzone/internal/queue"
	"github.com/radif/dropzone/internal/records"
	"github.com/radif/dropzone/internal/storage"

	_ "github.com/radif/dropzone/docs/swagger"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.AppEnv, cfg.LogLevel)
	log := logger.Log

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("object storage init failed")
	}

	var repo records.Repository = records.NewMemoryRepository()
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database init failed")
		}
		defer pool.Close()
		repo = records.NewPostgresRepository(pool)
	} else {
		log.Warn().Msg("DATABASE_URL not set, upload records are kept in memory")
	}

	listings, err := cache.New(ctx, cache.Config{
		Enabled:  cfg.CacheEnabled,
		RedisURL: cfg.RedisURL,
		TTL:      cfg.CacheTTL,
	})
	if err != nil {
		log.Warn().Err(err).Msg("listing cache disabled")
		listings = cache.NewNoop()
	}

	limits := queue.Limits{MaxFiles: cfg.UploadMaxFiles, MaxSize: cfg.UploadMaxSize}

	// Wire dependencies: store → service → handler
	gw := gateway.NewService(store, repo, listings, gateway.Options{
		MaxSize:     cfg.UploadMaxSize,
		Concurrency: cfg.UploadConcurrency,
	})
	storageHandler := gateway.NewHandler(gw, limits, cfg.StorageFolder)

	queueMgr := queue.NewManager(limits,
		queue.WithTracker(queue.Simulator{Interval: cfg.QueueProgressInterval}),
		queue.OnFilesAdded(func(files []queue.File) {
			log.Info().Int("count", len(files)).Msg("files queued")
		}),
		queue.OnFileRemove(func(id string) {
			log.Info().Str("id", id).Msg("file removed from queue")
		}),
	)
	defer queueMgr.Close()
	queueHandler := queue.NewHandler(queueMgr)

	var mailer functions.Mailer
	if cfg.ResendAPIKey != "" {
		mailer = functions.NewResendMailer(cfg.ResendAPIKey)
	} else {
		log.Warn().Msg("RESEND_API_KEY not set, send-email will fail")
	}
	functionsHandler := functions.NewHandler(mailer, cfg.EmailFrom, cfg.AppEnv)

	// The default namespace is ensured in the background; uploads answer
	// "not ready" until it is.
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := gw.EnsureNamespace(ctx, cfg.StorageNamespace); err != nil {
			log.Error().Err(err).Str("namespace", cfg.StorageNamespace).Msg("default namespace not ready")
		}
	}()

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))
		r.Mount("/", functionsHandler.Routes())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/queue", queueHandler.Routes())

		r.Route("/storage", func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))
			r.Mount("/", storageHandler.Routes())
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Str("storage", cfg.StorageDriver).Msg("server listening")
		log.Info().Msgf("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}
