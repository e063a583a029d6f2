// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fotopro/fotopro/internal/api"
	"github.com/fotopro/fotopro/internal/auth"
	"github.com/fotopro/fotopro/internal/config"
	"github.com/fotopro/fotopro/internal/db"
	"github.com/fotopro/fotopro/internal/event"
	"github.com/fotopro/fotopro/internal/facematch"
	"github.com/fotopro/fotopro/internal/health"
	"github.com/fotopro/fotopro/internal/image"
	"github.com/fotopro/fotopro/internal/middleware"
	"github.com/fotopro/fotopro/internal/payment"
	"github.com/fotopro/fotopro/internal/photo"
	"github.com/fotopro/fotopro/internal/selection"
	"github.com/fotopro/fotopro/internal/staging"
	"github.com/fotopro/fotopro/internal/storage"
)

const stagingPurgeInterval = 10 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Fotopro API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := make([]any, 0)
	for key, val := range cfg.LogSummary() {
		summary = append(summary, key, val)
	}
	logger.Info("configuration loaded", summary...)

	registry := prometheus.NewRegistry()
	mwMetrics := middleware.NewMetrics()
	if err := mwMetrics.Register(registry); err != nil {
		logger.Error("failed to register middleware metrics", "error", err)
		os.Exit(1)
	}
	fmMetrics := facematch.NewMetrics()
	if err := fmMetrics.Register(registry); err != nil {
		logger.Error("failed to register face-match metrics", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Repositories: Postgres when a database is configured, in-memory in
	// development without one.
	var (
		eventRepo     event.Repository
		photoRepo     photo.Repository
		selectionRepo selection.Repository
		paymentRepo   payment.Repository
		dbChecker     api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		eventRepo = event.NewPostgresRepository(conn, logger)
		photoRepo = photo.NewPostgresRepository(conn, logger)
		selectionRepo = selection.NewPostgresRepository(conn, logger)
		paymentRepo = payment.NewPostgresRepository(conn, logger)
		dbChecker = health.NewDBChecker(conn)
	} else {
		logger.Warn("no database configured, using in-memory repositories")
		memPhotos := photo.NewInMemoryRepository()
		memEvents := event.NewInMemoryRepository()
		memEvents.HasPhotos = func(eventID string) bool {
			n, err := memPhotos.CountByEvent(ctx, eventID)
			return err == nil && n > 0
		}
		eventRepo = memEvents
		photoRepo = memPhotos
		selectionRepo = selection.NewInMemoryRepository()
		paymentRepo = payment.NewInMemoryRepository()
	}

	// Redis backs the rate limiter when configured; the in-process store
	// covers single-instance deploys.
	var (
		rateLimitStore middleware.RateLimitStore
		memStore       *middleware.InMemoryRateLimitStore
		redisChecker   api.HealthChecker
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient, mwMetrics, logger)
		redisChecker = health.NewRedisChecker(redisClient)
	} else {
		memStore = middleware.NewInMemoryRateLimitStore()
		rateLimitStore = memStore
	}

	// Object storage for photos. Optional in development: uploads and
	// face-match candidates are disabled without it.
	var (
		photoStore     api.PhotoStore
		candidateStore staging.CandidateStore
		storageChecker api.HealthChecker
	)
	if cfg.S3BucketName != "" {
		svc, err := storage.NewService(storage.ServiceConfig{
			BucketName:      cfg.S3BucketName,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			MaxSizeMB:       cfg.S3MaxUploadSizeMB,
		})
		if err != nil {
			logger.Error("failed to initialize photo storage", "error", err)
			os.Exit(1)
		}
		photoStore = svc
		storageChecker = svc
		if cfg.StoreSyncEnabled {
			candidateStore = svc
		} else {
			logger.Warn("store sync disabled, face matching has no candidates")
		}
	} else {
		logger.Warn("no object storage configured, photo uploads disabled")
	}

	stagingManager, err := staging.NewManager(cfg.StagingRoot, logger)
	if err != nil {
		logger.Error("failed to initialize selfie staging", "error", err)
		os.Exit(1)
	}

	matchClient := facematch.NewHTTPClient(cfg.FaceMatchURL, time.Duration(cfg.FaceMatchTimeoutSeconds)*time.Second)
	matcher := facematch.NewService(stagingManager, candidateStore, matchClient, photoRepo, fmMetrics, logger)

	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)
	requireAuth := middleware.RequireAuth(jwtService)
	optionalAuth := middleware.OptionalAuth(jwtService)

	eventHandlers := api.NewEventHandlers(eventRepo, logger)
	photoHandlers := api.NewPhotoHandlers(photoRepo, eventRepo, photoStore, image.Process, image.Thumbnail, logger)
	faceMatchHandlers := api.NewFaceMatchHandlers(matcher, eventRepo, logger)
	selectionHandlers := api.NewSelectionHandlers(selectionRepo, eventRepo, photoRepo, logger)
	authHandlers := api.NewAuthHandlers(jwtService, cfg.TokenMintEnabled, logger)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:      dbChecker,
		RedisChecker:   redisChecker,
		StorageChecker: storageChecker,
	})

	faceMatchLimit := middleware.DefaultFaceMatchLimit()
	if cfg.FaceMatchRateLimit > 0 {
		faceMatchLimit.RequestsPerWindow = cfg.FaceMatchRateLimit
	}
	rateLimited := middleware.RateLimiter(rateLimitStore, faceMatchLimit, middleware.UserKeyFunc(), mwMetrics)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"fotopro-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
		api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
	})

	mux.HandleFunc("POST /auth/token", authHandlers.MintToken)

	mux.HandleFunc("GET /events", eventHandlers.ListEvents)
	mux.HandleFunc("GET /events/relevant", eventHandlers.ListRelevantEvents)
	mux.HandleFunc("GET /events/{id}", eventHandlers.GetEvent)
	mux.HandleFunc("POST /events/{id}/access", eventHandlers.VerifyAccess)
	mux.Handle("POST /events", requireAuth(http.HandlerFunc(eventHandlers.CreateEvent)))
	mux.Handle("PUT /events/{id}", requireAuth(http.HandlerFunc(eventHandlers.UpdateEvent)))
	mux.Handle("DELETE /events/{id}", requireAuth(http.HandlerFunc(eventHandlers.DeleteEvent)))

	mux.HandleFunc("GET /events/{id}/photos", photoHandlers.ListPhotos)
	mux.Handle("POST /events/{id}/photos", requireAuth(http.HandlerFunc(photoHandlers.UploadPhotos)))
	mux.Handle("DELETE /events/{id}/photos/{photo_id}", requireAuth(http.HandlerFunc(photoHandlers.DeletePhoto)))

	// Face matching and selection submit are open to anonymous visitors
	// (private events still require the access password). Optional auth runs
	// before the limiter so authenticated clients are limited per user and
	// anonymous ones per IP.
	mux.Handle("POST /events/{id}/face-match", optionalAuth(rateLimited(http.HandlerFunc(faceMatchHandlers.MatchFaces))))

	mux.Handle("POST /events/{id}/selections", optionalAuth(http.HandlerFunc(selectionHandlers.CreateSelection)))
	mux.Handle("GET /events/{id}/selections", requireAuth(http.HandlerFunc(selectionHandlers.ListEventSelections)))
	mux.Handle("GET /selections/{id}", requireAuth(http.HandlerFunc(selectionHandlers.GetSelection)))
	mux.Handle("GET /users/{id}/selections", requireAuth(http.HandlerFunc(selectionHandlers.ListUserSelections)))

	if cfg.StripeAPIKey != "" {
		stripeClient := payment.NewStripeClient(cfg.StripeAPIKey)
		checkoutHandlers := api.NewCheckoutHandlers(stripeClient, paymentRepo, selectionRepo,
			cfg.StripeSuccessURL, cfg.StripeCancelURL, logger)
		webhookHandlers := api.NewWebhookHandlers(cfg.StripeWebhookSecret, paymentRepo, logger)

		mux.Handle("POST /selections/{id}/checkout", requireAuth(http.HandlerFunc(checkoutHandlers.CreateCheckout)))
		mux.HandleFunc("POST /webhooks/stripe", webhookHandlers.HandleStripeWebhook)
	} else {
		logger.Warn("Stripe not configured, checkout routes disabled")
	}

	mux.HandleFunc("GET /health", healthHandlers.Health)
	mux.HandleFunc("GET /ready", healthHandlers.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	corsOrigins := splitAndTrim(cfg.CORSAllowedOrigins)

	// Middleware chain: RequestID -> Logging -> HTTPMetrics -> CORS -> mux
	handler := middleware.RequestID(
		middleware.Logging(logger)(
			middleware.HTTPMetrics(mwMetrics)(
				middleware.CORS(middleware.CORSConfig{
					AllowedOrigins:   corsOrigins,
					AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID", api.EventPasswordHeader},
					AllowCredentials: true,
					MaxAge:           300,
				})(mux))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  60 * time.Second, // uploads can be large
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background maintenance: purge abandoned staging areas and expired
	// rate limit buckets.
	maintenanceCtx, stopMaintenance := context.WithCancel(ctx)
	defer stopMaintenance()
	go func() {
		ticker := time.NewTicker(stagingPurgeInterval)
		defer ticker.Stop()
		maxAge := time.Duration(cfg.StagingMaxAgeMinutes) * time.Minute
		for {
			select {
			case <-maintenanceCtx.Done():
				return
			case <-ticker.C:
				if n := stagingManager.PurgeStale(maxAge); n > 0 {
					logger.Info("purged stale staging areas", "count", n)
				}
			}
		}
	}()
	if memStore != nil {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-maintenanceCtx.Done():
					return
				case <-ticker.C:
					memStore.Cleanup()
				}
			}
		}()
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopMaintenance()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// splitAndTrim splits a comma-separated list, dropping empty entries.
func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
