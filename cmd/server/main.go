// @title           FaceTalk Backend API
// @version         1.0.0
// @description     Proxy for Replicate face animation, talking portrait and voice cloning jobs, with per-profile task tracking and a credits ledger.

// @host      localhost:8080
// @BasePath  /api

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the Supabase access token.

package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"facetalk-backend/docs"
	"facetalk-backend/internal/config"
	"facetalk-backend/internal/credits"
	"facetalk-backend/internal/database"
	"facetalk-backend/internal/fingerprint"
	"facetalk-backend/internal/handlers"
	"facetalk-backend/internal/logging"
	"facetalk-backend/internal/middleware"
	"facetalk-backend/internal/ratelimit"
	"facetalk-backend/internal/replicate"
	"facetalk-backend/internal/services"
	"facetalk-backend/internal/supabase"
	"facetalk-backend/internal/tasks"
	"facetalk-backend/internal/telemetry"
)

const rateLimitTTL = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.NewLogger("production")
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logging.NewLogger(cfg.Environment)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Point the Swagger UI at the deployed host
	if cfg.BaseURL != "" {
		if baseURL, err := url.Parse(cfg.BaseURL); err == nil {
			docs.SwaggerInfo.Host = baseURL.Host
			if baseURL.Scheme == "https" {
				docs.SwaggerInfo.Schemes = []string{"https", "http"}
			} else {
				docs.SwaggerInfo.Schemes = []string{"http", "https"}
			}
		}
	}

	if err := cfg.TokenError(); err != nil {
		logger.Warn().Err(err).Msg("Replicate token unusable, generation endpoints will answer 500")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	pingRedis := func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

	taskStore := tasks.NewStore(redisClient)
	replicateClient := replicate.NewClient(cfg.ReplicateAPIBaseURL, cfg.ReplicateAPIToken)

	// Ledger: Postgres when DATABASE_URL is set, in-memory otherwise
	var repo credits.Repository = credits.NewMemoryRepository()
	var pingDatabase handlers.PingFunc
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, credits are kept in memory and lost on restart")
	} else {
		dbClient, err := supabase.NewDatabaseClient(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize database client")
		}
		defer dbClient.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err = database.NewMigrator(dbClient.DB(), logger).Run(migrateCtx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		repo = dbClient
		pingDatabase = dbClient.Ping
	}
	creditService := credits.NewService(repo, logger)

	trackerOpts := []services.TrackerOption{
		services.WithMaxAttempts(cfg.PollMaxAttempts),
		services.WithRecorder(creditService),
	}

	// Supabase is optional: without it outputs keep their Replicate URLs
	var pingSupabase handlers.PingFunc
	var remover handlers.OutputRemover
	if cfg.SupabaseURL != "" {
		supabaseClient, err := supabase.NewClient(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize Supabase client")
		}
		pingSupabase = supabaseClient.Ping

		storageClient, err := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, cfg.SupabaseStorageBucket)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize storage client")
		}
		remover = storageClient
		trackerOpts = append(trackerOpts, services.WithArchiver(storageClient))
	}

	tracker := services.NewTracker(replicateClient, taskStore, logger, trackerOpts...)

	predictionsHandler := handlers.NewPredictionsHandler(cfg, replicateClient, creditService, tracker, logger)
	statusHandler := handlers.NewStatusHandler(cfg, replicateClient)
	envHandler := handlers.NewEnvHandler(cfg, replicateClient, pingDatabase, pingSupabase, pingRedis)
	tasksHandler := handlers.NewTasksHandler(taskStore, remover, logger)
	creditsHandler := handlers.NewCreditsHandler(creditService, cfg.SupabaseJWTSecret, taskStore, logger)
	paymentsHandler := handlers.NewPaymentsHandler(cfg.StripeWebhookSecret, creditService, logger)

	limiter := ratelimit.Middleware(
		ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, rateLimitTTL),
		logger,
	)

	router := gin.New()
	// ClientIP keys the rate limiter, so forwarding headers count only from
	// configured proxies
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Fatal().Err(err).Msg("invalid TRUSTED_PROXIES")
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(telemetry.Handler()))
	router.GET("/health", handlers.HealthHandler)
	router.GET("/ready", handlers.ReadyHandler(pingRedis))

	api := router.Group("/api")
	api.Use(fingerprint.Middleware(cfg.IsProduction()))

	// Webhook (no auth, uses the Stripe signature)
	api.POST("/webhooks/stripe", paymentsHandler.StripeWebhook)
	api.GET("/check-env", envHandler.CheckEnv)

	public := api.Group("")
	public.Use(middleware.OptionalAuth(cfg))

	// Task registry
	public.GET("/tasks", tasksHandler.ListTasks)
	public.GET("/tasks/:id", tasksHandler.GetTask)
	public.DELETE("/tasks/:id", tasksHandler.DeleteTask)
	public.GET("/history", tasksHandler.History)
	public.GET("/last-result/:type", tasksHandler.LastResult)
	public.GET("/device", creditsHandler.Device)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(cfg))

	// Generation proxy, anonymous Supabase sessions included
	proxy := authed.Group("")
	proxy.Use(limiter)
	proxy.POST("/generate-animation", predictionsHandler.GenerateAnimation)
	proxy.POST("/talking-portrait", predictionsHandler.TalkingPortrait)
	proxy.POST("/voice-clone", predictionsHandler.VoiceClone)
	proxy.GET("/check-prediction", statusHandler.CheckPrediction)

	// Credits
	authed.GET("/credits", creditsHandler.GetCredits)
	authed.POST("/credits/deduct", creditsHandler.Deduct)
	authed.GET("/generations", creditsHandler.Generations)
	authed.POST("/account/upgrade", middleware.RequireRegistered(), creditsHandler.UpgradeAccount)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("port", cfg.Port).Str("environment", cfg.Environment).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	shutdown(logger, srv, tracker, cfg.ShutdownTimeout)
}

// shutdown drains HTTP requests first, then stops the pollers.
func shutdown(logger zerolog.Logger, srv *http.Server, tracker *services.Tracker, timeout time.Duration) {
	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	if err := tracker.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("tracker shutdown")
	}
	logger.Info().Msg("server stopped")
}
