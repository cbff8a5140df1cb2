package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fictures-server/internal/app"
	"fictures-server/internal/auth"
	"fictures-server/internal/config"
	"fictures-server/internal/database"
	"fictures-server/internal/handler"
	"fictures-server/internal/messaging"
	"fictures-server/pkg/logger"
	"fictures-server/pkg/middleware"
	"fictures-server/pkg/migration"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	// .env нужен только локально
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)
	cfg.LogSummary(log)

	// --- External Connections ---
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := migration.NewMigrator(database.MigrationConfig(), pool, log).Up(); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	redisClient, err := setupRedis(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	var publisher messaging.NotificationPublisher = messaging.NoopPublisher{}
	if cfg.RabbitMQURL != "" {
		mqConn, err := connectRabbitMQ(ctx, cfg.RabbitMQURL, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mqConn.Close()
		rabbitPublisher, err := messaging.NewRabbitMQNotificationPublisher(mqConn, cfg.NotificationQueue, log)
		if err != nil {
			log.Fatal("Failed to create notification publisher", zap.Error(err))
		}
		defer rabbitPublisher.Close()
		publisher = rabbitPublisher
	} else {
		log.Warn("RABBITMQ_URL is empty, pipeline notifications are disabled")
	}

	// --- Dependency Injection ---
	runStore := database.NewRedisRunStore(redisClient, cfg.RunStateTTL, log)
	components, err := app.Build(ctx, cfg, pool, runStore, publisher, log)
	if err != nil {
		log.Fatal("Failed to build application", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(components.APIKeys, cfg.AuthCacheTTL, log)

	storyHandler := handler.NewStoryHandler(
		components.Runs,
		components.Publish,
		components.Admin,
		components.Regen,
		components.Status,
		authenticator,
		pool,
		log,
	)
	generateLimit := handler.NewGenerateRateLimiter(redisClient, cfg.RateLimitPerMinute, log)

	stopCleanup := make(chan struct{})
	go cleanupFinishedRuns(components, stopCleanup, log)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "develop" || cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.ZapLoggingMiddlewareForGin(log))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "x-api-key", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{"X-Run-ID", middleware.RequestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	if cfg.BlobBackend == "local" {
		router.Static("/images", cfg.ImageSavePath)
	}

	storyHandler.RegisterRoutes(router, generateLimit)

	// после регистрации роутов, иначе метрики не видят пути
	p.Use(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout не ставим: SSE-поток живёт столько же, сколько запуск
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")
	close(stopCleanup)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	// запущенные пайплайны получают сигнал остановки и дописывают то, что уже сгенерировано
	runsCtx, runsCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer runsCancel()
	if err := components.Manager.Shutdown(runsCtx); err != nil {
		log.Error("Pipeline runs did not finish in time", zap.Error(err))
	}

	log.Info("Server exiting")
}

func cleanupFinishedRuns(components *app.Components, stop <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := components.Manager.Cleanup(time.Hour); n > 0 {
				log.Debug("Finished runs removed from manager", zap.Int("removed", n))
			}
		}
	}
}

// setupRedis создаёт клиент Redis и ждёт, пока он ответит на PING.
func setupRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	const maxRetries = 10
	retryDelay := 3 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		client := redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		pingCancel()
		if lastErr == nil {
			log.Info("Connected to Redis", zap.String("address", opts.Addr), zap.Int("db", opts.DB), zap.Int("attempt", attempt))
			return client, nil
		}
		_ = client.Close()
		log.Warn("Redis ping failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", maxRetries, lastErr)
}

// connectRabbitMQ подключается к RabbitMQ с несколькими попытками.
func connectRabbitMQ(ctx context.Context, rawURL string, log *zap.Logger) (*amqp091.Connection, error) {
	const maxRetries = 10
	retryDelay := 5 * time.Second
	log.Info("Attempting to connect to RabbitMQ", zap.String("url", maskURL(rawURL)), zap.Int("max_retries", maxRetries))

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err := amqp091.Dial(rawURL)
		if err == nil {
			log.Info("Connected to RabbitMQ", zap.Int("attempt", attempt))
			go func() {
				notifyClose := conn.NotifyClose(make(chan *amqp091.Error, 1))
				if err := <-notifyClose; err != nil {
					log.Error("RabbitMQ connection closed unexpectedly", zap.Error(err))
				} else {
					log.Info("RabbitMQ connection closed gracefully")
				}
			}()
			return conn, nil
		}
		lastErr = err
		log.Warn("RabbitMQ connection failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, lastErr)
}

// maskURL убирает пароль из URL для логов.
func maskURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
