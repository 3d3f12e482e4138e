package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/api"
	"github.com/lalithlochan/quorum/internal/config"
	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/metrics"
	"github.com/lalithlochan/quorum/internal/notify"
	"github.com/lalithlochan/quorum/internal/observ"
	"github.com/lalithlochan/quorum/internal/project"
	"github.com/lalithlochan/quorum/internal/redis"
	"github.com/lalithlochan/quorum/internal/reminder"
	"github.com/lalithlochan/quorum/internal/sqs"
)

// publisher is the event sink plus whatever it needs to drain on shutdown
type publisher interface {
	notify.Publisher
	Close(ctx context.Context) error
}

// queuePublisher publishes to SQS; there is nothing local to drain
type queuePublisher struct{ *sqs.Producer }

func (queuePublisher) Close(context.Context) error { return nil }

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting quorum server",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Redis backs accept idempotency and rate limiting; both are skipped without it
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: time.Minute,
		})
		defer redisClient.Close()
	}

	// Notification pipeline
	channels, breakers, err := buildChannels(ctx, cfg, logger)
	if err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher(repo, channels, notify.NewRenderer("Quorum", cfg.FrontendURL), logger)
	notifier := notify.NewNotifier(dispatcher, repo, cfg.FanoutConcurrency, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var events publisher
	if cfg.SQSQueueURL != "" {
		sqsCfg := sqs.Config{Region: cfg.SQSRegion, QueueURL: cfg.SQSQueueURL}

		producer, err := sqs.NewProducer(ctx, sqsCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create sqs producer: %w", err)
		}
		consumer, err := sqs.NewConsumer(ctx, sqsCfg, notifier, logger)
		if err != nil {
			return fmt.Errorf("failed to create sqs consumer: %w", err)
		}
		go consumer.Run(workerCtx)

		events = queuePublisher{producer}
		logger.Info("fan-out through sqs", zap.String("queue_url", cfg.SQSQueueURL))
	} else {
		events = notify.NewAsyncPublisher(notifier, cfg.FanoutConcurrency, logger)
		logger.Info("fan-out in process")
	}

	projects := project.NewService(repo, repo, events, logger)
	inbox := notify.NewInbox(repo)
	go notify.NewJanitor(inbox, notify.JanitorConfig{}, logger).Run(workerCtx)

	scheduler, err := reminder.NewScheduler(repo, repo, notifier, reminder.Config{
		ThresholdDays: cfg.ReminderThresholdDays,
		Schedule:      cfg.ReminderCronSchedule,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create reminder scheduler: %w", err)
	}
	if cfg.ReminderEnabled {
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start reminder scheduler: %w", err)
		}
	}

	go reportPool(workerCtx, database)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(api.Services{
		Projects:  projects,
		Inbox:     inbox,
		Reminders: scheduler,
		Users:     repo,
		Breakers:  breakers,
	}, logger)
	if redisClient != nil {
		handler.WithIdempotency(redis.NewIdempotencyService(redisClient, logger))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.AuthMiddleware([]byte(cfg.JWTSecret), logger))
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.ActorKeyFunc))
		handler.Routes(r)
	})

	checks := map[string]api.Check{"postgres": database.Health}
	if redisClient != nil {
		checks["redis"] = redisClient.Ping
	}
	r.Get("/health", api.HealthHandler(checks, breakers...))

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
			logger.Warn("reminder pass still running at shutdown")
		}
		handler.Wait()

		if err := events.Close(ctx); err != nil {
			logger.Warn("pending notifications dropped at shutdown", zap.Error(err))
		}
		workerCancel()

		logger.Info("server stopped gracefully")
	}

	return nil
}

// reportPool publishes the acquired connection count until ctx is cancelled
func reportPool(ctx context.Context, database *db.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetDBConnections(database.AcquiredConns())
		}
	}
}
