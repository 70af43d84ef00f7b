/**
 * @description
 * This is the main entry point for the ledger service. It initializes all
 * components: configuration, logging, the PostgreSQL pool, the optional Redis
 * and RabbitMQ connections, the repository, the fraud engine, the transfer
 * coordinator, the background jobs and the HTTP server, then wires everything
 * together and runs until a termination signal arrives.
 *
 * External infrastructure degrades gracefully: without Redis the rate limiter
 * falls back to an in-process fixed window, and without RabbitMQ events are
 * logged instead of published. Only PostgreSQL is mandatory.
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/corebank/ledger-service/internal/api"
	"github.com/corebank/ledger-service/internal/app"
	"github.com/corebank/ledger-service/internal/audit"
	"github.com/corebank/ledger-service/internal/config"
	"github.com/corebank/ledger-service/internal/fraud"
	"github.com/corebank/ledger-service/internal/jobs"
	"github.com/corebank/ledger-service/internal/store"
	"github.com/corebank/ledger-service/pkg/events"
)

func main() {
	// A missing .env file is fine; environment variables take over.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		logger.Fatal("JWT_SECRET must be configured")
	}

	logger.Info("starting ledger-service", zap.String("port", cfg.ServerPort))

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database url parse failed", zap.Error(err))
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer dbpool.Close()
	logger.Info("database connected")

	repository := store.NewPostgresRepository(dbpool, time.Now)

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repository.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		logger.Fatal("schema setup failed", zap.Error(err))
	}
	cancelSchema()

	// Rate limiting: Redis when available, in-process fixed window otherwise.
	var limiter app.RateLimiter
	var evicter jobs.WindowEvicter
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; using in-process rate limiter", zap.Error(parseErr))
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed; using in-process rate limiter", zap.Error(pingErr))
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.TransferRateLimitPerMinute, time.Minute)
				logger.Info("redis connected")
			}
		}
	}
	if limiter == nil {
		memLimiter := app.NewMemoryRateLimiter(cfg.TransferRateLimitPerMinute, time.Minute, time.Now)
		limiter = memLimiter
		evicter = memLimiter
	}

	// Event publishing degrades to logging when the broker is unreachable.
	var publisher events.Publisher
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		producer, prodErr := events.NewProducer(cfg.RabbitMQURL)
		if prodErr != nil {
			logger.Warn("rabbitmq producer unavailable; events will be logged only", zap.Error(prodErr))
			publisher = &events.NoopPublisher{Logger: logger}
		} else {
			publisher = producer
			logger.Info("rabbitmq producer connected")
		}
	} else {
		publisher = &events.NoopPublisher{Logger: logger}
	}
	defer publisher.Close()

	recorder := audit.NewRecorder(repository, logger, cfg.AuditBufferSize)
	defer recorder.Close()

	service := app.NewService(
		repository,
		fraud.NewDefaultEngine(),
		limiter,
		recorder,
		publisher,
		logger,
		app.Options{
			MaxTransferAmount: cfg.MaxTransferAmountDecimal(),
			DefaultDailyLimit: cfg.DefaultDailyLimitDecimal(),
			StorageTimeout:    time.Duration(cfg.StorageTimeoutMS) * time.Millisecond,
			JWTSecret:         cfg.JWTSecret,
			TokenTTL:          time.Duration(cfg.TokenTTLHours) * time.Hour,
		},
	)

	scheduler := jobs.NewScheduler(
		jobs.NewJobs(repository, evicter, logger, cfg.FraudSweepBatchSize),
		logger,
		jobs.Schedules{
			FraudAlertSweep:  cfg.FraudSweepSchedule,
			RateLimiterEvict: cfg.RateLimitEvictSchedule,
		},
	)
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	handlers := api.NewLedgerHandlers(service, logger)
	router := api.Routes(handlers, cfg.JWTSecret, cfg.AllowedOrigins())

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server stopped unexpectedly", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
