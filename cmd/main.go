/**
 * @description
 * Main entry point for the checkout-service. Wires configuration, the
 * Postgres profile store, Redis attempt counter, RabbitMQ producer/consumer,
 * the collaborator HTTP clients, the checkout session manager, the HTTP
 * router and the maintenance scheduler, then runs until a shutdown signal.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/medlink/checkout-service/internal/api"
	"github.com/medlink/checkout-service/internal/app"
	"github.com/medlink/checkout-service/internal/config"
	"github.com/medlink/checkout-service/internal/domain"
	"github.com/medlink/checkout-service/internal/store"
	"github.com/medlink/checkout-service/pkg/billingclient"
	"github.com/medlink/checkout-service/pkg/paymentclient"
	"github.com/medlink/checkout-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Best effort: the .env file only exists in local development.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = 50
	poolCfg.MinConns = 5
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	// Simple protocol keeps the pool compatible with PgBouncer transaction
	// pooling (no server-side prepared statements).
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	profiles := store.NewProfileRepository(dbpool)

	var counter app.AttemptCounter = app.NoopAttemptCounter{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		counter = app.NewRedisAttemptCounter(redisClient, cfg.AttemptCounterPrefix)
		logger.Info("redis attempt counter enabled")
	} else {
		logger.Warn("REDIS_URL not set; daily attempt limiting disabled")
	}

	var producer rabbitmq.Publisher
	if p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		logger.Error("rabbitmq producer unavailable; falling back to no-op", "error", err)
		producer = &rabbitmq.FallbackProducer{Logger: logger}
	} else {
		producer = p
	}
	defer producer.Close()

	gateway := paymentclient.NewClient(cfg.GatewayAPIBaseURL, cfg.GatewayAPIKey)
	billing := billingclient.NewClient(cfg.BillingAPIBaseURL, cfg.BillingAPIKey)

	poller := app.NewActivationPoller(profiles, nil, app.PollerConfig{
		MaxAttempts:  cfg.PollMaxAttempts,
		Interval:     time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		MinTotalWait: time.Duration(cfg.PollMinTotalWaitMs) * time.Millisecond,
	})

	sessions := app.NewSessionManager(
		profiles,
		gateway,
		billingAdapter{billing},
		poller,
		time.Duration(cfg.SessionTTLMinutes)*time.Minute,
		logger,
	)

	eventHandler := app.NewBillingEventHandler(profiles, logger)
	go func() {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Error("rabbitmq consumer unavailable; activation events will not be applied", "error", err)
			return
		}
		defer consumer.Close()

		err = consumer.ConsumeWithBindings(domain.BillingEventsExchange, cfg.BillingEventQueue, map[string]func([]byte) bool{
			domain.SubscriptionActivatedKey: eventHandler.HandleSubscriptionActivated,
			domain.SubscriptionFailedKey:    eventHandler.HandleSubscriptionFailed,
		})
		if err != nil {
			logger.Error("billing event consumer stopped", "error", err)
		}
	}()

	jobs := app.NewJobs(sessions, profiles, 24*time.Hour, logger)
	scheduler := app.NewScheduler(jobs, logger, app.SchedulerConfig{
		SessionCleanupSchedule: cfg.SessionCleanupSchedule,
		ReconcileSchedule:      cfg.ReconcileSchedule,
	})
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(sessions, counter, cfg.DailyAttemptLimit, logger)
	webhooks := api.NewWebhookHandler(producer, cfg.WebhookSecret, logger)
	router := api.NewRouter(handler, webhooks, cfg.JWTSecret)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}

// billingAdapter narrows the billing client to the orchestrator's interface.
type billingAdapter struct {
	client *billingclient.Client
}

func (a billingAdapter) CreateSubscription(ctx context.Context, plan domain.PlanID, accountRef string, billing domain.PaymentInfo) (app.CreateSubscriptionResult, error) {
	result, err := a.client.CreateSubscription(ctx, plan, accountRef, billing)
	if err != nil {
		return app.CreateSubscriptionResult{}, err
	}
	return app.CreateSubscriptionResult{
		SubscriptionRef:      result.SubscriptionRef,
		RequiresConfirmation: result.RequiresConfirmation,
		ClientSecret:         result.ClientSecret,
	}, nil
}
