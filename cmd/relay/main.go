package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sungwon/wecom-relay/internal/api"
	"github.com/sungwon/wecom-relay/internal/config"
	"github.com/sungwon/wecom-relay/internal/dlq"
	"github.com/sungwon/wecom-relay/internal/history"
	"github.com/sungwon/wecom-relay/internal/logger"
	"github.com/sungwon/wecom-relay/internal/ratelimit"
	"github.com/sungwon/wecom-relay/internal/relay"
	"github.com/sungwon/wecom-relay/internal/wecom"
)

// webhookSender adapts the wecom client to the pipeline's Sender interface.
type webhookSender struct {
	webhook *wecom.Webhook
}

func (s webhookSender) Send(ctx context.Context, payload *relay.OutboundPayload) error {
	_, err := s.webhook.Send(ctx, payload)
	return err
}

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Msg("starting wecom relay")

	ctx := context.Background()

	// Optional Redis-backed dead-letter store.
	var redisClient *redis.Client
	if cfg.DLQ.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.DLQ.RedisAddr,
			Password: cfg.DLQ.RedisPassword,
			DB:       cfg.DLQ.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisClient.Close()
	}
	dlqStore := dlq.NewStore(redisClient, cfg.DLQ.Stream)

	// Optional PostgreSQL delivery-history log.
	var historyStore *history.Store
	if cfg.History.DatabaseURL != "" {
		pool, err := history.NewDB(ctx, cfg.History.DatabaseURL,
			cfg.History.PoolMin, cfg.History.PoolMax, cfg.History.ConnectTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		historyStore = history.NewStore(pool)
		defer historyStore.Close()
		if err := historyStore.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare history schema")
		}
	}

	webhook := wecom.NewWebhook(wecom.Config{
		URL:    cfg.Webhook.URL,
		Secret: cfg.Webhook.Secret,
	}, wecom.NewHTTPClient(cfg.Webhook.RequestTimeout))

	limiter := ratelimit.NewBucket(cfg.RateLimit.Burst, ratelimit.PerMinute(cfg.RateLimit.PerMinute))

	pipeline := relay.NewPipeline(relay.PipelineConfig{
		AllowedChannels: cfg.Relay.AllowedChannels,
		BotUserID:       cfg.Relay.BotUserID,
		MaxPayloadBytes: cfg.Webhook.MaxPayloadBytes,
		Consumers:       cfg.Relay.Consumers,
		QueueSize:       cfg.Relay.QueueSize,
		EnqueueTimeout:  cfg.Relay.EnqueueTimeout,
		ShutdownGrace:   cfg.Relay.ShutdownGrace,
		MaxAttempts:     cfg.Retry.MaxAttempts,
		BaseDelay:       cfg.Retry.BaseDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
	}, webhookSender{webhook: webhook}, limiter, dlqStore, historyStore, log)

	pipeline.Start(ctx)

	router := api.NewRouter(pipeline, dlqStore, historyStore, log)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Wait for interrupt signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down relay")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}

	pipeline.Stop()

	log.Info().Msg("relay stopped")
}
