// Package main provides the outbox relay: it polls the outbox table and
// publishes committed transition events to the bus.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	infrapg "github.com/clinicore/rxcore/internal/infrastructure/postgres"
	"github.com/clinicore/rxcore/internal/infrastructure/redpanda"
	"github.com/clinicore/rxcore/internal/observability/metrics"
)

// Config holds relay configuration.
type Config struct {
	DatabaseURL    string        `env:"DATABASE_URL,required"`
	Brokers        string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"100ms"`
	BatchSize      int           `env:"BATCH_SIZE" envDefault:"100"`
	CleanupWindow  time.Duration `env:"CLEANUP_WINDOW" envDefault:"168h"`
	DeadLetterTick time.Duration `env:"DEAD_LETTER_TICK" envDefault:"1m"`
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal("failed to parse configuration", zap.Error(err))
	}
	brokers := strings.Split(cfg.Brokers, ",")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := infrapg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	admin, err := redpanda.NewAdmin(brokers, logger)
	if err != nil {
		logger.Fatal("failed to create kafka admin", zap.Error(err))
	}
	if err := admin.EnsureTopics(ctx); err != nil {
		logger.Fatal("failed to ensure topics", zap.Error(err))
	}
	admin.Close()

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = brokers
	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("failed to create producer", zap.Error(err))
	}
	defer producer.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	outboxCfg := infrapg.DefaultOutboxConfig()
	outboxCfg.PollInterval = cfg.PollInterval
	outboxCfg.BatchSize = cfg.BatchSize
	outbox := infrapg.NewOutbox(pool, producer, outboxCfg, m, logger)
	outbox.Start()

	// Background maintenance: dead-letter sweep and processed-entry
	// cleanup.
	go func() {
		deadLetter := time.NewTicker(cfg.DeadLetterTick)
		cleanup := time.NewTicker(time.Hour)
		defer deadLetter.Stop()
		defer cleanup.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-deadLetter.C:
				if n, err := outbox.MoveToDeadLetter(ctx); err != nil {
					logger.Error("dead-letter sweep failed", zap.Error(err))
				} else if n > 0 {
					logger.Warn("entries moved to dead letter", zap.Int64("count", n))
				}
			case <-cleanup.C:
				if n, err := outbox.CleanupProcessed(ctx, cfg.CleanupWindow); err != nil {
					logger.Error("outbox cleanup failed", zap.Error(err))
				} else if n > 0 {
					logger.Info("processed outbox entries removed", zap.Int64("count", n))
				}
			}
		}
	}()

	logger.Info("outbox relay running", zap.Strings("brokers", brokers))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down outbox relay")
	cancel()
	outbox.Stop()
	logger.Info("outbox relay stopped")
}
