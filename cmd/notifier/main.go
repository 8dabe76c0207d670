// Package main provides the notifier: it consumes committed transition
// events and delivers patient notifications.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/clinicore/rxcore/internal/domain/prescription"
	infrapg "github.com/clinicore/rxcore/internal/infrastructure/postgres"
	"github.com/clinicore/rxcore/internal/infrastructure/redpanda"
	"github.com/clinicore/rxcore/internal/notify"
	"github.com/clinicore/rxcore/internal/observability/metrics"
	"github.com/clinicore/rxcore/internal/patient"
	storagepg "github.com/clinicore/rxcore/internal/storage/postgres"
	"github.com/clinicore/rxcore/pkg/idempotency"
)

const inboxHandler = "notifier"

// Config holds notifier configuration. Without SMTP settings the
// notifier logs messages instead of delivering them.
type Config struct {
	DatabaseURL  string        `env:"DATABASE_URL,required"`
	Brokers      string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	GroupID      string        `env:"CONSUMER_GROUP" envDefault:"rxcore-notifier"`
	SendTimeout  time.Duration `env:"SEND_TIMEOUT" envDefault:"10s"`
	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPFrom     string        `env:"SMTP_FROM" envDefault:"noreply@clinicore.example"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal("failed to parse configuration", zap.Error(err))
	}

	ctx := context.Background()

	pool, err := infrapg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	store := storagepg.New(pool)
	var patients patient.Directory = store.Patients()

	var sender notify.Sender
	if cfg.SMTPHost != "" {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	} else {
		logger.Warn("SMTP_HOST not set, logging notifications instead")
		sender = notify.LogSender{Logger: logger}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	dispatcher, err := notify.NewDispatcher(notify.Config{SendTimeout: cfg.SendTimeout}, patients, sender, m, logger)
	if err != nil {
		logger.Fatal("failed to create dispatcher", zap.Error(err))
	}
	dispatcher.Start()

	inbox := idempotency.NewPostgresInbox(pool, 0)

	handler := func(ctx context.Context, msg *redpanda.ConsumedMessage) error {
		var ev prescription.TransitionEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			// Malformed events are not retriable; drop with a log.
			logger.Error("dropping malformed transition event",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}

		ran, err := inbox.Process(ctx, ev.EventID, inboxHandler, func(ctx context.Context) error {
			return dispatcher.Enqueue(ctx, ev)
		})
		if err != nil {
			return fmt.Errorf("process event %s: %w", ev.EventID, err)
		}
		if !ran {
			logger.Debug("duplicate event skipped", zap.String("event", ev.EventID))
		}
		return nil
	}

	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = strings.Split(cfg.Brokers, ",")
	consumerCfg.GroupID = cfg.GroupID
	consumer, err := redpanda.NewConsumer(consumerCfg, handler, logger)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.Error(err))
	}
	consumer.Start()

	logger.Info("notifier running", zap.String("group", cfg.GroupID))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down notifier")
	if err := consumer.Stop(); err != nil {
		logger.Error("consumer stop error", zap.Error(err))
	}
	if err := dispatcher.Stop(); err != nil {
		logger.Error("dispatcher stop error", zap.Error(err))
	}
	logger.Info("notifier stopped")
}
