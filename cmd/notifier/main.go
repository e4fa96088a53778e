package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/example/ewaste-exchange/internal/config"
	"github.com/example/ewaste-exchange/internal/email"
	"github.com/example/ewaste-exchange/internal/infrastructure/kafka"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/example/ewaste-exchange/internal/notification"
)

// Email delivery keeps its own offsets, independent of the projector.
const consumerGroup = "email-notifier"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "notifier"}).Fatal("failed to load config", err)
	}
	log := logger.New(logger.Options{
		ServiceName: "notifier",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.ConnectPostgres(ctx, cfg.DB.URL, store.PoolOptions{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", err)
	}
	defer db.Close()

	mailer := email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, log)
	handler := notification.NewHandler(mailer, store.NewPostgresReadStore(db), log)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, consumerGroup, log)
	defer consumer.Close()

	log.Info(ctx, "notifier started", map[string]any{
		"topic": cfg.Kafka.Topic,
		"smtp":  cfg.SMTP.Host + ":" + cfg.SMTP.Port,
	})
	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
		log.Error(ctx, "consumer stopped", err)
	}
	log.Info(context.Background(), "notifier stopped")
}
