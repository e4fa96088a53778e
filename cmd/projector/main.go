package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/example/ewaste-exchange/internal/config"
	"github.com/example/ewaste-exchange/internal/infrastructure/kafka"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/example/ewaste-exchange/internal/projection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "projector"}).Fatal("failed to load config", err)
	}
	log := logger.New(logger.Options{
		ServiceName: "projector",
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

	projector := projection.NewProjector(store.NewPostgresReadStore(db), log)
	// Read-only use: gaps in the topic are filled from the events table.
	projector.UseEventSource(store.NewPostgresEventStore(db, nil, log))

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup, log)
	defer consumer.Close()

	log.Info(ctx, "projector started", map[string]any{
		"topic": cfg.Kafka.Topic,
		"group": cfg.Kafka.ConsumerGroup,
	})
	if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
		log.Error(ctx, "consumer stopped", err)
	}
	log.Info(context.Background(), "projector stopped")
}
