package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/ewaste-exchange/internal/config"
	"github.com/example/ewaste-exchange/internal/email"
	"github.com/example/ewaste-exchange/internal/infrastructure/kinesis"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/example/ewaste-exchange/internal/notification"
)

var (
	notifier *notification.Handler
	log      *logger.Logger
)

func init() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "lambda-notifier"}).Fatal("failed to load config", err)
	}
	log = logger.New(logger.Options{
		ServiceName: "lambda-notifier",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})

	db, err := store.ConnectPostgres(context.Background(), cfg.DB.URL, store.PoolOptions{
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", err)
	}

	mailer := email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, log)
	notifier = notification.NewHandler(mailer, store.NewPostgresReadStore(db), log)
	log.Info(context.Background(), "notifier initialized", map[string]any{"smtp": cfg.SMTP.Host + ":" + cfg.SMTP.Port})
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.Dispatch(ctx, batch, notifier.Notify, log), nil
}

func main() {
	lambda.Start(handler)
}
