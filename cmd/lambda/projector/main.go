package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/ewaste-exchange/internal/config"
	"github.com/example/ewaste-exchange/internal/infrastructure/kinesis"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/example/ewaste-exchange/internal/projection"
)

var (
	projector *projection.Projector
	log       *logger.Logger
)

func init() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "lambda-projector"}).Fatal("failed to load config", err)
	}
	log = logger.New(logger.Options{
		ServiceName: "lambda-projector",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})

	// Pool is small: one invocation at a time per container.
	db, err := store.ConnectPostgres(context.Background(), cfg.DB.URL, store.PoolOptions{
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", err)
	}
	projector = projection.NewProjector(store.NewPostgresReadStore(db), log)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Dynamo.Region))
	if err != nil {
		log.Fatal("failed to load AWS config", err)
	}
	// Kinesis can deliver a post's events out of order across retries.
	projector.UseEventSource(store.NewDynamoEventStore(dynamodb.NewFromConfig(awsCfg), cfg.Dynamo.EventsTable, cfg.Dynamo.SnapshotsTable))
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.Dispatch(ctx, batch, projector.Project, log), nil
}

func main() {
	lambda.Start(handler)
}
