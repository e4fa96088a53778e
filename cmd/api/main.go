package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/ewaste-exchange/internal/api"
	"github.com/example/ewaste-exchange/internal/api/middleware"
	"github.com/example/ewaste-exchange/internal/auth"
	"github.com/example/ewaste-exchange/internal/command"
	"github.com/example/ewaste-exchange/internal/config"
	"github.com/example/ewaste-exchange/internal/domain/account"
	"github.com/example/ewaste-exchange/internal/domain/post"
	"github.com/example/ewaste-exchange/internal/infrastructure/kafka"
	"github.com/example/ewaste-exchange/internal/infrastructure/objectstore"
	"github.com/example/ewaste-exchange/internal/infrastructure/redis"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/example/ewaste-exchange/internal/pricing"
	"github.com/example/ewaste-exchange/internal/projection"
	"github.com/example/ewaste-exchange/internal/query"
	"github.com/example/ewaste-exchange/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = time.Hour
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// sessionSweeper is implemented by the Postgres read store.
type sessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "api"}).Fatal("failed to load config", err)
	}
	log := logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatal("invalid config", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = log.WithFields(ctx, map[string]any{"env": cfg.App.Env, "event_store": cfg.App.EventStore})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	health := map[string]api.Pinger{}

	var (
		eventStore store.EventStoreInterface
		readStore  store.ReadStoreInterface
		projector  *projection.Projector
		producer   *kafka.Producer
		db         *sql.DB
	)

	if cfg.App.EventStore == config.EventStoreMemory {
		// Memory mode projects inline and needs no infrastructure.
		memRead := store.NewReadStore()
		readStore = memRead
		projector = projection.NewProjector(memRead, log)
		eventStore = store.NewEventStore(projector, log)
		projector.UseEventSource(eventStore)
		log.Warn(ctx, "using in-memory stores, data is lost on restart")
	} else {
		db, err = store.ConnectPostgres(ctx, cfg.DB.URL, store.PoolOptions{
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		})
		if err != nil {
			log.Fatal("failed to connect to PostgreSQL", err)
		}
		defer db.Close()
		health["postgres"] = pingFunc(db.PingContext)

		if cfg.App.MigrateOnStart {
			if err := migrations.Up(ctx, db); err != nil {
				log.Fatal("failed to run migrations", err)
			}
		}

		pgRead := store.NewPostgresReadStore(db)
		readStore = pgRead
		projector = projection.NewProjector(pgRead, log)

		switch cfg.App.EventStore {
		case config.EventStoreDynamo:
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Dynamo.Region))
			if err != nil {
				log.Fatal("failed to load AWS config", err)
			}
			// Projection runs in the Kinesis-fed lambda.
			eventStore = store.NewDynamoEventStore(dynamodb.NewFromConfig(awsCfg), cfg.Dynamo.EventsTable, cfg.Dynamo.SnapshotsTable)
		default:
			producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
			defer producer.Close()
			eventStore = store.NewPostgresEventStore(db, producer, log)
			projector.UseEventSource(eventStore)
		}
	}

	queries := query.NewHandler(readStore, log)
	accounts := account.NewService(eventStore, queries, log)
	estimator, closeProvider := newEstimator(ctx, cfg, reg, log)
	defer closeProvider()
	posts := post.NewService(eventStore, estimator, accounts, log)
	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	cmd := command.NewHandler(command.Deps{
		Posts:    posts,
		Accounts: accounts,
		Lookups:  queries,
		Sessions: readStore,
		Tokens:   tokens,
		Uploader: newUploader(ctx, cfg, log),
		Log:      log,
	})

	var idem middleware.IdempotencyStore
	if cfg.Redis.URL != "" {
		client, err := redis.New(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to Redis", err)
		}
		defer client.Close()
		idem = client
		health["redis"] = client
	} else {
		log.Warn(ctx, "REDIS_URL not set, Idempotency-Key is ignored")
	}

	var wg sync.WaitGroup
	if producer != nil {
		if err := projector.Rebuild(ctx, eventStore); err != nil {
			log.Error(ctx, "read model rebuild failed", err)
		}
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup, log)
		defer consumer.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
				log.Error(ctx, "projection consumer stopped", err)
			}
		}()
	}
	if sweeper, ok := readStore.(sessionSweeper); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweepSessions(ctx, sweeper, log)
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		Handlers:    api.NewHandlers(cmd, queries, log),
		Tokens:      tokens,
		Idempotency: idem,
		Gatherer:    reg,
		Metrics:     middleware.NewHTTPMetrics(reg),
		Health:      health,
		Log:         log,
	})

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info(ctx, "server started", map[string]any{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", err)
	}
	wg.Wait()
}

// newEstimator uses Gemini when a key is configured. Without one every
// product is priced from the rule table.
func newEstimator(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log *logger.Logger) (*pricing.Estimator, func()) {
	opts := []pricing.Option{
		pricing.WithTimeout(cfg.Pricing.Timeout),
		pricing.WithMetrics(pricing.NewMetrics(reg)),
		pricing.WithLogger(log),
	}
	if cfg.Pricing.GeminiAPIKey == "" {
		log.Warn(ctx, "GEMINI_API_KEY not set, pricing uses the rule table only")
		return pricing.NewEstimator(nil, opts...), func() {}
	}
	provider, err := pricing.NewGeminiProvider(ctx, cfg.Pricing.GeminiAPIKey, cfg.Pricing.GeminiModel)
	if err != nil {
		log.Error(ctx, "gemini client unavailable, pricing uses the rule table only", err)
		return pricing.NewEstimator(nil, opts...), func() {}
	}
	return pricing.NewEstimator(provider, opts...), func() { _ = provider.Close() }
}

func newUploader(ctx context.Context, cfg *config.Config, log *logger.Logger) objectstore.Uploader {
	if cfg.S3.Bucket == "" {
		log.Warn(ctx, "S3_BUCKET not set, uploads are kept in memory")
		return objectstore.NewMemoryStore("")
	}
	s3Store, err := objectstore.NewS3StoreFromConfig(ctx, cfg.S3)
	if err != nil {
		log.Fatal("failed to configure S3", err)
	}
	return s3Store
}

func sweepSessions(ctx context.Context, sweeper sessionSweeper, log *logger.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := sweeper.DeleteExpiredSessions(ctx, now); err != nil {
				log.Error(ctx, "session cleanup failed", err)
			}
		}
	}
}
