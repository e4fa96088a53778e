package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/example/ewaste-exchange/internal/config"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/example/ewaste-exchange/migrations"
)

func main() {
	log := logger.New(logger.Options{ServiceName: "migrate"})

	command := flag.String("cmd", "up", "goose command: up|down|status|version|redo|reset")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", err)
	}
	log = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = log.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *command})

	db, err := store.ConnectPostgres(ctx, cfg.DB.URL, store.PoolOptions{
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, *command, flag.Args()...); err != nil {
		log.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	log.Info(ctx, "migration finished")
}
