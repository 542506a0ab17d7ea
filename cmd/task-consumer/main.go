// task-consumer drains the ingestion stream into the task store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/tasktracker/task-system/internal/core/service"
	"github.com/tasktracker/task-system/internal/infrastructure/db/mongo"
	"github.com/tasktracker/task-system/internal/infrastructure/db/redis"
	"github.com/tasktracker/task-system/internal/infrastructure/queue"
	"github.com/tasktracker/task-system/internal/pkg/config"
	"github.com/tasktracker/task-system/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var consumerName string

	flagSet := pflag.NewFlagSet("task-consumer", pflag.ContinueOnError)
	flagSet.StringVar(&consumerName, "consumer", "", "consumer name within the group (default $QUEUE_CONSUMER or hostname)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if consumerName == "" {
		consumerName = cfg.Queue.Consumer
	}
	if consumerName == "" {
		consumerName = defaultConsumerName()
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Env == "development",
		Service: "task-consumer",
	})

	client, db, err := mongo.Connect(ctx, mongo.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  "task-consumer",
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	repo := mongo.NewTaskRepository(db)
	if err := repo.EnsureIndexes(ctx); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		ClientName: "task-consumer",
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	events := redis.NewEventLog(rdb, redis.StreamConfig{
		Stream:   cfg.Queue.Stream,
		Group:    cfg.Queue.Group,
		Consumer: consumerName,
	})
	if err := events.EnsureGroup(ctx); err != nil {
		return err
	}

	log.Info().
		Str("stream", cfg.Queue.Stream).
		Str("group", cfg.Queue.Group).
		Str("consumer", consumerName).
		Msg("consumer configured")

	consumer := queue.NewConsumer(events, service.NewIngestService(repo, log), cfg.Queue.PollTimeout, log)
	return consumer.Run(ctx)
}

// defaultConsumerName is stable across restarts of the same host, so
// entries left pending by a crash are picked up again by its successor.
func defaultConsumerName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "task-consumer-" + uuid.NewString()
}
