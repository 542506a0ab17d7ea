// task-service accepts task requests, queues creations for the ingestion
// consumer and serves reads and updates from the task store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/tasktracker/task-system/internal/api"
	"github.com/tasktracker/task-system/internal/core/service"
	"github.com/tasktracker/task-system/internal/infrastructure/authclient"
	"github.com/tasktracker/task-system/internal/infrastructure/db/mongo"
	"github.com/tasktracker/task-system/internal/infrastructure/db/redis"
	"github.com/tasktracker/task-system/internal/infrastructure/http/handlers"
	"github.com/tasktracker/task-system/internal/pkg/config"
	"github.com/tasktracker/task-system/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var addr string

	flagSet := pflag.NewFlagSet("task-service", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "", "listen address (default :$PORT)")
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
	if addr == "" {
		addr = ":" + cfg.Port
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Env == "development",
		Service: "task-service",
	})

	client, db, err := mongo.Connect(ctx, mongo.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  "task-service",
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
		ClientName: "task-service",
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	events := redis.NewEventLog(rdb, redis.StreamConfig{
		Stream: cfg.Queue.Stream,
		Group:  cfg.Queue.Group,
	})
	if err := events.EnsureGroup(ctx); err != nil {
		return err
	}

	verifier := authclient.New(authclient.Config{
		BaseURL: cfg.Verifier.URL,
		Timeout: cfg.Verifier.Timeout,
	}, log)

	e := api.NewTaskRouter(api.TaskDeps{
		Tasks:    service.NewTaskService(repo, events, log),
		Verifier: verifier,
		Log:      log,
		Checks: []handlers.DependencyCheck{
			{Name: "mongodb", Ping: func(ctx context.Context) error { return client.Ping(ctx, nil) }},
			{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
	})

	return serve(ctx, e.Server, e.Start, addr, log)
}

// serve runs start until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, start func(string) error, addr string, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
