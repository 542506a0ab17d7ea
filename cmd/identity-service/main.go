// identity-service registers users, issues bearer tokens and answers
// delegated verification requests from the other services.
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
	"github.com/tasktracker/task-system/internal/infrastructure/db/postgres"
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
	var migrateOnly bool

	flagSet := pflag.NewFlagSet("identity-service", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	flagSet.BoolVar(&migrateOnly, "migrate-only", false, "apply database migrations and exit")
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
		Service: "identity-service",
	})

	db, err := postgres.Connect(ctx, postgres.Config{URL: cfg.Postgres.URL})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	if migrateOnly {
		log.Info().Msg("migrations applied")
		return nil
	}

	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		ClientName: "identity-service",
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	tokens, err := service.NewTokenManager(cfg.Auth.SecretKey, cfg.Auth.Algorithm, cfg.Auth.TokenTTL())
	if err != nil {
		return err
	}
	store := postgres.NewCredentialStore(db)
	cache := service.NewIdentityCache(store, redis.NewCacheBackend(rdb), cfg.Cache.TTL, log)
	authService := service.NewAuthService(store, cache, tokens, log)

	if err := authService.SeedMaster(ctx, cfg.Auth.MasterUsername, cfg.Auth.MasterPassword); err != nil {
		return err
	}

	e := api.NewIdentityRouter(api.IdentityDeps{
		Auth:               authService,
		LoginRatePerMinute: cfg.Auth.LoginRatePerMinute,
		Log:                log,
		Checks: []handlers.DependencyCheck{
			{Name: "postgres", Ping: db.PingContext},
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
