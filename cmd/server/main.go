package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/SGman98/mafiabot/internal/config"
	"github.com/SGman98/mafiabot/internal/database"
	"github.com/SGman98/mafiabot/internal/game"
	"github.com/SGman98/mafiabot/internal/handler/health"
	"github.com/SGman98/mafiabot/internal/handler/votes"
	"github.com/SGman98/mafiabot/internal/migrations"
	"github.com/SGman98/mafiabot/internal/notify"
	"github.com/SGman98/mafiabot/internal/scenario"
	"github.com/SGman98/mafiabot/internal/server"
	"github.com/SGman98/mafiabot/internal/session"
	"github.com/SGman98/mafiabot/internal/store"
	"github.com/SGman98/mafiabot/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	// --- Tracing ---
	shutdownTracing, err := telemetry.Setup(ctx, "mafiabot", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	applied, err := migrations.Up(ctx, db)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath, "migrations_applied", len(applied))
	rooms := store.NewDocStore(db)

	// --- Scenarios ---
	catalog, err := loadCatalog(cfg.ScenarioDir)
	if err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}
	logger.Info("scenarios loaded", "count", len(catalog.List()))

	// --- Notifications ---
	broker := notify.NewBroker()
	notifiers := notify.Multi{broker, notify.Log{Logger: logger}}

	var redisCheck health.Checker
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")
		publisher := notify.NewRedis(rdb, "mafiabot:", logger)
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
		redisCheck = redisChecker{rdb}
	}

	// --- Sessions ---
	mgr, err := session.New(rooms, catalog, notifiers, logger, session.Options{
		MinPlayers:   cfg.MinPlayers,
		VoteDuration: cfg.VoteDuration,
		Cadence: game.Cadence{
			Coarse:    cfg.CountdownCoarse,
			Fine:      cfg.CountdownFine,
			Threshold: cfg.CountdownThreshold,
		},
	})
	if err != nil {
		return fmt.Errorf("starting session manager: %w", err)
	}
	defer mgr.Close()

	// --- HTTP Server ---
	deps := server.Deps{Logger: logger, Manager: mgr, Catalog: catalog, Broker: broker}
	srv := server.New(cfg.HTTPAddr, deps, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, map[string]health.Checker{
			"sqlite": health.CheckFunc(rooms.Ping),
			"redis":  redisCheck,
		}).Routes())
		r.Mount("/ws", votes.NewHandler(mgr, logger).Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

// loadCatalog returns the built-in scenarios plus any found in dir.
func loadCatalog(dir string) (*scenario.Catalog, error) {
	catalog, err := scenario.Default()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return catalog, nil
	}
	extra, err := scenario.Decode(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, err
	}
	return catalog.Merge(extra...)
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
