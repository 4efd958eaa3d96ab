package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nyimbi/Games/internal/config"
	"github.com/nyimbi/Games/internal/database"
	"github.com/nyimbi/Games/internal/handler/health"
	"github.com/nyimbi/Games/internal/handler/ws"
	"github.com/nyimbi/Games/internal/journal"
	"github.com/nyimbi/Games/internal/migrations"
	"github.com/nyimbi/Games/internal/presence"
	"github.com/nyimbi/Games/internal/realtime"
	"github.com/nyimbi/Games/internal/server"
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

	// --- SQLite ---
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	applied, err := migrations.Run(ctx, db)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath, "migrations_applied", applied)

	activity := journal.New(db, logger)
	events := server.NewBroker()
	checks := map[string]health.Checker{"sqlite": database.Checker{DB: db}}
	opts := []realtime.Option{
		realtime.WithLogger(logger),
		realtime.WithObserver(activity),
		realtime.WithObserver(events),
	}
	deps := server.Deps{
		History: activity,
		Events:  events,
		Checks:  checks,
		WS: ws.Options{
			WriteTimeout:   cfg.WSWriteTimeout,
			ReadLimit:      cfg.WSReadLimit,
			OriginPatterns: cfg.WSOriginPattern,
		},
	}

	// --- Redis ---
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")

		tracker := presence.NewTracker(rdb, cfg.PresenceTTL, logger)
		opts = append(opts, realtime.WithObserver(tracker))
		checks["redis"] = tracker
		deps.Roster = tracker
	} else {
		logger.Info("REDIS_URL not set, presence tracking disabled")
	}

	deps.Manager = realtime.NewManager(opts...)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, deps)

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
