package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/mir/pkg/redis"
)

// app holds the components one command invocation needs. Optional backends
// (kafka, journal, redis) are only connected when enabled in the config.
type app struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	engine   *indexer.Engine
	executor *executor.Executor
	cache    *cache.QueryCache
	journal  *journal.Store
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, root string) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	var opts []indexer.Option

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		a.closers = append(a.closers, producer.Close)
		opts = append(opts, indexer.WithNotifier(indexer.NewKafkaNotifier(producer)))
		slog.Info("commit notifications enabled", "topic", cfg.Kafka.Topics.IndexComplete)
	}

	if cfg.Journal.Enabled {
		if err := a.openJournal(ctx); err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, indexer.WithJournal(a.journal))
	}

	engine, err := indexer.NewEngine(cfg.Index, root, a.metrics, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine
	a.executor = executor.New(engine.Store(), a.metrics)

	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			a.closers = append(a.closers, rc.Close)
			a.cache = cache.New(rc, cfg.Redis.CacheTTL, a.metrics)
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	return a, nil
}

func (a *app) openJournal(ctx context.Context) error {
	db, err := database.Open(ctx, a.cfg.Journal)
	if err != nil {
		return fmt.Errorf("opening run journal: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	store, err := journal.New(ctx, db)
	if err != nil {
		return err
	}
	a.journal = store
	return nil
}

// invalidate drops cached query results after a commit.
func (a *app) invalidate(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx); err != nil {
		slog.Warn("cache invalidation failed", "error", err)
	}
}

// Close writes the metrics textfile when configured and releases backends
// in reverse order of acquisition.
func (a *app) Close() {
	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			slog.Warn("writing metrics textfile failed", "path", path, "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closing backend failed", "error", err)
		}
	}
	a.closers = nil
}
