package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goliatone/go-logger/glog"

	finalize "github.com/goliatone/go-finalize"
	"github.com/goliatone/go-finalize/analytics"
	"github.com/goliatone/go-finalize/config"
	"github.com/goliatone/go-finalize/finalizer"
	"github.com/goliatone/go-finalize/identity"
	"github.com/goliatone/go-finalize/lock"
	"github.com/goliatone/go-finalize/store"
	"github.com/goliatone/go-finalize/tags"
)

// Globals is bound into every command.
type Globals struct {
	ctx        context.Context
	configPath string
}

// app holds the wired runtime.
type app struct {
	cfg       config.Config
	logger    finalize.Logger
	db        *sql.DB
	store     *store.SQLStore
	locker    *lock.SQLLocker
	finalizer *finalizer.Finalizer
	resolver  *tags.Resolver
	closers   []io.Closer
}

func newLogger(cfg config.Logging, out io.Writer) finalize.Logger {
	level := strings.ToLower(cfg.Level)
	if strings.EqualFold(cfg.Format, "json") {
		return finalize.NewGlogLogger(glog.NewLogger(
			glog.WithWriter(out),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(level),
		))
	}
	return finalize.NewGlogLogger(glog.NewLogger(
		glog.WithWriter(out),
		glog.WithLevel(level),
	))
}

func bootstrap(g *Globals) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Logging, os.Stderr)

	db, d, err := store.Open(g.ctx, cfg.DBConfig())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: db, closers: []io.Closer{db}}

	a.store = store.NewSQLStore(db, d, "")
	if err := a.store.EnsureSchema(g.ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}
	a.locker = lock.NewSQLLocker(db, d,
		lock.WithTable(cfg.Lock.Table),
		lock.WithPollInterval(cfg.Lock.PollInterval),
	)
	if err := a.locker.EnsureSchema(g.ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("lock schema: %w", err)
	}

	transport, err := a.transport(g.ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("analytics transport: %w", err)
	}

	accounts := store.NewCachedAccountDirectory(a.store, cfg.Analytics.AccountCacheTTL, logger)
	users := a.store.Users()
	coordinator := identity.NewCoordinator(users, transport, a.locker,
		identity.WithWaitTimeout(cfg.Lock.WaitTimeout),
		identity.WithLeaseTimeout(cfg.Lock.LeaseTimeout),
		identity.WithLogger(logger),
	)
	reporter := analytics.NewReporter(accounts, users, coordinator, transport,
		analytics.WithEventName(cfg.Analytics.EventName),
		analytics.WithDefaultIdentity(cfg.Analytics.DefaultIdentity),
		analytics.WithLogger(logger),
	)
	a.resolver = tags.NewResolver(a.store, tags.WithResolverLogger(logger))
	a.finalizer = finalizer.New(a.store, a.resolver, tags.NewApplier(a.store), reporter,
		finalizer.WithRendererFactory(finalizer.AccountRendererFactory(accounts, logger)),
		finalizer.WithLogger(logger),
	)
	return a, nil
}

func (a *app) transport(ctx context.Context) (finalize.AnalyticsTransport, error) {
	switch a.cfg.Analytics.Sink {
	case config.SinkObjectStore:
		osCfg := a.cfg.ObjectStoreConfig()
		client, err := analytics.NewMinIOClient(osCfg)
		if err != nil {
			return nil, err
		}
		if err := analytics.EnsureBucket(ctx, client, osCfg.Bucket, osCfg.Region); err != nil {
			return nil, err
		}
		return analytics.NewObjectStoreTransport(client, osCfg.Bucket, osCfg.Prefix)
	default:
		path := a.cfg.Analytics.NDJSONPath
		if path == "-" {
			return analytics.NewNDJSONTransport(os.Stdout), nil
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, f)
		return analytics.NewNDJSONTransport(f), nil
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed: %v", err)
		}
	}
	a.closers = nil
}
