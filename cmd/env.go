package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mintmark-dev/mintmark/internal/catalog"
	"github.com/mintmark-dev/mintmark/internal/crawl"
	"github.com/mintmark-dev/mintmark/internal/enrich"
	"github.com/mintmark-dev/mintmark/internal/store"
	"github.com/mintmark-dev/mintmark/internal/trust"
)

// env bundles the long-lived collaborators a command needs. Close releases
// the store connection.
type env struct {
	Store    store.Store
	Registry *catalog.Registry
	Enrich   *enrich.Service
	Applier  *enrich.Applier
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// openStore opens the configured backend and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.OpenPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		st, err = store.NewSQLite(cfg.Store.Path)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "cmd: migrate")
	}
	return st, nil
}

func newCoordinator() *crawl.Coordinator {
	return crawl.NewCoordinator(crawl.Options{
		UserAgent:  cfg.Crawl.UserAgent,
		Timeout:    time.Duration(cfg.Crawl.TimeoutSecs) * time.Second,
		MinDelay:   time.Duration(cfg.Crawl.MinDelayMillis) * time.Millisecond,
		RobotsTTL:  time.Duration(cfg.Crawl.RobotsTTLHours) * time.Hour,
		MaxRetries: cfg.Crawl.MaxRetries,
	})
}

// initEnv builds the full command environment: store, catalog registry, and
// enrichment services.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	registry := catalog.NewRegistry(newCoordinator(), cfg.Catalog.TTLDays)
	return &env{
		Store:    st,
		Registry: registry,
		Enrich:   enrich.NewService(st, registry, trust.DefaultPolicy(), cfg.Enrich.Workers),
		Applier:  enrich.NewApplier(st),
	}, nil
}
