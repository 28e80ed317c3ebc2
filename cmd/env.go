package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/db"
	"github.com/sells-group/content-router/internal/engine"
	"github.com/sells-group/content-router/internal/store"
)

// env holds the long-lived dependencies of a command.
type env struct {
	Store   store.Store
	Catalog *catalog.Cache
	Engine  *engine.Engine

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (e *env) onClose(fn func()) {
	e.closers = append(e.closers, fn)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "content.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// catalogLoader returns the configured catalog loader. A Postgres catalog
// shares the store's pool when the store is Postgres too.
func catalogLoader(ctx context.Context, e *env) (catalog.Loader, error) {
	switch cfg.Catalog.Source {
	case "yaml":
		return catalog.NewYAMLLoader(cfg.Catalog.Path), nil
	case "postgres":
		if pg, ok := e.Store.(*store.PostgresStore); ok {
			return catalog.NewPostgresLoader(pg.Pool()), nil
		}
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, nil, nil)
		if err != nil {
			return nil, eris.Wrap(err, "connect catalog database")
		}
		e.onClose(pool.Close)
		return catalog.NewPostgresLoader(pool), nil
	default:
		return nil, eris.Errorf("unsupported catalog source: %s", cfg.Catalog.Source)
	}
}

// initEnv validates config for mode, opens and migrates the store, and
// builds the cached catalog and the engine.
func initEnv(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	e := &env{Store: st}
	e.onClose(func() {
		if err := st.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	})

	if err := st.Migrate(ctx); err != nil {
		e.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	loader, err := catalogLoader(ctx, e)
	if err != nil {
		e.Close()
		return nil, err
	}
	opts := engine.OptionsFromConfig(cfg)
	e.Catalog = catalog.NewCache(loader, cfg.Catalog.CacheTTL(), opts.Scale)

	if cfg.Catalog.Watch && cfg.Catalog.Source == "yaml" {
		w, err := catalog.NewWatcher(cfg.Catalog.Path, e.Catalog)
		if err != nil {
			e.Close()
			return nil, err
		}
		if err := w.Start(ctx); err != nil {
			e.Close()
			return nil, err
		}
		e.onClose(func() {
			if err := w.Stop(); err != nil {
				zap.L().Warn("stop catalog watcher", zap.Error(err))
			}
		})
	}

	e.Engine = engine.New(e.Catalog, st, opts)
	return e, nil
}
