package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/waitlist/internal/catalog"
	"github.com/MrWong99/waitlist/internal/catalog/sde"
	"github.com/MrWong99/waitlist/internal/config"
	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/internal/observe"
	"github.com/MrWong99/waitlist/internal/resilience"
	"github.com/MrWong99/waitlist/pkg/eve"
)

// RegisterBuiltinSources wires the data sources that ship with the waitlist
// into reg. Postgres sources sit behind a circuit breaker whose state changes
// are recorded to m; nil means [observe.DefaultMetrics].
//
// The yaml doctrine source yields an empty [doctrine.MemStore]. [New] fills
// it once the fit checker exists, since preparing doctrines parses their EFT
// text against the catalog.
func RegisterBuiltinSources(reg *config.Registry, m *observe.Metrics) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	breaker := func(name string, bc config.BreakerConfig) *resilience.CircuitBreaker {
		return resilience.NewCircuitBreaker(resilience.Config{
			Name:         name,
			MaxFailures:  bc.MaxFailures,
			ResetTimeout: bc.ResetTimeout,
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		})
	}

	reg.RegisterCatalog(config.SourceYAML, func(_ context.Context, cfg config.CatalogConfig) (eve.Catalog, config.CloseFunc, error) {
		store, err := catalog.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	})

	reg.RegisterCatalog(config.SourceSDE, func(ctx context.Context, cfg config.CatalogConfig) (eve.Catalog, config.CloseFunc, error) {
		store, err := sde.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	})

	reg.RegisterCatalog(config.SourcePostgres, func(ctx context.Context, cfg config.CatalogConfig) (eve.Catalog, config.CloseFunc, error) {
		pool, err := openPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("catalog: %w", err)
		}
		store := catalog.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		guarded := resilience.GuardCatalog(pooledCatalog{PostgresStore: store, pool: pool}, breaker("catalog", cfg.Breaker))
		return guarded, pool.Close, nil
	})

	reg.RegisterDoctrines(config.SourceYAML, func(context.Context, config.DoctrinesConfig) (doctrine.Store, config.CloseFunc, error) {
		return doctrine.NewMemStore(), nil, nil
	})

	reg.RegisterDoctrines(config.SourcePostgres, func(ctx context.Context, cfg config.DoctrinesConfig) (doctrine.Store, config.CloseFunc, error) {
		pool, err := openPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("doctrine: %w", err)
		}
		store := doctrine.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		guarded := resilience.GuardDoctrines(pooledDoctrines{PostgresStore: store, pool: pool}, breaker("doctrines", cfg.Breaker))
		return guarded, pool.Close, nil
	})
}

// openPool connects to PostgreSQL and verifies the connection.
func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// pooledCatalog exposes the pool's Ping so the readiness check can probe
// the database through the breaker wrapper.
type pooledCatalog struct {
	*catalog.PostgresStore
	pool *pgxpool.Pool
}

func (c pooledCatalog) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

type pooledDoctrines struct {
	*doctrine.PostgresStore
	pool *pgxpool.Pool
}

func (d pooledDoctrines) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }
