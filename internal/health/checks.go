package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/pkg/eve"
)

// Pinger is implemented by connection pools such as pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck returns a [Checker] that pings a database connection.
func PingCheck(name string, p Pinger) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) (string, error) {
			return "", p.Ping(ctx)
		},
	}
}

// CatalogCheck returns a [Checker] that resolves probe through cat. The
// catalog is unready while it cannot produce that item, which catches both
// an unreachable backend and an empty or half-loaded data file.
func CatalogCheck(cat eve.Catalog, probe eve.TypeID) Checker {
	return Checker{
		Name: "catalog",
		Check: func(ctx context.Context) (string, error) {
			it, err := cat.ItemByID(ctx, probe)
			if errors.Is(err, eve.ErrNotFound) {
				return "", fmt.Errorf("probe type %d missing", probe)
			}
			if err != nil {
				return "", err
			}
			return it.Name, nil
		},
	}
}

// DoctrineCheck returns a [Checker] that lists the doctrines in store. An
// empty store is ready; every fit is then left pending.
func DoctrineCheck(store doctrine.Store) Checker {
	return Checker{
		Name: "doctrines",
		Check: func(ctx context.Context) (string, error) {
			fits, err := store.Doctrines(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d doctrines", len(fits)), nil
		},
	}
}
