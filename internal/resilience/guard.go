package resilience

import (
	"context"

	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/pkg/eve"
)

// Pinger is implemented by stores that can probe their database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// guard runs fn through cb and returns its value.
func guard[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := cb.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Catalog is an [eve.Catalog] whose lookups pass through a circuit breaker.
type Catalog struct {
	inner eve.Catalog
	cb    *CircuitBreaker
}

var (
	_ eve.Catalog    = (*Catalog)(nil)
	_ eve.NameLister = (*Catalog)(nil)
)

// GuardCatalog wraps inner with cb.
func GuardCatalog(inner eve.Catalog, cb *CircuitBreaker) *Catalog {
	return &Catalog{inner: inner, cb: cb}
}

// Breaker returns the breaker guarding the catalog.
func (c *Catalog) Breaker() *CircuitBreaker { return c.cb }

// ItemByName implements [eve.Catalog].
func (c *Catalog) ItemByName(ctx context.Context, name string) (eve.Item, error) {
	return guard(ctx, c.cb, func(ctx context.Context) (eve.Item, error) {
		return c.inner.ItemByName(ctx, name)
	})
}

// ItemByID implements [eve.Catalog].
func (c *Catalog) ItemByID(ctx context.Context, id eve.TypeID) (eve.Item, error) {
	return guard(ctx, c.cb, func(ctx context.Context) (eve.Item, error) {
		return c.inner.ItemByID(ctx, id)
	})
}

// ItemsByID implements [eve.Catalog].
func (c *Catalog) ItemsByID(ctx context.Context, ids []eve.TypeID) (map[eve.TypeID]eve.Item, error) {
	return guard(ctx, c.cb, func(ctx context.Context) (map[eve.TypeID]eve.Item, error) {
		return c.inner.ItemsByID(ctx, ids)
	})
}

// ItemNames implements [eve.NameLister]. A wrapped catalog that cannot list
// names yields none.
func (c *Catalog) ItemNames(ctx context.Context) ([]string, error) {
	nl, ok := c.inner.(eve.NameLister)
	if !ok {
		return nil, nil
	}
	return guard(ctx, c.cb, nl.ItemNames)
}

// Ping probes the wrapped catalog's database, bypassing the breaker so
// readiness reflects the backend and not the breaker state. A wrapped catalog
// without a database is always reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	if p, ok := c.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Doctrines is a [doctrine.Store] whose calls pass through a circuit breaker.
type Doctrines struct {
	inner doctrine.Store
	cb    *CircuitBreaker
}

var _ doctrine.Store = (*Doctrines)(nil)

// GuardDoctrines wraps inner with cb.
func GuardDoctrines(inner doctrine.Store, cb *CircuitBreaker) *Doctrines {
	return &Doctrines{inner: inner, cb: cb}
}

// Breaker returns the breaker guarding the store.
func (d *Doctrines) Breaker() *CircuitBreaker { return d.cb }

// DoctrinesForShip implements [doctrine.Store].
func (d *Doctrines) DoctrinesForShip(ctx context.Context, ship eve.TypeID) ([]doctrine.Fit, error) {
	return guard(ctx, d.cb, func(ctx context.Context) ([]doctrine.Fit, error) {
		return d.inner.DoctrinesForShip(ctx, ship)
	})
}

// Doctrine implements [doctrine.Store].
func (d *Doctrines) Doctrine(ctx context.Context, id int64) (doctrine.Fit, error) {
	return guard(ctx, d.cb, func(ctx context.Context) (doctrine.Fit, error) {
		return d.inner.Doctrine(ctx, id)
	})
}

// Doctrines implements [doctrine.Store].
func (d *Doctrines) Doctrines(ctx context.Context) ([]doctrine.Fit, error) {
	return guard(ctx, d.cb, d.inner.Doctrines)
}

// SubstitutionGroups implements [doctrine.Store].
func (d *Doctrines) SubstitutionGroups(ctx context.Context) ([]doctrine.SubstitutionGroup, error) {
	return guard(ctx, d.cb, d.inner.SubstitutionGroups)
}

// ComparisonRules implements [doctrine.Store].
func (d *Doctrines) ComparisonRules(ctx context.Context, ship eve.TypeID) ([]doctrine.ComparisonRule, error) {
	return guard(ctx, d.cb, func(ctx context.Context) ([]doctrine.ComparisonRule, error) {
		return d.inner.ComparisonRules(ctx, ship)
	})
}

// UpsertDoctrine implements [doctrine.Store].
func (d *Doctrines) UpsertDoctrine(ctx context.Context, f doctrine.Fit) (doctrine.Fit, error) {
	return guard(ctx, d.cb, func(ctx context.Context) (doctrine.Fit, error) {
		return d.inner.UpsertDoctrine(ctx, f)
	})
}

// UpsertSubstitutionGroup implements [doctrine.Store].
func (d *Doctrines) UpsertSubstitutionGroup(ctx context.Context, g doctrine.SubstitutionGroup) (doctrine.SubstitutionGroup, error) {
	return guard(ctx, d.cb, func(ctx context.Context) (doctrine.SubstitutionGroup, error) {
		return d.inner.UpsertSubstitutionGroup(ctx, g)
	})
}

// UpsertRule implements [doctrine.Store].
func (d *Doctrines) UpsertRule(ctx context.Context, r doctrine.ComparisonRule) (doctrine.ComparisonRule, error) {
	return guard(ctx, d.cb, func(ctx context.Context) (doctrine.ComparisonRule, error) {
		return d.inner.UpsertRule(ctx, r)
	})
}

// DeleteDoctrine implements [doctrine.Store].
func (d *Doctrines) DeleteDoctrine(ctx context.Context, id int64) error {
	return d.cb.Do(ctx, func(ctx context.Context) error {
		return d.inner.DeleteDoctrine(ctx, id)
	})
}

// Ping probes the wrapped store's database, bypassing the breaker.
func (d *Doctrines) Ping(ctx context.Context) error {
	if p, ok := d.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
