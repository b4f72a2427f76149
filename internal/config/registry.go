package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/pkg/eve"
)

// ErrSourceNotRegistered is returned by Create* methods when no factory has
// been registered under the requested source.
var ErrSourceNotRegistered = errors.New("config: source not registered")

// CloseFunc releases whatever a factory opened (pools, file handles). It is
// never nil.
type CloseFunc func()

// CatalogFactory opens an item catalog from its config section.
type CatalogFactory func(ctx context.Context, cfg CatalogConfig) (eve.Catalog, CloseFunc, error)

// DoctrineFactory opens a doctrine store from its config section.
type DoctrineFactory func(ctx context.Context, cfg DoctrinesConfig) (doctrine.Store, CloseFunc, error)

// Registry maps source names to the constructors of catalogs and doctrine
// stores. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	catalog   map[Source]CatalogFactory
	doctrines map[Source]DoctrineFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		catalog:   make(map[Source]CatalogFactory),
		doctrines: make(map[Source]DoctrineFactory),
	}
}

// RegisterCatalog registers a catalog factory under source.
// Subsequent calls with the same source overwrite the previous registration.
func (r *Registry) RegisterCatalog(source Source, factory CatalogFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog[source] = factory
}

// RegisterDoctrines registers a doctrine store factory under source.
func (r *Registry) RegisterDoctrines(source Source, factory DoctrineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctrines[source] = factory
}

// CreateCatalog opens the catalog using the factory registered under
// cfg.Source. Returns [ErrSourceNotRegistered] if there is none.
func (r *Registry) CreateCatalog(ctx context.Context, cfg CatalogConfig) (eve.Catalog, CloseFunc, error) {
	r.mu.RLock()
	factory, ok := r.catalog[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: catalog/%q", ErrSourceNotRegistered, cfg.Source)
	}
	cat, closeFn, err := factory(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cat, orNoop(closeFn), nil
}

// CreateDoctrines opens the doctrine store using the factory registered under
// cfg.Source. Returns [ErrSourceNotRegistered] if there is none.
func (r *Registry) CreateDoctrines(ctx context.Context, cfg DoctrinesConfig) (doctrine.Store, CloseFunc, error) {
	r.mu.RLock()
	factory, ok := r.doctrines[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: doctrines/%q", ErrSourceNotRegistered, cfg.Source)
	}
	store, closeFn, err := factory(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, orNoop(closeFn), nil
}

func orNoop(fn CloseFunc) CloseFunc {
	if fn == nil {
		return func() {}
	}
	return fn
}
