package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/waitlist/internal/catalog"
	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/internal/resilience"
	"github.com/MrWong99/waitlist/pkg/eve"
)

var errDown = errors.New("dial tcp: connection refused")

// flakyCatalog fails every lookup while down is set.
type flakyCatalog struct {
	*catalog.MemStore
	down  bool
	pings int
}

func (f *flakyCatalog) ItemByName(ctx context.Context, name string) (eve.Item, error) {
	if f.down {
		return eve.Item{}, errDown
	}
	return f.MemStore.ItemByName(ctx, name)
}

func (f *flakyCatalog) Ping(context.Context) error {
	f.pings++
	if f.down {
		return errDown
	}
	return nil
}

func TestGuardCatalog(t *testing.T) {
	t.Parallel()

	mem, err := catalog.NewMemStore(eve.Item{ID: 587, Name: "Rifter", CategoryID: eve.CategoryShip, Hull: &eve.HullSlots{High: 4}})
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	inner := &flakyCatalog{MemStore: mem}
	cb := resilience.NewCircuitBreaker(resilience.Config{Name: "catalog", MaxFailures: 2, ResetTimeout: time.Hour})
	cat := resilience.GuardCatalog(inner, cb)
	ctx := context.Background()

	if it, err := cat.ItemByName(ctx, "rifter"); err != nil || it.ID != 587 {
		t.Fatalf("ItemByName: got %+v, %v", it, err)
	}
	if _, err := cat.ItemByName(ctx, "Slasher"); !errors.Is(err, eve.ErrNotFound) {
		t.Fatalf("ItemByName(missing): got %v, want ErrNotFound", err)
	}
	names, err := cat.ItemNames(ctx)
	if err != nil || len(names) != 1 {
		t.Fatalf("ItemNames: got %v, %v", names, err)
	}

	inner.down = true
	_, _ = cat.ItemByName(ctx, "Rifter")
	_, _ = cat.ItemByName(ctx, "Rifter")
	if cat.Breaker().State() != resilience.StateOpen {
		t.Fatalf("state = %v, want open", cat.Breaker().State())
	}

	// Every lookup now fails fast, including those the backend would serve.
	inner.down = false
	if _, err := cat.ItemByID(ctx, 587); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("ItemByID: got %v, want ErrCircuitOpen", err)
	}
	if _, err := cat.ItemsByID(ctx, []eve.TypeID{587}); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("ItemsByID: got %v, want ErrCircuitOpen", err)
	}

	// Ping bypasses the breaker.
	if err := cat.Ping(ctx); err != nil {
		t.Errorf("Ping: unexpected error: %v", err)
	}
	if inner.pings != 1 {
		t.Errorf("pings = %d, want 1", inner.pings)
	}
}

func TestGuardCatalog_WithoutLister(t *testing.T) {
	t.Parallel()

	cat := resilience.GuardCatalog(idOnlyCatalog{}, resilience.NewCircuitBreaker(resilience.Config{}))
	names, err := cat.ItemNames(context.Background())
	if err != nil || names != nil {
		t.Errorf("ItemNames: got %v, %v; want nil, nil", names, err)
	}
	if err := cat.Ping(context.Background()); err != nil {
		t.Errorf("Ping: got %v, want nil for a catalog without a database", err)
	}
}

type idOnlyCatalog struct{}

func (idOnlyCatalog) ItemByName(context.Context, string) (eve.Item, error) {
	return eve.Item{}, eve.ErrNotFound
}

func (idOnlyCatalog) ItemByID(context.Context, eve.TypeID) (eve.Item, error) {
	return eve.Item{}, eve.ErrNotFound
}

func (idOnlyCatalog) ItemsByID(context.Context, []eve.TypeID) (map[eve.TypeID]eve.Item, error) {
	return nil, nil
}

// downStore fails every read.
type downStore struct {
	doctrine.Store
	calls int
}

func (d *downStore) DoctrinesForShip(context.Context, eve.TypeID) ([]doctrine.Fit, error) {
	d.calls++
	return nil, errDown
}

func TestGuardDoctrines(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := doctrine.NewMemStore()
	store := resilience.GuardDoctrines(mem, resilience.NewCircuitBreaker(resilience.Config{Name: "doctrines", MaxFailures: 1}))

	stored, err := store.UpsertDoctrine(ctx, doctrine.Fit{
		Name: "Tackle", ShipTypeID: 587, Category: doctrine.CategoryDPS,
		Items: map[eve.TypeID]int{587: 1},
	})
	if err != nil {
		t.Fatalf("UpsertDoctrine: %v", err)
	}
	if _, err := store.Doctrine(ctx, stored.ID+1); !errors.Is(err, doctrine.ErrNotFound) {
		t.Fatalf("Doctrine(missing): got %v, want ErrNotFound", err)
	}
	if store.Breaker().State() != resilience.StateClosed {
		t.Fatal("a missing doctrine must not trip the breaker")
	}
	fits, err := store.DoctrinesForShip(ctx, 587)
	if err != nil || len(fits) != 1 {
		t.Fatalf("DoctrinesForShip: got %v, %v", fits, err)
	}
	if err := store.DeleteDoctrine(ctx, stored.ID); err != nil {
		t.Fatalf("DeleteDoctrine: %v", err)
	}

	down := &downStore{Store: mem}
	guarded := resilience.GuardDoctrines(down, resilience.NewCircuitBreaker(resilience.Config{Name: "doctrines", MaxFailures: 1, ResetTimeout: time.Hour}))
	if _, err := guarded.DoctrinesForShip(ctx, 587); !errors.Is(err, errDown) {
		t.Fatalf("first call: got %v, want the store error", err)
	}
	if _, err := guarded.DoctrinesForShip(ctx, 587); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("second call: got %v, want ErrCircuitOpen", err)
	}
	if down.calls != 1 {
		t.Errorf("calls = %d, want 1: the open breaker must not reach the store", down.calls)
	}
}
