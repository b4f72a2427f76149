// Package catalog provides implementations of [eve.Catalog]: an in-memory
// store loaded from YAML, a PostgreSQL-backed store, and (in the sde
// subpackage) a read-only view over the SDE SQLite dump.
package catalog

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/waitlist/pkg/eve"
)

// Compile-time interface assertions.
var (
	_ eve.Catalog    = (*MemStore)(nil)
	_ eve.NameLister = (*MemStore)(nil)
)

// MemStore is a thread-safe, in-memory item catalog with a case-insensitive
// name index. The zero value is ready to use.
type MemStore struct {
	mu     sync.RWMutex
	byID   map[eve.TypeID]eve.Item
	byName map[string]eve.TypeID
}

// NewMemStore returns a [MemStore] holding items. Items are validated; the
// first invalid item aborts construction.
func NewMemStore(items ...eve.Item) (*MemStore, error) {
	s := &MemStore{}
	if err := s.Upsert(context.Background(), items...); err != nil {
		return nil, err
	}
	return s, nil
}

// ItemByName implements [eve.Catalog].
func (s *MemStore) ItemByName(ctx context.Context, name string) (eve.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[normalizeName(name)]
	if !ok {
		return eve.Item{}, eve.ErrNotFound
	}
	return s.byID[id], nil
}

// ItemByID implements [eve.Catalog].
func (s *MemStore) ItemByID(ctx context.Context, id eve.TypeID) (eve.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.byID[id]
	if !ok {
		return eve.Item{}, eve.ErrNotFound
	}
	return it, nil
}

// ItemsByID implements [eve.Catalog].
func (s *MemStore) ItemsByID(ctx context.Context, ids []eve.TypeID) (map[eve.TypeID]eve.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[eve.TypeID]eve.Item, len(ids))
	for _, id := range ids {
		if it, ok := s.byID[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

// ItemNames implements [eve.NameLister]. Names are returned sorted.
func (s *MemStore) ItemNames(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.byID))
	for _, it := range s.byID {
		names = append(names, it.Name)
	}
	slices.Sort(names)
	return names, nil
}

// Len returns the number of items in the catalog.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Upsert adds or replaces items. All items are validated first; nothing is
// stored if any item is invalid or two items share a name.
func (s *MemStore) Upsert(ctx context.Context, items ...eve.Item) error {
	if err := validateAll(items); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byID == nil {
		s.byID = make(map[eve.TypeID]eve.Item, len(items))
		s.byName = make(map[string]eve.TypeID, len(items))
	}
	for _, it := range items {
		if id, ok := s.byName[normalizeName(it.Name)]; ok && id != it.ID {
			return fmt.Errorf("catalog: name %q already used by type %d", it.Name, id)
		}
	}
	for _, it := range items {
		if old, ok := s.byID[it.ID]; ok {
			delete(s.byName, normalizeName(old.Name))
		}
		it.Attributes = maps.Clone(it.Attributes)
		s.byID[it.ID] = it
		s.byName[normalizeName(it.Name)] = it.ID
	}
	return nil
}

// Replace atomically swaps the catalog contents for items.
func (s *MemStore) Replace(items []eve.Item) error {
	next := &MemStore{}
	if err := next.Upsert(context.Background(), items...); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID, s.byName = next.byID, next.byName
	return nil
}

func validateAll(items []eve.Item) error {
	seen := make(map[string]eve.TypeID, len(items))
	for i, it := range items {
		if err := Validate(it); err != nil {
			return fmt.Errorf("catalog: item[%d] %q: %w", i, it.Name, err)
		}
		key := normalizeName(it.Name)
		if id, ok := seen[key]; ok && id != it.ID {
			return fmt.Errorf("catalog: item[%d]: name %q duplicates type %d", i, it.Name, id)
		}
		seen[key] = it.ID
	}
	return nil
}

// normalizeName folds a name for case-insensitive lookup.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
