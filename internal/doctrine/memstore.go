package doctrine

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/waitlist/pkg/eve"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. It backs
// YAML-configured deployments and tests.
// The zero value is ready to use.
type MemStore struct {
	mu     sync.RWMutex
	fits   map[int64]Fit
	groups map[eve.TypeID]SubstitutionGroup
	rules  map[ruleKey]ComparisonRule

	nextID      int64
	nextGroupID int64
	nextRuleID  int64
}

type ruleKey struct {
	group int64
	attr  eve.AttributeID
	ship  eve.TypeID
}

func keyOf(r ComparisonRule) ruleKey {
	return ruleKey{group: r.GroupID, attr: r.AttributeID, ship: r.ShipTypeID}
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	s := &MemStore{}
	s.init()
	return s
}

func (s *MemStore) init() {
	if s.fits == nil {
		s.fits = make(map[int64]Fit)
	}
	if s.groups == nil {
		s.groups = make(map[eve.TypeID]SubstitutionGroup)
	}
	if s.rules == nil {
		s.rules = make(map[ruleKey]ComparisonRule)
	}
}

// DoctrinesForShip implements [Store.DoctrinesForShip].
func (s *MemStore) DoctrinesForShip(ctx context.Context, ship eve.TypeID) ([]Fit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Fit, 0)
	for _, f := range s.fits {
		if f.ShipTypeID == ship {
			result = append(result, cloneFit(f))
		}
	}
	SortFits(result)
	return result, nil
}

// Doctrine implements [Store.Doctrine].
func (s *MemStore) Doctrine(ctx context.Context, id int64) (Fit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fits[id]
	if !ok {
		return Fit{}, ErrNotFound
	}
	return cloneFit(f), nil
}

// Doctrines implements [Store.Doctrines].
func (s *MemStore) Doctrines(ctx context.Context) ([]Fit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Fit, 0, len(s.fits))
	for _, f := range s.fits {
		result = append(result, cloneFit(f))
	}
	SortFits(result)
	return result, nil
}

// SubstitutionGroups implements [Store.SubstitutionGroups].
func (s *MemStore) SubstitutionGroups(ctx context.Context) ([]SubstitutionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]SubstitutionGroup, 0, len(s.groups))
	for _, g := range s.groups {
		g.Substitutes = slices.Clone(g.Substitutes)
		result = append(result, g)
	}
	slices.SortFunc(result, func(a, b SubstitutionGroup) int { return cmp.Compare(a.BaseItemID, b.BaseItemID) })
	return result, nil
}

// ComparisonRules implements [Store.ComparisonRules].
func (s *MemStore) ComparisonRules(ctx context.Context, ship eve.TypeID) ([]ComparisonRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ComparisonRule, 0)
	for _, r := range s.rules {
		if r.IsGlobal() || r.ShipTypeID == ship {
			result = append(result, r)
		}
	}
	slices.SortFunc(result, func(a, b ComparisonRule) int {
		return cmp.Or(
			cmp.Compare(a.GroupID, b.GroupID),
			cmp.Compare(a.ShipTypeID, b.ShipTypeID),
			cmp.Compare(a.AttributeID, b.AttributeID),
		)
	})
	return result, nil
}

// UpsertDoctrine implements [Store.UpsertDoctrine].
func (s *MemStore) UpsertDoctrine(ctx context.Context, f Fit) (Fit, error) {
	if err := Validate(f); err != nil {
		return Fit{}, fmt.Errorf("doctrine: upsert %q: %w", f.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	if f.ID == 0 {
		s.nextID++
		f.ID = s.nextID
	} else if f.ID > s.nextID {
		s.nextID = f.ID
	}
	f = cloneFit(f)
	s.fits[f.ID] = f
	return cloneFit(f), nil
}

// UpsertSubstitutionGroup implements [Store.UpsertSubstitutionGroup].
func (s *MemStore) UpsertSubstitutionGroup(ctx context.Context, g SubstitutionGroup) (SubstitutionGroup, error) {
	if err := ValidateSubstitutionGroup(g); err != nil {
		return SubstitutionGroup{}, fmt.Errorf("doctrine: upsert substitution group %d: %w", g.BaseItemID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	if existing, ok := s.groups[g.BaseItemID]; ok && g.ID == 0 {
		g.ID = existing.ID
	}
	if g.ID == 0 {
		s.nextGroupID++
		g.ID = s.nextGroupID
	} else if g.ID > s.nextGroupID {
		s.nextGroupID = g.ID
	}
	g.Substitutes = slices.Clone(g.Substitutes)
	s.groups[g.BaseItemID] = g
	return g, nil
}

// UpsertRule implements [Store.UpsertRule].
func (s *MemStore) UpsertRule(ctx context.Context, r ComparisonRule) (ComparisonRule, error) {
	if err := ValidateRule(r); err != nil {
		return ComparisonRule{}, fmt.Errorf("doctrine: upsert rule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	k := keyOf(r)
	if existing, ok := s.rules[k]; ok && r.ID == 0 {
		r.ID = existing.ID
	}
	if r.ID == 0 {
		s.nextRuleID++
		r.ID = s.nextRuleID
	} else if r.ID > s.nextRuleID {
		s.nextRuleID = r.ID
	}
	s.rules[k] = r
	return r, nil
}

// DeleteDoctrine implements [Store.DeleteDoctrine].
func (s *MemStore) DeleteDoctrine(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fits[id]; !ok {
		return ErrNotFound
	}
	delete(s.fits, id)
	return nil
}

// Replace atomically swaps the entire contents of the store. It is used when
// a doctrine file is reloaded. All entries are validated before anything is
// replaced.
func (s *MemStore) Replace(fits []Fit, groups []SubstitutionGroup, rules []ComparisonRule) error {
	next := &MemStore{}
	next.init()
	ctx := context.Background()
	for _, f := range fits {
		if _, err := next.UpsertDoctrine(ctx, f); err != nil {
			return err
		}
	}
	for _, g := range groups {
		if _, err := next.UpsertSubstitutionGroup(ctx, g); err != nil {
			return err
		}
	}
	for _, r := range rules {
		if _, err := next.UpsertRule(ctx, r); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fits, s.groups, s.rules = next.fits, next.groups, next.rules
	s.nextID, s.nextGroupID, s.nextRuleID = next.nextID, next.nextGroupID, next.nextRuleID
	return nil
}
