package doctrine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/pkg/eve"
)

const (
	vindicator eve.TypeID = 17740
	kronos     eve.TypeID = 28661
)

func vindiFit(name string, priority int) doctrine.Fit {
	return doctrine.Fit{
		Name:       name,
		ShipTypeID: vindicator,
		Category:   doctrine.CategoryDPS,
		Priority:   priority,
		Items:      map[eve.TypeID]int{vindicator: 1, 3841: 2},
	}
}

func TestUpsertDoctrine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("assigns sequential IDs", func(t *testing.T) {
		t.Parallel()
		s := doctrine.NewMemStore()
		a, err := s.UpsertDoctrine(ctx, vindiFit("A", 0))
		if err != nil {
			t.Fatalf("UpsertDoctrine: unexpected error: %v", err)
		}
		b, err := s.UpsertDoctrine(ctx, vindiFit("B", 0))
		if err != nil {
			t.Fatalf("UpsertDoctrine: unexpected error: %v", err)
		}
		if a.ID != 1 || b.ID != 2 {
			t.Fatalf("UpsertDoctrine: expected IDs 1 and 2, got %d and %d", a.ID, b.ID)
		}
	})

	t.Run("explicit ID replaces", func(t *testing.T) {
		t.Parallel()
		s := doctrine.NewMemStore()
		f := vindiFit("Old", 0)
		f.ID = 7
		if _, err := s.UpsertDoctrine(ctx, f); err != nil {
			t.Fatalf("UpsertDoctrine: unexpected error: %v", err)
		}
		f.Name = "New"
		if _, err := s.UpsertDoctrine(ctx, f); err != nil {
			t.Fatalf("UpsertDoctrine: unexpected error: %v", err)
		}
		got, err := s.Doctrine(ctx, 7)
		if err != nil {
			t.Fatalf("Doctrine: unexpected error: %v", err)
		}
		if got.Name != "New" {
			t.Fatalf("Doctrine: expected name %q, got %q", "New", got.Name)
		}
		next, _ := s.UpsertDoctrine(ctx, vindiFit("Next", 0))
		if next.ID != 8 {
			t.Fatalf("UpsertDoctrine: expected next ID 8, got %d", next.ID)
		}
	})

	t.Run("invalid doctrine rejected", func(t *testing.T) {
		t.Parallel()
		s := doctrine.NewMemStore()
		if _, err := s.UpsertDoctrine(ctx, doctrine.Fit{}); err == nil {
			t.Fatal("UpsertDoctrine: expected validation error, got nil")
		}
	})

	t.Run("stored copy is isolated from caller", func(t *testing.T) {
		t.Parallel()
		s := doctrine.NewMemStore()
		f := vindiFit("A", 0)
		stored, _ := s.UpsertDoctrine(ctx, f)
		f.Items[3841] = 99
		got, _ := s.Doctrine(ctx, stored.ID)
		if got.Items[3841] != 2 {
			t.Fatalf("Doctrine: expected quantity 2, got %d", got.Items[3841])
		}
	})
}

func TestDoctrinesForShip_Order(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := doctrine.NewMemStore()
	for _, f := range []doctrine.Fit{vindiFit("low", 0), vindiFit("high", 10), vindiFit("low-2", 0)} {
		if _, err := s.UpsertDoctrine(ctx, f); err != nil {
			t.Fatalf("UpsertDoctrine: unexpected error: %v", err)
		}
	}
	other := vindiFit("kronos", 50)
	other.ShipTypeID = kronos
	other.Items = map[eve.TypeID]int{kronos: 1}
	if _, err := s.UpsertDoctrine(ctx, other); err != nil {
		t.Fatalf("UpsertDoctrine: unexpected error: %v", err)
	}

	got, err := s.DoctrinesForShip(ctx, vindicator)
	if err != nil {
		t.Fatalf("DoctrinesForShip: unexpected error: %v", err)
	}
	want := []string{"high", "low", "low-2"}
	if len(got) != len(want) {
		t.Fatalf("DoctrinesForShip: expected %d doctrines, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("DoctrinesForShip[%d]: expected %q, got %q", i, name, got[i].Name)
		}
	}

	none, err := s.DoctrinesForShip(ctx, 1)
	if err != nil {
		t.Fatalf("DoctrinesForShip: unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("DoctrinesForShip: expected no doctrines, got %d", len(none))
	}
}

func TestComparisonRules_Scoping(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := doctrine.NewMemStore()
	rules := []doctrine.ComparisonRule{
		{GroupID: 38, AttributeID: 72, HigherIsBetter: true},
		{GroupID: 38, AttributeID: 72, HigherIsBetter: true, ShipTypeID: vindicator},
		{GroupID: 38, AttributeID: 50, HigherIsBetter: false, ShipTypeID: kronos},
	}
	for _, r := range rules {
		if _, err := s.UpsertRule(ctx, r); err != nil {
			t.Fatalf("UpsertRule: unexpected error: %v", err)
		}
	}

	got, err := s.ComparisonRules(ctx, vindicator)
	if err != nil {
		t.Fatalf("ComparisonRules: unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ComparisonRules: expected 2 rules, got %d", len(got))
	}
	for _, r := range got {
		if r.ShipTypeID == kronos {
			t.Fatalf("ComparisonRules: returned rule scoped to another hull: %+v", r)
		}
	}

	global, _ := s.ComparisonRules(ctx, 0)
	if len(global) != 1 || !global[0].IsGlobal() {
		t.Fatalf("ComparisonRules(0): expected 1 global rule, got %+v", global)
	}
}

func TestUpsertRule_SameKeyReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := doctrine.NewMemStore()
	first, _ := s.UpsertRule(ctx, doctrine.ComparisonRule{GroupID: 38, AttributeID: 72, HigherIsBetter: true})
	second, _ := s.UpsertRule(ctx, doctrine.ComparisonRule{GroupID: 38, AttributeID: 72, HigherIsBetter: false})
	if first.ID != second.ID {
		t.Fatalf("UpsertRule: expected same ID, got %d and %d", first.ID, second.ID)
	}
	got, _ := s.ComparisonRules(ctx, 0)
	if len(got) != 1 || got[0].HigherIsBetter {
		t.Fatalf("ComparisonRules: expected single replaced rule, got %+v", got)
	}
}

func TestSubstitutionGroups(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := doctrine.NewMemStore()
	if _, err := s.UpsertSubstitutionGroup(ctx, doctrine.SubstitutionGroup{BaseItemID: 3841, Substitutes: []eve.TypeID{31930}}); err != nil {
		t.Fatalf("UpsertSubstitutionGroup: unexpected error: %v", err)
	}
	if _, err := s.UpsertSubstitutionGroup(ctx, doctrine.SubstitutionGroup{BaseItemID: 3841, Substitutes: []eve.TypeID{31930, 31932}}); err != nil {
		t.Fatalf("UpsertSubstitutionGroup: unexpected error: %v", err)
	}
	groups, err := s.SubstitutionGroups(ctx)
	if err != nil {
		t.Fatalf("SubstitutionGroups: unexpected error: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("SubstitutionGroups: expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if !g.Allows(3841) || !g.Allows(31932) || g.Allows(1) {
		t.Fatalf("Allows: unexpected result for group %+v", g)
	}
}

func TestDeleteDoctrine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := doctrine.NewMemStore()
	f, _ := s.UpsertDoctrine(ctx, vindiFit("A", 0))
	if err := s.DeleteDoctrine(ctx, f.ID); err != nil {
		t.Fatalf("DeleteDoctrine: unexpected error: %v", err)
	}
	if _, err := s.Doctrine(ctx, f.ID); !errors.Is(err, doctrine.ErrNotFound) {
		t.Fatalf("Doctrine: expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteDoctrine(ctx, f.ID); !errors.Is(err, doctrine.ErrNotFound) {
		t.Fatalf("DeleteDoctrine: expected ErrNotFound, got %v", err)
	}
}

func TestReplace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := doctrine.NewMemStore()
	_, _ = s.UpsertDoctrine(ctx, vindiFit("old", 0))

	err := s.Replace([]doctrine.Fit{vindiFit("new", 0)}, nil, []doctrine.ComparisonRule{{GroupID: 1, AttributeID: 2}})
	if err != nil {
		t.Fatalf("Replace: unexpected error: %v", err)
	}
	all, _ := s.Doctrines(ctx)
	if len(all) != 1 || all[0].Name != "new" {
		t.Fatalf("Doctrines: expected only %q, got %+v", "new", all)
	}

	if err := s.Replace([]doctrine.Fit{{Name: "broken"}}, nil, nil); err == nil {
		t.Fatal("Replace: expected validation error, got nil")
	}
	all, _ = s.Doctrines(ctx)
	if len(all) != 1 || all[0].Name != "new" {
		t.Fatalf("Doctrines: failed Replace must not modify the store, got %+v", all)
	}
}

func TestMemStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := doctrine.NewMemStore()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.UpsertDoctrine(ctx, vindiFit("f", i))
		}()
		go func() {
			defer wg.Done()
			_, _ = s.DoctrinesForShip(ctx, vindicator)
		}()
	}
	wg.Wait()

	all, _ := s.Doctrines(ctx)
	if len(all) != 20 {
		t.Fatalf("Doctrines: expected 20 doctrines, got %d", len(all))
	}
}

func TestRulePasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		higher    bool
		submitted float64
		required  float64
		want      bool
	}{
		{"higher better, equal", true, 10, 10, true},
		{"higher better, better", true, 11, 10, true},
		{"higher better, worse", true, 9, 10, false},
		{"lower better, equal", false, 10, 10, true},
		{"lower better, better", false, 9, 10, true},
		{"lower better, worse", false, 11, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := doctrine.ComparisonRule{HigherIsBetter: tt.higher}
			if got := r.Passes(tt.submitted, tt.required); got != tt.want {
				t.Errorf("Passes(%v, %v) = %v, want %v", tt.submitted, tt.required, got, tt.want)
			}
		})
	}
}
