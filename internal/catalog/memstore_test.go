package catalog_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/waitlist/internal/catalog"
	"github.com/MrWong99/waitlist/pkg/eve"
)

var (
	rifter = eve.Item{ID: 587, Name: "Rifter", GroupID: 25, CategoryID: eve.CategoryShip,
		Hull: &eve.HullSlots{High: 4, Mid: 3, Low: 3, Rig: 3}}
	lse = eve.Item{ID: 3841, Name: "Large Shield Extender II", GroupID: 38, CategoryID: 7,
		Slot: eve.SlotMid, Attributes: map[eve.AttributeID]float64{72: 2600}}
	dcu = eve.Item{ID: 2048, Name: "Damage Control II", GroupID: 60, CategoryID: 7, Slot: eve.SlotLow}
)

func TestMemStore_Lookups(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := catalog.NewMemStore(rifter, lse, dcu)
	if err != nil {
		t.Fatalf("NewMemStore: unexpected error: %v", err)
	}

	t.Run("name is case-insensitive", func(t *testing.T) {
		t.Parallel()
		got, err := s.ItemByName(ctx, "large SHIELD extender ii")
		if err != nil {
			t.Fatalf("ItemByName: unexpected error: %v", err)
		}
		if got.ID != lse.ID {
			t.Fatalf("ItemByName: expected %d, got %d", lse.ID, got.ID)
		}
	})

	t.Run("unknown name returns ErrNotFound", func(t *testing.T) {
		t.Parallel()
		if _, err := s.ItemByName(ctx, "Large Shield Extender III"); !errors.Is(err, eve.ErrNotFound) {
			t.Fatalf("ItemByName: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("by id", func(t *testing.T) {
		t.Parallel()
		got, err := s.ItemByID(ctx, 587)
		if err != nil {
			t.Fatalf("ItemByID: unexpected error: %v", err)
		}
		if !got.IsHull() {
			t.Fatal("ItemByID: expected Rifter to be a hull")
		}
		if _, err := s.ItemByID(ctx, 1); !errors.Is(err, eve.ErrNotFound) {
			t.Fatalf("ItemByID: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("bulk omits unknown ids", func(t *testing.T) {
		t.Parallel()
		got, err := s.ItemsByID(ctx, []eve.TypeID{587, 2048, 99999})
		if err != nil {
			t.Fatalf("ItemsByID: unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("ItemsByID: expected 2 items, got %d", len(got))
		}
		if _, ok := got[99999]; ok {
			t.Fatal("ItemsByID: unknown id present in result")
		}
	})

	t.Run("names sorted", func(t *testing.T) {
		t.Parallel()
		names, err := s.ItemNames(ctx)
		if err != nil {
			t.Fatalf("ItemNames: unexpected error: %v", err)
		}
		want := []string{"Damage Control II", "Large Shield Extender II", "Rifter"}
		if strings.Join(names, "|") != strings.Join(want, "|") {
			t.Fatalf("ItemNames: expected %v, got %v", want, names)
		}
	})
}

func TestMemStore_Upsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rename drops old name", func(t *testing.T) {
		t.Parallel()
		s, _ := catalog.NewMemStore(dcu)
		renamed := dcu
		renamed.Name = "Damage Control II (renamed)"
		if err := s.Upsert(ctx, renamed); err != nil {
			t.Fatalf("Upsert: unexpected error: %v", err)
		}
		if _, err := s.ItemByName(ctx, "Damage Control II"); !errors.Is(err, eve.ErrNotFound) {
			t.Fatalf("ItemByName: expected old name gone, got %v", err)
		}
		if s.Len() != 1 {
			t.Fatalf("Len: expected 1, got %d", s.Len())
		}
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		t.Parallel()
		s, _ := catalog.NewMemStore(dcu)
		clash := eve.Item{ID: 9999, Name: "damage control ii"}
		if err := s.Upsert(ctx, clash); err == nil {
			t.Fatal("Upsert: expected duplicate name error, got nil")
		}
	})

	t.Run("invalid item stores nothing", func(t *testing.T) {
		t.Parallel()
		s := &catalog.MemStore{}
		err := s.Upsert(ctx, rifter, eve.Item{ID: 0, Name: ""})
		if err == nil {
			t.Fatal("Upsert: expected validation error, got nil")
		}
		if s.Len() != 0 {
			t.Fatalf("Len: expected 0 after failed upsert, got %d", s.Len())
		}
	})
}

func TestMemStore_Replace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := catalog.NewMemStore(rifter, lse)
	if err := s.Replace([]eve.Item{dcu}); err != nil {
		t.Fatalf("Replace: unexpected error: %v", err)
	}
	if _, err := s.ItemByID(ctx, rifter.ID); !errors.Is(err, eve.ErrNotFound) {
		t.Fatalf("ItemByID: expected replaced item gone, got %v", err)
	}
	if err := s.Replace([]eve.Item{{ID: -1, Name: "bad"}}); err == nil {
		t.Fatal("Replace: expected validation error, got nil")
	}
	if s.Len() != 1 {
		t.Fatalf("Len: failed Replace must keep contents, got %d", s.Len())
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		item    eve.Item
		wantErr string
	}{
		{name: "valid module", item: lse},
		{name: "valid hull", item: rifter},
		{name: "zero id", item: eve.Item{Name: "x"}, wantErr: "id must be positive"},
		{name: "empty name", item: eve.Item{ID: 1}, wantErr: "name must not be empty"},
		{name: "bad slot", item: eve.Item{ID: 1, Name: "x", Slot: "cargo"}, wantErr: `slot "cargo"`},
		{name: "negative hull", item: eve.Item{ID: 1, Name: "x", Hull: &eve.HullSlots{High: -1}}, wantErr: "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := catalog.Validate(tt.item)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate: expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
