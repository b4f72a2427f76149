package sde_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/waitlist/internal/catalog/sde"
	"github.com/MrWong99/waitlist/pkg/eve"
)

const fixture = `
CREATE TABLE invTypes (typeID INTEGER PRIMARY KEY, groupID INTEGER, typeName TEXT, published INTEGER);
CREATE TABLE invGroups (groupID INTEGER PRIMARY KEY, categoryID INTEGER, groupName TEXT);
CREATE TABLE dgmTypeAttributes (typeID INTEGER, attributeID INTEGER, valueInt INTEGER, valueFloat REAL);
CREATE TABLE dgmTypeEffects (typeID INTEGER, effectID INTEGER, isDefault INTEGER);

INSERT INTO invGroups VALUES (25, 6, 'Frigate'), (38, 7, 'Shield Extender'), (100, 18, 'Combat Drone'), (83, 8, 'Hybrid Charge'), (954, 32, 'Defensive Systems');

INSERT INTO invTypes VALUES
  (587, 25, 'Rifter', 1),
  (3841, 38, 'Large Shield Extender II', 1),
  (2488, 100, 'Warrior II', 1),
  (230, 83, 'Antimatter Charge S', 1),
  (45586, 954, 'Legion Defensive - Covert Reconfiguration', 1),
  (99999, 38, 'Large Shield Extender II', 0);

INSERT INTO dgmTypeAttributes VALUES
  (587, 14, 4, NULL), (587, 13, 3, NULL), (587, 12, 3, NULL), (587, 1137, 3, NULL),
  (3841, 72, NULL, 2600.0),
  (3841, 633, 5, NULL);

INSERT INTO dgmTypeEffects VALUES
  (3841, 13, 1),
  (2488, 12, 0),
  (45586, 3772, 1);
`

func openFixture(t *testing.T) *sde.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sde.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec(fixture); err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}

	s, err := sde.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_ItemByName(t *testing.T) {
	t.Parallel()

	s := openFixture(t)
	ctx := context.Background()

	lse, err := s.ItemByName(ctx, "large shield extender ii")
	if err != nil {
		t.Fatalf("ItemByName: unexpected error: %v", err)
	}
	if lse.ID != 3841 {
		t.Fatalf("ItemByName: expected published type 3841, got %d", lse.ID)
	}
	if lse.Slot != eve.SlotMid || lse.GroupID != 38 || lse.CategoryID != 7 {
		t.Fatalf("ItemByName: unexpected item %+v", lse)
	}
	if lse.Attribute(72) != 2600 || lse.Attribute(eve.AttrMetaLevel) != 5 {
		t.Fatalf("ItemByName: unexpected attributes %v", lse.Attributes)
	}

	if _, err := s.ItemByName(ctx, "Large Shield Extender III"); !errors.Is(err, eve.ErrNotFound) {
		t.Fatalf("ItemByName: expected ErrNotFound, got %v", err)
	}
}

func TestStore_Classification(t *testing.T) {
	t.Parallel()

	s := openFixture(t)
	got, err := s.ItemsByID(context.Background(), []eve.TypeID{587, 2488, 230, 45586, 1})
	if err != nil {
		t.Fatalf("ItemsByID: unexpected error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("ItemsByID: expected 4 items, got %d", len(got))
	}

	rifter := got[587]
	if rifter.Hull == nil {
		t.Fatal("Rifter: expected hull layout")
	}
	if want := (eve.HullSlots{High: 4, Mid: 3, Low: 3, Rig: 3}); *rifter.Hull != want {
		t.Fatalf("Rifter: hull = %+v, want %+v", *rifter.Hull, want)
	}
	if got[2488].Slot != eve.SlotDrone {
		t.Errorf("Warrior II: slot = %q, want drone", got[2488].Slot)
	}
	if got[230].Slot != eve.SlotNone {
		t.Errorf("charge: slot = %q, want none", got[230].Slot)
	}
	if got[45586].Slot != eve.SlotSubsystem {
		t.Errorf("subsystem: slot = %q, want subsystem", got[45586].Slot)
	}
}

func TestStore_ItemByID_NotFound(t *testing.T) {
	t.Parallel()

	s := openFixture(t)
	if _, err := s.ItemByID(context.Background(), 123); !errors.Is(err, eve.ErrNotFound) {
		t.Fatalf("ItemByID: expected ErrNotFound, got %v", err)
	}
}

func TestStore_ItemNames(t *testing.T) {
	t.Parallel()

	s := openFixture(t)
	names, err := s.ItemNames(context.Background())
	if err != nil {
		t.Fatalf("ItemNames: unexpected error: %v", err)
	}
	if len(names) != 5 {
		t.Fatalf("ItemNames: expected 5 published names, got %d: %v", len(names), names)
	}
}

func TestOpen_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := sde.Open(context.Background(), filepath.Join(t.TempDir(), "missing.sqlite"))
	if err == nil {
		t.Fatal("Open: expected error for missing read-only database, got nil")
	}
}
