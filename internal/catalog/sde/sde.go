// Package sde implements a read-only [eve.Catalog] over the SQLite
// conversion of the EVE Static Data Export (the Fuzzwork dump).
//
// Only four tables are read: invTypes, invGroups, dgmTypeAttributes and
// dgmTypeEffects. A module's slot is derived from its dogma effects and a
// hull's slot layout from its slot-count attributes, so no preprocessing of
// the dump is required.
package sde

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/waitlist/pkg/eve"
)

// Compile-time interface assertions.
var (
	_ eve.Catalog    = (*Store)(nil)
	_ eve.NameLister = (*Store)(nil)
)

// Store reads items from an SDE SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens the SDE SQLite file at path read-only and verifies the
// connection.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("sde: open %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sde: ping %q: %w", path, err)
	}
	return New(db), nil
}

// New wraps an already open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const baseQuery = `
	SELECT t.typeID, t.typeName, t.groupID, COALESCE(g.categoryID, 0)
	FROM invTypes t
	LEFT JOIN invGroups g ON g.groupID = t.groupID`

// ItemByName implements [eve.Catalog]. Published types win over unpublished
// ones that share a name.
func (s *Store) ItemByName(ctx context.Context, name string) (eve.Item, error) {
	row := s.db.QueryRowContext(ctx,
		baseQuery+` WHERE lower(t.typeName) = lower(?) ORDER BY t.published DESC, t.typeID LIMIT 1`,
		strings.TrimSpace(name))
	return s.one(ctx, row)
}

// ItemByID implements [eve.Catalog].
func (s *Store) ItemByID(ctx context.Context, id eve.TypeID) (eve.Item, error) {
	row := s.db.QueryRowContext(ctx, baseQuery+` WHERE t.typeID = ?`, int64(id))
	return s.one(ctx, row)
}

// ItemsByID implements [eve.Catalog].
func (s *Store) ItemsByID(ctx context.Context, ids []eve.TypeID) (map[eve.TypeID]eve.Item, error) {
	out := make(map[eve.TypeID]eve.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	in, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, baseQuery+` WHERE t.typeID IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sde: items by id: %w", err)
	}
	defer rows.Close()

	items := make(map[eve.TypeID]*eve.Item, len(ids))
	for rows.Next() {
		it, err := scanBase(rows)
		if err != nil {
			return nil, fmt.Errorf("sde: items by id scan: %w", err)
		}
		items[it.ID] = &it
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sde: items by id: %w", err)
	}
	if err := s.hydrate(ctx, items); err != nil {
		return nil, err
	}
	for id, it := range items {
		out[id] = *it
	}
	return out, nil
}

// ItemNames implements [eve.NameLister]. Only published types are listed.
func (s *Store) ItemNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT typeName FROM invTypes WHERE published = 1 ORDER BY typeName`)
	if err != nil {
		return nil, fmt.Errorf("sde: item names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sde: item names scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sde: item names: %w", err)
	}
	return names, nil
}

func (s *Store) one(ctx context.Context, row *sql.Row) (eve.Item, error) {
	it, err := scanBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return eve.Item{}, eve.ErrNotFound
		}
		return eve.Item{}, fmt.Errorf("sde: lookup: %w", err)
	}
	items := map[eve.TypeID]*eve.Item{it.ID: &it}
	if err := s.hydrate(ctx, items); err != nil {
		return eve.Item{}, err
	}
	return it, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBase(sc scanner) (eve.Item, error) {
	var (
		it       eve.Item
		id       int64
		group    sql.NullInt64
		category int64
	)
	if err := sc.Scan(&id, &it.Name, &group, &category); err != nil {
		return eve.Item{}, err
	}
	it.ID = eve.TypeID(id)
	it.GroupID = group.Int64
	it.CategoryID = category
	return it, nil
}

// hydrate loads dogma attributes and effects for items and derives their
// slot type and hull layout.
func (s *Store) hydrate(ctx context.Context, items map[eve.TypeID]*eve.Item) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]eve.TypeID, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	in, args := inClause(ids)

	attrRows, err := s.db.QueryContext(ctx,
		`SELECT typeID, attributeID, COALESCE(valueFloat, valueInt, 0) FROM dgmTypeAttributes WHERE typeID IN (`+in+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("sde: attributes: %w", err)
	}
	defer attrRows.Close()
	for attrRows.Next() {
		var (
			id, attr int64
			value    float64
		)
		if err := attrRows.Scan(&id, &attr, &value); err != nil {
			return fmt.Errorf("sde: attributes scan: %w", err)
		}
		it := items[eve.TypeID(id)]
		if it.Attributes == nil {
			it.Attributes = make(map[eve.AttributeID]float64)
		}
		it.Attributes[eve.AttributeID(attr)] = value
	}
	if err := attrRows.Err(); err != nil {
		return fmt.Errorf("sde: attributes: %w", err)
	}

	effRows, err := s.db.QueryContext(ctx,
		`SELECT typeID, effectID FROM dgmTypeEffects WHERE typeID IN (`+in+`)`, args...)
	if err != nil {
		return fmt.Errorf("sde: effects: %w", err)
	}
	defer effRows.Close()
	effects := make(map[eve.TypeID][]int64, len(items))
	for effRows.Next() {
		var id, effect int64
		if err := effRows.Scan(&id, &effect); err != nil {
			return fmt.Errorf("sde: effects scan: %w", err)
		}
		effects[eve.TypeID(id)] = append(effects[eve.TypeID(id)], effect)
	}
	if err := effRows.Err(); err != nil {
		return fmt.Errorf("sde: effects: %w", err)
	}

	for id, it := range items {
		if it.CategoryID == eve.CategoryShip {
			hull := eve.HullFromAttributes(it.Attributes)
			it.Hull = &hull
			continue
		}
		it.Slot = eve.SlotFromEffects(it.CategoryID, effects[id])
	}
	return nil
}

func inClause(ids []eve.TypeID) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
