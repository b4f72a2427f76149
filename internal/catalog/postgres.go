package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/waitlist/pkg/eve"
)

// Schema is the SQL DDL for the eve_types table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS eve_types (
    type_id     BIGINT PRIMARY KEY,
    name        TEXT NOT NULL,
    group_id    BIGINT NOT NULL DEFAULT 0,
    category_id BIGINT NOT NULL DEFAULT 0,
    slot        TEXT NOT NULL DEFAULT '',
    hull        JSONB,
    attributes  JSONB NOT NULL DEFAULT '{}'
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_eve_types_name ON eve_types(lower(name));
CREATE INDEX IF NOT EXISTS idx_eve_types_group ON eve_types(group_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is an item catalog backed by PostgreSQL. Hull layouts and
// dogma attributes are stored as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface assertions.
var (
	_ eve.Catalog    = (*PostgresStore)(nil)
	_ eve.NameLister = (*PostgresStore)(nil)
	_ Upserter       = (*PostgresStore)(nil)
)

// NewPostgresStore creates a [PostgresStore] over db. The caller is
// responsible for calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

const itemColumns = `type_id, name, group_id, category_id, slot, hull, attributes`

// ItemByName implements [eve.Catalog].
func (s *PostgresStore) ItemByName(ctx context.Context, name string) (eve.Item, error) {
	const query = `SELECT ` + itemColumns + ` FROM eve_types WHERE lower(name) = lower($1)`
	it, err := scanItem(s.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eve.Item{}, eve.ErrNotFound
		}
		return eve.Item{}, fmt.Errorf("catalog: item by name %q: %w", name, err)
	}
	return it, nil
}

// ItemByID implements [eve.Catalog].
func (s *PostgresStore) ItemByID(ctx context.Context, id eve.TypeID) (eve.Item, error) {
	const query = `SELECT ` + itemColumns + ` FROM eve_types WHERE type_id = $1`
	it, err := scanItem(s.db.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eve.Item{}, eve.ErrNotFound
		}
		return eve.Item{}, fmt.Errorf("catalog: item by id %d: %w", id, err)
	}
	return it, nil
}

// ItemsByID implements [eve.Catalog].
func (s *PostgresStore) ItemsByID(ctx context.Context, ids []eve.TypeID) (map[eve.TypeID]eve.Item, error) {
	out := make(map[eve.TypeID]eve.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}

	const query = `SELECT ` + itemColumns + ` FROM eve_types WHERE type_id = ANY($1)`
	rows, err := s.db.Query(ctx, query, raw)
	if err != nil {
		return nil, fmt.Errorf("catalog: items by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: items by id scan: %w", err)
		}
		out[it.ID] = it
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: items by id: %w", err)
	}
	return out, nil
}

// ItemNames implements [eve.NameLister].
func (s *PostgresStore) ItemNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT name FROM eve_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: item names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: item names scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: item names: %w", err)
	}
	return names, nil
}

// Upsert creates or replaces items. Each item is validated before it is
// written; the first failure aborts the remaining writes.
func (s *PostgresStore) Upsert(ctx context.Context, items ...eve.Item) error {
	const query = `
		INSERT INTO eve_types (` + itemColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (type_id) DO UPDATE SET
			name = EXCLUDED.name,
			group_id = EXCLUDED.group_id,
			category_id = EXCLUDED.category_id,
			slot = EXCLUDED.slot,
			hull = EXCLUDED.hull,
			attributes = EXCLUDED.attributes`

	for _, it := range items {
		if err := Validate(it); err != nil {
			return fmt.Errorf("catalog: upsert %q: %w", it.Name, err)
		}
		var hullJSON []byte
		if it.Hull != nil {
			b, err := json.Marshal(it.Hull)
			if err != nil {
				return fmt.Errorf("catalog: marshal hull: %w", err)
			}
			hullJSON = b
		}
		attrs := it.Attributes
		if attrs == nil {
			attrs = map[eve.AttributeID]float64{}
		}
		attrJSON, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("catalog: marshal attributes: %w", err)
		}

		_, err = s.db.Exec(ctx, query,
			int64(it.ID), it.Name, it.GroupID, it.CategoryID, string(it.Slot), hullJSON, attrJSON,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("catalog: name %q already used by another type: %w", it.Name, err)
			}
			return fmt.Errorf("catalog: upsert %d: %w", it.ID, err)
		}
	}
	return nil
}

// scanItem reads one row of [itemColumns].
func scanItem(row pgx.Row) (eve.Item, error) {
	var (
		it       eve.Item
		id       int64
		slot     string
		hullJSON []byte
		attrJSON []byte
	)
	if err := row.Scan(&id, &it.Name, &it.GroupID, &it.CategoryID, &slot, &hullJSON, &attrJSON); err != nil {
		return eve.Item{}, err
	}
	it.ID = eve.TypeID(id)
	it.Slot = eve.SlotType(slot)
	if len(hullJSON) > 0 && string(hullJSON) != "null" {
		it.Hull = &eve.HullSlots{}
		if err := json.Unmarshal(hullJSON, it.Hull); err != nil {
			return eve.Item{}, fmt.Errorf("unmarshal hull: %w", err)
		}
	}
	if len(attrJSON) > 0 {
		if err := json.Unmarshal(attrJSON, &it.Attributes); err != nil {
			return eve.Item{}, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return it, nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
