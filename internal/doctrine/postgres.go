package doctrine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/waitlist/pkg/eve"
)

// Schema is the SQL DDL for the doctrine tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS doctrine_fits (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL,
    ship_type_id BIGINT NOT NULL,
    category     TEXT NOT NULL DEFAULT 'NONE',
    priority     INTEGER NOT NULL DEFAULT 0,
    eft          TEXT NOT NULL DEFAULT '',
    items        JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_doctrine_fits_ship ON doctrine_fits(ship_type_id);

CREATE TABLE IF NOT EXISTS substitution_groups (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL DEFAULT '',
    base_item_id BIGINT NOT NULL UNIQUE,
    substitutes  JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS comparison_rules (
    id               BIGSERIAL PRIMARY KEY,
    group_id         BIGINT NOT NULL,
    attribute_id     BIGINT NOT NULL,
    attribute_name   TEXT NOT NULL DEFAULT '',
    higher_is_better BOOLEAN NOT NULL,
    ship_type_id     BIGINT NOT NULL DEFAULT 0,
    UNIQUE (group_id, attribute_id, ship_type_id)
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Doctrine item lists and
// substitute sets are stored as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] over db. The caller is
// responsible for calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("doctrine: migrate: %w", err)
	}
	return nil
}

const fitColumns = `id, name, ship_type_id, category, priority, eft, items`

// DoctrinesForShip implements [Store.DoctrinesForShip].
func (s *PostgresStore) DoctrinesForShip(ctx context.Context, ship eve.TypeID) ([]Fit, error) {
	const query = `SELECT ` + fitColumns + ` FROM doctrine_fits
		WHERE ship_type_id = $1
		ORDER BY priority DESC, id ASC`
	rows, err := s.db.Query(ctx, query, int64(ship))
	if err != nil {
		return nil, fmt.Errorf("doctrine: doctrines for ship %d: %w", ship, err)
	}
	return collectFits(rows)
}

// Doctrines implements [Store.Doctrines].
func (s *PostgresStore) Doctrines(ctx context.Context) ([]Fit, error) {
	const query = `SELECT ` + fitColumns + ` FROM doctrine_fits
		ORDER BY priority DESC, id ASC`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("doctrine: list: %w", err)
	}
	return collectFits(rows)
}

// Doctrine implements [Store.Doctrine].
func (s *PostgresStore) Doctrine(ctx context.Context, id int64) (Fit, error) {
	const query = `SELECT ` + fitColumns + ` FROM doctrine_fits WHERE id = $1`
	f, err := scanFit(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Fit{}, ErrNotFound
		}
		return Fit{}, fmt.Errorf("doctrine: get %d: %w", id, err)
	}
	return f, nil
}

// SubstitutionGroups implements [Store.SubstitutionGroups].
func (s *PostgresStore) SubstitutionGroups(ctx context.Context) ([]SubstitutionGroup, error) {
	const query = `SELECT id, name, base_item_id, substitutes FROM substitution_groups ORDER BY base_item_id`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("doctrine: substitution groups: %w", err)
	}
	defer rows.Close()

	groups := make([]SubstitutionGroup, 0)
	for rows.Next() {
		var (
			g       SubstitutionGroup
			base    int64
			subJSON []byte
		)
		if err := rows.Scan(&g.ID, &g.Name, &base, &subJSON); err != nil {
			return nil, fmt.Errorf("doctrine: substitution groups scan: %w", err)
		}
		g.BaseItemID = eve.TypeID(base)
		if err := json.Unmarshal(subJSON, &g.Substitutes); err != nil {
			return nil, fmt.Errorf("doctrine: unmarshal substitutes: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("doctrine: substitution groups: %w", err)
	}
	return groups, nil
}

// ComparisonRules implements [Store.ComparisonRules].
func (s *PostgresStore) ComparisonRules(ctx context.Context, ship eve.TypeID) ([]ComparisonRule, error) {
	const query = `
		SELECT id, group_id, attribute_id, attribute_name, higher_is_better, ship_type_id
		FROM comparison_rules
		WHERE ship_type_id = 0 OR ship_type_id = $1
		ORDER BY group_id, ship_type_id, attribute_id`
	rows, err := s.db.Query(ctx, query, int64(ship))
	if err != nil {
		return nil, fmt.Errorf("doctrine: comparison rules: %w", err)
	}
	defer rows.Close()

	rules := make([]ComparisonRule, 0)
	for rows.Next() {
		var (
			r          ComparisonRule
			attr, hull int64
		)
		if err := rows.Scan(&r.ID, &r.GroupID, &attr, &r.AttributeName, &r.HigherIsBetter, &hull); err != nil {
			return nil, fmt.Errorf("doctrine: comparison rules scan: %w", err)
		}
		r.AttributeID = eve.AttributeID(attr)
		r.ShipTypeID = eve.TypeID(hull)
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("doctrine: comparison rules: %w", err)
	}
	return rules, nil
}

// UpsertDoctrine implements [Store.UpsertDoctrine].
func (s *PostgresStore) UpsertDoctrine(ctx context.Context, f Fit) (Fit, error) {
	if err := Validate(f); err != nil {
		return Fit{}, fmt.Errorf("doctrine: upsert %q: %w", f.Name, err)
	}
	itemsJSON, err := json.Marshal(f.Items)
	if err != nil {
		return Fit{}, fmt.Errorf("doctrine: marshal items: %w", err)
	}

	if f.ID == 0 {
		const query = `
			INSERT INTO doctrine_fits (name, ship_type_id, category, priority, eft, items)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id`
		err = s.db.QueryRow(ctx, query,
			f.Name, int64(f.ShipTypeID), string(f.Category), f.Priority, f.EFT, itemsJSON,
		).Scan(&f.ID)
	} else {
		const query = `
			INSERT INTO doctrine_fits (id, name, ship_type_id, category, priority, eft, items)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				ship_type_id = EXCLUDED.ship_type_id,
				category = EXCLUDED.category,
				priority = EXCLUDED.priority,
				eft = EXCLUDED.eft,
				items = EXCLUDED.items,
				updated_at = now()
			RETURNING id`
		err = s.db.QueryRow(ctx, query,
			f.ID, f.Name, int64(f.ShipTypeID), string(f.Category), f.Priority, f.EFT, itemsJSON,
		).Scan(&f.ID)
	}
	if err != nil {
		return Fit{}, fmt.Errorf("doctrine: upsert %q: %w", f.Name, err)
	}
	return f, nil
}

// UpsertSubstitutionGroup implements [Store.UpsertSubstitutionGroup].
func (s *PostgresStore) UpsertSubstitutionGroup(ctx context.Context, g SubstitutionGroup) (SubstitutionGroup, error) {
	if err := ValidateSubstitutionGroup(g); err != nil {
		return SubstitutionGroup{}, fmt.Errorf("doctrine: upsert substitution group %d: %w", g.BaseItemID, err)
	}
	subs := g.Substitutes
	if subs == nil {
		subs = []eve.TypeID{}
	}
	subJSON, err := json.Marshal(subs)
	if err != nil {
		return SubstitutionGroup{}, fmt.Errorf("doctrine: marshal substitutes: %w", err)
	}

	const query = `
		INSERT INTO substitution_groups (name, base_item_id, substitutes)
		VALUES ($1,$2,$3)
		ON CONFLICT (base_item_id) DO UPDATE SET
			name = EXCLUDED.name,
			substitutes = EXCLUDED.substitutes
		RETURNING id`
	if err := s.db.QueryRow(ctx, query, g.Name, int64(g.BaseItemID), subJSON).Scan(&g.ID); err != nil {
		return SubstitutionGroup{}, fmt.Errorf("doctrine: upsert substitution group %d: %w", g.BaseItemID, err)
	}
	return g, nil
}

// UpsertRule implements [Store.UpsertRule].
func (s *PostgresStore) UpsertRule(ctx context.Context, r ComparisonRule) (ComparisonRule, error) {
	if err := ValidateRule(r); err != nil {
		return ComparisonRule{}, fmt.Errorf("doctrine: upsert rule: %w", err)
	}

	const query = `
		INSERT INTO comparison_rules (group_id, attribute_id, attribute_name, higher_is_better, ship_type_id)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (group_id, attribute_id, ship_type_id) DO UPDATE SET
			attribute_name = EXCLUDED.attribute_name,
			higher_is_better = EXCLUDED.higher_is_better
		RETURNING id`
	err := s.db.QueryRow(ctx, query,
		r.GroupID, int64(r.AttributeID), r.AttributeName, r.HigherIsBetter, int64(r.ShipTypeID),
	).Scan(&r.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ComparisonRule{}, fmt.Errorf("doctrine: rule for group %d attribute %d already exists: %w", r.GroupID, r.AttributeID, err)
		}
		return ComparisonRule{}, fmt.Errorf("doctrine: upsert rule: %w", err)
	}
	return r, nil
}

// DeleteDoctrine implements [Store.DeleteDoctrine].
func (s *PostgresStore) DeleteDoctrine(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM doctrine_fits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("doctrine: delete %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectFits(rows pgx.Rows) ([]Fit, error) {
	defer rows.Close()

	fits := make([]Fit, 0)
	for rows.Next() {
		f, err := scanFit(rows)
		if err != nil {
			return nil, fmt.Errorf("doctrine: scan: %w", err)
		}
		fits = append(fits, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("doctrine: scan: %w", err)
	}
	return fits, nil
}

// scanFit reads one row of [fitColumns].
func scanFit(row pgx.Row) (Fit, error) {
	var (
		f         Fit
		ship      int64
		category  string
		itemsJSON []byte
	)
	if err := row.Scan(&f.ID, &f.Name, &ship, &category, &f.Priority, &f.EFT, &itemsJSON); err != nil {
		return Fit{}, err
	}
	f.ShipTypeID = eve.TypeID(ship)
	f.Category = Category(category)
	if err := json.Unmarshal(itemsJSON, &f.Items); err != nil {
		return Fit{}, fmt.Errorf("unmarshal items: %w", err)
	}
	return f, nil
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
