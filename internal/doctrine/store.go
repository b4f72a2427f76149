package doctrine

import (
	"context"
	"errors"

	"github.com/MrWong99/waitlist/pkg/eve"
)

// ErrNotFound is returned when the requested doctrine does not exist.
var ErrNotFound = errors.New("doctrine not found")

// Store provides read access to doctrines, substitution groups and comparison
// rules for the fit checker, plus the write operations used by import tooling.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// DoctrinesForShip returns every doctrine targeting the hull, ordered by
	// Priority descending then ID ascending (see [SortFits]). An empty slice
	// is not an error.
	DoctrinesForShip(ctx context.Context, ship eve.TypeID) ([]Fit, error)

	// Doctrine returns a single doctrine by ID.
	// Returns [ErrNotFound] when no doctrine with that ID exists.
	Doctrine(ctx context.Context, id int64) (Fit, error)

	// Doctrines returns all doctrines in the same order as DoctrinesForShip.
	Doctrines(ctx context.Context) ([]Fit, error)

	// SubstitutionGroups returns every manual substitution group.
	SubstitutionGroups(ctx context.Context) ([]SubstitutionGroup, error)

	// ComparisonRules returns the rules scoped to ship together with all
	// global rules. Rules scoped to any other hull are never returned.
	// Passing ship 0 returns only global rules.
	ComparisonRules(ctx context.Context, ship eve.TypeID) ([]ComparisonRule, error)

	// UpsertDoctrine creates or replaces a doctrine. A zero ID assigns a new
	// one. The stored doctrine is returned.
	UpsertDoctrine(ctx context.Context, f Fit) (Fit, error)

	// UpsertSubstitutionGroup creates or replaces the group for its base item.
	UpsertSubstitutionGroup(ctx context.Context, g SubstitutionGroup) (SubstitutionGroup, error)

	// UpsertRule creates or replaces the rule identified by its group,
	// attribute and hull scope.
	UpsertRule(ctx context.Context, r ComparisonRule) (ComparisonRule, error)

	// DeleteDoctrine removes a doctrine.
	// Returns [ErrNotFound] when no doctrine with that ID exists.
	DeleteDoctrine(ctx context.Context, id int64) error
}
