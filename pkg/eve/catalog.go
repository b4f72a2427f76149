package eve

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [Catalog] lookups when no item matches.
var ErrNotFound = errors.New("eve: item not found")

// Catalog resolves ships and modules by name or ID.
//
// Implementations are read-only from the caller's point of view and must be
// safe for concurrent use. Any error other than [ErrNotFound] means the
// catalog itself is unavailable or inconsistent.
type Catalog interface {
	// ItemByName resolves an item by its exact name, compared
	// case-insensitively. Returns [ErrNotFound] when no item matches.
	ItemByName(ctx context.Context, name string) (Item, error)

	// ItemByID resolves an item by type ID. Returns [ErrNotFound] when the
	// ID is unknown.
	ItemByID(ctx context.Context, id TypeID) (Item, error)

	// ItemsByID resolves many items in one call. Unknown IDs are omitted from
	// the result rather than reported as an error.
	ItemsByID(ctx context.Context, ids []TypeID) (map[TypeID]Item, error)
}

// NameLister is implemented by catalogs that can enumerate item names. It is
// used to suggest corrections for misspelled item names.
type NameLister interface {
	ItemNames(ctx context.Context) ([]string, error)
}
