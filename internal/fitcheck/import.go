package fitcheck

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/internal/fit"
	"github.com/MrWong99/waitlist/internal/observe"
)

// Prepare derives a doctrine's hull and item list from its EFT text. The
// doctrine name defaults to the fit name from the EFT header. Prepare has
// the [doctrine.PrepareFunc] signature so it can be handed to
// [doctrine.Import] and [doctrine.Reload].
func (s *Service) Prepare(ctx context.Context, f doctrine.Fit) (doctrine.Fit, error) {
	if strings.TrimSpace(f.EFT) == "" {
		return f, fmt.Errorf("fitcheck: doctrine %q has no EFT text", f.Name)
	}
	parsed, err := fit.Parse(ctx, s.catalog, f.EFT)
	if err != nil {
		return f, fmt.Errorf("fitcheck: parse doctrine %q: %w", f.Name, err)
	}
	if f.ShipTypeID != 0 && f.ShipTypeID != parsed.Ship.ID {
		return f, fmt.Errorf("%w: doctrine %q declares type %d but its EFT is a %s",
			ErrWrongHull, f.Name, f.ShipTypeID, parsed.Ship.Name)
	}

	f.ShipTypeID = parsed.Ship.ID
	f.Items = maps.Clone(parsed.Summary)
	if f.Name == "" {
		f.Name = parsed.Name
	}
	if f.Category == "" {
		f.Category = doctrine.CategoryNone
	}
	return f, nil
}

// ImportDoctrine prepares f when it carries EFT text but no items, validates
// it and stores it.
func (s *Service) ImportDoctrine(ctx context.Context, f doctrine.Fit) (doctrine.Fit, error) {
	if len(f.Items) == 0 {
		var err error
		if f, err = s.Prepare(ctx, f); err != nil {
			return f, err
		}
	}
	if err := doctrine.Validate(f); err != nil {
		return f, fmt.Errorf("fitcheck: import doctrine %q: %w", f.Name, err)
	}
	stored, err := s.store.UpsertDoctrine(ctx, f)
	if err != nil {
		s.metrics.RecordStoreError(ctx, "doctrines", "upsert_doctrine")
		return f, fmt.Errorf("fitcheck: import doctrine %q: %w", f.Name, err)
	}
	observe.Logger(ctx).Info("doctrine imported",
		"id", stored.ID,
		"name", stored.Name,
		"ship_type_id", stored.ShipTypeID,
		"items", len(stored.Items),
	)
	return stored, nil
}

// ImportFile prepares every doctrine in df against the catalog and stores
// the file's groups, rules and doctrines. Returns the number of doctrines
// stored.
func (s *Service) ImportFile(ctx context.Context, df *doctrine.File) (int, error) {
	n, err := doctrine.Import(ctx, s.store, df, s.Prepare)
	if err != nil {
		return n, err
	}
	observe.Logger(ctx).Info("doctrine file imported", "doctrines", n)
	return n, nil
}
