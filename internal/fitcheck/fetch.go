package fitcheck

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/internal/fit"
	"github.com/MrWong99/waitlist/internal/observe"
	"github.com/MrWong99/waitlist/pkg/eve"
)

// fetchReference assembles the snapshot a comparison of a fit on ship with
// the given summary works against.
//
// Doctrines, substitution groups and rules are independent and fetched
// concurrently. The catalog lookup needs their type IDs and runs afterwards
// as a single bulk call, so no per-item round-trips happen during the
// comparison itself.
func (s *Service) fetchReference(ctx context.Context, ship eve.TypeID, summary fit.Summary) (_ *fit.Reference, err error) {
	ctx, span := observe.StartSpan(ctx, observe.SpanFetchReference, observe.AttrShip.Int64(int64(ship)))
	defer func() { observe.EndSpan(span, err) }()

	var (
		doctrines []doctrine.Fit
		groups    []doctrine.SubstitutionGroup
		rules     []doctrine.ComparisonRule
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		d, err := s.store.DoctrinesForShip(egCtx, ship)
		if err != nil {
			s.metrics.RecordStoreError(ctx, "doctrines", "doctrines_for_ship")
			return fmt.Errorf("fitcheck: doctrines for type %d: %w", ship, err)
		}
		doctrines = d
		return nil
	})

	eg.Go(func() error {
		g, err := s.store.SubstitutionGroups(egCtx)
		if err != nil {
			s.metrics.RecordStoreError(ctx, "doctrines", "substitution_groups")
			return fmt.Errorf("fitcheck: substitution groups: %w", err)
		}
		groups = g
		return nil
	})

	eg.Go(func() error {
		r, err := s.store.ComparisonRules(egCtx, ship)
		if err != nil {
			s.metrics.RecordStoreError(ctx, "doctrines", "comparison_rules")
			return fmt.Errorf("fitcheck: comparison rules for type %d: %w", ship, err)
		}
		rules = r
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	span.SetAttributes(observe.AttrDoctrines.Int(len(doctrines)))

	ref := &fit.Reference{
		Doctrines:          doctrines,
		SubstitutionGroups: groups,
		Rules:              rules,
	}
	items, err := s.catalog.ItemsByID(ctx, ref.TypeIDs(summary))
	if err != nil {
		s.metrics.RecordStoreError(ctx, "catalog", "items_by_id")
		return nil, fmt.Errorf("fitcheck: catalog items: %w", err)
	}
	ref.Items = items
	return ref, nil
}
