package doctrine

import (
	"errors"
	"fmt"
)

// Validate checks a doctrine [Fit] before it is stored.
//
// Rules:
//   - Name must be non-empty.
//   - ShipTypeID must be positive.
//   - Category must be a recognised [Category].
//   - Items must be non-empty and every quantity positive.
func Validate(f Fit) error {
	var errs []error

	if f.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if f.ShipTypeID <= 0 {
		errs = append(errs, errors.New("ship_type_id must be positive"))
	}
	if !f.Category.IsValid() {
		errs = append(errs, fmt.Errorf("category %q is not a recognised category", f.Category))
	}
	if len(f.Items) == 0 {
		errs = append(errs, errors.New("items must not be empty"))
	}
	for id, qty := range f.Items {
		if qty <= 0 {
			errs = append(errs, fmt.Errorf("items[%d]: quantity must be positive, got %d", id, qty))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// ValidateSubstitutionGroup checks a [SubstitutionGroup].
func ValidateSubstitutionGroup(g SubstitutionGroup) error {
	var errs []error
	if g.BaseItemID <= 0 {
		errs = append(errs, errors.New("base_item_id must be positive"))
	}
	for i, id := range g.Substitutes {
		if id <= 0 {
			errs = append(errs, fmt.Errorf("substitutes[%d]: type id must be positive", i))
		}
	}
	return errors.Join(errs...)
}

// ValidateRule checks a [ComparisonRule].
func ValidateRule(r ComparisonRule) error {
	var errs []error
	if r.GroupID <= 0 {
		errs = append(errs, errors.New("group_id must be positive"))
	}
	if r.AttributeID <= 0 {
		errs = append(errs, errors.New("attribute_id must be positive"))
	}
	if r.ShipTypeID < 0 {
		errs = append(errs, errors.New("ship_type_id must not be negative"))
	}
	return errors.Join(errs...)
}
