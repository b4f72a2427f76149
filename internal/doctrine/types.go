// Package doctrine holds the administrator-defined fleet doctrines that
// submitted fits are checked against, together with the manual substitution
// groups and attribute comparison rules that widen what counts as a match.
//
// The data is owned by admin tooling; the fit comparison engine only reads it
// through a [Store].
package doctrine

import (
	"cmp"
	"maps"
	"slices"
	"strconv"

	"github.com/MrWong99/waitlist/pkg/eve"
)

// Category is the fleet role assigned to an approved fit.
type Category string

const (
	CategoryNone      Category = "NONE"
	CategoryDPS       Category = "DPS"
	CategoryLogi      Category = "LOGI"
	CategorySniper    Category = "SNIPER"
	CategoryMarDPS    Category = "MAR_DPS"
	CategoryMarSniper Category = "MAR_SNIPER"
)

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryNone, CategoryDPS, CategoryLogi, CategorySniper, CategoryMarDPS, CategoryMarSniper:
		return true
	}
	return false
}

// Fit is a doctrine fit: a hull plus the "shopping list" of items a submitted
// fit must contain.
type Fit struct {
	// ID is the store-assigned identifier. Zero means "not yet stored".
	ID int64 `yaml:"id,omitempty" json:"id"`

	// Name is the display name (e.g. "Vindicator - Shield DPS").
	Name string `yaml:"name" json:"name"`

	// ShipTypeID is the hull this doctrine targets.
	ShipTypeID eve.TypeID `yaml:"ship_type_id,omitempty" json:"ship_type_id"`

	// Category is assigned to fits that match this doctrine.
	Category Category `yaml:"category" json:"category"`

	// Priority orders doctrines sharing a hull. Higher is tried first.
	Priority int `yaml:"priority,omitempty" json:"priority"`

	// EFT is the source fit text the Items were derived from, if any.
	EFT string `yaml:"eft,omitempty" json:"eft,omitempty"`

	// Items maps type IDs to required quantities. The hull is included.
	Items map[eve.TypeID]int `yaml:"items,omitempty" json:"items"`
}

// SubstitutionGroup lists items an administrator has declared equivalent to a
// base doctrine item. The base item itself is always allowed.
type SubstitutionGroup struct {
	ID          int64        `yaml:"id,omitempty" json:"id"`
	Name        string       `yaml:"name,omitempty" json:"name,omitempty"`
	BaseItemID  eve.TypeID   `yaml:"base_item_id" json:"base_item_id"`
	Substitutes []eve.TypeID `yaml:"substitutes" json:"substitutes"`
}

// Allows reports whether id may stand in for the group's base item.
func (g SubstitutionGroup) Allows(id eve.TypeID) bool {
	return id == g.BaseItemID || slices.Contains(g.Substitutes, id)
}

// ComparisonRule defines one "equal or better" test for automatic
// substitution within an item group.
type ComparisonRule struct {
	ID int64 `yaml:"id,omitempty" json:"id"`

	// GroupID is the item group the rule applies to.
	GroupID int64 `yaml:"group_id" json:"group_id"`

	// AttributeID is the dogma attribute compared.
	AttributeID eve.AttributeID `yaml:"attribute_id" json:"attribute_id"`

	// AttributeName is a display label for failure reports.
	AttributeName string `yaml:"attribute_name,omitempty" json:"attribute_name,omitempty"`

	// HigherIsBetter selects the comparison direction.
	HigherIsBetter bool `yaml:"higher_is_better" json:"higher_is_better"`

	// ShipTypeID scopes the rule to one hull. Zero means global.
	ShipTypeID eve.TypeID `yaml:"ship_type_id,omitempty" json:"ship_type_id,omitempty"`
}

// IsGlobal reports whether the rule applies to every hull.
func (r ComparisonRule) IsGlobal() bool { return r.ShipTypeID == 0 }

// Passes reports whether submitted is equal to or better than required under
// the rule's direction.
func (r ComparisonRule) Passes(submitted, required float64) bool {
	if r.HigherIsBetter {
		return submitted >= required
	}
	return submitted <= required
}

// Label returns AttributeName, or a generic label derived from AttributeID.
func (r ComparisonRule) Label() string {
	if r.AttributeName != "" {
		return r.AttributeName
	}
	return "attribute " + strconv.FormatInt(int64(r.AttributeID), 10)
}

// SortFits orders doctrines by Priority descending, then ID ascending. This
// is the order every [Store] returns from DoctrinesForShip.
func SortFits(fits []Fit) {
	slices.SortStableFunc(fits, func(a, b Fit) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// cloneFit returns a copy of f with its own Items map.
func cloneFit(f Fit) Fit {
	f.Items = maps.Clone(f.Items)
	return f
}
