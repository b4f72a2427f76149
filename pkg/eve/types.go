// Package eve defines the read-only item catalog data model used by the fit
// parser and the doctrine comparison engine: ships, modules, their slot
// classification and their dogma attribute values.
//
// The catalog itself is an external collaborator. Implementations live in
// internal/catalog (in-memory, PostgreSQL, SDE SQLite); this package only
// declares the record shape and the [Catalog] interface they satisfy.
package eve

import (
	"fmt"
	"strings"
)

// TypeID is the numeric EVE type identifier of a ship, module, drone or
// other item.
type TypeID int64

// AttributeID identifies a dogma attribute (e.g. shield capacity).
type AttributeID int64

// SlotType classifies where an item is fitted.
type SlotType string

const (
	SlotHigh      SlotType = "high"
	SlotMid       SlotType = "mid"
	SlotLow       SlotType = "low"
	SlotRig       SlotType = "rig"
	SlotSubsystem SlotType = "subsystem"
	SlotDrone     SlotType = "drone"

	// SlotNone marks items that are never fitted (charges, cargo, hulls).
	SlotNone SlotType = ""
)

// IsValid reports whether s is a recognised slot type. [SlotNone] is valid.
func (s SlotType) IsValid() bool {
	switch s {
	case SlotHigh, SlotMid, SlotLow, SlotRig, SlotSubsystem, SlotDrone, SlotNone:
		return true
	}
	return false
}

// Fittable reports whether s occupies a physical fitting slot on the hull.
// Drones and [SlotNone] are not fittable.
func (s SlotType) Fittable() bool {
	switch s {
	case SlotHigh, SlotMid, SlotLow, SlotRig, SlotSubsystem:
		return true
	}
	return false
}

// Label returns the capitalised name used in EFT empty-slot markers
// ("High", "Med", "Low", "Rig", "Subsystem").
func (s SlotType) Label() string {
	switch s {
	case SlotMid:
		return "Med"
	case SlotNone:
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// HullSlots holds the fitting layout of a ship hull.
type HullSlots struct {
	High      int `yaml:"high" json:"high"`
	Mid       int `yaml:"mid" json:"mid"`
	Low       int `yaml:"low" json:"low"`
	Rig       int `yaml:"rig" json:"rig"`
	Subsystem int `yaml:"subsystem,omitempty" json:"subsystem,omitempty"`
}

// Count returns the number of slots of type s. Drones and [SlotNone] report 0.
func (h HullSlots) Count(s SlotType) int {
	switch s {
	case SlotHigh:
		return h.High
	case SlotMid:
		return h.Mid
	case SlotLow:
		return h.Low
	case SlotRig:
		return h.Rig
	case SlotSubsystem:
		return h.Subsystem
	}
	return 0
}

// Item is a single catalog record. Records are immutable once handed out by a
// [Catalog]; callers must not modify the Attributes map.
type Item struct {
	// ID is the EVE type ID.
	ID TypeID `yaml:"id" json:"id"`

	// Name is the canonical display name. Names are unique case-insensitively.
	Name string `yaml:"name" json:"name"`

	// GroupID identifies the family of interchangeable items
	// (e.g. "Shield Extender").
	GroupID int64 `yaml:"group_id" json:"group_id"`

	// CategoryID is the coarser family (e.g. Module, Ship, Drone).
	CategoryID int64 `yaml:"category_id" json:"category_id"`

	// Slot is the fitting slot type for modules and drones.
	Slot SlotType `yaml:"slot,omitempty" json:"slot,omitempty"`

	// Hull is set only when the item is a ship hull.
	Hull *HullSlots `yaml:"hull,omitempty" json:"hull,omitempty"`

	// Attributes maps dogma attribute IDs to values. Sparse: only populated
	// attributes are present.
	Attributes map[AttributeID]float64 `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// IsHull reports whether the item is a ship hull.
func (it Item) IsHull() bool { return it.Hull != nil }

// HasSubsystems reports whether the item is a hull with subsystem slots
// (a strategic cruiser).
func (it Item) HasSubsystems() bool {
	return it.Hull != nil && it.Hull.Subsystem > 0
}

// Attribute returns the value of attribute id, or 0 when it is not set.
func (it Item) Attribute(id AttributeID) float64 {
	return it.Attributes[id]
}

// String implements [fmt.Stringer].
func (it Item) String() string {
	return fmt.Sprintf("%s (%d)", it.Name, it.ID)
}
