// Package fit parses EFT fit text and checks parsed fits against doctrines.
//
// The package is pure: it performs no I/O beyond the [eve.Catalog] calls made
// while parsing, owns no caches and never logs. Everything [Compare] and
// [BuildView] need is handed to them in a [Reference] snapshot that the caller
// fetches up front.
//
// The pipeline is:
//
//	raw text --Parse--> Fit{Lines, Summary} --Compare--> Verdict
//	                        \--BuildView(doctrine)--> View
package fit

import "github.com/MrWong99/waitlist/pkg/eve"

// Slot is the final placement of a parsed line.
type Slot string

const (
	SlotShip      Slot = "ship"
	SlotHigh      Slot = "high"
	SlotMid       Slot = "mid"
	SlotLow       Slot = "low"
	SlotRig       Slot = "rig"
	SlotSubsystem Slot = "subsystem"
	SlotDrone     Slot = "drone"
	SlotCargo     Slot = "cargo"
	SlotBlank     Slot = "BLANK_LINE"
)

// fromSlotType maps a fittable catalog slot type to its line placement.
func fromSlotType(s eve.SlotType) Slot {
	switch s {
	case eve.SlotHigh:
		return SlotHigh
	case eve.SlotMid:
		return SlotMid
	case eve.SlotLow:
		return SlotLow
	case eve.SlotRig:
		return SlotRig
	case eve.SlotSubsystem:
		return SlotSubsystem
	case eve.SlotDrone:
		return SlotDrone
	}
	return SlotCargo
}

// Fittable reports whether s is a physical fitting slot on the hull.
func (s Slot) Fittable() bool {
	switch s {
	case SlotHigh, SlotMid, SlotLow, SlotRig, SlotSubsystem:
		return true
	}
	return false
}

// slotType is the inverse of fromSlotType for fittable slots and drones.
func (s Slot) slotType() eve.SlotType {
	switch s {
	case SlotHigh:
		return eve.SlotHigh
	case SlotMid:
		return eve.SlotMid
	case SlotLow:
		return eve.SlotLow
	case SlotRig:
		return eve.SlotRig
	case SlotSubsystem:
		return eve.SlotSubsystem
	case SlotDrone:
		return eve.SlotDrone
	}
	return eve.SlotNone
}

// Line is one physical line of a parsed fit.
//
// Structural lines (blank separators and bracketed empty-slot markers) have a
// zero TypeID and a zero Quantity.
type Line struct {
	// Raw is the trimmed source text. Blank lines keep an empty Raw.
	Raw string `json:"raw_line"`

	// TypeID is the resolved item. Zero for structural lines.
	TypeID eve.TypeID `json:"type_id,omitempty"`

	// Name is the canonical catalog name, the marker text for empty-slot
	// markers, or "BLANK_LINE".
	Name string `json:"name"`

	Quantity int  `json:"quantity"`
	Slot     Slot `json:"final_slot"`

	IconURL string `json:"icon_url,omitempty"`

	// Charge is the loaded charge of a "Module, Charge" line as written.
	// It is informational only and never counted.
	Charge string `json:"charge,omitempty"`

	// Offline is set for lines that carried a "/OFFLINE" suffix.
	Offline bool `json:"offline,omitempty"`
}

// Resolved reports whether the line names a catalog item.
func (l Line) Resolved() bool { return l.TypeID != 0 }

// IsEmptySlot reports whether the line is a bracketed empty-slot marker
// placed in a fitting slot.
func (l Line) IsEmptySlot() bool { return l.TypeID == 0 && l.Slot.Fittable() }

// Fit is the result of a successful [Parse].
type Fit struct {
	// Ship is the resolved hull.
	Ship eve.Item `json:"ship"`

	// Name is the fit name from the header. May be empty.
	Name string `json:"name"`

	// Lines holds every line after the leading blanks. Lines[0] is always the
	// hull with Slot == SlotShip.
	Lines []Line `json:"lines"`

	// Summary counts resolved items by type, hull included.
	Summary Summary `json:"summary"`

	// InGameOrder is set when the module blocks were detected as low slots
	// first (in-game export) rather than high slots first.
	InGameOrder bool `json:"in_game_order"`
}
