package eve

import "fmt"

// Dogma attribute IDs that describe a hull's fitting layout.
const (
	AttrHiSlots        AttributeID = 14
	AttrMedSlots       AttributeID = 13
	AttrLowSlots       AttributeID = 12
	AttrRigSlots       AttributeID = 1137
	AttrSubsystemSlots AttributeID = 1367
	AttrMetaLevel      AttributeID = 633
)

// Dogma effect IDs that mark the slot a module is fitted to.
const (
	EffectHiPower   int64 = 12
	EffectMedPower  int64 = 13
	EffectLoPower   int64 = 11
	EffectRigSlot   int64 = 2663
	EffectSubSystem int64 = 3772
)

// Inventory category IDs with special meaning for fitting.
const (
	CategoryShip  int64 = 6
	CategoryDrone int64 = 18
)

const imageServer = "https://images.evetech.net/types"

// SlotFromEffects derives the slot type of an item from its inventory category
// and dogma effects. Drones are classified by category; modules by the first
// slot effect they carry. Items with no slot effect return [SlotNone].
func SlotFromEffects(categoryID int64, effects []int64) SlotType {
	if categoryID == CategoryDrone {
		return SlotDrone
	}
	has := make(map[int64]bool, len(effects))
	for _, e := range effects {
		has[e] = true
	}
	switch {
	case has[EffectHiPower]:
		return SlotHigh
	case has[EffectMedPower]:
		return SlotMid
	case has[EffectLoPower]:
		return SlotLow
	case has[EffectRigSlot]:
		return SlotRig
	case has[EffectSubSystem]:
		return SlotSubsystem
	}
	return SlotNone
}

// HullFromAttributes builds a [HullSlots] layout from the slot-count
// attributes of a ship.
func HullFromAttributes(attrs map[AttributeID]float64) HullSlots {
	return HullSlots{
		High:      int(attrs[AttrHiSlots]),
		Mid:       int(attrs[AttrMedSlots]),
		Low:       int(attrs[AttrLowSlots]),
		Rig:       int(attrs[AttrRigSlots]),
		Subsystem: int(attrs[AttrSubsystemSlots]),
	}
}

// IconURL returns the image server URL of the item icon.
func IconURL(id TypeID, size int) string {
	return fmt.Sprintf("%s/%d/icon?size=%d", imageServer, id, size)
}

// RenderURL returns the image server URL of a ship render.
func RenderURL(id TypeID, size int) string {
	return fmt.Sprintf("%s/%d/render?size=%d", imageServer, id, size)
}
