package fit_test

import (
	"context"
	"sync"
	"testing"

	"github.com/MrWong99/waitlist/internal/catalog"
	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/internal/fit"
	"github.com/MrWong99/waitlist/pkg/eve"
)

const (
	rifter     eve.TypeID = 587
	slasher    eve.TypeID = 585
	legion     eve.TypeID = 29986
	autocannon eve.TypeID = 2873
	mseT2      eve.TypeID = 3831
	mseT1      eve.TypeID = 3829
	mseFaction eve.TypeID = 31926
	disruptor  eve.TypeID = 3244
	damageCtl  eve.TypeID = 2048
	gyro       eve.TypeID = 519
	cdfe       eve.TypeID = 31788
	warrior    eve.TypeID = 2488
	empS       eve.TypeID = 185
	pulse      eve.TypeID = 3057
	legionCore eve.TypeID = 45589
	legionDef  eve.TypeID = 45586
	legionOff  eve.TypeID = 45593
	legionProp eve.TypeID = 45597

	attrCapacity eve.AttributeID = 72
	attrCPU      eve.AttributeID = 50

	groupShieldExtender int64 = 38
	categoryModule      int64 = 7
)

var testItems = []eve.Item{
	{ID: rifter, Name: "Rifter", GroupID: 25, CategoryID: eve.CategoryShip, Hull: &eve.HullSlots{High: 4, Mid: 3, Low: 3, Rig: 3}},
	{ID: slasher, Name: "Slasher", GroupID: 25, CategoryID: eve.CategoryShip, Hull: &eve.HullSlots{High: 3, Mid: 4, Low: 2, Rig: 3}},
	{ID: legion, Name: "Legion", GroupID: 963, CategoryID: eve.CategoryShip, Hull: &eve.HullSlots{Rig: 3, Subsystem: 4}},
	{ID: autocannon, Name: "200mm AutoCannon II", GroupID: 55, CategoryID: categoryModule, Slot: eve.SlotHigh},
	{ID: pulse, Name: "Heavy Pulse Laser II", GroupID: 53, CategoryID: categoryModule, Slot: eve.SlotHigh},
	{ID: mseT2, Name: "Medium Shield Extender II", GroupID: groupShieldExtender, CategoryID: categoryModule, Slot: eve.SlotMid,
		Attributes: map[eve.AttributeID]float64{attrCapacity: 1050, attrCPU: 26}},
	{ID: mseT1, Name: "Medium Shield Extender I", GroupID: groupShieldExtender, CategoryID: categoryModule, Slot: eve.SlotMid,
		Attributes: map[eve.AttributeID]float64{attrCapacity: 900, attrCPU: 23}},
	{ID: mseFaction, Name: "Republic Fleet Medium Shield Extender", GroupID: groupShieldExtender, CategoryID: categoryModule, Slot: eve.SlotMid,
		Attributes: map[eve.AttributeID]float64{attrCapacity: 1100, attrCPU: 30}},
	{ID: disruptor, Name: "Warp Disruptor II", GroupID: 52, CategoryID: categoryModule, Slot: eve.SlotMid},
	{ID: damageCtl, Name: "Damage Control II", GroupID: 60, CategoryID: categoryModule, Slot: eve.SlotLow},
	{ID: gyro, Name: "Gyrostabilizer II", GroupID: 59, CategoryID: categoryModule, Slot: eve.SlotLow},
	{ID: cdfe, Name: "Small Core Defense Field Extender I", GroupID: 774, CategoryID: categoryModule, Slot: eve.SlotRig},
	{ID: warrior, Name: "Warrior II", GroupID: 100, CategoryID: eve.CategoryDrone, Slot: eve.SlotDrone},
	{ID: empS, Name: "EMP S", GroupID: 83, CategoryID: 8},
	{ID: legionCore, Name: "Legion Core - Dissolution Sequencer", GroupID: 958, CategoryID: 32, Slot: eve.SlotSubsystem},
	{ID: legionDef, Name: "Legion Defensive - Covert Reconfiguration", GroupID: 954, CategoryID: 32, Slot: eve.SlotSubsystem},
	{ID: legionOff, Name: "Legion Offensive - Liquid Crystal Magnifiers", GroupID: 956, CategoryID: 32, Slot: eve.SlotSubsystem},
	{ID: legionProp, Name: "Legion Propulsion - Intercalated Nanofibers", GroupID: 957, CategoryID: 32, Slot: eve.SlotSubsystem},
}

// rifterHighFirst is a Rifter fit exported high slots first.
const rifterHighFirst = `[Rifter, Shield Rifter]
200mm AutoCannon II, EMP S
200mm AutoCannon II, EMP S
[Empty High Slot]

Medium Shield Extender II
Warp Disruptor II
[Empty Med Slot]

Damage Control II
Gyrostabilizer II

Small Core Defense Field Extender I

Warrior II x3
`

// rifterLowFirst is the same fit as copied from the in-game fitting window.
const rifterLowFirst = `[Rifter, Shield Rifter]
Damage Control II
Gyrostabilizer II

Medium Shield Extender II
Warp Disruptor II
[Empty Med Slot]

200mm AutoCannon II, EMP S
200mm AutoCannon II, EMP S
[Empty High Slot]

Small Core Defense Field Extender I

Warrior II x3
`

func newCatalog(t *testing.T) *catalog.MemStore {
	t.Helper()
	c, err := catalog.NewMemStore(testItems...)
	if err != nil {
		t.Fatalf("NewMemStore: unexpected error: %v", err)
	}
	return c
}

func item(id eve.TypeID) eve.Item {
	for _, it := range testItems {
		if it.ID == id {
			return it
		}
	}
	panic("unknown test item")
}

func itemMap() map[eve.TypeID]eve.Item {
	m := make(map[eve.TypeID]eve.Item, len(testItems))
	for _, it := range testItems {
		m[it.ID] = it
	}
	return m
}

func mustParse(t *testing.T, text string) *fit.Fit {
	t.Helper()
	f, err := fit.Parse(context.Background(), newCatalog(t), text)
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}
	return f
}

// shieldRifter is the doctrine rifterHighFirst satisfies exactly.
func shieldRifter() doctrine.Fit {
	return doctrine.Fit{
		ID:         1,
		Name:       "Shield Rifter",
		ShipTypeID: rifter,
		Category:   doctrine.CategoryDPS,
		Items: map[eve.TypeID]int{
			rifter:     1,
			autocannon: 2,
			mseT2:      1,
			disruptor:  1,
			damageCtl:  1,
			gyro:       1,
			cdfe:       1,
			warrior:    3,
		},
	}
}

func capacityRule(ship eve.TypeID) doctrine.ComparisonRule {
	return doctrine.ComparisonRule{
		GroupID:        groupShieldExtender,
		AttributeID:    attrCapacity,
		AttributeName:  "Shield Bonus",
		HigherIsBetter: true,
		ShipTypeID:     ship,
	}
}

// countingCatalog records how often each name is looked up.
type countingCatalog struct {
	eve.Catalog
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingCatalog) ItemByName(ctx context.Context, name string) (eve.Item, error) {
	c.mu.Lock()
	c.calls[name]++
	c.mu.Unlock()
	return c.Catalog.ItemByName(ctx, name)
}

// failingCatalog fails every lookup.
type failingCatalog struct {
	err error
}

func (c failingCatalog) ItemByName(context.Context, string) (eve.Item, error) {
	return eve.Item{}, c.err
}

func (c failingCatalog) ItemByID(context.Context, eve.TypeID) (eve.Item, error) {
	return eve.Item{}, c.err
}

func (c failingCatalog) ItemsByID(context.Context, []eve.TypeID) (map[eve.TypeID]eve.Item, error) {
	return nil, c.err
}
