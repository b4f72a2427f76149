package fit

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/pkg/eve"
)

// ItemRef is a display reference to a catalog item.
type ItemRef struct {
	TypeID   eve.TypeID `json:"type_id"`
	Name     string     `json:"name"`
	IconURL  string     `json:"icon_url"`
	Quantity int        `json:"quantity"`
}

// refFor builds an ItemRef, degrading to a placeholder name when id is not
// in items.
func refFor(items map[eve.TypeID]eve.Item, id eve.TypeID, qty int) ItemRef {
	name := fmt.Sprintf("Unknown type %d", id)
	if it, ok := items[id]; ok {
		name = it.Name
	}
	return ItemRef{TypeID: id, Name: name, IconURL: eve.IconURL(id, 32), Quantity: qty}
}

// MatchStatus is the display annotation of one item in a [View]. The
// implementations are [Matched], [Substituted], [Problem] and [EmptySlot].
type MatchStatus interface {
	status() string
}

// Matched marks an item the doctrine asks for.
type Matched struct{}

// Substituted marks an item accepted in place of a doctrine item.
type Substituted struct {
	For ItemRef

	// Manual is set when a substitution group allowed the item, and unset
	// when it passed the comparison rules.
	Manual bool
}

// Problem marks an item the doctrine does not account for.
type Problem struct {
	// Failures lists the rule checks a same-group candidate failed.
	Failures []Failure

	// PotentialMatches lists doctrine items of the same group.
	PotentialMatches []ItemRef

	// Excess is set when the item would be acceptable but the doctrine
	// quantity for it is already used up.
	Excess bool

	// NoRules is set when a same-group doctrine item exists but no
	// comparison rule covers the group.
	NoRules bool
}

// EmptySlot marks an empty fitting slot.
type EmptySlot struct{}

func (Matched) status() string     { return "doctrine" }
func (Substituted) status() string { return "accepted_sub" }
func (Problem) status() string     { return "problem" }
func (EmptySlot) status() string   { return "empty" }

// ViewItem is one row of a [View].
type ViewItem struct {
	Line
	Status MatchStatus
}

// MarshalJSON flattens the line and its status into one object.
func (vi ViewItem) MarshalJSON() ([]byte, error) {
	out := struct {
		Line
		Status           string    `json:"status"`
		SubstitutesFor   []ItemRef `json:"substitutes_for"`
		Manual           bool      `json:"manual_substitute,omitempty"`
		FailureReasons   []Failure `json:"failure_reasons"`
		PotentialMatches []ItemRef `json:"potential_matches"`
		Excess           bool      `json:"excess,omitempty"`
		NoRules          bool      `json:"no_rules,omitempty"`
	}{
		Line:             vi.Line,
		Status:           Matched{}.status(),
		SubstitutesFor:   []ItemRef{},
		FailureReasons:   []Failure{},
		PotentialMatches: []ItemRef{},
	}
	if vi.Status != nil {
		out.Status = vi.Status.status()
	}
	switch s := vi.Status.(type) {
	case Substituted:
		out.SubstitutesFor = []ItemRef{s.For}
		out.Manual = s.Manual
	case Problem:
		if len(s.Failures) > 0 {
			out.FailureReasons = s.Failures
		}
		if len(s.PotentialMatches) > 0 {
			out.PotentialMatches = s.PotentialMatches
		}
		out.Excess = s.Excess
		out.NoRules = s.NoRules
	}
	return json.Marshal(out)
}

// DoctrineRef identifies the doctrine a view was annotated against.
type DoctrineRef struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	Category doctrine.Category `json:"category"`
}

// View is a fit laid out slot by slot for review.
type View struct {
	Ship      ItemRef      `json:"ship"`
	RenderURL string       `json:"render_url"`
	Doctrine  *DoctrineRef `json:"doctrine,omitempty"`

	High      []ViewItem `json:"high"`
	Mid       []ViewItem `json:"mid"`
	Low       []ViewItem `json:"low"`
	Rig       []ViewItem `json:"rig"`
	Subsystem []ViewItem `json:"subsystem"`
	Drone     []ViewItem `json:"drone"`
	Cargo     []ViewItem `json:"cargo"`

	// SlotCounts is the hull layout, or for strategic cruisers the number
	// of fitted rows per slot.
	SlotCounts eve.HullSlots `json:"slot_counts"`
	IsT3       bool          `json:"is_t3c"`

	// Missing lists doctrine items, other than the hull, that nothing in the
	// fit filled.
	Missing []ItemRef `json:"missing"`

	Warnings []string `json:"warnings,omitempty"`
}

// bin returns a pointer to the row list for s.
func (v *View) bin(s Slot) *[]ViewItem {
	switch s {
	case SlotHigh:
		return &v.High
	case SlotMid:
		return &v.Mid
	case SlotLow:
		return &v.Low
	case SlotRig:
		return &v.Rig
	case SlotSubsystem:
		return &v.Subsystem
	case SlotDrone:
		return &v.Drone
	case SlotCargo:
		return &v.Cargo
	}
	return nil
}

var viewOrder = []Slot{SlotHigh, SlotMid, SlotLow, SlotRig, SlotSubsystem, SlotDrone, SlotCargo}

// Rows returns every row in display order.
func (v *View) Rows() []ViewItem {
	var out []ViewItem
	for _, s := range viewOrder {
		out = append(out, *v.bin(s)...)
	}
	return out
}

// Problems returns the rows annotated as [Problem].
func (v *View) Problems() []ViewItem {
	var out []ViewItem
	for _, row := range v.Rows() {
		if _, ok := row.Status.(Problem); ok {
			out = append(out, row)
		}
	}
	return out
}

// BuildView lays out the lines of a fit on hull ship and, when doc is not
// nil, annotates every item against it. ref supplies catalog records,
// substitution groups and comparison rules; it may be nil when doc is nil.
//
// Ordinary hulls are padded with "[Empty X Slot]" rows up to their slot
// counts. Empty-slot markers beyond the hull's count are dropped with a
// warning; fitted modules are never dropped. Strategic cruisers are shown
// exactly as fitted.
//
// With a doctrine, rows are annotated from the same consumption [Compare]
// performs, so an approved fit shows no problems and nothing missing.
// Without one every fitted module is a [Problem] and drones and cargo are
// [Matched]. Unresolved cargo rows, such as demoted empty-slot markers, are
// [Matched] either way.
func BuildView(ship eve.Item, lines []Line, doc *doctrine.Fit, ref *Reference) View {
	if ref == nil {
		ref = &Reference{}
	}
	v := View{
		Ship:      refFor(map[eve.TypeID]eve.Item{ship.ID: ship}, ship.ID, 1),
		RenderURL: eve.RenderURL(ship.ID, 128),
		IsT3:      ship.HasSubsystems(),
		Missing:   []ItemRef{},
	}
	if doc != nil {
		v.Doctrine = &DoctrineRef{ID: doc.ID, Name: doc.Name, Category: doc.Category}
	}

	for _, l := range lines {
		b := v.bin(l.Slot)
		if b == nil {
			continue
		}
		row := ViewItem{Line: l}
		if l.IsEmptySlot() {
			row.Status = EmptySlot{}
		}
		*b = append(*b, row)
	}
	v.layout(ship)

	if doc == nil {
		for _, s := range viewOrder {
			rows := *v.bin(s)
			for i := range rows {
				if rows[i].Status != nil {
					continue
				}
				if s.Fittable() {
					rows[i].Status = Problem{}
				} else {
					rows[i].Status = Matched{}
				}
			}
		}
		return v
	}

	a := newAnnotator(ship, lines, doc, ref)
	for _, s := range viewOrder {
		rows := *v.bin(s)
		for i := range rows {
			if rows[i].Status == nil {
				rows[i].Status = a.annotate(rows[i].Line)
			}
		}
	}
	for _, id := range a.unfilled.IDs() {
		v.Missing = append(v.Missing, refFor(ref.Items, id, a.unfilled.Quantity(id)))
	}
	return v
}

// layout pads or, for strategic cruisers, counts the fittable bins.
func (v *View) layout(ship eve.Item) {
	var hull eve.HullSlots
	if ship.Hull != nil {
		hull = *ship.Hull
	}
	if v.IsT3 {
		v.SlotCounts = eve.HullSlots{
			High:      len(v.High),
			Mid:       len(v.Mid),
			Low:       len(v.Low),
			Rig:       len(v.Rig),
			Subsystem: len(v.Subsystem),
		}
		return
	}
	v.SlotCounts = hull

	for _, s := range []Slot{SlotHigh, SlotMid, SlotLow, SlotRig, SlotSubsystem} {
		b := v.bin(s)
		limit := hull.Count(s.slotType())

		modules := 0
		for _, row := range *b {
			if !row.IsEmptySlot() {
				modules++
			}
		}
		if modules > limit {
			v.Warnings = append(v.Warnings,
				fmt.Sprintf("%d %s modules fitted but the hull has %d %s slots", modules, s, limit, s))
		}

		free := max(limit-modules, 0)
		kept := (*b)[:0]
		dropped := 0
		for _, row := range *b {
			if row.IsEmptySlot() {
				if free == 0 {
					dropped++
					continue
				}
				free--
			}
			kept = append(kept, row)
		}
		if dropped > 0 {
			v.Warnings = append(v.Warnings,
				fmt.Sprintf("ignored %d empty %s slot markers beyond the hull's %d slots", dropped, s, limit))
		}
		marker := fmt.Sprintf("[Empty %s Slot]", s.slotType().Label())
		for range free {
			kept = append(kept, ViewItem{
				Line:   Line{Raw: marker, Name: marker, Slot: s},
				Status: EmptySlot{},
			})
		}
		*b = kept
	}
}

// annotator hands the quantities consumed by the doctrine comparison back
// to the lines that supplied them.
type annotator struct {
	doc      *doctrine.Fit
	items    map[eve.TypeID]eve.Item
	rules    RuleSet
	required []eve.TypeID
	manual   map[eve.TypeID][]eve.TypeID
	grants   map[eve.TypeID][]grant // by submitted item, in consumption order
	unfilled Pool
}

func newAnnotator(ship eve.Item, lines []Line, doc *doctrine.Fit, ref *Reference) *annotator {
	rules := NewRuleSet(ship.ID, ref.Rules)
	manual := ref.manualSubstitutes()
	alloc := allocate(doc, NewPool(Summarize(lines)), ref.Items, rules, manual)

	grants := make(map[eve.TypeID][]grant)
	for _, g := range alloc.grants {
		grants[g.id] = append(grants[g.id], g)
	}
	unfilled := alloc.unfilled.Without(ship.ID)
	required := NewPool(Summary(doc.Items)).Without(ship.ID).IDs()
	return &annotator{
		doc:      doc,
		items:    ref.Items,
		rules:    rules,
		required: required,
		manual:   manual,
		grants:   grants,
		unfilled: unfilled,
	}
}

// claim takes up to qty of the grants made to id and returns the doctrine
// item the first of them filled and the quantity covered.
func (a *annotator) claim(id eve.TypeID, qty int) (eve.TypeID, int) {
	var base eve.TypeID
	covered := 0
	queue := a.grants[id]
	for covered < qty && len(queue) > 0 {
		g := &queue[0]
		if base == 0 {
			base = g.base
		}
		n := min(g.qty, qty-covered)
		g.qty -= n
		covered += n
		if g.qty == 0 {
			queue = queue[1:]
		}
	}
	a.grants[id] = queue
	return base, covered
}

func (a *annotator) annotate(l Line) MatchStatus {
	if !l.Resolved() {
		return Matched{}
	}
	id, qty := l.TypeID, l.Quantity

	base, covered := a.claim(id, qty)
	switch {
	case covered == qty && base == id:
		return Matched{}
	case covered == qty:
		return Substituted{For: a.ref(base), Manual: slices.Contains(a.manual[base], id)}
	case covered > 0:
		return Problem{Excess: true, PotentialMatches: []ItemRef{a.ref(base)}}
	}
	return a.explain(id)
}

// explain describes why nothing in the doctrine took item id.
func (a *annotator) explain(id eve.TypeID) MatchStatus {
	excess := Problem{}
	if _, ok := a.doc.Items[id]; ok {
		excess = Problem{Excess: true, PotentialMatches: []ItemRef{a.ref(id)}}
	}
	for _, base := range a.required {
		if slices.Contains(a.manual[base], id) {
			return Problem{Excess: true, PotentialMatches: []ItemRef{a.ref(base)}}
		}
	}

	item, ok := a.items[id]
	if !ok {
		return excess
	}
	var candidates []eve.Item
	for _, base := range a.required {
		if req, ok := a.items[base]; ok && base != id && sameFamily(req, item) {
			candidates = append(candidates, req)
		}
	}
	if len(candidates) == 0 {
		return excess
	}

	// Report against the first candidate still needed, else the first one.
	req := candidates[0]
	for _, c := range candidates {
		if a.unfilled.Quantity(c.ID) > 0 {
			req = c
			break
		}
	}
	p := Problem{PotentialMatches: make([]ItemRef, 0, len(candidates))}
	for _, c := range candidates {
		p.PotentialMatches = append(p.PotentialMatches, a.ref(c.ID))
	}
	ev := a.rules.Evaluate(req, item)
	switch {
	case ev.Rules == 0:
		p.NoRules = true
	case len(ev.Failures) > 0:
		p.Failures = ev.Failures
	default:
		p.Excess = true
	}
	return p
}

// ref returns a reference to doctrine item id carrying its doctrine quantity.
func (a *annotator) ref(id eve.TypeID) ItemRef {
	return refFor(a.items, id, a.doc.Items[id])
}
