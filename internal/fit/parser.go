package fit

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/MrWong99/waitlist/pkg/eve"
)

var (
	headerRe = regexp.MustCompile(`^\[([^,]+),\s*(.*?)\]$`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	itemRe   = regexp.MustCompile(`^(.*?)(?: x(\d+))?$`)
)

const offlineSuffix = "/offline"

// sectionOrder is the sequence in which module blocks appear in a fit.
type sectionOrder []eve.SlotType

var (
	traditionalOrder = sectionOrder{eve.SlotHigh, eve.SlotMid, eve.SlotLow, eve.SlotRig, eve.SlotSubsystem, eve.SlotDrone}
	inGameOrder      = sectionOrder{eve.SlotLow, eve.SlotMid, eve.SlotHigh, eve.SlotRig, eve.SlotSubsystem, eve.SlotDrone}
)

// index returns the position of s in the order, or -1.
func (o sectionOrder) index(s eve.SlotType) int {
	for i, t := range o {
		if t == s {
			return i
		}
	}
	return -1
}

// Parse parses EFT fit text into a [Fit], resolving every name through cat.
//
// The first non-blank line must be a "[Ship, Fit Name]" header naming a hull
// known to cat. Module blocks may be ordered high slots first (EFT tools) or
// low slots first (in-game export); the order is detected from the first
// resolvable item. A cursor moves forward through the blocks as lines are
// read, and modules that appear after their block has been passed are placed
// in cargo.
//
// Parse returns a *[ParseError] for malformed text or any name missing from
// the catalog, and a *[LookupError] when the catalog itself fails.
func Parse(ctx context.Context, cat eve.Catalog, raw string) (*Fit, error) {
	text := strings.ReplaceAll(raw, "\u00a0", " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	// A final newline ends the last line; it does not open a blank one.
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if strings.TrimSpace(raw) == "" {
		reason := "fit is empty"
		if raw != "" {
			reason = "fit contains only whitespace"
		}
		return nil, &ParseError{Kind: KindEmpty, Reason: reason}
	}

	first := 0
	for strings.TrimSpace(lines[first]) == "" {
		first++
	}
	header := strings.TrimSpace(lines[first])
	m := headerRe.FindStringSubmatch(header)
	if m == nil {
		return nil, &ParseError{
			Line:   first + 1,
			Raw:    header,
			Kind:   KindHeader,
			Reason: "fit must start with a [Ship, Fit Name] header",
		}
	}
	shipName := strings.TrimSpace(tagRe.ReplaceAllString(m[1], ""))
	if shipName == "" {
		return nil, &ParseError{Line: first + 1, Raw: header, Kind: KindShipName, Reason: "ship name in header is empty"}
	}

	r := &resolver{ctx: ctx, cat: cat, memo: make(map[string]eve.Item)}
	ship, ok, err := r.byName(shipName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ParseError{
			Line:   first + 1,
			Raw:    header,
			Name:   shipName,
			Kind:   KindUnknownShip,
			Reason: fmt.Sprintf("unknown ship hull %q", shipName),
		}
	}
	if !ship.IsHull() {
		return nil, &ParseError{
			Line:   first + 1,
			Raw:    header,
			Name:   ship.Name,
			Kind:   KindNotAShip,
			Reason: fmt.Sprintf("%q is not a ship hull", ship.Name),
		}
	}

	body := lines[first+1:]
	order, err := r.detectOrder(body)
	if err != nil {
		return nil, err
	}

	f := &Fit{
		Ship:        ship,
		Name:        strings.TrimSpace(m[2]),
		Summary:     make(Summary),
		InGameOrder: order[0] == eve.SlotLow,
	}
	f.Lines = append(f.Lines, Line{
		Raw:      header,
		TypeID:   ship.ID,
		Name:     ship.Name,
		Quantity: 1,
		Slot:     SlotShip,
		IconURL:  eve.IconURL(ship.ID, 32),
	})
	f.Summary.Add(ship.ID, 1)

	p := placer{order: order, t3: ship.HasSubsystems(), drone: order.index(eve.SlotDrone)}
	for i, rawLine := range body {
		lineNo := first + 2 + i
		s := strings.TrimSpace(rawLine)

		switch {
		case s == "":
			p.blank()
			f.Lines = append(f.Lines, Line{Name: string(SlotBlank), Slot: SlotBlank})

		case isMarker(s):
			f.Lines = append(f.Lines, Line{Raw: s, Name: s, Slot: p.marker(s)})

		default:
			it, err := splitItemLine(s)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Raw: s, Kind: KindQuantity, Reason: err.Error()}
			}
			if it.name == "" {
				continue
			}
			item, ok, err := r.resolveItem(&it)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &ParseError{
					Line:   lineNo,
					Raw:    s,
					Name:   it.name,
					Kind:   KindUnknownItem,
					Reason: fmt.Sprintf("unknown item %q", it.name),
				}
			}
			f.Lines = append(f.Lines, Line{
				Raw:      s,
				TypeID:   item.ID,
				Name:     item.Name,
				Quantity: it.qty,
				Slot:     p.item(item.Slot),
				IconURL:  eve.IconURL(item.ID, 32),
				Charge:   it.charge,
				Offline:  it.offline,
			})
			f.Summary.Add(item.ID, it.qty)
		}
	}
	return f, nil
}

// placer tracks the section cursor while lines are assigned their slots.
type placer struct {
	order  sectionOrder
	cursor int
	t3     bool
	drone  int
}

func (p *placer) blank() {
	if p.cursor < len(p.order) {
		p.cursor++
	}
}

func (p *placer) marker(s string) Slot {
	st := markerSlot(s)
	i := p.order.index(st)
	if st == eve.SlotNone || i < 0 || i < p.cursor {
		return SlotCargo
	}
	p.cursor = i
	return fromSlotType(st)
}

func (p *placer) item(st eve.SlotType) Slot {
	i := p.order.index(st)
	switch {
	case st == eve.SlotNone || i < 0:
		return SlotCargo
	case i == p.cursor:
		return fromSlotType(st)
	case p.t3 && st == eve.SlotSubsystem && p.cursor < p.drone:
		return SlotSubsystem
	case i > p.cursor:
		p.cursor = i
		return fromSlotType(st)
	}
	return SlotCargo
}

func isMarker(s string) bool {
	return strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}

// markerSlot infers the slot of a bracketed marker such as "[Empty Med Slot]".
func markerSlot(s string) eve.SlotType {
	l := strings.ToLower(s)
	switch {
	case strings.Contains(l, "high"):
		return eve.SlotHigh
	case strings.Contains(l, "med"):
		return eve.SlotMid
	case strings.Contains(l, "low"):
		return eve.SlotLow
	case strings.Contains(l, "rig"):
		return eve.SlotRig
	case strings.Contains(l, "subsystem"):
		return eve.SlotSubsystem
	}
	return eve.SlotNone
}

// itemText is an item line split into its parts.
type itemText struct {
	name    string
	charge  string
	qty     int
	offline bool
}

func splitItemLine(s string) (itemText, error) {
	var it itemText
	if strings.HasSuffix(strings.ToLower(s), offlineSuffix) {
		it.offline = true
		s = strings.TrimSpace(s[:len(s)-len(offlineSuffix)])
	}
	m := itemRe.FindStringSubmatch(s)
	it.name = strings.TrimSpace(m[1])
	it.qty = 1
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return itemText{}, fmt.Errorf("invalid quantity %q", m[2])
		}
		it.qty = n
	}
	return it, nil
}

// resolver memoizes catalog lookups for the duration of one parse.
type resolver struct {
	ctx  context.Context
	cat  eve.Catalog
	memo map[string]eve.Item
}

// byName resolves name. A false ok with a nil error means the name is not in
// the catalog.
func (r *resolver) byName(name string) (eve.Item, bool, error) {
	key := strings.ToLower(name)
	if it, ok := r.memo[key]; ok {
		return it, it.ID != 0, nil
	}
	it, err := r.cat.ItemByName(r.ctx, name)
	if errors.Is(err, eve.ErrNotFound) {
		r.memo[key] = eve.Item{}
		return eve.Item{}, false, nil
	}
	if err != nil {
		return eve.Item{}, false, &LookupError{Name: name, Err: err}
	}
	r.memo[key] = it
	return it, true, nil
}

// resolveItem resolves an item line. For "Module, Charge" lines the whole
// text is tried first, then the module part alone; on success the charge is
// split off into it.charge.
func (r *resolver) resolveItem(it *itemText) (eve.Item, bool, error) {
	item, ok, err := r.byName(it.name)
	if err != nil || ok {
		return item, ok, err
	}
	module, charge, found := strings.Cut(it.name, ",")
	if !found {
		return eve.Item{}, false, nil
	}
	module = strings.TrimSpace(module)
	item, ok, err = r.byName(module)
	if err != nil || !ok {
		return item, ok, err
	}
	it.name = module
	it.charge = strings.TrimSpace(charge)
	return item, true, nil
}

// detectOrder returns the in-game order when the first resolvable item after
// the header is a low-slot module, and the traditional order otherwise.
func (r *resolver) detectOrder(body []string) (sectionOrder, error) {
	for _, raw := range body {
		s := strings.TrimSpace(raw)
		if s == "" || isMarker(s) {
			continue
		}
		it, err := splitItemLine(s)
		if err != nil || it.name == "" {
			continue
		}
		item, ok, err := r.resolveItem(&it)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if item.Slot == eve.SlotLow {
			return inGameOrder, nil
		}
		return traditionalOrder, nil
	}
	return traditionalOrder, nil
}
