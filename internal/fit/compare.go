package fit

import (
	"fmt"
	"maps"
	"slices"

	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/pkg/eve"
)

// Status is the approval state assigned to a submitted fit.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
)

// Reference is the read snapshot a comparison works against. Callers fetch it
// once per check so that every lookup inside [Compare] and [BuildView] sees
// the same data.
type Reference struct {
	// Items holds catalog records for every submitted item and every
	// doctrine item. Missing entries are tolerated.
	Items map[eve.TypeID]eve.Item

	// Doctrines are the candidates for the submitted hull, in the order they
	// are to be tried.
	Doctrines []doctrine.Fit

	SubstitutionGroups []doctrine.SubstitutionGroup

	// Rules are the comparison rules for the submitted hull: scoped to it or
	// global. Rules for other hulls are ignored.
	Rules []doctrine.ComparisonRule
}

// TypeIDs returns every type ID the reference's doctrines and substitution
// groups mention, plus those in extra, in ascending order.
func (r *Reference) TypeIDs(extra Summary) []eve.TypeID {
	seen := make(map[eve.TypeID]struct{})
	for id := range extra {
		seen[id] = struct{}{}
	}
	for _, d := range r.Doctrines {
		seen[d.ShipTypeID] = struct{}{}
		for id := range d.Items {
			seen[id] = struct{}{}
		}
	}
	for _, g := range r.SubstitutionGroups {
		seen[g.BaseItemID] = struct{}{}
		for _, id := range g.Substitutes {
			seen[id] = struct{}{}
		}
	}
	delete(seen, 0)
	return slices.Sorted(maps.Keys(seen))
}

// manualSubstitutes indexes substitution groups by base item. Substitutes
// are sorted and exclude the base item.
func (r *Reference) manualSubstitutes() map[eve.TypeID][]eve.TypeID {
	out := make(map[eve.TypeID][]eve.TypeID, len(r.SubstitutionGroups))
	for _, g := range r.SubstitutionGroups {
		for _, id := range g.Substitutes {
			if id != g.BaseItemID && !slices.Contains(out[g.BaseItemID], id) {
				out[g.BaseItemID] = append(out[g.BaseItemID], id)
			}
		}
	}
	for _, ids := range out {
		slices.Sort(ids)
	}
	return out
}

// Shortfall records a doctrine item that could not be filled.
type Shortfall struct {
	TypeID   eve.TypeID `json:"type_id"`
	Required int        `json:"required"`
	Found    int        `json:"found"`
}

// Rejection explains why one doctrine did not match.
type Rejection struct {
	DoctrineID int64  `json:"doctrine_id"`
	Name       string `json:"name"`
	Reason     string `json:"reason"`

	// Shortfall is set when a doctrine item was missing.
	Shortfall *Shortfall `json:"shortfall,omitempty"`

	// Leftovers holds submitted items no doctrine item accounted for.
	Leftovers Summary `json:"leftovers,omitempty"`
}

// Verdict is the outcome of [Compare].
type Verdict struct {
	// Doctrine is the matched doctrine, or nil.
	Doctrine *doctrine.Fit `json:"doctrine,omitempty"`

	Status   Status            `json:"status"`
	Category doctrine.Category `json:"category"`

	// Rejections lists, in evaluation order, why each doctrine tried before
	// the match (or every doctrine, when none matched) failed.
	Rejections []Rejection `json:"rejections,omitempty"`
}

// Approved reports whether a doctrine matched.
func (v Verdict) Approved() bool { return v.Status == StatusApproved }

// Compare checks submitted, the summary of a fit on hull ship, against each
// doctrine for that hull in ref order. The first doctrine that the fit
// satisfies exactly, with no leftover items apart from the hull, is approved.
//
// Each doctrine item may be filled by the item itself, by a manual substitute
// from a substitution group based on it, or automatically by a submitted item
// of the same group that is equal or better on every comparison rule for that
// group. A group without rules allows no automatic substitutes. Quantity is
// consumed greedily in that order.
//
// Compare never fails: no doctrine, or no match, yields [StatusPending] with
// [doctrine.CategoryNone].
func Compare(ship eve.TypeID, submitted Summary, ref *Reference) Verdict {
	if ref == nil {
		ref = &Reference{}
	}
	rules := NewRuleSet(ship, ref.Rules)
	manual := ref.manualSubstitutes()
	pool := NewPool(submitted)

	v := Verdict{Status: StatusPending, Category: doctrine.CategoryNone}
	for i := range ref.Doctrines {
		d := &ref.Doctrines[i]
		if d.ShipTypeID != ship {
			continue
		}
		rej, ok := match(ship, d, pool, ref.Items, rules, manual)
		if ok {
			matched := *d
			v.Doctrine = &matched
			v.Status = StatusApproved
			v.Category = d.Category
			return v
		}
		v.Rejections = append(v.Rejections, rej)
	}
	return v
}

// match tries one doctrine against a fresh copy of the pool.
func match(
	ship eve.TypeID,
	d *doctrine.Fit,
	pool Pool,
	items map[eve.TypeID]eve.Item,
	rules RuleSet,
	manual map[eve.TypeID][]eve.TypeID,
) (Rejection, bool) {
	a := allocate(d, pool, items, rules, manual)
	if a.rej.Reason != "" {
		return a.rej, false
	}
	if left := a.left.Without(ship); left.Len() > 0 {
		a.rej.Reason = fmt.Sprintf("%d item types not in doctrine", left.Len())
		a.rej.Leftovers = left.Summary()
		return a.rej, false
	}
	return a.rej, true
}

// grant is doctrine quantity of base filled by submitted item id.
type grant struct {
	base eve.TypeID
	id   eve.TypeID
	qty  int
}

// allocation is the result of consuming a pool against one doctrine.
type allocation struct {
	grants   []grant
	left     Pool // submitted items nothing consumed
	unfilled Pool // doctrine quantity nothing filled
	rej      Rejection
}

// fail records the first reason the doctrine cannot match.
func (a *allocation) fail(reason string, sf *Shortfall) {
	if a.rej.Reason == "" {
		a.rej.Reason = reason
		a.rej.Shortfall = sf
	}
}

// allocate fills each doctrine item in ascending type ID order from pool,
// taking from the allowed items in consumption order. It keeps going after
// the first shortfall so that every doctrine item is accounted for.
func allocate(
	d *doctrine.Fit,
	pool Pool,
	items map[eve.TypeID]eve.Item,
	rules RuleSet,
	manual map[eve.TypeID][]eve.TypeID,
) allocation {
	a := allocation{rej: Rejection{DoctrineID: d.ID, Name: d.Name}}
	unfilled := make(Summary)

	for _, id := range slices.Sorted(maps.Keys(d.Items)) {
		want := d.Items[id]
		if want <= 0 {
			continue
		}
		required, known := items[id]
		if !known {
			a.fail(fmt.Sprintf("doctrine item %d is missing from the catalog", id), nil)
			required = eve.Item{ID: id}
		}
		took := 0
		for _, sub := range allowedFor(required, pool, items, rules, manual) {
			if took == want {
				break
			}
			var n int
			pool, n = pool.Take(sub, want-took)
			if n > 0 {
				a.grants = append(a.grants, grant{base: id, id: sub, qty: n})
				took += n
			}
		}
		if took < want {
			unfilled.Add(id, want-took)
			if known {
				a.fail(fmt.Sprintf("missing %d of %s", want-took, required.Name),
					&Shortfall{TypeID: id, Required: want, Found: took})
			}
		}
	}
	a.left = pool
	a.unfilled = NewPool(unfilled)
	return a
}

// allowedFor returns the items that may fill required, in consumption order:
// the item itself, its manual substitutes, then pool items that pass the
// comparison rules for its group.
func allowedFor(
	required eve.Item,
	pool Pool,
	items map[eve.TypeID]eve.Item,
	rules RuleSet,
	manual map[eve.TypeID][]eve.TypeID,
) []eve.TypeID {
	allowed := []eve.TypeID{required.ID}
	for _, id := range manual[required.ID] {
		if !slices.Contains(allowed, id) {
			allowed = append(allowed, id)
		}
	}
	if len(rules.For(required.GroupID)) == 0 {
		return allowed
	}
	for _, id := range pool.IDs() {
		if slices.Contains(allowed, id) {
			continue
		}
		cand, ok := items[id]
		if !ok || !sameFamily(required, cand) {
			continue
		}
		if rules.Evaluate(required, cand).Passed() {
			allowed = append(allowed, id)
		}
	}
	return allowed
}
