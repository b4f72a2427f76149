package fit

import (
	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/pkg/eve"
)

// RuleSet holds the comparison rules that apply to one hull, indexed by item
// group.
type RuleSet struct {
	specific map[int64][]doctrine.ComparisonRule
	global   map[int64][]doctrine.ComparisonRule
}

// NewRuleSet indexes rules for ship. Rules scoped to any other hull are
// dropped.
func NewRuleSet(ship eve.TypeID, rules []doctrine.ComparisonRule) RuleSet {
	rs := RuleSet{
		specific: make(map[int64][]doctrine.ComparisonRule),
		global:   make(map[int64][]doctrine.ComparisonRule),
	}
	for _, r := range rules {
		switch {
		case r.IsGlobal():
			rs.global[r.GroupID] = append(rs.global[r.GroupID], r)
		case r.ShipTypeID == ship:
			rs.specific[r.GroupID] = append(rs.specific[r.GroupID], r)
		}
	}
	return rs
}

// For returns the rules for group: the hull-specific rules when any exist,
// the global rules otherwise.
func (rs RuleSet) For(group int64) []doctrine.ComparisonRule {
	if r := rs.specific[group]; len(r) > 0 {
		return r
	}
	return rs.global[group]
}

// Failure is one attribute on which a candidate substitute is worse than the
// doctrine item.
type Failure struct {
	AttributeID eve.AttributeID `json:"attribute_id"`
	Attribute   string          `json:"attribute_name"`
	Doctrine    float64         `json:"doctrine_value"`
	Submitted   float64         `json:"submitted_value"`
}

// Evaluation is the outcome of checking a candidate against a doctrine item.
type Evaluation struct {
	// Rules is the number of rules that applied.
	Rules int

	// Failures lists every rule the candidate failed.
	Failures []Failure
}

// Passed reports whether at least one rule applied and none failed.
func (e Evaluation) Passed() bool { return e.Rules > 0 && len(e.Failures) == 0 }

// Evaluate checks submitted against required using the rules for required's
// group. Attributes an item does not carry count as 0.
func (rs RuleSet) Evaluate(required, submitted eve.Item) Evaluation {
	rules := rs.For(required.GroupID)
	ev := Evaluation{Rules: len(rules)}
	for _, r := range rules {
		want := required.Attribute(r.AttributeID)
		got := submitted.Attribute(r.AttributeID)
		if !r.Passes(got, want) {
			ev.Failures = append(ev.Failures, Failure{
				AttributeID: r.AttributeID,
				Attribute:   r.Label(),
				Doctrine:    want,
				Submitted:   got,
			})
		}
	}
	return ev
}

// sameFamily reports whether a and b belong to the same item group.
func sameFamily(a, b eve.Item) bool {
	return a.GroupID == b.GroupID && a.CategoryID == b.CategoryID
}
