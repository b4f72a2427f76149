package fit

import (
	"maps"
	"slices"

	"github.com/MrWong99/waitlist/pkg/eve"
)

// Summary counts items by type across a fit's lines.
type Summary map[eve.TypeID]int

// Add adds n of id. Non-positive n is ignored.
func (s Summary) Add(id eve.TypeID, n int) {
	if n > 0 {
		s[id] += n
	}
}

// IDs returns the type IDs in ascending order.
func (s Summary) IDs() []eve.TypeID {
	return slices.Sorted(maps.Keys(s))
}

// Summarize counts the resolved items in lines.
func Summarize(lines []Line) Summary {
	s := make(Summary, len(lines))
	for _, l := range lines {
		if l.Resolved() {
			s.Add(l.TypeID, l.Quantity)
		}
	}
	return s
}

// Pool is the quantity of each item still available while matching. A Pool
// is immutable: Take and TakeAny return a new Pool and leave the receiver
// untouched.
type Pool struct {
	left map[eve.TypeID]int
}

// NewPool returns a pool holding the items of s.
func NewPool(s Summary) Pool {
	left := make(map[eve.TypeID]int, len(s))
	for id, n := range s {
		if n > 0 {
			left[id] = n
		}
	}
	return Pool{left: left}
}

// Quantity returns how many of id remain.
func (p Pool) Quantity(id eve.TypeID) int { return p.left[id] }

// Len returns the number of distinct items remaining.
func (p Pool) Len() int { return len(p.left) }

// IDs returns the remaining type IDs in ascending order.
func (p Pool) IDs() []eve.TypeID {
	return slices.Sorted(maps.Keys(p.left))
}

// Summary returns the remaining items as a new [Summary].
func (p Pool) Summary() Summary {
	return Summary(maps.Clone(p.left))
}

// Take removes up to n of id and reports how many were removed.
func (p Pool) Take(id eve.TypeID, n int) (Pool, int) {
	have := p.left[id]
	if have == 0 || n <= 0 {
		return p, 0
	}
	took := min(have, n)
	next := maps.Clone(p.left)
	if have == took {
		delete(next, id)
	} else {
		next[id] = have - took
	}
	return Pool{left: next}, took
}

// TakeAny removes up to n items drawn from ids in the order given and reports
// how many were removed in total.
func (p Pool) TakeAny(ids []eve.TypeID, n int) (Pool, int) {
	total := 0
	for _, id := range ids {
		if total == n {
			break
		}
		var took int
		p, took = p.Take(id, n-total)
		total += took
	}
	return p, total
}

// Without returns the pool with id removed entirely.
func (p Pool) Without(id eve.TypeID) Pool {
	if _, ok := p.left[id]; !ok {
		return p
	}
	next := maps.Clone(p.left)
	delete(next, id)
	return Pool{left: next}
}
