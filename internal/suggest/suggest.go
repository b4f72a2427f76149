// Package suggest ranks catalog names that are likely meant by a misspelled
// ship or item name.
//
// Ranking proceeds in two stages:
//
//  1. Phonetic filtering: Double Metaphone codes are computed for every
//     significant word of the input and of each candidate name. Candidates
//     sharing at least one code are phonetic matches.
//
//  2. Jaro-Winkler scoring on the whole lower-cased names. Phonetic matches
//     are kept above the phonetic threshold; other names only above the
//     stricter fuzzy threshold. Phonetic matches always rank first.
//
// Words shorter than three letters ("II", "S", "10MN") carry no phonetic
// weight; they are shared by too many item names to discriminate.
package suggest

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.88
	defaultLimit             = 3
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// match. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for names with no
// phonetic overlap. Default: 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithLimit caps the number of suggestions returned. Default: 3.
func WithLimit(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.limit = n
		}
	}
}

// Suggestion is one ranked candidate.
type Suggestion struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Phonetic bool    `json:"phonetic"`
}

// Matcher ranks candidate names. It is read-only after construction and safe
// for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	limit             int
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		limit:             defaultLimit,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Suggest returns up to the configured limit of names from candidates that
// resemble name, best first. An exact case-insensitive match is never
// suggested.
func (m *Matcher) Suggest(name string, candidates []string) []Suggestion {
	input := normalize(name)
	if input == "" || len(candidates) == 0 {
		return nil
	}
	inputCodes := codesFor(input)

	var out []Suggestion
	for _, c := range candidates {
		cn := normalize(c)
		if cn == "" || cn == input {
			continue
		}
		score := bestScore(input, cn)
		phonetic := codesOverlap(inputCodes, codesFor(cn))
		switch {
		case phonetic && score >= m.phoneticThreshold:
		case !phonetic && score >= m.fuzzyThreshold:
		default:
			continue
		}
		out = append(out, Suggestion{Name: c, Score: score, Phonetic: phonetic})
	}

	slices.SortFunc(out, func(a, b Suggestion) int {
		if a.Phonetic != b.Phonetic {
			if a.Phonetic {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(out) > m.limit {
		out = out[:m.limit]
	}
	return out
}

// Names returns just the names of Suggest's result.
func (m *Matcher) Names(name string, candidates []string) []string {
	sugs := m.Suggest(name, candidates)
	if len(sugs) == 0 {
		return nil
	}
	names := make([]string, len(sugs))
	for i, s := range sugs {
		names[i] = s.Name
	}
	return names
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// codesFor returns the Double Metaphone codes of the significant words of s.
func codesFor(s string) map[string]struct{} {
	codes := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		if letters(w) < 3 {
			continue
		}
		p, sec := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

func letters(w string) int {
	n := 0
	for _, r := range w {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// codesOverlap reports whether the two code sets share a code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestScore is the higher of the Jaro-Winkler similarity of the full names
// and of the names with spaces removed ("warpdisruptor" vs "warp disruptor").
func bestScore(a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	ca, cb := strings.ReplaceAll(a, " ", ""), strings.ReplaceAll(b, " ", "")
	if ca != a || cb != b {
		if s := matchr.JaroWinkler(ca, cb, false); s > score {
			score = s
		}
	}
	return score
}
