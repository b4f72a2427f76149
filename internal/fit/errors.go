package fit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/waitlist/pkg/eve"
)

// ErrorKind classifies a [ParseError].
type ErrorKind string

const (
	KindEmpty       ErrorKind = "empty"
	KindHeader      ErrorKind = "header"
	KindShipName    ErrorKind = "ship_name"
	KindUnknownShip ErrorKind = "unknown_ship"
	KindNotAShip    ErrorKind = "not_a_ship"
	KindUnknownItem ErrorKind = "unknown_item"
	KindQuantity    ErrorKind = "quantity"
)

// ParseError reports fit text that cannot be parsed. It is always fatal to
// the parse; no partial result accompanies it.
type ParseError struct {
	// Line is the 1-based line number in the submitted text, or 0 when the
	// error is not tied to a line.
	Line int `json:"line,omitempty"`

	// Raw is the offending line as submitted.
	Raw string `json:"raw,omitempty"`

	// Name is the ship or item name that failed to resolve.
	Name string `json:"name,omitempty"`

	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`

	// Suggestions holds likely intended names for unknown names. The parser
	// never fills it; callers with a name index may.
	Suggestions []string `json:"suggestions,omitempty"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("fit: ")
	if e.Line > 0 {
		b.WriteString("line ")
		b.WriteString(strconv.Itoa(e.Line))
		b.WriteString(": ")
	}
	b.WriteString(e.Reason)
	if len(e.Suggestions) > 0 {
		quoted := make([]string, len(e.Suggestions))
		for i, s := range e.Suggestions {
			quoted[i] = strconv.Quote(s)
		}
		b.WriteString(" (did you mean ")
		b.WriteString(strings.Join(quoted, ", "))
		b.WriteString("?)")
	}
	return b.String()
}

// UnknownName reports whether the error is about a name missing from the
// catalog.
func (e *ParseError) UnknownName() bool {
	return e.Kind == KindUnknownShip || e.Kind == KindUnknownItem
}

// LookupError wraps a catalog failure other than [eve.ErrNotFound]. It is
// propagated unchanged; the parser never retries.
type LookupError struct {
	Name string
	ID   eve.TypeID
	Err  error
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("fit: lookup %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("fit: lookup type %d: %v", e.ID, e.Err)
}

// Unwrap returns the catalog error.
func (e *LookupError) Unwrap() error { return e.Err }
