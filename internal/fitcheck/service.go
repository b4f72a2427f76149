// Package fitcheck runs submitted EFT fits through the parser, the doctrine
// comparison engine and the view builder against live catalog and doctrine
// data.
//
// A check proceeds in four stages:
//
//  1. Parse the fit text against the item catalog.
//  2. Fetch a consistent [fit.Reference] snapshot: doctrines for the hull,
//     substitution groups and comparison rules concurrently, then every
//     catalog record the comparison may touch in one bulk lookup.
//  3. Compare the fit against the doctrines.
//  4. Optionally lay the fit out as a [fit.View] against the matched doctrine,
//     or the first candidate when nothing matched.
//
// Unknown ship and item names are reported as a [*fit.ParseError] carrying
// "did you mean" suggestions when the catalog can enumerate its names.
package fitcheck

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/internal/fit"
	"github.com/MrWong99/waitlist/internal/observe"
	"github.com/MrWong99/waitlist/internal/suggest"
	"github.com/MrWong99/waitlist/pkg/eve"
)

// ErrWrongHull is returned when a view is requested against a doctrine for a
// different hull than the submitted fit.
var ErrWrongHull = errors.New("fitcheck: doctrine targets a different hull")

// Matching holds the settings that may change while the service runs.
type Matching struct {
	// Suggestions caps the "did you mean" names per unknown name. Zero
	// disables suggestions.
	Suggestions int

	// SuggestionThreshold is the minimum phonetic similarity of a
	// suggestion. Zero keeps the matcher default.
	SuggestionThreshold float64

	// RenderView attaches a view to every check result.
	RenderView bool
}

// matcher builds the suggestion matcher for m, or nil when disabled.
func (m Matching) matcher() *suggest.Matcher {
	if m.Suggestions <= 0 {
		return nil
	}
	opts := []suggest.Option{suggest.WithLimit(m.Suggestions)}
	if m.SuggestionThreshold > 0 {
		opts = append(opts, suggest.WithPhoneticThreshold(m.SuggestionThreshold))
	}
	return suggest.New(opts...)
}

// Result is the outcome of a successful check.
type Result struct {
	// ID identifies this check in logs and responses.
	ID uuid.UUID `json:"id"`

	// CorrelationID is the trace ID of the check, when tracing is active.
	CorrelationID string `json:"correlation_id,omitempty"`

	Fit     *fit.Fit    `json:"fit"`
	Verdict fit.Verdict `json:"verdict"`

	// View is set when requested or when [Matching.RenderView] is on.
	View *fit.View `json:"view,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}

// Option is a functional option for [New].
type Option func(*Service)

// WithMetrics sets the metrics the service records to. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMatching sets the initial matching settings. Defaults to three
// suggestions and no view.
func WithMatching(m Matching) Option {
	return func(s *Service) { s.SetMatching(m) }
}

// WithClock overrides the time source used for CheckedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service checks fits. It is safe for concurrent use.
type Service struct {
	catalog eve.Catalog
	store   doctrine.Store
	metrics *observe.Metrics
	now     func() time.Time

	matching atomic.Pointer[matchingState]
}

type matchingState struct {
	settings Matching
	matcher  *suggest.Matcher
}

// New creates a [Service] reading items from cat and doctrines from store.
func New(cat eve.Catalog, store doctrine.Store, opts ...Option) *Service {
	s := &Service{
		catalog: cat,
		store:   store,
		now:     time.Now,
	}
	s.SetMatching(Matching{Suggestions: 3})
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetMatching replaces the matching settings. Checks already running keep
// the settings they started with.
func (s *Service) SetMatching(m Matching) {
	s.matching.Store(&matchingState{settings: m, matcher: m.matcher()})
}

// Matching returns the current matching settings.
func (s *Service) Matching() Matching {
	return s.matching.Load().settings
}

// CheckOption configures a single check.
type CheckOption func(*checkOptions)

type checkOptions struct {
	view       bool
	doctrineID int64
}

// IncludeView attaches a [fit.View] to the result regardless of
// [Matching.RenderView].
func IncludeView() CheckOption {
	return func(o *checkOptions) { o.view = true }
}

// AgainstDoctrine lays the view out against the doctrine with id instead of
// the matched one. It implies [IncludeView]. The doctrine must target the
// submitted hull.
func AgainstDoctrine(id int64) CheckOption {
	return func(o *checkOptions) {
		o.view = true
		o.doctrineID = id
	}
}

// Check parses raw and compares it against the doctrines for its hull.
//
// Errors are a [*fit.ParseError] for unusable text, a [*fit.LookupError] when
// the catalog fails during parsing, [doctrine.ErrNotFound] or [ErrWrongHull]
// for a bad [AgainstDoctrine] ID, or a wrapped store error.
func (s *Service) Check(ctx context.Context, raw string, opts ...CheckOption) (res *Result, err error) {
	var co checkOptions
	for _, o := range opts {
		o(&co)
	}
	state := s.matching.Load()
	if state.settings.RenderView {
		co.view = true
	}

	id := uuid.New()
	ctx = observe.WithCheckID(ctx, id.String())
	ctx, span := observe.StartSpan(ctx, observe.SpanCheck, observe.AttrCheckID.String(id.String()))
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	s.metrics.ActiveChecks.Add(ctx, 1)
	defer s.metrics.ActiveChecks.Add(ctx, -1)

	res, err = s.check(ctx, id, raw, co, state)
	s.metrics.CheckDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordCheck(ctx, outcome(err))
		return nil, err
	}
	span.SetAttributes(
		observe.AttrShip.Int64(int64(res.Fit.Ship.ID)),
		observe.AttrStatus.String(string(res.Verdict.Status)),
	)
	s.metrics.RecordCheck(ctx, string(res.Verdict.Status))
	if res.Verdict.Approved() {
		span.SetAttributes(observe.AttrCategory.String(string(res.Verdict.Category)))
		s.metrics.RecordMatch(ctx, string(res.Verdict.Category))
	}

	observe.Logger(ctx).Info("fit checked",
		"ship", res.Fit.Ship.Name,
		"status", res.Verdict.Status,
		"category", res.Verdict.Category,
		"doctrines_tried", len(res.Verdict.Rejections)+boolInt(res.Verdict.Approved()),
		"duration", time.Since(start),
	)
	return res, nil
}

func (s *Service) check(ctx context.Context, id uuid.UUID, raw string, co checkOptions, state *matchingState) (*Result, error) {
	parseStart := time.Now()
	parsed, err := fit.Parse(ctx, s.catalog, raw)
	s.metrics.ParseDuration.Record(ctx, time.Since(parseStart).Seconds())
	if err != nil {
		return nil, s.parseFailed(ctx, err, state)
	}

	fetchStart := time.Now()
	ref, err := s.fetchReference(ctx, parsed.Ship.ID, parsed.Summary)
	s.metrics.FetchDuration.Record(ctx, time.Since(fetchStart).Seconds())
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:            id,
		CorrelationID: observe.CorrelationID(ctx),
		Fit:           parsed,
		Verdict:       fit.Compare(parsed.Ship.ID, parsed.Summary, ref),
		CheckedAt:     s.now().UTC(),
	}

	if co.view {
		doc, err := s.viewDoctrine(ctx, parsed.Ship.ID, res.Verdict, ref, co.doctrineID)
		if err != nil {
			return nil, err
		}
		v := fit.BuildView(parsed.Ship, parsed.Lines, doc, ref)
		res.View = &v
	}
	return res, nil
}

// viewDoctrine picks the doctrine to lay the view out against: the requested
// one, else the matched one, else the first candidate. Nil means no doctrine
// exists for the hull.
func (s *Service) viewDoctrine(ctx context.Context, ship eve.TypeID, v fit.Verdict, ref *fit.Reference, id int64) (*doctrine.Fit, error) {
	if id != 0 {
		for i := range ref.Doctrines {
			if ref.Doctrines[i].ID == id {
				return &ref.Doctrines[i], nil
			}
		}
		// Not a candidate for this hull: tell a missing doctrine apart from
		// one for another hull.
		d, err := s.store.Doctrine(ctx, id)
		if err != nil {
			if !errors.Is(err, doctrine.ErrNotFound) {
				s.metrics.RecordStoreError(ctx, "doctrines", "doctrine")
			}
			return nil, fmt.Errorf("fitcheck: doctrine %d: %w", id, err)
		}
		return nil, fmt.Errorf("%w: doctrine %d is for type %d, fit is type %d", ErrWrongHull, id, d.ShipTypeID, ship)
	}
	if v.Doctrine != nil {
		return v.Doctrine, nil
	}
	if len(ref.Doctrines) > 0 {
		return &ref.Doctrines[0], nil
	}
	return nil, nil
}

// parseFailed records a parse failure and decorates unknown-name errors with
// suggestions.
func (s *Service) parseFailed(ctx context.Context, err error, state *matchingState) error {
	var pe *fit.ParseError
	if !errors.As(err, &pe) {
		var le *fit.LookupError
		if errors.As(err, &le) {
			s.metrics.RecordStoreError(ctx, "catalog", "lookup")
		}
		return err
	}
	s.metrics.RecordParseError(ctx, string(pe.Kind))
	if pe.UnknownName() && state.matcher != nil {
		pe.Suggestions = s.suggestions(ctx, pe.Name, state.matcher)
	}
	observe.Logger(ctx).Debug("fit rejected",
		"kind", pe.Kind,
		"line", pe.Line,
		"name", pe.Name,
		"suggestions", pe.Suggestions,
	)
	return pe
}

// suggestions returns likely intended catalog names for name. Failures only
// cost the hint, never the check.
func (s *Service) suggestions(ctx context.Context, name string, m *suggest.Matcher) []string {
	lister, ok := s.catalog.(eve.NameLister)
	if !ok || name == "" {
		return nil
	}
	names, err := lister.ItemNames(ctx)
	if err != nil {
		s.metrics.RecordStoreError(ctx, "catalog", "item_names")
		observe.Logger(ctx).Warn("fitcheck: list item names for suggestions", "err", err)
		return nil
	}
	return m.Names(name, names)
}

// outcome maps a check error to the status attribute of the checks counter.
func outcome(err error) string {
	var pe *fit.ParseError
	switch {
	case errors.As(err, &pe):
		return "invalid"
	case errors.Is(err, doctrine.ErrNotFound), errors.Is(err, ErrWrongHull):
		return "bad_request"
	default:
		return "error"
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
