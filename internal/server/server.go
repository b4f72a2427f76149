// Package server exposes the fit checker over HTTP.
//
// Routes:
//
//   - POST /v1/fits/check: check a fit against the doctrines for its hull.
//     ?view=true attaches the slotted view.
//   - POST /v1/fits/view?doctrine=<id>: check a fit and lay it out against
//     one doctrine.
//   - GET /healthz, GET /readyz: see package health.
//   - GET /metrics: Prometheus scrape endpoint.
//
// Fit text is accepted either as the raw request body (text/plain) or as a
// JSON object {"eft": "..."}. Every response is JSON.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/internal/fit"
	"github.com/MrWong99/waitlist/internal/fitcheck"
	"github.com/MrWong99/waitlist/internal/health"
	"github.com/MrWong99/waitlist/internal/observe"
	"github.com/MrWong99/waitlist/internal/resilience"
)

// maxBodyBytes caps the size of a submitted fit. The largest real fits
// (cargo-heavy exports) stay well under 64 KiB.
const maxBodyBytes = 64 << 10

// Checker is the part of [fitcheck.Service] the server uses.
type Checker interface {
	Check(ctx context.Context, raw string, opts ...fitcheck.CheckOption) (*fitcheck.Result, error)
}

// Option is a functional option for [New].
type Option func(*Server)

// WithHealth registers the health endpoints of h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler replaces the /metrics handler. Defaults to
// [promhttp.Handler]. Pass nil to disable the route.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
		s.metricsSet = true
	}
}

// WithMetrics sets the metrics the request middleware records to. Defaults
// to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server routes HTTP requests to a [Checker].
type Server struct {
	checker        Checker
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	metricsSet     bool
}

// New creates a [Server] for checker.
func New(checker Checker, opts ...Option) *Server {
	s := &Server{checker: checker}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if !s.metricsSet {
		s.metricsHandler = promhttp.Handler()
	}
	return s
}

// Handler returns the routed handler wrapped in [observe.Middleware].
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/fits/check", s.handleCheck)
	mux.HandleFunc("POST /v1/fits/view", s.handleView)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics)(mux)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	raw, err := readFit(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var opts []fitcheck.CheckOption
	if v := r.URL.Query().Get("view"); v != "" {
		want, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, badRequest("view must be a boolean, got %q", v))
			return
		}
		if want {
			opts = append(opts, fitcheck.IncludeView())
		}
	}
	res, err := s.checker.Check(r.Context(), raw, opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("doctrine")
	var opts []fitcheck.CheckOption
	if q == "" {
		opts = append(opts, fitcheck.IncludeView())
	} else {
		id, err := strconv.ParseInt(q, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, badRequest("doctrine must be a positive integer, got %q", q))
			return
		}
		opts = append(opts, fitcheck.AgainstDoctrine(id))
	}
	raw, err := readFit(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.checker.Check(r.Context(), raw, opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// checkRequest is the JSON request body.
type checkRequest struct {
	EFT string `json:"eft"`
}

// readFit extracts the fit text from the request body.
func readFit(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", &httpError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("fit exceeds %d bytes", tooLarge.Limit)}
		}
		return "", badRequest("read body: %v", err)
	}

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/json" {
		return string(body), nil
	}
	var req checkRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return "", badRequest("decode json body: %v", err)
	}
	return req.EFT, nil
}

// httpError is an error with a fixed response status.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// errorBody is the JSON shape of every error response. Parse errors carry
// their details (line, name, suggestions) so clients can highlight the line.
type errorBody struct {
	Error string          `json:"error"`
	Parse *fit.ParseError `json:"parse_error,omitempty"`
}

// writeError maps err to a status code and writes it as JSON.
func writeError(w http.ResponseWriter, err error) {
	var (
		he *httpError
		pe *fit.ParseError
		le *fit.LookupError
	)
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &he):
		status = he.status
	case errors.As(err, &pe):
		status = http.StatusUnprocessableEntity
		body.Parse = pe
	case errors.Is(err, doctrine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fitcheck.ErrWrongHull):
		status = http.StatusConflict
	case errors.As(err, &le), errors.Is(err, resilience.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}
