// Package health serves the liveness and readiness probes of the waitlist.
//
// GET /healthz answers 200 whenever the process can serve HTTP. GET /readyz
// probes every dependency a fit check needs (the item catalog, the doctrine
// store and any database behind them) and answers 503 while one of them
// fails, so a load balancer stops routing checks that would end in errors.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// probeTimeout bounds each dependency probe.
const probeTimeout = 5 * time.Second

// Checker probes one dependency. Check returns a short human-readable detail
// on success, such as the probe item's name or a doctrine count.
type Checker struct {
	Name  string
	Check func(ctx context.Context) (detail string, err error)
}

// Probe is the outcome of one [Checker].
type Probe struct {
	OK        bool    `json:"ok"`
	Detail    string  `json:"detail,omitempty"`
	Error     string  `json:"error,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// Report is the readiness response body.
type Report struct {
	Status string           `json:"status"` // "ok" or "fail"
	Checks map[string]Probe `json:"checks,omitempty"`
}

// Ready reports whether every check passed.
func (r Report) Ready() bool { return r.Status == "ok" }

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New returns a [Handler] probing checkers on every readiness request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Ready runs every checker concurrently, each under its own timeout.
func (h *Handler) Ready(ctx context.Context) Report {
	probes := make([]Probe, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			start := time.Now()
			detail, err := c.Check(pctx)
			p := Probe{OK: err == nil, Detail: detail, LatencyMS: float64(time.Since(start).Microseconds()) / 1000}
			if err != nil {
				p.Error = err.Error()
			}
			probes[i] = p
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: "ok", Checks: make(map[string]Probe, len(probes))}
	for i, p := range probes {
		rep.Checks[h.checkers[i].Name] = p
		if !p.OK {
			rep.Status = "fail"
		}
	}
	return rep
}

// Healthz answers the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: "ok"})
}

// Readyz answers the readiness probe with the [Report] from [Handler.Ready].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Ready(r.Context())
	status := http.StatusOK
	if !rep.Ready() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Register mounts GET /healthz and GET /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
