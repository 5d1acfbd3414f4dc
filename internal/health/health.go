// Package health serves the liveness and readiness probes.
//
// GET /healthz answers 200 as long as the process serves HTTP. GET /readyz
// runs every [Checker] concurrently and answers 503 when any fails:
//
//	{"status":"fail","checks":{"tts":{"status":"fail","error":"...","latency_ms":1}}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil when it is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// CheckResult is the outcome of one [Checker] in a /readyz response.
type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report is the body of both probes.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz.
type Handler struct {
	checkers []Checker
}

// New returns a [Handler] for checkers. Entries without a Check function
// are ignored.
func New(checkers ...Checker) *Handler {
	h := &Handler{}
	for _, c := range checkers {
		if c.Check != nil {
			h.checkers = append(h.checkers, c)
		}
	}
	return h
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	code := http.StatusOK
	if rep.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Check runs every checker and aggregates the results. A checker that
// overruns [checkTimeout] fails with the deadline error.
func (h *Handler) Check(ctx context.Context) Report {
	rep := Report{Status: "ok", Checks: make(map[string]CheckResult, len(h.checkers))}
	var mu sync.Mutex

	// Checkers never return errors to the group; failures are recorded.
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			res := run(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			rep.Checks[c.Name] = res
			if res.Status != "ok" {
				rep.Status = "fail"
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func run(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status, res.Error = "fail", err.Error()
	}
	return res
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
