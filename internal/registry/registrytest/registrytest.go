// Package registrytest provides an in-memory Registry Service.
//
// It validates submissions against the same report schema as the client,
// and lets tests inject failures, slow responses and outages. The fieldnode
// "registry" command serves it for local development.
package registrytest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/registry"
)

// Submission records one POST /reports as received.
type Submission struct {
	ID        string
	NodeID    string
	Signature string
	Body      []byte
	Status    int
}

// Registry is an in-memory Registry Service.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu          sync.Mutex
	reports     map[string]model.Observation
	submissions []Submission
	failNext    []int
	failByID    map[string][]int
	unhealthy   bool
	delay       time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty, healthy registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		reports:  make(map[string]model.Observation),
		failByID: make(map[string][]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewServer starts an httptest server for r, closed on test cleanup.
func NewServer(t interface{ Cleanup(func()) }, r *Registry) *httptest.Server {
	srv := httptest.NewServer(r.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// Handler returns the HTTP handler serving the registry endpoints.
func (r *Registry) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(r.slow)

	router.Post("/reports", r.handleSubmit)
	router.Get("/reports", r.handleList)
	router.Get("/health", r.handleHealth)
	return router
}

// FailNext makes the next submissions fail with the given statuses, in
// order, regardless of id.
func (r *Registry) FailNext(statuses ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = append(r.failNext, statuses...)
}

// FailID makes the next n submissions of id fail with status.
func (r *Registry) FailID(id string, n, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < n; i++ {
		r.failByID[id] = append(r.failByID[id], status)
	}
}

// SetHealthy controls the /health response. An unhealthy registry also
// answers submissions with 503.
func (r *Registry) SetHealthy(healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unhealthy = !healthy
}

// SetDelay delays every response by d.
func (r *Registry) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// Calls returns how many times id was submitted, including failures.
func (r *Registry) Calls(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.submissions {
		if s.ID == id {
			n++
		}
	}
	return n
}

// Submissions returns every POST /reports received, in arrival order.
func (r *Registry) Submissions() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Submission, len(r.submissions))
	copy(out, r.submissions)
	return out
}

// Reports returns the accepted reports, newest first.
func (r *Registry) Reports() []model.Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

// Put stores a report directly, bypassing submission.
func (r *Registry) Put(obs model.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[obs.ID] = obs
}

func (r *Registry) sortedLocked() []model.Observation {
	out := make([]model.Observation, 0, len(r.reports))
	for _, obs := range r.reports {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) slow(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		d := r.delay
		r.mu.Unlock()
		if d > 0 {
			select {
			case <-time.After(d):
			case <-req.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Registry) handleSubmit(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, registry.Response[any]{Error: "read body", Detail: err.Error()})
		return
	}

	var obs model.Observation
	_ = json.Unmarshal(body, &obs)

	sub := Submission{
		ID:        obs.ID,
		NodeID:    req.Header.Get(registry.HeaderNodeID),
		Signature: req.Header.Get(registry.HeaderSignature),
		Body:      body,
	}

	r.mu.Lock()
	status := r.injectedLocked(obs.ID)
	if status == 0 {
		if err := registry.ValidateReport(body); err != nil {
			status = http.StatusBadRequest
			sub.Status = status
			r.submissions = append(r.submissions, sub)
			r.mu.Unlock()
			r.logger.Info("report rejected", "id", obs.ID, "error", err)
			writeJSON(w, status, registry.Response[any]{Error: "validation failed", Detail: err.Error()})
			return
		}
		status = http.StatusCreated
		if _, exists := r.reports[obs.ID]; exists {
			status = http.StatusOK
		}
		obs.Status = model.StatusSynced
		r.reports[obs.ID] = obs
	}
	sub.Status = status
	r.submissions = append(r.submissions, sub)
	r.mu.Unlock()

	if status >= 300 {
		r.logger.Info("report failed", "id", obs.ID, "status", status)
		writeJSON(w, status, registry.Response[any]{Error: http.StatusText(status)})
		return
	}
	r.logger.Info("report accepted", "id", obs.ID, "node_id", sub.NodeID)
	writeJSON(w, status, registry.Response[registry.Ack]{Success: true, Data: registry.Ack{ID: obs.ID}})
}

// injectedLocked pops the next injected failure for id, if any.
func (r *Registry) injectedLocked(id string) int {
	if r.unhealthy {
		return http.StatusServiceUnavailable
	}
	if q := r.failByID[id]; len(q) > 0 {
		r.failByID[id] = q[1:]
		return q[0]
	}
	if len(r.failNext) > 0 {
		status := r.failNext[0]
		r.failNext = r.failNext[1:]
		return status
	}
	return 0
}

func (r *Registry) handleList(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	reports := r.sortedLocked()
	r.mu.Unlock()
	writeJSON(w, http.StatusOK, registry.Response[[]model.Observation]{Success: true, Data: reports})
}

func (r *Registry) handleHealth(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	unhealthy := r.unhealthy
	r.mu.Unlock()
	if unhealthy {
		writeJSON(w, http.StatusServiceUnavailable, registry.Response[registry.Health]{Error: "unavailable", Data: registry.Health{Status: "down"}})
		return
	}
	writeJSON(w, http.StatusOK, registry.Response[registry.Health]{Success: true, Data: registry.Health{Status: "ok"}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
