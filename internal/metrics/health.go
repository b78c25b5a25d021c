package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const probeTimeout = 3 * time.Second

// Probe checks one optional dependency, typically a store ping.
type Probe func(ctx context.Context) error

type component struct {
	probe     Probe
	ok        bool
	latency   time.Duration
	checkedAt time.Time
}

// HealthStatus aggregates provider reachability, the live stream and the
// registered store probes into the /healthz document.
type HealthStatus struct {
	mu sync.RWMutex

	UpstreamOK   bool
	StreamOpen   bool
	LastTickTime time.Time
	StartedAt    time.Time

	components map[string]*component
}

// NewHealthStatus starts with the provider assumed reachable until a call
// says otherwise.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		UpstreamOK: true,
		StartedAt:  time.Now(),
		components: make(map[string]*component),
	}
}

func (h *HealthStatus) SetUpstreamOK(v bool) {
	h.mu.Lock()
	h.UpstreamOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetStreamOpen(v bool) {
	h.mu.Lock()
	h.StreamOpen = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

// Register adds a named dependency. It counts as down until its first
// successful probe.
func (h *HealthStatus) Register(name string, p Probe) {
	h.mu.Lock()
	h.components[name] = &component{probe: p}
	h.mu.Unlock()
}

// ProbeAll runs every registered probe once, sequentially.
func (h *HealthStatus) ProbeAll(ctx context.Context) {
	h.mu.RLock()
	names := make([]string, 0, len(h.components))
	probes := make([]Probe, 0, len(h.components))
	for name, c := range h.components {
		names = append(names, name)
		probes = append(probes, c.probe)
	}
	h.mu.RUnlock()

	for i, p := range probes {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		start := time.Now()
		err := p(pctx)
		took := time.Since(start)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[health] %s probe failed: %v", names[i], err)
		}

		h.mu.Lock()
		if c, ok := h.components[names[i]]; ok {
			c.ok, c.latency, c.checkedAt = err == nil, took, time.Now()
		}
		h.mu.Unlock()
	}
}

// StartLivenessChecker probes immediately and then every interval until
// ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	go func() {
		h.ProbeAll(ctx)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				h.ProbeAll(ctx)
			}
		}
	}()
}

type componentReport struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	CheckedAt string  `json:"checked_at,omitempty"`
}

type healthReport struct {
	Status       string                     `json:"status"`
	Uptime       string                     `json:"uptime"`
	UpstreamOK   bool                       `json:"upstream_ok"`
	StreamOpen   bool                       `json:"stream_open"`
	LastTickTime string                     `json:"last_tick_time,omitempty"`
	TickAge      string                     `json:"tick_age,omitempty"`
	Components   map[string]componentReport `json:"components,omitempty"`
}

func (h *HealthStatus) report() (healthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rep := healthReport{
		Status:     "healthy",
		Uptime:     time.Since(h.StartedAt).Round(time.Second).String(),
		UpstreamOK: h.UpstreamOK,
		StreamOpen: h.StreamOpen,
	}
	if !h.LastTickTime.IsZero() {
		rep.LastTickTime = h.LastTickTime.UTC().Format(time.RFC3339)
		rep.TickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	if len(h.components) > 0 {
		rep.Components = make(map[string]componentReport, len(h.components))
	}
	for name, c := range h.components {
		cr := componentReport{OK: c.ok, LatencyMs: float64(c.latency.Microseconds()) / 1000}
		if !c.checkedAt.IsZero() {
			cr.CheckedAt = c.checkedAt.UTC().Format(time.RFC3339)
		}
		rep.Components[name] = cr
		if !c.ok {
			rep.Status = "degraded"
		}
	}

	// A down provider outranks a down store.
	if !h.UpstreamOK {
		rep.Status = "unhealthy"
	}
	if rep.Status != "healthy" {
		return rep, http.StatusServiceUnavailable
	}
	return rep, http.StatusOK
}

// ServeHTTP renders /healthz.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	rep, code := h.report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		log.Printf("[health] encode: %v", err)
	}
}

// Server exposes /metrics and /healthz on their own listener, separate
// from the API.
type Server struct {
	srv *http.Server
}

// NewServer builds the listener. A nil gatherer means the default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	return &Server{srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[metrics] serve: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Printf("[metrics] shutdown: %v", err)
	}
}
