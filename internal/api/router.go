// Package api exposes analyses, bars, archived reports and the live
// snapshot stream over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"marketlens/internal/analysis"
	"marketlens/internal/logger"
	"marketlens/internal/marketdata/history"
	"marketlens/internal/marketdata/live"
	"marketlens/internal/model"
)

// Analyzer runs analyses and bar fetches.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (model.Report, error)
	Bars(ctx context.Context, symbol, timeframe string) (history.Result, error)
}

// Resolver maps a user ticker to a canonical symbol.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (string, error)
}

// ReportArchive reads archived reports.
type ReportArchive interface {
	Report(ctx context.Context, id string) (model.Report, error)
	RecentReports(ctx context.Context, symbol string, limit int) ([]model.Report, error)
}

// LatestStore reads the most recently published report and live bars.
type LatestStore interface {
	LatestReport(ctx context.Context, symbol string, tf model.Timeframe) (model.Report, bool, error)
	LatestBars(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Bar, bool, error)
}

// SnapshotSource is a live session's observer side.
type SnapshotSource interface {
	Snapshots() <-chan live.Snapshot
	Unsubscribe(ch <-chan live.Snapshot)
}

// Deps wires the router. Analyzer is required; every other field is
// optional and its routes answer 404 when unset.
type Deps struct {
	Analyzer Analyzer
	Resolver Resolver
	Archive  ReportArchive
	Latest   LatestStore
	Live     SnapshotSource
	Health   http.Handler
	Metrics  http.Handler

	// Timeout bounds every non-streaming request. Default 60s.
	Timeout time.Duration
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	if deps.Timeout <= 0 {
		deps.Timeout = 60 * time.Second
	}
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)

	if deps.Health != nil {
		r.Method(http.MethodGet, "/healthz", deps.Health)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stream", h.stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(deps.Timeout))
			r.Get("/analysis/{symbol}", h.analysis)
			r.Get("/analysis/{symbol}/latest", h.latestReport)
			r.Get("/bars/{symbol}", h.bars)
			r.Get("/reports/{symbol}", h.reports)
			r.Get("/report/{id}", h.report)
		})
	})
	return r
}

// requestID tags the request context with the caller's X-Request-ID or a
// fresh one, and echoes it back.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logger.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// StatusFor maps the error taxonomy to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), RequestID: logger.RequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}
