package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"marketlens/internal/analysis"
	"marketlens/internal/model"
)

type handlers struct {
	deps Deps
}

// GET /api/v1/analysis/{symbol}?tf=1h&setup=true
func (h *handlers) analysis(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.Analyzer.Analyze(r.Context(), analysis.Request{
		Symbol:    chi.URLParam(r, "symbol"),
		Timeframe: r.URL.Query().Get("tf"),
		WithSetup: queryBool(r, "setup"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /api/v1/analysis/{symbol}/latest?tf=1h
func (h *handlers) latestReport(w http.ResponseWriter, r *http.Request) {
	if h.deps.Latest == nil || h.deps.Resolver == nil {
		http.NotFound(w, r)
		return
	}
	sym, tf, err := h.resolve(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, ok, err := h.deps.Latest.LatestReport(r.Context(), sym, tf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, fmt.Errorf("%w: no published report for %s %s", model.ErrNoData, sym, tf))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type barsResponse struct {
	Symbol     string          `json:"symbol"`
	Timeframe  model.Timeframe `json:"timeframe"`
	Resolution string          `json:"resolution,omitempty"`
	RolledUp   bool            `json:"rolled_up"`
	Live       bool            `json:"live"`
	From       *time.Time      `json:"from,omitempty"`
	To         *time.Time      `json:"to,omitempty"`
	Bars       []model.Bar     `json:"bars"`
}

// GET /api/v1/bars/{symbol}?tf=1h&from=<unix>&live=true
//
// live=true serves the last snapshot published by a live session instead of
// fetching history.
func (h *handlers) bars(w http.ResponseWriter, r *http.Request) {
	var from int64
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: from must be a unix timestamp", model.ErrValidation))
			return
		}
		from = n
	}

	var resp barsResponse
	if queryBool(r, "live") {
		if h.deps.Latest == nil || h.deps.Resolver == nil {
			http.NotFound(w, r)
			return
		}
		sym, tf, err := h.resolve(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		bars, ok, err := h.deps.Latest.LatestBars(r.Context(), sym, tf)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ok {
			writeError(w, r, fmt.Errorf("%w: no live bars for %s %s", model.ErrNoData, sym, tf))
			return
		}
		resp = barsResponse{Symbol: sym, Timeframe: tf, Live: true, Bars: bars}
	} else {
		res, err := h.deps.Analyzer.Bars(r.Context(), chi.URLParam(r, "symbol"), r.URL.Query().Get("tf"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp = barsResponse{
			Symbol:     res.Symbol,
			Timeframe:  res.Timeframe,
			Resolution: res.Resolution,
			RolledUp:   res.RolledUp,
			From:       &res.From,
			To:         &res.To,
			Bars:       res.Bars,
		}
	}

	resp.Bars = since(resp.Bars, from)
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/reports/{symbol}?limit=20
func (h *handlers) reports(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil || h.deps.Resolver == nil {
		http.NotFound(w, r)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, r, fmt.Errorf("%w: limit must be 1..500", model.ErrValidation))
			return
		}
		limit = n
	}
	sym, err := h.deps.Resolver.Resolve(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	reps, err := h.deps.Archive.RecentReports(r.Context(), sym, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reps)
}

// GET /api/v1/report/{id}
func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil {
		http.NotFound(w, r)
		return
	}
	rep, err := h.deps.Archive.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *handlers) resolve(r *http.Request) (string, model.Timeframe, error) {
	tf, err := model.ParseTimeframe(r.URL.Query().Get("tf"))
	if err != nil {
		return "", "", err
	}
	sym, err := h.deps.Resolver.Resolve(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		return "", "", err
	}
	return sym, tf, nil
}

// since returns the suffix of ascending bars at or after from.
func since(bars []model.Bar, from int64) []model.Bar {
	if from <= 0 {
		return bars
	}
	for i, b := range bars {
		if b.Time >= from {
			return bars[i:]
		}
	}
	return []model.Bar{}
}
