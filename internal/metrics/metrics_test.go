package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"marketlens/internal/marketdata/agg"
	"marketlens/internal/model"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func TestOutcome(t *testing.T) {
	require.Equal(t, "ok", Outcome(nil))
	require.Equal(t, "validation", Outcome(fmt.Errorf("bad: %w", model.ErrValidation)))
	require.Equal(t, "no_data", Outcome(model.ErrNoData))
	require.Equal(t, "upstream", Outcome(model.ErrUpstream))
}

func TestObserveRequestAndReport(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveRequest("eod", 120*time.Millisecond, nil)
	m.ObserveRequest("eod", time.Second, model.ErrUpstream)
	require.Equal(t, 1.0, value(t, m.UpstreamRequests.WithLabelValues("eod", "ok")))
	require.Equal(t, 1.0, value(t, m.UpstreamRequests.WithLabelValues("eod", "upstream")))

	m.ObserveReport(model.Report{Partial: []string{"macd"}})
	m.ObserveReport(model.Report{Setup: &model.TradeSetup{Direction: model.Buy}})
	require.Equal(t, 1.0, value(t, m.SetupsTotal.WithLabelValues("none")))
	require.Equal(t, 1.0, value(t, m.SetupsTotal.WithLabelValues("Buy")))
	require.Equal(t, 1.0, value(t, m.PartialIndicators.WithLabelValues("macd")))

	m.ObserveAnalysis(model.TF1h, time.Second, model.ErrNoData)
	require.Equal(t, 1.0, value(t, m.AnalysesTotal.WithLabelValues("1h", "no_data")))
}

func TestObserveBreaker(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveBreaker(1)
	m.ObserveBreaker(2)
	m.ObserveBreaker(1)
	require.Equal(t, 1.0, value(t, m.RedisCircuitBreakerState))
	require.Equal(t, 2.0, value(t, m.RedisCircuitBreakerTrips))
	m.ObserveBreaker(0)
	require.Equal(t, 0.0, value(t, m.RedisCircuitBreakerState))
}

func TestLiveHooks(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := NewHealthStatus()
	hooks := m.LiveHooks("XAUUSD.FOREX", h)

	hooks.OnStateChange(model.Connecting, model.Open)
	require.Equal(t, float64(model.Open), value(t, m.StreamState.WithLabelValues("XAUUSD.FOREX")))
	require.True(t, h.StreamOpen)

	hooks.OnStateChange(model.Closed, model.ReconnectScheduled)
	require.Equal(t, 1.0, value(t, m.StreamReconnects))
	require.False(t, h.StreamOpen)

	hooks.OnTick(agg.Updated)
	hooks.OnTick(agg.Rejected)
	require.Equal(t, 1.0, value(t, m.TicksTotal.WithLabelValues("updated")))
	require.Equal(t, 1.0, value(t, m.TicksTotal.WithLabelValues("rejected")))
	require.False(t, h.LastTickTime.IsZero())

	hooks.OnPoll(agg.Rejected, model.ErrUpstream)
	require.Equal(t, 1.0, value(t, m.PollsTotal.WithLabelValues("error")))

	hooks.OnRefresh(time.Second, model.ErrUpstream)
	require.Equal(t, 1.0, value(t, m.RefreshFailures))
	require.False(t, h.UpstreamOK)

	hooks.OnDrop()
	require.Equal(t, 1.0, value(t, m.SnapshotDropsTotal))
}

func TestHealthz(t *testing.T) {
	h := NewHealthStatus()

	get := func() (int, map[string]any) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	code, body := get()
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "healthy", body["status"])

	up := false
	h.Register("redis", func(context.Context) error {
		if up {
			return nil
		}
		return errors.New("connection refused")
	})
	code, body = get()
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "degraded", body["status"])

	h.ProbeAll(context.Background())
	_, body = get()
	require.Equal(t, "degraded", body["status"])
	require.Equal(t, false, body["components"].(map[string]any)["redis"].(map[string]any)["ok"])

	up = true
	h.ProbeAll(context.Background())
	code, body = get()
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "healthy", body["status"])

	h.SetUpstreamOK(false)
	_, body = get()
	require.Equal(t, "unhealthy", body["status"])
}
