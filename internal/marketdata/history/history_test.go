package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"marketlens/internal/model"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type call struct {
	res      string
	from, to time.Time
}

type fakeSource struct {
	payloads map[string]string
	errs     map[string]error
	calls    []call
}

func (f *fakeSource) Bars(_ context.Context, _, res string, from, to time.Time) ([]gjson.Result, error) {
	f.calls = append(f.calls, call{res, from, to})
	if err := f.errs[res]; err != nil {
		return nil, err
	}
	p, ok := f.payloads[res]
	if !ok {
		return nil, nil
	}
	return gjson.Parse(p).Array(), nil
}

// series renders n bars of width w starting at start as a JSON array.
func series(start, w int64, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		p := 100 + float64(i)
		parts[i] = fmt.Sprintf(`{"timestamp":%d,"open":%g,"high":%g,"low":%g,"close":%g,"volume":1}`,
			start+int64(i)*w, p, p+1, p-1, p+0.5)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newFetcher(src Source) *Fetcher {
	f := New(src)
	f.now = func() time.Time { return fixedNow }
	return f
}

func TestFetch_DailyDirect(t *testing.T) {
	src := &fakeSource{payloads: map[string]string{"d": series(1700006400, 86400, 30)}}
	res, err := newFetcher(src).Fetch(context.Background(), "AAPL.US", model.TF1d)
	require.NoError(t, err)
	require.Len(t, res.Bars, 30)
	require.False(t, res.RolledUp)
	require.Equal(t, "d", res.Resolution)
	require.Equal(t, fixedNow.AddDate(-2, 0, 0), res.From)
	require.Equal(t, fixedNow, res.To)
}

func TestFetch_1hFallsBackTo5mRollup(t *testing.T) {
	src := &fakeSource{
		errs:     map[string]error{"1h": model.ErrUpstream},
		payloads: map[string]string{"5m": series(1700002800, 300, 24)},
	}
	var fallbacks []string
	f := newFetcher(src)
	f.OnFallback = func(_ model.Timeframe, from, to string, _ error) { fallbacks = append(fallbacks, from+"->"+to) }

	res, err := f.Fetch(context.Background(), "EURUSD.FOREX", model.TF1h)
	require.NoError(t, err)
	require.True(t, res.RolledUp)
	require.Equal(t, "5m", res.Resolution)
	require.Len(t, res.Bars, 2)
	require.Equal(t, int64(1700002800), res.Bars[0].Time)
	require.Equal(t, []string{"1h->5m"}, fallbacks)
	require.Equal(t, fixedNow.AddDate(0, 0, -10), src.calls[0].from)
}

func TestFetch_15mAlwaysRollsUp(t *testing.T) {
	src := &fakeSource{payloads: map[string]string{"5m": series(1700001000, 300, 6)}}
	res, err := newFetcher(src).Fetch(context.Background(), "EURUSD.FOREX", model.TF15m)
	require.NoError(t, err)
	require.True(t, res.RolledUp)
	for _, b := range res.Bars {
		require.Zero(t, b.Time%900)
	}
}

func TestFetch_4hPrefers1h(t *testing.T) {
	src := &fakeSource{payloads: map[string]string{
		"1h": series(1699992000, 3600, 8),
		"5m": series(1699992000, 300, 8),
	}}
	res, err := newFetcher(src).Fetch(context.Background(), "XAUUSD.FOREX", model.TF4h)
	require.NoError(t, err)
	require.Equal(t, "1h", res.Resolution)
	require.Len(t, res.Bars, 2)
	require.Len(t, src.calls, 1)
}

func TestFetch_NoHistoricalData(t *testing.T) {
	src := &fakeSource{errs: map[string]error{"1m": model.ErrUpstream}}
	_, err := newFetcher(src).Fetch(context.Background(), "EURUSD.FOREX", model.TF1m)
	require.ErrorIs(t, err, ErrNoHistoricalData)
	require.ErrorIs(t, err, model.ErrNoData)
	require.ErrorIs(t, err, model.ErrUpstream)
	require.False(t, errors.Is(err, ErrNoValidData))
}

func TestFetch_NoValidData(t *testing.T) {
	src := &fakeSource{payloads: map[string]string{
		"5m": `[{"timestamp":1700000000,"open":1,"high":0.5,"low":0.4,"close":1}]`,
	}}
	_, err := newFetcher(src).Fetch(context.Background(), "EURUSD.FOREX", model.TF5m)
	require.ErrorIs(t, err, ErrNoValidData)
	require.False(t, errors.Is(err, ErrNoHistoricalData))
}

func TestPlanFor_Unknown(t *testing.T) {
	_, err := PlanFor("2h")
	require.ErrorIs(t, err, model.ErrValidation)
}
