package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketlens/internal/indicator"
	"marketlens/internal/marketdata/history"
	"marketlens/internal/model"
	"marketlens/internal/notification"
	"marketlens/internal/symbol"
)

type fakeHistory struct {
	bars []model.Bar
	err  error
	got  []string
}

func (f *fakeHistory) Fetch(_ context.Context, sym string, tf model.Timeframe) (history.Result, error) {
	f.got = append(f.got, sym+"|"+string(tf))
	if f.err != nil {
		return history.Result{}, f.err
	}
	return history.Result{
		Symbol:     sym,
		Timeframe:  tf,
		Resolution: "1h",
		From:       time.Unix(0, 0),
		To:         time.Unix(f.bars[len(f.bars)-1].Time, 0),
		Bars:       f.bars,
	}, nil
}

type fakeIndicators struct {
	set model.IndicatorSet
	err error
	w   indicator.Window
}

func (f *fakeIndicators) Compute(_ context.Context, w indicator.Window, _ []model.Bar) (model.IndicatorSet, error) {
	f.w = w
	return f.set, f.err
}

type fakeQuotes struct {
	q   model.Quote
	err error
}

func (f fakeQuotes) Quote(context.Context, string) (model.Quote, error) { return f.q, f.err }

type recorder struct {
	mu      sync.Mutex
	bars    int
	reports []model.Report
	alerts  []notification.Alert
}

func (r *recorder) SaveBars(_ context.Context, _ string, _ model.Timeframe, bars []model.Bar) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bars += len(bars)
	return nil
}

func (r *recorder) ReadBars(context.Context, string, model.Timeframe, int64) ([]model.Bar, error) {
	return nil, nil
}

func (r *recorder) SaveReport(_ context.Context, rep model.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return nil
}

func (r *recorder) Send(_ context.Context, a notification.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return errors.New("delivery failures are logged only")
}

// hourly returns n hourly bars around 2000 with a swing low and high.
func hourly(n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{Time: int64(i+1) * 3600, Open: 2000, High: 2005, Low: 1995, Close: 2000}
	}
	bars[n-20].Low = 1960
	bars[n-12].High = 2060
	return bars
}

func newTestService(h *fakeHistory, ind *fakeIndicators, q Quoter, rec *recorder) *Service {
	return NewService(Deps{
		Resolver:   symbol.NewResolver(nil, nil),
		History:    h,
		Indicators: ind,
		Quotes:     q,
		Archive:    rec,
		Reports:    rec,
		Notifier:   rec,
	})
}

func TestAnalyze_AlignedQuote(t *testing.T) {
	bars := hourly(60)
	last := bars[len(bars)-1]
	h := &fakeHistory{bars: bars}
	ind := &fakeIndicators{set: model.IndicatorSet{
		RSI:  model.Float(25),
		MACD: &model.MACD{MACD: model.Float(2), Signal: model.Float(1)},
	}}
	rec := &recorder{}
	svc := newTestService(h, ind, fakeQuotes{q: model.Quote{Price: 2001, Time: last.Time + 120}}, rec)

	var observed []error
	svc.OnAnalysis = func(tf model.Timeframe, d time.Duration, err error) {
		observed = append(observed, err)
	}

	rep, err := svc.Analyze(context.Background(), Request{Symbol: "xauusd", Timeframe: "H1", WithSetup: true})
	require.NoError(t, err)
	require.Len(t, rep.ID, 26)
	require.Equal(t, "XAUUSD.FOREX", rep.Symbol)
	require.Equal(t, "xauusd", rep.Query)
	require.Equal(t, model.TF1h, rep.Timeframe)
	require.True(t, rep.IsRealTime)
	require.Equal(t, 2001.0, rep.CurrentPrice)
	require.Equal(t, last.Time+120, rep.QuoteTime)
	require.Equal(t, 60, rep.DataPoints)
	require.Equal(t, last, rep.LastBar)
	require.Equal(t, model.BiasBuy, rep.Trend.Recommendation)
	require.Equal(t, []string{"XAUUSD.FOREX|1h"}, h.got)
	require.Equal(t, last.Time, ind.w.To)

	require.Equal(t, 60, rec.bars)
	require.Len(t, rec.reports, 1)
	if rep.Setup != nil {
		require.Len(t, rec.alerts, 1)
		require.Equal(t, rep.Setup, rec.alerts[0].Setup)
	} else {
		require.Empty(t, rec.alerts)
	}
	require.Equal(t, []error{nil}, observed)
}

func TestAnalyze_StaleOrFailedQuoteUsesClose(t *testing.T) {
	bars := hourly(30)
	for _, q := range []Quoter{
		fakeQuotes{q: model.Quote{Price: 2500, Time: 1}},
		fakeQuotes{err: model.ErrUpstream},
		nil,
	} {
		svc := newTestService(&fakeHistory{bars: bars}, &fakeIndicators{}, q, &recorder{})
		rep, err := svc.Analyze(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "1h"})
		require.NoError(t, err)
		require.False(t, rep.IsRealTime)
		require.Equal(t, 2000.0, rep.CurrentPrice)
		require.Nil(t, rep.Setup, "setup not requested")
	}
}

func TestAnalyze_PartialIndicators(t *testing.T) {
	ind := &fakeIndicators{
		set: model.IndicatorSet{RSI: model.Float(50)},
		err: &indicator.PartialError{Failed: []string{"macd"}, Errs: []error{model.ErrUpstream}},
	}
	svc := newTestService(&fakeHistory{bars: hourly(30)}, ind, nil, &recorder{})
	rep, err := svc.Analyze(context.Background(), Request{Symbol: "AAPL.US", Timeframe: "1d"})
	require.NoError(t, err)
	require.Equal(t, []string{"macd"}, rep.Partial)
	require.NotNil(t, rep.Indicators.RSI)
}

func TestAnalyze_Errors(t *testing.T) {
	svc := newTestService(&fakeHistory{bars: hourly(30)}, &fakeIndicators{}, nil, &recorder{})
	_, err := svc.Analyze(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "7m"})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Analyze(context.Background(), Request{Symbol: "  ", Timeframe: "1h"})
	require.ErrorIs(t, err, model.ErrValidation)

	failing := newTestService(&fakeHistory{err: history.ErrNoHistoricalData}, &fakeIndicators{}, nil, &recorder{})
	_, err = failing.Analyze(context.Background(), Request{Symbol: "XAUUSD"})
	require.ErrorIs(t, err, model.ErrNoData)

	broken := newTestService(&fakeHistory{bars: hourly(30)}, &fakeIndicators{err: model.ErrUpstream}, nil, &recorder{})
	_, err = broken.Analyze(context.Background(), Request{Symbol: "XAUUSD"})
	require.ErrorIs(t, err, model.ErrUpstream)
}

func TestNewReportID_Sortable(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewReportID(at)
	b := NewReportID(at)
	require.Less(t, a, b)
	require.Less(t, b, NewReportID(at.Add(time.Millisecond)))
}

func TestBars_ResolvesAndArchives(t *testing.T) {
	h := &fakeHistory{bars: hourly(30)}
	rec := &recorder{}
	svc := newTestService(h, &fakeIndicators{}, nil, rec)

	res, err := svc.Bars(context.Background(), "XAUUSD", "h4")
	require.NoError(t, err)
	require.Equal(t, "XAUUSD.FOREX", res.Symbol)
	require.Equal(t, model.TF4h, res.Timeframe)
	require.Len(t, res.Bars, 30)
	require.Equal(t, []string{"XAUUSD.FOREX|4h"}, h.got)
	require.Equal(t, 30, rec.bars)

	_, err = svc.Bars(context.Background(), "XAUUSD", "7m")
	require.ErrorIs(t, err, model.ErrValidation)
}
