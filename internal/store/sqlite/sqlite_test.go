package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketlens/internal/model"
)

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func bar(ts int64, c float64) model.Bar {
	return model.Bar{Time: ts, Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(Config{})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestSaveBars_UpsertAndRead(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	commits := 0
	a.OnCommit = func(time.Duration) { commits++ }

	require.NoError(t, a.SaveBars(ctx, "XAUUSD.FOREX", model.TF1h, []model.Bar{bar(3600, 2000), bar(7200, 2001)}))
	// Second save overwrites the tail and appends; the invalid bar is skipped.
	require.NoError(t, a.SaveBars(ctx, "XAUUSD.FOREX", model.TF1h, []model.Bar{
		bar(7200, 2005),
		bar(10800, 2010),
		{Time: 14400, Open: 1, High: 0.5, Low: 1, Close: 1},
	}))
	require.Equal(t, 2, commits)

	got, err := a.ReadBars(ctx, "XAUUSD.FOREX", model.TF1h, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, int64(3600), got[0].Time)
	require.Equal(t, 2005.0, got[1].Close)
	require.Equal(t, int64(10800), got[2].Time)

	got, err = a.ReadBars(ctx, "XAUUSD.FOREX", model.TF1h, 7200)
	require.NoError(t, err)
	require.Len(t, got, 2)

	other, err := a.ReadBars(ctx, "XAUUSD.FOREX", model.TF4h, 0)
	require.NoError(t, err)
	require.Empty(t, other)

	last, err := a.LastBarTime(ctx, "XAUUSD.FOREX", model.TF1h)
	require.NoError(t, err)
	require.Equal(t, int64(10800), last)

	none, err := a.LastBarTime(ctx, "EURUSD.FOREX", model.TF1h)
	require.NoError(t, err)
	require.Zero(t, none)
}

func TestReports(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()

	r1 := model.Report{ID: "01A", Symbol: "AAPL.US", Timeframe: model.TF1d, CurrentPrice: 190, GeneratedAt: base}
	r2 := model.Report{
		ID:           "01B",
		Symbol:       "AAPL.US",
		Timeframe:    model.TF1d,
		CurrentPrice: 191,
		GeneratedAt:  base.Add(time.Hour),
		Setup:        &model.TradeSetup{Direction: model.Buy, Entry: 191, StopLoss: 189, TakeProfit: 195, RiskReward: 2},
	}
	require.NoError(t, a.SaveReport(ctx, r1))
	require.NoError(t, a.SaveReport(ctx, r2))

	got, err := a.Report(ctx, "01B")
	require.NoError(t, err)
	require.Equal(t, 191.0, got.CurrentPrice)
	require.NotNil(t, got.Setup)
	require.Equal(t, model.Buy, got.Setup.Direction)

	_, err = a.Report(ctx, "missing")
	require.ErrorIs(t, err, model.ErrNoData)

	recent, err := a.RecentReports(ctx, "AAPL.US", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "01B", recent[0].ID)
	require.Equal(t, "01A", recent[1].ID)
}

func TestRun_CoalescesAndFlushesOnClose(t *testing.T) {
	a := openTemp(t)
	in := make(chan Batch, 4)
	done := make(chan struct{})
	go func() {
		a.Run(context.Background(), in)
		close(done)
	}()

	in <- Batch{Symbol: "BTC-USD.CC", Timeframe: model.TF1m, Bars: []model.Bar{bar(60, 100)}}
	in <- Batch{Symbol: "BTC-USD.CC", Timeframe: model.TF1m, Bars: []model.Bar{bar(60, 101), bar(120, 102)}}
	close(in)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after input closed")
	}

	got, err := a.ReadBars(context.Background(), "BTC-USD.CC", model.TF1m, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 101.0, got[0].Close)
}
