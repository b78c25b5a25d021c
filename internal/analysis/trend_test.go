package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketlens/internal/model"
)

var oneBar = []model.Bar{{Time: 1, Open: 100, High: 101, Low: 99, Close: 100}}

func TestTrend_Empty(t *testing.T) {
	tr := Trend(nil, model.IndicatorSet{}, 0)
	require.Equal(t, "neutral", tr.Direction)
	require.Equal(t, model.BiasHold, tr.Recommendation)
	require.Equal(t, 0, tr.Confidence)
	require.Equal(t, "Insufficient data", tr.Reason)
}

func TestTrend_NoSignals(t *testing.T) {
	tr := Trend(oneBar, model.IndicatorSet{}, 0)
	require.Equal(t, model.BiasHold, tr.Recommendation)
	require.Equal(t, 50, tr.Confidence)
	require.Equal(t, "", tr.Reason)
}

func TestTrend_AllBullish(t *testing.T) {
	set := model.IndicatorSet{
		RSI:   model.Float(25),
		SMA20: model.Float(95),
		SMA50: model.Float(90),
		MACD:  &model.MACD{MACD: model.Float(1), Signal: model.Float(0.5)},
	}
	tr := Trend(oneBar, set, 100)
	require.Equal(t, "bullish", tr.Direction)
	require.Equal(t, model.BiasBuy, tr.Recommendation)
	require.Equal(t, 85, tr.Confidence, "100 + 5 capped at 85")
	require.Equal(t, "RSI oversold, Price > SMA20 > SMA50, MACD bullish", tr.Reason)
}

func TestTrend_MixedWithMACDBonus(t *testing.T) {
	set := model.IndicatorSet{
		RSI:   model.Float(75),
		SMA20: model.Float(95),
		MACD:  &model.MACD{MACD: model.Float(-1), Signal: model.Float(0)},
	}
	// RSI bear, price > SMA20 bull, MACD bear: 2/3 = 67 + 5.
	tr := Trend(oneBar, set, 100)
	require.Equal(t, "bearish", tr.Direction)
	require.Equal(t, 72, tr.Confidence)
	require.Equal(t, []string{"RSI overbought", "Price > SMA20", "MACD bearish"}, tr.Reasons)
}

func TestTrend_RSIBandsOnlyAddReasons(t *testing.T) {
	cases := map[float64]string{
		65:   "RSI elevated (65.0)",
		35.5: "RSI depressed (35.5)",
		50:   "RSI neutral (50.0)",
	}
	for v, want := range cases {
		tr := Trend(oneBar, model.IndicatorSet{RSI: model.Float(v)}, 0)
		require.Equal(t, want, tr.Reason)
		require.Equal(t, 50, tr.Confidence)
		require.Equal(t, model.BiasHold, tr.Recommendation)
	}
}

func TestTrend_SMATangleNoVote(t *testing.T) {
	// price above SMA20 but SMA20 below SMA50: no signal.
	set := model.IndicatorSet{SMA20: model.Float(95), SMA50: model.Float(98)}
	tr := Trend(oneBar, set, 100)
	require.Empty(t, tr.Reasons)
	require.Equal(t, model.BiasHold, tr.Recommendation)
}

func TestTrend_FallsBackToLastClose(t *testing.T) {
	set := model.IndicatorSet{SMA20: model.Float(99)}
	tr := Trend(oneBar, set, 0)
	require.Equal(t, "Price > SMA20", tr.Reason)
	require.Equal(t, 100, tr.Confidence)
}
