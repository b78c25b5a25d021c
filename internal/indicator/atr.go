package indicator

import (
	"math"

	"marketlens/internal/model"
)

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(b model.Bar, prevClose float64) float64 {
	return math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
}

// ATR returns the simple mean of the last n true ranges, or nil if fewer
// than n+1 bars exist.
func ATR(bars []model.Bar, n int) *float64 {
	if n < 1 || len(bars) < n+1 {
		return nil
	}
	sma := NewSMA(n)
	for _, tr := range trueRanges(bars[len(bars)-n-1:]) {
		sma.Update(tr)
	}
	v := sma.Value()
	return &v
}

func trueRanges(bars []model.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		out = append(out, TrueRange(bars[i], bars[i-1].Close))
	}
	return out
}
