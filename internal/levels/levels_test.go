package levels

import (
	"testing"

	"marketlens/internal/model"

	"github.com/stretchr/testify/require"
)

// zigzag builds bars whose highs/lows follow the given mid prices with a
// fixed half-range of 1.
func zigzag(mids []float64) []model.Bar {
	out := make([]model.Bar, len(mids))
	for i, m := range mids {
		out[i] = model.Bar{Time: int64(i) * 60, Open: m, High: m + 1, Low: m - 1, Close: m}
	}
	return out
}

func TestFindPivots_Strict(t *testing.T) {
	mids := []float64{10, 11, 12, 13, 20, 13, 12, 11, 10, 9, 8, 7, 2, 7, 8, 9, 10}
	p := FindPivots(zigzag(mids), 4, 4)
	require.Len(t, p.Highs, 1)
	require.Equal(t, 4, p.Highs[0].Index)
	require.Equal(t, 21.0, p.Highs[0].Price)
	require.Len(t, p.Lows, 1)
	require.Equal(t, 12, p.Lows[0].Index)
	require.Equal(t, 1.0, p.Lows[0].Price)
}

func TestFindPivots_EqualNeighbourIsNotPivot(t *testing.T) {
	mids := []float64{1, 2, 3, 4, 9, 9, 4, 3, 2, 1, 0.5}
	p := FindPivots(zigzag(mids), 4, 4)
	require.Empty(t, p.Highs)
}

func TestFindPivots_KeepsLastTen(t *testing.T) {
	var mids []float64
	for i := 0; i < 15; i++ {
		mids = append(mids, 10, 11, 12, 13, 30+float64(i), 13, 12, 11, 10)
	}
	p := FindPivots(zigzag(mids), 4, 4)
	require.Len(t, p.Highs, MaxPivots)
	require.Equal(t, 45.0, p.Highs[len(p.Highs)-1].Price)
}

func TestDetect_NearestPivots(t *testing.T) {
	mids := []float64{
		50, 49, 48, 47, 40, 47, 48, 49, 50, // low pivot at 39
		51, 52, 53, 54, 60, 54, 53, 52, 51, // high pivot at 61
		50, 49, 48, 47, 45, 47, 48, 49, 50, // low pivot at 44 (nearer)
		51, 52, 53, 54, 56, 54, 53, 52, 50, // high pivot at 57 (nearer)
	}
	sr := Detect(zigzag(mids))
	require.NotNil(t, sr.Support)
	require.NotNil(t, sr.Resistance)
	require.Equal(t, 44.0, *sr.Support)
	require.Equal(t, 57.0, *sr.Resistance)
}

func TestDetect_FallbackToRange(t *testing.T) {
	var mids []float64
	for i := 0; i < 30; i++ {
		mids = append(mids, 100+float64(i))
	}
	sr := Detect(zigzag(mids))
	// Strictly rising: no pivots, support falls back to the min low of the
	// window and resistance to the max high.
	require.Equal(t, 99.0, *sr.Support)
	require.Equal(t, 130.0, *sr.Resistance)
}

func TestDetect_TooFewBars(t *testing.T) {
	sr := Detect(zigzag([]float64{1, 2, 3}))
	require.Nil(t, sr.Support)
	require.Nil(t, sr.Resistance)
}

func TestRange_Window(t *testing.T) {
	var mids []float64
	for i := 0; i < 60; i++ {
		mids = append(mids, float64(100+i))
	}
	lo, hi := Range(zigzag(mids), 50)
	require.Equal(t, 109.0, lo)
	require.Equal(t, 160.0, hi)
}
