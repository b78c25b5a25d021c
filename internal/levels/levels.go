// Package levels finds pivot highs and lows in a bar sequence and picks
// the nearest support and resistance around the current price.
package levels

import (
	"math"

	"marketlens/internal/model"
)

const (
	// DefaultLeft and DefaultRight are the neighbour counts on each side
	// of a pivot.
	DefaultLeft  = 4
	DefaultRight = 4
	// MaxPivots is how many of the most recent pivots of each kind are kept.
	MaxPivots = 10
	// FallbackLookback is the window for the min-low / max-high fallback.
	FallbackLookback = 50
	// MinBars is the shortest sequence Detect will analyze.
	MinBars = 10
)

// Pivot is a local extremum.
type Pivot struct {
	Index int     `json:"index"`
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
}

// Pivots holds the most recent pivot highs and lows, oldest first.
type Pivots struct {
	Highs []Pivot `json:"highs"`
	Lows  []Pivot `json:"lows"`
}

// FindPivots marks bar i as a pivot high when its high is strictly greater
// than the highs of the left bars before and right bars after it, and as a
// pivot low symmetrically. Only the last MaxPivots of each are returned.
func FindPivots(bars []model.Bar, left, right int) Pivots {
	var p Pivots
	for i := left; i < len(bars)-right; i++ {
		hi, lo := true, true
		for k := i - left; k <= i+right; k++ {
			if k == i {
				continue
			}
			if !(bars[k].High < bars[i].High) {
				hi = false
			}
			if !(bars[k].Low > bars[i].Low) {
				lo = false
			}
			if !hi && !lo {
				break
			}
		}
		if hi {
			p.Highs = append(p.Highs, Pivot{Index: i, Time: bars[i].Time, Price: bars[i].High})
		}
		if lo {
			p.Lows = append(p.Lows, Pivot{Index: i, Time: bars[i].Time, Price: bars[i].Low})
		}
	}
	p.Highs = lastN(p.Highs, MaxPivots)
	p.Lows = lastN(p.Lows, MaxPivots)
	return p
}

func lastN(ps []Pivot, n int) []Pivot {
	if len(ps) > n {
		return ps[len(ps)-n:]
	}
	return ps
}

// Range returns the lowest low and highest high over the last n bars
// (all bars if fewer).
func Range(bars []model.Bar, n int) (minLow, maxHigh float64) {
	minLow, maxHigh = math.Inf(1), math.Inf(-1)
	start := len(bars) - n
	if start < 0 {
		start = 0
	}
	for _, b := range bars[start:] {
		minLow = math.Min(minLow, b.Low)
		maxHigh = math.Max(maxHigh, b.High)
	}
	return minLow, maxHigh
}

// Detect returns the closest pivot low below the last close and the
// closest pivot high above it. A side with no qualifying pivot falls back
// to the min low / max high of the last FallbackLookback bars. Fewer than
// MinBars bars yields an empty result.
func Detect(bars []model.Bar) model.SupportResistance {
	return DetectAt(bars, 0)
}

// DetectAt is Detect measured against price instead of the last close.
// A non-positive price means the last close.
func DetectAt(bars []model.Bar, price float64) model.SupportResistance {
	var sr model.SupportResistance
	if len(bars) < MinBars {
		return sr
	}
	if price <= 0 {
		price = bars[len(bars)-1].Close
	}

	piv := FindPivots(bars, DefaultLeft, DefaultRight)
	for _, p := range piv.Lows {
		if p.Price < price && (sr.Support == nil || p.Price > *sr.Support) {
			sr.Support = model.Float(p.Price)
		}
	}
	for _, p := range piv.Highs {
		if p.Price > price && (sr.Resistance == nil || p.Price < *sr.Resistance) {
			sr.Resistance = model.Float(p.Price)
		}
	}

	lo, hi := Range(bars, FallbackLookback)
	if sr.Support == nil && !math.IsInf(lo, 0) {
		sr.Support = model.Float(lo)
	}
	if sr.Resistance == nil && !math.IsInf(hi, 0) {
		sr.Resistance = model.Float(hi)
	}
	return sr
}
