// Package agg merges live price events into the tail of a bar sequence.
//
// The same bucket-merge rule serves streaming ticks and polled candles:
// an event whose bucket is strictly after the tail's starts a new bar,
// anything else updates the tail in place (high/low widened, close
// replaced, open preserved). The sequence therefore never regresses in time.
package agg

import (
	"math"

	"marketlens/internal/model"
)

// Outcome reports what a merge did to the series.
type Outcome int

const (
	Rejected Outcome = iota
	Appended
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Updated:
		return "updated"
	default:
		return "rejected"
	}
}

// MaxPriceDeviation is the largest relative jump from the prior close that a
// bare polled price may make before it is treated as a bad tick.
const MaxPriceDeviation = 0.10

// Series is a bar sequence with a fixed bucket width. It is owned by a
// single goroutine and is not safe for concurrent use.
type Series struct {
	width int64
	bars  []model.Bar

	// OnDroppedTick is called when an event is rejected (optional).
	OnDroppedTick func()
}

// NewSeries wraps bars (taking ownership) with the given bucket width.
func NewSeries(widthSec int64, bars []model.Bar) *Series {
	return &Series{width: widthSec, bars: bars}
}

// Width returns the bucket width in seconds.
func (s *Series) Width() int64 { return s.width }

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// Tail returns the last bar.
func (s *Series) Tail() (model.Bar, bool) { return model.Last(s.bars) }

// Bars returns an immutable copy of the sequence.
func (s *Series) Bars() []model.Bar { return model.CloneBars(s.bars) }

// Replace swaps in a freshly fetched sequence wholesale.
func (s *Series) Replace(bars []model.Bar) { s.bars = bars }

// Release drops the bar reference.
func (s *Series) Release() { s.bars = nil }

// MergeTick folds a single price at unix time ts into the series.
func (s *Series) MergeTick(price float64, ts int64) Outcome {
	if !validPrice(price) {
		s.dropped()
		return Rejected
	}
	return s.merge(model.Bar{Time: ts, Open: price, High: price, Low: price, Close: price})
}

// MergeCandle folds a full OHLC candle into the series.
func (s *Series) MergeCandle(c model.Bar) Outcome {
	if !c.Valid() {
		s.dropped()
		return Rejected
	}
	return s.merge(c)
}

// MergePrice folds a bare price (no OHLC) into the series, discarding it
// when it strays more than MaxPriceDeviation from the prior close.
func (s *Series) MergePrice(price float64, ts int64) Outcome {
	if tail, ok := s.Tail(); ok && !WithinDeviation(price, tail.Close, MaxPriceDeviation) {
		s.dropped()
		return Rejected
	}
	return s.MergeTick(price, ts)
}

func (s *Series) merge(c model.Bar) Outcome {
	bucket := model.BucketStart(c.Time, s.width)

	n := len(s.bars)
	if n == 0 || s.bars[n-1].Time < bucket {
		c.Time = bucket
		s.bars = append(s.bars, c)
		return Appended
	}

	tail := &s.bars[n-1]
	if c.High > tail.High {
		tail.High = c.High
	}
	if c.Low < tail.Low {
		tail.Low = c.Low
	}
	tail.Close = c.Close
	return Updated
}

func (s *Series) dropped() {
	if s.OnDroppedTick != nil {
		s.OnDroppedTick()
	}
}

// WithinDeviation reports whether price lies within frac of ref.
func WithinDeviation(price, ref, frac float64) bool {
	if !validPrice(price) {
		return false
	}
	if !validPrice(ref) {
		return true
	}
	return math.Abs(price/ref-1) <= frac
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
