// Package tfbuilder rolls a fine-grained bar sequence up into coarser
// fixed-width buckets.
//
// Bucket boundaries are floor(t/width)*width, a function of width alone,
// so rolling up overlapping windows yields bars that line up with
// previously cached ones.
package tfbuilder

import (
	"log"

	"marketlens/internal/model"
)

// tfState holds the forming bar for the current bucket.
type tfState struct {
	bucket  int64
	bar     model.Bar
	started bool
}

// Builder incrementally merges bars into one target width.
// Not goroutine-safe: designed to be driven by a single goroutine.
type Builder struct {
	width int64
	state tfState

	// OnBar is called with every finalized bucket (optional).
	OnBar func(b model.Bar)
	// OnLateBar is called when a bar older than the forming bucket is skipped (optional).
	OnLateBar func(b model.Bar)
}

// New creates a builder for the given bucket width in seconds.
func New(widthSec int64) *Builder {
	return &Builder{width: widthSec}
}

// Width returns the target bucket width in seconds.
func (b *Builder) Width() int64 { return b.width }

// Add merges one input bar. It returns the previous bucket's bar and true
// when in starts a new bucket.
func (b *Builder) Add(in model.Bar) (model.Bar, bool) {
	bucket := model.BucketStart(in.Time, b.width)

	if b.state.started && bucket < b.state.bucket {
		if b.OnLateBar != nil {
			b.OnLateBar(in)
		}
		return model.Bar{}, false
	}

	if b.state.started && bucket == b.state.bucket {
		fb := &b.state.bar
		if in.High > fb.High {
			fb.High = in.High
		}
		if in.Low < fb.Low {
			fb.Low = in.Low
		}
		fb.Close = in.Close
		fb.Volume += in.Volume
		return model.Bar{}, false
	}

	prev, hadPrev := b.state.bar, b.state.started
	b.state = tfState{
		bucket:  bucket,
		started: true,
		bar: model.Bar{
			Time:   bucket,
			Open:   in.Open,
			High:   in.High,
			Low:    in.Low,
			Close:  in.Close,
			Volume: in.Volume,
		},
	}
	if hadPrev && b.OnBar != nil {
		b.OnBar(prev)
	}
	return prev, hadPrev
}

// Forming returns the in-progress bucket, if any.
func (b *Builder) Forming() (model.Bar, bool) {
	return b.state.bar, b.state.started
}

// Flush finalizes the forming bucket and resets the builder.
func (b *Builder) Flush() (model.Bar, bool) {
	if !b.state.started {
		return model.Bar{}, false
	}
	out := b.state.bar
	b.state = tfState{}
	if b.OnBar != nil {
		b.OnBar(out)
	}
	return out, true
}

// Rollup aggregates an ascending bar sequence into widthSec buckets:
// open of the first bar, max high, min low, close of the last bar, summed
// volume.
func Rollup(bars []model.Bar, widthSec int64) []model.Bar {
	if widthSec <= 0 || len(bars) == 0 {
		return model.CloneBars(bars)
	}
	b := New(widthSec)
	late := 0
	b.OnLateBar = func(model.Bar) { late++ }

	out := make([]model.Bar, 0, len(bars))
	for _, in := range bars {
		if prev, ok := b.Add(in); ok {
			out = append(out, prev)
		}
	}
	if last, ok := b.Flush(); ok {
		out = append(out, last)
	}
	if late > 0 {
		log.Printf("[tfbuilder] rollup to %ds skipped %d out-of-order bars", widthSec, late)
	}
	return out
}
