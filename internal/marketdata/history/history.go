// Package history fetches a canonical bar sequence for a timeframe,
// choosing which upstream resolution to request and whether the result
// must be rolled up to a coarser bucket.
package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"marketlens/internal/marketdata/normalize"
	"marketlens/internal/marketdata/tfbuilder"
	"marketlens/internal/model"

	"github.com/tidwall/gjson"
)

var (
	// ErrNoHistoricalData means no base resolution returned any records.
	ErrNoHistoricalData = fmt.Errorf("%w: no historical data", model.ErrNoData)
	// ErrNoValidData means records arrived but none survived normalization.
	ErrNoValidData = fmt.Errorf("%w: no valid data after normalization", model.ErrNoData)
)

// Source returns raw bar records at a provider resolution
// (1m, 5m, 1h, d, w, m).
type Source interface {
	Bars(ctx context.Context, symbol, resolution string, from, to time.Time) ([]gjson.Result, error)
}

// Attempt is one base resolution to try. Rollup is the target bucket width
// in seconds, or 0 when the resolution already matches the timeframe.
type Attempt struct {
	Resolution string
	Rollup     int64
}

// Plan is the retrieval strategy for one timeframe.
type Plan struct {
	Years    int
	Days     int
	Attempts []Attempt
}

// Window returns the lookback bounds ending at now.
func (p Plan) Window(now time.Time) (from, to time.Time) {
	return now.AddDate(-p.Years, 0, -p.Days), now
}

var plans = map[model.Timeframe]Plan{
	model.TF1m:  {Days: 1, Attempts: []Attempt{{"1m", 0}}},
	model.TF5m:  {Days: 2, Attempts: []Attempt{{"5m", 0}}},
	model.TF15m: {Days: 5, Attempts: []Attempt{{"5m", 900}, {"1m", 900}}},
	model.TF30m: {Days: 7, Attempts: []Attempt{{"5m", 1800}, {"1m", 1800}}},
	model.TF1h:  {Days: 10, Attempts: []Attempt{{"1h", 0}, {"5m", 3600}}},
	model.TF4h:  {Days: 30, Attempts: []Attempt{{"1h", 14400}, {"5m", 14400}}},
	model.TF1d:  {Years: 2, Attempts: []Attempt{{"d", 0}}},
	model.TF1w:  {Years: 5, Attempts: []Attempt{{"w", 0}}},
	model.TF1M:  {Years: 10, Attempts: []Attempt{{"m", 0}}},
}

// PlanFor returns the retrieval plan for tf.
func PlanFor(tf model.Timeframe) (Plan, error) {
	p, ok := plans[tf]
	if !ok {
		return Plan{}, fmt.Errorf("%w: unsupported timeframe %q", model.ErrValidation, tf)
	}
	return p, nil
}

// Result is a canonical bar sequence plus the window it covers.
type Result struct {
	Symbol     string
	Timeframe  model.Timeframe
	From       time.Time
	To         time.Time
	Resolution string // base resolution actually used
	RolledUp   bool
	Bars       []model.Bar
}

// Fetcher runs plans against a Source. Safe for concurrent use.
type Fetcher struct {
	src Source
	now func() time.Time

	// OnFallback is called when an attempt fails and the next is tried (optional).
	OnFallback func(tf model.Timeframe, from, to string, err error)
}

// New creates a fetcher.
func New(src Source) *Fetcher {
	return &Fetcher{src: src, now: time.Now}
}

// Fetch retrieves bars for symbol at tf. Attempts are tried in order; the
// first one yielding valid bars wins. A failed fetch returns no partial data.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, tf model.Timeframe) (Result, error) {
	plan, err := PlanFor(tf)
	if err != nil {
		return Result{}, err
	}
	from, to := plan.Window(f.now().UTC())

	var (
		lastErr   error
		retrieved bool
	)
	for i, a := range plan.Attempts {
		recs, err := f.src.Bars(ctx, symbol, a.Resolution, from, to)
		if err == nil && len(recs) == 0 {
			err = fmt.Errorf("empty %s response", a.Resolution)
		}
		if err == nil {
			retrieved = true
			bars := normalize.FromRecords(recs)
			if a.Rollup > 0 {
				bars = tfbuilder.Rollup(bars, a.Rollup)
			}
			if len(bars) > 0 {
				return Result{
					Symbol:     symbol,
					Timeframe:  tf,
					From:       from,
					To:         to,
					Resolution: a.Resolution,
					RolledUp:   a.Rollup > 0,
					Bars:       bars,
				}, nil
			}
			err = fmt.Errorf("%d %s records, none valid", len(recs), a.Resolution)
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(plan.Attempts) {
			next := plan.Attempts[i+1].Resolution
			log.Printf("[history] %s %s: %s failed (%v), trying %s", symbol, tf, a.Resolution, err, next)
			if f.OnFallback != nil {
				f.OnFallback(tf, a.Resolution, next, err)
			}
		}
	}

	if retrieved {
		return Result{}, fmt.Errorf("%w for %s %s: %v", ErrNoValidData, symbol, tf, lastErr)
	}
	if lastErr == nil {
		lastErr = errors.New("no attempts")
	}
	return Result{}, fmt.Errorf("%w for %s %s: %w", ErrNoHistoricalData, symbol, tf, lastErr)
}
