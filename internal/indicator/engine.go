package indicator

import (
	"context"
	"errors"
	"log"

	"marketlens/internal/model"
)

// Standard periods of the indicator set.
const (
	RSIPeriod  = 14
	SMAFast    = 20
	SMASlow    = 50
	EMAPeriod  = 20
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
	ATRPeriod  = 14
)

// Local computes the indicator set from closing prices.
func Local(bars []model.Bar) model.IndicatorSet {
	closes := model.Closes(bars)
	return model.IndicatorSet{
		RSI:   RSISeries(closes, RSIPeriod),
		SMA20: SMASeries(closes, SMAFast),
		SMA50: SMASeries(closes, SMASlow),
		EMA20: EMASeries(closes, EMAPeriod),
		MACD:  MACDSeries(closes, MACDFast, MACDSlow, MACDSignal),
	}
}

// Window bounds a remote computation.
type Window struct {
	Symbol string
	TF     model.Timeframe
	From   int64 // unix seconds
	To     int64
}

// Engine picks local computation for intraday frames and the remote
// source for daily and coarser frames.
type Engine struct {
	remote *Remote

	// OnPartial is called when some remote indicators failed (optional).
	OnPartial func(symbol string, failed []string)
}

// NewEngine creates an engine. remote may be nil, in which case every
// frame is computed locally.
func NewEngine(remote *Remote) *Engine {
	return &Engine{remote: remote}
}

// Compute returns the indicator set for bars. The error is non-nil only
// for a partial remote failure (*PartialError); the set is usable either way.
func (e *Engine) Compute(ctx context.Context, w Window, bars []model.Bar) (model.IndicatorSet, error) {
	if w.TF.IsIntraday() || e.remote == nil {
		return Local(bars), nil
	}
	set, err := e.remote.Compute(ctx, w)
	e.notePartial(w, err)
	return set, err
}

func (e *Engine) notePartial(w Window, err error) {
	var pe *PartialError
	if !errors.As(err, &pe) {
		return
	}
	log.Printf("[indicator] %s %s: remote indicators failed: %v", w.Symbol, w.TF, pe.Failed)
	if e.OnPartial != nil {
		e.OnPartial(w.Symbol, pe.Failed)
	}
}
