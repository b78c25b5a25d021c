// Package tradesetup builds ATR-based entry/stop/target proposals around
// support and resistance.
package tradesetup

import (
	"math"

	"marketlens/internal/indicator"
	"marketlens/internal/levels"
	"marketlens/internal/model"
	"marketlens/internal/symbol"
)

const (
	// MinBars is the shortest sequence a setup is built from.
	MinBars = 20
	// Basis describes how every setup is derived.
	Basis = "ATR + S/R (clamped)"

	rangeLookback = 50
	padATR        = 0.2
	entryATR      = 0.25
	farATR        = 1.5
	stopFarATR    = 1.0
	stopNearATR   = 0.5
	minTargetATR  = 2.0
	minGapATR     = 0.2
	riskFloor     = 1e-9
)

// Input is everything the generator needs.
type Input struct {
	Bars       []model.Bar
	Support    *float64
	Resistance *float64
	Bias       model.Bias
	Confidence int
	Price      float64 // current price; <= 0 means last close
	Symbol     string  // canonical symbol, for precision and RR threshold
}

// Scenario is one unrounded candidate.
type Scenario struct {
	Direction  model.Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	RiskReward float64
}

// Generate returns the preferred qualifying setup, or nil when there is
// too little history, no usable ATR, or no scenario reaches the symbol's
// minimum reward:risk.
func Generate(in Input) *model.TradeSetup {
	if len(in.Bars) < MinBars {
		return nil
	}
	last := in.Bars[len(in.Bars)-1]
	price := in.Price
	if !(price > 0) || math.IsInf(price, 0) {
		price = last.Close
	}

	atr := last.Range()
	if v := indicator.ATR(in.Bars, indicator.ATRPeriod); v != nil {
		atr = *v
	}
	atr = math.Abs(atr)
	if !(atr > 0) || math.IsInf(atr, 0) {
		return nil
	}

	rrMin := symbol.MinRiskReward(in.Symbol)
	minLow, maxHigh := levels.Range(in.Bars, rangeLookback)
	pad := padATR * atr

	var scenarios []Scenario
	if s, ok := value(in.Support); ok {
		scenarios = append(scenarios, long(price, s, atr, rrMin, minLow-pad, maxHigh+pad))
	}
	if r, ok := value(in.Resistance); ok {
		scenarios = append(scenarios, short(price, r, atr, rrMin, minLow-pad, maxHigh+pad))
	}

	pick, ok := Select(scenarios, in.Bias, rrMin)
	if !ok {
		return nil
	}

	dec := symbol.Decimals(in.Symbol)
	return &model.TradeSetup{
		Direction:    pick.Direction,
		Entry:        Round(pick.Entry, dec),
		StopLoss:     Round(pick.StopLoss, dec),
		TakeProfit:   Round(pick.TakeProfit, dec),
		RiskReward:   Round(pick.RiskReward, 2),
		Confidence:   clampInt(in.Confidence, 0, 100),
		Basis:        Basis,
		CurrentPrice: Round(price, dec),
		ATR14:        Round(atr, dec),
	}
}

func long(price, s, atr, rrMin, floor, ceil float64) Scenario {
	entry := math.Max(price, s+entryATR*atr)
	var stop float64
	if price-s > farATR*atr {
		stop = entry - stopFarATR*atr
	} else {
		stop = math.Min(entry-stopNearATR*atr, s-stopNearATR*atr)
	}
	target := entry + math.Max(rrMin*(entry-stop), minTargetATR*atr)

	stop = clamp(stop, floor, entry-minGapATR*atr)
	target = clamp(target, entry+minGapATR*atr, ceil)

	return Scenario{
		Direction:  model.Buy,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: target,
		RiskReward: (target - entry) / positive(entry-stop),
	}
}

func short(price, r, atr, rrMin, floor, ceil float64) Scenario {
	entry := math.Min(price, r-entryATR*atr)
	var stop float64
	if r-price > farATR*atr {
		stop = entry + stopFarATR*atr
	} else {
		stop = math.Max(entry+stopNearATR*atr, r+stopNearATR*atr)
	}
	target := entry - math.Max(rrMin*(stop-entry), minTargetATR*atr)

	stop = clamp(stop, entry+minGapATR*atr, ceil)
	target = clamp(target, floor, entry-minGapATR*atr)

	return Scenario{
		Direction:  model.Sell,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: target,
		RiskReward: (entry - target) / positive(stop-entry),
	}
}

// Select prefers the bias direction when it qualifies, otherwise the
// qualifying scenario with the higher reward:risk.
func Select(scenarios []Scenario, bias model.Bias, rrMin float64) (Scenario, bool) {
	var pref model.Direction
	switch bias {
	case model.BiasBuy:
		pref = model.Buy
	case model.BiasSell:
		pref = model.Sell
	}

	best, found := Scenario{}, false
	if pref != "" {
		for _, s := range scenarios {
			if s.Direction == pref && s.RiskReward >= rrMin && (!found || s.RiskReward > best.RiskReward) {
				best, found = s, true
			}
		}
	}
	if found {
		return best, true
	}
	for _, s := range scenarios {
		if s.RiskReward >= rrMin && (!found || s.RiskReward > best.RiskReward) {
			best, found = s, true
		}
	}
	return best, found
}

// clamp applies the lower bound first, then the upper bound.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

func positive(risk float64) float64 {
	if risk > 0 {
		return risk
	}
	return riskFloor
}

func value(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round rounds v to dec decimal places, halves away from zero.
func Round(v float64, dec int) float64 {
	p := math.Pow(10, float64(dec))
	return math.Round(v*p) / p
}
