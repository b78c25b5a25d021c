// Package portfolio sizes positions against account risk.
package portfolio

import (
	"fmt"
	"math"

	"marketlens/internal/model"
)

// RiskLimits defines configurable sizing thresholds.
type RiskLimits struct {
	MaxRiskPct   float64 `json:"max_risk_pct"`   // largest risk per trade, percent of balance
	MinRiskPct   float64 `json:"min_risk_pct"`   // smallest accepted risk percent
	DefaultRisk  float64 `json:"default_risk"`   // used when a request leaves RiskPct at 0
	MaxLeverageX float64 `json:"max_leverage_x"` // notional / balance cap; 0 disables
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxRiskPct:  10,
		MinRiskPct:  0.01,
		DefaultRisk: 2,
	}
}

// SizeRequest describes one trade to size. TakeProfit is optional.
type SizeRequest struct {
	Balance    float64  `json:"balance"`
	RiskPct    float64  `json:"risk_pct"`
	Entry      float64  `json:"entry"`
	StopLoss   float64  `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

// Sizing is the result of a sizing calculation.
type Sizing struct {
	RiskAmount      float64  `json:"risk_amount"`
	PositionSize    float64  `json:"position_size"`
	StopDistance    float64  `json:"stop_distance"`
	RiskReward      *float64 `json:"risk_reward"`
	PotentialProfit *float64 `json:"potential_profit"`
	Notional        float64  `json:"notional"`
}

// RiskManager validates and sizes trades against its limits.
type RiskManager struct {
	limits RiskLimits
}

// NewRiskManager creates a RiskManager with the given limits.
func NewRiskManager(limits RiskLimits) *RiskManager {
	return &RiskManager{limits: limits}
}

// Limits returns the configured limits.
func (rm *RiskManager) Limits() RiskLimits { return rm.limits }

// Size computes riskAmount = balance·risk%/100 and
// size = riskAmount / |entry - stop|, plus reward:risk and potential
// profit when a take-profit is given.
func (rm *RiskManager) Size(req SizeRequest) (Sizing, error) {
	risk := req.RiskPct
	if risk == 0 {
		risk = rm.limits.DefaultRisk
	}
	switch {
	case !positive(req.Balance):
		return Sizing{}, fmt.Errorf("%w: balance must be positive", model.ErrValidation)
	case !positive(req.Entry) || !positive(req.StopLoss):
		return Sizing{}, fmt.Errorf("%w: entry and stop must be positive", model.ErrValidation)
	case !positive(risk):
		return Sizing{}, fmt.Errorf("%w: risk percent must be positive", model.ErrValidation)
	case rm.limits.MinRiskPct > 0 && risk < rm.limits.MinRiskPct:
		return Sizing{}, fmt.Errorf("%w: risk %.4g%% below minimum %.4g%%", model.ErrValidation, risk, rm.limits.MinRiskPct)
	case rm.limits.MaxRiskPct > 0 && risk > rm.limits.MaxRiskPct:
		return Sizing{}, fmt.Errorf("%w: risk %.4g%% above maximum %.4g%%", model.ErrValidation, risk, rm.limits.MaxRiskPct)
	}

	dist := math.Abs(req.Entry - req.StopLoss)
	if dist == 0 {
		return Sizing{}, fmt.Errorf("%w: stop equals entry", model.ErrValidation)
	}

	s := Sizing{
		RiskAmount:   req.Balance * risk / 100,
		StopDistance: dist,
	}
	s.PositionSize = s.RiskAmount / dist
	s.Notional = s.PositionSize * req.Entry

	if req.TakeProfit != nil && positive(*req.TakeProfit) {
		reward := math.Abs(*req.TakeProfit - req.Entry)
		rr := reward / dist
		profit := s.PositionSize * reward
		s.RiskReward = &rr
		s.PotentialProfit = &profit
	}

	if rm.limits.MaxLeverageX > 0 && s.Notional > req.Balance*rm.limits.MaxLeverageX {
		return s, fmt.Errorf("%w: notional %.2f exceeds %.0fx balance", model.ErrValidation, s.Notional, rm.limits.MaxLeverageX)
	}
	return s, nil
}

// SizeSetup sizes a generated trade setup.
func (rm *RiskManager) SizeSetup(balance, riskPct float64, ts model.TradeSetup) (Sizing, error) {
	tp := ts.TakeProfit
	return rm.Size(SizeRequest{
		Balance:    balance,
		RiskPct:    riskPct,
		Entry:      ts.Entry,
		StopLoss:   ts.StopLoss,
		TakeProfit: &tp,
	})
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
