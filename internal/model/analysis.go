package model

import "time"

// MACD holds the latest MACD line, signal line and histogram values.
type MACD struct {
	MACD      *float64 `json:"macd"`
	Signal    *float64 `json:"signal"`
	Histogram *float64 `json:"histogram"`
}

// IndicatorSet is the uniform indicator shape returned by both the local
// and the remote engines. A nil field means "not enough history" or
// "source failed"; it is never zero-filled.
type IndicatorSet struct {
	RSI   *float64 `json:"rsi"`
	SMA20 *float64 `json:"sma20"`
	SMA50 *float64 `json:"sma50"`
	EMA20 *float64 `json:"ema20"`
	MACD  *MACD    `json:"macd"`
}

// SupportResistance holds the nearest levels below and above price.
type SupportResistance struct {
	Support    *float64 `json:"support"`
	Resistance *float64 `json:"resistance"`
}

// Direction of a trade proposal.
type Direction string

const (
	Buy  Direction = "Buy"
	Sell Direction = "Sell"
)

// Bias is the directional lean derived from indicators.
type Bias string

const (
	BiasBuy  Bias = "buy"
	BiasSell Bias = "sell"
	BiasHold Bias = "hold"
)

// TradeSetup is a risk-bounded entry/stop/target proposal.
type TradeSetup struct {
	Direction    Direction `json:"direction"`
	Entry        float64   `json:"entry"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	RiskReward   float64   `json:"risk_reward"`
	Confidence   int       `json:"confidence"`
	Basis        string    `json:"basis"`
	CurrentPrice float64   `json:"current_price"`
	ATR14        float64   `json:"atr14"`
}

// Trend summarizes the indicator signals.
type Trend struct {
	Direction      string   `json:"direction"` // bullish, bearish, neutral
	Recommendation Bias     `json:"recommendation"`
	Confidence     int      `json:"confidence"`
	Reasons        []string `json:"reasons"`
	Reason         string   `json:"reason"`
}

// Report is the complete result of one analysis run.
type Report struct {
	ID           string            `json:"id"`
	Symbol       string            `json:"symbol"`
	Query        string            `json:"query"`
	Timeframe    Timeframe         `json:"timeframe"`
	CurrentPrice float64           `json:"current_price"`
	IsRealTime   bool              `json:"is_real_time"`
	QuoteTime    int64             `json:"quote_time,omitempty"`
	Indicators   IndicatorSet      `json:"indicators"`
	Levels       SupportResistance `json:"levels"`
	Trend        Trend             `json:"trend"`
	Setup        *TradeSetup       `json:"trade_setup"`
	DataPoints   int               `json:"data_points"`
	LastBar      Bar               `json:"last_bar"`
	From         time.Time         `json:"from"`
	To           time.Time         `json:"to"`
	Partial      []string          `json:"partial_indicators,omitempty"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// Float returns a pointer to v, for building nullable fields.
func Float(v float64) *float64 {
	return &v
}
