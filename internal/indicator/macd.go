package indicator

import (
	"fmt"

	"marketlens/internal/model"
)

// MACD tracks the MACD line (fast EMA - slow EMA) and its signal EMA.
// All three averages are seeded with their first input, so the line is
// defined from the first close; Ready still requires slow+signal closes
// before the result is considered meaningful.
type MACD struct {
	fast, slow, signal int

	fastEMA   *EMA
	slowEMA   *EMA
	signalEMA *EMA
	line      float64
	count     int
}

// NewMACD creates a MACD(fast, slow, signal) indicator.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:      fast,
		slow:      slow,
		signal:    signal,
		fastEMA:   NewSeededEMA(fast),
		slowEMA:   NewSeededEMA(slow),
		signalEMA: NewSeededEMA(signal),
	}
}

func (m *MACD) Name() string { return fmt.Sprintf("MACD_%d_%d_%d", m.fast, m.slow, m.signal) }

func (m *MACD) Update(price float64) {
	m.count++
	m.fastEMA.Update(price)
	m.slowEMA.Update(price)
	m.line = m.fastEMA.Value() - m.slowEMA.Value()
	m.signalEMA.Update(m.line)
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.line }

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.signalEMA.Value() }

// Histogram returns MACD - signal.
func (m *MACD) Histogram() float64 { return m.line - m.signalEMA.Value() }

func (m *MACD) Ready() bool { return m.count >= m.slow+m.signal }

// MACDSeries returns the latest MACD, signal and histogram, or nil if
// fewer than slow+signal closes exist.
func MACDSeries(closes []float64, fast, slow, signal int) *model.MACD {
	if len(closes) < slow+signal {
		return nil
	}
	m := NewMACD(fast, slow, signal)
	for _, c := range closes {
		m.Update(c)
	}
	return &model.MACD{
		MACD:      model.Float(m.Value()),
		Signal:    model.Float(m.Signal()),
		Histogram: model.Float(m.Histogram()),
	}
}
