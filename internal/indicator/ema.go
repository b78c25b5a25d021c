package indicator

import "strconv"

// EMA is an exponential moving average with O(1) updates.
//
// By default the first value is the SMA of the first period closes. With
// seedFirst the very first close seeds the average and the EMA is ready
// immediately; MACD uses that form.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
	seedFirst  bool
}

// NewEMA creates an SMA-seeded EMA with the given period.
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

// NewSeededEMA creates an EMA seeded with its first input.
func NewSeededEMA(period int) *EMA {
	e := NewEMA(period)
	e.seedFirst = true
	return e
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.period) }

func (e *EMA) Update(price float64) {
	e.count++

	if e.seedFirst && e.count == 1 {
		e.current = price
		return
	}

	if !e.seedFirst && e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = price*e.multiplier + e.current*(1-e.multiplier)
}

func (e *EMA) Value() float64 { return e.current }

func (e *EMA) Ready() bool {
	if e.seedFirst {
		return e.count > 0
	}
	return e.count >= e.period
}

// EMASeries returns the SMA-seeded EMA(n) after the last close, or nil if
// len(closes) < n.
func EMASeries(closes []float64, n int) *float64 {
	if n < 1 || len(closes) < n {
		return nil
	}
	return feed(NewEMA(n), closes)
}
