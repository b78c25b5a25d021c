package indicator

import "strconv"

// RSI calculates the Relative Strength Index from simple averages of the
// gains and losses over the last period price changes (no Wilder
// smoothing). Needs period+1 closes. A window with no losses reads 100.
type RSI struct {
	period    int
	count     int // closes received
	prevClose float64
	gains     []float64 // circular window of per-change gains
	losses    []float64 // circular window of per-change losses
	idx       int
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	if period < 1 {
		period = 1
	}
	return &RSI{
		period: period,
		gains:  make([]float64, period),
		losses: make([]float64, period),
	}
}

func (r *RSI) Name() string { return "RSI_" + strconv.Itoa(r.period) }

func (r *RSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		// first close has no delta
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.gains[r.idx] = gain
	r.losses[r.idx] = loss
	r.idx = (r.idx + 1) % r.period

	if !r.Ready() {
		return
	}

	// Re-sum the window each time so no rounding drift accumulates.
	up, down := 0.0, 0.0
	for i := 0; i < r.period; i++ {
		up += r.gains[i]
		down += r.losses[i]
	}
	if down == 0 {
		r.current = 100.0
		return
	}
	p := float64(r.period)
	rs := (up / p) / (down / p)
	r.current = 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > r.period }

// RSISeries returns RSI(n) over the last n changes, or nil if fewer than
// n+1 closes exist.
func RSISeries(closes []float64, n int) *float64 {
	if n < 1 || len(closes) < n+1 {
		return nil
	}
	return feed(NewRSI(n), closes[len(closes)-n-1:])
}
