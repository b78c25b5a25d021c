// Package indicator computes technical indicators over closing prices.
//
// Every indicator implements the streaming Indicator interface: feed one
// close at a time with Update, read Value once Ready. The series helpers
// (SMASeries, EMASeries, ...) replay a whole bar sequence through a fresh
// instance and return nil when there is not enough history, so callers
// never see a zero standing in for "unknown".
package indicator

// Indicator is the interface for all streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_20", "RSI_14").
	Name() string

	// Update feeds the next closing price.
	Update(price float64)

	// Value returns the current value. Meaningless until Ready.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// feed replays closes through ind and returns its value, or nil if it
// never became ready.
func feed(ind Indicator, closes []float64) *float64 {
	for _, c := range closes {
		ind.Update(c)
	}
	if !ind.Ready() {
		return nil
	}
	v := ind.Value()
	return &v
}
