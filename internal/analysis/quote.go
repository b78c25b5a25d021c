package analysis

import "marketlens/internal/model"

// IsQuoteAligned reports whether a quote belongs to the same bucket window
// as the last bar: |quoteTS - lastBarTS| <= tf.Seconds(). A quote without a
// timestamp is never aligned.
func IsQuoteAligned(quoteTS, lastBarTS int64, tf model.Timeframe) bool {
	if quoteTS <= 0 {
		return false
	}
	d := quoteTS - lastBarTS
	if d < 0 {
		d = -d
	}
	return d <= tf.Seconds()
}

// CurrentPrice returns the aligned quote price when there is one, otherwise
// the last close. realTime reports which one was used.
func CurrentPrice(last model.Bar, q *model.Quote, tf model.Timeframe) (price float64, realTime bool) {
	if q != nil && q.Price > 0 && IsQuoteAligned(q.Time, last.Time, tf) {
		return q.Price, true
	}
	return last.Close, false
}
