package model

// Tick is a single price event parsed from the streaming feed.
// Time is unix seconds; zero means the message carried no timestamp.
type Tick struct {
	Price float64 `json:"price"`
	Time  int64   `json:"time"`
}

// Quote is a real-time snapshot quote. Open/High/Low/Close are zero when
// the upstream response only carried a bare price.
type Quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Time   int64   `json:"time"`
	Open   float64 `json:"open,omitempty"`
	High   float64 `json:"high,omitempty"`
	Low    float64 `json:"low,omitempty"`
	Close  float64 `json:"close,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

// HasOHLC reports whether the quote carries a full candle.
func (q Quote) HasOHLC() bool {
	return q.Open > 0 && q.High > 0 && q.Low > 0 && q.Close > 0
}
