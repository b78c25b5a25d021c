package indicator

import "strconv"

// SMA is a simple moving average over a fixed ring of the last period
// closes. The running sum is adjusted as the ring overwrites.
type SMA struct {
	period int
	ring   []float64
	next   int
	filled bool
	sum    float64
}

func NewSMA(period int) *SMA {
	period = max(period, 1)
	return &SMA{period: period, ring: make([]float64, period)}
}

func (s *SMA) Name() string { return "SMA_" + strconv.Itoa(s.period) }

func (s *SMA) Update(price float64) {
	s.sum += price - s.ring[s.next]
	s.ring[s.next] = price
	s.next++
	if s.next == s.period {
		s.next = 0
		s.filled = true
	}
}

func (s *SMA) Value() float64 {
	if !s.filled {
		return 0
	}
	return s.sum / float64(s.period)
}

func (s *SMA) Ready() bool { return s.filled }

// SMASeries returns the mean of the last n closes, or nil if len(closes) < n.
func SMASeries(closes []float64, n int) *float64 {
	if n < 1 || len(closes) < n {
		return nil
	}
	return feed(NewSMA(n), closes[len(closes)-n:])
}
