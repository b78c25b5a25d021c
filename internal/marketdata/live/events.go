package live

import (
	"time"

	"marketlens/internal/marketdata/history"
	"marketlens/internal/model"
)

// event is a result reported back to the session goroutine.
type event interface{ isEvent() }

type dialed struct {
	gen    uint64
	stream Stream
	err    error
}

type ticked struct {
	gen  uint64
	tick model.Tick
}

type streamEnded struct {
	gen uint64
	err error
}

type polled struct {
	gen   uint64
	quote model.Quote
	err   error
}

type refreshed struct {
	gen     uint64
	res     history.Result
	err     error
	started time.Time
}

func (dialed) isEvent()      {}
func (ticked) isEvent()      {}
func (streamEnded) isEvent() {}
func (polled) isEvent()      {}
func (refreshed) isEvent()   {}
