// Package bus broadcasts immutable values to any number of observers
// without letting a slow observer block the publisher.
package bus

import (
	"log"
	"sync"
)

// FanOut broadcasts values to N subscriber channels. If a subscriber
// channel is full, the value is dropped for that subscriber only.
// New subscribers first receive the most recent value, if any.
type FanOut[T any] struct {
	mu      sync.Mutex
	outputs []chan T
	bufSize int
	last    T
	hasLast bool
	closed  bool

	// OnDrop is called when a value is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for output channels.
func New[T any](outputBufferSize int) *FanOut[T] {
	if outputBufferSize < 1 {
		outputBufferSize = 1
	}
	return &FanOut[T]{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel. After Close it
// returns an already closed channel.
func (f *FanOut[T]) Subscribe() <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	if f.hasLast {
		ch <- f.last
	}
	f.outputs = append(f.outputs, ch)
	return ch
}

// Unsubscribe removes ch and closes it. Unknown channels are ignored.
func (f *FanOut[T]) Unsubscribe(ch <-chan T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, out := range f.outputs {
		if out == ch {
			f.outputs = append(f.outputs[:i], f.outputs[i+1:]...)
			close(out)
			return
		}
	}
}

// Publish delivers v to every subscriber that has room and returns how
// many received it. Never blocks.
func (f *FanOut[T]) Publish(v T) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0
	}
	f.last, f.hasLast = v, true

	delivered := 0
	for i, ch := range f.outputs {
		select {
		case ch <- v:
			delivered++
		default:
			if f.OnDrop != nil {
				f.OnDrop(i)
			} else {
				log.Printf("[bus] output channel %d full, dropping value", i)
			}
		}
	}
	return delivered
}

// Close closes every subscriber channel. Safe to call more than once.
func (f *FanOut[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.outputs {
		close(ch)
	}
	f.outputs = nil
}

// ChannelStat is the (length, capacity) of one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats reports saturation per subscriber.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
