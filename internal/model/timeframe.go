package model

import (
	"fmt"
	"strings"
)

// Timeframe is one of the supported bar granularities.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
	TF1M  Timeframe = "1M"
)

// DefaultTimeframe is used when the caller does not name one.
const DefaultTimeframe = TF1h

var tfSeconds = map[Timeframe]int64{
	TF1m:  60,
	TF5m:  300,
	TF15m: 900,
	TF30m: 1800,
	TF1h:  3600,
	TF4h:  14400,
	TF1d:  86400,
	TF1w:  604800,
	TF1M:  2592000,
}

// lower-cased aliases accepted from users and upstream payloads
var tfAliases = buildAliases(map[Timeframe][]string{
	TF1m:  {"1m", "m1", "01m", "1min"},
	TF5m:  {"5m", "m5", "05m", "5min"},
	TF15m: {"15m", "m15", "15"},
	TF30m: {"30m", "m30", "30"},
	TF1h:  {"1h", "h1", "60", "60m"},
	TF4h:  {"4h", "h4", "240", "240m"},
	TF1d:  {"1d", "d1", "d", "day", "daily"},
	TF1w:  {"1w", "w1", "w", "week", "weekly"},
	TF1M:  {"1mth", "month", "monthly", "mn"},
})

func buildAliases(byTF map[Timeframe][]string) map[string]Timeframe {
	out := make(map[string]Timeframe)
	for tf, names := range byTF {
		for _, n := range names {
			out[n] = tf
		}
	}
	return out
}

// ParseTimeframe maps a user-supplied string to a Timeframe.
// An empty string yields DefaultTimeframe. "1M" (upper-case M) is the
// monthly frame; every other alias is case-insensitive.
func ParseTimeframe(raw string) (Timeframe, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return DefaultTimeframe, nil
	}
	if s == "1M" {
		return TF1M, nil
	}
	if tf, ok := tfAliases[strings.ToLower(s)]; ok {
		return tf, nil
	}
	return "", fmt.Errorf("%w: unknown timeframe %q", ErrValidation, raw)
}

// Seconds returns the bucket width in seconds, or 0 for an unknown frame.
func (tf Timeframe) Seconds() int64 {
	return tfSeconds[tf]
}

// IsIntraday reports whether the frame is finer than one day.
func (tf Timeframe) IsIntraday() bool {
	s := tf.Seconds()
	return s > 0 && s < tfSeconds[TF1d]
}

// Valid reports whether tf is one of the enumerated frames.
func (tf Timeframe) Valid() bool {
	_, ok := tfSeconds[tf]
	return ok
}

func (tf Timeframe) String() string { return string(tf) }

// Timeframes returns all supported frames, finest first.
func Timeframes() []Timeframe {
	return []Timeframe{TF1m, TF5m, TF15m, TF30m, TF1h, TF4h, TF1d, TF1w, TF1M}
}

// BucketStart aligns a unix-seconds timestamp to the start of its bucket.
func BucketStart(ts, width int64) int64 {
	if width <= 0 {
		return ts
	}
	b := ts - ts%width
	if ts < 0 && ts%width != 0 {
		b -= width
	}
	return b
}
