package model

import "errors"

// Error taxonomy shared across packages. Components wrap these with
// fmt.Errorf("...: %w", ...) and callers test with errors.Is.
var (
	// ErrValidation marks malformed symbol, timeframe or parameter input.
	// Never retried.
	ErrValidation = errors.New("validation error")

	// ErrUpstream marks network failures, timeouts and non-success
	// responses from the market-data provider.
	ErrUpstream = errors.New("upstream unavailable")

	// ErrNoData marks a well-formed request whose result was empty or
	// entirely invalid.
	ErrNoData = errors.New("no data")
)
