package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the analysis pipeline from concrete storage
// implementations (Redis, SQLite). Every sink is optional.

// BarArchive persists and reads canonical bar sequences.
type BarArchive interface {
	// SaveBars upserts bars keyed by (symbol, timeframe, time).
	SaveBars(ctx context.Context, symbol string, tf Timeframe, bars []Bar) error

	// ReadBars returns bars at or after fromTS, ascending.
	ReadBars(ctx context.Context, symbol string, tf Timeframe, fromTS int64) ([]Bar, error)
}

// ReportSink receives finished analysis reports.
type ReportSink interface {
	SaveReport(ctx context.Context, r Report) error
}

// SnapshotPublisher fans live bar snapshots out to external consumers.
type SnapshotPublisher interface {
	PublishBars(ctx context.Context, symbol string, tf Timeframe, bars []Bar) error
}

// TechnicalQuery asks the provider for one pre-computed indicator series.
type TechnicalQuery struct {
	Function string // rsi, sma, ema, macd
	Period   int
	Fast     int // macd only
	Slow     int // macd only
	Signal   int // macd only
	Filter   string
	From     time.Time
	To       time.Time
}
