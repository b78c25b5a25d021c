// Package sqlite archives bars and analysis reports in a local SQLite
// database opened in WAL mode.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"marketlens/internal/model"
)

const (
	defaultBatchSize  = 64
	defaultFlushDelay = 2 * time.Second
	dsnOptions        = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
)

// Config configures the archive.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/marketlens.db"
}

// Archive implements model.BarArchive and model.ReportSink.
type Archive struct {
	db *sqlx.DB

	// OnCommit is called after every committed write transaction (optional).
	OnCommit func(d time.Duration)
}

// DB returns the underlying database handle for health checks.
func (a *Archive) DB() *sqlx.DB { return a.db }

// Open opens (or creates) the database and applies the schema.
func Open(cfg Config) (*Archive, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("%w: sqlite path is empty", model.ErrValidation)
	}
	db, err := sqlx.Open("sqlite3", cfg.DBPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Archive{db: db}, nil
}

func createSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			tf     TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS reports (
			id           TEXT    PRIMARY KEY,
			symbol       TEXT    NOT NULL,
			tf           TEXT    NOT NULL,
			direction    TEXT,
			generated_at INTEGER NOT NULL,
			data         TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reports_symbol ON reports (symbol, generated_at);
	`)
	return err
}

type barRow struct {
	Symbol string  `db:"symbol"`
	TF     string  `db:"tf"`
	TS     int64   `db:"ts"`
	Open   float64 `db:"open"`
	High   float64 `db:"high"`
	Low    float64 `db:"low"`
	Close  float64 `db:"close"`
	Volume float64 `db:"volume"`
}

// SaveBars upserts bars keyed by (symbol, timeframe, time) in one transaction.
// Invalid bars are skipped.
func (a *Archive) SaveBars(ctx context.Context, symbol string, tf model.Timeframe, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO bars (symbol, tf, ts, open, high, low, close, volume)
		VALUES (:symbol, :tf, :ts, :open, :high, :low, :close, :volume)
		ON CONFLICT (symbol, tf, ts) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare bars: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if !b.Valid() {
			continue
		}
		row := barRow{Symbol: symbol, TF: string(tf), TS: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar %s %s %d: %w", symbol, tf, b.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit bars: %w", err)
	}
	a.committed(time.Since(start))
	return nil
}

// SaveReport archives one report. Saving the same ID twice keeps the latest.
func (a *Archive) SaveReport(ctx context.Context, r model.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	var direction *string
	if r.Setup != nil {
		d := string(r.Setup.Direction)
		direction = &d
	}

	start := time.Now()
	_, err = a.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reports (id, symbol, tf, direction, generated_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Symbol, string(r.Timeframe), direction, r.GeneratedAt.Unix(), string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert report %s: %w", r.ID, err)
	}
	a.committed(time.Since(start))
	return nil
}

func (a *Archive) committed(d time.Duration) {
	if a.OnCommit != nil {
		a.OnCommit(d)
	}
}

// Batch is one bar sequence queued for archiving.
type Batch struct {
	Symbol    string
	Timeframe model.Timeframe
	Bars      []model.Bar
}

// Run archives batches from in. Consecutive batches for the same symbol and
// timeframe are coalesced, keeping the newest; pending batches are flushed
// every flushDelay or once batchSize are queued. Blocks until ctx is
// cancelled or in is closed, flushing what is pending.
func (a *Archive) Run(ctx context.Context, in <-chan Batch) {
	type key struct {
		symbol string
		tf     model.Timeframe
	}
	pending := make(map[key]Batch)
	order := make([]key, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(order) == 0 {
			return
		}
		// ctx may already be done; the final flush must still land.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		n := 0
		for _, k := range order {
			b := pending[k]
			if err := a.SaveBars(writeCtx, b.Symbol, b.Timeframe, b.Bars); err != nil {
				log.Printf("[sqlite] batch insert error: %v", err)
				continue
			}
			n += len(b.Bars)
		}
		log.Printf("[sqlite] flushed %d series (%d bars)", len(order), n)
		clear(pending)
		order = order[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case b, ok := <-in:
			if !ok {
				flush()
				return
			}
			k := key{b.Symbol, b.Timeframe}
			if _, seen := pending[k]; !seen {
				order = append(order, k)
			}
			pending[k] = b
			if len(order) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
