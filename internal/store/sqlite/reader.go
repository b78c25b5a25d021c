package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"marketlens/internal/model"
)

// ReadBars returns archived bars at or after fromTS, ascending.
func (a *Archive) ReadBars(ctx context.Context, symbol string, tf model.Timeframe, fromTS int64) ([]model.Bar, error) {
	var rows []barRow
	err := a.db.SelectContext(ctx, &rows, `
		SELECT symbol, tf, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND tf = ? AND ts >= ?
		ORDER BY ts ASC
	`, symbol, string(tf), fromTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}

	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		bars[i] = model.Bar{Time: r.TS, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}
	}
	return bars, nil
}

// LastBarTime returns the newest archived bar time, or 0 when none exist.
func (a *Archive) LastBarTime(ctx context.Context, symbol string, tf model.Timeframe) (int64, error) {
	var ts sql.NullInt64
	err := a.db.GetContext(ctx, &ts, `SELECT MAX(ts) FROM bars WHERE symbol = ? AND tf = ?`, symbol, string(tf))
	if err != nil {
		return 0, fmt.Errorf("sqlite last bar time: %w", err)
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Report loads one archived report by ID. A missing ID is ErrNoData.
func (a *Archive) Report(ctx context.Context, id string) (model.Report, error) {
	var data string
	err := a.db.GetContext(ctx, &data, `SELECT data FROM reports WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, fmt.Errorf("%w: report %s", model.ErrNoData, id)
	}
	if err != nil {
		return model.Report{}, fmt.Errorf("sqlite read report: %w", err)
	}

	var r model.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return model.Report{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return r, nil
}

// RecentReports returns up to limit reports for symbol, newest first.
func (a *Archive) RecentReports(ctx context.Context, symbol string, limit int) ([]model.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	var blobs []string
	err := a.db.SelectContext(ctx, &blobs, `
		SELECT data FROM reports
		WHERE symbol = ?
		ORDER BY generated_at DESC, id DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query reports: %w", err)
	}

	out := make([]model.Report, 0, len(blobs))
	for _, data := range blobs {
		var r model.Report
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
