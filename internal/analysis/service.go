// Package analysis turns a user ticker and timeframe into a report:
// canonical bars, indicators, support/resistance, trend and an optional
// trade setup.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marketlens/internal/indicator"
	"marketlens/internal/levels"
	"marketlens/internal/logger"
	"marketlens/internal/marketdata/history"
	"marketlens/internal/model"
	"marketlens/internal/notification"
	"marketlens/internal/tradesetup"
)

// Resolver maps a user ticker to a canonical symbol.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (string, error)
}

// HistoryFetcher returns canonical bars for a symbol and timeframe.
type HistoryFetcher interface {
	Fetch(ctx context.Context, symbol string, tf model.Timeframe) (history.Result, error)
}

// Quoter returns the latest quote for a symbol.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (model.Quote, error)
}

// IndicatorComputer produces the indicator set for a window of bars.
type IndicatorComputer interface {
	Compute(ctx context.Context, w indicator.Window, bars []model.Bar) (model.IndicatorSet, error)
}

// Deps wires a Service. Resolver, History and Indicators are required;
// the rest are optional.
type Deps struct {
	Resolver   Resolver
	History    HistoryFetcher
	Indicators IndicatorComputer
	Quotes     Quoter

	Archive  model.BarArchive
	Reports  model.ReportSink
	Notifier notification.Notifier
}

// Request is one analysis call.
type Request struct {
	Symbol    string
	Timeframe string // any accepted alias; "" means the default
	WithSetup bool
}

// Service runs analyses. Safe for concurrent use.
type Service struct {
	deps Deps
	now  func() time.Time

	// OnAnalysis is called after every run with its duration (optional).
	OnAnalysis func(tf model.Timeframe, d time.Duration, err error)
}

// NewService creates a service.
func NewService(deps Deps) *Service {
	return &Service{deps: deps, now: time.Now}
}

// Analyze runs the full pipeline: resolve, fetch history, indicators,
// levels, quote alignment, trend and setup. Quote and sink failures are
// logged and never fail the run.
func (s *Service) Analyze(ctx context.Context, req Request) (rep model.Report, err error) {
	start := s.now()
	if logger.RequestID(ctx) == "" {
		ctx = logger.WithRequestID(ctx, logger.NewRequestID())
	}

	tf, err := model.ParseTimeframe(req.Timeframe)
	if err != nil {
		return model.Report{}, err
	}
	defer func() {
		if s.OnAnalysis != nil {
			s.OnAnalysis(tf, s.now().Sub(start), err)
		}
	}()

	sym, err := s.deps.Resolver.Resolve(ctx, req.Symbol)
	if err != nil {
		return model.Report{}, err
	}

	hist, err := s.deps.History.Fetch(ctx, sym, tf)
	if err != nil {
		return model.Report{}, err
	}
	bars := hist.Bars
	last, ok := model.Last(bars)
	if !ok {
		return model.Report{}, fmt.Errorf("%w: empty history for %s", model.ErrNoData, sym)
	}

	rep = model.Report{
		ID:         NewReportID(start),
		Symbol:     sym,
		Query:      req.Symbol,
		Timeframe:  tf,
		DataPoints: len(bars),
		LastBar:    last,
		From:       hist.From,
		To:         hist.To,
	}

	set, err := s.deps.Indicators.Compute(ctx, indicator.Window{
		Symbol: sym,
		TF:     tf,
		From:   hist.From.Unix(),
		To:     hist.To.Unix(),
	}, bars)
	var partial *indicator.PartialError
	switch {
	case errors.As(err, &partial):
		rep.Partial = partial.Failed
	case err != nil:
		return model.Report{}, err
	}
	rep.Indicators = set

	var quote *model.Quote
	if s.deps.Quotes != nil {
		q, qerr := s.deps.Quotes.Quote(ctx, sym)
		if qerr != nil {
			slog.WarnContext(ctx, "quote unavailable, using last close",
				append(logger.Attrs(ctx), slog.String("symbol", sym), slog.Any("error", qerr))...)
		} else {
			quote = &q
		}
	}
	rep.CurrentPrice, rep.IsRealTime = CurrentPrice(last, quote, tf)
	if rep.IsRealTime {
		rep.QuoteTime = quote.Time
	}

	rep.Levels = levels.Detect(bars)
	rep.Trend = Trend(bars, set, rep.CurrentPrice)

	if req.WithSetup {
		rep.Setup = tradesetup.Generate(tradesetup.Input{
			Bars:       bars,
			Support:    rep.Levels.Support,
			Resistance: rep.Levels.Resistance,
			Bias:       rep.Trend.Recommendation,
			Confidence: rep.Trend.Confidence,
			Price:      rep.CurrentPrice,
			Symbol:     sym,
		})
	}
	rep.GeneratedAt = s.now().UTC()

	s.publish(ctx, rep, bars)

	slog.InfoContext(ctx, "analysis complete",
		append(logger.Attrs(ctx),
			slog.String("symbol", sym),
			slog.String("tf", string(tf)),
			slog.Int("bars", len(bars)),
			slog.String("resolution", hist.Resolution),
			slog.Bool("realtime", rep.IsRealTime),
			slog.String("trend", rep.Trend.Direction),
			slog.Bool("setup", rep.Setup != nil),
		)...)
	return rep, nil
}

func (s *Service) publish(ctx context.Context, rep model.Report, bars []model.Bar) {
	if s.deps.Archive != nil {
		if err := s.deps.Archive.SaveBars(ctx, rep.Symbol, rep.Timeframe, bars); err != nil {
			slog.WarnContext(ctx, "bar archive failed", append(logger.Attrs(ctx), slog.Any("error", err))...)
		}
	}
	if s.deps.Reports != nil {
		if err := s.deps.Reports.SaveReport(ctx, rep); err != nil {
			slog.WarnContext(ctx, "report sink failed", append(logger.Attrs(ctx), slog.Any("error", err))...)
		}
	}
	if s.deps.Notifier != nil {
		if alert, ok := notification.SetupAlert(rep); ok {
			if err := s.deps.Notifier.Send(ctx, alert); err != nil {
				slog.WarnContext(ctx, "setup alert failed", append(logger.Attrs(ctx), slog.Any("error", err))...)
			}
		}
	}
}

// Bars resolves symbol and returns its canonical bar history for tf. The
// result is archived when an archive is configured.
func (s *Service) Bars(ctx context.Context, symbol, timeframe string) (history.Result, error) {
	tf, err := model.ParseTimeframe(timeframe)
	if err != nil {
		return history.Result{}, err
	}
	sym, err := s.deps.Resolver.Resolve(ctx, symbol)
	if err != nil {
		return history.Result{}, err
	}
	hist, err := s.deps.History.Fetch(ctx, sym, tf)
	if err != nil {
		return history.Result{}, err
	}
	if s.deps.Archive != nil {
		if err := s.deps.Archive.SaveBars(ctx, sym, tf, hist.Bars); err != nil {
			slog.WarnContext(ctx, "bar archive failed", append(logger.Attrs(ctx), slog.Any("error", err))...)
		}
	}
	return hist, nil
}
