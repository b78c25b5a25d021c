package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"marketlens/config"
	"marketlens/internal/analysis"
	"marketlens/internal/indicator"
	"marketlens/internal/marketdata/history"
	"marketlens/internal/marketdata/live"
	"marketlens/internal/marketdata/ws"
	"marketlens/internal/metrics"
	"marketlens/internal/model"
	"marketlens/internal/notification"
	"marketlens/internal/provider/eodhd"
	redisstore "marketlens/internal/store/redis"
	sqlitestore "marketlens/internal/store/sqlite"
	"marketlens/internal/symbol"
)

// app holds every wired component. Stores are nil when not configured or
// unreachable.
type app struct {
	cfg      *config.Config
	prom     *metrics.Metrics
	health   *metrics.HealthStatus
	client   *eodhd.Client
	history  *history.Fetcher
	resolver *symbol.Resolver
	service  *analysis.Service
	redis    *redisstore.Store
	archive  *sqlitestore.Archive
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		prom:   metrics.NewMetrics(prometheus.DefaultRegisterer),
		health: metrics.NewHealthStatus(),
	}

	client, err := eodhd.New(eodhd.Config{
		BaseURL:    cfg.Provider.BaseURL,
		Token:      cfg.Provider.APIToken,
		RatePerSec: cfg.Provider.RatePerSec,
	})
	if err != nil {
		return nil, err
	}
	client.OnRequest = func(endpoint string, d time.Duration, err error) {
		a.prom.ObserveRequest(endpoint, d, err)
		a.health.SetUpstreamOK(!errors.Is(err, model.ErrUpstream))
	}
	a.client = client

	a.history = history.New(client)
	a.history.OnFallback = func(tf model.Timeframe, from, to string, err error) {
		a.prom.HistoryFallbacks.WithLabelValues(string(tf)).Inc()
		log.Printf("[marketlens] %s history %s failed, trying %s: %v", tf, from, to, err)
	}

	if cfg.RedisAddr != "" {
		store, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[marketlens] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			store.OnRejected = a.prom.RedisRejectedCalls.Inc
			store.Breaker().OnStateChange = func(_, to redisstore.State) {
				a.prom.ObserveBreaker(int(to))
			}
			a.health.Register("redis", func(ctx context.Context) error { return store.Client().Ping(ctx).Err() })
			a.redis = store
		}
	}

	if cfg.SQLitePath != "" {
		if err := ensureParentDir(cfg.SQLitePath); err != nil {
			log.Printf("[marketlens] WARNING: %v", err)
		}
		archive, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Printf("[marketlens] WARNING: sqlite init failed: %v (continuing without archive)", err)
		} else {
			archive.OnCommit = func(d time.Duration) { a.prom.SQLiteCommitDur.Observe(d.Seconds()) }
			a.health.Register("sqlite", archive.DB().PingContext)
			a.archive = archive
		}
	}

	var cache symbol.Cache
	if a.redis != nil {
		cache = a.redis
	}
	a.resolver = symbol.NewResolver(client, cache)

	engine := indicator.NewEngine(indicator.NewRemote(client))
	engine.OnPartial = func(sym string, failed []string) {
		log.Printf("[marketlens] %s: remote indicators unavailable: %v", sym, failed)
	}

	deps := analysis.Deps{
		Resolver:   a.resolver,
		History:    a.history,
		Indicators: engine,
		Quotes:     client,
		Notifier:   a.notifier(),
	}
	var sinks reportSinks
	if a.redis != nil {
		sinks = append(sinks, a.redis)
	}
	if a.archive != nil {
		deps.Archive = a.archive
		sinks = append(sinks, a.archive)
	}
	sinks = append(sinks, observedReports{a.prom})
	deps.Reports = sinks

	a.service = analysis.NewService(deps)
	a.service.OnAnalysis = a.prom.ObserveAnalysis
	return a, nil
}

func (a *app) notifier() notification.Notifier {
	multi := notification.Multi{notification.NewLogNotifier()}
	if a.cfg.Notify.WebhookURL != "" {
		multi = append(multi, notification.WithRetry(notification.NewWebhookNotifier(a.cfg.Notify.WebhookURL)))
	}
	if a.cfg.Notify.TelegramToken != "" {
		multi = append(multi, notification.WithRetry(notification.NewTelegramNotifier(a.cfg.Notify.TelegramToken, a.cfg.Notify.TelegramChatID)))
	}
	return multi
}

// ensureParentDir creates the directory that will hold path.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// startHealth runs the liveness checker for the configured stores.
func (a *app) startHealth(ctx context.Context) {
	a.health.StartLivenessChecker(ctx, 15*time.Second)
}

// dialer opens the provider's streaming feed for live sessions.
func (a *app) dialer() live.Dialer {
	cfg := ws.Config{BaseURL: a.cfg.Provider.WSURL, Token: a.cfg.Provider.APIToken}
	return func(ctx context.Context, sym string) (live.Stream, error) {
		conn, err := ws.Dial(ctx, cfg, sym)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// subscribe resolves raw and starts a live session for it.
func (a *app) subscribe(ctx context.Context, raw string, tf model.Timeframe) (*live.Session, error) {
	sym, err := a.resolver.Resolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	return live.Subscribe(ctx, live.Config{
		Symbol:          sym,
		Timeframe:       tf,
		PollInterval:    a.cfg.Live.PollInterval,
		RefreshInterval: a.cfg.Live.RefreshInterval,
	}, live.Deps{
		History: a.history,
		Poller:  a.client,
		Dial:    a.dialer(),
		Hooks:   a.prom.LiveHooks(sym, a.health),
	})
}

// archiveSnapshots publishes every snapshot to Redis and queues it for the
// SQLite archive until snaps is closed.
func (a *app) archiveSnapshots(ctx context.Context, snaps <-chan live.Snapshot) {
	var batches chan sqlitestore.Batch
	done := make(chan struct{})
	if a.archive != nil {
		batches = make(chan sqlitestore.Batch, 16)
		go func() {
			a.archive.Run(ctx, batches)
			close(done)
		}()
	} else {
		close(done)
	}

	for snap := range snaps {
		if a.redis != nil {
			if err := a.redis.PublishBars(ctx, snap.Symbol, snap.Timeframe, snap.Bars); err != nil {
				log.Printf("[marketlens] publish bars: %v", err)
			}
		}
		if batches != nil && snap.Cause != live.CauseState {
			select {
			case batches <- sqlitestore.Batch{Symbol: snap.Symbol, Timeframe: snap.Timeframe, Bars: snap.Bars}:
			default:
				log.Printf("[marketlens] archive queue full, dropping snapshot %d", snap.Seq)
			}
		}
	}
	if batches != nil {
		close(batches)
	}
	<-done
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.archive != nil {
		a.archive.Close()
	}
}

// reportSinks fans a report out to several sinks, joining their errors.
type reportSinks []model.ReportSink

func (s reportSinks) SaveReport(ctx context.Context, r model.Report) error {
	var errs []error
	for _, sink := range s {
		if err := sink.SaveReport(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// observedReports counts setups and partial indicators of every report.
type observedReports struct{ m *metrics.Metrics }

func (o observedReports) SaveReport(_ context.Context, r model.Report) error {
	o.m.ObserveReport(r)
	return nil
}
