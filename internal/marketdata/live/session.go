// Package live keeps one symbol's bar series current from a streaming
// connection, a polling fallback and periodic full refreshes.
//
// A Session is a single-writer actor: one goroutine owns the series and
// every timer, and network calls run in helper goroutines that report back
// as events tagged with the generation they started in. Observers receive
// immutable snapshots through a non-blocking fan-out.
package live

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketlens/internal/marketdata/agg"
	"marketlens/internal/marketdata/bus"
	"marketlens/internal/marketdata/history"
	"marketlens/internal/model"
)

// Defaults for Config.
const (
	DefaultPollInterval    = 2500 * time.Millisecond
	DefaultRefreshInterval = 4*time.Minute + 30*time.Second
	DefaultBackoffBase     = time.Second
	DefaultBackoffMax      = 30 * time.Second
	DefaultSnapshotBuffer  = 16
)

// Stream is one open streaming connection.
type Stream interface {
	Subscribe() error
	Next() (model.Tick, error)
	Close() error
}

// Dialer opens a stream for a canonical symbol.
type Dialer func(ctx context.Context, symbol string) (Stream, error)

// HistoryFetcher loads the full bar sequence.
type HistoryFetcher interface {
	Fetch(ctx context.Context, symbol string, tf model.Timeframe) (history.Result, error)
}

// Poller returns the latest quote for the polling fallback.
type Poller interface {
	Quote(ctx context.Context, symbol string) (model.Quote, error)
}

// Config configures a Session.
type Config struct {
	Symbol          string
	Timeframe       model.Timeframe
	PollInterval    time.Duration
	RefreshInterval time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	SnapshotBuffer  int
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.SnapshotBuffer <= 0 {
		c.SnapshotBuffer = DefaultSnapshotBuffer
	}
}

// Hooks observe session activity, typically to drive metrics. All optional.
// They run on the session goroutine and must not block.
type Hooks struct {
	OnStateChange func(from, to model.ConnectionState)
	OnTick        func(outcome agg.Outcome)
	OnPoll        func(outcome agg.Outcome, err error)
	OnRefresh     func(d time.Duration, err error)
	OnReconnect   func(attempt int, delay time.Duration)
	OnDrop        func()
}

// Deps are the session's collaborators. History is required. A nil Dial
// means polling only; a nil Poller disables the fallback.
type Deps struct {
	History HistoryFetcher
	Poller  Poller
	Dial    Dialer
	Hooks   Hooks
}

// Cause names what produced a snapshot.
type Cause string

const (
	CauseRefresh Cause = "refresh"
	CauseTick    Cause = "tick"
	CausePoll    Cause = "poll"
	CauseState   Cause = "state"
)

// Snapshot is an immutable view of the series. Seq increases by one per
// published snapshot.
type Snapshot struct {
	Symbol    string
	Timeframe model.Timeframe
	Bars      []model.Bar
	State     model.ConnectionState
	Cause     Cause
	Seq       uint64
}

// Backoff returns min(ceiling, base·2^(attempt-1)).
func Backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		d = ceiling
	}
	return d
}

// Session is a live subscription for one symbol and timeframe.
type Session struct {
	id     string
	cfg    Config
	deps   Deps
	fan    *bus.FanOut[Snapshot]
	events chan event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	now    func() time.Time

	// Owned by the run goroutine.
	series     *agg.Series
	state      model.ConnectionState
	attempts   int
	stream     Stream
	connGen    uint64
	refreshGen uint64
	seriesGen  uint64
	polling    bool
	pollBusy   bool
	seq        uint64
	poll       *time.Ticker
	reconnect  *time.Timer
}

// Subscribe validates cfg and starts a session. The session stops on
// Close or when ctx is cancelled.
func Subscribe(ctx context.Context, cfg Config, deps Deps) (*Session, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: live session needs a symbol", model.ErrValidation)
	}
	if !cfg.Timeframe.Valid() {
		return nil, fmt.Errorf("%w: live session timeframe %q", model.ErrValidation, cfg.Timeframe)
	}
	if deps.History == nil {
		return nil, fmt.Errorf("%w: live session needs a history fetcher", model.ErrValidation)
	}
	s := newSession(cfg, deps)
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
	return s, nil
}

func newSession(cfg Config, deps Deps) *Session {
	cfg.defaults()
	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		deps:   deps,
		fan:    bus.New[Snapshot](cfg.SnapshotBuffer),
		events: make(chan event, 32),
		done:   make(chan struct{}),
		now:    time.Now,
		series: agg.NewSeries(cfg.Timeframe.Seconds(), nil),
		state:  model.Idle,
		cancel: func() {},
	}
	s.fan.OnDrop = func(int) {
		if deps.Hooks.OnDrop != nil {
			deps.Hooks.OnDrop()
		}
	}
	return s
}

// Snapshots returns a channel of snapshots, starting with the latest one
// if any. The channel is closed when the session ends.
func (s *Session) Snapshots() <-chan Snapshot {
	return s.fan.Subscribe()
}

// Unsubscribe releases a channel returned by Snapshots.
func (s *Session) Unsubscribe(ch <-chan Snapshot) {
	s.fan.Unsubscribe(ch)
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Done is closed once the session has fully stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close stops every timer, closes the stream and drops the series. In-flight
// responses are discarded. Safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		log.Printf("[live] session %s (%s %s) closed", s.id, s.cfg.Symbol, s.cfg.Timeframe)
	})
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	s.poll = time.NewTicker(s.cfg.PollInterval)
	s.polling = true
	refresh := time.NewTicker(s.cfg.RefreshInterval)
	defer func() {
		s.poll.Stop()
		refresh.Stop()
		s.stopReconnect()
		s.closeStream()
		s.series.Release()
		s.fan.Close()
	}()

	s.startRefresh(ctx)
	s.connect(ctx)

	for {
		var reconnectC <-chan time.Time
		if s.reconnect != nil {
			reconnectC = s.reconnect.C
		}
		select {
		case <-ctx.Done():
			return
		case <-s.poll.C:
			s.startPoll(ctx)
		case <-refresh.C:
			s.startRefresh(ctx)
		case <-reconnectC:
			s.reconnect = nil
			s.connect(ctx)
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

// send delivers an event to the actor, giving up once the session ends.
func (s *Session) send(ctx context.Context, ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case dialed:
		s.onDialed(ctx, ev)
	case ticked:
		s.onTick(ev)
	case streamEnded:
		if ev.gen == s.connGen && s.stream != nil {
			s.streamDown(ctx, ev.err)
		}
	case polled:
		s.onPoll(ev)
	case refreshed:
		s.onRefresh(ev)
	}
}

// ── streaming ──

func (s *Session) connect(ctx context.Context) {
	if s.deps.Dial == nil {
		return
	}
	s.connGen++
	gen := s.connGen
	s.setState(model.Connecting)

	go func() {
		st, err := s.deps.Dial(ctx, s.cfg.Symbol)
		if !s.send(ctx, dialed{gen: gen, stream: st, err: err}) && st != nil {
			st.Close()
		}
	}()
}

func (s *Session) onDialed(ctx context.Context, ev dialed) {
	if ev.gen != s.connGen {
		if ev.stream != nil {
			ev.stream.Close()
		}
		return
	}
	if ev.err == nil && ev.stream == nil {
		ev.err = errors.New("dialer returned no stream")
	}
	if ev.err != nil {
		s.streamDown(ctx, ev.err)
		return
	}
	if err := ev.stream.Subscribe(); err != nil {
		ev.stream.Close()
		s.streamDown(ctx, err)
		return
	}

	s.stream = ev.stream
	s.attempts = 0
	s.suspendPolling()
	s.setState(model.Open)
	log.Printf("[live] %s stream open, subscribed", s.cfg.Symbol)

	go s.read(ctx, ev.gen, ev.stream)
}

func (s *Session) read(ctx context.Context, gen uint64, st Stream) {
	for {
		tick, err := st.Next()
		if err != nil {
			s.send(ctx, streamEnded{gen: gen, err: err})
			return
		}
		if !s.send(ctx, ticked{gen: gen, tick: tick}) {
			return
		}
	}
}

func (s *Session) onTick(ev ticked) {
	if ev.gen != s.connGen || s.stream == nil {
		return
	}
	ts := ev.tick.Time
	if ts <= 0 {
		ts = s.now().Unix()
	}
	out := s.series.MergeTick(ev.tick.Price, ts)
	if s.deps.Hooks.OnTick != nil {
		s.deps.Hooks.OnTick(out)
	}
	if out != agg.Rejected {
		s.publish(CauseTick)
	}
}

// streamDown handles a failed dial or a closed stream: schedule a reconnect
// with backoff and resume polling immediately.
func (s *Session) streamDown(ctx context.Context, err error) {
	s.closeStream()
	s.setState(model.Closed)
	if ctx.Err() != nil {
		return
	}

	s.attempts++
	delay := Backoff(s.attempts, s.cfg.BackoffBase, s.cfg.BackoffMax)
	log.Printf("[live] %s stream down (%v), reconnect #%d in %s", s.cfg.Symbol, err, s.attempts, delay)
	if s.deps.Hooks.OnReconnect != nil {
		s.deps.Hooks.OnReconnect(s.attempts, delay)
	}

	s.stopReconnect()
	s.reconnect = time.NewTimer(delay)
	s.setState(model.ReconnectScheduled)
	s.resumePolling(ctx)
}

func (s *Session) closeStream() {
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
}

func (s *Session) stopReconnect() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

// ── polling fallback ──

func (s *Session) suspendPolling() {
	if s.polling {
		s.poll.Stop()
		s.polling = false
	}
}

func (s *Session) resumePolling(ctx context.Context) {
	if !s.polling {
		s.poll.Reset(s.cfg.PollInterval)
		s.polling = true
	}
	s.startPoll(ctx)
}

func (s *Session) startPoll(ctx context.Context) {
	if s.deps.Poller == nil || s.pollBusy || s.state == model.Open || s.series.Len() == 0 {
		return
	}
	s.pollBusy = true
	gen := s.seriesGen

	go func() {
		q, err := s.deps.Poller.Quote(ctx, s.cfg.Symbol)
		s.send(ctx, polled{gen: gen, quote: q, err: err})
	}()
}

// onPoll merges a polled quote. A quote's OHLC describes the trading day,
// so it is merged as a candle only on the daily frame; elsewhere the bare
// price is stamped with the poll time and deviation-checked.
func (s *Session) onPoll(ev polled) {
	s.pollBusy = false
	if ev.gen != s.seriesGen || s.state == model.Open {
		return
	}
	if ev.err != nil {
		if s.deps.Hooks.OnPoll != nil {
			s.deps.Hooks.OnPoll(agg.Rejected, ev.err)
		}
		log.Printf("[live] %s poll failed: %v", s.cfg.Symbol, ev.err)
		return
	}

	q := ev.quote
	var out agg.Outcome
	if q.HasOHLC() && s.cfg.Timeframe == model.TF1d {
		ts := q.Time
		if ts <= 0 {
			ts = s.now().Unix()
		}
		out = s.series.MergeCandle(model.Bar{Time: ts, Open: q.Open, High: q.High, Low: q.Low, Close: q.Close, Volume: q.Volume})
	} else {
		out = s.series.MergePrice(q.Price, s.now().Unix())
	}
	if s.deps.Hooks.OnPoll != nil {
		s.deps.Hooks.OnPoll(out, nil)
	}
	if out != agg.Rejected {
		s.publish(CausePoll)
	}
}

// ── full refresh ──

func (s *Session) startRefresh(ctx context.Context) {
	s.refreshGen++
	gen := s.refreshGen
	started := s.now()

	go func() {
		res, err := s.deps.History.Fetch(ctx, s.cfg.Symbol, s.cfg.Timeframe)
		s.send(ctx, refreshed{gen: gen, res: res, err: err, started: started})
	}()
}

// onRefresh replaces the series wholesale. Results of a superseded refresh
// are discarded and a failed refresh keeps the previous series.
func (s *Session) onRefresh(ev refreshed) {
	if ev.gen != s.refreshGen {
		return
	}
	if s.deps.Hooks.OnRefresh != nil {
		s.deps.Hooks.OnRefresh(s.now().Sub(ev.started), ev.err)
	}
	if ev.err != nil {
		log.Printf("[live] %s refresh failed, keeping %d bars: %v", s.cfg.Symbol, s.series.Len(), ev.err)
		return
	}
	s.series.Replace(model.CloneBars(ev.res.Bars))
	s.seriesGen++
	s.publish(CauseRefresh)
}

// ── observers ──

func (s *Session) setState(to model.ConnectionState) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	if s.deps.Hooks.OnStateChange != nil {
		s.deps.Hooks.OnStateChange(from, to)
	}
	s.publish(CauseState)
}

func (s *Session) publish(cause Cause) {
	s.seq++
	s.fan.Publish(Snapshot{
		Symbol:    s.cfg.Symbol,
		Timeframe: s.cfg.Timeframe,
		Bars:      s.series.Bars(),
		State:     s.state,
		Cause:     cause,
		Seq:       s.seq,
	})
}
