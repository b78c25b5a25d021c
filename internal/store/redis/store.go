// Package redis is the shared cache and fan-out layer: it caches symbol
// resolutions, publishes live bar snapshots and keeps the latest analysis
// report per symbol and timeframe. Every call goes through a circuit breaker
// so an unavailable Redis costs one fast error instead of a timeout.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"marketlens/internal/model"
)

const (
	defaultSymbolTTL  = 24 * time.Hour
	defaultLatestTTL  = 30 * time.Minute
	reportStreamLen   = 500
	defaultMaxFails   = 5
	defaultResetAfter = 10 * time.Second
)

// Config configures the Redis store.
type Config struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	SymbolTTL time.Duration
	LatestTTL time.Duration
}

func (c *Config) defaults() {
	if c.SymbolTTL <= 0 {
		c.SymbolTTL = defaultSymbolTTL
	}
	if c.LatestTTL <= 0 {
		c.LatestTTL = defaultLatestTTL
	}
}

// Store implements symbol.Cache, model.SnapshotPublisher and model.ReportSink.
type Store struct {
	client *goredis.Client
	cb     *CircuitBreaker
	cfg    Config

	// OnRejected is called when the breaker rejects a call (optional).
	OnRejected func()
}

// New creates a Store and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config) *Store {
	cfg.defaults()
	return &Store{
		client: client,
		cb:     NewCircuitBreaker(defaultMaxFails, defaultResetAfter),
		cfg:    cfg,
	}
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Breaker exposes the circuit breaker, e.g. to attach metrics.
func (s *Store) Breaker() *CircuitBreaker { return s.cb }

// Key builders.
func SymbolKey(query string) string { return "sym:" + query }
func BarsKey(symbol string, tf model.Timeframe) string {
	return "bars:" + string(tf) + ":latest:" + symbol
}
func BarsChannel(symbol string, tf model.Timeframe) string {
	return "pub:bars:" + string(tf) + ":" + symbol
}
func ReportKey(symbol string, tf model.Timeframe) string {
	return "report:" + string(tf) + ":latest:" + symbol
}
func ReportStream(symbol string) string { return "report:" + symbol }
func ReportChannel(symbol string) string { return "pub:report:" + symbol }

func (s *Store) exec(fn func() error) error {
	err := s.cb.Execute(fn)
	if errors.Is(err, ErrCircuitOpen) && s.OnRejected != nil {
		s.OnRejected()
	}
	return err
}

// GetSymbol returns a cached resolution. ok is false on a cache miss.
func (s *Store) GetSymbol(ctx context.Context, query string) (canonical string, ok bool, err error) {
	err = s.exec(func() error {
		v, err := s.client.Get(ctx, SymbolKey(query)).Result()
		if err == goredis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		canonical, ok = v, true
		return nil
	})
	return canonical, ok, err
}

// SetSymbol caches a resolution.
func (s *Store) SetSymbol(ctx context.Context, query, canonical string) error {
	return s.exec(func() error {
		return s.client.Set(ctx, SymbolKey(query), canonical, s.cfg.SymbolTTL).Err()
	})
}

// barsMessage is the payload published for every live snapshot.
type barsMessage struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"timeframe"`
	Count     int             `json:"count"`
	Tail      model.Bar       `json:"tail"`
}

// PublishBars stores the full sequence under its latest key and publishes
// the tail bar in one pipeline.
func (s *Store) PublishBars(ctx context.Context, symbol string, tf model.Timeframe, bars []model.Bar) error {
	tail, ok := model.Last(bars)
	if !ok {
		return nil
	}
	full, err := json.Marshal(bars)
	if err != nil {
		return fmt.Errorf("redis: marshal bars: %w", err)
	}
	msg, err := json.Marshal(barsMessage{Symbol: symbol, Timeframe: tf, Count: len(bars), Tail: tail})
	if err != nil {
		return fmt.Errorf("redis: marshal bars message: %w", err)
	}

	return s.exec(func() error {
		pipe := s.client.Pipeline()
		pipe.Set(ctx, BarsKey(symbol, tf), full, s.cfg.LatestTTL)
		pipe.Publish(ctx, BarsChannel(symbol, tf), msg)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis: publish bars %s %s: %w", symbol, tf, err)
		}
		return nil
	})
}

// LatestBars reads the last published sequence.
func (s *Store) LatestBars(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Bar, bool, error) {
	var bars []model.Bar
	found := false
	err := s.exec(func() error {
		raw, err := s.client.Get(ctx, BarsKey(symbol, tf)).Bytes()
		if err == goredis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return json.Unmarshal(raw, &bars)
	})
	return bars, found, err
}

// SaveReport keeps the report as the latest for its symbol and timeframe,
// appends it to the symbol's report stream and publishes it.
func (s *Store) SaveReport(ctx context.Context, r model.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redis: marshal report: %w", err)
	}

	return s.exec(func() error {
		pipe := s.client.Pipeline()
		pipe.Set(ctx, ReportKey(r.Symbol, r.Timeframe), data, s.cfg.LatestTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: ReportStream(r.Symbol),
			MaxLen: reportStreamLen,
			Approx: true,
			Values: map[string]interface{}{"id": r.ID, "data": data},
		})
		pipe.Publish(ctx, ReportChannel(r.Symbol), data)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis: save report %s: %w", r.ID, err)
		}
		return nil
	})
}

// LatestReport returns the most recent report for symbol and tf.
func (s *Store) LatestReport(ctx context.Context, symbol string, tf model.Timeframe) (model.Report, bool, error) {
	var r model.Report
	found := false
	err := s.exec(func() error {
		raw, err := s.client.Get(ctx, ReportKey(symbol, tf)).Bytes()
		if err == goredis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return json.Unmarshal(raw, &r)
	})
	return r, found, err
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
