package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"marketlens/internal/model"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "sym:XAUUSD", SymbolKey("XAUUSD"))
	require.Equal(t, "bars:1h:latest:XAUUSD.FOREX", BarsKey("XAUUSD.FOREX", model.TF1h))
	require.Equal(t, "pub:bars:1h:XAUUSD.FOREX", BarsChannel("XAUUSD.FOREX", model.TF1h))
	require.Equal(t, "report:1d:latest:AAPL.US", ReportKey("AAPL.US", model.TF1d))
	require.Equal(t, "report:AAPL.US", ReportStream("AAPL.US"))
	require.Equal(t, "pub:report:AAPL.US", ReportChannel("AAPL.US"))
}

// unreachable returns a store whose client can never connect.
func unreachable() *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	return NewWithClient(client, Config{})
}

func TestStore_BreakerTripsOnUnreachableRedis(t *testing.T) {
	s := unreachable()
	defer s.Close()
	ctx := context.Background()

	rejected := 0
	s.OnRejected = func() { rejected++ }

	for i := 0; i < defaultMaxFails; i++ {
		err := s.SetSymbol(ctx, "XAUUSD", "XAUUSD.FOREX")
		require.Error(t, err)
		require.False(t, errors.Is(err, ErrCircuitOpen), "attempt %d should reach the client", i)
	}
	require.Equal(t, StateOpen, s.Breaker().CurrentState())

	_, _, err := s.GetSymbol(ctx, "XAUUSD")
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.ErrorIs(t, s.SaveReport(ctx, model.Report{ID: "r", Symbol: "X"}), ErrCircuitOpen)
	require.Equal(t, 2, rejected)
}

func TestStore_PublishBarsEmptyIsNoop(t *testing.T) {
	s := unreachable()
	defer s.Close()
	require.NoError(t, s.PublishBars(context.Background(), "X", model.TF1h, nil))
	require.Equal(t, StateClosed, s.Breaker().CurrentState())
}
