package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlens/internal/model"
)

func TestURL(t *testing.T) {
	cases := map[string]string{
		"XAUUSD.FOREX": "wss://ws.eodhistoricaldata.com/ws/forex?api_token=k",
		"BTC-USD.CC":   "wss://ws.eodhistoricaldata.com/ws/crypto?api_token=k",
		"AAPL.US":      "wss://ws.eodhistoricaldata.com/ws/us?api_token=k",
	}
	for sym, want := range cases {
		got, err := URL(DefaultBaseURL, "k", sym)
		require.NoError(t, err)
		require.Equal(t, want, got, sym)
	}
}

func TestParseTick(t *testing.T) {
	now := time.Unix(1_700_000_999, 0)

	tick, ok := ParseTick([]byte(`{"s":"EURUSD","a":1.0851,"b":1.0849,"t":1700000000123}`), now)
	require.True(t, ok)
	require.Equal(t, 1.0851, tick.Price)
	require.Equal(t, int64(1_700_000_000), tick.Time)

	tick, ok = ParseTick([]byte(`{"price":"2001.5"}`), now)
	require.True(t, ok)
	require.Equal(t, 2001.5, tick.Price)
	require.Equal(t, now.Unix(), tick.Time, "missing time is stamped with now")

	for _, raw := range []string{
		`{"status_code":200,"message":"Authorized"}`,
		`{"p":0}`,
		`[1,2]`,
		`not json`,
	} {
		_, ok := ParseTick([]byte(raw), now)
		require.False(t, ok, raw)
	}
}

func feedServer(t *testing.T, frames []string, gotSub chan<- map[string]string) *httptest.Server {
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forex", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("api_token"))
		c, err := up.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer c.Close()

		var sub map[string]string
		if !assert.NoError(t, c.ReadJSON(&sub)) {
			return
		}
		gotSub <- sub
		for _, f := range frames {
			if err := c.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
}

func TestConn_SubscribeAndRead(t *testing.T) {
	gotSub := make(chan map[string]string, 1)
	srv := feedServer(t, []string{
		`{"status_code":200,"message":"Authorized"}`,
		`{"s":"XAUUSD","p":2001.5,"t":1700000000000}`,
		`{"s":"XAUUSD","p":2002.25,"t":1700000001000}`,
	}, gotSub)
	defer srv.Close()

	cfg := Config{BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"), Token: "secret"}
	conn, err := Dial(context.Background(), cfg, "XAUUSD.FOREX")
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, "XAUUSD", conn.Symbol())

	require.NoError(t, conn.Subscribe())
	select {
	case sub := <-gotSub:
		require.Equal(t, map[string]string{"action": "subscribe", "symbols": "XAUUSD"}, sub)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received subscribe")
	}

	tick, err := conn.Next()
	require.NoError(t, err)
	require.Equal(t, model.Tick{Price: 2001.5, Time: 1_700_000_000}, tick)

	tick, err = conn.Next()
	require.NoError(t, err)
	require.Equal(t, 2002.25, tick.Price)

	_, err = conn.Next()
	require.True(t, errors.Is(err, model.ErrUpstream), "end of stream: %v", err)
	require.NoError(t, conn.Close())
}

func TestDial_Errors(t *testing.T) {
	_, err := Dial(context.Background(), Config{}, "XAUUSD.FOREX")
	require.ErrorIs(t, err, model.ErrValidation)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	cfg := Config{BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"), Token: "secret"}
	_, err = Dial(context.Background(), cfg, "XAUUSD.FOREX")
	require.ErrorIs(t, err, model.ErrUpstream)
	require.NotContains(t, err.Error(), "secret")
}

// quietServer upgrades, swallows the subscribe and then says nothing until
// release is closed. With answerPings it keeps reading, so control frames
// are answered; otherwise the peer looks half-open.
func quietServer(t *testing.T, answerPings bool, after time.Duration, frame string, release <-chan struct{}) *httptest.Server {
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer c.Close()
		if answerPings {
			go func() {
				for {
					if _, _, err := c.ReadMessage(); err != nil {
						return
					}
				}
			}()
		}
		if frame != "" {
			select {
			case <-time.After(after):
				_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
			case <-release:
				return
			}
		}
		<-release
	}))
}

func dialQuiet(t *testing.T, srv *httptest.Server) *Conn {
	cfg := Config{
		BaseURL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:        "secret",
		ReadTimeout:  200 * time.Millisecond,
		PingInterval: 50 * time.Millisecond,
	}
	conn, err := Dial(context.Background(), cfg, "XAUUSD.FOREX")
	require.NoError(t, err)
	return conn
}

func nextWithin(t *testing.T, conn *Conn, limit time.Duration) (model.Tick, error) {
	t.Helper()
	type result struct {
		tick model.Tick
		err  error
	}
	out := make(chan result, 1)
	go func() {
		tick, err := conn.Next()
		out <- result{tick, err}
	}()
	select {
	case r := <-out:
		return r.tick, r.err
	case <-time.After(limit):
		t.Fatalf("Next still blocked after %s", limit)
		return model.Tick{}, nil
	}
}

func TestConn_SilentPeerFailsNext(t *testing.T) {
	release := make(chan struct{})
	srv := quietServer(t, false, 0, "", release)
	defer srv.Close()
	defer close(release)

	conn := dialQuiet(t, srv)
	defer conn.Close()

	start := time.Now()
	_, err := nextWithin(t, conn, 3*time.Second)
	require.ErrorIs(t, err, model.ErrUpstream)
	require.Contains(t, err.Error(), "silent")
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestConn_HeartbeatKeepsQuietFeedAlive(t *testing.T) {
	release := make(chan struct{})
	srv := quietServer(t, true, 600*time.Millisecond, `{"p":2001.5,"t":1700000000}`, release)
	defer srv.Close()
	defer close(release)

	conn := dialQuiet(t, srv)
	defer conn.Close()

	tick, err := nextWithin(t, conn, 3*time.Second)
	require.NoError(t, err, "pongs should extend the deadline past three read timeouts")
	require.Equal(t, 2001.5, tick.Price)
}
