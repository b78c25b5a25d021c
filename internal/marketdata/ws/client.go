// Package ws is the streaming quote transport: a gorilla/websocket client
// for the provider's real-time feed that sends the subscribe message and
// parses pushed price events into ticks.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"marketlens/internal/marketdata/normalize"
	"marketlens/internal/model"
	"marketlens/internal/symbol"
)

const (
	// DefaultBaseURL is the provider's streaming endpoint root.
	DefaultBaseURL = "wss://ws.eodhistoricaldata.com/ws"
	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout = 10 * time.Second
	// ReadTimeout is how long the feed may stay silent, pongs included,
	// before Next fails.
	ReadTimeout = 60 * time.Second
	// PingInterval is the heartbeat period. Must be below ReadTimeout.
	PingInterval = 20 * time.Second

	controlWait = time.Second
)

// Accepted field aliases of a pushed price event, in priority order.
var (
	PriceFields = []string{"p", "price", "close", "a", "b"}
	TimeFields  = []string{"t", "timestamp", "now"}
)

// Config configures the streaming client.
type Config struct {
	BaseURL          string
	Token            string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = HandshakeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = ReadTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		c.PingInterval = c.ReadTimeout / 3
	}
}

// URL builds the feed URL for a canonical symbol.
func URL(baseURL, token, canonical string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + symbol.StreamFeed(canonical))
	if err != nil {
		return "", fmt.Errorf("%w: stream url: %v", model.ErrValidation, err)
	}
	q := u.Query()
	q.Set("api_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Conn is one open streaming connection. Next may run concurrently with
// Subscribe and Close. A heartbeat goroutine pings the peer; any inbound
// frame, pong included, pushes the read deadline out by ReadTimeout.
type Conn struct {
	conn        *websocket.Conn
	symbol      string
	now         func() time.Time
	readTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens the feed for a canonical symbol.
func Dial(ctx context.Context, cfg Config, canonical string) (*Conn, error) {
	cfg.defaults()
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: stream token is required", model.ErrValidation)
	}
	target, err := URL(cfg.BaseURL, cfg.Token, canonical)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		msg := strings.ReplaceAll(err.Error(), cfg.Token, "***")
		return nil, fmt.Errorf("%w: stream dial: %s", model.ErrUpstream, msg)
	}

	log.Printf("[ws] connected feed=%s symbol=%s", symbol.StreamFeed(canonical), symbol.StreamSymbol(canonical))
	c := &Conn{
		conn:        conn,
		symbol:      symbol.StreamSymbol(canonical),
		now:         time.Now,
		readTimeout: cfg.ReadTimeout,
		done:        make(chan struct{}),
	}
	c.extendDeadline()
	conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		c.extendDeadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	go c.heartbeat(cfg.PingInterval)
	return c, nil
}

func (c *Conn) extendDeadline() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
}

// heartbeat pings until Close. A failed ping is left to the read side,
// which will miss its deadline.
func (c *Conn) heartbeat(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWait)); err != nil {
				log.Printf("[ws] ping %s: %v", c.symbol, err)
				return
			}
		}
	}
}

// Symbol is the wire symbol this connection subscribes to.
func (c *Conn) Symbol() string { return c.symbol }

// Subscribe sends {"action":"subscribe","symbols":sym}.
func (c *Conn) Subscribe() error {
	msg := map[string]string{"action": "subscribe", "symbols": c.symbol}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: stream subscribe: %v", model.ErrUpstream, err)
	}
	return nil
}

// Next blocks until the next price event. Status and malformed messages
// are skipped. A read error ends the stream.
func (c *Conn) Next() (model.Tick, error) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return model.Tick{}, fmt.Errorf("%w: stream closed", model.ErrUpstream)
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return model.Tick{}, fmt.Errorf("%w: stream silent for %s", model.ErrUpstream, c.readTimeout)
			}
			return model.Tick{}, fmt.Errorf("%w: stream read: %v", model.ErrUpstream, err)
		}
		c.extendDeadline()
		if tick, ok := ParseTick(raw, c.now()); ok {
			return tick, nil
		}
	}
}

// Close sends a close frame and closes the socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribe"),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// ParseTick extracts a tick from a pushed event. Events without a positive
// price are rejected; events without a time are stamped with now.
func ParseTick(raw []byte, now time.Time) (model.Tick, bool) {
	if !gjson.ValidBytes(raw) {
		return model.Tick{}, false
	}
	rec := gjson.ParseBytes(raw)
	if !rec.IsObject() {
		return model.Tick{}, false
	}
	price, ok := normalize.FirstPositive(rec, PriceFields)
	if !ok {
		return model.Tick{}, false
	}
	tick := model.Tick{Price: price, Time: now.Unix()}
	if v, ok := normalize.FirstPositive(rec, TimeFields); ok {
		tick.Time = normalize.EpochSeconds(v)
	}
	return tick, true
}
