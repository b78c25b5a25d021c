package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"marketlens/internal/marketdata/live"
	"marketlens/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is one snapshot on the wire. Bars is set on the first
// message of a connection, after a refresh, and after a gap in Seq;
// otherwise only the tail is sent.
type streamMessage struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"timeframe"`
	State     string          `json:"state"`
	Cause     live.Cause      `json:"cause"`
	Seq       uint64          `json:"seq"`
	Count     int             `json:"count"`
	Tail      *model.Bar      `json:"tail,omitempty"`
	Bars      []model.Bar     `json:"bars,omitempty"`
}

func newStreamMessage(snap live.Snapshot, full bool) streamMessage {
	m := streamMessage{
		Symbol:    snap.Symbol,
		Timeframe: snap.Timeframe,
		State:     snap.State.String(),
		Cause:     snap.Cause,
		Seq:       snap.Seq,
		Count:     len(snap.Bars),
	}
	if tail, ok := model.Last(snap.Bars); ok {
		m.Tail = &tail
	}
	if full {
		m.Bars = snap.Bars
	}
	return m
}

// GET /api/v1/stream upgrades to a websocket that relays live snapshots.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Live == nil {
		http.NotFound(w, r)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] ws upgrade error: %v", err)
		return
	}

	snaps := h.deps.Live.Snapshots()
	defer h.deps.Live.Unsubscribe(snaps)

	gone := make(chan struct{})
	go readPump(conn, gone)
	writePump(conn, snaps, gone)
	log.Println("[api] ws client disconnected")
}

// readPump discards client messages and closes gone when the peer leaves.
func readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, snaps <-chan live.Snapshot, gone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	var lastSeq uint64
	sent := false
	for {
		select {
		case <-gone:
			return

		case snap, ok := <-snaps:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			full := !sent || snap.Cause == live.CauseRefresh || snap.Seq != lastSeq+1
			data, err := json.Marshal(newStreamMessage(snap, full))
			if err != nil {
				log.Printf("[api] encode snapshot: %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			sent, lastSeq = true, snap.Seq

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
