package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
	replayPage = 200
	sendBuffer = 256
)

// client is one websocket listener. Notify only queues; a single writer
// goroutine owns the connection's data frames.
type client struct {
	conn *websocket.Conn
	send chan Notice
	done chan struct{}
	stop sync.Once
	mu   sync.Mutex
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan Notice, sendBuffer), done: make(chan struct{})}
}

// enqueue hands n to the writer without blocking. A listener whose queue is
// full has fallen behind and is disconnected; it can resume from its last
// seq.
func (c *client) enqueue(n Notice) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- n:
		return true
	default:
		c.close()
		return false
	}
}

func (c *client) close() {
	c.stop.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return w.Close()
}

func (c *client) writeControl(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// Hub fans notices out to websocket listeners subscribed to a season. When a
// Feed is attached every notice is stored first, and new listeners replay the
// notices they missed.
type Hub struct {
	feed     *Feed
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]map[*client]struct{}
	wg   sync.WaitGroup
}

// NewHub builds a hub. feed may be nil.
func NewHub(feed *Feed, logger zerolog.Logger) *Hub {
	return &Hub{
		feed:   feed,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(*http.Request) bool { return true },
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
		subs: map[string]map[*client]struct{}{},
	}
}

// Notify stores n in the feed and queues it for every listener. It never
// waits on a connection; failures are logged only.
func (h *Hub) Notify(_ context.Context, n Notice) {
	if h == nil {
		return
	}
	if h.feed != nil {
		stored, err := h.feed.Append(n)
		if err != nil {
			h.logger.Warn().Err(err).Str("season_id", n.SeasonID).Str("kind", n.Kind).Msg("store notice")
		} else {
			n = stored
		}
	}
	for _, c := range h.clients(n.SeasonID) {
		if !c.enqueue(n) {
			h.logger.Debug().Str("season_id", n.SeasonID).Uint64("seq", n.Seq).Msg("listener dropped")
		}
	}
}

// Listeners returns the number of live connections for a season.
func (h *Hub) Listeners(seasonID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[seasonID])
}

// Serve upgrades the request and streams the season's notices, starting with
// any stored after afterSeq. The listener is registered before the backlog is
// read, so a notice stored in between is queued rather than lost; the writer
// skips queued notices the replay already sent.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, seasonID string, afterSeq uint64) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	c := newClient(conn)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	h.add(seasonID, c)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		h.writeLoop(c, seasonID, afterSeq)
	}()
	go func() {
		defer h.wg.Done()
		defer func() {
			h.remove(seasonID, c)
			_ = c.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.close()
		}()
		// Listeners only receive; reads keep the deadline and detect close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writeLoop replays the stored backlog, then drains the live queue and keeps
// the connection pinged until the listener goes away.
func (h *Hub) writeLoop(c *client, seasonID string, afterSeq uint64) {
	defer c.close()
	last, ok := h.replay(c, seasonID, afterSeq)
	if !ok {
		return
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case n := <-c.send:
			if n.Seq != 0 && n.Seq <= last {
				continue
			}
			if err := c.writeJSON(n); err != nil {
				h.logger.Debug().Err(err).Str("season_id", seasonID).Msg("write notice")
				return
			}
			if n.Seq != 0 {
				last = n.Seq
			}
		case <-ticker.C:
			if err := c.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close disconnects every listener and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*client
	for _, set := range h.subs {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		_ = c.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		c.close()
	}
	h.wg.Wait()
}

// replay writes the stored notices after afterSeq and returns the last seq
// sent. It reports false when the connection failed.
func (h *Hub) replay(c *client, seasonID string, afterSeq uint64) (uint64, bool) {
	if h.feed == nil {
		return afterSeq, true
	}
	for {
		backlog, err := h.feed.Since(seasonID, afterSeq, replayPage)
		if err != nil {
			h.logger.Warn().Err(err).Str("season_id", seasonID).Msg("replay notices")
			return afterSeq, true
		}
		for _, n := range backlog {
			if err := c.writeJSON(n); err != nil {
				return afterSeq, false
			}
			afterSeq = n.Seq
		}
		if len(backlog) < replayPage {
			return afterSeq, true
		}
	}
}

func (h *Hub) clients(seasonID string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.subs[seasonID]
	out := make([]*client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (h *Hub) add(seasonID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[seasonID]
	if !ok {
		set = map[*client]struct{}{}
		h.subs[seasonID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(seasonID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[seasonID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, seasonID)
	}
}
