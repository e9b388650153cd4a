package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10

	// Slow consumers that fall this many frames behind are dropped.
	wsSendBuffer = 256
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleSubscribe upgrades the connection and streams bus events as
// {type, data, timestamp} frames. The optional types query parameter is a
// comma-separated event-type filter, defaulting to SIGNAL_GENERATED; "*"
// subscribes to everything.
func (s *Server) handleSubscribe(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	types := []bus.EventType{bus.EventSignalGenerated}
	if raw := c.Query("types"); raw != "" {
		types = types[:0]
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, bus.EventType(t))
			}
		}
	}

	client := &wsClient{
		conn: conn,
		send: make(chan bus.Event, wsSendBuffer),
		done: make(chan struct{}),
	}
	for _, typ := range types {
		client.subs = append(client.subs, s.bus.Subscribe(typ, client.enqueue))
	}

	metrics.WebsocketClients.Inc()
	s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket client connected")

	go client.writePump(s)
	go client.readPump(s)
}

type wsClient struct {
	conn    *websocket.Conn
	send    chan bus.Event
	done    chan struct{}
	subs    []*bus.Subscription
	closing sync.Once
	torn    sync.Once
}

// enqueue runs on the bus's emitting goroutine and must not block: a full
// send buffer closes the connection instead.
func (c *wsClient) enqueue(ev bus.Event) {
	select {
	case <-c.done:
	case c.send <- ev:
	default:
		c.close()
	}
}

// close is reachable from the bus goroutine and both pumps at once; the
// Once keeps the concurrent paths from closing done twice.
func (c *wsClient) close() {
	c.closing.Do(func() { close(c.done) })
}

// teardown runs once even though both pumps defer it.
func (c *wsClient) teardown(s *Server) {
	c.torn.Do(func() {
		c.close()
		for _, sub := range c.subs {
			sub.Unsubscribe()
		}
		c.conn.Close()
		metrics.WebsocketClients.Dec()
	})
}

// readPump discards inbound frames; its job is noticing the disconnect.
func (c *wsClient) readPump(s *Server) {
	defer c.teardown(s)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump(s *Server) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown(s)
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case ev := <-c.send:
			frame, err := json.Marshal(ev)
			if err != nil {
				s.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("Failed to marshal WebSocket frame")
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
