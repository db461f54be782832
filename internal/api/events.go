package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/heimdex/heimdex-review/internal/index"
	"github.com/heimdex/heimdex-review/internal/playback"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 32
	broadcastQueue = 16
)

// Event is one message on the /playback/events stream.
type Event struct {
	Type     string            `json:"type"`
	At       string            `json:"at"`
	Playback *PlaybackResponse `json:"playback,omitempty"`
	Reload   *ReloadEvent      `json:"reload,omitempty"`
}

const (
	EventWelcome  = "welcome"
	EventPlayback = "playback"
	EventReload   = "reload"
)

type ReloadEvent struct {
	ProjectID   string `json:"project_id,omitempty"`
	GameID      string `json:"game_id,omitempty"`
	Moments     int    `json:"moments"`
	Annotations int    `json:"annotations"`
}

// EventHub fans playback state changes and reload notices out to websocket
// observers. Observers only watch; commands go through the HTTP routes.
type EventHub struct {
	controller *playback.Controller
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
}

func NewEventHub(controller *playback.Controller, logger *slog.Logger) *EventHub {
	return &EventHub{
		controller: controller,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || isAllowedOrigin(origin)
			},
		},
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done. Every controller state change
// is forwarded to all observers.
func (h *EventHub) Run(ctx context.Context) {
	defer close(h.done)

	sub := h.controller.Subscribe()
	defer sub.Close()
	states := sub.C

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unregister:
			h.drop(c)

		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			if msg, err := encodeEvent(playbackEvent(EventPlayback, st)); err == nil {
				h.fanout(msg)
			}

		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

func (h *EventHub) fanout(msg []byte) {
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow playback observer", "remote", c.conn.RemoteAddr().String())
			h.drop(c)
		}
	}
}

func (h *EventHub) drop(c *wsClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// PublishReload announces a newly published snapshot. It never blocks; when
// the queue is full the notice is dropped.
func (h *EventHub) PublishReload(snap *index.Snapshot) {
	msg, err := encodeEvent(Event{
		Type: EventReload,
		At:   time.Now().UTC().Format(time.RFC3339Nano),
		Reload: &ReloadEvent{
			ProjectID:   snap.ProjectID,
			GameID:      snap.GameID,
			Moments:     snap.MomentCount(),
			Annotations: len(snap.Annotations()),
		},
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.logger.Debug("reload notice dropped, event queue full")
	}
}

// ServeWS upgrades the request and registers the connection as an observer.
// The first message is the current playback state.
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, clientBuffer)}
	if msg, err := encodeEvent(playbackEvent(EventWelcome, h.controller.State())); err == nil {
		c.send <- msg
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func playbackEvent(kind string, st playback.State) Event {
	resp := PlaybackToResponse(st)
	return Event{
		Type:     kind,
		At:       time.Now().UTC().Format(time.RFC3339Nano),
		Playback: &resp,
	}
}

func encodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

type wsClient struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte
}

// readPump drains control frames and detects disconnects. Inbound text is
// ignored.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
