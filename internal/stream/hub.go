// Package stream pushes executed trades to WebSocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/efreitasn/matchcore/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	sendBuffer    = 256
	publishBuffer = 1024
)

// TradesChannel returns the channel name carrying a market's trades.
func TradesChannel(market string) string {
	return "trades:" + market
}

// Request is a control message sent by a client.
type Request struct {
	Op       string   `json:"op"` // subscribe | unsubscribe
	Channels []string `json:"channels"`
}

// Event is a message sent to a client.
type Event struct {
	Type     string         `json:"type"` // trades | subscribed | unsubscribed | error
	Channel  string         `json:"channel,omitempty"`
	Channels []string       `json:"channels,omitempty"`
	Trades   []domain.Trade `json:"trades,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type subscription struct {
	client *Client
	req    Request
}

type broadcast struct {
	channel string
	payload []byte
}

// Hub tracks connected clients and fans published trades out to the
// ones subscribed to the trade's channel. All client state is owned by
// the Run goroutine; other goroutines talk to it over channels.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	publish    chan broadcast
	done       chan struct{}

	clients map[*Client]map[string]bool
}

// NewHub creates a Hub. Run must be started before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		publish:    make(chan broadcast, publishBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*Client]map[string]bool),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = make(map[string]bool)
			h.logger.Debug("ws client connected", "client_id", c.id, "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Debug("ws client disconnected", "client_id", c.id, "clients", len(h.clients))
			}

		case s := <-h.subscribe:
			h.handleRequest(s)

		case b := <-h.publish:
			for c, subs := range h.clients {
				if subs[b.channel] {
					h.deliver(c, b.payload)
				}
			}
		}
	}
}

func (h *Hub) handleRequest(s subscription) {
	subs, ok := h.clients[s.client]
	if !ok {
		return
	}
	var ev Event
	switch s.req.Op {
	case "subscribe":
		for _, ch := range s.req.Channels {
			subs[ch] = true
		}
		ev = Event{Type: "subscribed", Channels: s.req.Channels}
	case "unsubscribe":
		for _, ch := range s.req.Channels {
			delete(subs, ch)
		}
		ev = Event{Type: "unsubscribed", Channels: s.req.Channels}
	default:
		ev = Event{Type: "error", Error: "unknown op: " + s.req.Op}
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("ws marshal failed", "error", err)
		return
	}
	h.deliver(s.client, payload)
}

// deliver queues payload for c, dropping the client if its buffer is
// full.
func (h *Hub) deliver(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.logger.Warn("ws client too slow, disconnecting", "client_id", c.id)
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
}

// PublishTrades sends a batch of a market's trades to its subscribers.
// It never blocks; if the hub is saturated the batch is discarded.
func (h *Hub) PublishTrades(market string, trades []domain.Trade) {
	if len(trades) == 0 {
		return
	}
	channel := TradesChannel(market)
	payload, err := json.Marshal(Event{Type: "trades", Channel: channel, Trades: trades})
	if err != nil {
		h.logger.Error("ws marshal failed", "market", market, "error", err)
		return
	}
	select {
	case h.publish <- broadcast{channel: channel, payload: payload}:
	default:
		h.logger.Warn("ws publish buffer full, dropping trades", "market", market, "trades", len(trades))
	}
}

// ServeWS upgrades the request to a WebSocket and attaches the
// connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   uuid.NewString(),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
