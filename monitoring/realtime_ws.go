package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fraudguard/inference"
)

// MessageType tags each pushed message.
type MessageType string

const (
	PredictionEvent MessageType = "prediction"
	ModelStatus     MessageType = "model_status"
)

// Message is the envelope sent to every subscriber.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// PredictionMessage is the payload of a prediction event.
type PredictionMessage struct {
	Verdict          string  `json:"verdict"`
	NotFraud         float64 `json:"not_fraud"`
	Fraud            float64 `json:"fraud"`
	Amount           float64 `json:"amount"`
	ModelFingerprint string  `json:"model_fingerprint,omitempty"`
}

// ModelStatusMessage reports the artifact state.
type ModelStatusMessage struct {
	Available bool   `json:"available"`
	Path      string `json:"path"`
	Message   string `json:"message"`
}

// ClientMessage is what subscribers may send back.
type ClientMessage struct {
	Type  string `json:"type"` // subscribe, unsubscribe
	Topic string `json:"topic"`
}

// Client is one websocket subscriber.
type Client struct {
	conn          *websocket.Conn
	send          chan []byte
	clientID      string
	mu            sync.RWMutex
	subscriptions map[MessageType]bool
}

func (c *Client) wants(t MessageType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	// No explicit subscription means everything.
	return len(c.subscriptions) == 0 || c.subscriptions[t]
}

type outbound struct {
	kind    MessageType
	payload []byte
}

// Hub fans messages out to websocket clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	fingerprint string
	ctx         context.Context
	cancel      context.CancelFunc
}

// OriginAllowed reports whether origin is listed in origins. "*" allows any.
func OriginAllowed(origins []string, origin string) bool {
	for _, allowed := range origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// checkOrigin accepts clients without an Origin header, same-host pages and
// the configured origins.
func checkOrigin(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || OriginAllowed(origins, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// NewHub creates a hub. Call Run in its own goroutine. allowedOrigins
// restricts cross-origin subscribers the same way CORS does for the API.
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetModelFingerprint tags prediction events with the artifact checksum.
func (h *Hub) SetModelFingerprint(sha string) {
	h.fingerprint = sha
}

// Run is the hub loop. It returns after Stop.
func (h *Hub) Run() {
	defer h.logger.Info("websocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", zap.String("client_id", client.clientID), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", zap.String("client_id", client.clientID), zap.Int("total", total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.kind) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.cancel()
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and attaches a client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:          conn,
		send:          make(chan []byte, 256),
		clientID:      uuid.NewString(),
		subscriptions: make(map[MessageType]bool),
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump(h.logger)
	go client.readPump(h)
}

// Publish wraps data in a Message and queues it for broadcast.
func (h *Hub) Publish(kind MessageType, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	msg, err := json.Marshal(Message{
		Type:      kind,
		Timestamp: time.Now().UTC(),
		Data:      payload,
		ID:        uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case h.broadcast <- outbound{kind: kind, payload: msg}:
		return nil
	default:
		h.logger.Warn("websocket broadcast queue is full, dropping message", zap.String("type", string(kind)))
		return nil
	}
}

// ObservePrediction implements inference.Observer.
func (h *Hub) ObservePrediction(result inference.PredictionResult) {
	_ = h.Publish(PredictionEvent, PredictionMessage{
		Verdict:          result.Verdict.String(),
		NotFraud:         result.Probabilities.NotFraud,
		Fraud:            result.Probabilities.Fraud,
		Amount:           result.Features.Amount(),
		ModelFingerprint: h.fingerprint,
	})
}

// ObserveFailure implements inference.Observer. Failures are not streamed.
func (h *Hub) ObserveFailure(error) {}

func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write failed", zap.String("client_id", c.clientID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid client message", zap.String("client_id", c.clientID), zap.Error(err))
			continue
		}
		c.handleClientMessage(msg)
	}
}

func (c *Client) handleClientMessage(msg ClientMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case "subscribe":
		c.subscriptions[MessageType(msg.Topic)] = true
	case "unsubscribe":
		delete(c.subscriptions, MessageType(msg.Topic))
	}
}
