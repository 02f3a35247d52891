package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/ivindex-go/pkg/logging"
	"github.com/StrathCole/ivindex-go/pkg/metrics"
	"github.com/StrathCole/ivindex-go/pkg/server/engine"
)

// WebSocketServer streams index updates to connected clients.
type WebSocketServer struct {
	addr     string
	logger   *logging.Logger
	upgrader websocket.Upgrader

	// Client management
	mu      sync.RWMutex
	clients map[*WebSocketClient]bool

	updates chan engine.Update

	// Server control
	ctx    context.Context
	cancel context.CancelFunc
}

// WebSocketClient represents a connected WebSocket client.
type WebSocketClient struct {
	conn          *websocket.Conn
	send          chan []byte
	server        *WebSocketServer
	subscribedAll bool
	subscribed    map[string]bool
	mu            sync.RWMutex
}

// WebSocketMessage represents a client message.
type WebSocketMessage struct {
	Type        string   `json:"type"`        // "subscribe", "unsubscribe", "ping"
	Underlyings []string `json:"underlyings"` // empty or ["*"] means all
}

// IndexUpdateMessage is sent to clients after every cycle.
type IndexUpdateMessage struct {
	Type      string      `json:"type"`      // "index_update"
	Timestamp string      `json:"timestamp"` // ISO 8601 timestamp
	Index     IndexStream `json:"index"`
}

// IndexStream is the streamed form of one update.
type IndexStream struct {
	Underlying string          `json:"underlying"`
	Value      decimal.Decimal `json:"value"`
	Sigma2     decimal.Decimal `json:"sigma2"`
	CycleID    string          `json:"cycle_id"`
	Sources    []string        `json:"sources"`
}

// NewWebSocketServer creates a new WebSocket server.
func NewWebSocketServer(addr string, logger *logging.Logger) *WebSocketServer {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketServer{
		addr:   addr,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Allow all origins (configure CORS as needed)
				return true
			},
		},
		clients: make(map[*WebSocketClient]bool),
		updates: make(chan engine.Update, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start runs the broadcaster and, when an address is set, a dedicated
// listener. It blocks until Stop is called.
func (s *WebSocketServer) Start(ctx context.Context) error {
	go s.broadcastUpdates()

	if s.addr == "" {
		<-s.ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting WebSocket server", "addr", s.addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("WebSocket server error", "error", err)
		}
	}()

	<-s.ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Stop stops the WebSocket server.
func (s *WebSocketServer) Stop() {
	s.cancel()
}

// Publish queues an update for broadcast.
func (s *WebSocketServer) Publish(ctx context.Context, u engine.Update) error {
	select {
	case s.updates <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		s.logger.Warn("Update channel full, dropping index update", "underlying", u.Underlying)
		return nil
	}
}

// ClientCount returns the number of connected clients.
func (s *WebSocketServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// handleWebSocket handles new WebSocket connections.
func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		conn:          conn,
		send:          make(chan []byte, 256),
		server:        s,
		subscribedAll: true, // Subscribe to all by default
		subscribed:    make(map[string]bool),
	}

	s.registerClient(client)

	go client.writePump()
	go client.readPump()

	s.logger.Info("New WebSocket client connected", "remote", conn.RemoteAddr().String())
}

func (s *WebSocketServer) registerClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
	metrics.SetWebSocketClients(len(s.clients))
}

func (s *WebSocketServer) unregisterClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
	metrics.SetWebSocketClients(len(s.clients))
}

func (s *WebSocketServer) broadcastUpdates() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case u := <-s.updates:
			s.broadcast(u)
		}
	}
}

// broadcast sends an update to all subscribed clients.
func (s *WebSocketServer) broadcast(u engine.Update) {
	message := IndexUpdateMessage{
		Type:      "index_update",
		Timestamp: u.Timestamp.Format(time.RFC3339),
		Index: IndexStream{
			Underlying: u.Underlying,
			Value:      decimal.NewFromFloat(u.Value).Round(ValuePlaces),
			Sigma2:     decimal.NewFromFloat(u.Sigma2),
			CycleID:    u.CycleID,
			Sources:    u.Sources,
		},
	}

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("Failed to marshal index update", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if client.shouldReceive(u.Underlying) {
			select {
			case client.send <- data:
			default:
				s.logger.Warn("Client send buffer full, skipping update")
			}
		}
	}
}

// writePump sends messages to the WebSocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.server.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket connection.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Error("WebSocket error", "error", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

// handleMessage processes client messages.
func (c *WebSocketClient) handleMessage(data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.server.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Underlyings)
	case "unsubscribe":
		c.unsubscribe(msg.Underlyings)
	case "ping":
		c.reply(map[string]string{"type": "pong"})
		return
	default:
		c.server.logger.Warn("Unknown message type", "type", msg.Type)
		c.reply(map[string]string{"type": "error", "error": "unknown message type"})
		return
	}
	c.reply(map[string]interface{}{"type": msg.Type + "d", "underlyings": c.subscriptions()})
}

func (c *WebSocketClient) subscribe(underlyings []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isWildcard(underlyings) {
		c.subscribedAll = true
		c.subscribed = make(map[string]bool)
	} else {
		c.subscribedAll = false
		for _, u := range underlyings {
			c.subscribed[strings.ToUpper(u)] = true
		}
	}
	c.server.logger.Debug("Client subscribed", "underlyings", underlyings)
}

func (c *WebSocketClient) unsubscribe(underlyings []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isWildcard(underlyings) {
		c.subscribedAll = false
		c.subscribed = make(map[string]bool)
	} else {
		for _, u := range underlyings {
			delete(c.subscribed, strings.ToUpper(u))
		}
	}
	c.server.logger.Debug("Client unsubscribed", "underlyings", underlyings)
}

// subscriptions lists the current subscriptions, "*" for all.
func (c *WebSocketClient) subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subscribedAll {
		return []string{"*"}
	}
	out := make([]string, 0, len(c.subscribed))
	for u := range c.subscribed {
		out = append(out, u)
	}
	return out
}

func (c *WebSocketClient) shouldReceive(underlying string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribedAll || c.subscribed[underlying]
}

// reply queues a control message without blocking.
func (c *WebSocketClient) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func isWildcard(underlyings []string) bool {
	return len(underlyings) == 0 || (len(underlyings) == 1 && underlyings[0] == "*")
}
