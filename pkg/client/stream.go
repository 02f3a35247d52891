package client

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/ivindex-go/pkg/logging"
)

const (
	// maxReconnectBackoff is the maximum wait time between reconnection attempts.
	maxReconnectBackoff = 30 * time.Second
	// initialReconnectBackoff is the starting backoff duration.
	initialReconnectBackoff = 1 * time.Second
	// pingInterval is how often to send ping messages.
	pingInterval = 30 * time.Second
	// pongTimeout is how long to wait for pong response.
	pongTimeout = 60 * time.Second
)

// Update is one streamed index value.
type Update struct {
	Underlying string          `json:"underlying"`
	Value      decimal.Decimal `json:"value"`
	Sigma2     decimal.Decimal `json:"sigma2"`
	CycleID    string          `json:"cycle_id"`
	Sources    []string        `json:"sources"`
	Timestamp  time.Time       `json:"-"`
}

type streamMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Index     Update `json:"index"`
	Error     string `json:"error"`
}

type subscribeMessage struct {
	Type        string   `json:"type"`
	Underlyings []string `json:"underlyings"`
}

// Stream subscribes to /ws and reconnects with jittered exponential backoff.
type Stream struct {
	url            string
	underlyings    []string
	logger         *logging.Logger
	mu             sync.RWMutex
	conn           *websocket.Conn
	updates        chan Update
	closed         chan struct{}
	closeOnce      sync.Once
	reconnectDelay time.Duration
}

// NewStream creates a stream client for url (ws://host:port/ws). An empty
// underlyings list subscribes to every underlying.
func NewStream(url string, underlyings []string, logger *logging.Logger) *Stream {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if len(underlyings) == 0 {
		underlyings = []string{"*"}
	}
	return &Stream{
		url:            url,
		underlyings:    underlyings,
		logger:         logger.With("component", "stream"),
		updates:        make(chan Update, 100),
		closed:         make(chan struct{}),
		reconnectDelay: initialReconnectBackoff,
	}
}

// Start begins the connection loop.
func (s *Stream) Start(ctx context.Context) {
	s.logger.Info("Starting index stream", "url", s.url)
	go s.loop(ctx)
}

// Updates returns the channel of received updates.
func (s *Stream) Updates() <-chan Update {
	return s.updates
}

// Close stops the loop and closes the connection.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.closed) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Stream) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			s.logger.Error("Failed to connect to index stream", "error", err)

			jitter := time.Duration(rand.Int63n(int64(s.reconnectDelay)/2 + 1)) // #nosec G404 -- jitter only
			wait := s.reconnectDelay + jitter
			s.logger.Warn("Reconnecting after backoff", "backoff", wait.String())

			select {
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			case <-time.After(wait):
				s.reconnectDelay *= 2
				if s.reconnectDelay > maxReconnectBackoff {
					s.reconnectDelay = maxReconnectBackoff
				}
				continue
			}
		}

		s.reconnectDelay = initialReconnectBackoff

		if err := s.readLoop(ctx); err != nil {
			s.logger.Warn("Index stream read error", "error", err)
		}
	}
}

func (s *Stream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	if err := conn.WriteJSON(subscribeMessage{Type: "subscribe", Underlyings: s.underlyings}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("Index stream connected", "underlyings", s.underlyings)
	return nil
}

func (s *Stream) readLoop(ctx context.Context) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return ErrNoConnection
	}
	defer conn.Close()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	messageCh := make(chan []byte, 10)
	errorCh := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				errorCh <- err
				return
			}
			messageCh <- msg
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return nil
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		case err := <-errorCh:
			return err
		case raw := <-messageCh:
			u, ok, err := decodeUpdate(raw)
			if err != nil {
				s.logger.Warn("Invalid stream message", "error", err)
				continue
			}
			if !ok {
				continue
			}
			select {
			case s.updates <- u:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// decodeUpdate parses a stream message. Acks and pongs yield ok == false.
func decodeUpdate(raw []byte) (Update, bool, error) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Update{}, false, err
	}
	switch msg.Type {
	case "index_update":
		u := msg.Index
		if ts, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
			u.Timestamp = ts
		}
		return u, true, nil
	case "error":
		return Update{}, false, fmt.Errorf("%w: %s", ErrStreamError, msg.Error)
	default:
		return Update{}, false, nil
	}
}
