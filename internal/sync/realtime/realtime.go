// Package realtime delivers the server's row-level change feed to store
// handlers over a WebSocket scoped to the authenticated user.
package realtime

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"taskmate/backend/internal/hub"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// Handler consumes one change event. Handlers run on the read loop goroutine
// in transport delivery order; there is no further ordering guarantee.
type Handler func(hub.ChangeEvent)

// Subscriber dials the change feed and dispatches events by table.
type Subscriber struct {
	baseURL string
	token   string
	log     *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New creates a subscriber for the API served under baseURL (e.g.
// "http://localhost:8080/api/v1").
func New(baseURL, token string, log *zap.Logger) *Subscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		token:    token,
		log:      log,
		handlers: make(map[string][]Handler),
	}
}

// On registers a handler for one table's events. Registration is only safe
// before Subscribe.
func (s *Subscriber) On(table string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[table] = append(s.handlers[table], h)
}

// Subscribe dials the feed and starts the read loop. It returns an
// unsubscribe function that closes the connection; calling it more than once
// is safe.
func (s *Subscriber) Subscribe(ctx context.Context) (func(), error) {
	wsURL, err := s.feedURL()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		})
	}

	go s.readLoop(conn)

	return unsubscribe, nil
}

func (s *Subscriber) readLoop(conn *websocket.Conn) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("change feed closed", zap.Error(err))
			}
			return
		}

		var event hub.ChangeEvent
		if err := json.Unmarshal(message, &event); err != nil {
			s.log.Warn("malformed change event", zap.Error(err))
			continue
		}

		s.mu.RLock()
		handlers := s.handlers[event.Table]
		s.mu.RUnlock()

		for _, h := range handlers {
			h(event)
		}
	}
}

func (s *Subscriber) feedURL() (string, error) {
	u, err := url.Parse(s.baseURL + "/realtime")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
