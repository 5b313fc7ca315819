package hub

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsWriteWait bounds each frame write.
	wsWriteWait = 10 * time.Second

	defaultMaxMessageSize = 64 * 1024
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsTransport adapts a gorilla connection to Transport. Frames are written
// only by writePump.
type wsTransport struct {
	conn *websocket.Conn
	send chan []byte
	ping chan struct{}
	done chan struct{}
	once sync.Once
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
		ping: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Send queues data without blocking.
func (t *wsTransport) Send(data []byte) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}
	select {
	case t.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Ping asks writePump to send a ping frame.
func (t *wsTransport) Ping() error {
	select {
	case <-t.done:
		return ErrTransportClosed
	case t.ping <- struct{}{}:
	default:
		// A ping is already pending.
	}
	return nil
}

// Close stops writePump, which sends a close frame and closes the socket.
func (t *wsTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

func (t *wsTransport) writePump() {
	defer t.conn.Close()

	for {
		select {
		case <-t.done:
			//nolint:errcheck // Best-effort close message
			t.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case message := <-t.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-t.ping:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WebSocketHandler serves the hub over WebSocket.
//
// A token may be supplied as the "token" query parameter or a bearer
// Authorization header; an invalid token is refused before the upgrade.
// Without a token the connection starts unauthenticated and may send an
// auth envelope.
type WebSocketHandler struct {
	Hub            *Hub
	MaxMessageSize int64
	Logger         Logger
}

// ServeHTTP upgrades the request and runs the connection's pumps.
func (s *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := s.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token != "" && s.Hub.authn != nil {
		if _, err := s.Hub.authn.Authenticate(r.Context(), token); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	t := newWSTransport(conn)
	connID := s.Hub.Connect(t)
	go t.writePump()

	if token != "" && s.Hub.authn != nil {
		if _, err := s.Hub.Authenticate(context.Background(), connID, token); err != nil {
			logger.Warn("websocket authentication failed after upgrade", "connection", connID, "error", err)
			s.Hub.Disconnect(connID, "authentication failed")
			return
		}
	}

	go s.readPump(connID, t, logger)
}

// readPump feeds inbound frames to the hub in arrival order.
func (s *WebSocketHandler) readPump(connID string, t *wsTransport, logger Logger) {
	defer s.Hub.Disconnect(connID, "read closed")

	limit := s.MaxMessageSize
	if limit <= 0 {
		limit = defaultMaxMessageSize
	}
	t.conn.SetReadLimit(limit)
	t.conn.SetPongHandler(func(string) error {
		s.Hub.Touch(connID)
		return nil
	})

	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "connection", connID, "error", err)
			} else {
				logger.Debug("websocket closed", "connection", connID, "error", err)
			}
			return
		}
		if err := s.Hub.HandleMessage(context.Background(), connID, message); errors.Is(err, ErrConnectionNotFound) {
			return
		}
	}
}
