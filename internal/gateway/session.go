package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/config"
	"github.com/Gopher0727/PropChat/internal/models"
	logger "github.com/Gopher0727/PropChat/middleware/log"
	"github.com/Gopher0727/PropChat/pkg/apperr"
)

// Conn is the part of *websocket.Conn a session depends on.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session is one authenticated real-time connection bound to a user.
// Commands are read and handled on a single goroutine, so they are
// processed in arrival order; outbound events and pings are written by a
// second goroutine.
type Session struct {
	ID   string
	User *models.User

	conn   Conn
	send   chan []byte
	cfg    config.WebsocketConfig
	ctx    context.Context
	cancel context.CancelFunc
	logger *logger.Logger

	// mu protects closed and the send channel close
	mu     sync.Mutex
	closed bool
}

func newSession(parent context.Context, id string, user *models.User, conn Conn, cfg config.WebsocketConfig, l *logger.Logger) *Session {
	ctx := logger.WithSessionID(logger.WithUserID(parent, user.ID), id)
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		ID:     id,
		User:   user,
		conn:   conn,
		send:   make(chan []byte, cfg.SendBuffer),
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		logger: l.WithContext(ctx),
	}
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// enqueue never blocks; it reports false when the buffer is full or the
// session is closed.
func (s *Session) enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// Send encodes an event and queues it for this session only.
func (s *Session) Send(event Event) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("encode event failed", zap.String("type", event.Type), zap.Error(err))
		return false
	}
	if !s.enqueue(payload) {
		s.logger.Warn("session send buffer full, dropping reply", zap.String("type", event.Type))
		return false
	}
	return true
}

// Close stops the write pump, which then closes the connection. Safe to call
// more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	close(s.send)
}

func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// readPump reads commands until the connection fails, the peer closes it, or
// no pong arrives within PongWait. handle is called synchronously per frame.
func (s *Session) readPump(handle func(*Session, Command), onClose func(*Session)) {
	defer onClose(s)

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("connection lost", zap.Error(err))
			}
			return
		}
		// 任何入站帧都视为存活
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type == "" {
			s.Send(errorEvent(cmd.ID, apperr.Validation("malformed command")))
			continue
		}
		handle(s, cmd)
	}
}

// writePump drains the send buffer and pings every PingPeriod.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}
