package realtime

import (
	"sync"
	"time"

	"github.com/dalemusser/travelsync/internal/domain/models"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Session is one live connection bound to an authenticated user.
//
// groups is only touched by the connection's read loop and its teardown,
// which run on the same goroutine.
type Session struct {
	id     string
	user   models.User
	groups map[primitive.ObjectID]struct{}

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	limiter *rate.Limiter
	log     *zap.Logger
}

func newSession(id string, user models.User, buffer int, limiter *rate.Limiter, logger *zap.Logger) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		id:      id,
		user:    user,
		groups:  make(map[primitive.ObjectID]struct{}),
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
		limiter: limiter,
		log: logger.With(
			zap.String("session_id", id),
			zap.String("user_id", user.ID.Hex())),
	}
}

func (s *Session) SessionID() string          { return s.id }
func (s *Session) UserID() primitive.ObjectID { return s.user.ID }

// Enqueue queues frame for the write loop without blocking.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Close asks the write loop to send a close frame and drop the connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) subscribed(groupID primitive.ObjectID) bool {
	_, ok := s.groups[groupID]
	return ok
}

// writeLoop owns all writes to conn. It exits, closing conn, when the
// session is closed or a write fails.
func (s *Session) writeLoop(conn *websocket.Conn, writeTimeout, pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug("websocket write failed", zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				s.log.Debug("websocket ping failed", zap.Error(err))
				s.Close()
				return
			}
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeTimeout))
			return
		}
	}
}
