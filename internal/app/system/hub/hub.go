// Package hub is the in-process registry of live realtime sessions and the
// group rooms they are subscribed to.
//
// Rooms are keyed by group id. The hub also counts, per (group, user), how
// many live sessions are subscribed, so presence can be derived as
// "online while at least one session remains".
//
// Fan-out never blocks: each frame is handed to the subscriber's bounded
// queue and dropped for that subscriber alone when the queue is full.
package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Subscriber is one live connection as the hub sees it.
type Subscriber interface {
	SessionID() string
	UserID() primitive.ObjectID
	// Enqueue queues a frame without blocking. It returns false if the
	// frame was not accepted (queue full or session closing).
	Enqueue(frame []byte) bool
	Close()
}

// Envelope is the wire frame for every server-to-client event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode marshals data once into a frame for event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type presenceKey struct {
	group primitive.ObjectID
	user  primitive.ObjectID
}

// Stats is a point-in-time count for health reporting.
type Stats struct {
	Sessions int `json:"sessions"`
	Groups   int `json:"groups"`
	// Dropped counts frames refused by full queues since start.
	Dropped int64 `json:"dropped"`
}

type Hub struct {
	mu       sync.RWMutex
	sessions map[string]Subscriber
	rooms    map[primitive.ObjectID]map[string]Subscriber
	refs     map[presenceKey]int
	dropped  atomic.Int64
	log      *zap.Logger
}

func New(logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]Subscriber),
		rooms:    make(map[primitive.ObjectID]map[string]Subscriber),
		refs:     make(map[presenceKey]int),
		log:      logger,
	}
}

// Register records a newly authenticated session.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.sessions[s.SessionID()] = s
	h.mu.Unlock()
}

// Unregister forgets a session. Callers Leave its rooms first.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	delete(h.sessions, s.SessionID())
	h.mu.Unlock()
}

// Join subscribes s to groupID. first is true when s is the only live
// session of its user in that group. Joining twice is a no-op.
func (h *Hub) Join(groupID primitive.ObjectID, s Subscriber) (first bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[groupID]
	if room == nil {
		room = make(map[string]Subscriber)
		h.rooms[groupID] = room
	}
	if _, ok := room[s.SessionID()]; ok {
		return false
	}
	room[s.SessionID()] = s

	k := presenceKey{group: groupID, user: s.UserID()}
	h.refs[k]++
	return h.refs[k] == 1
}

// Leave unsubscribes s from groupID. last is true when no other live session
// of the same user remains in the group. Leaving a room s never joined
// returns false.
func (h *Hub) Leave(groupID primitive.ObjectID, s Subscriber) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[groupID]
	if _, ok := room[s.SessionID()]; !ok {
		return false
	}
	delete(room, s.SessionID())
	if len(room) == 0 {
		delete(h.rooms, groupID)
	}

	k := presenceKey{group: groupID, user: s.UserID()}
	h.refs[k]--
	if h.refs[k] <= 0 {
		delete(h.refs, k)
		return true
	}
	return false
}

// IsLive reports whether any session of userID is subscribed to groupID.
func (h *Hub) IsLive(groupID, userID primitive.ObjectID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.refs[presenceKey{group: groupID, user: userID}] > 0
}

// Broadcast sends event to every session subscribed to groupID and returns
// how many accepted the frame.
func (h *Hub) Broadcast(groupID primitive.ObjectID, event string, data any) int {
	return h.BroadcastExcept(groupID, "", event, data)
}

// BroadcastExcept is Broadcast skipping the session exceptSessionID.
func (h *Hub) BroadcastExcept(groupID primitive.ObjectID, exceptSessionID, event string, data any) int {
	frame, err := Encode(event, data)
	if err != nil {
		h.log.Error("encode broadcast failed", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.rooms[groupID]))
	for id, s := range h.rooms[groupID] {
		if id != exceptSessionID {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Enqueue(frame) {
			delivered++
			continue
		}
		h.dropped.Add(1)
		h.log.Warn("dropped frame for slow session",
			zap.String("event", event),
			zap.String("group_id", groupID.Hex()),
			zap.String("session_id", s.SessionID()))
	}
	return delivered
}

// Send delivers event to a single session.
func (h *Hub) Send(s Subscriber, event string, data any) bool {
	frame, err := Encode(event, data)
	if err != nil {
		h.log.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return false
	}
	if !s.Enqueue(frame) {
		h.dropped.Add(1)
		h.log.Warn("dropped frame for slow session",
			zap.String("event", event),
			zap.String("session_id", s.SessionID()))
		return false
	}
	return true
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Sessions: len(h.sessions), Groups: len(h.rooms), Dropped: h.dropped.Load()}
}

// CloseAll closes every registered session. Each session's own teardown
// then runs Leave/Unregister.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]Subscriber, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()

	for _, s := range all {
		s.Close()
	}
	h.log.Info("closed all realtime sessions", zap.Int("count", len(all)))
}
