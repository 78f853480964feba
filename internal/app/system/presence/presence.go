// Package presence recomputes a group's member snapshot from durable state
// and fans it, along with messages and alerts, out to the group's room.
//
// Snapshots are always complete lists, never diffs.
package presence

import (
	"context"
	"time"

	messagestore "github.com/dalemusser/travelsync/internal/app/store/messages"
	"github.com/dalemusser/travelsync/internal/app/store/queries/groupmembers"
	"github.com/dalemusser/travelsync/internal/app/system/notify"
	"github.com/dalemusser/travelsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Server-to-client event names.
const (
	EventInitialMessages = "initialMessages"
	EventGroupMembers    = "groupMembers"
	EventGroupLocations  = "groupLocations"
	EventNewMessage      = "newMessage"
	EventGroupAlert      = "groupAlert"
	EventTyping          = "typing"
)

// SnapshotSource lists a group's memberships joined with user fields.
type SnapshotSource interface {
	ListGroupMembers(ctx context.Context, groupID primitive.ObjectID) ([]groupmembers.GroupMember, error)
}

// Broadcaster delivers an event to a group's subscribers.
type Broadcaster interface {
	Broadcast(groupID primitive.ObjectID, event string, data any) int
	BroadcastExcept(groupID primitive.ObjectID, exceptSessionID, event string, data any) int
}

// MemberSnapshot is one row of a groupMembers / groupLocations payload.
type MemberSnapshot struct {
	MembershipID string   `json:"membershipId"`
	GroupID      string   `json:"groupId"`
	UserID       string   `json:"userId"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	IsOnline     bool     `json:"isOnline"`
	Role         string   `json:"role"`
}

// UserRef is the sender block of a Message.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Location is the {lat,lng} block of a location Message.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Message is the wire form of a GroupMessage.
type Message struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"groupId"`
	FromUser    *UserRef  `json:"fromUser"`
	Text        *string   `json:"text"`
	Location    *Location `json:"location"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewMessage builds the wire form of m. sender may be nil.
func NewMessage(m models.GroupMessage, sender *models.User) Message {
	out := Message{
		ID:          m.ID.Hex(),
		GroupID:     m.GroupID.Hex(),
		Text:        m.Text,
		MessageType: m.Type,
		CreatedAt:   m.CreatedAt,
	}
	if m.Location != nil {
		out.Location = &Location{Lat: m.Location.Lat, Lng: m.Location.Lng}
	}
	if sender != nil {
		out.FromUser = &UserRef{ID: sender.ID.Hex(), Name: sender.FullName, Email: sender.Email}
	} else {
		out.FromUser = &UserRef{ID: m.FromUserID.Hex()}
	}
	return out
}

// FromEntries converts a history page. The result is never nil.
func FromEntries(entries []messagestore.Entry) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, NewMessage(e.GroupMessage, e.Sender))
	}
	return out
}

// NewMemberSnapshot flattens a joined membership row.
func NewMemberSnapshot(m groupmembers.GroupMember) MemberSnapshot {
	s := MemberSnapshot{
		MembershipID: m.ID.Hex(),
		GroupID:      m.GroupID.Hex(),
		UserID:       m.UserID.Hex(),
		IsOnline:     m.IsOnline,
		Role:         m.Role,
	}
	if m.User != nil {
		s.Name = m.User.FullName
		s.Email = m.User.Email
	}
	if loc := m.LastLocation; loc != nil {
		lat, lng := loc.Lat, loc.Lng
		s.Lat, s.Lng = &lat, &lng
	}
	return s
}

type Engine struct {
	src SnapshotSource
	out Broadcaster
	log *zap.Logger
}

func New(src SnapshotSource, out Broadcaster, logger *zap.Logger) *Engine {
	return &Engine{src: src, out: out, log: logger}
}

// Snapshot recomputes the member list for groupID from the store.
func (e *Engine) Snapshot(ctx context.Context, groupID primitive.ObjectID) ([]MemberSnapshot, error) {
	rows, err := e.src.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]MemberSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, NewMemberSnapshot(r))
	}
	return out, nil
}

// BroadcastMembers sends a fresh groupMembers snapshot. On a store error
// nothing is sent.
func (e *Engine) BroadcastMembers(ctx context.Context, groupID primitive.ObjectID) error {
	return e.broadcastSnapshot(ctx, groupID, EventGroupMembers)
}

// BroadcastLocations sends a fresh groupLocations snapshot.
func (e *Engine) BroadcastLocations(ctx context.Context, groupID primitive.ObjectID) error {
	return e.broadcastSnapshot(ctx, groupID, EventGroupLocations)
}

func (e *Engine) broadcastSnapshot(ctx context.Context, groupID primitive.ObjectID, event string) error {
	snap, err := e.Snapshot(ctx, groupID)
	if err != nil {
		e.log.Warn("presence snapshot failed; skipping broadcast",
			zap.String("event", event),
			zap.String("group_id", groupID.Hex()),
			zap.Error(err))
		return err
	}
	n := e.out.Broadcast(groupID, event, snap)
	e.log.Debug("presence broadcast",
		zap.String("event", event),
		zap.String("group_id", groupID.Hex()),
		zap.Int("members", len(snap)),
		zap.Int("delivered", n))
	return nil
}

// BroadcastMessage sends a newMessage to the whole group.
func (e *Engine) BroadcastMessage(groupID primitive.ObjectID, m Message) int {
	return e.out.Broadcast(groupID, EventNewMessage, m)
}

// BroadcastAlert sends a groupAlert to the group, skipping exceptSessionID
// if it is non-empty.
func (e *Engine) BroadcastAlert(groupID primitive.ObjectID, exceptSessionID string, a notify.Alert) int {
	return e.out.BroadcastExcept(groupID, exceptSessionID, EventGroupAlert, a)
}

// TypingPayload is relayed to everyone but the typist.
type TypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// BroadcastTyping relays a typing flag to the group, skipping the sender.
func (e *Engine) BroadcastTyping(groupID primitive.ObjectID, senderSessionID string, userID primitive.ObjectID, isTyping bool) int {
	return e.out.BroadcastExcept(groupID, senderSessionID, EventTyping, TypingPayload{UserID: userID.Hex(), IsTyping: isTyping})
}
