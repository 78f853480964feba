// internal/app/store/messages/messagestore.go
package messagestore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/travelsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store is the append-only log of group messages. Documents are never
// updated after insert; created_at then _id gives chronological order.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:   db.Collection("group_messages"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

var (
	ErrBadType         = errors.New(`message_type must be "text" or "location"`)
	ErrPayloadMismatch = errors.New("text must be set iff type is text; location iff type is location")
)

// Entry is a message joined with its sender's display fields.
// Sender is nil when the user record no longer exists.
type Entry struct {
	models.GroupMessage `bson:",inline"`
	Sender              *models.User `bson:"sender,omitempty"`
}

func validate(m models.GroupMessage) error {
	switch m.Type {
	case models.MessageText:
		if m.Text == nil || m.Location != nil {
			return ErrPayloadMismatch
		}
	case models.MessageLocation:
		if m.Location == nil || m.Text != nil {
			return ErrPayloadMismatch
		}
	default:
		return ErrBadType
	}
	return nil
}

// Append inserts m, assigning its ID and creation time.
func (s *Store) Append(ctx context.Context, m models.GroupMessage) (models.GroupMessage, error) {
	if err := validate(m); err != nil {
		return models.GroupMessage{}, err
	}
	m.ID = primitive.NewObjectID()
	m.CreatedAt = s.now()
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		return models.GroupMessage{}, err
	}
	return m, nil
}

// ListRecent returns the newest limit messages of a group, ordered
// oldest-first, each joined with its sender.
func (s *Store) ListRecent(ctx context.Context, groupID primitive.ObjectID, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}
	pipe := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"group_id": groupID}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		bson.D{{Key: "$limit", Value: limit}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         "users",
			"localField":   "from_user_id",
			"foreignField": "_id",
			"as":           "sender",
		}}},
		bson.D{{Key: "$unwind", Value: bson.M{"path": "$sender", "preserveNullAndEmptyArrays": true}}},
	}

	cur, err := s.c.Aggregate(ctx, pipe)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Entry{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByGroup returns the number of messages stored for a group.
func (s *Store) CountByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID})
}
