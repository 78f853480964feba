// internal/domain/models/groupmessage.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message types.
const (
	MessageText     = "text"
	MessageLocation = "location"
)

// LatLng is a bare coordinate pair.
type LatLng struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

// GroupMessage is an append-only chat or location event in a group.
// Text is set iff Type is "text"; Location is set iff Type is "location".
type GroupMessage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GroupID    primitive.ObjectID `bson:"group_id" json:"group_id"`
	FromUserID primitive.ObjectID `bson:"from_user_id" json:"from_user_id"`
	Type       string             `bson:"message_type" json:"message_type"`
	Text       *string            `bson:"text,omitempty" json:"text,omitempty"`
	Location   *LatLng            `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}
