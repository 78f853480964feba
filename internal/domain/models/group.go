// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Place is a named coordinate (trip destination or meeting point).
type Place struct {
	Name string  `bson:"name,omitempty" json:"name,omitempty"`
	Lat  float64 `bson:"lat" json:"lat"`
	Lng  float64 `bson:"lng" json:"lng"`
}

// Group is a travel party.
//
// NOTE:
//   - Members are not embedded here; the group_memberships collection is
//     authoritative for who belongs to a group and whether they are online.
type Group struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	Name         string             `bson:"name" json:"name"`
	NameCI       string             `bson:"name_ci" json:"-"`
	CreatedBy    primitive.ObjectID `bson:"created_by" json:"created_by"`
	Destination  *Place             `bson:"destination,omitempty" json:"destination,omitempty"`
	MeetingPoint *Place             `bson:"meeting_point,omitempty" json:"meeting_point,omitempty"`

	Status string `bson:"status" json:"status"` // "active" | "completed"

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
