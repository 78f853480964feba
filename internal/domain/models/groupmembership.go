// internal/domain/models/groupmembership.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// IsValidRole reports whether role is one of the membership roles.
func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleMember
}

// LastLocation is the most recent coordinate a member reported.
type LastLocation struct {
	Lat       float64   `bson:"lat" json:"lat"`
	Lng       float64   `bson:"lng" json:"lng"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// GroupMembership is the authoritative join between users and groups.
// Exactly one document per (group_id, user_id). Memberships are never
// hard-deleted by the realtime core; presence is the is_online flag.
type GroupMembership struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GroupID        primitive.ObjectID `bson:"group_id" json:"group_id"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	Role           string             `bson:"role" json:"role"` // "admin" | "member"
	IsOnline       bool               `bson:"is_online" json:"is_online"`
	LastLocation   *LastLocation      `bson:"last_location,omitempty" json:"last_location,omitempty"`
	ETAMinutes     int                `bson:"eta_minutes" json:"eta_minutes"`
	RouteDeviation bool               `bson:"route_deviation" json:"route_deviation"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}
