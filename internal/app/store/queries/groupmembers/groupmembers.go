package groupmembers

import (
	"context"

	"github.com/dalemusser/travelsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// GroupMember is a membership row joined with the member's user record.
// User is nil when the user document is missing.
type GroupMember struct {
	models.GroupMembership `bson:",inline"`
	User                   *models.User `bson:"user,omitempty"`
}

// Lister runs the membership/user join against a database.
type Lister struct {
	db *mongo.Database
}

func NewLister(db *mongo.Database) *Lister {
	return &Lister{db: db}
}

// ListGroupMembers implements the presence source for a group.
func (l *Lister) ListGroupMembers(ctx context.Context, groupID primitive.ObjectID) ([]GroupMember, error) {
	return ListGroupMembers(ctx, l.db, groupID)
}

// ListGroupMembers returns every membership of a group with the user's
// display fields, admins first and then in join order.
func ListGroupMembers(ctx context.Context, db *mongo.Database, groupID primitive.ObjectID) ([]GroupMember, error) {
	pipe := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"group_id": groupID}}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         "users",
			"localField":   "user_id",
			"foreignField": "_id",
			"as":           "user",
		}}},
		bson.D{{Key: "$unwind", Value: bson.M{"path": "$user", "preserveNullAndEmptyArrays": true}}},
		bson.D{{Key: "$addFields", Value: bson.M{
			"role_rank": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$role", models.RoleAdmin}}, 0, 1,
			}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "role_rank", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "_id", Value: 1},
		}}},
		bson.D{{Key: "$project", Value: bson.M{"role_rank": 0, "user.password_hash": 0}}},
	}

	cur, err := db.Collection("group_memberships").Aggregate(ctx, pipe)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []GroupMember{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
