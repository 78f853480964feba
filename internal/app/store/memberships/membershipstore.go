// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/travelsync/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists (group, user) memberships. All presence writes are
// per-document upserts; concurrent writers are last-write-wins.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:   db.Collection("group_memberships"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

var errBadRole = errors.New(`role must be "admin" or "member"`)

var ErrDuplicateMembership = errors.New("user is already a member of this group")

func key(groupID, userID primitive.ObjectID) bson.M {
	return bson.M{"group_id": groupID, "user_id": userID}
}

// onInsert holds the defaults written when an upsert creates the row.
func onInsert(now time.Time) bson.M {
	return bson.M{
		"role":            models.RoleMember,
		"eta_minutes":     0,
		"route_deviation": false,
		"created_at":      now,
	}
}

// Add creates a membership with an explicit role (group creation, accepted invite).
func (s *Store) Add(ctx context.Context, groupID, userID primitive.ObjectID, role string) (models.GroupMembership, error) {
	if !models.IsValidRole(role) {
		return models.GroupMembership{}, errBadRole
	}
	now := s.now()
	m := models.GroupMembership{
		ID:        primitive.NewObjectID(),
		GroupID:   groupID,
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.GroupMembership{}, ErrDuplicateMembership
		}
		return models.GroupMembership{}, err
	}
	return m, nil
}

// Get returns the membership for (groupID, userID) or mongo.ErrNoDocuments.
func (s *Store) Get(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMembership, error) {
	var m models.GroupMembership
	if err := s.c.FindOne(ctx, key(groupID, userID)).Decode(&m); err != nil {
		return models.GroupMembership{}, err
	}
	return m, nil
}

// Exists checks if a membership exists for the given group and user.
func (s *Store) Exists(ctx context.Context, groupID, userID primitive.ObjectID) (bool, error) {
	err := s.c.FindOne(ctx, key(groupID, userID)).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkOnline upserts the membership with is_online=true. A missing row is
// created with role "member".
func (s *Store) MarkOnline(ctx context.Context, groupID, userID primitive.ObjectID) error {
	now := s.now()
	_, err := s.c.UpdateOne(ctx, key(groupID, userID), bson.M{
		"$set":         bson.M{"is_online": true, "updated_at": now},
		"$setOnInsert": onInsert(now),
	}, options.Update().SetUpsert(true))
	return err
}

// MarkOffline flips is_online to false. It never creates a row.
func (s *Store) MarkOffline(ctx context.Context, groupID, userID primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx, key(groupID, userID), bson.M{
		"$set": bson.M{"is_online": false, "updated_at": s.now()},
	})
	return err
}

// MarkOfflineIfStale flips is_online to false only while the row's last
// presence write is still older than before. It reports whether the row
// changed; a join or location write after the stale listing wins.
func (s *Store) MarkOfflineIfStale(ctx context.Context, groupID, userID primitive.ObjectID, before time.Time) (bool, error) {
	filter := key(groupID, userID)
	filter["is_online"] = true
	filter["updated_at"] = bson.M{"$lt": before}
	res, err := s.c.UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{"is_online": false, "updated_at": s.now()},
	})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// UpdateLocation records the member's last location and marks them online.
func (s *Store) UpdateLocation(ctx context.Context, groupID, userID primitive.ObjectID, lat, lng float64) error {
	now := s.now()
	_, err := s.c.UpdateOne(ctx, key(groupID, userID), bson.M{
		"$set": bson.M{
			"last_location": models.LastLocation{Lat: lat, Lng: lng, UpdatedAt: now},
			"is_online":     true,
			"updated_at":    now,
		},
		"$setOnInsert": onInsert(now),
	}, options.Update().SetUpsert(true))
	return err
}

// SetRouteStatus stores the latest ETA estimate and off-route flag.
func (s *Store) SetRouteStatus(ctx context.Context, groupID, userID primitive.ObjectID, etaMinutes int, deviated bool) error {
	_, err := s.c.UpdateOne(ctx, key(groupID, userID), bson.M{
		"$set": bson.M{
			"eta_minutes":     etaMinutes,
			"route_deviation": deviated,
			"updated_at":      s.now(),
		},
	})
	return err
}

// ListByGroup returns all memberships for a group in join order.
func (s *Store) ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.GroupMembership, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"group_id": groupID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var memberships []models.GroupMembership
	if err := cur.All(ctx, &memberships); err != nil {
		return nil, err
	}
	return memberships, nil
}

// ListStaleOnline returns memberships still flagged online whose last
// presence write is older than before.
func (s *Store) ListStaleOnline(ctx context.Context, before time.Time, limit int64) ([]models.GroupMembership, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetProjection(bson.M{"_id": 1, "group_id": 1, "user_id": 1, "is_online": 1, "updated_at": 1})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, bson.M{"is_online": true, "updated_at": bson.M{"$lt": before}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.GroupMembership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
