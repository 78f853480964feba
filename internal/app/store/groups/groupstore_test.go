package groupstore_test

import (
	"testing"

	groupstore "github.com/dalemusser/travelsync/internal/app/store/groups"
	"github.com/dalemusser/travelsync/internal/domain/models"
	"github.com/dalemusser/travelsync/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_CreateAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := groupstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	g, err := store.Create(ctx, models.Group{
		Name:        "Goa Trip",
		CreatedBy:   owner,
		Destination: &models.Place{Name: "Goa Beach", Lat: 15.2993, Lng: 74.1240},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if g.Status != "active" {
		t.Errorf("Status: got %q, want %q", g.Status, "active")
	}

	got, err := store.GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Destination == nil || got.Destination.Name != "Goa Beach" {
		t.Errorf("Destination: got %+v", got.Destination)
	}
}

func TestStore_Create_MissingName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := groupstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.Group{Name: "  "}); err != groupstore.ErrMissingName {
		t.Errorf("expected ErrMissingName, got %v", err)
	}
}

func TestStore_SetDestination(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := groupstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, err := store.Create(ctx, models.Group{Name: "Pune Ride", CreatedBy: primitive.NewObjectID()})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dest := &models.Place{Lat: 18.5204, Lng: 73.8567}
	if err := store.SetDestination(ctx, g.ID, dest); err != nil {
		t.Fatalf("SetDestination failed: %v", err)
	}
	got, _ := store.GetByID(ctx, g.ID)
	if got.Destination == nil || got.Destination.Lat != 18.5204 {
		t.Errorf("Destination: got %+v", got.Destination)
	}

	if err := store.SetDestination(ctx, g.ID, nil); err != nil {
		t.Fatalf("clear SetDestination failed: %v", err)
	}
	got, _ = store.GetByID(ctx, g.ID)
	if got.Destination != nil {
		t.Errorf("expected destination cleared, got %+v", got.Destination)
	}

	if err := store.SetDestination(ctx, primitive.NewObjectID(), dest); err != mongo.ErrNoDocuments {
		t.Errorf("expected mongo.ErrNoDocuments, got %v", err)
	}
}
