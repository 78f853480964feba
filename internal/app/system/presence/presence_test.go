package presence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	messagestore "github.com/dalemusser/travelsync/internal/app/store/messages"
	"github.com/dalemusser/travelsync/internal/app/store/queries/groupmembers"
	"github.com/dalemusser/travelsync/internal/app/system/notify"
	"github.com/dalemusser/travelsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type stubSource struct {
	rows []groupmembers.GroupMember
	err  error
}

func (s stubSource) ListGroupMembers(context.Context, primitive.ObjectID) ([]groupmembers.GroupMember, error) {
	return s.rows, s.err
}

type sent struct {
	group  primitive.ObjectID
	except string
	event  string
	data   any
}

type recorder struct{ sent []sent }

func (r *recorder) Broadcast(g primitive.ObjectID, event string, data any) int {
	return r.BroadcastExcept(g, "", event, data)
}

func (r *recorder) BroadcastExcept(g primitive.ObjectID, except, event string, data any) int {
	r.sent = append(r.sent, sent{group: g, except: except, event: event, data: data})
	return 1
}

func TestNewMemberSnapshot_NoLocation(t *testing.T) {
	m := groupmembers.GroupMember{
		GroupMembership: models.GroupMembership{
			ID: primitive.NewObjectID(), GroupID: primitive.NewObjectID(), UserID: primitive.NewObjectID(),
			Role: models.RoleMember, IsOnline: true,
		},
		User: &models.User{FullName: "Asha", Email: "asha@example.com"},
	}

	raw, err := json.Marshal(NewMemberSnapshot(m))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	_ = json.Unmarshal(raw, &got)

	if got["lat"] != nil || got["lng"] != nil {
		t.Errorf("lat/lng should be null, got %v/%v", got["lat"], got["lng"])
	}
	if got["name"] != "Asha" || got["isOnline"] != true || got["role"] != "member" {
		t.Errorf("unexpected snapshot %s", raw)
	}
	if got["membershipId"] != m.ID.Hex() {
		t.Errorf("membershipId: got %v", got["membershipId"])
	}
}

func TestNewMemberSnapshot_WithLocationAndMissingUser(t *testing.T) {
	m := groupmembers.GroupMember{GroupMembership: models.GroupMembership{
		LastLocation: &models.LastLocation{Lat: 10, Lng: 20},
	}}
	s := NewMemberSnapshot(m)
	if s.Lat == nil || *s.Lat != 10 || s.Lng == nil || *s.Lng != 20 {
		t.Errorf("location: got %v/%v", s.Lat, s.Lng)
	}
	if s.Name != "" || s.Email != "" {
		t.Error("missing user should leave display fields empty")
	}
}

func TestNewMessage(t *testing.T) {
	text := "hello"
	sender := &models.User{ID: primitive.NewObjectID(), FullName: "Ravi", Email: "ravi@example.com"}
	m := models.GroupMessage{
		ID: primitive.NewObjectID(), GroupID: primitive.NewObjectID(), FromUserID: sender.ID,
		Type: models.MessageText, Text: &text, CreatedAt: time.Now().UTC(),
	}

	raw, _ := json.Marshal(NewMessage(m, sender))
	var got map[string]any
	_ = json.Unmarshal(raw, &got)

	if got["text"] != "hello" || got["location"] != nil || got["messageType"] != "text" {
		t.Errorf("unexpected message %s", raw)
	}
	from, _ := got["fromUser"].(map[string]any)
	if from["name"] != "Ravi" || from["id"] != sender.ID.Hex() {
		t.Errorf("fromUser: got %v", from)
	}
}

func TestFromEntries_NeverNil(t *testing.T) {
	out := FromEntries(nil)
	if out == nil {
		t.Fatal("expected empty slice, got nil")
	}
	raw, _ := json.Marshal(out)
	if string(raw) != "[]" {
		t.Errorf("got %s, want []", raw)
	}

	loc := models.LatLng{Lat: 1, Lng: 2}
	entries := []messagestore.Entry{{GroupMessage: models.GroupMessage{Type: models.MessageLocation, Location: &loc}}}
	if got := FromEntries(entries); got[0].Location == nil || got[0].Location.Lng != 2 {
		t.Errorf("location: got %+v", got[0].Location)
	}
}

func TestBroadcastMembers(t *testing.T) {
	rec := &recorder{}
	g := primitive.NewObjectID()
	src := stubSource{rows: []groupmembers.GroupMember{{GroupMembership: models.GroupMembership{GroupID: g, IsOnline: true}}}}
	e := New(src, rec, zap.NewNop())

	if err := e.BroadcastMembers(context.Background(), g); err != nil {
		t.Fatalf("BroadcastMembers: %v", err)
	}
	if len(rec.sent) != 1 || rec.sent[0].event != EventGroupMembers || rec.sent[0].group != g {
		t.Fatalf("unexpected broadcasts %+v", rec.sent)
	}
	if snap := rec.sent[0].data.([]MemberSnapshot); len(snap) != 1 || !snap[0].IsOnline {
		t.Errorf("snapshot: got %+v", snap)
	}
}

func TestBroadcastLocations_StoreErrorSkips(t *testing.T) {
	rec := &recorder{}
	e := New(stubSource{err: errors.New("boom")}, rec, zap.NewNop())

	if err := e.BroadcastLocations(context.Background(), primitive.NewObjectID()); err == nil {
		t.Error("expected error")
	}
	if len(rec.sent) != 0 {
		t.Errorf("nothing should be broadcast on store error, got %+v", rec.sent)
	}
}

func TestBroadcastAlertAndTyping(t *testing.T) {
	rec := &recorder{}
	e := New(stubSource{}, rec, zap.NewNop())
	g, u := primitive.NewObjectID(), primitive.NewObjectID()

	e.BroadcastAlert(g, "s1", notify.MemberJoined("Asha"))
	e.BroadcastTyping(g, "s2", u, true)

	if rec.sent[0].event != EventGroupAlert || rec.sent[0].except != "s1" {
		t.Errorf("alert: got %+v", rec.sent[0])
	}
	tp := rec.sent[1].data.(TypingPayload)
	if rec.sent[1].except != "s2" || tp.UserID != u.Hex() || !tp.IsTyping {
		t.Errorf("typing: got %+v", rec.sent[1])
	}
}
