package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	messagestore "github.com/dalemusser/travelsync/internal/app/store/messages"
	"github.com/dalemusser/travelsync/internal/app/store/queries/groupmembers"
	"github.com/dalemusser/travelsync/internal/app/system/hub"
	"github.com/dalemusser/travelsync/internal/app/system/notify"
	"github.com/dalemusser/travelsync/internal/app/system/routeinfo"
	"github.com/dalemusser/travelsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type memberKey struct{ group, user primitive.ObjectID }

type routeStatus struct {
	eta      int
	deviated bool
}

// fakeStore stands in for the membership store, the snapshot join and the
// user directory.
type fakeStore struct {
	mu       sync.Mutex
	users    map[primitive.ObjectID]models.User
	rows     map[memberKey]*models.GroupMembership
	order    []memberKey
	statuses map[memberKey]routeStatus
	failAll  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[primitive.ObjectID]models.User),
		rows:     make(map[memberKey]*models.GroupMembership),
		statuses: make(map[memberKey]routeStatus),
	}
}

var errStoreDown = errors.New("store down")

func (f *fakeStore) addUser(name string) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := models.User{ID: primitive.NewObjectID(), FullName: name, Email: name + "@example.com"}
	f.users[u.ID] = u
	return u
}

func (f *fakeStore) addMember(groupID, userID primitive.ObjectID, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.row(groupID, userID).Role = role
}

// row returns the membership, creating it as an upsert would. Callers hold mu.
func (f *fakeStore) row(groupID, userID primitive.ObjectID) *models.GroupMembership {
	k := memberKey{groupID, userID}
	if m, ok := f.rows[k]; ok {
		return m
	}
	m := &models.GroupMembership{
		ID: primitive.NewObjectID(), GroupID: groupID, UserID: userID,
		Role: models.RoleMember, CreatedAt: time.Now(),
	}
	f.rows[k] = m
	f.order = append(f.order, k)
	return m
}

func (f *fakeStore) get(groupID, userID primitive.ObjectID) (models.GroupMembership, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[memberKey{groupID, userID}]
	if !ok {
		return models.GroupMembership{}, false
	}
	return *m, true
}

func (f *fakeStore) Exists(_ context.Context, groupID, userID primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[memberKey{groupID, userID}]
	return ok, nil
}

func (f *fakeStore) MarkOnline(_ context.Context, groupID, userID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	f.row(groupID, userID).IsOnline = true
	return nil
}

func (f *fakeStore) MarkOffline(_ context.Context, groupID, userID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	if m, ok := f.rows[memberKey{groupID, userID}]; ok {
		m.IsOnline = false
	}
	return nil
}

func (f *fakeStore) UpdateLocation(_ context.Context, groupID, userID primitive.ObjectID, lat, lng float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	m := f.row(groupID, userID)
	m.IsOnline = true
	m.LastLocation = &models.LastLocation{Lat: lat, Lng: lng, UpdatedAt: time.Now()}
	return nil
}

func (f *fakeStore) SetRouteStatus(_ context.Context, groupID, userID primitive.ObjectID, eta int, deviated bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[memberKey{groupID, userID}] = routeStatus{eta: eta, deviated: deviated}
	return nil
}

func (f *fakeStore) ListGroupMembers(_ context.Context, groupID primitive.ObjectID) ([]groupmembers.GroupMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStoreDown
	}
	out := []groupmembers.GroupMember{}
	for _, k := range f.order {
		if k.group != groupID {
			continue
		}
		gm := groupmembers.GroupMember{GroupMembership: *f.rows[k]}
		if u, ok := f.users[k.user]; ok {
			gm.User = &u
		}
		out = append(out, gm)
	}
	return out, nil
}

func (f *fakeStore) GetByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return models.User{}, mongo.ErrNoDocuments
	}
	return u, nil
}

type fakeMessages struct {
	mu    sync.Mutex
	users *fakeStore
	msgs  []models.GroupMessage
}

func (f *fakeMessages) Append(_ context.Context, m models.GroupMessage) (models.GroupMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = primitive.NewObjectID()
	m.CreatedAt = time.Now().UTC()
	f.msgs = append(f.msgs, m)
	return m, nil
}

func (f *fakeMessages) ListRecent(ctx context.Context, groupID primitive.ObjectID, limit int) ([]messagestore.Entry, error) {
	f.mu.Lock()
	var inGroup []models.GroupMessage
	for _, m := range f.msgs {
		if m.GroupID == groupID {
			inGroup = append(inGroup, m)
		}
	}
	f.mu.Unlock()

	if len(inGroup) > limit {
		inGroup = inGroup[len(inGroup)-limit:]
	}
	out := []messagestore.Entry{}
	for _, m := range inGroup {
		e := messagestore.Entry{GroupMessage: m}
		if u, err := f.users.GetByID(ctx, m.FromUserID); err == nil {
			e.Sender = &u
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeGroups map[primitive.ObjectID]models.Group

func (f fakeGroups) GetByID(_ context.Context, id primitive.ObjectID) (models.Group, error) {
	g, ok := f[id]
	if !ok {
		return models.Group{}, mongo.ErrNoDocuments
	}
	return g, nil
}

type fakeRoutes struct {
	enabled  bool
	duration float64
	err      error
}

func (f fakeRoutes) Enabled() bool { return f.enabled }

func (f fakeRoutes) GetRoute(context.Context, routeinfo.Point, routeinfo.Point) (routeinfo.Route, error) {
	return routeinfo.Route{DurationSeconds: f.duration}, f.err
}

type testEnv struct {
	svc      *Service
	hub      *hub.Hub
	store    *fakeStore
	messages *fakeMessages
	groups   fakeGroups
}

func newTestEnv(t *testing.T, cfg Config, routes RouteProvider) *testEnv {
	t.Helper()
	store := newFakeStore()
	msgs := &fakeMessages{users: store}
	groups := fakeGroups{}
	h := hub.New(zap.NewNop())
	svc := NewService(Deps{
		Members:   store,
		Messages:  msgs,
		Groups:    groups,
		Users:     store,
		Snapshots: store,
		Routes:    routes,
		Hub:       h,
	}, cfg, notify.NewPolicy(0, 0), zap.NewNop())
	return &testEnv{svc: svc, hub: h, store: store, messages: msgs, groups: groups}
}

type frame struct {
	Event string
	Data  json.RawMessage
}

// drain returns every frame queued for s so far.
func drain(t *testing.T, s *Session) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case raw := <-s.send:
			var env hub.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("bad frame %s: %v", raw, err)
			}
			out = append(out, frame{Event: env.Event, Data: env.Data})
		default:
			return out
		}
	}
}

func events(frames []frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Event)
	}
	return out
}

func decodeData(t *testing.T, f frame, dst any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, dst); err != nil {
		t.Fatalf("decode %s data: %v", f.Event, err)
	}
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
