package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	messagestore "github.com/dalemusser/travelsync/internal/app/store/messages"
	"github.com/dalemusser/travelsync/internal/app/system/htmlsanitize"
	"github.com/dalemusser/travelsync/internal/app/system/hub"
	"github.com/dalemusser/travelsync/internal/app/system/limits"
	"github.com/dalemusser/travelsync/internal/app/system/metrics"
	"github.com/dalemusser/travelsync/internal/app/system/notify"
	"github.com/dalemusser/travelsync/internal/app/system/presence"
	"github.com/dalemusser/travelsync/internal/app/system/routeinfo"
	"github.com/dalemusser/travelsync/internal/app/system/timeouts"
	"github.com/dalemusser/travelsync/internal/domain/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// MembershipStore is the presence side of the membership store.
type MembershipStore interface {
	Exists(ctx context.Context, groupID, userID primitive.ObjectID) (bool, error)
	MarkOnline(ctx context.Context, groupID, userID primitive.ObjectID) error
	MarkOffline(ctx context.Context, groupID, userID primitive.ObjectID) error
	UpdateLocation(ctx context.Context, groupID, userID primitive.ObjectID, lat, lng float64) error
	SetRouteStatus(ctx context.Context, groupID, userID primitive.ObjectID, etaMinutes int, deviated bool) error
}

// MessageStore appends and reads group chat history.
type MessageStore interface {
	Append(ctx context.Context, m models.GroupMessage) (models.GroupMessage, error)
	ListRecent(ctx context.Context, groupID primitive.ObjectID, limit int) ([]messagestore.Entry, error)
}

// GroupStore resolves a group's stored destination.
type GroupStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error)
}

// UserDirectory resolves display fields for a connecting user.
type UserDirectory interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

// RouteProvider estimates travel time to a destination.
type RouteProvider interface {
	Enabled() bool
	GetRoute(ctx context.Context, origin, destination routeinfo.Point) (routeinfo.Route, error)
}

// Config tunes connection handling.
type Config struct {
	HistoryLimit           int
	SendBuffer             int
	WriteTimeout           time.Duration
	PongTimeout            time.Duration
	MaxMessageBytes        int64
	JoinRequiresMembership bool
	// EventRate and EventBurst bound inbound events per session.
	// A non-positive rate disables the limit.
	EventRate  float64
	EventBurst int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:    100,
		SendBuffer:      64,
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		MaxMessageBytes: limits.MaxFrameBytes,
		EventRate:       20,
		EventBurst:      40,
	}
}

// Deps are the collaborators a Service needs.
type Deps struct {
	Members   MembershipStore
	Messages  MessageStore
	Groups    GroupStore
	Users     UserDirectory
	Snapshots presence.SnapshotSource
	Routes    RouteProvider
	Hub       *hub.Hub
	Metrics   *metrics.Realtime
}

// Service runs realtime sessions: event dispatch, presence writes and fan-out.
type Service struct {
	members  MembershipStore
	messages MessageStore
	groups   GroupStore
	users    UserDirectory
	routes   RouteProvider
	hub      *hub.Hub
	presence *presence.Engine
	policy   notify.Policy
	metrics  *metrics.Realtime
	cfg      Config
	log      *zap.Logger

	wg sync.WaitGroup
}

func NewService(d Deps, cfg Config, policy notify.Policy, logger *zap.Logger) *Service {
	def := DefaultConfig()
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	return &Service{
		members:  d.Members,
		messages: d.Messages,
		groups:   d.Groups,
		users:    d.Users,
		routes:   d.Routes,
		hub:      d.Hub,
		presence: presence.New(d.Snapshots, d.Hub, logger),
		policy:   policy,
		metrics:  d.Metrics,
		cfg:      cfg,
		log:      logger,
	}
}

// LookupUser returns display fields for a verified user id.
func (svc *Service) LookupUser(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return svc.users.GetByID(ctx, id)
}

func (svc *Service) newLimiter() *rate.Limiter {
	if svc.cfg.EventRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := svc.cfg.EventBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(svc.cfg.EventRate), burst)
}

// openSession registers a new session for user.
func (svc *Service) openSession(user models.User) *Session {
	s := newSession(uuid.NewString(), user, svc.cfg.SendBuffer, svc.newLimiter(), svc.log)
	svc.hub.Register(s)
	return s
}

// Serve runs a session over conn until the peer goes away or the service
// shuts down. It blocks; call it from the upgrading handler.
func (svc *Service) Serve(conn *websocket.Conn, user models.User) {
	svc.wg.Add(1)
	defer svc.wg.Done()

	s := svc.openSession(user)
	s.log.Info("realtime session opened")

	pingEvery := svc.cfg.PongTimeout * 9 / 10
	if pingEvery <= 0 {
		pingEvery = svc.cfg.PongTimeout
	}
	go s.writeLoop(conn, svc.cfg.WriteTimeout, pingEvery)

	defer func() {
		s.Close()
		svc.Disconnect(s)
		s.log.Info("realtime session closed")
	}()

	conn.SetReadLimit(svc.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(svc.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(svc.cfg.PongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(svc.cfg.PongTimeout))

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
			s.log.Warn("malformed frame dropped", zap.Int("bytes", len(data)))
			continue
		}
		if !s.limiter.Allow() {
			svc.metrics.Throttled()
			s.log.Debug("event throttled", zap.String("event", in.Event))
			continue
		}
		svc.Handle(s, in.Event, in.Data)
	}
}

// Handle dispatches one client event. Events for a session are handled one
// at a time in arrival order.
func (svc *Service) Handle(s *Session, event string, data json.RawMessage) {
	switch event {
	case EventJoinGroup:
		var p joinGroupPayload
		if !svc.decode(s, event, data, &p) {
			return
		}
		svc.metrics.Event(event)
		svc.JoinGroup(s, p.GroupID)
	case EventSendMessage:
		var p sendMessagePayload
		if !svc.decode(s, event, data, &p) {
			return
		}
		svc.metrics.Event(event)
		svc.SendMessage(s, p.GroupID, p.Text)
	case EventTyping:
		var p typingPayload
		if !svc.decode(s, event, data, &p) {
			return
		}
		svc.metrics.Event(event)
		svc.Typing(s, p.GroupID, p.IsTyping)
	case EventShareLocation:
		var p locationPayload
		if !svc.decode(s, event, data, &p) {
			return
		}
		svc.metrics.Event(event)
		svc.ShareLocation(s, p.GroupID, p.coordinate)
	case EventLocationUpdate:
		var p locationPayload
		if !svc.decode(s, event, data, &p) {
			return
		}
		svc.metrics.Event(event)
		svc.LocationUpdate(s, p.GroupID, p.coordinate, p.Destination)
	default:
		s.log.Debug("unknown event ignored", zap.String("event", event))
	}
}

func (svc *Service) decode(s *Session, event string, data json.RawMessage, dst any) bool {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn("malformed payload dropped", zap.String("event", event), zap.Error(err))
		return false
	}
	return true
}

// parseGroup validates a group id string.
func (svc *Service) parseGroup(s *Session, event, raw string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		s.log.Warn("invalid group id", zap.String("event", event), zap.String("group_id", raw))
		return primitive.NilObjectID, false
	}
	return id, true
}

// subscribedGroup validates a group id and requires the session to have
// joined it.
func (svc *Service) subscribedGroup(s *Session, event, raw string) (primitive.ObjectID, bool) {
	id, ok := svc.parseGroup(s, event, raw)
	if !ok {
		return id, false
	}
	if !s.subscribed(id) {
		s.log.Debug("event for unjoined group ignored", zap.String("event", event), zap.String("group_id", raw))
		return id, false
	}
	return id, true
}

// JoinGroup subscribes s to the group, marks the member online, sends the
// recent history to s alone and a fresh snapshot to the whole group.
func (svc *Service) JoinGroup(s *Session, rawGroupID string) {
	groupID, ok := svc.parseGroup(s, EventJoinGroup, rawGroupID)
	if !ok {
		return
	}
	log := s.log.With(zap.String("group_id", groupID.Hex()))

	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Medium(), log, "join group")
	defer cancel()

	if svc.cfg.JoinRequiresMembership {
		member, err := svc.members.Exists(ctx, groupID, s.user.ID)
		if err != nil {
			log.Error("membership check failed", zap.Error(err))
			return
		}
		if !member {
			log.Warn("join refused: not a member")
			return
		}
	}

	s.groups[groupID] = struct{}{}
	first := svc.hub.Join(groupID, s)

	if err := svc.members.MarkOnline(ctx, groupID, s.user.ID); err != nil {
		log.Error("mark online failed", zap.Error(err))
	}

	entries, err := svc.messages.ListRecent(ctx, groupID, svc.cfg.HistoryLimit)
	if err != nil {
		log.Error("load history failed", zap.Error(err))
	} else {
		svc.hub.Send(s, presence.EventInitialMessages, presence.FromEntries(entries))
	}

	_ = svc.presence.BroadcastMembers(ctx, groupID)

	if first {
		svc.presence.BroadcastAlert(groupID, s.id, notify.MemberJoined(s.user.FullName))
	}
	log.Info("joined group", zap.Bool("first_session", first))
}

// SendMessage appends a text message and broadcasts it to the group.
func (svc *Service) SendMessage(s *Session, rawGroupID, text string) {
	groupID, ok := svc.subscribedGroup(s, EventSendMessage, rawGroupID)
	if !ok {
		return
	}
	text = htmlsanitize.PlainText(text)
	if text == "" {
		return
	}
	if utf8.RuneCountInString(text) > limits.MaxMessageRunes {
		s.log.Warn("oversized message dropped", zap.String("group_id", groupID.Hex()))
		return
	}

	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Short(), s.log, "send message")
	defer cancel()

	msg, err := svc.messages.Append(ctx, models.GroupMessage{
		GroupID:    groupID,
		FromUserID: s.user.ID,
		Type:       models.MessageText,
		Text:       &text,
	})
	if err != nil {
		s.log.Error("append message failed", zap.String("group_id", groupID.Hex()), zap.Error(err))
		return
	}
	svc.presence.BroadcastMessage(groupID, presence.NewMessage(msg, &s.user))
}

// Typing relays the flag to the rest of the group. Nothing is stored.
func (svc *Service) Typing(s *Session, rawGroupID string, isTyping bool) {
	groupID, ok := svc.subscribedGroup(s, EventTyping, rawGroupID)
	if !ok {
		return
	}
	svc.presence.BroadcastTyping(groupID, s.id, s.user.ID, isTyping)
}

// ShareLocation posts the location as a chat message, records it on the
// membership and broadcasts the refreshed snapshot.
func (svc *Service) ShareLocation(s *Session, rawGroupID string, at coordinate) {
	groupID, ok := svc.subscribedGroup(s, EventShareLocation, rawGroupID)
	if !ok {
		return
	}
	if !at.valid() {
		s.log.Warn("shareLocation without valid coordinates", zap.String("group_id", rawGroupID))
		return
	}
	lat, lng := *at.Lat, *at.Lng
	log := s.log.With(zap.String("group_id", groupID.Hex()))

	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Medium(), log, "share location")
	defer cancel()

	msg, err := svc.messages.Append(ctx, models.GroupMessage{
		GroupID:    groupID,
		FromUserID: s.user.ID,
		Type:       models.MessageLocation,
		Location:   &models.LatLng{Lat: lat, Lng: lng},
	})
	if err != nil {
		log.Error("append location message failed", zap.Error(err))
	} else {
		svc.presence.BroadcastMessage(groupID, presence.NewMessage(msg, &s.user))
	}

	if err := svc.members.UpdateLocation(ctx, groupID, s.user.ID, lat, lng); err != nil {
		log.Error("update location failed", zap.Error(err))
		return
	}
	_ = svc.presence.BroadcastMembers(ctx, groupID)
}

// LocationUpdate records a live position, broadcasts coordinates and any
// delay or deviation alert. No message is stored.
func (svc *Service) LocationUpdate(s *Session, rawGroupID string, at coordinate, dest *coordinate) {
	groupID, ok := svc.subscribedGroup(s, EventLocationUpdate, rawGroupID)
	if !ok {
		return
	}
	if !at.valid() {
		s.log.Warn("locationUpdate without valid coordinates", zap.String("group_id", rawGroupID))
		return
	}
	lat, lng := *at.Lat, *at.Lng
	log := s.log.With(zap.String("group_id", groupID.Hex()))

	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Medium(), log, "location update")
	defer cancel()

	if err := svc.members.UpdateLocation(ctx, groupID, s.user.ID, lat, lng); err != nil {
		log.Error("update location failed", zap.Error(err))
		return
	}
	_ = svc.presence.BroadcastLocations(ctx, groupID)

	in := notify.Input{Name: s.user.FullName, Lat: lat, Lng: lng}
	if d, ok := svc.destination(ctx, groupID, dest); ok {
		in.HasDestination, in.DestLat, in.DestLng = true, d.Lat, d.Lng
		if eta, ok := svc.estimate(ctx, log, routeinfo.Point{Lat: lat, Lng: lng}, d); ok {
			in.HasETA, in.ETAMinutes = true, eta
		}
	}
	if !in.HasDestination {
		return
	}

	res := svc.policy.Evaluate(in)
	if err := svc.members.SetRouteStatus(ctx, groupID, s.user.ID, in.ETAMinutes, res.OffRoute); err != nil {
		log.Warn("store route status failed", zap.Error(err))
	}
	for _, a := range res.Alerts {
		svc.presence.BroadcastAlert(groupID, "", a)
	}
}

// destination prefers the one sent with the update, then the group's.
func (svc *Service) destination(ctx context.Context, groupID primitive.ObjectID, sent *coordinate) (routeinfo.Point, bool) {
	if sent != nil && sent.valid() {
		return routeinfo.Point{Lat: *sent.Lat, Lng: *sent.Lng}, true
	}
	if svc.groups == nil {
		return routeinfo.Point{}, false
	}
	g, err := svc.groups.GetByID(ctx, groupID)
	if err != nil || g.Destination == nil {
		return routeinfo.Point{}, false
	}
	return routeinfo.Point{Lat: g.Destination.Lat, Lng: g.Destination.Lng}, true
}

func (svc *Service) estimate(ctx context.Context, log *zap.Logger, origin, dest routeinfo.Point) (int, bool) {
	if svc.routes == nil || !svc.routes.Enabled() {
		return 0, false
	}
	route, err := svc.routes.GetRoute(ctx, origin, dest)
	if err != nil {
		if !errors.Is(err, routeinfo.ErrNoRoute) {
			log.Warn("route lookup failed", zap.Error(err))
		}
		return 0, false
	}
	return notify.ETAMinutes(route.DurationSeconds), true
}

// Disconnect unsubscribes s from every group and, where it was the user's
// last live session, marks the membership offline and tells the group.
// Each group is handled independently; one failing does not stop others.
func (svc *Service) Disconnect(s *Session) {
	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Long(), s.log, "disconnect")
	defer cancel()

	var g errgroup.Group
	for groupID := range s.groups {
		if !svc.hub.Leave(groupID, s) {
			continue
		}
		g.Go(func() error {
			if err := svc.members.MarkOffline(ctx, groupID, s.user.ID); err != nil {
				s.log.Error("mark offline failed", zap.String("group_id", groupID.Hex()), zap.Error(err))
				return err
			}
			_ = svc.presence.BroadcastMembers(ctx, groupID)
			svc.presence.BroadcastAlert(groupID, "", notify.MemberLeft(s.user.FullName))
			return nil
		})
	}
	_ = g.Wait()

	clear(s.groups)
	svc.hub.Unregister(s)
}

// Shutdown closes every live session and waits for their teardown.
func (svc *Service) Shutdown(ctx context.Context) error {
	svc.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
