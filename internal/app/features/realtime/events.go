package realtime

import (
	"encoding/json"
	"math"
)

// Client-to-server event names.
const (
	EventJoinGroup      = "joinGroup"
	EventSendMessage    = "sendMessage"
	EventTyping         = "typing"
	EventShareLocation  = "shareLocation"
	EventLocationUpdate = "locationUpdate"
)

// inbound is the frame every client event arrives in. It mirrors
// hub.Envelope.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinGroupPayload struct {
	GroupID string `json:"groupId"`
}

type sendMessagePayload struct {
	GroupID string `json:"groupId"`
	Text    string `json:"text"`
}

type typingPayload struct {
	GroupID  string `json:"groupId"`
	IsTyping bool   `json:"isTyping"`
}

type coordinate struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// valid reports whether both fields are present and within WGS84 bounds.
func (c coordinate) valid() bool {
	if c.Lat == nil || c.Lng == nil {
		return false
	}
	lat, lng := *c.Lat, *c.Lng
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

type locationPayload struct {
	GroupID string `json:"groupId"`
	coordinate
	// Destination overrides the group's stored destination for alerting.
	Destination *coordinate `json:"destination,omitempty"`
}
