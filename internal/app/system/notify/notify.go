// Package notify derives advisory group alerts from location updates and
// membership changes. Everything here is a pure function of its inputs.
package notify

import (
	"fmt"
	"math"
	"time"
)

// Alert kinds as they appear on the wire.
const (
	KindDelay        = "delay"
	KindDeviation    = "deviation"
	KindMemberJoined = "member_joined"
	KindMemberLeft   = "member_left"
)

// Defaults.
const (
	DefaultOffRouteThreshold = 0.01
	DefaultLateThreshold     = 8 * time.Minute
)

// Alert is the groupAlert payload.
type Alert struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Policy holds the thresholds. The zero value is not useful; use
// NewPolicy or set both fields.
type Policy struct {
	// OffRouteThreshold is the max absolute lat or lng difference, in
	// degrees, before a member counts as off route.
	OffRouteThreshold float64
	// LateThreshold is the ETA above which a member counts as late.
	LateThreshold time.Duration
}

// NewPolicy returns a Policy, substituting defaults for non-positive values.
func NewPolicy(offRoute float64, late time.Duration) Policy {
	if offRoute <= 0 {
		offRoute = DefaultOffRouteThreshold
	}
	if late <= 0 {
		late = DefaultLateThreshold
	}
	return Policy{OffRouteThreshold: offRoute, LateThreshold: late}
}

// IsLate reports whether an ETA of etaMinutes exceeds the late threshold.
func (p Policy) IsLate(etaMinutes int) bool {
	return time.Duration(etaMinutes)*time.Minute > p.LateThreshold
}

// IsOffRoute compares raw coordinate deltas against the threshold. This is a
// coarse planar check, not a distance.
func (p Policy) IsOffRoute(userLat, userLng, destLat, destLng float64) bool {
	return math.Abs(userLat-destLat) > p.OffRouteThreshold ||
		math.Abs(userLng-destLng) > p.OffRouteThreshold
}

// Input is everything Evaluate looks at for one location update.
type Input struct {
	Name string
	Lat  float64
	Lng  float64

	// HasDestination is false when neither the update nor the group names
	// a destination; no deviation alert is possible then.
	HasDestination bool
	DestLat        float64
	DestLng        float64

	// HasETA is false when no route estimate was available.
	HasETA     bool
	ETAMinutes int
}

// Result is the outcome of Evaluate.
type Result struct {
	Late     bool
	OffRoute bool
	Alerts   []Alert
}

// Evaluate returns at most one delay and one deviation alert, in that order.
func (p Policy) Evaluate(in Input) Result {
	var r Result
	if in.HasETA && p.IsLate(in.ETAMinutes) {
		r.Late = true
		r.Alerts = append(r.Alerts, Delay(in.Name, in.ETAMinutes))
	}
	if in.HasDestination && p.IsOffRoute(in.Lat, in.Lng, in.DestLat, in.DestLng) {
		r.OffRoute = true
		r.Alerts = append(r.Alerts, Deviation(in.Name))
	}
	return r
}

// ETAMinutes converts a route duration in seconds to whole minutes, rounding
// half away from zero.
func ETAMinutes(durationSeconds float64) int {
	return int(math.Round(durationSeconds / 60))
}

func Delay(name string, minutes int) Alert {
	return Alert{Type: KindDelay, Message: fmt.Sprintf("%s is running %d minutes late.", displayName(name), minutes)}
}

func Deviation(name string) Alert {
	return Alert{Type: KindDeviation, Message: fmt.Sprintf("%s has taken a different route!", displayName(name))}
}

func MemberJoined(name string) Alert {
	return Alert{Type: KindMemberJoined, Message: fmt.Sprintf("%s joined the group.", displayName(name))}
}

func MemberLeft(name string) Alert {
	return Alert{Type: KindMemberLeft, Message: fmt.Sprintf("%s has gone offline.", displayName(name))}
}

func displayName(name string) string {
	if name == "" {
		return "A member"
	}
	return name
}
