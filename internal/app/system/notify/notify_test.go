package notify

import (
	"testing"
	"time"
)

func TestIsOffRoute(t *testing.T) {
	p := NewPolicy(0, 0)
	const destLat, destLng = 18.5204, 73.8567

	tests := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{"at destination", destLat, destLng, false},
		{"within threshold", 18.515, 73.850, false},
		{"lat beyond", 18.54, destLng, true},
		{"lng beyond", destLat, 73.83, true},
		{"both beyond", 18.40, 73.70, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsOffRoute(tt.lat, tt.lng, destLat, destLng); got != tt.want {
				t.Errorf("IsOffRoute(%v, %v): got %v, want %v", tt.lat, tt.lng, got, tt.want)
			}
		})
	}
}

func TestIsLate(t *testing.T) {
	p := NewPolicy(0, 0)
	if p.IsLate(8) {
		t.Error("8 minutes is not late with the default threshold")
	}
	if !p.IsLate(9) {
		t.Error("9 minutes should be late")
	}

	strict := NewPolicy(0, 2*time.Minute)
	if !strict.IsLate(3) {
		t.Error("custom threshold should apply")
	}
}

func TestEvaluate(t *testing.T) {
	p := NewPolicy(0, 0)

	r := p.Evaluate(Input{
		Name: "Asha", Lat: 18.60, Lng: 73.8567,
		HasDestination: true, DestLat: 18.5204, DestLng: 73.8567,
		HasETA: true, ETAMinutes: 12,
	})
	if !r.Late || !r.OffRoute {
		t.Fatalf("expected late and off route, got %+v", r)
	}
	if len(r.Alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(r.Alerts))
	}
	if r.Alerts[0] != (Alert{Type: KindDelay, Message: "Asha is running 12 minutes late."}) {
		t.Errorf("delay alert: got %+v", r.Alerts[0])
	}
	if r.Alerts[1] != (Alert{Type: KindDeviation, Message: "Asha has taken a different route!"}) {
		t.Errorf("deviation alert: got %+v", r.Alerts[1])
	}

	quiet := p.Evaluate(Input{Name: "Asha", Lat: 1, Lng: 1, ETAMinutes: 60})
	if len(quiet.Alerts) != 0 {
		t.Errorf("no destination and no ETA should yield no alerts, got %+v", quiet.Alerts)
	}
}

func TestETAMinutes(t *testing.T) {
	if got := ETAMinutes(0); got != 0 {
		t.Errorf("0s: got %d", got)
	}
	if got := ETAMinutes(89); got != 1 {
		t.Errorf("89s: got %d, want 1", got)
	}
	if got := ETAMinutes(90); got != 2 {
		t.Errorf("90s: got %d, want 2", got)
	}
}

func TestMembershipAlerts(t *testing.T) {
	if got := MemberJoined("Ravi").Message; got != "Ravi joined the group." {
		t.Errorf("joined: got %q", got)
	}
	if got := MemberLeft("").Message; got != "A member has gone offline." {
		t.Errorf("left: got %q", got)
	}
}
