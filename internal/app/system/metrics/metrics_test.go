package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/travelsync/internal/app/system/hub"
	"github.com/prometheus/client_golang/prometheus"
)

type fixedStats hub.Stats

func (f fixedStats) Stats() hub.Stats { return hub.Stats(f) }

func TestRealtimeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRealtime(reg, fixedStats{Sessions: 3, Groups: 2, Dropped: 5})

	m.Event("joinGroup")
	m.Event("joinGroup")
	m.Reject("unauthorized")
	m.Throttled()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`travelsync_realtime_events_total{event="joinGroup"} 2`,
		`travelsync_realtime_rejected_connections_total{reason="unauthorized"} 1`,
		`travelsync_realtime_throttled_events_total 1`,
		`travelsync_realtime_sessions 3`,
		`travelsync_realtime_groups 2`,
		`travelsync_realtime_dropped_frames_total 5`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilRealtimeIsSafe(t *testing.T) {
	var m *Realtime
	m.Event("typing")
	m.Reject("rate_limited")
	m.Throttled()
}
