package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/travelsync/internal/app/system/hub"
	"github.com/dalemusser/travelsync/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// StatsSource reports live connection counts.
type StatsSource interface {
	Stats() hub.Stats
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client *mongo.Client
	Stats  StatsSource
	Log    *zap.Logger
}

// NewHandler constructs a health Handler. stats may be nil.
func NewHandler(client *mongo.Client, stats StatsSource, logger *zap.Logger) *Handler {
	return &Handler{
		Client: client,
		Stats:  stats,
		Log:    logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string          `json:"status"`
	Database string          `json:"database"`
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	Realtime *realtimeStatus `json:"realtime,omitempty"`
}

type realtimeStatus struct {
	Sessions int `json:"sessions"`
	Groups   int `json:"groups"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "realtime":{"sessions":3,"groups":1} }
//
// On DB failure: 503 and
//
//	{ "status":"error", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}
	if h.Stats != nil {
		st := h.Stats.Stats()
		resp.Realtime = &realtimeStatus{Sessions: st.Sessions, Groups: st.Groups}
	}

	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	_ = json.NewEncoder(w).Encode(resp)
}
