// internal/app/features/realtime/routes.go
package realtime

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter for the realtime endpoint (mounted under /ws).
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeWS)
	return r
}
