package handler

import (
	"net/http"

	"github.com/rs/zerolog"
)

// NewRouter creates and configures the main application router.
// metricsHandler may be nil, in which case /metrics is not exposed.
func NewRouter(h *HTTPHandler, metricsHandler http.Handler, logger zerolog.Logger) http.Handler {
	// Setup Router
	mux := http.NewServeMux()

	// Public Routes
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	mux.HandleFunc("GET /{short_code}", h.Redirect)
	mux.HandleFunc("GET /open/{short_code}", h.Redirect)
	mux.HandleFunc("GET /api/v1/public/links/{short_code}", h.GetPublicByShortCode)
	mux.HandleFunc("POST /api/v1/track/{short_code}", h.Track)

	// API
	mux.HandleFunc("POST /api/v1/links", h.Create)
	mux.HandleFunc("GET /api/v1/links", h.List)
	mux.HandleFunc("GET /api/v1/links/{id}/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/links/{id}/visits", h.Visits)
	mux.HandleFunc("GET /api/v1/dashboard", h.Dashboard)
	mux.HandleFunc("PUT /api/v1/links/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/links/{id}", h.Delete)

	return RequestLogger(logger)(mux)
}
