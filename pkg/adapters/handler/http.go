package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wadjakorntonsri/geo-shortener/pkg/config"
	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/geo-shortener/pkg/ports"
)

type HTTPHandler struct {
	service          ports.LinkService
	trackParam       string
	notFoundRedirect string
	logger           zerolog.Logger

	// visits being recorded after their redirect was served
	pending sync.WaitGroup
}

func NewHTTPHandler(service ports.LinkService, cfg *config.Config, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		service:          service,
		trackParam:       cfg.DisableTrackParam,
		notFoundRedirect: cfg.NotFoundRedirectTo,
		logger:           logger,
	}
}

// CreateLinkRequest payload
type CreateLinkRequest struct {
	OriginalURL string   `json:"original_url"`
	Title       string   `json:"title"`
	Tags        []string `json:"tags"`
	CustomCode  string   `json:"custom_code,omitempty"`
}

// UpdateLinkRequest payload
type UpdateLinkRequest struct {
	OriginalURL string   `json:"original_url,omitempty"`
	Title       string   `json:"title,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Create Link
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	link, err := h.service.Shorten(r.Context(), req.OriginalURL, req.Title, req.Tags, req.CustomCode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, link)
}

// Redirect to original URL
func (h *HTTPHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("short_code")
	if code == "" {
		http.Error(w, "Short code missing", http.StatusBadRequest)
		return
	}

	originalURL, err := h.service.GetOriginalURL(r.Context(), code)
	if err != nil {
		if h.notFoundRedirect != "" && errors.Is(err, domain.ErrLinkNotFound) {
			http.Redirect(w, r, h.notFoundRedirect, http.StatusFound)
			return
		}
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}

	// Async track visit (only if the track-disabling query param is not set)
	if !r.URL.Query().Has(h.trackParam) {
		referer := r.Header.Get("Referer")
		userAgent := r.UserAgent()
		ip := ClientIP(r)
		// keep request values but outlive the request itself
		ctx := context.WithoutCancel(r.Context())

		h.pending.Add(1)
		go func() {
			defer h.pending.Done()
			if err := h.service.RecordVisit(ctx, code, referer, userAgent, ip); err != nil {
				h.logger.Error().Err(err).Str("short_code", code).Msg("could not record visit")
			}
		}()
	}

	http.Redirect(w, r, originalURL, http.StatusFound)
}

// Get Public Link (without redirect, for metadata resolution)
func (h *HTTPHandler) GetPublicByShortCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("short_code")
	if code == "" {
		http.Error(w, "Short code missing", http.StatusBadRequest)
		return
	}

	link, err := h.service.GetLinkByShortCode(r.Context(), code)
	if err != nil {
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, link)
}

// Track visit manually
func (h *HTTPHandler) Track(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("short_code")
	if code == "" {
		http.Error(w, "Short code missing", http.StatusBadRequest)
		return
	}

	// Async or Sync tracking
	referer := r.Header.Get("Referer")
	userAgent := r.UserAgent()
	ip := ClientIP(r)

	if err := h.service.RecordVisit(r.Context(), code, referer, userAgent, ip); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Get Stats for a Link
func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	stats, err := h.service.GetLinkStats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// List visits of a Link, with their locations
func (h *HTTPHandler) Visits(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	visits, err := h.service.ListVisits(r.Context(), id, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  visits,
		"page":  page,
		"limit": limit,
	})
}

// Get Dashboard
func (h *HTTPHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	search := r.URL.Query().Get("search")
	tag := r.URL.Query().Get("tag")
	domainFilter := r.URL.Query().Get("domain")

	links, total, err := h.service.GetDashboard(r.Context(), limit, search, tag, domainFilter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"top_links":           links,
		"total_system_clicks": total,
	}
	writeJSON(w, http.StatusOK, resp)
}

// List Links
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	search := r.URL.Query().Get("search")
	tag := r.URL.Query().Get("tag")

	links, count, err := h.service.ListLinks(r.Context(), page, limit, search, tag)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"data":  links,
		"total": count,
		"page":  page,
		"limit": limit,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update Link
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var req UpdateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}

	link, err := h.service.UpdateLink(r.Context(), id, req.OriginalURL, req.Title, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, link)
}

// Delete Link
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteLink(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Wait blocks until the visits recorded in the background are stored, or ctx is done.
func (h *HTTPHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientIP returns the visitor address: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection address without its port.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrLinkNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
