package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/praxishq/praxis/internal/platform/httpx"
	"github.com/praxishq/praxis/internal/shared"
)

// Handler exposes the audit timeline endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/timeline", h.timeline)
}

type timelineResponse struct {
	Rows   []shared.AuditLog `json:"rows"`
	Paging shared.Pagination `json:"paging"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := TimelineFilters{
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	if v := q.Get("actor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid actor_id")
			return
		}
		f.ActorID = id
	}
	var ok bool
	if f.From, ok = parseTimeParam(w, q.Get("from")); !ok {
		return
	}
	if f.To, ok = parseTimeParam(w, q.Get("to")); !ok {
		return
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	result, err := h.service.Timeline(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if result.Rows == nil {
		result.Rows = []shared.AuditLog{}
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{Rows: result.Rows, Paging: result.Paging})
}

func parseTimeParam(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "timestamps must be RFC3339")
		return time.Time{}, false
	}
	return t, true
}
