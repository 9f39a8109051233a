package invoices

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/praxishq/praxis/internal/platform/httpx"
)

// PDFRenderer turns an invoice into a PDF document. Nil disables the
// PDF endpoint.
type PDFRenderer interface {
	RenderInvoice(ctx context.Context, inv Invoice) ([]byte, error)
}

// Handler exposes invoice endpoints.
type Handler struct {
	logger     *slog.Logger
	controller *Controller
	repo       Repository
	pdf        PDFRenderer
	validator  *validator.Validate
	now        func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, controller *Controller, repo Repository, pdf PDFRenderer) *Handler {
	return &Handler{logger: logger, controller: controller, repo: repo, pdf: pdf, validator: validator.New(), now: time.Now}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.list)
	r.Get("/invoices/{id}", h.get)
	r.Put("/invoices/{id}/status", h.setStatus)
	r.Delete("/invoices/{id}", h.delete)
	r.Get("/invoices/{id}/vouchers", h.vouchers)
	r.Get("/invoices/{id}/pdf", h.pdfDocument)
	r.Get("/reports/aging", h.aging)
	r.Get("/reports/statement/{customerID}", h.statement)
}

// invoiceView decorates a stored invoice with the derived overdue flag:
// a sent invoice past its due date reads as overdue whether or not the
// nightly sweep has stamped it yet.
type invoiceView struct {
	Invoice
	EffectiveStatus Status `json:"effective_status"`
}

func (h *Handler) view(inv Invoice) invoiceView {
	effective := inv.Status
	if inv.Status == StatusSent && inv.DueDate.Before(h.now()) {
		effective = StatusOverdue
	}
	return invoiceView{Invoice: inv, EffectiveStatus: effective}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if v := r.URL.Query().Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer_id")
			return
		}
		filter.CustomerID = id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := Status(v)
		if !status.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown status")
			return
		}
		filter.Status = status
	}
	invoices, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]invoiceView, 0, len(invoices))
	for _, inv := range invoices {
		views = append(views, h.view(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": views})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.repo.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.view(inv))
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft sent paid overdue cancelled"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req setStatusRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	inv, err := h.controller.SetStatus(r.Context(), id, Status(req.Status))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.view(inv))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.controller.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) vouchers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	vouchers, err := h.repo.Vouchers(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vouchers": vouchers})
}

func (h *Handler) pdfDocument(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "PDF rendering not configured")
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.repo.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pdf, err := h.pdf.RenderInvoice(r.Context(), inv)
	if err != nil {
		h.logger.Error("render invoice pdf", slog.String("invoice", inv.Number), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "PDF rendering failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename=`+inv.Number+`.pdf`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	report, err := h.repo.Aging(r.Context(), h.now())
	if err != nil {
		h.logger.Error("aging report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "customerID")
	if !ok {
		return
	}
	rows, err := h.repo.CustomerStatement(r.Context(), id)
	if err != nil {
		h.logger.Error("customer statement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customer_id": id, "rows": rows})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}
