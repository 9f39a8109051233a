package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/praxishq/praxis/internal/platform/httpx"
)

// Handler exposes catalog administration endpoints.
type Handler struct {
	logger    *slog.Logger
	directory *Directory
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, directory *Directory) *Handler {
	return &Handler{logger: logger, directory: directory, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers", h.listCustomers)
	r.Post("/customers", h.createCustomer)
	r.Get("/customers/{id}", h.getCustomer)
	r.Get("/services", h.listServices)
	r.Post("/services", h.createService)
	r.Get("/services/{id}", h.getService)
	r.Post("/services/{id}/task-templates", h.addTaskTemplate)
	r.Post("/services/{id}/document-templates", h.addDocumentTemplate)
	r.Put("/prices", h.setPriceOverride)
	r.Get("/ledger-settings", h.getLedgerSettings)
	r.Put("/ledger-settings", h.saveLedgerSettings)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.directory.ListCustomers(r.Context())
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": customers})
}

type createCustomerRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	customer, err := h.directory.CreateCustomer(r.Context(), Customer{Name: req.Name, Email: req.Email, Phone: req.Phone})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	customer, err := h.directory.GetCustomer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.directory.ListServices(r.Context())
	if err != nil {
		h.logger.Error("list services", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"services": services})
}

type createServiceRequest struct {
	Name         string   `json:"name" validate:"required"`
	DefaultPrice *float64 `json:"default_price" validate:"omitempty,gt=0"`
	TaxRate      *float64 `json:"tax_rate" validate:"omitempty,gte=0,lte=1"`
	PaymentTerms string   `json:"payment_terms" validate:"omitempty,oneof=net_15 net_30 net_45 net_60 due_on_receipt"`
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	service, err := h.directory.CreateService(r.Context(), Service{
		Name:         req.Name,
		DefaultPrice: req.DefaultPrice,
		TaxRate:      req.TaxRate,
		PaymentTerms: PaymentTerms(req.PaymentTerms),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, service)
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	service, err := h.directory.GetService(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, service)
}

type taskTemplateRequest struct {
	Title          string  `json:"title" validate:"required"`
	Priority       string  `json:"priority" validate:"omitempty,oneof=low medium high"`
	EstimatedHours float64 `json:"estimated_hours" validate:"gte=0"`
	SortOrder      int     `json:"sort_order"`
}

func (h *Handler) addTaskTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req taskTemplateRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	tpl, err := h.directory.AddTaskTemplate(r.Context(), TaskTemplate{
		ServiceID:      id,
		Title:          req.Title,
		Priority:       req.Priority,
		EstimatedHours: req.EstimatedHours,
		SortOrder:      req.SortOrder,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tpl)
}

type documentTemplateRequest struct {
	Name      string `json:"name" validate:"required"`
	SortOrder int    `json:"sort_order"`
}

func (h *Handler) addDocumentTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req documentTemplateRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	tpl, err := h.directory.AddDocumentTemplate(r.Context(), DocumentTemplate{
		ServiceID: id,
		Name:      req.Name,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tpl)
}

type priceOverrideRequest struct {
	CustomerID int64   `json:"customer_id" validate:"required"`
	ServiceID  int64   `json:"service_id" validate:"required"`
	Price      float64 `json:"price" validate:"required,gt=0"`
}

func (h *Handler) setPriceOverride(w http.ResponseWriter, r *http.Request) {
	var req priceOverrideRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	err := h.directory.SetPriceOverride(r.Context(), PriceOverride{
		CustomerID: req.CustomerID,
		ServiceID:  req.ServiceID,
		Price:      req.Price,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customer_id": req.CustomerID, "service_id": req.ServiceID, "price": req.Price})
}

func (h *Handler) getLedgerSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.directory.GetLedgerSettings(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if settings == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "ledger settings not configured")
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

type ledgerSettingsRequest struct {
	ReceivableAccountID int64  `json:"receivable_account_id" validate:"required"`
	IncomeAccountID     int64  `json:"income_account_id" validate:"required"`
	CashAccountID       *int64 `json:"cash_account_id"`
}

func (h *Handler) saveLedgerSettings(w http.ResponseWriter, r *http.Request) {
	var req ledgerSettingsRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	err := h.directory.SaveLedgerSettings(r.Context(), LedgerSettings{
		ReceivableAccountID: req.ReceivableAccountID,
		IncomeAccountID:     req.IncomeAccountID,
		CashAccountID:       req.CashAccountID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "saved"})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}
