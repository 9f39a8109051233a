package billing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/praxishq/praxis/internal/platform/httpx"
)

// Handler exposes work, period and task endpoints.
type Handler struct {
	logger    *slog.Logger
	generator *Generator
	tracker   *Tracker
	repo      Repository
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, generator *Generator, tracker *Tracker, repo Repository) *Handler {
	return &Handler{
		logger:    logger,
		generator: generator,
		tracker:   tracker,
		repo:      repo,
		validator: validator.New(),
		now:       time.Now,
	}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/works", h.createWork)
	r.Get("/works", h.listWorks)
	r.Get("/works/{id}", h.getWork)
	r.Patch("/works/{id}/active", h.setWorkActive)
	r.Get("/works/{id}/periods", h.listPeriods)
	r.Post("/works/{id}/periods/generate", h.generateWorkPeriods)
	r.Get("/works/{id}/tasks", h.listWorkTasks)

	r.Post("/periods/generate", h.generatePeriods)
	r.Get("/periods/{id}", h.getPeriod)
	r.Get("/periods/{id}/tasks", h.listPeriodTasks)
	r.Post("/periods/{id}/complete", h.completePeriod)
	r.Post("/periods/{id}/reopen", h.reopenPeriod)
	r.Delete("/periods/{id}", h.deletePeriod)

	r.Post("/tasks", h.createTask)
	r.Post("/tasks/{id}/complete", h.completeTask)
	r.Post("/tasks/{id}/reopen", h.reopenTask)
	r.Delete("/tasks/{id}", h.deleteTask)
}

type createWorkRequest struct {
	CustomerID    int64    `json:"customer_id" validate:"required"`
	ServiceID     int64    `json:"service_id" validate:"required"`
	Title         string   `json:"title" validate:"required"`
	Recurring     bool     `json:"recurring"`
	Recurrence    string   `json:"recurrence" validate:"omitempty,oneof=monthly quarterly half_yearly yearly"`
	AnchorDay     int      `json:"anchor_day" validate:"omitempty,min=1,max=31"`
	BillingAmount *float64 `json:"billing_amount"`
	AutoBill      bool     `json:"auto_bill"`
	StartDate     string   `json:"start_date"`
}

func (h *Handler) createWork(w http.ResponseWriter, r *http.Request) {
	var req createWorkRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	var start time.Time
	if req.StartDate != "" {
		var err error
		start, err = time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "start_date must be YYYY-MM-DD")
			return
		}
	}
	work, err := h.generator.CreateWork(r.Context(), WorkInput{
		CustomerID:    req.CustomerID,
		ServiceID:     req.ServiceID,
		Title:         req.Title,
		Recurring:     req.Recurring,
		Recurrence:    Recurrence(req.Recurrence),
		AnchorDay:     req.AnchorDay,
		BillingAmount: req.BillingAmount,
		AutoBill:      req.AutoBill,
		StartDate:     start,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, work)
}

func (h *Handler) listWorks(w http.ResponseWriter, r *http.Request) {
	works, err := h.repo.ListWorks(r.Context())
	if err != nil {
		h.logger.Error("list works", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"works": works})
}

func (h *Handler) getWork(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	work, err := h.repo.GetWork(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, work)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) setWorkActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req setActiveRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	if err := h.generator.SetWorkActive(r.Context(), id, req.Active); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "active": req.Active})
}

// periodView decorates a stored period with the derived overdue flag.
type periodView struct {
	Period
	Overdue bool `json:"overdue"`
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	periods, err := h.repo.ListPeriods(r.Context(), id)
	if err != nil {
		h.logger.Error("list periods", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	now := h.now()
	views := make([]periodView, 0, len(periods))
	for _, p := range periods {
		views = append(views, periodView{Period: p, Overdue: p.Overdue(now)})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": views})
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	period, err := h.repo.GetPeriod(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, periodView{Period: period, Overdue: period.Overdue(h.now())})
}

func (h *Handler) generatePeriods(w http.ResponseWriter, r *http.Request) {
	created, err := h.generator.GeneratePeriodsIfDue(r.Context(), h.now())
	if err != nil {
		h.logger.Error("generate periods", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"created": created})
}

func (h *Handler) generateWorkPeriods(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	created, err := h.generator.GenerateForWork(r.Context(), id, h.now())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"created": created})
}

func (h *Handler) listWorkTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tasks, err := h.repo.ListTasks(r.Context(), OwnerRef{WorkID: id})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) listPeriodTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	period, err := h.repo.GetPeriod(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tasks, err := h.repo.ListTasks(r.Context(), OwnerRef{WorkID: period.WorkID, PeriodID: &period.ID})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) completePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.tracker.MarkPeriodCompleted(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": StatusCompleted})
}

func (h *Handler) reopenPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.tracker.ReopenPeriod(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) deletePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.tracker.DeletePeriod(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createTaskRequest struct {
	WorkID     int64  `json:"work_id" validate:"required"`
	PeriodID   *int64 `json:"period_id"`
	Title      string `json:"title" validate:"required"`
	Priority   string `json:"priority" validate:"omitempty,oneof=low medium high"`
	AssigneeID *int64 `json:"assignee_id"`
	DueDate    string `json:"due_date"`
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	in := TaskInput{
		WorkID:     req.WorkID,
		PeriodID:   req.PeriodID,
		Title:      req.Title,
		Priority:   req.Priority,
		AssigneeID: req.AssigneeID,
	}
	if req.DueDate != "" {
		due, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "due_date must be YYYY-MM-DD")
			return
		}
		in.DueDate = &due
	}
	task, err := h.tracker.CreateTask(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, task)
}

func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.tracker.MarkTaskCompleted(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) reopenTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.tracker.MarkTaskPending(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.tracker.DeleteTask(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}
