package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/praxishq/praxis/internal/platform/httpx"
	"github.com/praxishq/praxis/internal/shared"
)

// Handler exposes ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	cache     *Cache
	validator *validator.Validate
	tbGroup   singleflight.Group
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cache *Cache) *Handler {
	return &Handler{logger: logger, service: service, cache: cache, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts/{id}/balance", h.accountBalance)
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/trial-balance/export", h.trialBalanceExport)
	r.Post("/journals", h.postJournal)
	r.Get("/entries", h.entriesBySource)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.Accounts(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

type createAccountRequest struct {
	Code           string  `json:"code" validate:"required"`
	Name           string  `json:"name" validate:"required"`
	Type           string  `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	OpeningBalance float64 `json:"opening_balance"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	account, err := h.service.CreateAccount(r.Context(), Account{
		Code:           req.Code,
		Name:           req.Name,
		Type:           AccountType(req.Type),
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var (
		balance AccountBalance
		entries []Entry
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		balance, err = h.service.Balance(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = h.service.Entries(ctx, id, 50)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("account balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balance": balance, "entries": entries})
}

func (h *Handler) loadTrialBalance(r *http.Request) (TrialBalance, error) {
	ctx := r.Context()
	if tb, ok := h.cache.GetTrialBalance(ctx); ok {
		return *tb, nil
	}
	v, err, _ := h.tbGroup.Do(trialBalanceKey, func() (any, error) {
		tb, err := h.service.TrialBalance(ctx)
		if err != nil {
			return nil, err
		}
		h.cache.SetTrialBalance(ctx, tb)
		return tb, nil
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return v.(TrialBalance), nil
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.loadTrialBalance(r)
	if err != nil {
		h.logger.Error("trial balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) trialBalanceExport(w http.ResponseWriter, r *http.Request) {
	tb, err := h.loadTrialBalance(r)
	if err != nil {
		h.logger.Error("trial balance export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	p := message.NewPrinter(language.English)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	p.Fprintf(w, "%-10s %-32s %16s %16s\n", "Code", "Account", "Debit", "Credit")
	for _, row := range tb.Rows {
		p.Fprintf(w, "%-10s %-32s %16.2f %16.2f\n", row.Code, row.Name, row.Debit, row.Credit)
	}
	p.Fprintf(w, "%-43s %16.2f %16.2f\n", "TOTAL", tb.TotalDebit, tb.TotalCredit)
	if !tb.Balanced() {
		p.Fprintf(w, "WARNING: ledger out of balance by %.2f\n", tb.TotalDebit-tb.TotalCredit)
	}
}

type journalLineRequest struct {
	AccountID int64   `json:"account_id" validate:"required"`
	Debit     float64 `json:"debit" validate:"gte=0"`
	Credit    float64 `json:"credit" validate:"gte=0"`
}

type postJournalRequest struct {
	Date  string               `json:"date"`
	Memo  string               `json:"memo"`
	Lines []journalLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	var req postJournalRequest
	if !httpx.Decode(w, r, h.validator, &req) {
		return
	}
	var date time.Time
	if req.Date != "" {
		var err error
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
			return
		}
	}
	in := JournalInput{
		SourceDoc: fmt.Sprintf("JRN:%s", uuid.New()),
		Date:      date,
		Memo:      req.Memo,
		PostedBy:  shared.ActorFromContext(r.Context()),
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, JournalLineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	entries, err := h.service.PostJournal(r.Context(), in)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Journal Rejected", err.Error())
		return
	}
	h.cache.Invalidate(r.Context())
	httpx.JSON(w, http.StatusCreated, map[string]any{"source_doc": in.SourceDoc, "entries": entries})
}

func (h *Handler) entriesBySource(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "source query parameter required")
		return
	}
	entries, err := h.service.EntriesBySource(r.Context(), source)
	if err != nil {
		h.logger.Error("entries by source", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}
