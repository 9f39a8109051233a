package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/praxishq/praxis/internal/ledger"
	"github.com/praxishq/praxis/internal/observability"
	"github.com/praxishq/praxis/internal/shared"
)

// AuditPort records invoice mutations for operator visibility.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// transitions is the allowed status edge table. Reverse edges exist on
// purpose: operators correct mistakes by walking an invoice back, and
// every ledger effect of the forward edge is undone on the way.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusSent, StatusCancelled},
	StatusSent:      {StatusPaid, StatusOverdue, StatusDraft, StatusCancelled},
	StatusOverdue:   {StatusPaid, StatusSent, StatusDraft, StatusCancelled},
	StatusPaid:      {StatusSent, StatusDraft},
	StatusCancelled: {StatusDraft},
}

func transitionAllowed(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Controller drives the invoice lifecycle. Every status change and its
// ledger side effects happen in one transaction; ledger entries are
// driven purely by the edges of the transition table, so replaying a
// status sets nothing twice.
type Controller struct {
	repo    Repository
	audit   AuditPort
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewController builds a Controller instance.
func NewController(repo Repository, audit AuditPort, logger *slog.Logger, metrics *observability.Metrics) *Controller {
	return &Controller{repo: repo, audit: audit, logger: logger, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (c *Controller) WithNow(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// SetStatus moves an invoice to the target status. Setting the current
// status again is a no-op. Missing ledger configuration downgrades
// posting to a logged skip; the status change itself always lands.
func (c *Controller) SetStatus(ctx context.Context, id int64, target Status) (Invoice, error) {
	if !target.Valid() {
		return Invoice{}, fmt.Errorf("%w: %q", ErrUnknownStatus, target)
	}
	var (
		inv     Invoice
		changed bool
	)
	err := c.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == target {
			return nil
		}
		if !transitionAllowed(inv.Status, target) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, inv.Status, target)
		}
		if err := c.applyLedgerEffects(ctx, tx, inv, target); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, target); err != nil {
			return err
		}
		inv.Status = target
		changed = true
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	if changed {
		c.recordAudit(ctx, "invoices.status."+string(target), inv)
	}
	return inv, nil
}

// Delete removes an invoice entirely: its vouchers and ledger entries
// are torn down and the owning period or work becomes billable again.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	var inv Invoice
	err := c.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := c.teardownVouchers(ctx, tx, inv); err != nil {
			return err
		}
		if inv.Status.posted() {
			if _, err := ledger.UnpostTx(ctx, tx.Ledger(), inv.SourceKey()); err != nil {
				return err
			}
		}
		if err := tx.DeleteInvoice(ctx, id); err != nil {
			return err
		}
		return tx.ClearBillingFlags(ctx, id)
	})
	if err != nil {
		return err
	}
	c.recordAudit(ctx, "invoices.delete", inv)
	return nil
}

// SweepOverdue stamps every sent invoice past its due date as overdue.
// The stored status is a convenience for filtering; readers derive
// overdue from the due date regardless, so a missed sweep loses nothing.
func (c *Controller) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	sent, err := c.repo.List(ctx, ListFilter{Status: StatusSent})
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, inv := range sent {
		if !inv.DueDate.Before(now) {
			continue
		}
		if _, err := c.SetStatus(ctx, inv.ID, StatusOverdue); err != nil {
			c.logger.Error("overdue sweep failed", slog.String("invoice", inv.Number), slog.Any("error", err))
			continue
		}
		swept++
	}
	return swept, nil
}

// applyLedgerEffects runs the posting actions for one transition edge.
func (c *Controller) applyLedgerEffects(ctx context.Context, tx TxRepository, inv Invoice, target Status) error {
	from := inv.Status

	// Leaving paid: the payment no longer stands, remove its vouchers
	// and cash entries before anything else.
	if from == StatusPaid && target != StatusPaid {
		if err := c.teardownVouchers(ctx, tx, inv); err != nil {
			return err
		}
	}

	switch {
	case target.posted() && !from.posted():
		if err := c.postInvoice(ctx, tx, inv); err != nil {
			return err
		}
	case !target.posted() && from.posted():
		if _, err := ledger.UnpostTx(ctx, tx.Ledger(), inv.SourceKey()); err != nil {
			return err
		}
	}

	if target == StatusPaid {
		return c.recordPayment(ctx, tx, inv)
	}
	return nil
}

// postInvoice writes the receivable/income pair for the invoice total.
// Ledger postings are duplicate-proof by source document; a claim that
// already exists means entries from an earlier posting survive, which is
// exactly right when an invoice cycles draft and back.
func (c *Controller) postInvoice(ctx context.Context, tx TxRepository, inv Invoice) error {
	settings, ok, err := tx.GetLedgerSettings(ctx)
	if err != nil {
		return err
	}
	if !ok || settings.ReceivableAccountID == 0 || settings.IncomeAccountID == 0 {
		c.logger.Warn("ledger accounts not configured, skipping invoice posting",
			slog.String("invoice", inv.Number))
		return nil
	}
	_, err = ledger.PostPairTx(ctx, tx.Ledger(), ledger.Posting{
		SourceDoc:     inv.SourceKey(),
		Date:          c.now(),
		DebitAccount:  settings.ReceivableAccountID,
		CreditAccount: settings.IncomeAccountID,
		Amount:        inv.Total,
		Memo:          "Invoice " + inv.Number,
	})
	if errors.Is(err, ledger.ErrAlreadyPosted) {
		c.metrics.DuplicatePostingSkipped()
		return nil
	}
	return err
}

// recordPayment creates a receipt voucher and posts cash against the
// receivable. Without a configured cash account the invoice still goes
// paid; only the voucher and its entries are skipped.
func (c *Controller) recordPayment(ctx context.Context, tx TxRepository, inv Invoice) error {
	settings, ok, err := tx.GetLedgerSettings(ctx)
	if err != nil {
		return err
	}
	if !ok || settings.CashAccountID == nil || settings.ReceivableAccountID == 0 {
		c.logger.Warn("cash account not configured, marking paid without receipt voucher",
			slog.String("invoice", inv.Number))
		return nil
	}
	number, err := tx.NextVoucherNumber(ctx)
	if err != nil {
		return err
	}
	voucher, err := tx.InsertVoucher(ctx, VoucherInput{
		Number:    number,
		InvoiceID: inv.ID,
		Amount:    inv.Total,
		Date:      c.now(),
	})
	if err != nil {
		return err
	}
	_, err = ledger.PostPairTx(ctx, tx.Ledger(), ledger.Posting{
		SourceDoc:     VoucherSourceKey(voucher.Number),
		Date:          voucher.Date,
		DebitAccount:  *settings.CashAccountID,
		CreditAccount: settings.ReceivableAccountID,
		Amount:        voucher.Amount,
		Memo:          "Receipt " + voucher.Number + " for invoice " + inv.Number,
	})
	if err != nil {
		return err
	}
	c.metrics.VoucherCreated()
	c.logger.Info("receipt voucher created",
		slog.String("voucher", voucher.Number),
		slog.String("invoice", inv.Number),
		slog.Float64("amount", voucher.Amount))
	return nil
}

// teardownVouchers deletes the invoice's vouchers and unposts each one's
// cash entries.
func (c *Controller) teardownVouchers(ctx context.Context, tx TxRepository, inv Invoice) error {
	numbers, err := tx.DeleteVouchersByInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	for _, number := range numbers {
		if _, err := ledger.UnpostTx(ctx, tx.Ledger(), VoucherSourceKey(number)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) recordAudit(ctx context.Context, action string, inv Invoice) {
	if c.audit == nil {
		return
	}
	err := c.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(inv.ID, 10),
		Meta:     map[string]any{"number": inv.Number, "status": inv.Status},
		At:       c.now(),
	})
	if err != nil {
		c.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
