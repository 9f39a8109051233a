package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/praxishq/praxis/internal/invoices"
	"github.com/praxishq/praxis/internal/observability"
	"github.com/praxishq/praxis/internal/shared"
)

// BillingOwner is the entity whose completion drives a billing decision:
// a period of a recurring work, or a non-recurring work itself. Work is
// always loaded; Period is nil for work-scoped owners.
type BillingOwner struct {
	Work   Work
	Period *Period
}

func (o BillingOwner) ref() OwnerRef {
	if o.Period != nil {
		return OwnerRef{WorkID: o.Work.ID, PeriodID: &o.Period.ID}
	}
	return OwnerRef{WorkID: o.Work.ID}
}

func (o BillingOwner) billed() bool {
	if o.Period != nil {
		return o.Period.Billed
	}
	return o.Work.Billed
}

func (o BillingOwner) label() string {
	if o.Period != nil {
		return o.Period.Name
	}
	return o.Work.Title
}

// Engine is the billing decision engine. EvaluateTx is the only code
// path that emits invoices, and the billed flag it guards on is the only
// source of truth for "has this owner been billed"; invoice existence
// is never queried to answer that question.
type Engine struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewEngine builds an Engine instance.
func NewEngine(logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{logger: logger, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// EvaluateTx runs the billing decision for an owner that just reached
// completion, inside the caller's transaction. At most one invoice is
// ever produced per owner per billing epoch: the billed flag is checked
// first and set in the same transaction that inserts the invoice.
//
// Configuration gaps (no resolvable price, missing tax rate) skip the
// decision with a log line; they never fail the triggering user action.
func (e *Engine) EvaluateTx(ctx context.Context, tx TxRepository, owner BillingOwner) error {
	if owner.billed() {
		e.metrics.BillingSkipped("already_billed")
		return nil
	}
	if !owner.Work.AutoBill {
		e.metrics.BillingSkipped("auto_bill_off")
		return nil
	}

	svc, err := tx.GetServiceBilling(ctx, owner.Work.ServiceID)
	if err != nil {
		return fmt.Errorf("billing: resolve service %d: %w", owner.Work.ServiceID, err)
	}

	price, source, err := e.resolvePrice(ctx, tx, owner, svc)
	if err != nil {
		return err
	}
	if price <= 0 {
		e.metrics.BillingSkipped("no_price")
		e.logger.Info("skipping billing, no resolvable price",
			slog.Int64("work_id", owner.Work.ID),
			slog.String("owner", owner.label()))
		return nil
	}

	// Tax rate is stored as a fraction, 0.05 for a 5% levy.
	taxRate := 0.0
	if svc.TaxRate != nil {
		taxRate = *svc.TaxRate
	}
	subtotal := shared.Round2(price)
	taxAmount := shared.Round2(subtotal * taxRate)
	total := shared.Round2(subtotal + taxAmount)

	today := DateOf(e.now())
	number, err := tx.NextInvoiceNumber(ctx)
	if err != nil {
		return fmt.Errorf("billing: next invoice number: %w", err)
	}

	input := invoices.InvoiceInput{
		Number:      number,
		CustomerID:  owner.Work.CustomerID,
		WorkID:      owner.Work.ID,
		InvoiceDate: today,
		DueDate:     svc.PaymentTerms.DueFrom(today),
		Subtotal:    subtotal,
		TaxAmount:   taxAmount,
		Total:       total,
		Lines: []invoices.LineInput{{
			Description: fmt.Sprintf("%s (%s)", svc.Name, owner.label()),
			Quantity:    1,
			UnitPrice:   subtotal,
			Amount:      subtotal,
		}},
	}
	if owner.Period != nil {
		input.PeriodID = &owner.Period.ID
	}

	inv, err := tx.InsertInvoice(ctx, input)
	if err != nil {
		return fmt.Errorf("billing: insert invoice: %w", err)
	}

	if owner.Period != nil {
		err = tx.SetPeriodBilled(ctx, owner.Period.ID, inv.ID)
	} else {
		err = tx.SetWorkBilled(ctx, owner.Work.ID, inv.ID)
	}
	if err != nil {
		return fmt.Errorf("billing: set billed flag: %w", err)
	}

	e.metrics.InvoiceEmitted()
	e.logger.Info("invoice emitted",
		slog.String("number", inv.Number),
		slog.Int64("work_id", owner.Work.ID),
		slog.String("owner", owner.label()),
		slog.String("price_source", source),
		slog.Float64("total", total))
	return nil
}

// resolvePrice walks the resolution chain: customer override, period
// amount, work amount, service default. Zero means "nothing resolved".
func (e *Engine) resolvePrice(ctx context.Context, tx TxRepository, owner BillingOwner, svc ServiceBilling) (float64, string, error) {
	override, err := tx.GetOverridePrice(ctx, owner.Work.CustomerID, owner.Work.ServiceID)
	if err != nil {
		return 0, "", fmt.Errorf("billing: resolve override price: %w", err)
	}
	if override != nil && *override > 0 {
		return *override, "customer_override", nil
	}
	if owner.Period != nil && owner.Period.BillingAmount != nil && *owner.Period.BillingAmount > 0 {
		return *owner.Period.BillingAmount, "period", nil
	}
	if owner.Work.BillingAmount != nil && *owner.Work.BillingAmount > 0 {
		return *owner.Work.BillingAmount, "work", nil
	}
	if svc.DefaultPrice != nil && *svc.DefaultPrice > 0 {
		return *svc.DefaultPrice, "service_default", nil
	}
	return 0, "", nil
}
