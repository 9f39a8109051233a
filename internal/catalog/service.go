package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/praxishq/praxis/internal/shared"
)

// Directory handles catalog business logic. The billing engine consumes it
// read-only; the mutating methods back the admin endpoints.
type Directory struct {
	repo Repository
}

// NewDirectory builds a Directory instance.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) ListCustomers(ctx context.Context) ([]Customer, error) {
	return d.repo.ListCustomers(ctx)
}

func (d *Directory) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return d.repo.GetCustomer(ctx, id)
}

func (d *Directory) CreateCustomer(ctx context.Context, in Customer) (Customer, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Customer{}, fmt.Errorf("%w: customer name required", shared.ErrInvalidInput)
	}
	in.Active = true
	return d.repo.CreateCustomer(ctx, in)
}

func (d *Directory) ListServices(ctx context.Context) ([]Service, error) {
	return d.repo.ListServices(ctx)
}

func (d *Directory) GetService(ctx context.Context, id int64) (Service, error) {
	return d.repo.GetService(ctx, id)
}

func (d *Directory) CreateService(ctx context.Context, in Service) (Service, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Service{}, fmt.Errorf("%w: service name required", shared.ErrInvalidInput)
	}
	if in.PaymentTerms != "" && !in.PaymentTerms.Valid() {
		return Service{}, fmt.Errorf("%w: unknown payment terms %q", shared.ErrInvalidInput, in.PaymentTerms)
	}
	in.Active = true
	return d.repo.CreateService(ctx, in)
}

func (d *Directory) AddTaskTemplate(ctx context.Context, in TaskTemplate) (TaskTemplate, error) {
	if in.ServiceID == 0 {
		return TaskTemplate{}, fmt.Errorf("%w: service id required", shared.ErrInvalidInput)
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return TaskTemplate{}, fmt.Errorf("%w: template title required", shared.ErrInvalidInput)
	}
	return d.repo.AddTaskTemplate(ctx, in)
}

func (d *Directory) AddDocumentTemplate(ctx context.Context, in DocumentTemplate) (DocumentTemplate, error) {
	if in.ServiceID == 0 {
		return DocumentTemplate{}, fmt.Errorf("%w: service id required", shared.ErrInvalidInput)
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return DocumentTemplate{}, fmt.Errorf("%w: template name required", shared.ErrInvalidInput)
	}
	return d.repo.AddDocumentTemplate(ctx, in)
}

func (d *Directory) SetPriceOverride(ctx context.Context, in PriceOverride) error {
	if in.CustomerID == 0 || in.ServiceID == 0 {
		return fmt.Errorf("%w: customer and service required", shared.ErrInvalidInput)
	}
	if in.Price <= 0 {
		return fmt.Errorf("%w: override price must be positive", shared.ErrInvalidInput)
	}
	return d.repo.SetPriceOverride(ctx, in)
}

func (d *Directory) GetLedgerSettings(ctx context.Context) (*LedgerSettings, error) {
	return d.repo.GetLedgerSettings(ctx)
}

func (d *Directory) SaveLedgerSettings(ctx context.Context, in LedgerSettings) error {
	if in.ReceivableAccountID == 0 || in.IncomeAccountID == 0 {
		return fmt.Errorf("%w: receivable and income accounts required", shared.ErrInvalidInput)
	}
	return d.repo.SaveLedgerSettings(ctx, in)
}
