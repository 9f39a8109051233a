package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/praxishq/praxis/internal/shared"
	_ "github.com/praxishq/praxis/testing"
)

type memoryRepo struct {
	customers map[int64]Customer
	services  map[int64]Service
	taskTpls  []TaskTemplate
	docTpls   []DocumentTemplate
	overrides map[[2]int64]PriceOverride
	settings  *LedgerSettings

	nextCustomerID int64
	nextServiceID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		customers: make(map[int64]Customer),
		services:  make(map[int64]Service),
		overrides: make(map[[2]int64]PriceOverride),
	}
}

func (r *memoryRepo) ListCustomers(ctx context.Context) ([]Customer, error) {
	var out []Customer
	for id := int64(1); id <= r.nextCustomerID; id++ {
		if c, ok := r.customers[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return Customer{}, shared.ErrNotFound
	}
	return c, nil
}

func (r *memoryRepo) CreateCustomer(ctx context.Context, in Customer) (Customer, error) {
	r.nextCustomerID++
	in.ID = r.nextCustomerID
	r.customers[in.ID] = in
	return in, nil
}

func (r *memoryRepo) ListServices(ctx context.Context) ([]Service, error) {
	var out []Service
	for id := int64(1); id <= r.nextServiceID; id++ {
		if s, ok := r.services[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetService(ctx context.Context, id int64) (Service, error) {
	s, ok := r.services[id]
	if !ok {
		return Service{}, shared.ErrNotFound
	}
	return s, nil
}

func (r *memoryRepo) CreateService(ctx context.Context, in Service) (Service, error) {
	r.nextServiceID++
	in.ID = r.nextServiceID
	r.services[in.ID] = in
	return in, nil
}

func (r *memoryRepo) ListTaskTemplates(ctx context.Context, serviceID int64) ([]TaskTemplate, error) {
	var out []TaskTemplate
	for _, t := range r.taskTpls {
		if t.ServiceID == serviceID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListDocumentTemplates(ctx context.Context, serviceID int64) ([]DocumentTemplate, error) {
	var out []DocumentTemplate
	for _, d := range r.docTpls {
		if d.ServiceID == serviceID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memoryRepo) AddTaskTemplate(ctx context.Context, in TaskTemplate) (TaskTemplate, error) {
	in.ID = int64(len(r.taskTpls) + 1)
	r.taskTpls = append(r.taskTpls, in)
	return in, nil
}

func (r *memoryRepo) AddDocumentTemplate(ctx context.Context, in DocumentTemplate) (DocumentTemplate, error) {
	in.ID = int64(len(r.docTpls) + 1)
	r.docTpls = append(r.docTpls, in)
	return in, nil
}

func (r *memoryRepo) GetPriceOverride(ctx context.Context, customerID, serviceID int64) (*PriceOverride, error) {
	if o, ok := r.overrides[[2]int64{customerID, serviceID}]; ok {
		return &o, nil
	}
	return nil, nil
}

func (r *memoryRepo) SetPriceOverride(ctx context.Context, in PriceOverride) error {
	r.overrides[[2]int64{in.CustomerID, in.ServiceID}] = in
	return nil
}

func (r *memoryRepo) GetLedgerSettings(ctx context.Context) (*LedgerSettings, error) {
	return r.settings, nil
}

func (r *memoryRepo) SaveLedgerSettings(ctx context.Context, in LedgerSettings) error {
	r.settings = &in
	return nil
}

func TestCreateCustomerTrimsAndValidates(t *testing.T) {
	d := NewDirectory(newMemoryRepo())
	ctx := context.Background()

	c, err := d.CreateCustomer(ctx, Customer{Name: "  Acme GmbH  "})
	require.NoError(t, err)
	require.Equal(t, "Acme GmbH", c.Name)
	require.True(t, c.Active)

	_, err = d.CreateCustomer(ctx, Customer{Name: "   "})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCreateServiceRejectsUnknownTerms(t *testing.T) {
	d := NewDirectory(newMemoryRepo())
	ctx := context.Background()

	price := 1500.0
	s, err := d.CreateService(ctx, Service{Name: "Bookkeeping", DefaultPrice: &price, PaymentTerms: TermsNet30})
	require.NoError(t, err)
	require.True(t, s.Active)

	_, err = d.CreateService(ctx, Service{Name: "Bookkeeping", PaymentTerms: "net_90"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestTemplatesRequireServiceAndTitle(t *testing.T) {
	d := NewDirectory(newMemoryRepo())
	ctx := context.Background()

	_, err := d.AddTaskTemplate(ctx, TaskTemplate{Title: "Reconcile"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = d.AddTaskTemplate(ctx, TaskTemplate{ServiceID: 1, Title: "  "})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	tpl, err := d.AddTaskTemplate(ctx, TaskTemplate{ServiceID: 1, Title: " Reconcile bank "})
	require.NoError(t, err)
	require.Equal(t, "Reconcile bank", tpl.Title)

	_, err = d.AddDocumentTemplate(ctx, DocumentTemplate{ServiceID: 1, Name: ""})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSetPriceOverrideRequiresPositivePrice(t *testing.T) {
	repo := newMemoryRepo()
	d := NewDirectory(repo)
	ctx := context.Background()

	err := d.SetPriceOverride(ctx, PriceOverride{CustomerID: 1, ServiceID: 1, Price: 0})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	err = d.SetPriceOverride(ctx, PriceOverride{CustomerID: 1, ServiceID: 1, Price: 900})
	require.NoError(t, err)
	got, err := repo.GetPriceOverride(ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 900.0, got.Price)
}

func TestSaveLedgerSettingsRequiresControlAccounts(t *testing.T) {
	d := NewDirectory(newMemoryRepo())
	ctx := context.Background()

	err := d.SaveLedgerSettings(ctx, LedgerSettings{IncomeAccountID: 4100})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	err = d.SaveLedgerSettings(ctx, LedgerSettings{ReceivableAccountID: 1200, IncomeAccountID: 4100})
	require.NoError(t, err)

	got, err := d.GetLedgerSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int64(1200), got.ReceivableAccountID)
}

func TestPaymentTermsDueFrom(t *testing.T) {
	date := time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC)
	require.Equal(t, date.AddDate(0, 0, 30), TermsNet30.DueFrom(date))
	require.Equal(t, date, TermsDueOnReceipt.DueFrom(date))
	require.Equal(t, date.AddDate(0, 0, 30), PaymentTerms("").DueFrom(date))
}
