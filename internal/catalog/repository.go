package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxishq/praxis/internal/shared"
)

// Repository encapsulates catalog data access.
type Repository interface {
	ListCustomers(ctx context.Context) ([]Customer, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	CreateCustomer(ctx context.Context, in Customer) (Customer, error)

	ListServices(ctx context.Context) ([]Service, error)
	GetService(ctx context.Context, id int64) (Service, error)
	CreateService(ctx context.Context, in Service) (Service, error)

	ListTaskTemplates(ctx context.Context, serviceID int64) ([]TaskTemplate, error)
	ListDocumentTemplates(ctx context.Context, serviceID int64) ([]DocumentTemplate, error)
	AddTaskTemplate(ctx context.Context, in TaskTemplate) (TaskTemplate, error)
	AddDocumentTemplate(ctx context.Context, in DocumentTemplate) (DocumentTemplate, error)

	GetPriceOverride(ctx context.Context, customerID, serviceID int64) (*PriceOverride, error)
	SetPriceOverride(ctx context.Context, in PriceOverride) error

	GetLedgerSettings(ctx context.Context) (*LedgerSettings, error)
	SaveLedgerSettings(ctx context.Context, in LedgerSettings) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed catalog repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, email, phone, active, created_at, updated_at FROM customers ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `SELECT id, name, email, phone, active, created_at, updated_at FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, shared.ErrNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *repository) CreateCustomer(ctx context.Context, in Customer) (Customer, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO customers (name, email, phone, active) VALUES ($1,$2,$3,$4) RETURNING id, created_at, updated_at`,
		in.Name, in.Email, in.Phone, in.Active).Scan(&in.ID, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return Customer{}, err
	}
	return in, nil
}

func (r *repository) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, default_price, tax_rate, payment_terms, active, created_at, updated_at FROM services ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DefaultPrice, &s.TaxRate, &s.PaymentTerms, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) GetService(ctx context.Context, id int64) (Service, error) {
	var s Service
	err := r.db.QueryRow(ctx, `SELECT id, name, default_price, tax_rate, payment_terms, active, created_at, updated_at FROM services WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.DefaultPrice, &s.TaxRate, &s.PaymentTerms, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Service{}, shared.ErrNotFound
		}
		return Service{}, err
	}
	return s, nil
}

func (r *repository) CreateService(ctx context.Context, in Service) (Service, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO services (name, default_price, tax_rate, payment_terms, active) VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`,
		in.Name, in.DefaultPrice, in.TaxRate, in.PaymentTerms, in.Active).Scan(&in.ID, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return Service{}, err
	}
	return in, nil
}

func (r *repository) ListTaskTemplates(ctx context.Context, serviceID int64) ([]TaskTemplate, error) {
	rows, err := r.db.Query(ctx, `SELECT id, service_id, title, priority, estimated_hours, sort_order FROM service_task_templates WHERE service_id=$1 ORDER BY sort_order ASC, id ASC`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaskTemplate
	for rows.Next() {
		var t TaskTemplate
		if err := rows.Scan(&t.ID, &t.ServiceID, &t.Title, &t.Priority, &t.EstimatedHours, &t.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) ListDocumentTemplates(ctx context.Context, serviceID int64) ([]DocumentTemplate, error) {
	rows, err := r.db.Query(ctx, `SELECT id, service_id, name, sort_order FROM service_document_templates WHERE service_id=$1 ORDER BY sort_order ASC, id ASC`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DocumentTemplate
	for rows.Next() {
		var d DocumentTemplate
		if err := rows.Scan(&d.ID, &d.ServiceID, &d.Name, &d.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repository) AddTaskTemplate(ctx context.Context, in TaskTemplate) (TaskTemplate, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO service_task_templates (service_id, title, priority, estimated_hours, sort_order) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		in.ServiceID, in.Title, in.Priority, in.EstimatedHours, in.SortOrder).Scan(&in.ID)
	if err != nil {
		return TaskTemplate{}, err
	}
	return in, nil
}

func (r *repository) AddDocumentTemplate(ctx context.Context, in DocumentTemplate) (DocumentTemplate, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO service_document_templates (service_id, name, sort_order) VALUES ($1,$2,$3) RETURNING id`,
		in.ServiceID, in.Name, in.SortOrder).Scan(&in.ID)
	if err != nil {
		return DocumentTemplate{}, err
	}
	return in, nil
}

func (r *repository) GetPriceOverride(ctx context.Context, customerID, serviceID int64) (*PriceOverride, error) {
	var o PriceOverride
	err := r.db.QueryRow(ctx, `SELECT customer_id, service_id, price, updated_at FROM customer_service_prices WHERE customer_id=$1 AND service_id=$2`, customerID, serviceID).
		Scan(&o.CustomerID, &o.ServiceID, &o.Price, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *repository) SetPriceOverride(ctx context.Context, in PriceOverride) error {
	_, err := r.db.Exec(ctx, `INSERT INTO customer_service_prices (customer_id, service_id, price, updated_at) VALUES ($1,$2,$3,NOW())
ON CONFLICT (customer_id, service_id) DO UPDATE SET price=EXCLUDED.price, updated_at=NOW()`, in.CustomerID, in.ServiceID, in.Price)
	return err
}

func (r *repository) GetLedgerSettings(ctx context.Context) (*LedgerSettings, error) {
	var s LedgerSettings
	err := r.db.QueryRow(ctx, `SELECT receivable_account_id, income_account_id, cash_account_id, updated_at FROM ledger_settings WHERE singleton=TRUE`).
		Scan(&s.ReceivableAccountID, &s.IncomeAccountID, &s.CashAccountID, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) SaveLedgerSettings(ctx context.Context, in LedgerSettings) error {
	_, err := r.db.Exec(ctx, `INSERT INTO ledger_settings (singleton, receivable_account_id, income_account_id, cash_account_id, updated_at) VALUES (TRUE,$1,$2,$3,NOW())
ON CONFLICT (singleton) DO UPDATE SET receivable_account_id=EXCLUDED.receivable_account_id, income_account_id=EXCLUDED.income_account_id, cash_account_id=EXCLUDED.cash_account_id, updated_at=NOW()`,
		in.ReceivableAccountID, in.IncomeAccountID, in.CashAccountID)
	return err
}
