package report

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/praxishq/praxis/internal/invoices"
	"github.com/praxishq/praxis/web"
)

var invoiceTmpl = template.Must(template.ParseFS(web.Templates, "templates/invoice.html"))

// invoiceDocument is the template payload for one invoice PDF.
type invoiceDocument struct {
	Invoice     invoices.Invoice
	GeneratedAt time.Time
}

// InvoiceRenderer turns invoices into PDF documents via Gotenberg.
type InvoiceRenderer struct {
	client *Client
	now    func() time.Time
}

// NewInvoiceRenderer builds an InvoiceRenderer instance.
func NewInvoiceRenderer(client *Client) *InvoiceRenderer {
	return &InvoiceRenderer{client: client, now: time.Now}
}

// RenderInvoice produces the PDF bytes for one invoice.
func (r *InvoiceRenderer) RenderInvoice(ctx context.Context, inv invoices.Invoice) ([]byte, error) {
	var buf bytes.Buffer
	err := invoiceTmpl.Execute(&buf, invoiceDocument{Invoice: inv, GeneratedAt: r.now()})
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, buf.Bytes())
}
