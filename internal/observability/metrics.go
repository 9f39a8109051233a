package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the billing engine.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	periodsGenerated prometheus.Counter
	invoicesEmitted  prometheus.Counter
	billingSkipped   *prometheus.CounterVec
	postingsSkipped  prometheus.Counter
	vouchersCreated  prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "praxis_http_requests_total",
		Help: "Count of HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "praxis_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	periodsGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "praxis_billing_periods_generated_total",
		Help: "Billing periods created by the period generator.",
	})
	invoicesEmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "praxis_billing_invoices_emitted_total",
		Help: "Invoices emitted by the billing decision engine.",
	})
	billingSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "praxis_billing_skipped_total",
		Help: "Billing evaluations skipped, by reason.",
	}, []string{"reason"})
	postingsSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "praxis_ledger_duplicate_postings_total",
		Help: "Ledger postings skipped because the source document was already posted.",
	})
	vouchersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "praxis_receipt_vouchers_created_total",
		Help: "Receipt vouchers created on invoice payment.",
	})
	registry.MustRegister(requests, duration, periodsGenerated, invoicesEmitted, billingSkipped, postingsSkipped, vouchersCreated)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		periodsGenerated: periodsGenerated,
		invoicesEmitted:  invoicesEmitted,
		billingSkipped:   billingSkipped,
		postingsSkipped:  postingsSkipped,
		vouchersCreated:  vouchersCreated,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for each HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// PeriodGenerated increments the generated-periods counter.
func (m *Metrics) PeriodGenerated() {
	if m != nil {
		m.periodsGenerated.Inc()
	}
}

// InvoiceEmitted increments the emitted-invoices counter.
func (m *Metrics) InvoiceEmitted() {
	if m != nil {
		m.invoicesEmitted.Inc()
	}
}

// BillingSkipped increments the skipped-evaluations counter for a reason.
func (m *Metrics) BillingSkipped(reason string) {
	if m != nil {
		m.billingSkipped.WithLabelValues(reason).Inc()
	}
}

// DuplicatePostingSkipped increments the duplicate-posting counter.
func (m *Metrics) DuplicatePostingSkipped() {
	if m != nil {
		m.postingsSkipped.Inc()
	}
}

// VoucherCreated increments the receipt-voucher counter.
func (m *Metrics) VoucherCreated() {
	if m != nil {
		m.vouchersCreated.Inc()
	}
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
