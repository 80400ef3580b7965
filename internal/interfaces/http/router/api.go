package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/infrastructure/logger"
	"github.com/propledger/backend/internal/infrastructure/metrics"
	"github.com/propledger/backend/internal/interfaces/http/handler"
	"github.com/propledger/backend/internal/interfaces/http/middleware"
)

// Handlers bundles the HTTP handlers of the billing API
type Handlers struct {
	Invoice      *handler.InvoiceHandler
	Disbursement *handler.DisbursementHandler
	Billing      *handler.BillingHandler
	Payment      *handler.PaymentHandler
	Job          *handler.JobHandler
	System       *handler.SystemHandler
}

// Options configures the middleware chain around the handlers
type Options struct {
	Logger      *zap.Logger
	Verifier    middleware.TokenVerifier
	Guard       *middleware.CapabilityGuard
	Metrics     *metrics.Metrics
	Tracing     middleware.TracingConfig
	CORS        middleware.CORSConfig
	HSTS        bool
	MaxBodySize int64
	// Limiter throttles the STK push and callback routes. Nil disables it.
	Limiter        *middleware.RateLimiter
	TrustedProxies []string
}

// NewEngine builds the gin engine with every route of the API
func NewEngine(h Handlers, opts Options) (*gin.Engine, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	guard := opts.Guard
	if guard == nil {
		guard = middleware.NewCapabilityGuard(nil, log)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		middleware.Tracing(opts.Tracing),
		middleware.SpanEnricher(),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.CORS(opts.CORS),
		middleware.Secure(opts.HSTS),
	)
	if opts.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(opts.MaxBodySize))
	}
	if opts.Metrics != nil {
		engine.Use(opts.Metrics.GinMiddleware())
		engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	engine.GET("/health", h.System.Health)
	engine.GET("/system/info", h.System.GetSystemInfo)

	throttle := func(c *gin.Context) { c.Next() }
	if opts.Limiter != nil {
		throttle = middleware.RateLimit(opts.Limiter, nil)
	}
	authenticate := middleware.Authenticate(opts.Verifier, log)
	can := guard.Require

	callback := newResource("/payments/mpesa")
	callback.post("/callback", throttle, h.Payment.Callback)

	invoices := newResource("/invoices", authenticate)
	invoices.post("/payments", can(identity.ActionRecordPayment, identity.ResourceInvoice), h.Invoice.RecordPayment)
	invoices.post("/:id/cancel", can(identity.ActionCancel, identity.ResourceInvoice), h.Invoice.Cancel)
	invoices.get("", can(identity.ActionRead, identity.ResourceInvoice), h.Invoice.List)
	invoices.get("/:id", can(identity.ActionRead, identity.ResourceInvoice), h.Invoice.Get)

	disbursements := newResource("/disbursements", authenticate)
	disbursements.get("", can(identity.ActionRead, identity.ResourceDisbursement), h.Disbursement.Report)
	disbursements.get("/export", can(identity.ActionRead, identity.ResourceDisbursement), h.Disbursement.Export)
	disbursements.post("/:invoiceId", can(identity.ActionUpdate, identity.ResourceDisbursement), h.Disbursement.MarkDisbursed)

	billing := newResource("/billing", authenticate)
	billing.get("/accounts/:developerId", can(identity.ActionRead, identity.ResourceBilling), h.Billing.GetAccount)
	billing.get("/invoices", can(identity.ActionRead, identity.ResourceBilling), h.Billing.ListInvoices)
	billing.post("/properties", can(identity.ActionCreate, identity.ResourceBilling), h.Billing.EnsureProperty)
	billing.post("/regenerate", can(identity.ActionTrigger, identity.ResourceJob), h.Billing.Regenerate)
	billing.put("/rate", can(identity.ActionUpdate, identity.ResourceBillingRate), h.Billing.ChangeRate)

	payments := newResource("/payments/mpesa", authenticate)
	payments.post("/stk", throttle, can(identity.ActionInitiate, identity.ResourcePayment), h.Payment.Initiate)
	payments.get("/:checkoutId/stream", can(identity.ActionRead, identity.ResourcePayment), h.Payment.Stream)

	jobs := newResource("/jobs", authenticate, can(identity.ActionTrigger, identity.ResourceJob))
	jobs.post("/monthly-invoices", h.Job.GenerateMonthlyInvoices)
	jobs.post("/reminders", h.Job.SendReminders)

	reminders := newResource("/reminders", authenticate)
	reminders.get("", can(identity.ActionRead, identity.ResourceReminder), h.Job.ListReminders)

	routes := mount(engine, callback, invoices, disbursements, billing, payments, jobs, reminders)
	log.Debug("Routes mounted", zap.Int("count", len(routes)))
	return engine, nil
}
