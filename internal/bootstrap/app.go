// Package bootstrap wires the billing services from configuration. Both
// binaries build their dependencies through New.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/propledger/backend/internal/application/analytics"
	billingapp "github.com/propledger/backend/internal/application/billing"
	invoiceapp "github.com/propledger/backend/internal/application/invoice"
	notificationapp "github.com/propledger/backend/internal/application/notification"
	paymentapp "github.com/propledger/backend/internal/application/payment"
	"github.com/propledger/backend/internal/domain/job"
	"github.com/propledger/backend/internal/domain/notification"
	"github.com/propledger/backend/internal/infrastructure/cache"
	"github.com/propledger/backend/internal/infrastructure/config"
	"github.com/propledger/backend/internal/infrastructure/event"
	"github.com/propledger/backend/internal/infrastructure/logger"
	"github.com/propledger/backend/internal/infrastructure/messaging"
	"github.com/propledger/backend/internal/infrastructure/metrics"
	mpesa "github.com/propledger/backend/internal/infrastructure/payment"
	"github.com/propledger/backend/internal/infrastructure/persistence"
	"github.com/propledger/backend/internal/infrastructure/scheduler"
	"github.com/propledger/backend/internal/infrastructure/telemetry"
)

// Options selects the optional parts of the graph
type Options struct {
	// Gateway builds the M-Pesa adapter and payment service. The CLI runs
	// without it.
	Gateway bool
	// Metrics receives job and callback observations. Nil disables them.
	Metrics *metrics.Metrics
}

// App holds the wired services and the resources they own
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *persistence.Database
	Backends *cache.Backends
	Bus      *event.Bus
	Tracer   *telemetry.TracerProvider
	Locker   scheduler.Locker
	Reader   *persistence.GormPropertyReader

	Payments      *invoiceapp.PaymentService
	Disbursements *invoiceapp.DisbursementService
	Generator     *invoiceapp.Generator
	Reminders     *invoiceapp.ReminderService
	Billing       *billingapp.Service
	Mpesa         *paymentapp.MpesaService

	nats *nats.Conn
}

// New connects to the database, Redis and NATS and builds every service.
// Call Close to release them.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (_ *App, err error) {
	a := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.Tracer, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return nil, err
	}

	gormOpts := []logger.GormLoggerOption{}
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		gormOpts = append(gormOpts, logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	}
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), gormOpts...)
	a.DB, err = persistence.Connect(&cfg.Database, gormLog)
	if err != nil {
		return nil, err
	}
	if opts.Metrics != nil {
		sqlDB, err := a.DB.SQL()
		if err != nil {
			return nil, err
		}
		if err := opts.Metrics.RegisterDBStats(sqlDB, cfg.Database.DBName); err != nil {
			log.Warn("Failed to export connection pool metrics", zap.Error(err))
		}
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        "postgresql",
		}, log)
		if err = plugin.Register(a.DB.DB); err != nil {
			return nil, fmt.Errorf("failed to register db tracing: %w", err)
		}
	}

	a.Backends, err = cache.NewBackends(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.IsProduction()),
	)
	if err != nil {
		return nil, err
	}
	if a.Backends.Client != nil {
		a.Locker = scheduler.NewRedisLocker(a.Backends.Client)
	} else {
		a.Locker = scheduler.NewLocalLocker()
	}

	dispatcher, err := a.dispatcher()
	if err != nil {
		return nil, err
	}

	a.Bus = event.NewBus(log)
	notifications := notificationapp.NewHandler(
		persistence.NewGormNotificationRepository(a.DB.DB), dispatcher,
		persistence.NewGormPropertyReader(a.DB.DB), log)
	a.Bus.Subscribe(event.NewIdempotentHandler(notifications, a.Backends.Idempotency, 0, log))
	a.Bus.Subscribe(analytics.NewPurgeHandler(a.Backends.Purger, log))

	var observer job.Observer
	if opts.Metrics != nil {
		observer = opts.Metrics
	}
	a.build(observer)

	if opts.Gateway {
		if err = a.buildGateway(opts.Metrics); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) dispatcher() (notification.Dispatcher, error) {
	cfg := a.Config.NATS
	if cfg.URL == "" {
		a.Logger.Info("NATS not configured, notifications are logged only")
		return messaging.NewLoggingDispatcher(a.Logger), nil
	}
	conn, err := messaging.Connect(messaging.Config{
		URL:           cfg.URL,
		Name:          cfg.Name,
		SubjectPrefix: cfg.SubjectPrefix,
		ReconnectWait: cfg.ReconnectWait,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.nats = conn
	return messaging.NewNatsDispatcher(conn, cfg.SubjectPrefix, a.Logger), nil
}

func (a *App) build(observer job.Observer) {
	db := a.DB.DB
	rate := a.Config.Billing.DefaultMonthlyRate
	scope := persistence.NewGormTransactionScope(db, rate)
	invoices := persistence.NewGormInvoiceRepository(db)
	registry := persistence.NewGormRateRegistry(db, rate)
	a.Reader = persistence.NewGormPropertyReader(db)

	a.Payments = invoiceapp.NewPaymentService(scope, invoices, a.Reader, registry, a.Bus, a.Logger)
	a.Disbursements = invoiceapp.NewDisbursementService(scope, invoices, a.Reader, registry, a.Bus, a.Logger)
	a.Generator = invoiceapp.NewGenerator(scope, a.Reader, registry, a.Bus, observer, a.Logger)
	a.Reminders = invoiceapp.NewReminderService(scope, persistence.NewGormReminderRepository(db),
		a.Reader, a.Bus, observer, a.Logger, a.Config.Billing.ReminderStartDay)
	a.Billing = billingapp.NewService(scope,
		persistence.NewGormBillingAccountRepository(db),
		persistence.NewGormBillingInvoiceRepository(db),
		a.Reader, registry, observer, a.Logger, a.Config.Billing.NewPropertyCutoff)
}

func (a *App) buildGateway(m *metrics.Metrics) error {
	cfg := a.Config.Mpesa
	adapter, err := mpesa.NewMpesaAdapter(&mpesa.MpesaConfig{
		Environment:    cfg.Environment,
		BaseURL:        cfg.BaseURL,
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		ShortCode:      cfg.ShortCode,
		Passkey:        cfg.Passkey,
		CallbackURL:    cfg.CallbackURL,
		CountryCode:    cfg.CountryCode,
	}, mpesa.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	if err != nil {
		return fmt.Errorf("invalid mpesa configuration: %w", err)
	}

	db := a.DB.DB
	svcCfg := paymentapp.MpesaServiceConfig{
		Scope:           persistence.NewGormTransactionScope(db, a.Config.Billing.DefaultMonthlyRate),
		Transactions:    persistence.NewGormTransactionRepository(db),
		Invoices:        persistence.NewGormInvoiceRepository(db),
		Accounts:        persistence.NewGormBillingAccountRepository(db),
		BillingInvoices: persistence.NewGormBillingInvoiceRepository(db),
		Reader:          a.Reader,
		Gateway:         adapter,
		Broker:          a.Backends.Broker,
		Publisher:       a.Bus,
		Logger:          a.Logger,
		WaitWindow:      cfg.WaitWindow,
	}
	if m != nil {
		svcCfg.Metrics = m
	}
	a.Mpesa = paymentapp.NewMpesaService(svcCfg)
	return nil
}

// Close releases every connection the App opened
func (a *App) Close(ctx context.Context) {
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.Logger.Warn("Failed to drain NATS connection", zap.Error(err))
		}
	}
	if a.Backends != nil {
		if err := a.Backends.Close(); err != nil {
			a.Logger.Warn("Failed to close Redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error("Error closing database", zap.Error(err))
		}
	}
	if a.Tracer != nil {
		if err := a.Tracer.Shutdown(ctx); err != nil {
			a.Logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
}

// HealthChecks returns one probe per external dependency
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"database": a.DB.Ping,
	}
	if client := a.Backends.Client; client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	if conn := a.nats; conn != nil {
		checks["nats"] = func(context.Context) error {
			if !conn.IsConnected() {
				return errors.New("nats: " + conn.Status().String())
			}
			return nil
		}
	}
	return checks
}

// RunJob runs one batch job to completion and returns its result object.
// Failures are reported in the result.
func (a *App) RunJob(ctx context.Context, kind scheduler.JobKind, triggeredBy string) (any, error) {
	switch kind {
	case scheduler.JobMonthlyInvoices:
		return a.Generator.RunCurrent(ctx, triggeredBy), nil
	case scheduler.JobPaymentReminder:
		return a.Reminders.Run(ctx, triggeredBy), nil
	case scheduler.JobYearlyBilling:
		year := time.Now().In(a.Config.App.Location()).Year()
		return a.Billing.RegenerateYear(ctx, year, false, triggeredBy), nil
	default:
		return nil, fmt.Errorf("unknown job %q", kind)
	}
}

// RegisterJobs binds every batch job to the scheduler
func (a *App) RegisterJobs(s *scheduler.Scheduler) {
	for _, kind := range scheduler.AllJobKinds() {
		s.Register(kind, func(ctx context.Context, triggeredBy string) error {
			result, err := a.RunJob(ctx, kind, triggeredBy)
			if err != nil {
				return err
			}
			a.Logger.Info("Batch job finished",
				zap.String("job", string(kind)),
				zap.String("triggered_by", triggeredBy),
				zap.Any("result", result),
			)
			return nil
		})
	}
}
