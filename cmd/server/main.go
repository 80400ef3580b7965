package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/propledger/backend/internal/bootstrap"
	"github.com/propledger/backend/internal/infrastructure/auth"
	"github.com/propledger/backend/internal/infrastructure/config"
	"github.com/propledger/backend/internal/infrastructure/logger"
	"github.com/propledger/backend/internal/infrastructure/metrics"
	"github.com/propledger/backend/internal/infrastructure/scheduler"
	"github.com/propledger/backend/internal/interfaces/http/handler"
	"github.com/propledger/backend/internal/interfaces/http/middleware"
	"github.com/propledger/backend/internal/interfaces/http/router"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting billing API",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Telemetry.MetricsEnabled {
		m = metrics.New(cfg.Telemetry.MetricsNamespace, nil)
	}

	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{Gateway: true, Metrics: m})
	if err != nil {
		log.Fatal("Failed to wire services", zap.Error(err))
	}
	defer app.Close(context.Background())

	if err := app.Bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	var sched *scheduler.Scheduler
	var trigger *scheduler.CronTrigger
	if cfg.Scheduler.Enabled {
		sched, trigger, err = startScheduler(ctx, cfg, app, log)
		if err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		go limiter.Run(ctx)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	checks := map[string]handler.HealthCheck{}
	for name, check := range app.HealthChecks() {
		checks[name] = check
	}

	engine, err := router.NewEngine(router.Handlers{
		Invoice:      handler.NewInvoiceHandler(app.Payments),
		Disbursement: handler.NewDisbursementHandler(app.Disbursements, app.Reader),
		Billing:      handler.NewBillingHandler(app.Billing),
		Payment:      handler.NewPaymentHandler(app.Mpesa, handler.DefaultStreamHeartbeat),
		Job:          handler.NewJobHandler(app.Generator, app.Reminders),
		System:       handler.NewSystemHandler(cfg.App.Name, version, checks),
	}, router.Options{
		Logger:   log,
		Verifier: auth.NewJWTService(cfg.JWT),
		Guard:    middleware.NewCapabilityGuard(nil, log),
		Metrics:  m,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		CORS:           cors,
		HSTS:           cfg.IsProduction(),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		Limiter:        limiter,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	// The status stream stays open for the whole wait window, so the write
	// timeout must outlast it.
	writeTimeout := cfg.HTTP.WriteTimeout
	if writeTimeout > 0 && writeTimeout < cfg.Mpesa.WaitWindow+30*time.Second {
		writeTimeout = cfg.Mpesa.WaitWindow + 30*time.Second
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Warn("Cron trigger did not stop cleanly", zap.Error(err))
		}
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Warn("Scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if err := app.Bus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not stop cleanly", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func startScheduler(ctx context.Context, cfg *config.Config, app *bootstrap.App, log *zap.Logger) (*scheduler.Scheduler, *scheduler.CronTrigger, error) {
	sc := scheduler.DefaultSchedulerConfig()
	sc.Enabled = true
	if cfg.Scheduler.MaxConcurrentJobs > 0 {
		sc.MaxConcurrentJobs = cfg.Scheduler.MaxConcurrentJobs
	}
	if cfg.Scheduler.JobTimeout > 0 {
		sc.JobTimeout = cfg.Scheduler.JobTimeout
	}
	if cfg.Scheduler.RetryDelay > 0 {
		sc.RetryDelay = cfg.Scheduler.RetryDelay
	}
	if cfg.Scheduler.LockTTL > 0 {
		sc.LockTTL = cfg.Scheduler.LockTTL
	}
	sc.RetryAttempts = cfg.Scheduler.RetryAttempts

	sched, err := scheduler.NewScheduler(sc, app.Locker, log)
	if err != nil {
		return nil, nil, err
	}
	app.RegisterJobs(sched)
	sched.OnJobDone(func(j *scheduler.Job) {
		if j.Status == scheduler.JobStatusFailed {
			log.Warn("Scheduled job failed",
				zap.String("job", string(j.Kind)),
				zap.String("error", j.Error),
				zap.Int("retry", j.RetryCount),
			)
		}
	})
	if err := sched.Start(ctx); err != nil {
		return nil, nil, err
	}

	tc := scheduler.DefaultCronTriggerConfig()
	tc.Location = cfg.App.Location()
	if cfg.Scheduler.CheckInterval > 0 {
		tc.CheckInterval = cfg.Scheduler.CheckInterval
	}
	if cfg.Scheduler.GeneratorDay > 0 {
		tc.GeneratorDay = cfg.Scheduler.GeneratorDay
	}
	tc.GeneratorHour = cfg.Scheduler.GeneratorHour
	tc.ReminderHour = cfg.Scheduler.ReminderHour
	tc.BillingHour = cfg.Scheduler.BillingHour

	trigger := scheduler.NewCronTrigger(tc, sched, log)
	if err := trigger.Start(ctx); err != nil {
		_ = sched.Stop(context.Background())
		return nil, nil, err
	}
	return sched, trigger, nil
}
