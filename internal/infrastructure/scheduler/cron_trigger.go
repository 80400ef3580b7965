package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TriggeredByCron marks runs started by the cron trigger
const TriggeredByCron = "cron"

// Submitter queues job runs
type Submitter interface {
	Submit(kind JobKind, triggeredBy string) (*Job, error)
}

// CronTriggerConfig holds the wall clock times of the billing jobs
type CronTriggerConfig struct {
	// GeneratorDay and GeneratorHour fire the monthly invoice generator
	GeneratorDay  int
	GeneratorHour int

	// ReminderHour fires the reminder job once a day
	ReminderHour int

	// BillingHour fires the yearly billing regeneration on January 1st
	BillingHour int

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration

	Location *time.Location
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		GeneratorDay:  1,
		GeneratorHour: 1,
		ReminderHour:  8,
		BillingHour:   2,
		CheckInterval: time.Minute,
		Location:      time.FixedZone("EAT", 3*60*60),
	}
}

// CronTrigger submits the billing jobs when their slot comes round. Each
// job remembers the slot it last fired for, so a slot fires at most once
// per process.
type CronTrigger struct {
	config    CronTriggerConfig
	submitter Submitter
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRun   map[JobKind]string
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(config CronTriggerConfig, submitter Submitter, logger *zap.Logger) *CronTrigger {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronTrigger{
		config:    config,
		submitter: submitter,
		logger:    logger,
		now:       time.Now,
		lastRun:   make(map[JobKind]string),
	}
}

// WithClock overrides the trigger's clock
func (c *CronTrigger) WithClock(now func() time.Time) *CronTrigger {
	c.now = now
	return c
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Cron trigger started",
		zap.Int("generator_day", c.config.GeneratorDay),
		zap.Int("generator_hour", c.config.GeneratorHour),
		zap.Int("reminder_hour", c.config.ReminderHour),
		zap.Int("billing_hour", c.config.BillingHour),
		zap.String("location", c.config.Location.String()),
	)

	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger()
		}
	}
}

// checkAndTrigger submits every job whose slot is due and not yet fired
func (c *CronTrigger) checkAndTrigger() []JobKind {
	now := c.now().In(c.config.Location)

	var fired []JobKind
	for _, kind := range AllJobKinds() {
		slot, due := c.slot(kind, now)
		if !due {
			continue
		}

		c.mu.Lock()
		if c.lastRun[kind] == slot {
			c.mu.Unlock()
			continue
		}
		c.lastRun[kind] = slot
		c.mu.Unlock()

		if _, err := c.submitter.Submit(kind, TriggeredByCron); err != nil {
			c.logger.Error("Failed to submit scheduled job",
				zap.String("job", string(kind)),
				zap.String("slot", slot),
				zap.Error(err),
			)
			c.mu.Lock()
			delete(c.lastRun, kind)
			c.mu.Unlock()
			continue
		}
		c.logger.Info("Scheduled job submitted",
			zap.String("job", string(kind)),
			zap.String("slot", slot),
		)
		fired = append(fired, kind)
	}
	return fired
}

// slot returns the run key for kind at now and whether it is due
func (c *CronTrigger) slot(kind JobKind, now time.Time) (string, bool) {
	switch kind {
	case JobMonthlyInvoices:
		return now.Format("2006-01"), now.Day() == c.config.GeneratorDay && now.Hour() >= c.config.GeneratorHour
	case JobPaymentReminder:
		return now.Format("2006-01-02"), now.Hour() >= c.config.ReminderHour
	case JobYearlyBilling:
		return now.Format("2006"), now.Month() == time.January && now.Day() == 1 && now.Hour() >= c.config.BillingHour
	default:
		return "", false
	}
}

// TriggerManual queues a run outside the schedule
func (c *CronTrigger) TriggerManual(kind JobKind, triggeredBy string) (*Job, error) {
	return c.submitter.Submit(kind, triggeredBy)
}
