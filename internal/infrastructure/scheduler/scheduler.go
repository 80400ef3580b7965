package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
	ErrJobQueueFull        = errors.New("job queue is full")
	ErrUnknownJob          = errors.New("no task registered for job")
	ErrLockNotObtained     = errors.New("job lock held by another instance")
	ErrInvalidConfig       = errors.New("invalid scheduler configuration")
)

const queueSize = 100

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled           bool
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	LockTTL           time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: 2,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     2,
		RetryDelay:        5 * time.Minute,
		LockTTL:           30 * time.Minute,
	}
}

// Validate checks the worker and timing settings
func (c SchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs < 1 || c.JobTimeout <= 0 || c.LockTTL <= 0 || c.RetryAttempts < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Scheduler runs queued billing jobs on a small worker pool. Each run holds
// a lock named after its kind, so two instances never run the same job at
// once.
type Scheduler struct {
	config SchedulerConfig
	tasks  map[JobKind]Task
	locker Locker
	logger *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	running bool
	onDone    func(*Job)
}

// NewScheduler creates a new scheduler instance. A nil locker falls back to
// a LocalLocker.
func NewScheduler(config SchedulerConfig, locker Locker, logger *zap.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config: config,
		tasks:  make(map[JobKind]Task),
		locker: locker,
		logger: logger,
		jobs:   make(chan *Job, queueSize),
	}, nil
}

// Register binds a task to a job kind
func (s *Scheduler) Register(kind JobKind, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[kind] = task
}

// OnJobDone installs a hook called after every finished, failed or skipped run
func (s *Scheduler) OnJobDone(fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDone = fn
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Billing scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
		zap.Duration("lock_ttl", s.config.LockTTL),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Billing scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Billing scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a run of kind
func (s *Scheduler) Submit(kind JobKind, triggeredBy string) (*Job, error) {
	s.mu.Lock()
	_, ok := s.tasks[kind]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnknownJob
	}
	job := NewJob(kind, triggeredBy, s.config.RetryAttempts)
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// SubmitJob submits a job for execution
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted", job.fields()...)
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job under its lock
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	if job.NextRetryAt != nil && time.Now().Before(*job.NextRetryAt) {
		s.requeue(ctx, job)
		return
	}

	s.mu.Lock()
	task, ok := s.tasks[job.Kind]
	s.mu.Unlock()
	if !ok {
		job.Fail(ErrUnknownJob.Error())
		s.done(job)
		return
	}

	unlock, err := s.locker.Obtain(ctx, string(job.Kind), s.config.LockTTL)
	if err != nil {
		if errors.Is(err, ErrLockNotObtained) {
			job.Skip(err.Error())
			s.logger.Info("Job already running elsewhere, skipping", job.fields()...)
		} else {
			job.Fail(err.Error())
			s.logger.Error("Failed to obtain job lock", append(job.fields(), zap.Error(err))...)
		}
		s.done(job)
		return
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release job lock",
				zap.String("job", string(job.Kind)),
				zap.Error(err),
			)
		}
	}()

	job.Start()
	log := s.logger.With(append(job.fields(), zap.Int("worker_id", workerID))...)
	log.Info("Processing job", zap.String("triggered_by", job.TriggeredBy))

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	if err := task(jobCtx, job.TriggeredBy); err != nil {
		job.Fail(err.Error())
		log.Error("Job failed", zap.Error(err))

		if job.ShouldRetry() {
			job.ScheduleRetry(s.config.RetryDelay)
			log.Info("Job scheduled for retry",
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
			)
			s.requeue(ctx, job)
			return
		}
		s.done(job)
		return
	}

	job.Complete()
	log.Info("Job completed")
	s.done(job)
}

// requeue puts a job back after its retry delay without holding a worker
func (s *Scheduler) requeue(ctx context.Context, job *Job) {
	delay := time.Duration(0)
	if job.NextRetryAt != nil {
		delay = time.Until(*job.NextRetryAt)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		select {
		case s.jobs <- job:
		default:
			s.logger.Warn("Failed to re-queue job for retry", job.fields()...)
		}
	}()
}

func (s *Scheduler) done(job *Job) {
	s.mu.Lock()
	fn := s.onDone
	s.mu.Unlock()
	if fn != nil {
		fn(job)
	}
}
