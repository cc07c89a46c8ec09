// Package worker runs the durable job queue: a pool of processors that claim
// jobs, run the registered handler and retry failures with backoff.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/design-feedback/backend/internal/metrics"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

// Handler is a function that processes a job
type Handler func(ctx context.Context, job *models.Job) error

// Handlers maps job types to their handlers
type Handlers map[string]Handler

// Queue is the persistence the worker claims jobs from.
type Queue interface {
	Enqueue(ctx context.Context, job *models.Job) (bool, error)
	ClaimNextJob(ctx context.Context, workerID string) (*models.Job, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errorMsg string) error
	ScheduleRetry(ctx context.Context, id int64, errorMsg string, retryAfter time.Time) error
	ReleaseJob(ctx context.Context, id int64) error
	GetStats(ctx context.Context) (*models.JobStats, error)
}

// Instrumentation provides hooks for monitoring job lifecycle
type Instrumentation struct {
	OnEnqueue   func(job *models.Job)
	OnStart     func(job *models.Job)
	OnComplete  func(job *models.Job, duration time.Duration)
	OnFail      func(job *models.Job, err error, duration time.Duration)
	OnRetry     func(job *models.Job, retryAfter time.Duration)
	OnExhausted func(job *models.Job, err error)
	OnHeartbeat func(workerID string, stats Stats)
}

// MetricsInstrumentation feeds job outcomes into the jobs_total counter.
func MetricsInstrumentation() *Instrumentation {
	count := func(job *models.Job, outcome string) {
		metrics.JobsTotal.WithLabelValues(job.JobType, outcome).Inc()
	}
	return &Instrumentation{
		OnEnqueue:  func(job *models.Job) { count(job, "enqueued") },
		OnComplete: func(job *models.Job, _ time.Duration) { count(job, "completed") },
		OnRetry:    func(job *models.Job, _ time.Duration) { count(job, "retried") },
		OnExhausted: func(job *models.Job, _ error) {
			count(job, "failed")
		},
	}
}

// Stats holds worker statistics
type Stats struct {
	JobsProcessed   int64
	JobsSucceeded   int64
	JobsFailed      int64
	JobsRetried     int64
	ActiveWorkers   int
	LastProcessedAt time.Time
}

// Config holds worker configuration
type Config struct {
	// MaxConcurrent is the maximum number of concurrent job processors
	MaxConcurrent int
	// PollInterval is the time between polling for new jobs
	PollInterval time.Duration
	// RetryBaseDelay is the base delay for exponential backoff
	RetryBaseDelay time.Duration
	// RetryMaxDelay is the maximum delay between retries
	RetryMaxDelay time.Duration
	// RetryBackoffMultiplier is the multiplier for exponential backoff
	RetryBackoffMultiplier float64
	// JobTimeout is the maximum time allowed for a job to run
	JobTimeout time.Duration
	// ShutdownTimeout is the maximum time to wait for jobs to complete during shutdown
	ShutdownTimeout time.Duration
	// HeartbeatInterval is the interval for sending heartbeat metrics
	HeartbeatInterval time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:          2,
		PollInterval:           time.Second,
		RetryBaseDelay:         5 * time.Second,
		RetryMaxDelay:          10 * time.Minute,
		RetryBackoffMultiplier: 2.0,
		JobTimeout:             time.Minute,
		ShutdownTimeout:        30 * time.Second,
		HeartbeatInterval:      30 * time.Second,
	}
}

// Worker is the async job queue processor
type Worker struct {
	config          Config
	queue           Queue
	handlers        Handlers
	instrumentation *Instrumentation
	logger          zerolog.Logger

	workerID string
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopped  bool
	mu       sync.RWMutex

	// activeJobs tracks currently processing job IDs for graceful shutdown
	activeJobs map[int64]context.CancelFunc

	statsMu         sync.RWMutex
	jobsProcessed   int64
	jobsSucceeded   int64
	jobsFailed      int64
	jobsRetried     int64
	lastProcessedAt time.Time
}

// New creates a new Worker instance. handlers may be nil; register them with
// RegisterHandler before Start.
func New(config Config, queue Queue, handlers Handlers) *Worker {
	def := DefaultConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = def.RetryBaseDelay
	}
	if config.RetryMaxDelay <= 0 {
		config.RetryMaxDelay = def.RetryMaxDelay
	}
	if config.RetryBackoffMultiplier <= 1 {
		config.RetryBackoffMultiplier = def.RetryBackoffMultiplier
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = def.HeartbeatInterval
	}
	if handlers == nil {
		handlers = Handlers{}
	}

	workerID := "worker-" + uuid.NewString()
	return &Worker{
		config:          config,
		queue:           queue,
		handlers:        handlers,
		workerID:        workerID,
		logger:          log.With().Str("component", "worker").Str("worker_id", workerID).Logger(),
		stopCh:          make(chan struct{}),
		activeJobs:      make(map[int64]context.CancelFunc),
		instrumentation: &Instrumentation{},
	}
}

// ID returns the identifier written to claimed jobs.
func (w *Worker) ID() string {
	return w.workerID
}

// RegisterHandler binds a handler to a job type.
func (w *Worker) RegisterHandler(jobType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

// SetInstrumentation sets the instrumentation hooks
func (w *Worker) SetInstrumentation(inst *Instrumentation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if inst == nil {
		inst = &Instrumentation{}
	}
	w.instrumentation = inst
}

func (w *Worker) hooks() *Instrumentation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.instrumentation
}

// Start begins the worker loop
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Int("max_concurrent", w.config.MaxConcurrent).Msg("worker starting")

	if w.hooks().OnHeartbeat != nil {
		w.wg.Add(1)
		go w.heartbeat(ctx)
	}

	for i := 0; i < w.config.MaxConcurrent; i++ {
		w.wg.Add(1)
		go w.processor(ctx, i)
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	w.logger.Info().Msg("worker shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()

	w.releaseActiveJobs(shutdownCtx)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info().Msg("worker stopped")
		return nil
	case <-shutdownCtx.Done():
		w.logger.Warn().Msg("worker shutdown timeout exceeded")
		return fmt.Errorf("worker: shutdown timeout exceeded")
	}
}

// processor is the main loop for a single worker goroutine
func (w *Worker) processor(ctx context.Context, id int) {
	defer w.wg.Done()

	logger := w.logger.With().Int("processor", id).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
			if err := w.processNextJob(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					logger.Error().Err(err).Msg("worker: claim failed")
				}
				w.wait(ctx)
			}
		}
	}
}

func (w *Worker) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-time.After(w.config.PollInterval):
	}
}

// processNextJob attempts to claim and process the next available job
func (w *Worker) processNextJob(ctx context.Context) error {
	job, err := w.queue.ClaimNextJob(ctx, w.workerID)
	if err != nil {
		return err
	}
	if job == nil {
		w.wait(ctx)
		return nil
	}

	w.processJob(ctx, job)
	return nil
}

// processJob handles the execution of a single job
func (w *Worker) processJob(ctx context.Context, job *models.Job) {
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	w.trackActiveJob(job.ID, cancel)
	defer w.untrackActiveJob(job.ID)

	if hook := w.hooks().OnStart; hook != nil {
		hook(job)
	}

	w.logger.Debug().
		Int64("job_id", job.ID).
		Str("job_type", job.JobType).
		Int("attempt", job.Attempts).
		Int("max_attempts", job.MaxAttempts).
		Msg("processing job")

	w.mu.RLock()
	handler, ok := w.handlers[job.JobType]
	w.mu.RUnlock()
	if !ok {
		w.handleError(ctx, job, fmt.Errorf("no handler registered for job type: %s", job.JobType), start)
		return
	}

	// Outcome bookkeeping uses ctx, not jobCtx, so a timed out handler still
	// gets its retry recorded.
	if err := handler(jobCtx, job); err != nil {
		w.handleError(ctx, job, err, start)
		return
	}
	w.handleSuccess(ctx, job, start)
}

// retryDelay is the exponential backoff for the given attempt, capped and
// jittered by ±20%.
func (w *Worker) retryDelay(attempts int) time.Duration {
	exp := math.Max(float64(attempts-1), 0)
	base := float64(w.config.RetryBaseDelay) * math.Pow(w.config.RetryBackoffMultiplier, exp)
	delay := math.Min(base, float64(w.config.RetryMaxDelay))
	return time.Duration(delay * (0.8 + 0.4*rand.Float64()))
}

// handleError handles a job failure, retrying if appropriate
func (w *Worker) handleError(ctx context.Context, job *models.Job, err error, start time.Time) {
	duration := time.Since(start)
	hooks := w.hooks()

	w.statsMu.Lock()
	w.jobsProcessed++
	w.jobsFailed++
	w.lastProcessedAt = time.Now()
	w.statsMu.Unlock()

	if hooks.OnFail != nil {
		hooks.OnFail(job, err, duration)
	}

	if job.Attempts < job.MaxAttempts {
		delay := w.retryDelay(job.Attempts)

		w.statsMu.Lock()
		w.jobsRetried++
		w.statsMu.Unlock()

		if hooks.OnRetry != nil {
			hooks.OnRetry(job, delay)
		}

		w.logger.Warn().Err(err).
			Int64("job_id", job.ID).
			Str("job_type", job.JobType).
			Int("attempt", job.Attempts).
			Dur("retry_in", delay).
			Msg("job failed, retry scheduled")

		if serr := w.queue.ScheduleRetry(ctx, job.ID, err.Error(), time.Now().Add(delay)); serr != nil {
			w.logger.Error().Err(serr).Int64("job_id", job.ID).Msg("worker: schedule retry failed")
		}
		return
	}

	w.logger.Error().Err(err).
		Int64("job_id", job.ID).
		Str("job_type", job.JobType).
		Int("attempts", job.Attempts).
		Bool("alert", true).
		Msg("job exhausted all attempts")

	if hooks.OnExhausted != nil {
		hooks.OnExhausted(job, err)
	}
	if merr := w.queue.MarkFailed(ctx, job.ID, err.Error()); merr != nil {
		w.logger.Error().Err(merr).Int64("job_id", job.ID).Msg("worker: mark failed failed")
	}
}

// handleSuccess handles a successful job completion
func (w *Worker) handleSuccess(ctx context.Context, job *models.Job, start time.Time) {
	duration := time.Since(start)

	w.statsMu.Lock()
	w.jobsProcessed++
	w.jobsSucceeded++
	w.lastProcessedAt = time.Now()
	w.statsMu.Unlock()

	if hook := w.hooks().OnComplete; hook != nil {
		hook(job, duration)
	}

	w.logger.Debug().Int64("job_id", job.ID).Dur("duration", duration).Msg("job completed")

	if err := w.queue.MarkCompleted(ctx, job.ID); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("worker: mark completed failed")
	}
}

func (w *Worker) trackActiveJob(jobID int64, cancel context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activeJobs[jobID] = cancel
}

func (w *Worker) untrackActiveJob(jobID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.activeJobs, jobID)
}

// releaseActiveJobs cancels in-flight handlers and puts their jobs back to
// pending so another worker can pick them up.
func (w *Worker) releaseActiveJobs(ctx context.Context) {
	w.mu.Lock()
	jobIDs := make([]int64, 0, len(w.activeJobs))
	for id, cancel := range w.activeJobs {
		cancel()
		jobIDs = append(jobIDs, id)
	}
	w.mu.Unlock()

	for _, id := range jobIDs {
		if err := w.queue.ReleaseJob(ctx, id); err != nil {
			w.logger.Error().Err(err).Int64("job_id", id).Msg("worker: release job failed")
			continue
		}
		w.logger.Info().Int64("job_id", id).Msg("released job back to pending")
	}
}

// heartbeat periodically sends stats updates
func (w *Worker) heartbeat(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if hook := w.hooks().OnHeartbeat; hook != nil {
				hook(w.workerID, w.GetStats())
			}
		}
	}
}

// GetStats returns current worker statistics
func (w *Worker) GetStats() Stats {
	w.mu.RLock()
	activeWorkers := len(w.activeJobs)
	w.mu.RUnlock()

	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return Stats{
		JobsProcessed:   w.jobsProcessed,
		JobsSucceeded:   w.jobsSucceeded,
		JobsFailed:      w.jobsFailed,
		JobsRetried:     w.jobsRetried,
		ActiveWorkers:   activeWorkers,
		LastProcessedAt: w.lastProcessedAt,
	}
}

// Enqueue adds a job to the queue. A job whose dedupe key is already queued
// is dropped and enqueued is false.
func (w *Worker) Enqueue(ctx context.Context, job *models.Job) (bool, error) {
	if err := job.IsValid(); err != nil {
		return false, err
	}

	enqueued, err := w.queue.Enqueue(ctx, job)
	if err != nil {
		return false, err
	}
	if !enqueued {
		w.logger.Debug().Str("job_type", job.JobType).Str("dedupe_key", job.DedupeKey).Msg("job already queued")
		return false, nil
	}

	if hook := w.hooks().OnEnqueue; hook != nil {
		hook(job)
	}

	w.logger.Info().
		Int64("job_id", job.ID).
		Str("job_type", job.JobType).
		Str("priority", string(job.Priority)).
		Msg("job enqueued")
	return true, nil
}

// GetQueueStats returns statistics about the job queue
func (w *Worker) GetQueueStats(ctx context.Context) (*models.JobStats, error) {
	return w.queue.GetStats(ctx)
}
