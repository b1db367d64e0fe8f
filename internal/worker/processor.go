package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"hr-bulk-import/internal/config"
	"hr-bulk-import/internal/importer"
	"hr-bulk-import/internal/queue"
	"hr-bulk-import/internal/source"
	"hr-bulk-import/internal/store"
	"hr-bulk-import/internal/telemetry"
)

var errLeaseExpired = errors.New("worker lease expired before the import finished; re-upload the file to retry")

// Processor drives the worker execution loop for async imports.
type Processor struct {
	cfg       config.Config
	queue     *queue.RedisQueue
	jobs      store.JobStore
	sources   source.Storage
	importer  *importer.Orchestrator
	log       *zerolog.Logger
	workerID  string
	lastEvict time.Time
}

func NewProcessor(cfg config.Config, q *queue.RedisQueue, jobs store.JobStore, sources source.Storage, imp *importer.Orchestrator, log *zerolog.Logger) *Processor {
	return NewProcessorWithID(cfg, q, jobs, sources, imp, log, "")
}

// NewProcessorWithID creates a processor with a specific worker ID for tracking.
func NewProcessorWithID(cfg config.Config, q *queue.RedisQueue, jobs store.JobStore, sources source.Storage, imp *importer.Orchestrator, log *zerolog.Logger, workerID string) *Processor {
	l := log.With().Str("worker_id", workerID).Logger()
	return &Processor{
		cfg:      cfg,
		queue:    q,
		jobs:     jobs,
		sources:  sources,
		importer: imp,
		log:      &l,
		workerID: workerID,
	}
}

// Run starts the main worker loop until context cancellation. An import that
// has started always runs to completion before Run returns.
func (p *Processor) Run(ctx context.Context) error {
	idle := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		worked, err := p.ProcessNext(ctx)
		switch {
		case err != nil:
			idle++
			p.log.Warn().Err(err).Int("attempt", idle).Msg("poll failed")
		case !worked:
			idle++
		default:
			idle = 0
			continue
		}

		wait := backoffWithJitter(p.cfg.WorkerPollInterval, p.cfg.BackoffMax, idle)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ProcessNext does one round of housekeeping and runs at most one queued import.
// It reports whether an import was taken from the queue.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	p.reapExpired(ctx)
	p.evictExpired(ctx)
	if depth, err := p.queue.ReadyDepth(ctx); err == nil {
		telemetry.QueueDepthGauge.Set(float64(depth))
	}

	task, ok, err := p.queue.DequeueWithLease(ctx)
	if !ok {
		return false, err
	}
	if err != nil {
		// leased but unreadable metadata: the job cannot be run
		p.discard(ctx, task, err)
		return true, nil
	}
	p.handle(ctx, task)
	return true, nil
}

func (p *Processor) handle(ctx context.Context, task queue.Task) {
	log := p.log.With().Str("job_id", task.JobID).Str("import_type", task.ImportType).Logger()

	job, err := p.jobs.Get(ctx, task.JobID)
	if err != nil {
		log.Error().Err(err).Msg("queued import has no job record")
		_ = p.queue.Ack(ctx, task.JobID)
		_ = p.queue.DLQPush(ctx, task.JobID)
		p.removeSource(ctx, task)
		return
	}
	if job.Done() {
		log.Info().Str("status", job.Status).Msg("import already finalized, dropping task")
		_ = p.queue.Ack(ctx, task.JobID)
		p.removeSource(ctx, task)
		return
	}

	body, err := p.sources.Open(ctx, task.SourceKey)
	if err != nil {
		_, _ = p.importer.Fail(ctx, job, fmt.Errorf("open uploaded file: %w", err))
		_ = p.queue.Ack(ctx, task.JobID)
		_ = p.queue.DLQPush(ctx, task.JobID)
		return
	}

	stop := p.keepLease(ctx, task.JobID)
	job, err = p.importer.Execute(ctx, job, body)
	stop()
	_ = body.Close()

	if err != nil {
		log.Warn().Err(err).Str("status", job.Status).Msg("import failed")
	}
	if err := p.queue.Ack(ctx, task.JobID); err != nil {
		log.Error().Err(err).Msg("ack failed")
	}
	p.removeSource(ctx, task)
}

// keepLease extends the visibility deadline while a long import runs.
func (p *Processor) keepLease(ctx context.Context, jobID string) func() {
	interval := p.cfg.VisibilityTimeout / 2
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := p.queue.ExtendLease(context.WithoutCancel(ctx), jobID, p.cfg.VisibilityTimeout); err != nil {
					p.log.Warn().Err(err).Str("job_id", jobID).Msg("extend lease failed")
				}
			}
		}
	}()
	return func() { close(done) }
}

// reapExpired fails imports whose worker vanished. They are not re-run because
// rows already sent to the create API would be created twice.
func (p *Processor) reapExpired(ctx context.Context) {
	limit := int64(p.cfg.ReapBatchSize)
	if limit <= 0 {
		limit = 100
	}
	tasks, err := p.queue.ReapExpired(ctx, time.Now(), limit)
	if err != nil {
		p.log.Warn().Err(err).Msg("reap expired leases")
	}
	for _, t := range tasks {
		telemetry.LeasesExpired.Inc()
		p.discard(ctx, t, errLeaseExpired)
	}
}

// discard finalizes the task's job as failed and dead-letters it.
func (p *Processor) discard(ctx context.Context, task queue.Task, cause error) {
	if job, err := p.jobs.Get(ctx, task.JobID); err == nil && !job.Done() {
		if _, err := p.importer.Fail(ctx, job, cause); err != nil && !errors.Is(err, cause) {
			p.log.Error().Err(err).Str("job_id", task.JobID).Msg("could not finalize import")
		}
	}
	_ = p.queue.Ack(ctx, task.JobID)
	_ = p.queue.DLQPush(ctx, task.JobID)
	p.removeSource(ctx, task)
	p.log.Warn().Err(cause).Str("job_id", task.JobID).Msg("import discarded")
}

func (p *Processor) removeSource(ctx context.Context, task queue.Task) {
	if p.cfg.KeepSources || task.SourceKey == "" {
		return
	}
	if err := p.sources.Delete(ctx, task.SourceKey); err != nil {
		p.log.Warn().Err(err).Str("source_key", task.SourceKey).Msg("remove uploaded file")
	}
}

func (p *Processor) evictExpired(ctx context.Context) {
	ev, ok := p.jobs.(store.Evictor)
	if !ok || p.cfg.EvictInterval <= 0 || time.Since(p.lastEvict) < p.cfg.EvictInterval {
		return
	}
	p.lastEvict = time.Now()
	n, err := ev.DeleteExpired(ctx, time.Now())
	if err != nil {
		p.log.Warn().Err(err).Msg("evict expired jobs")
		return
	}
	if n > 0 {
		p.log.Info().Int("evicted", n).Msg("expired import jobs removed")
	}
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max || exp > float64(math.MaxInt64) {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait/2) + 1))
	return wait/2 + jitter
}

