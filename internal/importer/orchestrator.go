// Package importer drives bulk-import jobs from an uploaded file to a terminal job record.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hr-bulk-import/internal/models"
	"hr-bulk-import/internal/reference"
	"hr-bulk-import/internal/store"
	"hr-bulk-import/internal/tabular"
	"hr-bulk-import/internal/telemetry"
	"hr-bulk-import/internal/validation"
)

// ReferenceSource loads master-data lists once per job.
type ReferenceSource interface {
	FetchReferences(ctx context.Context, kinds []reference.Kind) (map[reference.Kind][]reference.Entry, error)
}

// Creator submits one transformed payload to the record API.
type Creator interface {
	Create(ctx context.Context, importType string, payload any) error
}

// RunInput is one upload to import synchronously.
type RunInput struct {
	ImportType string
	SourceName string
	Body       io.Reader
}

// Orchestrator owns the lifecycle of every job it registers.
type Orchestrator struct {
	store         store.JobStore
	registry      *validation.Registry
	refs          ReferenceSource
	creator       Creator
	log           *zerolog.Logger
	progressEvery int
	retryDelay    time.Duration
	now           func() time.Time
	newID         func() string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithProgressEvery writes a job snapshot to the store every n rows. Zero disables it.
func WithProgressEvery(n int) Option {
	return func(o *Orchestrator) { o.progressEvery = n }
}

// WithRetryDelay sets the pause before the final job write is retried.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryDelay = d }
}

// WithClock overrides time.Now for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides job ID allocation.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

func New(st store.JobStore, registry *validation.Registry, refs ReferenceSource, creator Creator, log *zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:         st,
		registry:      registry,
		refs:          refs,
		creator:       creator,
		log:           log,
		progressEvery: 25,
		retryDelay:    250 * time.Millisecond,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run registers a job and executes it to completion.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (models.ImportJob, error) {
	job, err := o.Register(ctx, in.ImportType, in.SourceName)
	if err != nil {
		return job, err
	}
	return o.Execute(ctx, job, in.Body)
}

// Register allocates an ID and stores the job in processing state.
func (o *Orchestrator) Register(ctx context.Context, importType, sourceName string) (models.ImportJob, error) {
	if _, err := o.registry.Lookup(importType); err != nil {
		return models.ImportJob{}, err
	}
	job := models.NewImportJob(o.newID(), importType, sourceName, o.now())
	if err := o.store.Put(ctx, job); err != nil {
		return models.ImportJob{}, fmt.Errorf("register import job: %w", err)
	}
	telemetry.ImportsStarted.WithLabelValues(importType).Inc()
	o.log.Info().Str("job_id", job.ID).Str("import_type", importType).Str("source", sourceName).Msg("import registered")
	return job, nil
}

// Execute processes a registered job. Row failures are recorded on the job and
// never returned. A job-level failure returns the terminal failed job and the cause.
// The caller's cancellation is ignored: once started, a job always reaches a terminal state.
func (o *Orchestrator) Execute(ctx context.Context, job models.ImportJob, body io.Reader) (models.ImportJob, error) {
	ctx = context.WithoutCancel(ctx)
	log := o.log.With().Str("job_id", job.ID).Str("import_type", job.ImportType).Logger()

	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	p, err := o.prepare(ctx, job, body)
	if err != nil {
		return o.abort(ctx, job, err, log)
	}

	job.TotalRows = len(p.table.Rows)
	o.saveProgress(ctx, job, log)
	log.Info().Int("total_rows", job.TotalRows).Bool("stub", p.transformer.Stub()).Msg("import started")
	if p.transformer.Stub() {
		log.Warn().Msg("import type has no validator; rows are accepted without creating records")
	}

	stage := rowStage{
		importType:  job.ImportType,
		transformer: p.transformer,
		index:       p.index,
		creator:     o.creator,
		log:         log,
	}
	for i, raw := range p.table.Rows {
		if rowErr := stage.process(ctx, p.table.Line(i), raw); rowErr != nil {
			job.RecordError(*rowErr)
			telemetry.RowsProcessed.WithLabelValues(job.ImportType, "error").Inc()
		} else {
			job.RecordSuccess()
			telemetry.RowsProcessed.WithLabelValues(job.ImportType, "success").Inc()
		}
		if o.progressEvery > 0 && (i+1)%o.progressEvery == 0 && i+1 < len(p.table.Rows) {
			o.saveProgress(ctx, job, log)
		}
	}

	job.Finish(o.now())
	if saved, err := o.saveFinal(ctx, job, log); err != nil {
		return saved, err
	}
	telemetry.ImportsFinished.WithLabelValues(job.ImportType, job.Status).Inc()
	log.Info().
		Str("status", job.Status).
		Int("total_rows", job.TotalRows).
		Int("success_rows", job.SuccessRows).
		Int("error_rows", job.ErrorRows).
		Msg("import finished")
	return job, nil
}

// Fail finalizes a registered job as failed without processing any rows.
func (o *Orchestrator) Fail(ctx context.Context, job models.ImportJob, cause error) (models.ImportJob, error) {
	log := o.log.With().Str("job_id", job.ID).Str("import_type", job.ImportType).Logger()
	return o.abort(context.WithoutCancel(ctx), job, cause, log)
}

type prepared struct {
	transformer validation.Transformer
	table       tabular.Table
	index       *reference.Index
}

// prepare decodes the file and builds the reference snapshot. A panic here
// becomes a job-level error.
func (o *Orchestrator) prepare(ctx context.Context, job models.ImportJob, body io.Reader) (p prepared, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure during import setup: %v", r)
		}
	}()

	if p.transformer, err = o.registry.Lookup(job.ImportType); err != nil {
		return p, err
	}
	if p.table, err = tabular.Decode(job.SourceName, body); err != nil {
		return p, err
	}

	kinds, mandatory := p.transformer.References()
	if len(kinds) == 0 {
		return p, nil
	}
	lists, err := o.refs.FetchReferences(ctx, kinds)
	if err != nil {
		return p, fmt.Errorf("fetch master data: %w", err)
	}
	if p.index, err = reference.Build(lists, mandatory...); err != nil {
		return p, err
	}
	return p, nil
}

func (o *Orchestrator) abort(ctx context.Context, job models.ImportJob, cause error, log zerolog.Logger) (models.ImportJob, error) {
	job.Abort(o.now(), jobMessage(cause))
	if err := o.store.Put(ctx, job); err != nil {
		log.Error().Err(err).Msg("failed to save aborted import")
		return job, errors.Join(cause, fmt.Errorf("save failed import job: %w", err))
	}
	telemetry.ImportsFinished.WithLabelValues(job.ImportType, job.Status).Inc()
	log.Warn().Err(cause).Msg("import aborted")
	return job, cause
}

// saveFinal writes the finished job, retrying once. When the result still cannot
// be written it falls back to a failed record without row errors, so the stored
// job does not stay in processing.
func (o *Orchestrator) saveFinal(ctx context.Context, job models.ImportJob, log zerolog.Logger) (models.ImportJob, error) {
	err := o.store.Put(ctx, job)
	if err == nil {
		return job, nil
	}
	if errors.Is(err, store.ErrJobFinalized) {
		log.Error().Err(err).Msg("import was finalized elsewhere")
		return job, fmt.Errorf("save finished import job: %w", err)
	}
	log.Warn().Err(err).Msg("saving finished import failed, retrying")
	time.Sleep(o.retryDelay)
	if err = o.store.Put(ctx, job); err == nil {
		return job, nil
	}

	fallback := job.Clone()
	fallback.Errors = []models.RowError{}
	fallback.Abort(o.now(), fmt.Sprintf("The import finished but its results could not be saved: %v", err))
	if ferr := o.store.Put(ctx, fallback); ferr != nil {
		log.Error().Err(ferr).Msg("failed to save finished import")
		return job, fmt.Errorf("save finished import job: %w", errors.Join(err, ferr))
	}
	telemetry.ImportsFinished.WithLabelValues(fallback.ImportType, fallback.Status).Inc()
	log.Error().Err(err).Int("success_rows", job.SuccessRows).Int("error_rows", job.ErrorRows).Msg("import results lost, job marked failed")
	return fallback, fmt.Errorf("save finished import job: %w", err)
}

func (o *Orchestrator) saveProgress(ctx context.Context, job models.ImportJob, log zerolog.Logger) {
	if err := o.store.Put(ctx, job); err != nil {
		log.Warn().Err(err).Int("success_rows", job.SuccessRows).Int("error_rows", job.ErrorRows).Msg("progress snapshot not saved")
	}
}

// jobMessage turns a job-level failure into operator-facing text.
func jobMessage(err error) string {
	var missing *reference.MissingMasterDataError
	switch {
	case errors.Is(err, tabular.ErrEmptySource):
		return "The uploaded file contains no data rows."
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		return err.Error() + ": upload a .csv or .xlsx file"
	case errors.As(err, &missing):
		return fmt.Sprintf("No %s found. Please configure %s before importing.", missing.Kind.Plural(), missing.Kind.Plural())
	default:
		return err.Error()
	}
}
