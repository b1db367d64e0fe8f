package models

import (
	"time"
)

// Import job lifecycle states.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// Sentinel columns for errors that are not tied to a single field group.
const (
	ColumnMultiple = "multiple"
	ColumnJob      = "job"
)

// ImportJob is one bulk-upload attempt.
type ImportJob struct {
	ID          string     `json:"id"`
	ImportType  string     `json:"import_type"`
	SourceName  string     `json:"source_name"`
	Status      string     `json:"status"`
	TotalRows   int        `json:"total_rows"`
	SuccessRows int        `json:"success_rows"`
	ErrorRows   int        `json:"error_rows"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Errors      []RowError `json:"errors"`
}

// RowError describes why one input row could not become a created record.
// Row is 0 for job-level failures.
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// NewImportJob returns a job in processing state with zero counts.
func NewImportJob(id, importType, sourceName string, startedAt time.Time) ImportJob {
	return ImportJob{
		ID:         id,
		ImportType: importType,
		SourceName: sourceName,
		Status:     StatusProcessing,
		StartedAt:  startedAt,
		Errors:     []RowError{},
	}
}

// Done reports whether the job reached a terminal state.
func (j ImportJob) Done() bool {
	return j.CompletedAt != nil
}

// Clone returns a copy that shares no mutable state with j.
func (j ImportJob) Clone() ImportJob {
	out := j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	out.Errors = make([]RowError, len(j.Errors))
	copy(out.Errors, j.Errors)
	return out
}

// RecordSuccess counts one created row.
func (j *ImportJob) RecordSuccess() {
	j.SuccessRows++
}

// RecordError counts one failed row and appends its error.
func (j *ImportJob) RecordError(e RowError) {
	j.ErrorRows++
	j.Errors = append(j.Errors, e)
}

// Finish stamps completion and derives the terminal status from the counters.
func (j *ImportJob) Finish(at time.Time) {
	j.Status = DeriveStatus(j.TotalRows, j.SuccessRows, j.ErrorRows)
	j.CompletedAt = &at
}

// Abort finalizes the job as failed with a single job-level error.
func (j *ImportJob) Abort(at time.Time, message string) {
	j.Errors = append(j.Errors, RowError{Row: 0, Column: ColumnJob, Message: message})
	j.Status = StatusFailed
	j.CompletedAt = &at
}

// DeriveStatus applies the status law for a job that processed its rows.
func DeriveStatus(total, success, failed int) string {
	switch {
	case failed == 0:
		return StatusCompleted
	case success == 0 && total > 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
