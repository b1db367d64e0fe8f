package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"hr-bulk-import/internal/config"
	"hr-bulk-import/internal/importer"
	"hr-bulk-import/internal/models"
	"hr-bulk-import/internal/queue"
	"hr-bulk-import/internal/ratelimit"
	"hr-bulk-import/internal/source"
	"hr-bulk-import/internal/store"
	"hr-bulk-import/internal/telemetry"
	"hr-bulk-import/internal/validation"
)

// Deps are the collaborators of the HTTP API. Queue and Sources are only
// needed for async imports; Limiter is optional.
type Deps struct {
	Jobs     store.JobStore
	Importer *importer.Orchestrator
	Queue    *queue.RedisQueue
	Sources  source.Storage
	Limiter  *ratelimit.TokenBucket
	Log      *zerolog.Logger
}

// Server wires HTTP handlers for the import API.
type Server struct {
	cfg      config.Config
	jobs     store.JobStore
	importer *importer.Orchestrator
	queue    *queue.RedisQueue
	sources  source.Storage
	limiter  *ratelimit.TokenBucket
	log      *zerolog.Logger
}

// New constructs the API server. Async imports are disabled unless the job
// store is shared with the workers.
func New(cfg config.Config, d Deps) *Server {
	s := &Server{
		cfg:      cfg,
		jobs:     d.Jobs,
		importer: d.Importer,
		queue:    d.Queue,
		sources:  d.Sources,
		limiter:  d.Limiter,
		log:      d.Log,
	}
	if s.queue != nil && !store.Shared(s.jobs) {
		s.log.Warn().Msg("job store is in-process memory: async imports disabled, use JOB_STORE=redis or postgres")
		s.queue = nil
	}
	return s
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/imports", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/errors.csv", s.handleErrorReport)
	})
	r.Get("/dlq", s.handleDLQ)
	return r
}

type failedImportResponse struct {
	Job   models.ImportJob `json:"job"`
	Error string           `json:"error"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}

	if s.cfg.MaxUploadBytes > 0 {
		if r.ContentLength > s.cfg.MaxUploadBytes {
			http.Error(w, fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, fmt.Sprintf("upload exceeds %d bytes", tooBig.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "expected multipart form with a file field", http.StatusBadRequest)
		return
	}
	importType := strings.TrimSpace(strings.ToLower(r.FormValue("import_type")))
	if importType == "" {
		http.Error(w, "import_type is required", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	body, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read upload", http.StatusBadRequest)
		return
	}

	async, _ := strconv.ParseBool(r.FormValue("async"))
	if async {
		s.enqueueImport(w, r, importType, header.Filename, body, header.Header.Get("Content-Type"))
		return
	}

	job, err := s.importer.Run(r.Context(), importer.RunInput{
		ImportType: importType,
		SourceName: header.Filename,
		Body:       bytes.NewReader(body),
	})
	switch {
	case errors.Is(err, validation.ErrUnknownImportType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil && job.ID == "":
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case err != nil:
		writeJSON(w, http.StatusUnprocessableEntity, failedImportResponse{Job: job, Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) enqueueImport(w http.ResponseWriter, r *http.Request, importType, name string, body []byte, contentType string) {
	if s.queue == nil || s.sources == nil {
		http.Error(w, "async imports are not enabled", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	job, err := s.importer.Register(ctx, importType, name)
	if errors.Is(err, validation.ErrUnknownImportType) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	key := source.Key(job.ID, name)
	if _, err := s.sources.Put(ctx, key, body, contentType); err != nil {
		s.failQueued(w, r, job, fmt.Errorf("store upload: %w", err))
		return
	}
	task := queue.Task{JobID: job.ID, ImportType: importType, SourceKey: key, SourceName: name}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		_ = s.sources.Delete(ctx, key)
		s.failQueued(w, r, job, err)
		return
	}
	telemetry.EnqueueCounter.Inc()
	writeJSON(w, http.StatusAccepted, job)
}

// failQueued finalizes a registered job that never reached the queue.
func (s *Server) failQueued(w http.ResponseWriter, r *http.Request, job models.ImportJob, cause error) {
	s.log.Error().Err(cause).Str("job_id", job.ID).Msg("async import not queued")
	_, _ = s.importer.Fail(r.Context(), job, cause)
	http.Error(w, "enqueue failed", http.StatusInternalServerError)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list imports", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": jobs})
}

// handleErrorReport renders the job's row errors as a CSV download.
func (s *Server) handleErrorReport(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-errors.csv"`, job.ID))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Row", "Column", "Message", "Data"})
	for _, e := range job.Errors {
		_ = cw.Write([]string{strconv.Itoa(e.Row), e.Column, e.Message, e.Data})
	}
	cw.Flush()
}

// handleDLQ returns the DLQ contents (IDs only).
func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []string{}})
		return
	}
	items, err := s.queue.DLQPeek(r.Context(), 100)
	if err != nil {
		http.Error(w, "failed to read dlq", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (models.ImportJob, bool) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "import not found", http.StatusNotFound)
		return job, false
	}
	if err != nil {
		http.Error(w, "failed to load import", http.StatusInternalServerError)
		return job, false
	}
	return job, true
}

// allow applies the per-tenant upload limit. It writes the error response itself.
func (s *Server) allow(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	allowed, _, err := s.limiter.Allow(r.Context(), fmt.Sprintf("rl:%s", tenantFromRequest(r)))
	if err != nil {
		http.Error(w, "rate limit error", http.StatusInternalServerError)
		return false
	}
	if !allowed {
		telemetry.RateLimitRejects.Inc()
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return false
	}
	return true
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
