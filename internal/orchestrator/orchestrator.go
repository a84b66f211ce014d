// Package orchestrator exposes the HTTP API: synchronous previews and queued
// full-document jobs.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/inkboost/internal/assemble"
	"github.com/local/inkboost/internal/limiter"
	"github.com/local/inkboost/internal/metrics"
	"github.com/local/inkboost/internal/queue"
	"github.com/local/inkboost/internal/raster"
	"github.com/local/inkboost/internal/statuscheck"
	"github.com/local/inkboost/internal/storage"
	"github.com/local/inkboost/internal/store"
)

type Queue interface {
	Enqueue(ctx context.Context, job queue.Job) error
	CancelJob(ctx context.Context, jobID string) error
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

// Dependencies wires the API. Queue and Status may be nil, in which case the
// job routes are not registered and only previews are served.
type Dependencies struct {
	Queue     Queue
	Status    StatusStore
	Storage   storage.Store
	Assembler *assemble.Assembler
	Checker   *statuscheck.Checker
	// Slots bounds concurrent synchronous previews.
	Slots *limiter.Slots
}

type Options struct {
	PreviewPages   int
	MaxUploadBytes int64
}

type Orchestrator struct {
	deps Dependencies
	opts Options
}

func New(deps Dependencies, opts Options) *Orchestrator {
	if opts.PreviewPages <= 0 {
		opts.PreviewPages = 5
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 45 << 20
	}
	if deps.Slots == nil {
		deps.Slots = limiter.New(2)
	}
	return &Orchestrator{deps: deps, opts: opts}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /ready", o.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /preview", o.handlePreview)

	if o.deps.Queue == nil || o.deps.Status == nil {
		log.Warn().Msg("queue disabled; job routes not registered")
		return
	}
	mux.HandleFunc("POST /jobs", o.handleSubmit)
	mux.HandleFunc("GET /jobs/{id}", o.handleProgress)
	mux.HandleFunc("GET /jobs/{id}/result", o.handleResult)
	mux.HandleFunc("POST /jobs/{id}/cancel", o.handleCancel)
}

func (o *Orchestrator) handleReady(w http.ResponseWriter, r *http.Request) {
	if o.deps.Checker == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true})
		return
	}
	s := o.deps.Checker.Summary(r.Context())
	code := http.StatusOK
	if !s.Ready() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"ready": s.Ready(), "checks": s})
}

type submitResp struct {
	Status     string `json:"status"`
	JobID      string `json:"job_id"`
	Message    string `json:"message"`
	TotalPages int    `json:"total_pages"`
}

func (o *Orchestrator) handleSubmit(w http.ResponseWriter, r *http.Request) {
	up, err := o.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := parseStyle(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := parsePageLimit(r.FormValue("page_limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	pages, err := raster.PageCount(up.data)
	if err != nil {
		writeError(w, err)
		return
	}
	if pages == 0 {
		writeError(w, &assemble.EmptyDocumentError{Reason: "source has no pages", Err: raster.ErrNoPages})
		return
	}
	if limit != assemble.AllPages && limit < pages {
		pages = limit
	}

	jobID := uuid.NewString()
	logger := log.With().Str("job_id", jobID).Str("filename", up.name).Logger()
	job := queue.Job{
		JobID:     jobID,
		SourceKey: storage.SourceKey(jobID, up.name),
		Filename:  up.name,
		Style:     st,
		PageLimit: limit,
		Attempt:   1,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.deps.Storage.Put(r.Context(), job.SourceKey, up.data); err != nil {
		logger.Error().Err(err).Msg("store source failed")
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	start := time.Now().UTC()
	if err := o.deps.Status.Set(r.Context(), jobID, store.Status{
		Status:  store.StateQueued,
		Message: "Queued",
		Start:   &start,
		Metadata: map[string]any{
			"filename":    up.name,
			"total_pages": pages,
			"mode":        assemble.ModeFor(limit),
		},
	}); err != nil {
		logger.Error().Err(err).Msg("status store failed")
		http.Error(w, "status store unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := o.deps.Queue.Enqueue(r.Context(), job); err != nil {
		logger.Error().Err(err).Msg("enqueue failed")
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}
	logger.Info().Int("total_pages", pages).Int("bytes", len(up.data)).Msg("job created")

	writeJSON(w, http.StatusCreated, submitResp{
		Status:     "ok",
		JobID:      jobID,
		Message:    "Enhancement job created",
		TotalPages: pages,
	})
}

func (o *Orchestrator) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	resp := map[string]any{
		"success":    st.Status == store.StateSuccess,
		"job_id":     id,
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
	}
	for _, k := range []string{"filename", "total_pages", "pages", "error_kind", "retry_hint"} {
		if v, ok := st.Metadata[k]; ok {
			resp[k] = v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (o *Orchestrator) handleResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	switch {
	case st.Status == store.StateSuccess:
	case st.Terminal():
		http.Error(w, "job "+st.Status, http.StatusConflict)
		return
	default:
		http.Error(w, "not ready", http.StatusAccepted)
		return
	}
	key := st.MetaString("result_key")
	if key == "" {
		http.Error(w, "result not available", http.StatusNotFound)
		return
	}
	data, err := o.deps.Storage.Get(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "result not available", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", id).Msg("load result failed")
		http.Error(w, "failed to read", http.StatusInternalServerError)
		return
	}
	writePDF(w, "enhanced_"+displayName(st.MetaString("filename")), bytes.NewReader(data))
}

type cancelReq struct {
	Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req cancelReq
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if st.Terminal() {
		http.Error(w, "job already "+st.Status, http.StatusConflict)
		return
	}
	if err := o.deps.Queue.CancelJob(r.Context(), id); err != nil {
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}

	prev := st.Status
	// A queued job is cancelled at once; a running one stops at its next page.
	if prev == store.StateQueued {
		now := time.Now().UTC()
		st.Status = store.StateCancelled
		st.End = &now
		if req.Reason != "" {
			st.Message = fmt.Sprintf("Cancelled: %s", req.Reason)
		} else {
			st.Message = "Cancelled"
		}
		if err := o.deps.Status.Set(r.Context(), id, st); err != nil {
			log.Warn().Err(err).Str("job_id", id).Msg("cancel status update failed; worker will skip the job")
		}
	}
	log.Info().Str("job_id", id).Str("reason", req.Reason).Str("was", prev).Msg("job cancel requested")
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "job_id": id, "status": st.Status})
}
