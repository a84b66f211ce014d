package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/inkboost/internal/assemble"
	"github.com/local/inkboost/internal/metrics"
	"github.com/local/inkboost/internal/queue"
	"github.com/local/inkboost/internal/storage"
	"github.com/local/inkboost/internal/store"
)

type Queue interface {
	Enqueue(ctx context.Context, job queue.Job) error
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, *queue.Job, error)
	Ack(ctx context.Context, msgID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	AddDLQ(ctx context.Context, job queue.Job, reason string) error
	Depths(ctx context.Context) (int64, int64, error)
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	SetProgress(ctx context.Context, jobID string, progress int) error
}

type Config struct {
	Concurrency int
	PollTimeout time.Duration
	// Consumer prefixes consumer names in the queue group.
	Consumer string
	// DepthInterval is how often queue depth gauges refresh. Zero disables.
	DepthInterval time.Duration
}

type Deps struct {
	Queue     Queue
	Status    StatusStore
	Storage   storage.Store
	Assembler *assemble.Assembler
}

type Worker struct {
	cfg  Config
	deps Deps
	stop chan struct{}
	wg   sync.WaitGroup

	// jobs outlives stop so in-flight documents finish; abort ends it.
	jobs  context.Context
	abort context.CancelFunc
}

func New(cfg Config, deps Deps) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "inkboost"
	}
	jobs, abort := context.WithCancel(context.Background())
	return &Worker{cfg: cfg, deps: deps, stop: make(chan struct{}), jobs: jobs, abort: abort}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
	if w.cfg.DepthInterval > 0 {
		w.wg.Add(1)
		go w.monitorDepths()
	}
}

// Stop ends dequeuing and waits for in-flight jobs to finish. When ctx ends
// first the remaining jobs are interrupted and put back on the queue.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.abort()
		return nil
	case <-ctx.Done():
	}

	log.Warn().Msg("shutdown deadline reached; requeueing in-flight jobs")
	w.abort()
	select {
	case <-done:
	case <-time.After(requeueGrace):
		log.Error().Msg("in-flight jobs did not stop in time")
	}
	return ctx.Err()
}

const requeueGrace = 5 * time.Second

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("%s-%d", w.cfg.Consumer, id)
	log.Info().Int("worker", id).Msg("dispatcher worker started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("dispatcher worker stopped")
			return
		default:
		}

		msgID, job, err := w.deps.Queue.Dequeue(ctx, consumer, w.cfg.PollTimeout)
		if msgID != "" {
			// ack-on-read: failed jobs go to the DLQ rather than being redelivered
			if ackErr := w.deps.Queue.Ack(context.Background(), msgID); ackErr != nil {
				log.Warn().Err(ackErr).Str("msg_id", msgID).Msg("queue ack failed")
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Str("msg_id", msgID).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if job == nil {
			continue
		}
		if err := w.Process(w.jobs, *job); err != nil {
			log.Warn().Err(err).Int("worker", id).Str("job_id", job.JobID).Msg("job failed")
		}
	}
}

// Process runs one job to completion and records its outcome. The returned
// error is informational; status and DLQ are already updated.
func (w *Worker) Process(ctx context.Context, job queue.Job) error {
	logger := log.With().Str("job_id", job.JobID).Str("filename", job.Filename).Logger()

	if cancelled, _ := w.deps.Queue.IsCancelled(ctx, job.JobID); cancelled {
		logger.Warn().Msg("job cancelled before processing; skipping")
		w.markCancelled(job, nil)
		return nil
	}

	start := time.Now().UTC()
	if err := w.deps.Status.Set(ctx, job.JobID, store.Status{
		Status:   store.StateProcessing,
		Message:  "Enhancing pages",
		Start:    &start,
		Metadata: map[string]interface{}{"filename": job.Filename},
	}); err != nil {
		logger.Warn().Err(err).Msg("status update failed")
	}

	resultKey, pages, err := w.run(ctx, job)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			if cancelled, _ := w.deps.Queue.IsCancelled(context.Background(), job.JobID); cancelled {
				logger.Warn().Msg("job cancelled while processing")
				w.markCancelled(job, &start)
				return nil
			}
			if w.jobs.Err() != nil {
				return w.requeue(job)
			}
		}
		return w.fail(job, start, err)
	}

	end := time.Now().UTC()
	if err := w.deps.Status.Set(context.Background(), job.JobID, store.Status{
		Status:   store.StateSuccess,
		Progress: 100,
		Message:  "Done",
		Start:    &start,
		End:      &end,
		Metadata: map[string]interface{}{
			"filename":   job.Filename,
			"result_key": resultKey,
			"pages":      pages,
		},
	}); err != nil {
		logger.Warn().Err(err).Msg("status update failed")
	}
	metrics.IncJob(store.StateSuccess)
	logger.Info().Int("pages", pages).Dur("duration", end.Sub(start)).Str("result_key", resultKey).Msg("job completed")
	return nil
}

func (w *Worker) markCancelled(job queue.Job, start *time.Time) {
	now := time.Now().UTC()
	_ = w.deps.Status.Set(context.Background(), job.JobID, store.Status{
		Status: store.StateCancelled, Message: "Cancelled", Start: start, End: &now,
	})
	metrics.IncJob(store.StateCancelled)
}

// run loads the source, assembles it and stores the result. A cancel request
// seen between pages aborts the document.
func (w *Worker) run(parent context.Context, job queue.Job) (string, int, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	src, err := w.deps.Storage.Get(ctx, job.SourceKey)
	if err != nil {
		return "", 0, fmt.Errorf("load source: %w", err)
	}

	var (
		mu    sync.Mutex
		last  = -1
		total int
	)
	progress := func(done, n int) {
		pct := done * 100 / n
		mu.Lock()
		total = n
		changed := pct != last
		last = pct
		mu.Unlock()
		if changed {
			_ = w.deps.Status.SetProgress(ctx, job.JobID, pct)
		}
		if cancelled, _ := w.deps.Queue.IsCancelled(ctx, job.JobID); cancelled {
			cancel()
		}
	}

	out, err := w.deps.Assembler.WithProgress(progress).Assemble(ctx, src, job.Style, job.PageLimit)
	if err != nil {
		return "", 0, err
	}
	data, err := io.ReadAll(out)
	if err != nil {
		return "", 0, err
	}
	key := storage.ResultKey(job.JobID, job.Filename)
	if err := w.deps.Storage.Put(ctx, key, data); err != nil {
		return "", 0, fmt.Errorf("store result: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	return key, total, nil
}

// requeue puts a job interrupted by shutdown back on the queue.
func (w *Worker) requeue(job queue.Job) error {
	logger := log.With().Str("job_id", job.JobID).Logger()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job.Attempt++
	if err := w.deps.Status.Set(ctx, job.JobID, store.Status{
		Status:   store.StateQueued,
		Message:  "Requeued after restart",
		Metadata: map[string]interface{}{"filename": job.Filename, "attempt": job.Attempt},
	}); err != nil {
		logger.Warn().Err(err).Msg("status update failed")
	}
	if err := w.deps.Queue.Enqueue(ctx, job); err != nil {
		logger.Error().Err(err).Msg("requeue failed")
		return w.fail(job, time.Now().UTC(), fmt.Errorf("requeue after shutdown: %w", err))
	}
	logger.Info().Int("attempt", job.Attempt).Msg("job requeued after shutdown")
	return nil
}

func (w *Worker) fail(job queue.Job, start time.Time, cause error) error {
	f := classify(cause)
	end := time.Now().UTC()
	meta := map[string]interface{}{
		"filename":   job.Filename,
		"error_kind": f.Kind,
		"terminal":   isTerminal(cause),
	}
	if f.RetryHint != "" {
		meta["retry_hint"] = f.RetryHint
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.deps.Status.Set(ctx, job.JobID, store.Status{
		Status:   store.StateFailed,
		Message:  f.Message,
		Start:    &start,
		End:      &end,
		Metadata: meta,
	}); err != nil {
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("status update failed")
	}
	if err := w.deps.Queue.AddDLQ(ctx, job, f.Kind+": "+cause.Error()); err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("dlq push failed")
	}
	metrics.IncJob(store.StateFailed)
	return cause
}

func (w *Worker) monitorDepths() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.DepthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			stream, dlq, err := w.deps.Queue.Depths(ctx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Msg("queue depth poll failed")
				continue
			}
			metrics.SetQueueDepth("stream", stream)
			metrics.SetQueueDepth("dlq", dlq)
		}
	}
}
