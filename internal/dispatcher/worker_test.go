package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/inkboost/internal/assemble"
	"github.com/local/inkboost/internal/queue"
	"github.com/local/inkboost/internal/raster"
	"github.com/local/inkboost/internal/storage"
	"github.com/local/inkboost/internal/store"
	"github.com/local/inkboost/internal/style"
)

// fixedPages is a rasterizer whose documents have a fixed page count. Sources
// starting with "bad" fail to open; "slow" sources block until cancelled and
// "gate" sources until gate is closed.
type fixedPages struct {
	n    int
	gate chan struct{}
}

func (p fixedPages) Open(ctx context.Context, src []byte) (raster.Document, error) {
	switch {
	case len(src) >= 3 && string(src[:3]) == "bad":
		return nil, raster.ErrNotPDF
	case len(src) >= 4 && string(src[:4]) == "slow":
		return slowDoc{}, nil
	case len(src) >= 4 && string(src[:4]) == "gate":
		return gateDoc{whiteDoc: whiteDoc{n: p.n}, gate: p.gate}, nil
	}
	return whiteDoc{n: p.n}, nil
}

type whiteDoc struct{ n int }

func (d whiteDoc) NumPage() int { return d.n }
func (d whiteDoc) Render(ctx context.Context, i int) (image.Image, error) {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for j := range img.Pix {
		img.Pix[j] = 0xff
	}
	return img, nil
}
func (d whiteDoc) Close() error { return nil }

type slowDoc struct{}

func (slowDoc) NumPage() int { return 2 }
func (slowDoc) Render(ctx context.Context, i int) (image.Image, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (slowDoc) Close() error { return nil }

type gateDoc struct {
	whiteDoc
	gate chan struct{}
}

func (d gateDoc) Render(ctx context.Context, i int) (image.Image, error) {
	select {
	case <-d.gate:
		return d.whiteDoc.Render(ctx, i)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(w io.Writer, p []image.Image) error {
	_, err := fmt.Fprintf(w, "%%PDF-fake %d", len(p))
	return err
}

type harness struct {
	q      *queue.RedisQueue
	status *store.RedisStatus
	blobs  *storage.LocalStore
	worker *Worker
	gate   chan struct{}
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := queue.NewFromClient(context.Background(), redis.NewClient(&redis.Options{Addr: mr.Addr()}), "jobs:t", "workers:t", "")
	require.NoError(t, err)
	st := store.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = q.Close()
		_ = st.Close()
	})

	gate := make(chan struct{})
	asm := assemble.New(fixedPages{n: 4, gate: gate}, fakeEncoder{}, assemble.Config{Workers: 2, Timeout: timeout})
	w := New(Config{Concurrency: 1, PollTimeout: 20 * time.Millisecond}, Deps{Queue: q, Status: st, Storage: blobs, Assembler: asm})
	return &harness{q: q, status: st, blobs: blobs, worker: w, gate: gate}
}

func (h *harness) submit(t *testing.T, id string, src string, limit int) queue.Job {
	t.Helper()
	job := queue.Job{JobID: id, SourceKey: storage.SourceKey(id, "notes.pdf"), Filename: "notes.pdf", Style: style.Default(), PageLimit: limit}
	require.NoError(t, h.blobs.Put(context.Background(), job.SourceKey, []byte(src)))
	return job
}

func (h *harness) statusOf(t *testing.T, id string) store.Status {
	t.Helper()
	st, ok, err := h.status.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	return st
}

func TestProcessSuccess(t *testing.T) {
	h := newHarness(t, time.Minute)
	job := h.submit(t, "j1", "%PDF-1.7", assemble.AllPages)

	require.NoError(t, h.worker.Process(context.Background(), job))

	st := h.statusOf(t, "j1")
	assert.Equal(t, store.StateSuccess, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, "results/j1/enhanced_notes.pdf", st.MetaString("result_key"))
	assert.EqualValues(t, 4, st.Metadata["pages"])
	require.NotNil(t, st.Start)
	require.NotNil(t, st.End)

	out, err := h.blobs.Get(context.Background(), "results/j1/enhanced_notes.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake 4", string(out))
}

func TestProcessPreviewLimit(t *testing.T) {
	h := newHarness(t, time.Minute)
	job := h.submit(t, "j2", "%PDF-1.7", 2)
	require.NoError(t, h.worker.Process(context.Background(), job))

	out, err := h.blobs.Get(context.Background(), storage.ResultKey("j2", "notes.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake 2", string(out))
}

func TestProcessFailures(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		limit int
		skip  bool
		kind  string
		hint  string
	}{
		{name: "decode", src: "bad bytes", limit: assemble.AllPages, kind: KindDecode},
		{name: "empty range", src: "%PDF-1.7", limit: 0, kind: KindEmpty},
		{name: "timeout", src: "slow", limit: assemble.AllPages, kind: KindTimeout, hint: "preview"},
		{name: "missing source", src: "", skip: true, limit: assemble.AllPages, kind: KindMissingInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 50*time.Millisecond)
			job := queue.Job{JobID: "jf", SourceKey: "sources/jf/notes.pdf", Filename: "notes.pdf", Style: style.Default(), PageLimit: tt.limit}
			if !tt.skip {
				job = h.submit(t, "jf", tt.src, tt.limit)
			}

			err := h.worker.Process(context.Background(), job)
			assert.Error(t, err)

			st := h.statusOf(t, "jf")
			assert.Equal(t, store.StateFailed, st.Status)
			assert.Equal(t, tt.kind, st.MetaString("error_kind"))
			assert.Equal(t, tt.hint, st.MetaString("retry_hint"))
			assert.NotEmpty(t, st.Message)

			_, dlq, err := h.q.Depths(context.Background())
			require.NoError(t, err)
			assert.EqualValues(t, 1, dlq)
		})
	}
}

func TestProcessSkipsCancelled(t *testing.T) {
	h := newHarness(t, time.Minute)
	job := h.submit(t, "j3", "%PDF-1.7", assemble.AllPages)
	require.NoError(t, h.q.CancelJob(context.Background(), "j3"))

	require.NoError(t, h.worker.Process(context.Background(), job))
	assert.Equal(t, store.StateCancelled, h.statusOf(t, "j3").Status)

	_, err := h.blobs.Get(context.Background(), storage.ResultKey("j3", "notes.pdf"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWorkerLoop(t *testing.T) {
	h := newHarness(t, time.Minute)
	job := h.submit(t, "j4", "%PDF-1.7", assemble.AllPages)
	require.NoError(t, h.q.Enqueue(context.Background(), job))

	h.worker.Start()
	require.Eventually(t, func() bool {
		st, ok, err := h.status.Get(context.Background(), "j4")
		return err == nil && ok && st.Status == store.StateSuccess
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.worker.Stop(ctx))
}

func (h *harness) waitFor(t *testing.T, id, state string) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, ok, err := h.status.Get(context.Background(), id)
		return err == nil && ok && st.Status == state
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStopFinishesInFlightJob(t *testing.T) {
	h := newHarness(t, time.Minute)
	job := h.submit(t, "j5", "gate", assemble.AllPages)
	require.NoError(t, h.q.Enqueue(context.Background(), job))

	h.worker.Start()
	h.waitFor(t, "j5", store.StateProcessing)

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopped <- h.worker.Stop(ctx)
	}()

	select {
	case err := <-stopped:
		t.Fatalf("Stop returned before the job finished: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	close(h.gate)
	require.NoError(t, <-stopped)

	st := h.statusOf(t, "j5")
	assert.Equal(t, store.StateSuccess, st.Status)
	_, dlq, err := h.q.Depths(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dlq)
}

func TestStopDeadlineRequeuesJob(t *testing.T) {
	h := newHarness(t, time.Minute)
	job := h.submit(t, "j6", "slow", assemble.AllPages)
	job.Attempt = 1
	require.NoError(t, h.q.Enqueue(context.Background(), job))

	h.worker.Start()
	h.waitFor(t, "j6", store.StateProcessing)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.worker.Stop(ctx), context.DeadlineExceeded)

	st := h.statusOf(t, "j6")
	assert.Equal(t, store.StateQueued, st.Status)
	_, dlq, err := h.q.Depths(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dlq)

	_, again, err := h.q.Dequeue(context.Background(), "next", 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "j6", again.JobID)
	assert.Equal(t, 2, again.Attempt)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{&assemble.SourceDecodeError{Reason: "not a pdf", Err: raster.ErrNotPDF}, KindDecode},
		{fmt.Errorf("wrapped: %w", &assemble.EmptyDocumentError{Reason: "x"}), KindEmpty},
		{&assemble.ProcessingTimeoutError{Stage: "enhance", Err: context.DeadlineExceeded}, KindTimeout},
		{&assemble.EncodingError{Err: errors.New("x")}, KindEncoding},
		{fmt.Errorf("%w: thickness", style.ErrInvalid), KindInvalidStyle},
		{fmt.Errorf("load source: %w", storage.ErrNotFound), KindMissingInput},
		{context.Canceled, KindCancelled},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, classify(tt.err).Kind, tt.err.Error())
	}
	assert.True(t, isTerminal(storage.ErrNotFound))
	assert.False(t, isTerminal(errors.New("boom")))
}
