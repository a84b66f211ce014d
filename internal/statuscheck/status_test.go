package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/local/inkboost/internal/raster"
)

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

type brokenRasterizer struct{}

func (brokenRasterizer) Open(ctx context.Context, src []byte) (raster.Document, error) {
	return nil, raster.ErrMalformed
}

func TestSummaryAllHealthy(t *testing.T) {
	c := New(Options{Redis: pinger{}, Storage: pinger{}})
	s := c.Summary(context.Background())
	assert.True(t, s.Redis.OK)
	assert.True(t, s.Storage.OK)
	assert.True(t, s.MuPDF.OK, s.MuPDF.Message)
	assert.True(t, s.Ready())

	// the probe document is built once and reused
	again := c.Summary(context.Background())
	assert.Equal(t, s.MuPDF, again.MuPDF)
}

func TestSummaryFailures(t *testing.T) {
	c := New(Options{
		Redis:      pinger{err: errors.New("dial tcp: connection refused")},
		Rasterizer: brokenRasterizer{},
	})
	s := c.Summary(context.Background())
	assert.False(t, s.Redis.OK)
	assert.Contains(t, s.Redis.Message, "connection refused")
	assert.False(t, s.Storage.OK)
	assert.False(t, s.MuPDF.OK)
	assert.False(t, s.Ready())
}

func TestRedisOptional(t *testing.T) {
	s := New(Options{Storage: pinger{}}).Summary(context.Background())
	assert.True(t, s.Redis.OK)
	assert.Equal(t, "Disabled", s.Redis.Message)
}

func TestTrimError(t *testing.T) {
	assert.Empty(t, trimError(nil))
	long := errors.New(strings.Repeat("x", 300))
	assert.Len(t, trimError(long), 120)
	assert.Equal(t, "timeout", trimError(context.DeadlineExceeded))
}
