package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(documentsTotal.WithLabelValues("preview", "success"))
	ObserveDocument("preview", "success", 2*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(documentsTotal.WithLabelValues("preview", "success")))

	pages := testutil.ToFloat64(pagesEnhanced)
	ObservePage(10 * time.Millisecond)
	ObservePage(20 * time.Millisecond)
	assert.Equal(t, pages+2, testutil.ToFloat64(pagesEnhanced))

	IncJob("failed")
	assert.GreaterOrEqual(t, testutil.ToFloat64(jobsTotal.WithLabelValues("failed")), 1.0)

	SetQueueDepth("stream", 7)
	assert.Equal(t, 7.0, testutil.ToFloat64(queueDepth.WithLabelValues("stream")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	Init()
	ObservePage(time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "inkboost_pages_enhanced_total")
}
