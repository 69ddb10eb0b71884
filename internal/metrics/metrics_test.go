package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.BytesStored("chunk", 10)
	m.BytesStored("chunk", 5)
	m.BytesStored("file", 0)
	m.ChunkSaved(nil)
	m.ChunkSaved(errors.New("boom"))
	m.Merged(time.Now(), nil)
	m.DedupLookup(true)
	m.DedupLookup(false)
	m.DedupLookup(false)
	m.IDFailure()
	m.ChunksCollected(3)

	assert.Equal(t, 15.0, testutil.ToFloat64(m.bytesStored.WithLabelValues("chunk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunkSaves.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunkSaves.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.merges.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dedupLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dedupLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.idFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.chunksCollected))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BytesStored("file", 1)
		m.ChunkSaved(nil)
		m.Merged(time.Now(), nil)
		m.DedupLookup(true)
		m.IDFailure()
		m.ChunksCollected(1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	reg, err := NewRegistry(m)
	require.NoError(t, err)

	m.ChunkSaved(nil)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `pan_storage_chunk_saves_total{result="ok"} 1`))
}
