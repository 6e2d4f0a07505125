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

func TestCollector(t *testing.T) {
	c := NewCollector(4, func() int { return 7 })

	c.ConsumedInc("stop-estimate")
	c.ConsumedInc("stop-estimate")
	c.RejectedInc("ingest")
	c.TripEvictedInc()
	c.NATSPublishedInc()
	c.NATSPublishErrInc()
	c.NATSSetConnected(true)
	c.ProcessObserve(time.Millisecond)
	c.PublishObserve(time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.MessagesConsumed.WithLabelValues("stop-estimate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.MessagesRejected.WithLabelValues("ingest")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TripsEvicted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.Workers))

	c.NATSSetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.NATSConnected))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tripupdater_cached_trips 7")
	assert.Contains(t, string(body), `tripupdater_messages_rejected_total{reason="ingest"} 1`)
}
