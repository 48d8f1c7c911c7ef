package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreIsolatedPerInstance(t *testing.T) {
	a := New()
	b := New()

	a.JoinAttempts.WithLabelValues("ok").Inc()
	a.JoinAttempts.WithLabelValues("ok").Inc()
	a.JoinAttempts.WithLabelValues("DEAL_FULL").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.JoinAttempts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.JoinAttempts.WithLabelValues("DEAL_FULL")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.JoinAttempts.WithLabelValues("ok")))
}

func TestHandlerExposesServiceMetrics(t *testing.T) {
	m := New()
	m.DealsCompleted.Inc()
	m.NotificationsDropped.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "jam3a_deals_completed_total 1")
	assert.Contains(t, string(body), "jam3a_notify_dropped_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
