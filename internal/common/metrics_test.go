package common

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObserveOperation(t *testing.T) {
	m := NewMetrics()

	m.ObserveOperation("start", time.Now(), nil)
	m.ObserveOperation("start", time.Now(), errors.New("boom"))
	m.ObserveOperation("start", time.Now(), nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.OperationCounter.WithLabelValues("start", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OperationCounter.WithLabelValues("start", "error")))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.SetKnownContainers(3)

	assert.Equal(t, float64(3), testutil.ToFloat64(a.KnownContainers))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.KnownContainers))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveIPAttempts(4)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "lxcdriver_ip_resolve_attempts_count 1")
}
