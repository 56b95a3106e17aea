package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation(t *testing.T) {
	m, err := New(prometheus.NewRegistry(), "")
	require.NoError(t, err)

	m.ObserveOperation("persist", time.Now(), nil)
	m.ObserveOperation("persist", time.Now(), nil)
	m.ObserveOperation("persist", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("persist", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("persist", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
}

func TestQuadChurn(t *testing.T) {
	m, err := New(nil, "test")
	require.NoError(t, err)

	m.QuadsAdded("sqlite::memory:", 3)
	m.QuadsAdded("sqlite::memory:", 2)
	m.QuadsRemoved("sqlite::memory:", 1)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.triplesAdded.WithLabelValues("sqlite::memory:")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.triplesRemoved.WithLabelValues("sqlite::memory:")))
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, "dup")
	require.NoError(t, err)
	_, err = New(reg, "dup")
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("find", time.Now(), nil)
		m.QuadsAdded("s", 1)
		m.QuadsRemoved("s", 1)
	})
}
