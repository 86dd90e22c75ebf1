package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordCheck(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordCheck(5, 1, 3, 250*time.Millisecond)
	c.RecordCheck(2, 0, 1, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.checks))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.records))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.staleKeys))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lastStale))
	assert.Equal(t, 1, testutil.CollectAndCount(c.checkSeconds))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(nil)
	c.RecordCheck(1, 0, 1, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "iamkeycheck_checks_total 1"), body)
	assert.Contains(t, body, "iamkeycheck_stale_keys_found_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestCollector_RegistersOnProvidedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordCheck(3, 1, 2, time.Second)

	require.Same(t, reg, c.Registry())

	count, err := testutil.GatherAndCount(c.Registry())
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	count, err = testutil.GatherAndCount(c.Registry(), "iamkeycheck_record_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
