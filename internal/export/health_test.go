package export

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

func startHealth(t *testing.T) *HealthMetrics {
	t.Helper()

	h := NewHealthMetrics(testLog(), HealthConfig{
		Addr: "127.0.0.1:0",
	})

	ctx := context.Background()
	require.NoError(t, h.Start(ctx))

	t.Cleanup(func() {
		h.Stop()
	})

	// Give server a moment to start serving.
	time.Sleep(50 * time.Millisecond)

	return h
}

func TestHealthMetrics_StartStop(t *testing.T) {
	h := startHealth(t)
	assert.True(t, h.running.Load())
	assert.NotEmpty(t, h.Addr())
}

func TestHealthMetrics_DisabledByDefault(t *testing.T) {
	h := NewHealthMetrics(testLog(), HealthConfig{})

	assert.False(t, h.Enabled())
	require.NoError(t, h.Start(context.Background()))
	assert.False(t, h.running.Load())
	assert.Empty(t, h.Addr())
	assert.NoError(t, h.Stop())
}

func TestHealthMetrics_MetricsEndpoint(t *testing.T) {
	h := startHealth(t)

	h.PollsTotal.Inc()
	h.PollsTotal.Inc()
	h.ResetsTotal.Inc()
	h.PollErrors.WithLabelValues("fetch").Inc()
	h.AdjustedBricks.Set(1234)

	url := fmt.Sprintf("http://%s/metrics", h.Addr())

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	bodyStr := string(body)
	assert.Contains(t, bodyStr, "brickdash_polls_total 2")
	assert.Contains(t, bodyStr, "brickdash_resets_total 1")
	assert.Contains(t, bodyStr, `brickdash_poll_errors_total{kind="fetch"} 1`)
	assert.Contains(t, bodyStr, "brickdash_adjusted_bricks 1234")
}

func TestHealthMetrics_HealthzResponse(t *testing.T) {
	h := NewHealthMetrics(testLog(), HealthConfig{})

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHealthMetrics_Counters(t *testing.T) {
	h := NewHealthMetrics(testLog(), HealthConfig{})

	h.LogRowsTotal.Inc()
	h.LogWriteErrors.Inc()
	h.LogWriteErrors.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(h.LogRowsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.LogWriteErrors))
}

func TestHealthMetrics_StopIdempotent(t *testing.T) {
	h := NewHealthMetrics(testLog(), HealthConfig{})

	assert.NoError(t, h.Stop())
	assert.NoError(t, h.Stop())
}

func TestHealthMetrics_AddrBeforeStart(t *testing.T) {
	h := NewHealthMetrics(testLog(), HealthConfig{
		Addr: ":9999",
	})

	// Before Start, Addr returns the configured address.
	assert.Equal(t, ":9999", h.Addr())
}
