package agent

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/brickdash/internal/clock"
	"github.com/ethpandaops/brickdash/internal/plc"
	"github.com/ethpandaops/brickdash/internal/poller"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

func testConfig(t *testing.T, endpoint string) *Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.PLC.Endpoint = endpoint
	cfg.PLC.Timeout = 200 * time.Millisecond
	cfg.Poller.Interval = 20 * time.Millisecond
	cfg.Log.Dir = t.TempDir()
	cfg.Dashboard.Interval = 10 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	require.NoError(t, cfg.Validate())

	return cfg
}

// plcServer serves a counter that rises by one per request and drops
// back to zero after resetAt requests.
func plcServer(t *testing.T, resetAt int64) *httptest.Server {
	t.Helper()

	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			n := hits.Add(1)
			if resetAt > 0 && n > resetAt {
				n -= resetAt
			}

			fmt.Fprintf(w, "<html><body><h1>Bricks Cut: %d</h1></body></html>", n+100)
		},
	))
	t.Cleanup(srv.Close)

	return srv
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)

	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	return rows
}

func TestAgent_EndToEnd(t *testing.T) {
	srv := plcServer(t, 3)
	cfg := testConfig(t, srv.URL)
	cfg.Health.Addr = "127.0.0.1:0"

	a, err := newAgent(testLog(), cfg, nil)
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))

	logPath := filepath.Join(cfg.Log.Dir,
		"brickdash_log_"+clock.Day(time.Now())+".csv")

	require.Eventually(t, func() bool {
		return a.store.Len() >= 6
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.Dashboard.Path)

		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + a.health.Addr() + "/metrics")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "brickdash_polls_total")
	assert.Contains(t, string(body), "brickdash_resets_total 1")

	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())

	assert.Equal(t, poller.StateStopped, a.poller.State())

	rows := readRows(t, logPath)
	require.GreaterOrEqual(t, len(rows), 6)
	assert.Equal(t, []string{"timestamp", "raw_bricks", "adjusted_bricks", "event"}, rows[0])

	// Raw 101, 102, 103, then the counter resets to 101.
	assert.Equal(t, []string{"101", "101", "NORMAL"}, rows[1][1:])
	assert.Equal(t, []string{"103", "103", "NORMAL"}, rows[3][1:])
	assert.Equal(t, []string{"101", "204", "RESET_DETECTED"}, rows[4][1:])

	snap := a.store.Snapshot()
	adjusted := snap.Adjusted()

	for i := 1; i < len(adjusted); i++ {
		assert.GreaterOrEqual(t, adjusted[i], adjusted[i-1])
	}

	state := a.poller.Reconciler()
	assert.Equal(t, int64(1), state.ResetCount)
	assert.Equal(t, int64(103), state.Offset)
}

func TestAgent_StartCreatesLogHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	))
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)

	a, err := newAgent(testLog(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	require.Eventually(t, func() bool {
		return a.poller.Status() != poller.InitialStatus
	}, 5*time.Second, 10*time.Millisecond)

	assert.Contains(t, a.poller.Status(), "Connection error")

	require.NoError(t, a.Stop())

	rows := readRows(t, filepath.Join(cfg.Log.Dir,
		"brickdash_log_"+clock.Day(time.Now())+".csv"))
	assert.Len(t, rows, 1, "header only")
	assert.Zero(t, a.store.Len())
}

type hangingReader struct{}

func (hangingReader) Fetch(context.Context) (*plc.Reading, error) {
	select {}
}

func TestAgent_StopBoundedByShutdownTimeout(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.ShutdownTimeout = 50 * time.Millisecond

	a, err := newAgent(testLog(), cfg, hangingReader{})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	require.Eventually(t, func() bool {
		return a.poller.State() == poller.StateRunning
	}, time.Second, 5*time.Millisecond)

	start := time.Now()
	err = a.Stop()

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, poller.StateStopping, a.poller.State())
}

func TestNew_BadLogDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	cfg := DefaultConfig()
	cfg.Log.Dir = filepath.Join(file, "logs")
	require.NoError(t, cfg.Validate())

	_, err := New(testLog(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating csv log")
}
