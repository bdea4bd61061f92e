package export

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HealthConfig configures the Prometheus health metrics listener.
type HealthConfig struct {
	// Addr is the listen address for the metrics listener.
	// Empty disables the listener; metrics are still collected.
	Addr string `yaml:"addr"`
}

// HealthMetrics holds Prometheus metrics for the poller and dashboard.
type HealthMetrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	PollsTotal       prometheus.Counter
	PollErrors       *prometheus.CounterVec // kind (fetch/parse)
	ResetsTotal      prometheus.Counter
	RawBricks        prometheus.Gauge
	AdjustedBricks   prometheus.Gauge
	SpeedPerMinute   prometheus.Gauge
	LogRowsTotal     prometheus.Counter
	LogWriteErrors   prometheus.Counter
	FetchDuration    prometheus.Histogram
	RendersTotal     prometheus.Counter
	RenderErrors     prometheus.Counter
	SeriesLength     prometheus.Gauge
	LastPollUnixTime prometheus.Gauge

	running atomic.Bool
}

// NewHealthMetrics creates the metrics and registers them on a private
// registry.
func NewHealthMetrics(
	log logrus.FieldLogger,
	cfg HealthConfig,
) *HealthMetrics {
	reg := prometheus.NewRegistry()

	h := &HealthMetrics{
		log:      log.WithField("component", "health"),
		addr:     cfg.Addr,
		registry: reg,

		PollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brickdash",
			Name:      "polls_total",
			Help:      "Total successful PLC polls.",
		}),
		PollErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brickdash",
				Name:      "poll_errors_total",
				Help:      "Total skipped PLC polls by failure kind.",
			},
			[]string{"kind"},
		),
		ResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brickdash",
			Name:      "resets_total",
			Help:      "Total PLC counter resets detected this session.",
		}),
		RawBricks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brickdash",
			Name:      "raw_bricks",
			Help:      "Last raw brick counter reported by the PLC.",
		}),
		AdjustedBricks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brickdash",
			Name:      "adjusted_bricks",
			Help:      "Cumulative brick count corrected for resets.",
		}),
		SpeedPerMinute: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brickdash",
			Name:      "speed_bricks_per_minute",
			Help:      "Cutting speed reported by the PLC.",
		}),
		LogRowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brickdash",
			Name:      "log_rows_total",
			Help:      "Total rows appended to the CSV log.",
		}),
		LogWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brickdash",
			Name:      "log_write_errors_total",
			Help:      "Total failed CSV log appends.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "brickdash",
			Name:      "fetch_duration_seconds",
			Help:      "PLC fetch duration including failed attempts.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2}, // 10ms-2s
		}),
		RendersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brickdash",
			Name:      "renders_total",
			Help:      "Total dashboard renders.",
		}),
		RenderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brickdash",
			Name:      "render_errors_total",
			Help:      "Total failed dashboard renders.",
		}),
		SeriesLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brickdash",
			Name:      "series_length",
			Help:      "Number of observations held in memory.",
		}),
		LastPollUnixTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brickdash",
			Name:      "last_poll_timestamp_seconds",
			Help:      "Unix time of the last successful poll.",
		}),
	}

	reg.MustRegister(
		h.PollsTotal,
		h.PollErrors,
		h.ResetsTotal,
		h.RawBricks,
		h.AdjustedBricks,
		h.SpeedPerMinute,
		h.LogRowsTotal,
		h.LogWriteErrors,
		h.FetchDuration,
		h.RendersTotal,
		h.RenderErrors,
		h.SeriesLength,
		h.LastPollUnixTime,
	)

	return h
}

// Registry returns the registry holding all health metrics.
func (h *HealthMetrics) Registry() *prometheus.Registry {
	return h.registry
}

// Enabled reports whether a listen address is configured.
func (h *HealthMetrics) Enabled() bool {
	return h.addr != ""
}

// Router returns the handler serving /metrics and /healthz.
func (h *HealthMetrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		h.registry,
		promhttp.HandlerOpts{},
	))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	return r
}

// Start begins serving metrics when an address is configured.
func (h *HealthMetrics) Start(_ context.Context) error {
	if !h.Enabled() {
		h.log.Debug("Health metrics listener disabled")

		return nil
	}

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}

	h.listener = ln

	h.server = &http.Server{
		Handler: h.Router(),
	}

	h.running.Store(true)

	go func() {
		h.log.WithField("addr", ln.Addr().String()).
			Info("Health metrics server started")

		if err := h.server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			h.log.WithError(err).
				Error("Health metrics server error")
		}

		h.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started
// with ":0" to get the OS-assigned port.
func (h *HealthMetrics) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}

	return h.addr
}

// Stop shuts down the listener, if any.
func (h *HealthMetrics) Stop() error {
	if h.server == nil {
		return nil
	}

	return h.server.Close()
}
