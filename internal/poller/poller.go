// Package poller drives the periodic PLC read, reconcile, store and log
// cycle.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/brickdash/internal/clock"
	"github.com/ethpandaops/brickdash/internal/counter"
	"github.com/ethpandaops/brickdash/internal/csvlog"
	"github.com/ethpandaops/brickdash/internal/export"
	"github.com/ethpandaops/brickdash/internal/plc"
	"github.com/ethpandaops/brickdash/internal/series"
)

// DefaultInterval is the time between polls.
const DefaultInterval = 60 * time.Second

// InitialStatus is reported until the first successful poll.
const InitialStatus = "Waiting for first data point..."

// ErrAlreadyStarted is returned by Start on a poller that has left IDLE.
var ErrAlreadyStarted = errors.New("poller already started")

// RecordLogger persists reconciled readings.
type RecordLogger interface {
	AppendIfChanged(rec csvlog.Record, lastLoggedRaw *int64) (*int64, error)
}

// Config configures the poller.
type Config struct {
	// Interval is the time between polls. Defaults to 60s.
	Interval time.Duration `yaml:"interval"`
}

// Poller runs fetch, reconcile, store append and log append strictly in
// sequence once per interval.
type Poller struct {
	log        logrus.FieldLogger
	interval   time.Duration
	reader     plc.Reader
	reconciler *counter.Reconciler
	store      *series.Store
	records    RecordLogger
	health     *export.HealthMetrics

	mu         sync.Mutex
	state      State
	status     string
	lastLogged *int64

	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a poller in the IDLE state. health may be nil.
func New(
	log logrus.FieldLogger,
	cfg Config,
	reader plc.Reader,
	store *series.Store,
	records RecordLogger,
	health *export.HealthMetrics,
) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	if health == nil {
		health = export.NewHealthMetrics(log, export.HealthConfig{})
	}

	return &Poller{
		log:        log.WithField("component", "poller"),
		interval:   cfg.Interval,
		reader:     reader,
		reconciler: counter.NewReconciler(),
		store:      store,
		records:    records,
		health:     health,
		state:      StateIdle,
		status:     InitialStatus,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start moves the poller from IDLE to RUNNING and begins polling
// immediately. The first poll happens before the first wait.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return fmt.Errorf("%w: state is %s", ErrAlreadyStarted, p.state)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.state = StateRunning

	go p.run(ctx)

	p.log.WithField("interval", p.interval).Info("Poller started")

	return nil
}

// Stop signals the poll loop to exit and waits for it until ctx is done.
// A fetch in flight is abandoned; an iteration that already holds a
// reading runs to completion so no partial log row is written. Calling
// Stop again, or on a poller that never started, is a no-op.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()

	switch p.state {
	case StateIdle:
		p.state = StateStopped
		close(p.done)
		p.mu.Unlock()

		return nil
	case StateRunning:
		p.state = StateStopping
	}

	p.mu.Unlock()

	p.stopOnce.Do(func() {
		close(p.stopCh)

		if p.cancel != nil {
			p.cancel()
		}
	})

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for poller to stop: %w", ctx.Err())
	}
}

// Done is closed once the poller has reached STOPPED.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Status returns the human-readable status line.
func (p *Poller) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

// Reconciler returns a snapshot of the reconciler state.
func (p *Poller) Reconciler() counter.State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.reconciler.State()
}

func (p *Poller) run(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.state = StateStopped
		p.mu.Unlock()

		close(p.done)

		p.log.Info("Poller stopped")
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// Stop may have raced the timer.
		if ctx.Err() != nil {
			return
		}

		p.poll(ctx)

		timer.Reset(p.interval)
	}
}

// poll performs one iteration. Failures to fetch or parse skip the
// iteration; failures to log are reported and do not stop state from
// advancing.
func (p *Poller) poll(ctx context.Context) {
	start := time.Now()
	reading, err := p.reader.Fetch(ctx)
	p.health.FetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		p.handleFetchError(ctx, err)

		return
	}

	p.mu.Lock()
	prev := p.reconciler.State().PreviousRaw
	adjusted, event := p.reconciler.Reconcile(reading.Value)
	resets := p.reconciler.State().ResetCount
	p.mu.Unlock()

	at := reading.ObservedAt
	ts := clock.TimeOfDay(at)

	fields := logrus.Fields{
		"raw":      reading.Value,
		"adjusted": adjusted,
		"event":    event,
	}

	if event == counter.EventResetDetected {
		p.health.ResetsTotal.Inc()
		p.setStatus(fmt.Sprintf(
			"Reset %d detected at %s, continuing count", resets, ts,
		))

		// A decrease is always treated as a reset; a glitched reading
		// would bank the previous value just the same.
		p.log.WithFields(fields).
			WithField("previous_raw", *prev).
			Warn("Counter reset detected")
	} else {
		p.setStatus(fmt.Sprintf(
			"Last update %s | Bricks Cut (raw): %d", ts, reading.Value,
		))
		p.log.WithFields(fields).Info("Polled PLC")
	}

	p.store.Append(series.Entry{
		Timestamp: ts,
		Adjusted:  adjusted,
	}, event, at)

	p.appendLog(csvlog.Record{
		At:       at,
		Raw:      reading.Value,
		Adjusted: adjusted,
		Event:    event,
	})

	p.health.PollsTotal.Inc()
	p.health.RawBricks.Set(float64(reading.Value))
	p.health.AdjustedBricks.Set(float64(adjusted))
	p.health.SeriesLength.Set(float64(p.store.Len()))
	p.health.LastPollUnixTime.Set(float64(at.Unix()))

	if reading.Speed != nil {
		p.health.SpeedPerMinute.Set(*reading.Speed)
	}
}

func (p *Poller) appendLog(rec csvlog.Record) {
	p.mu.Lock()
	prev := p.lastLogged
	p.mu.Unlock()

	last, err := p.records.AppendIfChanged(rec, prev)
	if err != nil {
		p.health.LogWriteErrors.Inc()
		p.log.WithError(err).Error("Failed to append to CSV log")

		return
	}

	// A new pointer means a row was written.
	if last != prev {
		p.health.LogRowsTotal.Inc()
	}

	p.mu.Lock()
	p.lastLogged = last
	p.mu.Unlock()
}

func (p *Poller) handleFetchError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		p.log.WithError(err).Debug("Poll abandoned during shutdown")

		return
	}

	kind := "fetch"
	if errors.Is(err, plc.ErrParse) {
		kind = "parse"
	}

	p.health.PollErrors.WithLabelValues(kind).Inc()
	p.setStatus(fmt.Sprintf("Connection error: %v", err))

	p.log.WithError(err).
		WithField("kind", kind).
		Warn("PLC poll failed, skipping")
}

func (p *Poller) setStatus(s string) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}
