// Package agent wires the PLC reader, poller, CSV log, dashboard and
// health metrics together and owns their lifecycle.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/brickdash/internal/clock"
	"github.com/ethpandaops/brickdash/internal/csvlog"
	"github.com/ethpandaops/brickdash/internal/dashboard"
	"github.com/ethpandaops/brickdash/internal/export"
	"github.com/ethpandaops/brickdash/internal/plc"
	"github.com/ethpandaops/brickdash/internal/poller"
	"github.com/ethpandaops/brickdash/internal/series"
)

// Agent is the top-level orchestrator for brickdash.
type Agent interface {
	// Start opens the log and begins polling and rendering.
	Start(ctx context.Context) error
	// Stop shuts down all components, waiting at most the configured
	// shutdown timeout for the poller.
	Stop() error
}

type agent struct {
	log       logrus.FieldLogger
	cfg       *Config
	clock     clock.Clock
	health    *export.HealthMetrics
	store     *series.Store
	records   *csvlog.Logger
	poller    *poller.Poller
	dashboard *dashboard.Presenter

	stopOnce sync.Once
	stopErr  error
}

// New creates a new Agent. The log directory is created here so a bad
// path fails before anything starts.
func New(log logrus.FieldLogger, cfg *Config) (Agent, error) {
	return newAgent(log, cfg, nil)
}

func newAgent(
	log logrus.FieldLogger,
	cfg *Config,
	reader plc.Reader,
) (*agent, error) {
	clk := clock.New()
	health := export.NewHealthMetrics(log, cfg.Health)

	records, err := csvlog.New(log, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("creating csv log: %w", err)
	}

	if reader == nil {
		reader = plc.NewClient(log, cfg.PLC, clk)
	}

	store := series.NewStore(cfg.Poller.Interval)
	p := poller.New(log, cfg.Poller, reader, store, records, health)

	return &agent{
		log:       log.WithField("component", "agent"),
		cfg:       cfg,
		clock:     clk,
		health:    health,
		store:     store,
		records:   records,
		poller:    p,
		dashboard: dashboard.New(log, cfg.Dashboard, store, p.Status, health),
	}, nil
}

func (a *agent) Start(ctx context.Context) error {
	// 1. Start health metrics listener, if configured.
	if err := a.health.Start(ctx); err != nil {
		return fmt.Errorf("starting health metrics: %w", err)
	}

	// 2. Create today's log file up front so the header exists even
	// before the first successful poll.
	if err := a.records.Open(a.clock.Now()); err != nil {
		return fmt.Errorf("opening csv log: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"endpoint": a.cfg.PLC.Endpoint,
		"log_dir":  a.records.Dir(),
	}).Info("Logging to daily CSV files")

	// 3. Start the dashboard before the poller so the waiting status is
	// visible while the first fetch is in flight.
	if err := a.dashboard.Start(ctx); err != nil {
		return fmt.Errorf("starting dashboard: %w", err)
	}

	// 4. Start polling.
	if err := a.poller.Start(ctx); err != nil {
		return fmt.Errorf("starting poller: %w", err)
	}

	return nil
}

func (a *agent) Stop() error {
	a.stopOnce.Do(func() {
		a.stopErr = a.stop()
	})

	return a.stopErr
}

func (a *agent) stop() error {
	var errs []error

	// Stop in reverse order: rendering first, then polling with a
	// grace period, then the log file.
	if err := a.dashboard.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping dashboard: %w", err))
	}

	ctx, cancel := context.WithTimeout(
		context.Background(), a.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := a.poller.Stop(ctx); err != nil {
		a.log.WithError(err).
			WithField("state", a.poller.State().String()).
			Warn("Poller did not stop within the shutdown timeout")

		errs = append(errs, fmt.Errorf("stopping poller: %w", err))
	}

	if err := a.records.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing csv log: %w", err))
	}

	if err := a.health.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping health metrics: %w", err))
	}

	state := a.poller.Reconciler()

	a.log.WithFields(logrus.Fields{
		"adjusted": state.Adjusted,
		"resets":   state.ResetCount,
		"samples":  a.store.Len(),
	}).Info("Session summary")

	return errors.Join(errs...)
}
