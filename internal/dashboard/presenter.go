// Package dashboard renders the live brick counter charts into a
// self-refreshing HTML file.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/brickdash/internal/export"
	"github.com/ethpandaops/brickdash/internal/series"
)

// ErrAlreadyStarted is returned by Start on a running presenter.
var ErrAlreadyStarted = errors.New("presenter already started")

// StatusFunc returns the status line shown above the count chart.
type StatusFunc func() string

// Presenter redraws the dashboard on a fixed tick. It only reads the
// store, copying a window under the store lock and rendering unlocked.
type Presenter struct {
	log    logrus.FieldLogger
	cfg    Config
	store  *series.Store
	status StatusFunc
	health *export.HealthMetrics

	mu           sync.Mutex
	rendered     bool
	lastRevision uint64
	lastStatus   string

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates a presenter. cfg.Path must be set.
func New(
	log logrus.FieldLogger,
	cfg Config,
	store *series.Store,
	status StatusFunc,
	health *export.HealthMetrics,
) *Presenter {
	cfg.ApplyDefaults()

	if status == nil {
		status = func() string { return "" }
	}

	if health == nil {
		health = export.NewHealthMetrics(log, export.HealthConfig{})
	}

	return &Presenter{
		log:    log.WithField("component", "dashboard"),
		cfg:    cfg,
		store:  store,
		status: status,
		health: health,
	}
}

// Path returns the dashboard file path.
func (p *Presenter) Path() string {
	return p.cfg.Path
}

// Start launches the render loop.
func (p *Presenter) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.done != nil {
		return ErrAlreadyStarted
	}

	if p.cfg.Path == "" {
		return errors.New("dashboard path is required")
	}

	if err := os.MkdirAll(filepath.Dir(p.cfg.Path), 0o755); err != nil {
		return fmt.Errorf("creating dashboard directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, p.done)

	p.log.WithFields(logrus.Fields{
		"path":     p.cfg.Path,
		"interval": p.cfg.Interval.String(),
	}).Info("Dashboard started")

	return nil
}

// Stop halts the render ticker and waits for an in-progress render to
// finish. Stop is safe to call more than once and before Start.
func (p *Presenter) Stop() error {
	p.lifecycleMu.Lock()
	cancel, done := p.cancel, p.done
	p.lifecycleMu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	return nil
}

func (p *Presenter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Presenter) tick() {
	if _, err := p.Render(); err != nil {
		p.log.WithError(err).Warn("Failed to render dashboard")
	}
}

// Render draws the dashboard once. It reports false without touching the
// file when neither the store nor the status changed since the last
// successful render.
func (p *Presenter) Render() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.store.Window(p.cfg.Points, p.cfg.Buckets)
	status := p.status()

	if p.rendered && snap.Revision == p.lastRevision && status == p.lastStatus {
		return false, nil
	}

	out, err := renderHTML(View{Snapshot: snap, Status: status}, p.refreshSeconds())
	if err != nil {
		p.health.RenderErrors.Inc()

		return false, err
	}

	if err := writeAtomic(p.cfg.Path, out); err != nil {
		p.health.RenderErrors.Inc()

		return false, err
	}

	p.rendered = true
	p.lastRevision = snap.Revision
	p.lastStatus = status
	p.health.RendersTotal.Inc()

	return true, nil
}

func (p *Presenter) refreshSeconds() int {
	if p.cfg.RefreshInterval <= 0 {
		return 0
	}

	return max(1, int(math.Ceil(p.cfg.RefreshInterval.Seconds())))
}

// writeAtomic replaces path with data so a reloading browser never sees a
// half written page.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp dashboard file: %w", err)
	}

	name := tmp.Name()

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(name)

		return fmt.Errorf("setting dashboard permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)

		return fmt.Errorf("writing dashboard: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(name)

		return fmt.Errorf("closing dashboard: %w", err)
	}

	if err := os.Rename(name, path); err != nil {
		os.Remove(name)

		return fmt.Errorf("replacing dashboard: %w", err)
	}

	return nil
}
