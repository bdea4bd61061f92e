// Package csvlog writes the append-only per-day CSV log of raw and
// adjusted brick counts.
package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/brickdash/internal/clock"
	"github.com/ethpandaops/brickdash/internal/counter"
)

// ErrClosed is returned when writing to a closed Logger.
var ErrClosed = errors.New("log is closed")

// Header is the first row of every log file.
var Header = []string{"timestamp", "raw_bricks", "adjusted_bricks", "event"}

// Config configures the CSV logger.
type Config struct {
	// Dir is the directory holding the daily log files.
	// Defaults to ~/brickDash_logs.
	Dir string `yaml:"dir"`
}

// Record is a single log row.
type Record struct {
	At       time.Time
	Raw      int64
	Adjusted int64
	Event    counter.Event
}

func (r Record) row() []string {
	return []string{
		clock.DateTime(r.At),
		strconv.FormatInt(r.Raw, 10),
		strconv.FormatInt(r.Adjusted, 10),
		r.Event.String(),
	}
}

// Logger appends records to brickdash_log_<day>.csv, switching files when
// the calendar day of the record changes.
type Logger struct {
	log logrus.FieldLogger
	dir string

	mu     sync.Mutex
	day    string
	file   *os.File
	writer *csv.Writer
	closed bool
}

// DefaultDir returns ~/brickDash_logs, falling back to the working
// directory when the home directory cannot be resolved.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "brickDash_logs"
	}

	return filepath.Join(home, "brickDash_logs")
}

// New creates the log directory and returns a Logger writing into it.
// No file is opened until Open or the first append.
func New(log logrus.FieldLogger, cfg Config) (*Logger, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
	}

	return &Logger{
		log: log.WithField("component", "csvlog"),
		dir: dir,
	}, nil
}

// Dir returns the log directory.
func (l *Logger) Dir() string {
	return l.dir
}

// PathFor returns the log file path for the calendar day of t.
func (l *Logger) PathFor(t time.Time) string {
	return filepath.Join(l.dir, "brickdash_log_"+clock.Day(t)+".csv")
}

// Open ensures the file for the day of now exists and carries a header.
func (l *Logger) Open(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	return l.ensureFileLocked(now)
}

// AppendIfChanged writes rec only when its raw value differs from
// lastLoggedRaw (or nothing has been logged yet). It returns the raw value
// that should be treated as last logged afterwards; on a write failure
// the previous value is returned alongside the error.
func (l *Logger) AppendIfChanged(
	rec Record,
	lastLoggedRaw *int64,
) (*int64, error) {
	if lastLoggedRaw != nil && *lastLoggedRaw == rec.Raw {
		return lastLoggedRaw, nil
	}

	if err := l.Append(rec); err != nil {
		return lastLoggedRaw, err
	}

	raw := rec.Raw

	return &raw, nil
}

// Append writes rec unconditionally.
func (l *Logger) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if err := l.ensureFileLocked(rec.At); err != nil {
		return err
	}

	if err := l.writeLocked(rec.row()); err != nil {
		return fmt.Errorf("appending to %s: %w", l.file.Name(), err)
	}

	return nil
}

// Close flushes and releases the current file. Further appends fail
// with ErrClosed. Close is idempotent.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	return l.closeFileLocked()
}

func (l *Logger) ensureFileLocked(at time.Time) error {
	day := clock.Day(at)
	if l.file != nil && l.day == day {
		return nil
	}

	if err := l.closeFileLocked(); err != nil {
		l.log.WithError(err).Warn("Failed to close previous log file")
	}

	path := l.PathFor(at)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()

		return fmt.Errorf("stat log file %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.day = day

	if info.Size() == 0 {
		if err := l.writeLocked(Header); err != nil {
			// Drop the handle so the next append re-checks the header.
			_ = l.closeFileLocked()

			return fmt.Errorf("writing header to %s: %w", path, err)
		}

		l.log.WithField("path", path).Info("Created log file")
	}

	return nil
}

func (l *Logger) writeLocked(row []string) error {
	if err := l.writer.Write(row); err != nil {
		return err
	}

	l.writer.Flush()

	return l.writer.Error()
}

func (l *Logger) closeFileLocked() error {
	if l.file == nil {
		return nil
	}

	l.writer.Flush()
	flushErr := l.writer.Error()
	closeErr := l.file.Close()

	l.file = nil
	l.writer = nil
	l.day = ""

	return errors.Join(flushErr, closeErr)
}
