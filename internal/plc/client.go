// Package plc reads the brick counter from the PLC's status page.
package plc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/brickdash/internal/clock"
	"github.com/ethpandaops/brickdash/internal/version"
)

var (
	// ErrFetch covers transport errors, timeouts and non-2xx responses.
	ErrFetch = errors.New("fetch failed")
	// ErrParse covers responses without a usable brick count.
	ErrParse = errors.New("parse failed")
)

// Reading is a single raw observation of the PLC counter.
type Reading struct {
	// Value is the raw brick counter as reported by the PLC.
	Value int64
	// Speed is the reported cutting speed in bricks per minute, if any.
	Speed *float64
	// ObservedAt is when the response was received.
	ObservedAt time.Time
}

// Reader fetches the current raw counter.
type Reader interface {
	// Fetch performs one request against the PLC. Failures wrap
	// ErrFetch or ErrParse.
	Fetch(ctx context.Context) (*Reading, error)
}

type client struct {
	log      logrus.FieldLogger
	endpoint string
	clock    clock.Clock
	http     *resty.Client
}

// NewClient creates a new PLC client.
func NewClient(log logrus.FieldLogger, cfg Config, clk clock.Clock) Reader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	if clk == nil {
		clk = clock.New()
	}

	clog := log.WithField("component", "plc")

	return &client{
		log:      clog,
		endpoint: endpoint,
		clock:    clk,
		http: resty.New().
			SetLogger(clog).
			SetTimeout(timeout).
			SetHeader("Accept", "text/html").
			SetHeader("User-Agent", version.UserAgent()),
	}
}

func (c *client) Fetch(ctx context.Context) (*Reading, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: requesting %s: %w", ErrFetch, c.endpoint, err)
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, fmt.Errorf(
			"%w: unexpected status %d from %s",
			ErrFetch, code, c.endpoint,
		)
	}

	value, speed, err := parsePage(resp.Body())
	if err != nil {
		return nil, err
	}

	reading := &Reading{
		Value:      value,
		Speed:      speed,
		ObservedAt: c.clock.Now(),
	}

	c.log.WithFields(logrus.Fields{
		"raw":      reading.Value,
		"duration": resp.Time(),
	}).Debug("Fetched PLC counter")

	return reading, nil
}
