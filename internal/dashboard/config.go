package dashboard

import "time"

const (
	// DefaultInterval is the render tick.
	DefaultInterval = time.Second
	// DefaultPoints is the number of samples shown on the line charts.
	DefaultPoints = 60
	// DefaultBuckets is the number of five minute buckets shown.
	DefaultBuckets = 10
	// DefaultFileName is the dashboard file written into the log directory.
	DefaultFileName = "brickdash_dashboard.html"
)

// Config configures the dashboard presenter.
type Config struct {
	// Path is the HTML file to write. Defaults to
	// <log dir>/brickdash_dashboard.html.
	Path string `yaml:"path"`

	// Interval is the render tick. Defaults to 1s.
	Interval time.Duration `yaml:"interval"`

	// Points is the number of most recent samples to chart.
	// Defaults to 60.
	Points int `yaml:"points"`

	// Buckets is the number of most recent five minute buckets to chart.
	// Defaults to 10.
	Buckets int `yaml:"buckets"`

	// RefreshInterval is how often the browser reloads the page.
	// Defaults to 5s. Zero after defaults disables reloading.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	if c.Points <= 0 {
		c.Points = DefaultPoints
	}

	if c.Buckets <= 0 {
		c.Buckets = DefaultBuckets
	}

	if c.RefreshInterval < 0 {
		c.RefreshInterval = 0
	} else if c.RefreshInterval == 0 {
		c.RefreshInterval = 5 * time.Second
	}
}
