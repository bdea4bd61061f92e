package plc

import "time"

const (
	// DefaultEndpoint is the PLC's address on the plant network.
	DefaultEndpoint = "http://192.168.20.75"
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 2 * time.Second
)

// Config holds configuration for the PLC client.
type Config struct {
	// Endpoint is the HTTP URL of the PLC status page.
	Endpoint string `yaml:"endpoint"`

	// Timeout for a single request to the PLC.
	// Defaults to 2s.
	Timeout time.Duration `yaml:"timeout"`
}
