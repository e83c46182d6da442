package webmonitor

import (
	"time"
)

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	StatusInterval time.Duration
	MJPEGKeepalive time.Duration // blank frame period when no image arrives
	WSPingInterval time.Duration
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		StatusInterval: 2 * time.Second,
		MJPEGKeepalive: 5 * time.Second,
		WSPingInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StatusInterval <= 0 {
		c.StatusInterval = d.StatusInterval
	}
	if c.MJPEGKeepalive <= 0 {
		c.MJPEGKeepalive = d.MJPEGKeepalive
	}
	if c.WSPingInterval <= 0 {
		c.WSPingInterval = d.WSPingInterval
	}
	return c
}
