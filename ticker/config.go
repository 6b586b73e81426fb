package ticker

import (
	"time"
)

type Config struct {
	// Interval is the pace of the main loop.
	Interval time.Duration `yaml:"interval"`
	// OverrunWarnings logs a warning when an iteration takes longer than Interval.
	OverrunWarnings bool `yaml:"overrun_warnings"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Interval: 5 * time.Millisecond,

		OverrunWarnings: true,
	}
}
