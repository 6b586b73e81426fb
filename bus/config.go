package bus

// Config is the configuration of a [Bus].
type Config struct {
	// Name identifies the bus in logs and metrics.
	Name string `yaml:"name"`
	// BaudRate is passed to the driver on Init.
	BaudRate uint32 `yaml:"baud_rate"`
	// MaxRxPerTick bounds the frames drained by a single tick, 0 means unbounded.
	MaxRxPerTick int `yaml:"max_rx_per_tick"`
	// FailureLogInterval is the number of consecutive send failures
	// between two error logs. The first failure is always logged.
	FailureLogInterval uint64 `yaml:"failure_log_interval"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Name:               "drive",
		BaudRate:           1_000_000,
		MaxRxPerTick:       0,
		FailureLogInterval: 100,
	}
}
