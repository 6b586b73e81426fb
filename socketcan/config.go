package socketcan

import "time"

type Config struct {
	// Interface is the name of the CAN network interface.
	Interface string `yaml:"interface"`
	// ConfigureDevice sets the bitrate and brings the interface up on Init.
	// It needs the CAP_NET_ADMIN capability.
	ConfigureDevice bool `yaml:"configure_device"`
	// QueueSize is the capacity of the receive queue.
	QueueSize uint32 `yaml:"queue_size"`
	// WriteTimeout bounds a single frame transmission.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Interface:       "can0",
		ConfigureDevice: false,
		QueueSize:       4096,
		WriteTimeout:    10 * time.Millisecond,
	}
}
