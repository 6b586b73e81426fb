package cannelloni

import "time"

type Config struct {
	// ListenAddr is the local UDP address frames are received on.
	ListenAddr string `yaml:"listen_addr"`
	// RemoteAddr is the UDP address frames are sent to.
	RemoteAddr string `yaml:"remote_addr"`
	// QueueSize is the capacity of the receive queue.
	QueueSize uint32 `yaml:"queue_size"`
	// WriteTimeout bounds a single datagram write.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func NewDefaultConfig() *Config {
	return &Config{
		ListenAddr:   "0.0.0.0:20000",
		RemoteAddr:   "127.0.0.1:20001",
		QueueSize:    4096,
		WriteTimeout: 10 * time.Millisecond,
	}
}
