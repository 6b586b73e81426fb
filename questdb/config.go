package questdb

import "time"

type Config struct {
	// Address is the host:port of the QuestDB HTTP endpoint.
	Address string `yaml:"address"`

	AutoFlushRows int           `yaml:"auto_flush_rows"`
	RetryTimeout  time.Duration `yaml:"retry_timeout"`

	// Interval is the time between two snapshots of the received signals.
	Interval time.Duration `yaml:"interval"`

	// QueueSize is the number of snapshots waiting for the writer.
	// When the queue is full new snapshots are dropped.
	QueueSize int `yaml:"queue_size"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Address: "localhost:9000",

		AutoFlushRows: 75_000,
		RetryTimeout:  time.Second,

		Interval:  100 * time.Millisecond,
		QueueSize: 64,
	}
}
