package internal

import (
	"context"
	"time"
)

type trackedCounter struct {
	name string
	load func() uint64
	last uint64
}

// Stats periodically logs the rate of a set of monotonic counters.
type Stats struct {
	l *Logger

	interval time.Duration
	counters []*trackedCounter
}

func NewStats(l *Logger, interval time.Duration) *Stats {
	if interval <= 0 {
		interval = time.Second
	}

	return &Stats{
		l: l,

		interval: interval,
	}
}

// Track adds a counter. It must be called before RunStats.
func (s *Stats) Track(name string, load func() uint64) {
	s.counters = append(s.counters, &trackedCounter{name: name, load: load, last: load()})
}

// Rates returns the per second rate of every counter since the last call
// and the attributes to log them with. Idle periods return nil.
func (s *Stats) Rates(elapsed time.Duration) []any {
	if elapsed <= 0 {
		return nil
	}

	args := make([]any, 0, 2*len(s.counters))
	idle := true

	for _, c := range s.counters {
		curr := c.load()
		delta := curr - c.last
		c.last = curr

		if delta != 0 {
			idle = false
		}

		args = append(args, c.name+"_per_sec", float64(delta)/elapsed.Seconds())
	}

	if idle {
		return nil
	}

	return args
}

func (s *Stats) RunStats(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if args := s.Rates(s.interval); args != nil {
				s.l.Info("stats", args...)
			}
		}
	}
}
