package ticker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/squadracorsepolito/acmedash/internal"
)

// StepFunc is one iteration of a main loop. Returning an error stops the loop.
type StepFunc func(ctx context.Context) error

// Loop calls a step function at a fixed interval until its context is done.
type Loop struct {
	tel *internal.Telemetry

	interval        time.Duration
	overrunWarnings bool

	iterations atomic.Uint64
	overruns   atomic.Uint64
}

func NewLoop(name string, cfg *Config) *Loop {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	return &Loop{
		tel: internal.NewTelemetry("loop", name),

		interval:        cfg.Interval,
		overrunWarnings: cfg.OverrunWarnings,
	}
}

// Run blocks until ctx is done or step fails. It returns nil when stopped
// by the context and the step error otherwise.
func (l *Loop) Run(ctx context.Context, step StepFunc) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.tel.LogInfo("starting loop", "interval", l.interval)
	defer l.tel.LogInfo("loop stopped", "iterations", l.iterations.Load())

	for {
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		start := time.Now()

		if err := step(ctx); err != nil {
			l.tel.LogError("loop step failed", err, "iteration", l.iterations.Load())
			return err
		}

		l.iterations.Add(1)

		if elapsed := time.Since(start); elapsed > l.interval {
			overruns := l.overruns.Add(1)
			if l.overrunWarnings && (overruns == 1 || overruns%100 == 0) {
				l.tel.LogWarn("loop iteration overran its interval", "elapsed", elapsed, "overruns", overruns)
			}
		}
	}
}

// Iterations returns the number of completed steps.
func (l *Loop) Iterations() uint64 {
	return l.iterations.Load()
}

// Overruns returns the number of steps that took longer than the interval.
func (l *Loop) Overruns() uint64 {
	return l.overruns.Load()
}
