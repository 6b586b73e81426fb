package ticker

// TimerFunc is called with the tick time when its timer expires.
type TimerFunc func(nowMs uint32)

type timer struct {
	periodMs uint32
	nextMs   uint32
	fn       TimerFunc
}

// TimerGroup is a set of periodic timers driven by an external millisecond
// clock. Timers keep a fixed phase: each expiry moves the deadline forward by
// one period, so a timer fires at most once per Tick.
//
// A TimerGroup is not safe for concurrent use.
type TimerGroup struct {
	timers []*timer

	startMs uint32
	started bool
}

func NewTimerGroup() *TimerGroup {
	return &TimerGroup{}
}

// AddTimer registers fn to run every periodMs milliseconds. The first
// expiry is one period after the first Tick, or after the time passed
// to Start. AddTimer panics if periodMs is 0 or fn is nil.
func (g *TimerGroup) AddTimer(periodMs uint32, fn func(nowMs uint32)) {
	if periodMs == 0 {
		panic("ticker: zero timer period")
	}

	if fn == nil {
		panic("ticker: nil timer function")
	}

	t := &timer{
		periodMs: periodMs,
		nextMs:   g.startMs + periodMs,
		fn:       fn,
	}

	g.timers = append(g.timers, t)
}

// Start sets the origin of every timer to nowMs.
func (g *TimerGroup) Start(nowMs uint32) {
	g.startMs = nowMs
	g.started = true

	for _, t := range g.timers {
		t.nextMs = nowMs + t.periodMs
	}
}

// Tick runs every timer whose deadline is not after nowMs, in registration order.
func (g *TimerGroup) Tick(nowMs uint32) {
	if !g.started {
		g.Start(nowMs)
		return
	}

	for _, t := range g.timers {
		if int32(nowMs-t.nextMs) < 0 {
			continue
		}

		t.nextMs += t.periodMs
		t.fn(nowMs)
	}
}

// Len returns the number of timers.
func (g *TimerGroup) Len() int {
	return len(g.timers)
}
