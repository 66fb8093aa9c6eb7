package agent

import "time"

// Mode is the kind of cycle the scheduler asks for.
type Mode int

const (
	ModeCoV Mode = iota
	ModeFullFrame
	ModeRestart
)

func (m Mode) String() string {
	switch m {
	case ModeFullFrame:
		return "full"
	case ModeRestart:
		return "restart"
	default:
		return "cov"
	}
}

// FullFrame reports whether the cycle resends every row.
func (m Mode) FullFrame() bool { return m != ModeCoV }

// Schedule holds the three nested cadences. CoV is also the loop period.
type Schedule struct {
	CoV       time.Duration
	FullFrame time.Duration
	Restart   time.Duration
}

// Cadence decides the mode of each cycle from the time the last full frame
// and the last restart completed.
type Cadence struct {
	sched       Schedule
	started     bool
	lastFull    time.Time
	lastRestart time.Time
}

func NewCadence(s Schedule) *Cadence {
	return &Cadence{sched: s}
}

// Next returns the mode for a cycle starting at now. The first cycle is
// always a full frame.
func (c *Cadence) Next(now time.Time) Mode {
	switch {
	case !c.started:
		return ModeFullFrame
	case now.Sub(c.lastRestart) >= c.sched.Restart:
		return ModeRestart
	case now.Sub(c.lastFull) >= c.sched.FullFrame:
		return ModeFullFrame
	default:
		return ModeCoV
	}
}

// Mark records that a cycle of mode m started at now took effect. A
// restart counts as a full frame; the first mark also starts the restart
// timer.
func (c *Cadence) Mark(m Mode, now time.Time) {
	if !c.started {
		c.started = true
		c.lastRestart = now
		c.lastFull = now
	}
	switch m {
	case ModeRestart:
		c.lastRestart = now
		c.lastFull = now
	case ModeFullFrame:
		c.lastFull = now
	}
}
