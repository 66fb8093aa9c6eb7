package agent

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Run repeats cycles until ctx is cancelled. The cadence picks each
// cycle's mode; after a cycle the loop waits out the rest of the CoV
// interval. Cycle errors are logged and never end the loop.
func (a *Agent) Run(ctx context.Context) error {
	cad := NewCadence(a.opts.Schedule)
	a.opts.Logger.WithFields(logrus.Fields{
		"devices":   len(a.opts.Drivers),
		"cov":       a.opts.Schedule.CoV,
		"fullframe": a.opts.Schedule.FullFrame,
		"restart":   a.opts.Schedule.Restart,
	}).Info("agent started")

	for {
		if ctx.Err() != nil {
			a.opts.Logger.Info("agent stopping")
			return nil
		}
		started := a.opts.Clock.Now()
		mode := cad.Next(started)

		rep, _ := a.runCycle(ctx, mode)
		// A cycle whose store step never committed did not reset anything,
		// so its mode is retried next time.
		if rep.Committed {
			cad.Mark(mode, started)
		}

		wait := a.opts.Schedule.CoV - a.opts.Clock.Now().Sub(started)
		if wait <= 0 {
			a.opts.Logger.WithField("overrun", -wait).Warn("cycle took longer than the CoV interval")
			continue
		}
		select {
		case <-ctx.Done():
		case <-a.opts.Clock.After(wait):
		}
	}
}
