// Package agent runs the collection cycle: gather from every device,
// flatten, detect changes, pack and send.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nonibytes/edgerelay/edgerelay/driver"
	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/flatten"
	"github.com/nonibytes/edgerelay/edgerelay/metrics"
	"github.com/nonibytes/edgerelay/edgerelay/pack"
	"github.com/nonibytes/edgerelay/edgerelay/record"
	"github.com/nonibytes/edgerelay/edgerelay/transport"
)

// Store is the change detector the agent persists through. *cov.Store
// satisfies it.
type Store interface {
	DiffAndPersist(ctx context.Context, rows []record.Row, fullFrame bool) ([]record.DeviceChunk, error)
	Clear(ctx context.Context) error
}

type Options struct {
	Drivers   []driver.Driver
	Store     Store
	Packer    *pack.Packer
	Transport transport.Transport
	Schedule  Schedule
	// GatherTimeout bounds each device's gather, retries included.
	GatherTimeout  time.Duration
	MaxConcurrency int
	Clock          clock.Clock
	Logger         *logrus.Logger
	Metrics        *metrics.Collector
}

// Report summarizes one cycle. Fields are filled up to the phase that
// failed.
type Report struct {
	Mode           Mode
	Devices        int
	FailedDevices  []string
	Records        int
	Rows           int
	Rejected       int
	Changed        int
	Messages       int
	Sent           int
	Bytes          int
	Oversize       int
	DroppedRecords int
	// Committed is set once the store transaction committed.
	Committed bool
	Duration  time.Duration
}

type Agent struct {
	opts Options
}

func New(opts Options) (*Agent, error) {
	if opts.Store == nil || opts.Packer == nil || opts.Transport == nil {
		return nil, rerrors.ConfigError("agent needs a store, a packer and a transport")
	}
	if opts.Schedule.CoV <= 0 || opts.Schedule.FullFrame <= 0 || opts.Schedule.Restart <= 0 {
		return nil, rerrors.ConfigError("agent schedule intervals must be positive")
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = len(opts.Drivers)
		if opts.MaxConcurrency == 0 {
			opts.MaxConcurrency = 1
		}
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Agent{opts: opts}, nil
}

// RunCycle runs a single CoV or full-frame cycle.
func (a *Agent) RunCycle(ctx context.Context, fullFrame bool) (Report, error) {
	mode := ModeCoV
	if fullFrame {
		mode = ModeFullFrame
	}
	return a.runCycle(ctx, mode)
}

// FullRestart forgets all discovery state and persisted values, then runs
// a full-frame cycle against freshly discovered devices.
func (a *Agent) FullRestart(ctx context.Context) (Report, error) {
	return a.runCycle(ctx, ModeRestart)
}

func (a *Agent) runCycle(ctx context.Context, mode Mode) (Report, error) {
	start := a.opts.Clock.Now()
	rep := Report{Mode: mode, Devices: len(a.opts.Drivers)}
	log := a.opts.Logger.WithField("mode", mode.String())

	fail := func(phase string, err error) (Report, error) {
		rep.Duration = a.opts.Clock.Now().Sub(start)
		a.opts.Metrics.CycleFailed(phase)
		log.WithError(err).WithField("phase", phase).Error("cycle failed")
		return rep, err
	}

	if mode == ModeRestart {
		for _, d := range a.opts.Drivers {
			d.Reset()
		}
		if err := a.opts.Store.Clear(ctx); err != nil {
			return fail(metrics.PhaseStore, err)
		}
		log.Info("cleared discovery state and stored values")
	}

	raw, failed := a.gather(ctx)
	rep.FailedDevices = failed
	rep.Records = len(raw)
	if err := ctx.Err(); err != nil {
		return fail(metrics.PhaseGather, err)
	}
	if len(a.opts.Drivers) > 0 && len(failed) == len(a.opts.Drivers) {
		return fail(metrics.PhaseGather, rerrors.DeviceError("", "no device returned records", nil))
	}

	rows, rejected := flatten.All(raw, a.opts.Logger)
	rep.Rows = len(rows)
	rep.Rejected = rejected

	chunks, err := a.opts.Store.DiffAndPersist(ctx, rows, mode.FullFrame())
	if err != nil {
		return fail(metrics.PhaseStore, err)
	}
	rep.Committed = true
	for _, c := range chunks {
		rep.Changed += len(c.Records)
	}
	a.opts.Metrics.Rows(rep.Rows, rep.Changed)

	res, err := a.opts.Packer.Pack(chunks)
	if err != nil {
		return fail(metrics.PhasePack, err)
	}
	rep.Messages = len(res.Messages)
	rep.DroppedRecords = res.Dropped
	a.opts.Metrics.Dropped(res.Dropped)

	for i, msg := range res.Messages {
		if err := a.opts.Transport.Send(ctx, msg); err != nil {
			if !rerrors.IsTransport(err) {
				err = rerrors.TransportError("send message", err)
			}
			log.WithField("skipped", len(res.Messages)-i-1).Warn("abandoning remaining messages of this cycle")
			return fail(metrics.PhaseSend, err)
		}
		rep.Sent++
		rep.Bytes += len(msg.Payload)
		if msg.Oversize {
			rep.Oversize++
		}
		a.opts.Metrics.MessageSent(len(msg.Payload), msg.Oversize)
	}

	rep.Duration = a.opts.Clock.Now().Sub(start)
	a.opts.Metrics.CycleDone(mode.String(), rep.Duration)
	log.WithFields(logrus.Fields{
		"devices":  rep.Devices - len(rep.FailedDevices),
		"rows":     rep.Rows,
		"changed":  rep.Changed,
		"messages": rep.Sent,
		"bytes":    humanize.Bytes(uint64(rep.Bytes)),
	}).Info("cycle complete")
	return rep, nil
}

// gather polls every driver concurrently. A device that fails or times out
// is logged and left out; its records never reach the store, so its last
// values stay as they were.
func (a *Agent) gather(ctx context.Context) ([]record.RawRecord, []string) {
	results := make([][]record.RawRecord, len(a.opts.Drivers))
	var (
		mu     sync.Mutex
		failed []string
		g      errgroup.Group
	)
	g.SetLimit(a.opts.MaxConcurrency)

	for i, d := range a.opts.Drivers {
		g.Go(func() error {
			dctx := ctx
			if a.opts.GatherTimeout > 0 {
				var cancel context.CancelFunc
				dctx, cancel = context.WithTimeout(ctx, a.opts.GatherTimeout)
				defer cancel()
			}
			recs, err := d.Gather(dctx)
			if err != nil {
				a.opts.Logger.WithError(err).WithField("device", d.Name()).Warn("gather failed")
				a.opts.Metrics.DeviceFailed(d.Name())
				mu.Lock()
				failed = append(failed, d.Name())
				mu.Unlock()
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	var out []record.RawRecord
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, failed
}
