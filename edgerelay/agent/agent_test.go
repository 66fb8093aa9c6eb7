package agent_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nonibytes/edgerelay/edgerelay/agent"
	"github.com/nonibytes/edgerelay/edgerelay/cov"
	"github.com/nonibytes/edgerelay/edgerelay/driver"
	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/pack"
	"github.com/nonibytes/edgerelay/edgerelay/record"
	"github.com/nonibytes/edgerelay/edgerelay/storage/sqlite"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// panel is a fake driver serving two points whose temperature can be set.
type panel struct {
	name   string
	mu     sync.Mutex
	temp   float64
	err    error
	block  bool
	// failFirst makes the first n gathers fail.
	failFirst int32
	calls     atomic.Int32
	resets    atomic.Int32
}

func (p *panel) Name() string { return p.name }
func (p *panel) Reset()       { p.resets.Add(1) }

func (p *panel) setTemp(v float64) {
	p.mu.Lock()
	p.temp = v
	p.mu.Unlock()
}

func (p *panel) Gather(ctx context.Context) ([]record.RawRecord, error) {
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.calls.Add(1) <= p.failFirst {
		return nil, errors.New("panel rebooting")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	mk := func(point string, temp float64) record.RawRecord {
		return record.RawRecord{Device: p.name, Body: record.Map(
			record.E("@nodetype", record.String("0")),
			record.E("@node", record.String("1")),
			record.E("@mod", record.String("0")),
			record.E("@point", record.String(point)),
			record.E("temp", record.Map(
				record.E("value", record.Float(temp)),
				record.E("unit", record.String("F")),
			)),
		)}
	}
	return []record.RawRecord{mk("1", p.temp), mk("2", 36.5)}, nil
}

func drivers(ps ...*panel) []driver.Driver {
	out := make([]driver.Driver, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

type sink struct {
	mu     sync.Mutex
	msgs   []pack.Message
	calls  int
	failAt int
	err    error
}

func (s *sink) Send(ctx context.Context, msg pack.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *sink) Close() error { return nil }

func (s *sink) records() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		n += m.Records
	}
	return n
}

func sqliteStore(t *testing.T) *cov.Store {
	t.Helper()
	st, err := cov.Open(context.Background(), sqlite.New(filepath.Join(t.TempDir(), "cov.db")), cov.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newPacker(t *testing.T, limit int) *pack.Packer {
	t.Helper()
	opts := pack.DefaultOptions()
	opts.ByteLimit = limit
	opts.Logger = quietLogger()
	p, err := pack.New(opts)
	require.NoError(t, err)
	return p
}

var testSchedule = agent.Schedule{CoV: 30 * time.Second, FullFrame: 2 * time.Minute, Restart: 5 * time.Minute}

func newAgent(t *testing.T, store agent.Store, tr *sink, limit int, panels ...*panel) *agent.Agent {
	t.Helper()
	opts := agent.Options{
		Store:         store,
		Packer:        newPacker(t, limit),
		Transport:     tr,
		Schedule:      testSchedule,
		GatherTimeout: time.Second,
		Logger:        quietLogger(),
	}
	opts.Drivers = drivers(panels...)
	a, err := agent.New(opts)
	require.NoError(t, err)
	return a
}

func TestRunCycleSendsOnlyChanges(t *testing.T) {
	a1 := &panel{name: "10.0.0.1", temp: 38.0}
	a2 := &panel{name: "10.0.0.2", temp: 41.0}
	tr := &sink{}
	ag := newAgent(t, sqliteStore(t), tr, pack.DefaultByteLimit, a1, a2)
	ctx := context.Background()

	rep, err := ag.RunCycle(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Records)
	assert.Equal(t, 8, rep.Rows)
	assert.Equal(t, 8, rep.Changed)
	assert.Equal(t, 1, rep.Sent)
	assert.True(t, rep.Committed)
	assert.Equal(t, 8, tr.records())

	rep, err = ag.RunCycle(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, rep.Changed)
	assert.Zero(t, rep.Messages)

	a2.setTemp(41.5)
	rep, err = ag.RunCycle(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Changed)
	require.Len(t, tr.msgs, 2)
	last := tr.msgs[1]
	require.Len(t, last.Chunks, 1)
	assert.Equal(t, "10.0.0.2", last.Chunks[0].DeviceID)

	rep, err = ag.RunCycle(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 8, rep.Changed)
}

func TestRunCycleSkipsFailingDevice(t *testing.T) {
	ok := &panel{name: "10.0.0.1", temp: 38.0}
	bad := &panel{name: "10.0.0.2", err: errors.New("connection refused")}
	slow := &panel{name: "10.0.0.3", block: true}
	tr := &sink{}
	ag, err := agent.New(agent.Options{
		Drivers:       drivers(ok, bad, slow),
		Store:         sqliteStore(t),
		Packer:        newPacker(t, pack.DefaultByteLimit),
		Transport:     tr,
		Schedule:      testSchedule,
		GatherTimeout: 20 * time.Millisecond,
		Logger:        quietLogger(),
	})
	require.NoError(t, err)

	rep, err := ag.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10.0.0.2", "10.0.0.3"}, rep.FailedDevices)
	assert.Equal(t, 4, rep.Changed)
	require.Len(t, tr.msgs, 1)
	assert.Equal(t, "10.0.0.1", tr.msgs[0].Chunks[0].DeviceID)
}

type recordingStore struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingStore) DiffAndPersist(ctx context.Context, rows []record.Row, fullFrame bool) ([]record.DeviceChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fullFrame {
		s.events = append(s.events, "full")
	} else {
		s.events = append(s.events, "cov")
	}
	return cov.Group(rows), nil
}

func (s *recordingStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "clear")
	return nil
}

func (s *recordingStore) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func TestRunCycleAllDevicesFailingLeavesStoreAlone(t *testing.T) {
	st := &recordingStore{}
	ag := newAgent(t, st, &sink{}, pack.DefaultByteLimit, &panel{name: "a", err: errors.New("down")})

	rep, err := ag.RunCycle(context.Background(), true)
	require.Error(t, err)
	assert.True(t, rerrors.IsKind(err, rerrors.ErrDevice))
	assert.False(t, rep.Committed)
	assert.Empty(t, st.snapshot())
}

// lockedStore fails every diff the way a busy database does.
type lockedStore struct{ diffs int }

func (s *lockedStore) DiffAndPersist(ctx context.Context, rows []record.Row, fullFrame bool) ([]record.DeviceChunk, error) {
	s.diffs++
	return nil, rerrors.StoreError("commit", errors.New("database is locked"))
}

func (s *lockedStore) Clear(ctx context.Context) error { return nil }

func TestRunCycleStoreFailureSendsNothing(t *testing.T) {
	st := &lockedStore{}
	tr := &sink{}
	ag := newAgent(t, st, tr, pack.DefaultByteLimit, &panel{name: "10.0.0.1", temp: 38.0})

	rep, err := ag.RunCycle(context.Background(), true)
	require.Error(t, err)
	assert.True(t, rerrors.IsKind(err, rerrors.ErrStore))
	assert.Equal(t, 1, st.diffs)
	assert.Positive(t, rep.Rows)
	assert.False(t, rep.Committed)
	assert.Zero(t, rep.Messages)
	assert.Zero(t, tr.calls)
	assert.Empty(t, tr.msgs)
}

func TestRunCycleSendFailureAbortsRemainingMessages(t *testing.T) {
	tr := &sink{failAt: 1, err: errors.New("broken pipe")}
	ag := newAgent(t, &recordingStore{}, tr, 150, &panel{name: "10.0.0.1", temp: 38.0})

	rep, err := ag.RunCycle(context.Background(), true)
	require.Error(t, err)
	assert.True(t, rerrors.IsKind(err, rerrors.ErrTransport))
	assert.Greater(t, rep.Messages, 1)
	assert.Zero(t, rep.Sent)
	assert.Equal(t, 1, tr.calls)
	assert.True(t, rep.Committed)
}

func TestRunCycleKeepsTransportErrorKind(t *testing.T) {
	tr := &sink{failAt: 2, err: rerrors.ConnectionError("dial", errors.New("no route"))}
	ag := newAgent(t, &recordingStore{}, tr, 150, &panel{name: "10.0.0.1", temp: 38.0})

	rep, err := ag.RunCycle(context.Background(), true)
	require.Error(t, err)
	assert.True(t, rerrors.IsKind(err, rerrors.ErrConnection))
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 2, tr.calls)
}

func TestFullRestartResetsDriversAndClearsStore(t *testing.T) {
	d := &panel{name: "10.0.0.1", temp: 38.0}
	st := &recordingStore{}
	ag := newAgent(t, st, &sink{}, pack.DefaultByteLimit, d)

	rep, err := ag.FullRestart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, agent.ModeRestart, rep.Mode)
	assert.Equal(t, int32(1), d.resets.Load())
	assert.Equal(t, []string{"clear", "full"}, st.snapshot())
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := agent.New(agent.Options{})
	assert.True(t, rerrors.IsKind(err, rerrors.ErrConfig))

	_, err = agent.New(agent.Options{
		Store:     &recordingStore{},
		Packer:    newPacker(t, 1000),
		Transport: &sink{},
	})
	assert.True(t, rerrors.IsKind(err, rerrors.ErrConfig))
}

func TestCadence(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	at := func(d time.Duration) time.Time { return t0.Add(d) }
	c := agent.NewCadence(testSchedule)

	assert.Equal(t, agent.ModeFullFrame, c.Next(t0))
	c.Mark(agent.ModeFullFrame, t0)
	assert.Equal(t, agent.ModeCoV, c.Next(at(30*time.Second)))
	assert.Equal(t, agent.ModeFullFrame, c.Next(at(2*time.Minute)))
	c.Mark(agent.ModeFullFrame, at(2*time.Minute))
	assert.Equal(t, agent.ModeCoV, c.Next(at(3*time.Minute)))
	assert.Equal(t, agent.ModeRestart, c.Next(at(5*time.Minute)))
	c.Mark(agent.ModeRestart, at(5*time.Minute))
	assert.Equal(t, agent.ModeCoV, c.Next(at(6*time.Minute)))
	assert.Equal(t, agent.ModeFullFrame, c.Next(at(7*time.Minute)))

	assert.Equal(t, "cov", agent.ModeCoV.String())
	assert.True(t, agent.ModeRestart.FullFrame())
	assert.False(t, agent.ModeCoV.FullFrame())
}

func TestRunFollowsNestedCadences(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(time.Unix(0, 0))
	d := &panel{name: "10.0.0.1", temp: 38.0}
	st := &recordingStore{}
	ag, err := agent.New(agent.Options{
		Drivers:   drivers(d),
		Store:     st,
		Packer:    newPacker(t, pack.DefaultByteLimit),
		Transport: &sink{},
		Schedule:  testSchedule,
		Clock:     clk,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ag.Run(ctx) }()

	// cycles at 0s, 30s, ... 300s
	for i := 0; i < 10; i++ {
		require.NoError(t, clk.WaitAdvance(30*time.Second, time.Second, 1))
	}
	want := []string{
		"full", "cov", "cov", "cov",
		"full", "cov", "cov", "cov",
		"full", "cov",
		"clear", "full",
	}
	require.Eventually(t, func() bool { return len(st.snapshot()) == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, st.snapshot())
	assert.Equal(t, int32(1), d.resets.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRetriesFullFrameAfterGatherFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(time.Unix(0, 0))
	d := &panel{name: "10.0.0.1", temp: 38.0, failFirst: 1}
	st := &recordingStore{}
	ag, err := agent.New(agent.Options{
		Drivers:   drivers(d),
		Store:     st,
		Packer:    newPacker(t, pack.DefaultByteLimit),
		Transport: &sink{},
		Schedule:  testSchedule,
		Clock:     clk,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ag.Run(ctx) }()

	require.NoError(t, clk.WaitAdvance(30*time.Second, time.Second, 1))
	require.Eventually(t, func() bool { return len(st.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"full"}, st.snapshot())
	assert.Equal(t, int32(2), d.calls.Load())

	cancel()
	require.NoError(t, <-done)
}
