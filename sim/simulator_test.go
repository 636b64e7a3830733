package sim

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlink/simlink/sim/internal/testutil"
	"github.com/simlink/simlink/sim/transport"
)

// scriptTransport replays a fixed event sequence and records every outcome
// the client reports. Once the script runs out it unregisters the session.
type scriptTransport struct {
	mu       sync.Mutex
	events   []*transport.ServerEvent
	failAt   map[int]error // 1-based exchange index -> error
	next     int
	calls    int
	connects int
	outcomes []*transport.ClientOutcome
}

func (st *scriptTransport) Connect(ctx context.Context, name string, predict bool) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.connects++
	return "sess-1", nil
}

func (st *scriptTransport) Exchange(ctx context.Context, outcome *transport.ClientOutcome) (*transport.ServerEvent, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.calls++
	st.outcomes = append(st.outcomes, outcome)
	if err, ok := st.failAt[st.calls]; ok {
		return nil, err
	}
	if st.next >= len(st.events) {
		return &transport.ServerEvent{Type: transport.EventUnregister, Reason: "script exhausted"}, nil
	}
	ev := st.events[st.next]
	st.next++
	return ev, nil
}

func (st *scriptTransport) Disconnect() error { return nil }

func startEvent(params *transport.Message) *transport.ServerEvent {
	return &transport.ServerEvent{Type: transport.EventEpisodeStart, InitParams: params}
}

func stepEvent(force float64) *transport.ServerEvent {
	action := transport.NewMessage()
	action.SetFloat64("force", force)
	return &transport.ServerEvent{Type: transport.EventStep, Action: action}
}

// loopSim is a scriptable Simulation. terminalAt ends the episode on the
// n-th Simulate call of that episode (0 = never).
type loopSim struct {
	BaseSimulation
	mu         sync.Mutex
	terminalAt int
	stepErr    error
	blockCh    chan struct{} // when set, Simulate blocks until it is closed

	starts      int
	steps       int
	params      []*transport.Message
	finishes    []string
	transitions []string // interleaved "start"/"step"/"finish" sequence
}

func (l *loopSim) EpisodeStart(params *transport.Message) (*transport.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts++
	l.steps = 0
	l.params = append(l.params, params)
	l.transitions = append(l.transitions, "start")
	state := transport.NewMessage()
	state.SetFloat64("x", 0)
	return state, nil
}

func (l *loopSim) Simulate(action *transport.Message) (StepResult, error) {
	if l.blockCh != nil {
		<-l.blockCh
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stepErr != nil {
		return StepResult{}, l.stepErr
	}
	l.steps++
	l.transitions = append(l.transitions, "step")
	state := transport.NewMessage()
	state.SetFloat64("x", float64(l.steps))
	return StepResult{
		State:    state,
		Reward:   1,
		Terminal: l.terminalAt > 0 && l.steps >= l.terminalAt,
	}, nil
}

func (l *loopSim) EpisodeFinish(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finishes = append(l.finishes, reason)
	l.transitions = append(l.transitions, "finish")
}

func newTestSimulator(t *testing.T, cfg *Config, impl Simulation, tr transport.Transport) *Simulator {
	t.Helper()
	if cfg == nil {
		cfg = NewConfig("brain", "test-sim", "http://unused")
		cfg.Retry = fastRetry(3)
	}
	s, err := NewWithTransport(cfg, impl, tr)
	require.NoError(t, err)
	return s
}

func TestSimulator_EpisodeFlow_Counters(t *testing.T) {
	tr := &scriptTransport{events: []*transport.ServerEvent{
		startEvent(nil),
		stepEvent(1), stepEvent(1), stepEvent(1),
	}}
	l := &loopSim{}
	s := newTestSimulator(t, nil, l, tr)

	require.True(t, s.Run()) // episode start
	assert.Equal(t, 0, s.EpisodeCount())
	assert.Equal(t, 0, s.IterationCount())

	require.True(t, s.Run())
	require.True(t, s.Run())
	assert.Equal(t, 2, s.IterationCount())
	assert.Equal(t, 2.0, s.EpisodeReward())

	require.True(t, s.Run())
	assert.Equal(t, 3, s.IterationCount())
	assert.Equal(t, 3, s.TotalIterations())

	// script exhausted: the service unregisters the session
	assert.False(t, s.Run())
	assert.NoError(t, s.Err())
	assert.False(t, s.Run(), "closed session stays closed")
}

func TestSimulator_TerminalOnFifthCall_PredictMode(t *testing.T) {
	// GIVEN a predict-mode session whose simulation terminates on call 5
	cfg := NewConfig("brain", "test-sim", "http://unused")
	cfg.Retry = fastRetry(3)
	cfg.Predict = true
	tr := &scriptTransport{events: []*transport.ServerEvent{
		startEvent(nil),
		stepEvent(1), stepEvent(1), stepEvent(1), stepEvent(1), stepEvent(1),
	}}
	l := &loopSim{terminalAt: 5}
	s := newTestSimulator(t, cfg, l, tr)
	assert.True(t, s.Predict())

	require.True(t, s.Run()) // start
	for i := 0; i < 4; i++ {
		require.True(t, s.Run())
	}
	assert.Equal(t, 4, s.IterationCount())

	// WHEN the 5th simulate call reports terminal
	require.True(t, s.Run())

	// THEN the episode is finished within that same call
	assert.Equal(t, 1, s.EpisodeCount())
	assert.Equal(t, 0, s.IterationCount())
	assert.Equal(t, []string{"terminal"}, l.finishes)
}

func TestSimulator_PredictMode_EmptyInitParams(t *testing.T) {
	// even if the service misbehaves and sends params, predict-mode
	// simulations never see them
	params := transport.NewMessage()
	params.SetFloat64("difficulty", 3)
	cfg := NewConfig("brain", "test-sim", "http://unused")
	cfg.Retry = fastRetry(3)
	cfg.Predict = true
	tr := &scriptTransport{events: []*transport.ServerEvent{startEvent(params)}}
	l := &loopSim{}
	s := newTestSimulator(t, cfg, l, tr)

	require.True(t, s.Run())
	require.Len(t, l.params, 1)
	assert.Equal(t, 0, l.params[0].Len())
}

func TestSimulator_TrainMode_ParamsDelivered(t *testing.T) {
	params := transport.NewMessage()
	params.SetFloat64("difficulty", 3)
	tr := &scriptTransport{events: []*transport.ServerEvent{startEvent(params)}}
	l := &loopSim{}
	s := newTestSimulator(t, nil, l, tr)

	require.True(t, s.Run())
	require.Len(t, l.params, 1)
	d, ok := l.params[0].Float64("difficulty")
	assert.True(t, ok)
	assert.Equal(t, 3.0, d)
}

func TestSimulator_TerminalAlwaysFollowedByFinishBeforeNextStart(t *testing.T) {
	tr := &scriptTransport{events: []*transport.ServerEvent{
		startEvent(nil),
		stepEvent(1), stepEvent(1),
		startEvent(nil),
		stepEvent(1),
	}}
	l := &loopSim{terminalAt: 2}
	s := newTestSimulator(t, nil, l, tr)
	for s.Run() {
	}

	// the second episode is cut off by the service unregistering, so no
	// finish callback runs for it
	assert.Equal(t, []string{
		"start", "step", "step", "finish",
		"start", "step",
	}, l.transitions)
	assert.Equal(t, []string{"terminal"}, l.finishes)
	assert.Equal(t, 1, s.EpisodeCount())
}

func TestSimulator_ServerForcedReset(t *testing.T) {
	tr := &scriptTransport{events: []*transport.ServerEvent{
		startEvent(nil),
		stepEvent(1),
		{Type: transport.EventEpisodeFinish, Reason: "brain restarted"},
		startEvent(nil),
		stepEvent(1),
	}}
	l := &loopSim{}
	s := newTestSimulator(t, nil, l, tr)

	require.True(t, s.Run()) // start
	require.True(t, s.Run()) // step 1
	require.True(t, s.Run()) // forced finish

	assert.Equal(t, 1, s.EpisodeCount())
	assert.Equal(t, 0, s.IterationCount())
	assert.Equal(t, []string{"brain restarted"}, l.finishes)

	// the reply to a forced reset carries no stale iteration state
	require.True(t, s.Run()) // next start
	outcome := tr.outcomes[3]
	assert.True(t, outcome.Halted)
	assert.Nil(t, outcome.State)

	require.True(t, s.Run()) // fresh iteration
	assert.Equal(t, 1, s.IterationCount())
	assert.Equal(t, 2, l.starts)
}

func TestSimulator_IdleEvent_NoOp(t *testing.T) {
	tr := &scriptTransport{events: []*transport.ServerEvent{
		{Type: transport.EventIdle},
		startEvent(nil),
	}}
	l := &loopSim{}
	s := newTestSimulator(t, nil, l, tr)

	require.True(t, s.Run())
	assert.Equal(t, 0, l.starts)
	require.True(t, s.Run())
	assert.Equal(t, 1, l.starts)
}

func TestSimulator_UnimplementedEpisodeStart_Fatal(t *testing.T) {
	tr := &scriptTransport{events: []*transport.ServerEvent{startEvent(nil)}}
	s := newTestSimulator(t, nil, &struct{ BaseSimulation }{}, tr)

	assert.False(t, s.Run())
	assert.ErrorIs(t, s.Err(), ErrUnimplementedCallback)
}

func TestSimulator_SimulateError_Propagates(t *testing.T) {
	boom := errors.New("physics diverged")
	tr := &scriptTransport{events: []*transport.ServerEvent{
		startEvent(nil), stepEvent(1),
	}}
	l := &loopSim{stepErr: boom}
	s := newTestSimulator(t, nil, l, tr)

	require.True(t, s.Run())
	assert.False(t, s.Run())
	assert.ErrorIs(t, s.Err(), boom)
	assert.False(t, s.Run())
}

func TestSimulator_SessionLost_RunReturnsFalse(t *testing.T) {
	// every exchange fails and so does every reconnect exchange
	boom := errors.New("broken pipe")
	tr := &scriptTransport{
		events: []*transport.ServerEvent{startEvent(nil)},
		failAt: map[int]error{1: boom, 2: boom},
	}
	l := &loopSim{}
	s := newTestSimulator(t, nil, l, tr)

	assert.False(t, s.Run())
	assert.ErrorIs(t, s.Err(), ErrSessionLost)
}

func TestSimulator_ReconnectStartsFreshIteration(t *testing.T) {
	// GIVEN a transport fault that swallows the outcome of iteration 2
	boom := errors.New("broken pipe")
	tr := &scriptTransport{
		events: []*transport.ServerEvent{
			startEvent(nil),
			stepEvent(1),
			// exchange carrying step 1's outcome fails (failAt below);
			// after reconnect the service closes the episode and restarts
			{Type: transport.EventEpisodeFinish, Reason: "client halted"},
			startEvent(nil),
			stepEvent(1),
		},
		failAt: map[int]error{3: boom},
	}
	l := &loopSim{}
	s := newTestSimulator(t, nil, l, tr)

	require.True(t, s.Run()) // start
	require.True(t, s.Run()) // iteration 1
	assert.Equal(t, 1, s.IterationCount())

	// WHEN the exchange fails and the session reconnects within budget
	require.True(t, s.Run()) // fault -> reconnect -> forced finish
	assert.Equal(t, 2, tr.connects)
	assert.Equal(t, 1, s.EpisodeCount())

	// THEN the next successful run begins a fresh iteration
	require.True(t, s.Run()) // start
	require.True(t, s.Run()) // fresh iteration
	assert.Equal(t, 1, s.IterationCount())
	assert.Equal(t, 2, l.starts)
}

func TestSimulator_TerminalLostToFault_NotDoubleCounted(t *testing.T) {
	// GIVEN an episode whose terminal outcome is swallowed by a transport
	// fault, so the episode is already closed locally when the service
	// forces a finish after the reconnect
	boom := errors.New("broken pipe")
	tr := &scriptTransport{
		events: []*transport.ServerEvent{
			startEvent(nil),
			stepEvent(1),
			{Type: transport.EventEpisodeFinish, Reason: "client halted"},
			startEvent(nil),
			stepEvent(1),
		},
		failAt: map[int]error{3: boom},
	}
	l := &loopSim{terminalAt: 1}
	s := newTestSimulator(t, nil, l, tr)

	require.True(t, s.Run()) // start
	require.True(t, s.Run()) // terminal iteration, episode closed locally
	assert.Equal(t, 1, s.EpisodeCount())

	// WHEN the exchange carrying the terminal outcome fails and the
	// reconnected session receives the forced finish
	require.True(t, s.Run())

	// THEN the episode is not counted again and the finish callback does
	// not run a second time
	assert.Equal(t, 1, s.EpisodeCount())
	assert.Equal(t, []string{"terminal"}, l.finishes)
	assert.Equal(t, 2, tr.connects)

	// the session continues with a fresh episode
	require.True(t, s.Run()) // start
	require.True(t, s.Run()) // fresh terminal iteration
	assert.Equal(t, 2, s.EpisodeCount())
	assert.Equal(t, 2, l.starts)
	assert.Equal(t, []string{"terminal", "terminal"}, l.finishes)
}

func TestSimulator_CloseBeforeRun_NoCallbacks(t *testing.T) {
	tr := &scriptTransport{events: []*transport.ServerEvent{startEvent(nil)}}
	l := &loopSim{}
	s := newTestSimulator(t, nil, l, tr)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.Run())
	assert.Equal(t, 0, l.starts)
	assert.Equal(t, 0, tr.calls)
	assert.NoError(t, s.Err())
}

func TestSimulator_ConcurrentRun_Panics(t *testing.T) {
	tr := &scriptTransport{events: []*transport.ServerEvent{
		startEvent(nil), stepEvent(1),
	}}
	l := &loopSim{blockCh: make(chan struct{})}
	s := newTestSimulator(t, nil, l, tr)

	require.True(t, s.Run()) // start

	running := make(chan struct{})
	go func() {
		close(running)
		s.Run() // blocks inside Simulate
	}()
	<-running
	time.Sleep(20 * time.Millisecond)

	assert.PanicsWithValue(t, ErrConcurrentRun, func() { s.Run() })
	close(l.blockCh)
}

func TestSimulator_RecordsFlushedPerIteration(t *testing.T) {
	tr := &scriptTransport{events: []*transport.ServerEvent{
		startEvent(nil),
		stepEvent(1), stepEvent(1), stepEvent(1),
	}}
	l := &loopSim{}
	s := newTestSimulator(t, nil, l, tr)

	path := filepath.Join(t.TempDir(), "records.jsonl")
	require.NoError(t, s.SetRecordFile(path))
	assert.Equal(t, path, s.RecordFile())
	s.EnableKeys([]string{"step"}, "")

	require.True(t, s.Run()) // start
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.RecordAppend("step", i, ""))
		require.NoError(t, s.RecordAppend("ghost", i, ""))
		require.True(t, s.Run())
	}
	require.NoError(t, s.Close())

	lines := testutil.ReadLines(t, path)
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.JSONEq(t, fmt.Sprintf(`{"step":%d}`, i+1), line)
	}
}

func TestSimulator_Rates_Monotonic(t *testing.T) {
	tr := &scriptTransport{events: []*transport.ServerEvent{
		startEvent(nil), stepEvent(1), stepEvent(1),
	}}
	l := &loopSim{terminalAt: 2}
	s := newTestSimulator(t, nil, l, tr)

	assert.Zero(t, s.EpisodeRate())
	assert.Zero(t, s.IterationRate())

	for s.Run() {
	}
	assert.Greater(t, s.IterationRate(), 0.0)
	assert.Greater(t, s.EpisodeRate(), 0.0)
	assert.Equal(t, "brain", s.Brain())
	assert.Equal(t, "test-sim", s.Name())
}
