package sim

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simlink/simlink/sim/record"
	"github.com/simlink/simlink/sim/transport"
)

// loopState is the episode loop's position between Run calls. The
// EpisodeStart and EpisodeFinish transitions are transient: they begin and
// complete within a single Run call, so only the resting states appear here.
type loopState string

const (
	stateIdle      loopState = "idle"
	stateIterating loopState = "iterating"
	stateClosed    loopState = "closed"
)

// Simulator composes the episode loop, the session client, and the recorder
// behind the public session surface. One Simulator drives one session; Run
// is strictly sequential, every other method may be called from outside the
// Run loop.
type Simulator struct {
	cfg      *Config
	impl     Simulation
	session  *SessionClient
	recorder *record.Recorder

	// running detects overlapping Run calls; Run panics on violation.
	running atomic.Bool

	mu              sync.Mutex
	state           loopState
	err             error
	episodeCount    int
	iterationCount  int
	totalIterations int
	episodeReward   float64
	started         time.Time
	// outcome is the client report carried into the next exchange. nil
	// means nothing pending (the exchange sends a halted report).
	outcome *transport.ClientOutcome
}

// New returns a Simulator talking HTTP to the brain service in cfg.
func New(cfg *Config, impl Simulation) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithTransport(cfg, impl, transport.NewHTTPTransport(cfg.URL))
}

// NewWithTransport is New with an explicit transport, for tests and
// non-HTTP deployments.
func NewWithTransport(cfg *Config, impl Simulation, tr transport.Transport) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Simulator{
		cfg:      cfg,
		impl:     impl,
		session:  NewSessionClient(cfg.Name, cfg.Predict, cfg.Retry, tr),
		recorder: record.NewRecorder(),
		state:    stateIdle,
	}
	if cfg.RecordFile != "" {
		if err := s.recorder.SetFile(cfg.RecordFile); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Brain returns the brain name the session attaches to.
func (s *Simulator) Brain() string { return s.cfg.Brain }

// Name returns the simulator name.
func (s *Simulator) Name() string { return s.cfg.Name }

// Predict returns the session mode, fixed for the session's lifetime.
func (s *Simulator) Predict() bool { return s.session.Predict() }

// Err returns the fatal session error, if Run returned false because of one.
func (s *Simulator) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Run advances the session by exactly one protocol exchange: an episode
// start or finish transition, or one iteration. It returns true while the
// loop should be called again and false once the session has ended (closed,
// retries exhausted, or fatal callback error — see Err). Run must not be
// invoked concurrently with itself; violations panic with ErrConcurrentRun.
func (s *Simulator) Run() bool {
	if !s.running.CompareAndSwap(false, true) {
		panic(ErrConcurrentRun)
	}
	defer s.running.Store(false)

	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return false
	}
	if s.started.IsZero() {
		s.started = time.Now()
	}
	out := s.outcome
	if out == nil {
		out = &transport.ClientOutcome{Halted: true}
	}
	s.mu.Unlock()

	ev, err := s.session.Exchange(out)
	if err != nil {
		if !errors.Is(err, ErrClosed) {
			logrus.Errorf("session %q ended: %v", s.cfg.Name, err)
			s.fatal(err)
		} else {
			s.shutdown()
		}
		return false
	}

	s.mu.Lock()
	s.outcome = nil
	s.mu.Unlock()

	switch ev.Type {
	case transport.EventIdle:
		return true
	case transport.EventEpisodeStart:
		return s.handleEpisodeStart(ev)
	case transport.EventStep:
		return s.handleStep(ev)
	case transport.EventEpisodeFinish:
		// Server-forced reset: the aborted iteration's pending action and
		// state are discarded before the user sees them. A finish arriving
		// while idle means the episode was already closed locally (for
		// example a terminal outcome lost to a transport fault); it is
		// acknowledged without running the finish transition again.
		s.mu.Lock()
		iterating := s.state == stateIterating
		s.mu.Unlock()
		if iterating {
			s.finishEpisode(ev.Reason)
		}
		s.mu.Lock()
		s.outcome = &transport.ClientOutcome{Halted: true}
		s.mu.Unlock()
		return true
	case transport.EventUnregister:
		logrus.Infof("session %q unregistered by service: %s", s.cfg.Name, ev.Reason)
		s.shutdown()
		return false
	}
	logrus.Warnf("session %q: ignoring unknown event type %q", s.cfg.Name, ev.Type)
	return true
}

func (s *Simulator) handleEpisodeStart(ev *transport.ServerEvent) bool {
	params := ev.InitParams
	// Training parameters never reach the simulation in predict mode.
	if s.session.Predict() || params == nil {
		params = transport.NewMessage()
	}
	initial, err := s.impl.EpisodeStart(params)
	if err != nil {
		s.fatal(err)
		return false
	}
	s.mu.Lock()
	s.episodeReward = 0
	s.iterationCount = 0
	s.state = stateIterating
	s.outcome = &transport.ClientOutcome{State: initial}
	s.mu.Unlock()
	logrus.Debugf("session %q: episode %d started", s.cfg.Name, s.EpisodeCount())
	return true
}

func (s *Simulator) handleStep(ev *transport.ServerEvent) bool {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st != stateIterating {
		logrus.Warnf("session %q: step event outside an episode, reporting halted", s.cfg.Name)
		s.mu.Lock()
		s.outcome = &transport.ClientOutcome{Halted: true}
		s.mu.Unlock()
		return true
	}

	res, err := s.impl.Simulate(ev.Action)
	if err != nil {
		s.fatal(err)
		return false
	}

	s.mu.Lock()
	s.iterationCount++
	s.totalIterations++
	// Accumulated in predict mode too, for observability; predict-mode
	// simulations are not required to compute it.
	s.episodeReward += res.Reward
	s.outcome = &transport.ClientOutcome{State: res.State, Reward: res.Reward, Terminal: res.Terminal}
	s.mu.Unlock()

	if err := s.recorder.Flush(); err != nil {
		logrus.Errorf("session %q: record flush: %v", s.cfg.Name, err)
	}

	if res.Terminal {
		s.finishEpisode("terminal")
	}
	return true
}

// finishEpisode runs the EpisodeFinish callback and closes out the episode's
// accounting: episode index up, iteration count back to zero.
func (s *Simulator) finishEpisode(reason string) {
	if reason == "" {
		reason = "service reset"
	}
	s.impl.EpisodeFinish(reason)
	s.mu.Lock()
	s.episodeCount++
	s.iterationCount = 0
	s.state = stateIdle
	episodes := s.episodeCount
	reward := s.episodeReward
	s.mu.Unlock()
	logrus.Debugf("session %q: episode %d finished (%s), reward=%g", s.cfg.Name, episodes, reason, reward)
}

// fatal records the session-ending error and releases all resources.
func (s *Simulator) fatal(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.shutdown()
}

func (s *Simulator) shutdown() {
	s.mu.Lock()
	s.state = stateClosed
	s.mu.Unlock()
	s.session.Close()
	if err := s.recorder.Close(); err != nil {
		logrus.Warnf("session %q: closing recorder: %v", s.cfg.Name, err)
	}
}

// Close ends the session: the transport is released, any blocked reconnect
// aborts promptly, and the record sink is drained. Subsequent Run calls
// return false without invoking callbacks. Repeated calls are a no-op.
func (s *Simulator) Close() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = stateClosed
	s.mu.Unlock()
	err := s.session.Close()
	if rerr := s.recorder.Close(); err == nil {
		err = rerr
	}
	return err
}

// EpisodeCount returns the number of completed episodes.
func (s *Simulator) EpisodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodeCount
}

// IterationCount returns the number of iterations completed in the current
// episode. It resets to zero at each episode boundary.
func (s *Simulator) IterationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iterationCount
}

// TotalIterations returns the number of iterations completed across all
// episodes of the session.
func (s *Simulator) TotalIterations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalIterations
}

// EpisodeReward returns the cumulative reward of the current episode. It
// resets to zero when the next episode starts.
func (s *Simulator) EpisodeReward() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodeReward
}

// EpisodeRate returns completed episodes per wall-clock second since the
// first Run call. Monitoring aid only.
func (s *Simulator) EpisodeRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return perSecond(s.episodeCount, s.started)
}

// IterationRate returns iterations per wall-clock second across all
// episodes since the first Run call. Monitoring aid only.
func (s *Simulator) IterationRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return perSecond(s.totalIterations, s.started)
}

func perSecond(count int, started time.Time) float64 {
	if started.IsZero() {
		return 0
	}
	secs := time.Since(started).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(count) / secs
}

// EnableKeys adds record keys (qualified by prefix, if any) to the record
// schema. Safe before or after a sink is bound.
func (s *Simulator) EnableKeys(keys []string, prefix string) {
	s.recorder.EnableKeys(keys, prefix)
}

// RecordAppend stages one telemetry value for the current iteration's
// record. Values for keys that were never enabled are dropped silently;
// values outside the supported scalar kinds fail with
// record.ErrUnsupportedValueKind.
func (s *Simulator) RecordAppend(key string, value any, prefix string) error {
	return s.recorder.Append(key, value, prefix)
}

// RecordFile returns the bound record sink path, or "" when recording is
// disabled.
func (s *Simulator) RecordFile() string {
	return s.recorder.File()
}

// SetRecordFile swaps the record sink: the old sink is drained and closed
// before the new one accepts records. An empty path disables recording.
func (s *Simulator) SetRecordFile(path string) error {
	return s.recorder.SetFile(path)
}
