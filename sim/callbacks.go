package sim

import (
	"fmt"

	"github.com/simlink/simlink/sim/transport"
)

// StepResult aggregates the outcome of one Simulate call.
type StepResult struct {
	// State is the simulation state after applying the action.
	State *transport.Message
	// Reward scores the step. Meaningful in train mode only; predict-mode
	// simulations may leave it zero.
	Reward float64
	// Terminal marks the episode finished.
	Terminal bool
}

// Simulation is the contract user code implements. EpisodeStart and Simulate
// are mandatory; EpisodeFinish is optional. Embed BaseSimulation to pick up
// the defaults and override the callbacks you need:
//
//	type cartpole struct {
//		sim.BaseSimulation
//		// ...
//	}
//
// Errors returned from callbacks are not retried; they terminate the session
// and surface through Simulator.Err.
type Simulation interface {
	// EpisodeStart resets the simulation and returns the initial state.
	// params carries episode configuration in train mode and is always
	// empty in predict mode.
	EpisodeStart(params *transport.Message) (*transport.Message, error)
	// Simulate advances the simulation by one action.
	Simulate(action *transport.Message) (StepResult, error)
	// EpisodeFinish runs after an episode ends, whether the simulation
	// reported terminal or the service forced a reset. reason says which.
	EpisodeFinish(reason string)
}

// BaseSimulation supplies the default callback set: the mandatory callbacks
// fail with ErrUnimplementedCallback, EpisodeFinish is a no-op.
type BaseSimulation struct{}

func (BaseSimulation) EpisodeStart(*transport.Message) (*transport.Message, error) {
	return nil, fmt.Errorf("episode_start: %w", ErrUnimplementedCallback)
}

func (BaseSimulation) Simulate(*transport.Message) (StepResult, error) {
	return StepResult{}, fmt.Errorf("simulate: %w", ErrUnimplementedCallback)
}

func (BaseSimulation) EpisodeFinish(string) {}
