// Package brain implements a minimal in-process brain service for local
// development and end-to-end testing of simulator sessions. It speaks the
// same HTTP protocol the session client's transport expects: register,
// exchange, unregister. Actions come from a pluggable Policy; no actual
// training happens.
package brain

import (
	"math/rand"

	"github.com/simlink/simlink/sim/transport"
)

// Policy produces the next action for a reported state.
type Policy interface {
	NextAction(state *transport.Message) *transport.Message
}

// ConstantPolicy replies with the same action every step.
type ConstantPolicy struct {
	Action *transport.Message
}

func (p ConstantPolicy) NextAction(*transport.Message) *transport.Message {
	if p.Action == nil {
		return transport.NewMessage()
	}
	return p.Action.Clone()
}

// RandomPolicy replies with uniform random float values for a fixed key set.
type RandomPolicy struct {
	Keys      []string
	Low, High float64
	rng       *rand.Rand
}

// NewRandomPolicy returns a seeded random policy over the given action keys.
func NewRandomPolicy(keys []string, low, high float64, seed int64) *RandomPolicy {
	return &RandomPolicy{
		Keys: keys,
		Low:  low,
		High: high,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (p *RandomPolicy) NextAction(*transport.Message) *transport.Message {
	action := transport.NewMessage()
	for _, k := range p.Keys {
		action.SetFloat64(k, p.Low+p.rng.Float64()*(p.High-p.Low))
	}
	return action
}
