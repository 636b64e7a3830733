package transport

// EventType identifies what the brain service wants the client to do next.
type EventType string

const (
	// EventIdle asks the client to do nothing this exchange.
	EventIdle EventType = "idle"
	// EventEpisodeStart asks the client to reset its simulation and report
	// the initial state. InitParams is populated in train mode only.
	EventEpisodeStart EventType = "episode_start"
	// EventStep carries the next action to simulate.
	EventStep EventType = "step"
	// EventEpisodeFinish forces the current episode closed mid-flight.
	EventEpisodeFinish EventType = "episode_finish"
	// EventUnregister terminates the session permanently.
	EventUnregister EventType = "unregister"
)

// validEventTypes maps accepted event type strings.
var validEventTypes = map[EventType]bool{
	EventIdle:          true,
	EventEpisodeStart:  true,
	EventStep:          true,
	EventEpisodeFinish: true,
	EventUnregister:    true,
}

// IsValidEventType returns true if the given string is a recognized event type.
func IsValidEventType(t string) bool {
	return validEventTypes[EventType(t)]
}

// ServerEvent is one protocol message from the brain service.
type ServerEvent struct {
	Type EventType `json:"type"`
	// InitParams carries episode configuration for EventEpisodeStart.
	// Empty in predict mode.
	InitParams *Message `json:"init_params,omitempty"`
	// Action carries the next action for EventStep.
	Action *Message `json:"action,omitempty"`
	// Reason annotates EventEpisodeFinish and EventUnregister.
	Reason string `json:"reason,omitempty"`
}

// ClientOutcome is the client's report for the previous event: the state
// after an episode start or step, the reward earned by the step (train mode),
// and whether the simulation reached a terminal state. Halted marks an
// outcome that carries no step result (first exchange, or after a discarded
// in-flight iteration).
type ClientOutcome struct {
	State    *Message `json:"state,omitempty"`
	Reward   float64  `json:"reward"`
	Terminal bool     `json:"terminal"`
	Halted   bool     `json:"halted,omitempty"`
}
