package sim

import "errors"

var (
	// ErrUnimplementedCallback reports a required Simulation callback that
	// was not overridden. Fatal for the session.
	ErrUnimplementedCallback = errors.New("required simulation callback not implemented")

	// ErrSessionLost reports a transport failure that survived the bounded
	// reconnect policy. Run returns false with this as the session error.
	ErrSessionLost = errors.New("session lost: reconnect attempts exhausted")

	// ErrClosed reports an operation on a closed session.
	ErrClosed = errors.New("session closed")

	// ErrConcurrentRun reports Run being invoked while another Run call on
	// the same Simulator is in flight. Run panics with this error rather
	// than corrupt session state.
	ErrConcurrentRun = errors.New("concurrent Run invocation on the same Simulator")
)
