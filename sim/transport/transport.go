package transport

import "context"

// Transport is a reliable ordered channel to the brain service. Implementations
// must process exchanges strictly in call order. The session client owns
// reconnect policy; a Transport surfaces every fault to its caller.
type Transport interface {
	// Connect registers a session for the named simulator and returns the
	// session ID assigned by the service.
	Connect(ctx context.Context, name string, predict bool) (string, error)
	// Exchange reports the previous outcome and blocks for the next event.
	Exchange(ctx context.Context, outcome *ClientOutcome) (*ServerEvent, error)
	// Disconnect releases the session. Safe to call when not connected.
	Disconnect() error
}
