package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simlink/simlink/sim/transport"
)

// Status is the connection status of a session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusClosed       Status = "closed"
)

// SessionClient owns connectivity to the brain service for one session: lazy
// connection, the train/predict mode fixed at construction, and bounded
// reconnect with exponential backoff. Close may be called from outside the
// Run loop and aborts any in-flight backoff sleep promptly.
type SessionClient struct {
	name    string
	predict bool
	retry   RetryPolicy
	tr      transport.Transport

	mu        sync.Mutex
	status    Status
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSessionClient returns a disconnected client. The connection is acquired
// lazily on the first Exchange.
func NewSessionClient(name string, predict bool, retry RetryPolicy, tr transport.Transport) *SessionClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionClient{
		name:    name,
		predict: predict,
		retry:   retry,
		tr:      tr,
		status:  StatusDisconnected,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Predict returns the session mode. Fixed for the session's lifetime.
func (c *SessionClient) Predict() bool { return c.predict }

// Status returns the current connection status.
func (c *SessionClient) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID returns the service-assigned session ID, or "" before the first
// successful connect.
func (c *SessionClient) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *SessionClient) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusClosed {
		c.status = s
	}
}

// Exchange reports the previous outcome and returns the next server event,
// connecting lazily and reconnecting on transport failure. When a failure
// interrupts an exchange the in-flight outcome is discarded — after a
// successful reconnect the client reports a halted outcome instead, so no
// iteration result is ever replayed or double-submitted.
func (c *SessionClient) Exchange(outcome *transport.ClientOutcome) (*transport.ServerEvent, error) {
	if c.Status() == StatusClosed {
		return nil, ErrClosed
	}
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}
	ev, err := c.tr.Exchange(c.ctx, outcome)
	if err == nil {
		return ev, nil
	}
	if c.Status() == StatusClosed {
		return nil, ErrClosed
	}
	logrus.Warnf("session %q: exchange failed, discarding in-flight outcome: %v", c.name, err)
	c.setStatus(StatusDisconnected)
	if err := c.connectWithBackoff(); err != nil {
		return nil, err
	}
	ev, err = c.tr.Exchange(c.ctx, &transport.ClientOutcome{Halted: true})
	if err != nil {
		c.setStatus(StatusDisconnected)
		return nil, fmt.Errorf("%w: exchange after reconnect: %v", ErrSessionLost, err)
	}
	return ev, nil
}

func (c *SessionClient) ensureConnected() error {
	if c.Status() == StatusConnected {
		return nil
	}
	return c.connectWithBackoff()
}

// connectWithBackoff registers a fresh session, retrying up to the policy's
// MaxAttempts. Exhaustion escalates to ErrSessionLost.
func (c *SessionClient) connectWithBackoff() error {
	c.setStatus(StatusConnecting)
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(c.retry.Interval(attempt - 1)); err != nil {
				return err
			}
		}
		id, err := c.tr.Connect(c.ctx, c.name, c.predict)
		if err == nil {
			c.mu.Lock()
			if c.status == StatusClosed {
				c.mu.Unlock()
				return ErrClosed
			}
			c.status = StatusConnected
			c.sessionID = id
			c.mu.Unlock()
			logrus.Infof("session %q connected (id=%s, predict=%v)", c.name, id, c.predict)
			return nil
		}
		lastErr = err
		logrus.Warnf("session %q: connect attempt %d/%d failed: %v", c.name, attempt, c.retry.MaxAttempts, err)
	}
	c.setStatus(StatusDisconnected)
	return fmt.Errorf("%w: %v", ErrSessionLost, lastErr)
}

// sleep blocks for d or until Close cancels the session.
func (c *SessionClient) sleep(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// Close releases the transport unconditionally and moves the session to
// closed. Repeated calls are a no-op.
func (c *SessionClient) Close() error {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusClosed
	c.mu.Unlock()
	c.cancel()
	return c.tr.Disconnect()
}
