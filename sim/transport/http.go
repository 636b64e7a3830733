package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Session endpoints exposed by the brain service.
const (
	sessionsPath = "/v1/sessions"
	// defaultExchangeTimeout bounds one long-poll exchange.
	defaultExchangeTimeout = 60 * time.Second
)

// HTTPTransport talks JSON over HTTP to a brain service. Disconnect may be
// called from a goroutine other than the one driving Connect/Exchange, so
// the session ID is mutex-guarded.
type HTTPTransport struct {
	baseURL string
	client  *http.Client

	mu        sync.Mutex
	sessionID string
}

// NewHTTPTransport returns a transport for the service at baseURL
// (e.g. "http://localhost:9000").
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultExchangeTimeout},
	}
}

type registerRequest struct {
	Name    string `json:"name"`
	Predict bool   `json:"predict"`
}

type registerResponse struct {
	SessionID string `json:"session_id"`
}

// Connect registers the simulator with the service.
func (t *HTTPTransport) Connect(ctx context.Context, name string, predict bool) (string, error) {
	var resp registerResponse
	err := t.post(ctx, t.baseURL+sessionsPath, registerRequest{Name: name, Predict: predict}, &resp)
	if err != nil {
		return "", fmt.Errorf("register session: %w", err)
	}
	t.mu.Lock()
	t.sessionID = resp.SessionID
	t.mu.Unlock()
	logrus.Debugf("registered session %s for simulator %q", resp.SessionID, name)
	return resp.SessionID, nil
}

// Exchange posts the previous outcome and returns the next server event.
func (t *HTTPTransport) Exchange(ctx context.Context, outcome *ClientOutcome) (*ServerEvent, error) {
	t.mu.Lock()
	id := t.sessionID
	t.mu.Unlock()
	if id == "" {
		return nil, fmt.Errorf("exchange: session not connected")
	}
	var event ServerEvent
	url := fmt.Sprintf("%s%s/%s/exchange", t.baseURL, sessionsPath, id)
	if err := t.post(ctx, url, outcome, &event); err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}
	if !IsValidEventType(string(event.Type)) {
		return nil, fmt.Errorf("exchange: unknown event type %q", event.Type)
	}
	return &event, nil
}

// Disconnect unregisters the session. Errors from the service are logged,
// not returned: the session is gone either way.
func (t *HTTPTransport) Disconnect() error {
	t.mu.Lock()
	id := t.sessionID
	t.sessionID = ""
	t.mu.Unlock()
	if id == "" {
		return nil
	}
	url := fmt.Sprintf("%s%s/%s", t.baseURL, sessionsPath, id)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		logrus.Debugf("unregister session %s: %v", id, err)
		return nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
