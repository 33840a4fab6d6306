package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"capstation/store"
)

// Client speaks the remote store's HTTP protocol: one GET action for the full
// snapshot, one POST action family for writes, one GET action for credential
// checks. The endpoint is operator-supplied and can change at runtime.
type Client struct {
	mu       sync.RWMutex
	endpoint string
	http     *http.Client
	now      func() time.Time
}

// NewClient creates a remote store client.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
	}
}

// SetEndpoint switches the remote endpoint (script URL selection).
func (c *Client) SetEndpoint(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint = endpoint
}

// Endpoint returns the current remote endpoint.
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// actionURL appends query parameters, tolerating endpoints that already carry
// a query string.
func (c *Client) actionURL(params url.Values) string {
	endpoint := c.Endpoint()
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + params.Encode()
}

// FetchAll issues one snapshot read. The t parameter busts any intermediate
// caching so the snapshot is always current.
func (c *Client) FetchAll(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if c.Endpoint() == "" {
		return snap, &TransportError{Op: "read", Err: fmt.Errorf("no remote endpoint configured")}
	}

	params := url.Values{}
	params.Set("action", "sync")
	params.Set("t", fmt.Sprintf("%d", c.now().UnixMilli()))

	req, err := http.NewRequestWithContext(ctx, "GET", c.actionURL(params), nil)
	if err != nil {
		return snap, &TransportError{Op: "read", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return snap, &TransportError{Op: "read", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snap, &TransportError{Op: "read", Err: fmt.Errorf("remote returned %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, &TransportError{Op: "read", Err: fmt.Errorf("decode snapshot: %w", err)}
	}
	return snap, nil
}

// Push dispatches one write. The payload is flattened and the action
// discriminator injected. The response body is opaque: it is drained and
// discarded, never interpreted. The only failure mode is the call itself.
func (c *Client) Push(ctx context.Context, action string, payload interface{}) (PushResult, error) {
	result := PushResult{Applied: true, RemoteConfirmed: ConfirmUnknown}
	if c.Endpoint() == "" {
		return result, &TransportError{Op: action, Err: fmt.Errorf("no remote endpoint configured")}
	}

	body := map[string]interface{}{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return result, &TransportError{Op: action, Err: err}
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return result, &TransportError{Op: action, Err: err}
		}
	}
	body["action"] = action

	raw, err := json.Marshal(body)
	if err != nil {
		return result, &TransportError{Op: action, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.Endpoint(), bytes.NewReader(raw))
	if err != nil {
		return result, &TransportError{Op: action, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return result, &TransportError{Op: action, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return result, nil
}

type verifyResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	User    *store.User `json:"user"`
}

// VerifyUser checks operator credentials against the remote store.
func (c *Client) VerifyUser(ctx context.Context, username, password string) (*store.User, error) {
	if c.Endpoint() == "" {
		return nil, &TransportError{Op: "verify_user", Err: fmt.Errorf("no remote endpoint configured")}
	}

	params := url.Values{}
	params.Set("action", "verify_user")
	params.Set("u", username)
	params.Set("p", password)

	req, err := http.NewRequestWithContext(ctx, "GET", c.actionURL(params), nil)
	if err != nil {
		return nil, &TransportError{Op: "verify_user", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "verify_user", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: "verify_user", Err: fmt.Errorf("remote returned %d", resp.StatusCode)}
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, &TransportError{Op: "verify_user", Err: fmt.Errorf("decode response: %w", err)}
	}
	if !vr.Success || vr.User == nil {
		return nil, &AuthError{Message: vr.Message}
	}
	return vr.User, nil
}
