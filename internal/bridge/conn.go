// conn.go — HTTPBrowserBridge: a BrowserBridge implementation that drives a
// local browser-control daemon over HTTP. Connection health checks and error
// classification follow the teacher's daemon-transport pattern, retargeted
// from an MCP JSON-RPC payload to this engine's element/navigate/event verbs.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// IsConnectionError returns true if err indicates the browser daemon is
// unreachable, as opposed to a protocol-level failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host")
}

// IsServerRunning checks if the browser daemon is healthy on the given port.
func IsServerRunning(port int) bool {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port)) // #nosec G704 -- localhost-only health probe
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// WaitForServer blocks until the daemon accepts connections or timeout elapses.
func WaitForServer(port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if IsServerRunning(port) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// HTTPBrowserBridge implements BrowserBridge by POSTing JSON verb payloads
// to a local browser-control daemon, mirroring the teacher's DoHTTP helper.
type HTTPBrowserBridge struct {
	Port   int
	Client *http.Client
}

// NewHTTPBrowserBridge constructs a bridge targeting 127.0.0.1:port.
func NewHTTPBrowserBridge(port int) *HTTPBrowserBridge {
	return &HTTPBrowserBridge{Port: port, Client: &http.Client{Timeout: 35 * time.Second}}
}

func (b *HTTPBrowserBridge) endpoint(verb string) string {
	return fmt.Sprintf("http://127.0.0.1:%d/%s", b.Port, verb) // #nosec G704 -- endpoint is localhost-only
}

// DoHTTP sends a raw JSON payload to the daemon at the given verb endpoint.
func (b *HTTPBrowserBridge) DoHTTP(ctx context.Context, verb string, line []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(verb), bytes.NewReader(line))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return b.Client.Do(httpReq)
}

func (b *HTTPBrowserBridge) call(ctx context.Context, verb string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := b.DoHTTP(ctx, verb, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge: %s returned %d: %s", verb, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (b *HTTPBrowserBridge) Navigate(ctx context.Context, url string) error {
	return b.call(ctx, "navigate", map[string]string{"url": url}, nil)
}

func (b *HTTPBrowserBridge) FindElement(ctx context.Context, selector string) (ElementHandle, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := b.call(ctx, "find", map[string]string{"selector": selector}, &out); err != nil {
		return ElementHandle{}, err
	}
	return ElementHandle{ID: out.ID}, nil
}

func (b *HTTPBrowserBridge) Click(ctx context.Context, el ElementHandle) error {
	return b.call(ctx, "click", map[string]string{"id": el.ID}, nil)
}

func (b *HTTPBrowserBridge) SetValue(ctx context.Context, el ElementHandle, value string) error {
	return b.call(ctx, "setValue", map[string]string{"id": el.ID, "value": value}, nil)
}

func (b *HTTPBrowserBridge) Extract(ctx context.Context, el ElementHandle, attribute string) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	if err := b.call(ctx, "extract", map[string]string{"id": el.ID, "attribute": attribute}, &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

func (b *HTTPBrowserBridge) FireEvent(ctx context.Context, el ElementHandle, eventName string, params map[string]string) error {
	payload := map[string]interface{}{"id": el.ID, "event": eventName, "params": params}
	return b.call(ctx, "fireEvent", payload, nil)
}

func (b *HTTPBrowserBridge) Screenshot(ctx context.Context, el *ElementHandle) ([]byte, error) {
	payload := map[string]string{}
	if el != nil {
		payload["id"] = el.ID
	}
	var out struct {
		PNGBase64 string `json:"pngBase64"`
	}
	if err := b.call(ctx, "screenshot", payload, &out); err != nil {
		return nil, err
	}
	return []byte(out.PNGBase64), nil
}

func (b *HTTPBrowserBridge) CurrentURL(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := b.call(ctx, "currentUrl", map[string]string{}, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (b *HTTPBrowserBridge) Back(ctx context.Context) error {
	return b.call(ctx, "back", map[string]string{}, nil)
}

func (b *HTTPBrowserBridge) Refresh(ctx context.Context) error {
	return b.call(ctx, "refresh", map[string]string{}, nil)
}

func (b *HTTPBrowserBridge) SwitchTab(ctx context.Context, action, target string) error {
	return b.call(ctx, "switchTab", map[string]string{"action": action, "target": target}, nil)
}

func (b *HTTPBrowserBridge) SwitchFrame(ctx context.Context, target string) error {
	return b.call(ctx, "switchFrame", map[string]string{"target": target}, nil)
}

// HTTPNetworkManager implements NetworkManager against the same local
// browser-control daemon HTTPBrowserBridge talks to, for DISCONNECT/REDIAL
// (§4.6).
type HTTPNetworkManager struct {
	Port   int
	Client *http.Client
}

// NewHTTPNetworkManager constructs a NetworkManager targeting 127.0.0.1:port.
func NewHTTPNetworkManager(port int) *HTTPNetworkManager {
	return &HTTPNetworkManager{Port: port, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (n *HTTPNetworkManager) endpoint(verb string) string {
	return fmt.Sprintf("http://127.0.0.1:%d/%s", n.Port, verb) // #nosec G704 -- endpoint is localhost-only
}

func (n *HTTPNetworkManager) Disconnect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint("disconnect"), nil)
	if err != nil {
		return err
	}
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (n *HTTPNetworkManager) Redial(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if IsServerRunning(n.Port) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("bridge: daemon on port %d did not come back within %s", n.Port, timeout)
}

func (n *HTTPNetworkManager) IsConnected(ctx context.Context) bool {
	return IsServerRunning(n.Port)
}
