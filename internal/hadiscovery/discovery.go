package hadiscovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/vault-core/internal/infrastructure/config"
)

// defaultWebsocketPath is used when the config leaves websocket_path empty.
const defaultWebsocketPath = "api/websocket"

// defaultTimeout bounds each REST request and websocket read.
const defaultTimeout = 30 * time.Second

// RESTResult holds the metadata fetched over the REST API.
type RESTResult struct {
	BaseURL  string           `json:"base_url"`
	Services []map[string]any `json:"services"`
	States   []map[string]any `json:"states"`
}

// WebsocketResult holds the outcome of validating the websocket API.
type WebsocketResult struct {
	WebsocketURL string         `json:"websocket_url"`
	Config       map[string]any `json:"config"`
}

// Result is the combined discovery payload covering REST and websocket data.
type Result struct {
	REST      RESTResult      `json:"rest"`
	Websocket WebsocketResult `json:"websocket"`
}

// Client discovers a Home Assistant instance's capabilities.
//
// It fetches service and state metadata over REST, then validates the
// websocket API by completing the auth handshake and requesting the
// instance config. Results are cached until invalidated with a forced
// refresh.
type Client struct {
	baseURL string
	token   string
	wsURL   string
	timeout time.Duration

	httpClient *http.Client

	mu    sync.Mutex
	cache *Result
}

// New creates a discovery client from the home_assistant config section.
//
// Parameters:
//   - cfg: REST URL, access token, websocket path and timeout
//
// Returns:
//   - *Client: Ready to discover; no connection is made until DiscoverAll
//   - error: If the REST URL is missing or malformed
func New(cfg config.HomeAssistantConfig) (*Client, error) {
	base, err := normalizeBaseURL(cfg.RESTURL)
	if err != nil {
		return nil, err
	}

	wsPath := strings.TrimLeft(cfg.WebsocketPath, "/")
	if wsPath == "" {
		wsPath = defaultWebsocketPath
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		wsURL:      websocketURL(base, wsPath),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the normalised REST base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// WebsocketURL returns the derived websocket endpoint.
func (c *Client) WebsocketURL() string { return c.wsURL }

// DiscoverAll runs REST and websocket discovery in sequence.
//
// Results are cached; pass forceRefresh to discard the cache. Safe for
// concurrent use — only one discovery runs at a time.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - forceRefresh: Discard any cached result and rediscover
//
// Returns:
//   - *Result: Combined REST and websocket metadata
//   - error: ErrRESTFailed, ErrWebsocketFailed or ErrTokenRequired
func (c *Client) DiscoverAll(ctx context.Context, forceRefresh bool) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil && !forceRefresh {
		return c.cache, nil
	}

	rest, err := c.discoverREST(ctx)
	if err != nil {
		return nil, err
	}
	ws, err := c.discoverWebsocket(ctx)
	if err != nil {
		return nil, err
	}

	c.cache = &Result{REST: *rest, Websocket: *ws}
	return c.cache, nil
}

// discoverREST fetches services and states via the REST API.
func (c *Client) discoverREST(ctx context.Context) (*RESTResult, error) {
	services, err := c.fetchJSON(ctx, "api/services")
	if err != nil {
		return nil, err
	}
	states, err := c.fetchJSON(ctx, "api/states")
	if err != nil {
		return nil, err
	}
	return &RESTResult{BaseURL: c.baseURL, Services: services, States: states}, nil
}

// fetchJSON performs an authenticated GET and decodes a JSON array response.
func (c *Client) fetchJSON(ctx context.Context, path string) ([]map[string]any, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %w", ErrRESTFailed, endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRESTFailed, endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only response body

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrRESTFailed, endpoint, resp.StatusCode, body)
	}

	var out []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrRESTFailed, endpoint, err)
	}
	return out, nil
}

// wsMessage is the envelope for websocket API frames.
type wsMessage struct {
	ID          string         `json:"id,omitempty"`
	Type        string         `json:"type"`
	AccessToken string         `json:"access_token,omitempty"`
	Success     bool           `json:"success,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
}

// discoverWebsocket validates the websocket handshake and captures the
// instance config.
func (c *Client) discoverWebsocket(ctx context.Context) (*WebsocketResult, error) {
	if c.token == "" {
		return nil, ErrTokenRequired
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, resp, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", ErrWebsocketFailed, c.wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // Handshake response body is unused
	}
	defer conn.Close() //nolint:errcheck // Discovery connection is short-lived

	if err := c.performHandshake(conn); err != nil {
		return nil, err
	}

	cfg, err := c.fetchConfig(conn)
	if err != nil {
		return nil, err
	}

	return &WebsocketResult{WebsocketURL: c.wsURL, Config: cfg}, nil
}

// performHandshake completes the auth_required/auth/auth_ok exchange.
// Instances without auth may send auth_ok immediately.
func (c *Client) performHandshake(conn *websocket.Conn) error {
	first, err := c.readMessage(conn)
	if err != nil {
		return err
	}

	switch first.Type {
	case "auth_ok":
		return nil
	case "auth_required":
		if err := c.writeMessage(conn, wsMessage{Type: "auth", AccessToken: c.token}); err != nil {
			return err
		}
		result, err := c.readMessage(conn)
		if err != nil {
			return err
		}
		if result.Type != "auth_ok" {
			return fmt.Errorf("%w: token rejected (%s)", ErrWebsocketFailed, result.Type)
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected handshake response %q", ErrWebsocketFailed, first.Type)
	}
}

// fetchConfig requests the instance config and checks the response
// correlates to our request ID.
func (c *Client) fetchConfig(conn *websocket.Conn) (map[string]any, error) {
	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")

	if err := c.writeMessage(conn, wsMessage{ID: requestID, Type: "get_config"}); err != nil {
		return nil, err
	}

	resp, err := c.readMessage(conn)
	if err != nil {
		return nil, err
	}
	if resp.ID != requestID {
		return nil, fmt.Errorf("%w: get_config response id mismatch", ErrWebsocketFailed)
	}
	if resp.Type != "result" || !resp.Success {
		return nil, fmt.Errorf("%w: get_config failed (%s)", ErrWebsocketFailed, resp.Type)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("%w: get_config returned no payload", ErrWebsocketFailed)
	}
	return resp.Result, nil
}

// readMessage reads and decodes one frame within the configured timeout.
func (c *Client) readMessage(conn *websocket.Conn) (wsMessage, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return wsMessage{}, fmt.Errorf("%w: %w", ErrWebsocketFailed, err)
	}

	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return wsMessage{}, fmt.Errorf("%w: reading frame: %w", ErrWebsocketFailed, err)
	}
	return msg, nil
}

// writeMessage encodes and sends one frame within the configured timeout.
func (c *Client) writeMessage(conn *websocket.Conn, msg wsMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrWebsocketFailed, err)
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: writing frame: %w", ErrWebsocketFailed, err)
	}
	return nil
}

// normalizeBaseURL validates the REST URL and strips trailing slashes.
func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: rest_url is empty", ErrInvalidBaseURL)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%w: rest_url must include scheme and host", ErrInvalidBaseURL)
	}

	return strings.TrimRight(trimmed, "/"), nil
}

// websocketURL derives the ws:// or wss:// endpoint from the REST base URL.
func websocketURL(base, wsPath string) string {
	u, err := url.Parse(base + "/" + wsPath)
	if err != nil {
		return base + "/" + wsPath
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}
