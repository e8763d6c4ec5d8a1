package prc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultBaseURL is the production PRC API endpoint.
	DefaultBaseURL = "https://api.policeroleplay.community/v1"

	maxResponseBodySize = 1 << 20 // 1MB
)

// connection pooling limits shared by all per-tenant clients; one poller
// process fans out to the same API host for every tenant
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
	defaultRequestTimeout      = 10 * time.Second
)

// Config holds the construction parameters for a per-tenant [Client].
type Config struct {
	// ServerKey authenticates one tenant's game server.
	ServerKey string
	// GlobalKey is the optional process-wide API key.
	GlobalKey string
	// BaseURL overrides DefaultBaseURL (tests).
	BaseURL string
	// HTTPClient overrides the shared pooled client (tests).
	HTTPClient *http.Client
}

// Client calls the PRC API on behalf of a single tenant. It exposes the
// cheap status probe plus the nine secondary fetchers. Clients are
// cheap to construct and safe for concurrent use.
type Client struct {
	serverKey string
	globalKey string
	baseURL   string
	http      *http.Client
}

// sharedHTTPClient is reused across all tenants so connection pooling
// applies process-wide.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     defaultMaxConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
	},
}

// NewClient creates a client for one tenant's server key.
func NewClient(cfg Config) *Client {
	c := &Client{
		serverKey: cfg.ServerKey,
		globalKey: cfg.GlobalKey,
		baseURL:   cfg.BaseURL,
		http:      cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = sharedHTTPClient
	}
	return c
}

// get performs one API call and decodes the JSON response body.
// Non-2xx responses become *APIError carrying the status, the server
// message when one is present, and any Retry-After hint.
func (c *Client) get(ctx context.Context, path string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Server-Key", c.serverKey)
	if c.globalKey != "" {
		req.Header.Set("Authorization", c.globalKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    apiMessage(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var payload any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode response %s: %w", path, err)
		}
	}
	return payload, nil
}

func apiMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 || math.IsInf(secs, 0) {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// ServerStatus is the gate probe.
func (c *Client) ServerStatus(ctx context.Context) (any, error) {
	return c.get(ctx, "/server")
}

func (c *Client) CommandLogs(ctx context.Context) (any, error) {
	return c.get(ctx, "/server/commandlogs")
}

func (c *Client) JoinLogs(ctx context.Context) (any, error) {
	return c.get(ctx, "/server/joinlogs")
}

func (c *Client) KillLogs(ctx context.Context) (any, error) {
	return c.get(ctx, "/server/killlogs")
}

func (c *Client) ModCalls(ctx context.Context) (any, error) {
	return c.get(ctx, "/server/modcalls")
}

func (c *Client) Players(ctx context.Context) (any, error) {
	return c.get(ctx, "/server/players")
}

func (c *Client) Queue(ctx context.Context) (any, error) {
	return c.get(ctx, "/server/queue")
}

func (c *Client) Staff(ctx context.Context) (any, error) {
	return c.get(ctx, "/server/staff")
}

func (c *Client) Vehicles(ctx context.Context) (any, error) {
	return c.get(ctx, "/server/vehicles")
}

func (c *Client) Bans(ctx context.Context) (any, error) {
	return c.get(ctx, "/server/bans")
}
