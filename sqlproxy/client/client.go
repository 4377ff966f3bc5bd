package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/ineersa/libsqlshim/sqlproxy/types"
)

// Client talks to one primary.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
	mu         sync.RWMutex // Protects authToken
}

// ClientOption represents a functional option for configuring the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithAuthToken sets the bearer token sent with every request
func WithAuthToken(token string) ClientOption {
	return func(c *Client) {
		c.authToken = token
	}
}

// NewClient creates a client for the primary at baseURL.
func NewClient(baseURL string, options ...ClientOption) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// BaseURL returns the primary's base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetAuthToken replaces the bearer token in a thread-safe manner
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

func (c *Client) getAuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// makeRequest performs an HTTP request with authentication headers
func (c *Client) makeRequest(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token := c.getAuthToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError("request to "+c.baseURL+path+" failed", err)
	}
	return resp, nil
}

// Do sends one SQL command and returns the primary's response. A response
// carrying an error message is returned as a host *Error.
func (c *Client) Do(ctx context.Context, sqlReq types.SQLRequest) (*types.Response, error) {
	reqPayload, err := json.Marshal(sqlReq)
	if err != nil {
		return nil, fmt.Errorf("sqlproxy: failed to marshal %s request: %w", sqlReq.Command, err)
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, "/v1/execute", reqPayload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, WrapHTTPError(resp, "sqlproxy: "+sqlReq.Command)
	}

	var out types.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("sqlproxy: failed to unmarshal %s response: %w", sqlReq.Command, err)
	}
	if out.Error != "" {
		return nil, NewHostError(out.Error)
	}
	return &out, nil
}

// Snapshot downloads the primary's database image into dst unless the
// primary is still at generation. It returns the primary's generation and
// whether anything was written.
func (c *Client) Snapshot(ctx context.Context, generation int64, dst io.Writer) (int64, bool, error) {
	path := "/v1/snapshot?generation=" + strconv.FormatInt(generation, 10)
	resp, err := c.makeRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return generation, false, nil
	case http.StatusOK:
	default:
		return 0, false, WrapHTTPError(resp, "sqlproxy: snapshot")
	}

	remoteGen, err := strconv.ParseInt(resp.Header.Get(types.HeaderGeneration), 10, 64)
	if err != nil {
		return 0, false, NewIntegrityError("sqlproxy: snapshot without a valid generation header")
	}
	expected := resp.Header.Get(types.HeaderChecksum)

	dec, err := zstd.NewReader(resp.Body)
	if err != nil {
		return 0, false, fmt.Errorf("sqlproxy: failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	hasher := xxh3.New()
	if _, err := io.Copy(io.MultiWriter(dst, hasher), dec); err != nil {
		return 0, false, NewNetworkError("sqlproxy: snapshot transfer failed", err)
	}
	if actual := types.Checksum(hasher.Sum64()); actual != expected {
		return 0, false, NewIntegrityError(fmt.Sprintf(
			"sqlproxy: snapshot checksum mismatch: expected %s, got %s", expected, actual))
	}
	return remoteGen, true, nil
}

// Health checks that the primary is reachable.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return WrapHTTPError(resp, "sqlproxy: health")
	}
	return nil
}
