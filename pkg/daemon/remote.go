package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/logging"
	"github.com/sirupsen/logrus"
)

// unixBaseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const unixBaseURL = "http://unix"

// RemoteClient implements Client by calling the daemon's HTTP API, over a
// Unix socket or TCP. It is also the connection factory for the SSE and
// WebSocket sources.
type RemoteClient struct {
	httpClient   *http.Client
	streamClient *http.Client
	baseURL      string
	socketPath   string
	token        string
	reconnect    time.Duration
	jitter       float64
	logger       *logrus.Entry
}

// ClientOption configures a RemoteClient.
type ClientOption func(*RemoteClient)

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) ClientOption {
	return func(c *RemoteClient) { c.token = token }
}

// WithReconnect makes stream sources reopen a dropped stream after interval,
// jittered by ratio. Zero disables reconnection: the error is reported and
// the caller decides whether to retry.
func WithReconnect(interval time.Duration, ratio float64) ClientOption {
	return func(c *RemoteClient) {
		c.reconnect = interval
		c.jitter = clampJitterRatio(ratio)
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *logrus.Entry) ClientOption {
	return func(c *RemoteClient) { c.logger = logger }
}

// NewRemoteClient creates a client for the daemon at addr: "unix://<path>",
// "http://host:port" or "https://host:port".
func NewRemoteClient(addr string, opts ...ClientOption) (*RemoteClient, error) {
	c := &RemoteClient{}

	var dial func(ctx context.Context, network, address string) (net.Conn, error)
	switch {
	case strings.HasPrefix(addr, "unix://"):
		c.socketPath = strings.TrimPrefix(addr, "unix://")
		c.baseURL = unixBaseURL
		dial = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.socketPath)
		}
	case strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		c.baseURL = strings.TrimRight(addr, "/")
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("daemon address %q must start with unix://, http:// or https://", addr))
	}

	transport := &http.Transport{
		DialContext:       dial,
		DisableKeepAlives: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}
	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   10 * time.Second,
	}
	// Use a separate client with no timeout for streaming
	c.streamClient = &http.Client{
		Transport: &http.Transport{DialContext: dial},
		Timeout:   0,
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewLogger("daemon-client")
	}
	return c, nil
}

// BaseURL returns the URL requests are made against.
func (c *RemoteClient) BaseURL() string {
	return c.baseURL
}

func (c *RemoteClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends the request and decodes a JSON response into out. Non-2xx
// responses become *errors.Error with the daemon's code.
func (c *RemoteClient) do(req *http.Request, collection string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Connectivity(collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp, collection)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Connectivity(collection, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// responseError maps a failed response to an error. 401 and 403 are always
// permission failures.
func responseError(resp *http.Response, collection string) error {
	var frame ErrorFrame
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = json.Unmarshal(body, &frame)
	if frame.Message == "" {
		frame.Message = fmt.Sprintf("daemon returned status %d", resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.PermissionDenied(collection, fmt.Errorf("%s", frame.Message)).
			WithDetail("status", resp.StatusCode)
	}
	if frame.Code != "" {
		return frame.Err(collection)
	}
	return errors.Connectivity(collection, fmt.Errorf("%s", frame.Message)).
		WithDetail("status", resp.StatusCode)
}

// ListCollections returns every collection held by the daemon.
func (c *RemoteClient) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, PathCollections, nil)
	if err != nil {
		return nil, err
	}
	var infos []CollectionInfo
	if err := c.do(req, "", &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// GetCollection returns the current snapshot of a collection.
func (c *RemoteClient) GetCollection(ctx context.Context, name string) (Frame, error) {
	req, err := c.newRequest(ctx, http.MethodGet, CollectionPath(name), nil)
	if err != nil {
		return Frame{}, err
	}
	var frame Frame
	err = c.do(req, name, &frame)
	return frame, err
}

// PutDocument inserts or replaces a document.
func (c *RemoteClient) PutDocument(ctx context.Context, collection, id string, doc json.RawMessage) (Frame, error) {
	req, err := c.newRequest(ctx, http.MethodPut, DocumentPath(collection, id), bytes.NewReader(doc))
	if err != nil {
		return Frame{}, err
	}
	var frame Frame
	err = c.do(req, collection, &frame)
	return frame, err
}

// DeleteDocument removes a document.
func (c *RemoteClient) DeleteDocument(ctx context.Context, collection, id string) (Frame, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, DocumentPath(collection, id), nil)
	if err != nil {
		return Frame{}, err
	}
	var frame Frame
	err = c.do(req, collection, &frame)
	return frame, err
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, PathHealth, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
