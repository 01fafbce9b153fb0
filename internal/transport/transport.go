package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/iotctl/internal/logging"
)

const (
	// DefaultTimeout is the default request timeout for device calls
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent is sent on every request. Device Portal rejects some
	// requests without a browser-like agent.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/51.0.2704.84 Safari/537.36"

	// maxBodySize caps how much of a response body is buffered
	maxBodySize = 8 << 20
)

// Credential is a username/password pair sent as HTTP Basic Auth
type Credential struct {
	Username string
	Password string
}

// Config describes how a transport reaches a device
type Config struct {
	// Address is the device host, optionally with port or scheme
	// (e.g., "192.168.1.20", "192.168.1.20:8080", "https://minwinpc")
	Address string

	// Timeout bounds each request (0 = DefaultTimeout)
	Timeout time.Duration

	// Headers are added to every request
	Headers map[string]string

	// Credential enables Basic Auth when non-nil
	Credential *Credential

	// FollowRedirects enables automatic redirect following. Sessions keep
	// this off so that authorization redirects surface as status codes.
	FollowRedirects bool
}

// Response is a completed HTTP exchange. A Response is returned for every
// status code; only connect, timeout and I/O failures produce an error.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Success reports whether the status code is 2xx
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport issues requests against a single device
type Transport interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string, body []byte) (*Response, error)
}

// Stream is a message stream opened against a device endpoint
type Stream interface {
	ReadJSON(v any) error
	Close() error
}

// StreamDialer is an optional interface for transports that can open
// websocket streams with the same credentials as their HTTP requests.
type StreamDialer interface {
	DialStream(ctx context.Context, path string) (Stream, error)
}

// Factory builds a transport from a configuration
type Factory func(cfg Config) Transport

// NewTransport is the default Factory
func NewTransport(cfg Config) Transport {
	return New(cfg)
}

// HTTPTransport implements Transport over net/http
type HTTPTransport struct {
	cfg     Config
	baseURL string
	client  *http.Client
}

// New creates an HTTP transport for the given configuration
func New(cfg Config) *HTTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := &http.Client{Timeout: cfg.Timeout}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &HTTPTransport{
		cfg:     cfg,
		baseURL: BaseURL(cfg.Address),
		client:  client,
	}
}

// BaseURL returns the HTTP base URL for a device address
func BaseURL(address string) string {
	address = strings.TrimRight(address, "/")
	if strings.Contains(address, "://") {
		return address
	}
	return "http://" + address
}

// Config returns the configuration the transport was built with
func (t *HTTPTransport) Config() Config {
	return t.cfg
}

// Get issues a GET request for path
func (t *HTTPTransport) Get(ctx context.Context, path string) (*Response, error) {
	return t.do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST request for path. A nil body sends an empty request body.
func (t *HTTPTransport) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	return t.do(ctx, http.MethodPost, path, body)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	t.applyHeaders(req.Header)
	if method == http.MethodPost && body == nil {
		req.ContentLength = 0
	}

	logging.LogRequest(t.cfg.Address, method, path, t.cfg.Credential != nil)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	logging.LogResponse(t.cfg.Address, method, path, resp.StatusCode, len(data))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (t *HTTPTransport) applyHeaders(h http.Header) {
	for k, v := range t.cfg.Headers {
		h.Set(k, v)
	}
	if t.cfg.Credential != nil {
		h.Set("Authorization", basicAuth(t.cfg.Credential))
	}
}

// DialStream opens a websocket to path on the device, authenticated the same
// way as HTTP requests.
func (t *HTTPTransport) DialStream(ctx context.Context, path string) (Stream, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.Timeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	header := http.Header{}
	t.applyHeaders(header)

	wsURL := StreamURL(t.baseURL) + path
	logging.LogRequest(t.cfg.Address, "WS", path, t.cfg.Credential != nil)

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, err
	}
	return conn, nil
}

// StreamURL converts an HTTP base URL to its websocket equivalent
func StreamURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}

// CloseIdleConnections releases pooled connections held by the transport
func (t *HTTPTransport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

// HandshakeError is returned when the device answered a websocket upgrade
// with a non-101 status
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

func basicAuth(c *Credential) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}
