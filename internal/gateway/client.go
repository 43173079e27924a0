package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/metrics"
)

const (
	defaultBaseURL = "http://127.0.0.1:8000"
	defaultTimeout = 10 * time.Second

	errorBodyReadLimit   int64 = 64 << 10
	successBodyReadLimit int64 = 32 << 20
)

// Client talks to the remote Mini ERP REST backend. It is stateless: the
// bearer token is supplied per call by the session owning the request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	metrics    *metrics.GatewayMetrics
	logg       *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the backend base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout bounds every backend call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMetrics records per-operation latency and status.
func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger enables debug logging of backend calls.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logg = logg
	}
}

// NewClient builds a backend client.
func NewClient(opts ...Option) (*Client, error) {
	client := &Client{
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	parsed, err := url.Parse(client.baseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", client.baseURL)
	}
	client.baseURL = strings.TrimRight(client.baseURL, "/")

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: client.timeout}
	}
	return client, nil
}

// BaseURL returns the normalized backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	token       string
	public      bool
	body        io.Reader
	contentType string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) do(ctx context.Context, req request) (*response, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "backend client not configured")
	}
	token := strings.TrimSpace(req.token)
	if !req.public && token == "" {
		return nil, ErrAuthRequired()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, req.body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build backend request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(ctx, req.op, 0, time.Since(started))
		return nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Error bodies only feed the message, so they may be cut short.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		c.observe(ctx, req.op, resp.StatusCode, time.Since(started))
		if err != nil {
			return nil, transportError(err)
		}
		return nil, newStatusError(resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, successBodyReadLimit+1))
	c.observe(ctx, req.op, resp.StatusCode, time.Since(started))
	if err != nil {
		return nil, transportError(err)
	}
	if int64(len(body)) > successBodyReadLimit {
		return nil, wrapRequestError(&RequestError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("backend response exceeds %d bytes", successBodyReadLimit),
		})
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func (c *Client) doJSON(ctx context.Context, req request, in any, out any) error {
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode backend request")
		}
		req.body = bytes.NewReader(payload)
		req.contentType = "application/json"
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", req.op))
	}
	return nil
}

func (c *Client) observe(ctx context.Context, op string, status int, elapsed time.Duration) {
	c.metrics.Observe(op, status, elapsed)
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"backend_op":     op,
		"backend_status": status,
		"duration_ms":    elapsed.Milliseconds(),
	})
	c.logg.Debug(ctx, "backend call completed")
}

func transportError(err error) error {
	message := "backend unreachable"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		message = "backend request timed out"
	}
	return wrapRequestError(&RequestError{Status: 0, Message: message, cause: err})
}

func pathID(id int64) string {
	return strconv.FormatInt(id, 10)
}
