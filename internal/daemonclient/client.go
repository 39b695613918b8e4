package daemonclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/gjson"

	"batchcursor/internal/api"
	"batchcursor/internal/config"
	"batchcursor/internal/tracing"
)

const userAgent = "batchcursor-cli/0.1.0"

// ErrUnavailable is returned when no daemon is listening at the address.
var ErrUnavailable = errors.New("daemon not running")

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	Status  int
	Message string
	Kind    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("daemon returned %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// Client is an HTTP client for the daemon API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for the daemon at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig creates a client for the daemon described by cfg.
func FromConfig(cfg *config.Config, opts ...Option) *Client {
	return New(cfg.APIBaseURL(), cfg.Paths.APIToken, opts...)
}

// BaseURL returns the daemon address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var resp api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Invoke runs one invocation on the daemon. Failed invocations return both
// the decoded response and an *APIError.
func (c *Client) Invoke(ctx context.Context, req api.InvokeRequest) (*api.InvokeResponse, error) {
	var resp api.InvokeResponse
	err := c.do(ctx, http.MethodPost, "/api/invoke", req, &resp)
	var apiErr *APIError
	if err != nil && !errors.As(err, &apiErr) {
		return nil, err
	}
	return &resp, err
}

// Records lists stored cursors.
func (c *Client) Records(ctx context.Context) ([]api.Record, error) {
	var resp api.RecordsResponse
	if err := c.do(ctx, http.MethodGet, "/api/records", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Reset resets one collection, or every record when req.All is set.
func (c *Client) Reset(ctx context.Context, req api.ResetRequest) (*api.ResetResponse, error) {
	var resp api.ResetResponse
	if err := c.do(ctx, http.MethodPost, "/api/records/reset", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitJob schedules a sequence on the daemon.
func (c *Client) SubmitJob(ctx context.Context, req api.InvokeRequest) (*api.Job, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// Jobs lists retained jobs, newest first.
func (c *Client) Jobs(ctx context.Context) ([]api.Job, error) {
	var resp api.JobsResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Job fetches one job.
func (c *Client) Job(ctx context.Context, token string) (*api.Job, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(token), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// CancelJob stops scheduling further invocations for token.
func (c *Client) CancelJob(ctx context.Context, token string) (*api.Job, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(token), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// TestNotification asks the daemon to send a test ntfy message.
func (c *Client) TestNotification(ctx context.Context) (bool, string, error) {
	var resp struct {
		Sent    bool   `json:"sent"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", struct{}{}, &resp); err != nil {
		return false, "", err
	}
	return resp.Sent, resp.Message, nil
}

// LogQuery selects a page of daemon logs.
type LogQuery struct {
	Since      uint64
	Limit      int
	Follow     bool
	Tail       bool
	Component  string
	Collection string
}

// Logs fetches a page of log events. With Follow set the daemon holds the
// request until new events arrive.
func (c *Client) Logs(ctx context.Context, q LogQuery) (*api.LogStreamResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}
	if q.Component != "" {
		values.Set("component", q.Component)
	}
	if q.Collection != "" {
		values.Set("collection", q.Collection)
	}
	path := "/api/logs"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp api.LogStreamResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		if isUnavailable(err) {
			return fmt.Errorf("%w at %s", ErrUnavailable, c.baseURL)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var apiErr error
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr = newAPIError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 && gjson.ValidBytes(data) {
		if err := json.Unmarshal(data, out); err != nil && apiErr == nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return apiErr
}

func (c *Client) authorize(headers http.Header) {
	if c.token != "" {
		headers.Set("Authorization", "Bearer "+c.token)
	}
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error"); msg.Exists() {
			apiErr.Message = strings.TrimSpace(msg.String())
		}
		if kind := gjson.GetBytes(body, "errorKind"); kind.Exists() {
			apiErr.Kind = kind.String()
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func isUnavailable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
