package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"batchcursor/internal/tracing"
)

// DefaultTimeout bounds a single continuation call.
const DefaultTimeout = 3 * time.Second

const userAgent = "batchcursor/0.1"

// HTTPSignal posts instructions to a scheduler's control endpoints.
type HTTPSignal struct {
	baseURL string
	token   string
	client  *http.Client
	tracer  trace.Tracer
}

// HTTPOption customizes an HTTPSignal.
type HTTPOption func(*HTTPSignal)

// WithBearerToken sets the Authorization header on every call.
func WithBearerToken(token string) HTTPOption {
	return func(s *HTTPSignal) { s.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the default client. The client's Timeout should
// stay short; the driver blocks on the call.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSignal) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTracer records a client span per call and propagates its context.
func WithTracer(tracer trace.Tracer) HTTPOption {
	return func(s *HTTPSignal) { s.tracer = tracer }
}

// NewHTTPSignal builds a signal for baseURL. timeout <= 0 selects DefaultTimeout.
func NewHTTPSignal(baseURL string, timeout time.Duration, opts ...HTTPOption) (*HTTPSignal, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("signal base URL is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &HTTPSignal{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Continue implements Signal.
func (s *HTTPSignal) Continue(ctx context.Context, token string) error {
	return s.send(ctx, Continue, token)
}

// Halt implements Signal.
func (s *HTTPSignal) Halt(ctx context.Context, token string) error {
	return s.send(ctx, Halt, token)
}

type requestBody struct {
	Token       string      `json:"token,omitempty"`
	Instruction Instruction `json:"instruction"`
}

func (s *HTTPSignal) send(ctx context.Context, instruction Instruction, token string) (err error) {
	ctx, span := tracing.StartClientSpan(ctx, s.tracer, "signal "+string(instruction))
	defer func() { tracing.EndSpan(span, err) }()

	payload, err := json.Marshal(requestBody{Token: token, Instruction: instruction})
	if err != nil {
		return fmt.Errorf("encode %s signal: %w", instruction, err)
	}
	endpoint := s.baseURL + "/" + string(instruction)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s signal: %w", instruction, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s signal: %w", instruction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s signal: scheduler returned %d: %s", instruction, resp.StatusCode, errorMessage(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// errorMessage pulls the "error" field out of a JSON error body, falling
// back to the raw text.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error"); msg.Exists() {
			if text := strings.TrimSpace(msg.String()); text != "" {
				return text
			}
		}
	}
	return strings.TrimSpace(string(body))
}
