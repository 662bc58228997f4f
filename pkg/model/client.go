package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/odvcencio/diffapply/pkg/logging"
	"github.com/odvcencio/diffapply/pkg/observability"
)

const (
	defaultTimeout = 30 * time.Second

	// Interactive use never comes close; the limiter only guards against a
	// runaway loop hammering a paid endpoint.
	defaultRateLimit = rate.Limit(2)
	defaultBurstSize = 4
)

// ErrMissingAPIKey is returned before any request is built when the client
// has no credential.
var ErrMissingAPIKey = errors.New("api key is not configured")

// DefaultTransport returns an http.Transport with tuned connection pool settings.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// Client is a client for OpenAI-compatible chat completion endpoints.
// Requests are never retried; failures surface to the caller immediately.
type Client struct {
	service        string
	apiKey         string
	baseURL        string
	headers        map[string]string
	httpClient     *http.Client
	transport      *LoggingTransport
	rateLimiter    *rate.Limiter
	circuitBreaker *CircuitBreaker
	logger         *logging.Logger
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Service names the remote in logs, metrics and errors.
	Service string
	// Headers are added to every request (e.g. attribution headers).
	Headers map[string]string
	// Timeout bounds each HTTP exchange; zero uses 30s.
	Timeout time.Duration
	// NetworkLogDir enables JSONL request logging when non-empty.
	NetworkLogDir string
	// CircuitBreakerConfig is optional; if nil, default config is used
	CircuitBreakerConfig *CircuitBreakerConfig
	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
	Logger    *logging.Logger
}

// NewClient creates a client for baseURL authenticating with apiKey.
func NewClient(apiKey, baseURL string, opts ClientOptions) *Client {
	base := opts.Transport
	if base == nil {
		base = DefaultTransport()
	}
	transport := NewLoggingTransport(base, opts.NetworkLogDir)

	cbConfig := DefaultCircuitBreakerConfig()
	if opts.CircuitBreakerConfig != nil {
		cbConfig = *opts.CircuitBreakerConfig
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	service := opts.Service
	if service == "" {
		service = "model"
	}

	cb := NewCircuitBreaker(cbConfig)
	cb.SetLogger(opts.Logger, service)

	return &Client{
		service:        service,
		apiKey:         strings.TrimSpace(apiKey),
		baseURL:        strings.TrimRight(baseURL, "/"),
		headers:        opts.Headers,
		transport:      transport,
		rateLimiter:    rate.NewLimiter(defaultRateLimit, defaultBurstSize),
		circuitBreaker: cb,
		logger:         opts.Logger,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Service returns the configured service name.
func (c *Client) Service() string {
	return c.service
}

// HasAPIKey reports whether a credential is configured.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// Close closes the client and its resources
func (c *Client) Close() error {
	if c.transport != nil {
		return c.transport.Close()
	}
	return nil
}

// Health is a point-in-time view of a remote service's circuit breaker.
type Health struct {
	Service     string    `json:"service"`
	Circuit     string    `json:"circuit"`
	LastFailure time.Time `json:"lastFailure,omitzero"`
}

// Health reports the circuit state and when the last failure happened.
func (c *Client) Health() Health {
	h := Health{Service: c.Service(), Circuit: c.CircuitBreakerState()}
	if c.circuitBreaker != nil {
		h.LastFailure = c.circuitBreaker.LastFailureTime()
	}
	return h
}

// CircuitBreakerState returns the current state of the circuit breaker
func (c *Client) CircuitBreakerState() string {
	if c.circuitBreaker != nil {
		return c.circuitBreaker.State()
	}
	return "disabled"
}

// ChatCompletion performs a single non-streaming chat completion.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	req.Stream = false

	ctx, span := observability.StartSpan(ctx, c.service+".chat_completion",
		attribute.String("model", req.Model),
		attribute.Int("messages", len(req.Messages)),
	)
	start := time.Now()

	var result *ChatResponse
	err := c.circuitBreaker.Call(func() error {
		resp, err := c.do(ctx, req)
		if err != nil {
			return err
		}
		result = resp
		return nil
	})

	observability.RemoteLatency.WithLabelValues(c.service).Observe(time.Since(start).Seconds())
	observability.RemoteRequests.WithLabelValues(c.service, outcomeLabel(ctx, err)).Inc()
	if result != nil {
		span.SetAttributes(
			attribute.Int("choices", len(result.Choices)),
			attribute.Int("usage.total_tokens", result.Usage.TotalTokens),
		)
	}
	observability.EndSpan(span, err)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		_ = c.logger.Error(logging.CategoryNetwork, c.service+".transport_error", err.Error(), map[string]any{
			"url":   c.baseURL + "/chat/completions",
			"model": req.Model,
		})
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := c.parseError(resp)
		_ = c.logger.Error(logging.CategoryNetwork, c.service+".api_error", apiErr.Error(), map[string]any{
			"url":    c.baseURL + "/chat/completions",
			"model":  req.Model,
			"status": resp.StatusCode,
		})
		return nil, apiErr
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	_ = c.logger.Debug(logging.CategoryNetwork, c.service+".response", "", map[string]any{
		"model":             chatResp.Model,
		"choices":           len(chatResp.Choices),
		"prompt_tokens":     chatResp.Usage.PromptTokens,
		"completion_tokens": chatResp.Usage.CompletionTokens,
	})
	return &chatResp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

// parseError parses an error response into an *APIError
func (c *Client) parseError(resp *http.Response) *APIError {
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if readErr != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status, Retryable: retryable}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		rawBody := strings.TrimSpace(string(body))
		if len(rawBody) > 500 {
			rawBody = rawBody[:500] + "..."
		}
		message := resp.Status
		if rawBody != "" {
			message = fmt.Sprintf("%s (raw: %s)", resp.Status, rawBody)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  retryable,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	code := ""
	if errResp.Error.Code != nil {
		code = fmt.Sprintf("%v", errResp.Error.Code)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    errResp.Error.Message,
		Type:       errResp.Error.Type,
		Code:       code,
		Retryable:  retryable,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, header); err == nil {
		return time.Until(t)
	}
	return 0
}

func outcomeLabel(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return observability.OutcomeTimeout
	default:
		return observability.OutcomeError
	}
}
