package openrouter

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

	"bug-report-proxy/internal/domain"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultSiteURL = "https://form-builder-bug-report.vercel.app"
	appTitle       = "Form Builder Bug Report"

	// requestTimeout bounds the single upstream call; there are no retries.
	requestTimeout = 30 * time.Second

	maxDetailRunes = 200
	maxBodyBytes   = 1 << 20
)

// StatusError reports a non-200 upstream response. Detail is the message
// extracted from the upstream error body and StatusCode is relayed to the
// caller as received.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openrouter: unexpected status %d: %s", e.StatusCode, e.Detail)
}

// TimeoutError reports that the upstream call exceeded the request timeout.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("openrouter: request timed out after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// TransportError reports a transport-level failure before any HTTP status was
// received (DNS, connection refused, TLS, truncated body).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("openrouter: transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a 200 upstream response whose body is not valid JSON.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "openrouter: response body is not valid JSON"
	}
	return fmt.Sprintf("openrouter: response body is not valid JSON: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Client is a focused OpenRouter client for chat completions.
type Client struct {
	baseURL    string
	siteURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

// WithSiteURL sets the HTTP-Referer identity header sent upstream.
func WithSiteURL(siteURL string) Option {
	return func(c *Client) {
		siteURL = strings.TrimSpace(siteURL)
		if siteURL != "" {
			c.siteURL = siteURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		siteURL:    defaultSiteURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: requestTimeout}
}

func completionsURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// Complete posts one completion request upstream and returns the response
// body verbatim. Exactly one attempt is made; every failure mode maps to one
// of the typed errors above.
func (c *Client) Complete(ctx context.Context, apiKey string, payload domain.CompletionRequest) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	url := completionsURL(c.baseURL)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("openrouter: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("HTTP-Referer", c.siteURL)
	req.Header.Set("X-Title", appTitle)

	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		if isTimeout(doErr) {
			return nil, &TimeoutError{Timeout: requestTimeout, Err: doErr}
		}
		return nil, &TransportError{Err: doErr}
	}
	defer func() { _ = res.Body.Close() }()

	raw, readErr := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))

	if res.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: res.StatusCode,
			Detail:     extractErrorDetail(raw),
		}
	}
	if readErr != nil {
		if isTimeout(readErr) {
			return nil, &TimeoutError{Timeout: requestTimeout, Err: readErr}
		}
		return nil, &TransportError{Err: readErr}
	}
	if !json.Valid(raw) {
		return nil, &ProtocolError{}
	}
	return json.RawMessage(raw), nil
}

// extractErrorDetail pulls error.message out of an upstream error body,
// falling back to a truncated copy of the raw body.
func extractErrorDetail(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return "No error details"
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return truncateRunes(string(body), maxDetailRunes)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
