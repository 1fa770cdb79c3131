// Package client is a Go SDK for the sigparse HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/sigparse/pkg/errors"
)

const Version = "0.1.0"

const apiPrefix = "/api/v1"

// Logger defines the logging interface used by the Client
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// Client talks to a sigparse API server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	apiKey       string
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return fmt.Sprintf("sigparse: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, msg, e.RequestID)
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == http.StatusBadRequest
}

func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// NewClient creates a client for the server at baseURL. apiKey is sent as
// a bearer token when non-empty.
func NewClient(baseURL string, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.InvalidParam("baseURL is required")
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.InvalidParam("invalid baseURL").WithCause(err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, errors.InvalidParam("baseURL scheme must be http or https")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    fmt.Sprintf("sigparse-go-sdk/%s", Version),
		logger:       noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do performs an HTTP request, retrying transport failures, 5xx responses
// and 429s that carry Retry-After.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	fullURL := c.baseURL + path

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debugf("retry attempt %d after %v", attempt, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		requestID := uuid.New().String()
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Errorf("request failed: %v", err)
			lastErr = err
			continue
		}

		c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, duration)

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= 400 {
			apiErr := decodeAPIError(resp.StatusCode, respBody)
			apiErr.RequestID = requestID
			if rid := resp.Header.Get("X-Request-ID"); rid != "" {
				apiErr.RequestID = rid
			}
			lastErr = apiErr

			if resp.StatusCode == http.StatusTooManyRequests && attempt < c.retryMax {
				if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
					c.logger.Infof("rate limited, retrying after %d seconds", seconds)
					select {
					case <-time.After(time.Duration(seconds) * time.Second):
						continue
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			if apiErr.IsServerError() {
				continue
			}
			return apiErr
		}

		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("failed to unmarshal response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	if len(body) == 0 {
		apiErr.Message = http.StatusText(status)
		return apiErr
	}
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != "" {
		apiErr.Code = errResp.Code
		apiErr.Message = errResp.Message
		apiErr.Detail = errResp.Detail
	} else {
		apiErr.Message = string(body)
	}
	return apiErr
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax || backoff <= 0 {
		backoff = c.retryWaitMax
	}
	if backoff < 4 {
		return backoff
	}
	jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
	return backoff + jitter
}
