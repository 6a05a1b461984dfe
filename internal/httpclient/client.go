// Package httpclient provides a shared outbound HTTP helper used by the
// trade-service and security-service clients, wrapping a timeout-bound
// *http.Client with this module's retry policy.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vitaliisemenov/execution-bridge/internal/core/resilience"
)

// Client is a thin, retrying JSON HTTP caller.
type Client struct {
	http   *http.Client
	policy *resilience.RetryPolicy
	logger *slog.Logger
}

// Config tunes timeout and retry behavior.
type Config struct {
	Timeout       time.Duration
	MaxRetries    int
	OperationName string
}

// New builds a Client. A zero or negative Timeout becomes 5s and a negative
// MaxRetries becomes 2; a zero MaxRetries means a single attempt.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		policy: &resilience.RetryPolicy{
			MaxRetries:    cfg.MaxRetries,
			BaseDelay:     100 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			Multiplier:    2.0,
			Jitter:        true,
			ErrorChecker:  retryableHTTPChecker{},
			Logger:        logger,
			OperationName: cfg.OperationName,
		},
		logger: logger,
	}
}

// Do executes req with retry, returning the first response whose status
// code is not itself classified as retryable, or the final transport error.
// Callers are responsible for closing the returned response body.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := resilience.WithRetry(ctx, c.policy, func() error {
		r, doErr := c.http.Do(req.WithContext(ctx))
		if doErr != nil {
			return doErr
		}
		if isRetryableStatus(r.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
			r.Body.Close()
			return fmt.Errorf("retryable status %d: %s", r.StatusCode, strings.TrimSpace(string(body)))
		}
		resp = r
		return nil
	})
	return resp, err
}

func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

type retryableHTTPChecker struct{}

func (retryableHTTPChecker) IsRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.HasPrefix(msg, "retryable status") {
		return true
	}
	for _, needle := range []string{"timeout", "connection refused", "connection reset", "eof"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
