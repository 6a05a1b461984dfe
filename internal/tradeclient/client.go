// Package tradeclient implements the Trade-Service Client (C3): the
// outbound reconciliation call that reports a locally-applied fill back to
// the upstream trade service, retrying on a version conflict up to
// MaxAttempts attempts in total (default 2) and never propagating failure to
// the caller.
package tradeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vitaliisemenov/execution-bridge/internal/httpclient"
)

// Config points at the upstream trade service.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	return c
}

// Client calls the trade service's version and fill-update endpoints.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	logger *slog.Logger
}

// New builds a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   httpclient.New(httpclient.Config{Timeout: cfg.Timeout, MaxRetries: 1, OperationName: "trade_service"}, logger),
		logger: logger,
	}
}

type fillUpdateRequest struct {
	QuantityFilled decimal.Decimal  `json:"quantityFilled"`
	AveragePrice   *decimal.Decimal `json:"averagePrice,omitempty"`
	Version        int              `json:"version"`
}

type versionResponse struct {
	Version int `json:"version"`
}

// ReportFill tells the trade service about a locally-applied fill,
// identified by tradeServiceExecutionID. On a 409 version conflict it
// re-fetches the current version and retries with the same fill values and
// the refreshed version, up to MaxAttempts attempts in total.
// Any failure after exhausting attempts is logged and swallowed: callers
// never see reconciliation errors, per the one-way nature of this call.
func (c *Client) ReportFill(ctx context.Context, tradeServiceExecutionID int64, quantityFilled decimal.Decimal, averagePrice *decimal.Decimal, version int) {
	attempt := 0
	for {
		attempt++
		err := c.tryReportFill(ctx, tradeServiceExecutionID, quantityFilled, averagePrice, version)
		if err == nil {
			return
		}

		conflict, ok := err.(*versionConflictError)
		if !ok || attempt >= c.cfg.MaxAttempts {
			c.logger.Warn("tradeclient: report fill failed, giving up",
				"trade_service_execution_id", tradeServiceExecutionID, "attempt", attempt, "error", err)
			return
		}

		c.logger.Info("tradeclient: version conflict, retrying with refreshed version",
			"trade_service_execution_id", tradeServiceExecutionID, "expected", version, "actual", conflict.actualVersion)
		version = conflict.actualVersion
	}
}

type versionConflictError struct {
	actualVersion int
}

func (e *versionConflictError) Error() string {
	return fmt.Sprintf("version conflict, current version is %d", e.actualVersion)
}

func (c *Client) tryReportFill(ctx context.Context, id int64, quantityFilled decimal.Decimal, averagePrice *decimal.Decimal, version int) error {
	body, err := json.Marshal(fillUpdateRequest{QuantityFilled: quantityFilled, AveragePrice: averagePrice, Version: version})
	if err != nil {
		return fmt.Errorf("marshal fill update: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/trades/%d/fill", c.cfg.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build fill update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("fill update request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		current, verErr := c.fetchVersion(ctx, id)
		if verErr != nil {
			return fmt.Errorf("fetch current version after conflict: %w", verErr)
		}
		return &versionConflictError{actualVersion: current}
	default:
		return fmt.Errorf("fill update returned status %d", resp.StatusCode)
	}
}

func (c *Client) fetchVersion(ctx context.Context, id int64) (int, error) {
	url := fmt.Sprintf("%s/api/v1/trades/%d/version", c.cfg.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("get version returned status %d", resp.StatusCode)
	}

	var body versionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode version response: %w", err)
	}
	return body.Version, nil
}
