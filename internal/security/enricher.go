// Package security implements the read-through Security Enricher (C2): an
// LRU-bounded, TTL'd cache resolving securityId to ticker via an outbound
// HTTP call, tolerant of any upstream failure.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vitaliisemenov/execution-bridge/internal/domain"
	"github.com/vitaliisemenov/execution-bridge/pkg/metrics"
)

// Config controls cache sizing and the outbound lookup.
type Config struct {
	BaseURL    string
	TTL        time.Duration
	MaxEntries int
	Timeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 10_000
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
	return c
}

type cacheEntry struct {
	security  domain.Security
	expiresAt time.Time
}

// Enricher resolves securityId -> Security via a bounded LRU cache backed
// by a read-through HTTP loader. On any lookup failure it returns an empty
// Security rather than an error: callers must tolerate an absent ticker.
type Enricher struct {
	cfg        Config
	cache      *lru.Cache[string, cacheEntry]
	httpClient *http.Client
	logger     *slog.Logger
	cacheInfra *metrics.CacheMetrics

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds an Enricher. baseURL points at the security-catalog service's
// GET /api/v1/securities endpoint.
func New(cfg Config, logger *slog.Logger) (*Enricher, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := lru.New[string, cacheEntry](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("security enricher: create LRU cache: %w", err)
	}

	return &Enricher{
		cfg:        cfg,
		cache:      cache,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		cacheInfra: metrics.DefaultRegistry().Infra().Cache,
	}, nil
}

// Resolve returns the Security for securityId, loading it through the
// cache. A miss that fails to load returns a ticker-less Security, never an
// error.
func (e *Enricher) Resolve(ctx context.Context, securityID string) domain.Security {
	if entry, ok := e.cache.Get(securityID); ok {
		if time.Now().Before(entry.expiresAt) {
			e.hits.Add(1)
			e.cacheInfra.HitsTotal.WithLabelValues("security").Inc()
			return entry.security
		}
		e.cache.Remove(securityID)
	}

	e.misses.Add(1)
	e.cacheInfra.MissesTotal.WithLabelValues("security").Inc()

	sec := e.load(ctx, securityID)
	e.cache.Add(securityID, cacheEntry{security: sec, expiresAt: time.Now().Add(e.cfg.TTL)})
	return sec
}

type securitiesResponse struct {
	Securities []struct {
		SecurityID string `json:"securityId"`
		Ticker     string `json:"ticker"`
	} `json:"securities"`
}

func (e *Enricher) load(ctx context.Context, securityID string) domain.Security {
	empty := domain.Security{SecurityID: securityID}
	if e.cfg.BaseURL == "" {
		return empty
	}

	reqURL := fmt.Sprintf("%s/api/v1/securities?securityId=%s", e.cfg.BaseURL, url.QueryEscape(securityID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		e.logger.Warn("security enricher: build request failed", "security_id", securityID, "error", err)
		e.cacheInfra.ErrorsTotal.WithLabelValues("security", "request").Inc()
		return empty
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Warn("security enricher: lookup failed", "security_id", securityID, "error", err)
		e.cacheInfra.ErrorsTotal.WithLabelValues("security", "network").Inc()
		return empty
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.logger.Warn("security enricher: non-200 response", "security_id", securityID, "status", resp.StatusCode)
		e.cacheInfra.ErrorsTotal.WithLabelValues("security", "http_status").Inc()
		return empty
	}

	var body securitiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		e.logger.Warn("security enricher: decode failed", "security_id", securityID, "error", err)
		e.cacheInfra.ErrorsTotal.WithLabelValues("security", "decode").Inc()
		return empty
	}

	if len(body.Securities) == 0 {
		return empty
	}

	return domain.Security{SecurityID: securityID, Ticker: body.Securities[0].Ticker}
}

// Stats reports cache effectiveness for the metrics surface.
type Stats struct {
	Size       int
	MaxSize    int
	Hits       int64
	Misses     int64
	HitRate    float64
}

// Stats returns cache size, capacity, hit and miss counts, and hit rate for
// observability. It does not report a load penalty (time spent loading on a
// miss).
func (e *Enricher) Stats() Stats {
	hits := e.hits.Load()
	misses := e.misses.Load()
	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Size:    e.cache.Len(),
		MaxSize: e.cfg.MaxEntries,
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}

// ReverseLookupTicker finds a securityId by ticker among cached entries,
// used by the ticker query-parameter filter on GET /executions. It only
// searches the cache — callers accept that a ticker not yet resolved
// through Resolve will not be found.
func (e *Enricher) ReverseLookupTicker(ticker string) (string, bool) {
	for _, key := range e.cache.Keys() {
		entry, ok := e.cache.Peek(key)
		if ok && entry.security.Ticker == ticker {
			return key, true
		}
	}
	return "", false
}
