package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubPoolHealth struct{ healthy bool }

func (s stubPoolHealth) Healthy() bool { return s.healthy }

func TestRouter_Health(t *testing.T) {
	cfg := DefaultRouterConfig(testLogger())
	cfg.Handlers = NewExecutionHandlers(&stubStore{}, &stubEnricher{}, nil, &stubFillApplier{}, nil, nil)
	router := NewRouter(cfg)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_Ready_Unhealthy(t *testing.T) {
	cfg := DefaultRouterConfig(testLogger())
	cfg.Handlers = NewExecutionHandlers(&stubStore{}, &stubEnricher{}, nil, &stubFillApplier{}, nil, nil)
	cfg.PoolHealth = stubPoolHealth{healthy: false}
	router := NewRouter(cfg)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRouter_GetExecution_NotFound(t *testing.T) {
	cfg := DefaultRouterConfig(testLogger())
	cfg.Handlers = NewExecutionHandlers(&stubStore{}, &stubEnricher{}, nil, &stubFillApplier{}, nil, nil)
	router := NewRouter(cfg)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/execution/1")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(body))
}
