package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/execution-bridge/internal/apperrors"
	"github.com/vitaliisemenov/execution-bridge/internal/domain"
)

type stubStore struct {
	byID     map[int64]*domain.Execution
	findErr  error
	pagedRes []*domain.Execution
	pagedTot int
	pagedErr error
}

func (s *stubStore) FindByID(ctx context.Context, id int64) (*domain.Execution, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	e, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

func (s *stubStore) FindPaged(ctx context.Context, filter domain.Filter, page domain.Page) ([]*domain.Execution, int, error) {
	return s.pagedRes, s.pagedTot, s.pagedErr
}

type stubEnricher struct {
	ticker  string
	foundID string
	foundOK bool
}

func (s *stubEnricher) Resolve(ctx context.Context, securityID string) domain.Security {
	return domain.Security{SecurityID: securityID, Ticker: s.ticker}
}

func (s *stubEnricher) ReverseLookupTicker(ticker string) (string, bool) {
	return s.foundID, s.foundOK
}

type stubFillApplier struct {
	result *domain.Execution
	err    error
}

func (s *stubFillApplier) Apply(ctx context.Context, id int64, req domain.FillRequest) (*domain.Execution, error) {
	return s.result, s.err
}

func withVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

func TestGetExecution_Found(t *testing.T) {
	st := &stubStore{byID: map[int64]*domain.Execution{1: {ID: 1, SecurityID: "SEC-1", Quantity: decimal.NewFromInt(10)}}}
	h := NewExecutionHandlers(st, &stubEnricher{ticker: "ACME"}, nil, &stubFillApplier{}, nil, nil)

	req := withVars(httptest.NewRequest(http.MethodGet, "/execution/1", nil), map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.GetExecution(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var dto domain.ExecutionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, "ACME", dto.Security.Ticker)
}

func TestGetExecution_NotFound(t *testing.T) {
	st := &stubStore{byID: map[int64]*domain.Execution{}}
	h := NewExecutionHandlers(st, &stubEnricher{}, nil, &stubFillApplier{}, nil, nil)

	req := withVars(httptest.NewRequest(http.MethodGet, "/execution/99", nil), map[string]string{"id": "99"})
	rec := httptest.NewRecorder()
	h.GetExecution(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetExecution_InvalidID(t *testing.T) {
	h := NewExecutionHandlers(&stubStore{}, &stubEnricher{}, nil, &stubFillApplier{}, nil, nil)

	req := withVars(httptest.NewRequest(http.MethodGet, "/execution/abc", nil), map[string]string{"id": "abc"})
	rec := httptest.NewRecorder()
	h.GetExecution(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListExecutions_Basic(t *testing.T) {
	st := &stubStore{
		pagedRes: []*domain.Execution{{ID: 1, SecurityID: "SEC-1"}, {ID: 2, SecurityID: "SEC-2"}},
		pagedTot: 2,
	}
	h := NewExecutionHandlers(st, &stubEnricher{ticker: "X"}, nil, &stubFillApplier{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/executions?limit=10", nil)
	rec := httptest.NewRecorder()
	h.ListExecutions(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ExecutionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Content, 2)
	assert.Equal(t, 2, resp.Pagination.TotalElements)
}

func TestListExecutions_TickerNotFoundReturnsEmpty(t *testing.T) {
	st := &stubStore{pagedRes: []*domain.Execution{{ID: 1}}, pagedTot: 1}
	h := NewExecutionHandlers(st, &stubEnricher{foundOK: false}, nil, &stubFillApplier{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/executions?ticker=NOPE", nil)
	rec := httptest.NewRecorder()
	h.ListExecutions(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ExecutionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Content)
}

func TestUpdateFill_Success(t *testing.T) {
	updated := &domain.Execution{ID: 1, SecurityID: "SEC-1", Quantity: decimal.NewFromInt(100), QuantityFilled: decimal.NewFromInt(50)}
	h := NewExecutionHandlers(&stubStore{}, &stubEnricher{ticker: "ACME"}, nil, &stubFillApplier{result: updated}, nil, nil)

	body, _ := json.Marshal(domain.FillRequest{QuantityFilled: decimal.NewFromInt(50), Version: 1})
	req := withVars(httptest.NewRequest(http.MethodPut, "/execution/1", bytes.NewReader(body)), map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.UpdateFill(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateFill_VersionConflict(t *testing.T) {
	h := NewExecutionHandlers(&stubStore{}, &stubEnricher{}, nil, &stubFillApplier{err: &apperrors.VersionConflict{ExpectedVersion: 1, ActualVersion: 2}}, nil, nil)

	body, _ := json.Marshal(domain.FillRequest{QuantityFilled: decimal.NewFromInt(50), Version: 1})
	req := withVars(httptest.NewRequest(http.MethodPut, "/execution/1", bytes.NewReader(body)), map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.UpdateFill(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateFill_NotFound(t *testing.T) {
	h := NewExecutionHandlers(&stubStore{}, &stubEnricher{}, nil, &stubFillApplier{err: pgx.ErrNoRows}, nil, nil)

	body, _ := json.Marshal(domain.FillRequest{QuantityFilled: decimal.NewFromInt(50), Version: 1})
	req := withVars(httptest.NewRequest(http.MethodPut, "/execution/7", bytes.NewReader(body)), map[string]string{"id": "7"})
	rec := httptest.NewRecorder()
	h.UpdateFill(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseSortBy(t *testing.T) {
	assert.Equal(t, []domain.SortTerm{{Field: "id", Ascending: true}}, parseSortBy(""))
	assert.Equal(t, []domain.SortTerm{{Field: "id", Ascending: true}}, parseSortBy("bogus"))
	assert.Equal(t, []domain.SortTerm{{Field: "quantity", Ascending: false}}, parseSortBy("-quantity"))
	assert.Equal(t, []domain.SortTerm{
		{Field: "destination", Ascending: true},
		{Field: "quantity", Ascending: false},
	}, parseSortBy("destination,-quantity"))
}
