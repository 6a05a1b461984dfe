package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	apierrors "github.com/vitaliisemenov/execution-bridge/internal/api/errors"
	"github.com/vitaliisemenov/execution-bridge/internal/apperrors"
	"github.com/vitaliisemenov/execution-bridge/internal/batch"
	"github.com/vitaliisemenov/execution-bridge/internal/domain"
)

// maxBatchSize is the §4.7 request-level rejection threshold: a batch
// submission larger than this is rejected outright, before C4 ever sees it.
const maxBatchSize = 100

// executionLister is the read surface of *store.Store the handlers need.
type executionLister interface {
	FindByID(ctx context.Context, id int64) (*domain.Execution, error)
	FindPaged(ctx context.Context, filter domain.Filter, page domain.Page) ([]*domain.Execution, int, error)
}

// securityResolver mirrors internal/batch's narrow enrichment dependency.
type securityResolver interface {
	Resolve(ctx context.Context, securityID string) domain.Security
	ReverseLookupTicker(ticker string) (string, bool)
}

// batchSizer advises the pipeline's per-request chunk size. *performance.Optimizer
// satisfies this; a fixed-size stand-in is used when the optimizer is disabled.
type batchSizer interface {
	CurrentBatchSize() int
}

// fixedBatchSize is a batchSizer that never adjusts, used when no
// performance.Optimizer is wired in.
type fixedBatchSize int

func (f fixedBatchSize) CurrentBatchSize() int { return int(f) }

// fillApplier is the subset of *batch.FillApplier the handlers need.
type fillApplier interface {
	Apply(ctx context.Context, id int64, req domain.FillRequest) (*domain.Execution, error)
}

// ExecutionHandlers implements the five HTTP endpoints of the execution
// bridge: list, get, create, batch-create, and fill.
type ExecutionHandlers struct {
	store    executionLister
	enricher securityResolver
	pipeline *batch.Pipeline
	fill     fillApplier
	sizer    batchSizer
	logger   *slog.Logger
}

// NewExecutionHandlers wires the HTTP surface to the batch pipeline, the
// store's read path, and the fill applier. sizer may be nil, in which case
// batches are split at a fixed size of 500.
func NewExecutionHandlers(st executionLister, enricher securityResolver, pipeline *batch.Pipeline, fillApp fillApplier, sizer batchSizer, logger *slog.Logger) *ExecutionHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	if sizer == nil {
		sizer = fixedBatchSize(500)
	}
	return &ExecutionHandlers{store: st, enricher: enricher, pipeline: pipeline, fill: fillApp, sizer: sizer, logger: logger}
}

// ListExecutions handles GET /executions.
func (h *ExecutionHandlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page := domain.Page{Offset: 0, Limit: 20}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			page.Offset = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page.Limit = n
		}
	}
	if page.Limit > 100 {
		page.Limit = 100
	}
	page.Sort = parseSortBy(q.Get("sortBy"))

	filter := domain.Filter{}
	if v := q.Get("executionStatus"); v != "" {
		filter.ExecutionStatus = &v
	}
	if v := q.Get("tradeType"); v != "" {
		filter.TradeType = &v
	}
	if v := q.Get("destination"); v != "" {
		filter.Destination = &v
	}
	if ticker := q.Get("ticker"); ticker != "" {
		securityID, found := h.enricher.ReverseLookupTicker(ticker)
		if !found {
			writeJSON(w, http.StatusOK, ExecutionListResponse{Content: []domain.ExecutionDTO{}, Pagination: buildPagination(page.Offset, page.Limit, 0)})
			return
		}
		filter.SecurityID = &securityID
	}

	rows, total, err := h.store.FindPaged(ctx, filter, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	content := make([]domain.ExecutionDTO, 0, len(rows))
	for _, e := range rows {
		sec := h.enricher.Resolve(ctx, e.SecurityID)
		content = append(content, e.ToDTO(sec))
	}

	writeJSON(w, http.StatusOK, ExecutionListResponse{
		Content:    content,
		Pagination: buildPagination(page.Offset, page.Limit, total),
	})
}

// parseSortBy parses a comma-separated sortBy query parameter; a leading
// "-" marks descending order. Unknown fields are dropped. An empty or
// fully-unknown input falls back to id ascending.
func parseSortBy(raw string) []domain.SortTerm {
	if raw == "" {
		return []domain.SortTerm{{Field: "id", Ascending: true}}
	}
	var terms []domain.SortTerm
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		asc := true
		if strings.HasPrefix(part, "-") {
			asc = false
			part = part[1:]
		}
		if !domain.ValidSortFields[part] {
			continue
		}
		terms = append(terms, domain.SortTerm{Field: part, Ascending: asc})
	}
	if len(terms) == 0 {
		return []domain.SortTerm{{Field: "id", Ascending: true}}
	}
	return terms
}

// GetExecution handles GET /execution/{id}.
func (h *ExecutionHandlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r)
	if err != nil {
		apierrors.WriteError(w, apierrors.ValidationError("id must be a positive integer").WithRequestID(requestIDOf(r)))
		return
	}

	e, err := h.store.FindByID(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) {
		apierrors.WriteError(w, apierrors.NotFoundError("execution").WithRequestID(requestIDOf(r)))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sec := h.enricher.Resolve(r.Context(), e.SecurityID)
	writeJSON(w, http.StatusOK, e.ToDTO(sec))
}

// CreateExecution handles POST /executions: a single-item batch through the
// same pipeline that backs the bulk path, so the two never drift apart.
func (h *ExecutionHandlers) CreateExecution(w http.ResponseWriter, r *http.Request) {
	var req domain.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteError(w, apierrors.ValidationError("malformed JSON body").WithRequestID(requestIDOf(r)))
		return
	}

	result := h.pipeline.Process(r.Context(), []*domain.ExecutionRequest{&req}, 1)
	item := result.Results[0]

	if !item.Success {
		apierrors.WriteError(w, apierrors.ValidationError(itemFailureMessage(item)).WithRequestID(requestIDOf(r)))
		return
	}

	sec := h.enricher.Resolve(r.Context(), item.Execution.SecurityID)
	writeJSON(w, http.StatusCreated, item.Execution.ToDTO(sec))
}

// CreateExecutionBatch handles POST /executions/batch.
func (h *ExecutionHandlers) CreateExecutionBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []*domain.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		apierrors.WriteError(w, apierrors.ValidationError("malformed JSON body").WithRequestID(requestIDOf(r)))
		return
	}
	if len(reqs) > maxBatchSize {
		apierrors.WriteError(w, apierrors.ValidationError("batch exceeds maximum size of 100").WithRequestID(requestIDOf(r)))
		return
	}

	result := h.pipeline.Process(r.Context(), reqs, h.sizer.CurrentBatchSize())

	resp := BatchExecutionResponseDTO{
		Status:  batchStatus(result.StatusCode),
		Results: make([]BatchItemResultDTO, len(result.Results)),
	}
	for i, item := range result.Results {
		if item.Success {
			sec := h.enricher.Resolve(r.Context(), item.Execution.SecurityID)
			dto := item.Execution.ToDTO(sec)
			resp.Results[i] = BatchItemResultDTO{Status: "SUCCESS", Execution: &dto}
			continue
		}
		resp.Results[i] = BatchItemResultDTO{Status: "FAILED", Message: itemFailureMessage(item)}
	}

	writeJSON(w, result.StatusCode, resp)
}

func itemFailureMessage(item batch.ItemResult) string {
	if item.Validation != nil {
		return item.Validation.Error()
	}
	if item.DBError != nil {
		return "Database error: " + item.DBError.Error()
	}
	return "unknown failure"
}

func batchStatus(statusCode int) string {
	switch statusCode {
	case http.StatusCreated:
		return "SUCCESS"
	case http.StatusBadRequest:
		return "FAILED"
	default:
		return "PARTIAL_SUCCESS"
	}
}

// UpdateFill handles PUT /execution/{id}.
func (h *ExecutionHandlers) UpdateFill(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r)
	if err != nil {
		apierrors.WriteError(w, apierrors.ValidationError("id must be a positive integer").WithRequestID(requestIDOf(r)))
		return
	}

	var req domain.FillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteError(w, apierrors.ValidationError("malformed JSON body").WithRequestID(requestIDOf(r)))
		return
	}

	updated, err := h.fill.Apply(r.Context(), id, req)
	if err != nil {
		var conflict *apperrors.VersionConflict
		if errors.As(err, &conflict) {
			apierrors.WriteError(w, apierrors.ConflictError("version conflict").WithRequestID(requestIDOf(r)))
			return
		}
		if errors.Is(err, pgx.ErrNoRows) {
			apierrors.WriteError(w, apierrors.NotFoundError("execution").WithRequestID(requestIDOf(r)))
			return
		}
		h.writeError(w, r, err)
		return
	}

	sec := h.enricher.Resolve(r.Context(), updated.SecurityID)
	writeJSON(w, http.StatusOK, updated.ToDTO(sec))
}

func (h *ExecutionHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("api: request failed", "path", r.URL.Path, "error", err)
	apierrors.WriteError(w, apierrors.InternalError("internal error processing request").WithRequestID(requestIDOf(r)))
}

func idFromPath(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	return strconv.ParseInt(raw, 10, 64)
}

func requestIDOf(r *http.Request) string {
	return w3cRequestID(r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
