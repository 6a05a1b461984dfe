// Package batch implements the Bulk Processor (C4), Error Recovery (C5),
// Batch Pipeline orchestrator (C7), and Single-Update Path (C10): the
// execution-ingestion surface between the HTTP handlers and the store.
package batch

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vitaliisemenov/execution-bridge/internal/apperrors"
	"github.com/vitaliisemenov/execution-bridge/internal/domain"
)

// ValidateRequest checks one ExecutionRequest against the field-presence,
// length, and enum rules, returning the first violation found or nil. A nil
// request itself is a NULL_REQUEST violation.
func ValidateRequest(req *domain.ExecutionRequest) *apperrors.ValidationError {
	if req == nil {
		return &apperrors.ValidationError{Code: apperrors.CodeNullRequest, Field: "request"}
	}

	if req.ExecutionStatus == nil || *req.ExecutionStatus == "" {
		return &apperrors.ValidationError{Code: apperrors.CodeMissingRequiredField, Field: "executionStatus"}
	}
	if len(*req.ExecutionStatus) > domain.MaxExecutionStatusLen {
		return &apperrors.ValidationError{Code: apperrors.CodeFieldTooLong, Field: "executionStatus"}
	}
	if _, ok := domain.NormalizeExecutionStatus(*req.ExecutionStatus); !ok {
		return &apperrors.ValidationError{Code: apperrors.CodeInvalidEnumValue, Field: "executionStatus"}
	}

	if req.TradeType == nil || *req.TradeType == "" {
		return &apperrors.ValidationError{Code: apperrors.CodeMissingRequiredField, Field: "tradeType"}
	}
	if len(*req.TradeType) > domain.MaxTradeTypeLen {
		return &apperrors.ValidationError{Code: apperrors.CodeFieldTooLong, Field: "tradeType"}
	}
	if !domain.TradeType(*req.TradeType).Valid() {
		return &apperrors.ValidationError{Code: apperrors.CodeInvalidEnumValue, Field: "tradeType"}
	}

	if req.Destination == nil || *req.Destination == "" {
		return &apperrors.ValidationError{Code: apperrors.CodeMissingRequiredField, Field: "destination"}
	}
	if len(*req.Destination) > domain.MaxDestinationLen {
		return &apperrors.ValidationError{Code: apperrors.CodeFieldTooLong, Field: "destination"}
	}

	if req.SecurityID == nil || *req.SecurityID == "" {
		return &apperrors.ValidationError{Code: apperrors.CodeMissingRequiredField, Field: "securityId"}
	}
	if len(*req.SecurityID) > domain.SecurityIDLen {
		return &apperrors.ValidationError{Code: apperrors.CodeFieldTooLong, Field: "securityId"}
	}

	if req.Quantity == nil {
		return &apperrors.ValidationError{Code: apperrors.CodeMissingRequiredField, Field: "quantity"}
	}
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return &apperrors.ValidationError{Code: apperrors.CodeInvalidValue, Field: "quantity", Message: "must be positive"}
	}

	if req.LimitPrice != nil && req.LimitPrice.LessThanOrEqual(decimal.Zero) {
		return &apperrors.ValidationError{Code: apperrors.CodeInvalidValue, Field: "limitPrice", Message: "must be positive"}
	}

	if req.ClientOrderID != nil && len(*req.ClientOrderID) > domain.MaxClientOrderIDLen {
		return &apperrors.ValidationError{Code: apperrors.CodeFieldTooLong, Field: "clientOrderId"}
	}

	return nil
}

// ToExecution applies request defaults and converts a validated request
// into a persistable Execution row. Callers must have already confirmed
// ValidateRequest(req) == nil.
func ToExecution(req *domain.ExecutionRequest, receivedAt time.Time) *domain.Execution {
	status, _ := domain.NormalizeExecutionStatus(*req.ExecutionStatus)

	e := &domain.Execution{
		ExecutionStatus:   status,
		TradeType:         domain.TradeType(*req.TradeType),
		Destination:       *req.Destination,
		SecurityID:        *req.SecurityID,
		Quantity:          *req.Quantity,
		QuantityFilled:    decimal.Zero,
		ReceivedTimestamp: receivedAt,
		ClientOrderID:     req.ClientOrderID,
	}
	if req.LimitPrice != nil {
		lp := *req.LimitPrice
		e.LimitPrice = &lp
	}
	return e
}

// SplitBatch divides n items into contiguous chunks of at most size,
// returning the [start, end) bounds of each chunk. The pipeline uses it to
// bound a single bulk-insert statement.
func SplitBatch(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	if n == 0 {
		return nil
	}
	var chunks [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, [2]int{start, end})
	}
	return chunks
}
