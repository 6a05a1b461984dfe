// Package domain holds the Execution aggregate and the DTOs used at the
// HTTP and message-bus boundaries.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus is the lifecycle state of an Execution row.
type ExecutionStatus string

const (
	StatusNew       ExecutionStatus = "NEW"
	StatusPending   ExecutionStatus = "PENDING"
	StatusPartial   ExecutionStatus = "PART"
	StatusFull      ExecutionStatus = "FULL"
	StatusCancelled ExecutionStatus = "CANCELLED"
	StatusRejected  ExecutionStatus = "REJECTED"
)

// validExecutionStatuses is the fixed enum domain accepted on ingress.
// FILLED is accepted as a synonym of FULL but is never emitted.
var validExecutionStatuses = map[ExecutionStatus]bool{
	StatusNew:       true,
	StatusPending:   true,
	StatusPartial:   true,
	StatusFull:      true,
	StatusCancelled: true,
	StatusRejected:  true,
}

// NormalizeExecutionStatus maps ingress synonyms onto the canonical enum.
func NormalizeExecutionStatus(s string) (ExecutionStatus, bool) {
	if s == "FILLED" {
		return StatusFull, true
	}
	st := ExecutionStatus(s)
	return st, validExecutionStatuses[st]
}

// TradeType is the side of an execution.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

func (t TradeType) Valid() bool {
	return t == TradeBuy || t == TradeSell
}

// Field width limits from the persisted schema.
const (
	MaxExecutionStatusLen = 20
	MaxTradeTypeLen       = 10
	MaxDestinationLen     = 20
	SecurityIDLen         = 24
	MaxClientOrderIDLen   = 40
)

// Execution is the persistent row described by the data model.
type Execution struct {
	ID                      int64
	ExecutionStatus         ExecutionStatus
	TradeType               TradeType
	Destination             string
	SecurityID              string
	Quantity                decimal.Decimal
	LimitPrice              *decimal.Decimal
	ReceivedTimestamp       time.Time
	SentTimestamp           *time.Time
	TradeServiceExecutionID *int64
	QuantityFilled          decimal.Decimal
	AveragePrice            *decimal.Decimal
	Version                 int
	ClientOrderID           *string
	LastError               *string
}

// DeriveStatus computes PART/FULL from quantity filled against the total,
// matching the replace-not-increment fill contract.
func (e *Execution) DeriveStatus() ExecutionStatus {
	switch {
	case e.QuantityFilled.GreaterThanOrEqual(e.Quantity):
		return StatusFull
	case e.QuantityFilled.GreaterThan(decimal.Zero):
		return StatusPartial
	default:
		return e.ExecutionStatus
	}
}

// Security is the ephemeral, cache-only enrichment record.
type Security struct {
	SecurityID string
	Ticker     string
}

// SecurityDTO is the wire shape nested inside ExecutionDTO.
type SecurityDTO struct {
	SecurityID string `json:"securityId"`
	Ticker     string `json:"ticker,omitempty"`
}

// ExecutionDTO is the wire representation: decimals as strings at scale 8,
// timestamps as ISO-8601 UTC, and a nested security object rather than a
// raw securityId.
type ExecutionDTO struct {
	ID                      int64       `json:"id"`
	ExecutionStatus         string      `json:"executionStatus"`
	TradeType               string      `json:"tradeType"`
	Destination             string      `json:"destination"`
	Security                SecurityDTO `json:"security"`
	Quantity                string      `json:"quantity"`
	LimitPrice              *string     `json:"limitPrice,omitempty"`
	ReceivedTimestamp       string      `json:"receivedTimestamp"`
	SentTimestamp           *string     `json:"sentTimestamp,omitempty"`
	TradeServiceExecutionID *int64      `json:"tradeServiceExecutionId,omitempty"`
	QuantityFilled          string      `json:"quantityFilled"`
	AveragePrice            *string     `json:"averagePrice,omitempty"`
	Version                 int         `json:"version"`
	ClientOrderID           *string     `json:"clientOrderId,omitempty"`
}

const decimalScale = 8

func formatDecimal(d decimal.Decimal) string {
	return d.StringFixed(decimalScale)
}

// ToDTO renders an Execution plus its resolved security into the wire DTO.
func (e *Execution) ToDTO(sec Security) ExecutionDTO {
	dto := ExecutionDTO{
		ID:                      e.ID,
		ExecutionStatus:         string(e.ExecutionStatus),
		TradeType:               string(e.TradeType),
		Destination:             e.Destination,
		Security:                SecurityDTO{SecurityID: e.SecurityID, Ticker: sec.Ticker},
		Quantity:                formatDecimal(e.Quantity),
		ReceivedTimestamp:       e.ReceivedTimestamp.UTC().Format(time.RFC3339Nano),
		TradeServiceExecutionID: e.TradeServiceExecutionID,
		QuantityFilled:          formatDecimal(e.QuantityFilled),
		Version:                 e.Version,
		ClientOrderID:           e.ClientOrderID,
	}
	if e.LimitPrice != nil {
		s := formatDecimal(*e.LimitPrice)
		dto.LimitPrice = &s
	}
	if e.AveragePrice != nil {
		s := formatDecimal(*e.AveragePrice)
		dto.AveragePrice = &s
	}
	if e.SentTimestamp != nil {
		s := e.SentTimestamp.UTC().Format(time.RFC3339Nano)
		dto.SentTimestamp = &s
	}
	return dto
}

// ExecutionRequest is the inbound POST payload before validation.
type ExecutionRequest struct {
	ExecutionStatus *string          `json:"executionStatus"`
	TradeType       *string          `json:"tradeType"`
	Destination     *string          `json:"destination"`
	SecurityID      *string          `json:"securityId"`
	Quantity        *decimal.Decimal `json:"quantity"`
	LimitPrice      *decimal.Decimal `json:"limitPrice"`
	ClientOrderID   *string          `json:"clientOrderId"`
}

// FillRequest is the inbound PUT fill payload.
type FillRequest struct {
	QuantityFilled decimal.Decimal  `json:"quantityFilled"`
	AveragePrice   *decimal.Decimal `json:"averagePrice"`
	Version        int              `json:"version"`
}

// ValidSortFields enumerates the columns findBySpec/findPaged may sort by.
var ValidSortFields = map[string]bool{
	"id":                true,
	"executionStatus":   true,
	"tradeType":         true,
	"destination":       true,
	"securityId":        true,
	"quantity":          true,
	"receivedTimestamp": true,
	"sentTimestamp":     true,
}

// SortTerm is one parsed element of a sortBy query parameter.
type SortTerm struct {
	Field     string
	Ascending bool
}

// Filter is the AND-of-equality-constraints predicate accepted by
// findBySpec/findPaged.
type Filter struct {
	ID              *int64
	ExecutionStatus *string
	TradeType       *string
	Destination     *string
	SecurityID      *string
}

// Page bounds a findPaged call. Limit is clamped to [1,100] by callers.
type Page struct {
	Offset int
	Limit  int
	Sort   []SortTerm
}
