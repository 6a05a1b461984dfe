// Package apperrors defines the typed error kinds classified and handled
// across the execution pipeline, plus the classifier that maps driver-level
// errors (pgx, network) onto them.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ValidationError carries a machine-readable code and the offending field.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("Code: %s Field: %s %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("Code: %s Field: %s", e.Code, e.Field)
}

// Validation error codes per the bulk-processor rules.
const (
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	CodeFieldTooLong         = "FIELD_TOO_LONG"
	CodeInvalidEnumValue     = "INVALID_ENUM_VALUE"
	CodeInvalidValue         = "INVALID_VALUE"
	CodeNullRequest          = "NULL_REQUEST"
)

// VersionConflict is raised by updateWithVersion when the expected version
// does not match the stored one.
type VersionConflict struct {
	ID              int64
	ExpectedVersion int
	ActualVersion   int
}

func (e *VersionConflict) Error() string {
	return fmt.Sprintf("version conflict on execution %d: expected %d, actual %d", e.ID, e.ExpectedVersion, e.ActualVersion)
}

// TransientDatabaseError wraps a retryable persistence failure (deadlock,
// timeout, connection loss).
type TransientDatabaseError struct {
	Op  string
	Err error
}

func (e *TransientDatabaseError) Error() string { return fmt.Sprintf("transient database error during %s: %v", e.Op, e.Err) }
func (e *TransientDatabaseError) Unwrap() error  { return e.Err }

// NonTransientDatabaseError wraps a persistence failure that must not be
// retried (constraint violation, value-range error).
type NonTransientDatabaseError struct {
	Op  string
	Err error
}

func (e *NonTransientDatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}
func (e *NonTransientDatabaseError) Unwrap() error { return e.Err }

// CriticalBulkFailure marks an entire batch as failed when the bulk stage
// throws uncaught.
type CriticalBulkFailure struct {
	Err error
}

func (e *CriticalBulkFailure) Error() string { return fmt.Sprintf("critical bulk failure: %v", e.Err) }
func (e *CriticalBulkFailure) Unwrap() error  { return e.Err }

// PublishError never fails the persisted record; it is tracked in metrics
// and may route the message to the dead-letter topic.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string { return fmt.Sprintf("publish to %s failed: %v", e.Topic, e.Err) }
func (e *PublishError) Unwrap() error  { return e.Err }

// OutboundReconciliationError is swallowed by callers; it exists so
// reconciliation failures are still logged and counted with a stable type.
type OutboundReconciliationError struct {
	Operation string
	Err       error
}

func (e *OutboundReconciliationError) Error() string {
	return fmt.Sprintf("outbound reconciliation %s failed: %v", e.Operation, e.Err)
}
func (e *OutboundReconciliationError) Unwrap() error { return e.Err }

// Retryable Postgres SQLSTATE codes: deadlock, lock timeout, connection
// loss, admin shutdown, crash shutdown, cannot connect now.
var retryablePgCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"08006": true, // connection_failure
	"08003": true, // connection_does_not_exist
	"08000": true, // connection_exception
	"57014": true, // query_canceled (statement_timeout)
	"55P03": true, // lock_not_available
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// ClassifyDatabaseError wraps a raw driver error as Transient or
// NonTransient based on its Postgres SQLSTATE code, or on context/network
// signatures for errors that never reached the server.
func ClassifyDatabaseError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if retryablePgCodes[pgErr.Code] {
			return &TransientDatabaseError{Op: op, Err: err}
		}
		return &NonTransientDatabaseError{Op: op, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransientDatabaseError{Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientDatabaseError{Op: op, Err: err}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "deadlock") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection") || strings.Contains(msg, "closed pool") {
		return &TransientDatabaseError{Op: op, Err: err}
	}

	return &NonTransientDatabaseError{Op: op, Err: err}
}

// IsTransient reports whether err (or something it wraps) is a
// TransientDatabaseError.
func IsTransient(err error) bool {
	var t *TransientDatabaseError
	return errors.As(err, &t)
}
