// Package store is the Execution Store (C1): typed row persistence with
// bulk insert, bulk timestamp update, optimistic-version update, and
// filtered pagination, backed by a pgxpool.Pool.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitaliisemenov/execution-bridge/internal/apperrors"
	"github.com/vitaliisemenov/execution-bridge/internal/domain"
	"github.com/vitaliisemenov/execution-bridge/pkg/metrics"
)

// Store is the pgxpool-backed Execution Store.
type Store struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *metrics.RepositoryMetrics
}

// New builds a Store over an already-connected pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:    pool,
		logger:  logger,
		metrics: metrics.DefaultRegistry().Infra().Repository,
	}
}

func (s *Store) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.QueryDurationSeconds.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.QueryErrorsTotal.WithLabelValues(operation, classifyPgErrorType(err)).Inc()
	}
}

func classifyPgErrorType(err error) string {
	if errors.Is(err, pgx.ErrNoRows) {
		return "not_found"
	}
	if apperrors.IsTransient(apperrors.ClassifyDatabaseError("query", err)) {
		return "transient"
	}
	return "internal"
}

// Insert persists a single row, assigning id and version=1.
func (s *Store) Insert(ctx context.Context, e *domain.Execution) (*domain.Execution, error) {
	start := time.Now()
	const q = `INSERT INTO execution
		(execution_status, trade_type, destination, security_id, quantity, limit_price,
		 received_timestamp, quantity_filled, average_price, version, client_order_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,$10)
		RETURNING id, version`

	row := s.pool.QueryRow(ctx, q,
		e.ExecutionStatus, e.TradeType, e.Destination, e.SecurityID, e.Quantity, e.LimitPrice,
		e.ReceivedTimestamp, e.QuantityFilled, e.AveragePrice, e.ClientOrderID)

	err := row.Scan(&e.ID, &e.Version)
	s.observe("insert", start, err)
	if err != nil {
		return nil, apperrors.ClassifyDatabaseError("insert", err)
	}
	return e, nil
}

// BulkInsert persists all rows in a single multi-row statement, inside a
// transaction, returning an ordered vector aligned with input order.
// All-or-nothing: a failure anywhere raises a single error and nothing is
// committed.
func (s *Store) BulkInsert(ctx context.Context, rows []*domain.Execution) ([]*domain.Execution, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.observe("bulk_insert", start, err)
		return nil, apperrors.ClassifyDatabaseError("bulk_insert_begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*10)
	argN := 0
	for _, e := range rows {
		placeholders := make([]string, 10)
		for i := 0; i < 10; i++ {
			argN++
			placeholders[i] = fmt.Sprintf("$%d", argN)
		}
		values = append(values, "("+joinComma(placeholders)+",1)")
		args = append(args,
			e.ExecutionStatus, e.TradeType, e.Destination, e.SecurityID, e.Quantity, e.LimitPrice,
			e.ReceivedTimestamp, e.QuantityFilled, e.AveragePrice, e.ClientOrderID)
	}

	q := `INSERT INTO execution
		(execution_status, trade_type, destination, security_id, quantity, limit_price,
		 received_timestamp, quantity_filled, average_price, client_order_id, version)
		VALUES ` + joinComma(values) + `
		RETURNING id, version`

	rowsResult, err := tx.Query(ctx, q, args...)
	if err != nil {
		s.observe("bulk_insert", start, err)
		return nil, apperrors.ClassifyDatabaseError("bulk_insert", err)
	}

	i := 0
	for rowsResult.Next() {
		if i >= len(rows) {
			break
		}
		if err := rowsResult.Scan(&rows[i].ID, &rows[i].Version); err != nil {
			rowsResult.Close()
			s.observe("bulk_insert", start, err)
			return nil, apperrors.ClassifyDatabaseError("bulk_insert_scan", err)
		}
		i++
	}
	rowsResult.Close()
	if err := rowsResult.Err(); err != nil {
		s.observe("bulk_insert", start, err)
		return nil, apperrors.ClassifyDatabaseError("bulk_insert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		s.observe("bulk_insert", start, err)
		return nil, apperrors.ClassifyDatabaseError("bulk_insert_commit", err)
	}

	s.observe("bulk_insert", start, nil)
	return rows, nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// UpdateWithVersion applies mutations and commits only if expectedVersion
// matches the stored version, returning apperrors.VersionConflict otherwise.
func (s *Store) UpdateWithVersion(ctx context.Context, id int64, mutate func(*domain.Execution), expectedVersion int) (*domain.Execution, error) {
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.ClassifyDatabaseError("update_with_version_begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	e, err := scanOne(ctx, tx, `SELECT `+selectColumns+` FROM execution WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		s.observe("update_with_version", start, err)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, apperrors.ClassifyDatabaseError("update_with_version_select", err)
	}

	if e.Version != expectedVersion {
		s.observe("update_with_version", start, nil)
		return nil, &apperrors.VersionConflict{ID: id, ExpectedVersion: expectedVersion, ActualVersion: e.Version}
	}

	mutate(e)
	e.Version = expectedVersion + 1

	const upd = `UPDATE execution SET execution_status=$1, quantity_filled=$2, average_price=$3,
		sent_timestamp=$4, trade_service_execution_id=$5, last_error=$6, version=$7
		WHERE id=$8 AND version=$9`
	tag, err := tx.Exec(ctx, upd, e.ExecutionStatus, e.QuantityFilled, e.AveragePrice,
		e.SentTimestamp, e.TradeServiceExecutionID, e.LastError, e.Version, id, expectedVersion)
	if err != nil {
		s.observe("update_with_version", start, err)
		return nil, apperrors.ClassifyDatabaseError("update_with_version", err)
	}
	if tag.RowsAffected() == 0 {
		s.observe("update_with_version", start, nil)
		return nil, &apperrors.VersionConflict{ID: id, ExpectedVersion: expectedVersion, ActualVersion: e.Version}
	}

	if err := tx.Commit(ctx); err != nil {
		s.observe("update_with_version", start, err)
		return nil, apperrors.ClassifyDatabaseError("update_with_version_commit", err)
	}

	s.observe("update_with_version", start, nil)
	return e, nil
}

// FindByID returns a single row, or pgx.ErrNoRows if it does not exist.
func (s *Store) FindByID(ctx context.Context, id int64) (*domain.Execution, error) {
	start := time.Now()
	e, err := scanOne(ctx, s.pool, `SELECT `+selectColumns+` FROM execution WHERE id = $1`, id)
	s.observe("find_by_id", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, apperrors.ClassifyDatabaseError("find_by_id", err)
	}
	return e, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func scanOne(ctx context.Context, q querier, sql string, args ...interface{}) (*domain.Execution, error) {
	return scanRow(q.QueryRow(ctx, sql, args...))
}

func scanRow(row pgx.Row) (*domain.Execution, error) {
	e := &domain.Execution{}
	err := row.Scan(&e.ID, &e.ExecutionStatus, &e.TradeType, &e.Destination, &e.SecurityID, &e.Quantity,
		&e.LimitPrice, &e.ReceivedTimestamp, &e.SentTimestamp, &e.TradeServiceExecutionID,
		&e.QuantityFilled, &e.AveragePrice, &e.Version, &e.ClientOrderID, &e.LastError)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// FindPaged returns rows matching filter/sort, bounded by page, alongside
// the total matching count.
func (s *Store) FindPaged(ctx context.Context, filter domain.Filter, page domain.Page) ([]*domain.Execution, int, error) {
	page = clampPage(page)
	start := time.Now()

	qb := newQueryBuilder()
	qb.applyFilter(filter)
	for _, t := range page.Sort {
		qb.addOrderBy(t)
	}
	qb.setLimit(page.Limit)
	qb.setOffset(page.Offset)

	sql, args := qb.build()
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		s.observe("find_paged", start, err)
		return nil, 0, apperrors.ClassifyDatabaseError("find_paged", err)
	}
	defer rows.Close()

	var results []*domain.Execution
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			s.observe("find_paged", start, err)
			return nil, 0, apperrors.ClassifyDatabaseError("find_paged_scan", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		s.observe("find_paged", start, err)
		return nil, 0, apperrors.ClassifyDatabaseError("find_paged", err)
	}

	countQB := newQueryBuilder()
	countQB.applyFilter(filter)
	countSQL, countArgs := countQB.buildCount()
	var total int
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		s.observe("find_paged", start, err)
		return nil, 0, apperrors.ClassifyDatabaseError("find_paged_count", err)
	}

	s.metrics.QueryResultsTotal.WithLabelValues("find_paged").Observe(float64(len(results)))
	s.observe("find_paged", start, nil)
	return results, total, nil
}

// FindByClientOrderID looks up a row previously ingested with the given
// idempotency token. The POST path does not call it and does not
// deduplicate.
func (s *Store) FindByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Execution, error) {
	start := time.Now()
	e, err := scanOne(ctx, s.pool, `SELECT `+selectColumns+` FROM execution WHERE client_order_id = $1`, clientOrderID)
	s.observe("find_by_client_order_id", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, apperrors.ClassifyDatabaseError("find_by_client_order_id", err)
	}
	return e, nil
}
