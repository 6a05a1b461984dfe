package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vitaliisemenov/execution-bridge/internal/apperrors"
	"github.com/vitaliisemenov/execution-bridge/internal/domain"
)

// setupTestPool starts a disposable postgres container, creates the
// execution table, and returns a connected pool.
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("execution_bridge_test"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(10*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	const schema = `
	CREATE TABLE execution (
		id                          BIGSERIAL PRIMARY KEY,
		execution_status            VARCHAR(16)     NOT NULL,
		trade_type                  VARCHAR(16)     NOT NULL,
		destination                 VARCHAR(64)     NOT NULL,
		security_id                 VARCHAR(64)     NOT NULL,
		quantity                    NUMERIC(20, 6)  NOT NULL,
		limit_price                 NUMERIC(20, 6),
		received_timestamp          TIMESTAMPTZ     NOT NULL DEFAULT now(),
		sent_timestamp              TIMESTAMPTZ,
		trade_service_execution_id  BIGINT,
		quantity_filled             NUMERIC(20, 6)  NOT NULL DEFAULT 0,
		average_price               NUMERIC(20, 6),
		version                     INTEGER         NOT NULL DEFAULT 0,
		client_order_id             VARCHAR(64),
		last_error                  TEXT
	);`
	_, err = pool.Exec(ctx, schema)
	require.NoError(t, err)

	return pool
}

func sampleExecution() *domain.Execution {
	return &domain.Execution{
		ExecutionStatus:   domain.StatusNew,
		TradeType:         domain.TradeBuy,
		Destination:       "NYSE",
		SecurityID:        "SEC-1",
		Quantity:          decimal.NewFromInt(100),
		ReceivedTimestamp: time.Now().UTC().Truncate(time.Microsecond),
		QuantityFilled:    decimal.Zero,
	}
}

func TestStore_InsertAndFindByID(t *testing.T) {
	pool := setupTestPool(t)
	s := New(pool, nil)
	ctx := context.Background()

	e := sampleExecution()
	inserted, err := s.Insert(ctx, e)
	require.NoError(t, err)
	assert.NotZero(t, inserted.ID)
	assert.Equal(t, 1, inserted.Version)

	found, err := s.FindByID(ctx, inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, found.ID)
	assert.True(t, found.Quantity.Equal(e.Quantity))

	_, err = s.FindByID(ctx, inserted.ID+999)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestStore_BulkInsert(t *testing.T) {
	pool := setupTestPool(t)
	s := New(pool, nil)
	ctx := context.Background()

	rows := []*domain.Execution{sampleExecution(), sampleExecution(), sampleExecution()}
	inserted, err := s.BulkInsert(ctx, rows)
	require.NoError(t, err)
	require.Len(t, inserted, 3)
	for _, e := range inserted {
		assert.NotZero(t, e.ID)
		assert.Equal(t, 1, e.Version)
	}
}

func TestStore_BulkInsert_Empty(t *testing.T) {
	pool := setupTestPool(t)
	s := New(pool, nil)

	rows, err := s.BulkInsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestStore_UpdateWithVersion(t *testing.T) {
	pool := setupTestPool(t)
	s := New(pool, nil)
	ctx := context.Background()

	e := sampleExecution()
	inserted, err := s.Insert(ctx, e)
	require.NoError(t, err)

	updated, err := s.UpdateWithVersion(ctx, inserted.ID, func(e *domain.Execution) {
		e.QuantityFilled = decimal.NewFromInt(50)
		e.ExecutionStatus = e.DeriveStatus()
	}, inserted.Version)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartial, updated.ExecutionStatus)
	assert.Equal(t, inserted.Version+1, updated.Version)

	_, err = s.UpdateWithVersion(ctx, inserted.ID, func(e *domain.Execution) {
		e.QuantityFilled = decimal.NewFromInt(100)
	}, inserted.Version)
	var conflict *apperrors.VersionConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, inserted.Version, conflict.ExpectedVersion)
}

func TestStore_FindPaged(t *testing.T) {
	pool := setupTestPool(t)
	s := New(pool, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, sampleExecution())
		require.NoError(t, err)
	}

	page := domain.Page{Offset: 0, Limit: 2, Sort: []domain.SortTerm{{Field: "id", Ascending: true}}}
	rows, total, err := s.FindPaged(ctx, domain.Filter{}, page)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, rows, 2)
	assert.True(t, rows[0].ID < rows[1].ID)
}

func TestStore_FindPaged_FilterByStatus(t *testing.T) {
	pool := setupTestPool(t)
	s := New(pool, nil)
	ctx := context.Background()

	newOne := sampleExecution()
	_, err := s.Insert(ctx, newOne)
	require.NoError(t, err)

	filled := sampleExecution()
	filled.ExecutionStatus = domain.StatusFull
	_, err = s.Insert(ctx, filled)
	require.NoError(t, err)

	status := string(domain.StatusFull)
	rows, total, err := s.FindPaged(ctx, domain.Filter{ExecutionStatus: &status}, domain.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StatusFull, rows[0].ExecutionStatus)
}

func TestStore_FindByClientOrderID(t *testing.T) {
	pool := setupTestPool(t)
	s := New(pool, nil)
	ctx := context.Background()

	e := sampleExecution()
	token := "client-order-1"
	e.ClientOrderID = &token
	inserted, err := s.Insert(ctx, e)
	require.NoError(t, err)

	found, err := s.FindByClientOrderID(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, found.ID)

	_, err = s.FindByClientOrderID(ctx, "does-not-exist")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestStore_WithTx_BulkUpdateSentTimestamp(t *testing.T) {
	pool := setupTestPool(t)
	s := New(pool, nil)
	ctx := context.Background()

	e1, err := s.Insert(ctx, sampleExecution())
	require.NoError(t, err)
	e2, err := s.Insert(ctx, sampleExecution())
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	err = s.WithTx(ctx, func(ctx context.Context, tx TxHandle) error {
		count, err := tx.BulkUpdateSentTimestamp(ctx, []int64{e1.ID, e2.ID}, now)
		if err != nil {
			return err
		}
		if count != 2 {
			return ErrBulkUpdateCountMismatch(2, count)
		}
		return nil
	})
	require.NoError(t, err)

	found, err := s.FindByID(ctx, e1.ID)
	require.NoError(t, err)
	require.NotNil(t, found.SentTimestamp)
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	pool := setupTestPool(t)
	s := New(pool, nil)
	ctx := context.Background()

	e, err := s.Insert(ctx, sampleExecution())
	require.NoError(t, err)

	boom := assert.AnError
	err = s.WithTx(ctx, func(ctx context.Context, tx TxHandle) error {
		if _, err := tx.BulkUpdateSentTimestamp(ctx, []int64{e.ID}, time.Now()); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	found, err := s.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, found.SentTimestamp)
}
