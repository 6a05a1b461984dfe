package batch

import (
	"context"
	"log/slog"

	"github.com/vitaliisemenov/execution-bridge/internal/domain"
	"github.com/vitaliisemenov/execution-bridge/internal/tradeclient"
)

// fillStore is the subset of *store.Store needed to apply a single fill.
type fillStore interface {
	UpdateWithVersion(ctx context.Context, id int64, mutate func(*domain.Execution), expectedVersion int) (*domain.Execution, error)
}

// FillApplier is the Single-Update Path (C10): it applies a fill locally
// under optimistic concurrency, then kicks off an async, best-effort
// reconciliation call to the trade service. Reconciliation failures never
// surface to the HTTP caller.
type FillApplier struct {
	store  fillStore
	trade  *tradeclient.Client
	logger *slog.Logger
}

// NewFillApplier builds a FillApplier.
func NewFillApplier(st fillStore, trade *tradeclient.Client, logger *slog.Logger) *FillApplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &FillApplier{store: st, trade: trade, logger: logger}
}

// Apply updates quantityFilled/averagePrice/derived status for id, returning
// the updated row or *apperrors.VersionConflict if expectedVersion is stale.
// On success it fires the trade-service reconciliation call in the
// background without waiting for it.
func (a *FillApplier) Apply(ctx context.Context, id int64, req domain.FillRequest) (*domain.Execution, error) {
	updated, err := a.store.UpdateWithVersion(ctx, id, func(e *domain.Execution) {
		e.QuantityFilled = req.QuantityFilled
		e.AveragePrice = req.AveragePrice
		e.ExecutionStatus = e.DeriveStatus()
	}, req.Version)
	if err != nil {
		return nil, err
	}

	if updated.TradeServiceExecutionID != nil && a.trade != nil {
		go a.trade.ReportFill(context.WithoutCancel(ctx), *updated.TradeServiceExecutionID, updated.QuantityFilled, updated.AveragePrice, updated.Version)
	}

	return updated, nil
}
