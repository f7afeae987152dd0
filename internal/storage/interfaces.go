package storage

import (
	"context"

	"solana-threshold-trader/internal/domain"
)

// TradeStore provides access to the trades journal.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// ListByTimeRange retrieves trades executed within [start, end] (inclusive),
	// ordered by executed_at ASC.
	ListByTimeRange(ctx context.Context, start, end int64) ([]*domain.TradeRecord, error)
}

// QuoteObservationStore provides access to quote_observations storage.
type QuoteObservationStore interface {
	// InsertBulk adds multiple observations. Fails entire batch on duplicate observation_id.
	InsertBulk(ctx context.Context, observations []*domain.QuoteObservation) error

	// GetByTimeRange retrieves observations within [start, end] (inclusive),
	// ordered by observed_at ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.QuoteObservation, error)
}
