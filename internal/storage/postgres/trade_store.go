package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-threshold-trader/internal/domain"
	"solana-threshold-trader/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
// Amounts and prices travel as text and are cast to NUMERIC in SQL so the
// full uint64 range and exact decimals survive the round trip.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, run_id, side, input_mint, output_mint,
	in_amount::text, out_amount::text, price::text, price_impact_pct::text,
	signature, executed_at
`

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			trade_id, run_id, side, input_mint, output_mint,
			in_amount, out_amount, price, price_impact_pct,
			signature, executed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::text::numeric, $7::text::numeric, $8::text::numeric, $9::text::numeric,
			$10, $11
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.RunID, string(t.Side), t.InputMint, t.OutputMint,
		strconv.FormatUint(t.InAmount, 10), strconv.FormatUint(t.OutAmount, 10),
		t.Price.String(), t.PriceImpactPct.String(),
		t.Signature, t.ExecutedAt,
	)
	return mapError("insert trade", err)
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = $1`

	t, err := scanTrade(s.pool.QueryRow(ctx, query, tradeID))
	if err != nil {
		return nil, mapError("get trade", err)
	}
	return t, nil
}

// ListByTimeRange retrieves trades executed within [start, end] (inclusive).
func (s *TradeStore) ListByTimeRange(ctx context.Context, start, end int64) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE executed_at >= $1 AND executed_at <= $2
		ORDER BY executed_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query trades by time range: %w", err)
	}
	defer rows.Close()

	var trades []*domain.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}

func scanTrade(row pgx.Row) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var side, inAmount, outAmount, price, impact string

	err := row.Scan(
		&t.TradeID, &t.RunID, &side, &t.InputMint, &t.OutputMint,
		&inAmount, &outAmount, &price, &impact,
		&t.Signature, &t.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Side = domain.Side(side)
	if t.InAmount, err = strconv.ParseUint(inAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("parse in_amount: %w", err)
	}
	if t.OutAmount, err = strconv.ParseUint(outAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("parse out_amount: %w", err)
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if t.PriceImpactPct, err = decimal.NewFromString(impact); err != nil {
		return nil, fmt.Errorf("parse price_impact_pct: %w", err)
	}
	return &t, nil
}
