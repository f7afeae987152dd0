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

// QuoteObservationStore implements storage.QuoteObservationStore using PostgreSQL.
type QuoteObservationStore struct {
	pool *Pool
}

// NewQuoteObservationStore creates a new QuoteObservationStore.
func NewQuoteObservationStore(pool *Pool) *QuoteObservationStore {
	return &QuoteObservationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.QuoteObservationStore = (*QuoteObservationStore)(nil)

// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
func (s *QuoteObservationStore) InsertBulk(ctx context.Context, observations []*domain.QuoteObservation) error {
	if len(observations) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO quote_observations (
			observation_id, run_id, side, input_mint, output_mint,
			in_amount, out_amount, price, price_impact_pct, observed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::text::numeric, $7::text::numeric, $8::text::numeric, $9::text::numeric, $10
		)
	`

	for _, o := range observations {
		if o == nil || o.ObservationID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			o.ObservationID, o.RunID, string(o.Side), o.InputMint, o.OutputMint,
			strconv.FormatUint(o.InAmount, 10), strconv.FormatUint(o.OutAmount, 10),
			o.Price.String(), o.PriceImpactPct.String(), o.ObservedAt,
		)
		if err != nil {
			return mapError("insert quote observation", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves observations within [start, end] (inclusive).
func (s *QuoteObservationStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.QuoteObservation, error) {
	query := `
		SELECT observation_id, run_id, side, input_mint, output_mint,
			in_amount::text, out_amount::text, price::text, price_impact_pct::text, observed_at
		FROM quote_observations
		WHERE observed_at >= $1 AND observed_at <= $2
		ORDER BY observed_at ASC, observation_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query quote observations by time range: %w", err)
	}
	defer rows.Close()

	var observations []*domain.QuoteObservation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote observation: %w", err)
		}
		observations = append(observations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote observations: %w", err)
	}
	return observations, nil
}

func scanObservation(row pgx.Row) (*domain.QuoteObservation, error) {
	var o domain.QuoteObservation
	var side, inAmount, outAmount, price, impact string

	err := row.Scan(
		&o.ObservationID, &o.RunID, &side, &o.InputMint, &o.OutputMint,
		&inAmount, &outAmount, &price, &impact, &o.ObservedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Side = domain.Side(side)
	if o.InAmount, err = strconv.ParseUint(inAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("parse in_amount: %w", err)
	}
	if o.OutAmount, err = strconv.ParseUint(outAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("parse out_amount: %w", err)
	}
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if o.PriceImpactPct, err = decimal.NewFromString(impact); err != nil {
		return nil, fmt.Errorf("parse price_impact_pct: %w", err)
	}
	return &o, nil
}
