package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-threshold-trader/internal/domain"
	"solana-threshold-trader/internal/storage"
)

// QuoteObservationStore implements storage.QuoteObservationStore using ClickHouse.
type QuoteObservationStore struct {
	conn *Conn
}

// NewQuoteObservationStore creates a new QuoteObservationStore.
func NewQuoteObservationStore(conn *Conn) *QuoteObservationStore {
	return &QuoteObservationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.QuoteObservationStore = (*QuoteObservationStore)(nil)

// InsertBulk adds multiple observations. Fails entire batch on duplicate observation_id.
// MergeTree does not enforce uniqueness, so duplicates are checked before the insert.
func (s *QuoteObservationStore) InsertBulk(ctx context.Context, observations []*domain.QuoteObservation) error {
	if len(observations) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(observations))
	ids := make([]string, 0, len(observations))
	for _, o := range observations {
		if o == nil || o.ObservationID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[o.ObservationID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[o.ObservationID] = struct{}{}
		ids = append(ids, o.ObservationID)
	}

	// Check for duplicates against existing DB rows
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM quote_observations
		WHERE observation_id IN (?)
	`, ids).Scan(&count)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO quote_observations (
			observation_id, run_id, side, input_mint, output_mint,
			in_amount, out_amount, price, price_impact_pct, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range observations {
		err = batch.Append(
			o.ObservationID, o.RunID, string(o.Side), o.InputMint, o.OutputMint,
			o.InAmount, o.OutAmount, o.Price, o.PriceImpactPct, uint64(o.ObservedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves observations within [start, end] (inclusive).
func (s *QuoteObservationStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.QuoteObservation, error) {
	query := `
		SELECT observation_id, run_id, side, input_mint, output_mint,
			in_amount, out_amount, price, price_impact_pct, observed_at
		FROM quote_observations
		WHERE observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC, observation_id ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanQuoteObservations(rows)
}

// scanQuoteObservations scans multiple rows.
func scanQuoteObservations(rows chRows) ([]*domain.QuoteObservation, error) {
	var observations []*domain.QuoteObservation

	for rows.Next() {
		var o domain.QuoteObservation
		var side string
		var price, impact decimal.Decimal
		var observedAt uint64

		err := rows.Scan(
			&o.ObservationID, &o.RunID, &side, &o.InputMint, &o.OutputMint,
			&o.InAmount, &o.OutAmount, &price, &impact, &observedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan quote observation row: %w", err)
		}

		o.Side = domain.Side(side)
		o.Price = price
		o.PriceImpactPct = impact
		o.ObservedAt = int64(observedAt)
		observations = append(observations, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote observation rows: %w", err)
	}

	return observations, nil
}
