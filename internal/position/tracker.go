// Package position derives the wallet's holding of the traded token from chain state.
package position

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/rs/zerolog"

	"solana-threshold-trader/internal/domain"
	"solana-threshold-trader/internal/solana"
)

// TokenAccountSource lists token accounts under one program.
type TokenAccountSource interface {
	GetTokenAccountsByOwner(ctx context.Context, owner, mint, programID string) ([]solana.TokenAccount, error)
}

// Options configures Tracker.
type Options struct {
	Source   TokenAccountSource
	Variants []domain.ProgramVariant // defaults to domain.ProgramVariants
	Logger   zerolog.Logger
}

// Tracker sums a mint's balance across every token program variant.
// It keeps no state; each call reads the chain.
type Tracker struct {
	source   TokenAccountSource
	variants []domain.ProgramVariant
	logger   zerolog.Logger
}

// NewTracker creates a new Tracker.
func NewTracker(opts Options) *Tracker {
	variants := opts.Variants
	if len(variants) == 0 {
		variants = domain.ProgramVariants
	}
	return &Tracker{
		source:   opts.Source,
		variants: variants,
		logger:   opts.Logger.With().Str("component", "position").Logger(),
	}
}

// CurrentHolding returns the balance of mint held by owner, 0 when no account exists.
func (t *Tracker) CurrentHolding(ctx context.Context, owner, mint string) (uint64, error) {
	h, err := t.Holding(ctx, owner, mint)
	if err != nil {
		return 0, err
	}
	return h.Total, nil
}

// Holding returns every token account of owner for mint, across all variants.
// A failure reading any variant fails the whole call, since a partial sum
// would under-report the position.
func (t *Tracker) Holding(ctx context.Context, owner, mint string) (*domain.Holding, error) {
	h := &domain.Holding{
		Mint:               mint,
		Owner:              owner,
		AssociatedAccounts: make(map[domain.ProgramVariant]string, len(t.variants)),
	}

	for _, variant := range t.variants {
		programID, err := solana.ProgramIDFor(variant)
		if err != nil {
			return nil, err
		}

		accounts, err := t.source.GetTokenAccountsByOwner(ctx, owner, mint, programID)
		if err != nil {
			return nil, fmt.Errorf("token accounts (%s): %w", variant, err)
		}

		if ata, err := solana.AssociatedTokenAddress(owner, mint, variant); err == nil {
			h.AssociatedAccounts[variant] = ata
		} else {
			t.logger.Debug().Err(err).Str("variant", variant.String()).Msg("associated account derivation failed")
		}

		for _, acc := range accounts {
			if acc.Data.Mint != mint {
				continue
			}
			total, carry := bits.Add64(h.Total, acc.Data.Amount, 0)
			if carry != 0 {
				return nil, fmt.Errorf("holding of %s overflows uint64", mint)
			}
			h.Total = total
			h.Accounts = append(h.Accounts, domain.Position{
				Mint:                mint,
				BalanceUnits:        acc.Data.Amount,
				TokenAccountAddress: acc.Address,
				OwnerProgramVariant: variant,
			})
		}
	}

	t.logger.Debug().
		Str("mint", mint).
		Uint64("total", h.Total).
		Int("accounts", len(h.Accounts)).
		Msg("holding derived")

	return h, nil
}
