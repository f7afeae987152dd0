package execution

import (
	"context"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"solana-threshold-trader/internal/domain"
	"solana-threshold-trader/internal/solana"
)

// ErrEmptyPlan is returned when a plan carries no transaction bytes.
var ErrEmptyPlan = errors.New("swap plan has no transaction")

// Options configures Executor.
type Options struct {
	Gateway   solana.Gateway
	Confirmer *Confirmer
	Logger    zerolog.Logger
}

// Executor signs, submits and confirms planned swap transactions.
type Executor struct {
	gateway   solana.Gateway
	confirmer *Confirmer
	logger    zerolog.Logger
}

// NewExecutor creates a new Executor. A nil Confirmer gets a polling-only default.
func NewExecutor(opts Options) *Executor {
	confirmer := opts.Confirmer
	if confirmer == nil {
		confirmer = NewConfirmer(ConfirmerOptions{Gateway: opts.Gateway, Logger: opts.Logger})
	}
	return &Executor{
		gateway:   opts.Gateway,
		confirmer: confirmer,
		logger:    opts.Logger.With().Str("component", "executor").Logger(),
	}
}

// Execute signs plan with signer, submits it and waits for confirmation.
// The signature is returned whenever submission succeeded, even when
// confirmation then fails. Errors are *SubmissionError, *OnChainFailure,
// ErrBlockhashExpired, ErrConfirmationUnknown, or the context error.
func (e *Executor) Execute(ctx context.Context, plan *domain.SwapPlan, signer Signer) (string, error) {
	if plan == nil || len(plan.SwapTransaction) == 0 {
		return "", &SubmissionError{Err: ErrEmptyPlan}
	}

	tx, err := solanago.TransactionFromBytes(plan.SwapTransaction)
	if err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("decode transaction: %w", err)}
	}

	return e.submit(ctx, tx, signer, plan.LastValidBlockHeight)
}

// submit signs tx, sends it and confirms it against lastValidBlockHeight.
func (e *Executor) submit(ctx context.Context, tx *solanago.Transaction, signer Signer, lastValidBlockHeight uint64) (string, error) {
	if err := signTransaction(tx, signer); err != nil {
		return "", &SubmissionError{Err: err}
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("encode transaction: %w", err)}
	}

	signature, err := e.gateway.SendTransaction(ctx, raw)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}

	blockhash := tx.Message.RecentBlockhash.String()
	e.logger.Info().
		Str("signature", signature).
		Uint64("last_valid_block_height", lastValidBlockHeight).
		Msg("transaction submitted")

	if err := e.confirmer.Confirm(ctx, signature, blockhash, lastValidBlockHeight); err != nil {
		return signature, err
	}
	return signature, nil
}
