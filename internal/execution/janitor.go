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

// closeAccountInstruction is the token program CloseAccount discriminator,
// shared by both program variants.
const closeAccountInstruction = 9

// Janitor closes emptied token accounts to reclaim their rent deposit.
type Janitor struct {
	gateway  solana.Gateway
	executor *Executor
	logger   zerolog.Logger
}

// NewJanitor creates a new Janitor that submits through executor.
func NewJanitor(gateway solana.Gateway, executor *Executor, logger zerolog.Logger) *Janitor {
	return &Janitor{
		gateway:  gateway,
		executor: executor,
		logger:   logger.With().Str("component", "janitor").Logger(),
	}
}

// CloseIfEmpty closes account when it exists, belongs to variant's program,
// is owned by owner and holds zero units. It reports whether a close was
// confirmed. Every failure is logged and reported as false.
func (j *Janitor) CloseIfEmpty(ctx context.Context, account string, variant domain.ProgramVariant, owner Signer) bool {
	logger := j.logger.With().Str("account", account).Str("variant", variant.String()).Logger()

	if err := j.closeIfEmpty(ctx, logger, account, variant, owner); err != nil {
		var skip skipError
		if errors.As(err, &skip) {
			logger.Debug().Err(err).Msg("nothing to close")
			return false
		}
		logger.Warn().Err(err).Msg("token account not closed")
		return false
	}
	return true
}

type skipError string

func (e skipError) Error() string { return string(e) }

func (j *Janitor) closeIfEmpty(ctx context.Context, logger zerolog.Logger, account string, variant domain.ProgramVariant, owner Signer) error {
	programID, err := solana.ProgramIDFor(variant)
	if err != nil {
		return err
	}

	info, err := j.gateway.GetAccountInfo(ctx, account)
	if err != nil {
		return fmt.Errorf("get account info: %w", err)
	}
	if info == nil {
		return skipError("account does not exist")
	}
	if info.Owner != programID {
		return fmt.Errorf("account owned by %s, expected %s", info.Owner, programID)
	}

	data, err := solana.DecodeTokenAccountBase64(info.Data)
	if err != nil {
		return err
	}
	if data.Amount != 0 {
		return fmt.Errorf("account holds %d units", data.Amount)
	}
	ownerKey := owner.PublicKey()
	if data.Owner != ownerKey.String() {
		return fmt.Errorf("account owned by wallet %s, not %s", data.Owner, ownerKey)
	}

	accountKey, err := solanago.PublicKeyFromBase58(account)
	if err != nil {
		return fmt.Errorf("parse account: %w", err)
	}
	programKey, err := solanago.PublicKeyFromBase58(programID)
	if err != nil {
		return fmt.Errorf("parse program: %w", err)
	}

	bh, err := j.gateway.GetLatestBlockhash(ctx)
	if err != nil {
		return fmt.Errorf("get latest blockhash: %w", err)
	}
	hash, err := solanago.HashFromBase58(bh.Blockhash)
	if err != nil {
		return fmt.Errorf("parse blockhash: %w", err)
	}

	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{closeAccount(programKey, accountKey, ownerKey)},
		hash,
		solanago.TransactionPayer(ownerKey),
	)
	if err != nil {
		return fmt.Errorf("build close transaction: %w", err)
	}

	signature, err := j.executor.submit(ctx, tx, owner, bh.LastValidBlockHeight)
	if err != nil {
		return err
	}

	logger.Info().Str("signature", signature).Msg("token account closed")
	return nil
}

// closeAccount builds a CloseAccount instruction returning rent to owner.
func closeAccount(programID, account, owner solanago.PublicKey) solanago.Instruction {
	return solanago.NewInstruction(
		programID,
		solanago.AccountMetaSlice{
			solanago.NewAccountMeta(account, true, false),
			solanago.NewAccountMeta(owner, true, false),
			solanago.NewAccountMeta(owner, false, true),
		},
		[]byte{closeAccountInstruction},
	)
}
