package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-threshold-trader/internal/solana"
)

// DefaultPollInterval is the default signature status polling interval.
const DefaultPollInterval = 500 * time.Millisecond

// DefaultMaxPollFailures is the default number of consecutive failed block
// height polls tolerated before giving up.
const DefaultMaxPollFailures = 60

// ConfirmerOptions configures Confirmer.
type ConfirmerOptions struct {
	Gateway      solana.Gateway
	WS           solana.WSClient // optional push path
	PollInterval time.Duration
	// MaxPollFailures bounds consecutive rounds without a block height.
	MaxPollFailures int
	Logger          zerolog.Logger
}

// Confirmer waits for a submitted transaction to reach confirmed commitment.
type Confirmer struct {
	gateway         solana.Gateway
	ws              solana.WSClient
	pollInterval    time.Duration
	maxPollFailures int
	logger          zerolog.Logger
}

// NewConfirmer creates a new Confirmer.
func NewConfirmer(opts ConfirmerOptions) *Confirmer {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxFailures := opts.MaxPollFailures
	if maxFailures <= 0 {
		maxFailures = DefaultMaxPollFailures
	}
	return &Confirmer{
		gateway:         opts.Gateway,
		ws:              opts.WS,
		pollInterval:    interval,
		maxPollFailures: maxFailures,
		logger:          opts.Logger.With().Str("component", "confirmer").Logger(),
	}
}

// Confirm polls until signature is confirmed (nil), fails on-chain
// (*OnChainFailure), or the chain passes lastValidBlockHeight (ErrBlockhashExpired).
// Transient RPC errors are logged and polling continues, until the block
// height has been unreadable for MaxPollFailures rounds in a row
// (ErrConfirmationUnknown).
func (c *Confirmer) Confirm(ctx context.Context, signature, blockhash string, lastValidBlockHeight uint64) error {
	logger := c.logger.With().
		Str("signature", signature).
		Str("blockhash", blockhash).
		Uint64("last_valid_block_height", lastValidBlockHeight).
		Logger()

	var notify <-chan solana.SignatureNotification
	if c.ws != nil {
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		ch, err := c.ws.SubscribeSignature(subCtx, signature)
		if err != nil {
			logger.Debug().Err(err).Msg("signature subscription unavailable, polling only")
		} else {
			notify = ch
		}
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		done, err := c.check(ctx, logger, signature, lastValidBlockHeight)
		if done {
			return err
		}
		if err != nil {
			failures++
			if failures >= c.maxPollFailures {
				return fmt.Errorf("%s: %d block height polls failed: %w: %w", signature, failures, ErrConfirmationUnknown, err)
			}
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notify:
			notify = nil
			if ok && n.Err != nil {
				return c.failure(ctx, signature, n.Err)
			}
		case <-ticker.C:
		}
	}
}

// check performs one status poll. done reports a terminal outcome; a
// non-terminal error means the block height could not be read.
func (c *Confirmer) check(ctx context.Context, logger zerolog.Logger, signature string, lastValidBlockHeight uint64) (bool, error) {
	statuses, err := c.gateway.GetSignatureStatuses(ctx, []string{signature})
	if err != nil {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		// Expiry is still checked below.
		logger.Warn().Err(err).Msg("signature status poll failed")
	}

	if len(statuses) > 0 && statuses[0] != nil {
		st := statuses[0]
		if st.Err != nil {
			return true, c.failure(ctx, signature, st.Err)
		}
		if st.Confirmed() {
			logger.Debug().Str("commitment", st.ConfirmationStatus).Int64("slot", st.Slot).Msg("transaction confirmed")
			return true, nil
		}
	}

	height, err := c.gateway.GetBlockHeight(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		logger.Warn().Err(err).Msg("block height poll failed")
		return false, fmt.Errorf("block height: %w", err)
	}
	if height > lastValidBlockHeight {
		return true, fmt.Errorf("%s at height %d: %w", signature, height, ErrBlockhashExpired)
	}
	return false, nil
}

// failure builds an OnChainFailure, attaching program logs when available.
func (c *Confirmer) failure(ctx context.Context, signature string, detail interface{}) error {
	f := &OnChainFailure{Signature: signature, Detail: describe(detail)}

	tx, err := c.gateway.GetTransaction(ctx, signature)
	if err != nil {
		c.logger.Debug().Err(err).Str("signature", signature).Msg("failed transaction logs unavailable")
	} else if tx != nil && tx.Meta != nil {
		f.Logs = tx.Meta.LogMessages
	}
	return f
}

func describe(detail interface{}) string {
	if s, ok := detail.(string); ok {
		return s
	}
	b, err := json.Marshal(detail)
	if err != nil {
		return fmt.Sprint(detail)
	}
	return string(b)
}
