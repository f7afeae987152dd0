package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-threshold-trader/internal/domain"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(signature|side)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(signature string, side domain.Side) string {
	data := fmt.Sprintf("%s|%s", signature, string(side))

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeObservationID computes a deterministic observation_id using SHA256.
// Formula: SHA256(run_id|side|input_mint|output_mint|in_amount|observed_at)
// Returns hex-encoded hash (64 characters).
func ComputeObservationID(
	runID string,
	side domain.Side,
	inputMint string,
	outputMint string,
	inAmount uint64,
	observedAt int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d|%d",
		runID,
		string(side),
		inputMint,
		outputMint,
		inAmount,
		observedAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
