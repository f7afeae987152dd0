package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Quote is an aggregator price estimate for converting InputMint into OutputMint.
// Immutable once received, consumed at most once to build a SwapPlan.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64 // smallest units of InputMint
	OutAmount      uint64 // smallest units of OutputMint
	SlippageBps    int
	PriceImpactPct decimal.Decimal
	RoutePlan      json.RawMessage // opaque route description
	Raw            json.RawMessage // full response, echoed back when planning the swap
}

// SwapPlan is an unsigned, serialized swap transaction.
// Valid only until LastValidBlockHeight is exceeded on-chain.
type SwapPlan struct {
	SwapTransaction      []byte // serialized unsigned transaction
	LastValidBlockHeight uint64
	PrioritizationFee    uint64 // lamports, as reported by the aggregator
	ComputeUnitLimit     uint32
}
