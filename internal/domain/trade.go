package domain

import "github.com/shopspring/decimal"

// Side is the direction of a swap relative to the configured token.
type Side string

const (
	SideBuy  Side = "BUY"  // SOL -> token
	SideSell Side = "SELL" // token -> SOL
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// TradeRecord is a confirmed swap, journaled for audit.
// Corresponds to trades table in PostgreSQL. Never read back for decisions.
type TradeRecord struct {
	TradeID        string          // PRIMARY KEY, deterministic hash of signature and side
	RunID          string          // process run that issued the swap
	Side           Side            // BUY | SELL
	InputMint      string          // mint spent
	OutputMint     string          // mint received
	InAmount       uint64          // quoted input amount
	OutAmount      uint64          // quoted output amount
	Price          decimal.Decimal // lamports per whole token
	PriceImpactPct decimal.Decimal // as quoted
	Signature      string          // confirmed transaction signature
	ExecutedAt     int64           // confirmation timestamp (ms)
}

// QuoteObservation is one quote seen by the engine, traded on or not.
// Corresponds to quote_observations table in ClickHouse.
type QuoteObservation struct {
	ObservationID  string // deterministic hash
	RunID          string
	Side           Side
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	Price          decimal.Decimal
	PriceImpactPct decimal.Decimal
	ObservedAt     int64 // Unix timestamp in milliseconds
}
