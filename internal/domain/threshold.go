package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ThresholdConfig holds the trading parameters. Loaded once, immutable for the process lifetime.
//
// Prices are lamports per whole quote token:
// buy price = in*10^decimals/out, sell price = out*10^decimals/in.
type ThresholdConfig struct {
	TokenMint           string          // mint of the traded quote asset
	TradeSizeUnits      uint64          // lamports spent per buy
	SlippageBps         int             // quote slippage tolerance
	BuyAtOrBelowPrice   decimal.Decimal // buy when price <= this
	SellAtOrAbovePrice  decimal.Decimal // sell when price >= this
	CheckInterval       time.Duration   // tick cadence
	PriorityFeeLamports uint64          // fee ceiling, 0 = omit
	QuoteTokenDecimals  int32           // decimals of TokenMint
	FeeReserveLamports  uint64          // kept back from the SOL balance for fees and rent
}
