package strategy

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"solana-threshold-trader/internal/domain"
)

// ErrZeroAmount is returned when a quote leg is zero and no price can be implied.
var ErrZeroAmount = errors.New("quote has a zero amount")

// BuyPrice returns lamports paid per whole token: in * 10^decimals / out.
func BuyPrice(q *domain.Quote, decimals int32) (decimal.Decimal, error) {
	return impliedPrice(q.InAmount, q.OutAmount, decimals)
}

// SellPrice returns lamports received per whole token: out * 10^decimals / in.
func SellPrice(q *domain.Quote, decimals int32) (decimal.Decimal, error) {
	return impliedPrice(q.OutAmount, q.InAmount, decimals)
}

func impliedPrice(lamports, tokenUnits uint64, decimals int32) (decimal.Decimal, error) {
	if lamports == 0 || tokenUnits == 0 {
		return decimal.Zero, ErrZeroAmount
	}
	num := units(lamports).Shift(decimals)
	return num.Div(units(tokenUnits)), nil
}

// units converts a raw on-chain amount without going through int64.
func units(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
