// Package notify announces executed trades.
package notify

import (
	"context"

	"solana-threshold-trader/internal/domain"
)

// Notifier announces a confirmed trade.
type Notifier interface {
	TradeExecuted(ctx context.Context, t domain.TradeRecord) error
}

// Nop discards every notification.
type Nop struct{}

// TradeExecuted does nothing.
func (Nop) TradeExecuted(context.Context, domain.TradeRecord) error { return nil }

var _ Notifier = Nop{}
