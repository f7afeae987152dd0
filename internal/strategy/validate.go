package strategy

import (
	"errors"
	"fmt"

	"solana-threshold-trader/internal/domain"
)

// Validation errors
var (
	ErrMissingTokenMint   = errors.New("token mint is required")
	ErrZeroTradeSize      = errors.New("trade size must be positive")
	ErrInvalidSlippage    = errors.New("slippage bps must be within 1..10000")
	ErrInvalidThreshold   = errors.New("price threshold must be positive")
	ErrInvalidInterval    = errors.New("check interval must be positive")
	ErrInvalidDecimals    = errors.New("token decimals must be within 0..18")
	ErrTokenIsBaseAsset   = errors.New("token mint must differ from the wrapped SOL mint")
	ErrThresholdsInverted = errors.New("buy threshold must be below sell threshold")
)

// Validate checks cfg for the parameters the decision loop depends on.
func Validate(cfg domain.ThresholdConfig) error {
	if cfg.TokenMint == "" {
		return ErrMissingTokenMint
	}
	if cfg.TokenMint == domain.WrappedSOLMint {
		return ErrTokenIsBaseAsset
	}
	if cfg.TradeSizeUnits == 0 {
		return ErrZeroTradeSize
	}
	if cfg.SlippageBps <= 0 || cfg.SlippageBps > 10000 {
		return fmt.Errorf("%w: %d", ErrInvalidSlippage, cfg.SlippageBps)
	}
	if !cfg.BuyAtOrBelowPrice.IsPositive() {
		return fmt.Errorf("buy: %w", ErrInvalidThreshold)
	}
	if !cfg.SellAtOrAbovePrice.IsPositive() {
		return fmt.Errorf("sell: %w", ErrInvalidThreshold)
	}
	if !cfg.BuyAtOrBelowPrice.LessThan(cfg.SellAtOrAbovePrice) {
		return ErrThresholdsInverted
	}
	if cfg.CheckInterval <= 0 {
		return ErrInvalidInterval
	}
	if cfg.QuoteTokenDecimals < 0 || cfg.QuoteTokenDecimals > 18 {
		return fmt.Errorf("%w: %d", ErrInvalidDecimals, cfg.QuoteTokenDecimals)
	}
	return nil
}
