package strategy

import (
	"github.com/shopspring/decimal"

	"solana-threshold-trader/internal/domain"
)

// State is the position state of the loop, re-derived from chain balance every tick.
type State string

const (
	StateNoPosition State = "NO_POSITION"
	StateHolding    State = "HOLDING"
)

// StateOf returns the state implied by a token balance.
func StateOf(balanceUnits uint64) State {
	if balanceUnits > 0 {
		return StateHolding
	}
	return StateNoPosition
}

// Action is the outcome of a tick's decision.
type Action string

const (
	ActionHold Action = "hold"
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionSkip Action = "skip"
)

// Leg is the quote a tick must request for its state.
type Leg struct {
	Side       domain.Side
	InputMint  string
	OutputMint string
	Amount     uint64
}

// NextLeg returns the quote to request. With no position it is a
// trade-sized buy of the token with SOL. While holding it is the
// entire balance sold back to SOL.
func NextLeg(state State, cfg domain.ThresholdConfig, holdingUnits uint64) Leg {
	if state == StateHolding {
		return Leg{
			Side:       domain.SideSell,
			InputMint:  cfg.TokenMint,
			OutputMint: domain.WrappedSOLMint,
			Amount:     holdingUnits,
		}
	}
	return Leg{
		Side:       domain.SideBuy,
		InputMint:  domain.WrappedSOLMint,
		OutputMint: cfg.TokenMint,
		Amount:     cfg.TradeSizeUnits,
	}
}

// Decision is the result of comparing a quote's implied price to the
// threshold of the current state.
type Decision struct {
	State     State
	Action    Action
	Price     decimal.Decimal
	Threshold decimal.Decimal
}

// Decide compares q against cfg's threshold for state. It buys only with no
// position and price <= buy threshold, and sells only while holding and
// price >= sell threshold. Anything else holds.
func Decide(state State, cfg domain.ThresholdConfig, q *domain.Quote) (Decision, error) {
	d := Decision{State: state, Action: ActionHold}

	switch state {
	case StateHolding:
		price, err := SellPrice(q, cfg.QuoteTokenDecimals)
		if err != nil {
			return d, err
		}
		d.Price = price
		d.Threshold = cfg.SellAtOrAbovePrice
		if price.GreaterThanOrEqual(cfg.SellAtOrAbovePrice) {
			d.Action = ActionSell
		}
	default:
		price, err := BuyPrice(q, cfg.QuoteTokenDecimals)
		if err != nil {
			return d, err
		}
		d.Price = price
		d.Threshold = cfg.BuyAtOrBelowPrice
		if price.LessThanOrEqual(cfg.BuyAtOrBelowPrice) {
			d.Action = ActionBuy
		}
	}
	return d, nil
}
