package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"solana-threshold-trader/internal/domain"
)

// priorityLevelVeryHigh is the aggregator's most urgent fee tier.
const priorityLevelVeryHigh = "veryHigh"

// SwapRequest asks for a transaction executing Quote for UserPublicKey.
type SwapRequest struct {
	Quote         *domain.Quote
	UserPublicKey string
	// PriorityFeeLamports caps the priority fee. Zero omits the fee request.
	PriorityFeeLamports uint64
}

type swapRequestBody struct {
	QuoteResponse             json.RawMessage    `json:"quoteResponse"`
	UserPublicKey             string             `json:"userPublicKey"`
	WrapAndUnwrapSol          bool               `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool               `json:"dynamicComputeUnitLimit"`
	DynamicSlippage           *dynamicSlippage   `json:"dynamicSlippage,omitempty"`
	PrioritizationFeeLamports *prioritizationFee `json:"prioritizationFeeLamports,omitempty"`
}

type dynamicSlippage struct {
	MaxBps int `json:"maxBps"`
}

type prioritizationFee struct {
	PriorityLevelWithMaxLamports priorityLevelWithMaxLamports `json:"priorityLevelWithMaxLamports"`
}

type priorityLevelWithMaxLamports struct {
	MaxLamports   uint64 `json:"maxLamports"`
	PriorityLevel string `json:"priorityLevel"`
}

type swapResponse struct {
	SwapTransaction           string `json:"swapTransaction"`
	LastValidBlockHeight      uint64 `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports"`
	ComputeUnitLimit          uint32 `json:"computeUnitLimit"`
}

// Swap builds an unsigned swap transaction for a previously received quote.
// Slippage is dynamic but never looser than the quote's own setting.
func (c *Client) Swap(ctx context.Context, req SwapRequest) (*domain.SwapPlan, error) {
	if req.Quote == nil || len(req.Quote.Raw) == 0 {
		return nil, errors.New("swap: quote response required")
	}
	if req.UserPublicKey == "" {
		return nil, errors.New("swap: user public key required")
	}

	body := swapRequestBody{
		QuoteResponse:           req.Quote.Raw,
		UserPublicKey:           req.UserPublicKey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
		DynamicSlippage:         &dynamicSlippage{MaxBps: req.Quote.SlippageBps},
	}
	if req.PriorityFeeLamports > 0 {
		body.PrioritizationFeeLamports = &prioritizationFee{
			PriorityLevelWithMaxLamports: priorityLevelWithMaxLamports{
				MaxLamports:   req.PriorityFeeLamports,
				PriorityLevel: priorityLevelVeryHigh,
			},
		}
	}

	var resp swapResponse
	if _, err := c.postJSON(ctx, "swap", "/swap", body, &resp); err != nil {
		return nil, err
	}
	if resp.SwapTransaction == "" {
		return nil, &RemoteError{Op: "swap", StatusCode: 200, Message: "response has no swapTransaction"}
	}

	tx, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("swap: decode transaction: %w", err)
	}

	return &domain.SwapPlan{
		SwapTransaction:      tx,
		LastValidBlockHeight: resp.LastValidBlockHeight,
		PrioritizationFee:    resp.PrioritizationFeeLamports,
		ComputeUnitLimit:     resp.ComputeUnitLimit,
	}, nil
}
