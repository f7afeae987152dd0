package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"solana-threshold-trader/internal/domain"
)

// ErrInvalidAmount is returned for a zero quote amount.
var ErrInvalidAmount = errors.New("amount must be positive")

// QuoteRequest asks for an exact-in quote.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // smallest units of InputMint
	SlippageBps int
}

// quoteResponse is the wire form of a quote. Amounts are decimal strings.
type quoteResponse struct {
	InputMint      string          `json:"inputMint"`
	InAmount       string          `json:"inAmount"`
	OutputMint     string          `json:"outputMint"`
	OutAmount      string          `json:"outAmount"`
	SlippageBps    int             `json:"slippageBps"`
	PriceImpactPct string          `json:"priceImpactPct"`
	RoutePlan      json.RawMessage `json:"routePlan"`
}

// Quote fetches a quote for converting Amount of InputMint into OutputMint.
// Multi-hop routes are allowed but intermediate hops are restricted to
// liquid tokens.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*domain.Quote, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("quote: %w", ErrInvalidAmount)
	}

	query := url.Values{}
	query.Set("inputMint", req.InputMint)
	query.Set("outputMint", req.OutputMint)
	query.Set("amount", strconv.FormatUint(req.Amount, 10))
	query.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	query.Set("onlyDirectRoutes", "false")
	query.Set("asLegacyTransaction", "false")
	query.Set("restrictIntermediateTokens", "true")

	var resp quoteResponse
	raw, err := c.getJSON(ctx, "quote", "/quote", query, &resp)
	if err != nil {
		return nil, err
	}

	q, err := resp.toDomain(raw)
	if err != nil {
		return nil, err
	}
	if q.InAmount == 0 || q.OutAmount == 0 {
		return nil, &RemoteError{
			Op:          "quote",
			StatusCode:  200,
			Message:     fmt.Sprintf("empty route: in=%d out=%d", q.InAmount, q.OutAmount),
			NotTradable: true,
		}
	}
	return q, nil
}

func (r *quoteResponse) toDomain(raw []byte) (*domain.Quote, error) {
	in, err := parseAmount("inAmount", r.InAmount)
	if err != nil {
		return nil, err
	}
	out, err := parseAmount("outAmount", r.OutAmount)
	if err != nil {
		return nil, err
	}

	impact := decimal.Zero
	if r.PriceImpactPct != "" {
		impact, err = decimal.NewFromString(r.PriceImpactPct)
		if err != nil {
			return nil, fmt.Errorf("quote: priceImpactPct %q: %w", r.PriceImpactPct, err)
		}
	}

	return &domain.Quote{
		InputMint:      r.InputMint,
		OutputMint:     r.OutputMint,
		InAmount:       in,
		OutAmount:      out,
		SlippageBps:    r.SlippageBps,
		PriceImpactPct: impact,
		RoutePlan:      r.RoutePlan,
		Raw:            json.RawMessage(raw),
	}, nil
}

func parseAmount(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("quote: %s %q: %w", field, s, err)
	}
	return v, nil
}
