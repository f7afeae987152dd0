// Package engine runs the threshold strategy against live chain state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-threshold-trader/internal/domain"
	"solana-threshold-trader/internal/execution"
	"solana-threshold-trader/internal/idhash"
	"solana-threshold-trader/internal/jupiter"
	"solana-threshold-trader/internal/notify"
	"solana-threshold-trader/internal/observability"
	"solana-threshold-trader/internal/retry"
	"solana-threshold-trader/internal/storage"
	"solana-threshold-trader/internal/strategy"
)

// ErrInsufficientBalance is a skip: the wallet cannot fund a buy plus the fee reserve.
var ErrInsufficientBalance = errors.New("insufficient base balance")

// PositionSource derives holdings from chain state.
type PositionSource interface {
	Holding(ctx context.Context, owner, mint string) (*domain.Holding, error)
}

// BalanceSource reports the native balance of an owner.
type BalanceSource interface {
	GetBalance(ctx context.Context, owner string) (uint64, error)
}

// Quoter fetches trade-sized quotes.
type Quoter interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*domain.Quote, error)
}

// Planner turns a quote into an unsigned swap transaction.
type Planner interface {
	Swap(ctx context.Context, req jupiter.SwapRequest) (*domain.SwapPlan, error)
}

// Swapper signs, submits and confirms a plan.
type Swapper interface {
	Execute(ctx context.Context, plan *domain.SwapPlan, signer execution.Signer) (string, error)
}

// AccountCloser reclaims emptied token accounts.
type AccountCloser interface {
	CloseIfEmpty(ctx context.Context, account string, variant domain.ProgramVariant, owner execution.Signer) bool
}

// Options configures Engine. Trades, Observations, Notifier and Metrics are optional.
type Options struct {
	Config    domain.ThresholdConfig
	Signer    execution.Signer
	Positions PositionSource
	Balances  BalanceSource
	Quoter    Quoter
	Planner   Planner
	Retry     *retry.Policy
	Executor  Swapper
	Janitor   AccountCloser

	Trades       storage.TradeStore
	Observations storage.QuoteObservationStore
	Notifier     notify.Notifier
	Metrics      *observability.Metrics

	Logger zerolog.Logger
	RunID  string           // defaults to a random UUID
	Now    func() time.Time // defaults to time.Now
}

// Engine is the buy/sell state machine. It holds no position state:
// every tick re-derives it from the chain.
type Engine struct {
	cfg       domain.ThresholdConfig
	signer    execution.Signer
	owner     string
	positions PositionSource
	balances  BalanceSource
	quoter    Quoter
	planner   Planner
	retry     *retry.Policy
	executor  Swapper
	janitor   AccountCloser

	trades       storage.TradeStore
	observations storage.QuoteObservationStore
	notifier     notify.Notifier
	metrics      *observability.Metrics

	logger zerolog.Logger
	runID  string
	now    func() time.Time
}

// New creates a new Engine.
func New(opts Options) *Engine {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	policy := opts.Retry
	if policy == nil {
		policy = retry.New()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Engine{
		cfg:          opts.Config,
		signer:       opts.Signer,
		owner:        opts.Signer.PublicKey().String(),
		positions:    opts.Positions,
		balances:     opts.Balances,
		quoter:       opts.Quoter,
		planner:      opts.Planner,
		retry:        policy,
		executor:     opts.Executor,
		janitor:      opts.Janitor,
		trades:       opts.Trades,
		observations: opts.Observations,
		notifier:     notifier,
		metrics:      opts.Metrics,
		logger: opts.Logger.With().
			Str("component", "engine").
			Str("run_id", runID).
			Str("mint", opts.Config.TokenMint).
			Logger(),
		runID: runID,
		now:   now,
	}
}

// RunID returns the identifier stamped on this engine's records.
func (e *Engine) RunID() string {
	return e.runID
}

// TickResult is the outcome of one tick.
type TickResult struct {
	State     strategy.State
	Action    strategy.Action
	Holding   uint64
	Price     decimal.Decimal
	Threshold decimal.Decimal
	Signature string
	Closed    int   // token accounts closed after a sell
	Skip      error // reason for ActionSkip
	Err       error // tick failure, nil on success
}

// Outcome returns the label used for logs and metrics.
func (r TickResult) Outcome() string {
	if r.Err != nil {
		return "error"
	}
	return string(r.Action)
}

// Run ticks every CheckInterval until ctx is done. The interval is measured
// from the start of each tick. A tick already in progress when ctx is done
// runs to completion so a submitted swap is confirmed or expires.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().
		Str("owner", e.owner).
		Dur("interval", e.cfg.CheckInterval).
		Uint64("trade_size", e.cfg.TradeSizeUnits).
		Str("buy_at_or_below", e.cfg.BuyAtOrBelowPrice.String()).
		Str("sell_at_or_above", e.cfg.SellAtOrAbovePrice.String()).
		Msg("engine started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := e.now()
		e.Tick(context.WithoutCancel(ctx))

		timer := time.NewTimer(NextDelay(e.cfg.CheckInterval, e.now().Sub(start)))
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Info().Msg("engine stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// NextDelay returns the sleep before the next tick: interval minus the time
// the last tick took, floored at zero.
func NextDelay(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// Tick runs one decision cycle. Every failure is captured in the result;
// Tick never panics on remote errors and never returns early without logging.
func (e *Engine) Tick(ctx context.Context) TickResult {
	start := e.now()
	res := e.tick(ctx)
	elapsed := e.now().Sub(start)

	e.logTick(res, elapsed)
	e.metrics.RecordTick(res.Outcome(), elapsed, res.Err)
	return res
}

func (e *Engine) tick(ctx context.Context) TickResult {
	res := TickResult{Action: strategy.ActionHold}

	holding, err := e.positions.Holding(ctx, e.owner, e.cfg.TokenMint)
	if err != nil {
		res.Err = fmt.Errorf("read position: %w", err)
		return res
	}
	res.Holding = holding.Total
	res.State = strategy.StateOf(holding.Total)
	e.metrics.SetHolding(holding.Total)

	if res.State == strategy.StateNoPosition {
		// Accounts left empty by an earlier sell whose cleanup failed, or
		// drained from outside. Their rent counts toward the funds check.
		res.Closed = e.cleanup(ctx, holding)
		if err := e.checkFunds(ctx); err != nil {
			if errors.Is(err, ErrInsufficientBalance) {
				res.Action = strategy.ActionSkip
				res.Skip = err
				return res
			}
			res.Err = err
			return res
		}
	}

	leg := strategy.NextLeg(res.State, e.cfg, holding.Total)
	quote, err := e.quote(ctx, leg)
	if err != nil {
		if errors.Is(err, jupiter.ErrNotTradable) {
			res.Action = strategy.ActionSkip
			res.Skip = err
			return res
		}
		res.Err = err
		return res
	}

	decision, err := strategy.Decide(res.State, e.cfg, quote)
	if err != nil {
		res.Action = strategy.ActionSkip
		res.Skip = err
		return res
	}
	res.Price = decision.Price
	res.Threshold = decision.Threshold
	e.metrics.SetLastPrice(leg.Side.String(), decision.Price.InexactFloat64())
	e.observe(ctx, leg, quote, decision.Price)

	if decision.Action == strategy.ActionHold {
		return res
	}
	res.Action = decision.Action

	signature, err := e.swap(ctx, leg, quote)
	res.Signature = signature
	if err != nil {
		res.Err = err
		return res
	}

	e.journal(ctx, leg, quote, decision.Price, signature)

	if leg.Side == domain.SideSell {
		res.Closed = e.cleanup(ctx, holding)
	}
	return res
}

// checkFunds returns ErrInsufficientBalance when the SOL balance cannot
// cover a buy plus the fee reserve.
func (e *Engine) checkFunds(ctx context.Context) error {
	balance, err := e.balances.GetBalance(ctx, e.owner)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	need, carry := bits.Add64(e.cfg.TradeSizeUnits, e.cfg.FeeReserveLamports, 0)
	if carry != 0 || balance < need {
		return fmt.Errorf("%w: have %d lamports, need %d plus %d reserve",
			ErrInsufficientBalance, balance, e.cfg.TradeSizeUnits, e.cfg.FeeReserveLamports)
	}
	return nil
}

// quote fetches a quote for leg under the retry policy.
func (e *Engine) quote(ctx context.Context, leg strategy.Leg) (*domain.Quote, error) {
	req := jupiter.QuoteRequest{
		InputMint:   leg.InputMint,
		OutputMint:  leg.OutputMint,
		Amount:      leg.Amount,
		SlippageBps: e.cfg.SlippageBps,
	}

	var q *domain.Quote
	err := e.retry.Do(ctx, "quote", func(ctx context.Context) error {
		var err error
		q, err = e.quoter.Quote(ctx, req)
		return err
	})

	side := leg.Side.String()
	switch {
	case err == nil:
		e.metrics.RecordQuote(side, "ok")
		return q, nil
	case errors.Is(err, jupiter.ErrNotTradable):
		e.metrics.RecordQuote(side, "not_tradable")
	case errors.Is(err, retry.ErrRateLimitExceeded):
		e.metrics.RecordQuote(side, "rate_limited")
	default:
		e.metrics.RecordQuote(side, "error")
	}
	return nil, fmt.Errorf("quote %s %d %s: %w", side, leg.Amount, leg.InputMint, err)
}

// swap plans and executes quote. The signature is returned whenever the
// transaction was submitted.
func (e *Engine) swap(ctx context.Context, leg strategy.Leg, quote *domain.Quote) (string, error) {
	side := leg.Side.String()

	var plan *domain.SwapPlan
	err := e.retry.Do(ctx, "swap", func(ctx context.Context) error {
		var err error
		plan, err = e.planner.Swap(ctx, jupiter.SwapRequest{
			Quote:               quote,
			UserPublicKey:       e.owner,
			PriorityFeeLamports: e.cfg.PriorityFeeLamports,
		})
		return err
	})
	if err != nil {
		e.metrics.RecordSwap(side, "plan_failed")
		return "", fmt.Errorf("plan %s: %w", side, err)
	}

	signature, err := e.executor.Execute(ctx, plan, e.signer)
	if err != nil {
		e.metrics.RecordSwap(side, swapOutcome(err))
		return signature, fmt.Errorf("execute %s: %w", side, err)
	}
	e.metrics.RecordSwap(side, "confirmed")
	return signature, nil
}

func swapOutcome(err error) string {
	var subErr *execution.SubmissionError
	var chainErr *execution.OnChainFailure
	switch {
	case errors.As(err, &subErr):
		return "rejected"
	case errors.As(err, &chainErr):
		return "failed"
	case errors.Is(err, execution.ErrBlockhashExpired):
		return "expired"
	case errors.Is(err, execution.ErrConfirmationUnknown):
		return "unknown"
	default:
		return "error"
	}
}

// cleanup closes every emptied account of the mint, primary first.
// Accounts that still hold a balance are left to the janitor to refuse.
func (e *Engine) cleanup(ctx context.Context, holding *domain.Holding) int {
	accounts := make([]domain.Position, 0, len(holding.Accounts))
	primary := holding.Primary()
	if primary != nil {
		accounts = append(accounts, *primary)
	}
	for _, p := range holding.Accounts {
		if primary != nil && p.TokenAccountAddress == primary.TokenAccountAddress {
			continue
		}
		accounts = append(accounts, p)
	}

	closed := 0
	for _, p := range accounts {
		ok := e.janitor.CloseIfEmpty(ctx, p.TokenAccountAddress, p.OwnerProgramVariant, e.signer)
		e.metrics.RecordJanitorClose(ok)
		if ok {
			closed++
		}
	}
	return closed
}

// observe records the quote seen this tick. Storage failures never fail the tick.
func (e *Engine) observe(ctx context.Context, leg strategy.Leg, q *domain.Quote, price decimal.Decimal) {
	if e.observations == nil {
		return
	}

	observedAt := e.now().UnixMilli()
	obs := domain.QuoteObservation{
		ObservationID:  idhash.ComputeObservationID(e.runID, leg.Side, q.InputMint, q.OutputMint, q.InAmount, observedAt),
		RunID:          e.runID,
		Side:           leg.Side,
		InputMint:      q.InputMint,
		OutputMint:     q.OutputMint,
		InAmount:       q.InAmount,
		OutAmount:      q.OutAmount,
		Price:          price,
		PriceImpactPct: q.PriceImpactPct,
		ObservedAt:     observedAt,
	}

	start := e.now()
	err := e.observations.InsertBulk(ctx, []*domain.QuoteObservation{&obs})
	e.metrics.RecordDBQuery("observations", "insert", e.now().Sub(start), err)
	if err != nil {
		e.logger.Warn().Err(err).Msg("record quote observation")
	}
}

// journal records a confirmed trade and sends the notification.
// Neither can undo the swap, so failures are only logged.
func (e *Engine) journal(ctx context.Context, leg strategy.Leg, q *domain.Quote, price decimal.Decimal, signature string) {
	trade := domain.TradeRecord{
		TradeID:        idhash.ComputeTradeID(signature, leg.Side),
		RunID:          e.runID,
		Side:           leg.Side,
		InputMint:      q.InputMint,
		OutputMint:     q.OutputMint,
		InAmount:       q.InAmount,
		OutAmount:      q.OutAmount,
		Price:          price,
		PriceImpactPct: q.PriceImpactPct,
		Signature:      signature,
		ExecutedAt:     e.now().UnixMilli(),
	}

	if e.trades != nil {
		start := e.now()
		err := e.trades.Insert(ctx, &trade)
		e.metrics.RecordDBQuery("trades", "insert", e.now().Sub(start), err)
		if err != nil {
			e.logger.Warn().Err(err).Str("signature", signature).Msg("journal trade")
		}
	}

	if err := e.notifier.TradeExecuted(ctx, trade); err != nil {
		e.logger.Warn().Err(err).Str("signature", signature).Msg("notify trade")
	}
}

// logTick emits the single structured line summarizing a tick.
func (e *Engine) logTick(res TickResult, elapsed time.Duration) {
	var ev *zerolog.Event
	switch {
	case res.Err != nil:
		ev = e.logger.Error().Err(res.Err)
	case res.Action == strategy.ActionSkip:
		ev = e.logger.Warn().AnErr("reason", res.Skip)
	default:
		ev = e.logger.Info()
	}

	ev = ev.
		Str("state", string(res.State)).
		Str("action", string(res.Action)).
		Uint64("holding", res.Holding).
		Dur("elapsed", elapsed)
	if !res.Price.IsZero() {
		ev = ev.Str("price", res.Price.String()).Str("threshold", res.Threshold.String())
	}
	if res.Signature != "" {
		ev = ev.Str("signature", res.Signature)
	}
	if res.Closed > 0 {
		ev = ev.Int("closed_accounts", res.Closed)
	}

	var chainErr *execution.OnChainFailure
	if errors.As(res.Err, &chainErr) && len(chainErr.Logs) > 0 {
		ev = ev.Strs("program_logs", chainErr.Logs)
	}
	ev.Msg("tick")
}
