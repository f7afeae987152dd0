package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-threshold-trader/internal/domain"
	"solana-threshold-trader/internal/execution"
	"solana-threshold-trader/internal/jupiter"
	"solana-threshold-trader/internal/observability"
	"solana-threshold-trader/internal/retry"
	"solana-threshold-trader/internal/storage/memory"
	"solana-threshold-trader/internal/strategy"
)

const (
	testMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testAccount  = "GEe6nsZpZamSxNcjEYLDDqQpFjVbRWPRotBnbMA31XJp"
	extraAccount = "7f7g2RMujekUTLw5zzVijkJ35Bxyb4WPUL6M1HP65854"
	tradeSize    = uint64(1_500_000_000)
)

func testConfig() domain.ThresholdConfig {
	return domain.ThresholdConfig{
		TokenMint:          testMint,
		TradeSizeUnits:     tradeSize,
		SlippageBps:        50,
		BuyAtOrBelowPrice:  decimal.NewFromInt(1_499_000),
		SellAtOrAbovePrice: decimal.NewFromInt(1_700_000),
		CheckInterval:      time.Millisecond,
		QuoteTokenDecimals: 6,
		FeeReserveLamports: 10_000_000,
	}
}

// market simulates the wallet and the aggregator. Prices are lamports per
// whole token and advance one step per quote.
type market struct {
	mu       sync.Mutex
	prices   []int64
	step     int
	lamports uint64
	holding  uint64
	accounts []domain.Position

	quoteErr   error
	planErr    error
	executeErr error

	quotes  []jupiter.QuoteRequest
	swaps   []jupiter.SwapRequest
	pending *domain.Quote
	sent    int
}

func newMarket(prices ...int64) *market {
	return &market{prices: prices, lamports: 10 * domain.LamportsPerSOL}
}

func (m *market) price() int64 {
	p := m.prices[m.step]
	if m.step < len(m.prices)-1 {
		m.step++
	}
	return p
}

func (m *market) Holding(_ context.Context, owner, mint string) (*domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &domain.Holding{Mint: mint, Owner: owner, Total: m.holding}
	h.Accounts = append(h.Accounts, m.accounts...)
	return h, nil
}

func (m *market) GetBalance(context.Context, string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lamports, nil
}

func (m *market) Quote(_ context.Context, req jupiter.QuoteRequest) (*domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes = append(m.quotes, req)
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}

	p := big.NewInt(m.price())
	scale := big.NewInt(1_000_000)
	amount := new(big.Int).SetUint64(req.Amount)
	var out *big.Int
	if req.InputMint == domain.WrappedSOLMint {
		out = new(big.Int).Div(new(big.Int).Mul(amount, scale), p)
	} else {
		out = new(big.Int).Div(new(big.Int).Mul(amount, p), scale)
	}
	return &domain.Quote{
		InputMint:   req.InputMint,
		OutputMint:  req.OutputMint,
		InAmount:    req.Amount,
		OutAmount:   out.Uint64(),
		SlippageBps: req.SlippageBps,
	}, nil
}

func (m *market) Swap(_ context.Context, req jupiter.SwapRequest) (*domain.SwapPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swaps = append(m.swaps, req)
	if m.planErr != nil {
		return nil, m.planErr
	}
	m.pending = req.Quote
	return &domain.SwapPlan{SwapTransaction: []byte{1}, LastValidBlockHeight: 150}, nil
}

func (m *market) Execute(context.Context, *domain.SwapPlan, execution.Signer) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	sig := fmt.Sprintf("sig-%d", m.sent)
	if m.executeErr != nil {
		return sig, m.executeErr
	}

	q := m.pending
	if q.InputMint == domain.WrappedSOLMint {
		m.lamports -= q.InAmount
		m.holding += q.OutAmount
		m.accounts = []domain.Position{{
			Mint: testMint, BalanceUnits: m.holding,
			TokenAccountAddress: testAccount, OwnerProgramVariant: domain.ProgramVariantStandard,
		}}
	} else {
		m.lamports += q.OutAmount
		m.holding = 0
		for i := range m.accounts {
			m.accounts[i].BalanceUnits = 0
		}
	}
	return sig, nil
}

func (m *market) trades() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

// fakeJanitor records close requests.
type fakeJanitor struct {
	mu     sync.Mutex
	closed []string
	refuse bool
}

func (j *fakeJanitor) CloseIfEmpty(_ context.Context, account string, _ domain.ProgramVariant, _ execution.Signer) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.refuse {
		return false
	}
	j.closed = append(j.closed, account)
	return true
}

// fakeNotifier records notified trades.
type fakeNotifier struct {
	mu     sync.Mutex
	trades []domain.TradeRecord
	err    error
}

func (n *fakeNotifier) TradeExecuted(_ context.Context, t domain.TradeRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trades = append(n.trades, t)
	return n.err
}

// failingTrades rejects every insert.
type failingTrades struct{ *memory.TradeStore }

func (failingTrades) Insert(context.Context, *domain.TradeRecord) error {
	return errors.New("connection refused")
}

// instantTimer fires immediately so retries do not sleep.
type instantTimer struct{ c chan time.Time }

func (t *instantTimer) Start(time.Duration) { t.c <- time.Time{} }
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

// stepClock advances one second per reading so records get distinct timestamps.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type harness struct {
	engine   *Engine
	market   *market
	janitor  *fakeJanitor
	notifier *fakeNotifier
	trades   *memory.TradeStore
	obs      *memory.QuoteObservationStore
	metrics  *observability.Metrics
	signer   solanago.PrivateKey
}

func newHarness(t *testing.T, m *market) *harness {
	t.Helper()
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	h := &harness{
		market:   m,
		janitor:  &fakeJanitor{},
		notifier: &fakeNotifier{},
		trades:   memory.NewTradeStore(),
		obs:      memory.NewQuoteObservationStore(),
		metrics:  observability.NewMetrics("test", prometheus.NewRegistry()),
		signer:   key,
	}
	h.engine = New(Options{
		Config:    testConfig(),
		Signer:    key,
		Positions: m,
		Balances:  m,
		Quoter:    m,
		Planner:   m,
		Retry: retry.New(retry.WithTimer(func() backoff.Timer {
			return &instantTimer{c: make(chan time.Time, 1)}
		})),
		Executor:     m,
		Janitor:      h.janitor,
		Trades:       h.trades,
		Observations: h.obs,
		Notifier:     h.notifier,
		Metrics:      h.metrics,
		Logger:       zerolog.Nop(),
		RunID:        "run-1",
		Now:          (&stepClock{now: time.Unix(1_700_000_000, 0)}).Now,
	})
	return h
}

func TestTick_BuyBelowThreshold(t *testing.T) {
	h := newHarness(t, newMarket(1_450_000))

	res := h.engine.Tick(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, strategy.StateNoPosition, res.State)
	assert.Equal(t, strategy.ActionBuy, res.Action)
	assert.NotEmpty(t, res.Signature)
	assert.True(t, res.Price.LessThanOrEqual(res.Threshold))

	require.Len(t, h.market.quotes, 1)
	q := h.market.quotes[0]
	assert.Equal(t, domain.WrappedSOLMint, q.InputMint)
	assert.Equal(t, testMint, q.OutputMint)
	assert.Equal(t, tradeSize, q.Amount)
	assert.Equal(t, 50, q.SlippageBps)

	require.Len(t, h.market.swaps, 1)
	assert.Equal(t, h.signer.PublicKey().String(), h.market.swaps[0].UserPublicKey)

	assert.Equal(t, 1, h.trades.Len())
	require.Len(t, h.notifier.trades, 1)
	assert.Equal(t, domain.SideBuy, h.notifier.trades[0].Side)
	assert.Equal(t, "run-1", h.notifier.trades[0].RunID)
	assert.Empty(t, h.janitor.closed)
}

func TestTick_HoldAboveBuyThreshold(t *testing.T) {
	h := newHarness(t, newMarket(1_600_000))

	res := h.engine.Tick(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, strategy.ActionHold, res.Action)
	assert.Empty(t, res.Signature)
	assert.Empty(t, h.market.swaps)

	observations, err := h.obs.GetByTimeRange(context.Background(), 0, math.MaxInt64)
	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Equal(t, domain.SideBuy, observations[0].Side)
	assert.Equal(t, "run-1", observations[0].RunID)
}

func TestTick_SellAtThresholdClosesAccounts(t *testing.T) {
	m := newMarket(1_700_000)
	m.holding = 1_000_000_000
	m.accounts = []domain.Position{
		{Mint: testMint, BalanceUnits: 0, TokenAccountAddress: extraAccount, OwnerProgramVariant: domain.ProgramVariantExtended},
		{Mint: testMint, BalanceUnits: 1_000_000_000, TokenAccountAddress: testAccount, OwnerProgramVariant: domain.ProgramVariantStandard},
	}
	h := newHarness(t, m)

	res := h.engine.Tick(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, strategy.StateHolding, res.State)
	assert.Equal(t, strategy.ActionSell, res.Action)
	assert.Equal(t, 2, res.Closed)

	require.Len(t, m.quotes, 1)
	assert.Equal(t, testMint, m.quotes[0].InputMint)
	assert.Equal(t, domain.WrappedSOLMint, m.quotes[0].OutputMint)
	assert.Equal(t, uint64(1_000_000_000), m.quotes[0].Amount)

	assert.Equal(t, []string{testAccount, extraAccount}, h.janitor.closed)
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.JanitorCloses.WithLabelValues("closed")))
}

func TestTick_FlatSweepsEmptyAccounts(t *testing.T) {
	m := newMarket(1_600_000)
	m.accounts = []domain.Position{
		{Mint: testMint, BalanceUnits: 0, TokenAccountAddress: testAccount, OwnerProgramVariant: domain.ProgramVariantStandard},
		{Mint: testMint, BalanceUnits: 0, TokenAccountAddress: extraAccount, OwnerProgramVariant: domain.ProgramVariantExtended},
	}
	h := newHarness(t, m)

	res := h.engine.Tick(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, strategy.StateNoPosition, res.State)
	assert.Equal(t, strategy.ActionHold, res.Action)
	assert.Equal(t, 2, res.Closed)
	assert.Equal(t, []string{testAccount, extraAccount}, h.janitor.closed)
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.JanitorCloses.WithLabelValues("closed")))
}

func TestTick_SweepRunsWhenFundsShort(t *testing.T) {
	m := newMarket(1_000_000)
	m.lamports = tradeSize
	m.accounts = []domain.Position{
		{Mint: testMint, BalanceUnits: 0, TokenAccountAddress: testAccount, OwnerProgramVariant: domain.ProgramVariantStandard},
	}
	h := newHarness(t, m)

	res := h.engine.Tick(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, strategy.ActionSkip, res.Action)
	assert.ErrorIs(t, res.Skip, ErrInsufficientBalance)
	assert.Equal(t, 1, res.Closed)
	assert.Equal(t, []string{testAccount}, h.janitor.closed)
}

func TestTick_RefusedSweepDoesNotFailTick(t *testing.T) {
	m := newMarket(1_450_000)
	m.accounts = []domain.Position{
		{Mint: testMint, BalanceUnits: 0, TokenAccountAddress: extraAccount, OwnerProgramVariant: domain.ProgramVariantExtended},
	}
	h := newHarness(t, m)
	h.janitor.refuse = true

	res := h.engine.Tick(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, strategy.ActionBuy, res.Action)
	assert.Zero(t, res.Closed)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.JanitorCloses.WithLabelValues("skipped")))
}

func TestTick_HoldBelowSellThreshold(t *testing.T) {
	m := newMarket(1_650_000)
	m.holding = 1_000_000_000
	h := newHarness(t, m)

	res := h.engine.Tick(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, strategy.ActionHold, res.Action)
	assert.Zero(t, m.trades())
	assert.Empty(t, h.janitor.closed)
}

func TestTick_InsufficientBalanceSkips(t *testing.T) {
	m := newMarket(1_000_000)
	m.lamports = tradeSize + 9_999_999
	h := newHarness(t, m)

	res := h.engine.Tick(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, strategy.ActionSkip, res.Action)
	assert.ErrorIs(t, res.Skip, ErrInsufficientBalance)
	assert.Empty(t, m.quotes)
}

func TestTick_NotTradableSkips(t *testing.T) {
	m := newMarket(1_000_000)
	m.quoteErr = &jupiter.RemoteError{Op: "quote", StatusCode: 400, Code: "COULD_NOT_FIND_ANY_ROUTE", NotTradable: true}
	h := newHarness(t, m)

	res := h.engine.Tick(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, strategy.ActionSkip, res.Action)
	assert.ErrorIs(t, res.Skip, jupiter.ErrNotTradable)
	assert.Len(t, m.quotes, 1)
}

func TestTick_ZeroOutputSkips(t *testing.T) {
	m := newMarket(500_000)
	m.holding = 1 // sells for 0 lamports
	h := newHarness(t, m)

	res := h.engine.Tick(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, strategy.ActionSkip, res.Action)
	assert.ErrorIs(t, res.Skip, strategy.ErrZeroAmount)
}

func TestTick_RateLimitedQuoteRetriesThenFails(t *testing.T) {
	m := newMarket(1_000_000)
	m.quoteErr = &jupiter.RemoteError{Op: "quote", StatusCode: 429}
	h := newHarness(t, m)

	res := h.engine.Tick(context.Background())
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, retry.ErrRateLimitExceeded)
	assert.Len(t, m.quotes, int(retry.DefaultMaxRetries)+1)
	assert.Zero(t, m.trades())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.QuotesTotal.WithLabelValues("BUY", "rate_limited")))
}

func TestTick_PlanFailureIsTickError(t *testing.T) {
	m := newMarket(1_000_000)
	m.planErr = errors.New("bad gateway")
	h := newHarness(t, m)

	res := h.engine.Tick(context.Background())
	require.Error(t, res.Err)
	assert.Equal(t, strategy.ActionBuy, res.Action)
	assert.Empty(t, res.Signature)
	assert.Zero(t, m.trades())
	assert.Zero(t, h.trades.Len())
}

func TestTick_ExecutionFailureKeepsSignature(t *testing.T) {
	m := newMarket(1_000_000)
	m.executeErr = &execution.OnChainFailure{Signature: "sig", Detail: "custom program error", Logs: []string{"slippage exceeded"}}
	h := newHarness(t, m)

	res := h.engine.Tick(context.Background())
	require.Error(t, res.Err)
	assert.NotEmpty(t, res.Signature)

	var chainErr *execution.OnChainFailure
	assert.ErrorAs(t, res.Err, &chainErr)
	assert.Zero(t, h.trades.Len())
	assert.Empty(t, h.notifier.trades)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.SwapsTotal.WithLabelValues("BUY", "failed")))
}

func TestTick_ExpiredSwapIsTickError(t *testing.T) {
	m := newMarket(1_000_000)
	m.executeErr = execution.ErrBlockhashExpired
	h := newHarness(t, m)

	res := h.engine.Tick(context.Background())
	assert.ErrorIs(t, res.Err, execution.ErrBlockhashExpired)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.SwapsTotal.WithLabelValues("BUY", "expired")))
}

func TestTick_JournalAndNotifyFailuresDoNotFailTick(t *testing.T) {
	m := newMarket(1_000_000)
	h := newHarness(t, m)
	h.notifier.err = errors.New("telegram down")
	h.engine.trades = failingTrades{memory.NewTradeStore()}

	res := h.engine.Tick(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, strategy.ActionBuy, res.Action)
	assert.Len(t, h.notifier.trades, 1)
}

func TestTick_AlternatesBuyAndSell(t *testing.T) {
	m := newMarket(1_600_000, 1_450_000, 1_650_000, 1_750_000, 1_400_000, 1_500_000, 1_800_000)
	h := newHarness(t, m)

	var actions []strategy.Action
	for range m.prices {
		res := h.engine.Tick(context.Background())
		require.NoError(t, res.Err)
		actions = append(actions, res.Action)
	}

	assert.Equal(t, []strategy.Action{
		strategy.ActionHold,
		strategy.ActionBuy,
		strategy.ActionHold,
		strategy.ActionSell,
		strategy.ActionBuy,
		strategy.ActionHold,
		strategy.ActionSell,
	}, actions)
	assert.Equal(t, 4, m.trades())

	records, err := h.trades.ListByTimeRange(context.Background(), 0, math.MaxInt64)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for i, r := range records {
		want := domain.SideBuy
		if i%2 == 1 {
			want = domain.SideSell
		}
		assert.Equal(t, want, r.Side, "trade %d", i)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	m := newMarket(1_600_000)
	h := newHarness(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := h.engine.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEmpty(t, m.quotes)
	assert.Zero(t, m.trades())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	m := newMarket(1_600_000)
	h := newHarness(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, h.engine.Run(ctx), context.Canceled)
	assert.Empty(t, m.quotes)
}

func TestNextDelay(t *testing.T) {
	assert.Equal(t, 7*time.Second, NextDelay(10*time.Second, 3*time.Second))
	assert.Equal(t, time.Duration(0), NextDelay(10*time.Second, 10*time.Second))
	assert.Equal(t, time.Duration(0), NextDelay(10*time.Second, 12*time.Second))
}

func TestNew_Defaults(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	e := New(Options{Config: testConfig(), Signer: key, Logger: zerolog.Nop()})
	assert.NotEmpty(t, e.RunID())
	assert.Equal(t, key.PublicKey().String(), e.owner)
	assert.NotNil(t, e.retry)
	assert.NotNil(t, e.notifier)
}
