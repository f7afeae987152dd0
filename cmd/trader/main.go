package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"solana-threshold-trader/internal/config"
	"solana-threshold-trader/internal/engine"
	"solana-threshold-trader/internal/execution"
	"solana-threshold-trader/internal/jupiter"
	"solana-threshold-trader/internal/notify"
	"solana-threshold-trader/internal/observability"
	"solana-threshold-trader/internal/position"
	"solana-threshold-trader/internal/retry"
	"solana-threshold-trader/internal/solana"
	"solana-threshold-trader/internal/storage"
	chstore "solana-threshold-trader/internal/storage/clickhouse"
	"solana-threshold-trader/internal/storage/memory"
	"solana-threshold-trader/internal/storage/migrations"
	pgstore "solana-threshold-trader/internal/storage/postgres"
)

// shutdownTimeout bounds the wait for an in-flight tick after the first signal.
const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	once := flag.Bool("once", false, "Run a single tick and exit")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage even when DSNs are configured")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trader: %v\n", err)
		os.Exit(2)
	}

	logger, logCloser, err := config.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trader: %v\n", err)
		os.Exit(2)
	}
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down, waiting for in-flight tick")
		case <-done:
			return
		}
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			logger.Warn().Dur("timeout", shutdownTimeout).Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger, *once, *useMemory)
	close(done)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("trader stopped")
		logCloser.Close()
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, once, useMemory bool) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(observability.DefaultNamespace, registry)

	if cfg.Metrics.Addr != "" && !once {
		srv := startMetricsServer(cfg.Metrics.Addr, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	rpc := solana.NewHTTPClient(cfg.RPC.URL, solana.WithObserver(metrics.RecordRPC))
	if _, err := rpc.GetSlot(ctx); err != nil {
		return fmt.Errorf("rpc connectivity check: %w", err)
	}

	confirmerOpts := execution.ConfirmerOptions{Gateway: rpc, Logger: logger}
	if cfg.RPC.WSURL != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = &logger
		ws, err := solana.NewWSClient(ctx, cfg.RPC.WSURL, &wsCfg)
		if err != nil {
			// Confirmation falls back to polling.
			logger.Warn().Err(err).Msg("websocket unavailable")
		} else {
			defer ws.Close()
			confirmerOpts.WS = ws
		}
	}

	jup := jupiter.NewClient(cfg.Jupiter.URL,
		jupiter.WithAPIKey(cfg.Jupiter.APIKey),
		jupiter.WithRateLimit(cfg.Jupiter.RequestsPerSecond, 1),
	)

	policy := retry.New(retry.WithNotify(func(op string, attempt int, delay time.Duration, err error) {
		metrics.RecordRateLimitRetry()
		logger.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("rate limited, backing off")
	}))

	trades, observations, closeStores, err := openStores(ctx, cfg, useMemory, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifier = tg
	}

	executor := execution.NewExecutor(execution.Options{
		Gateway:   rpc,
		Confirmer: execution.NewConfirmer(confirmerOpts),
		Logger:    logger,
	})

	eng := engine.New(engine.Options{
		Config:       cfg.Threshold(),
		Signer:       cfg.PrivateKey(),
		Positions:    position.NewTracker(position.Options{Source: rpc, Logger: logger}),
		Balances:     rpc,
		Quoter:       jup,
		Planner:      jup,
		Retry:        policy,
		Executor:     executor,
		Janitor:      execution.NewJanitor(rpc, executor, logger),
		Trades:       trades,
		Observations: observations,
		Notifier:     notifier,
		Metrics:      metrics,
		Logger:       logger,
	})

	if once {
		return eng.Tick(ctx).Err
	}
	return eng.Run(ctx)
}

func startMetricsServer(addr string, registry *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(registry))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()
	return srv
}

// openStores picks the journal backends: ClickHouse for observations when
// configured, Postgres for trades (and observations without ClickHouse),
// memory otherwise.
func openStores(ctx context.Context, cfg *config.Config, useMemory bool, logger zerolog.Logger) (storage.TradeStore, storage.QuoteObservationStore, func(), error) {
	var trades storage.TradeStore = memory.NewTradeStore()
	var observations storage.QuoteObservationStore = memory.NewQuoteObservationStore()
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if useMemory {
		logger.Info().Msg("using in-memory storage")
		return trades, observations, closeAll, nil
	}

	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		trades = pgstore.NewTradeStore(pool)
		observations = pgstore.NewQuoteObservationStore(pool)
		logger.Info().Msg("journaling to postgres")
	} else {
		logger.Warn().Msg("no postgres DSN, trades kept in memory only")
	}

	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		observations = chstore.NewQuoteObservationStore(conn)
		logger.Info().Msg("recording quote observations to clickhouse")
	}

	return trades, observations, closeAll, nil
}
