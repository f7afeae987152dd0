// Package config loads trader settings from a YAML file, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"solana-threshold-trader/internal/domain"
	"solana-threshold-trader/internal/strategy"
)

// Default configuration values.
const (
	DefaultJupiterURL         = "https://lite-api.jup.ag/swap/v1"
	DefaultRequestsPerSecond  = 1.0
	DefaultSlippageBps        = 50
	DefaultCheckInterval      = 10 * time.Second
	DefaultTokenDecimals      = 6
	DefaultFeeReserveLamports = 10_000_000
	DefaultMetricsAddr        = ":9090"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
)

// EnvPrivateKey holds the base58 signing key. It is never read from the YAML file.
const EnvPrivateKey = "TRADER_PRIVATE_KEY"

// Validation errors wrapped by ConfigError.
var (
	ErrMissing = errors.New("value is required")
	ErrInvalid = errors.New("invalid value")
)

// ConfigError reports a missing or invalid setting. It is fatal at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config is the full process configuration.
type Config struct {
	RPC struct {
		URL   string `yaml:"url"`
		WSURL string `yaml:"ws_url"`
	} `yaml:"rpc"`

	Jupiter struct {
		URL               string  `yaml:"url"`
		APIKey            string  `yaml:"api_key"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"jupiter"`

	Trading struct {
		TokenMint           string `yaml:"token_mint"`
		TokenDecimals       int32  `yaml:"token_decimals"`
		TradeSizeLamports   uint64 `yaml:"trade_size_lamports"`
		SlippageBps         int    `yaml:"slippage_bps"`
		BuyAtOrBelow        string `yaml:"buy_at_or_below"`  // lamports per whole token
		SellAtOrAbove       string `yaml:"sell_at_or_above"` // lamports per whole token
		CheckInterval       string `yaml:"check_interval"`
		PriorityFeeLamports uint64 `yaml:"priority_fee_lamports"`
		FeeReserveLamports  uint64 `yaml:"fee_reserve_lamports"`
	} `yaml:"trading"`

	Log LogConfig `yaml:"log"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Storage struct {
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickHouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"storage"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	privateKey solanago.PrivateKey
	threshold  domain.ThresholdConfig
}

// LogConfig selects log level, output format and an optional rotated file.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // console|json
	File   string `yaml:"file"`
}

// Load reads .env (if present), the YAML file at path (if non-empty), and
// TRADER_* environment variables, in increasing priority. The result is validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigError{Field: ".env", Err: err}
	}

	cfg := &Config{}
	cfg.setDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Field: "file", Err: err}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Field: "file", Err: err}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	c.Jupiter.URL = DefaultJupiterURL
	c.Jupiter.RequestsPerSecond = DefaultRequestsPerSecond
	c.Trading.SlippageBps = DefaultSlippageBps
	c.Trading.CheckInterval = DefaultCheckInterval.String()
	c.Trading.TokenDecimals = DefaultTokenDecimals
	c.Trading.FeeReserveLamports = DefaultFeeReserveLamports
	c.Metrics.Addr = DefaultMetricsAddr
	c.Log.Level = DefaultLogLevel
	c.Log.Format = DefaultLogFormat
}

// applyEnv overlays TRADER_* variables onto c.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(p *string) func(string) error {
		return func(v string) error { *p = v; return nil }
	}
	u64 := func(p *uint64) func(string) error {
		return func(v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			*p = n
			return err
		}
	}

	bindings := []struct {
		env string
		set func(string) error
	}{
		{"TRADER_RPC_URL", str(&c.RPC.URL)},
		{"TRADER_WS_URL", str(&c.RPC.WSURL)},
		{"TRADER_JUPITER_URL", str(&c.Jupiter.URL)},
		{"TRADER_JUPITER_API_KEY", str(&c.Jupiter.APIKey)},
		{"TRADER_JUPITER_RPS", func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			c.Jupiter.RequestsPerSecond = f
			return err
		}},
		{"TRADER_TOKEN_MINT", str(&c.Trading.TokenMint)},
		{"TRADER_TOKEN_DECIMALS", func(v string) error {
			n, err := strconv.ParseInt(v, 10, 32)
			c.Trading.TokenDecimals = int32(n)
			return err
		}},
		{"TRADER_TRADE_SIZE_LAMPORTS", u64(&c.Trading.TradeSizeLamports)},
		{"TRADER_SLIPPAGE_BPS", func(v string) error {
			n, err := strconv.Atoi(v)
			c.Trading.SlippageBps = n
			return err
		}},
		{"TRADER_BUY_AT_OR_BELOW", str(&c.Trading.BuyAtOrBelow)},
		{"TRADER_SELL_AT_OR_ABOVE", str(&c.Trading.SellAtOrAbove)},
		{"TRADER_CHECK_INTERVAL", str(&c.Trading.CheckInterval)},
		{"TRADER_PRIORITY_FEE_LAMPORTS", u64(&c.Trading.PriorityFeeLamports)},
		{"TRADER_FEE_RESERVE_LAMPORTS", u64(&c.Trading.FeeReserveLamports)},
		{"TRADER_LOG_LEVEL", str(&c.Log.Level)},
		{"TRADER_LOG_FORMAT", str(&c.Log.Format)},
		{"TRADER_LOG_FILE", str(&c.Log.File)},
		{"TRADER_METRICS_ADDR", str(&c.Metrics.Addr)},
		{"TRADER_POSTGRES_DSN", str(&c.Storage.PostgresDSN)},
		{"TRADER_CLICKHOUSE_DSN", str(&c.Storage.ClickHouseDSN)},
		{"TRADER_TELEGRAM_TOKEN", str(&c.Telegram.Token)},
		{"TRADER_TELEGRAM_CHAT_ID", func(v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			c.Telegram.ChatID = n
			return err
		}},
	}

	for _, b := range bindings {
		v, ok := lookup(b.env)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.set(strings.TrimSpace(v)); err != nil {
			return &ConfigError{Field: b.env, Err: fmt.Errorf("%w: %v", ErrInvalid, err)}
		}
	}

	if v, ok := lookup(EnvPrivateKey); ok && v != "" {
		key, err := solanago.PrivateKeyFromBase58(strings.TrimSpace(v))
		if err != nil {
			return &ConfigError{Field: EnvPrivateKey, Err: fmt.Errorf("%w: not base58", ErrInvalid)}
		}
		c.privateKey = key
	}
	return nil
}

// thresholdErrorFields names the setting behind each strategy validation error.
var thresholdErrorFields = []struct {
	err   error
	field string
}{
	{strategy.ErrMissingTokenMint, "trading.token_mint"},
	{strategy.ErrTokenIsBaseAsset, "trading.token_mint"},
	{strategy.ErrZeroTradeSize, "trading.trade_size_lamports"},
	{strategy.ErrInvalidSlippage, "trading.slippage_bps"},
	{strategy.ErrInvalidThreshold, "trading.thresholds"},
	{strategy.ErrThresholdsInverted, "trading.thresholds"},
	{strategy.ErrInvalidInterval, "trading.check_interval"},
	{strategy.ErrInvalidDecimals, "trading.token_decimals"},
}

// Validate checks every setting and derives the threshold configuration.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return &ConfigError{Field: "rpc.url", Err: ErrMissing}
	}
	if c.Jupiter.URL == "" {
		return &ConfigError{Field: "jupiter.url", Err: ErrMissing}
	}
	if c.Jupiter.RequestsPerSecond < 0 {
		return &ConfigError{Field: "jupiter.requests_per_second", Err: ErrInvalid}
	}
	if len(c.privateKey) == 0 {
		return &ConfigError{Field: EnvPrivateKey, Err: ErrMissing}
	}
	if len(c.privateKey) != 64 {
		return &ConfigError{Field: EnvPrivateKey, Err: fmt.Errorf("%w: expected 64 bytes, got %d", ErrInvalid, len(c.privateKey))}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return &ConfigError{Field: "log.level", Err: err}
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return &ConfigError{Field: "log.format", Err: fmt.Errorf("%w: %q", ErrInvalid, c.Log.Format)}
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		return &ConfigError{Field: "telegram.chat_id", Err: ErrMissing}
	}

	buy, err := parsePrice(c.Trading.BuyAtOrBelow)
	if err != nil {
		return &ConfigError{Field: "trading.buy_at_or_below", Err: err}
	}
	sell, err := parsePrice(c.Trading.SellAtOrAbove)
	if err != nil {
		return &ConfigError{Field: "trading.sell_at_or_above", Err: err}
	}
	interval, err := time.ParseDuration(c.Trading.CheckInterval)
	if err != nil {
		return &ConfigError{Field: "trading.check_interval", Err: fmt.Errorf("%w: %v", ErrInvalid, err)}
	}

	t := domain.ThresholdConfig{
		TokenMint:           c.Trading.TokenMint,
		TradeSizeUnits:      c.Trading.TradeSizeLamports,
		SlippageBps:         c.Trading.SlippageBps,
		BuyAtOrBelowPrice:   buy,
		SellAtOrAbovePrice:  sell,
		CheckInterval:       interval,
		PriorityFeeLamports: c.Trading.PriorityFeeLamports,
		QuoteTokenDecimals:  c.Trading.TokenDecimals,
		FeeReserveLamports:  c.Trading.FeeReserveLamports,
	}
	if err := strategy.Validate(t); err != nil {
		field := "trading"
		for _, f := range thresholdErrorFields {
			if errors.Is(err, f.err) {
				field = f.field
				break
			}
		}
		return &ConfigError{Field: field, Err: err}
	}

	c.threshold = t
	return nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, ErrMissing
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return d, nil
}

// Threshold returns the validated trading parameters.
func (c *Config) Threshold() domain.ThresholdConfig {
	return c.threshold
}

// PrivateKey returns the signing key. It is only used to sign locally.
func (c *Config) PrivateKey() solanago.PrivateKey {
	return c.privateKey
}
