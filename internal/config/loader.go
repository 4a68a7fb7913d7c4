package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SMBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SMBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SMBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SMBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SMBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SMBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SMBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SMBOT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SMBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "SMBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SMBOT_POSTGRES_POOL_MIN_CONNS")

	// ── Metrics ──
	setInt(&cfg.Metrics.BufferSize, "SMBOT_METRICS_BUFFER_SIZE")
	setInt(&cfg.Metrics.Lookback, "SMBOT_METRICS_LOOKBACK")
	setInt(&cfg.Metrics.ATRPeriod, "SMBOT_METRICS_ATR_PERIOD")

	// ── Strategy ──
	setFloat64(&cfg.Strategy.CostThreshold, "SMBOT_STRATEGY_COST_THRESHOLD")

	// ── Risk ──
	setFloat64(&cfg.Risk.RiskPct, "SMBOT_RISK_RISK_PCT")
	setFloat64(&cfg.Risk.MaxDDPct, "SMBOT_RISK_MAX_DD_PCT")
	setFloat64(&cfg.Risk.DailyStop, "SMBOT_RISK_DAILY_STOP")
	setFloat64(&cfg.Risk.DailyLossCap, "SMBOT_RISK_DAILY_LOSS_CAP")
	setFloat64(&cfg.Risk.ExchangeMinQty, "SMBOT_RISK_EXCHANGE_MIN_QTY")
	setFloat64(&cfg.Risk.FeeBps, "SMBOT_RISK_FEE_BPS")
	setFloat64(&cfg.Risk.StartEquity, "SMBOT_RISK_START_EQUITY")
	setStr(&cfg.Risk.UnhaltPassphraseHash, "SMBOT_RISK_UNHALT_PASSPHRASE_HASH")

	// ── Gateway ──
	setStr(&cfg.Gateway.Mode, "SMBOT_GATEWAY_MODE")
	setFloat64(&cfg.Gateway.MaxSlippageBps, "SMBOT_GATEWAY_MAX_SLIPPAGE_BPS")

	// ── Telemetry ──
	setBool(&cfg.Telemetry.Enabled, "SMBOT_TELEMETRY_ENABLED")
	setInt(&cfg.Telemetry.Port, "SMBOT_TELEMETRY_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SMBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SMBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "SMBOT_NOTIFY_EVENTS")

	// ── Backtest ──
	setStr(&cfg.Backtest.DataDir, "SMBOT_BACKTEST_DATA_DIR")
	setStringSlice(&cfg.Backtest.Symbols, "SMBOT_BACKTEST_SYMBOLS")
	setInt(&cfg.Backtest.TimeExitBars, "SMBOT_BACKTEST_TIME_EXIT_BARS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SMBOT_MODE")
	setStr(&cfg.LogLevel, "SMBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
