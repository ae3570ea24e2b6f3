package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	BrokerConfig        BrokerConfig        `json:"broker"`
	TradingConfig       TradingConfig       `json:"trading"`
	InstitutionalConfig InstitutionalConfig `json:"institutional"`
	RiskConfig          RiskConfig          `json:"risk"`
	StrategyConfig      StrategyConfig      `json:"strategy"`
	DatabaseConfig      DatabaseConfig      `json:"database"`
	RedisConfig         RedisConfig         `json:"redis"`
	VaultConfig         VaultConfig         `json:"vault"`
	ServerConfig        ServerConfig        `json:"server"`
	AuthConfig          AuthConfig          `json:"auth"`
	LoggingConfig       LoggingConfig       `json:"logging"`
}

// BrokerConfig holds broker connectivity settings.
type BrokerConfig struct {
	APIKey     string  `json:"api_key"`
	SecretKey  string  `json:"secret_key"`
	BaseURL    string  `json:"base_url"`   // REST endpoint
	StreamURL  string  `json:"stream_url"` // websocket tick feed
	MockMode   bool    `json:"mock_mode"`  // use the in-memory mock adapter
	MockEquity float64 `json:"mock_equity"`
}

// TradingConfig holds the cycle driver's timing and identity defaults.
type TradingConfig struct {
	Symbol                 string `json:"symbol"`
	Timeframe              string `json:"timeframe"`      // coarse analysis timeframe, e.g. "15m"
	FineTimeframe          string `json:"fine_timeframe"` // finer timeframe for gaps, e.g. "1m"
	AnalysisIntervalSec    int    `json:"analysis_interval_sec"`
	MaintenanceIntervalSec int    `json:"maintenance_interval_sec"`
	CandleHistory          int    `json:"candle_history"`
	DryRun                 bool   `json:"dry_run"`
}

// InstitutionalConfig holds the gate's tunables. Timeouts are minutes.
type InstitutionalConfig struct {
	Enabled             bool    `json:"enabled"`
	PipSize             float64 `json:"pip_size"`
	SweepBufferPips     float64 `json:"sweep_buffer_pips"`
	MinGapPips          float64 `json:"min_gap_pips"`
	MaxTradesPerSession int     `json:"max_trades_per_session"`
	SwingLookback       int     `json:"swing_lookback"`

	WaitSweepTimeoutMin      int `json:"wait_sweep_timeout_min"`
	WaitChochTimeoutMin      int `json:"wait_choch_timeout_min"`
	WaitFVGTimeoutMin        int `json:"wait_fvg_timeout_min"`
	WaitMitigationTimeoutMin int `json:"wait_mitigation_timeout_min"`
	WaitEntryTimeoutMin      int `json:"wait_entry_timeout_min"`
	CooldownMin              int `json:"cooldown_min"`

	SessionWindows []SessionWindowConfig `json:"session_windows"`
}

// SessionWindowConfig maps a minute-of-day range (UTC) to a session name.
type SessionWindowConfig struct {
	Kind        string `json:"kind"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
}

// RiskConfig holds position sizing and circuit breaker settings.
type RiskConfig struct {
	RiskPercentPerTrade float64 `json:"risk_percent_per_trade"`
	StopLossPips        float64 `json:"stop_loss_pips"`
	TakeProfitPips      float64 `json:"take_profit_pips"`

	BreakerEnabled      bool    `json:"breaker_enabled"`
	MaxDailyLossPercent float64 `json:"max_daily_loss_percent"`
	MaxOpenTrades       int     `json:"max_open_trades"`
	TradingWindowStart  int     `json:"trading_window_start"` // minute-of-day, -1 disables
	TradingWindowEnd    int     `json:"trading_window_end"`

	TrailingEnabled        bool    `json:"trailing_enabled"`
	TrailingActivationPips float64 `json:"trailing_activation_pips"`
	TrailingDistancePips   float64 `json:"trailing_distance_pips"`
}

// StrategyConfig enables the stateless signal generators.
type StrategyConfig struct {
	MACrossEnabled       bool `json:"ma_cross_enabled"`
	MACrossFastPeriod    int  `json:"ma_cross_fast_period"`
	MACrossSlowPeriod    int  `json:"ma_cross_slow_period"`
	ORBEnabled           bool `json:"orb_enabled"`
	ORBOpenMinute        int  `json:"orb_open_minute"`
	ORBRangeCandles      int  `json:"orb_range_candles"`
	MeanReversionEnabled bool `json:"mean_reversion_enabled"`
	RSIPeriod            int  `json:"rsi_period"`
	AmplitudeEnabled     bool `json:"amplitude_enabled"`
	AmplitudeMinHistory  int  `json:"amplitude_min_history"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings for the gate snapshot cache.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// VaultConfig holds Vault settings for broker credential lookup.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

// ServerConfig holds the control API settings.
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeoutSec  int    `json:"read_timeout_sec"`
	WriteTimeoutSec int    `json:"write_timeout_sec"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `json:"level"`
	Output string `json:"output"`
	Pretty bool   `json:"pretty"`
}

// Load reads config.json if present, then applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Broker
	cfg.BrokerConfig.APIKey = getEnvOrDefault("BROKER_API_KEY", cfg.BrokerConfig.APIKey)
	cfg.BrokerConfig.SecretKey = getEnvOrDefault("BROKER_SECRET_KEY", cfg.BrokerConfig.SecretKey)
	cfg.BrokerConfig.BaseURL = getEnvOrDefault("BROKER_BASE_URL", cfg.BrokerConfig.BaseURL)
	cfg.BrokerConfig.StreamURL = getEnvOrDefault("BROKER_STREAM_URL", cfg.BrokerConfig.StreamURL)
	if v := os.Getenv("BROKER_MOCK_MODE"); v != "" {
		cfg.BrokerConfig.MockMode = v == "true"
	}

	// Trading
	cfg.TradingConfig.Symbol = getEnvOrDefault("TRADING_SYMBOL", cfg.TradingConfig.Symbol)
	if v := os.Getenv("TRADING_DRY_RUN"); v != "" {
		cfg.TradingConfig.DryRun = v == "true"
	}

	// Institutional
	if v := os.Getenv("INSTITUTIONAL_ENABLED"); v != "" {
		cfg.InstitutionalConfig.Enabled = v == "true"
	}

	// Risk
	cfg.RiskConfig.RiskPercentPerTrade = getEnvFloatOrDefault("RISK_PERCENT_PER_TRADE", cfg.RiskConfig.RiskPercentPerTrade)
	cfg.RiskConfig.MaxDailyLossPercent = getEnvFloatOrDefault("RISK_MAX_DAILY_LOSS", cfg.RiskConfig.MaxDailyLossPercent)

	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)

	// Redis
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	// Vault
	if v := os.Getenv("VAULT_ENABLED"); v != "" {
		cfg.VaultConfig.Enabled = v == "true"
	}
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)

	// Server / auth
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.AuthConfig.Enabled = v == "true"
	}

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
}

func applyDefaults(cfg *Config) {
	if cfg.TradingConfig.Symbol == "" {
		cfg.TradingConfig.Symbol = "EURUSD"
	}
	if cfg.TradingConfig.Timeframe == "" {
		cfg.TradingConfig.Timeframe = "15m"
	}
	if cfg.TradingConfig.FineTimeframe == "" {
		cfg.TradingConfig.FineTimeframe = "1m"
	}
	if cfg.TradingConfig.AnalysisIntervalSec <= 0 {
		cfg.TradingConfig.AnalysisIntervalSec = 60
	}
	if cfg.TradingConfig.MaintenanceIntervalSec <= 0 {
		cfg.TradingConfig.MaintenanceIntervalSec = 10
	}
	if cfg.TradingConfig.CandleHistory <= 0 {
		cfg.TradingConfig.CandleHistory = 200
	}
	if cfg.BrokerConfig.MockEquity <= 0 {
		cfg.BrokerConfig.MockEquity = 10000
	}

	inst := &cfg.InstitutionalConfig
	if inst.PipSize <= 0 {
		inst.PipSize = 0.0001
	}
	if inst.SweepBufferPips <= 0 {
		inst.SweepBufferPips = 2
	}
	if inst.MinGapPips <= 0 {
		inst.MinGapPips = 3
	}
	if inst.MaxTradesPerSession <= 0 {
		inst.MaxTradesPerSession = 2
	}
	if inst.SwingLookback <= 0 {
		inst.SwingLookback = 2
	}
	if inst.WaitSweepTimeoutMin <= 0 {
		inst.WaitSweepTimeoutMin = 90
	}
	if inst.WaitChochTimeoutMin <= 0 {
		inst.WaitChochTimeoutMin = 60
	}
	if inst.WaitFVGTimeoutMin <= 0 {
		inst.WaitFVGTimeoutMin = 45
	}
	if inst.WaitMitigationTimeoutMin <= 0 {
		inst.WaitMitigationTimeoutMin = 60
	}
	if inst.WaitEntryTimeoutMin <= 0 {
		inst.WaitEntryTimeoutMin = 30
	}
	if inst.CooldownMin <= 0 {
		inst.CooldownMin = 60
	}

	if cfg.RiskConfig.RiskPercentPerTrade <= 0 {
		cfg.RiskConfig.RiskPercentPerTrade = 1.0
	}
	if cfg.RiskConfig.StopLossPips <= 0 {
		cfg.RiskConfig.StopLossPips = 10
	}
	if cfg.RiskConfig.TakeProfitPips <= 0 {
		cfg.RiskConfig.TakeProfitPips = 20
	}
	if cfg.RiskConfig.MaxDailyLossPercent <= 0 {
		cfg.RiskConfig.MaxDailyLossPercent = 5.0
	}
	if cfg.RiskConfig.MaxOpenTrades <= 0 {
		cfg.RiskConfig.MaxOpenTrades = 3
	}

	if cfg.ServerConfig.Port <= 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ReadTimeoutSec <= 0 {
		cfg.ServerConfig.ReadTimeoutSec = 30
	}
	if cfg.ServerConfig.WriteTimeoutSec <= 0 {
		cfg.ServerConfig.WriteTimeoutSec = 30
	}
	if cfg.AuthConfig.AccessTokenDuration <= 0 {
		cfg.AuthConfig.AccessTokenDuration = 24 * time.Hour
	}

	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("auth enabled but AUTH_JWT_SECRET is empty")
	}
	if !c.BrokerConfig.MockMode && (c.BrokerConfig.BaseURL == "" || c.BrokerConfig.StreamURL == "") {
		return fmt.Errorf("broker base and stream URLs required outside mock mode")
	}
	if c.RiskConfig.RiskPercentPerTrade > 10 {
		return fmt.Errorf("risk percent per trade %.1f is implausibly large", c.RiskConfig.RiskPercentPerTrade)
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
