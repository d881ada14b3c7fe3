// Package config provides configuration management for the hedging engine.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Pricing PricingConfig `mapstructure:"pricing"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Hedge   HedgeConfig   `mapstructure:"hedge"`
	Costing CostingConfig `mapstructure:"costing"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
}

// PricingConfig holds Black-Scholes inputs shared by every pricing call.
type PricingConfig struct {
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
}

// Delta modes accepted by RiskConfig.DeltaMode.
const (
	DeltaModeAuto      = "auto"
	DeltaModeSupplied  = "supplied"
	DeltaModeModel     = "model"
	DeltaModeMoneyness = "moneyness"
)

// RiskConfig holds portfolio risk assumptions.
type RiskConfig struct {
	AnnualVolatility float64 `mapstructure:"annual_volatility"`
	VaRMultiplier    float64 `mapstructure:"var_multiplier"`
	VaRConfidence    float64 `mapstructure:"var_confidence"` // used when var_multiplier is 0
	TradingDays      int     `mapstructure:"trading_days"`
	MoneynessBand    float64 `mapstructure:"moneyness_band"`
	DeltaMode        string  `mapstructure:"delta_mode"` // auto, supplied, model, moneyness
}

// HedgeConfig holds hedge search limits.
type HedgeConfig struct {
	DeltaTolerance float64 `mapstructure:"delta_tolerance"`
	MinQuantity    float64 `mapstructure:"min_quantity"`
	MaxResults     int     `mapstructure:"max_results"`
	MaxCost        float64 `mapstructure:"max_cost"` // 0 disables the ceiling
}

// CostingConfig holds execution cost assumptions. Fee keys are venue then
// instrument kind.
type CostingConfig struct {
	Fees            map[string]map[string]float64 `mapstructure:"fees"`
	Slippage        map[string]float64            `mapstructure:"slippage"`
	DefaultFee      float64                       `mapstructure:"default_fee"`
	DefaultSlippage float64                       `mapstructure:"default_slippage"`
}

// StoreConfig locates the portfolio snapshot database.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/btc-hedger"
	}
	return filepath.Join(home, ".config", "btc-hedger")
}

// ConfigPath returns the path of config.toml inside configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a commented template and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(configDir, "portfolio.db")
	}
	if cfg.Log.FilePath == "" {
		cfg.Log.FilePath = filepath.Join(configDir, "logs", "hedger.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without touching the filesystem.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: unmarshal defaults: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pricing.risk_free_rate", 0.05)

	v.SetDefault("risk.annual_volatility", 0.20)
	v.SetDefault("risk.var_multiplier", 1.645)
	v.SetDefault("risk.var_confidence", 0.95)
	v.SetDefault("risk.trading_days", 252)
	v.SetDefault("risk.moneyness_band", 0.02)
	v.SetDefault("risk.delta_mode", DeltaModeAuto)

	v.SetDefault("hedge.delta_tolerance", 0.01)
	v.SetDefault("hedge.min_quantity", 0.001)
	v.SetDefault("hedge.max_results", 5)
	v.SetDefault("hedge.max_cost", 0.0)

	v.SetDefault("costing.fees", map[string]interface{}{
		"okx":     map[string]interface{}{"spot": 0.001, "perpetual": 0.0005, "option": 0.0003},
		"deribit": map[string]interface{}{"spot": 0.0005, "perpetual": 0.0002, "option": 0.0001},
	})
	v.SetDefault("costing.slippage", map[string]interface{}{
		"spot": 0.0001, "perpetual": 0.0002, "option": 0.001,
	})
	v.SetDefault("costing.default_fee", 0.001)
	v.SetDefault("costing.default_slippage", 0.0001)

	v.SetDefault("store.db_path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", false)
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := envFloat("HEDGER_RISK_FREE_RATE"); ok {
		cfg.Pricing.RiskFreeRate = v
	}
	if v, ok := envFloat("HEDGER_ANNUAL_VOL"); ok {
		cfg.Risk.AnnualVolatility = v
	}
	if v := os.Getenv("HEDGER_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("HEDGER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if math.IsNaN(c.Pricing.RiskFreeRate) || c.Pricing.RiskFreeRate < -1 || c.Pricing.RiskFreeRate > 1 {
		return fmt.Errorf("risk_free_rate must be between -1 and 1")
	}

	// Risk parameters
	if !(c.Risk.AnnualVolatility > 0) {
		return fmt.Errorf("annual_volatility must be positive")
	}
	if c.Risk.VaRMultiplier < 0 {
		return fmt.Errorf("var_multiplier must be non-negative")
	}
	if c.Risk.VaRMultiplier == 0 && (c.Risk.VaRConfidence <= 0.5 || c.Risk.VaRConfidence >= 1) {
		return fmt.Errorf("var_confidence must be in (0.5, 1) when var_multiplier is 0")
	}
	if c.Risk.TradingDays <= 0 {
		return fmt.Errorf("trading_days must be positive")
	}
	if c.Risk.MoneynessBand < 0 || c.Risk.MoneynessBand >= 1 {
		return fmt.Errorf("moneyness_band must be between 0 and 1")
	}
	switch c.Risk.DeltaMode {
	case "", DeltaModeAuto, DeltaModeSupplied, DeltaModeModel, DeltaModeMoneyness:
	default:
		return fmt.Errorf("invalid delta_mode: %s (must be auto, supplied, model or moneyness)", c.Risk.DeltaMode)
	}

	// Hedge parameters
	if !(c.Hedge.DeltaTolerance > 0) {
		return fmt.Errorf("delta_tolerance must be positive")
	}
	if c.Hedge.MinQuantity < 0 {
		return fmt.Errorf("min_quantity must be non-negative")
	}
	if c.Hedge.MaxResults <= 0 {
		return fmt.Errorf("max_results must be positive")
	}
	if c.Hedge.MaxCost < 0 {
		return fmt.Errorf("max_cost must be non-negative")
	}

	// Costing tables
	for venue, kinds := range c.Costing.Fees {
		for kind, rate := range kinds {
			if rate < 0 || rate >= 1 {
				return fmt.Errorf("fee rate %s.%s must be in [0, 1)", venue, kind)
			}
		}
	}
	for kind, rate := range c.Costing.Slippage {
		if rate < 0 || rate >= 1 {
			return fmt.Errorf("slippage rate %s must be in [0, 1)", kind)
		}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	return nil
}

// HedgeMaxCost returns the configured cost ceiling, or nil when disabled.
func (c *Config) HedgeMaxCost() *float64 {
	if c.Hedge.MaxCost <= 0 {
		return nil
	}
	v := c.Hedge.MaxCost
	return &v
}
