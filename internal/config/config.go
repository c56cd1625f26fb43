// Package config loads the engine's configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
		CacheTTL    string `yaml:"cache_ttl"`
	} `yaml:"database"`
	Engine struct {
		Variant         string `yaml:"variant"`          // "simple" or "extended"
		Operator        string `yaml:"operator"`         // governance identity
		EpochPeriod     string `yaml:"epoch_period"`     // duration, e.g. "6h"
		StartTime       string `yaml:"start_time"`       // RFC3339; empty = now
		AutoAllocate    bool   `yaml:"auto_allocate"`    // scheduler triggers epochs
		OracleStartUSD  string `yaml:"oracle_start_usd"` // initial simulated price
		PeggedSymbol    string `yaml:"pegged_symbol"`
		BondSymbol      string `yaml:"bond_symbol"`
		ShareSymbol     string `yaml:"share_symbol"`
		InitialSupply   string `yaml:"initial_supply"`   // pegged supply seeded at boot
		SeedAccount     string `yaml:"seed_account"`     // receives the initial supply
	} `yaml:"engine"`
	Policy struct {
		PriceCeiling              string   `yaml:"price_ceiling"`
		BondDepletionFloorPct     string   `yaml:"bond_depletion_floor_pct"`
		MaxExpansionPct           string   `yaml:"max_expansion_pct"`
		MaxContractionPct         string   `yaml:"max_contraction_pct"`
		MaxDebtRatioPct           string   `yaml:"max_debt_ratio_pct"`
		FundAllocationRate        string   `yaml:"fund_allocation_rate"`
		SeigniorageFloorPct       string   `yaml:"seigniorage_floor_pct"`
		BootstrapEpochs           uint64   `yaml:"bootstrap_epochs"`
		BootstrapExpansionPct     string   `yaml:"bootstrap_expansion_pct"`
		LiquidityIncentivePct     string   `yaml:"liquidity_incentive_pct"`
		LiquidityIncentiveEpochs  uint64   `yaml:"liquidity_incentive_epochs"`
		LiquidityRecipients       []string `yaml:"liquidity_recipients"`
	} `yaml:"policy"`
	Boardroom struct {
		WithdrawLockupEpochs uint64 `yaml:"withdraw_lockup_epochs"`
		RewardLockupEpochs   uint64 `yaml:"reward_lockup_epochs"`
	} `yaml:"boardroom"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Database.RedisURL = v
	}
	if v := os.Getenv("ENGINE_VARIANT"); v != "" {
		cfg.Engine.Variant = v
	}
	if v := os.Getenv("ENGINE_OPERATOR"); v != "" {
		cfg.Engine.Operator = v
	}
	if v := os.Getenv("EPOCH_PERIOD"); v != "" {
		cfg.Engine.EpochPeriod = v
	}
	if v := os.Getenv("AUTO_ALLOCATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Engine.AutoAllocate = b
		}
	}

	// Defaults
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Database.CacheTTL == "" {
		cfg.Database.CacheTTL = "30s"
	}
	if cfg.Engine.Variant == "" {
		cfg.Engine.Variant = "extended"
	}
	if cfg.Engine.Operator == "" {
		cfg.Engine.Operator = "operator"
	}
	if cfg.Engine.EpochPeriod == "" {
		cfg.Engine.EpochPeriod = "6h"
	}
	if cfg.Engine.OracleStartUSD == "" {
		cfg.Engine.OracleStartUSD = "1.00"
	}
	if cfg.Engine.PeggedSymbol == "" {
		cfg.Engine.PeggedSymbol = "CASH"
	}
	if cfg.Engine.BondSymbol == "" {
		cfg.Engine.BondSymbol = "BOND"
	}
	if cfg.Engine.ShareSymbol == "" {
		cfg.Engine.ShareSymbol = "SHARE"
	}
	if cfg.Engine.InitialSupply == "" {
		cfg.Engine.InitialSupply = "1000000"
	}
	if cfg.Engine.SeedAccount == "" {
		cfg.Engine.SeedAccount = cfg.Engine.Operator
	}
	if cfg.Boardroom.WithdrawLockupEpochs == 0 && cfg.Boardroom.RewardLockupEpochs == 0 && cfg.Engine.Variant == "extended" {
		cfg.Boardroom.WithdrawLockupEpochs = 5
		cfg.Boardroom.RewardLockupEpochs = 3
	}

	return cfg, nil
}

// Validate checks that all required fields are set and well-formed.
func (c *Config) Validate() error {
	if c.Engine.Variant != "simple" && c.Engine.Variant != "extended" {
		return fmt.Errorf("engine.variant must be \"simple\" or \"extended\", got %q", c.Engine.Variant)
	}
	if c.Engine.Operator == "" {
		return fmt.Errorf("engine.operator is required")
	}
	if _, err := time.ParseDuration(c.Engine.EpochPeriod); err != nil {
		return fmt.Errorf("engine.epoch_period: %w", err)
	}
	if _, err := time.ParseDuration(c.Database.CacheTTL); err != nil {
		return fmt.Errorf("database.cache_ttl: %w", err)
	}
	if c.Engine.StartTime != "" {
		if _, err := time.Parse(time.RFC3339, c.Engine.StartTime); err != nil {
			return fmt.Errorf("engine.start_time: %w", err)
		}
	}
	return nil
}

// Period returns the parsed epoch period. Validate must have passed.
func (c *Config) Period() time.Duration {
	d, _ := time.ParseDuration(c.Engine.EpochPeriod)
	return d
}

// TTL returns the parsed cache TTL. Validate must have passed.
func (c *Config) TTL() time.Duration {
	d, _ := time.ParseDuration(c.Database.CacheTTL)
	return d
}

// Start returns the configured start time, or now if unset.
func (c *Config) Start() time.Time {
	if c.Engine.StartTime == "" {
		return time.Now().UTC()
	}
	t, _ := time.Parse(time.RFC3339, c.Engine.StartTime)
	return t
}
