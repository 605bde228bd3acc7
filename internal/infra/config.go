package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"quotefuse/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// VenueConfig holds per-venue connection settings.
type VenueConfig struct {
	Enabled bool     `yaml:"enabled"`
	WSURL   string   `yaml:"ws_url"`
	RestURL string   `yaml:"rest_url"`
	Symbols []string `yaml:"symbols"`
}

// Config holds every recognized option. Credentials are overridden from the
// environment after load and never live in the file.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Venues struct {
		OKX     VenueConfig `yaml:"okx"`
		Bybit   VenueConfig `yaml:"bybit"`
		Binance VenueConfig `yaml:"binance"`
		Gate    VenueConfig `yaml:"gate"`
	} `yaml:"venues"`

	Execution struct {
		WSURL     string `yaml:"ws_url"`
		RestURL   string `yaml:"rest_url"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Settle    string `yaml:"settle"`
	} `yaml:"execution"`

	Quoting struct {
		Symbol              string          `yaml:"symbol"`
		SpreadBps           decimal.Decimal `yaml:"spread_bps"`
		QuoteSize           decimal.Decimal `yaml:"quote_size"`
		CooldownFloorMS     int             `yaml:"cooldown_floor_ms"`
		MaxPositionNotional decimal.Decimal `yaml:"max_position_notional"`
		PriceTolerance      decimal.Decimal `yaml:"price_tolerance"`
	} `yaml:"quoting"`

	Fusion struct {
		FreshnessMS      int     `yaml:"freshness_ms"`
		DemeanHalfLifeMS int     `yaml:"demean_half_life_ms"`
		DemeanAlpha      float64 `yaml:"demean_alpha"`
	} `yaml:"fusion"`

	Reconnect struct {
		MinDelayMS int `yaml:"min_delay_ms"`
		MaxDelayMS int `yaml:"max_delay_ms"`
	} `yaml:"reconnect"`

	Inventory struct {
		ResyncIntervalSec int `yaml:"resync_interval_sec"`
	} `yaml:"inventory"`

	Journal struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"journal"`

	Logging struct {
		Level string `yaml:"level"`
		Path  string `yaml:"path"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides, and validates the result. Any failure here is fatal; the
// process never starts on a half-valid config.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Field: "file", Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Quoting.CooldownFloorMS <= 0 {
		cfg.Quoting.CooldownFloorMS = 50
	}
	if cfg.Fusion.FreshnessMS <= 0 {
		cfg.Fusion.FreshnessMS = 1500
	}
	if cfg.Fusion.DemeanHalfLifeMS <= 0 {
		cfg.Fusion.DemeanHalfLifeMS = 8000
	}
	if cfg.Fusion.DemeanAlpha <= 0 || cfg.Fusion.DemeanAlpha > 1 {
		cfg.Fusion.DemeanAlpha = 0.1
	}
	if cfg.Reconnect.MinDelayMS <= 0 {
		cfg.Reconnect.MinDelayMS = 250
	}
	if cfg.Reconnect.MaxDelayMS <= 0 {
		cfg.Reconnect.MaxDelayMS = 5000
	}
	if cfg.Inventory.ResyncIntervalSec <= 0 {
		cfg.Inventory.ResyncIntervalSec = 60
	}
	if cfg.Execution.Settle == "" {
		cfg.Execution.Settle = "usdt"
	}
	if cfg.Quoting.PriceTolerance.IsZero() {
		cfg.Quoting.PriceTolerance = decimal.RequireFromString("0.01")
	}
	if cfg.Logging.Path == "" {
		cfg.Logging.Path = "logs/quotefuse.log"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	for name, vc := range map[string]VenueConfig{
		"okx":     c.Venues.OKX,
		"bybit":   c.Venues.Bybit,
		"binance": c.Venues.Binance,
		"gate":    c.Venues.Gate,
	} {
		if !vc.Enabled {
			continue
		}
		if !strings.HasPrefix(vc.WSURL, "ws://") && !strings.HasPrefix(vc.WSURL, "wss://") {
			return &domain.ConfigError{Field: "venues." + name + ".ws_url",
				Err: fmt.Errorf("invalid websocket URL %q", vc.WSURL)}
		}
		if len(vc.Symbols) == 0 {
			return &domain.ConfigError{Field: "venues." + name + ".symbols",
				Err: fmt.Errorf("at least one symbol required")}
		}
	}
	if c.Quoting.Symbol == "" {
		return &domain.ConfigError{Field: "quoting.symbol", Err: fmt.Errorf("required")}
	}
	if !c.Quoting.SpreadBps.IsPositive() {
		return &domain.ConfigError{Field: "quoting.spread_bps", Err: fmt.Errorf("must be positive")}
	}
	if !c.Quoting.QuoteSize.IsPositive() {
		return &domain.ConfigError{Field: "quoting.quote_size", Err: fmt.Errorf("must be positive")}
	}
	if !c.Quoting.MaxPositionNotional.IsPositive() {
		return &domain.ConfigError{Field: "quoting.max_position_notional", Err: fmt.Errorf("must be positive")}
	}
	if c.Reconnect.MinDelayMS > c.Reconnect.MaxDelayMS {
		return &domain.ConfigError{Field: "reconnect", Err: fmt.Errorf("min_delay_ms exceeds max_delay_ms")}
	}
	if c.ExecutionEnabled() {
		if c.Execution.AccessKey == "" || c.Execution.SecretKey == "" {
			return &domain.ConfigError{Field: "execution",
				Err: fmt.Errorf("QUOTEFUSE_GATE_KEY / QUOTEFUSE_GATE_SECRET not set")}
		}
	}
	return nil
}

// ExecutionEnabled reports whether order submission is configured at all.
// Market-data-only runs are legitimate; the strategy then plans but the
// gateway is a no-op.
func (c *Config) ExecutionEnabled() bool {
	return c.Execution.WSURL != ""
}

// CooldownFloor returns the quote-clock floor as a duration.
func (c *Config) CooldownFloor() time.Duration {
	return time.Duration(c.Quoting.CooldownFloorMS) * time.Millisecond
}

// Freshness returns the fusion staleness cutoff as a duration.
func (c *Config) Freshness() time.Duration {
	return time.Duration(c.Fusion.FreshnessMS) * time.Millisecond
}

// DemeanHalfLife returns the offset decay half-life.
func (c *Config) DemeanHalfLife() time.Duration {
	return time.Duration(c.Fusion.DemeanHalfLifeMS) * time.Millisecond
}

// ResyncInterval returns the inventory REST reconciliation period.
func (c *Config) ResyncInterval() time.Duration {
	return time.Duration(c.Inventory.ResyncIntervalSec) * time.Second
}

// BackoffBounds returns the reconnect delay floor and ceiling.
func (c *Config) BackoffBounds() (min, max time.Duration) {
	return time.Duration(c.Reconnect.MinDelayMS) * time.Millisecond,
		time.Duration(c.Reconnect.MaxDelayMS) * time.Millisecond
}

// overrideWithEnv replaces credential fields when environment variables are
// present. Keys never persist in config files.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("QUOTEFUSE_GATE_KEY"); key != "" {
		cfg.Execution.AccessKey = key
	}
	if secret := os.Getenv("QUOTEFUSE_GATE_SECRET"); secret != "" {
		cfg.Execution.SecretKey = secret
	}
}
