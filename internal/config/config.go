// Package config loads and validates the application configuration
// from YAML.
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env           string `yaml:"env"`
	LogLevel      string `yaml:"log_level"`
	LogPath       string `yaml:"log_path"`
	OracleLogPath string `yaml:"oracle_log_path"`
	HTTPAddr      string `yaml:"http_addr"`
	DatabasePath  string `yaml:"database_path"`
}

type DecisionConfig struct {
	Interval       string   `yaml:"interval"`
	OffsetSeconds  int      `yaml:"offset_seconds"`
	RunImmediately bool     `yaml:"run_immediately"`
	MinVotes       int      `yaml:"min_votes"`
	MinConfidence  float64  `yaml:"min_confidence"`
	Symbols        []string `yaml:"symbols"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

type OracleConfig struct {
	ID             string `yaml:"id"`
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	APIURL         string `yaml:"api_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	Disabled       bool   `yaml:"disabled"`
}

type VenueConfig struct {
	Name           string `yaml:"name"`
	Driver         string `yaml:"driver"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	PrivateKey     string `yaml:"private_key"`
	WalletAddress  string `yaml:"wallet_address"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Testnet        bool   `yaml:"testnet"`
	MarketSource   bool   `yaml:"market_source"`
}

type RiskConfig struct {
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	TakeProfitPct   float64 `yaml:"take_profit_pct"`
	DailyLossCap    float64 `yaml:"daily_loss_cap"`
	MinMargin       float64 `yaml:"min_margin"`
	MaxMargin       float64 `yaml:"max_margin"`
	LeverageFloor   int     `yaml:"leverage_floor"`
	LeverageCeiling int     `yaml:"leverage_ceiling"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	WatchReload     bool    `yaml:"watch_reload"`
}

type ListingConfig struct {
	Enabled         bool    `yaml:"enabled"`
	CooldownMinutes int     `yaml:"cooldown_minutes"`
	MinReliability  float64 `yaml:"min_reliability"` // events below this score never trigger trading
	Group           string  `yaml:"group"`
}

type Config struct {
	App         AppConfig      `yaml:"app"`
	Decision    DecisionConfig `yaml:"decision"`
	Oracles     []OracleConfig `yaml:"oracles"`
	Venues      []VenueConfig  `yaml:"venues"`
	Risk        RiskConfig     `yaml:"risk"`
	Listing     ListingConfig  `yaml:"listing"`
	Instruments string         `yaml:"instruments"` // path to precision profiles

	// Path this config was loaded from. Set by Load, used by the
	// risk-profile watcher.
	sourcePath string
}

// SourcePath reports which file the config came from.
func (c *Config) SourcePath() string { return c.sourcePath }

func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	cfg.sourcePath = path
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9985"
	}
	if c.App.DatabasePath == "" {
		c.App.DatabasePath = "data/quorum.db"
	}
	if c.Decision.Interval == "" {
		c.Decision.Interval = "15m"
	}
	if c.Decision.MinVotes <= 0 {
		c.Decision.MinVotes = 2
	}
	if c.Decision.MinConfidence <= 0 {
		c.Decision.MinConfidence = 60
	}
	if c.Decision.TimeoutSeconds <= 0 {
		c.Decision.TimeoutSeconds = 60
	}
	if len(c.Decision.Symbols) == 0 {
		c.Decision.Symbols = []string{"BTC"}
	}
	if c.Risk.StopLossPct <= 0 {
		c.Risk.StopLossPct = 0.15
	}
	if c.Risk.TakeProfitPct <= 0 {
		c.Risk.TakeProfitPct = 0.30
	}
	if c.Risk.MinMargin <= 0 {
		c.Risk.MinMargin = 120
	}
	if c.Risk.MaxMargin <= 0 {
		c.Risk.MaxMargin = 240
	}
	if c.Risk.LeverageFloor <= 0 {
		c.Risk.LeverageFloor = 2
	}
	if c.Risk.LeverageCeiling <= 0 {
		c.Risk.LeverageCeiling = 5
	}
	if c.Risk.ConfidenceFloor <= 0 {
		c.Risk.ConfidenceFloor = 60
	}
	if c.Listing.CooldownMinutes <= 0 {
		c.Listing.CooldownMinutes = 30
	}
	if c.Listing.MinReliability <= 0 {
		c.Listing.MinReliability = 0.5
	}
	if c.Instruments == "" {
		c.Instruments = "configs/instruments.yaml"
	}
	for i := range c.Oracles {
		if c.Oracles[i].TimeoutSeconds <= 0 {
			c.Oracles[i].TimeoutSeconds = 120
		}
		if c.Oracles[i].MaxRetries <= 0 {
			c.Oracles[i].MaxRetries = 3
		}
	}
}

func validate(c *Config) error {
	if len(c.Oracles) == 0 {
		return fmt.Errorf("oracles requires at least one entry")
	}
	ids := make(map[string]bool, len(c.Oracles))
	enabled := 0
	for _, o := range c.Oracles {
		if !o.Disabled {
			enabled++
		}
		if strings.TrimSpace(o.Model) == "" {
			return fmt.Errorf("oracle %q missing model", o.ID)
		}
		if strings.TrimSpace(o.APIURL) == "" {
			return fmt.Errorf("oracle %q missing api_url", o.ID)
		}
		id := o.ID
		if id == "" {
			id = o.Provider + ":" + o.Model
		}
		if ids[id] {
			return fmt.Errorf("duplicate oracle id: %s", id)
		}
		ids[id] = true
	}
	if len(c.Venues) == 0 {
		return fmt.Errorf("venues requires at least one entry")
	}
	names := make(map[string]bool, len(c.Venues))
	for _, v := range c.Venues {
		if strings.TrimSpace(v.Driver) == "" {
			return fmt.Errorf("venue %q missing driver", v.Name)
		}
		name := v.Name
		if name == "" {
			name = v.Driver
		}
		if names[name] {
			return fmt.Errorf("duplicate venue name: %s", name)
		}
		names[name] = true
	}
	if enabled == 0 {
		return fmt.Errorf("all configured oracles are disabled")
	}
	if c.Decision.MinVotes > enabled {
		return fmt.Errorf("decision.min_votes (%d) exceeds enabled oracle count (%d)", c.Decision.MinVotes, enabled)
	}
	if c.Risk.StopLossPct >= c.Risk.TakeProfitPct {
		return fmt.Errorf("risk.stop_loss_pct must be below risk.take_profit_pct")
	}
	if c.Risk.MinMargin > c.Risk.MaxMargin {
		return fmt.Errorf("risk.min_margin must not exceed risk.max_margin")
	}
	if c.Risk.LeverageFloor > c.Risk.LeverageCeiling {
		return fmt.Errorf("risk.leverage_floor must not exceed risk.leverage_ceiling")
	}
	return nil
}
