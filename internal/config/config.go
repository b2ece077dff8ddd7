// Package config provides configuration management for the campaign tracker.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Classification and alert defaults, used when the corresponding strategy
// fields are unset.
const (
	// defaultCoreDeltaMin is the absolute delta a long call must exceed to
	// count as a core leg.
	defaultCoreDeltaMin = 0.60
	// defaultCoreDTEMin is the days-to-expiration a long call must exceed
	// to count as a core leg.
	defaultCoreDTEMin = 180
	// defaultRollAlertExtrinsic is the extrinsic value below which an
	// active short should be rolled.
	defaultRollAlertExtrinsic = 0.20
	// defaultStrikeTolerance separates core-leg disposals from income
	// trades when matching closed-trade strikes.
	defaultStrikeTolerance = 0.5
	// defaultRefreshInterval is how often a new analysis run is triggered.
	defaultRefreshInterval = 15 * time.Minute
	// defaultBetaLookbackDays is how much daily history feeds the beta
	// estimate.
	defaultBetaLookbackDays = 180
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Beta        BetaConfig        `yaml:"beta"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Provider    string `yaml:"provider"`
	APIKey      string `yaml:"api_key"`
	APIEndpoint string `yaml:"api_endpoint"`
	Sandbox     bool   `yaml:"sandbox"`
	// Timeout bounds each upstream call; a timed-out call fails the run
	// like any other fetch failure.
	Timeout string `yaml:"timeout"`
}

// StrategyConfig defines the campaign classification thresholds.
type StrategyConfig struct {
	CoreDeltaMin       float64 `yaml:"core_delta_min"`
	CoreDTEMin         int     `yaml:"core_dte_min"`
	RollAlertExtrinsic float64 `yaml:"roll_alert_extrinsic"`
	StrikeTolerance    float64 `yaml:"strike_tolerance"`
}

// BetaConfig defines beta estimation settings.
type BetaConfig struct {
	Benchmark    string   `yaml:"benchmark"`
	LookbackDays int      `yaml:"lookback_days"`
	CashTickers  []string `yaml:"cash_tickers"`
}

// ScheduleConfig defines how often analysis runs are triggered.
type ScheduleConfig struct {
	RefreshInterval string `yaml:"refresh_interval"`
}

// DashboardConfig defines the HTTP dashboard settings.
type DashboardConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// StorageConfig defines where the snapshot history is persisted.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent,
// and fills defaults for unset optional values.
func (c *Config) Validate() error {
	if c.Broker.APIKey == "" {
		return fmt.Errorf("broker.api_key is required")
	}

	c.normalize()

	if c.Strategy.CoreDeltaMin <= 0 || c.Strategy.CoreDeltaMin >= 1 {
		return fmt.Errorf("strategy.core_delta_min must be in (0,1)")
	}
	if c.Strategy.CoreDTEMin <= 0 {
		return fmt.Errorf("strategy.core_dte_min must be > 0")
	}
	if c.Strategy.RollAlertExtrinsic <= 0 {
		return fmt.Errorf("strategy.roll_alert_extrinsic must be > 0")
	}
	if c.Strategy.StrikeTolerance <= 0 {
		return fmt.Errorf("strategy.strike_tolerance must be > 0")
	}

	if c.Beta.LookbackDays <= 0 {
		return fmt.Errorf("beta.lookback_days must be > 0")
	}

	if _, err := time.ParseDuration(c.Schedule.RefreshInterval); err != nil {
		return fmt.Errorf("schedule.refresh_interval invalid: %w", err)
	}
	if c.Broker.Timeout != "" {
		if _, err := time.ParseDuration(c.Broker.Timeout); err != nil {
			return fmt.Errorf("broker.timeout invalid: %w", err)
		}
	}

	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be a valid TCP port")
	}

	return nil
}

// normalize fills defaults for unset optional values.
func (c *Config) normalize() {
	if c.Strategy.CoreDeltaMin == 0 {
		c.Strategy.CoreDeltaMin = defaultCoreDeltaMin
	}
	if c.Strategy.CoreDTEMin == 0 {
		c.Strategy.CoreDTEMin = defaultCoreDTEMin
	}
	if c.Strategy.RollAlertExtrinsic == 0 {
		c.Strategy.RollAlertExtrinsic = defaultRollAlertExtrinsic
	}
	if c.Strategy.StrikeTolerance == 0 {
		c.Strategy.StrikeTolerance = defaultStrikeTolerance
	}
	if c.Beta.Benchmark == "" {
		c.Beta.Benchmark = "SPY"
	}
	if c.Beta.LookbackDays == 0 {
		c.Beta.LookbackDays = defaultBetaLookbackDays
	}
	if c.Schedule.RefreshInterval == "" {
		c.Schedule.RefreshInterval = defaultRefreshInterval.String()
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/history.json"
	}
}

// GetRefreshInterval returns the configured refresh interval duration.
func (c *Config) GetRefreshInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.RefreshInterval)
	if err != nil {
		return defaultRefreshInterval
	}
	return d
}

// GetBrokerTimeout returns the configured per-call broker timeout.
func (c *Config) GetBrokerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Broker.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}
