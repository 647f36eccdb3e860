// Package config exposes strongly typed run parameters loaded from YAML
// and/or CLI flags, validated once at startup and immutable afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulpytale/bittensor-utils/internal/subtensor"
)

// Defaults mirror the CLI surface.
const (
	DefaultNetwork       = subtensor.NetworkFinney
	DefaultOriginNetuid  = 0
	DefaultTargetNetuid  = 117
	DefaultThresholdTao  = 0.0017
	DefaultIntervalSecs  = 60
	DefaultMaxSwaps      = 1
	DefaultRateTolerance = 0.025
)

// App captures process-wide settings (metrics listener, log level).
type App struct {
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	JournalPath string `yaml:"journal_path"`
}

// Wallet identifies the signing wallet. The coldkey password is never
// part of the config; it comes from a wallet.SecretProvider.
type Wallet struct {
	Name   string `yaml:"name"`
	Hotkey string `yaml:"hotkey"`
}

// Run holds the watcher loop parameters.
type Run struct {
	Network      string  `yaml:"network"`
	OriginNetuid uint16  `yaml:"origin_netuid"`
	TargetNetuid uint16  `yaml:"netuid"`
	AmountTao    float64 `yaml:"amount_tao"`
	ThresholdTao float64 `yaml:"threshold_tao"`
	IntervalSecs float64 `yaml:"interval_secs"`
	MaxSwaps     int     `yaml:"max_swaps"` // 0 = unbounded
	DryRun       bool    `yaml:"dry_run"`
}

// Safety holds the safe-staking envelope applied before submission.
type Safety struct {
	SafeStaking   bool    `yaml:"safe_staking"`
	AllowPartial  bool    `yaml:"allow_partial"`
	RateTolerance float64 `yaml:"rate_tolerance"`
}

// Submission controls how long the executor waits on an extrinsic.
type Submission struct {
	WaitForInclusion    bool `yaml:"wait_for_inclusion"`
	WaitForFinalization bool `yaml:"wait_for_finalization"`
}

// Config collects every configuration leaf.
type Config struct {
	App        App        `yaml:"app"`
	Wallet     Wallet     `yaml:"wallet"`
	Run        Run        `yaml:"run"`
	Safety     Safety     `yaml:"safety"`
	Submission Submission `yaml:"submission"`
}

// Default returns a Config carrying the documented flag defaults.
func Default() *Config {
	return &Config{
		App: App{
			MetricsAddr: ":9109",
			LogLevel:    "info",
		},
		Wallet: Wallet{Hotkey: "default"},
		Run: Run{
			Network:      DefaultNetwork,
			OriginNetuid: DefaultOriginNetuid,
			TargetNetuid: DefaultTargetNetuid,
			ThresholdTao: DefaultThresholdTao,
			IntervalSecs: DefaultIntervalSecs,
			MaxSwaps:     DefaultMaxSwaps,
		},
		Safety: Safety{RateTolerance: DefaultRateTolerance},
		Submission: Submission{
			WaitForInclusion: true,
		},
	}
}

// Load reads a YAML file from disk on top of the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Interval returns the poll interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Run.IntervalSecs * float64(time.Second))
}

// Validate enforces the startup invariants. A non-nil return means the
// process must exit before entering the loop.
func (c *Config) Validate() error {
	if c.Wallet.Name == "" {
		return fmt.Errorf("wallet.name is required")
	}
	if c.Wallet.Hotkey == "" {
		return fmt.Errorf("wallet.hotkey is required")
	}
	if !subtensor.ValidNetwork(c.Run.Network) {
		return fmt.Errorf("unknown network %q", c.Run.Network)
	}
	if c.Run.AmountTao <= 0 {
		return fmt.Errorf("amount-tao must be greater than zero")
	}
	if c.Run.ThresholdTao < 0 {
		return fmt.Errorf("threshold-tao must not be negative")
	}
	if c.Run.IntervalSecs < 1 {
		return fmt.Errorf("interval must be at least one second")
	}
	if c.Run.MaxSwaps < 0 {
		return fmt.Errorf("max-swaps must be zero or a positive integer")
	}
	if c.Safety.RateTolerance < 0 || c.Safety.RateTolerance > 1 {
		return fmt.Errorf("rate-tolerance must be within [0,1]")
	}
	return nil
}
