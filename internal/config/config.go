// Package config loads the daemon's TOML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/cptspacemanspiff/powerd/internal/policy"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/powerd/powerd.toml"

const (
	minRetentionDays        = 1
	maxRetentionDays        = 3650
	minCleanupIntervalHours = 1
	maxCleanupIntervalHours = 720
)

type Config struct {
	Storage StorageConfig `toml:"storage"`
	Policy  PolicyConfig  `toml:"policy"`
	Daemon  DaemonConfig  `toml:"daemon"`
	History HistoryConfig `toml:"history"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// PolicyConfig holds the warning thresholds. Invalid threshold sets are
// not rejected here; Thresholds falls back to the defaults for them.
type PolicyConfig struct {
	PercentageLow          float64 `toml:"percentage_low"`
	PercentageCritical     float64 `toml:"percentage_critical"`
	PercentageAction       float64 `toml:"percentage_action"`
	TimeLow                int64   `toml:"time_low"`
	TimeCritical           int64   `toml:"time_critical"`
	TimeAction             int64   `toml:"time_action"`
	UsePercentageForPolicy bool    `toml:"use_percentage_for_policy"`
	CriticalPowerAction    string  `toml:"critical_power_action"`
}

type DaemonConfig struct {
	IgnoreLid        bool `toml:"ignore_lid"`
	NoPollBatteries  bool `toml:"no_poll_batteries"`
	EnableWattsUpPro bool `toml:"enable_watts_up_pro"`
}

type HistoryConfig struct {
	RetentionDays        int `toml:"retention_days"`
	CleanupIntervalHours int `toml:"cleanup_interval_hours"`
}

func DefaultConfig() *Config {
	th := policy.DefaultThresholds()
	return &Config{
		Storage: StorageConfig{
			DBPath: "/var/lib/powerd/history.db",
		},
		Policy: PolicyConfig{
			PercentageLow:          th.PercentageLow,
			PercentageCritical:     th.PercentageCritical,
			PercentageAction:       th.PercentageAction,
			TimeLow:                th.TimeLow,
			TimeCritical:           th.TimeCritical,
			TimeAction:             th.TimeAction,
			UsePercentageForPolicy: true,
			CriticalPowerAction:    policy.ActionHybridSleep,
		},
		History: HistoryConfig{
			RetentionDays:        30,
			CleanupIntervalHours: 24,
		},
	}
}

// Thresholds converts the policy section for the warning ladder.
func (p PolicyConfig) Thresholds() policy.Thresholds {
	return policy.Thresholds{
		PercentageLow:          p.PercentageLow,
		PercentageCritical:     p.PercentageCritical,
		PercentageAction:       p.PercentageAction,
		TimeLow:                p.TimeLow,
		TimeCritical:           p.TimeCritical,
		TimeAction:             p.TimeAction,
		UsePercentageForPolicy: p.UsePercentageForPolicy,
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Storage.DBPath, err = sanitizePath("storage.db_path", sanitized.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	if err := validateRange("history.retention_days", sanitized.History.RetentionDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("history.cleanup_interval_hours", sanitized.History.CleanupIntervalHours, minCleanupIntervalHours, maxCleanupIntervalHours); err != nil {
		return nil, err
	}

	sanitized.Policy.CriticalPowerAction = strings.TrimSpace(sanitized.Policy.CriticalPowerAction)

	return &sanitized, nil
}

func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	dir := filepath.Dir(trimmedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".powerd-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, trimmedPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}
