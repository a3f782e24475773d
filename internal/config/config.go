package config

import (
	"fmt"
	"os"
	"time"

	"zcsmower/internal/mower"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Mower is one tracked lawn mower within an account.
type Mower struct {
	IMEI string `yaml:"imei"`
	Name string `yaml:"name"`
}

// Account groups the mowers reachable through one vendor client key.
type Account struct {
	Name      string  `yaml:"name"`
	ClientKey string  `yaml:"client_key"`
	Mowers    []Mower `yaml:"mowers"`
}

// Config is the top-level configuration file structure.
type Config struct {
	UpdateIntervalMinutes int       `yaml:"update_interval_minutes"`
	Accounts              []Account `yaml:"accounts"`
}

// Load reads and validates the configuration file.
func Load(path string, logger *zap.Logger) (*Config, error) {
	logger.Debug("Loading configuration", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		zap.String("path", path),
		zap.Int("accounts", len(cfg.Accounts)))
	return &cfg, nil
}

// Validate checks the account and mower definitions.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}
	if c.UpdateIntervalMinutes < 0 {
		return fmt.Errorf("update_interval_minutes must not be negative")
	}

	accountNames := make(map[string]bool, len(c.Accounts))
	for i, account := range c.Accounts {
		if account.Name == "" {
			return fmt.Errorf("account %d: name is required", i)
		}
		if accountNames[account.Name] {
			return fmt.Errorf("account %q: duplicate name", account.Name)
		}
		accountNames[account.Name] = true

		if account.ClientKey == "" {
			return fmt.Errorf("account %q: client_key is required", account.Name)
		}
		if len(account.Mowers) == 0 {
			return fmt.Errorf("account %q: no mowers configured", account.Name)
		}

		imeis := make(map[string]bool, len(account.Mowers))
		for _, m := range account.Mowers {
			if err := mower.ValidateIMEI(m.IMEI); err != nil {
				return fmt.Errorf("account %q: %w", account.Name, err)
			}
			if imeis[m.IMEI] {
				return fmt.Errorf("account %q: duplicate mower %s", account.Name, m.IMEI)
			}
			imeis[m.IMEI] = true
			if m.Name == "" {
				return fmt.Errorf("account %q: mower %s: name is required", account.Name, m.IMEI)
			}
		}
	}
	return nil
}

// UpdateInterval returns the configured refresh period, defaulting to five
// minutes.
func (c *Config) UpdateInterval() time.Duration {
	if c.UpdateIntervalMinutes == 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.UpdateIntervalMinutes) * time.Minute
}

// Registrations converts an account's mower list for the coordinator.
func (a Account) Registrations() []mower.Registration {
	regs := make([]mower.Registration, 0, len(a.Mowers))
	for _, m := range a.Mowers {
		regs = append(regs, mower.Registration{IMEI: m.IMEI, Name: m.Name})
	}
	return regs
}
