// Package config loads server settings and the per-company finance-charge
// seed from a YAML file, with environment overrides for deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/clearbook/finance-engine/ledger"
)

// Config is the full configuration file.
type Config struct {
	Server    Server    `yaml:"server"`
	Scheduler Scheduler `yaml:"scheduler"`
	Companies []Company `yaml:"companies"`
}

type Server struct {
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`
}

type Scheduler struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
	BatchSize       int  `yaml:"batch_size"`
}

// Company is the YAML shape of a company's finance-charge settings.
type Company struct {
	ID                string `yaml:"id"`
	PaymentTermDays   int    `yaml:"payment_term_days"`
	ProductID         string `yaml:"product_id"`
	ProductIncomeAcct string `yaml:"product_income_account_id"`
	FallbackAcct      string `yaml:"fallback_account_id"`
	ChargeDescription string `yaml:"charge_description"`
	AnnualRate        string `yaml:"annual_rate"`
	MultiStub         bool   `yaml:"multi_stub"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: Server{Port: 8080, DBPath: "finance.db"},
		Scheduler: Scheduler{
			Enabled:         true,
			IntervalMinutes: 60,
			BatchSize:       50,
		},
	}
}

// Load reads the YAML file at path, falling back to defaults when the path
// is empty or missing, then applies environment overrides (PORT, DB_PATH).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyEnv(cfg), nil
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return applyEnv(cfg), nil
}

func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
	return cfg
}

// CompanyConfig converts a YAML company entry to the ledger type. A bad
// annual rate is a configuration error, not a silent default.
func (c Company) CompanyConfig() (*ledger.CompanyConfig, error) {
	cfg := &ledger.CompanyConfig{
		CompanyID:              ledger.CompanyID(c.ID),
		PaymentTermDays:        c.PaymentTermDays,
		ProductID:              c.ProductID,
		ProductIncomeAccountID: c.ProductIncomeAcct,
		FallbackAccountID:      c.FallbackAcct,
		ChargeDescription:      c.ChargeDescription,
		MultiStub:              c.MultiStub,
	}
	if c.AnnualRate != "" {
		rate, err := decimal.NewFromString(c.AnnualRate)
		if err != nil {
			return nil, fmt.Errorf("company %s: invalid annual_rate %q: %w", c.ID, c.AnnualRate, err)
		}
		cfg.AnnualRate = rate
	}
	return cfg, nil
}
