package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// PricesConfig holds configuration for the prices command.
type PricesConfig struct {
	Oracle   OracleConfig
	LogLevel string
}

// LoadPrices merges config file, environment variables, and flags into PricesConfig.
func LoadPrices(cfgFile string, flags *pflag.FlagSet) (PricesConfig, error) {
	v, err := newViper(cfgFile, flags, oracleDefaults)
	if err != nil {
		return PricesConfig{}, err
	}
	return PricesConfig{
		Oracle:   oracleFrom(v),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// RecordConfig holds configuration for the record command.
type RecordConfig struct {
	Project     string
	Contributor string
	Chain       string
	Currency    string
	Amount      float64
	TxHash      string
	Oracle      OracleConfig
	Backend     BackendConfig
	LogLevel    string
}

// LoadRecord merges config file, environment variables, and flags into RecordConfig.
func LoadRecord(cfgFile string, flags *pflag.FlagSet) (RecordConfig, error) {
	v, err := newViper(cfgFile, flags, mergeDefaults(oracleDefaults, backendDefaults))
	if err != nil {
		return RecordConfig{}, err
	}
	backend, err := backendFrom(v)
	if err != nil {
		return RecordConfig{}, err
	}
	cfg := RecordConfig{
		Project:     v.GetString("project"),
		Contributor: v.GetString("contributor"),
		Chain:       v.GetString("chain"),
		Currency:    v.GetString("currency"),
		Amount:      v.GetFloat64("amount"),
		TxHash:      v.GetString("tx-hash"),
		Oracle:      oracleFrom(v),
		Backend:     backend,
		LogLevel:    v.GetString("log-level"),
	}
	if cfg.Project == "" {
		return RecordConfig{}, fmt.Errorf("project is required")
	}
	return cfg, nil
}

// FundingConfig holds configuration for the funding command.
type FundingConfig struct {
	Project  string
	Backend  BackendConfig
	LogLevel string
}

// LoadFunding merges config file, environment variables, and flags into FundingConfig.
func LoadFunding(cfgFile string, flags *pflag.FlagSet) (FundingConfig, error) {
	v, err := newViper(cfgFile, flags, backendDefaults)
	if err != nil {
		return FundingConfig{}, err
	}
	backend, err := backendFrom(v)
	if err != nil {
		return FundingConfig{}, err
	}
	cfg := FundingConfig{
		Project:  v.GetString("project"),
		Backend:  backend,
		LogLevel: v.GetString("log-level"),
	}
	if cfg.Project == "" {
		return FundingConfig{}, fmt.Errorf("project is required")
	}
	return cfg, nil
}
