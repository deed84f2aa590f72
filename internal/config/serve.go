package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Listen       string
	Journal      string
	KafkaBrokers []string
	KafkaTopic   string
	RateLimit    float64
	RateBurst    int
	BootstrapTTL time.Duration
	Oracle       OracleConfig
	Backend      BackendConfig
	LogLevel     string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, mergeDefaults(oracleDefaults, backendDefaults, map[string]any{
		"listen":        ":8080",
		"journal":       "./data/contributions.jsonl",
		"kafka-topic":   "contributions",
		"rate-limit":    10.0,
		"rate-burst":    30,
		"bootstrap-ttl": time.Duration(0),
	}))
	if err != nil {
		return ServeConfig{}, err
	}

	backend, err := backendFrom(v)
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:       v.GetString("listen"),
		Journal:      v.GetString("journal"),
		KafkaBrokers: getStringSlice(v, "kafka-brokers"),
		KafkaTopic:   v.GetString("kafka-topic"),
		RateLimit:    v.GetFloat64("rate-limit"),
		RateBurst:    v.GetInt("rate-burst"),
		BootstrapTTL: v.GetDuration("bootstrap-ttl"),
		Oracle:       oracleFrom(v),
		Backend:      backend,
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.Listen == "" {
		return ServeConfig{}, fmt.Errorf("listen address is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return ServeConfig{}, fmt.Errorf("kafka-topic is required when kafka-brokers is set")
	}
	return cfg, nil
}
