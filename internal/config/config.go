package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "CROSSFUND"

// Backend kinds accepted by the backend setting.
const (
	BackendHTTP     = "http"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// OracleConfig configures the price oracle cache and its feeds.
type OracleConfig struct {
	PriceURL      string
	Staleness     time.Duration
	FeedTimeout   time.Duration
	RetryInterval time.Duration
	FeedRate      float64
	FeedBurst     int
}

// BackendConfig configures the persistence backend and its outbox.
type BackendConfig struct {
	Kind         string
	URL          string
	PGDSN        string
	QueueSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	CallTimeout  time.Duration
}

// LoadDotEnv loads a .env file into the environment if one exists.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// newViper builds a viper instance that merges config file, environment
// variables, and flags on top of the given defaults.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

var oracleDefaults = map[string]any{
	"price-url":           "https://api.coingecko.com/api/v3/simple/price?ids=%s&vs_currencies=usd",
	"price-staleness":     60 * time.Second,
	"feed-timeout":        5 * time.Second,
	"feed-retry-interval": 5 * time.Second,
	"feed-rate":           2.0,
	"feed-burst":          3,
}

var backendDefaults = map[string]any{
	"backend":       BackendHTTP,
	"backend-url":   "http://localhost:5000/api",
	"queue-size":    1024,
	"max-retries":   3,
	"retry-backoff": 500 * time.Millisecond,
	"call-timeout":  10 * time.Second,
}

func mergeDefaults(sets ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}

func oracleFrom(v *viper.Viper) OracleConfig {
	return OracleConfig{
		PriceURL:      v.GetString("price-url"),
		Staleness:     v.GetDuration("price-staleness"),
		FeedTimeout:   v.GetDuration("feed-timeout"),
		RetryInterval: v.GetDuration("feed-retry-interval"),
		FeedRate:      v.GetFloat64("feed-rate"),
		FeedBurst:     v.GetInt("feed-burst"),
	}
}

func backendFrom(v *viper.Viper) (BackendConfig, error) {
	cfg := BackendConfig{
		Kind:         strings.ToLower(strings.TrimSpace(v.GetString("backend"))),
		URL:          v.GetString("backend-url"),
		PGDSN:        v.GetString("pg-dsn"),
		QueueSize:    v.GetInt("queue-size"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		CallTimeout:  v.GetDuration("call-timeout"),
	}
	switch cfg.Kind {
	case BackendHTTP:
		if cfg.URL == "" {
			return cfg, fmt.Errorf("backend-url is required for the http backend")
		}
	case BackendPostgres:
		if cfg.PGDSN == "" {
			return cfg, fmt.Errorf("pg-dsn is required for the postgres backend")
		}
	case BackendNone:
	default:
		return cfg, fmt.Errorf("unknown backend %q (want http, postgres or none)", cfg.Kind)
	}
	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
